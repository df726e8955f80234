package server

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"moodboard/internal/config"
)

const (
	sniffLength                = 512
	fallbackContentMediaType   = "application/octet-stream"
	multipartOverheadAllowance = 1 << 20 // 1 MiB
)

// UploadLimits bounds multipart uploads.
type UploadLimits struct {
	MaxImageBytes      int64
	MaxFileBytes       int64
	MultipartMaxMemory int64
}

func (u UploadLimits) withDefaults() UploadLimits {
	if u.MaxImageBytes <= 0 {
		u.MaxImageBytes = config.DefaultMaxImageBytes
	}
	if u.MaxFileBytes <= 0 {
		u.MaxFileBytes = config.DefaultMaxFileBytes
	}
	if u.MultipartMaxMemory <= 0 {
		u.MultipartMaxMemory = config.DefaultMultipartMaxMemory
	}
	return u
}

// AssetContent describes a stored asset stream.
type AssetContent struct {
	Reader    io.ReadCloser
	SizeBytes int64
	MediaType string
	Filename  string
	ETag      string
}

// uploadedContent is an inspected upload: its size, sniffed media type and
// digest. The reader is rewound after inspection.
type uploadedContent struct {
	size      int64
	mediaType string
	head      []byte
	sha256    string
}

func inspectUpload(content io.ReadSeeker) (uploadedContent, error) {
	var out uploadedContent
	size, err := content.Seek(0, io.SeekEnd)
	if err != nil {
		return out, err
	}
	if _, err := content.Seek(0, io.SeekStart); err != nil {
		return out, err
	}
	out.size = size

	hasher := sha256.New()
	head := &limitedBuffer{limit: sniffLength}
	if _, err := io.Copy(io.MultiWriter(hasher, head), content); err != nil {
		return out, err
	}
	if _, err := content.Seek(0, io.SeekStart); err != nil {
		return out, err
	}
	out.head = head.Bytes()
	out.mediaType = normalizeMediaType(http.DetectContentType(out.head))
	out.sha256 = hex.EncodeToString(hasher.Sum(nil))
	return out, nil
}

// limitedBuffer keeps the first limit bytes written to it.
type limitedBuffer struct {
	bytes.Buffer
	limit int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if room := b.limit - b.Len(); room > 0 {
		if len(p) > room {
			b.Buffer.Write(p[:room])
		} else {
			b.Buffer.Write(p)
		}
	}
	return len(p), nil
}

func normalizeMediaType(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	parsed, _, err := mime.ParseMediaType(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed)
}

// fileExtension returns the lower-case extension of name without the dot.
func fileExtension(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(strings.TrimSpace(name)), "."))
}

// extensionForMediaType returns a conventional extension for mediaType.
func extensionForMediaType(mediaType string) string {
	switch mediaType {
	case "image/jpeg":
		return "jpg"
	case "image/svg+xml":
		return "svg"
	}
	exts, err := mime.ExtensionsByType(mediaType)
	if err != nil || len(exts) == 0 {
		return ""
	}
	return strings.TrimPrefix(exts[0], ".")
}

func withExtension(base, ext string) string {
	if ext == "" {
		return base
	}
	return base + "." + ext
}
