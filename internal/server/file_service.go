package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"moodboard/internal/api"
	"moodboard/internal/canvas"
	"moodboard/internal/config"
	"moodboard/internal/format"
	"moodboard/internal/models"
	"moodboard/internal/store"
)

// FileService handles generic file uploads and downloads.
type FileService struct {
	assets   store.AssetStore
	blobs    *BlobService
	urls     canvas.URLBuilder
	logger   *slog.Logger
	maxBytes int64
}

// UploadFileInput carries the form values sent with a file.
type UploadFileInput struct {
	Filename string
	Name     string
}

// UploadFileResult is a stored or deduplicated file.
type UploadFileResult struct {
	File         models.File
	Deduplicated bool
}

// NewFileService constructs a FileService.
func NewFileService(assets store.AssetStore, blobs *BlobService, urls canvas.URLBuilder, logger *slog.Logger) *FileService {
	return &FileService{assets: assets, blobs: blobs, urls: urls, logger: logger, maxBytes: config.DefaultMaxFileBytes}
}

// Upload stores a file unless identical bytes were uploaded before.
func (s *FileService) Upload(ctx context.Context, in UploadFileInput, content io.ReadSeeker) (UploadFileResult, error) {
	var zero UploadFileResult
	if s == nil || s.assets == nil || s.blobs == nil {
		return zero, internalError(fmt.Errorf("file service is not configured"))
	}
	if content == nil {
		return zero, fieldError("file", "file is required", ErrCodeMissingRequired)
	}
	name, err := normalizeDisplayName("name", in.Name, models.FileNameMaxLength)
	if err != nil {
		return zero, err
	}

	inspected, err := inspectUpload(content)
	if err != nil {
		return zero, internalError(fmt.Errorf("read upload: %w", err))
	}
	if inspected.size == 0 {
		return zero, fieldError("file", "file is required", ErrCodeMissingRequired)
	}
	if inspected.size > s.maxBytes {
		return zero, fieldError("file", "file must not exceed "+format.Size(s.maxBytes), ErrCodeUploadTooLarge)
	}

	existing, err := s.assets.GetFileBySHA256(ctx, inspected.sha256)
	if err != nil {
		return zero, storeFailure(err)
	}
	if existing != nil {
		loggerFromContext(ctx, s.logger).Info("file upload deduplicated", "file_id", existing.ID, "sha256", inspected.sha256)
		return UploadFileResult{File: *existing, Deduplicated: true}, nil
	}

	putResult, err := s.blobs.Put(ctx, content)
	if err != nil {
		return zero, err
	}

	originalName := strings.TrimSpace(in.Filename)
	ext := fileExtension(originalName)
	mediaType := inspected.mediaType
	if mediaType == "" || mediaType == fallbackContentMediaType || mediaType == "text/plain" {
		if byExt := normalizeMediaType(mime.TypeByExtension("." + ext)); ext != "" && byExt != "" {
			mediaType = byExt
		}
	}
	file := &models.File{
		Name:         firstNonEmpty(name, originalName, "file"),
		OriginalName: firstNonEmpty(originalName, name, "file"),
		StoredName:   withExtension(strings.ReplaceAll(uuid.NewString(), "-", ""), ext),
		MimeType:     firstNonEmpty(mediaType, fallbackContentMediaType),
		SizeBytes:    putResult.SizeBytes,
		Extension:    ext,
	}
	stored, deduplicated, err := s.assets.CreateFileWithBlob(ctx, &models.Blob{
		SHA256:         putResult.SHA256,
		SizeBytes:      putResult.SizeBytes,
		StorageBackend: s.blobs.Backend(),
		BlobKey:        putResult.BlobKey,
	}, file)
	if err != nil {
		return zero, storeFailure(err)
	}
	if stored == nil {
		return zero, internalError(fmt.Errorf("file not found after create"))
	}

	loggerFromContext(ctx, s.logger).Info("file uploaded", "file_id", stored.ID, "size", stored.SizeBytes, "deduplicated", deduplicated)
	return UploadFileResult{File: *stored, Deduplicated: deduplicated}, nil
}

// Get returns one file.
func (s *FileService) Get(ctx context.Context, id string) (models.File, error) {
	var zero models.File
	if s == nil || s.assets == nil {
		return zero, internalError(fmt.Errorf("file service is not configured"))
	}
	if err := requireFileID(id); err != nil {
		return zero, err
	}
	file, err := s.assets.GetFile(ctx, id)
	if err != nil {
		return zero, storeFailure(err)
	}
	if file == nil {
		return zero, notFoundCode(fmt.Errorf("file not found"), ErrCodeFileNotFound)
	}
	return *file, nil
}

// OpenContent opens the stored bytes of a file for download.
func (s *FileService) OpenContent(ctx context.Context, id string) (*AssetContent, error) {
	file, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	rc, size, err := s.blobs.Open(ctx, file.BlobID)
	if err != nil {
		if httpStatusFromError(err) == http.StatusNotFound {
			loggerFromContext(ctx, s.logger).Warn("file content missing", "file_id", file.ID, "blob_id", file.BlobID)
			return nil, notFoundCode(fmt.Errorf("file content not found"), ErrCodeFileNotFound)
		}
		return nil, err
	}
	return &AssetContent{
		Reader:    rc,
		SizeBytes: size,
		MediaType: firstNonEmpty(file.MimeType, fallbackContentMediaType),
		Filename:  firstNonEmpty(file.OriginalName, file.Name, file.ID),
		ETag:      `"` + file.SHA256 + `"`,
	}, nil
}

// Rename changes the display name of a file.
func (s *FileService) Rename(ctx context.Context, id, name string) (models.File, error) {
	var zero models.File
	if _, err := s.Get(ctx, id); err != nil {
		return zero, err
	}
	name, err := normalizeDisplayName("name", name, models.FileNameMaxLength)
	if err != nil {
		return zero, err
	}
	if name == "" {
		return zero, fieldError("name", "name is required", ErrCodeMissingRequired)
	}

	updated, err := s.assets.UpdateFileName(ctx, id, name, time.Now().UTC())
	if err != nil {
		return zero, storeFailure(err)
	}
	if updated == nil {
		return zero, notFoundCode(fmt.Errorf("file not found"), ErrCodeFileNotFound)
	}
	return *updated, nil
}

// Delete removes a file and releases its content when nothing else uses it.
func (s *FileService) Delete(ctx context.Context, id string) error {
	file, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	deleted, err := s.assets.DeleteFile(ctx, file.ID)
	if err != nil {
		return storeFailure(err)
	}
	if !deleted {
		return notFoundCode(fmt.Errorf("file not found"), ErrCodeFileNotFound)
	}
	s.blobs.Release(ctx, []string{file.BlobID})
	loggerFromContext(ctx, s.logger).Info("file deleted", "file_id", file.ID)
	return nil
}

// Record converts a file to its wire shape. Timestamps are included when
// withTimes is set.
func (s *FileService) Record(file models.File, withTimes bool) api.FileResponse {
	resp := api.FileResponse{
		ID:            file.ID,
		Name:          file.Name,
		URL:           s.urls.FileURL(file.ID),
		Size:          file.SizeBytes,
		MimeType:      file.MimeType,
		FormattedSize: format.Size(file.SizeBytes),
	}
	if withTimes {
		created, updated := file.CreatedAt, file.UpdatedAt
		resp.CreatedAt = &created
		resp.UpdatedAt = &updated
	}
	return resp
}

func requireFileID(id string) error {
	if !validateFileID(strings.TrimSpace(id)) {
		return badRequestCode(fmt.Errorf("invalid file id"), ErrCodeInvalidID)
	}
	return nil
}

