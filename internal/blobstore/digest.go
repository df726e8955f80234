package blobstore

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
)

const casAlgorithmPrefix = "sha256"

// digestReader hashes and counts everything read through it.
type digestReader struct {
	r io.Reader
	h hash.Hash
	n int64
}

func newDigestReader(r io.Reader) *digestReader {
	return &digestReader{r: r, h: sha256.New()}
}

func (d *digestReader) Read(p []byte) (int, error) {
	n, err := d.r.Read(p)
	if n > 0 {
		d.h.Write(p[:n])
		d.n += int64(n)
	}
	return n, err
}

// result is only meaningful once the underlying reader hit EOF.
func (d *digestReader) result() BlobPutResult {
	digest := hex.EncodeToString(d.h.Sum(nil))
	return BlobPutResult{SHA256: digest, SizeBytes: d.n, BlobKey: KeyFromDigest(digest)}
}

// KeyFromDigest returns the content-addressed key for a hex SHA-256 digest.
// Both backends lay content out under the same keys.
func KeyFromDigest(digest string) string {
	return fmt.Sprintf("%s/%s/%s/%s", casAlgorithmPrefix, digest[0:2], digest[2:4], digest)
}
