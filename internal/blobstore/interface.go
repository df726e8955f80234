package blobstore

import (
	"context"
	"errors"
	"io"
)

// Backend names recorded on blob rows.
const (
	BackendLocalCAS = "local_cas"
	BackendS3       = "s3"
)

// ErrNotFound is returned by Open when no content exists for a key.
var ErrNotFound = errors.New("blob not found")

// BlobPutResult describes one persisted blob payload.
type BlobPutResult struct {
	SHA256    string
	SizeBytes int64
	BlobKey   string
}

// BlobStore is the byte-storage abstraction used by the image and file services.
// Keys are content addressed, so Put of identical bytes yields the same key.
type BlobStore interface {
	Put(ctx context.Context, r io.Reader) (BlobPutResult, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Backend() string
}
