package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"moodboard/internal/blobstore"
	"moodboard/internal/config"
	"moodboard/internal/models"
	"moodboard/internal/store"
)

// BlobService owns stored content shared by images and files: opening it,
// releasing it once unreferenced, and sweeping leftovers.
type BlobService struct {
	assets      store.AssetStore
	blobStore   blobstore.BlobStore
	logger      *slog.Logger
	gcBatchSize int
}

// BlobGCResult reports one GC run result.
type BlobGCResult struct {
	CandidateCount int
	DeletedCount   int
	FailedCount    int
	ReclaimedBytes int64
	DryRun         bool
}

// NewBlobService constructs a BlobService.
func NewBlobService(assets store.AssetStore, blobs blobstore.BlobStore, logger *slog.Logger, gcBatchSize int) *BlobService {
	if gcBatchSize <= 0 {
		gcBatchSize = config.DefaultImageGCBatchSize
	}
	return &BlobService{assets: assets, blobStore: blobs, logger: logger, gcBatchSize: gcBatchSize}
}

// Backend names the storage backend new blobs are written to.
func (s *BlobService) Backend() string {
	if s == nil || s.blobStore == nil {
		return ""
	}
	return s.blobStore.Backend()
}

// Put stores content and returns its digest, size and key.
func (s *BlobService) Put(ctx context.Context, content io.Reader) (blobstore.BlobPutResult, error) {
	if s == nil || s.blobStore == nil {
		return blobstore.BlobPutResult{}, internalError(fmt.Errorf("blob storage is not configured"))
	}
	result, err := s.blobStore.Put(ctx, content)
	if err != nil {
		return result, storageFailure(fmt.Errorf("store content: %w", err))
	}
	return result, nil
}

// Open returns the content of a blob row and its size.
func (s *BlobService) Open(ctx context.Context, blobID string) (io.ReadCloser, int64, error) {
	if s == nil || s.assets == nil || s.blobStore == nil {
		return nil, 0, internalError(fmt.Errorf("blob storage is not configured"))
	}
	blob, err := s.assets.GetBlob(ctx, blobID)
	if err != nil {
		return nil, 0, storeFailure(err)
	}
	if blob == nil {
		return nil, 0, notFoundCode(fmt.Errorf("blob not found"), ErrCodeBlobNotFound)
	}
	rc, err := s.blobStore.Open(ctx, blob.BlobKey)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, 0, notFoundCode(fmt.Errorf("blob content not found"), ErrCodeBlobNotFound)
		}
		return nil, 0, storageFailure(err)
	}
	return rc, blob.SizeBytes, nil
}

// Release deletes the given blobs when no image or file references them.
// Failures are logged; leftovers are picked up by GC.
func (s *BlobService) Release(ctx context.Context, blobIDs []string) {
	if s == nil || s.assets == nil || s.blobStore == nil {
		return
	}
	logger := loggerFromContext(ctx, s.logger)
	seen := map[string]struct{}{}
	for _, id := range blobIDs {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}

		blob, err := s.assets.GetBlob(ctx, id)
		if err != nil {
			logger.Warn("blob lookup failed", "blob_id", id, "error", err)
			continue
		}
		if blob == nil {
			continue
		}
		if _, err := s.release(ctx, *blob); err != nil {
			logger.Warn("blob release failed", "blob_id", id, "error", err)
		}
	}
}

// GC sweeps unreferenced blobs and optionally deletes them.
func (s *BlobService) GC(ctx context.Context, batchSize int, apply bool) (BlobGCResult, error) {
	result := BlobGCResult{DryRun: !apply}
	if s == nil || s.assets == nil || s.blobStore == nil {
		return result, internalError(fmt.Errorf("blob storage is not configured"))
	}
	if batchSize <= 0 {
		batchSize = s.gcBatchSize
	}

	if !apply {
		blobs, err := s.assets.ListUnreferencedBlobs(ctx, 0)
		if err != nil {
			return result, storeFailure(err)
		}
		result.CandidateCount = len(blobs)
		for _, blob := range blobs {
			result.ReclaimedBytes += blob.SizeBytes
		}
		return result, nil
	}

	failed := map[string]struct{}{}
	for {
		blobs, err := s.assets.ListUnreferencedBlobs(ctx, batchSize+len(failed))
		if err != nil {
			return result, storeFailure(err)
		}
		progressed := false
		for _, blob := range blobs {
			if _, ok := failed[blob.ID]; ok {
				continue
			}
			result.CandidateCount++
			deleted, err := s.release(ctx, blob)
			if deleted || err == nil {
				progressed = true
			}
			if err != nil {
				loggerFromContext(ctx, s.logger).Warn("blob gc failed", "blob_id", blob.ID, "error", err)
				failed[blob.ID] = struct{}{}
				result.FailedCount++
				continue
			}
			if deleted {
				result.DeletedCount++
				result.ReclaimedBytes += blob.SizeBytes
			}
		}
		if !progressed {
			return result, nil
		}
	}
}

// release removes the blob row if it is still unreferenced, then its
// content. It reports false when a reference appeared in the meantime.
func (s *BlobService) release(ctx context.Context, blob models.Blob) (bool, error) {
	deleted, err := s.assets.DeleteBlobIfUnreferenced(ctx, blob.ID)
	if err != nil {
		return false, err
	}
	if !deleted {
		return false, nil
	}
	if err := s.blobStore.Delete(ctx, blob.BlobKey); err != nil {
		return true, fmt.Errorf("delete blob content %s: %w", blob.BlobKey, err)
	}
	return true, nil
}
