package store

import (
	"context"
	"time"

	"moodboard/internal/models"
)

// AssetStore is the metadata persistence surface for images, files and blobs.
//
// This is intentionally separate from BoardStore; boards only reference
// images by id inside their documents.
type AssetStore interface {
	CreateImageWithBlob(ctx context.Context, blob *models.Blob, image *models.Image) (*models.Image, bool, error)
	GetImage(ctx context.Context, id string) (*models.Image, error)
	GetImageBySHA256(ctx context.Context, sha string) (*models.Image, error)
	GetImages(ctx context.Context, ids []string) ([]models.Image, error)
	ExistingImageIDs(ctx context.Context, ids []string) (map[string]bool, error)
	ListImages(ctx context.Context, filter ImageFilter) ([]models.Image, int, error)
	ListImagesCreatedBefore(ctx context.Context, cutoff time.Time) ([]models.Image, error)
	DeleteImages(ctx context.Context, ids []string) (int, error)

	CreateFileWithBlob(ctx context.Context, blob *models.Blob, file *models.File) (*models.File, bool, error)
	GetFile(ctx context.Context, id string) (*models.File, error)
	GetFileBySHA256(ctx context.Context, sha string) (*models.File, error)
	UpdateFileName(ctx context.Context, id, name string, updatedAt time.Time) (*models.File, error)
	DeleteFile(ctx context.Context, id string) (bool, error)

	GetBlob(ctx context.Context, id string) (*models.Blob, error)
	GetBlobBySHA256(ctx context.Context, sha string) (*models.Blob, error)
	ListUnreferencedBlobs(ctx context.Context, limit int) ([]models.Blob, error)
	DeleteBlobIfUnreferenced(ctx context.Context, id string) (bool, error)
}

// ImageFilter narrows ListImages. Search matches name and original name.
type ImageFilter struct {
	Search string
	Limit  int
	Offset int
}

var _ AssetStore = (*Store)(nil)
