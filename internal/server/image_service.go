package server

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"moodboard/internal/api"
	"moodboard/internal/canvas"
	"moodboard/internal/config"
	"moodboard/internal/format"
	"moodboard/internal/models"
	"moodboard/internal/store"
)

const (
	defaultImagesPerPage = 15
	maxImagesPerPage     = 100
	svgMediaType         = "image/svg+xml"
)

// ImagePolicy tunes image cleanup and blob GC.
type ImagePolicy struct {
	CleanupGracePeriod time.Duration
	GCBatchSize        int
}

type imageForgetter interface {
	Forget(ctx context.Context, ids ...string) error
}

// ImageService orchestrates image uploads, reference checks and cleanup.
type ImageService struct {
	store     store.ServiceStore
	blobs     *BlobService
	urls      canvas.URLBuilder
	logger    *slog.Logger
	forgetter imageForgetter

	maxBytes    int64
	gracePeriod time.Duration
	now         func() time.Time
}

// UploadImageInput carries the form values sent with an image. Width and
// Height are raw form values; empty means derive from the content.
type UploadImageInput struct {
	Filename string
	Name     string
	Width    string
	Height   string
}

// UploadImageResult is a stored or deduplicated image.
type UploadImageResult struct {
	Image        models.Image
	Deduplicated bool
}

// ListImagesInput selects one page of images.
type ListImagesInput struct {
	Search  string
	Page    int
	PerPage int
}

// CleanupResult reports one unreferenced-image cleanup run.
type CleanupResult struct {
	DeletedCount int
	CandidateIDs []string
	DryRun       bool
}

// BulkDeleteResult reports which images a bulk delete removed.
type BulkDeleteResult struct {
	DeletedCount int
	ProtectedIDs []string
}

// NewImageService constructs an ImageService.
func NewImageService(st store.ServiceStore, blobs *BlobService, urls canvas.URLBuilder, logger *slog.Logger) *ImageService {
	svc := &ImageService{store: st, blobs: blobs, urls: urls, logger: logger, now: time.Now}
	svc.ConfigurePolicy(config.DefaultMaxImageBytes, ImagePolicy{})
	return svc
}

// ConfigurePolicy overrides the upload limit and cleanup grace period.
func (s *ImageService) ConfigurePolicy(maxBytes int64, policy ImagePolicy) {
	if s == nil {
		return
	}
	if maxBytes <= 0 {
		maxBytes = config.DefaultMaxImageBytes
	}
	s.maxBytes = maxBytes
	s.gracePeriod = policy.CleanupGracePeriod
	if s.gracePeriod < 0 {
		s.gracePeriod = 0
	}
}

// Upload stores an image unless identical bytes were uploaded before, in
// which case the existing image is returned and nothing is written.
func (s *ImageService) Upload(ctx context.Context, in UploadImageInput, content io.ReadSeeker) (UploadImageResult, error) {
	var zero UploadImageResult
	if s == nil || s.store == nil || s.blobs == nil {
		return zero, internalError(fmt.Errorf("image service is not configured"))
	}
	if content == nil {
		return zero, fieldError("image", "image is required", ErrCodeMissingRequired)
	}

	fields := map[string][]string{}
	width, err := parseDimension(in.Width)
	if err != nil {
		fields["width"] = []string{err.Error()}
	}
	height, err := parseDimension(in.Height)
	if err != nil {
		fields["height"] = []string{err.Error()}
	}
	name, err := normalizeDisplayName("name", in.Name, models.ImageNameMaxLength)
	if err != nil {
		fields["name"] = errorFields(err)["name"]
	}
	if len(fields) > 0 {
		return zero, validationError(fields)
	}

	inspected, err := inspectUpload(content)
	if err != nil {
		return zero, internalError(fmt.Errorf("read upload: %w", err))
	}
	if inspected.size == 0 {
		return zero, fieldError("image", "image is required", ErrCodeMissingRequired)
	}
	if inspected.size > s.maxBytes {
		return zero, fieldError("image", "image must not exceed "+format.Size(s.maxBytes), ErrCodeUploadTooLarge)
	}
	mediaType := imageMediaType(inspected, in.Filename)
	if mediaType == "" {
		return zero, fieldError("image", "image must be a jpeg, png, gif, webp or svg file", ErrCodeInvalidImage)
	}

	existing, err := s.store.GetImageBySHA256(ctx, inspected.sha256)
	if err != nil {
		return zero, storeFailure(err)
	}
	if existing != nil {
		loggerFromContext(ctx, s.logger).Info("image upload deduplicated", "image_id", existing.ID, "sha256", inspected.sha256)
		return UploadImageResult{Image: *existing, Deduplicated: true}, nil
	}

	if width == 0 || height == 0 {
		decodedWidth, decodedHeight := decodeDimensions(content)
		if width == 0 {
			width = decodedWidth
		}
		if height == 0 {
			height = decodedHeight
		}
	}
	if _, err := content.Seek(0, io.SeekStart); err != nil {
		return zero, internalError(err)
	}

	putResult, err := s.blobs.Put(ctx, content)
	if err != nil {
		return zero, err
	}

	ext := fileExtension(in.Filename)
	if ext == "" {
		ext = extensionForMediaType(mediaType)
	}
	originalName := strings.TrimSpace(in.Filename)
	img := &models.Image{
		Name:         firstNonEmpty(name, originalName, "image"),
		OriginalName: originalName,
		StoredName:   withExtension(putResult.SHA256, ext),
		MimeType:     mediaType,
		SizeBytes:    putResult.SizeBytes,
		Width:        width,
		Height:       height,
	}
	stored, deduplicated, err := s.store.CreateImageWithBlob(ctx, &models.Blob{
		SHA256:         putResult.SHA256,
		SizeBytes:      putResult.SizeBytes,
		StorageBackend: s.blobs.Backend(),
		BlobKey:        putResult.BlobKey,
	}, img)
	if err != nil {
		return zero, storeFailure(err)
	}
	if stored == nil {
		return zero, internalError(fmt.Errorf("image not found after create"))
	}

	loggerFromContext(ctx, s.logger).Info("image uploaded", "image_id", stored.ID, "size", stored.SizeBytes, "deduplicated", deduplicated)
	return UploadImageResult{Image: *stored, Deduplicated: deduplicated}, nil
}

// Get returns one image.
func (s *ImageService) Get(ctx context.Context, id string) (models.Image, error) {
	var zero models.Image
	if s == nil || s.store == nil {
		return zero, internalError(fmt.Errorf("image service is not configured"))
	}
	if err := requireImageID(id); err != nil {
		return zero, err
	}
	img, err := s.store.GetImage(ctx, id)
	if err != nil {
		return zero, storeFailure(err)
	}
	if img == nil {
		return zero, notFoundCode(fmt.Errorf("image not found"), ErrCodeImageNotFound)
	}
	return *img, nil
}

// List returns one page of images, newest first.
func (s *ImageService) List(ctx context.Context, in ListImagesInput) ([]models.Image, api.Pagination, error) {
	page := api.Pagination{CurrentPage: in.Page, PerPage: in.PerPage}
	if s == nil || s.store == nil {
		return nil, page, internalError(fmt.Errorf("image service is not configured"))
	}
	if page.CurrentPage <= 0 {
		page.CurrentPage = 1
	}
	if page.PerPage <= 0 {
		page.PerPage = defaultImagesPerPage
	}
	if page.PerPage > maxImagesPerPage {
		page.PerPage = maxImagesPerPage
	}

	images, total, err := s.store.ListImages(ctx, store.ImageFilter{
		Search: strings.TrimSpace(in.Search),
		Limit:  page.PerPage,
		Offset: (page.CurrentPage - 1) * page.PerPage,
	})
	if err != nil {
		return nil, page, storeFailure(err)
	}
	page.Total = total
	page.LastPage = int(math.Max(1, math.Ceil(float64(total)/float64(page.PerPage))))
	if images == nil {
		images = []models.Image{}
	}
	return images, page, nil
}

// OpenContent opens the stored bytes of an image.
func (s *ImageService) OpenContent(ctx context.Context, id string) (*AssetContent, error) {
	img, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	rc, size, err := s.blobs.Open(ctx, img.BlobID)
	if err != nil {
		if httpStatusFromError(err) == http.StatusNotFound {
			loggerFromContext(ctx, s.logger).Warn("image content missing", "image_id", img.ID, "blob_id", img.BlobID)
			return nil, notFoundCode(fmt.Errorf("image file not found"), ErrCodeImageNotFound)
		}
		return nil, err
	}
	return &AssetContent{
		Reader:    rc,
		SizeBytes: size,
		MediaType: firstNonEmpty(img.MimeType, fallbackContentMediaType),
		Filename:  firstNonEmpty(img.OriginalName, img.Name, img.ID),
		ETag:      `"` + img.SHA256 + `"`,
	}, nil
}

// Delete removes an image. Images referenced by a board are protected
// unless force is set.
func (s *ImageService) Delete(ctx context.Context, id string, force bool) error {
	img, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	if !force {
		boards, err := s.boardsReferencing(ctx, img.ID)
		if err != nil {
			return err
		}
		if len(boards) > 0 {
			return conflictCode(fmt.Errorf("image is used by %d board(s): %s", len(boards), strings.Join(boards, ", ")), ErrCodeImageInUse)
		}
	}

	if _, err := s.deleteImages(ctx, []string{img.ID}); err != nil {
		return err
	}
	s.blobs.Release(ctx, []string{img.BlobID})
	loggerFromContext(ctx, s.logger).Info("image deleted", "image_id", img.ID, "force", force)
	return nil
}

// BulkDelete removes every listed image that no board references. The
// referenced ones are reported as protected.
func (s *ImageService) BulkDelete(ctx context.Context, ids []string) (BulkDeleteResult, error) {
	result := BulkDeleteResult{ProtectedIDs: []string{}}
	if s == nil || s.store == nil {
		return result, internalError(fmt.Errorf("image service is not configured"))
	}
	if len(ids) == 0 {
		return result, fieldError("ids", "ids is required", ErrCodeMissingRequired)
	}

	fields := map[string][]string{}
	unique := make([]string, 0, len(ids))
	seen := map[string]struct{}{}
	for i, id := range ids {
		id = strings.TrimSpace(id)
		if !validateImageID(id) {
			fields[fmt.Sprintf("ids.%d", i)] = []string{"the selected id is invalid"}
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	if len(fields) > 0 {
		return result, validationCode(fields, ErrCodeInvalidID)
	}

	existing, err := s.store.GetImages(ctx, unique)
	if err != nil {
		return result, storeFailure(err)
	}
	blobByID := make(map[string]string, len(existing))
	for _, img := range existing {
		blobByID[img.ID] = img.BlobID
	}
	for i, id := range ids {
		if _, ok := blobByID[strings.TrimSpace(id)]; !ok {
			fields[fmt.Sprintf("ids.%d", i)] = []string{"the selected id is invalid"}
		}
	}
	if len(fields) > 0 {
		return result, validationCode(fields, ErrCodeInvalidID)
	}

	referenced, err := s.referencedImageIDs(ctx)
	if err != nil {
		return result, err
	}
	deletable := make([]string, 0, len(unique))
	blobIDs := make([]string, 0, len(unique))
	for _, id := range unique {
		if _, ok := referenced[id]; ok {
			result.ProtectedIDs = append(result.ProtectedIDs, id)
			continue
		}
		deletable = append(deletable, id)
		blobIDs = append(blobIDs, blobByID[id])
	}

	if len(deletable) > 0 {
		deleted, err := s.deleteImages(ctx, deletable)
		if err != nil {
			return result, err
		}
		result.DeletedCount = deleted
		s.blobs.Release(ctx, blobIDs)
	}

	loggerFromContext(ctx, s.logger).Info("bulk image delete", "deleted", result.DeletedCount, "protected", len(result.ProtectedIDs))
	return result, nil
}

// Cleanup deletes images that no board references and that are older than
// the configured grace period. The reference scan and the delete are not
// atomic: a board saved in between can lose a newly referenced image.
func (s *ImageService) Cleanup(ctx context.Context, dryRun bool) (CleanupResult, error) {
	result := CleanupResult{CandidateIDs: []string{}, DryRun: dryRun}
	if s == nil || s.store == nil {
		return result, internalError(fmt.Errorf("image service is not configured"))
	}

	referenced, err := s.referencedImageIDs(ctx)
	if err != nil {
		return result, err
	}
	cutoff := s.now().UTC().Add(-s.gracePeriod)
	images, err := s.store.ListImagesCreatedBefore(ctx, cutoff)
	if err != nil {
		return result, storeFailure(err)
	}

	blobIDs := make([]string, 0)
	for _, img := range images {
		if _, ok := referenced[img.ID]; ok {
			continue
		}
		result.CandidateIDs = append(result.CandidateIDs, img.ID)
		blobIDs = append(blobIDs, img.BlobID)
	}
	if dryRun || len(result.CandidateIDs) == 0 {
		return result, nil
	}

	deleted, err := s.deleteImages(ctx, result.CandidateIDs)
	if err != nil {
		return result, err
	}
	result.DeletedCount = deleted
	s.blobs.Release(ctx, blobIDs)

	loggerFromContext(ctx, s.logger).Info("image cleanup", "deleted", deleted, "grace_period", s.gracePeriod.String())
	return result, nil
}

// CleanupBoardImages deletes the given images when no remaining board
// references them.
func (s *ImageService) CleanupBoardImages(ctx context.Context, ids []string) (int, error) {
	if s == nil || s.store == nil || len(ids) == 0 {
		return 0, nil
	}
	referenced, err := s.referencedImageIDs(ctx)
	if err != nil {
		return 0, err
	}
	orphaned := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := referenced[id]; !ok {
			orphaned = append(orphaned, id)
		}
	}
	if len(orphaned) == 0 {
		return 0, nil
	}
	images, err := s.store.GetImages(ctx, orphaned)
	if err != nil {
		return 0, storeFailure(err)
	}
	blobIDs := make([]string, 0, len(images))
	for _, img := range images {
		blobIDs = append(blobIDs, img.BlobID)
	}
	deleted, err := s.deleteImages(ctx, orphaned)
	if err != nil {
		return 0, err
	}
	s.blobs.Release(ctx, blobIDs)
	return deleted, nil
}

// deleteImages removes image rows and drops their cached lookups before and
// after the delete. An entry refilled in between outlives the row only when
// the second Forget fails, and then only until the cache TTL.
func (s *ImageService) deleteImages(ctx context.Context, ids []string) (int, error) {
	s.forget(ctx, ids...)
	deleted, err := s.store.DeleteImages(ctx, ids)
	if err != nil {
		return 0, storeFailure(err)
	}
	s.forget(ctx, ids...)
	return deleted, nil
}

func (s *ImageService) forget(ctx context.Context, ids ...string) {
	if s.forgetter == nil || len(ids) == 0 {
		return
	}
	if err := s.forgetter.Forget(ctx, ids...); err != nil {
		loggerFromContext(ctx, s.logger).Warn("image cache invalidation failed", "image_ids", ids, "error", err)
	}
}

// referencedImageIDs scans every board document. The cost is linear in
// boards times objects; there is no reverse index.
func (s *ImageService) referencedImageIDs(ctx context.Context) (map[string]struct{}, error) {
	docs, err := s.store.ListBoardDocuments(ctx)
	if err != nil {
		return nil, storeFailure(err)
	}
	referenced := map[string]struct{}{}
	for _, doc := range docs {
		for _, id := range canvas.ReferencedImageIDs(doc.Document) {
			referenced[id] = struct{}{}
		}
	}
	return referenced, nil
}

func (s *ImageService) boardsReferencing(ctx context.Context, imageID string) ([]string, error) {
	docs, err := s.store.ListBoardDocuments(ctx)
	if err != nil {
		return nil, storeFailure(err)
	}
	boards := make([]string, 0)
	for _, doc := range docs {
		if canvas.References(doc.Document, imageID) {
			boards = append(boards, doc.BoardID)
		}
	}
	return boards, nil
}

func requireImageID(id string) error {
	if !validateImageID(strings.TrimSpace(id)) {
		return badRequestCode(fmt.Errorf("invalid image id"), ErrCodeInvalidID)
	}
	return nil
}

func parseDimension(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("must be an integer")
	}
	if value < 1 {
		return 0, fmt.Errorf("must be at least 1")
	}
	return value, nil
}

// decodeDimensions reads the image header, falling back to the default
// dimension for formats the decoder does not know.
func decodeDimensions(content io.ReadSeeker) (int, int) {
	width, height := models.DefaultImageDimension, models.DefaultImageDimension
	if _, err := content.Seek(0, io.SeekStart); err != nil {
		return width, height
	}
	cfg, _, err := image.DecodeConfig(content)
	if err != nil {
		return width, height
	}
	if cfg.Width > 0 {
		width = cfg.Width
	}
	if cfg.Height > 0 {
		height = cfg.Height
	}
	return width, height
}

// imageMediaType returns the sniffed image media type, or "" when the
// content is not an image.
func imageMediaType(in uploadedContent, filename string) string {
	if strings.HasPrefix(in.mediaType, "image/") {
		return in.mediaType
	}
	if fileExtension(filename) == "svg" && bytes.Contains(bytes.ToLower(in.head), []byte("<svg")) {
		return svgMediaType
	}
	return ""
}

// Record converts an image to its wire shape.
func (s *ImageService) Record(img models.Image) api.ImageResponse {
	return api.ImageResponse{
		ID:           img.ID,
		Name:         img.Name,
		OriginalName: img.OriginalName,
		URL:          s.urls.ImageURL(img.ID),
		MimeType:     img.MimeType,
		Size:         img.SizeBytes,
		Width:        img.Width,
		Height:       img.Height,
		CreatedAt:    img.CreatedAt,
		UpdatedAt:    img.UpdatedAt,
	}
}
