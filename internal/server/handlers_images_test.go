package server

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"moodboard/internal/api"
	"moodboard/internal/store"
)

func TestUploadImageDerivesDimensions(t *testing.T) {
	srv := newTestServer(t)
	content := pngBytes(t, 4, 3, 30)

	uploaded := uploadTestImage(t, srv, "tile.png", content)
	if uploaded.Width != 4 || uploaded.Height != 3 {
		t.Fatalf("expected 4x3, got %dx%d", uploaded.Width, uploaded.Height)
	}
	if uploaded.Size != int64(len(content)) {
		t.Fatalf("expected size %d, got %d", len(content), uploaded.Size)
	}
	if uploaded.Name != "tile.png" {
		t.Fatalf("expected name from filename, got %q", uploaded.Name)
	}
	if uploaded.URL != testPublicURL+"/images/"+uploaded.ID+"/file" {
		t.Fatalf("unexpected url %q", uploaded.URL)
	}
	if !strings.HasPrefix(uploaded.ID, "img-") || !validateImageID(uploaded.ID) {
		t.Fatalf("unexpected image id %q", uploaded.ID)
	}
}

func TestUploadImageExplicitDimensionsAndName(t *testing.T) {
	srv := newTestServer(t)

	w := httptest.NewRecorder()
	srv.routes().ServeHTTP(w, multipartRequest(t, "/images/upload", "image", "tile.png", pngBytes(t, 4, 3, 31), map[string]string{
		"name":   "  Hero  ",
		"width":  "640",
		"height": "480",
	}))
	expectStatus(t, w, http.StatusOK)

	var uploaded api.ImageUploadResponse
	decodeEnvelope(t, w, &uploaded)
	if uploaded.Width != 640 || uploaded.Height != 480 {
		t.Fatalf("expected 640x480, got %dx%d", uploaded.Width, uploaded.Height)
	}
	if uploaded.Name != "Hero" {
		t.Fatalf("expected trimmed name Hero, got %q", uploaded.Name)
	}
}

func TestUploadImageDeduplicates(t *testing.T) {
	srv := newTestServer(t)
	content := pngBytes(t, 2, 2, 40)

	first := uploadTestImage(t, srv, "a.png", content)
	if first.Deduplicated {
		t.Fatal("expected first upload to store content")
	}

	w := httptest.NewRecorder()
	srv.routes().ServeHTTP(w, multipartRequest(t, "/images/upload", "image", "b.png", content, nil))
	expectStatus(t, w, http.StatusOK)
	var second api.ImageUploadResponse
	env := decodeEnvelope(t, w, &second)
	if second.ID != first.ID {
		t.Fatalf("expected same id %q, got %q", first.ID, second.ID)
	}
	if !second.Deduplicated {
		t.Fatal("expected deduplicated flag")
	}
	if env.Message != "Image already exists" {
		t.Fatalf("unexpected message %q", env.Message)
	}

	info, err := srv.store.StoreInfo(t.Context())
	if err != nil {
		t.Fatalf("store info: %v", err)
	}
	if info.Images != 1 || info.Blobs != 1 {
		t.Fatalf("expected 1 image and 1 blob, got %+v", info)
	}
}

func TestUploadImageValidation(t *testing.T) {
	srv := newTestServerWithOptions(t, Options{Uploads: UploadLimits{MaxImageBytes: 64}})

	tests := []struct {
		name     string
		field    string
		filename string
		content  []byte
		values   map[string]string
		errField string
		errCode  int
	}{
		{"missing image", "", "", nil, nil, "image", ErrCodeMissingRequired},
		{"empty image", "image", "a.png", []byte{}, nil, "image", ErrCodeMissingRequired},
		{"not an image", "image", "notes.txt", []byte("plain text content"), nil, "image", ErrCodeInvalidImage},
		{"too large", "image", "big.png", bytes.Repeat([]byte{0x89}, 200), nil, "image", ErrCodeUploadTooLarge},
		{"bad width", "image", "a.png", []byte("x"), map[string]string{"width": "wide"}, "width", ErrCodeValidation},
		{"zero height", "image", "a.png", []byte("x"), map[string]string{"height": "0"}, "height", ErrCodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			srv.routes().ServeHTTP(w, multipartRequest(t, "/images/upload", tt.field, tt.filename, tt.content, tt.values))
			expectStatus(t, w, http.StatusUnprocessableEntity)
			env := decodeEnvelope(t, w, nil)
			if len(env.Errors[tt.errField]) == 0 {
				t.Fatalf("expected error for %s, got %#v", tt.errField, env.Errors)
			}
			if env.ErrorCode != tt.errCode {
				t.Fatalf("expected error_code %d, got %d", tt.errCode, env.ErrorCode)
			}
		})
	}
}

func TestUploadImageOverSizeLimit(t *testing.T) {
	srv := newTestServerWithOptions(t, Options{Uploads: UploadLimits{MaxImageBytes: 64}})
	content := append(pngBytes(t, 8, 8, 90), make([]byte, 128)...)

	w := httptest.NewRecorder()
	srv.routes().ServeHTTP(w, multipartRequest(t, "/images/upload", "image", "big.png", content, nil))
	expectStatus(t, w, http.StatusUnprocessableEntity)
	env := decodeEnvelope(t, w, nil)
	if env.ErrorCode != ErrCodeUploadTooLarge {
		t.Fatalf("expected error_code %d, got %d", ErrCodeUploadTooLarge, env.ErrorCode)
	}
	if len(env.Errors["image"]) != 1 || env.Errors["image"][0] != "image must not exceed 64 B" {
		t.Fatalf("expected size limit message, got %#v", env.Errors)
	}

	info, err := srv.store.StoreInfo(t.Context())
	if err != nil {
		t.Fatalf("store info: %v", err)
	}
	if info.Images != 0 || info.Blobs != 0 {
		t.Fatalf("expected nothing stored, got %+v", info)
	}
}

func TestUploadSVGImage(t *testing.T) {
	srv := newTestServer(t)
	svg := []byte(`<?xml version="1.0"?><svg xmlns="http://www.w3.org/2000/svg" width="10" height="10"></svg>`)

	uploaded := uploadTestImage(t, srv, "logo.svg", svg)
	if uploaded.Width != 100 || uploaded.Height != 100 {
		t.Fatalf("expected default dimensions for svg, got %dx%d", uploaded.Width, uploaded.Height)
	}

	w := serveJSON(t, srv, http.MethodGet, "/images/"+uploaded.ID+"/file", nil)
	expectStatus(t, w, http.StatusOK)
	if got := w.Header().Get("Content-Type"); got != svgMediaType {
		t.Fatalf("expected svg content type, got %q", got)
	}
	if w.Header().Get("Content-Security-Policy") == "" {
		t.Fatal("expected content security policy for svg")
	}
}

func TestGetImageFileAndConditionalRequest(t *testing.T) {
	srv := newTestServer(t)
	content := pngBytes(t, 3, 3, 60)
	uploaded := uploadTestImage(t, srv, "c.png", content)

	w := serveJSON(t, srv, http.MethodGet, "/images/"+uploaded.ID+"/file", nil)
	expectStatus(t, w, http.StatusOK)
	if !bytes.Equal(w.Body.Bytes(), content) {
		t.Fatal("expected served bytes to match upload")
	}
	if got := w.Header().Get("Content-Type"); got != "image/png" {
		t.Fatalf("expected image/png, got %q", got)
	}
	if got := w.Header().Get("Cache-Control"); got != "public, max-age=31536000" {
		t.Fatalf("unexpected cache-control %q", got)
	}
	etag := w.Header().Get("ETag")
	if etag == "" {
		t.Fatal("expected etag")
	}

	req := httptest.NewRequest(http.MethodGet, "/images/"+uploaded.ID+"/file", nil)
	req.Header.Set("If-None-Match", etag)
	w = httptest.NewRecorder()
	srv.routes().ServeHTTP(w, req)
	expectStatus(t, w, http.StatusNotModified)
	if w.Body.Len() != 0 {
		t.Fatal("expected empty body on 304")
	}

	req = httptest.NewRequest(http.MethodGet, "/images/"+uploaded.ID+"/file", nil)
	req.Header.Set("If-None-Match", `"other"`)
	w = httptest.NewRecorder()
	srv.routes().ServeHTTP(w, req)
	expectStatus(t, w, http.StatusOK)
}

func TestGetImageErrors(t *testing.T) {
	srv := newTestServer(t)

	w := serveJSON(t, srv, http.MethodGet, "/images/not-an-id", nil)
	expectStatus(t, w, http.StatusBadRequest)

	w = serveJSON(t, srv, http.MethodGet, "/images/img-00000000000000000000000000", nil)
	expectStatus(t, w, http.StatusNotFound)
	env := decodeEnvelope(t, w, nil)
	if env.ErrorCode != ErrCodeImageNotFound {
		t.Fatalf("expected error_code %d, got %d", ErrCodeImageNotFound, env.ErrorCode)
	}

	w = serveJSON(t, srv, http.MethodGet, "/images/img-00000000000000000000000000/file", nil)
	expectStatus(t, w, http.StatusNotFound)
}

func TestListImagesPagination(t *testing.T) {
	srv := newTestServer(t)
	for i := 0; i < 5; i++ {
		name := "photo.png"
		if i == 0 {
			name = "sunset.png"
		}
		uploadTestImage(t, srv, name, pngBytes(t, 2, 2, uint8(70+i)))
	}

	w := serveJSON(t, srv, http.MethodGet, "/images?per_page=2&page=2", nil)
	expectStatus(t, w, http.StatusOK)
	var images []api.ImageResponse
	env := decodeEnvelope(t, w, &images)
	if len(images) != 2 {
		t.Fatalf("expected 2 images on page 2, got %d", len(images))
	}
	if env.Pagination == nil {
		t.Fatal("expected pagination")
	}
	if env.Pagination.Total != 5 || env.Pagination.LastPage != 3 || env.Pagination.CurrentPage != 2 || env.Pagination.PerPage != 2 {
		t.Fatalf("unexpected pagination %+v", *env.Pagination)
	}

	w = serveJSON(t, srv, http.MethodGet, "/images?search=sunset", nil)
	expectStatus(t, w, http.StatusOK)
	images = nil
	env = decodeEnvelope(t, w, &images)
	if len(images) != 1 || images[0].Name != "sunset.png" {
		t.Fatalf("expected only sunset.png, got %+v", images)
	}
	if env.Pagination.PerPage != defaultImagesPerPage {
		t.Fatalf("expected default per_page %d, got %d", defaultImagesPerPage, env.Pagination.PerPage)
	}

	w = serveJSON(t, srv, http.MethodGet, "/images?page=abc", nil)
	expectStatus(t, w, http.StatusBadRequest)
}

// An image referenced by a board survives a plain delete, goes with force,
// and the board then loads with the reference left unresolved.
func TestDeleteReferencedImage(t *testing.T) {
	srv := newTestServer(t)
	img := uploadTestImage(t, srv, "img1.png", pngBytes(t, 2, 2, 80))
	saveTestBoard(t, srv, "b1", map[string]any{"objects": []any{imageObject("o1", img.ID)}})

	w := serveJSON(t, srv, http.MethodGet, "/moodboard/load/b1", nil)
	var board api.BoardResponse
	decodeEnvelope(t, w, &board)
	if src, ok := board.Objects[0].PropertySrc(); !ok || src == "" {
		t.Fatal("expected src while image exists")
	}

	w = serveJSON(t, srv, http.MethodDelete, "/images/"+img.ID, nil)
	expectStatus(t, w, http.StatusConflict)
	env := decodeEnvelope(t, w, nil)
	if env.ErrorCode != ErrCodeImageInUse {
		t.Fatalf("expected error_code %d, got %d", ErrCodeImageInUse, env.ErrorCode)
	}
	if !strings.Contains(env.Message, "b1") {
		t.Fatalf("expected conflict message to name board b1, got %q", env.Message)
	}

	w = serveJSON(t, srv, http.MethodDelete, "/images/"+img.ID+"?force=true", nil)
	expectStatus(t, w, http.StatusOK)
	var deleted api.DeleteResponse
	decodeEnvelope(t, w, &deleted)
	if deleted.ID != img.ID {
		t.Fatalf("expected deleted id %q, got %q", img.ID, deleted.ID)
	}

	w = serveJSON(t, srv, http.MethodGet, "/moodboard/load/b1", nil)
	expectStatus(t, w, http.StatusOK)
	board = api.BoardResponse{}
	decodeEnvelope(t, w, &board)
	if len(board.Objects) != 1 {
		t.Fatalf("expected object to remain, got %d", len(board.Objects))
	}
	if _, ok := board.Objects[0].PropertySrc(); ok {
		t.Fatal("expected no src after image removal")
	}
	if board.Objects[0].ImageRef() != img.ID {
		t.Fatal("expected imageId to be kept on the object")
	}

	info, err := srv.store.StoreInfo(t.Context())
	if err != nil {
		t.Fatalf("store info: %v", err)
	}
	if info.Images != 0 || info.Blobs != 0 {
		t.Fatalf("expected image and blob to be gone, got %+v", info)
	}
}

func TestDeleteUnreferencedImage(t *testing.T) {
	srv := newTestServer(t)
	img := uploadTestImage(t, srv, "loose.png", pngBytes(t, 2, 2, 81))

	w := serveJSON(t, srv, http.MethodDelete, "/images/"+img.ID, nil)
	expectStatus(t, w, http.StatusOK)

	w = serveJSON(t, srv, http.MethodDelete, "/images/"+img.ID, nil)
	expectStatus(t, w, http.StatusNotFound)
}

// recordingForgetter records each cache invalidation together with how many
// of the invalidated images still had rows at that moment.
type recordingForgetter struct {
	store store.ServiceStore
	calls []forgetCall
}

type forgetCall struct {
	ids     []string
	present int
}

func (f *recordingForgetter) Forget(ctx context.Context, ids ...string) error {
	images, err := f.store.GetImages(ctx, ids)
	if err != nil {
		return err
	}
	f.calls = append(f.calls, forgetCall{ids: slices.Clone(ids), present: len(images)})
	return nil
}

func TestDeleteImageInvalidatesCacheAroundDelete(t *testing.T) {
	srv := newTestServer(t)
	forgetter := &recordingForgetter{store: srv.store}
	srv.imageService.forgetter = forgetter

	single := uploadTestImage(t, srv, "single.png", pngBytes(t, 2, 2, 11))
	bulk := uploadTestImage(t, srv, "bulk.png", pngBytes(t, 2, 2, 12))

	w := serveJSON(t, srv, http.MethodDelete, "/images/"+single.ID, nil)
	expectStatus(t, w, http.StatusOK)
	w = serveJSON(t, srv, http.MethodPost, "/images/bulk-delete", api.BulkDeleteRequest{IDs: []string{bulk.ID}})
	expectStatus(t, w, http.StatusOK)

	want := []forgetCall{
		{ids: []string{single.ID}, present: 1},
		{ids: []string{single.ID}, present: 0},
		{ids: []string{bulk.ID}, present: 1},
		{ids: []string{bulk.ID}, present: 0},
	}
	if len(forgetter.calls) != len(want) {
		t.Fatalf("expected %d invalidations, got %+v", len(want), forgetter.calls)
	}
	for i, call := range forgetter.calls {
		if !slices.Equal(call.ids, want[i].ids) || call.present != want[i].present {
			t.Fatalf("invalidation %d: expected %+v, got %+v", i, want[i], call)
		}
	}
}

func TestBulkDeleteImages(t *testing.T) {
	srv := newTestServer(t)
	used := uploadTestImage(t, srv, "used.png", pngBytes(t, 2, 2, 90))
	free1 := uploadTestImage(t, srv, "free1.png", pngBytes(t, 2, 2, 91))
	free2 := uploadTestImage(t, srv, "free2.png", pngBytes(t, 2, 2, 92))
	saveTestBoard(t, srv, "b1", map[string]any{"objects": []any{imageObject("o1", used.ID)}})

	w := serveJSON(t, srv, http.MethodPost, "/images/bulk-delete", api.BulkDeleteRequest{
		IDs: []string{used.ID, free1.ID, free2.ID, free1.ID},
	})
	expectStatus(t, w, http.StatusOK)
	var result api.BulkDeleteResponse
	decodeEnvelope(t, w, &result)
	if result.DeletedCount != 2 {
		t.Fatalf("expected 2 deleted, got %d", result.DeletedCount)
	}
	if result.ProtectedCount != 1 || len(result.ProtectedIDs) != 1 || result.ProtectedIDs[0] != used.ID {
		t.Fatalf("expected %s protected, got %+v", used.ID, result)
	}

	w = serveJSON(t, srv, http.MethodGet, "/images/"+used.ID, nil)
	expectStatus(t, w, http.StatusOK)
}

func TestBulkDeleteImagesValidation(t *testing.T) {
	srv := newTestServer(t)
	img := uploadTestImage(t, srv, "x.png", pngBytes(t, 2, 2, 93))

	w := serveJSON(t, srv, http.MethodPost, "/images/bulk-delete", api.BulkDeleteRequest{})
	expectStatus(t, w, http.StatusUnprocessableEntity)

	w = serveJSON(t, srv, http.MethodPost, "/images/bulk-delete", api.BulkDeleteRequest{
		IDs: []string{img.ID, "img-00000000000000000000000000", "bogus"},
	})
	expectStatus(t, w, http.StatusUnprocessableEntity)
	env := decodeEnvelope(t, w, nil)
	if len(env.Errors["ids.2"]) == 0 {
		t.Fatalf("expected error for malformed id, got %#v", env.Errors)
	}

	w = serveJSON(t, srv, http.MethodPost, "/images/bulk-delete", api.BulkDeleteRequest{
		IDs: []string{img.ID, "img-00000000000000000000000000"},
	})
	expectStatus(t, w, http.StatusUnprocessableEntity)
	env = decodeEnvelope(t, w, nil)
	if len(env.Errors["ids.1"]) == 0 {
		t.Fatalf("expected error for unknown id, got %#v", env.Errors)
	}

	w = serveJSON(t, srv, http.MethodGet, "/images/"+img.ID, nil)
	expectStatus(t, w, http.StatusOK)
}

func TestCleanupImagesDeletesExactlyUnreferenced(t *testing.T) {
	srv := newTestServer(t)
	kept1 := uploadTestImage(t, srv, "k1.png", pngBytes(t, 2, 2, 100))
	kept2 := uploadTestImage(t, srv, "k2.png", pngBytes(t, 2, 2, 101))
	orphan1 := uploadTestImage(t, srv, "o1.png", pngBytes(t, 2, 2, 102))
	orphan2 := uploadTestImage(t, srv, "o2.png", pngBytes(t, 2, 2, 103))

	saveTestBoard(t, srv, "b1", map[string]any{"objects": []any{imageObject("o1", kept1.ID)}})
	saveTestBoard(t, srv, "b2", map[string]any{"objects": []any{imageObject("o1", kept2.ID), imageObject("o2", kept1.ID)}})

	w := serveJSON(t, srv, http.MethodPost, "/images/cleanup?dry_run=true", nil)
	expectStatus(t, w, http.StatusOK)
	var dry api.CleanupResponse
	decodeEnvelope(t, w, &dry)
	if !dry.DryRun || dry.DeletedCount != 0 {
		t.Fatalf("expected dry run without deletes, got %+v", dry)
	}
	candidates := slices.Clone(dry.CandidateIDs)
	slices.Sort(candidates)
	want := []string{orphan1.ID, orphan2.ID}
	slices.Sort(want)
	if !slices.Equal(candidates, want) {
		t.Fatalf("expected candidates %v, got %v", want, candidates)
	}

	w = serveJSON(t, srv, http.MethodPost, "/images/cleanup", nil)
	expectStatus(t, w, http.StatusOK)
	var applied api.CleanupResponse
	decodeEnvelope(t, w, &applied)
	if applied.DeletedCount != 2 {
		t.Fatalf("expected 2 deleted, got %d", applied.DeletedCount)
	}

	for _, id := range []string{kept1.ID, kept2.ID} {
		w = serveJSON(t, srv, http.MethodGet, "/images/"+id, nil)
		expectStatus(t, w, http.StatusOK)
	}
	for _, id := range []string{orphan1.ID, orphan2.ID} {
		w = serveJSON(t, srv, http.MethodGet, "/images/"+id, nil)
		expectStatus(t, w, http.StatusNotFound)
	}
}

func TestCleanupImagesHonorsGracePeriod(t *testing.T) {
	srv := newTestServerWithOptions(t, Options{Images: ImagePolicy{CleanupGracePeriod: time.Hour}})
	uploadTestImage(t, srv, "recent.png", pngBytes(t, 2, 2, 110))

	result, err := srv.imageService.Cleanup(t.Context(), false)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if result.DeletedCount != 0 || len(result.CandidateIDs) != 0 {
		t.Fatalf("expected recent upload to be spared, got %+v", result)
	}

	srv.imageService.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	result, err = srv.imageService.Cleanup(t.Context(), false)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if result.DeletedCount != 1 {
		t.Fatalf("expected upload past the grace period to be deleted, got %+v", result)
	}
}

func TestEtagMatches(t *testing.T) {
	tests := []struct {
		header string
		want   bool
	}{
		{"", false},
		{"*", true},
		{`"abc"`, true},
		{`W/"abc"`, true},
		{`"x", "abc"`, true},
		{`"x"`, false},
	}
	for _, tt := range tests {
		if got := etagMatches(tt.header, `"abc"`); got != tt.want {
			t.Fatalf("etagMatches(%q) = %v, want %v", tt.header, got, tt.want)
		}
	}
}

func TestImageContentStreamsFromBlobService(t *testing.T) {
	srv := newTestServer(t)
	content := pngBytes(t, 2, 2, 120)
	uploaded := uploadTestImage(t, srv, "s.png", content)

	asset, err := srv.imageService.OpenContent(t.Context(), uploaded.ID)
	if err != nil {
		t.Fatalf("open content: %v", err)
	}
	defer asset.Reader.Close()
	got, err := io.ReadAll(asset.Reader)
	if err != nil {
		t.Fatalf("read content: %v", err)
	}
	if !bytes.Equal(got, content) || asset.SizeBytes != int64(len(content)) {
		t.Fatal("expected stored content to round-trip")
	}
}
