package server

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"moodboard/internal/api"
)

const imageCacheControl = "public, max-age=31536000"

func (s *Server) handleUploadImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.uploads.MaxImageBytes+multipartOverheadAllowance)
	if err := r.ParseMultipartForm(s.uploads.MultipartMaxMemory); err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, classifyMultipartError(err))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("image")
	if err != nil {
		s.writeServiceError(w, r, fieldError("image", "image is required", ErrCodeMissingRequired))
		return
	}
	defer file.Close()

	result, err := s.imageService.Upload(r.Context(), UploadImageInput{
		Filename: header.Filename,
		Name:     r.FormValue("name"),
		Width:    r.FormValue("width"),
		Height:   r.FormValue("height"),
	}, file)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	message := "Image uploaded"
	if result.Deduplicated {
		message = "Image already exists"
	}
	img := result.Image
	s.writeData(w, http.StatusOK, message, api.ImageUploadResponse{
		ID:           img.ID,
		URL:          s.imageService.urls.ImageURL(img.ID),
		Name:         img.Name,
		Width:        img.Width,
		Height:       img.Height,
		Size:         img.SizeBytes,
		Deduplicated: result.Deduplicated,
	})
}

func (s *Server) handleListImages(w http.ResponseWriter, r *http.Request) {
	page, err := queryIntDefault(r, "page", 1)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	perPage, err := queryIntDefault(r, "per_page", defaultImagesPerPage)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	images, pagination, err := s.imageService.List(r.Context(), ListImagesInput{
		Search:  r.URL.Query().Get("search"),
		Page:    page,
		PerPage: perPage,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	resp := make([]api.ImageResponse, 0, len(images))
	for _, img := range images {
		resp = append(resp, s.imageService.Record(img))
	}
	s.writePage(w, resp, pagination)
}

func (s *Server) handleGetImage(w http.ResponseWriter, r *http.Request) {
	img, err := s.imageService.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeData(w, http.StatusOK, "", s.imageService.Record(img))
}

func (s *Server) handleGetImageFile(w http.ResponseWriter, r *http.Request) {
	img, err := s.imageService.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	etag := `"` + img.SHA256 + `"`
	if etagMatches(r.Header.Get("If-None-Match"), etag) {
		w.Header().Set("ETag", etag)
		w.Header().Set("Cache-Control", imageCacheControl)
		w.WriteHeader(http.StatusNotModified)
		return
	}

	content, err := s.imageService.OpenContent(r.Context(), img.ID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	defer content.Reader.Close()

	header := w.Header()
	header.Set("Content-Type", content.MediaType)
	header.Set("Content-Length", strconv.FormatInt(content.SizeBytes, 10))
	header.Set("Cache-Control", imageCacheControl)
	header.Set("ETag", content.ETag)
	header.Set("X-Content-Type-Options", "nosniff")
	if content.MediaType == svgMediaType {
		header.Set("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'; sandbox")
	}
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(w, content.Reader); err != nil {
		s.reqLog(r).Warn("stream image content", "image_id", img.ID, "error", err)
	}
}

func (s *Server) handleDeleteImage(w http.ResponseWriter, r *http.Request) {
	force, err := queryBool(r, "force")
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	id := r.PathValue("id")
	if err := s.imageService.Delete(r.Context(), id, force); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeData(w, http.StatusOK, "Image deleted", api.DeleteResponse{ID: id})
}

func (s *Server) handleBulkDeleteImages(w http.ResponseWriter, r *http.Request) {
	var req api.BulkDeleteRequest
	if !s.decodeJSONReq(w, r, &req) {
		return
	}

	result, err := s.imageService.BulkDelete(r.Context(), req.IDs)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.writeData(w, http.StatusOK, fmt.Sprintf("Deleted %d image(s)", result.DeletedCount), api.BulkDeleteResponse{
		DeletedCount:   result.DeletedCount,
		ProtectedCount: len(result.ProtectedIDs),
		ProtectedIDs:   result.ProtectedIDs,
	})
}

func (s *Server) handleCleanupImages(w http.ResponseWriter, r *http.Request) {
	dryRun, err := queryBool(r, "dry_run")
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	result, err := s.imageService.Cleanup(r.Context(), dryRun)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.writeData(w, http.StatusOK, fmt.Sprintf("Deleted %d unused image(s)", result.DeletedCount), api.CleanupResponse{
		DeletedCount: result.DeletedCount,
		CandidateIDs: result.CandidateIDs,
		DryRun:       result.DryRun,
	})
}

// etagMatches reports whether an If-None-Match header matches etag.
func etagMatches(header, etag string) bool {
	header = strings.TrimSpace(header)
	if header == "" {
		return false
	}
	if header == "*" {
		return true
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimPrefix(strings.TrimSpace(candidate), "W/")
		if candidate == etag {
			return true
		}
	}
	return false
}
