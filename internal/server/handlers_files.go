package server

import (
	"io"
	"mime"
	"net/http"
	"strconv"

	"moodboard/internal/api"
)

func (s *Server) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.uploads.MaxFileBytes+multipartOverheadAllowance)
	if err := r.ParseMultipartForm(s.uploads.MultipartMaxMemory); err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, classifyMultipartError(err))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeServiceError(w, r, fieldError("file", "file is required", ErrCodeMissingRequired))
		return
	}
	defer file.Close()

	result, err := s.fileService.Upload(r.Context(), UploadFileInput{
		Filename: header.Filename,
		Name:     r.FormValue("name"),
	}, file)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	message := "File uploaded"
	if result.Deduplicated {
		message = "File already exists"
	}
	record := s.fileService.Record(result.File, false)
	record.Deduplicated = result.Deduplicated
	s.writeData(w, http.StatusOK, message, record)
}

func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	file, err := s.fileService.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeData(w, http.StatusOK, "", s.fileService.Record(file, true))
}

func (s *Server) handleDownloadFile(w http.ResponseWriter, r *http.Request) {
	content, err := s.fileService.OpenContent(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	defer content.Reader.Close()

	header := w.Header()
	header.Set("Content-Type", content.MediaType)
	header.Set("Content-Length", strconv.FormatInt(content.SizeBytes, 10))
	header.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": content.Filename}))
	header.Set("ETag", content.ETag)
	header.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, content.Reader); err != nil {
		s.reqLog(r).Warn("stream file content", "path", r.URL.Path, "error", err)
	}
}

func (s *Server) handleRenameFile(w http.ResponseWriter, r *http.Request) {
	var req api.RenameFileRequest
	if !s.decodeJSONReq(w, r, &req) {
		return
	}

	file, err := s.fileService.Rename(r.Context(), r.PathValue("id"), req.Name)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeData(w, http.StatusOK, "File updated", s.fileService.Record(file, true))
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.fileService.Delete(r.Context(), id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeData(w, http.StatusOK, "File deleted", api.DeleteResponse{ID: id})
}
