package server

import (
	"net/http"

	"github.com/go-chi/cors"
)

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Health check and info.
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /info", s.handleInfo)

	// Boards.
	mux.HandleFunc("POST /moodboard/save", s.handleSaveBoard)
	mux.HandleFunc("GET /moodboard/load/{boardId}", s.handleLoadBoard)
	mux.HandleFunc("GET /moodboard/list", s.handleListBoards)
	mux.HandleFunc("GET /moodboard/show/{boardId}", s.handleShowBoard)
	mux.HandleFunc("DELETE /moodboard/delete/{boardId}", s.handleDeleteBoard)
	mux.HandleFunc("POST /moodboard/duplicate/{boardId}", s.handleDuplicateBoard)
	mux.HandleFunc("GET /moodboard/{boardId}/images/stats", s.handleBoardImageStats)

	// Images.
	mux.HandleFunc("POST /images/upload", s.handleUploadImage)
	mux.HandleFunc("GET /images", s.handleListImages)
	mux.HandleFunc("POST /images/bulk-delete", s.handleBulkDeleteImages)
	mux.HandleFunc("POST /images/cleanup", s.handleCleanupImages)
	mux.HandleFunc("GET /images/{id}", s.handleGetImage)
	mux.HandleFunc("GET /images/{id}/file", s.handleGetImageFile)
	mux.HandleFunc("DELETE /images/{id}", s.handleDeleteImage)

	// Files.
	mux.HandleFunc("POST /files/upload", s.handleUploadFile)
	mux.HandleFunc("GET /files/{id}", s.handleGetFile)
	mux.HandleFunc("GET /files/{id}/download", s.handleDownloadFile)
	mux.HandleFunc("PUT /files/{id}", s.handleRenameFile)
	mux.HandleFunc("DELETE /files/{id}", s.handleDeleteFile)

	// Admin.
	mux.HandleFunc("POST /admin/blobs/gc", s.handleAdminGCBlobs)

	var handler http.Handler = mux
	if len(s.corsOrigins) > 0 {
		handler = cors.Handler(cors.Options{
			AllowedOrigins: s.corsOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", "Content-Length", "If-None-Match", "X-Confirm", "X-Request-ID"},
			ExposedHeaders: []string{"ETag", "Content-Disposition", "X-Request-ID"},
			MaxAge:         300,
		})(handler)
	}
	return s.withRequestLogging(handler)
}
