package server

import (
	"net/http"

	"moodboard/internal/api"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, api.HealthResponse{Status: "ok"})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.store.StoreInfo(r.Context())
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}

	s.writeData(w, http.StatusOK, "", api.InfoResponse{
		DBPath:        s.dbPath,
		SchemaVersion: info.SchemaVersion,
		Boards:        info.Boards,
		Images:        info.Images,
		Files:         info.Files,
		Blobs:         info.Blobs,
		BlobBackend:   s.blobService.Backend(),
	})
}
