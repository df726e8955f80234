package server

import (
	"net/http"

	"moodboard/internal/api"
)

func (s *Server) handleSaveBoard(w http.ResponseWriter, r *http.Request) {
	var req api.SaveBoardRequest
	if !s.decodeJSONReq(w, r, &req) {
		return
	}

	result, err := s.boardService.Save(r.Context(), SaveBoardInput{BoardID: req.BoardID, Document: req.BoardData})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.writeData(w, http.StatusOK, "Board saved", api.SaveBoardResponse{
		Version:   result.Version,
		Timestamp: result.LastSavedAt,
	})
}

func (s *Server) handleLoadBoard(w http.ResponseWriter, r *http.Request) {
	board, err := s.boardService.Load(r.Context(), r.PathValue("boardId"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeData(w, http.StatusOK, "", board)
}

func (s *Server) handleListBoards(w http.ResponseWriter, r *http.Request) {
	boards, err := s.boardService.List(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeData(w, http.StatusOK, "", boards)
}

func (s *Server) handleShowBoard(w http.ResponseWriter, r *http.Request) {
	resp, err := s.boardService.Show(r.Context(), r.PathValue("boardId"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeData(w, http.StatusOK, "", resp)
}

func (s *Server) handleDeleteBoard(w http.ResponseWriter, r *http.Request) {
	cleanupImages, err := queryBool(r, "cleanup_images")
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	result, err := s.boardService.Delete(r.Context(), r.PathValue("boardId"), cleanupImages)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	data := map[string]any{}
	if cleanupImages {
		data["deleted_images"] = result.DeletedImages
	}
	s.writeData(w, http.StatusOK, "Board deleted", data)
}

func (s *Server) handleDuplicateBoard(w http.ResponseWriter, r *http.Request) {
	board, err := s.boardService.Duplicate(r.Context(), r.PathValue("boardId"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeData(w, http.StatusOK, "Board duplicated", board)
}

func (s *Server) handleBoardImageStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.boardService.ImageStats(r.Context(), r.PathValue("boardId"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeData(w, http.StatusOK, "", stats)
}
