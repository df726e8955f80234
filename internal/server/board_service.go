package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"moodboard/internal/api"
	"moodboard/internal/canvas"
	"moodboard/internal/models"
	"moodboard/internal/store"
)

// BoardService implements board persistence on top of the document passes:
// normalize before every save, resolve after every read.
type BoardService struct {
	store  store.ServiceStore
	lookup canvas.ImageLookup
	images *ImageService
	urls   canvas.URLBuilder
	logger *slog.Logger
}

// SaveBoardInput is an unvalidated save request.
type SaveBoardInput struct {
	BoardID  json.RawMessage
	Document json.RawMessage
}

// SaveResult reports the version written by a save.
type SaveResult struct {
	Version     int64
	LastSavedAt time.Time
}

// DeleteBoardResult reports a board deletion.
type DeleteBoardResult struct {
	DeletedImages int
}

// NewBoardService constructs a BoardService.
func NewBoardService(st store.ServiceStore, lookup canvas.ImageLookup, images *ImageService, urls canvas.URLBuilder, logger *slog.Logger) *BoardService {
	if lookup == nil {
		lookup = st
	}
	return &BoardService{store: st, lookup: lookup, images: images, urls: urls, logger: logger}
}

// Save validates and normalizes a board document and upserts it. An update
// replaces the whole document and increments the version by one.
func (s *BoardService) Save(ctx context.Context, in SaveBoardInput) (SaveResult, error) {
	var zero SaveResult
	if s == nil || s.store == nil {
		return zero, internalError(fmt.Errorf("board service is not configured"))
	}

	fields := map[string][]string{}
	boardID, err := parseBoardIDField(in.BoardID)
	if err != nil {
		fields["boardId"] = []string{err.Error()}
	}
	doc, err := parseBoardData(in.Document)
	if err != nil {
		var docErr *models.DocumentError
		if errors.As(err, &docErr) {
			fields[docErr.Field] = append(fields[docErr.Field], docErr.Error())
		} else {
			fields["boardData"] = append(fields["boardData"], err.Error())
		}
	}
	if len(fields) > 0 {
		return zero, validationCode(fields, saveValidationCode(fields))
	}

	settings := doc.Settings
	doc.Settings = nil
	name, _ := doc.StringField("name")
	description, _ := doc.StringField("description")

	board, err := s.store.UpsertBoard(ctx, store.BoardUpsert{
		BoardID:     boardID,
		Name:        name,
		Description: description,
		Document:    canvas.Normalize(doc),
		Settings:    settings,
	})
	if err != nil {
		return zero, storeFailure(err)
	}

	loggerFromContext(ctx, s.logger).Info("board saved", "board_id", board.BoardID, "version", board.Version, "objects", len(board.Document.Objects))
	return SaveResult{Version: board.Version, LastSavedAt: board.LastSavedAt}, nil
}

// Load returns a resolved board, creating an empty one when the id is new.
func (s *BoardService) Load(ctx context.Context, boardID string) (api.BoardResponse, error) {
	var zero api.BoardResponse
	if s == nil || s.store == nil {
		return zero, internalError(fmt.Errorf("board service is not configured"))
	}
	if err := validateBoardID(boardID); err != nil {
		return zero, fieldError("boardId", err.Error(), ErrCodeInvalidBoardID)
	}

	board, err := s.store.FindBoard(ctx, boardID)
	if err != nil {
		return zero, storeFailure(err)
	}
	if board == nil {
		board, err = s.store.CreateBoardIfAbsent(ctx, &models.Board{
			BoardID:  boardID,
			Name:     models.NewBoardName,
			Document: models.Document{Objects: []models.CanvasObject{}},
			Settings: models.DefaultSettings(),
		})
		if err != nil {
			return zero, storeFailure(err)
		}
		loggerFromContext(ctx, s.logger).Info("board created on load", "board_id", boardID)
	}
	return s.boardResponse(ctx, board), nil
}

// List returns board summaries, most recently saved first.
func (s *BoardService) List(ctx context.Context) ([]api.BoardSummary, error) {
	if s == nil || s.store == nil {
		return nil, internalError(fmt.Errorf("board service is not configured"))
	}
	boards, err := s.store.ListBoards(ctx)
	if err != nil {
		return nil, storeFailure(err)
	}
	out := make([]api.BoardSummary, 0, len(boards))
	for _, board := range boards {
		out = append(out, api.BoardSummary{
			ID:          board.BoardID,
			Name:        board.Name,
			Description: board.Description,
			Version:     board.Version,
			LastSaved:   board.LastSavedAt,
			Created:     board.CreatedAt,
			ObjectStats: board.Document.ObjectStats(),
		})
	}
	return out, nil
}

// Show returns a resolved board with its object statistics.
func (s *BoardService) Show(ctx context.Context, boardID string) (api.ShowBoardResponse, error) {
	var zero api.ShowBoardResponse
	board, err := s.find(ctx, boardID)
	if err != nil {
		return zero, err
	}
	return api.ShowBoardResponse{
		Board: s.boardResponse(ctx, board),
		Stats: board.Document.ObjectStats(),
	}, nil
}

// Delete removes a board. Referenced images are kept unless cleanupImages
// is set, in which case those no other board references are deleted too.
func (s *BoardService) Delete(ctx context.Context, boardID string, cleanupImages bool) (DeleteBoardResult, error) {
	var result DeleteBoardResult
	board, err := s.find(ctx, boardID)
	if err != nil {
		return result, err
	}
	imageIDs := canvas.ReferencedImageIDs(board.Document)

	deleted, err := s.store.DeleteBoard(ctx, board.BoardID)
	if err != nil {
		return result, storeFailure(err)
	}
	if !deleted {
		return result, notFoundCode(fmt.Errorf("board not found"), ErrCodeBoardNotFound)
	}
	logger := loggerFromContext(ctx, s.logger)
	logger.Info("board deleted", "board_id", board.BoardID)

	if cleanupImages && s.images != nil && len(imageIDs) > 0 {
		count, err := s.images.CleanupBoardImages(ctx, imageIDs)
		if err != nil {
			logger.Warn("board image cleanup failed", "board_id", board.BoardID, "error", err)
			return result, nil
		}
		result.DeletedImages = count
	}
	return result, nil
}

// Duplicate copies a board under a generated id. The copy starts at version 1.
func (s *BoardService) Duplicate(ctx context.Context, boardID string) (api.BoardResponse, error) {
	var zero api.BoardResponse
	original, err := s.find(ctx, boardID)
	if err != nil {
		return zero, err
	}

	newID, err := store.GenerateBoardID(func(id string) (bool, error) {
		return s.store.BoardExists(ctx, id)
	})
	if err != nil {
		return zero, storeFailure(err)
	}
	copied := &models.Board{
		BoardID:     newID,
		Name:        original.Name + models.DuplicateBoardSuffix,
		Description: original.Description,
		Document:    original.Document.Clone(),
		Settings:    append(json.RawMessage(nil), original.Settings...),
	}
	if err := s.store.InsertBoard(ctx, copied); err != nil {
		return zero, storeFailure(err)
	}

	loggerFromContext(ctx, s.logger).Info("board duplicated", "board_id", original.BoardID, "copy_id", copied.BoardID)
	return s.boardResponse(ctx, copied), nil
}

// ImageStats summarizes the stored images a board references.
func (s *BoardService) ImageStats(ctx context.Context, boardID string) (api.BoardImageStats, error) {
	stats := api.BoardImageStats{Formats: map[string]int{}}
	board, err := s.find(ctx, boardID)
	if err != nil {
		return stats, err
	}
	images, err := s.store.GetImages(ctx, canvas.ReferencedImageIDs(board.Document))
	if err != nil {
		return stats, storeFailure(err)
	}
	for _, img := range images {
		stats.TotalImages++
		stats.TotalSize += img.SizeBytes
		stats.Formats[img.MimeType]++
	}
	if stats.TotalImages > 0 {
		stats.AverageSize = float64(stats.TotalSize) / float64(stats.TotalImages)
	}
	return stats, nil
}

func (s *BoardService) find(ctx context.Context, boardID string) (*models.Board, error) {
	if s == nil || s.store == nil {
		return nil, internalError(fmt.Errorf("board service is not configured"))
	}
	if err := validateBoardID(boardID); err != nil {
		return nil, fieldError("boardId", err.Error(), ErrCodeInvalidBoardID)
	}
	board, err := s.store.FindBoard(ctx, boardID)
	if err != nil {
		return nil, storeFailure(err)
	}
	if board == nil {
		return nil, notFoundCode(fmt.Errorf("board not found"), ErrCodeBoardNotFound)
	}
	return board, nil
}

func (s *BoardService) boardResponse(ctx context.Context, board *models.Board) api.BoardResponse {
	doc := canvas.Resolve(ctx, board.Document, s.lookup, s.urls, loggerFromContext(ctx, s.logger))
	objects := doc.Objects
	if objects == nil {
		objects = []models.CanvasObject{}
	}
	return api.BoardResponse{
		ID:          board.BoardID,
		Name:        board.Name,
		Description: board.Description,
		Objects:     objects,
		Settings:    board.Settings,
		Version:     board.Version,
		Created:     board.CreatedAt,
		LastSaved:   board.LastSavedAt,
		Updated:     board.UpdatedAt,
		Extra:       doc.Extra,
	}
}

func parseBoardData(raw json.RawMessage) (models.Document, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return models.Document{}, &models.DocumentError{Field: "boardData", Reason: "is required"}
	}
	return models.ParseDocument(trimmed)
}

func saveValidationCode(fields map[string][]string) int {
	if _, ok := fields["boardId"]; ok && len(fields) == 1 {
		return ErrCodeInvalidBoardID
	}
	if _, ok := fields["boardId"]; !ok {
		return ErrCodeInvalidDocument
	}
	return ErrCodeValidation
}
