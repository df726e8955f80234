package store

import (
	"context"
	"encoding/json"

	"moodboard/internal/models"
)

// BoardStore abstracts board document storage.
type BoardStore interface {
	FindBoard(ctx context.Context, boardID string) (*models.Board, error)
	BoardExists(ctx context.Context, boardID string) (bool, error)
	UpsertBoard(ctx context.Context, in BoardUpsert) (*models.Board, error)
	CreateBoardIfAbsent(ctx context.Context, board *models.Board) (*models.Board, error)
	InsertBoard(ctx context.Context, board *models.Board) error
	DeleteBoard(ctx context.Context, boardID string) (bool, error)
	ListBoards(ctx context.Context) ([]models.Board, error)
	ListBoardDocuments(ctx context.Context) ([]BoardDocument, error)
}

// BoardUpsert is one save of a board document.
//
// Name and Description are only used when the save creates the board.
// A nil Settings keeps the stored settings, or applies the defaults on create.
type BoardUpsert struct {
	BoardID     string
	Name        string
	Description string
	Document    models.Document
	Settings    json.RawMessage
}

// BoardDocument pairs a board id with its stored document.
type BoardDocument struct {
	BoardID  string
	Document models.Document
}

// ServiceStore is the full persistence surface used by the HTTP services.
type ServiceStore interface {
	BoardStore
	AssetStore
	StoreInfo(ctx context.Context) (Info, error)
}

var (
	_ BoardStore   = (*Store)(nil)
	_ ServiceStore = (*Store)(nil)
)
