package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"moodboard/internal/models"
)

const boardColumns = "id, board_id, name, description, data, settings, version, last_saved_at, created_at, updated_at"

// FindBoard returns the board with the given public id, or nil if absent.
func (s *Store) FindBoard(ctx context.Context, boardID string) (*models.Board, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+boardColumns+` FROM boards WHERE board_id = ?`, boardID)
	return scanBoard(row)
}

// BoardExists reports whether a board with the given public id exists.
func (s *Store) BoardExists(ctx context.Context, boardID string) (bool, error) {
	return existsQuery(ctx, s.db, "SELECT 1 FROM boards WHERE board_id = ? LIMIT 1", boardID)
}

// UpsertBoard replaces the document of an existing board and bumps its
// version, or inserts the board at version 1. Both paths run in one
// transaction and the increment is computed by SQLite.
func (s *Store) UpsertBoard(ctx context.Context, in BoardUpsert) (_ *models.Board, err error) {
	boardID := in.BoardID
	if strings.TrimSpace(boardID) == "" {
		return nil, fmt.Errorf("board_id is required")
	}

	data, err := json.Marshal(in.Document)
	if err != nil {
		return nil, fmt.Errorf("encode board document: %w", err)
	}
	var settings any
	if len(in.Settings) > 0 {
		settings = string(in.Settings)
	}
	now := dbFormatTime(time.Now())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `
		UPDATE boards
		SET data = ?, settings = COALESCE(?, settings), version = version + 1,
			last_saved_at = ?, updated_at = ?
		WHERE board_id = ?
	`, string(data), settings, now, now, boardID)
	if err != nil {
		return nil, err
	}
	updated, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}

	if updated == 0 {
		if settings == nil {
			settings = string(models.DefaultSettings())
		}
		name := in.Name
		if strings.TrimSpace(name) == "" {
			name = models.DefaultBoardName
		}
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO boards (`+boardColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?, ?)
		`, NewIdentity(), boardID, name, nullIfEmpty(in.Description), string(data), settings, now, now, now); err != nil {
			return nil, err
		}
	}

	board, err := scanBoard(tx.QueryRowContext(ctx, `SELECT `+boardColumns+` FROM boards WHERE board_id = ?`, boardID))
	if err != nil {
		return nil, err
	}
	if board == nil {
		err = fmt.Errorf("board not found after upsert")
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return board, nil
}

// CreateBoardIfAbsent inserts board unless its public id already exists and
// returns whichever row is stored. Concurrent callers converge on one row.
func (s *Store) CreateBoardIfAbsent(ctx context.Context, board *models.Board) (_ *models.Board, err error) {
	if board == nil {
		return nil, fmt.Errorf("board is required")
	}
	data, settings, err := encodeBoard(board)
	if err != nil {
		return nil, err
	}
	now := dbFormatTime(time.Now())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `
		INSERT INTO boards (`+boardColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?, ?)
		ON CONFLICT(board_id) DO NOTHING
	`, NewIdentity(), board.BoardID, board.Name, nullIfEmpty(board.Description), data, settings, now, now, now); err != nil {
		return nil, err
	}

	stored, err := scanBoard(tx.QueryRowContext(ctx, `SELECT `+boardColumns+` FROM boards WHERE board_id = ?`, board.BoardID))
	if err != nil {
		return nil, err
	}
	if stored == nil {
		err = fmt.Errorf("board not found after create")
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return stored, nil
}

// InsertBoard inserts a new board at version 1. It fails if the public id
// is taken. The stored identity and timestamps are written back to board.
func (s *Store) InsertBoard(ctx context.Context, board *models.Board) error {
	if board == nil {
		return fmt.Errorf("board is required")
	}
	data, settings, err := encodeBoard(board)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	board.ID = NewIdentity()
	board.Version = 1
	board.LastSavedAt = now
	board.CreatedAt = now
	board.UpdatedAt = now
	board.Settings = json.RawMessage(settings)

	ts := dbFormatTime(now)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO boards (`+boardColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?, ?)
	`, board.ID, board.BoardID, board.Name, nullIfEmpty(board.Description), data, settings, ts, ts, ts)
	return err
}

// DeleteBoard removes a board and reports whether it existed.
func (s *Store) DeleteBoard(ctx context.Context, boardID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM boards WHERE board_id = ?", boardID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListBoards returns every board, most recently saved first.
func (s *Store) ListBoards(ctx context.Context) ([]models.Board, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+boardColumns+` FROM boards ORDER BY last_saved_at DESC, board_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	boards := []models.Board{}
	for rows.Next() {
		board, err := scanBoard(rows)
		if err != nil {
			return nil, err
		}
		if board != nil {
			boards = append(boards, *board)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return boards, nil
}

// ListBoardDocuments returns the stored document of every board. Rows are
// fully read before returning so callers may issue further queries.
func (s *Store) ListBoardDocuments(ctx context.Context) ([]BoardDocument, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT board_id, data FROM boards ORDER BY board_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	docs := []BoardDocument{}
	for rows.Next() {
		var boardID, data string
		if err := rows.Scan(&boardID, &data); err != nil {
			return nil, err
		}
		doc, err := models.ParseDocument([]byte(data))
		if err != nil {
			return nil, fmt.Errorf("parse document of board %s: %w", boardID, err)
		}
		docs = append(docs, BoardDocument{BoardID: boardID, Document: doc})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return docs, nil
}

func encodeBoard(board *models.Board) (string, string, error) {
	if strings.TrimSpace(board.BoardID) == "" {
		return "", "", fmt.Errorf("board_id is required")
	}
	if strings.TrimSpace(board.Name) == "" {
		board.Name = models.DefaultBoardName
	}
	data, err := json.Marshal(board.Document)
	if err != nil {
		return "", "", fmt.Errorf("encode board document: %w", err)
	}
	settings := board.Settings
	if len(settings) == 0 {
		settings = models.DefaultSettings()
	}
	return string(data), string(settings), nil
}

func scanBoard(scanner interface {
	Scan(dest ...any) error
}) (*models.Board, error) {
	board := models.Board{}
	var description sql.NullString
	var data, settings string
	var lastSavedAt, createdAt, updatedAt string

	err := scanner.Scan(
		&board.ID,
		&board.BoardID,
		&board.Name,
		&description,
		&data,
		&settings,
		&board.Version,
		&lastSavedAt,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	board.Description = description.String
	board.Settings = json.RawMessage(settings)
	doc, err := models.ParseDocument([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("parse document of board %s: %w", board.BoardID, err)
	}
	board.Document = doc

	if board.LastSavedAt, err = dbParseTime(lastSavedAt); err != nil {
		return nil, err
	}
	if board.CreatedAt, err = dbParseTime(createdAt); err != nil {
		return nil, err
	}
	if board.UpdatedAt, err = dbParseTime(updatedAt); err != nil {
		return nil, err
	}
	return &board, nil
}
