package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"moodboard/internal/models"
)

const fileColumns = "id, name, original_name, stored_name, mime_type, size_bytes, extension, sha256, blob_id, created_at, updated_at"

// CreateFileWithBlob upserts blob metadata and inserts file in one
// transaction. An existing file with the same digest is returned instead.
func (s *Store) CreateFileWithBlob(ctx context.Context, blob *models.Blob, file *models.File) (_ *models.File, deduplicated bool, err error) {
	if file == nil {
		return nil, false, fmt.Errorf("file is required")
	}
	if blob == nil {
		return nil, false, fmt.Errorf("blob is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	existing, err := scanFile(tx.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM files WHERE sha256 = ?`, normalizeSHA(blob.SHA256)))
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		if err = tx.Commit(); err != nil {
			return nil, false, err
		}
		return existing, true, nil
	}

	canonical, err := upsertBlobTx(ctx, tx, blob)
	if err != nil {
		return nil, false, err
	}

	if strings.TrimSpace(file.ID) == "" {
		file.ID, err = GenerateFileID(func(id string) (bool, error) {
			return existsQuery(ctx, tx, "SELECT 1 FROM files WHERE id = ? LIMIT 1", id)
		})
		if err != nil {
			return nil, false, err
		}
	}
	now := time.Now().UTC()
	if file.CreatedAt.IsZero() {
		file.CreatedAt = now
	}
	if file.UpdatedAt.IsZero() {
		file.UpdatedAt = file.CreatedAt
	}
	file.SHA256 = canonical.SHA256
	file.BlobID = canonical.ID

	if _, err = tx.ExecContext(ctx, `
		INSERT INTO files (`+fileColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		file.ID,
		file.Name,
		file.OriginalName,
		file.StoredName,
		file.MimeType,
		file.SizeBytes,
		nullIfEmpty(file.Extension),
		file.SHA256,
		file.BlobID,
		dbFormatTime(file.CreatedAt),
		dbFormatTime(file.UpdatedAt),
	); err != nil {
		return nil, false, err
	}

	stored, err := scanFile(tx.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM files WHERE id = ?`, file.ID))
	if err != nil {
		return nil, false, err
	}
	if err = tx.Commit(); err != nil {
		return nil, false, err
	}
	return stored, false, nil
}

// GetFile returns one file by id, or nil if absent.
func (s *Store) GetFile(ctx context.Context, id string) (*models.File, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM files WHERE id = ?`, id)
	return scanFile(row)
}

// GetFileBySHA256 returns the file stored for a content digest.
func (s *Store) GetFileBySHA256(ctx context.Context, sha string) (*models.File, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM files WHERE sha256 = ?`, normalizeSHA(sha))
	return scanFile(row)
}

// UpdateFileName sets the display name of a file. It returns nil if the
// file does not exist.
func (s *Store) UpdateFileName(ctx context.Context, id, name string, updatedAt time.Time) (*models.File, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE files SET name = ?, updated_at = ? WHERE id = ?`, name, dbFormatTime(updatedAt), id)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	return s.GetFile(ctx, id)
}

// DeleteFile deletes one file row and reports whether it existed.
func (s *Store) DeleteFile(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM files WHERE id = ?", id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func scanFile(scanner interface {
	Scan(dest ...any) error
}) (*models.File, error) {
	file := models.File{}
	var extension sql.NullString
	var createdAt, updatedAt string

	err := scanner.Scan(
		&file.ID,
		&file.Name,
		&file.OriginalName,
		&file.StoredName,
		&file.MimeType,
		&file.SizeBytes,
		&extension,
		&file.SHA256,
		&file.BlobID,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	file.Extension = extension.String
	if file.CreatedAt, err = dbParseTime(createdAt); err != nil {
		return nil, err
	}
	if file.UpdatedAt, err = dbParseTime(updatedAt); err != nil {
		return nil, err
	}
	return &file, nil
}
