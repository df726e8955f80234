package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"moodboard/internal/models"
)

const imageColumns = "id, name, original_name, stored_name, mime_type, size_bytes, width, height, sha256, blob_id, created_at, updated_at"

// CreateImageWithBlob upserts blob metadata and inserts image in one
// transaction. When an image with the same digest already exists it is
// returned unchanged with deduplicated set and nothing is written.
func (s *Store) CreateImageWithBlob(ctx context.Context, blob *models.Blob, image *models.Image) (_ *models.Image, deduplicated bool, err error) {
	if image == nil {
		return nil, false, fmt.Errorf("image is required")
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

	sha := normalizeSHA(blob.SHA256)
	existing, err := scanImage(tx.QueryRowContext(ctx, `SELECT `+imageColumns+` FROM images WHERE sha256 = ?`, sha))
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

	if strings.TrimSpace(image.ID) == "" {
		image.ID, err = GenerateImageID(func(id string) (bool, error) {
			return existsQuery(ctx, tx, "SELECT 1 FROM images WHERE id = ? LIMIT 1", id)
		})
		if err != nil {
			return nil, false, err
		}
	}
	now := time.Now().UTC()
	if image.CreatedAt.IsZero() {
		image.CreatedAt = now
	}
	if image.UpdatedAt.IsZero() {
		image.UpdatedAt = image.CreatedAt
	}
	image.SHA256 = canonical.SHA256
	image.BlobID = canonical.ID

	if _, err = tx.ExecContext(ctx, `
		INSERT INTO images (`+imageColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		image.ID,
		image.Name,
		image.OriginalName,
		image.StoredName,
		image.MimeType,
		image.SizeBytes,
		image.Width,
		image.Height,
		image.SHA256,
		image.BlobID,
		dbFormatTime(image.CreatedAt),
		dbFormatTime(image.UpdatedAt),
	); err != nil {
		return nil, false, err
	}

	stored, err := scanImage(tx.QueryRowContext(ctx, `SELECT `+imageColumns+` FROM images WHERE id = ?`, image.ID))
	if err != nil {
		return nil, false, err
	}
	if err = tx.Commit(); err != nil {
		return nil, false, err
	}
	return stored, false, nil
}

// GetImage returns one image by id, or nil if absent.
func (s *Store) GetImage(ctx context.Context, id string) (*models.Image, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+imageColumns+` FROM images WHERE id = ?`, id)
	return scanImage(row)
}

// GetImageBySHA256 returns the image stored for a content digest.
func (s *Store) GetImageBySHA256(ctx context.Context, sha string) (*models.Image, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+imageColumns+` FROM images WHERE sha256 = ?`, normalizeSHA(sha))
	return scanImage(row)
}

// GetImages returns the images with the given ids. Missing ids are skipped.
func (s *Store) GetImages(ctx context.Context, ids []string) ([]models.Image, error) {
	if len(ids) == 0 {
		return []models.Image{}, nil
	}
	query := `SELECT ` + imageColumns + ` FROM images WHERE id IN (` + placeholders(len(ids)) + `) ORDER BY created_at ASC, id ASC`
	return s.queryImages(ctx, query, stringArgs(ids)...)
}

// ExistingImageIDs reports which of ids have an image row.
func (s *Store) ExistingImageIDs(ctx context.Context, ids []string) (map[string]bool, error) {
	found := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return found, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM images WHERE id IN (`+placeholders(len(ids))+`)`, stringArgs(ids)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		found[id] = true
	}
	return found, rows.Err()
}

// ListImages returns one page of images, newest first, and the total match count.
func (s *Store) ListImages(ctx context.Context, filter ImageFilter) ([]models.Image, int, error) {
	where := ""
	args := []any{}
	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := "%" + escapeLike(search) + "%"
		where = ` WHERE name LIKE ? ESCAPE '\' OR original_name LIKE ? ESCAPE '\'`
		args = append(args, pattern, pattern)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM images`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + imageColumns + ` FROM images` + where + ` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}
	images, err := s.queryImages(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return images, total, nil
}

// ListImagesCreatedBefore returns images created at or before cutoff.
func (s *Store) ListImagesCreatedBefore(ctx context.Context, cutoff time.Time) ([]models.Image, error) {
	return s.queryImages(ctx, `SELECT `+imageColumns+` FROM images WHERE created_at <= ? ORDER BY created_at ASC, id ASC`, dbFormatTime(cutoff))
}

// DeleteImages deletes image rows and returns how many existed. Blob rows
// are left for GC.
func (s *Store) DeleteImages(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM images WHERE id IN (`+placeholders(len(ids))+`)`, stringArgs(ids)...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *Store) queryImages(ctx context.Context, query string, args ...any) ([]models.Image, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	images := []models.Image{}
	for rows.Next() {
		image, err := scanImage(rows)
		if err != nil {
			return nil, err
		}
		if image != nil {
			images = append(images, *image)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return images, nil
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}

func scanImage(scanner interface {
	Scan(dest ...any) error
}) (*models.Image, error) {
	image := models.Image{}
	var createdAt, updatedAt string

	err := scanner.Scan(
		&image.ID,
		&image.Name,
		&image.OriginalName,
		&image.StoredName,
		&image.MimeType,
		&image.SizeBytes,
		&image.Width,
		&image.Height,
		&image.SHA256,
		&image.BlobID,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	if image.CreatedAt, err = dbParseTime(createdAt); err != nil {
		return nil, err
	}
	if image.UpdatedAt, err = dbParseTime(updatedAt); err != nil {
		return nil, err
	}
	return &image, nil
}
