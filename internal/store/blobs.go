package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"meshvault/internal/models"
)

const blobColumns = "id, content_key, filetype, size_bytes, disk_path, created_at"

// UpsertBlob inserts a blob if its content key is absent and returns the canonical row.
// The unique constraint on content_key makes concurrent upserts of identical content converge on one row.
func (s *Store) UpsertBlob(ctx context.Context, blob *models.Blob) (*models.Blob, error) {
	if blob == nil {
		return nil, fmt.Errorf("blob is required")
	}
	blob.ContentKey = strings.ToLower(strings.TrimSpace(blob.ContentKey))
	blob.Filetype = strings.ToLower(strings.TrimSpace(blob.Filetype))
	if blob.ContentKey == "" {
		return nil, fmt.Errorf("content_key is required")
	}
	if blob.Filetype == "" {
		return nil, fmt.Errorf("filetype is required")
	}
	if blob.SizeBytes < 0 {
		return nil, fmt.Errorf("size_bytes must be >= 0")
	}

	if strings.TrimSpace(blob.ID) == "" {
		generated, err := GenerateBlobID(func(id string) (bool, error) {
			return rowExists(ctx, s.db, "SELECT 1 FROM blobs WHERE id = ? LIMIT 1", id)
		})
		if err != nil {
			return nil, err
		}
		blob.ID = generated
	}
	if blob.CreatedAt.IsZero() {
		blob.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO blobs (id, content_key, filetype, size_bytes, disk_path, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, blob.ID, blob.ContentKey, blob.Filetype, blob.SizeBytes, nullIfEmpty(strings.TrimSpace(blob.DiskPath)), formatTime(blob.CreatedAt))
	if err != nil {
		return nil, err
	}

	canonical, err := s.GetBlobByContentKey(ctx, blob.ContentKey)
	if err != nil {
		return nil, err
	}
	if canonical == nil {
		return nil, fmt.Errorf("blob not found after upsert")
	}
	return canonical, nil
}

// GetBlob returns one blob by id.
func (s *Store) GetBlob(ctx context.Context, id string) (*models.Blob, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+blobColumns+` FROM blobs WHERE id = ?`, id)
	return scanBlob(row)
}

// GetBlobByContentKey returns one blob by content key.
func (s *Store) GetBlobByContentKey(ctx context.Context, key string) (*models.Blob, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+blobColumns+` FROM blobs WHERE content_key = ?`, strings.ToLower(strings.TrimSpace(key)))
	return scanBlob(row)
}

// ListBlobsForModels returns the distinct blobs referenced by the given models.
func (s *Store) ListBlobsForModels(ctx context.Context, modelIDs []string) ([]models.Blob, error) {
	if len(modelIDs) == 0 {
		return []models.Blob{}, nil
	}
	query := fmt.Sprintf(`
		SELECT DISTINCT b.id, b.content_key, b.filetype, b.size_bytes, b.disk_path, b.created_at
		FROM blobs b
		JOIN models m ON m.blob_id = b.id
		WHERE m.id IN (%s)
		ORDER BY b.created_at ASC`, placeholders(len(modelIDs)))
	return s.queryBlobs(ctx, query, stringArgs(modelIDs)...)
}

// ListReferencedBlobs returns every blob referenced by at least one model.
func (s *Store) ListReferencedBlobs(ctx context.Context) ([]models.Blob, error) {
	return s.queryBlobs(ctx, `
		SELECT b.id, b.content_key, b.filetype, b.size_bytes, b.disk_path, b.created_at
		FROM blobs b
		WHERE EXISTS (SELECT 1 FROM models m WHERE m.blob_id = b.id)
		ORDER BY b.created_at ASC`)
}

// ListUnreferencedBlobs returns blobs that are not referenced by any model.
func (s *Store) ListUnreferencedBlobs(ctx context.Context, limit int) ([]models.Blob, error) {
	query := `
		SELECT b.id, b.content_key, b.filetype, b.size_bytes, b.disk_path, b.created_at
		FROM blobs b
		LEFT JOIN models m ON m.blob_id = b.id
		WHERE m.id IS NULL
		ORDER BY b.created_at ASC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return s.queryBlobs(ctx, query, args...)
}

// DeleteBlob deletes one blob row by id. It fails with a foreign key error
// while any model still references the blob.
func (s *Store) DeleteBlob(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM blobs WHERE id = ?", id)
	return err
}

func (s *Store) queryBlobs(ctx context.Context, query string, args ...any) ([]models.Blob, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	blobs := []models.Blob{}
	for rows.Next() {
		blob, err := scanBlob(rows)
		if err != nil {
			return nil, err
		}
		if blob != nil {
			blobs = append(blobs, *blob)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return blobs, nil
}

func scanBlob(scanner rowScanner) (*models.Blob, error) {
	blob := models.Blob{}
	var diskPath sql.NullString
	var createdAt string

	err := scanner.Scan(&blob.ID, &blob.ContentKey, &blob.Filetype, &blob.SizeBytes, &diskPath, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	blob.DiskPath = diskPath.String

	parsedCreated, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	blob.CreatedAt = parsedCreated

	return &blob, nil
}
