package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"meshvault/internal/models"
)

const modelColumns = "m.id, m.user_id, m.blob_id, m.group_id, m.name, m.link, m.description, m.flags, m.sync_id, m.created_at"

// ModelFilter narrows ListModels.
type ModelFilter struct {
	UserID   string
	GroupID  string
	LabelID  string
	Favorite bool
	Limit    int
	Offset   int
}

// CreateModel inserts one model row referencing an existing blob.
func (s *Store) CreateModel(ctx context.Context, model *models.Model) error {
	if model == nil {
		return fmt.Errorf("model is required")
	}
	model.Name = strings.TrimSpace(model.Name)
	if model.Name == "" {
		return fmt.Errorf("model name is required")
	}
	if strings.TrimSpace(model.BlobID) == "" {
		return fmt.Errorf("blob_id is required")
	}
	if strings.TrimSpace(model.UserID) == "" {
		model.UserID = models.LocalUserID
	}
	if strings.TrimSpace(model.ID) == "" {
		generated, err := GenerateModelID(func(id string) (bool, error) {
			return rowExists(ctx, s.db, "SELECT 1 FROM models WHERE id = ? LIMIT 1", id)
		})
		if err != nil {
			return err
		}
		model.ID = generated
	}
	if strings.TrimSpace(model.SyncID) == "" {
		model.SyncID = uuid.NewString()
	}
	if model.CreatedAt.IsZero() {
		model.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO models (id, user_id, blob_id, group_id, name, link, description, flags, sync_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		model.ID,
		model.UserID,
		model.BlobID,
		nullIfEmpty(model.GroupID),
		model.Name,
		nullIfEmpty(strings.TrimSpace(model.Link)),
		nullIfEmpty(strings.TrimSpace(model.Description)),
		int64(model.Flags),
		model.SyncID,
		formatTime(model.CreatedAt),
	)
	return err
}

// GetModel returns a model by id with its blob and labels.
func (s *Store) GetModel(ctx context.Context, id string) (*models.Model, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+modelColumns+` FROM models m WHERE m.id = ?`, id)
	model, err := scanModel(row)
	if err != nil || model == nil {
		return model, err
	}
	if err := s.hydrateModels(ctx, []*models.Model{model}); err != nil {
		return nil, err
	}
	return model, nil
}

// GetModelByContentKey returns the oldest model of userID whose blob has the given content key.
func (s *Store) GetModelByContentKey(ctx context.Context, userID, key string) (*models.Model, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+modelColumns+`
		FROM models m
		JOIN blobs b ON b.id = m.blob_id
		WHERE b.content_key = ? AND m.user_id = ?
		ORDER BY m.created_at ASC
		LIMIT 1`, strings.ToLower(strings.TrimSpace(key)), userID)
	return scanModel(row)
}

// ListModels lists models ordered by creation time, newest first.
func (s *Store) ListModels(ctx context.Context, filter ModelFilter) ([]models.Model, error) {
	query := `SELECT ` + modelColumns + ` FROM models m`
	where := []string{}
	args := []any{}
	if filter.UserID != "" {
		where = append(where, "m.user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.GroupID != "" {
		where = append(where, "m.group_id = ?")
		args = append(args, filter.GroupID)
	}
	if filter.LabelID != "" {
		where = append(where, "EXISTS (SELECT 1 FROM model_labels ml WHERE ml.model_id = m.id AND ml.label_id = ?)")
		args = append(args, filter.LabelID)
	}
	if filter.Favorite {
		where = append(where, "(m.flags & ?) != 0")
		args = append(args, int64(models.FlagFavorite))
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY m.created_at DESC, m.id ASC"
	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}
	return s.queryModels(ctx, query, args...)
}

// ListModelsByIDs returns the given models with blobs and labels attached.
func (s *Store) ListModelsByIDs(ctx context.Context, ids []string) ([]models.Model, error) {
	if len(ids) == 0 {
		return []models.Model{}, nil
	}
	query := fmt.Sprintf(`SELECT `+modelColumns+` FROM models m WHERE m.id IN (%s) ORDER BY m.created_at ASC, m.id ASC`, placeholders(len(ids)))
	return s.queryModels(ctx, query, stringArgs(ids)...)
}

// SetModelFlags replaces the flag bits of one model.
func (s *Store) SetModelFlags(ctx context.Context, id string, flags models.ModelFlags) error {
	res, err := s.db.ExecContext(ctx, "UPDATE models SET flags = ? WHERE id = ?", int64(flags), id)
	if err != nil {
		return err
	}
	return requireAffected(res, "model", id)
}

// DeleteModel deletes one model. Its blob stays behind until garbage collection.
func (s *Store) DeleteModel(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM models WHERE id = ?", id)
	if err != nil {
		return err
	}
	return requireAffected(res, "model", id)
}

func (s *Store) queryModels(ctx context.Context, query string, args ...any) ([]models.Model, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []models.Model{}
	for rows.Next() {
		model, err := scanModel(rows)
		if err != nil {
			return nil, err
		}
		if model != nil {
			list = append(list, *model)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	ptrs := make([]*models.Model, len(list))
	for i := range list {
		ptrs[i] = &list[i]
	}
	if err := s.hydrateModels(ctx, ptrs); err != nil {
		return nil, err
	}
	return list, nil
}

// hydrateModels attaches blobs and label ids.
func (s *Store) hydrateModels(ctx context.Context, list []*models.Model) error {
	if len(list) == 0 {
		return nil
	}
	ids := make([]string, 0, len(list))
	blobs := map[string]*models.Blob{}
	for _, model := range list {
		ids = append(ids, model.ID)
		if _, ok := blobs[model.BlobID]; ok {
			continue
		}
		blob, err := s.GetBlob(ctx, model.BlobID)
		if err != nil {
			return err
		}
		blobs[model.BlobID] = blob
	}
	labels, err := s.ListLabelIDsForModels(ctx, ids)
	if err != nil {
		return err
	}
	for _, model := range list {
		model.Blob = blobs[model.BlobID]
		model.Labels = labels[model.ID]
	}
	return nil
}

func scanModel(scanner rowScanner) (*models.Model, error) {
	model := models.Model{}
	var groupID, link, description sql.NullString
	var flags int64
	var createdAt string

	err := scanner.Scan(
		&model.ID,
		&model.UserID,
		&model.BlobID,
		&groupID,
		&model.Name,
		&link,
		&description,
		&flags,
		&model.SyncID,
		&createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	model.GroupID = groupID.String
	model.Link = link.String
	model.Description = description.String
	model.Flags = models.ModelFlags(flags)

	parsedCreated, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	model.CreatedAt = parsedCreated
	return &model, nil
}

// ErrNotFound is returned by mutations that target a missing row.
var ErrNotFound = errors.New("not found")

func requireAffected(res sql.Result, kind, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}
