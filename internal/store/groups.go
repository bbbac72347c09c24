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

const groupColumns = "id, user_id, name, created_at"

// CreateGroup inserts one group row.
func (s *Store) CreateGroup(ctx context.Context, group *models.Group) error {
	if group == nil {
		return fmt.Errorf("group is required")
	}
	group.Name = strings.TrimSpace(group.Name)
	if group.Name == "" {
		return fmt.Errorf("group name is required")
	}
	if strings.TrimSpace(group.UserID) == "" {
		group.UserID = models.LocalUserID
	}
	if strings.TrimSpace(group.ID) == "" {
		generated, err := GenerateGroupID(func(id string) (bool, error) {
			return rowExists(ctx, s.db, "SELECT 1 FROM model_groups WHERE id = ? LIMIT 1", id)
		})
		if err != nil {
			return err
		}
		group.ID = generated
	}
	if group.CreatedAt.IsZero() {
		group.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, "INSERT INTO model_groups (id, user_id, name, created_at) VALUES (?, ?, ?, ?)",
		group.ID, group.UserID, group.Name, formatTime(group.CreatedAt))
	return err
}

// CreateGroupWithModels creates a group and assigns modelIDs to it in one transaction.
func (s *Store) CreateGroupWithModels(ctx context.Context, group *models.Group, modelIDs []string) (err error) {
	if group == nil {
		return fmt.Errorf("group is required")
	}
	group.Name = strings.TrimSpace(group.Name)
	if group.Name == "" {
		return fmt.Errorf("group name is required")
	}
	if strings.TrimSpace(group.UserID) == "" {
		group.UserID = models.LocalUserID
	}
	if group.CreatedAt.IsZero() {
		group.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if strings.TrimSpace(group.ID) == "" {
		generated, genErr := GenerateGroupID(func(id string) (bool, error) {
			return rowExists(ctx, tx, "SELECT 1 FROM model_groups WHERE id = ? LIMIT 1", id)
		})
		if genErr != nil {
			err = genErr
			return err
		}
		group.ID = generated
	}

	if _, err = tx.ExecContext(ctx, "INSERT INTO model_groups (id, user_id, name, created_at) VALUES (?, ?, ?, ?)",
		group.ID, group.UserID, group.Name, formatTime(group.CreatedAt)); err != nil {
		return err
	}
	if err = assignModelsTx(ctx, tx, group.ID, modelIDs); err != nil {
		return err
	}
	return tx.Commit()
}

// AssignModelsToGroup bulk-assigns models to a group.
func (s *Store) AssignModelsToGroup(ctx context.Context, groupID string, modelIDs []string) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = assignModelsTx(ctx, tx, groupID, modelIDs); err != nil {
		return err
	}
	return tx.Commit()
}

// GetGroup returns one group by id.
func (s *Store) GetGroup(ctx context.Context, id string) (*models.Group, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+groupColumns+` FROM model_groups WHERE id = ?`, id)
	return scanGroup(row)
}

// ListGroups lists a user's groups, newest first.
func (s *Store) ListGroups(ctx context.Context, userID string) ([]models.Group, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+groupColumns+` FROM model_groups WHERE user_id = ? ORDER BY created_at DESC, id ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	groups := []models.Group{}
	for rows.Next() {
		group, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		if group != nil {
			groups = append(groups, *group)
		}
	}
	return groups, rows.Err()
}

func assignModelsTx(ctx context.Context, tx *sql.Tx, groupID string, modelIDs []string) error {
	if len(modelIDs) == 0 {
		return nil
	}
	args := append([]any{groupID}, stringArgs(modelIDs)...)
	query := fmt.Sprintf("UPDATE models SET group_id = ? WHERE id IN (%s)", placeholders(len(modelIDs)))
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

func scanGroup(scanner rowScanner) (*models.Group, error) {
	group := models.Group{}
	var createdAt string
	if err := scanner.Scan(&group.ID, &group.UserID, &group.Name, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	parsed, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	group.CreatedAt = parsed
	return &group, nil
}
