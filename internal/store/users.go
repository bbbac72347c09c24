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

// GetUserByName returns a user by name, or nil if absent.
func (s *Store) GetUserByName(ctx context.Context, name string) (*models.User, error) {
	user := models.User{}
	var createdAt string
	err := s.db.QueryRowContext(ctx, "SELECT id, name, created_at FROM users WHERE name = ?", strings.TrimSpace(name)).
		Scan(&user.ID, &user.Name, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	parsed, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	user.CreatedAt = parsed
	return &user, nil
}

// EnsureUser returns the user with name, creating it if needed.
func (s *Store) EnsureUser(ctx context.Context, name string) (*models.User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("user name is required")
	}
	existing, err := s.GetUserByName(ctx, name)
	if err != nil || existing != nil {
		return existing, err
	}

	id, err := GenerateUserID(func(id string) (bool, error) {
		return rowExists(ctx, s.db, "SELECT 1 FROM users WHERE id = ? LIMIT 1", id)
	})
	if err != nil {
		return nil, err
	}
	if _, err := s.db.ExecContext(ctx, "INSERT OR IGNORE INTO users (id, name, created_at) VALUES (?, ?, ?)",
		id, name, formatTime(time.Now().UTC())); err != nil {
		return nil, err
	}
	return s.GetUserByName(ctx, name)
}
