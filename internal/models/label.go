package models

import (
	"fmt"
	"strings"
	"time"
)

// Label is a user-defined tag. Labels form a forest through ParentID.
type Label struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Color     string    `json:"color,omitempty"`
	ParentID  string    `json:"parent_id,omitempty"`
	Keywords  []string  `json:"keywords,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// User owns models, groups, labels and keywords.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// LocalUserID is the user seeded by the initial migration.
const LocalUserID = "us-local"

// NormalizeKeyword lower-cases and trims a keyword. Keywords must be a single alphanumeric token.
func NormalizeKeyword(raw string) (string, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	if value == "" {
		return "", fmt.Errorf("keyword is required")
	}
	for _, r := range value {
		if !isKeywordRune(r) {
			return "", fmt.Errorf("invalid keyword %q: only letters and digits are allowed", raw)
		}
	}
	return value, nil
}
