package models

import "time"

// Group collects models imported together from one directory, archive or ad-hoc batch.
type Group struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}
