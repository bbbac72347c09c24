package models

import "time"

// ModelFlags is a bit set of user-facing model markers.
type ModelFlags int64

const (
	FlagFavorite ModelFlags = 1 << iota
	FlagPrinted
)

// Has reports whether every bit in flag is set.
func (f ModelFlags) Has(flag ModelFlags) bool {
	return f&flag == flag
}

// Model is one imported asset. It borrows its Blob from the blob store.
type Model struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Name        string     `json:"name"`
	BlobID      string     `json:"blob_id"`
	Blob        *Blob      `json:"blob,omitempty"`
	Link        string     `json:"link,omitempty"`
	Description string     `json:"description,omitempty"`
	GroupID     string     `json:"group_id,omitempty"`
	Labels      []string   `json:"labels,omitempty"`
	Flags       ModelFlags `json:"flags"`
	SyncID      string     `json:"sync_id"`
	CreatedAt   time.Time  `json:"created_at"`
}
