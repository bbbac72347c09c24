package models

import (
	"strings"
	"time"
)

// ZipSuffix marks a filetype whose managed payload is wrapped in a single-entry zip.
const ZipSuffix = ".zip"

// Blob is an immutable stored content object referenced by models.
type Blob struct {
	ID         string    `json:"id"`
	ContentKey string    `json:"content_key"`
	Filetype   string    `json:"filetype"`
	SizeBytes  int64     `json:"size_bytes"`
	DiskPath   string    `json:"disk_path,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// External reports whether the blob references a caller-owned file instead of managed storage.
func (b Blob) External() bool {
	return strings.TrimSpace(b.DiskPath) != ""
}

// Wrapped reports whether the managed payload is zip-wrapped.
func (b Blob) Wrapped() bool {
	return strings.HasSuffix(strings.ToLower(b.Filetype), ZipSuffix)
}

// Extension returns the original file extension without any zip-wrapping suffix.
func (b Blob) Extension() string {
	return strings.TrimSuffix(strings.ToLower(b.Filetype), ZipSuffix)
}
