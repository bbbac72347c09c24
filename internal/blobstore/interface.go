package blobstore

import (
	"context"
	"io"

	"meshvault/internal/models"
)

// Storage is the byte-storage abstraction used by the Ingestor and the thumbnail pool.
type Storage interface {
	Stage(ctx context.Context, r io.Reader) (*Staged, error)
	Commit(ctx context.Context, staged *Staged, ext string) (string, error)
	HashFile(ctx context.Context, path string) (string, int64, error)
	Open(ctx context.Context, blob models.Blob) (io.ReadCloser, error)
	Path(blob models.Blob) (string, error)
	Delete(ctx context.Context, blob models.Blob) error
}

var _ Storage = (*LocalCAS)(nil)

// Catalog is the subset of the library store the Ingestor writes through.
type Catalog interface {
	GetModelByContentKey(ctx context.Context, userID, key string) (*models.Model, error)
	GetBlobByContentKey(ctx context.Context, key string) (*models.Blob, error)
	UpsertBlob(ctx context.Context, blob *models.Blob) (*models.Blob, error)
	CreateModel(ctx context.Context, model *models.Model) error
}
