package store

import (
	"context"

	"meshvault/internal/models"
)

// LibraryStore abstracts the library catalog used by import and maintenance commands.
type LibraryStore interface {
	UpsertBlob(ctx context.Context, blob *models.Blob) (*models.Blob, error)
	GetBlob(ctx context.Context, id string) (*models.Blob, error)
	GetBlobByContentKey(ctx context.Context, key string) (*models.Blob, error)
	ListBlobsForModels(ctx context.Context, modelIDs []string) ([]models.Blob, error)
	ListReferencedBlobs(ctx context.Context) ([]models.Blob, error)
	ListUnreferencedBlobs(ctx context.Context, limit int) ([]models.Blob, error)
	DeleteBlob(ctx context.Context, id string) error

	CreateModel(ctx context.Context, model *models.Model) error
	GetModel(ctx context.Context, id string) (*models.Model, error)
	GetModelByContentKey(ctx context.Context, userID, key string) (*models.Model, error)
	ListModels(ctx context.Context, filter ModelFilter) ([]models.Model, error)
	ListModelsByIDs(ctx context.Context, ids []string) ([]models.Model, error)
	SetModelFlags(ctx context.Context, id string, flags models.ModelFlags) error
	DeleteModel(ctx context.Context, id string) error

	CreateGroupWithModels(ctx context.Context, group *models.Group, modelIDs []string) error
	ListGroups(ctx context.Context, userID string) ([]models.Group, error)

	CreateLabel(ctx context.Context, label *models.Label) error
	GetLabelByName(ctx context.Context, userID, name string) (*models.Label, error)
	ListLabels(ctx context.Context, userID string) ([]models.Label, error)
	SetLabelParent(ctx context.Context, labelID, parentID string) error
	AddKeywords(ctx context.Context, labelID string, keywords []string) error
	KeywordIndex(ctx context.Context, userID string) (map[string][]string, error)
	AttachLabels(ctx context.Context, modelID string, labelIDs []string) (int, error)

	EnsureUser(ctx context.Context, name string) (*models.User, error)
	Info(ctx context.Context) (*LibraryInfo, error)
}

var _ LibraryStore = (*Store)(nil)
