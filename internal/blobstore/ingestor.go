package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"golang.org/x/sync/singleflight"

	"meshvault/internal/fault"
	"meshvault/internal/models"
)

// ErrCatalogRequired is returned when an Ingestor is built without a catalog.
var ErrCatalogRequired = errors.New("ingestor requires a catalog")

// IngestRequest describes one file to ingest.
// Exactly one of Reader or ExternalPath is used: ExternalPath selects
// external-reference mode and leaves the bytes where they are.
type IngestRequest struct {
	UserID       string
	Name         string
	Extension    string
	Reader       io.Reader
	SizeHint     int64
	ExternalPath string
	Link         string
}

// IngestResult reports the model that now represents the content.
type IngestResult struct {
	ModelID      string
	BlobID       string
	ContentKey   string
	Deduplicated bool
	BlobReused   bool
}

// Ingestor turns file bytes into deduplicated Blob and Model rows.
type Ingestor struct {
	storage Storage
	catalog Catalog
	logger  *slog.Logger
	flight  singleflight.Group
}

// IngestorOption configures an Ingestor.
type IngestorOption func(*Ingestor)

// WithLogger sets the ingestor logger.
func WithLogger(logger *slog.Logger) IngestorOption {
	return func(i *Ingestor) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// NewIngestor creates an Ingestor writing payloads to storage and rows to catalog.
func NewIngestor(storage Storage, catalog Catalog, opts ...IngestorOption) (*Ingestor, error) {
	if storage == nil {
		return nil, fmt.Errorf("ingestor requires storage")
	}
	if catalog == nil {
		return nil, ErrCatalogRequired
	}
	i := &Ingestor{storage: storage, catalog: catalog, logger: slog.Default()}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Ingest stores one file. An existing model with the same content for the
// same user short-circuits everything; an orphaned blob with the same
// content is reused; otherwise the payload is committed and a blob row is
// upserted. A new model row is created in both of the latter cases.
// Concurrent calls for identical content share one execution.
func (i *Ingestor) Ingest(ctx context.Context, req IngestRequest) (IngestResult, error) {
	req.Extension = normalizeExt(req.Extension)
	if req.Extension == "" {
		return IngestResult{}, fault.Unsupported(req.Name, "")
	}
	if strings.TrimSpace(req.UserID) == "" {
		req.UserID = models.LocalUserID
	}

	var (
		staged *Staged
		key    string
		size   int64
		err    error
	)
	if req.ExternalPath != "" {
		req.ExternalPath, err = filepath.Abs(req.ExternalPath)
		if err != nil {
			return IngestResult{}, fault.FileSystem("resolve external path", err)
		}
		key, size, err = i.storage.HashFile(ctx, req.ExternalPath)
		if err != nil {
			return IngestResult{}, err
		}
	} else {
		if req.Reader == nil {
			return IngestResult{}, fmt.Errorf("ingest %s: reader is required", req.Name)
		}
		staged, err = i.storage.Stage(ctx, req.Reader)
		if err != nil {
			return IngestResult{}, err
		}
		defer staged.Discard()
		key, size = staged.Key, staged.Size
	}
	if req.SizeHint > 0 && size != req.SizeHint {
		return IngestResult{}, fault.FileSystem("ingest "+req.Name, fmt.Errorf("read %d bytes, expected %d", size, req.SizeHint))
	}

	v, err, shared := i.flight.Do(req.UserID+"/"+key, func() (any, error) {
		return i.store(ctx, req, key, size, staged)
	})
	if err != nil {
		return IngestResult{}, err
	}
	result := v.(IngestResult)
	if shared && !result.Deduplicated {
		// Another caller created the model for this content.
		result.Deduplicated = true
	}
	return result, nil
}

func (i *Ingestor) store(ctx context.Context, req IngestRequest, key string, size int64, staged *Staged) (IngestResult, error) {
	existing, err := i.catalog.GetModelByContentKey(ctx, req.UserID, key)
	if err != nil {
		return IngestResult{}, fault.Database("find model by content", err)
	}
	if existing != nil {
		i.logger.Debug("content already imported", "name", req.Name, "model_id", existing.ID, "content_key", key)
		return IngestResult{ModelID: existing.ID, BlobID: existing.BlobID, ContentKey: key, Deduplicated: true, BlobReused: true}, nil
	}

	blob, err := i.catalog.GetBlobByContentKey(ctx, key)
	if err != nil {
		return IngestResult{}, fault.Database("find blob", err)
	}
	reused := blob != nil
	if blob == nil {
		candidate := &models.Blob{ContentKey: key, Filetype: req.Extension, SizeBytes: size}
		if req.ExternalPath != "" {
			candidate.DiskPath = req.ExternalPath
		} else {
			candidate.Filetype, err = i.storage.Commit(ctx, staged, req.Extension)
			if err != nil {
				return IngestResult{}, err
			}
		}
		blob, err = i.catalog.UpsertBlob(ctx, candidate)
		if err != nil {
			return IngestResult{}, fault.Database("insert blob", err)
		}
	}

	model := &models.Model{
		UserID: req.UserID,
		Name:   req.Name,
		BlobID: blob.ID,
		Link:   req.Link,
	}
	if err := i.catalog.CreateModel(ctx, model); err != nil {
		return IngestResult{}, fault.Database("insert model", err)
	}
	i.logger.Debug("model ingested", "name", req.Name, "model_id", model.ID, "blob_id", blob.ID, "blob_reused", reused)
	return IngestResult{ModelID: model.ID, BlobID: blob.ID, ContentKey: key, BlobReused: reused}, nil
}
