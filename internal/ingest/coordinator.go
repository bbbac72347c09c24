// Package ingest runs top-level imports: it enumerates a path, stores every
// file through the blob store, then labels and groups the new models.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/panjf2000/ants/v2"

	"meshvault/internal/blobstore"
	"meshvault/internal/config"
	"meshvault/internal/fault"
	"meshvault/internal/importstate"
	"meshvault/internal/models"
	"meshvault/internal/source"
	"meshvault/internal/store"
)

const defaultLockRetry = 100 * time.Millisecond

var (
	// ErrCatalogRequired is returned when no catalog is supplied.
	ErrCatalogRequired = errors.New("coordinator requires a catalog")
	// ErrStorageRequired is returned when no blob storage is supplied.
	ErrStorageRequired = errors.New("coordinator requires blob storage")
)

// Catalog is the store surface the coordinator needs.
type Catalog interface {
	blobstore.Catalog
	ListModelsByIDs(ctx context.Context, ids []string) ([]models.Model, error)
	KeywordIndex(ctx context.Context, userID string) (map[string][]string, error)
	AttachLabels(ctx context.Context, modelID string, labelIDs []string) (int, error)
	CreateGroupWithModels(ctx context.Context, group *models.Group, modelIDs []string) error
	ListUnreferencedBlobs(ctx context.Context, limit int) ([]models.Blob, error)
	DeleteBlob(ctx context.Context, id string) error
}

var _ Catalog = (*store.Store)(nil)

// Options are the per-call import flags.
type Options struct {
	UserID            string
	Recursive         bool
	DeleteAfterImport bool
	ImportAsPath      bool
	Link              string
	Observer          importstate.Observer
}

// Coordinator serializes imports and drives each one to completion or failure.
type Coordinator struct {
	catalog   Catalog
	storage   blobstore.Storage
	ingestor  *blobstore.Ingestor
	policy    source.ExtensionPolicy
	workers   int
	lock      *flock.Flock
	lockRetry time.Duration
	logger    *slog.Logger

	// mu serializes imports inside the process; lock does the same across processes.
	mu sync.Mutex
}

// Option configures a Coordinator.
type Option func(*Coordinator) error

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
		return nil
	}
}

// WithWorkers overrides the fan-out pool size.
func WithWorkers(size int) Option {
	return func(c *Coordinator) error {
		if size < 1 {
			return fmt.Errorf("workers must be >= 1")
		}
		c.workers = size
		return nil
	}
}

// WithLockRetry sets how often a blocked import retries the lock file.
func WithLockRetry(d time.Duration) Option {
	return func(c *Coordinator) error {
		if d <= 0 {
			return fmt.Errorf("lock retry must be > 0")
		}
		c.lockRetry = d
		return nil
	}
}

// NewCoordinator builds a coordinator from configuration, the catalog and blob storage.
func NewCoordinator(cfg *config.Config, catalog Catalog, storage blobstore.Storage, opts ...Option) (*Coordinator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if catalog == nil {
		return nil, ErrCatalogRequired
	}
	if storage == nil {
		return nil, ErrStorageRequired
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fault.FileSystem("create data dir", err)
	}

	c := &Coordinator{
		catalog:   catalog,
		storage:   storage,
		policy:    source.PolicyFromConfig(cfg.Import),
		workers:   cfg.ImportWorkers(),
		lock:      flock.New(cfg.ImportLockPath()),
		lockRetry: defaultLockRetry,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	ingestor, err := blobstore.NewIngestor(storage, catalog, blobstore.WithLogger(c.logger))
	if err != nil {
		return nil, err
	}
	c.ingestor = ingestor
	return c, nil
}

// Import ingests path and returns the final state. On error the state is in
// StatusFailure and carries the reason; models already stored stay stored.
func (c *Coordinator) Import(ctx context.Context, path string, opts Options) (*importstate.State, error) {
	if opts.UserID == "" {
		opts.UserID = models.LocalUserID
	}
	state := importstate.New(importstate.Options{
		UserID:            opts.UserID,
		Recursive:         opts.Recursive,
		DeleteAfterImport: opts.DeleteAfterImport,
		ImportAsPath:      opts.ImportAsPath,
	}, opts.Observer)

	fail := func(err error) (*importstate.State, error) {
		state.Fail(err.Error())
		c.logger.Error("import failed", "path", path, "kind", string(fault.KindOf(err)), "error", err)
		return state, err
	}

	if err := source.CheckOptions(path, toSourceOptions(opts)); err != nil {
		return fail(err)
	}

	unlock, err := c.acquire(ctx)
	if err != nil {
		return fail(err)
	}
	defer unlock()

	plan, err := source.Classify(path, toSourceOptions(opts), c.policy)
	if err != nil {
		return fail(err)
	}
	defer plan.Close()

	if err := state.SetStatus(importstate.StatusProcessingModels); err != nil {
		return fail(err)
	}
	state.SetTotal(plan.Total)
	c.logger.Info("import started", "path", plan.Root, "kind", plan.Kind.String(), "files", plan.Total, "batches", len(plan.Batches))

	// A deduplicated model belongs to the first set that produced it.
	claimed := map[string]struct{}{}

	switch plan.Kind {
	case source.KindDirectory:
		pool, err := ants.NewPool(c.workers)
		if err != nil {
			return fail(err)
		}
		defer pool.Release()
		for _, batch := range plan.Batches {
			if err := c.runParallel(ctx, pool, batch, opts, state, claimed); err != nil {
				return fail(err)
			}
		}
	default:
		for _, batch := range plan.Batches {
			if err := c.runSequential(ctx, batch, opts, state, claimed); err != nil {
				return fail(err)
			}
		}
		if plan.Kind == source.KindZip && opts.DeleteAfterImport {
			if err := plan.Close(); err != nil {
				return fail(fault.Archive("close archive", err))
			}
			if err := os.Remove(plan.Root); err != nil {
				return fail(fault.FileSystem("delete source", err))
			}
		}
	}

	labeled, err := c.applyKeywords(ctx, opts.UserID, state)
	if err != nil {
		return fail(err)
	}
	groups, err := c.materializeGroups(ctx, opts.UserID, state)
	if err != nil {
		return fail(err)
	}
	if err := state.SetStatus(importstate.StatusFinishedModels); err != nil {
		return fail(err)
	}

	snap := state.Snapshot()
	c.logger.Info("import finished", "path", plan.Root, "models", snap.ModelsFinished, "groups", groups, "labels_attached", labeled)
	return state, nil
}

// acquire takes the in-process mutex and then the lock file.
func (c *Coordinator) acquire(ctx context.Context) (func(), error) {
	c.mu.Lock()
	ok, err := c.lock.TryLockContext(ctx, c.lockRetry)
	if err != nil || !ok {
		c.mu.Unlock()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if err == nil {
			err = fmt.Errorf("lock %s is held", c.lock.Path())
		}
		return nil, fault.FileSystem("acquire import lock", err)
	}
	return func() {
		if err := c.lock.Unlock(); err != nil {
			c.logger.Warn("failed to release import lock", "path", c.lock.Path(), "error", err)
		}
		c.mu.Unlock()
	}, nil
}

func toSourceOptions(opts Options) source.Options {
	return source.Options{
		Recursive:         opts.Recursive,
		DeleteAfterImport: opts.DeleteAfterImport,
		ImportAsPath:      opts.ImportAsPath,
	}
}
