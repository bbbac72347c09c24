// Package thumbnail renders preview images for stored blobs on a bounded pool.
package thumbnail

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/panjf2000/ants/v2"

	"meshvault/internal/blobstore"
	"meshvault/internal/config"
	"meshvault/internal/importstate"
	"meshvault/internal/models"
)

// Summary counts the outcome of one RenderAll call.
type Summary struct {
	Requested int `json:"requested"`
	Skipped   int `json:"skipped"`
	Rendered  int `json:"rendered"`
	Embedded  int `json:"embedded"`
	Failed    int `json:"failed"`
}

// Pool renders thumbnails with bounded concurrency.
type Pool struct {
	dir              string
	parallelism      int
	preferEmbedded   bool
	fallbackEmbedded bool
	width            int
	height           int
	rotation         [3]float64
	background       string

	storage  blobstore.Storage
	renderer Renderer
	logger   *slog.Logger
}

// Option configures a Pool.
type Option func(*Pool) error

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pool) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// WithParallelism overrides the configured pool size.
func WithParallelism(size int) Option {
	return func(p *Pool) error {
		if size < 1 {
			return fmt.Errorf("parallelism must be >= 1")
		}
		p.parallelism = size
		return nil
	}
}

// NewPool builds a pool from the thumbnail configuration. renderer may be nil,
// in which case only embedded thumbnails can be produced.
func NewPool(cfg *config.Config, storage blobstore.Storage, renderer Renderer, opts ...Option) (*Pool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if storage == nil {
		return nil, fmt.Errorf("thumbnail pool requires blob storage")
	}
	p := &Pool{
		dir:              cfg.ThumbnailDir(),
		parallelism:      max(cfg.Thumbnails.Parallelism, 1),
		preferEmbedded:   cfg.Thumbnails.PreferEmbedded,
		fallbackEmbedded: cfg.Thumbnails.FallbackEmbedded,
		width:            cfg.Thumbnails.Width,
		height:           cfg.Thumbnails.Height,
		background:       cfg.Thumbnails.Background,
		storage:          storage,
		renderer:         renderer,
		logger:           slog.Default(),
	}
	copy(p.rotation[:], cfg.Thumbnails.Rotation)
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Path returns where the thumbnail for blob is written.
func (p *Pool) Path(blob models.Blob) string {
	return filepath.Join(p.dir, blob.ContentKey+".png")
}

// Exists reports whether blob already has a thumbnail.
func (p *Pool) Exists(blob models.Blob) bool {
	info, err := os.Stat(p.Path(blob))
	return err == nil && info.Size() > 0
}

// Remove deletes the thumbnail for blob. A missing thumbnail is not an error.
func (p *Pool) Remove(blob models.Blob) error {
	if err := os.Remove(p.Path(blob)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// RenderAll renders thumbnails for blobs that lack one, or for all blobs when
// overwrite is set. Per-blob failures are logged and counted, never returned.
// Each finished task is reported to state when it is non-nil.
func (p *Pool) RenderAll(ctx context.Context, blobs []models.Blob, overwrite bool, state *importstate.State) (Summary, error) {
	summary := Summary{Requested: len(blobs)}
	todo := make([]models.Blob, 0, len(blobs))
	seen := map[string]struct{}{}
	for _, blob := range blobs {
		if _, dup := seen[blob.ContentKey]; dup {
			summary.Skipped++
			continue
		}
		seen[blob.ContentKey] = struct{}{}
		if !overwrite && p.Exists(blob) {
			summary.Skipped++
			continue
		}
		todo = append(todo, blob)
	}
	if state != nil {
		state.SetThumbnailTotal(len(todo))
	}
	if len(todo) == 0 {
		return summary, nil
	}
	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return summary, fmt.Errorf("create thumbnail dir: %w", err)
	}

	pool, err := ants.NewPool(p.parallelism)
	if err != nil {
		return summary, err
	}
	defer pool.Release()

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	record := func(outcome taskOutcome) {
		mu.Lock()
		switch outcome {
		case outcomeRendered:
			summary.Rendered++
		case outcomeEmbedded:
			summary.Embedded++
		default:
			summary.Failed++
		}
		mu.Unlock()
		if state != nil {
			state.ThumbnailDone()
		}
	}

	for _, blob := range todo {
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			record(p.runTask(ctx, blob))
		})
		if err != nil {
			wg.Done()
			p.logger.Error("thumbnail task not submitted", "content_key", blob.ContentKey, "error", err)
			record(outcomeFailed)
		}
	}
	wg.Wait()

	p.logger.Info("thumbnails finished", "rendered", summary.Rendered, "embedded", summary.Embedded, "failed", summary.Failed, "skipped", summary.Skipped)
	return summary, nil
}

type taskOutcome int

const (
	outcomeFailed taskOutcome = iota
	outcomeRendered
	outcomeEmbedded
)

// runTask produces one thumbnail. It never panics or returns an error.
func (p *Pool) runTask(ctx context.Context, blob models.Blob) (outcome taskOutcome) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("thumbnail task panicked", "content_key", blob.ContentKey, "panic", fmt.Sprint(r))
			outcome = outcomeFailed
		}
	}()
	if err := ctx.Err(); err != nil {
		return outcomeFailed
	}

	ext := blob.Extension()
	embedded := HasEmbedded(ext)
	triedEmbedded := false

	if p.preferEmbedded && embedded {
		triedEmbedded = true
		err := p.writeEmbedded(ctx, blob)
		if err == nil {
			return outcomeEmbedded
		}
		p.logger.Debug("embedded thumbnail unavailable", "content_key", blob.ContentKey, "error", err)
	}

	renderErr := p.render(ctx, blob)
	if renderErr == nil {
		return outcomeRendered
	}

	if p.fallbackEmbedded && embedded && !triedEmbedded {
		if err := p.writeEmbedded(ctx, blob); err == nil {
			return outcomeEmbedded
		}
	}
	p.logger.Warn("thumbnail failed", "content_key", blob.ContentKey, "filetype", blob.Filetype, "error", renderErr)
	return outcomeFailed
}

func (p *Pool) render(ctx context.Context, blob models.Blob) error {
	if p.renderer == nil {
		return ErrNoRenderer
	}
	input, cleanup, err := p.materialize(ctx, blob)
	if err != nil {
		return err
	}
	defer cleanup()

	tmp, err := p.tempOutput()
	if err != nil {
		return err
	}
	defer os.Remove(tmp)

	err = p.renderer.Render(ctx, RenderRequest{
		Input:      input,
		Output:     tmp,
		Extension:  blob.Extension(),
		Width:      p.width,
		Height:     p.height,
		Rotation:   p.rotation,
		Background: p.background,
	})
	if err != nil {
		return err
	}
	info, err := os.Stat(tmp)
	if err != nil || info.Size() == 0 {
		return fmt.Errorf("renderer produced no image for %s", blob.ContentKey)
	}
	return os.Rename(tmp, p.Path(blob))
}

// materialize returns a readable file with the blob's original bytes.
// Zip-wrapped blobs are unpacked to a temporary file.
func (p *Pool) materialize(ctx context.Context, blob models.Blob) (string, func(), error) {
	noop := func() {}
	if blob.External() || !blob.Wrapped() {
		path, err := p.storage.Path(blob)
		return path, noop, err
	}

	rc, err := p.storage.Open(ctx, blob)
	if err != nil {
		return "", noop, err
	}
	defer rc.Close()

	tmp, err := os.CreateTemp("", "meshvault-render-*."+blob.Extension())
	if err != nil {
		return "", noop, err
	}
	path := tmp.Name()
	cleanup := func() { _ = os.Remove(path) }
	_, err = io.Copy(tmp, rc)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		cleanup()
		return "", noop, err
	}
	return path, cleanup, nil
}

func (p *Pool) writeEmbedded(ctx context.Context, blob models.Blob) error {
	rc, err := p.storage.Open(ctx, blob)
	if err != nil {
		return err
	}
	image, err := ExtractEmbedded(blob.Extension(), rc)
	_ = rc.Close()
	if err != nil {
		return err
	}

	tmp, err := p.tempOutput()
	if err != nil {
		return err
	}
	if err := os.WriteFile(tmp, image, 0o644); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, p.Path(blob)); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

func (p *Pool) tempOutput() (string, error) {
	f, err := os.CreateTemp(p.dir, ".render-*.png")
	if err != nil {
		return "", err
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		_ = os.Remove(name)
		return "", err
	}
	return name, nil
}

// RenderImported runs the thumbnail phase of an import: it moves state
// through ProcessingThumbnails and FinishedThumbnails to Finished.
func RenderImported(ctx context.Context, pool *Pool, state *importstate.State, blobs []models.Blob) (Summary, error) {
	if err := state.SetStatus(importstate.StatusProcessingThumbnails); err != nil {
		return Summary{}, err
	}
	summary, err := pool.RenderAll(ctx, blobs, false, state)
	if err != nil {
		state.Fail(err.Error())
		return summary, err
	}
	if err := state.SetStatus(importstate.StatusFinishedThumbnails); err != nil {
		return summary, err
	}
	if err := state.SetStatus(importstate.StatusFinished); err != nil {
		return summary, err
	}
	return summary, nil
}
