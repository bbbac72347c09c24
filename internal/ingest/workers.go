package ingest

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/panjf2000/ants/v2"

	"meshvault/internal/blobstore"
	"meshvault/internal/fault"
	"meshvault/internal/importstate"
	"meshvault/internal/source"
)

type fileResult struct {
	path    string
	modelID string
	err     error
}

// runParallel ingests one batch on the pool. Workers only send results;
// this goroutine is the only one that touches the batch's model set.
// The first error stops further submissions.
func (c *Coordinator) runParallel(ctx context.Context, pool *ants.Pool, batch source.Batch, opts Options, state *importstate.State, claimed map[string]struct{}) error {
	set := state.StartSet(batch.Name)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan fileResult)
	go func() {
		var wg sync.WaitGroup
		defer func() {
			wg.Wait()
			close(results)
		}()
		for _, file := range batch.Files {
			if ctx.Err() != nil {
				return
			}
			wg.Add(1)
			err := pool.Submit(func() {
				defer wg.Done()
				results <- c.ingestFile(ctx, file, opts)
			})
			if err != nil {
				wg.Done()
				results <- fileResult{path: file.Path, err: fmt.Errorf("submit %s: %w", file.Path, err)}
				return
			}
		}
	}()

	agg := newSetAggregator(state, set, claimed)
	var firstErr error
	for res := range results {
		if res.err != nil {
			if firstErr == nil {
				firstErr = res.err
				cancel()
			}
			continue
		}
		agg.add(res.modelID)
	}
	return firstErr
}

// runSequential ingests files one at a time, in order. Archive entries must be read this way.
func (c *Coordinator) runSequential(ctx context.Context, batch source.Batch, opts Options, state *importstate.State, claimed map[string]struct{}) error {
	agg := newSetAggregator(state, state.StartSet(batch.Name), claimed)
	for _, file := range batch.Files {
		res := c.ingestFile(ctx, file, opts)
		if res.err != nil {
			return res.err
		}
		agg.add(res.modelID)
	}
	return nil
}

// ingestFile stores one file and, if requested, deletes the loose source afterwards.
func (c *Coordinator) ingestFile(ctx context.Context, file source.File, opts Options) (res fileResult) {
	res.path = file.Path
	defer func() {
		if r := recover(); r != nil {
			res.err = fmt.Errorf("ingest %s: panic: %v", file.Path, r)
		}
	}()
	if err := ctx.Err(); err != nil {
		res.err = err
		return res
	}

	req := blobstore.IngestRequest{
		UserID:    opts.UserID,
		Name:      file.Name,
		Extension: file.Extension,
		SizeHint:  file.Size,
		Link:      opts.Link,
	}
	if opts.ImportAsPath && !file.InArchive() {
		req.ExternalPath = file.Path
	} else {
		rc, err := file.Open()
		if err != nil {
			res.err = fmt.Errorf("%s: %w", file.Path, err)
			return res
		}
		defer closeQuietly(rc)
		req.Reader = rc
	}

	out, err := c.ingestor.Ingest(ctx, req)
	if err != nil {
		res.err = fmt.Errorf("%s: %w", file.Path, err)
		return res
	}
	res.modelID = out.ModelID
	if out.Deduplicated {
		c.logger.Info("duplicate content", "path", file.Path, "model_id", out.ModelID)
	}

	if opts.DeleteAfterImport && !file.InArchive() {
		if err := os.Remove(file.Path); err != nil {
			res.err = fault.FileSystem("delete source", err)
			return res
		}
	}
	return res
}

// setAggregator appends ingested models to one model set. claimed is shared by
// every set of one import, so a deduplicated model lands in one set only.
type setAggregator struct {
	state   *importstate.State
	set     int
	claimed map[string]struct{}
}

func newSetAggregator(state *importstate.State, set int, claimed map[string]struct{}) *setAggregator {
	return &setAggregator{state: state, set: set, claimed: claimed}
}

func (a *setAggregator) add(modelID string) {
	if _, ok := a.claimed[modelID]; !ok {
		a.claimed[modelID] = struct{}{}
		_ = a.state.AddToSet(a.set, modelID)
	}
	a.state.ModelDone()
}

func closeQuietly(c io.Closer) {
	_ = c.Close()
}
