package ingest

import (
	"context"

	"meshvault/internal/fault"
	"meshvault/internal/models"
	"meshvault/internal/store"
)

// GCOptions controls CollectGarbage.
type GCOptions struct {
	Limit  int
	DryRun bool
	// Collected runs after a blob's row and payload are gone.
	Collected func(models.Blob)
}

// GCResult reports one CollectGarbage run.
type GCResult struct {
	Removed int           `json:"removed"`
	Skipped int           `json:"skipped"`
	Bytes   int64         `json:"bytes"`
	DryRun  bool          `json:"dry_run"`
	Blobs   []models.Blob `json:"blobs"`
}

// CollectGarbage deletes blobs that no model references. It holds the import
// lock for the whole run, so no import can reuse a blob while it is collected.
func (c *Coordinator) CollectGarbage(ctx context.Context, opts GCOptions) (GCResult, error) {
	unlock, err := c.acquire(ctx)
	if err != nil {
		return GCResult{DryRun: opts.DryRun, Blobs: []models.Blob{}}, err
	}
	defer unlock()

	blobs, err := c.catalog.ListUnreferencedBlobs(ctx, opts.Limit)
	if err != nil {
		return GCResult{DryRun: opts.DryRun, Blobs: []models.Blob{}}, fault.Database("list unreferenced blobs", err)
	}
	return c.collect(ctx, blobs, opts)
}

// collect removes the row first. The foreign key on models refuses the delete
// when a model took the blob back, and the payload is then left untouched.
func (c *Coordinator) collect(ctx context.Context, blobs []models.Blob, opts GCOptions) (GCResult, error) {
	result := GCResult{DryRun: opts.DryRun, Blobs: []models.Blob{}}
	for _, blob := range blobs {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if !opts.DryRun {
			if err := c.catalog.DeleteBlob(ctx, blob.ID); err != nil {
				if store.IsForeignKeyConstraint(err) {
					c.logger.Warn("blob is referenced again, keeping it", "blob_id", blob.ID, "content_key", blob.ContentKey)
					result.Skipped++
					continue
				}
				return result, fault.Database("delete blob "+blob.ID, err)
			}
			if err := c.storage.Delete(ctx, blob); err != nil {
				return result, err
			}
			if opts.Collected != nil {
				opts.Collected(blob)
			}
			c.logger.Debug("blob collected", "blob_id", blob.ID, "content_key", blob.ContentKey)
		}
		result.Removed++
		result.Bytes += blob.SizeBytes
		result.Blobs = append(result.Blobs, blob)
	}
	return result, nil
}
