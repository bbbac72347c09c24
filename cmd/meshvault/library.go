package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"meshvault/internal/blobstore"
	"meshvault/internal/config"
	"meshvault/internal/models"
	"meshvault/internal/store"
	"meshvault/internal/thumbnail"
)

const localUserName = "local"

// library bundles the catalog, blob storage and acting user for one command.
type library struct {
	cfg   *config.Config
	store *store.Store
	cas   *blobstore.LocalCAS
	user  *models.User
}

func withLibrary(ctx context.Context, cfg *config.Config, flags *globalFlags, fn func(*library) error) error {
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open library: %w", err)
	}
	defer st.Close()

	cas, err := blobstore.NewLocalCAS(cfg.BlobDir(), blobstore.WithShortKeys(cfg.Import.ShortContentKeys))
	if err != nil {
		return err
	}

	name := strings.TrimSpace(flags.user)
	if name == "" {
		name = localUserName
	}
	user, err := st.EnsureUser(ctx, name)
	if err != nil {
		return fmt.Errorf("resolve user %q: %w", name, err)
	}

	return fn(&library{cfg: cfg, store: st, cas: cas, user: user})
}

func (l *library) thumbnailPool() (*thumbnail.Pool, error) {
	var renderer thumbnail.Renderer
	if binary := strings.TrimSpace(l.cfg.Thumbnails.Renderer); binary != "" {
		renderer = thumbnail.ExecRenderer{Binary: binary}
	}
	return thumbnail.NewPool(l.cfg, l.cas, renderer, thumbnail.WithLogger(slog.Default().With("component", "thumbnails")))
}

func (l *library) labelByName(ctx context.Context, name string) (*models.Label, error) {
	label, err := l.store.GetLabelByName(ctx, l.user.ID, strings.TrimSpace(name))
	if err != nil {
		return nil, fmt.Errorf("label %q: %w", name, err)
	}
	if label == nil {
		return nil, fmt.Errorf("label %q: %w", name, store.ErrNotFound)
	}
	return label, nil
}
