package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meshvault/internal/blobstore"
	"meshvault/internal/config"
	"meshvault/internal/fault"
	"meshvault/internal/importstate"
	"meshvault/internal/models"
	"meshvault/internal/store"
)

type harness struct {
	cfg   *config.Config
	store *store.Store
	cas   *blobstore.LocalCAS
	coord *Coordinator
}

func newHarness(t *testing.T, wrap func(*store.Store) Catalog, opts ...Option) *harness {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.DBPath = filepath.Join(cfg.DataDir, config.DefaultDBFileName)
	cfg.Import.Parallelism = 2

	st, err := store.Open(cfg.DBPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	cas, err := blobstore.NewLocalCAS(cfg.BlobDir())
	require.NoError(t, err)

	var catalog Catalog = st
	if wrap != nil {
		catalog = wrap(st)
	}
	coord, err := NewCoordinator(&cfg, catalog, cas, opts...)
	require.NoError(t, err)
	return &harness{cfg: &cfg, store: st, cas: cas, coord: coord}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func groupMembers(t *testing.T, h *harness) map[string][]string {
	t.Helper()
	ctx := context.Background()
	groups, err := h.store.ListGroups(ctx, models.LocalUserID)
	require.NoError(t, err)
	out := map[string][]string{}
	for _, group := range groups {
		list, err := h.store.ListModels(ctx, store.ModelFilter{GroupID: group.ID})
		require.NoError(t, err)
		names := []string{}
		for _, model := range list {
			names = append(names, model.Name)
		}
		sort.Strings(names)
		out[group.Name] = names
	}
	return out
}

func TestImportSameContentReturnsSameModel(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "cube.stl"), "solid cube")
	writeFile(t, filepath.Join(dir, "copy", "cube-again.stl"), "solid cube")

	first, err := h.coord.Import(ctx, filepath.Join(dir, "cube.stl"), Options{})
	require.NoError(t, err)
	second, err := h.coord.Import(ctx, filepath.Join(dir, "copy", "cube-again.stl"), Options{})
	require.NoError(t, err)

	require.Len(t, first.ModelIDs(), 1)
	assert.Equal(t, first.ModelIDs(), second.ModelIDs())

	info, err := h.store.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, info.Models)
	assert.Equal(t, 1, info.Blobs)
}

func TestImportSingleFileCreatesNoGroup(t *testing.T) {
	h := newHarness(t, nil)
	path := filepath.Join(t.TempDir(), "lonely.obj")
	writeFile(t, path, "v 0 0 0")

	state, err := h.coord.Import(context.Background(), path, Options{})
	require.NoError(t, err)

	snap := state.Snapshot()
	assert.Equal(t, importstate.StatusFinishedModels, snap.Status)
	assert.Equal(t, 1, snap.ModelsTotal)
	assert.Equal(t, 1, snap.ModelsFinished)
	assert.Empty(t, groupMembers(t, h))
}

func TestImportRecursiveGroupsPerDirectory(t *testing.T) {
	h := newHarness(t, nil)
	root := filepath.Join(t.TempDir(), "collection")
	writeFile(t, filepath.Join(root, "root-piece.stl"), "root")
	writeFile(t, filepath.Join(root, "boats", "benchy.stl"), "benchy")
	writeFile(t, filepath.Join(root, "boats", "hull.3mf"), "hull")
	writeFile(t, filepath.Join(root, "boats", "sails", "jib.obj"), "jib")
	writeFile(t, filepath.Join(root, "empty", "notes.txt"), "nothing")

	state, err := h.coord.Import(context.Background(), root, Options{Recursive: true})
	require.NoError(t, err)

	snap := state.Snapshot()
	assert.Equal(t, 4, snap.ModelsTotal)
	assert.Equal(t, 4, snap.ModelsFinished)
	names := []string{}
	for _, set := range snap.Sets {
		names = append(names, set.Name)
		assert.NotEmpty(t, set.GroupID)
	}
	assert.Equal(t, []string{"Sails", "Boats", "Collection"}, names)

	assert.Equal(t, map[string][]string{
		"Sails":      {"jib"},
		"Boats":      {"benchy", "hull"},
		"Collection": {"root-piece"},
	}, groupMembers(t, h))
}

func TestImportRecursiveDuplicateJoinsFirstSetOnly(t *testing.T) {
	h := newHarness(t, nil)
	root := filepath.Join(t.TempDir(), "kit")
	writeFile(t, filepath.Join(root, "alpha", "part.stl"), "solid part")
	writeFile(t, filepath.Join(root, "beta", "part.stl"), "solid part")

	state, err := h.coord.Import(context.Background(), root, Options{Recursive: true})
	require.NoError(t, err)

	snap := state.Snapshot()
	assert.Equal(t, 2, snap.ModelsTotal)
	assert.Equal(t, 2, snap.ModelsFinished)
	require.Len(t, snap.Sets, 2)
	assert.Equal(t, "Alpha", snap.Sets[0].Name)
	assert.Len(t, snap.Sets[0].ModelIDs, 1)
	assert.NotEmpty(t, snap.Sets[0].GroupID)
	assert.Equal(t, "Beta", snap.Sets[1].Name)
	assert.Empty(t, snap.Sets[1].ModelIDs)
	assert.Empty(t, snap.Sets[1].GroupID)

	assert.Equal(t, map[string][]string{"Alpha": {"part"}}, groupMembers(t, h))
}

func TestImportDirectoryParallelCompletes(t *testing.T) {
	h := newHarness(t, nil)
	root := filepath.Join(t.TempDir(), "bulk")
	for i := 0; i < 25; i++ {
		writeFile(t, filepath.Join(root, "part"+string(rune('a'+i))+".stl"), "content "+string(rune('a'+i)))
	}

	state, err := h.coord.Import(context.Background(), root, Options{})
	require.NoError(t, err)

	snap := state.Snapshot()
	require.Len(t, snap.Sets, 1)
	assert.Len(t, snap.Sets[0].ModelIDs, 25)
	assert.Equal(t, 25, snap.ModelsFinished)
	assert.Len(t, groupMembers(t, h)["Bulk"], 25)
}

func TestImportKeywordLabelsWithoutDuplicates(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	creatures := &models.Label{Name: "Creatures"}
	require.NoError(t, h.store.CreateLabel(ctx, creatures))
	dragons := &models.Label{Name: "Dragons", ParentID: creatures.ID, Keywords: []string{"dragon"}}
	require.NoError(t, h.store.CreateLabel(ctx, dragons))

	path := filepath.Join(t.TempDir(), "red-dragon-head.stl")
	writeFile(t, path, "scales")

	state, err := h.coord.Import(ctx, path, Options{})
	require.NoError(t, err)
	modelID := state.ModelIDs()[0]

	again, err := h.coord.Import(ctx, path, Options{})
	require.NoError(t, err)
	assert.Equal(t, modelID, again.ModelIDs()[0])

	model, err := h.store.GetModel(ctx, modelID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{dragons.ID, creatures.ID}, model.Labels)
}

func TestImportKeywordMatchesGroupName(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	boats := &models.Label{Name: "Boats", Keywords: []string{"boats"}}
	require.NoError(t, h.store.CreateLabel(ctx, boats))

	root := filepath.Join(t.TempDir(), "boats")
	writeFile(t, filepath.Join(root, "benchy.stl"), "benchy")

	state, err := h.coord.Import(ctx, root, Options{})
	require.NoError(t, err)

	model, err := h.store.GetModel(ctx, state.ModelIDs()[0])
	require.NoError(t, err)
	assert.Equal(t, []string{boats.ID}, model.Labels)
}

func TestImportZipAsPathIsRejectedBeforeIO(t *testing.T) {
	h := newHarness(t, nil)
	rec := &statusRecorder{}

	state, err := h.coord.Import(context.Background(), "/nonexistent/archive.zip", Options{ImportAsPath: true, Observer: rec})
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.KindConflictingOptions), "got %v", err)
	assert.Equal(t, importstate.StatusFailure, state.Status())
	assert.Equal(t, []importstate.Status{importstate.StatusFailure}, rec.statuses())

	_, statErr := os.Stat(h.cfg.ImportLockPath())
	assert.True(t, errors.Is(statErr, os.ErrNotExist), "lock file must not be touched")
}

func TestImportAsPathWithDeleteIsRejected(t *testing.T) {
	h := newHarness(t, nil)
	path := filepath.Join(t.TempDir(), "keep.stl")
	writeFile(t, path, "keep")

	_, err := h.coord.Import(context.Background(), path, Options{ImportAsPath: true, DeleteAfterImport: true})
	assert.True(t, fault.IsKind(err, fault.KindConflictingOptions), "got %v", err)
	_, statErr := os.Stat(path)
	assert.NoError(t, statErr)
}

func TestImportZipArchive(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "dragon_kit.zip")
	payload := bytes.Repeat([]byte("facet normal 0 0 1\n"), 32)

	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for _, name := range []string{"wing.stl", "license.txt", "body.3mf"} {
		w, err := zw.Create(name)
		require.NoError(t, err)
		content := []byte("content of " + name)
		if name == "wing.stl" {
			content = payload
		}
		_, err = w.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	state, err := h.coord.Import(ctx, path, Options{DeleteAfterImport: true})
	require.NoError(t, err)

	snap := state.Snapshot()
	assert.Equal(t, 2, snap.ModelsTotal)
	require.Len(t, snap.Sets, 1)
	assert.Equal(t, "Dragon Kit", snap.Sets[0].Name)
	assert.Equal(t, map[string][]string{"Dragon Kit": {"body", "wing"}}, groupMembers(t, h))

	_, statErr := os.Stat(path)
	assert.True(t, errors.Is(statErr, os.ErrNotExist), "archive should be deleted")

	list, err := h.store.ListModels(ctx, store.ModelFilter{})
	require.NoError(t, err)
	for _, model := range list {
		if model.Name != "wing" {
			continue
		}
		require.NotNil(t, model.Blob)
		assert.Equal(t, "stl.zip", model.Blob.Filetype)
		rc, err := h.cas.Open(ctx, *model.Blob)
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		assert.Equal(t, payload, data)
	}
}

func TestImportDeleteAfterImportRemovesLooseFiles(t *testing.T) {
	h := newHarness(t, nil)
	root := filepath.Join(t.TempDir(), "inbox")
	writeFile(t, filepath.Join(root, "a.stl"), "a")
	writeFile(t, filepath.Join(root, "b.stl"), "b")
	writeFile(t, filepath.Join(root, "keep.txt"), "unsupported")

	_, err := h.coord.Import(context.Background(), root, Options{DeleteAfterImport: true})
	require.NoError(t, err)

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "keep.txt", entries[0].Name())
}

func TestImportAsPathKeepsFileInPlace(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "huge.stl")
	writeFile(t, path, "huge")

	state, err := h.coord.Import(ctx, path, Options{ImportAsPath: true})
	require.NoError(t, err)

	model, err := h.store.GetModel(ctx, state.ModelIDs()[0])
	require.NoError(t, err)
	require.NotNil(t, model.Blob)
	assert.Equal(t, path, model.Blob.DiskPath)
	assert.Equal(t, "stl", model.Blob.Filetype)
}

func TestImportUnsupportedFileFails(t *testing.T) {
	h := newHarness(t, nil)
	path := filepath.Join(t.TempDir(), "photo.png")
	writeFile(t, path, "png")

	state, err := h.coord.Import(context.Background(), path, Options{})
	assert.True(t, fault.IsKind(err, fault.KindUnsupportedFileType), "got %v", err)
	snap := state.Snapshot()
	assert.Equal(t, importstate.StatusFailure, snap.Status)
	assert.NotEmpty(t, snap.Failure)
}

type failingCatalog struct {
	*store.Store
	failName string
}

func (f failingCatalog) CreateModel(ctx context.Context, model *models.Model) error {
	if model.Name == f.failName {
		return errors.New("constraint failed")
	}
	return f.Store.CreateModel(ctx, model)
}

func TestImportBatchErrorFailsState(t *testing.T) {
	h := newHarness(t, func(st *store.Store) Catalog { return failingCatalog{Store: st, failName: "bad"} })
	root := filepath.Join(t.TempDir(), "mixed")
	writeFile(t, filepath.Join(root, "bad.stl"), "bad")
	writeFile(t, filepath.Join(root, "good.stl"), "good")

	state, err := h.coord.Import(context.Background(), root, Options{})
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.KindDatabase), "got %v", err)
	assert.Equal(t, importstate.StatusFailure, state.Status())
	assert.Empty(t, groupMembers(t, h), "failed imports must not materialize groups")
}

func TestConcurrentImportsAreSerialized(t *testing.T) {
	h := newHarness(t, nil)
	base := t.TempDir()
	dirs := []string{filepath.Join(base, "one"), filepath.Join(base, "two")}
	for _, dir := range dirs {
		for _, name := range []string{"x.stl", "y.stl"} {
			writeFile(t, filepath.Join(dir, name), dir+name)
		}
	}

	var wg sync.WaitGroup
	errs := make([]error, len(dirs))
	for i, dir := range dirs {
		wg.Add(1)
		go func(i int, dir string) {
			defer wg.Done()
			_, errs[i] = h.coord.Import(context.Background(), dir, Options{})
		}(i, dir)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, map[string][]string{"One": {"x", "y"}, "Two": {"x", "y"}}, groupMembers(t, h))
}

func TestImportCancelledWhileLockIsHeld(t *testing.T) {
	h := newHarness(t, nil, WithLockRetry(10*time.Millisecond))
	held := flock.New(h.cfg.ImportLockPath())
	locked, err := held.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	t.Cleanup(func() { _ = held.Unlock() })

	path := filepath.Join(t.TempDir(), "late.stl")
	writeFile(t, path, "late")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	state, err := h.coord.Import(ctx, path, Options{})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, fault.KindOf(err))
	assert.Equal(t, importstate.StatusFailure, state.Status())
}

func TestImportFanOutRespectsWorkerBound(t *testing.T) {
	gauge := &concurrencyGauge{}
	h := newHarness(t, func(st *store.Store) Catalog {
		return gaugeCatalog{Store: st, gauge: gauge}
	}, WithWorkers(3))
	dir := filepath.Join(t.TempDir(), "many")
	for i := 0; i < 24; i++ {
		writeFile(t, filepath.Join(dir, fmt.Sprintf("part-%02d.stl", i)), fmt.Sprintf("solid %d", i))
	}

	state, err := h.coord.Import(context.Background(), dir, Options{})
	require.NoError(t, err)
	assert.Equal(t, 24, state.Snapshot().ModelsFinished)

	peak := gauge.max()
	assert.LessOrEqual(t, peak, 3)
	assert.GreaterOrEqual(t, peak, 1)
}

func TestMatchLabels(t *testing.T) {
	index := map[string][]string{"dragon": {"lb-b", "lb-a"}, "head": {"lb-a"}}
	assert.Equal(t, []string{"lb-a", "lb-b"}, matchLabels(index, []string{"red", "dragon", "head"}, nil))
	assert.Empty(t, matchLabels(index, []string{"cube"}))
}

type statusRecorder struct {
	importstate.Nop
	mu   sync.Mutex
	list []importstate.Status
}

func (r *statusRecorder) StatusChanged(status importstate.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.list = append(r.list, status)
}

func (r *statusRecorder) statuses() []importstate.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]importstate.Status(nil), r.list...)
}

type concurrencyGauge struct {
	mu      sync.Mutex
	current int
	peak    int
}

func (g *concurrencyGauge) enter() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.current++
	if g.current > g.peak {
		g.peak = g.current
	}
}

func (g *concurrencyGauge) leave() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.current--
}

func (g *concurrencyGauge) max() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.peak
}

// gaugeCatalog holds every CreateModel call open briefly so overlapping workers are visible.
type gaugeCatalog struct {
	*store.Store
	gauge *concurrencyGauge
}

func (g gaugeCatalog) CreateModel(ctx context.Context, model *models.Model) error {
	g.gauge.enter()
	time.Sleep(5 * time.Millisecond)
	g.gauge.leave()
	return g.Store.CreateModel(ctx, model)
}
