package importstate

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fmt.Sprintf(format, args...))
}

func (r *recorder) StatusChanged(status Status) { r.add("status %s", status) }
func (r *recorder) ModelCountChanged(finished, total int) {
	r.add("models %d/%d", finished, total)
}
func (r *recorder) ThumbnailCountChanged(finished, total int) {
	r.add("thumbnails %d/%d", finished, total)
}
func (r *recorder) SetStarted(name string)            { r.add("set %s", name) }
func (r *recorder) GroupCreated(name, groupID string) { r.add("group %s %s", name, groupID) }
func (r *recorder) Failed(reason string)              { r.add("failed %s", reason) }

func TestStateHappyPath(t *testing.T) {
	rec := &recorder{}
	st := New(Options{Recursive: true}, rec)
	assert.Equal(t, StatusIdle, st.Status())

	require.NoError(t, st.SetStatus(StatusProcessingModels))
	st.SetTotal(2)
	idx := st.StartSet("Boats")
	require.NoError(t, st.AddToSet(idx, "md-1"))
	st.ModelDone()
	require.NoError(t, st.AddToSet(idx, "md-2"))
	st.ModelDone()
	require.NoError(t, st.SetGroup(idx, "gp-1"))
	require.NoError(t, st.SetStatus(StatusFinishedModels))
	require.NoError(t, st.SetStatus(StatusProcessingThumbnails))
	st.SetThumbnailTotal(1)
	st.ThumbnailDone()
	require.NoError(t, st.SetStatus(StatusFinishedThumbnails))
	require.NoError(t, st.SetStatus(StatusFinished))

	assert.Equal(t, []string{
		"status processing_models",
		"models 0/2",
		"set Boats",
		"models 1/2",
		"models 2/2",
		"group Boats gp-1",
		"status finished_models",
		"status processing_thumbnails",
		"thumbnails 0/1",
		"thumbnails 1/1",
		"status finished_thumbnails",
		"status finished",
	}, rec.events)

	snap := st.Snapshot()
	assert.Equal(t, StatusFinished, snap.Status)
	assert.True(t, snap.Options.Recursive)
	require.Len(t, snap.Sets, 1)
	assert.Equal(t, []string{"md-1", "md-2"}, snap.Sets[0].ModelIDs)
	assert.Equal(t, "gp-1", snap.Sets[0].GroupID)
	assert.Equal(t, []string{"md-1", "md-2"}, st.ModelIDs())
}

func TestStateRejectsSkippedTransitions(t *testing.T) {
	st := New(Options{}, nil)
	assert.ErrorIs(t, st.SetStatus(StatusFinishedModels), ErrInvalidTransition)
	assert.ErrorIs(t, st.SetStatus(StatusFailure), ErrInvalidTransition)
	require.NoError(t, st.SetStatus(StatusProcessingModels))
	assert.ErrorIs(t, st.SetStatus(StatusProcessingModels), ErrInvalidTransition)
}

func TestStateFailureIsTerminal(t *testing.T) {
	rec := &recorder{}
	st := New(Options{}, rec)
	require.NoError(t, st.SetStatus(StatusProcessingModels))

	st.Fail("disk full")
	st.Fail("second reason")
	assert.ErrorIs(t, st.SetStatus(StatusFinishedModels), ErrTerminal)

	snap := st.Snapshot()
	assert.Equal(t, StatusFailure, snap.Status)
	assert.Equal(t, "disk full", snap.Failure)
	assert.Equal(t, []string{"status processing_models", "status failure", "failed disk full"}, rec.events)
}

func TestSnapshotIsACopy(t *testing.T) {
	st := New(Options{}, nil)
	idx := st.StartSet("A")
	require.NoError(t, st.AddToSet(idx, "md-1"))

	snap := st.Snapshot()
	snap.Sets[0].ModelIDs[0] = "changed"
	assert.Equal(t, "md-1", st.Snapshot().Sets[0].ModelIDs[0])
	assert.Error(t, st.AddToSet(5, "md-2"))
}

func TestConcurrentThumbnailCounts(t *testing.T) {
	st := New(Options{}, nil)
	st.SetThumbnailTotal(50)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			st.ThumbnailDone()
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, st.Snapshot().ThumbnailsFinished)
}

func TestMultiFansOut(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	obs := Multi(a, nil, b)
	obs.SetStarted("X")
	obs.Failed("boom")
	assert.Equal(t, a.events, b.events)
	assert.Len(t, a.events, 2)
}

func TestConsoleObserverNonTerminal(t *testing.T) {
	var buf bytes.Buffer
	obs := NewConsoleObserver(&buf)
	obs.SetStarted("Dragons")
	obs.ModelCountChanged(1, 2)
	obs.StatusChanged(StatusFinishedModels)
	obs.Failed("nope")

	out := buf.String()
	assert.Contains(t, out, "importing Dragons\n")
	assert.Contains(t, out, "finished_models\n")
	assert.Contains(t, out, "failed: nope\n")
	assert.NotContains(t, out, "1/2")
	assert.NotContains(t, out, "\x1b[")
}

func TestLogObserver(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	obs := LogObserver{Logger: logger}
	obs.GroupCreated("Boats", "gp-1")
	obs.ModelCountChanged(1, 1)

	out := buf.String()
	assert.True(t, strings.Contains(out, "group_id=gp-1"), out)
	assert.NotContains(t, out, "models progress")
}

type thumbnailOrder struct {
	Nop
	mu   sync.Mutex
	seen []int
}

func (o *thumbnailOrder) ThumbnailCountChanged(finished, total int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seen = append(o.seen, finished)
}

func TestConcurrentThumbnailEventsArriveInOrder(t *testing.T) {
	order := &thumbnailOrder{}
	st := New(Options{}, order)
	st.SetThumbnailTotal(200)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 4; j++ {
				st.ThumbnailDone()
			}
		}()
	}
	wg.Wait()

	require.Len(t, order.seen, 201)
	for i := 1; i < len(order.seen); i++ {
		assert.Equal(t, order.seen[i-1]+1, order.seen[i], "event %d out of order", i)
	}
	assert.Equal(t, 200, st.Snapshot().ThumbnailsFinished)
}
