// Package importstate tracks the progress of one import call and reports
// every change to an Observer.
package importstate

import (
	"errors"
	"fmt"
	"sync"
)

// Status is the lifecycle position of an import.
type Status int

const (
	StatusIdle Status = iota
	StatusProcessingModels
	StatusFinishedModels
	StatusProcessingThumbnails
	StatusFinishedThumbnails
	StatusFinished
	StatusFailure
)

var statusNames = map[Status]string{
	StatusIdle:                 "idle",
	StatusProcessingModels:     "processing_models",
	StatusFinishedModels:       "finished_models",
	StatusProcessingThumbnails: "processing_thumbnails",
	StatusFinishedThumbnails:   "finished_thumbnails",
	StatusFinished:             "finished",
	StatusFailure:              "failure",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// MarshalText renders the status name in JSON output.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// next lists the forward transitions. Failure is reachable from every non-terminal status.
var next = map[Status]Status{
	StatusIdle:                 StatusProcessingModels,
	StatusProcessingModels:     StatusFinishedModels,
	StatusFinishedModels:       StatusProcessingThumbnails,
	StatusProcessingThumbnails: StatusFinishedThumbnails,
	StatusFinishedThumbnails:   StatusFinished,
}

var (
	// ErrTerminal is returned when mutating a failed import.
	ErrTerminal = errors.New("import already failed")
	// ErrInvalidTransition is returned for out-of-order status changes.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Options are the per-call flags recorded on the state.
type Options struct {
	UserID            string `json:"user_id"`
	Recursive         bool   `json:"recursive"`
	DeleteAfterImport bool   `json:"delete_after_import"`
	ImportAsPath      bool   `json:"import_as_path"`
}

// ModelSet is one batch of models slated to become a single group.
type ModelSet struct {
	Name     string   `json:"name,omitempty"`
	GroupID  string   `json:"group_id,omitempty"`
	ModelIDs []string `json:"model_ids"`
}

// Snapshot is a copy of the state at one point in time.
type Snapshot struct {
	Status             Status     `json:"status"`
	Options            Options    `json:"options"`
	ModelsFinished     int        `json:"models_finished"`
	ModelsTotal        int        `json:"models_total"`
	ThumbnailsFinished int        `json:"thumbnails_finished"`
	ThumbnailsTotal    int        `json:"thumbnails_total"`
	Failure            string     `json:"failure,omitempty"`
	Sets               []ModelSet `json:"sets"`
}

// State is the aggregate for one import call. Observers see events in
// the order the mutations happened and must not call back into State.
type State struct {
	// emit is held from a mutation through its observer call.
	emit     sync.Mutex
	mu       sync.Mutex
	observer Observer
	snap     Snapshot
}

// New returns an idle state. A nil observer discards events.
func New(opts Options, observer Observer) *State {
	if observer == nil {
		observer = Nop{}
	}
	return &State{
		observer: observer,
		snap:     Snapshot{Status: StatusIdle, Options: opts, Sets: []ModelSet{}},
	}
}

// Status returns the current status.
func (s *State) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Status
}

// Options returns the per-call flags.
func (s *State) Options() Options {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Options
}

// SetStatus advances to status. Only the next forward status is accepted.
func (s *State) SetStatus(status Status) error {
	if status == StatusFailure {
		return fmt.Errorf("use Fail to enter %s: %w", status, ErrInvalidTransition)
	}
	s.emit.Lock()
	defer s.emit.Unlock()
	s.mu.Lock()
	current := s.snap.Status
	if current == StatusFailure {
		s.mu.Unlock()
		return ErrTerminal
	}
	if next[current] != status || current == StatusFinished {
		s.mu.Unlock()
		return fmt.Errorf("%s -> %s: %w", current, status, ErrInvalidTransition)
	}
	s.snap.Status = status
	s.mu.Unlock()

	s.observer.StatusChanged(status)
	return nil
}

// SetTotal seeds the number of models the import will process.
func (s *State) SetTotal(total int) {
	s.emit.Lock()
	defer s.emit.Unlock()
	s.mu.Lock()
	s.snap.ModelsTotal = total
	finished := s.snap.ModelsFinished
	s.mu.Unlock()

	s.observer.ModelCountChanged(finished, total)
}

// ModelDone records one processed file.
func (s *State) ModelDone() {
	s.emit.Lock()
	defer s.emit.Unlock()
	s.mu.Lock()
	s.snap.ModelsFinished++
	finished, total := s.snap.ModelsFinished, s.snap.ModelsTotal
	s.mu.Unlock()

	s.observer.ModelCountChanged(finished, total)
}

// SetThumbnailTotal seeds the number of thumbnails to render.
func (s *State) SetThumbnailTotal(total int) {
	s.emit.Lock()
	defer s.emit.Unlock()
	s.mu.Lock()
	s.snap.ThumbnailsTotal = total
	finished := s.snap.ThumbnailsFinished
	s.mu.Unlock()

	s.observer.ThumbnailCountChanged(finished, total)
}

// ThumbnailDone records one finished render task, successful or not.
func (s *State) ThumbnailDone() {
	s.emit.Lock()
	defer s.emit.Unlock()
	s.mu.Lock()
	s.snap.ThumbnailsFinished++
	finished, total := s.snap.ThumbnailsFinished, s.snap.ThumbnailsTotal
	s.mu.Unlock()

	s.observer.ThumbnailCountChanged(finished, total)
}

// StartSet opens a new model set and returns its index.
func (s *State) StartSet(name string) int {
	s.emit.Lock()
	defer s.emit.Unlock()
	s.mu.Lock()
	s.snap.Sets = append(s.snap.Sets, ModelSet{Name: name, ModelIDs: []string{}})
	index := len(s.snap.Sets) - 1
	s.mu.Unlock()

	s.observer.SetStarted(name)
	return index
}

// AddToSet appends a model id to the set at index.
func (s *State) AddToSet(index int, modelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.snap.Sets) {
		return fmt.Errorf("model set %d does not exist", index)
	}
	s.snap.Sets[index].ModelIDs = append(s.snap.Sets[index].ModelIDs, modelID)
	return nil
}

// SetGroup records the group materialized for the set at index.
func (s *State) SetGroup(index int, groupID string) error {
	s.emit.Lock()
	defer s.emit.Unlock()
	s.mu.Lock()
	if index < 0 || index >= len(s.snap.Sets) {
		s.mu.Unlock()
		return fmt.Errorf("model set %d does not exist", index)
	}
	s.snap.Sets[index].GroupID = groupID
	name := s.snap.Sets[index].Name
	s.mu.Unlock()

	s.observer.GroupCreated(name, groupID)
	return nil
}

// Fail moves the import to the terminal failure status. Only the first reason is kept.
func (s *State) Fail(reason string) {
	s.emit.Lock()
	defer s.emit.Unlock()
	s.mu.Lock()
	if s.snap.Status == StatusFailure {
		s.mu.Unlock()
		return
	}
	s.snap.Status = StatusFailure
	s.snap.Failure = reason
	s.mu.Unlock()

	s.observer.StatusChanged(StatusFailure)
	s.observer.Failed(reason)
}

// Snapshot returns a deep copy of the current state.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.snap
	out.Sets = make([]ModelSet, len(s.snap.Sets))
	for i, set := range s.snap.Sets {
		set.ModelIDs = append([]string(nil), set.ModelIDs...)
		out.Sets[i] = set
	}
	return out
}

// ModelIDs returns every model id across all sets, in set order.
func (s *State) ModelIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := []string{}
	for _, set := range s.snap.Sets {
		ids = append(ids, set.ModelIDs...)
	}
	return ids
}
