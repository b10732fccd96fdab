// Package syncer owns the client-side view of one user's task collection.
// It applies optimistic local mutations, reconciles them against the remote
// store, and merges pushed change events without duplicating or losing rows.
// The remote store is the source of truth; the local collection converges to
// it within one round trip or one push event, whichever lands first.
package syncer

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/taskdeck/taskdeck/internal/models"
	"github.com/taskdeck/taskdeck/internal/store"
)

const (
	maxTitleLength       = 500
	maxDescriptionLength = 2000
)

// Store is the remote task store contract the synchronizer depends on.
// *store.Postgres satisfies it; tests substitute a fake.
type Store interface {
	Fetch(ctx context.Context, userID string) ([]models.Task, error)
	Create(ctx context.Context, userID string, input store.TaskInput) (models.Task, error)
	Update(ctx context.Context, id, userID string, patch store.TaskPatch) error
	Delete(ctx context.Context, id, userID string) error
	Subscribe(ctx context.Context, userID, name string) (store.Subscription, error)
}

// State is a point-in-time copy of the synchronizer's exposed state.
type State struct {
	Tasks   []models.Task
	Loading bool
	Err     string
	Stats   Stats
}

// CreateInput carries the fields of a new task. A nil Description stays
// absent; an empty Priority defaults to normal.
type CreateInput struct {
	Title       string
	Description *string
	Priority    string
	DueDate     *time.Time
}

// Synchronizer mediates between local optimistic mutations and the remote
// store for a single active session. All exported methods are safe for
// concurrent use; state writes from stale activations are discarded via the
// generation counter.
type Synchronizer struct {
	store Store
	now   func() time.Time

	mu       sync.Mutex
	gen      uint64
	userID   string
	tasks    []models.Task
	loading  bool
	errMsg   string
	stats    Stats
	sub      store.Subscription
	onChange func(State)
}

// New creates a synchronizer backed by st. The store handle is always
// injected, never looked up ambiently.
func New(st Store) *Synchronizer {
	return &Synchronizer{
		store: st,
		now:   time.Now,
	}
}

// SetOnChange registers a callback invoked with a state copy after every
// state transition. Must be called before Activate.
func (s *Synchronizer) SetOnChange(fn func(State)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Snapshot returns a defensive copy of the current state.
func (s *Synchronizer) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Synchronizer) stateLocked() State {
	tasks := make([]models.Task, len(s.tasks))
	copy(tasks, s.tasks)
	return State{
		Tasks:   tasks,
		Loading: s.loading,
		Err:     s.errMsg,
		Stats:   s.stats,
	}
}

// Activate binds the synchronizer to userID: it resets local state, loads
// the full collection, and opens the change-event subscription. Activating
// again (same or different user) is a hard boundary; nothing from the
// previous session survives it. Load and subscription failures land in the
// error slot rather than propagating.
func (s *Synchronizer) Activate(ctx context.Context, userID string) {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	if s.sub != nil {
		s.sub.Close()
		s.sub = nil
	}
	s.userID = userID
	s.tasks = nil
	s.loading = true
	s.errMsg = ""
	s.recomputeLocked()
	s.mu.Unlock()
	s.notify()

	tasks, err := s.store.Fetch(ctx, userID)

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	if err != nil {
		s.errMsg = fmt.Sprintf("load tasks: %v", err)
	} else {
		s.tasks = tasks
	}
	s.loading = false
	s.recomputeLocked()
	s.mu.Unlock()
	s.notify()

	name := fmt.Sprintf("tasks:%s:%d", userID, s.now().UnixNano())
	sub, err := s.store.Subscribe(ctx, userID, name)
	if err != nil {
		log.Printf("[ERROR] open subscription %s: %v", name, err)
		s.mu.Lock()
		if gen == s.gen {
			s.errMsg = fmt.Sprintf("subscribe to changes: %v", err)
		}
		s.mu.Unlock()
		s.notify()
		return
	}

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		sub.Close()
		return
	}
	s.sub = sub
	s.mu.Unlock()

	go s.consume(gen, sub)
}

// Deactivate tears the active session down: the subscription is closed and
// the collection purged. In-flight completions for the old activation are
// discarded when they arrive.
func (s *Synchronizer) Deactivate() {
	s.mu.Lock()
	s.gen++
	if s.sub != nil {
		s.sub.Close()
		s.sub = nil
	}
	s.userID = ""
	s.tasks = nil
	s.loading = false
	s.errMsg = ""
	s.recomputeLocked()
	s.mu.Unlock()
	s.notify()
}

func (s *Synchronizer) consume(gen uint64, sub store.Subscription) {
	for event := range sub.Events() {
		s.Apply(gen, event)
	}
}

// Apply merges one pushed change event into the collection. Events carry
// their own row state, so applying the same event twice is a no-op beyond
// the first application. Events from stale activations are dropped, as are
// rows not owned by the active user: the subscription filters those
// upstream, but ownership is an invariant of the collection itself and is
// enforced here too.
func (s *Synchronizer) Apply(gen uint64, event store.ChangeEvent) {
	s.mu.Lock()
	if gen != s.gen || event.Row.UserID != s.userID {
		s.mu.Unlock()
		return
	}
	switch event.Kind {
	case store.EventInsert:
		s.insertLocked(event.Row)
	case store.EventUpdate:
		s.replaceLocked(event.Row)
	case store.EventDelete:
		s.removeLocked(event.Row.ID)
	}
	s.recomputeLocked()
	s.mu.Unlock()
	s.notify()
}

// Generation returns the current activation's lifecycle token, for pairing
// with Apply.
func (s *Synchronizer) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// Create validates input, inserts the task remotely, and merges the
// confirmed row. There is no optimistic effect: the row id is unknown until
// the store responds.
func (s *Synchronizer) Create(ctx context.Context, input CreateInput) (models.Task, error) {
	s.mu.Lock()
	s.errMsg = ""
	gen := s.gen
	userID := s.userID
	s.mu.Unlock()

	if userID == "" {
		s.setError(gen, "create task: no active session")
		return models.Task{}, ErrSessionRequired
	}

	title := strings.TrimSpace(input.Title)
	if err := validateTitle(title); err != nil {
		s.setError(gen, fmt.Sprintf("create task: %v", err))
		return models.Task{}, err
	}

	in := store.TaskInput{Title: title, Priority: input.Priority, DueDate: input.DueDate}
	if in.Priority == "" {
		in.Priority = models.PriorityNormal
	}
	if !models.ValidPriority(in.Priority) {
		err := &ValidationError{Field: "priority", Reason: "must be low, normal or high"}
		s.setError(gen, fmt.Sprintf("create task: %v", err))
		return models.Task{}, err
	}
	if input.Description != nil {
		desc := strings.TrimSpace(*input.Description)
		if err := validateDescription(desc); err != nil {
			s.setError(gen, fmt.Sprintf("create task: %v", err))
			return models.Task{}, err
		}
		if desc != "" {
			in.Description = &desc
		}
	}

	task, err := s.store.Create(ctx, userID, in)
	if err != nil {
		s.setError(gen, fmt.Sprintf("create task: %v", err))
		return models.Task{}, err
	}

	// Reconcile through the same idempotent path the push event takes; the
	// later insert event for this row becomes a no-op.
	s.mu.Lock()
	if gen == s.gen {
		s.insertLocked(task)
		s.recomputeLocked()
	}
	s.mu.Unlock()
	s.notify()

	return task, nil
}

// Update applies patch optimistically, then confirms it remotely. On remote
// failure the full collection is re-fetched to restore ground truth and the
// error is returned.
func (s *Synchronizer) Update(ctx context.Context, id string, patch store.TaskPatch) error {
	s.mu.Lock()
	s.errMsg = ""
	gen := s.gen
	userID := s.userID
	s.mu.Unlock()

	if userID == "" {
		s.setError(gen, "update task: no active session")
		return ErrSessionRequired
	}

	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if err := validateTitle(title); err != nil {
			s.setError(gen, fmt.Sprintf("update task: %v", err))
			return err
		}
		patch.Title = &title
	}
	if patch.Description != nil {
		desc := strings.TrimSpace(*patch.Description)
		if err := validateDescription(desc); err != nil {
			s.setError(gen, fmt.Sprintf("update task: %v", err))
			return err
		}
		patch.Description = &desc
	}
	if patch.Priority != nil && !models.ValidPriority(*patch.Priority) {
		err := &ValidationError{Field: "priority", Reason: "must be low, normal or high"}
		s.setError(gen, fmt.Sprintf("update task: %v", err))
		return err
	}

	s.mu.Lock()
	if gen == s.gen {
		s.patchLocked(id, patch)
		s.recomputeLocked()
	}
	s.mu.Unlock()
	s.notify()

	if err := s.store.Update(ctx, id, userID, patch); err != nil {
		s.refetch(ctx, gen, userID)
		s.setError(gen, fmt.Sprintf("update task: %v", err))
		return err
	}
	return nil
}

// Toggle flips a task's completion state optimistically and confirms it
// remotely. Remote failures are swallowed: the flip is reverted and the
// error recorded, but nothing propagates, since toggles come from
// fire-and-forget controls. A missing session is still a caller bug and is
// returned.
func (s *Synchronizer) Toggle(ctx context.Context, id string, currentComplete bool) error {
	s.mu.Lock()
	s.errMsg = ""
	gen := s.gen
	userID := s.userID
	s.mu.Unlock()

	if userID == "" {
		s.setError(gen, "toggle task: no active session")
		return ErrSessionRequired
	}

	next := !currentComplete
	s.mu.Lock()
	if gen == s.gen {
		s.patchLocked(id, store.TaskPatch{Complete: &next})
		s.recomputeLocked()
	}
	s.mu.Unlock()
	s.notify()

	if err := s.store.Update(ctx, id, userID, store.TaskPatch{Complete: &next}); err != nil {
		log.Printf("[ERROR] toggle task %s: %v", id, err)
		s.mu.Lock()
		if gen == s.gen {
			s.patchLocked(id, store.TaskPatch{Complete: &currentComplete})
			s.recomputeLocked()
			s.errMsg = fmt.Sprintf("toggle task: %v", err)
		}
		s.mu.Unlock()
		s.notify()
	}
	return nil
}

// Delete removes the task optimistically, retaining a snapshot of the
// pre-delete collection; on remote failure the snapshot is restored and the
// error returned.
func (s *Synchronizer) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	s.errMsg = ""
	gen := s.gen
	userID := s.userID
	snapshot := make([]models.Task, len(s.tasks))
	copy(snapshot, s.tasks)
	s.mu.Unlock()

	if userID == "" {
		s.setError(gen, "delete task: no active session")
		return ErrSessionRequired
	}

	s.mu.Lock()
	if gen == s.gen {
		s.removeLocked(id)
		s.recomputeLocked()
	}
	s.mu.Unlock()
	s.notify()

	if err := s.store.Delete(ctx, id, userID); err != nil {
		s.mu.Lock()
		if gen == s.gen {
			s.tasks = snapshot
			s.recomputeLocked()
			s.errMsg = fmt.Sprintf("delete task: %v", err)
		}
		s.mu.Unlock()
		s.notify()
		return err
	}
	return nil
}

// refetch restores the collection from the store after a failed update.
func (s *Synchronizer) refetch(ctx context.Context, gen uint64, userID string) {
	tasks, err := s.store.Fetch(ctx, userID)
	if err != nil {
		log.Printf("[ERROR] refetch tasks for %s: %v", userID, err)
		return
	}
	s.mu.Lock()
	if gen == s.gen {
		s.tasks = tasks
		s.recomputeLocked()
	}
	s.mu.Unlock()
	s.notify()
}

// insertLocked adds row unless its id is already present, keeping the
// collection ordered by creation time descending.
func (s *Synchronizer) insertLocked(row models.Task) {
	for _, t := range s.tasks {
		if t.ID == row.ID {
			return
		}
	}
	at := len(s.tasks)
	for i, t := range s.tasks {
		if t.CreatedAt.Before(row.CreatedAt) {
			at = i
			break
		}
	}
	s.tasks = append(s.tasks, models.Task{})
	copy(s.tasks[at+1:], s.tasks[at:])
	s.tasks[at] = row
}

// replaceLocked swaps in the pushed row's full field set; rows not known
// locally are skipped and self-heal on the next fetch.
func (s *Synchronizer) replaceLocked(row models.Task) {
	for i, t := range s.tasks {
		if t.ID == row.ID {
			s.tasks[i] = row
			return
		}
	}
}

func (s *Synchronizer) removeLocked(id string) {
	for i, t := range s.tasks {
		if t.ID == id {
			s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
			return
		}
	}
}

// patchLocked applies a partial update to the matching task in place.
func (s *Synchronizer) patchLocked(id string, patch store.TaskPatch) {
	for i := range s.tasks {
		if s.tasks[i].ID != id {
			continue
		}
		t := &s.tasks[i]
		if patch.Title != nil {
			t.Title = *patch.Title
		}
		if patch.Description != nil {
			if *patch.Description == "" {
				t.Description.Valid = false
				t.Description.String = ""
			} else {
				t.Description.Valid = true
				t.Description.String = *patch.Description
			}
		}
		if patch.Priority != nil {
			t.Priority = *patch.Priority
		}
		if patch.DueDate != nil {
			t.DueDate.Valid = true
			t.DueDate.Time = *patch.DueDate
		}
		if patch.Complete != nil {
			t.IsComplete = *patch.Complete
		}
		return
	}
}

func (s *Synchronizer) recomputeLocked() {
	s.stats = computeStats(s.tasks, s.now())
}

// setError records msg unless the activation changed since the caller read
// gen.
func (s *Synchronizer) setError(gen uint64, msg string) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.errMsg = msg
	s.mu.Unlock()
	s.notify()
}

func (s *Synchronizer) notify() {
	s.mu.Lock()
	fn := s.onChange
	var state State
	if fn != nil {
		state = s.stateLocked()
	}
	s.mu.Unlock()
	if fn != nil {
		fn(state)
	}
}

func validateTitle(trimmed string) error {
	if trimmed == "" {
		return &ValidationError{Field: "title", Reason: "is required"}
	}
	if len(trimmed) > maxTitleLength {
		return &ValidationError{Field: "title", Reason: fmt.Sprintf("must be at most %d characters", maxTitleLength)}
	}
	return nil
}

func validateDescription(trimmed string) error {
	if len(trimmed) > maxDescriptionLength {
		return &ValidationError{Field: "description", Reason: fmt.Sprintf("must be at most %d characters", maxDescriptionLength)}
	}
	return nil
}
