// Package store talks to the remote task store: Postgres rows scoped by
// user, plus a change-event stream fed by the task_events notify trigger.
package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/taskdeck/taskdeck/internal/models"
)

// ErrNotFound is returned by Update and Delete when no row matches the
// {id, user_id} scope. Callers surface it like any other remote failure.
var ErrNotFound = errors.New("task not found")

// TransportError wraps a failed remote call.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// TaskInput carries the client-supplied fields of a new task. The store
// assigns id and timestamps. A nil Description stores NULL.
type TaskInput struct {
	Title       string
	Description *string
	Priority    string
	DueDate     *time.Time
}

// TaskPatch is a partial update. Nil fields are left unchanged; an explicit
// empty Description clears the column to NULL.
type TaskPatch struct {
	Title       *string
	Description *string
	Priority    *string
	DueDate     *time.Time
	Complete    *bool
}

// EventKind identifies a row-level change pushed by the store.
type EventKind string

const (
	EventInsert EventKind = "insert"
	EventUpdate EventKind = "update"
	EventDelete EventKind = "delete"
)

// ChangeEvent is one pushed row change. For deletes Row carries the last
// known state of the removed row.
type ChangeEvent struct {
	Kind EventKind
	Row  models.Task
}

// Subscription is a live change-event stream. Close is idempotent; the
// Events channel is closed once the subscription shuts down.
type Subscription interface {
	Events() <-chan ChangeEvent
	Close() error
}
