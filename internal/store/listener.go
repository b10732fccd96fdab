// internal/store/listener.go
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/taskdeck/taskdeck/internal/models"
)

// notifyChannel is the Postgres channel the task_events trigger publishes
// to. All users share it; events are filtered per subscription.
const notifyChannel = "task_events"

// Subscribe opens a change-event stream for userID. The name identifies the
// subscription in logs; callers should make it unique per activation so
// re-initializations are distinguishable. Close the returned subscription
// exactly once per activation; extra Close calls are no-ops.
func (p *Postgres) Subscribe(ctx context.Context, userID, name string) (Subscription, error) {
	listener := pq.NewListener(p.dsn, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			log.Printf("[ERROR] subscription %s: listener event %d: %v", name, ev, err)
		}
	})

	if err := listener.Listen(notifyChannel); err != nil {
		listener.Close()
		return nil, &TransportError{Op: "subscribe", Err: err}
	}

	sub := &pgSubscription{
		name:     name,
		userID:   userID,
		listener: listener,
		events:   make(chan ChangeEvent, 16),
		done:     make(chan struct{}),
	}
	go sub.run()

	log.Printf("[INFO] subscription %s open", name)
	return sub, nil
}

type pgSubscription struct {
	name     string
	userID   string
	listener *pq.Listener
	events   chan ChangeEvent
	done     chan struct{}
	closeOne sync.Once
}

func (s *pgSubscription) Events() <-chan ChangeEvent {
	return s.events
}

func (s *pgSubscription) Close() error {
	s.closeOne.Do(func() {
		close(s.done)
		s.listener.Close()
		log.Printf("[INFO] subscription %s closed", s.name)
	})
	return nil
}

func (s *pgSubscription) run() {
	defer close(s.events)

	for {
		select {
		case <-s.done:
			return
		case n, ok := <-s.listener.Notify:
			if !ok {
				return
			}
			if n == nil {
				// Reconnect marker from pq; no payload to deliver.
				continue
			}
			event, err := decodeEvent(n.Extra)
			if err != nil {
				log.Printf("[ERROR] subscription %s: drop malformed event: %v", s.name, err)
				continue
			}
			if event.Row.UserID != s.userID {
				continue
			}
			select {
			case s.events <- event:
			case <-s.done:
				return
			}
		}
	}
}

// eventPayload matches the JSON built by the task_events trigger:
// json_build_object('op', TG_OP, 'row', row_to_json(...)).
type eventPayload struct {
	Op  string     `json:"op"`
	Row rowPayload `json:"row"`
}

type rowPayload struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Title       string    `json:"title"`
	Description *string   `json:"description"`
	IsComplete  bool      `json:"is_complete"`
	Priority    string    `json:"priority"`
	DueDate     *string   `json:"due_date"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func decodeEvent(payload string) (ChangeEvent, error) {
	var raw eventPayload
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return ChangeEvent{}, fmt.Errorf("decode payload: %w", err)
	}

	var kind EventKind
	switch raw.Op {
	case "INSERT":
		kind = EventInsert
	case "UPDATE":
		kind = EventUpdate
	case "DELETE":
		kind = EventDelete
	default:
		return ChangeEvent{}, fmt.Errorf("unknown op %q", raw.Op)
	}

	row, err := raw.Row.toTask()
	if err != nil {
		return ChangeEvent{}, err
	}
	return ChangeEvent{Kind: kind, Row: row}, nil
}

func (r rowPayload) toTask() (models.Task, error) {
	task := models.Task{
		ID:         r.ID,
		UserID:     r.UserID,
		Title:      r.Title,
		IsComplete: r.IsComplete,
		Priority:   r.Priority,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
	if r.Description != nil {
		task.Description = sql.NullString{String: *r.Description, Valid: true}
	}
	if r.DueDate != nil {
		due, err := time.Parse("2006-01-02", *r.DueDate)
		if err != nil {
			return models.Task{}, fmt.Errorf("parse due_date %q: %w", *r.DueDate, err)
		}
		task.DueDate = sql.NullTime{Time: due, Valid: true}
	}
	return task, nil
}
