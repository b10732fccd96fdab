package models

import (
	"database/sql"
	"time"
)

// Priority constants
const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
)

// ValidPriority reports whether p is one of the known priority levels.
func ValidPriority(p string) bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh:
		return true
	}
	return false
}

// Task is the client-side view of a persisted task row. The store assigns
// ID, CreatedAt and UpdatedAt; the client never writes them directly.
type Task struct {
	ID          string         `db:"id"`
	UserID      string         `db:"user_id"`
	Title       string         `db:"title"`
	Description sql.NullString `db:"description"`
	IsComplete  bool           `db:"is_complete"`
	Priority    string         `db:"priority"`
	DueDate     sql.NullTime   `db:"due_date"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

// Overdue reports whether the task is incomplete and its due date has passed
// relative to now. Due dates are calendar dates: a task due today is not
// overdue until tomorrow.
func (t Task) Overdue(now time.Time) bool {
	if t.IsComplete || !t.DueDate.Valid {
		return false
	}
	due := t.DueDate.Time.UTC()
	dueDay := time.Date(due.Year(), due.Month(), due.Day(), 0, 0, 0, 0, time.UTC)
	nowUTC := now.UTC()
	today := time.Date(nowUTC.Year(), nowUTC.Month(), nowUTC.Day(), 0, 0, 0, 0, time.UTC)
	return dueDay.Before(today)
}
