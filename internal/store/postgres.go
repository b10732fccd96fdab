// internal/store/postgres.go
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/taskdeck/taskdeck/internal/config"
	"github.com/taskdeck/taskdeck/internal/models"
)

// Postgres is the remote task store. Every operation is scoped by user_id;
// there is no way to read or touch another user's rows through it.
type Postgres struct {
	db  *sqlx.DB
	dsn string
}

// NewPostgres connects to the database described by cfg.
func NewPostgres(cfg config.DatabaseConfig) (*Postgres, error) {
	db, err := Open(cfg)
	if err != nil {
		return nil, err
	}
	return &Postgres{db: db, dsn: DSN(cfg)}, nil
}

// NewPostgresFromDB wraps an existing connection. The dsn is only needed
// when Subscribe is used.
func NewPostgresFromDB(db *sqlx.DB, dsn string) *Postgres {
	return &Postgres{db: db, dsn: dsn}
}

// Close releases the underlying connection pool.
func (p *Postgres) Close() error {
	return p.db.Close()
}

const taskColumns = "id, user_id, title, description, is_complete, priority, due_date, created_at, updated_at"

// Fetch returns every task owned by userID, newest first.
func (p *Postgres) Fetch(ctx context.Context, userID string) ([]models.Task, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM tasks WHERE user_id = $1 ORDER BY created_at DESC",
		taskColumns,
	)

	var tasks []models.Task
	if err := p.db.SelectContext(ctx, &tasks, query, userID); err != nil {
		return nil, &TransportError{Op: "fetch tasks", Err: err}
	}
	return tasks, nil
}

// Create inserts a new task for userID and returns the stored row with the
// assigned id and timestamps.
func (p *Postgres) Create(ctx context.Context, userID string, input TaskInput) (models.Task, error) {
	query := fmt.Sprintf(`
		INSERT INTO tasks (user_id, title, description, priority, due_date)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING %s`, taskColumns)

	var task models.Task
	err := p.db.GetContext(ctx, &task, query,
		userID, input.Title, nullString(input.Description), input.Priority, nullTime(input.DueDate))
	if err != nil {
		return models.Task{}, &TransportError{Op: "create task", Err: err}
	}
	return task, nil
}

// Update applies patch to the task matching {id, userID}. Returns
// ErrNotFound when no row matches.
func (p *Postgres) Update(ctx context.Context, id, userID string, patch TaskPatch) error {
	set, args := buildUpdate(patch)
	if len(set) == 0 {
		return nil
	}

	args = append(args, id, userID)
	query := fmt.Sprintf(
		"UPDATE tasks SET %s WHERE id = $%d AND user_id = $%d",
		strings.Join(set, ", "), len(args)-1, len(args),
	)

	res, err := p.db.ExecContext(ctx, query, args...)
	if err != nil {
		return &TransportError{Op: "update task", Err: err}
	}
	return checkAffected(res, "update task")
}

// Delete removes the task matching {id, userID}. Returns ErrNotFound when
// no row matches.
func (p *Postgres) Delete(ctx context.Context, id, userID string) error {
	res, err := p.db.ExecContext(ctx, "DELETE FROM tasks WHERE id = $1 AND user_id = $2", id, userID)
	if err != nil {
		return &TransportError{Op: "delete task", Err: err}
	}
	return checkAffected(res, "delete task")
}

// buildUpdate assembles the SET clause for patch with positional
// parameters starting at $1.
func buildUpdate(patch TaskPatch) ([]string, []interface{}) {
	var (
		set  []string
		args []interface{}
	)

	add := func(column string, value interface{}) {
		args = append(args, value)
		set = append(set, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.Title != nil {
		add("title", *patch.Title)
	}
	if patch.Description != nil {
		if *patch.Description == "" {
			add("description", nil)
		} else {
			add("description", *patch.Description)
		}
	}
	if patch.Priority != nil {
		add("priority", *patch.Priority)
	}
	if patch.DueDate != nil {
		add("due_date", *patch.DueDate)
	}
	if patch.Complete != nil {
		add("is_complete", *patch.Complete)
	}

	return set, args
}

func checkAffected(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullString(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

// IsNotFound reports whether err is the missing-row error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
