// cmd/taskdeck/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/taskdeck/taskdeck/internal/config"
	"github.com/taskdeck/taskdeck/internal/session"
	"github.com/taskdeck/taskdeck/internal/store"
	"github.com/taskdeck/taskdeck/internal/syncer"
)

const usage = `taskdeck - personal task tracker

Usage:
  taskdeck list                 show tasks and stats
  taskdeck add [flags]          create a task
  taskdeck edit <id> [flags]    update a task
  taskdeck done <id>            toggle completion
  taskdeck rm <id>              delete a task
  taskdeck watch                follow live changes
`

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	app, err := newApp(cfg)
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
	defer app.close()

	ctx := context.Background()
	switch os.Args[1] {
	case "list":
		err = app.list(ctx)
	case "add":
		err = app.add(ctx, os.Args[2:])
	case "edit":
		err = app.edit(ctx, os.Args[2:])
	case "done":
		err = app.done(ctx, os.Args[2:])
	case "rm":
		err = app.remove(ctx, os.Args[2:])
	case "watch":
		err = app.watch(ctx)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%v", err)
	}
}

type app struct {
	provider *session.Provider
	store    *store.Postgres
	sync     *syncer.Synchronizer
	sess     session.Session
}

func newApp(cfg *config.Config) (*app, error) {
	provider := session.NewProvider(cfg.Session)
	if err := provider.Start(context.Background()); err != nil {
		return nil, err
	}
	sess := <-provider.Sessions()

	st, err := store.NewPostgres(cfg.Database)
	if err != nil {
		return nil, err
	}

	return &app{
		provider: provider,
		store:    st,
		sync:     syncer.New(st),
		sess:     sess,
	}, nil
}

func (a *app) close() {
	a.sync.Deactivate()
	a.store.Close()
}

func (a *app) list(ctx context.Context) error {
	a.sync.Activate(ctx, a.sess.UserID)
	render(a.sync.Snapshot())
	return nil
}

func (a *app) add(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	title := fs.String("title", "", "task title (required)")
	desc := fs.String("desc", "", "task description")
	priority := fs.String("priority", "", "low, normal or high")
	due := fs.String("due", "", "due date (YYYY-MM-DD)")
	fs.Parse(args)

	input := syncer.CreateInput{Title: *title, Priority: *priority}
	if *desc != "" {
		input.Description = desc
	}
	if *due != "" {
		date, err := time.Parse("2006-01-02", *due)
		if err != nil {
			return fmt.Errorf("parse due date: %w", err)
		}
		input.DueDate = &date
	}

	a.sync.Activate(ctx, a.sess.UserID)
	task, err := a.sync.Create(ctx, input)
	if err != nil {
		return err
	}
	fmt.Printf("created %s\n", task.ID)
	return nil
}

func (a *app) edit(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("edit: task id required")
	}
	id := args[0]

	fs := flag.NewFlagSet("edit", flag.ExitOnError)
	title := fs.String("title", "", "new title")
	desc := fs.String("desc", "", "new description (empty string clears it)")
	priority := fs.String("priority", "", "low, normal or high")
	due := fs.String("due", "", "new due date (YYYY-MM-DD)")
	fs.Parse(args[1:])

	var patch store.TaskPatch
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "title":
			patch.Title = title
		case "desc":
			patch.Description = desc
		case "priority":
			patch.Priority = priority
		}
	})
	if *due != "" {
		date, err := time.Parse("2006-01-02", *due)
		if err != nil {
			return fmt.Errorf("parse due date: %w", err)
		}
		patch.DueDate = &date
	}

	a.sync.Activate(ctx, a.sess.UserID)
	if err := a.sync.Update(ctx, id, patch); err != nil {
		if store.IsNotFound(err) {
			return fmt.Errorf("no task with id %s", id)
		}
		return err
	}
	return nil
}

func (a *app) done(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("done: task id required")
	}
	id := args[0]

	a.sync.Activate(ctx, a.sess.UserID)
	current := false
	for _, t := range a.sync.Snapshot().Tasks {
		if t.ID == id {
			current = t.IsComplete
			break
		}
	}
	if err := a.sync.Toggle(ctx, id, current); err != nil {
		return err
	}
	if msg := a.sync.Snapshot().Err; msg != "" {
		fmt.Fprintf(os.Stderr, "warning: %s\n", msg)
	}
	return nil
}

func (a *app) remove(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("rm: task id required")
	}
	a.sync.Activate(ctx, a.sess.UserID)
	if err := a.sync.Delete(ctx, args[0]); err != nil {
		if store.IsNotFound(err) {
			return fmt.Errorf("no task with id %s", args[0])
		}
		return err
	}
	return nil
}

// watch follows live changes until interrupted, re-rendering on every state
// transition and re-activating on session change.
func (a *app) watch(ctx context.Context) error {
	a.sync.SetOnChange(func(state syncer.State) {
		render(state)
	})
	a.sync.Activate(ctx, a.sess.UserID)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case sess := <-a.provider.Sessions():
			log.Printf("[INFO] session changed, resyncing")
			a.sess = sess
			a.sync.Activate(ctx, sess.UserID)
		case <-quit:
			log.Println("Shutting down")
			return nil
		}
	}
}

func render(state syncer.State) {
	if state.Loading {
		fmt.Println("loading...")
		return
	}
	if state.Err != "" {
		fmt.Fprintf(os.Stderr, "error: %s\n", state.Err)
	}

	now := time.Now()
	for _, t := range state.Tasks {
		mark := " "
		if t.IsComplete {
			mark = "x"
		}
		line := fmt.Sprintf("[%s] %-8s %s  %s", mark, t.Priority, t.ID[:8], t.Title)
		if t.DueDate.Valid {
			line += fmt.Sprintf("  (due %s)", t.DueDate.Time.Format("2006-01-02"))
			if t.Overdue(now) {
				line += " OVERDUE"
			}
		}
		fmt.Println(line)
	}
	fmt.Printf("%d total / %d done / %d pending / %d overdue\n",
		state.Stats.Total, state.Stats.Completed, state.Stats.Pending, state.Stats.Overdue)
}
