package main

import (
	"log"

	"github.com/joho/godotenv"

	"github.com/taskdeck/taskdeck/internal/config"
	"github.com/taskdeck/taskdeck/internal/store"
)

// Statements run in order and are safe to re-run.
var statements = []string{
	`CREATE EXTENSION IF NOT EXISTS pgcrypto`,

	`CREATE TABLE IF NOT EXISTS tasks (
		id          uuid PRIMARY KEY DEFAULT gen_random_uuid(),
		user_id     text NOT NULL,
		title       text NOT NULL CHECK (char_length(title) BETWEEN 1 AND 500),
		description text CHECK (char_length(description) <= 2000),
		is_complete boolean NOT NULL DEFAULT false,
		priority    text NOT NULL DEFAULT 'normal' CHECK (priority IN ('low', 'normal', 'high')),
		due_date    date,
		created_at  timestamptz NOT NULL DEFAULT now(),
		updated_at  timestamptz NOT NULL DEFAULT now()
	)`,

	`CREATE INDEX IF NOT EXISTS tasks_user_created_idx ON tasks (user_id, created_at DESC)`,

	`CREATE OR REPLACE FUNCTION touch_updated_at() RETURNS trigger AS $$
	BEGIN
		NEW.updated_at = now();
		RETURN NEW;
	END;
	$$ LANGUAGE plpgsql`,

	`DROP TRIGGER IF EXISTS tasks_touch_updated_at ON tasks`,

	`CREATE TRIGGER tasks_touch_updated_at BEFORE UPDATE ON tasks
		FOR EACH ROW EXECUTE FUNCTION touch_updated_at()`,

	`CREATE OR REPLACE FUNCTION notify_task_change() RETURNS trigger AS $$
	DECLARE
		rec record;
	BEGIN
		IF TG_OP = 'DELETE' THEN
			rec := OLD;
		ELSE
			rec := NEW;
		END IF;
		PERFORM pg_notify('task_events', json_build_object('op', TG_OP, 'row', row_to_json(rec))::text);
		RETURN NULL;
	END;
	$$ LANGUAGE plpgsql`,

	`DROP TRIGGER IF EXISTS tasks_notify_change ON tasks`,

	`CREATE TRIGGER tasks_notify_change AFTER INSERT OR UPDATE OR DELETE ON tasks
		FOR EACH ROW EXECUTE FUNCTION notify_task_change()`,
}

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := store.Open(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	log.Println("Running database migrations...")
	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			log.Fatalf("Failed to run migration: %v\nstatement: %s", err, stmt)
		}
	}
	log.Println("Migrations completed successfully")
}
