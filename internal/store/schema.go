package store

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is applied in order; every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS people (
		id          TEXT PRIMARY KEY,
		name        TEXT NOT NULL,
		card_id     TEXT NOT NULL UNIQUE,
		class_name  TEXT NOT NULL DEFAULT '',
		contact     TEXT NOT NULL DEFAULT '',
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS attendance_marks (
		id          TEXT PRIMARY KEY,
		person_id   TEXT NOT NULL REFERENCES people(id) ON DELETE CASCADE,
		mark_date   DATE NOT NULL,
		marked_at   TIMESTAMPTZ NOT NULL,
		status      TEXT NOT NULL CHECK (status IN ('present', 'absent')),
		auto_marked BOOLEAN NOT NULL DEFAULT FALSE,
		UNIQUE (person_id, mark_date)
	)`,
	`CREATE INDEX IF NOT EXISTS attendance_marks_date_idx ON attendance_marks (mark_date)`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id          TEXT PRIMARY KEY,
		person_id   TEXT NOT NULL REFERENCES people(id) ON DELETE CASCADE,
		kind        TEXT NOT NULL,
		message     TEXT NOT NULL,
		absent_days INTEGER NOT NULL,
		status      TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'sent')),
		sent_at     TIMESTAMPTZ,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS notifications_status_idx ON notifications (status, created_at)`,
	`CREATE TABLE IF NOT EXISTS daily_reports (
		report_date DATE PRIMARY KEY,
		day_number  INTEGER NOT NULL,
		total       INTEGER NOT NULL,
		present     INTEGER NOT NULL,
		absent      INTEGER NOT NULL,
		rate        DOUBLE PRECISION NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// Migrate creates the tables the attendance repository uses.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i+1, err)
		}
	}
	return nil
}
