package postgres

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS rooms (
		id         TEXT PRIMARY KEY,
		type       TEXT NOT NULL,
		name       TEXT NOT NULL,
		max_guests INT  NOT NULL,
		position   BIGSERIAL
	)`,
	`CREATE INDEX IF NOT EXISTS rooms_type_idx ON rooms (type, position)`,
	`CREATE TABLE IF NOT EXISTS programs (
		id               TEXT PRIMARY KEY,
		name             TEXT    NOT NULL,
		available        BOOLEAN NOT NULL DEFAULT TRUE,
		max_participants INT     NOT NULL DEFAULT 0,
		stock_quantity   INT     NOT NULL DEFAULT 0,
		time_slots       TEXT[]  NOT NULL DEFAULT '{}'
	)`,
	`CREATE TABLE IF NOT EXISTS reservations (
		id              TEXT PRIMARY KEY,
		idempotency_key TEXT UNIQUE,
		guest           JSONB       NOT NULL,
		room_id         TEXT REFERENCES rooms (id),
		room_type       TEXT        NOT NULL DEFAULT '',
		check_in        TIMESTAMPTZ NOT NULL,
		check_out       TIMESTAMPTZ NOT NULL,
		adults          INT         NOT NULL,
		children        INT         NOT NULL,
		options         JSONB       NOT NULL DEFAULT '[]',
		status          TEXT        NOT NULL,
		breakdown       JSONB       NOT NULL,
		total           BIGINT      NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS reservations_room_idx ON reservations (room_id, check_in, check_out)`,
	`CREATE TABLE IF NOT EXISTS reservation_programs (
		reservation_id TEXT NOT NULL REFERENCES reservations (id),
		program_id     TEXT NOT NULL REFERENCES programs (id),
		date           DATE NOT NULL,
		time_slot      TEXT NOT NULL DEFAULT '',
		quantity       INT  NOT NULL,
		status         TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS reservation_programs_lookup_idx ON reservation_programs (program_id, date, time_slot)`,
	`CREATE TABLE IF NOT EXISTS reservation_events (
		id             UUID PRIMARY KEY,
		reservation_id TEXT        NOT NULL,
		type           TEXT        NOT NULL,
		created_at     TIMESTAMPTZ NOT NULL
	)`,
}

// Migrate creates the tables if they do not exist yet.
func (db *DB) Migrate(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := db.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i, err)
		}
	}

	db.l.LogInfo("Postgres schema is up to date")

	return nil
}
