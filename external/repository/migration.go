package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// migrationLockKey serializes schema setup when several instances boot
// against the same database.
const migrationLockKey int64 = 0x5e55_1014

var schema = []string{
	`DO $$ BEGIN CREATE TYPE appointment_status AS ENUM ('completed', 'cancelled'); EXCEPTION WHEN duplicate_object THEN NULL; END $$`,
	`CREATE TABLE IF NOT EXISTS session_records (
		id UUID PRIMARY KEY,
		desk_id TEXT NOT NULL,
		patient_ref TEXT NOT NULL,
		appointment_ref TEXT,
		started_at TIMESTAMPTZ NOT NULL,
		ended_at TIMESTAMPTZ NOT NULL,
		duration_seconds BIGINT NOT NULL CHECK (duration_seconds >= 0),
		notes TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_session_records_patient ON session_records (patient_ref, started_at DESC)`,
	`CREATE TABLE IF NOT EXISTS appointments (
		ref TEXT PRIMARY KEY,
		status appointment_status NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// migrate applies the schema in one transaction under an advisory lock.
// Every statement is idempotent.
func migrate(ctx context.Context, pool *pgxpool.Pool) error {
	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, migrationLockKey); err != nil {
			return fmt.Errorf("acquire migration lock: %w", err)
		}
		for n, stmt := range schema {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("schema statement %d: %w", n+1, err)
			}
		}
		return nil
	})
}
