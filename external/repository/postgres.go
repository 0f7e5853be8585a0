package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/foxseedlab/sessiondesk/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	defaultListLimit   = 50
	healthCheckPeriod  = time.Minute
	applicationNameKey = "application_name"
)

type PoolOptions struct {
	URL         string
	MaxConns    int32
	MaxConnIdle time.Duration
}

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// OpenPostgres connects, pings and migrates. The returned repository owns
// the pool.
func OpenPostgres(ctx context.Context, opts PoolOptions) (*PostgresRepository, error) {
	poolCfg, err := poolConfig(opts)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migration: %w", err)
	}
	return NewPostgresRepository(pool), nil
}

func poolConfig(opts PoolOptions) (*pgxpool.Config, error) {
	cfg, err := pgxpool.ParseConfig(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid database url: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	if opts.MaxConnIdle > 0 {
		cfg.MaxConnIdleTime = opts.MaxConnIdle
	}
	cfg.HealthCheckPeriod = healthCheckPeriod
	if _, ok := cfg.ConnConfig.RuntimeParams[applicationNameKey]; !ok {
		cfg.ConnConfig.RuntimeParams[applicationNameKey] = "sessiondesk"
	}
	return cfg, nil
}

// Shutdown closes the pool once in-flight queries have returned.
func (r *PostgresRepository) Shutdown() {
	r.pool.Close()
}

// SaveSessionRecord is an upsert so a retried save of the same session
// does not create a duplicate.
func (r *PostgresRepository) SaveSessionRecord(ctx context.Context, input repository.SaveSessionRecordInput) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO session_records (id, desk_id, patient_ref, appointment_ref, started_at, ended_at, duration_seconds, notes)
		 VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE SET
		   ended_at = EXCLUDED.ended_at,
		   duration_seconds = EXCLUDED.duration_seconds,
		   notes = EXCLUDED.notes`,
		input.SessionID, input.DeskID, input.PatientRef, input.AppointmentRef,
		input.StartedAt, input.EndedAt, input.DurationSeconds, input.Notes)
	if err != nil {
		return fmt.Errorf("save session record %s: %w", input.SessionID, err)
	}
	return nil
}

func (r *PostgresRepository) ListSessionRecordsByPatient(ctx context.Context, patientRef string, limit int) ([]repository.SessionRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id, desk_id, patient_ref, COALESCE(appointment_ref, ''), started_at, ended_at, duration_seconds, notes, created_at
		 FROM session_records WHERE patient_ref = $1 ORDER BY started_at DESC LIMIT $2`,
		patientRef, limit)
	if err != nil {
		return nil, err
	}
	list, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (repository.SessionRecord, error) {
		var rec repository.SessionRecord
		err := row.Scan(&rec.ID, &rec.DeskID, &rec.PatientRef, &rec.AppointmentRef, &rec.StartedAt, &rec.EndedAt, &rec.DurationSeconds, &rec.Notes, &rec.CreatedAt)
		return rec, err
	})
	if err != nil {
		return nil, fmt.Errorf("list session records: %w", err)
	}
	return list, nil
}

func (r *PostgresRepository) UpdateAppointmentStatus(ctx context.Context, appointmentRef string, status repository.AppointmentStatus) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO appointments (ref, status, updated_at) VALUES ($1, $2, NOW())
		 ON CONFLICT (ref) DO UPDATE SET status = EXCLUDED.status, updated_at = NOW()`,
		appointmentRef, string(status))
	if err != nil {
		return fmt.Errorf("update appointment %s: %w", appointmentRef, err)
	}
	return nil
}
