// Package audit persists scaling events to Postgres for offline
// review. With no DSN configured the recorder is disabled and every
// call is a no-op.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/lib/pq"
	log "github.com/sirupsen/logrus"

	"github.com/loadpilot/loadpilot/pkg/types"
)

type Recorder struct {
	db *sql.DB
}

// Open connects the recorder to Postgres. An empty DSN returns a
// disabled recorder rather than an error.
func Open(dsn string) (*Recorder, error) {
	if dsn == "" {
		return &Recorder{}, nil
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &Recorder{db: db}, nil
}

// Enabled reports whether events are being persisted
func (r *Recorder) Enabled() bool {
	return r.db != nil
}

// EnsureSchema creates the scaling_events table if it does not exist
func (r *Recorder) EnsureSchema(ctx context.Context) error {
	if r.db == nil {
		return nil
	}
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS scaling_events (
			id             TEXT PRIMARY KEY,
			occurred_at    TIMESTAMPTZ NOT NULL,
			policy_name    TEXT NOT NULL,
			action         TEXT NOT NULL,
			reason         TEXT NOT NULL,
			from_instances INT NOT NULL,
			to_instances   INT NOT NULL,
			metrics        JSONB,
			success        BOOLEAN NOT NULL,
			error          TEXT
		)`)
	return err
}

// Record writes one scaling event. Failures are logged and swallowed;
// audit persistence is never allowed to affect scaling behavior.
func (r *Recorder) Record(ctx context.Context, event types.ScalingEvent) {
	if r.db == nil {
		return
	}

	metricsJSON, _ := json.Marshal(event.Metrics)

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO scaling_events (
			id, occurred_at, policy_name, action, reason,
			from_instances, to_instances, metrics, success, error
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		event.ID,
		event.Timestamp,
		event.PolicyName,
		string(event.Action),
		event.Reason,
		event.FromInstances,
		event.ToInstances,
		metricsJSON,
		event.Success,
		sql.NullString{String: event.Error, Valid: event.Error != ""},
	)
	if err != nil {
		log.Errorf("Failed to write scaling event audit: %v", err)
	}
}

// Close releases the database handle
func (r *Recorder) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}
