package database

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lawnchairsociety/bossmind/internal/perflog"
)

// archivedEvent is a performance entry tagged with its run.
type archivedEvent struct {
	RunID string `db:"run_id"`
	perflog.Entry
}

// Run summarizes one archived process run.
type Run struct {
	ID        string    `db:"id"`
	StartedAt time.Time `db:"started_at"`
	Events    int       `db:"events"`
}

// ErrRunExists is returned by ImportRun for a run id already present.
var ErrRunExists = errors.New("run already archived")

var _ perflog.Sink = (*Database)(nil)

// Archive stores one performance entry under the current run.
func (d *Database) Archive(entry perflog.Entry) error {
	entry.Timestamp = entry.Timestamp.UTC()
	_, err := d.db.NamedExec(`
		INSERT INTO performance_events (run_id, personality, metric, value, recorded_at)
		VALUES (:run_id, :personality, :metric, :value, :recorded_at)
	`, archivedEvent{RunID: d.runID.String(), Entry: entry})
	if err != nil {
		return fmt.Errorf("failed to archive performance event: %w", err)
	}
	return nil
}

// Events returns a run's archived entries in recording order.
func (d *Database) Events(runID uuid.UUID) ([]perflog.Entry, error) {
	var entries []perflog.Entry
	err := d.db.Select(&entries, d.qb.Build(`
		SELECT personality, metric, value, recorded_at
		FROM performance_events
		WHERE run_id = ?
		ORDER BY id ASC
	`), runID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to load performance events: %w", err)
	}
	return entries, nil
}

// ArchivedStats aggregates every archived entry across all runs.
func (d *Database) ArchivedStats() (map[string]perflog.Stats, error) {
	var rows []struct {
		Personality string  `db:"personality"`
		Metric      string  `db:"metric"`
		Count       int     `db:"n"`
		Total       float64 `db:"total"`
	}
	err := d.db.Select(&rows, `
		SELECT personality, metric, COUNT(*) AS n, SUM(value) AS total
		FROM performance_events
		GROUP BY personality, metric
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate performance events: %w", err)
	}

	stats := make(map[string]perflog.Stats)
	for _, r := range rows {
		s := stats[r.Personality]
		switch r.Metric {
		case perflog.MetricDamageDealt:
			s.DamageDealt += r.Total
		case perflog.MetricDamageTaken:
			s.DamageTaken += r.Total
		case perflog.MetricUsage:
			s.UsageCount += r.Count
		}
		stats[r.Personality] = s
	}
	return stats, nil
}

// Runs lists archived runs, oldest first.
func (d *Database) Runs() ([]Run, error) {
	var runs []Run
	err := d.db.Select(&runs, `
		SELECT r.id, r.started_at, COUNT(e.id) AS events
		FROM runs r
		LEFT JOIN performance_events e ON e.run_id = r.id
		GROUP BY r.id, r.started_at
		ORDER BY r.started_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// DeleteRun removes a run and, by cascade, its events.
func (d *Database) DeleteRun(runID uuid.UUID) error {
	_, err := d.db.Exec(d.qb.Build(`DELETE FROM runs WHERE id = ?`), runID.String())
	return err
}

// ImportRun copies a run and its events from another database in one
// transaction.
func (d *Database) ImportRun(run Run, events []perflog.Entry) error {
	tx, err := d.db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(d.qb.Build(`INSERT INTO runs (id, started_at) VALUES (?, ?)`),
		run.ID, run.StartedAt.UTC())
	if err != nil {
		if d.dialect.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s", ErrRunExists, run.ID)
		}
		return fmt.Errorf("failed to import run %s: %w", run.ID, err)
	}

	for _, e := range events {
		e.Timestamp = e.Timestamp.UTC()
		_, err := tx.NamedExec(`
			INSERT INTO performance_events (run_id, personality, metric, value, recorded_at)
			VALUES (:run_id, :personality, :metric, :value, :recorded_at)
		`, archivedEvent{RunID: run.ID, Entry: e})
		if err != nil {
			return fmt.Errorf("failed to import event for run %s: %w", run.ID, err)
		}
	}
	return tx.Commit()
}
