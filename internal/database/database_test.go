package database

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"

	"github.com/lawnchairsociety/bossmind/internal/config"
	"github.com/lawnchairsociety/bossmind/internal/perflog"
	"github.com/lawnchairsociety/bossmind/internal/store"
)

func openTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpen(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}

	// Verify tables exist by running a simple query
	for _, table := range []string{"personality_probabilities", "runs", "performance_events"} {
		var count int
		if err := db.db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count); err != nil {
			t.Errorf("Failed to query %s table: %v", table, err)
		}
	}

	var runs int
	if err := db.db.QueryRow("SELECT COUNT(*) FROM runs").Scan(&runs); err != nil || runs != 1 {
		t.Errorf("runs = %d (%v), want the current run registered", runs, err)
	}
}

func TestOpenCreatesDirectory(t *testing.T) {
	nestedPath := filepath.Join(t.TempDir(), "nested", "dir", "test.db")

	db, err := Open(nestedPath)
	if err != nil {
		t.Fatalf("Failed to open database with nested path: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(nestedPath); os.IsNotExist(err) {
		t.Error("Database file was not created in nested directory")
	}
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Save(map[string]float64{"Balanced": 1}); err != nil {
		t.Fatal(err)
	}
	first := db.RunID()
	db.Close()

	db, err = Open(path)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer db.Close()

	if db.RunID() == first {
		t.Error("reopened database reused the run id")
	}
	got, err := db.Load()
	if err != nil {
		t.Fatal(err)
	}
	if got["Balanced"] != 1 {
		t.Errorf("Load after reopen = %v", got)
	}
}

func TestProbabilitiesRoundTrip(t *testing.T) {
	db := openTestDB(t)

	empty, err := db.Load()
	if err != nil {
		t.Fatalf("Load on empty table: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("Load on empty table = %v", empty)
	}

	saved := map[string]float64{"Balanced": 0.4, "Aggressive": 0.35, "Defensive_MutHeavy1": 0.25}
	if err := db.Save(saved); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := db.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(saved, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	// A later save without a pruned name drops it.
	next := map[string]float64{"Balanced": 0.5, "Aggressive": 0.5}
	if err := db.Save(next); err != nil {
		t.Fatal(err)
	}
	got, _ = db.Load()
	if diff := cmp.Diff(next, got); diff != "" {
		t.Errorf("after prune mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadSkipsInvalidRows(t *testing.T) {
	db := openTestDB(t)
	insert := db.qb.Build(`INSERT INTO personality_probabilities (name, probability, schema_version, saved_at) VALUES (?, ?, ?, ?)`)
	rows := []struct {
		name    string
		p       float64
		version int
	}{
		{"Balanced", 0.7, store.SchemaVersion},
		{"Future", 0.2, store.SchemaVersion + 1},
		{"Negative", -1, store.SchemaVersion},
		{"", 0.1, store.SchemaVersion},
	}
	for _, r := range rows {
		if _, err := db.db.Exec(insert, r.name, r.p, r.version, time.Now()); err != nil {
			t.Fatal(err)
		}
	}

	got, err := db.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(map[string]float64{"Balanced": 0.7}, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestArchiveAndEvents(t *testing.T) {
	db := openTestDB(t)
	base := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	entries := []perflog.Entry{
		{Personality: "Balanced", Metric: perflog.MetricUsage, Value: 1, Timestamp: base},
		{Personality: "Balanced", Metric: perflog.MetricDamageDealt, Value: 10, Timestamp: base.Add(time.Second)},
		{Personality: "Balanced", Metric: perflog.MetricDamageTaken, Value: 4, Timestamp: base.Add(2 * time.Second)},
		{Personality: "Berserker", Metric: perflog.MetricUsage, Value: 1, Timestamp: base.Add(3 * time.Second)},
		{Personality: "Berserker", Metric: perflog.MetricDamageDealt, Value: 25, Timestamp: base.Add(4 * time.Second)},
	}
	for _, e := range entries {
		if err := db.Archive(e); err != nil {
			t.Fatalf("Archive: %v", err)
		}
	}

	got, err := db.Events(db.RunID())
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if diff := cmp.Diff(entries, got, cmpopts.EquateApproxTime(time.Millisecond)); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}

	stats, err := db.ArchivedStats()
	if err != nil {
		t.Fatalf("ArchivedStats: %v", err)
	}
	want := map[string]perflog.Stats{
		"Balanced":  {DamageDealt: 10, DamageTaken: 4, UsageCount: 1},
		"Berserker": {DamageDealt: 25, UsageCount: 1},
	}
	if diff := cmp.Diff(want, stats); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}
}

func TestRunsAndDeleteRun(t *testing.T) {
	db := openTestDB(t)
	if err := db.Archive(perflog.Entry{Personality: "A", Metric: perflog.MetricUsage, Value: 1, Timestamp: time.Now()}); err != nil {
		t.Fatal(err)
	}

	runs, err := db.Runs()
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != db.RunID().String() || runs[0].Events != 1 {
		t.Fatalf("runs = %+v", runs)
	}

	if err := db.DeleteRun(db.RunID()); err != nil {
		t.Fatalf("DeleteRun: %v", err)
	}
	events, err := db.Events(db.RunID())
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 0 {
		t.Errorf("events survived run deletion: %v", events)
	}
}

func TestPerfLogArchivesThroughSink(t *testing.T) {
	db := openTestDB(t)
	log := perflog.New(10, perflog.WithSink(db))
	log.Record("Tactician", perflog.MetricDamageDealt, 12)

	events, err := db.Events(db.RunID())
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Personality != "Tactician" || events[0].Value != 12 {
		t.Errorf("archived = %+v", events)
	}
}

func TestSkipRun(t *testing.T) {
	cfg := DefaultConfig(filepath.Join(t.TempDir(), "copy.db"))
	cfg.SkipRun = true
	db, err := OpenWithConfig(cfg)
	if err != nil {
		t.Fatalf("OpenWithConfig: %v", err)
	}
	defer db.Close()

	if db.RunID() != uuid.Nil {
		t.Errorf("RunID() = %v, want nil uuid", db.RunID())
	}
	runs, err := db.Runs()
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 0 {
		t.Errorf("runs = %+v, want none", runs)
	}
}

func TestImportRun(t *testing.T) {
	src := openTestDB(t)
	base := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	entries := []perflog.Entry{
		{Personality: "Defensive", Metric: perflog.MetricUsage, Value: 1, Timestamp: base},
		{Personality: "Defensive", Metric: perflog.MetricDamageTaken, Value: 7, Timestamp: base.Add(time.Second)},
	}
	for _, e := range entries {
		if err := src.Archive(e); err != nil {
			t.Fatal(err)
		}
	}
	runs, err := src.Runs()
	if err != nil || len(runs) != 1 {
		t.Fatalf("Runs() = %+v, %v", runs, err)
	}

	cfg := DefaultConfig(filepath.Join(t.TempDir(), "dst.db"))
	cfg.SkipRun = true
	dst, err := OpenWithConfig(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer dst.Close()

	if err := dst.ImportRun(runs[0], entries); err != nil {
		t.Fatalf("ImportRun: %v", err)
	}
	got, err := dst.Events(src.RunID())
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(entries, got, cmpopts.EquateApproxTime(time.Millisecond)); diff != "" {
		t.Errorf("imported events mismatch (-want +got):\n%s", diff)
	}

	if err := dst.ImportRun(runs[0], entries); !errors.Is(err, ErrRunExists) {
		t.Errorf("second ImportRun error = %v, want ErrRunExists", err)
	}
	got, _ = dst.Events(src.RunID())
	if len(got) != len(entries) {
		t.Errorf("failed import left %d events, want %d", len(got), len(entries))
	}
}

func TestConfigFromPersistence(t *testing.T) {
	p := config.DefaultConfig().Persistence
	p.Driver = "postgres"
	p.Postgres.Host = "db.internal"
	p.Postgres.User = "boss"
	p.Postgres.ConnMaxLifetimeMinutes = 2

	cfg := ConfigFromPersistence(p)
	if cfg.Driver != "postgres" || cfg.SQLitePath != p.SQLitePath {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Postgres.Host != "db.internal" || cfg.Postgres.Port != 5432 || cfg.Postgres.User != "boss" {
		t.Errorf("postgres = %+v", cfg.Postgres)
	}
	if cfg.Postgres.ConnMaxLifetime != 2*time.Minute {
		t.Errorf("ConnMaxLifetime = %v", cfg.Postgres.ConnMaxLifetime)
	}
	if cfg.Postgres.MaxOpenConns != 10 {
		t.Errorf("MaxOpenConns = %d, want 10 from the boss config", cfg.Postgres.MaxOpenConns)
	}

	p.Postgres = config.PostgresConfig{}
	if got := ConfigFromPersistence(p).Postgres; got.Port != 5432 || got.MaxOpenConns != 25 {
		t.Errorf("empty postgres section = %+v, want pool defaults", got)
	}
}
