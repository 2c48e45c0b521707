package boss

import (
	"errors"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/lawnchairsociety/bossmind/internal/arena"
	"github.com/lawnchairsociety/bossmind/internal/config"
	"github.com/lawnchairsociety/bossmind/internal/perflog"
	"github.com/lawnchairsociety/bossmind/internal/store"
)

func TestOpenPersistence(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name     string
		cfg      config.PersistenceConfig
		wantSink bool
		wantDB   bool
		wantErr  error
	}{
		{name: "none", cfg: config.PersistenceConfig{Driver: "none"}},
		{name: "file", cfg: config.PersistenceConfig{Driver: "file", FilePath: filepath.Join(dir, "p.yaml")}},
		{name: "sqlite", cfg: config.PersistenceConfig{Driver: "sqlite", SQLitePath: filepath.Join(dir, "a.db")}, wantDB: true},
		{name: "sqlite archive", cfg: config.PersistenceConfig{Driver: "sqlite", SQLitePath: filepath.Join(dir, "b.db"), ArchiveEvents: true}, wantSink: true, wantDB: true},
		{name: "unknown", cfg: config.PersistenceConfig{Driver: "redis"}, wantErr: ErrUnknownDriver},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := OpenPersistence(tt.cfg)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("OpenPersistence() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("OpenPersistence() error = %v", err)
			}
			defer p.Close()

			if p.Store == nil {
				t.Fatal("Store is nil")
			}
			if (p.Sink != nil) != tt.wantSink {
				t.Errorf("Sink = %v, want set = %v", p.Sink, tt.wantSink)
			}
			if (p.Database() != nil) != tt.wantDB {
				t.Errorf("Database() = %v, want set = %v", p.Database(), tt.wantDB)
			}
		})
	}
}

func TestFileStoreFeedsNextRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "personalities.yaml")
	cfg := testConfig()

	first, _ := newTestBrain(t, cfg, WithStore(store.NewFileStore(path)))
	first.Allocator().RecordDamageDealt(50)
	first.Allocator().SelectNext()
	if err := first.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	want := first.Allocator().Probabilities()

	loaded, err := store.NewFileStore(path).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if diff := cmp.Diff(want, loaded, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Errorf("saved probabilities mismatch (-want +got):\n%s", diff)
	}
}

func TestDatabaseArchivesRun(t *testing.T) {
	cfg := testConfig()
	cfg.Persistence.Driver = "sqlite"
	cfg.Persistence.SQLitePath = filepath.Join(t.TempDir(), "boss.db")
	cfg.Persistence.ArchiveEvents = true
	cfg.Persistence.SaveOnSelect = true

	p, err := OpenPersistence(cfg.Persistence)
	if err != nil {
		t.Fatalf("OpenPersistence() error = %v", err)
	}
	defer p.Close()

	perf := perflog.New(cfg.PerfLog.Capacity, perflog.WithSink(p.Sink))
	a := arena.New(arena.DefaultOptions())
	b, err := New(cfg, worldOf(a), rand.New(rand.NewSource(3)), WithStore(p.Store), WithPerfLog(perf))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	b.TakeDamage(4)
	p.Flush()

	events, err := p.Database().Events(p.Database().RunID())
	if err != nil {
		t.Fatalf("Events() error = %v", err)
	}
	// One usage entry from activation plus the damage taken.
	if len(events) != 2 {
		t.Fatalf("archived %d events, want 2: %+v", len(events), events)
	}
	if events[1].Metric != perflog.MetricDamageTaken || events[1].Value != 4 {
		t.Errorf("events[1] = %+v", events[1])
	}

	saved, err := p.Store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if diff := cmp.Diff(b.Allocator().Probabilities(), saved, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Errorf("stored probabilities mismatch (-want +got):\n%s", diff)
	}
}
