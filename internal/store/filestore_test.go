package store

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	s := NewFileStore(filepath.Join(t.TempDir(), "data", "personalities.yaml"))
	s.now = func() time.Time { return time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC) }
	return s
}

func writeRaw(t *testing.T, s *FileStore, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(s.Path()), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(s.Path(), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	s := newTestStore(t)
	saved := map[string]float64{
		"Balanced":            0.3,
		"Aggressive":          0.25,
		"Defensive":           0.05,
		"Berserker":           0.2,
		"Tactician_MutSpeed1": 0.1,
		"Tactician":           0.1,
	}
	if err := s.Save(saved); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(saved, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	raw, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"schema_version: 1", "saved_at:", "2026-03-01 12:30:00 UTC", "checksum:"} {
		if !strings.Contains(string(raw), want) {
			t.Errorf("save missing %q:\n%s", want, raw)
		}
	}
	if _, err := os.Stat(s.Path() + ".tmp"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("temporary file left behind: %v", err)
	}
}

func TestFileStoreMissingFile(t *testing.T) {
	s := newTestStore(t)
	got, err := s.Load()
	if err != nil {
		t.Fatalf("Load on missing file: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("got %v, want empty non-nil map", got)
	}
}

func TestFileStoreMalformed(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"invalid yaml", "personalities: [unterminated\n"},
		{"wrong shape", "personalities: 42\n"},
		{"future schema", "schema_version: 99\npersonalities:\n  - name: Balanced\n    probability: 1\n"},
		{"checksum mismatch", "schema_version: 1\nchecksum: deadbeef\npersonalities:\n  - name: Balanced\n    probability: 1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t)
			writeRaw(t, s, tt.content)

			got, err := s.Load()
			if !errors.Is(err, ErrMalformed) {
				t.Errorf("err = %v, want ErrMalformed", err)
			}
			if got == nil || len(got) != 0 {
				t.Errorf("got %v, want empty map", got)
			}
		})
	}
}

func TestFileStoreSkipsBadEntries(t *testing.T) {
	s := newTestStore(t)
	writeRaw(t, s, `schema_version: 1
saved_at: not a time
personalities:
  - name: Balanced
    probability: 0.6
  - name: ""
    probability: 0.2
  - name: Broken
    probability: .nan
  - name: Negative
    probability: -0.5
  - name: Aggressive
    probability: 0.4
`)

	got, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := map[string]float64{"Balanced": 0.6, "Aggressive": 0.4}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("entries mismatch (-want +got):\n%s", diff)
	}
}

func TestFileStoreInspect(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Inspect(); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("Inspect on missing file err = %v, want not exist", err)
	}

	if err := s.Save(map[string]float64{"A": 0.5, "B": 0.5}); err != nil {
		t.Fatal(err)
	}
	info, err := s.Inspect()
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if info.Entries != 2 || info.SchemaVersion != SchemaVersion || info.Size == 0 {
		t.Errorf("info = %+v", info)
	}
	if want := s.now(); !info.SavedAt.Equal(want) {
		t.Errorf("SavedAt = %v, want %v", info.SavedAt, want)
	}
}

func TestNop(t *testing.T) {
	var s Store = Nop{}
	if err := s.Save(map[string]float64{"A": 1}); err != nil {
		t.Fatal(err)
	}
	got, err := s.Load()
	if err != nil || len(got) != 0 {
		t.Errorf("Load = %v, %v; want empty", got, err)
	}
}
