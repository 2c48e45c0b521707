package store

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/crypto/blake2b"
	"gopkg.in/yaml.v3"

	"github.com/lawnchairsociety/bossmind/internal/logger"
)

// savedAtLayout is the human-readable timestamp format of saves.
const savedAtLayout = "2006-01-02 15:04:05 MST"

// SaveData is the serialized form of a personality save.
type SaveData struct {
	SchemaVersion int          `yaml:"schema_version"`
	SavedAt       string       `yaml:"saved_at"`
	Checksum      string       `yaml:"checksum,omitempty"`
	Personalities []SavedEntry `yaml:"personalities"`
}

// SavedEntry is one personality's saved probability.
type SavedEntry struct {
	Name        string  `yaml:"name"`
	Probability float64 `yaml:"probability"`
}

// Info summarizes a save without applying it.
type Info struct {
	Path          string
	SchemaVersion int
	SavedAt       time.Time
	Entries       int
	Size          int64
}

// FileStore keeps the mapping in a YAML file.
type FileStore struct {
	path string
	now  func() time.Time
}

// NewFileStore returns a store backed by path. The file and its directory
// are created on first save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, now: time.Now}
}

// Path returns the backing file path.
func (s *FileStore) Path() string { return s.path }

// Save writes the mapping atomically, entries sorted by name.
func (s *FileStore) Save(probabilities map[string]float64) error {
	entries := make([]SavedEntry, 0, len(probabilities))
	for name, p := range probabilities {
		entries = append(entries, SavedEntry{Name: name, Probability: p})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	data := SaveData{
		SchemaVersion: SchemaVersion,
		SavedAt:       s.now().Format(savedAtLayout),
		Checksum:      checksum(entries),
		Personalities: entries,
	}

	yamlData, err := yaml.Marshal(&data)
	if err != nil {
		return fmt.Errorf("failed to marshal personality save: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create save directory: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, yamlData, 0644); err != nil {
		return fmt.Errorf("failed to write personality save: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace personality save: %w", err)
	}

	logger.Always("Saved personality probabilities",
		"path", s.path,
		"entries", len(entries),
		"size", humanize.Bytes(uint64(len(yamlData))))
	return nil
}

// Load reads the mapping back. See Store for the failure contract.
func (s *FileStore) Load() (map[string]float64, error) {
	result := make(map[string]float64)

	data, err := s.read()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return result, nil
		}
		return result, err
	}

	skipped := 0
	for _, e := range data.Personalities {
		if !validEntry(e) {
			skipped++
			continue
		}
		result[e.Name] = e.Probability
	}
	if skipped > 0 {
		logger.Warning("Skipped invalid saved personality entries", "path", s.path, "skipped", skipped)
	}

	args := []any{"path", s.path, "entries", len(result)}
	if savedAt, err := time.Parse(savedAtLayout, data.SavedAt); err == nil {
		args = append(args, "saved", humanize.Time(savedAt))
	}
	logger.Info("Loaded personality probabilities", args...)
	return result, nil
}

// Inspect reports what a save holds without validating its entries.
func (s *FileStore) Inspect() (Info, error) {
	info := Info{Path: s.path}
	st, err := os.Stat(s.path)
	if err != nil {
		return info, err
	}
	info.Size = st.Size()

	data, err := s.read()
	if err != nil {
		return info, err
	}
	info.SchemaVersion = data.SchemaVersion
	info.Entries = len(data.Personalities)
	info.SavedAt, _ = time.Parse(savedAtLayout, data.SavedAt)
	return info, nil
}

// read parses and checks the save envelope.
func (s *FileStore) read() (*SaveData, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to read personality save: %w", err)
	}

	var data SaveData
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if data.SchemaVersion > SchemaVersion {
		return nil, fmt.Errorf("%w: schema version %d is newer than %d", ErrMalformed, data.SchemaVersion, SchemaVersion)
	}
	// Hand-written saves may omit the checksum.
	if data.Checksum != "" && data.Checksum != checksum(data.Personalities) {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrMalformed)
	}
	return &data, nil
}

func validEntry(e SavedEntry) bool {
	p := e.Probability
	return e.Name != "" && !math.IsNaN(p) && !math.IsInf(p, 0) && p >= 0
}

// checksum is a BLAKE2b-256 digest over the entries in file order.
func checksum(entries []SavedEntry) string {
	h, _ := blake2b.New256(nil)
	for _, e := range entries {
		h.Write([]byte(e.Name))
		h.Write([]byte{'='})
		h.Write([]byte(strconv.FormatFloat(e.Probability, 'g', -1, 64)))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}
