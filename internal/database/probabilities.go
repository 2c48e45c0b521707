package database

import (
	"fmt"
	"math"

	"github.com/lawnchairsociety/bossmind/internal/logger"
	"github.com/lawnchairsociety/bossmind/internal/store"
)

type probabilityRow struct {
	Name          string  `db:"name"`
	Probability   float64 `db:"probability"`
	SchemaVersion int     `db:"schema_version"`
}

var _ store.Store = (*Database)(nil)

// Load returns the saved personality probabilities. Rows written by a newer
// schema or holding unusable values are skipped.
func (d *Database) Load() (map[string]float64, error) {
	result := make(map[string]float64)

	var rows []probabilityRow
	err := d.db.Select(&rows, `SELECT name, probability, schema_version FROM personality_probabilities`)
	if err != nil {
		return result, fmt.Errorf("failed to load personality probabilities: %w", err)
	}

	skipped := 0
	for _, r := range rows {
		p := r.Probability
		if r.SchemaVersion > store.SchemaVersion || r.Name == "" || math.IsNaN(p) || math.IsInf(p, 0) || p < 0 {
			skipped++
			continue
		}
		result[r.Name] = p
	}
	if skipped > 0 {
		logger.Warning("Skipped invalid saved personality rows", "skipped", skipped)
	}
	return result, nil
}

// Save replaces the saved mapping in one transaction, so pruned
// personalities disappear with the save that no longer lists them.
func (d *Database) Save(probabilities map[string]float64) error {
	tx, err := d.db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM personality_probabilities`); err != nil {
		return fmt.Errorf("failed to clear personality probabilities: %w", err)
	}

	insert := d.qb.Build(`
		INSERT INTO personality_probabilities (name, probability, schema_version, saved_at)
		VALUES (?, ?, ?, ?)
	`)
	savedAt := d.now().UTC()
	for name, p := range probabilities {
		if _, err := tx.Exec(insert, name, p, store.SchemaVersion, savedAt); err != nil {
			if d.dialect.IsDuplicateKeyError(err) {
				return fmt.Errorf("duplicate personality %q: %w", name, err)
			}
			return fmt.Errorf("failed to save personality %q: %w", name, err)
		}
	}

	return tx.Commit()
}
