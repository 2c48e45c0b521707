// Package store saves and restores the learned personality selection
// probabilities between sessions.
package store

import "errors"

// SchemaVersion is written with every save. Loads reject newer versions.
const SchemaVersion = 1

// ErrMalformed reports a save that exists but could not be used. Callers log
// it and continue with an empty result.
var ErrMalformed = errors.New("malformed personality save")

// Store persists a personality name to selection probability mapping.
//
// Load never fails hard: a missing save yields an empty map and a nil error,
// and an unusable one yields an empty map with an error wrapping
// ErrMalformed. Individual bad entries are skipped.
type Store interface {
	Load() (map[string]float64, error)
	Save(probabilities map[string]float64) error
}

// Nop is a Store that keeps nothing. It backs the "none" persistence driver.
type Nop struct{}

func (Nop) Load() (map[string]float64, error) { return map[string]float64{}, nil }
func (Nop) Save(map[string]float64) error     { return nil }
