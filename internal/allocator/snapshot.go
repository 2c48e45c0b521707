package allocator

import "github.com/lawnchairsociety/bossmind/internal/personality"

// Snapshot is a read-only copy of one roster entry.
type Snapshot struct {
	Handle      Handle             `json:"-"`
	Name        string             `json:"name"`
	Traits      personality.Traits `json:"traits"`
	Probability float64            `json:"probability"`
	Active      bool               `json:"active"`
}

// Roster returns copies of every entry in roster order.
func (a *Allocator) Roster() []Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]Snapshot, 0, len(a.roster))
	for _, e := range a.roster {
		out = append(out, a.snapshot(e))
	}
	return out
}

// Get returns a copy of the entry behind h.
func (a *Allocator) Get(h Handle) (Snapshot, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	i := a.indexOf(h)
	if i < 0 {
		return Snapshot{}, false
	}
	return a.snapshot(a.roster[i]), true
}

// ActiveSnapshot returns the active entry, if any.
func (a *Allocator) ActiveSnapshot() (Snapshot, bool) {
	return a.Get(a.Active())
}

// Lookup finds an entry by name.
func (a *Allocator) Lookup(name string) (Snapshot, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, e := range a.roster {
		if e.profile.Name() == name {
			return a.snapshot(e), true
		}
	}
	return Snapshot{}, false
}

func (a *Allocator) snapshot(e entry) Snapshot {
	return Snapshot{
		Handle:      e.handle,
		Name:        e.profile.Name(),
		Traits:      e.profile.Traits(),
		Probability: e.profile.Probability(),
		Active:      e.handle == a.active,
	}
}
