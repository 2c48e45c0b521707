// Package boss assembles the adaptive boss: the personality allocator, the
// combat state machine and the attack resolver, stepped together once per
// simulation tick.
package boss

import (
	"errors"
	"fmt"
	"time"

	"github.com/lawnchairsociety/bossmind/internal/allocator"
	"github.com/lawnchairsociety/bossmind/internal/attack"
	"github.com/lawnchairsociety/bossmind/internal/combat"
	"github.com/lawnchairsociety/bossmind/internal/config"
	"github.com/lawnchairsociety/bossmind/internal/logger"
	"github.com/lawnchairsociety/bossmind/internal/perflog"
	"github.com/lawnchairsociety/bossmind/internal/personality"
	"github.com/lawnchairsociety/bossmind/internal/statsfeed"
	"github.com/lawnchairsociety/bossmind/internal/store"
	"github.com/lawnchairsociety/bossmind/internal/world"
)

// Rand is the shared random source. *rand.Rand satisfies it.
type Rand interface {
	Float64() float64
	Intn(n int) int
}

// World is what the boss needs from its surroundings.
type World struct {
	Body    world.Body
	Nav     world.Navigator
	Spatial world.SpatialQuery
	Target  world.Entity
}

// Option configures a Brain.
type Option func(*Brain)

// WithStore sets where probabilities are restored from and saved to.
func WithStore(s store.Store) Option {
	return func(b *Brain) { b.store = s }
}

// WithPerfLog replaces the performance log built from the config.
func WithPerfLog(l *perflog.Log) Option {
	return func(b *Brain) { b.perf = l }
}

// WithRoster seeds the allocator with the given profiles instead of the
// default roster.
func WithRoster(roster []*personality.Profile) Option {
	return func(b *Brain) { b.roster = roster }
}

// Brain owns one boss's decision making.
type Brain struct {
	cfg    *config.BossConfig
	store  store.Store
	perf   *perflog.Log
	roster []*personality.Profile

	alloc    *allocator.Allocator
	machine  *combat.Machine
	resolver *attack.Resolver

	tick    uint64
	elapsed float64
	saves   int
}

// New wires a brain into w, restores saved probabilities and activates the
// first personality.
func New(cfg *config.BossConfig, w World, rng Rand, opts ...Option) (*Brain, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	b := &Brain{cfg: cfg, store: store.Nop{}}
	for _, opt := range opts {
		opt(b)
	}
	if b.perf == nil {
		b.perf = perflog.New(cfg.PerfLog.Capacity, perflog.WithCacheSize(cfg.PerfLog.StatsCacheSize))
	}

	b.alloc = allocator.NewWithRoster(cfg.Allocator, rng, b.perf, b.roster)
	b.restore()

	b.resolver = attack.NewResolver(w.Body, w.Spatial, cfg.Combat, rng)

	// The machine starts on the first roster entry; Start below pushes the
	// traits of whichever personality is actually drawn.
	initial := b.alloc.Roster()[0].Traits
	machine, err := combat.New(cfg.Combat, combat.Collaborators{
		Body:     w.Body,
		Nav:      w.Nav,
		Target:   w.Target,
		Attacker: b.resolver,
	}, rng, initial)
	if err != nil {
		return nil, fmt.Errorf("build combat machine: %w", err)
	}
	b.machine = machine

	b.resolver.Subscribe(b.machine.HandleAttackEvent)
	b.resolver.OnDamageDealt(b.alloc.RecordDamageDealt)
	b.alloc.Subscribe(b.onPersonalityChanged)

	b.alloc.Start()
	return b, nil
}

func (b *Brain) restore() {
	saved, err := b.store.Load()
	if err != nil {
		if errors.Is(err, store.ErrMalformed) {
			logger.Warning("Saved personalities unreadable, starting fresh", "error", err)
		} else {
			logger.Error("Failed to load saved personalities", "error", err)
		}
		return
	}
	if len(saved) == 0 {
		return
	}
	restored := b.alloc.Restore(saved)
	logger.Always("Restored personality probabilities", "restored", restored, "saved", len(saved))
}

func (b *Brain) onPersonalityChanged(name string, traits personality.Traits) {
	b.machine.SetTraits(traits)
	b.resolver.SetSpeedMultiplier(traits.AtkSpeedMul)
	logger.Debug("Personality applied",
		"name", name,
		"aggression", traits.Aggression,
		"state", b.machine.State().String())

	if b.cfg.Persistence.SaveOnSelect {
		if err := b.Save(); err != nil {
			logger.Error("Autosave failed", "error", err)
		}
	}
}

// Tick advances the boss by dt seconds: selection cooldown, then combat
// state logic, then the attack session clock, then any attack signals raised
// during the tick.
func (b *Brain) Tick(dt float64) {
	if dt <= 0 {
		return
	}
	b.alloc.Tick(dt)
	b.machine.Update(dt)
	b.resolver.Advance(dt)
	b.machine.ProcessSignals()
	b.tick++
	b.elapsed += dt
}

// TakeDamage records damage the player dealt to the boss.
func (b *Brain) TakeDamage(amount float64) {
	if amount <= 0 {
		return
	}
	b.alloc.RecordDamageTaken(amount)
}

// Save writes the current probabilities to the store.
func (b *Brain) Save() error {
	if err := b.store.Save(b.alloc.Probabilities()); err != nil {
		return fmt.Errorf("save probabilities: %w", err)
	}
	b.saves++
	return nil
}

// frameRecentEntries caps the performance entries carried in a frame.
const frameRecentEntries = 16

// Frame captures the roster, aggregates and latest performance entries for
// the stats feed.
func (b *Brain) Frame(now time.Time) statsfeed.Frame {
	f := statsfeed.Frame{
		Time:   now,
		Tick:   b.tick,
		State:  b.machine.State().String(),
		Roster: b.alloc.Roster(),
		Stats:  b.perf.AllStats(),
	}
	if active, ok := b.alloc.ActiveSnapshot(); ok {
		f.Active = active.Name
	}
	entries := b.perf.Entries()
	if len(entries) > frameRecentEntries {
		entries = entries[len(entries)-frameRecentEntries:]
	}
	f.Recent = entries
	return f
}

func (b *Brain) Allocator() *allocator.Allocator { return b.alloc }
func (b *Brain) Machine() *combat.Machine        { return b.machine }
func (b *Brain) Resolver() *attack.Resolver      { return b.resolver }
func (b *Brain) PerfLog() *perflog.Log           { return b.perf }

// Ticks returns the number of ticks run.
func (b *Brain) Ticks() uint64 { return b.tick }

// Elapsed returns simulated seconds.
func (b *Brain) Elapsed() float64 { return b.elapsed }

// Saves returns how many saves succeeded.
func (b *Brain) Saves() int { return b.saves }
