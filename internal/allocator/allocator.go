// Package allocator is the boss's adaptive personality selector. It keeps a
// roster of personalities with selection probabilities that always sum to one,
// picks the next personality by roulette wheel, shifts probability mass toward
// personalities that trade damage well, and forks successful ones into mutated
// variants.
package allocator

import (
	"errors"
	"math"
	"sync"

	"github.com/lawnchairsociety/bossmind/internal/config"
	"github.com/lawnchairsociety/bossmind/internal/logger"
	"github.com/lawnchairsociety/bossmind/internal/perflog"
	"github.com/lawnchairsociety/bossmind/internal/personality"
)

// PruneRosterFloor is the roster size at or below which pruning never runs.
const PruneRosterFloor = 5

// pruneThresholdFactor times the probability floor marks an underperformer.
const pruneThresholdFactor = 1.5

var (
	// ErrNoPersonality is returned when an operation needs a personality that
	// is not in the roster (a nil or stale handle).
	ErrNoPersonality = errors.New("personality not in roster")

	// ErrDegenerateRoster is returned by Normalize when the roster summed to
	// zero and was reset to a uniform distribution.
	ErrDegenerateRoster = errors.New("roster probabilities summed to zero; redistributed uniformly")
)

// Rand is the random source the allocator draws from. *rand.Rand satisfies it.
type Rand interface {
	Float64() float64
	Intn(n int) int
}

// Handle addresses a roster entry. Handles are never reused, so a handle to a
// pruned entry stays invalid. The zero Handle means "none".
type Handle uint64

// Listener is told about every activation with the new personality's traits.
type Listener func(name string, traits personality.Traits)

// Accumulator holds the damage exchanged while the active personality ran.
type Accumulator struct {
	DamageDealt float64
	DamageTaken float64
}

type entry struct {
	handle  Handle
	profile *personality.Profile
}

// Allocator owns the roster and the active personality.
type Allocator struct {
	mu sync.RWMutex

	cfg  config.AllocatorConfig
	rng  Rand
	perf *perflog.Log

	roster      []entry
	nextHandle  Handle
	active      Handle
	acc         Accumulator
	mutationSeq int
	cooldown    float64

	listeners []Listener
}

// New creates an allocator seeded with the default roster.
func New(cfg config.AllocatorConfig, rng Rand, perf *perflog.Log) *Allocator {
	return NewWithRoster(cfg, rng, perf, nil)
}

// NewWithRoster creates an allocator over the given profiles, in order. An
// empty roster is replaced by the defaults.
func NewWithRoster(cfg config.AllocatorConfig, rng Rand, perf *perflog.Log, roster []*personality.Profile) *Allocator {
	if perf == nil {
		perf = perflog.New(perflog.DefaultCapacity)
	}
	a := &Allocator{cfg: cfg, rng: rng, perf: perf}
	for _, p := range roster {
		if p == nil {
			logger.Error("Skipping nil personality in initial roster")
			continue
		}
		a.append(p)
	}
	if len(a.roster) == 0 {
		a.regenerateDefaults()
	}
	return a
}

// Subscribe registers a listener for personality activations.
func (a *Allocator) Subscribe(l Listener) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listeners = append(a.listeners, l)
}

// Start performs the first selection and arms the cooldown.
func (a *Allocator) Start() Handle {
	h := a.SelectNext()
	a.mu.Lock()
	a.cooldown = a.cfg.SelectionCooldownSeconds
	a.mu.Unlock()
	return h
}

// Tick counts the selection cooldown down by dt seconds and re-selects when it
// elapses. It reports whether a selection happened.
func (a *Allocator) Tick(dt float64) bool {
	a.mu.Lock()
	a.cooldown -= dt
	due := a.cooldown <= 0
	if due {
		a.cooldown = a.cfg.SelectionCooldownSeconds
	}
	a.mu.Unlock()

	if due {
		a.SelectNext()
	}
	return due
}

// SelectNext closes the active personality's performance period, optionally
// prunes, draws the next personality by roulette wheel, gives it a chance to
// spawn a mutation and activates it.
func (a *Allocator) SelectNext() Handle {
	a.mu.Lock()

	if a.indexOf(a.active) >= 0 {
		if _, err := a.updatePerformance(); err != nil {
			logger.Warning("Performance update failed", "error", err)
		}
	} else if a.active != 0 {
		logger.Warning("Active personality vanished from roster", "handle", a.active)
	}
	a.acc = Accumulator{}

	if a.rng.Float64() < a.cfg.PruneChance {
		a.prune()
	}

	if len(a.roster) == 0 {
		logger.Warning("Personality roster empty, regenerating defaults")
		a.regenerateDefaults()
	}

	picked := a.pick(a.rng.Float64())
	// The parent, not the variant, is activated.
	a.tryMutate(picked)

	name, traits, listeners := a.activate(picked)
	a.mu.Unlock()

	for _, l := range listeners {
		l(name, traits)
	}
	return picked
}

// pick walks the roster accumulating probability until the running sum
// reaches r. Rounding shortfalls fall back to the first entry.
func (a *Allocator) pick(r float64) Handle {
	cumulative := 0.0
	for _, e := range a.roster {
		cumulative += e.profile.Probability()
		if cumulative >= r {
			return e.handle
		}
	}
	return a.roster[0].handle
}

// activate must be called with the lock held; it returns what listeners need
// so they can be notified after unlocking.
func (a *Allocator) activate(h Handle) (string, personality.Traits, []Listener) {
	i := a.indexOf(h)
	p := a.roster[i].profile
	a.active = h
	a.acc = Accumulator{}
	a.perf.Record(p.Name(), perflog.MetricUsage, 1)

	logger.Info("Personality selected",
		"name", p.Name(),
		"probability", p.Probability(),
		"roster_size", len(a.roster))

	listeners := make([]Listener, len(a.listeners))
	copy(listeners, a.listeners)
	return p.Name(), p.Traits(), listeners
}

// TryMutate may fork parent into a variant with one perturbed trait. The
// parent's probability is split evenly with the variant.
func (a *Allocator) TryMutate(parent Handle) (Handle, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tryMutate(parent)
}

func (a *Allocator) tryMutate(parent Handle) (Handle, bool) {
	i := a.indexOf(parent)
	if i < 0 {
		logger.Error("Mutation requested for unknown personality", "handle", parent)
		return 0, false
	}
	if len(a.roster) >= a.cfg.MaxPersonalities {
		return 0, false
	}
	if a.rng.Float64() > a.cfg.MutationChance {
		return 0, false
	}

	p := a.roster[i].profile
	trait := personality.Trait(a.rng.Intn(personality.MutableTraitCount))
	delta := (a.rng.Float64()*2 - 1) * a.cfg.MutationStrength

	a.mutationSeq++
	name := personality.MutationName(p.Name(), trait, a.mutationSeq)
	for a.hasName(name) {
		a.mutationSeq++
		name = personality.MutationName(p.Name(), trait, a.mutationSeq)
	}
	child := personality.Mutate(p, name, trait, delta)

	half := p.Probability() / 2
	p.SetProbabilityRaw(half)
	child.SetProbabilityRaw(half)
	h := a.append(child)

	logger.Info("Personality mutated",
		"parent", p.Name(),
		"child", child.Name(),
		"trait", trait.String(),
		"delta", delta)
	return h, true
}

// RecordDamageDealt credits damage the boss dealt to the active personality.
func (a *Allocator) RecordDamageDealt(amount float64) {
	a.record(amount, true)
}

// RecordDamageTaken charges damage the boss took to the active personality.
func (a *Allocator) RecordDamageTaken(amount float64) {
	a.record(amount, false)
}

func (a *Allocator) record(amount float64, dealt bool) {
	if amount <= 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	i := a.indexOf(a.active)
	if i < 0 {
		logger.Warning("Damage recorded with no active personality", "amount", amount, "dealt", dealt)
		return
	}
	name := a.roster[i].profile.Name()
	if dealt {
		a.acc.DamageDealt += amount
		a.perf.Record(name, perflog.MetricDamageDealt, amount)
	} else {
		a.acc.DamageTaken += amount
		a.perf.Record(name, perflog.MetricDamageTaken, amount)
	}
}

// UpdatePerformance adjusts the active personality's probability from the
// accumulated damage ratio and renormalizes. It returns the probability delta
// actually applied.
func (a *Allocator) UpdatePerformance() (float64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.updatePerformance()
}

func (a *Allocator) updatePerformance() (float64, error) {
	i := a.indexOf(a.active)
	if i < 0 {
		return 0, ErrNoPersonality
	}
	dealt, taken := a.acc.DamageDealt, a.acc.DamageTaken
	if dealt == 0 && taken == 0 {
		return 0, nil
	}

	adjustment := a.cfg.LearningRate * performanceRatio(dealt, taken)
	p := a.roster[i].profile
	if personality.IsMutation(p.Name()) && adjustment > 0 {
		adjustment *= a.cfg.MutationBonus
	}

	old := p.Probability()
	p.SetProbability(old+adjustment, a.cfg.MinProbability)
	difference := p.Probability() - old

	logger.Debug("Performance updated",
		"name", p.Name(),
		"dealt", dealt,
		"taken", taken,
		"adjustment", adjustment,
		"difference", difference)

	if err := a.normalize(a.active, difference); err != nil {
		logger.Warning("Normalization degenerate after performance update", "error", err)
	}
	return difference, nil
}

// performanceRatio is the unscaled reward: dealt/taken - 1, with dealt alone
// counting fully when nothing was taken and a flat -1 when nothing was dealt.
func performanceRatio(dealt, taken float64) float64 {
	switch {
	case taken == 0:
		return dealt
	case dealt == 0:
		return -1
	default:
		return dealt/taken - 1
	}
}

// Normalize rebalances the roster so it sums to one. A positive difference
// gained by excluded is first funded proportionally from every other entry.
func (a *Allocator) Normalize(excluded Handle, difference float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.normalize(excluded, difference)
}

func (a *Allocator) normalize(excluded Handle, difference float64) error {
	switch len(a.roster) {
	case 0:
		return nil
	case 1:
		a.roster[0].profile.SetProbabilityRaw(1)
		return nil
	}

	floor := a.cfg.MinProbability
	if ex := a.indexOf(excluded); difference > 0 && ex >= 0 {
		othersTotal := 0.0
		for i, e := range a.roster {
			if i != ex {
				othersTotal += e.profile.Probability()
			}
		}
		if othersTotal > 0 {
			for i, e := range a.roster {
				if i == ex {
					continue
				}
				p := e.profile.Probability()
				e.profile.SetProbability(p-difference*(p/othersTotal), floor)
			}
		}
	}

	sum := 0.0
	for _, e := range a.roster {
		sum += e.profile.Probability()
	}
	if sum <= 0 || math.IsNaN(sum) {
		share := 1.0 / float64(len(a.roster))
		for _, e := range a.roster {
			e.profile.SetProbabilityRaw(share)
		}
		return ErrDegenerateRoster
	}
	for _, e := range a.roster {
		e.profile.SetProbabilityRaw(e.profile.Probability() / sum)
	}
	return nil
}

// Prune removes the weakest non-active personality when the roster is larger
// than five and that personality sits under 1.5x the probability floor.
func (a *Allocator) Prune() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.prune()
}

func (a *Allocator) prune() bool {
	if len(a.roster) <= PruneRosterFloor {
		return false
	}

	weakest := -1
	for i, e := range a.roster {
		if e.handle == a.active {
			continue
		}
		if weakest < 0 || e.profile.Probability() < a.roster[weakest].profile.Probability() {
			weakest = i
		}
	}
	if weakest < 0 {
		return false
	}

	victim := a.roster[weakest].profile
	if victim.Probability() >= pruneThresholdFactor*a.cfg.MinProbability {
		return false
	}

	a.roster = append(a.roster[:weakest], a.roster[weakest+1:]...)
	logger.Info("Personality pruned", "name", victim.Name(), "probability", victim.Probability(), "roster_size", len(a.roster))

	if err := a.normalize(0, 0); err != nil {
		logger.Warning("Normalization degenerate after prune", "error", err)
	}
	return true
}

// Restore applies saved probabilities to roster entries with matching names,
// leaves the others untouched and renormalizes. It returns how many entries
// were restored.
func (a *Allocator) Restore(saved map[string]float64) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	applied := 0
	for _, e := range a.roster {
		v, ok := saved[e.profile.Name()]
		if !ok {
			continue
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			logger.Warning("Skipping non-finite saved probability", "name", e.profile.Name())
			continue
		}
		e.profile.SetProbability(v, a.cfg.MinProbability)
		applied++
	}
	if applied < len(saved) {
		logger.Debug("Saved personalities without a roster entry ignored", "count", len(saved)-applied)
	}
	if err := a.normalize(0, 0); err != nil {
		logger.Warning("Normalization degenerate after restore", "error", err)
	}
	return applied
}

// Probabilities returns the name -> probability mapping used for persistence.
func (a *Allocator) Probabilities() map[string]float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string]float64, len(a.roster))
	for _, e := range a.roster {
		out[e.profile.Name()] = e.profile.Probability()
	}
	return out
}

// Accumulated returns the damage exchanged during the current period.
func (a *Allocator) Accumulated() Accumulator {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.acc
}

// Active returns the active handle, zero before the first selection.
func (a *Allocator) Active() Handle {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.indexOf(a.active) < 0 {
		return 0
	}
	return a.active
}

// Len returns the roster size.
func (a *Allocator) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.roster)
}

func (a *Allocator) indexOf(h Handle) int {
	if h == 0 {
		return -1
	}
	for i, e := range a.roster {
		if e.handle == h {
			return i
		}
	}
	return -1
}

func (a *Allocator) append(p *personality.Profile) Handle {
	a.nextHandle++
	a.roster = append(a.roster, entry{handle: a.nextHandle, profile: p})
	return a.nextHandle
}

func (a *Allocator) regenerateDefaults() {
	a.roster = a.roster[:0]
	for _, p := range personality.DefaultRoster(a.cfg.MinProbability) {
		a.append(p)
	}
}

func (a *Allocator) hasName(name string) bool {
	for _, e := range a.roster {
		if e.profile.Name() == name {
			return true
		}
	}
	return false
}
