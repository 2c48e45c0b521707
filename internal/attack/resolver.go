// Package attack resolves the boss's melee attacks: it owns the single open
// attack session, finds what the swing connects with and signals the attack
// lifecycle to listeners.
package attack

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/lawnchairsociety/bossmind/internal/config"
	"github.com/lawnchairsociety/bossmind/internal/logger"
	"github.com/lawnchairsociety/bossmind/internal/vmath"
	"github.com/lawnchairsociety/bossmind/internal/world"
)

// ErrAttackInProgress is returned when an attack is requested while another
// session is still open.
var ErrAttackInProgress = errors.New("attack already in progress")

// Kind is the attack variety.
type Kind int

const (
	Light Kind = iota
	Heavy
)

func (k Kind) String() string {
	switch k {
	case Light:
		return "light"
	case Heavy:
		return "heavy"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Signal is an attack lifecycle notification.
type Signal int

const (
	Started Signal = iota
	Ended
	EnvironmentInteraction
)

func (s Signal) String() string {
	switch s {
	case Started:
		return "started"
	case Ended:
		return "ended"
	case EnvironmentInteraction:
		return "environment_interaction"
	default:
		return fmt.Sprintf("signal(%d)", int(s))
	}
}

// Event is delivered synchronously to every handler.
type Event struct {
	Signal    Signal
	Kind      Kind
	SessionID uuid.UUID
	Time      float64
	// Targets lists the entity IDs involved: hit players for Started,
	// broken scenery for EnvironmentInteraction.
	Targets []string
}

// Handler receives lifecycle events.
type Handler func(Event)

// Profile is the geometry and damage of one attack kind.
type Profile struct {
	Damage   float64
	Radius   float64
	AngleDeg float64
	Duration float64
}

// Session is the open window of an attack in progress.
type Session struct {
	ID       uuid.UUID
	Kind     Kind
	Start    float64
	Duration float64
}

// End returns the time the session closes.
func (s Session) End() float64 { return s.Start + s.Duration }

// Result describes what one PerformAttack connected with.
type Result struct {
	Session Session
	Hits    []string
	Damage  float64
	Broken  []string
}

// Rand drives fragment torque. *rand.Rand satisfies it.
type Rand interface {
	Float64() float64
}

// Resolver performs attacks from the boss's body against the spatial world.
type Resolver struct {
	body     world.Body
	spatial  world.SpatialQuery
	rng      Rand
	profiles map[Kind]Profile

	fragmentForce  float64
	fragmentTorque float64
	speedMul       float64

	now     float64
	session *Session

	handlers      []Handler
	onDamageDealt func(amount float64)
}

// NewResolver builds a resolver with attack profiles from the combat config.
func NewResolver(body world.Body, spatial world.SpatialQuery, cfg config.CombatConfig, rng Rand) *Resolver {
	return &Resolver{
		body:    body,
		spatial: spatial,
		rng:     rng,
		profiles: map[Kind]Profile{
			Light: profileFromConfig(cfg.Light),
			Heavy: profileFromConfig(cfg.Heavy),
		},
		fragmentForce:  cfg.FragmentForce,
		fragmentTorque: cfg.FragmentTorque,
		speedMul:       1,
	}
}

func profileFromConfig(c config.AttackConfig) Profile {
	return Profile{Damage: c.Damage, Radius: c.Radius, AngleDeg: c.AngleDeg, Duration: c.Duration}
}

// Subscribe registers a lifecycle handler.
func (r *Resolver) Subscribe(h Handler) {
	r.handlers = append(r.handlers, h)
}

// OnDamageDealt sets the callback told about the total damage of each swing.
func (r *Resolver) OnDamageDealt(fn func(amount float64)) {
	r.onDamageDealt = fn
}

// SetSpeedMultiplier scales session durations by 1/mul. Values outside
// personality bounds are ignored.
func (r *Resolver) SetSpeedMultiplier(mul float64) {
	if mul <= 0 {
		return
	}
	r.speedMul = mul
}

// Profile returns the profile for kind.
func (r *Resolver) Profile(kind Kind) Profile {
	return r.profiles[kind]
}

// Now returns the resolver's clock.
func (r *Resolver) Now() float64 { return r.now }

// IsAttacking reports whether a session is open.
func (r *Resolver) IsAttacking() bool { return r.session != nil }

// Session returns the open session, if any.
func (r *Resolver) Session() (Session, bool) {
	if r.session == nil {
		return Session{}, false
	}
	return *r.session, true
}

// PerformAttack opens a session for kind and resolves it immediately.
func (r *Resolver) PerformAttack(kind Kind) (Result, error) {
	if r.session != nil {
		return Result{}, ErrAttackInProgress
	}
	profile, ok := r.profiles[kind]
	if !ok {
		return Result{}, fmt.Errorf("unknown attack kind %v", kind)
	}

	s := &Session{
		ID:       uuid.New(),
		Kind:     kind,
		Start:    r.now,
		Duration: profile.Duration / r.speedMul,
	}
	r.session = s
	result := Result{Session: *s}

	center := r.body.Position()
	forward := r.body.Forward()

	for _, e := range r.spatial.QueryInRadius(center, profile.Radius, world.LayerPlayer) {
		if !vmath.WithinCone(center, forward, e.Position(), profile.AngleDeg) {
			continue
		}
		sink, ok := e.(world.DamageSink)
		if !ok {
			continue
		}
		sink.ApplyDamage(profile.Damage)
		result.Hits = append(result.Hits, e.ID())
		result.Damage += profile.Damage
	}

	r.emit(Event{Signal: Started, Kind: kind, SessionID: s.ID, Time: r.now, Targets: result.Hits})

	if result.Damage > 0 && r.onDamageDealt != nil {
		r.onDamageDealt(result.Damage)
	}

	if len(result.Hits) == 0 {
		result.Broken = r.breakScenery(center, forward, profile)
		if len(result.Broken) > 0 {
			r.emit(Event{Signal: EnvironmentInteraction, Kind: kind, SessionID: s.ID, Time: r.now, Targets: result.Broken})
		}
	}

	logger.Debug("Attack resolved",
		"kind", kind.String(),
		"session", s.ID.String(),
		"hits", len(result.Hits),
		"damage", result.Damage,
		"broken", len(result.Broken))
	return result, nil
}

// breakScenery shatters every intact destructible in the swing's cone and
// throws its fragments outward with a random spin.
func (r *Resolver) breakScenery(center, forward vmath.Vec3, profile Profile) []string {
	var broken []string
	for _, e := range r.spatial.QueryFacingCone(center, forward, profile.Radius, profile.AngleDeg, world.LayerEnvironment) {
		d, ok := e.(world.Destructible)
		if !ok || !d.Intact() {
			continue
		}
		for _, frag := range d.Break() {
			outward := frag.Position().Sub(center).Normalize()
			if outward.MagSq() == 0 {
				outward = forward.Normalize()
			}
			torque := vmath.Vec3{
				X: r.rng.Float64()*2 - 1,
				Y: r.rng.Float64()*2 - 1,
				Z: r.rng.Float64()*2 - 1,
			}.Scale(r.fragmentTorque)
			frag.ApplyImpulse(outward.Scale(r.fragmentForce), torque)
		}
		broken = append(broken, e.ID())
	}
	return broken
}

// Advance moves the clock forward by dt and closes the session once its
// duration has elapsed.
func (r *Resolver) Advance(dt float64) {
	r.now += dt
	if r.session == nil || r.now-r.session.Start < r.session.Duration {
		return
	}
	s := *r.session
	r.session = nil
	r.emit(Event{Signal: Ended, Kind: s.Kind, SessionID: s.ID, Time: r.now})
}

func (r *Resolver) emit(ev Event) {
	for _, h := range r.handlers {
		h(ev)
	}
}
