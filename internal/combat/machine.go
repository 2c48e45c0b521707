// Package combat drives the boss's moment-to-moment behavior: a closed set of
// states stepped once per tick, parameterized by the active personality.
package combat

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/lawnchairsociety/bossmind/internal/attack"
	"github.com/lawnchairsociety/bossmind/internal/config"
	"github.com/lawnchairsociety/bossmind/internal/logger"
	"github.com/lawnchairsociety/bossmind/internal/personality"
	"github.com/lawnchairsociety/bossmind/internal/vmath"
	"github.com/lawnchairsociety/bossmind/internal/world"
)

// detourTimeout bounds how long a forced detour waits for its AttackEnded
// signal before restoring the prior state anyway.
const detourTimeout = 5.0

// ErrMissingCollaborator is returned by New when a required collaborator is nil.
var ErrMissingCollaborator = errors.New("combat: missing collaborator")

// Rand supplies uniform draws in [0,1). *rand.Rand satisfies it.
type Rand interface {
	Float64() float64
}

// Attacker performs attacks. *attack.Resolver satisfies it.
type Attacker interface {
	PerformAttack(kind attack.Kind) (attack.Result, error)
	Profile(kind attack.Kind) attack.Profile
}

// Collaborators are the external capabilities the machine commands.
type Collaborators struct {
	Body     world.Body
	Nav      world.Navigator
	Target   world.Entity
	Attacker Attacker
}

type detour struct {
	active  bool
	prior   StateKind
	session uuid.UUID
	elapsed float64
}

// Machine is the combat state machine. It is not safe for concurrent use;
// the owner steps it from a single tick loop.
type Machine struct {
	cfg    config.CombatConfig
	rng    Rand
	traits personality.Traits

	body     world.Body
	nav      world.Navigator
	target   world.Entity
	attacker Attacker

	state    StateKind
	elapsed  float64
	cooldown float64

	idle    idleState
	chase   chaseState
	circle  circleState
	retreat retreatState
	light   lightState
	heavy   heavyState

	detour     detour
	ownSession uuid.UUID
	pending    []attack.Event
}

// New builds a machine in Idle with the given traits.
func New(cfg config.CombatConfig, c Collaborators, rng Rand, traits personality.Traits) (*Machine, error) {
	switch {
	case c.Body == nil:
		return nil, fmt.Errorf("%w: body", ErrMissingCollaborator)
	case c.Nav == nil:
		return nil, fmt.Errorf("%w: navigator", ErrMissingCollaborator)
	case c.Target == nil:
		return nil, fmt.Errorf("%w: target", ErrMissingCollaborator)
	case c.Attacker == nil:
		return nil, fmt.Errorf("%w: attacker", ErrMissingCollaborator)
	case rng == nil:
		return nil, fmt.Errorf("%w: random source", ErrMissingCollaborator)
	}

	m := &Machine{
		cfg:      cfg,
		rng:      rng,
		traits:   traits,
		body:     c.Body,
		nav:      c.Nav,
		target:   c.Target,
		attacker: c.Attacker,
		state:    Idle,
	}
	m.nav.SetSpeed(m.moveSpeed())
	states[Idle].enter(m)
	return m, nil
}

// State returns the active state.
func (m *Machine) State() StateKind { return m.state }

// Traits returns the personality parameters in effect.
func (m *Machine) Traits() personality.Traits { return m.traits }

// Cooldown returns the remaining attack cooldown in seconds.
func (m *Machine) Cooldown() float64 { return m.cooldown }

// InDetour reports whether an external attack signal is holding the machine
// in an attack state.
func (m *Machine) InDetour() bool { return m.detour.active }

// SetTraits pushes new personality parameters into the running state without
// leaving it.
func (m *Machine) SetTraits(traits personality.Traits) {
	m.traits = traits
	m.nav.SetSpeed(m.moveSpeed())
	if fn := states[m.state].onPersonalityChanged; fn != nil {
		fn(m)
	}
}

// Update advances cooldowns, then runs the active state's logic.
func (m *Machine) Update(dt float64) {
	if m.cooldown > 0 {
		m.cooldown -= dt
		if m.cooldown < 0 {
			m.cooldown = 0
		}
	}

	if m.detour.active {
		m.detour.elapsed += dt
		if m.detour.elapsed >= detourTimeout {
			logger.Warning("Attack detour timed out without an end signal",
				"state", m.state.String(),
				"restoring", m.detour.prior.String())
			m.endDetour()
			return
		}
	}

	m.elapsed += dt
	states[m.state].update(m, dt)
}

// HandleAttackEvent queues an attack lifecycle signal. It is processed by
// the next ProcessSignals call, after that tick's state logic.
func (m *Machine) HandleAttackEvent(ev attack.Event) {
	m.pending = append(m.pending, ev)
}

// ProcessSignals drains queued lifecycle signals. Signals from attacks the
// machine itself performed are ignored; any other AttackStarted forces a
// detour into the matching attack state, and its AttackEnded restores the
// state the machine was in before.
func (m *Machine) ProcessSignals() {
	for len(m.pending) > 0 {
		ev := m.pending[0]
		m.pending = m.pending[1:]
		if ev.SessionID == m.ownSession {
			continue
		}

		switch ev.Signal {
		case attack.Started:
			m.beginDetour(ev)
		case attack.Ended:
			if m.detour.active && ev.SessionID == m.detour.session {
				m.endDetour()
			}
		case attack.EnvironmentInteraction:
			logger.Debug("Scenery broken by external attack", "targets", len(ev.Targets))
		}
	}
}

// WindupComplete is the external signal that the heavy windup animation has
// finished. Ignored outside the windup phase.
func (m *Machine) WindupComplete() {
	if m.state == HeavyAttack && m.heavy.phase == heavyWindup {
		m.beginStrike()
	}
}

// HeavyImpact is the external signal that the heavy strike connects. Damage
// is applied at most once per heavy attack.
func (m *Machine) HeavyImpact() {
	if m.state == HeavyAttack && m.heavy.phase == heavyStrike {
		m.heavyImpact()
	}
}

func (m *Machine) beginDetour(ev attack.Event) {
	to := Idle
	switch ev.Kind {
	case attack.Light:
		to = LightAttack
	case attack.Heavy:
		to = HeavyAttack
	}
	if !m.detour.active {
		m.detour.prior = m.state
	}
	m.detour.active = true
	m.detour.session = ev.SessionID
	m.detour.elapsed = 0
	logger.Debug("External attack forced detour",
		"from", m.state.String(),
		"to", to.String(),
		"session", ev.SessionID.String())
	m.transition(to)
}

func (m *Machine) endDetour() {
	prior := m.detour.prior
	m.detour = detour{}
	if prior.isAttack() {
		prior = Idle
	}
	m.transition(prior)
}

func (m *Machine) transition(to StateKind) {
	from := m.state
	if fn := states[from].exit; fn != nil {
		fn(m)
	}
	m.state = to
	m.elapsed = 0
	states[to].enter(m)
	logger.Debug("Combat state changed", "from", from.String(), "to", to.String())
}

// decide applies the shared distance/aggression branching rule: too far
// chases, too close attacks or retreats, in band attacks or circles. A combo
// decision follows a light attack and may only chain into a heavy one.
func (m *Machine) decide(aggressionScale float64, combo bool) StateKind {
	d := m.distance()
	pref := m.traits.PreferredDistance
	if d > pref*1.2 {
		return Chase
	}
	if next, ok := m.rollAttack(aggressionScale, combo); ok {
		return next
	}
	if d < pref*0.8 {
		return Retreat
	}
	return Circle
}

// rollAttack draws against aggression. Outside a combo the cooldown must
// have expired.
func (m *Machine) rollAttack(scale float64, combo bool) (StateKind, bool) {
	if combo {
		if m.rng.Float64() < m.traits.Aggression*scale {
			return HeavyAttack, true
		}
		return Idle, false
	}
	if m.cooldown > 0 || m.rng.Float64() >= m.traits.Aggression*scale {
		return Idle, false
	}
	return m.pickAttack(), true
}

func (m *Machine) pickAttack() StateKind {
	if m.rng.Float64() < m.traits.HeavyAtkProb {
		return HeavyAttack
	}
	return LightAttack
}

// perform asks the attacker to strike. The attacker's reach and cone decide
// what is hit, so a swing at a target out of reach still opens a session and
// may break scenery. In a detour the attack is already resolved elsewhere.
func (m *Machine) perform(kind attack.Kind) {
	if m.detour.active {
		return
	}
	if reach := m.attacker.Profile(kind).Radius; m.distance() > reach {
		logger.Debug("Target out of reach at impact", "kind", kind.String(), "reach", reach)
	}
	res, err := m.attacker.PerformAttack(kind)
	if err != nil {
		if errors.Is(err, attack.ErrAttackInProgress) {
			logger.Debug("Attack skipped, session already open", "kind", kind.String())
			return
		}
		logger.Error("Attack failed", "kind", kind.String(), "error", err)
		return
	}
	m.ownSession = res.Session.ID
}

func (m *Machine) startCooldown() {
	m.cooldown = m.cfg.BaseAttackCooldown / m.atkSpeed()
}

func (m *Machine) moveSpeed() float64 {
	return m.cfg.BaseMoveSpeed * m.traits.MoveSpeedMul
}

func (m *Machine) atkSpeed() float64 {
	if m.traits.AtkSpeedMul <= 0 {
		return 1
	}
	return m.traits.AtkSpeedMul
}

func (m *Machine) distance() float64 {
	return vmath.Distance(m.body.Position().Flat(), m.target.Position().Flat())
}

// awayFromTarget is the horizontal unit vector from the target to the boss.
func (m *Machine) awayFromTarget() vmath.Vec3 {
	away := m.body.Position().Sub(m.target.Position()).Flat().Normalize()
	if away.MagSq() == 0 {
		away = m.body.Forward().Flat().Normalize().Scale(-1)
	}
	return away
}
