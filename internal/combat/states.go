package combat

import (
	"fmt"

	"github.com/lawnchairsociety/bossmind/internal/attack"
	"github.com/lawnchairsociety/bossmind/internal/logger"
	"github.com/lawnchairsociety/bossmind/internal/vmath"
)

// StateKind identifies a combat state.
type StateKind int

const (
	Idle StateKind = iota
	Chase
	Circle
	LightAttack
	HeavyAttack
	Retreat
	stateCount
)

var stateNames = [stateCount]string{
	Idle:        "idle",
	Chase:       "chase",
	Circle:      "circle",
	LightAttack: "light_attack",
	HeavyAttack: "heavy_attack",
	Retreat:     "retreat",
}

func (k StateKind) String() string {
	if k < 0 || k >= stateCount {
		return fmt.Sprintf("state(%d)", int(k))
	}
	return stateNames[k]
}

func (k StateKind) isAttack() bool {
	return k == LightAttack || k == HeavyAttack
}

// Timings shared by the movement states, in seconds.
const (
	idlePollInterval    = 0.2
	idleMinDuration     = 0.5
	idleDurationSpread  = 1.0
	chaseRetarget       = 0.2
	chasePollInterval   = 0.1
	chaseAggressionMul  = 1.5
	circleMinDuration   = 3.0
	circleDurationRange = 2.0
	circleTooFar        = 1.3
	circleTooClose      = 0.7
	retreatBaseDuration = 2.0
)

type stateFuncs struct {
	enter                func(*Machine)
	update               func(*Machine, float64)
	exit                 func(*Machine)
	onPersonalityChanged func(*Machine)
}

var states [stateCount]stateFuncs

func init() {
	states = [stateCount]stateFuncs{
		Idle: {
			enter:  (*Machine).enterIdle,
			update: (*Machine).updateIdle,
		},
		Chase: {
			enter:                (*Machine).enterChase,
			update:               (*Machine).updateChase,
			onPersonalityChanged: (*Machine).chaseDestination,
		},
		Circle: {
			enter:                (*Machine).enterCircle,
			update:               (*Machine).updateCircle,
			onPersonalityChanged: (*Machine).strafe,
		},
		LightAttack: {
			enter:  (*Machine).enterLight,
			update: (*Machine).updateLight,
			exit:   (*Machine).resumeLocomotion,
		},
		HeavyAttack: {
			enter:  (*Machine).enterHeavy,
			update: (*Machine).updateHeavy,
			exit:   (*Machine).resumeLocomotion,
		},
		Retreat: {
			enter:  (*Machine).enterRetreat,
			update: (*Machine).updateRetreat,
		},
	}
}

type idleState struct {
	duration float64
	poll     float64
}

func (m *Machine) enterIdle() {
	m.nav.Stop()
	m.idle = idleState{duration: idleMinDuration + m.rng.Float64()*idleDurationSpread}
}

func (m *Machine) updateIdle(dt float64) {
	m.body.FaceToward(m.target.Position())

	m.idle.poll += dt
	if m.idle.poll >= idlePollInterval {
		m.idle.poll -= idlePollInterval
		if m.cooldown <= 0 && m.rng.Float64() < m.cfg.OpportunityChance*m.traits.Aggression {
			m.transition(m.decide(1, false))
			return
		}
	}
	if m.elapsed >= m.idle.duration {
		m.transition(m.decide(1, false))
	}
}

type chaseState struct {
	retarget float64
	poll     float64
}

func (m *Machine) enterChase() {
	m.chase = chaseState{}
	m.nav.Resume()
	m.chaseDestination()
}

// chaseDestination heads for the point at preferred distance from the target
// on the boss's side.
func (m *Machine) chaseDestination() {
	dest := m.target.Position().Add(m.awayFromTarget().Scale(m.traits.PreferredDistance))
	m.nav.SetDestination(dest)
}

func (m *Machine) updateChase(dt float64) {
	d := m.distance()
	if d <= m.traits.PreferredDistance {
		if next, ok := m.rollAttack(1, false); ok {
			m.transition(next)
		} else {
			m.transition(Circle)
		}
		return
	}

	m.chase.retarget += dt
	if m.chase.retarget >= chaseRetarget {
		m.chase.retarget -= chaseRetarget
		m.chaseDestination()
	}

	m.chase.poll += dt
	if m.chase.poll >= chasePollInterval {
		m.chase.poll -= chasePollInterval
		chance := m.cfg.OpportunityChance * m.traits.Aggression * chaseAggressionMul
		if m.cooldown <= 0 && d <= m.attacker.Profile(attack.Light).Radius && m.rng.Float64() < chance {
			m.transition(m.pickAttack())
		}
	}
}

type circleState struct {
	duration  float64
	direction float64
}

func (m *Machine) enterCircle() {
	m.circle = circleState{
		duration:  circleMinDuration + m.rng.Float64()*circleDurationRange,
		direction: 1,
	}
	if m.rng.Float64() < 0.5 {
		m.circle.direction = -1
	}
	m.nav.Resume()
	m.strafe()
}

// strafe orbits the target at preferred distance, offset sideways in the
// orbit direction.
func (m *Machine) strafe() {
	radial := m.awayFromTarget()
	side := vmath.Perpendicular(radial).Scale(m.cfg.CircleStrafeOffset * m.circle.direction)
	dest := m.target.Position().Add(radial.Scale(m.traits.PreferredDistance)).Add(side)
	m.nav.SetDestination(dest)
	m.body.FaceToward(m.target.Position())
}

func (m *Machine) updateCircle(dt float64) {
	d := m.distance()
	pref := m.traits.PreferredDistance
	switch {
	case d > pref*circleTooFar:
		m.transition(Chase)
		return
	case d < pref*circleTooClose:
		m.transition(Retreat)
		return
	}

	if m.cooldown <= 0 && m.rng.Float64() < m.traits.Aggression*dt {
		m.transition(m.pickAttack())
		return
	}
	if m.elapsed >= m.circle.duration {
		m.transition(Idle)
		return
	}
	m.strafe()
}

type retreatState struct {
	duration float64
}

func (m *Machine) enterRetreat() {
	m.retreat = retreatState{duration: retreatBaseDuration - m.traits.Aggression}
	m.nav.Resume()

	candidate := m.body.Position().Add(m.awayFromTarget().Scale(m.cfg.RetreatDistance))
	dest, ok := m.nav.SamplePosition(candidate, m.cfg.RetreatSampleRange)
	if !ok {
		logger.Debug("No navigable retreat point", "x", candidate.X, "z", candidate.Z)
		m.nav.Stop()
		return
	}
	m.nav.SetDestination(dest)
}

func (m *Machine) updateRetreat(float64) {
	if m.distance() >= m.traits.PreferredDistance || m.elapsed >= m.retreat.duration {
		m.transition(Idle)
	}
}

type lightState struct {
	delay      float64
	total      float64
	impactDone bool
}

func (m *Machine) enterLight() {
	m.nav.Stop()
	m.body.FaceToward(m.target.Position())
	m.light = lightState{
		delay: m.cfg.Light.ImpactDelay / m.atkSpeed(),
		total: m.cfg.Light.Duration / m.atkSpeed(),
	}
}

func (m *Machine) updateLight(float64) {
	if !m.light.impactDone && m.elapsed >= m.light.delay {
		m.light.impactDone = true
		m.perform(attack.Light)
	}
	if m.elapsed < m.light.total || m.detour.active {
		return
	}
	m.startCooldown()
	m.transition(m.decide(1, true))
}

type heavyPhase int

const (
	heavyWindup heavyPhase = iota
	heavyStrike
)

type heavyState struct {
	phase      heavyPhase
	phaseTime  float64
	windup     float64
	strike     float64
	impactDone bool
}

func (m *Machine) enterHeavy() {
	m.nav.Stop()
	m.heavy = heavyState{
		phase:  heavyWindup,
		windup: m.cfg.HeavyWindup / m.atkSpeed(),
	}
}

func (m *Machine) updateHeavy(dt float64) {
	m.heavy.phaseTime += dt
	switch m.heavy.phase {
	case heavyWindup:
		m.body.FaceToward(m.target.Position())
		if m.heavy.phaseTime >= m.heavy.windup {
			m.beginStrike()
		}
	case heavyStrike:
		if m.heavy.phaseTime >= m.cfg.Heavy.ImpactDelay {
			m.heavyImpact()
		}
		if m.heavy.phaseTime < m.heavy.strike || m.detour.active {
			return
		}
		m.startCooldown()
		m.transition(Idle)
	}
}

func (m *Machine) beginStrike() {
	m.heavy.phase = heavyStrike
	m.heavy.phaseTime = 0
	m.heavy.strike = m.cfg.Heavy.Duration / m.atkSpeed()
}

func (m *Machine) heavyImpact() {
	if m.heavy.impactDone {
		return
	}
	m.heavy.impactDone = true
	m.perform(attack.Heavy)
}

func (m *Machine) resumeLocomotion() {
	m.nav.Resume()
}
