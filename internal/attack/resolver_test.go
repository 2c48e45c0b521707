package attack

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/lawnchairsociety/bossmind/internal/config"
	"github.com/lawnchairsociety/bossmind/internal/vmath"
	"github.com/lawnchairsociety/bossmind/internal/world"
)

type fixedRand float64

func (r fixedRand) Float64() float64 { return float64(r) }

type body struct {
	pos, fwd vmath.Vec3
}

func (b *body) Position() vmath.Vec3    { return b.pos }
func (b *body) Forward() vmath.Vec3     { return b.fwd }
func (b *body) FaceToward(p vmath.Vec3) { b.fwd = p.Sub(b.pos).Flat().Normalize() }

type target struct {
	id     string
	pos    vmath.Vec3
	damage float64
}

func (t *target) ID() string                 { return t.id }
func (t *target) Position() vmath.Vec3       { return t.pos }
func (t *target) ApplyDamage(amount float64) { t.damage += amount }

type fragment struct {
	pos           vmath.Vec3
	force, torque vmath.Vec3
}

func (f *fragment) Position() vmath.Vec3 { return f.pos }
func (f *fragment) ApplyImpulse(force, torque vmath.Vec3) {
	f.force, f.torque = force, torque
}

type column struct {
	id     string
	pos    vmath.Vec3
	broken bool
	frags  []*fragment
}

func (c *column) ID() string           { return c.id }
func (c *column) Position() vmath.Vec3 { return c.pos }
func (c *column) Intact() bool         { return !c.broken }
func (c *column) Break() []world.Fragment {
	c.broken = true
	out := make([]world.Fragment, len(c.frags))
	for i, f := range c.frags {
		out[i] = f
	}
	return out
}

type layered struct {
	e     world.Entity
	layer world.Layer
}

type space struct {
	entities []layered
}

func (s *space) add(e world.Entity, l world.Layer) { s.entities = append(s.entities, layered{e, l}) }

func (s *space) QueryInRadius(center vmath.Vec3, radius float64, mask world.Layer) []world.Entity {
	var out []world.Entity
	for _, le := range s.entities {
		if mask.Has(le.layer) && vmath.Distance(center, le.e.Position()) <= radius {
			out = append(out, le.e)
		}
	}
	return out
}

func (s *space) QueryFacingCone(center, forward vmath.Vec3, radius, angleDeg float64, mask world.Layer) []world.Entity {
	var out []world.Entity
	for _, e := range s.QueryInRadius(center, radius, mask) {
		if vmath.WithinCone(center, forward, e.Position(), angleDeg) {
			out = append(out, e)
		}
	}
	return out
}

// atBearing places a point dist units away, deg degrees off the +Z axis.
func atBearing(dist, deg float64) vmath.Vec3 {
	rad := deg * math.Pi / 180
	return vmath.Vec3{X: dist * math.Sin(rad), Z: dist * math.Cos(rad)}
}

func newTestResolver(s *space) *Resolver {
	cfg := config.DefaultConfig().Combat
	cfg.Light = config.AttackConfig{Damage: 10, Radius: 5, AngleDeg: 120, Duration: 0.8, ImpactDelay: 0.3}
	return NewResolver(&body{fwd: vmath.Vec3{Z: 1}}, s, cfg, fixedRand(0.75))
}

func TestConeBoundary(t *testing.T) {
	tests := []struct {
		name    string
		bearing float64
		dist    float64
		wantHit bool
	}{
		{"straight ahead", 0, 4, true},
		{"inside cone", 50, 4, true},
		{"exactly half angle", 60, 4, true},
		{"just past half angle", 60.01, 4, false},
		{"mirrored side", -60, 4, true},
		{"behind", 180, 2, false},
		{"out of radius", 0, 5.5, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &space{}
			p := &target{id: "player", pos: atBearing(tt.dist, tt.bearing)}
			s.add(p, world.LayerPlayer)
			r := newTestResolver(s)

			res, err := r.PerformAttack(Light)
			if err != nil {
				t.Fatalf("PerformAttack: %v", err)
			}
			if got := len(res.Hits) == 1; got != tt.wantHit {
				t.Errorf("hit = %v, want %v", got, tt.wantHit)
			}
			wantDamage := 0.0
			if tt.wantHit {
				wantDamage = 10
			}
			if p.damage != wantDamage {
				t.Errorf("player took %v, want %v", p.damage, wantDamage)
			}
		})
	}
}

func TestSingleOpenSession(t *testing.T) {
	r := newTestResolver(&space{})
	if _, err := r.PerformAttack(Light); err != nil {
		t.Fatalf("first attack: %v", err)
	}
	if _, err := r.PerformAttack(Heavy); !errors.Is(err, ErrAttackInProgress) {
		t.Fatalf("second attack err = %v, want ErrAttackInProgress", err)
	}
	if !r.IsAttacking() {
		t.Fatal("expected open session")
	}
}

func TestSessionLifecycle(t *testing.T) {
	s := &space{}
	s.add(&target{id: "player", pos: atBearing(2, 0)}, world.LayerPlayer)
	r := newTestResolver(s)

	var got []Signal
	r.Subscribe(func(ev Event) { got = append(got, ev.Signal) })

	var dealt float64
	r.OnDamageDealt(func(amount float64) { dealt += amount })

	res, err := r.PerformAttack(Light)
	if err != nil {
		t.Fatalf("PerformAttack: %v", err)
	}
	if dealt != 10 {
		t.Errorf("reported %v damage, want 10", dealt)
	}

	r.Advance(0.5)
	if !r.IsAttacking() {
		t.Fatal("session closed before its duration")
	}
	r.Advance(0.5)
	if r.IsAttacking() {
		t.Fatal("session still open after its duration")
	}
	r.Advance(1)

	if diff := cmp.Diff([]Signal{Started, Ended}, got); diff != "" {
		t.Errorf("signals mismatch (-want +got):\n%s", diff)
	}
	if res.Session.ID.String() == "" {
		t.Error("session has no id")
	}
}

func TestSpeedMultiplierShortensSession(t *testing.T) {
	r := newTestResolver(&space{})
	r.SetSpeedMultiplier(2)
	res, _ := r.PerformAttack(Light)
	if res.Session.Duration != 0.4 {
		t.Errorf("duration = %v, want 0.4", res.Session.Duration)
	}
	r.SetSpeedMultiplier(0)
	r.Advance(0.4)
	res, _ = r.PerformAttack(Light)
	if res.Session.Duration != 0.4 {
		t.Errorf("non-positive multiplier changed duration to %v", res.Session.Duration)
	}
}

func TestEnvironmentBreaksOnlyOnMiss(t *testing.T) {
	newColumn := func() *column {
		return &column{
			id:    "column",
			pos:   atBearing(3, 0),
			frags: []*fragment{{pos: atBearing(3, 10)}, {pos: atBearing(3, -10)}},
		}
	}

	t.Run("miss breaks column", func(t *testing.T) {
		s := &space{}
		c := newColumn()
		s.add(c, world.LayerEnvironment)
		r := newTestResolver(s)

		var env []Event
		r.Subscribe(func(ev Event) {
			if ev.Signal == EnvironmentInteraction {
				env = append(env, ev)
			}
		})

		res, err := r.PerformAttack(Light)
		if err != nil {
			t.Fatalf("PerformAttack: %v", err)
		}
		if !c.broken {
			t.Fatal("column not broken")
		}
		if diff := cmp.Diff([]string{"column"}, res.Broken); diff != "" {
			t.Errorf("broken mismatch (-want +got):\n%s", diff)
		}
		if len(env) != 1 {
			t.Fatalf("got %d environment events, want 1", len(env))
		}
		for _, f := range c.frags {
			if f.force.Dot(f.pos) <= 0 {
				t.Errorf("fragment at %v pushed inward: %v", f.pos, f.force)
			}
			if f.torque.MagSq() == 0 {
				t.Errorf("fragment at %v got no torque", f.pos)
			}
		}
	})

	t.Run("hit spares column", func(t *testing.T) {
		s := &space{}
		c := newColumn()
		s.add(c, world.LayerEnvironment)
		s.add(&target{id: "player", pos: atBearing(2, 0)}, world.LayerPlayer)
		r := newTestResolver(s)

		res, _ := r.PerformAttack(Light)
		if c.broken {
			t.Error("column broken although the player was hit")
		}
		if len(res.Broken) != 0 {
			t.Errorf("broken = %v, want none", res.Broken)
		}
	})

	t.Run("already broken column is skipped", func(t *testing.T) {
		s := &space{}
		c := newColumn()
		c.broken = true
		s.add(c, world.LayerEnvironment)
		r := newTestResolver(s)

		res, _ := r.PerformAttack(Light)
		if len(res.Broken) != 0 {
			t.Errorf("broken = %v, want none", res.Broken)
		}
	})
}
