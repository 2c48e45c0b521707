package arena

import (
	"fmt"

	"github.com/lawnchairsociety/bossmind/internal/vmath"
	"github.com/lawnchairsociety/bossmind/internal/world"
)

const (
	gravity            = 9.81
	columnHeight       = 4.0
	fragmentsPerColumn = 6
)

// BossBody is the boss's transform and locomotion. It implements
// world.Body and world.Navigator.
type BossBody struct {
	arena *Arena

	pos     vmath.Vec3
	forward vmath.Vec3
	speed   float64
	dest    vmath.Vec3
	hasDest bool
	stopped bool
}

func (b *BossBody) Position() vmath.Vec3 { return b.pos }
func (b *BossBody) Forward() vmath.Vec3  { return b.forward }

// FaceToward turns the boss on the horizontal plane. A point at the boss's
// own position leaves the facing unchanged.
func (b *BossBody) FaceToward(point vmath.Vec3) {
	if dir := point.Sub(b.pos).Flat().Normalize(); dir.MagSq() > 0 {
		b.forward = dir
	}
}

func (b *BossBody) SetDestination(point vmath.Vec3) {
	b.dest = point
	b.hasDest = true
}

func (b *BossBody) Stop()                  { b.stopped = true }
func (b *BossBody) Resume()                { b.stopped = false }
func (b *BossBody) SetSpeed(speed float64) { b.speed = speed }

// Stopped reports whether locomotion is halted.
func (b *BossBody) Stopped() bool { return b.stopped }

// Speed returns the current locomotion speed.
func (b *BossBody) Speed() float64 { return b.speed }

// Destination returns the current destination, if any.
func (b *BossBody) Destination() (vmath.Vec3, bool) { return b.dest, b.hasDest }

// SamplePosition snaps point onto the walkable floor.
func (b *BossBody) SamplePosition(point vmath.Vec3, maxRadius float64) (vmath.Vec3, bool) {
	return b.arena.SamplePosition(point, maxRadius)
}

func (b *BossBody) step(dt float64) {
	if b.stopped || !b.hasDest {
		return
	}
	delta := b.dest.Sub(b.pos).Flat()
	dist := delta.Mag()
	travel := b.speed * dt
	if dist <= travel {
		b.pos = vmath.Vec3{X: b.dest.X, Y: b.pos.Y, Z: b.dest.Z}
		b.hasDest = false
	} else {
		dir := delta.Scale(1 / dist)
		b.pos = b.pos.Add(dir.Scale(travel))
		b.forward = dir
	}
	b.pos = b.arena.clampToFloor(b.pos)
}

// Player is the simulated opponent. It implements world.Entity and
// world.DamageSink.
type Player struct {
	pos       vmath.Vec3
	health    float64
	maxHealth float64
	deaths    int
	received  float64
	attackCD  float64
}

func (p *Player) ID() string           { return "player" }
func (p *Player) Position() vmath.Vec3 { return p.pos }

// MoveTo teleports the player, e.g. to a spawn point.
func (p *Player) MoveTo(pos vmath.Vec3) { p.pos = pos }

// ApplyDamage lowers health. The player respawns at full health on death.
func (p *Player) ApplyDamage(amount float64) {
	if amount <= 0 {
		return
	}
	p.received += amount
	p.health -= amount
	if p.health <= 0 {
		p.deaths++
		p.health = p.maxHealth
	}
}

func (p *Player) Health() float64         { return p.health }
func (p *Player) Deaths() int             { return p.deaths }
func (p *Player) DamageReceived() float64 { return p.received }

// Column is a breakable pillar. It implements world.Entity and
// world.Destructible.
type Column struct {
	id        string
	pos       vmath.Vec3
	intact    bool
	fragments []*Fragment
}

func (c *Column) ID() string           { return c.id }
func (c *Column) Position() vmath.Vec3 { return c.pos }
func (c *Column) Intact() bool         { return c.intact }

// Fragments returns the pieces of a broken column.
func (c *Column) Fragments() []*Fragment { return c.fragments }

// Break replaces the column with stacked fragments. Breaking an already
// broken column yields nothing.
func (c *Column) Break() []world.Fragment {
	if !c.intact {
		return nil
	}
	c.intact = false
	out := make([]world.Fragment, 0, fragmentsPerColumn)
	for i := 0; i < fragmentsPerColumn; i++ {
		f := &Fragment{
			id:  fmt.Sprintf("%s/frag-%d", c.id, i),
			pos: c.pos.Add(vmath.Vec3{Y: columnHeight * (float64(i) + 0.5) / fragmentsPerColumn}),
		}
		c.fragments = append(c.fragments, f)
		out = append(out, f)
	}
	return out
}

// Fragment is a unit-mass rigid piece with linear and angular velocity.
type Fragment struct {
	id       string
	pos      vmath.Vec3
	velocity vmath.Vec3
	spin     vmath.Vec3
	resting  bool
}

func (f *Fragment) ID() string                  { return f.id }
func (f *Fragment) Position() vmath.Vec3        { return f.pos }
func (f *Fragment) Velocity() vmath.Vec3        { return f.velocity }
func (f *Fragment) AngularVelocity() vmath.Vec3 { return f.spin }

// ApplyImpulse adds an instantaneous change in velocity and spin.
func (f *Fragment) ApplyImpulse(force, torque vmath.Vec3) {
	f.velocity = f.velocity.Add(force)
	f.spin = f.spin.Add(torque)
	f.resting = false
}

// Resting reports whether the fragment has settled on the floor.
func (f *Fragment) Resting() bool { return f.resting }

func (f *Fragment) step(dt float64) {
	if f.resting {
		return
	}
	f.velocity.Y -= gravity * dt
	f.pos = f.pos.Add(f.velocity.Scale(dt))
	if f.pos.Y <= 0 {
		f.pos.Y = 0
		f.velocity = vmath.Vec3{}
		f.spin = vmath.Vec3{}
		f.resting = true
	}
}
