// Package arena is a headless combat arena: a circular floor with a ring of
// breakable columns, the boss's body and a wandering player. It stands in for
// the physics and navigation layers so the boss can be run end to end.
package arena

import (
	"fmt"
	"math"

	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/lawnchairsociety/bossmind/internal/logger"
	"github.com/lawnchairsociety/bossmind/internal/vmath"
	"github.com/lawnchairsociety/bossmind/internal/world"
)

// Options shape the arena and the simulated player.
type Options struct {
	Seed         int64
	Radius       float64
	ColumnCount  int
	ColumnRing   float64
	ColumnRadius float64

	PlayerHealth         float64
	PlayerSpeed          float64
	PlayerReach          float64
	PlayerDamage         float64
	PlayerAttackInterval float64
	// PlayerPursuit blends the noise heading with a pull toward the boss,
	// 0 for pure wander and 1 for a straight chase.
	PlayerPursuit   float64
	WanderFrequency float64
}

// DefaultOptions returns a mid-sized arena with six columns.
func DefaultOptions() Options {
	return Options{
		Seed:                 1,
		Radius:               20,
		ColumnCount:          6,
		ColumnRing:           12,
		ColumnRadius:         0.8,
		PlayerHealth:         100,
		PlayerSpeed:          4,
		PlayerReach:          2,
		PlayerDamage:         8,
		PlayerAttackInterval: 1,
		PlayerPursuit:        0.6,
		WanderFrequency:      0.15,
	}
}

// HitFunc receives damage the player lands on the boss.
type HitFunc func(amount float64)

// Arena owns every simulated object.
type Arena struct {
	opts    Options
	noise   opensimplex.Noise
	elapsed float64

	boss    *BossBody
	player  *Player
	columns []*Column

	onPlayerHit HitFunc
}

// New builds an arena with the boss at the center facing +Z and the player
// spawned toward the edge.
func New(opts Options) *Arena {
	a := &Arena{
		opts:  opts,
		noise: opensimplex.NewNormalized(opts.Seed),
	}
	a.boss = &BossBody{arena: a, forward: vmath.Vec3{Z: 1}}
	a.player = &Player{
		pos:       vmath.Vec3{Z: opts.Radius / 2},
		health:    opts.PlayerHealth,
		maxHealth: opts.PlayerHealth,
	}
	for i := 0; i < opts.ColumnCount; i++ {
		bearing := 360 * float64(i) / float64(opts.ColumnCount)
		a.columns = append(a.columns, &Column{
			id:     fmt.Sprintf("column-%d", i),
			pos:    vmath.RotateY(vmath.Vec3{Z: opts.ColumnRing}, bearing),
			intact: true,
		})
	}
	logger.Debug("Arena built", "radius", opts.Radius, "columns", opts.ColumnCount, "seed", opts.Seed)
	return a
}

// OnPlayerHit registers the callback for the player's attacks on the boss.
func (a *Arena) OnPlayerHit(fn HitFunc) { a.onPlayerHit = fn }

func (a *Arena) Boss() *BossBody    { return a.boss }
func (a *Arena) Player() *Player    { return a.player }
func (a *Arena) Columns() []*Column { return a.columns }
func (a *Arena) Elapsed() float64   { return a.elapsed }
func (a *Arena) Options() Options   { return a.opts }

// IntactColumns counts columns still standing.
func (a *Arena) IntactColumns() int {
	n := 0
	for _, c := range a.columns {
		if c.intact {
			n++
		}
	}
	return n
}

// Step advances the boss's locomotion, the player and any loose fragments.
func (a *Arena) Step(dt float64) {
	a.elapsed += dt
	a.boss.step(dt)
	a.stepPlayer(dt)
	for _, c := range a.columns {
		for _, f := range c.fragments {
			f.step(dt)
		}
	}
}

func (a *Arena) stepPlayer(dt float64) {
	p := a.player

	// Noise in [0,1] sweeps the heading through two full turns.
	angle := a.noise.Eval2(a.elapsed*a.opts.WanderFrequency, 0) * 4 * math.Pi
	wander := vmath.Vec3{X: math.Sin(angle), Z: math.Cos(angle)}
	toBoss := a.boss.pos.Sub(p.pos).Flat()
	dist := toBoss.Mag()

	heading := wander.Scale(1 - a.opts.PlayerPursuit)
	if dist > a.opts.PlayerReach {
		heading = heading.Add(toBoss.Normalize().Scale(a.opts.PlayerPursuit))
	}
	p.pos = a.clampToFloor(p.pos.Add(heading.Normalize().Scale(a.opts.PlayerSpeed * dt)))

	p.attackCD -= dt
	if p.attackCD <= 0 && vmath.Distance(p.pos.Flat(), a.boss.pos.Flat()) <= a.opts.PlayerReach {
		p.attackCD = a.opts.PlayerAttackInterval
		if a.onPlayerHit != nil {
			a.onPlayerHit(a.opts.PlayerDamage)
		}
	}
}

// QueryInRadius returns the entities on the masked layers within radius of
// center. Broken columns are not returned.
func (a *Arena) QueryInRadius(center vmath.Vec3, radius float64, mask world.Layer) []world.Entity {
	var out []world.Entity
	if mask.Has(world.LayerPlayer) && vmath.Distance(center, a.player.pos) <= radius {
		out = append(out, a.player)
	}
	if mask.Has(world.LayerEnvironment) {
		for _, c := range a.columns {
			if c.intact && vmath.Distance(center.Flat(), c.pos.Flat()) <= radius+a.opts.ColumnRadius {
				out = append(out, c)
			}
		}
	}
	return out
}

// QueryFacingCone narrows QueryInRadius to the cone of full angle angleDeg
// along forward.
func (a *Arena) QueryFacingCone(center, forward vmath.Vec3, radius, angleDeg float64, mask world.Layer) []world.Entity {
	var out []world.Entity
	for _, e := range a.QueryInRadius(center, radius, mask) {
		if vmath.WithinCone(center.Flat(), forward.Flat(), e.Position().Flat(), angleDeg) {
			out = append(out, e)
		}
	}
	return out
}

// SamplePosition clamps point onto the floor disk and pushes it out of any
// intact column. It fails when the nearest walkable point is farther than
// maxRadius from point.
func (a *Arena) SamplePosition(point vmath.Vec3, maxRadius float64) (vmath.Vec3, bool) {
	snapped := a.clampToFloor(point)
	for _, c := range a.columns {
		if !c.intact {
			continue
		}
		off := snapped.Sub(c.pos).Flat()
		if off.Mag() < a.opts.ColumnRadius {
			if off.MagSq() == 0 {
				off = vmath.Vec3{X: 1}
			}
			snapped = c.pos.Add(off.Normalize().Scale(a.opts.ColumnRadius))
		}
	}
	snapped.Y = 0
	if vmath.Distance(point.Flat(), snapped) > maxRadius {
		return vmath.Vec3{}, false
	}
	return snapped, true
}

func (a *Arena) clampToFloor(p vmath.Vec3) vmath.Vec3 {
	flat := p.Flat()
	if d := flat.Mag(); d > a.opts.Radius {
		flat = flat.Scale(a.opts.Radius / d)
	}
	return vmath.Vec3{X: flat.X, Y: p.Y, Z: flat.Z}
}

var (
	_ world.SpatialQuery = (*Arena)(nil)
	_ world.Body         = (*BossBody)(nil)
	_ world.Navigator    = (*BossBody)(nil)
	_ world.Entity       = (*Player)(nil)
	_ world.DamageSink   = (*Player)(nil)
	_ world.Destructible = (*Column)(nil)
	_ world.Fragment     = (*Fragment)(nil)
)
