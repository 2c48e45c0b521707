// Package world declares the collaborators the boss core talks to but does
// not own: the physics world's spatial queries, locomotion, the boss's own
// transform and the things that can be damaged or broken.
package world

import "github.com/lawnchairsociety/bossmind/internal/vmath"

// Layer is a collision layer bit. Queries take a mask of layers.
type Layer uint32

const (
	LayerPlayer Layer = 1 << iota
	LayerEnvironment
)

// Has reports whether the mask includes layer l.
func (m Layer) Has(l Layer) bool {
	return m&l != 0
}

// Entity is anything with an identity and a position in the physics world.
type Entity interface {
	ID() string
	Position() vmath.Vec3
}

// DamageSink accepts scalar damage. Implemented by the player's health.
type DamageSink interface {
	ApplyDamage(amount float64)
}

// Fragment is one rigid piece of a broken destructible.
type Fragment interface {
	Position() vmath.Vec3
	ApplyImpulse(force, torque vmath.Vec3)
}

// Destructible is breakable scenery such as a column.
type Destructible interface {
	Intact() bool
	// Break swaps the intact mesh for its fragments and returns them.
	Break() []Fragment
}

// SpatialQuery is the physics world's overlap interface.
type SpatialQuery interface {
	QueryInRadius(center vmath.Vec3, radius float64, mask Layer) []Entity
	QueryFacingCone(center, forward vmath.Vec3, radius, angleDeg float64, mask Layer) []Entity
}

// Navigator is the opaque locomotion capability.
type Navigator interface {
	SetDestination(point vmath.Vec3)
	Stop()
	Resume()
	SetSpeed(speed float64)
	// SamplePosition snaps point to the nearest navigable point within
	// maxRadius, reporting false when none exists.
	SamplePosition(point vmath.Vec3, maxRadius float64) (vmath.Vec3, bool)
}

// Body is the boss's own transform.
type Body interface {
	Position() vmath.Vec3
	Forward() vmath.Vec3
	FaceToward(point vmath.Vec3)
}
