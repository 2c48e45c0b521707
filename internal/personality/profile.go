// Package personality defines the boss's behavioral trait vector and the
// bounded mutators that keep every trait inside its documented range.
package personality

import "fmt"

// Trait bounds.
const (
	MinAggression        = 0.0
	MaxAggression        = 1.0
	MinMoveSpeedMul      = 0.5
	MaxMoveSpeedMul      = 2.0
	MinAtkSpeedMul       = 0.5
	MaxAtkSpeedMul       = 1.5
	MinPreferredDistance = 1.0
	MaxPreferredDistance = 10.0
	MinHeavyAtkProb      = 0.0
	MaxHeavyAtkProb      = 1.0
	MaxProbability       = 1.0
)

// Traits is the combat-behavior part of a profile, the values the state
// machine reads.
type Traits struct {
	Aggression        float64 `yaml:"aggression" json:"aggression"`
	MoveSpeedMul      float64 `yaml:"move_speed_mul" json:"move_speed_mul"`
	AtkSpeedMul       float64 `yaml:"atk_speed_mul" json:"atk_speed_mul"`
	PreferredDistance float64 `yaml:"preferred_distance" json:"preferred_distance"`
	HeavyAtkProb      float64 `yaml:"heavy_atk_prob" json:"heavy_atk_prob"`
}

// Profile is a named trait vector plus its selection probability.
type Profile struct {
	name        string
	traits      Traits
	probability float64
}

// New creates a profile with every trait clamped into range. The selection
// probability is clamped to [floor, 1].
func New(name string, traits Traits, probability, floor float64) *Profile {
	p := &Profile{name: name}
	p.SetTraits(traits)
	p.SetProbability(probability, floor)
	return p
}

// Name returns the profile's unique roster name.
func (p *Profile) Name() string { return p.name }

// Traits returns a copy of the trait vector.
func (p *Profile) Traits() Traits { return p.traits }

// Probability returns the current selection probability.
func (p *Profile) Probability() float64 { return p.probability }

// Aggression returns the attack eagerness in [0,1].
func (p *Profile) Aggression() float64 { return p.traits.Aggression }

// MoveSpeedMul returns the locomotion speed multiplier.
func (p *Profile) MoveSpeedMul() float64 { return p.traits.MoveSpeedMul }

// AtkSpeedMul returns the attack timing multiplier.
func (p *Profile) AtkSpeedMul() float64 { return p.traits.AtkSpeedMul }

// PreferredDistance returns the range the boss tries to hold from its target.
func (p *Profile) PreferredDistance() float64 { return p.traits.PreferredDistance }

// HeavyAtkProb returns the chance an attack roll picks the heavy attack.
func (p *Profile) HeavyAtkProb() float64 { return p.traits.HeavyAtkProb }

// SetTraits replaces the trait vector, clamping each field.
func (p *Profile) SetTraits(t Traits) {
	p.SetAggression(t.Aggression)
	p.SetMoveSpeedMul(t.MoveSpeedMul)
	p.SetAtkSpeedMul(t.AtkSpeedMul)
	p.SetPreferredDistance(t.PreferredDistance)
	p.SetHeavyAtkProb(t.HeavyAtkProb)
}

// SetAggression sets aggression, clamped to its bounds.
func (p *Profile) SetAggression(v float64) {
	p.traits.Aggression = clamp(v, MinAggression, MaxAggression)
}

// SetMoveSpeedMul sets the locomotion multiplier, clamped to its bounds.
func (p *Profile) SetMoveSpeedMul(v float64) {
	p.traits.MoveSpeedMul = clamp(v, MinMoveSpeedMul, MaxMoveSpeedMul)
}

// SetAtkSpeedMul sets the attack timing multiplier, clamped to its bounds.
func (p *Profile) SetAtkSpeedMul(v float64) {
	p.traits.AtkSpeedMul = clamp(v, MinAtkSpeedMul, MaxAtkSpeedMul)
}

// SetPreferredDistance sets the held range, clamped to its bounds.
func (p *Profile) SetPreferredDistance(v float64) {
	p.traits.PreferredDistance = clamp(v, MinPreferredDistance, MaxPreferredDistance)
}

// SetHeavyAtkProb sets the heavy attack chance, clamped to its bounds.
func (p *Profile) SetHeavyAtkProb(v float64) {
	p.traits.HeavyAtkProb = clamp(v, MinHeavyAtkProb, MaxHeavyAtkProb)
}

// SetProbability clamps v into [floor, 1].
func (p *Profile) SetProbability(v, floor float64) {
	p.probability = clamp(v, floor, MaxProbability)
}

// SetProbabilityRaw stores v without the floor clamp. Normalization uses this
// for its final rescale, which may land a hair under the floor.
func (p *Profile) SetProbabilityRaw(v float64) {
	p.probability = v
}

func (p *Profile) String() string {
	return fmt.Sprintf("%s(p=%.3f aggr=%.2f move=%.2f atk=%.2f dist=%.2f heavy=%.2f)",
		p.name, p.probability, p.traits.Aggression, p.traits.MoveSpeedMul,
		p.traits.AtkSpeedMul, p.traits.PreferredDistance, p.traits.HeavyAtkProb)
}

func clamp(v, lo, hi float64) float64 {
	if v != v { // NaN
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
