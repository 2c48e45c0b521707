package personality

import (
	"fmt"
	"strings"
)

// MutationTag marks names of profiles derived by mutation.
const MutationTag = "_Mut"

// Trait identifies one of the five mutable traits.
type Trait int

const (
	TraitAggression Trait = iota
	TraitMoveSpeed
	TraitAtkSpeed
	TraitPreferredDistance
	TraitHeavyAtkProb
	traitCount
)

// MutableTraitCount is the number of traits a mutation chooses among.
const MutableTraitCount = int(traitCount)

func (t Trait) String() string {
	switch t {
	case TraitAggression:
		return "Aggression"
	case TraitMoveSpeed:
		return "Speed"
	case TraitAtkSpeed:
		return "AtkSpeed"
	case TraitPreferredDistance:
		return "Distance"
	case TraitHeavyAtkProb:
		return "Heavy"
	default:
		return "Unknown"
	}
}

// IsMutation reports whether a roster name carries the mutation tag.
func IsMutation(name string) bool {
	return strings.Contains(name, MutationTag)
}

// MutationName builds the tagged name for the seq-th mutation of parent.
func MutationName(parent string, trait Trait, seq int) string {
	return fmt.Sprintf("%s%s%s%d", parent, MutationTag, trait, seq)
}

// Mutate clones parent into a new profile named name with one trait perturbed
// by delta, where delta is expected in [-strength, strength]. Aggression and
// heavy-attack probability move additively; the multipliers and distance move
// multiplicatively. The clone starts at probability zero; the caller assigns
// its share.
func Mutate(parent *Profile, name string, trait Trait, delta float64) *Profile {
	child := &Profile{name: name, traits: parent.traits}
	t := parent.traits
	switch trait {
	case TraitAggression:
		child.SetAggression(t.Aggression + delta)
	case TraitMoveSpeed:
		child.SetMoveSpeedMul(t.MoveSpeedMul * (1 + delta))
	case TraitAtkSpeed:
		child.SetAtkSpeedMul(t.AtkSpeedMul * (1 + delta))
	case TraitPreferredDistance:
		child.SetPreferredDistance(t.PreferredDistance * (1 + delta))
	case TraitHeavyAtkProb:
		child.SetHeavyAtkProb(t.HeavyAtkProb + delta)
	}
	return child
}
