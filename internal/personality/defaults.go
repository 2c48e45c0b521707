package personality

// DefaultTraits is the starting roster, in selection order.
var DefaultTraits = []struct {
	Name   string
	Traits Traits
}{
	{"Balanced", Traits{Aggression: 0.5, MoveSpeedMul: 1.0, AtkSpeedMul: 1.0, PreferredDistance: 3.0, HeavyAtkProb: 0.3}},
	{"Aggressive", Traits{Aggression: 0.85, MoveSpeedMul: 1.3, AtkSpeedMul: 1.2, PreferredDistance: 2.0, HeavyAtkProb: 0.4}},
	{"Defensive", Traits{Aggression: 0.2, MoveSpeedMul: 0.9, AtkSpeedMul: 0.9, PreferredDistance: 5.0, HeavyAtkProb: 0.2}},
	{"Berserker", Traits{Aggression: 1.0, MoveSpeedMul: 1.6, AtkSpeedMul: 1.4, PreferredDistance: 1.5, HeavyAtkProb: 0.7}},
	{"Tactician", Traits{Aggression: 0.4, MoveSpeedMul: 1.1, AtkSpeedMul: 1.0, PreferredDistance: 4.0, HeavyAtkProb: 0.5}},
}

// DefaultRoster builds the starting profiles with equal probability.
func DefaultRoster(floor float64) []*Profile {
	share := 1.0 / float64(len(DefaultTraits))
	roster := make([]*Profile, 0, len(DefaultTraits))
	for _, d := range DefaultTraits {
		roster = append(roster, New(d.Name, d.Traits, share, floor))
	}
	return roster
}
