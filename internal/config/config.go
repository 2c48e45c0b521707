// Package config loads the boss tuning file: allocator learning parameters,
// combat timings, persistence backend and the debug stats feed.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// BossConfig holds every tunable of the boss core.
type BossConfig struct {
	Allocator   AllocatorConfig   `yaml:"allocator"`
	Combat      CombatConfig      `yaml:"combat"`
	Persistence PersistenceConfig `yaml:"persistence"`
	PerfLog     PerfLogConfig     `yaml:"perf_log"`
	StatsFeed   StatsFeedConfig   `yaml:"stats_feed"`
}

// AllocatorConfig tunes the personality-selection learner.
type AllocatorConfig struct {
	// LearningRate scales every probability adjustment.
	LearningRate float64 `yaml:"learning_rate"`

	// MinProbability is the floor no personality's probability is clamped below.
	MinProbability float64 `yaml:"min_probability"`

	// MaxPersonalities bounds the roster; mutation stops at this size.
	MaxPersonalities int `yaml:"max_personalities"`

	// MutationChance is the probability that a selection spawns a variant.
	MutationChance float64 `yaml:"mutation_chance"`

	// MutationStrength is the largest perturbation a mutation applies.
	MutationStrength float64 `yaml:"mutation_strength"`

	// PruneChance is the probability that a selection runs pruning.
	PruneChance float64 `yaml:"prune_chance"`

	// SelectionCooldownSeconds is the time between re-selections.
	SelectionCooldownSeconds float64 `yaml:"selection_cooldown_seconds"`

	// MutationBonus multiplies positive adjustments of mutated personalities.
	MutationBonus float64 `yaml:"mutation_bonus"`
}

// AttackConfig describes one attack kind.
type AttackConfig struct {
	Damage   float64 `yaml:"damage"`
	Radius   float64 `yaml:"radius"`
	AngleDeg float64 `yaml:"angle_deg"`
	// Duration is the base length of the attack session in seconds.
	Duration float64 `yaml:"duration"`
	// ImpactDelay is the base time from attack start to damage.
	ImpactDelay float64 `yaml:"impact_delay"`
}

// CombatConfig tunes the combat state machine and attack resolver.
type CombatConfig struct {
	BaseMoveSpeed      float64 `yaml:"base_move_speed"`
	BaseAttackCooldown float64 `yaml:"base_attack_cooldown"`
	HeavyWindup        float64 `yaml:"heavy_windup"`
	RetreatDistance    float64 `yaml:"retreat_distance"`
	RetreatSampleRange float64 `yaml:"retreat_sample_range"`
	CircleStrafeOffset float64 `yaml:"circle_strafe_offset"`
	// OpportunityChance is the base per-poll chance, scaled by aggression,
	// that an attack opportunity interrupts Idle or Chase.
	OpportunityChance float64 `yaml:"opportunity_chance"`
	// FragmentForce is the outward impulse applied to broken scenery.
	FragmentForce  float64      `yaml:"fragment_force"`
	FragmentTorque float64      `yaml:"fragment_torque"`
	Light          AttackConfig `yaml:"light"`
	Heavy          AttackConfig `yaml:"heavy"`
}

// PersistenceConfig selects where learned probabilities are kept.
type PersistenceConfig struct {
	// Driver is "file", "sqlite", "postgres" or "none".
	Driver     string         `yaml:"driver"`
	FilePath   string         `yaml:"file_path"`
	SQLitePath string         `yaml:"sqlite_path"`
	Postgres   PostgresConfig `yaml:"postgres"`
	// SaveOnSelect persists probabilities after every re-selection.
	SaveOnSelect bool `yaml:"save_on_select"`
	// ArchiveEvents writes performance log entries to the database.
	ArchiveEvents bool `yaml:"archive_events"`
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host                   string `yaml:"host"`
	Port                   int    `yaml:"port"`
	User                   string `yaml:"user"`
	Password               string `yaml:"password"`
	Database               string `yaml:"database"`
	SSLMode                string `yaml:"ssl_mode"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// ConnMaxLifetime returns the pool lifetime as a duration.
func (p PostgresConfig) ConnMaxLifetime() time.Duration {
	return time.Duration(p.ConnMaxLifetimeMinutes) * time.Minute
}

// PerfLogConfig sizes the performance ring.
type PerfLogConfig struct {
	Capacity int `yaml:"capacity"`
	// StatsCacheSize bounds the per-personality aggregate cache.
	StatsCacheSize int `yaml:"stats_cache_size"`
}

// StatsFeedConfig holds the debug overlay websocket settings.
type StatsFeedConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`

	// AllowedOrigins is a list of origins allowed to connect.
	// Empty list enforces same-origin policy; "*" allows all.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// BroadcastsPerSecond caps how often snapshots are pushed.
	BroadcastsPerSecond float64 `yaml:"broadcasts_per_second"`

	// MaxPerIP is the maximum concurrent connections from one IP. 0 = unlimited.
	MaxPerIP int `yaml:"max_per_ip"`

	// MaxTotal is the maximum concurrent connections. 0 = unlimited.
	MaxTotal int `yaml:"max_total"`
}

// DefaultConfig returns the shipped tuning.
func DefaultConfig() *BossConfig {
	return &BossConfig{
		Allocator: AllocatorConfig{
			LearningRate:             0.1,
			MinProbability:           0.05,
			MaxPersonalities:         10,
			MutationChance:           0.2,
			MutationStrength:         0.2,
			PruneChance:              0.3,
			SelectionCooldownSeconds: 10,
			MutationBonus:            1.2,
		},
		Combat: CombatConfig{
			BaseMoveSpeed:      3.5,
			BaseAttackCooldown: 1.5,
			HeavyWindup:        0.8,
			RetreatDistance:    5,
			RetreatSampleRange: 10,
			CircleStrafeOffset: 2,
			OpportunityChance:  0.3,
			FragmentForce:      6,
			FragmentTorque:     3,
			Light: AttackConfig{
				Damage:      10,
				Radius:      2.5,
				AngleDeg:    90,
				Duration:    0.8,
				ImpactDelay: 0.3,
			},
			Heavy: AttackConfig{
				Damage:      25,
				Radius:      3.5,
				AngleDeg:    120,
				Duration:    1.2,
				ImpactDelay: 0.3,
			},
		},
		Persistence: PersistenceConfig{
			Driver:       "file",
			FilePath:     "data/personalities.yaml",
			SQLitePath:   "data/bossmind.db",
			SaveOnSelect: true,
			Postgres: PostgresConfig{
				Host:                   "localhost",
				Port:                   5432,
				SSLMode:                "disable",
				MaxOpenConns:           10,
				MaxIdleConns:           2,
				ConnMaxLifetimeMinutes: 5,
			},
		},
		PerfLog: PerfLogConfig{
			Capacity:       1000,
			StatsCacheSize: 32,
		},
		StatsFeed: StatsFeedConfig{
			Enabled:             false,
			Address:             "127.0.0.1:4480",
			AllowedOrigins:      []string{},
			BroadcastsPerSecond: 2,
			MaxPerIP:            3,
			MaxTotal:            16,
		},
	}
}

// LoadConfig loads boss configuration from a YAML file.
// If the file doesn't exist, returns default config.
func LoadConfig(path string) (*BossConfig, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return config, err
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return DefaultConfig(), fmt.Errorf("parse %s: %w", path, err)
	}

	config.Validate()
	return config, nil
}

// Validate replaces out-of-range values with their defaults and returns the
// names of the fields it repaired.
func (c *BossConfig) Validate() []string {
	def := DefaultConfig()
	var repaired []string

	fixFloat := func(name string, v *float64, ok bool, fallback float64) {
		if !ok {
			*v = fallback
			repaired = append(repaired, name)
		}
	}

	a := &c.Allocator
	fixFloat("allocator.learning_rate", &a.LearningRate, a.LearningRate > 0 && a.LearningRate <= 1, def.Allocator.LearningRate)
	// Five default personalities must fit above the floor.
	fixFloat("allocator.min_probability", &a.MinProbability, a.MinProbability > 0 && a.MinProbability < 0.2, def.Allocator.MinProbability)
	fixFloat("allocator.mutation_chance", &a.MutationChance, a.MutationChance >= 0 && a.MutationChance <= 1, def.Allocator.MutationChance)
	fixFloat("allocator.mutation_strength", &a.MutationStrength, a.MutationStrength >= 0 && a.MutationStrength <= 0.5, def.Allocator.MutationStrength)
	fixFloat("allocator.prune_chance", &a.PruneChance, a.PruneChance >= 0 && a.PruneChance <= 1, def.Allocator.PruneChance)
	fixFloat("allocator.selection_cooldown_seconds", &a.SelectionCooldownSeconds, a.SelectionCooldownSeconds > 0, def.Allocator.SelectionCooldownSeconds)
	fixFloat("allocator.mutation_bonus", &a.MutationBonus, a.MutationBonus >= 1, def.Allocator.MutationBonus)
	if a.MaxPersonalities < 5 {
		a.MaxPersonalities = def.Allocator.MaxPersonalities
		repaired = append(repaired, "allocator.max_personalities")
	}

	cb := &c.Combat
	fixFloat("combat.base_move_speed", &cb.BaseMoveSpeed, cb.BaseMoveSpeed > 0, def.Combat.BaseMoveSpeed)
	fixFloat("combat.base_attack_cooldown", &cb.BaseAttackCooldown, cb.BaseAttackCooldown >= 0, def.Combat.BaseAttackCooldown)
	fixFloat("combat.heavy_windup", &cb.HeavyWindup, cb.HeavyWindup > 0, def.Combat.HeavyWindup)
	fixFloat("combat.retreat_sample_range", &cb.RetreatSampleRange, cb.RetreatSampleRange > 0, def.Combat.RetreatSampleRange)
	for _, atk := range []struct {
		name string
		cfg  *AttackConfig
		def  AttackConfig
	}{
		{"combat.light", &cb.Light, def.Combat.Light},
		{"combat.heavy", &cb.Heavy, def.Combat.Heavy},
	} {
		if atk.cfg.Radius <= 0 || atk.cfg.AngleDeg <= 0 || atk.cfg.AngleDeg > 360 ||
			atk.cfg.Duration <= 0 || atk.cfg.ImpactDelay < 0 || atk.cfg.ImpactDelay > atk.cfg.Duration {
			*atk.cfg = atk.def
			repaired = append(repaired, atk.name)
		}
	}

	if c.PerfLog.Capacity <= 0 {
		c.PerfLog.Capacity = def.PerfLog.Capacity
		repaired = append(repaired, "perf_log.capacity")
	}
	if c.PerfLog.StatsCacheSize <= 0 {
		c.PerfLog.StatsCacheSize = def.PerfLog.StatsCacheSize
		repaired = append(repaired, "perf_log.stats_cache_size")
	}

	switch c.Persistence.Driver {
	case "file", "sqlite", "postgres", "none":
	default:
		c.Persistence.Driver = def.Persistence.Driver
		repaired = append(repaired, "persistence.driver")
	}

	if c.StatsFeed.BroadcastsPerSecond <= 0 {
		c.StatsFeed.BroadcastsPerSecond = def.StatsFeed.BroadcastsPerSecond
		repaired = append(repaired, "stats_feed.broadcasts_per_second")
	}

	return repaired
}

// SelectionCooldown returns the re-selection interval as a duration.
func (a AllocatorConfig) SelectionCooldown() time.Duration {
	return time.Duration(a.SelectionCooldownSeconds * float64(time.Second))
}

// IsOriginAllowed checks if the given origin may open the stats feed.
func (c *StatsFeedConfig) IsOriginAllowed(origin, requestHost string) bool {
	if len(c.AllowedOrigins) == 0 {
		return isSameOrigin(origin, requestHost)
	}

	for _, allowed := range c.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}

	return false
}

// isSameOrigin checks if the origin matches the request host.
func isSameOrigin(origin, requestHost string) bool {
	if origin == "" {
		return true // non-browser client
	}

	originHost := origin
	if idx := strings.Index(origin, "://"); idx != -1 {
		originHost = origin[idx+3:]
	}
	originHost = strings.TrimSuffix(originHost, "/")

	return originHost == requestHost
}
