// Package config loads runtime configuration for a pulsar invocation.
// Values are populated from .pulsar.yaml, PULSAR_* env vars, and CLI flags.
package config

import (
	"github.com/spf13/viper"

	"github.com/papapumpkin/pulsar/internal/model"
)

// Config holds all runtime configuration for a pulsar run.
type Config struct {
	RoadmapPath  string `mapstructure:"roadmap_path"`
	ResourcePath string `mapstructure:"resource_path"`
	LockPath     string `mapstructure:"lock_path"`
	TracePath    string `mapstructure:"trace_path"`
	Algorithm    string `mapstructure:"algorithm"`
	Strategy     string `mapstructure:"strategy"`
	Verbose      bool   `mapstructure:"verbose"`

	DefaultPriority int     `mapstructure:"default_priority"`
	CRWeight        float64 `mapstructure:"cr_weight"`
	PriorityWeight  float64 `mapstructure:"priority_weight"`
	ATCK            float64 `mapstructure:"atc_k"`

	RolloutEnabled           bool    `mapstructure:"rollout_enabled"`
	RolloutPriorityThreshold int     `mapstructure:"rollout_priority_threshold"`
	RolloutMinPriorityGap    int     `mapstructure:"rollout_min_priority_gap"`
	RolloutMaxHorizonDays    int     `mapstructure:"rollout_max_horizon_days"`
	SolverTimeLimitSeconds   float64 `mapstructure:"solver_time_limit_seconds"`
}

// Load reads configuration from viper, applying built-in defaults for any
// values not set by config file, environment, or flags.
func Load() Config {
	viper.SetDefault("roadmap_path", "roadmap.yaml")
	viper.SetDefault("resource_path", "resources.toml")
	viper.SetDefault("lock_path", "roadmap.lock.yaml")
	viper.SetDefault("trace_path", "")
	viper.SetDefault("algorithm", string(model.AlgorithmParallelSGS))
	viper.SetDefault("strategy", string(model.StrategyPriorityFirst))
	viper.SetDefault("verbose", false)
	viper.SetDefault("default_priority", 50)
	viper.SetDefault("cr_weight", 1.0)
	viper.SetDefault("priority_weight", 1.0)
	viper.SetDefault("atc_k", 3.0)
	viper.SetDefault("rollout_enabled", false)
	viper.SetDefault("rollout_priority_threshold", 70)
	viper.SetDefault("rollout_min_priority_gap", 20)
	viper.SetDefault("rollout_max_horizon_days", 60)
	viper.SetDefault("solver_time_limit_seconds", 30.0)

	var cfg Config
	_ = viper.Unmarshal(&cfg)
	return cfg
}

// Scheduling converts the flat file configuration into the engine knobs.
func (c Config) Scheduling() model.Config {
	mc := model.DefaultConfig()
	mc.Strategy = model.Strategy(c.Strategy)
	mc.DefaultPriority = c.DefaultPriority
	mc.CRWeight = c.CRWeight
	mc.PriorityWeight = c.PriorityWeight
	mc.ATCK = c.ATCK
	mc.Solver.TimeLimitSeconds = c.SolverTimeLimitSeconds
	if c.RolloutEnabled {
		rc := model.DefaultRolloutConfig()
		rc.PriorityThreshold = c.RolloutPriorityThreshold
		rc.MinPriorityGap = c.RolloutMinPriorityGap
		rc.MaxHorizonDays = c.RolloutMaxHorizonDays
		mc.Rollout = &rc
	}
	return mc
}
