package model

// Algorithm selects the scheduling engine.
type Algorithm string

const (
	AlgorithmParallelSGS    Algorithm = "parallel_sgs"
	AlgorithmBoundedRollout Algorithm = "bounded_rollout"
	AlgorithmCriticalPath   Algorithm = "critical_path"
	AlgorithmSolver         Algorithm = "cpsat"
)

// Strategy selects the eligible-task sort key for the dispatch engines.
type Strategy string

const (
	StrategyPriorityFirst Strategy = "priority_first"
	StrategyCRFirst       Strategy = "cr_first"
	StrategyWeighted      Strategy = "weighted"
	StrategyATC           Strategy = "atc"
)

// RolloutConfig tunes the bounded one-step lookahead.
type RolloutConfig struct {
	// PriorityThreshold: only tasks below it are candidates for idling.
	PriorityThreshold int
	// CRRelaxedThreshold: the candidate's critical ratio must exceed it.
	CRRelaxedThreshold float64
	// MinPriorityGap / MinCRUrgencyGap: a competitor must beat the
	// candidate by at least one of these margins before idling pays.
	MinPriorityGap  int
	MinCRUrgencyGap float64
	// MaxHorizonDays bounds the lookahead simulation.
	MaxHorizonDays int
	// Scenario scoring weights.
	TardinessWeight float64
	EarlinessWeight float64
}

// DefaultRolloutConfig mirrors the production defaults.
func DefaultRolloutConfig() RolloutConfig {
	return RolloutConfig{
		PriorityThreshold:  70,
		CRRelaxedThreshold: 5.0,
		MinPriorityGap:     20,
		MinCRUrgencyGap:    3.0,
		MaxHorizonDays:     60,
		TardinessWeight:    10.0,
		EarlinessWeight:    0.1,
	}
}

// CriticalPathConfig tunes the critical-path scheduler.
type CriticalPathConfig struct {
	// UrgencyFloor is both the urgency of deadline-less targets and the
	// lower clamp for deadline-bearing ones.
	UrgencyFloor float64
	// K scales the urgency exponent denominator (K × avg duration).
	K float64
	// RolloutEnabled turns on the schedule-vs-idle comparison.
	RolloutEnabled bool
	// RolloutScoreRatioThreshold: a competitor target must out-score the
	// current one by this ratio before idling is considered.
	RolloutScoreRatioThreshold float64
}

// DefaultCriticalPathConfig mirrors the production defaults.
func DefaultCriticalPathConfig() CriticalPathConfig {
	return CriticalPathConfig{
		UrgencyFloor:               0.1,
		K:                          3.0,
		RolloutEnabled:             false,
		RolloutScoreRatioThreshold: 2.0,
	}
}

// SolverConfig tunes the exact optimizer.
type SolverConfig struct {
	// TimeLimitSeconds bounds the wall-clock search; zero means no limit.
	TimeLimitSeconds float64
	// HorizonSlackDays pads the horizon beyond the duration sum.
	HorizonSlackDays int
	// Objective weights.
	TardinessWeight float64
	PriorityWeight  float64
	EarlinessWeight float64
	// GreedyHints seeds the search with a parallel-SGS schedule.
	GreedyHints bool
}

// DefaultSolverConfig mirrors the production defaults.
func DefaultSolverConfig() SolverConfig {
	return SolverConfig{
		TimeLimitSeconds: 30.0,
		HorizonSlackDays: 90,
		TardinessWeight:  100.0,
		PriorityWeight:   1.0,
		EarlinessWeight:  0.1,
		GreedyHints:      true,
	}
}

// Config carries strategy selection and every per-algorithm parameter.
type Config struct {
	Strategy Strategy

	// Weighted-strategy weights.
	CRWeight       float64
	PriorityWeight float64

	DefaultPriority int

	// Critical ratio assigned to deadline-less tasks:
	// max(DefaultCRMultiplier × max CR in project, DefaultCRFloor).
	DefaultCRMultiplier float64
	DefaultCRFloor      float64

	// ATC strategy parameters.
	ATCK                  float64
	ATCDefaultUrgencyMult float64
	ATCUrgencyFloor       float64

	Rollout      *RolloutConfig
	CriticalPath CriticalPathConfig
	Solver       SolverConfig
}

// DefaultConfig mirrors the production defaults.
func DefaultConfig() Config {
	return Config{
		Strategy:              StrategyPriorityFirst,
		CRWeight:              1.0,
		PriorityWeight:        1.0,
		DefaultPriority:       50,
		DefaultCRMultiplier:   2.0,
		DefaultCRFloor:        10.0,
		ATCK:                  3.0,
		ATCDefaultUrgencyMult: 0.5,
		ATCUrgencyFloor:       0.1,
		CriticalPath:          DefaultCriticalPathConfig(),
		Solver:                DefaultSolverConfig(),
	}
}
