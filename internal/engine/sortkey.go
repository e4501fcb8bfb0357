package engine

import (
	"math"
	"sort"
	"time"

	"github.com/papapumpkin/pulsar/internal/model"
)

// critical ratio knobs live on model.Config (DefaultCRMultiplier /
// DefaultCRFloor): deadline-less tasks receive
// max(multiplier × max CR in the set, floor) so they always sort after
// every deadline-bearing task.

// sortInfo is the per-task input to key computation.
type sortInfo struct {
	id       string
	duration float64
	priority int
	deadline *time.Time
}

// criticalRatio computes slack / max(duration, 1.0) against now.
func criticalRatio(info sortInfo, now time.Time) (cr float64, ok bool) {
	if info.deadline == nil {
		return 0, false
	}
	slack := float64(model.DaysBetween(now, *info.deadline))
	return slack / math.Max(info.duration, 1.0), true
}

// defaultCR returns the critical ratio assigned to deadline-less tasks.
func defaultCR(infos []sortInfo, now time.Time, cfg *model.Config) float64 {
	maxCR := 0.0
	for _, info := range infos {
		if cr, ok := criticalRatio(info, now); ok && cr > maxCR {
			maxCR = cr
		}
	}
	return math.Max(cfg.DefaultCRMultiplier*maxCR, cfg.DefaultCRFloor)
}

// sortKey is a lexicographic key: numeric parts first, task id last.
type sortKey struct {
	parts [2]float64
	n     int
	id    string
}

func (a sortKey) less(b sortKey) bool {
	for i := 0; i < a.n; i++ {
		if a.parts[i] != b.parts[i] {
			return a.parts[i] < b.parts[i]
		}
	}
	return a.id < b.id
}

// computeKey builds the strategy's sort key for one task.
func computeKey(info sortInfo, now time.Time, defCR, avgDuration float64, cfg *model.Config) sortKey {
	cr, ok := criticalRatio(info, now)
	if !ok {
		cr = defCR
	}
	pri := float64(info.priority)

	switch cfg.Strategy {
	case model.StrategyCRFirst:
		return sortKey{parts: [2]float64{cr, -pri}, n: 2, id: info.id}
	case model.StrategyWeighted:
		score := cfg.CRWeight*cr + cfg.PriorityWeight*(100-pri)
		return sortKey{parts: [2]float64{score}, n: 1, id: info.id}
	case model.StrategyATC:
		wspt := pri / math.Max(info.duration, 0.1)
		urgency := atcUrgency(info, now, avgDuration, cfg)
		return sortKey{parts: [2]float64{-(wspt * urgency)}, n: 1, id: info.id}
	default: // priority_first
		return sortKey{parts: [2]float64{-pri, cr}, n: 2, id: info.id}
	}
}

// atcUrgency is the slack-exponential urgency of the apparent-tardiness-cost
// rule: clamped to 1.0 once the remaining slack after running the task is
// gone; deadline-less tasks fall back to the configured default urgency.
func atcUrgency(info sortInfo, now time.Time, avgDuration float64, cfg *model.Config) float64 {
	if info.deadline == nil {
		return math.Max(cfg.ATCDefaultUrgencyMult, cfg.ATCUrgencyFloor)
	}
	slackAfter := float64(model.DaysBetween(now, *info.deadline)) - info.duration
	if slackAfter <= 0 {
		return 1.0
	}
	return math.Exp(-slackAfter / (cfg.ATCK * avgDuration))
}

// sortEligible orders task ids by the configured strategy. All strategies
// end in a task-id comparison, so the order is total and deterministic.
func sortEligible(ids []string, infos map[string]sortInfo, now time.Time, avgDuration float64, cfg *model.Config) {
	all := make([]sortInfo, 0, len(ids))
	for _, id := range ids {
		all = append(all, infos[id])
	}
	defCR := defaultCR(all, now, cfg)

	keys := make(map[string]sortKey, len(ids))
	for _, id := range ids {
		keys[id] = computeKey(infos[id], now, defCR, avgDuration, cfg)
	}
	sort.Slice(ids, func(i, j int) bool {
		return keys[ids[i]].less(keys[ids[j]])
	})
}
