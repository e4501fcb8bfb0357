package engine

import (
	"math"
	"strconv"
	"time"

	"github.com/papapumpkin/pulsar/internal/model"
	"github.com/papapumpkin/pulsar/internal/resource"
	"github.com/papapumpkin/pulsar/internal/trace"
)

// RolloutAlgorithmName is the metadata tag of the rollout wrapper.
const RolloutAlgorithmName = string(model.AlgorithmBoundedRollout)

// Decision records one schedule-vs-skip evaluation. Decisions are
// deterministic for identical inputs and are exposed for audit.
type Decision struct {
	TaskID        string
	Competitor    string
	At            time.Time
	ScheduleScore float64
	SkipScore     float64
	Skipped       bool
}

// RolloutScheduler wraps the SGS engine with a one-step lookahead: before
// committing a low-urgency task it checks whether leaving the resource idle
// for an imminent higher-value competitor scores better over a bounded
// horizon.
type RolloutScheduler struct {
	inner     *Scheduler
	cfg       model.RolloutConfig
	decisions []Decision
}

// NewRollout builds the wrapper around a fresh SGS engine.
func NewRollout(tasks []*model.Task, current time.Time, cfg model.Config, reg *resource.Registry, completed map[string]bool, tracer *trace.Emitter) *RolloutScheduler {
	if cfg.Rollout == nil {
		rc := model.DefaultRolloutConfig()
		cfg.Rollout = &rc
	}
	r := &RolloutScheduler{
		inner: New(tasks, current, cfg, reg, completed, tracer),
		cfg:   *cfg.Rollout,
	}
	r.inner.gate = r.gate
	return r
}

// Schedule runs the gated dispatch loop and annotates the result with the
// recorded rollout decisions.
func (r *RolloutScheduler) Schedule() (*model.Result, error) {
	r.decisions = nil
	st, computed, err := r.inner.run()
	if err != nil {
		return nil, err
	}
	res := BuildResult(st, computed, RolloutAlgorithmName)
	skips := 0
	for _, d := range r.decisions {
		if d.Skipped {
			skips++
		}
	}
	res.Metadata["rollout_decisions"] = strconv.Itoa(len(r.decisions))
	res.Metadata["rollout_skips"] = strconv.Itoa(skips)
	return res, nil
}

// Decisions returns the evaluations made during the last Schedule call.
func (r *RolloutScheduler) Decisions() []Decision {
	return r.decisions
}

// gate decides whether to commit the proposed placement. It triggers the
// lookahead only for meaningful disparities: the candidate must be
// low-priority and relaxed, and some imminent competitor must beat it by
// the configured priority or urgency gap.
func (r *RolloutScheduler) gate(st *State, id string, plan Plan) bool {
	task := st.Graph.Task(id)
	if task.IsMilestone() || task.IsFixed() {
		return true
	}
	pri := st.Backward.Priority(id, st.Config.DefaultPriority)
	if pri >= r.cfg.PriorityThreshold {
		return true
	}
	cr := r.crOf(st, id)
	if cr <= r.cfg.CRRelaxedThreshold {
		return true
	}

	comp, ok := r.findCompetitor(st, id, plan, pri, cr)
	if !ok {
		return true
	}

	horizon := model.AddDays(st.Clock, r.cfg.MaxHorizonDays)

	scheduleSt := st.Clone()
	scheduleSt.Commit(id, plan.Start, plan.End, plan.Resources)
	r.simulate(scheduleSt, horizon)
	scheduleScore := r.score(scheduleSt, horizon)

	skipSt := st.Clone()
	skipSt.Defer(id, model.AddDays(st.Clock, 1))
	skipSt.DeferBehind(id, comp)
	r.simulate(skipSt, horizon)
	skipScore := r.score(skipSt, horizon)

	skipped := skipScore < scheduleScore
	r.decisions = append(r.decisions, Decision{
		TaskID:        id,
		Competitor:    comp,
		At:            st.Clock,
		ScheduleScore: scheduleScore,
		SkipScore:     skipScore,
		Skipped:       skipped,
	})
	r.inner.trace(trace.KindRolloutDecision, id, map[string]any{
		"competitor":     comp,
		"schedule_score": scheduleScore,
		"skip_score":     skipScore,
		"skipped":        skipped,
	})
	return !skipped
}

// crOf computes the candidate's critical ratio from the backward-pass
// deadline; deadline-less tasks count as fully relaxed.
func (r *RolloutScheduler) crOf(st *State, id string) float64 {
	d, ok := st.Backward.Deadline(id)
	if !ok {
		return math.Inf(1)
	}
	t := st.Graph.Task(id)
	slack := float64(model.DaysBetween(st.Clock, d))
	return slack / math.Max(t.DurationDays, 1.0)
}

// findCompetitor looks for the best pending task that cannot dispatch right
// now, would contend for one of the candidate's resources, and beats the
// candidate by the priority gap or the urgency gap.
func (r *RolloutScheduler) findCompetitor(st *State, id string, plan Plan, pri int, cr float64) (string, bool) {
	planRes := make(map[string]bool, len(plan.Resources))
	for _, n := range plan.Resources {
		planRes[n] = true
	}

	best, bestPri := "", -1
	for _, cand := range st.Order {
		if cand == id || !st.Pending[cand] {
			continue
		}
		if st.DepsSatisfied(cand) && !st.EarliestStart(cand).After(st.Clock) {
			continue // dispatchable now, not an "imminent" competitor
		}
		if !r.sharesResource(st, cand, planRes) {
			continue
		}
		cPri := st.Backward.Priority(cand, st.Config.DefaultPriority)
		cCR := r.crOf(st, cand)
		priGapMet := cPri-pri >= r.cfg.MinPriorityGap
		crGapMet := !math.IsInf(cCR, 1) && cr-cCR >= r.cfg.MinCRUrgencyGap
		if !priGapMet && !crGapMet {
			continue
		}
		if cPri > bestPri {
			best, bestPri = cand, cPri
		}
	}
	return best, best != ""
}

func (r *RolloutScheduler) sharesResource(st *State, id string, wanted map[string]bool) bool {
	t := st.Graph.Task(id)
	if t.ResourceSpec != "" {
		cands, err := st.Registry.Expand(t.ResourceSpec)
		if err != nil {
			return false
		}
		for _, c := range cands {
			if wanted[c] {
				return true
			}
		}
		return false
	}
	for _, a := range t.EffectiveResources() {
		if wanted[a.Resource] {
			return true
		}
	}
	return false
}

// simulate runs plain greedy dispatch on the snapshot up to horizon. The
// snapshot is isolated; nothing leaks back into the live state.
func (r *RolloutScheduler) simulate(st *State, horizon time.Time) {
	sim := &Scheduler{
		Tasks:     r.inner.Tasks,
		Current:   r.inner.Current,
		Config:    r.inner.Config,
		Registry:  r.inner.Registry,
		Completed: r.inner.Completed,
	}
	// A stall inside a bounded simulation only truncates the lookahead;
	// the expected-tardiness term below covers whatever stayed pending.
	_ = sim.loop(st, map[string]bool{}, horizon)
}

// score values a simulated end state: priority-weighted tardiness for
// scheduled tasks, projected tardiness for tasks still pending at the
// horizon (so skipping a doomed task cannot look free), and a
// priority-weighted earliness reward.
func (r *RolloutScheduler) score(st *State, horizon time.Time) float64 {
	total := 0.0
	for _, id := range st.Order {
		deadline, hasDeadline := st.Backward.Deadline(id)
		if !hasDeadline {
			continue
		}
		pri := float64(st.Backward.Priority(id, st.Config.DefaultPriority))

		var end time.Time
		if sched, ok := st.Scheduled[id]; ok {
			end = sched.End
		} else {
			dur := int(math.Ceil(st.Graph.Task(id).DurationDays))
			end = model.AddDays(horizon, dur)
		}
		late := model.DaysBetween(deadline, end)
		if late > 0 {
			total += float64(late) * pri * r.cfg.TardinessWeight
		} else {
			total -= float64(-late) * pri * r.cfg.EarlinessWeight
		}
	}
	return total
}
