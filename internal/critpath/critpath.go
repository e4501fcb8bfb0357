// Package critpath implements the critical-path scheduler: a
// recalculation-based dispatcher that each step scores every uncompleted
// task as a potential target by priority-per-remaining-work times urgency,
// then schedules only the next ready task on the winning target's critical
// path. Scoring uses each task's own priority and deadline, not the
// backward-pass maps, which is what keeps a low-priority dependency of an
// important task from outranking unrelated urgent work.
package critpath

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/papapumpkin/pulsar/internal/engine"
	"github.com/papapumpkin/pulsar/internal/graph"
	"github.com/papapumpkin/pulsar/internal/model"
	"github.com/papapumpkin/pulsar/internal/resource"
	"github.com/papapumpkin/pulsar/internal/trace"
)

// AlgorithmName is the metadata tag of this scheduler.
const AlgorithmName = string(model.AlgorithmCriticalPath)

// Decision records one rollout evaluation in rollout mode.
type Decision struct {
	TaskID        string
	Competitor    string
	ScheduleScore float64
	SkipScore     float64
	Skipped       bool
}

// Scheduler is the critical-path dispatcher.
type Scheduler struct {
	Tasks     []*model.Task
	Current   time.Time
	Config    model.Config
	Registry  *resource.Registry
	Completed map[string]bool
	Tracer    *trace.Emitter

	decisions []Decision
}

// New builds a critical-path scheduler.
func New(tasks []*model.Task, current time.Time, cfg model.Config, reg *resource.Registry, completed map[string]bool, tracer *trace.Emitter) *Scheduler {
	return &Scheduler{
		Tasks:     tasks,
		Current:   model.Midnight(current),
		Config:    cfg,
		Registry:  reg,
		Completed: completed,
		Tracer:    tracer,
	}
}

// Decisions returns the rollout evaluations of the last run.
func (s *Scheduler) Decisions() []Decision {
	return s.decisions
}

// Schedule runs the target-scoring loop to completion.
func (s *Scheduler) Schedule() (*model.Result, error) {
	s.decisions = nil
	if err := model.ValidateTasks(s.Tasks); err != nil {
		return nil, err
	}
	g, err := graph.Build(s.Tasks, s.Completed)
	if err != nil {
		return nil, err
	}
	bp := graph.BackwardPass(g, s.Config.DefaultPriority)

	for _, id := range g.IDs() {
		if spec := g.Task(id).ResourceSpec; spec != "" {
			if _, err := s.Registry.Expand(spec); err != nil {
				return nil, fmt.Errorf("task %q: %w", id, err)
			}
		}
	}

	st := engine.NewState(g, s.Registry, bp, &s.Config, s.Current, s.Completed)
	if err := st.ScheduleFixed(); err != nil {
		return nil, err
	}
	computed := make(map[string]bool)
	for _, id := range st.Order {
		if t := g.Task(id); t.IsFixed() && t.ResourceSpec != "" {
			computed[id] = true
		}
	}

	if err := s.loop(st, computed, model.MaxDate); err != nil {
		return nil, err
	}

	res := engine.BuildResult(st, computed, AlgorithmName)
	res.Metadata["rollout_decisions"] = strconv.Itoa(len(s.decisions))
	return res, nil
}

// loop places one task per iteration and recomputes the critical paths,
// stopping early at horizon for bounded simulations.
func (s *Scheduler) loop(st *engine.State, computed map[string]bool, horizon time.Time) error {
	for len(st.Pending) > 0 {
		work := s.remainingWork(st)
		target := s.selectTarget(st, work)
		if target == "" {
			return fmt.Errorf("%w: no target among %d pending tasks", engine.ErrStalled, len(st.Pending))
		}
		ready := s.nextOnPath(st, target, work)
		plan := engine.PlanEarliest(st, ready, st.EarliestStart(ready))
		if plan.Start.After(horizon) {
			return nil
		}

		if s.Config.CriticalPath.RolloutEnabled {
			if compNext, skip := s.rolloutSkips(st, ready, target, plan, work); skip {
				// Idle the contended resource for the competitor's
				// task instead: place it and rescore everything.
				cPlan := engine.PlanEarliest(st, compNext, st.EarliestStart(compNext))
				st.Commit(compNext, cPlan.Start, cPlan.End, cPlan.Resources)
				if cPlan.Computed {
					computed[compNext] = true
				}
				continue
			}
		}

		st.Commit(ready, plan.Start, plan.End, plan.Resources)
		if plan.Computed {
			computed[ready] = true
		}
		s.Tracer.Emit(trace.KindTargetSelected, target, map[string]any{"scheduled": ready})
	}
	return nil
}

// remainingWork computes, for every pending task, the work on its critical
// path: its own duration plus the heaviest chain of pending predecessors.
func (s *Scheduler) remainingWork(st *engine.State) map[string]float64 {
	work := make(map[string]float64, len(st.Pending))
	var visit func(id string) float64
	visit = func(id string) float64 {
		if w, ok := work[id]; ok {
			return w
		}
		t := st.Graph.Task(id)
		w := t.DurationDays
		best := 0.0
		for _, e := range st.Graph.Predecessors(id) {
			if !st.Pending[e.From] {
				continue
			}
			if pw := visit(e.From); pw > best {
				best = pw
			}
		}
		work[id] = w + best
		return work[id]
	}
	for _, id := range st.Order {
		if st.Pending[id] {
			visit(id)
		}
	}
	return work
}

// targetScore is (priority / max(work, 1)) × urgency, from the task's own
// priority and deadline.
func (s *Scheduler) targetScore(st *engine.State, id string, work map[string]float64) float64 {
	t := st.Graph.Task(id)
	pri := float64(t.PriorityOr(s.Config.DefaultPriority))
	return pri / math.Max(work[id], 1.0) * s.urgency(st, t)
}

func (s *Scheduler) urgency(st *engine.State, t *model.Task) float64 {
	cp := s.Config.CriticalPath
	if t.EndBefore == nil {
		return cp.UrgencyFloor
	}
	slack := float64(model.DaysBetween(s.Current, *t.EndBefore))
	if slack <= 0 {
		return 1.0
	}
	u := math.Exp(-slack / (cp.K * st.AvgDuration()))
	return math.Max(u, cp.UrgencyFloor)
}

// selectTarget returns the pending task with the highest target score,
// tie-broken by id.
func (s *Scheduler) selectTarget(st *engine.State, work map[string]float64) string {
	best, bestScore := "", math.Inf(-1)
	ids := make([]string, 0, len(st.Pending))
	for _, id := range st.Order {
		if st.Pending[id] {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	for _, id := range ids {
		if score := s.targetScore(st, id, work); score > bestScore {
			best, bestScore = id, score
		}
	}
	return best
}

// nextOnPath walks the target's critical path upstream to the deepest
// pending task, which by construction has every predecessor scheduled.
// Chain choice follows the heaviest pending predecessor, ties by id.
func (s *Scheduler) nextOnPath(st *engine.State, target string, work map[string]float64) string {
	cur := target
	for {
		next := ""
		bestWork := math.Inf(-1)
		for _, e := range st.Graph.Predecessors(cur) {
			if !st.Pending[e.From] {
				continue
			}
			w := work[e.From]
			if w > bestWork || (w == bestWork && e.From < next) {
				next, bestWork = e.From, w
			}
		}
		if next == "" {
			return cur
		}
		cur = next
	}
}

// rolloutSkips evaluates the optional schedule-vs-idle comparison. It
// triggers only when some competitor target out-scores the ready task's
// own intrinsic target score by the configured ratio and its next task
// contends for one of the planned resources. When skipping wins, it
// returns the competitor's next ready task to place instead.
func (s *Scheduler) rolloutSkips(st *engine.State, ready, target string, plan engine.Plan, work map[string]float64) (string, bool) {
	cp := s.Config.CriticalPath
	ownScore := s.targetScore(st, ready, work)
	planRes := make(map[string]bool, len(plan.Resources))
	for _, n := range plan.Resources {
		planRes[n] = true
	}

	competitor, competitorNext := "", ""
	compScore := math.Inf(-1)
	for _, cand := range st.Order {
		if cand == ready || cand == target || !st.Pending[cand] {
			continue
		}
		next := s.nextOnPath(st, cand, work)
		if next == ready {
			continue
		}
		cPlan := engine.PlanEarliest(st, next, st.EarliestStart(next))
		overlap := false
		for _, n := range cPlan.Resources {
			if planRes[n] {
				overlap = true
			}
		}
		if !overlap {
			continue
		}
		if score := s.targetScore(st, cand, work); score >= cp.RolloutScoreRatioThreshold*ownScore && score > compScore {
			competitor, competitorNext, compScore = cand, next, score
		}
	}
	if competitor == "" {
		return "", false
	}

	horizon := model.AddDays(plan.Start, 60)

	scheduleSt := st.Clone()
	scheduleSt.Commit(ready, plan.Start, plan.End, plan.Resources)
	s.simulate(scheduleSt, horizon)
	scheduleScore := s.score(scheduleSt, horizon)

	skipSt := st.Clone()
	cPlan := engine.PlanEarliest(st, competitorNext, st.EarliestStart(competitorNext))
	skipSt.Commit(competitorNext, cPlan.Start, cPlan.End, cPlan.Resources)
	s.simulate(skipSt, horizon)
	skipScore := s.score(skipSt, horizon)

	skipped := skipScore < scheduleScore
	s.decisions = append(s.decisions, Decision{
		TaskID:        ready,
		Competitor:    competitor,
		ScheduleScore: scheduleScore,
		SkipScore:     skipScore,
		Skipped:       skipped,
	})
	s.Tracer.Emit(trace.KindRolloutDecision, ready, map[string]any{
		"competitor": competitor,
		"skipped":    skipped,
	})
	return competitorNext, skipped
}

// simulate continues the critical-path loop on a snapshot, rollout mode
// off, until every task is placed or the horizon passes.
func (s *Scheduler) simulate(st *engine.State, horizon time.Time) {
	sim := &Scheduler{
		Tasks:     s.Tasks,
		Current:   s.Current,
		Config:    s.Config,
		Registry:  s.Registry,
		Completed: s.Completed,
	}
	sim.Config.CriticalPath.RolloutEnabled = false
	_ = sim.loop(st, map[string]bool{}, horizon)
}

// score mirrors the bounded-rollout scorer: priority-weighted tardiness and
// earliness against each task's own deadline, with unplaced tasks projected
// to start at the horizon.
func (s *Scheduler) score(st *engine.State, horizon time.Time) float64 {
	total := 0.0
	for _, id := range st.Order {
		t := st.Graph.Task(id)
		if t.EndBefore == nil {
			continue
		}
		pri := float64(t.PriorityOr(s.Config.DefaultPriority))

		var end time.Time
		if sched, ok := st.Scheduled[id]; ok {
			end = sched.End
		} else {
			end = model.AddDays(horizon, int(math.Ceil(t.DurationDays)))
		}
		late := model.DaysBetween(*t.EndBefore, end)
		if late > 0 {
			total += float64(late) * pri
		} else {
			total -= float64(-late) * pri * 0.01
		}
	}
	return total
}
