package engine

import (
	"fmt"
	"time"

	"github.com/papapumpkin/pulsar/internal/graph"
	"github.com/papapumpkin/pulsar/internal/model"
	"github.com/papapumpkin/pulsar/internal/resource"
	"github.com/papapumpkin/pulsar/internal/trace"
)

// AlgorithmName is the metadata tag of the baseline dispatcher.
const AlgorithmName = string(model.AlgorithmParallelSGS)

// Plan is a fully-resolved placement proposal for one task.
type Plan struct {
	Resources []string
	Start     time.Time
	End       time.Time
	// Computed is true when the resources came from a resource spec.
	Computed bool
}

// Scheduler is the parallel serial-generation scheme engine: a simulated
// clock, an eligibility scan each step, strategy-sorted dispatch, and
// first-fit placement against committed resource windows.
type Scheduler struct {
	Tasks     []*model.Task
	Current   time.Time
	Config    model.Config
	Registry  *resource.Registry
	Completed map[string]bool
	Tracer    *trace.Emitter

	// gate, when set, may veto an individual placement (the bounded
	// rollout wrapper hooks in here). Returning false skips the task for
	// this step only.
	gate func(st *State, id string, plan Plan) bool
}

// New builds a baseline SGS scheduler.
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

// Schedule runs the dispatch loop to completion and assembles the result.
func (s *Scheduler) Schedule() (*model.Result, error) {
	st, computed, err := s.run()
	if err != nil {
		return nil, err
	}
	res := BuildResult(st, computed, AlgorithmName)
	return res, nil
}

// run executes validation, graph build, backward pass, fixed-task
// pre-commit, and the main loop. It returns the final state plus the
// per-task resources-were-computed flags.
func (s *Scheduler) run() (*State, map[string]bool, error) {
	if err := model.ValidateTasks(s.Tasks); err != nil {
		return nil, nil, err
	}
	g, err := graph.Build(s.Tasks, s.Completed)
	if err != nil {
		return nil, nil, err
	}
	bp := graph.BackwardPass(g, s.Config.DefaultPriority)

	// Resource specs and explicit resource names must resolve before any
	// scheduling begins; a bad reference rejects the whole run.
	for _, id := range g.IDs() {
		if spec := g.Task(id).ResourceSpec; spec != "" {
			if _, err := s.Registry.Expand(spec); err != nil {
				return nil, nil, fmt.Errorf("task %q: %w", id, err)
			}
		}
	}

	st := NewState(g, s.Registry, bp, &s.Config, s.Current, s.Completed)
	if err := st.ScheduleFixed(); err != nil {
		return nil, nil, err
	}
	computed := make(map[string]bool)
	for _, id := range st.Order {
		if t := g.Task(id); t.IsFixed() && t.ResourceSpec != "" {
			computed[id] = true
		}
	}
	if err := s.loop(st, computed, model.MaxDate); err != nil {
		return nil, nil, err
	}
	return st, computed, nil
}

// loop is the core clock-stepped dispatch. It stops when every task is
// scheduled or, for bounded simulations, when the clock passes horizon.
func (s *Scheduler) loop(st *State, computed map[string]bool, horizon time.Time) error {
	for len(st.Pending) > 0 {
		if st.Clock.After(horizon) {
			return nil
		}
		eligible := st.EligibleAt(st.Clock)
		s.sortByStrategy(st, eligible)

		placed := false
		for _, id := range eligible {
			plan, ok := s.planAt(st, id, st.Clock)
			if !ok {
				continue
			}
			if s.gate != nil && !s.gate(st, id, plan) {
				s.trace(trace.KindTaskSkipped, id, map[string]any{"at": st.Clock.Format(dayFormat)})
				continue
			}
			st.Commit(id, plan.Start, plan.End, plan.Resources)
			if plan.Computed {
				computed[id] = true
			}
			placed = true
			s.trace(trace.KindTaskPlaced, id, map[string]any{
				"start":     plan.Start.Format(dayFormat),
				"end":       plan.End.Format(dayFormat),
				"resources": plan.Resources,
			})
		}
		if len(st.Pending) == 0 {
			return nil
		}
		if placed {
			continue
		}
		next := st.NextEventAfter(st.Clock)
		if next.IsZero() {
			return fmt.Errorf("%w: %d tasks remain at %s", ErrStalled, len(st.Pending), st.Clock.Format(dayFormat))
		}
		st.Clock = next
		s.trace(trace.KindClockAdvance, "", map[string]any{"to": next.Format(dayFormat)})
	}
	return nil
}

// sortByStrategy orders the eligible set by the configured sort key, fed by
// the backward pass's computed deadlines and priorities.
func (s *Scheduler) sortByStrategy(st *State, ids []string) {
	infos := make(map[string]sortInfo, len(ids))
	for _, id := range ids {
		infos[id] = s.sortInfoFor(st, id)
	}
	sortEligible(ids, infos, st.Clock, st.avgDuration, &s.Config)
}

func (s *Scheduler) sortInfoFor(st *State, id string) sortInfo {
	t := st.Graph.Task(id)
	info := sortInfo{
		id:       id,
		duration: t.DurationDays,
		priority: st.Backward.Priority(id, s.Config.DefaultPriority),
	}
	if d, ok := st.Backward.Deadline(id); ok {
		dd := d
		info.deadline = &dd
	}
	return info
}

// planAt resolves a placement for id with work beginning at t, or reports
// that the task must be skipped this step.
//
// Auto-assignment (resource-spec) tasks pick, among the candidates, the one
// that would complete the task soonest starting from its own next free
// point; ties keep expansion order. If that best candidate is not free at t
// the task is skipped: assignment may become cheaper once another resource
// frees up. Explicit-resource tasks require every listed resource free for
// the whole window at t.
func (s *Scheduler) planAt(st *State, id string, t time.Time) (Plan, bool) {
	task := st.Graph.Task(id)

	if task.IsMilestone() {
		names, comp, err := st.fixedResources(task)
		if err != nil || len(names) == 0 {
			names, comp = nil, false
		}
		return Plan{Resources: names, Start: t, End: t, Computed: comp}, true
	}

	if task.ResourceSpec != "" {
		cands, err := st.Registry.Expand(task.ResourceSpec)
		if err != nil || len(cands) == 0 {
			return Plan{}, false
		}
		var best Plan
		found := false
		for _, c := range cands {
			start, end := st.NextFreeStart([]string{c}, t, task.DurationDays)
			if !found || end.Before(best.End) {
				best = Plan{Resources: []string{c}, Start: start, End: end, Computed: true}
				found = true
			}
		}
		if best.Start.After(t) {
			return Plan{}, false // best candidate busy right now
		}
		return best, true
	}

	var names []string
	for _, a := range task.EffectiveResources() {
		names = append(names, a.Resource)
	}
	end := st.unionCalendar(names).Completion(t, task.DurationDays)
	for _, n := range names {
		if !st.FreeForWindow(n, t, end) {
			return Plan{}, false
		}
	}
	return Plan{Resources: names, Start: t, End: end}, true
}

// PlanEarliest resolves the cheapest placement for id with work beginning
// no earlier than from, sliding past committed windows instead of skipping.
// Auto-assignment keeps the candidate completing soonest (ties keep
// expansion order), which may mean waiting for a busy resource over
// starting a slow one now.
func PlanEarliest(st *State, id string, from time.Time) Plan {
	task := st.Graph.Task(id)

	if task.IsMilestone() {
		names, comp, err := st.fixedResources(task)
		if err != nil {
			names, comp = nil, false
		}
		return Plan{Resources: names, Start: from, End: from, Computed: comp}
	}

	if task.ResourceSpec != "" {
		cands, _ := st.Registry.Expand(task.ResourceSpec)
		var best Plan
		found := false
		for _, c := range cands {
			start, end := st.NextFreeStart([]string{c}, from, task.DurationDays)
			if !found || end.Before(best.End) {
				best = Plan{Resources: []string{c}, Start: start, End: end, Computed: true}
				found = true
			}
		}
		return best
	}

	var names []string
	for _, a := range task.EffectiveResources() {
		names = append(names, a.Resource)
	}
	start, end := st.NextFreeStart(names, from, task.DurationDays)
	return Plan{Resources: names, Start: start, End: end}
}

const dayFormat = "2006-01-02"

func (s *Scheduler) trace(kind, taskID string, data any) {
	s.Tracer.Emit(kind, taskID, data)
}

// BuildResult assembles the uniform result from a finished state.
func BuildResult(st *State, computed map[string]bool, algorithm string) *model.Result {
	res := model.NewResult()
	res.Metadata["algorithm"] = algorithm

	for _, id := range st.Order {
		sched, ok := st.Scheduled[id]
		if !ok {
			continue
		}
		task := st.Graph.Task(id)
		res.ScheduledTasks = append(res.ScheduledTasks, *sched)

		a := res.Annotation(id)
		start, end := sched.Start, sched.End
		a.EstimatedStart, a.EstimatedEnd = &start, &end
		a.ComputedPriority = st.Backward.Priority(id, st.Config.DefaultPriority)
		if d, ok := st.Backward.Deadline(id); ok {
			dd := d
			a.ComputedDeadline = &dd
			if end.After(d) {
				a.DeadlineViolated = true
				res.Warn(fmt.Sprintf("task %q ends %s, after its deadline %s",
					id, end.Format(dayFormat), d.Format(dayFormat)))
			}
		}
		a.WasFixed = task.IsFixed()
		a.ResourcesWereComputed = computed[id]
		a.ResourceAssignments = assignments(task, sched.Resources)
	}
	res.SortTasks()
	return res
}

// assignments reconstructs (resource, allocation) pairs for the annotation:
// explicit allocations keep their fractions, computed ones default to 1.0.
func assignments(task *model.Task, names []string) []model.Allocation {
	byName := make(map[string]float64, len(task.Resources))
	for _, a := range task.EffectiveResources() {
		byName[a.Resource] = a.Fraction
	}
	out := make([]model.Allocation, 0, len(names))
	for _, n := range names {
		f, ok := byName[n]
		if !ok {
			f = 1.0
		}
		out = append(out, model.Allocation{Resource: n, Fraction: f})
	}
	return out
}
