package solver

import (
	"fmt"
	"strconv"
	"time"

	"github.com/papapumpkin/pulsar/internal/engine"
	"github.com/papapumpkin/pulsar/internal/graph"
	"github.com/papapumpkin/pulsar/internal/model"
	"github.com/papapumpkin/pulsar/internal/resource"
	"github.com/papapumpkin/pulsar/internal/trace"
)

// AlgorithmName is the metadata tag of the exact engine.
const AlgorithmName = string(model.AlgorithmSolver)

// Scheduler is the exact optimizer.
type Scheduler struct {
	Tasks     []*model.Task
	Current   time.Time
	Config    model.Config
	Registry  *resource.Registry
	Completed map[string]bool
	Tracer    *trace.Emitter
}

// New builds an exact scheduler.
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

// Schedule builds the model, seeds the search with a greedy schedule, runs
// branch and bound, and converts the best assignment back to dates.
// Infeasibility is reported through metadata, not as an error.
func (s *Scheduler) Schedule() (*model.Result, error) {
	started := time.Now()
	if err := model.ValidateTasks(s.Tasks); err != nil {
		return nil, err
	}
	g, err := graph.Build(s.Tasks, s.Completed)
	if err != nil {
		return nil, err
	}
	bp := graph.BackwardPass(g, s.Config.DefaultPriority)

	p, err := buildProblem(s.Tasks, g, bp, s.Registry, s.Current, s.Config)
	if err != nil {
		return nil, err
	}

	sr := newSearcher(p)
	hintCount := 0
	if s.Config.Solver.GreedyHints {
		hintCount = s.seedGreedyHint(sr, g)
	}
	if limit := s.Config.Solver.TimeLimitSeconds; limit > 0 {
		sr.deadline = started.Add(time.Duration(limit * float64(time.Second)))
	}
	sr.run()

	res := model.NewResult()
	res.Metadata["algorithm"] = AlgorithmName
	res.Metadata["greedy_seeded"] = strconv.FormatBool(s.Config.Solver.GreedyHints)
	res.Metadata["hint_count"] = strconv.Itoa(hintCount)
	res.Metadata["solve_time_seconds"] = fmt.Sprintf("%.3f", time.Since(started).Seconds())

	switch {
	case sr.best == nil:
		res.Metadata["status"] = StatusInfeasible
		return res, nil
	case sr.timedOut:
		res.Metadata["status"] = StatusFeasible
	default:
		res.Metadata["status"] = StatusOptimal
	}
	s.Tracer.Emit(trace.KindSolverStatus, "", map[string]any{
		"status": res.Metadata["status"],
		"cost":   sr.bestCost,
	})

	s.assemble(res, p, g, bp, sr.best)
	return res, nil
}

// seedGreedyHint runs the SGS engine with the priority-first strategy and
// installs its schedule as the incumbent when it satisfies every hard
// constraint. Returns the number of hinted tasks.
func (s *Scheduler) seedGreedyHint(sr *searcher, g *graph.Graph) int {
	cfg := s.Config
	cfg.Strategy = model.StrategyPriorityFirst
	greedy, err := engine.New(s.Tasks, s.Current, cfg, s.Registry, s.Completed, nil).Schedule()
	if err != nil {
		return 0
	}

	hint := make([]assignment, len(sr.p.tasks))
	count := 0
	for _, st := range greedy.ScheduledTasks {
		tv, ok := sr.p.byID[st.TaskID]
		if !ok || len(st.Resources) == 0 {
			continue
		}
		cand := -1
		for ci, c := range tv.candidates {
			if c.resource == st.Resources[0] {
				cand = ci
				break
			}
		}
		if cand < 0 {
			continue
		}
		hint[tv.index] = assignment{
			cand:  cand,
			start: model.DaysBetween(s.Current, st.Start),
			end:   model.DaysBetween(s.Current, st.End),
		}
		count++
	}
	if count == len(sr.p.tasks) && sr.tryIncumbent(hint) {
		return count
	}
	return 0
}

// assemble converts the winning assignment into the uniform result shape.
func (s *Scheduler) assemble(res *model.Result, p *problem, g *graph.Graph, bp *graph.BackwardPassResult, best []assignment) {
	for _, tv := range p.tasks {
		a := best[tv.index]
		task := g.Task(tv.id)
		start := model.AddDays(p.current, a.start)
		end := model.AddDays(p.current, a.end)
		name := tv.candidates[a.cand].resource

		res.ScheduledTasks = append(res.ScheduledTasks, model.ScheduledTask{
			TaskID:       tv.id,
			Start:        start,
			End:          end,
			DurationDays: a.end - a.start,
			Resources:    []string{name},
		})

		ann := res.Annotation(tv.id)
		ann.EstimatedStart, ann.EstimatedEnd = &start, &end
		ann.ComputedPriority = tv.priority
		if d, ok := bp.Deadline(tv.id); ok {
			dd := d
			ann.ComputedDeadline = &dd
			if end.After(d) {
				ann.DeadlineViolated = true
				res.Warn(fmt.Sprintf("task %q ends %s, after its deadline %s",
					tv.id, end.Format("2006-01-02"), d.Format("2006-01-02")))
			}
		}
		ann.WasFixed = task.IsFixed()
		ann.ResourcesWereComputed = task.ResourceSpec != ""
		frac := 1.0
		if len(task.Resources) == 1 && task.Resources[0].Resource == name {
			frac = task.Resources[0].Fraction
		}
		ann.ResourceAssignments = []model.Allocation{{Resource: name, Fraction: frac}}
	}
	res.SortTasks()
}

// --- Branch and bound ---

type assignment struct {
	cand  int
	start int
	end   int
}

type interval struct {
	start, end int
}

type searcher struct {
	p        *problem
	deadline time.Time
	timedOut bool

	cur      []assignment
	occupied map[string][]interval
	fixedOcc map[string][]interval

	best     []assignment
	bestCost float64

	// minEnd is the dependency-only earliest end per task; lbSuffix[i] is
	// the summed best-case cost of tasks i..n, the admissible bound used
	// for pruning.
	minEnd   []int
	lbSuffix []float64
}

func newSearcher(p *problem) *searcher {
	sr := &searcher{
		p:        p,
		cur:      make([]assignment, len(p.tasks)),
		occupied: make(map[string][]interval),
		fixedOcc: make(map[string][]interval),
		minEnd:   make([]int, len(p.tasks)),
	}
	for _, tv := range p.tasks {
		if tv.fixed && tv.fixedEnd > tv.fixedStart {
			name := tv.candidates[0].resource
			sr.fixedOcc[name] = append(sr.fixedOcc[name], interval{start: tv.fixedStart, end: tv.fixedEnd})
		}
	}
	for _, tv := range p.tasks {
		start := tv.minStartStatic(sr.minEnd)
		if tv.fixed {
			sr.minEnd[tv.index] = tv.fixedEnd
		} else {
			sr.minEnd[tv.index] = start + tv.duration
		}
	}
	sr.lbSuffix = make([]float64, len(p.tasks)+1)
	for i := len(p.tasks) - 1; i >= 0; i-- {
		tv := p.tasks[i]
		sr.lbSuffix[i] = sr.lbSuffix[i+1] + p.contribution(tv, sr.minEnd[i])
	}
	return sr
}

// minStartStatic computes the dependency-only earliest start, ignoring
// resource contention (predecessors precede the task in topo order, so
// their minEnd entries are already final).
func (tv *taskVar) minStartStatic(minEnd []int) int {
	start := 0
	for _, e := range tv.preds {
		if s := minEnd[e.index] + 1 + e.lag; s > start {
			start = s
		}
	}
	return start
}

// contribution is one task's objective term at a given end offset:
// priority-weighted completion plus tardiness penalty or earliness reward.
// It is non-decreasing in end, which the search relies on for pruning.
func (p *problem) contribution(tv *taskVar, end int) float64 {
	pri := float64(tv.priority)
	c := p.weights.priority * pri * float64(end)
	if tv.deadline != noDeadline {
		if end > tv.deadline {
			c += p.weights.tardiness * pri * float64(end-tv.deadline)
		} else {
			c -= p.weights.earliness * pri * float64(tv.deadline-end)
		}
	}
	return c
}

// tryIncumbent validates a complete assignment against every hard
// constraint and installs it as the best-known solution if it wins.
func (sr *searcher) tryIncumbent(sol []assignment) bool {
	occ := make(map[string][]interval)
	for name, ivs := range sr.fixedOcc {
		occ[name] = append([]interval{}, ivs...)
	}
	cost := 0.0
	for _, tv := range sr.p.tasks {
		a := sol[tv.index]
		if tv.fixed && (a.start != tv.fixedStart || a.end != tv.fixedEnd) {
			return false
		}
		for _, e := range tv.preds {
			if a.start < sol[e.index].end+1+e.lag {
				return false
			}
		}
		name := tv.candidates[a.cand].resource
		if !tv.fixed && a.end > a.start {
			for _, iv := range occ[name] {
				if a.start < iv.end && iv.start < a.end {
					return false
				}
			}
			occ[name] = append(occ[name], interval{start: a.start, end: a.end})
		}
		cost += sr.p.contribution(tv, a.end)
	}
	if sr.best == nil || cost < sr.bestCost {
		sr.best = append([]assignment{}, sol...)
		sr.bestCost = cost
	}
	return true
}

// run explores the search tree in topo order, candidates in expansion
// order, start days ascending. The order is fully determined by the model
// build, so identical inputs search identically.
func (sr *searcher) run() {
	sr.dfs(0, 0)
}

func (sr *searcher) dfs(i int, cost float64) {
	if !sr.deadline.IsZero() && time.Now().After(sr.deadline) {
		sr.timedOut = true
		return
	}
	if sr.best != nil && cost+sr.lbSuffix[i] >= sr.bestCost {
		return
	}
	if i == len(sr.p.tasks) {
		if sr.best == nil || cost < sr.bestCost {
			sr.best = append([]assignment{}, sr.cur...)
			sr.bestCost = cost
		}
		return
	}

	tv := sr.p.tasks[i]
	depReady := 0
	for _, e := range tv.preds {
		if s := sr.cur[e.index].end + 1 + e.lag; s > depReady {
			depReady = s
		}
	}

	if tv.fixed {
		if tv.fixedStart < depReady {
			return // user-pinned window violates precedence: infeasible branch
		}
		sr.place(i, cost, 0, tv.fixedStart, tv.fixedEnd)
		return
	}
	if tv.minStart > depReady {
		depReady = tv.minStart
	}

	for ci := range tv.candidates {
		name := tv.candidates[ci].resource
		for start := depReady; start <= sr.p.horizon; start++ {
			end := start + tv.span(ci, start)
			if sr.best != nil && cost+sr.p.contribution(tv, end)+sr.lbSuffix[i+1] >= sr.bestCost {
				break // ends only grow with start
			}
			if end > start && !sr.free(name, start, end) {
				continue
			}
			sr.place(i, cost, ci, start, end)
			if sr.timedOut {
				return
			}
		}
	}
}

func (sr *searcher) place(i int, cost float64, cand, start, end int) {
	tv := sr.p.tasks[i]
	sr.cur[tv.index] = assignment{cand: cand, start: start, end: end}
	name := tv.candidates[cand].resource
	pushed := false
	// Fixed occupancy is pre-registered; only live choices are pushed.
	if end > start && !tv.fixed {
		sr.occupied[name] = append(sr.occupied[name], interval{start: start, end: end})
		pushed = true
	}
	sr.dfs(i+1, cost+sr.p.contribution(tv, end))
	if pushed {
		occ := sr.occupied[name]
		sr.occupied[name] = occ[:len(occ)-1]
	}
}

// free reports whether [start, end) avoids every committed interval on the
// resource. Fixed-vs-fixed overlap is the user's prerogative; everything
// else must be disjoint.
func (sr *searcher) free(name string, start, end int) bool {
	for _, iv := range sr.occupied[name] {
		if start < iv.end && iv.start < end {
			return false
		}
	}
	for _, iv := range sr.fixedOcc[name] {
		if start < iv.end && iv.start < end {
			return false
		}
	}
	return true
}
