// Package solver implements the exact scheduling engine: the problem is
// formulated over integer day offsets as interval variables with
// per-resource no-overlap, precedence, optional fixed dates, and
// DNS-inflated span tables selected by start day, then minimized by a
// deterministic branch-and-bound search seeded with a greedy schedule.
package solver

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/papapumpkin/pulsar/internal/graph"
	"github.com/papapumpkin/pulsar/internal/model"
	"github.com/papapumpkin/pulsar/internal/resource"
)

// ErrMultiResource rejects tasks demanding several explicit resources at
// once; the interval model assigns exactly one resource per task.
var ErrMultiResource = errors.New("solver supports at most one explicit resource per task")

// Solver statuses, reported in result metadata.
const (
	StatusOptimal    = "OPTIMAL"
	StatusFeasible   = "FEASIBLE"
	StatusInfeasible = "INFEASIBLE"
)

// candidate is one resource choice for a task, with its start-indexed span
// table: spans[d] is the calendar width of the task's window when work
// begins d days after the planning date (DNS gaps inflate it).
type candidate struct {
	resource string
	spans    []int
}

// taskVar is the per-task variable block of the model.
type taskVar struct {
	id       string
	index    int
	duration int // work days, rounded up
	priority int
	deadline int // day offset, or noDeadline

	candidates []candidate

	// minStart floors the start domain (start-after, already clipped to
	// the planning date).
	minStart int

	// fixedStart / fixedEnd pin the interval; fixed windows override DNS
	// so their span is the bare duration (or the exact user window).
	fixed      bool
	fixedStart int
	fixedEnd   int

	preds []predEdge
}

type predEdge struct {
	index int
	lag   int
}

const noDeadline = math.MaxInt32

// problem is the fully-built model.
type problem struct {
	current time.Time
	horizon int
	tasks   []*taskVar // topological order
	byID    map[string]*taskVar
	cfg     model.SolverConfig
	weights objectiveWeights
}

type objectiveWeights struct {
	tardiness float64
	priority  float64
	earliness float64
}

// buildProblem converts the validated task set into the integer model.
func buildProblem(tasks []*model.Task, g *graph.Graph, bp *graph.BackwardPassResult, reg *resource.Registry, current time.Time, cfg model.Config) (*problem, error) {
	order := g.TopoSort()

	horizon := cfg.Solver.HorizonSlackDays
	for _, id := range order {
		horizon += int(math.Ceil(g.Task(id).DurationDays))
	}
	for _, id := range order {
		t := g.Task(id)
		if t.EndOn != nil {
			if off := model.DaysBetween(current, *t.EndOn); off > horizon {
				horizon = off
			}
		}
		if t.StartOn != nil {
			if off := model.DaysBetween(current, *t.StartOn) + int(math.Ceil(t.DurationDays)); off > horizon {
				horizon = off
			}
		}
	}

	p := &problem{
		current: current,
		horizon: horizon,
		byID:    make(map[string]*taskVar, len(order)),
		cfg:     cfg.Solver,
		weights: objectiveWeights{
			tardiness: cfg.Solver.TardinessWeight,
			priority:  cfg.Solver.PriorityWeight,
			earliness: cfg.Solver.EarlinessWeight,
		},
	}

	for i, id := range order {
		t := g.Task(id)
		tv := &taskVar{
			id:       id,
			index:    i,
			duration: int(math.Ceil(t.DurationDays)),
			priority: bp.Priority(id, cfg.DefaultPriority),
			deadline: noDeadline,
		}
		if d, ok := bp.Deadline(id); ok {
			tv.deadline = model.DaysBetween(current, d)
		}
		if t.StartAfter != nil {
			if off := model.DaysBetween(current, *t.StartAfter); off > 0 {
				tv.minStart = off
			}
		}

		names, err := candidateNames(t, reg)
		if err != nil {
			return nil, err
		}
		for _, n := range names {
			tv.candidates = append(tv.candidates, candidate{
				resource: n,
				spans:    spanTable(reg, n, current, t.DurationDays, horizon),
			})
		}

		if t.IsFixed() {
			tv.fixed = true
			switch {
			case t.StartOn != nil && t.EndOn != nil:
				tv.fixedStart = model.DaysBetween(current, *t.StartOn)
				tv.fixedEnd = model.DaysBetween(current, *t.EndOn)
			case t.StartOn != nil:
				tv.fixedStart = model.DaysBetween(current, *t.StartOn)
				tv.fixedEnd = tv.fixedStart + tv.duration
			default:
				tv.fixedEnd = model.DaysBetween(current, *t.EndOn)
				tv.fixedStart = tv.fixedEnd - tv.duration
			}
		}

		p.tasks = append(p.tasks, tv)
		p.byID[id] = tv
	}

	// Wire precedence by model index; edges from completed or external
	// predecessors were already dropped by the graph build.
	for _, tv := range p.tasks {
		for _, e := range g.Predecessors(tv.id) {
			tv.preds = append(tv.preds, predEdge{
				index: p.byID[e.From].index,
				lag:   int(math.Ceil(e.Lag)),
			})
		}
	}
	return p, nil
}

// candidateNames resolves the assignable resources for a task: a spec
// expands to its ordered candidates, an explicit single resource to
// itself, and no demand at all to the unassigned pseudo-resource.
func candidateNames(t *model.Task, reg *resource.Registry) ([]string, error) {
	if t.ResourceSpec != "" {
		names, err := reg.Expand(t.ResourceSpec)
		if err != nil {
			return nil, fmt.Errorf("task %q: %w", t.ID, err)
		}
		return names, nil
	}
	if len(t.Resources) > 1 {
		return nil, fmt.Errorf("%w: task %q lists %d", ErrMultiResource, t.ID, len(t.Resources))
	}
	if len(t.Resources) == 1 {
		return []string{t.Resources[0].Resource}, nil
	}
	return []string{model.UnassignedResource}, nil
}

// spanTable precomputes the calendar span of the task for every start
// offset in [0, horizon]. This is the element-constraint data: the model
// selects the span via the start variable.
func spanTable(reg *resource.Registry, name string, current time.Time, workDays float64, horizon int) []int {
	cal := reg.Calendar(name)
	spans := make([]int, horizon+1)
	for d := 0; d <= horizon; d++ {
		spans[d] = cal.Span(model.AddDays(current, d), workDays)
	}
	return spans
}

// span returns the calendar width for a start offset; fixed tasks override
// DNS, and starts before the planning date (possible only for fixed tasks)
// fall back to the bare duration.
func (tv *taskVar) span(cand int, start int) int {
	if tv.fixed {
		return tv.fixedEnd - tv.fixedStart
	}
	table := tv.candidates[cand].spans
	if start < 0 || start >= len(table) {
		return tv.duration
	}
	return table[start]
}
