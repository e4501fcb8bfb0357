package graph

import (
	"math"
	"time"

	"github.com/papapumpkin/pulsar/internal/model"
)

// BackwardPassResult holds the two read-only maps the pre-processing pass
// produces. Completed tasks appear in neither.
type BackwardPassResult struct {
	// Deadlines maps task id to the latest end date consistent with all
	// downstream deadlines. Tasks with no deadline pressure are absent.
	Deadlines map[string]time.Time
	// Priorities maps every task id to the maximum priority among the
	// task and its transitive dependents.
	Priorities map[string]int
}

// Deadline returns the computed deadline for id, if any.
func (r *BackwardPassResult) Deadline(id string) (time.Time, bool) {
	d, ok := r.Deadlines[id]
	return d, ok
}

// Priority returns the computed priority for id, falling back to def.
func (r *BackwardPassResult) Priority(id string, def int) int {
	if p, ok := r.Priorities[id]; ok {
		return p
	}
	return def
}

// BackwardPass walks the DAG once, dependents before predecessors, and
// propagates deadline and priority pressure upstream:
//
//	deadline[t] = min(t.end_before, deadline[d] - ceil(duration[d] + lag(t,d)))
//	priority[t] = max(t.priority,  priority[d])
//
// over every direct dependent d. The duration+lag sum is rounded up once
// per edge. Runs in O(V + E) over the already-acyclic graph.
func BackwardPass(g *Graph, defaultPriority int) *BackwardPassResult {
	res := &BackwardPassResult{
		Deadlines:  make(map[string]time.Time),
		Priorities: make(map[string]int, len(g.IDs())),
	}

	order := g.TopoSort()
	for i := len(order) - 1; i >= 0; i-- {
		id := order[i]
		t := g.Task(id)

		deadline := model.MaxDate
		if t.EndBefore != nil {
			deadline = *t.EndBefore
		}
		priority := t.PriorityOr(defaultPriority)

		for _, e := range g.Successors(id) {
			succ := g.Task(e.To)
			if dd, ok := res.Deadlines[e.To]; ok {
				offset := int(math.Ceil(succ.DurationDays + e.Lag))
				cand := model.AddDays(dd, -offset)
				if cand.Before(deadline) {
					deadline = cand
				}
			}
			if sp := res.Priorities[e.To]; sp > priority {
				priority = sp
			}
		}

		if deadline.Before(model.MaxDate) {
			res.Deadlines[id] = deadline
		}
		res.Priorities[id] = priority
	}
	return res
}
