// Package graph models the task dependency DAG: edge storage by id,
// three-color cycle detection, deterministic topological sort, and the
// backward pass that pushes downstream deadlines and priorities upstream.
package graph

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/papapumpkin/pulsar/internal/model"
)

// ErrCycle is returned when the dependency graph contains a cycle.
var ErrCycle = errors.New("circular dependency")

// Edge is a dependency edge from a predecessor to a successor, weighted by
// the lag in calendar days.
type Edge struct {
	From string
	To   string
	Lag  float64
}

// Graph holds the dependency DAG over a task set. Completed tasks are
// excluded at build time; predecessor references to unknown ids (external
// dependencies) are silently dropped.
type Graph struct {
	ids   []string // insertion order, the deterministic iteration order
	tasks map[string]*model.Task
	succ  map[string][]Edge // predecessor id -> outgoing edges
	pred  map[string][]Edge // successor id -> incoming edges
}

// Build constructs the graph and verifies acyclicity. The completed set
// removes tasks entirely: they satisfy nothing and demand nothing here
// (engines account for completed predecessors separately).
func Build(tasks []*model.Task, completed map[string]bool) (*Graph, error) {
	g := &Graph{
		tasks: make(map[string]*model.Task, len(tasks)),
		succ:  make(map[string][]Edge),
		pred:  make(map[string][]Edge),
	}
	for _, t := range tasks {
		if completed[t.ID] {
			continue
		}
		g.ids = append(g.ids, t.ID)
		g.tasks[t.ID] = t
	}
	for _, t := range tasks {
		if completed[t.ID] {
			continue
		}
		for _, dep := range t.Dependencies {
			if _, known := g.tasks[dep.TaskID]; !known {
				continue // external or completed predecessor
			}
			e := Edge{From: dep.TaskID, To: t.ID, Lag: dep.LagDays}
			g.succ[dep.TaskID] = append(g.succ[dep.TaskID], e)
			g.pred[t.ID] = append(g.pred[t.ID], e)
		}
	}
	if cycle := g.findCycle(); cycle != nil {
		return nil, fmt.Errorf("%w: %s", ErrCycle, strings.Join(cycle, " -> "))
	}
	return g, nil
}

// IDs returns the task ids in insertion order.
func (g *Graph) IDs() []string {
	return g.ids
}

// Task returns the task for id, or nil.
func (g *Graph) Task(id string) *model.Task {
	return g.tasks[id]
}

// Successors returns the outgoing edges of id.
func (g *Graph) Successors(id string) []Edge {
	return g.succ[id]
}

// Predecessors returns the incoming edges of id.
func (g *Graph) Predecessors(id string) []Edge {
	return g.pred[id]
}

// findCycle runs a three-color DFS over ids in sorted order and returns the
// node sequence of the first cycle found, closed on the repeated node.
func (g *Graph) findCycle() []string {
	const (
		white = 0 // unvisited
		gray  = 1 // on the current DFS stack
		black = 2 // fully explored
	)
	color := make(map[string]int, len(g.ids))
	var stack []string
	var cycle []string

	ordered := append([]string{}, g.ids...)
	sort.Strings(ordered)

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = gray
		stack = append(stack, id)
		for _, e := range g.sortedSuccessors(id) {
			switch color[e.To] {
			case white:
				if visit(e.To) {
					return true
				}
			case gray:
				// Found: slice the stack from the repeated node.
				for i, s := range stack {
					if s == e.To {
						cycle = append(append([]string{}, stack[i:]...), e.To)
						return true
					}
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
		return false
	}
	for _, id := range ordered {
		if color[id] == white && visit(id) {
			return cycle
		}
	}
	return nil
}

func (g *Graph) sortedSuccessors(id string) []Edge {
	edges := append([]Edge{}, g.succ[id]...)
	sort.Slice(edges, func(i, j int) bool { return edges[i].To < edges[j].To })
	return edges
}

// TopoSort returns the ids in dependency order (every predecessor before
// its successors). Ready candidates are drained in sorted-id order so the
// result is deterministic. Build has already rejected cycles.
func (g *Graph) TopoSort() []string {
	indegree := make(map[string]int, len(g.ids))
	for _, id := range g.ids {
		indegree[id] = len(g.pred[id])
	}
	var ready []string
	for _, id := range g.ids {
		if indegree[id] == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(g.ids))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		var unlocked []string
		for _, e := range g.succ[id] {
			indegree[e.To]--
			if indegree[e.To] == 0 {
				unlocked = append(unlocked, e.To)
			}
		}
		sort.Strings(unlocked)
		ready = mergeSorted(ready, unlocked)
	}
	return order
}

// mergeSorted merges two sorted string slices.
func mergeSorted(a, b []string) []string {
	if len(b) == 0 {
		return a
	}
	out := make([]string, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if a[i] <= b[j] {
			out = append(out, a[i])
			i++
		} else {
			out = append(out, b[j])
			j++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	return out
}
