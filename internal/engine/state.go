// Package engine implements the parallel serial-generation scheme (SGS)
// dispatcher and its bounded-rollout wrapper. The simulation state it
// maintains — committed resource windows, pending/scheduled task sets, a
// simulated clock — is also the placement substrate for the critical-path
// scheduler.
package engine

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/papapumpkin/pulsar/internal/calendar"
	"github.com/papapumpkin/pulsar/internal/graph"
	"github.com/papapumpkin/pulsar/internal/model"
	"github.com/papapumpkin/pulsar/internal/resource"
)

// ErrStalled is the assertion error for a dispatch loop that can make no
// further progress despite pending tasks. It cannot occur on a valid DAG.
var ErrStalled = errors.New("scheduler stalled with pending tasks")

// Window is a committed [Start, End) occupancy of one resource.
type Window struct {
	Start  time.Time
	End    time.Time
	TaskID string
}

// State is the mutable working state of a dispatch run. Engines own their
// State exclusively; rollout simulations operate on a Clone.
type State struct {
	Clock   time.Time
	Current time.Time

	Registry  *resource.Registry
	Graph     *graph.Graph
	Backward  *graph.BackwardPassResult
	Config    *model.Config
	Completed map[string]bool

	// Order is the deterministic id iteration order (input order, minus
	// completed tasks).
	Order     []string
	Pending   map[string]bool
	Scheduled map[string]*model.ScheduledTask

	windows map[string][]Window

	// notBefore defers individual tasks past their natural eligibility;
	// the rollout wrapper uses it to model "leave the resource idle".
	notBefore map[string]time.Time

	// deferBehind holds a task out of dispatch while another is still
	// pending. Skip-scenario simulations use it to model "let the
	// competing task claim the resource first".
	deferBehind map[string]string

	// avgDuration feeds the ATC urgency exponent.
	avgDuration float64
}

// NewState builds the initial state: all non-completed tasks pending, no
// committed windows, clock at the planning date.
func NewState(g *graph.Graph, reg *resource.Registry, bp *graph.BackwardPassResult, cfg *model.Config, current time.Time, completed map[string]bool) *State {
	s := &State{
		Clock:       current,
		Current:     current,
		Registry:    reg,
		Graph:       g,
		Backward:    bp,
		Config:      cfg,
		Completed:   completed,
		Pending:     make(map[string]bool),
		Scheduled:   make(map[string]*model.ScheduledTask),
		windows:     make(map[string][]Window),
		notBefore:   make(map[string]time.Time),
		deferBehind: make(map[string]string),
	}
	total := 0.0
	for _, id := range g.IDs() {
		s.Order = append(s.Order, id)
		s.Pending[id] = true
		total += g.Task(id).DurationDays
	}
	if n := len(s.Order); n > 0 {
		s.avgDuration = total / float64(n)
	}
	if s.avgDuration <= 0 {
		s.avgDuration = 1.0
	}
	return s
}

// Clone deep-copies the mutable parts of the state. The immutable inputs
// (graph, registry, config, backward-pass maps) are shared.
func (s *State) Clone() *State {
	c := &State{
		Clock:       s.Clock,
		Current:     s.Current,
		Registry:    s.Registry,
		Graph:       s.Graph,
		Backward:    s.Backward,
		Config:      s.Config,
		Completed:   s.Completed,
		Order:       s.Order,
		Pending:     make(map[string]bool, len(s.Pending)),
		Scheduled:   make(map[string]*model.ScheduledTask, len(s.Scheduled)),
		windows:     make(map[string][]Window, len(s.windows)),
		notBefore:   make(map[string]time.Time, len(s.notBefore)),
		avgDuration: s.avgDuration,
	}
	for id, t := range s.notBefore {
		c.notBefore[id] = t
	}
	c.deferBehind = make(map[string]string, len(s.deferBehind))
	for id, comp := range s.deferBehind {
		c.deferBehind[id] = comp
	}
	for id := range s.Pending {
		c.Pending[id] = true
	}
	for id, st := range s.Scheduled {
		cp := *st
		c.Scheduled[id] = &cp
	}
	for name, ws := range s.windows {
		c.windows[name] = append([]Window{}, ws...)
	}
	return c
}

// DepsSatisfied reports whether every predecessor of id is scheduled or
// completed. External predecessor ids are treated as satisfied.
func (s *State) DepsSatisfied(id string) bool {
	for _, dep := range s.Graph.Task(id).Dependencies {
		if s.Completed[dep.TaskID] {
			continue
		}
		if _, ok := s.Scheduled[dep.TaskID]; ok {
			continue
		}
		if s.Graph.Task(dep.TaskID) != nil {
			return false
		}
	}
	return true
}

// EarliestStart returns the earliest day id may start: the planning date,
// raised by dependency windows (predecessor end + 1 + lag) and by the
// task's start-after floor. Callers must have checked DepsSatisfied.
func (s *State) EarliestStart(id string) time.Time {
	t := s.Graph.Task(id)
	earliest := s.Current
	for _, dep := range t.Dependencies {
		pred, ok := s.Scheduled[dep.TaskID]
		if !ok {
			continue
		}
		ready := model.AddDays(pred.End, 1+int(math.Ceil(dep.LagDays)))
		if ready.After(earliest) {
			earliest = ready
		}
	}
	if t.StartAfter != nil && t.StartAfter.After(earliest) {
		earliest = *t.StartAfter
	}
	if nb, ok := s.notBefore[id]; ok && nb.After(earliest) {
		earliest = nb
	}
	return earliest
}

// AvgDuration returns the mean task duration, the denominator of the
// slack-exponential urgency terms.
func (s *State) AvgDuration() float64 {
	return s.avgDuration
}

// Defer blocks id from dispatch before t.
func (s *State) Defer(id string, t time.Time) {
	s.notBefore[id] = t
}

// DeferBehind blocks id from dispatch while competitor is still pending.
func (s *State) DeferBehind(id, competitor string) {
	s.deferBehind[id] = competitor
}

// FreeForWindow reports whether name has no committed occupancy
// intersecting [start, end).
func (s *State) FreeForWindow(name string, start, end time.Time) bool {
	for _, w := range s.windows[name] {
		if w.Start.Before(end) && w.End.After(start) {
			return false
		}
	}
	return true
}

// unionCalendar merges the unavailability of several resources into one
// calendar, so multi-resource completion arithmetic sees every gap.
func (s *State) unionCalendar(names []string) *calendar.Calendar {
	if len(names) == 1 {
		return s.Registry.Calendar(names[0])
	}
	var union []calendar.Interval
	for _, n := range names {
		union = append(union, s.Registry.Calendar(n).Intervals()...)
	}
	return calendar.New(union)
}

// NextFreeStart finds the earliest start >= from at which the task's full
// window [start, completion) avoids every committed window of every named
// resource. Completion is recomputed per candidate start because DNS gaps
// move with it.
func (s *State) NextFreeStart(names []string, from time.Time, workDays float64) (start, end time.Time) {
	cal := s.unionCalendar(names)
	start = from
	for {
		end = cal.Completion(start, workDays)
		bumped := false
		for _, n := range names {
			for _, w := range s.windows[n] {
				if w.Start.Before(end) && w.End.After(start) {
					start = w.End
					bumped = true
				}
			}
		}
		if !bumped {
			return start, end
		}
	}
}

// Commit records a placement: the scheduled window, plus occupancy on every
// named resource (milestones occupy nothing).
func (s *State) Commit(id string, start, end time.Time, resources []string) *model.ScheduledTask {
	st := &model.ScheduledTask{
		TaskID:       id,
		Start:        start,
		End:          end,
		DurationDays: model.DaysBetween(start, end),
		Resources:    append([]string{}, resources...),
	}
	s.Scheduled[id] = st
	delete(s.Pending, id)
	if end.After(start) {
		for _, n := range resources {
			ws := append(s.windows[n], Window{Start: start, End: end, TaskID: id})
			sort.Slice(ws, func(i, j int) bool { return ws[i].Start.Before(ws[j].Start) })
			s.windows[n] = ws
		}
	}
	return st
}

// EligibleAt returns the pending tasks dispatchable at time t, in Order.
func (s *State) EligibleAt(t time.Time) []string {
	var out []string
	for _, id := range s.Order {
		if !s.Pending[id] {
			continue
		}
		if comp, ok := s.deferBehind[id]; ok && s.Pending[comp] {
			continue
		}
		if !s.DepsSatisfied(id) {
			continue
		}
		if s.EarliestStart(id).After(t) {
			continue
		}
		out = append(out, id)
	}
	return out
}

// NextEventAfter returns the earliest relevant time strictly after t: a
// resource free-point, a pending task's dependency-ready or start-after
// time. Returns zero time when no event exists.
func (s *State) NextEventAfter(t time.Time) time.Time {
	var next time.Time
	consider := func(c time.Time) {
		if !c.After(t) {
			return
		}
		if next.IsZero() || c.Before(next) {
			next = c
		}
	}
	for _, ws := range s.windows {
		for _, w := range ws {
			consider(w.End)
		}
	}
	for _, id := range s.Order {
		if !s.Pending[id] || !s.DepsSatisfied(id) {
			continue
		}
		consider(s.EarliestStart(id))
	}
	return next
}

// ScheduleFixed pre-commits every task carrying a hard date. Fixed windows
// override DNS periods, so the span is the rounded-up duration (or the
// exact user window when both ends are pinned). Dependencies are not
// checked: a user-pinned window is a constraint the user imposed.
func (s *State) ScheduleFixed() error {
	for _, id := range s.Order {
		t := s.Graph.Task(id)
		if !t.IsFixed() {
			continue
		}
		span := int(math.Ceil(t.DurationDays))
		var start, end time.Time
		switch {
		case t.StartOn != nil && t.EndOn != nil:
			start, end = *t.StartOn, *t.EndOn
		case t.StartOn != nil:
			start = *t.StartOn
			end = model.AddDays(start, span)
		default:
			end = *t.EndOn
			start = model.AddDays(end, -span)
		}
		names, _, err := s.fixedResources(t)
		if err != nil {
			return err
		}
		s.Commit(id, start, end, names)
	}
	return nil
}

func (s *State) fixedResources(t *model.Task) (names []string, computed bool, err error) {
	if t.ResourceSpec != "" {
		cands, err := s.Registry.Expand(t.ResourceSpec)
		if err != nil {
			return nil, false, fmt.Errorf("task %q: %w", t.ID, err)
		}
		if len(cands) == 0 {
			return nil, false, fmt.Errorf("task %q: spec %q expands to nothing", t.ID, t.ResourceSpec)
		}
		return cands[:1], true, nil
	}
	for _, a := range t.EffectiveResources() {
		names = append(names, a.Resource)
	}
	return names, false, nil
}
