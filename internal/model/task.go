// Package model defines the scheduling data model shared by every engine:
// tasks, dependencies, scheduled output, annotations, and the configuration
// knobs. Tasks and resources are immutable inputs to a scheduling run;
// engines never mutate them.
package model

import (
	"time"
)

// UnassignedResource is the reserved pseudo-resource that serializes tasks
// declaring neither explicit resources nor a resource spec.
const UnassignedResource = "unassigned"

// Dependency links a task to one of its predecessors. LagDays is the extra
// calendar delay beyond the normal immediate-follow relationship: the
// dependent task starts no earlier than predecessor end + 1 + lag days.
type Dependency struct {
	TaskID  string
	LagDays float64
}

// Allocation pairs a resource name with a fractional allocation in (0, 1].
type Allocation struct {
	Resource string
	Fraction float64
}

// Task is a unit of work on the roadmap. A task occupies its cell in all
// listed resources simultaneously for its full span. DurationDays counts
// work days; zero denotes a milestone.
type Task struct {
	ID           string
	DurationDays float64

	// Resources is the explicit resource demand. ResourceSpec is the
	// alternative: "*", "a|b|c", a group alias, or a bare name, expanded
	// by the registry at placement time. At most one of the two is set.
	Resources    []Allocation
	ResourceSpec string

	Dependencies []Dependency

	// StartAfter is a soft floor (values before the planning date are
	// ignored). EndBefore is a soft deadline, violable with a penalty.
	StartAfter *time.Time
	EndBefore  *time.Time

	// StartOn and EndOn are hard fixed dates. A fixed task overrides
	// do-not-schedule periods on its assigned resources.
	StartOn *time.Time
	EndOn   *time.Time

	// Priority in [0, 100]; nil means "use the configured default".
	Priority *int
}

// IsMilestone reports whether the task has zero duration.
func (t *Task) IsMilestone() bool {
	return t.DurationDays == 0
}

// IsFixed reports whether either hard date is set.
func (t *Task) IsFixed() bool {
	return t.StartOn != nil || t.EndOn != nil
}

// PriorityOr returns the task priority, or def when unset.
func (t *Task) PriorityOr(def int) int {
	if t.Priority != nil {
		return *t.Priority
	}
	return def
}

// EffectiveResources returns the explicit allocations, or the unassigned
// pseudo-resource when the task names no resources and no spec.
func (t *Task) EffectiveResources() []Allocation {
	if len(t.Resources) > 0 || t.ResourceSpec != "" {
		return t.Resources
	}
	return []Allocation{{Resource: UnassignedResource, Fraction: 1.0}}
}

// Date returns a normalized whole-day timestamp (UTC midnight). All dates
// flowing through the scheduler are normalized with it.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// Midnight truncates an arbitrary timestamp to its UTC calendar day.
func Midnight(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns b - a in whole calendar days.
func DaysBetween(a, b time.Time) int {
	return int(b.Sub(a).Hours() / 24)
}

// AddDays returns t shifted by n calendar days.
func AddDays(t time.Time, n int) time.Time {
	return t.AddDate(0, 0, n)
}

// MaxDate is the sentinel "no deadline" date, far beyond any horizon.
var MaxDate = Date(9999, time.December, 31)
