package model

import (
	"sort"
	"time"
)

// ScheduledTask is the per-task scheduling output. Windows are
// start-inclusive and end-exclusive: a one-day task starting Jan 1 ends
// Jan 2. DurationDays is the calendar span of the window, which exceeds the
// task's work-day duration when unavailability intervals fall inside it.
type ScheduledTask struct {
	TaskID       string
	Start        time.Time
	End          time.Time
	DurationDays int
	Resources    []string
}

// Annotations carries the per-task metadata computed around the core
// placement decision.
type Annotations struct {
	EstimatedStart        *time.Time
	EstimatedEnd          *time.Time
	ComputedDeadline      *time.Time
	ComputedPriority      int
	DeadlineViolated      bool
	ResourceAssignments   []Allocation
	ResourcesWereComputed bool
	WasFixed              bool
}

// Result is the uniform output of every scheduling algorithm.
type Result struct {
	ScheduledTasks []ScheduledTask
	Annotations    map[string]*Annotations
	Warnings       []string
	Metadata       map[string]string
}

// NewResult returns an empty result with allocated maps.
func NewResult() *Result {
	return &Result{
		Annotations: make(map[string]*Annotations),
		Metadata:    make(map[string]string),
	}
}

// Warn appends a warning.
func (r *Result) Warn(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// Annotation returns the annotation record for id, creating it on demand.
func (r *Result) Annotation(id string) *Annotations {
	a, ok := r.Annotations[id]
	if !ok {
		a = &Annotations{}
		r.Annotations[id] = a
	}
	return a
}

// SortTasks orders the scheduled tasks by start date, then task id, the
// canonical output order.
func (r *Result) SortTasks() {
	sort.Slice(r.ScheduledTasks, func(i, j int) bool {
		a, b := r.ScheduledTasks[i], r.ScheduledTasks[j]
		if !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}
		return a.TaskID < b.TaskID
	})
}
