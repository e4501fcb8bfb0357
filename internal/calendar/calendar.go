// Package calendar implements the unavailability arithmetic every scheduling
// engine relies on: given a resource's do-not-schedule intervals, compute the
// next available day, the completion date of a run of work days, and window
// overlap. The package is pure; a Calendar is an immutable value built once
// from the merged interval list.
package calendar

import (
	"math"
	"sort"
	"time"

	"github.com/papapumpkin/pulsar/internal/model"
)

// Interval is an inclusive [Start, End] span of unavailable days.
type Interval struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether day d falls inside the interval.
func (iv Interval) Contains(d time.Time) bool {
	return !d.Before(iv.Start) && !d.After(iv.End)
}

// Calendar holds a resource's unavailability intervals, sorted by start and
// merged. Building the calendar re-sorts the union of resource-local and
// global intervals; callers must not assume their input order survives.
type Calendar struct {
	intervals []Interval
}

// New builds a calendar from an arbitrary interval list. Overlapping and
// adjacent intervals are merged so later arithmetic sees each gap once.
func New(intervals []Interval) *Calendar {
	merged := Merge(intervals)
	return &Calendar{intervals: merged}
}

// Merge sorts intervals by start date and coalesces overlapping or adjacent
// ones. The input is not modified.
func Merge(intervals []Interval) []Interval {
	if len(intervals) == 0 {
		return nil
	}
	sorted := make([]Interval, len(intervals))
	copy(sorted, intervals)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].Start.Equal(sorted[j].Start) {
			return sorted[i].Start.Before(sorted[j].Start)
		}
		return sorted[i].End.Before(sorted[j].End)
	})

	merged := []Interval{sorted[0]}
	for _, iv := range sorted[1:] {
		last := &merged[len(merged)-1]
		// Adjacent counts as mergeable: [1,5] + [6,10] = [1,10].
		if !iv.Start.After(model.AddDays(last.End, 1)) {
			if iv.End.After(last.End) {
				last.End = iv.End
			}
			continue
		}
		merged = append(merged, iv)
	}
	return merged
}

// Intervals returns the merged, sorted interval list.
func (c *Calendar) Intervals() []Interval {
	return c.intervals
}

// NextAvailable returns the smallest day d >= t outside every interval.
func (c *Calendar) NextAvailable(t time.Time) time.Time {
	for _, iv := range c.intervals {
		if iv.End.Before(t) {
			continue
		}
		if iv.Start.After(t) {
			break
		}
		t = model.AddDays(iv.End, 1)
	}
	return t
}

// Completion returns the end-exclusive date such that [start, end) contains
// exactly workDays of available days, skipping over any intervals that
// intersect the window. Fractional work rounds up to whole days at the end.
//
// The blocking predicate is "interval end >= cursor", not "interval start
// >= cursor": a start date strictly inside an interval still collides with
// it, and the work must jump past the interval's end.
func (c *Calendar) Completion(start time.Time, workDays float64) time.Time {
	cursor := start
	remaining := workDays
	for _, iv := range c.intervals {
		if iv.End.Before(cursor) {
			continue // entirely in the past
		}
		if iv.Start.After(model.AddDays(cursor, ceilDays(remaining)-1)) {
			break // entirely beyond the pending work
		}
		workable := model.DaysBetween(cursor, iv.Start)
		if workable < 0 {
			workable = 0
		}
		if float64(workable) >= remaining {
			break
		}
		remaining -= float64(workable)
		cursor = model.AddDays(iv.End, 1)
	}
	return model.AddDays(cursor, ceilDays(remaining))
}

// Span returns the calendar-day width of the window produced by Completion.
func (c *Calendar) Span(start time.Time, workDays float64) int {
	return model.DaysBetween(start, c.Completion(start, workDays))
}

// OverlapsWindow reports whether any interval intersects the end-exclusive
// window [s, e).
func (c *Calendar) OverlapsWindow(s, e time.Time) bool {
	for _, iv := range c.intervals {
		if iv.End.Before(s) {
			continue
		}
		if !iv.Start.Before(e) {
			break
		}
		return true
	}
	return false
}

// Unavailable reports whether day d falls inside any interval.
func (c *Calendar) Unavailable(d time.Time) bool {
	for _, iv := range c.intervals {
		if iv.End.Before(d) {
			continue
		}
		return iv.Contains(d)
	}
	return false
}

func ceilDays(d float64) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d))
}
