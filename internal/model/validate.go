package model

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidInput tags every input-shape validation failure. Validation
// runs before any scheduling begins; a failure rejects the entire run.
var ErrInvalidInput = errors.New("invalid scheduling input")

// ValidateTasks checks input-shape invariants over the task set:
// unique ids, non-negative durations, allocations in (0, 1], coherent
// fixed dates, and no task carrying both explicit resources and a spec.
func ValidateTasks(tasks []*Task) error {
	seen := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		if t.ID == "" {
			return fmt.Errorf("%w: task with empty id", ErrInvalidInput)
		}
		if seen[t.ID] {
			return fmt.Errorf("%w: duplicate task id %q", ErrInvalidInput, t.ID)
		}
		seen[t.ID] = true

		if t.DurationDays < 0 {
			return fmt.Errorf("%w: task %q: negative duration %v", ErrInvalidInput, t.ID, t.DurationDays)
		}
		if len(t.Resources) > 0 && t.ResourceSpec != "" {
			return fmt.Errorf("%w: task %q: both resources and resource spec set", ErrInvalidInput, t.ID)
		}
		for _, a := range t.Resources {
			if a.Resource == "" {
				return fmt.Errorf("%w: task %q: empty resource name", ErrInvalidInput, t.ID)
			}
			if a.Fraction <= 0 || a.Fraction > 1 {
				return fmt.Errorf("%w: task %q: allocation %v for %q outside (0, 1]", ErrInvalidInput, t.ID, a.Fraction, a.Resource)
			}
		}
		if p := t.Priority; p != nil && (*p < 0 || *p > 100) {
			return fmt.Errorf("%w: task %q: priority %d outside [0, 100]", ErrInvalidInput, t.ID, *p)
		}
		if err := validateFixedDates(t); err != nil {
			return err
		}
	}
	return nil
}

func validateFixedDates(t *Task) error {
	if t.StartOn != nil && t.EndOn != nil {
		// Both ends pinned: the window must hold at least the duration.
		span := DaysBetween(*t.StartOn, *t.EndOn)
		if span < 0 {
			return fmt.Errorf("%w: task %q: end_on before start_on", ErrInvalidInput, t.ID)
		}
		if float64(span) < t.DurationDays {
			return fmt.Errorf("%w: task %q: fixed window of %d days cannot hold %v work days", ErrInvalidInput, t.ID, span, t.DurationDays)
		}
	}
	for _, d := range []*time.Time{t.StartAfter, t.EndBefore, t.StartOn, t.EndOn} {
		if d != nil && !d.Equal(Midnight(*d)) {
			return fmt.Errorf("%w: task %q: date %v is not a whole day", ErrInvalidInput, t.ID, *d)
		}
	}
	return nil
}
