package calendar

import (
	"testing"
	"time"

	"github.com/papapumpkin/pulsar/internal/model"
)

func day(y int, m time.Month, d int) time.Time {
	return model.Date(y, m, d)
}

func iv(s, e time.Time) Interval {
	return Interval{Start: s, End: e}
}

// --- Completion ---

// Regression: the blocking predicate must be "interval end >= cursor". A
// start date strictly inside a busy period used to be missed when only the
// interval start was checked.
func TestCompletionStartInsideBusyPeriod(t *testing.T) {
	c := New([]Interval{iv(day(2025, time.January, 10), day(2025, time.January, 20))})

	got := c.Completion(day(2025, time.January, 15), 5.0)
	want := day(2025, time.January, 26)
	if !got.Equal(want) {
		t.Errorf("Completion = %v, want %v (work must jump to Jan 21)", got, want)
	}
}

func TestCompletionStartEqualsBusyStart(t *testing.T) {
	c := New([]Interval{iv(day(2025, time.January, 20), day(2025, time.January, 30))})

	got := c.Completion(day(2025, time.January, 20), 5.0)
	want := day(2025, time.February, 5)
	if !got.Equal(want) {
		t.Errorf("Completion = %v, want %v", got, want)
	}
}

func TestCompletionStartEqualsBusyEnd(t *testing.T) {
	c := New([]Interval{iv(day(2025, time.January, 10), day(2025, time.January, 20))})

	got := c.Completion(day(2025, time.January, 20), 5.0)
	want := day(2025, time.January, 26)
	if !got.Equal(want) {
		t.Errorf("Completion = %v, want %v", got, want)
	}
}

func TestCompletionSpansBusyPeriod(t *testing.T) {
	c := New([]Interval{iv(day(2025, time.January, 20), day(2025, time.January, 30))})

	// 10 days before the gap, skip Jan 20-30, 15 days after.
	got := c.Completion(day(2025, time.January, 10), 25.0)
	want := day(2025, time.February, 15)
	if !got.Equal(want) {
		t.Errorf("Completion = %v, want %v", got, want)
	}
}

func TestCompletionMultipleBusyPeriods(t *testing.T) {
	c := New([]Interval{
		iv(day(2025, time.January, 10), day(2025, time.January, 15)),
		iv(day(2025, time.January, 25), day(2025, time.January, 30)),
	})

	// Start inside the first period: skip to Jan 16, 9 days of work reach
	// Jan 24, skip the second period, one final day on Jan 31.
	got := c.Completion(day(2025, time.January, 12), 10.0)
	want := day(2025, time.February, 1)
	if !got.Equal(want) {
		t.Errorf("Completion = %v, want %v", got, want)
	}
}

func TestCompletionNoIntervals(t *testing.T) {
	c := New(nil)

	got := c.Completion(day(2025, time.January, 1), 10.0)
	want := day(2025, time.January, 11)
	if !got.Equal(want) {
		t.Errorf("Completion = %v, want %v", got, want)
	}
}

func TestCompletionFractionalRoundsUp(t *testing.T) {
	c := New(nil)

	got := c.Completion(day(2025, time.January, 1), 2.5)
	want := day(2025, time.January, 4)
	if !got.Equal(want) {
		t.Errorf("Completion = %v, want %v (2.5 work days round up to 3)", got, want)
	}
}

func TestCompletionMilestoneZeroDuration(t *testing.T) {
	c := New([]Interval{iv(day(2025, time.January, 10), day(2025, time.January, 20))})

	start := day(2025, time.January, 5)
	if got := c.Completion(start, 0); !got.Equal(start) {
		t.Errorf("Completion = %v, want %v (milestones occupy no time)", got, start)
	}
}

func TestCompletionIntervalBeyondWork(t *testing.T) {
	c := New([]Interval{iv(day(2025, time.March, 1), day(2025, time.March, 10))})

	got := c.Completion(day(2025, time.January, 1), 5.0)
	want := day(2025, time.January, 6)
	if !got.Equal(want) {
		t.Errorf("Completion = %v, want %v (March gap is irrelevant)", got, want)
	}
}

// Scenario from the scheduling suite: 10 work days across a 6-day gap.
func TestCompletionDNSSpan(t *testing.T) {
	c := New([]Interval{iv(day(2025, time.January, 5), day(2025, time.January, 10))})

	got := c.Completion(day(2025, time.January, 1), 10.0)
	want := day(2025, time.January, 17)
	if !got.Equal(want) {
		t.Errorf("Completion = %v, want %v", got, want)
	}
	if span := c.Span(day(2025, time.January, 1), 10.0); span != 16 {
		t.Errorf("Span = %d, want 16", span)
	}
}

// --- Merge ---

func TestMergeOverlapping(t *testing.T) {
	merged := Merge([]Interval{
		iv(day(2025, time.January, 10), day(2025, time.January, 20)),
		iv(day(2025, time.January, 15), day(2025, time.January, 25)),
	})
	if len(merged) != 1 {
		t.Fatalf("got %d intervals, want 1", len(merged))
	}
	if !merged[0].Start.Equal(day(2025, time.January, 10)) || !merged[0].End.Equal(day(2025, time.January, 25)) {
		t.Errorf("merged = %v", merged[0])
	}
}

func TestMergeAdjacent(t *testing.T) {
	merged := Merge([]Interval{
		iv(day(2025, time.January, 1), day(2025, time.January, 5)),
		iv(day(2025, time.January, 6), day(2025, time.January, 10)),
	})
	if len(merged) != 1 {
		t.Fatalf("got %d intervals, want 1", len(merged))
	}
	if !merged[0].End.Equal(day(2025, time.January, 10)) {
		t.Errorf("merged end = %v", merged[0].End)
	}
}

// Re-sorting after the union is part of the contract: intervals handed over
// out of order must not corrupt completion arithmetic.
func TestMergeResortsUnsortedUnion(t *testing.T) {
	c := New([]Interval{
		iv(day(2025, time.January, 25), day(2025, time.January, 30)),
		iv(day(2025, time.January, 10), day(2025, time.January, 15)),
	})

	got := c.Completion(day(2025, time.January, 12), 10.0)
	want := day(2025, time.February, 1)
	if !got.Equal(want) {
		t.Errorf("Completion = %v, want %v", got, want)
	}
}

func TestMergeDisjointKeepsBoth(t *testing.T) {
	merged := Merge([]Interval{
		iv(day(2025, time.January, 1), day(2025, time.January, 5)),
		iv(day(2025, time.January, 10), day(2025, time.January, 15)),
	})
	if len(merged) != 2 {
		t.Fatalf("got %d intervals, want 2", len(merged))
	}
}

// --- NextAvailable / OverlapsWindow / Unavailable ---

func TestNextAvailable(t *testing.T) {
	c := New([]Interval{
		iv(day(2025, time.January, 10), day(2025, time.January, 15)),
		iv(day(2025, time.January, 16), day(2025, time.January, 20)),
	})

	cases := []struct {
		in   time.Time
		want time.Time
	}{
		{day(2025, time.January, 1), day(2025, time.January, 1)},
		{day(2025, time.January, 10), day(2025, time.January, 21)},
		{day(2025, time.January, 12), day(2025, time.January, 21)},
		{day(2025, time.January, 21), day(2025, time.January, 21)},
	}
	for _, tc := range cases {
		if got := c.NextAvailable(tc.in); !got.Equal(tc.want) {
			t.Errorf("NextAvailable(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestOverlapsWindow(t *testing.T) {
	c := New([]Interval{iv(day(2025, time.January, 10), day(2025, time.January, 20))})

	cases := []struct {
		s, e time.Time
		want bool
	}{
		{day(2025, time.January, 1), day(2025, time.January, 10), false}, // end-exclusive
		{day(2025, time.January, 1), day(2025, time.January, 11), true},
		{day(2025, time.January, 20), day(2025, time.January, 25), true},
		{day(2025, time.January, 21), day(2025, time.January, 25), false},
	}
	for _, tc := range cases {
		if got := c.OverlapsWindow(tc.s, tc.e); got != tc.want {
			t.Errorf("OverlapsWindow(%v, %v) = %v, want %v", tc.s, tc.e, got, tc.want)
		}
	}
}

func TestUnavailable(t *testing.T) {
	c := New([]Interval{iv(day(2025, time.January, 10), day(2025, time.January, 20))})

	if c.Unavailable(day(2025, time.January, 9)) {
		t.Error("Jan 9 should be available")
	}
	if !c.Unavailable(day(2025, time.January, 10)) {
		t.Error("Jan 10 should be unavailable")
	}
	if !c.Unavailable(day(2025, time.January, 20)) {
		t.Error("Jan 20 should be unavailable")
	}
	if c.Unavailable(day(2025, time.January, 21)) {
		t.Error("Jan 21 should be available")
	}
}
