package engine

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/papapumpkin/pulsar/internal/calendar"
	"github.com/papapumpkin/pulsar/internal/model"
	"github.com/papapumpkin/pulsar/internal/resource"
)

// --- Fixtures ---

func day(y int, m time.Month, d int) time.Time {
	return model.Date(y, m, d)
}

func jan(d int) time.Time { return day(2025, time.January, d) }

func task(id string, duration float64, res string, priority int) *model.Task {
	t := &model.Task{ID: id, DurationDays: duration, Priority: &priority}
	if res != "" {
		t.Resources = []model.Allocation{{Resource: res, Fraction: 1.0}}
	}
	return t
}

func withDeps(t *model.Task, deps ...model.Dependency) *model.Task {
	t.Dependencies = deps
	return t
}

func withDeadline(t *model.Task, d time.Time) *model.Task {
	t.EndBefore = &d
	return t
}

func registry(t *testing.T, defs ...resource.Definition) *resource.Registry {
	t.Helper()
	reg, err := resource.NewRegistry(defs, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	return reg
}

func plainRegistry(t *testing.T, names ...string) *resource.Registry {
	t.Helper()
	defs := make([]resource.Definition, len(names))
	for i, n := range names {
		defs[i] = resource.Definition{Name: n}
	}
	return registry(t, defs...)
}

func schedule(t *testing.T, tasks []*model.Task, reg *resource.Registry, current time.Time, cfg model.Config) *model.Result {
	t.Helper()
	res, err := New(tasks, current, cfg, reg, nil, nil).Schedule()
	if err != nil {
		t.Fatal(err)
	}
	return res
}

func find(t *testing.T, res *model.Result, id string) model.ScheduledTask {
	t.Helper()
	for _, st := range res.ScheduledTasks {
		if st.TaskID == id {
			return st
		}
	}
	t.Fatalf("task %q not in result", id)
	return model.ScheduledTask{}
}

// assertInvariants checks the universal scheduling laws: completeness,
// per-resource no-overlap, and precedence with lag.
func assertInvariants(t *testing.T, tasks []*model.Task, res *model.Result) {
	t.Helper()

	seen := make(map[string]int)
	for _, st := range res.ScheduledTasks {
		seen[st.TaskID]++
	}
	for _, task := range tasks {
		if seen[task.ID] != 1 {
			t.Errorf("task %q appears %d times, want 1", task.ID, seen[task.ID])
		}
	}

	byRes := make(map[string][]model.ScheduledTask)
	for _, st := range res.ScheduledTasks {
		for _, r := range st.Resources {
			byRes[r] = append(byRes[r], st)
		}
	}
	for r, list := range byRes {
		for i := 0; i < len(list); i++ {
			for j := i + 1; j < len(list); j++ {
				a, b := list[i], list[j]
				if a.Start.Before(b.End) && b.Start.Before(a.End) &&
					a.End.After(a.Start) && b.End.After(b.Start) {
					t.Errorf("resource %q: %q [%v,%v) overlaps %q [%v,%v)",
						r, a.TaskID, a.Start, a.End, b.TaskID, b.Start, b.End)
				}
			}
		}
	}

	byID := make(map[string]model.ScheduledTask)
	for _, st := range res.ScheduledTasks {
		byID[st.TaskID] = st
	}
	for _, task := range tasks {
		c, ok := byID[task.ID]
		if !ok {
			continue
		}
		for _, dep := range task.Dependencies {
			p, ok := byID[dep.TaskID]
			if !ok {
				continue
			}
			min := model.AddDays(p.End, 1+int(dep.LagDays))
			if c.Start.Before(min) {
				t.Errorf("%q starts %v, before %v (pred %q end %v + 1 + %v lag)",
					task.ID, c.Start, min, dep.TaskID, p.End, dep.LagDays)
			}
		}
	}
}

// --- Basic dispatch ---

func TestSingleTask(t *testing.T) {
	tasks := []*model.Task{task("a", 5, "alice", 50)}
	res := schedule(t, tasks, plainRegistry(t, "alice"), jan(1), model.DefaultConfig())

	a := find(t, res, "a")
	if !a.Start.Equal(jan(1)) || !a.End.Equal(jan(6)) {
		t.Errorf("a = [%v, %v), want [Jan 1, Jan 6)", a.Start, a.End)
	}
	if res.Metadata["algorithm"] != "parallel_sgs" {
		t.Errorf("algorithm = %q", res.Metadata["algorithm"])
	}
}

func TestSequentialOnSharedResource(t *testing.T) {
	tasks := []*model.Task{
		task("a", 3, "alice", 50),
		task("b", 2, "alice", 50),
	}
	res := schedule(t, tasks, plainRegistry(t, "alice"), jan(1), model.DefaultConfig())
	assertInvariants(t, tasks, res)
}

func TestIndependentTasksRunInParallel(t *testing.T) {
	tasks := []*model.Task{
		task("a", 5, "alice", 50),
		task("b", 5, "bob", 50),
	}
	res := schedule(t, tasks, plainRegistry(t, "alice", "bob"), jan(1), model.DefaultConfig())

	if !find(t, res, "a").Start.Equal(jan(1)) || !find(t, res, "b").Start.Equal(jan(1)) {
		t.Error("both tasks should start on Jan 1")
	}
}

func TestDependencyDelaysSuccessor(t *testing.T) {
	tasks := []*model.Task{
		task("a", 5, "alice", 50),
		withDeps(task("b", 3, "alice", 50), model.Dependency{TaskID: "a"}),
	}
	res := schedule(t, tasks, plainRegistry(t, "alice"), jan(1), model.DefaultConfig())

	a, b := find(t, res, "a"), find(t, res, "b")
	if !a.End.Equal(jan(6)) {
		t.Fatalf("a end = %v", a.End)
	}
	if !b.Start.Equal(jan(7)) {
		t.Errorf("b start = %v, want Jan 7 (a end + 1)", b.Start)
	}
}

func TestDependencyLag(t *testing.T) {
	tasks := []*model.Task{
		task("a", 5, "alice", 50),
		withDeps(task("b", 3, "alice", 50), model.Dependency{TaskID: "a", LagDays: 7}),
	}
	res := schedule(t, tasks, plainRegistry(t, "alice"), jan(1), model.DefaultConfig())
	assertInvariants(t, tasks, res)

	b := find(t, res, "b")
	if !b.Start.Equal(jan(14)) {
		t.Errorf("b start = %v, want Jan 14 (a end Jan 6 + 1 + 7 lag)", b.Start)
	}
}

func TestMultipleDependenciesDifferentLags(t *testing.T) {
	tasks := []*model.Task{
		task("a", 5, "alice", 50),
		task("b", 3, "bob", 50),
		withDeps(task("c", 2, "alice", 50),
			model.Dependency{TaskID: "a", LagDays: 2},
			model.Dependency{TaskID: "b", LagDays: 10}),
	}
	res := schedule(t, tasks, plainRegistry(t, "alice", "bob"), jan(1), model.DefaultConfig())
	assertInvariants(t, tasks, res)

	// b ends Jan 4; the later bound is Jan 4 + 1 + 10 = Jan 15.
	if c := find(t, res, "c"); !c.Start.Equal(jan(15)) {
		t.Errorf("c start = %v, want Jan 15", c.Start)
	}
}

func TestStartAfterHonored(t *testing.T) {
	sa := jan(10)
	tk := task("a", 2, "alice", 50)
	tk.StartAfter = &sa
	res := schedule(t, []*model.Task{tk}, plainRegistry(t, "alice"), jan(1), model.DefaultConfig())

	if a := find(t, res, "a"); !a.Start.Equal(jan(10)) {
		t.Errorf("a start = %v, want Jan 10", a.Start)
	}
}

func TestStartAfterInPastIgnored(t *testing.T) {
	sa := day(2024, time.December, 1)
	tk := task("a", 2, "alice", 50)
	tk.StartAfter = &sa
	res := schedule(t, []*model.Task{tk}, plainRegistry(t, "alice"), jan(1), model.DefaultConfig())

	if a := find(t, res, "a"); !a.Start.Equal(jan(1)) {
		t.Errorf("a start = %v, want Jan 1 (past start-after floored)", a.Start)
	}
}

func TestCompletedTaskSatisfiesDependency(t *testing.T) {
	tasks := []*model.Task{
		task("done", 5, "alice", 50),
		withDeps(task("b", 3, "alice", 50), model.Dependency{TaskID: "done"}),
	}
	reg := plainRegistry(t, "alice")
	res, err := New(tasks, jan(1), model.DefaultConfig(), reg, map[string]bool{"done": true}, nil).Schedule()
	if err != nil {
		t.Fatal(err)
	}

	if len(res.ScheduledTasks) != 1 {
		t.Fatalf("got %d scheduled tasks, want 1 (completed excluded)", len(res.ScheduledTasks))
	}
	if b := find(t, res, "b"); !b.Start.Equal(jan(1)) {
		t.Errorf("b start = %v, want Jan 1", b.Start)
	}
}

func TestMilestoneAnchorsDependencies(t *testing.T) {
	tasks := []*model.Task{
		task("a", 3, "alice", 50),
		withDeps(task("gate", 0, "", 50), model.Dependency{TaskID: "a"}),
		withDeps(task("b", 2, "alice", 50), model.Dependency{TaskID: "gate"}),
	}
	res := schedule(t, tasks, plainRegistry(t, "alice"), jan(1), model.DefaultConfig())
	assertInvariants(t, tasks, res)

	g := find(t, res, "gate")
	if !g.Start.Equal(g.End) {
		t.Errorf("milestone window [%v, %v) should be empty", g.Start, g.End)
	}
}

func TestUnassignedTasksSerialize(t *testing.T) {
	tasks := []*model.Task{
		task("a", 3, "", 50),
		task("b", 2, "", 50),
	}
	res := schedule(t, tasks, plainRegistry(t), jan(1), model.DefaultConfig())
	assertInvariants(t, tasks, res)

	a, b := find(t, res, "a"), find(t, res, "b")
	if a.Start.Before(b.End) && b.Start.Before(a.End) {
		t.Error("tasks without resources must serialize on the unassigned pseudo-resource")
	}
}

// --- DNS handling ---

func TestDNSStretchesWindow(t *testing.T) {
	reg := registry(t, resource.Definition{
		Name:        "alice",
		Unavailable: []calendar.Interval{{Start: jan(5), End: jan(10)}},
	})
	tasks := []*model.Task{task("a", 10, "alice", 50)}
	res := schedule(t, tasks, reg, jan(1), model.DefaultConfig())

	a := find(t, res, "a")
	if !a.Start.Equal(jan(1)) || !a.End.Equal(jan(17)) {
		t.Errorf("a = [%v, %v), want [Jan 1, Jan 17)", a.Start, a.End)
	}
	if a.DurationDays != 16 {
		t.Errorf("calendar span = %d, want 16", a.DurationDays)
	}
}

func TestFixedTaskOverridesDNS(t *testing.T) {
	reg := registry(t, resource.Definition{
		Name:        "alice",
		Unavailable: []calendar.Interval{{Start: jan(10), End: jan(20)}},
	})
	start := jan(12)
	tk := task("a", 5, "alice", 50)
	tk.StartOn = &start
	res := schedule(t, []*model.Task{tk}, reg, jan(1), model.DefaultConfig())

	a := find(t, res, "a")
	if !a.Start.Equal(jan(12)) || !a.End.Equal(jan(17)) {
		t.Errorf("a = [%v, %v), want exactly [Jan 12, Jan 17)", a.Start, a.End)
	}
	if !res.Annotations["a"].WasFixed {
		t.Error("was_fixed annotation should be set")
	}
	if len(res.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", res.Warnings)
	}
}

func TestEndOnDerivesStart(t *testing.T) {
	end := jan(20)
	tk := task("a", 5, "alice", 50)
	tk.EndOn = &end
	res := schedule(t, []*model.Task{tk}, plainRegistry(t, "alice"), jan(1), model.DefaultConfig())

	a := find(t, res, "a")
	if !a.End.Equal(jan(20)) || !a.Start.Equal(jan(15)) {
		t.Errorf("a = [%v, %v), want [Jan 15, Jan 20)", a.Start, a.End)
	}
}

// Auto-assignment foresight: the engine waits for the resource that
// finishes sooner instead of grabbing the one that is free now.
func TestAutoAssignmentPicksFasterResource(t *testing.T) {
	reg := registry(t,
		resource.Definition{
			Name:        "alice",
			Unavailable: []calendar.Interval{{Start: jan(5), End: jan(30)}},
		},
		resource.Definition{Name: "bob"},
	)
	busyEnd := jan(8)
	busyStart := jan(1)
	busy := task("busy", 7, "bob", 50)
	busy.StartOn = &busyStart
	busy.EndOn = &busyEnd

	auto := &model.Task{ID: "auto", DurationDays: 10, ResourceSpec: "alice|bob"}
	tasks := []*model.Task{busy, auto}
	res := schedule(t, tasks, reg, jan(1), model.DefaultConfig())
	assertInvariants(t, tasks, res)

	a := find(t, res, "auto")
	if got := a.Resources; len(got) != 1 || got[0] != "bob" {
		t.Fatalf("auto assigned to %v, want bob", got)
	}
	if !a.Start.Equal(jan(8)) || !a.End.Equal(jan(18)) {
		t.Errorf("auto = [%v, %v), want [Jan 8, Jan 18)", a.Start, a.End)
	}
	if !res.Annotations["auto"].ResourcesWereComputed {
		t.Error("resources_were_computed should be set")
	}
}

func TestWildcardSpecUsesRegistryOrder(t *testing.T) {
	auto := &model.Task{ID: "auto", DurationDays: 3, ResourceSpec: "*"}
	res := schedule(t, []*model.Task{auto}, plainRegistry(t, "zara", "alice"), jan(1), model.DefaultConfig())

	// Both free and equally fast: registry order (zara first) wins.
	if got := find(t, res, "auto").Resources; got[0] != "zara" {
		t.Errorf("auto assigned to %v, want zara (registry order)", got)
	}
}

// --- Deadlines and annotations ---

func TestDeadlineViolationWarnsNotFails(t *testing.T) {
	tasks := []*model.Task{withDeadline(task("a", 10, "alice", 50), jan(5))}
	res := schedule(t, tasks, plainRegistry(t, "alice"), jan(1), model.DefaultConfig())

	if len(res.ScheduledTasks) != 1 {
		t.Fatal("task must still be scheduled; deadlines are soft")
	}
	if !res.Annotations["a"].DeadlineViolated {
		t.Error("deadline_violated should be set")
	}
	if len(res.Warnings) == 0 {
		t.Error("a warning should be recorded")
	}
}

func TestPriorityFirstOrdering(t *testing.T) {
	tasks := []*model.Task{
		task("low", 5, "alice", 30),
		task("high", 5, "alice", 90),
	}
	res := schedule(t, tasks, plainRegistry(t, "alice"), jan(1), model.DefaultConfig())

	if !find(t, res, "high").Start.Equal(jan(1)) {
		t.Error("high-priority task should be dispatched first")
	}
}

func TestDeterminism(t *testing.T) {
	tasks := []*model.Task{
		task("a", 4, "alice", 50),
		task("b", 4, "alice", 50),
		withDeps(task("c", 2, "bob", 60), model.Dependency{TaskID: "a"}),
		&model.Task{ID: "d", DurationDays: 3, ResourceSpec: "alice|bob"},
	}
	reg := plainRegistry(t, "alice", "bob")

	first := schedule(t, tasks, reg, jan(1), model.DefaultConfig())
	for i := 0; i < 3; i++ {
		again := schedule(t, tasks, reg, jan(1), model.DefaultConfig())
		if diff := cmp.Diff(first.ScheduledTasks, again.ScheduledTasks); diff != "" {
			t.Fatalf("run %d differs (-first +again):\n%s", i, diff)
		}
	}
}
