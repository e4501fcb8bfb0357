package sched

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/papapumpkin/pulsar/internal/lockfile"
	"github.com/papapumpkin/pulsar/internal/model"
	"github.com/papapumpkin/pulsar/internal/resource"
)

func jan(d int) time.Time { return model.Date(2025, time.January, d) }

func task(id string, duration float64, res string, priority int) *model.Task {
	t := &model.Task{ID: id, DurationDays: duration, Priority: &priority}
	if res != "" {
		t.Resources = []model.Allocation{{Resource: res, Fraction: 1.0}}
	}
	return t
}

func plainRegistry(t *testing.T, names ...string) *resource.Registry {
	t.Helper()
	defs := make([]resource.Definition, len(names))
	for i, n := range names {
		defs[i] = resource.Definition{Name: n}
	}
	reg, err := resource.NewRegistry(defs, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	return reg
}

func request(tasks []*model.Task, reg *resource.Registry, alg model.Algorithm) Request {
	return Request{
		Tasks:     tasks,
		Registry:  reg,
		Current:   jan(1),
		Algorithm: alg,
		Config:    model.DefaultConfig(),
	}
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

func TestDispatchEachAlgorithm(t *testing.T) {
	for _, alg := range []model.Algorithm{
		model.AlgorithmParallelSGS,
		model.AlgorithmBoundedRollout,
		model.AlgorithmCriticalPath,
		model.AlgorithmSolver,
	} {
		t.Run(string(alg), func(t *testing.T) {
			tasks := []*model.Task{task("a", 3, "alice", 50)}
			res, err := Run(request(tasks, plainRegistry(t, "alice"), alg))
			if err != nil {
				t.Fatal(err)
			}
			if res.Metadata["algorithm"] != string(alg) {
				t.Errorf("algorithm = %q, want %q", res.Metadata["algorithm"], alg)
			}
			if a := find(t, res, "a"); !a.Start.Equal(jan(1)) {
				t.Errorf("a start = %v", a.Start)
			}
		})
	}
}

func TestUnknownAlgorithmFailsFast(t *testing.T) {
	tasks := []*model.Task{task("a", 3, "alice", 50)}
	_, err := Run(request(tasks, plainRegistry(t, "alice"), "simulated_annealing"))
	if !errors.Is(err, ErrUnknownAlgorithm) {
		t.Fatalf("err = %v, want ErrUnknownAlgorithm", err)
	}
}

func TestLockPinsTask(t *testing.T) {
	tasks := []*model.Task{
		task("pinned", 3, "alice", 50),
		task("free", 3, "alice", 90),
	}
	lock := &lockfile.Lock{Tasks: map[string]lockfile.TaskLock{
		"pinned": {
			Start:     jan(10),
			End:       jan(13),
			Resources: []model.Allocation{{Resource: "alice", Fraction: 1.0}},
		},
	}}

	req := request(tasks, plainRegistry(t, "alice"), model.AlgorithmParallelSGS)
	req.Lock = lock
	res, err := Run(req)
	if err != nil {
		t.Fatal(err)
	}

	p := find(t, res, "pinned")
	if !p.Start.Equal(jan(10)) || !p.End.Equal(jan(13)) {
		t.Errorf("pinned = [%v, %v), want the locked window", p.Start, p.End)
	}
	if !res.Annotations["pinned"].WasFixed {
		t.Error("locked task should carry was_fixed")
	}
	// The other task schedules around the pinned window.
	f := find(t, res, "free")
	if f.Start.Before(p.End) && p.Start.Before(f.End) {
		t.Errorf("free [%v, %v) overlaps the pinned window", f.Start, f.End)
	}
}

func TestLockDoesNotMutateInputTasks(t *testing.T) {
	pinned := task("pinned", 3, "alice", 50)
	lock := &lockfile.Lock{Tasks: map[string]lockfile.TaskLock{
		"pinned": {Start: jan(10), End: jan(13)},
	}}

	req := request([]*model.Task{pinned}, plainRegistry(t, "alice"), model.AlgorithmParallelSGS)
	req.Lock = lock
	if _, err := Run(req); err != nil {
		t.Fatal(err)
	}

	if pinned.StartOn != nil || pinned.EndOn != nil {
		t.Error("input task was mutated by lock application")
	}
}

func TestLockUnknownTaskWarns(t *testing.T) {
	tasks := []*model.Task{task("a", 3, "alice", 50)}
	lock := &lockfile.Lock{Tasks: map[string]lockfile.TaskLock{
		"ghost": {Start: jan(1), End: jan(2)},
	}}

	req := request(tasks, plainRegistry(t, "alice"), model.AlgorithmParallelSGS)
	req.Lock = lock
	res, err := Run(req)
	if err != nil {
		t.Fatal(err)
	}

	found := false
	for _, w := range res.Warnings {
		if strings.Contains(w, "ghost") {
			found = true
		}
	}
	if !found {
		t.Errorf("warnings = %v, want one naming the ghost entry", res.Warnings)
	}
	if len(res.ScheduledTasks) != 1 {
		t.Errorf("scheduling should proceed despite the dropped entry")
	}
}

func TestOutputSortedByStartThenID(t *testing.T) {
	tasks := []*model.Task{
		task("zebra", 2, "alice", 50),
		task("apple", 2, "bob", 50),
		task("mango", 2, "carol", 50),
	}
	res, err := Run(request(tasks, plainRegistry(t, "alice", "bob", "carol"), model.AlgorithmParallelSGS))
	if err != nil {
		t.Fatal(err)
	}

	var ids []string
	for _, st := range res.ScheduledTasks {
		ids = append(ids, st.TaskID)
	}
	// All start Jan 1, so the order is purely lexicographic.
	if diff := cmp.Diff([]string{"apple", "mango", "zebra"}, ids); diff != "" {
		t.Errorf("output order:\n%s", diff)
	}
}

func TestCompletedTasksExcludedFromResult(t *testing.T) {
	tasks := []*model.Task{
		task("done", 5, "alice", 50),
		task("next", 2, "alice", 50),
	}
	req := request(tasks, plainRegistry(t, "alice"), model.AlgorithmParallelSGS)
	req.Completed = map[string]bool{"done": true}
	res, err := Run(req)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.ScheduledTasks) != 1 || res.ScheduledTasks[0].TaskID != "next" {
		t.Errorf("scheduled = %v", res.ScheduledTasks)
	}
}
