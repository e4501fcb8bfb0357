// Package sched is the scheduling service: it applies lock-file overrides,
// dispatches to the configured algorithm, and returns the uniform result.
// The four engines share one data model, so the service is a thin,
// deterministic router rather than an orchestration layer.
package sched

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/papapumpkin/pulsar/internal/critpath"
	"github.com/papapumpkin/pulsar/internal/engine"
	"github.com/papapumpkin/pulsar/internal/lockfile"
	"github.com/papapumpkin/pulsar/internal/model"
	"github.com/papapumpkin/pulsar/internal/resource"
	"github.com/papapumpkin/pulsar/internal/solver"
	"github.com/papapumpkin/pulsar/internal/trace"
)

// ErrUnknownAlgorithm rejects configuration naming no known engine.
var ErrUnknownAlgorithm = errors.New("unknown scheduling algorithm")

// Request is the complete input of one scheduling run.
type Request struct {
	Tasks     []*model.Task
	Registry  *resource.Registry
	Current   time.Time
	Algorithm model.Algorithm
	Config    model.Config
	Completed map[string]bool
	Lock      *lockfile.Lock
	Tracer    *trace.Emitter
}

// algorithm is the interface every engine satisfies.
type algorithm interface {
	Schedule() (*model.Result, error)
}

// Run executes one scheduling run: lock overrides first, then the chosen
// engine, then annotation merge. Scheduled tasks, annotations and warnings
// are a pure function of the request; the solver's solve_time_seconds
// metadata entry is wall-clock and differs between runs.
func Run(req Request) (*model.Result, error) {
	req.Tracer.Emit(trace.KindRunStart, "", map[string]any{
		"algorithm": string(req.Algorithm),
		"tasks":     len(req.Tasks),
	})

	tasks, lockWarnings, locked := applyLock(req.Tasks, req.Lock)

	alg, err := newAlgorithm(req, tasks)
	if err != nil {
		return nil, err
	}
	res, err := alg.Schedule()
	if err != nil {
		return nil, err
	}

	res.Warnings = append(res.Warnings, lockWarnings...)
	for id := range locked {
		if a, ok := res.Annotations[id]; ok {
			a.WasFixed = true
		}
	}

	req.Tracer.Emit(trace.KindRunDone, "", map[string]any{
		"scheduled": len(res.ScheduledTasks),
		"warnings":  len(res.Warnings),
	})
	return res, nil
}

// newAlgorithm is the dispatch table. Engines implement a common interface
// so selection happens once, before any scheduling work.
func newAlgorithm(req Request, tasks []*model.Task) (algorithm, error) {
	switch req.Algorithm {
	case model.AlgorithmParallelSGS, "":
		return engine.New(tasks, req.Current, req.Config, req.Registry, req.Completed, req.Tracer), nil
	case model.AlgorithmBoundedRollout:
		return engine.NewRollout(tasks, req.Current, req.Config, req.Registry, req.Completed, req.Tracer), nil
	case model.AlgorithmCriticalPath:
		return critpath.New(tasks, req.Current, req.Config, req.Registry, req.Completed, req.Tracer), nil
	case model.AlgorithmSolver:
		return solver.New(tasks, req.Current, req.Config, req.Registry, req.Completed, req.Tracer), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, req.Algorithm)
	}
}

// applyLock rewrites locked tasks with hard dates and pre-assigned
// resources. The input task list is never mutated; overridden tasks are
// shallow copies. Lock entries naming unknown tasks are dropped with a
// warning.
func applyLock(tasks []*model.Task, lock *lockfile.Lock) ([]*model.Task, []string, map[string]bool) {
	if lock == nil || len(lock.Tasks) == 0 {
		return tasks, nil, nil
	}

	known := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		known[t.ID] = true
	}

	var warnings []string
	locked := make(map[string]bool, len(lock.Tasks))
	out := make([]*model.Task, 0, len(tasks))
	for _, t := range tasks {
		tl, ok := lock.Tasks[t.ID]
		if !ok {
			out = append(out, t)
			continue
		}
		cp := *t
		start, end := tl.Start, tl.End
		cp.StartOn, cp.EndOn = &start, &end
		if len(tl.Resources) > 0 {
			cp.Resources = append([]model.Allocation{}, tl.Resources...)
			cp.ResourceSpec = ""
		}
		out = append(out, &cp)
		locked[t.ID] = true
	}
	for id := range lock.Tasks {
		if !known[id] {
			warnings = append(warnings, fmt.Sprintf("lock entry for unknown task %q ignored", id))
		}
	}
	sort.Strings(warnings)
	return out, warnings, locked
}
