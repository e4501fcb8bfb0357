// Package lockfile persists a scheduling run as a YAML lock: a mapping of
// task id to its pinned window and resource assignments. A later run loads
// the lock and treats every entry as hard fixed dates, which keeps an
// already-communicated plan stable while new work schedules around it.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"

	"github.com/papapumpkin/pulsar/internal/model"
)

// Version is the only lock format this build reads and writes.
const Version = 1

// DefaultPath is the conventional lock location.
const DefaultPath = "roadmap.lock.yaml"

// ErrVersion is returned for a lock written by an unsupported format.
var ErrVersion = errors.New("unsupported lock file version")

// ErrMissingDates is returned when a lock entry lacks a start or end date.
var ErrMissingDates = errors.New("lock entry missing start or end date")

// TaskLock pins one task.
type TaskLock struct {
	Start     time.Time
	End       time.Time
	Resources []model.Allocation
}

// Lock is the parsed lock file.
type Lock struct {
	Tasks map[string]TaskLock
}

// file mirrors the on-disk YAML shape.
type file struct {
	Version int              `yaml:"version"`
	Locks   map[string]entry `yaml:"locks"`
}

type entry struct {
	StartDate string   `yaml:"start_date"`
	EndDate   string   `yaml:"end_date"`
	Resources []string `yaml:"resources,omitempty"`
}

const dayFormat = "2006-01-02"

// Read loads a lock file. A missing file returns nil and no error, so
// callers can detect that no lock has been written yet.
func Read(path string) (*Lock, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if f.Version != Version {
		return nil, fmt.Errorf("%w: %d", ErrVersion, f.Version)
	}

	lock := &Lock{Tasks: make(map[string]TaskLock, len(f.Locks))}
	for id, e := range f.Locks {
		if e.StartDate == "" || e.EndDate == "" {
			return nil, fmt.Errorf("%w: task %q", ErrMissingDates, id)
		}
		start, err := time.ParseInLocation(dayFormat, e.StartDate, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("task %q: invalid start_date %q", id, e.StartDate)
		}
		end, err := time.ParseInLocation(dayFormat, e.EndDate, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("task %q: invalid end_date %q", id, e.EndDate)
		}
		resources, err := parseResources(id, e.Resources)
		if err != nil {
			return nil, err
		}
		lock.Tasks[id] = TaskLock{Start: start, End: end, Resources: resources}
	}
	return lock, nil
}

// parseResources decodes "name" or "name:allocation" entries; a bare name
// defaults to a full allocation.
func parseResources(taskID string, raw []string) ([]model.Allocation, error) {
	out := make([]model.Allocation, 0, len(raw))
	for _, r := range raw {
		name, fracStr, hasFrac := strings.Cut(r, ":")
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("task %q: empty resource in lock", taskID)
		}
		frac := 1.0
		if hasFrac {
			f, err := strconv.ParseFloat(strings.TrimSpace(fracStr), 64)
			if err != nil || f <= 0 || f > 1 {
				return nil, fmt.Errorf("task %q: invalid allocation %q", taskID, r)
			}
			frac = f
		}
		out = append(out, model.Allocation{Resource: name, Fraction: frac})
	}
	return out, nil
}

// Write persists a scheduling result as a lock. Tasks without estimated
// dates are skipped; when only is non-nil, only the listed ids are kept.
func Write(path string, res *model.Result, only map[string]bool) error {
	f := file{Version: Version, Locks: make(map[string]entry)}

	ids := make([]string, 0, len(res.Annotations))
	for id := range res.Annotations {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if only != nil && !only[id] {
			continue
		}
		a := res.Annotations[id]
		if a.EstimatedStart == nil || a.EstimatedEnd == nil {
			continue
		}
		e := entry{
			StartDate: a.EstimatedStart.Format(dayFormat),
			EndDate:   a.EstimatedEnd.Format(dayFormat),
		}
		for _, alloc := range a.ResourceAssignments {
			e.Resources = append(e.Resources, fmt.Sprintf("%s:%.1f", alloc.Resource, alloc.Fraction))
		}
		f.Locks[id] = e
	}

	data, err := yaml.Marshal(&f)
	if err != nil {
		return fmt.Errorf("marshaling lock: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
