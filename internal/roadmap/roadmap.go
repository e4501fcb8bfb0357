// Package roadmap loads the YAML feature map and converts it into the
// validated task list the scheduling service consumes. Tasks are declared
// as a list, not a map, so input order — the deterministic tiebreak of the
// whole system — survives parsing.
package roadmap

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"

	"github.com/papapumpkin/pulsar/internal/model"
)

// File is the on-disk roadmap shape.
type File struct {
	CurrentDate string     `yaml:"current_date"`
	Algorithm   string     `yaml:"algorithm,omitempty"`
	Tasks       []TaskSpec `yaml:"tasks"`
	Completed   []string   `yaml:"completed,omitempty"`
}

// TaskSpec declares one roadmap task.
type TaskSpec struct {
	ID           string   `yaml:"id"`
	Title        string   `yaml:"title,omitempty"`
	Effort       string   `yaml:"effort"`
	Resources    []string `yaml:"resources,omitempty"`
	ResourceSpec string   `yaml:"resource_spec,omitempty"`
	Dependencies []string `yaml:"dependencies,omitempty"`
	StartAfter   string   `yaml:"start_after,omitempty"`
	EndBefore    string   `yaml:"end_before,omitempty"`
	StartOn      string   `yaml:"start_on,omitempty"`
	EndOn        string   `yaml:"end_on,omitempty"`
	Priority     *int     `yaml:"priority,omitempty"`
}

// Roadmap is the parsed and converted result.
type Roadmap struct {
	Current   time.Time
	Algorithm model.Algorithm
	Tasks     []*model.Task
	Completed map[string]bool
	// Warnings collects non-fatal issues, e.g. unparsable effort strings
	// that fell back to the one-week default.
	Warnings []string
}

// Load reads and converts a roadmap file.
func Load(path string) (*Roadmap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return f.Convert()
}

// Convert turns the raw file into model tasks, failing fast on shape
// errors per the input contract.
func (f *File) Convert() (*Roadmap, error) {
	rm := &Roadmap{
		Algorithm: model.Algorithm(f.Algorithm),
		Completed: make(map[string]bool, len(f.Completed)),
	}
	if f.CurrentDate != "" {
		d, err := parseDay(f.CurrentDate)
		if err != nil {
			return nil, fmt.Errorf("current_date: %w", err)
		}
		rm.Current = d
	} else {
		rm.Current = model.Midnight(time.Now())
	}
	for _, id := range f.Completed {
		rm.Completed[id] = true
	}

	for _, spec := range f.Tasks {
		t, warnings, err := spec.toTask()
		if err != nil {
			return nil, err
		}
		rm.Tasks = append(rm.Tasks, t)
		rm.Warnings = append(rm.Warnings, warnings...)
	}
	if err := model.ValidateTasks(rm.Tasks); err != nil {
		return nil, err
	}
	return rm, nil
}

func (spec *TaskSpec) toTask() (*model.Task, []string, error) {
	if spec.ID == "" {
		return nil, nil, fmt.Errorf("%w: task with no id", model.ErrInvalidInput)
	}
	var warnings []string

	duration, ok := model.ParseEffort(spec.Effort)
	if !ok {
		warnings = append(warnings, fmt.Sprintf("task %q: invalid effort %q, using 1 week", spec.ID, spec.Effort))
	}
	t := &model.Task{
		ID:           spec.ID,
		DurationDays: duration,
		ResourceSpec: spec.ResourceSpec,
		Priority:     spec.Priority,
	}

	for _, r := range spec.Resources {
		alloc, err := parseAllocation(spec.ID, r)
		if err != nil {
			return nil, nil, err
		}
		t.Resources = append(t.Resources, alloc)
	}
	for _, d := range spec.Dependencies {
		dep, err := model.ParseDependencySpec(d)
		if err != nil {
			return nil, nil, fmt.Errorf("task %q: %w", spec.ID, err)
		}
		t.Dependencies = append(t.Dependencies, dep)
	}

	var err error
	if t.StartAfter, err = optionalDay(spec.ID, "start_after", spec.StartAfter); err != nil {
		return nil, nil, err
	}
	if t.EndBefore, err = optionalDay(spec.ID, "end_before", spec.EndBefore); err != nil {
		return nil, nil, err
	}
	if t.StartOn, err = optionalDay(spec.ID, "start_on", spec.StartOn); err != nil {
		return nil, nil, err
	}
	if t.EndOn, err = optionalDay(spec.ID, "end_on", spec.EndOn); err != nil {
		return nil, nil, err
	}
	return t, warnings, nil
}

// parseAllocation decodes "name" or "name:0.5".
func parseAllocation(taskID, raw string) (model.Allocation, error) {
	alloc := model.Allocation{Fraction: 1.0}
	name, fracStr, hasFrac := strings.Cut(raw, ":")
	if hasFrac {
		f, err := strconv.ParseFloat(strings.TrimSpace(fracStr), 64)
		if err != nil {
			return alloc, fmt.Errorf("%w: task %q: allocation %q", model.ErrInvalidInput, taskID, raw)
		}
		alloc.Fraction = f
	}
	if name == "" {
		return alloc, fmt.Errorf("%w: task %q: empty resource name", model.ErrInvalidInput, taskID)
	}
	alloc.Resource = name
	return alloc, nil
}

func optionalDay(taskID, field, raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	d, err := parseDay(raw)
	if err != nil {
		return nil, fmt.Errorf("task %q: %s: %w", taskID, field, err)
	}
	return &d, nil
}

func parseDay(s string) (time.Time, error) {
	d, err := time.ParseInLocation("2006-01-02", s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid date %q", model.ErrInvalidInput, s)
	}
	return d, nil
}
