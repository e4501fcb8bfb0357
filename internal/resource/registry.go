// Package resource holds the resource registry: the canonical resource
// ordering, group aliases, and per-resource unavailability merged from
// resource-local and global do-not-schedule sources. The registry ordering
// is the deterministic tiebreak for every auto-assignment decision.
package resource

import (
	"errors"
	"fmt"
	"strings"

	"github.com/papapumpkin/pulsar/internal/calendar"
	"github.com/papapumpkin/pulsar/internal/model"
)

// ErrUnknownResource is returned when a spec or group references a resource
// that is not in the registry.
var ErrUnknownResource = errors.New("unknown resource")

// ErrUnknownGroup is returned when a spec names a group that is not defined.
var ErrUnknownGroup = errors.New("unknown resource group")

// Wildcard expands to every resource in registry order.
const Wildcard = "*"

// Definition declares one resource and its local unavailability.
type Definition struct {
	Name        string
	Unavailable []calendar.Interval
}

// Registry is the immutable resource catalog for a scheduling run.
type Registry struct {
	order     []string
	groups    map[string][]string
	global    []calendar.Interval
	calendars map[string]*calendar.Calendar
}

// NewRegistry builds a registry from definitions, group aliases, and global
// DNS intervals. Group members must name defined resources; a violation
// fails the load. Each resource's calendar is the re-sorted, merged union
// of its local intervals and the global ones.
func NewRegistry(defs []Definition, groups map[string][]string, global []calendar.Interval) (*Registry, error) {
	r := &Registry{
		groups:    make(map[string][]string, len(groups)),
		global:    global,
		calendars: make(map[string]*calendar.Calendar, len(defs)+1),
	}
	for _, d := range defs {
		if d.Name == "" {
			return nil, fmt.Errorf("%w: resource with empty name", model.ErrInvalidInput)
		}
		if _, dup := r.calendars[d.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate resource %q", model.ErrInvalidInput, d.Name)
		}
		r.order = append(r.order, d.Name)
		union := append(append([]calendar.Interval{}, d.Unavailable...), global...)
		r.calendars[d.Name] = calendar.New(union)
	}
	for name, members := range groups {
		for _, m := range members {
			if _, ok := r.calendars[m]; !ok {
				return nil, fmt.Errorf("%w: group %q references %q", ErrUnknownResource, name, m)
			}
		}
		r.groups[name] = append([]string{}, members...)
	}
	// The reserved pseudo-resource observes only global holidays.
	if _, ok := r.calendars[model.UnassignedResource]; !ok {
		r.calendars[model.UnassignedResource] = calendar.New(global)
	}
	return r, nil
}

// Order returns the canonical resource ordering from the catalog.
func (r *Registry) Order() []string {
	return r.order
}

// Has reports whether name is a defined resource (or the reserved
// unassigned pseudo-resource).
func (r *Registry) Has(name string) bool {
	_, ok := r.calendars[name]
	return ok
}

// Calendar returns the merged unavailability calendar for a resource.
// Unknown names get an empty calendar with only the global intervals, so
// engines can treat ad-hoc names uniformly.
func (r *Registry) Calendar(name string) *calendar.Calendar {
	if c, ok := r.calendars[name]; ok {
		return c
	}
	return calendar.New(r.global)
}

// Expand resolves a resource spec into an ordered candidate list:
// "*" yields the registry order, "a|b|c" preserves the user's order, a
// group alias yields the group members, and a bare name yields itself.
func (r *Registry) Expand(spec string) ([]string, error) {
	spec = strings.TrimSpace(spec)
	switch {
	case spec == Wildcard:
		return append([]string{}, r.order...), nil
	case strings.Contains(spec, "|"):
		parts := strings.Split(spec, "|")
		names := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if !r.Has(p) {
				return nil, fmt.Errorf("%w: %q in spec %q", ErrUnknownResource, p, spec)
			}
			names = append(names, p)
		}
		return names, nil
	default:
		if members, ok := r.groups[spec]; ok {
			return append([]string{}, members...), nil
		}
		if r.Has(spec) {
			return []string{spec}, nil
		}
		return nil, fmt.Errorf("%w: %q", ErrUnknownGroup, spec)
	}
}
