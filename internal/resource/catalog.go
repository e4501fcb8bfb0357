package resource

import (
	"fmt"
	"os"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/papapumpkin/pulsar/internal/calendar"
	"github.com/papapumpkin/pulsar/internal/model"
)

// DefaultCatalogPath is the conventional location of the resource catalog.
const DefaultCatalogPath = "resources.toml"

// Catalog is the on-disk TOML shape of the resource registry.
type Catalog struct {
	Resources []CatalogResource   `toml:"resources"`
	Groups    map[string][]string `toml:"groups"`
	GlobalDNS []CatalogInterval   `toml:"global_dns"`
}

// CatalogResource declares one resource.
type CatalogResource struct {
	Name string            `toml:"name"`
	DNS  []CatalogInterval `toml:"dns"`
}

// CatalogInterval is an inclusive date range in YYYY-MM-DD form.
type CatalogInterval struct {
	Start string `toml:"start"`
	End   string `toml:"end"`
}

// LoadCatalog reads a catalog file and builds the registry. A missing file
// yields an empty registry so a roadmap without resource constraints still
// schedules (everything lands on the unassigned pseudo-resource).
func LoadCatalog(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewRegistry(nil, nil, nil)
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var cat Catalog
	if err := toml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cat.Build()
}

// Build converts the on-disk shape into a validated registry.
func (cat *Catalog) Build() (*Registry, error) {
	global, err := parseIntervals(cat.GlobalDNS, "global_dns")
	if err != nil {
		return nil, err
	}
	defs := make([]Definition, 0, len(cat.Resources))
	for _, res := range cat.Resources {
		local, err := parseIntervals(res.DNS, res.Name)
		if err != nil {
			return nil, err
		}
		defs = append(defs, Definition{Name: res.Name, Unavailable: local})
	}
	return NewRegistry(defs, cat.Groups, global)
}

func parseIntervals(raw []CatalogInterval, owner string) ([]calendar.Interval, error) {
	out := make([]calendar.Interval, 0, len(raw))
	for _, r := range raw {
		start, err := parseDay(r.Start)
		if err != nil {
			return nil, fmt.Errorf("%s: dns start: %w", owner, err)
		}
		end, err := parseDay(r.End)
		if err != nil {
			return nil, fmt.Errorf("%s: dns end: %w", owner, err)
		}
		if end.Before(start) {
			return nil, fmt.Errorf("%w: %s: dns interval ends before it starts (%s > %s)", model.ErrInvalidInput, owner, r.Start, r.End)
		}
		out = append(out, calendar.Interval{Start: start, End: end})
	}
	return out, nil
}

func parseDay(s string) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid date %q", model.ErrInvalidInput, s)
	}
	return t, nil
}
