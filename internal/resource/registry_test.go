package resource

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/papapumpkin/pulsar/internal/calendar"
	"github.com/papapumpkin/pulsar/internal/model"
)

func jan(d int) time.Time { return model.Date(2025, time.January, d) }

func mustRegistry(t *testing.T, defs []Definition, groups map[string][]string, global []calendar.Interval) *Registry {
	t.Helper()
	r, err := NewRegistry(defs, groups, global)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestOrderPreservesCatalogOrder(t *testing.T) {
	r := mustRegistry(t, []Definition{{Name: "zara"}, {Name: "alice"}, {Name: "bob"}}, nil, nil)
	want := []string{"zara", "alice", "bob"}
	if diff := cmp.Diff(want, r.Order()); diff != "" {
		t.Errorf("Order() mismatch:\n%s", diff)
	}
}

func TestExpandWildcard(t *testing.T) {
	r := mustRegistry(t, []Definition{{Name: "b"}, {Name: "a"}}, nil, nil)
	got, err := r.Expand("*")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"b", "a"}, got); diff != "" {
		t.Errorf("Expand(*):\n%s", diff)
	}
}

func TestExpandPipeListPreservesUserOrder(t *testing.T) {
	r := mustRegistry(t, []Definition{{Name: "a"}, {Name: "b"}, {Name: "c"}}, nil, nil)
	got, err := r.Expand("c|a")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"c", "a"}, got); diff != "" {
		t.Errorf("Expand(c|a):\n%s", diff)
	}
}

func TestExpandPipeListUnknownName(t *testing.T) {
	r := mustRegistry(t, []Definition{{Name: "a"}}, nil, nil)
	if _, err := r.Expand("a|ghost"); !errors.Is(err, ErrUnknownResource) {
		t.Fatalf("err = %v, want ErrUnknownResource", err)
	}
}

func TestExpandGroupAlias(t *testing.T) {
	r := mustRegistry(t,
		[]Definition{{Name: "a"}, {Name: "b"}},
		map[string][]string{"backend": {"b", "a"}}, nil)
	got, err := r.Expand("backend")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"b", "a"}, got); diff != "" {
		t.Errorf("Expand(backend):\n%s", diff)
	}
}

func TestExpandBareName(t *testing.T) {
	r := mustRegistry(t, []Definition{{Name: "a"}}, nil, nil)
	got, err := r.Expand("a")
	if err != nil || len(got) != 1 || got[0] != "a" {
		t.Fatalf("Expand(a) = %v, %v", got, err)
	}
}

func TestExpandUnknownGroupFails(t *testing.T) {
	r := mustRegistry(t, []Definition{{Name: "a"}}, nil, nil)
	if _, err := r.Expand("ghosts"); !errors.Is(err, ErrUnknownGroup) {
		t.Fatalf("err = %v, want ErrUnknownGroup", err)
	}
}

func TestGroupReferencingUndefinedResourceFailsLoad(t *testing.T) {
	_, err := NewRegistry(
		[]Definition{{Name: "a"}},
		map[string][]string{"team": {"a", "ghost"}}, nil)
	if !errors.Is(err, ErrUnknownResource) {
		t.Fatalf("err = %v, want ErrUnknownResource", err)
	}
}

func TestCalendarMergesLocalAndGlobalDNS(t *testing.T) {
	r := mustRegistry(t,
		[]Definition{{
			Name:        "alice",
			Unavailable: []calendar.Interval{{Start: jan(20), End: jan(25)}},
		}},
		nil,
		[]calendar.Interval{{Start: jan(1), End: jan(3)}})

	cal := r.Calendar("alice")
	if !cal.Unavailable(jan(2)) {
		t.Error("global holiday should apply to alice")
	}
	if !cal.Unavailable(jan(22)) {
		t.Error("local vacation should apply to alice")
	}
	if cal.Unavailable(jan(10)) {
		t.Error("Jan 10 should be free")
	}
}

func TestUnassignedPseudoResourceExists(t *testing.T) {
	r := mustRegistry(t, nil, nil, []calendar.Interval{{Start: jan(1), End: jan(2)}})
	if !r.Has(model.UnassignedResource) {
		t.Fatal("registry should always carry the unassigned pseudo-resource")
	}
	if !r.Calendar(model.UnassignedResource).Unavailable(jan(1)) {
		t.Error("global holidays apply to the unassigned pseudo-resource")
	}
}

func TestDuplicateResourceRejected(t *testing.T) {
	_, err := NewRegistry([]Definition{{Name: "a"}, {Name: "a"}}, nil, nil)
	if err == nil {
		t.Fatal("duplicate resource should fail the load")
	}
}
