package agent

import (
	"context"
	"testing"
)

type noopAdapter struct{}

func (noopAdapter) Invoke(ctx context.Context, stepID string, input map[string]string) (string, error) {
	return "", nil
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	r.Register("planner", noopAdapter{})

	if _, ok := r.Lookup("planner"); !ok {
		t.Error("registered agent not found")
	}
	if _, ok := r.Lookup("ghost"); ok {
		t.Error("unknown agent resolved")
	}
}

func TestRegistry_IDsSorted(t *testing.T) {
	r := NewRegistry()
	r.Register("reviewer", noopAdapter{})
	r.Register("executor", noopAdapter{})
	r.Register("planner", noopAdapter{})

	ids := r.IDs()
	want := []string{"executor", "planner", "reviewer"}
	if len(ids) != len(want) {
		t.Fatalf("IDs = %v", ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("IDs[%d] = %q, want %q", i, ids[i], want[i])
		}
	}
}

func TestRegistry_ReplaceAdapter(t *testing.T) {
	r := NewRegistry()
	r.Register("planner", noopAdapter{})
	second := noopAdapter{}
	r.Register("planner", second)

	if len(r.IDs()) != 1 {
		t.Errorf("re-registering duplicated entry: %v", r.IDs())
	}
}
