package model

import (
	"math"
	"slices"
	"testing"
)

func TestNewQuantPlanPrecedence(t *testing.T) {
	t.Parallel()
	plan := NewQuantPlan(8, 4, 2, 1)

	want := map[int]Quant{0: QuantSF4, 1: QuantNF4, 2: QuantInt8, 3: QuantInt8}
	for l, q := range want {
		if got := plan.For(l); got != q {
			t.Fatalf("layer %d: want %s, got %s", l, q, got)
		}
	}
	if got := plan.For(4); got != QuantNone {
		t.Fatalf("layer 4: want none, got %s", got)
	}
	if got := plan.Layers(); !slices.Equal(got, []int{0, 1, 2, 3}) {
		t.Fatalf("layers: got %v", got)
	}
}

func TestQuantPlanClip(t *testing.T) {
	t.Parallel()
	plan := NewQuantPlan(10, 10, 0, 0).Clip(3)
	if len(plan) != 3 {
		t.Fatalf("expected 3 layers after clip, got %d", len(plan))
	}
	var nilPlan QuantPlan
	if nilPlan.For(0) != QuantNone {
		t.Fatalf("nil plan should report none")
	}
}

func TestNewQuantPlanCapsAtLayerCount(t *testing.T) {
	t.Parallel()
	plan := NewQuantPlan(2, math.MaxInt32, math.MaxInt32, 1)
	want := map[int]Quant{0: QuantSF4, 1: QuantNF4}
	if len(plan) != len(want) {
		t.Fatalf("plan = %v, want %v", plan, want)
	}
	for l, q := range want {
		if plan.For(l) != q {
			t.Fatalf("layer %d: want %s, got %s", l, q, plan.For(l))
		}
	}
	if got := NewQuantPlan(0, 5, 5, 5); len(got) != 0 {
		t.Fatalf("zero layers: got %v", got)
	}
	if got := NewQuantPlan(4, -1, 0, 0); len(got) != 0 {
		t.Fatalf("negative count: got %v", got)
	}
}

func TestSupportsHooks(t *testing.T) {
	t.Parallel()
	want := map[Version]bool{V4: false, V5: false, V6: true, V7: true}
	for v, ok := range want {
		if v.SupportsHooks() != ok {
			t.Fatalf("%s.SupportsHooks() = %v", v, !ok)
		}
	}
}

func TestParseVersion(t *testing.T) {
	t.Parallel()
	for _, s := range []string{"4", "v5", "V6", "7"} {
		v, err := ParseVersion(s)
		if err != nil || !v.Valid() {
			t.Fatalf("ParseVersion(%q) = %v, %v", s, v, err)
		}
	}
	if _, err := ParseVersion("v8"); err == nil {
		t.Fatalf("expected error for v8")
	}
}
