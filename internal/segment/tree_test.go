package segment

import (
	"testing"

	"github.com/apmcore/tracecore/ext"
)

func clockAt(values ...int64) func() int64 {
	i := 0
	return func() int64 {
		v := values[i]
		if i < len(values)-1 {
			i++
		}
		return v
	}
}

// S1 10-60ms, S2 (child of S1) 20-40ms.
func TestBasicSyncTree(t *testing.T) {
	clk := clockAt(10_000_000, 20_000_000, 40_000_000, 60_000_000)
	tr := NewTree(0, clk)
	s1 := tr.Start(nil, defaultContext, ext.SegmentCustom)
	s2 := tr.Start(nil, defaultContext, ext.SegmentCustom)
	if s2.Parent != s1 {
		t.Fatalf("expected s2's parent to be s1 via the default stack")
	}
	if !tr.End(s2) {
		t.Fatal("end s2 should succeed")
	}
	if !tr.End(s1) {
		t.Fatal("end s1 should succeed")
	}
	if s1.Start != 10_000_000 || s1.Stop != 60_000_000 {
		t.Fatalf("unexpected s1 timing: %+v", s1)
	}
	if s2.Start != 20_000_000 || s2.Stop != 40_000_000 {
		t.Fatalf("unexpected s2 timing: %+v", s2)
	}
	if tr.Root().Children.Len() != 1 || tr.Root().Children.At(0) != s1 {
		t.Fatalf("expected root to have exactly s1 as child")
	}
}

func TestLIFOEndOrderRespected(t *testing.T) {
	clk := clockAt(1, 2, 3, 4, 5, 6)
	tr := NewTree(0, clk)
	a := tr.Start(nil, defaultContext, ext.SegmentCustom)
	b := tr.Start(nil, defaultContext, ext.SegmentCustom)
	c := tr.Start(nil, defaultContext, ext.SegmentCustom)
	tr.End(c)
	tr.End(b)
	tr.End(a)
	if a.Parent != tr.Root() || b.Parent != a || c.Parent != b {
		t.Fatalf("expected strict nesting a>b>c, got a.Parent=%v b.Parent=%v c.Parent=%v", a.Parent, b.Parent, c.Parent)
	}
}

func TestEndAlreadyEndedReturnsFalse(t *testing.T) {
	clk := clockAt(1, 2)
	tr := NewTree(0, clk)
	s := tr.Start(nil, defaultContext, ext.SegmentCustom)
	if !tr.End(s) {
		t.Fatal("first end should succeed")
	}
	if tr.End(s) {
		t.Fatal("second end must return false")
	}
}

func TestDiscardPromotesChildren(t *testing.T) {
	clk := clockAt(1, 2, 3, 4, 5, 6)
	tr := NewTree(0, clk)
	parent := tr.Start(nil, defaultContext, ext.SegmentCustom)
	mid := tr.Start(nil, defaultContext, ext.SegmentCustom)
	child := tr.Start(nil, defaultContext, ext.SegmentCustom)
	tr.End(child)
	tr.End(mid)
	tr.End(parent)

	before := tr.SegmentCount()
	tr.Discard(mid)
	if tr.SegmentCount() != before-1 {
		t.Fatalf("expected segment count to drop by 1 on discard")
	}
	if child.Parent != parent {
		t.Fatalf("expected child to be reparented to mid's parent, got %v", child.Parent)
	}
	if parent.Children.Len() != 1 || parent.Children.At(0) != child {
		t.Fatalf("expected parent's children to be [child] after discard")
	}
}

func TestSetParentRejectsCycle(t *testing.T) {
	clk := clockAt(1, 2, 3, 4)
	tr := NewTree(0, clk)
	a := tr.Start(nil, defaultContext, ext.SegmentCustom)
	b := tr.Start(nil, defaultContext, ext.SegmentCustom)
	tr.End(b)
	tr.End(a)
	// b is a's child; reparenting a under b would create a cycle.
	if tr.SetParent(a, b) {
		t.Fatal("expected reparenting into a descendant to be rejected")
	}
	if a.Parent != tr.Root() {
		t.Fatalf("rejected SetParent must not mutate state, got a.Parent=%v", a.Parent)
	}
}

func TestSetParentReparentsSibling(t *testing.T) {
	clk := clockAt(1, 2, 3, 4)
	tr := NewTree(0, clk)
	a := tr.Start(nil, defaultContext, ext.SegmentCustom)
	tr.End(a)
	b := tr.Start(nil, defaultContext, ext.SegmentCustom)
	tr.End(b)
	if !tr.SetParent(b, a) {
		t.Fatal("expected reparenting a non-descendant to succeed")
	}
	if b.Parent != a {
		t.Fatalf("expected b's parent to be a, got %v", b.Parent)
	}
	if tr.Root().Children.Len() != 1 {
		t.Fatalf("expected root to only have a as a child now")
	}
}

// Bounded heap eviction: max_segments=2 means 1 non-root slot.
func TestMaxSegmentsEviction(t *testing.T) {
	clk := clockAt(0, 1, 2, 10, 3, 4)
	tr := NewTree(2, clk)
	short := tr.Start(nil, defaultContext, ext.SegmentCustom) // 0-1: duration 1
	tr.End(short)
	long := tr.Start(nil, defaultContext, ext.SegmentCustom) // 2-10: duration 8
	tr.End(long)

	if tr.SegmentCount() != 2 { // root + long; short evicted
		t.Fatalf("expected segment count 2 after eviction, got %d", tr.SegmentCount())
	}
	if tr.Root().Children.Len() != 1 || tr.Root().Children.At(0) != long {
		t.Fatalf("expected only the longer segment retained")
	}
}
