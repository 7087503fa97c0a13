package segment

import "testing"

func TestIntervalSetMergesOverlapping(t *testing.T) {
	var s IntervalSet
	s.Add(10, 20)
	s.Add(15, 30)
	s.Add(50, 60)
	if got := s.UnionLength(0, 100); got != 30 {
		t.Fatalf("expected union length 30 (10-30 merged, plus 50-60), got %d", got)
	}
}

func TestIntervalSetAdjacentTouchesMerge(t *testing.T) {
	var s IntervalSet
	s.Add(0, 10)
	s.Add(10, 20)
	if len(s.intervals) != 1 {
		t.Fatalf("expected touching intervals to merge into one, got %d intervals", len(s.intervals))
	}
	if got := s.UnionLength(0, 20); got != 20 {
		t.Fatalf("expected union length 20, got %d", got)
	}
}

func TestIntervalSetUnionLengthClampsToBounds(t *testing.T) {
	var s IntervalSet
	s.Add(-10, 200)
	if got := s.UnionLength(0, 50); got != 50 {
		t.Fatalf("expected clamp to [0,50] => 50, got %d", got)
	}
}

func TestExclusiveBasic(t *testing.T) {
	// Segment spans 10-60 (duration 50); one same-context child spans 20-40.
	excl := Exclusive(10, 60, [][2]int64{{20, 40}})
	if excl != 30 {
		t.Fatalf("expected exclusive time 30, got %d", excl)
	}
}

func TestExclusiveChildrenCanOverlap(t *testing.T) {
	excl := Exclusive(0, 100, [][2]int64{{10, 50}, {40, 60}})
	if excl != 50 { // covered = [10,60) = 50; duration 100-50=50
		t.Fatalf("expected exclusive time 50 with overlapping children merged, got %d", excl)
	}
}

func TestExclusiveChildOutsideParentBoundsClamped(t *testing.T) {
	excl := Exclusive(10, 20, [][2]int64{{0, 15}})
	if excl != 5 { // covered clamped to [10,15) = 5; duration 10 - 5 = 5
		t.Fatalf("expected exclusive time 5, got %d", excl)
	}
}

func TestSameContextChildIntervalsSkipsDifferentContextAndOpen(t *testing.T) {
	parent := &Segment{Start: 0, Stop: 100, AsyncContextIndex: defaultContext}
	sameCtxClosed := &Segment{Start: 10, Stop: 20, AsyncContextIndex: defaultContext}
	differentCtx := &Segment{Start: 30, Stop: 40, AsyncContextIndex: 1}
	stillOpen := &Segment{Start: 50, Stop: 0, AsyncContextIndex: defaultContext}
	parent.Children.Push(sameCtxClosed)
	parent.Children.Push(differentCtx)
	parent.Children.Push(stillOpen)

	got := SameContextChildIntervals(parent)
	if len(got) != 1 || got[0] != [2]int64{10, 20} {
		t.Fatalf("expected only the closed same-context child, got %v", got)
	}
}

func TestSameContextDescendantIntervalsWalksAllDepths(t *testing.T) {
	root := &Segment{Start: 0, Stop: 50, AsyncContextIndex: defaultContext}
	a := &Segment{Start: 10, Stop: 40, AsyncContextIndex: 1, Parent: root}
	b := &Segment{Start: 20, Stop: 40, AsyncContextIndex: defaultContext, Parent: a}
	root.Children.Push(a)
	a.Children.Push(b)

	got := SameContextDescendantIntervals(root)
	if len(got) != 1 || got[0] != [2]int64{20, 40} {
		t.Fatalf("expected b's interval to surface despite being nested two levels under an off-context child, got %v", got)
	}
}
