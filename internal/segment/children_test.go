package segment

import "testing"

func TestChildListInlineThenOverflow(t *testing.T) {
	var c ChildList
	segs := make([]*Segment, 6)
	for i := range segs {
		segs[i] = &Segment{}
		c.Push(segs[i])
	}
	if c.Len() != 6 {
		t.Fatalf("expected 6 children, got %d", c.Len())
	}
	for i, s := range segs {
		if c.At(i) != s {
			t.Fatalf("order broken at index %d after overflow promotion", i)
		}
	}
}

func TestChildListRemoveAtPreservesOrder(t *testing.T) {
	var c ChildList
	a, b, d := &Segment{}, &Segment{}, &Segment{}
	c.Push(a)
	c.Push(b)
	c.Push(d)
	c.RemoveAt(1)
	if c.Len() != 2 || c.At(0) != a || c.At(1) != d {
		t.Fatalf("expected [a,d] after removing b, got len=%d", c.Len())
	}
}

func TestChildListRemoveNotPresent(t *testing.T) {
	var c ChildList
	a := &Segment{}
	c.Push(a)
	if c.Remove(&Segment{}) {
		t.Fatal("expected Remove of an absent segment to report false")
	}
	if !c.Remove(a) {
		t.Fatal("expected Remove of a present segment to report true")
	}
	if c.Len() != 0 {
		t.Fatalf("expected empty list after removing only child")
	}
}

func TestChildListInsertSliceAtSplicesInOrder(t *testing.T) {
	var c ChildList
	a, d := &Segment{}, &Segment{}
	c.Push(a)
	c.Push(d)
	x, y := &Segment{}, &Segment{}
	c.InsertSliceAt(1, []*Segment{x, y})
	if c.Len() != 4 || c.At(0) != a || c.At(1) != x || c.At(2) != y || c.At(3) != d {
		t.Fatalf("expected [a,x,y,d], got len=%d", c.Len())
	}
}
