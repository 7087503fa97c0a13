package heap

import (
	"math/rand"
	"sort"
	"testing"
)

func intLess(a, b int) bool { return a < b }

func TestUnboundedMinMax(t *testing.T) {
	h := New(0, intLess)
	vals := []int{5, 1, 9, 3, 7, 2, 8, 4, 6, 0}
	for _, v := range vals {
		_, _, ok := h.Insert(v)
		if !ok {
			t.Fatalf("unbounded insert must always succeed")
		}
	}
	if got, ok := h.PeekMin(); !ok || got != 0 {
		t.Fatalf("expected min 0, got %d", got)
	}
	if got, ok := h.PeekMax(); !ok || got != 9 {
		t.Fatalf("expected max 9, got %d", got)
	}

	var out []int
	for h.Len() > 0 {
		v, _ := h.PopMin()
		out = append(out, v)
	}
	if !sort.IntsAreSorted(out) {
		t.Fatalf("pop-min sequence not sorted: %v", out)
	}
	if len(out) != len(vals) {
		t.Fatalf("expected %d elements, got %d", len(vals), len(out))
	}
}

func TestBoundedEviction(t *testing.T) {
	h := New(3, intLess)
	for _, v := range []int{1, 2, 3} {
		_, evicted, ok := h.Insert(v)
		if evicted || !ok {
			t.Fatalf("filling to capacity should not evict")
		}
	}
	// 0 is smaller than everything resident: rejected.
	evictedValue, evicted, ok := h.Insert(0)
	if !evicted || ok || evictedValue != 0 {
		t.Fatalf("expected 0 to be rejected outright, got evicted=%v ok=%v val=%v", evicted, ok, evictedValue)
	}
	if h.Len() != 3 {
		t.Fatalf("heap size must remain at bound")
	}
	// 10 beats the current min (1): evicts it.
	evictedValue, evicted, ok = h.Insert(10)
	if !evicted || !ok || evictedValue != 1 {
		t.Fatalf("expected eviction of 1, got evicted=%v ok=%v val=%v", evicted, ok, evictedValue)
	}
	min, _ := h.PeekMin()
	if min != 2 {
		t.Fatalf("expected new min 2, got %d", min)
	}
}

func TestRandomizedAgainstSort(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for trial := 0; trial < 20; trial++ {
		n := r.Intn(200)
		h := New(0, intLess)
		vals := make([]int, n)
		for i := range vals {
			vals[i] = r.Intn(1000)
			h.Insert(vals[i])
		}
		sort.Ints(vals)
		for _, want := range vals {
			got, ok := h.PopMin()
			if !ok || got != want {
				t.Fatalf("trial %d: expected %d, got %d (ok=%v)", trial, want, got, ok)
			}
		}
	}
}

func TestPopMax(t *testing.T) {
	h := New(0, intLess)
	for _, v := range []int{5, 1, 9, 3, 7} {
		h.Insert(v)
	}
	var out []int
	for h.Len() > 0 {
		v, _ := h.PopMax()
		out = append(out, v)
	}
	want := []int{9, 7, 5, 3, 1}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("pop-max order mismatch: got %v want %v", out, want)
		}
	}
}
