package segment

import (
	"github.com/apmcore/tracecore/ext"
	"github.com/apmcore/tracecore/internal/heap"
)

// defaultContext is the stack key used when a segment has no named async
// context.
const defaultContext = -1

// Tree owns every segment allocated for one transaction (the "slab")
// plus the root and the per-async-context parent stacks.
type Tree struct {
	slab         []*Segment
	root         *Segment
	stacks       map[int][]*Segment
	maxSegments  int
	evictHeap    *heap.Heap[*Segment]
	zeroCapacity bool // maxSegments == 1: no non-root segment is ever retained
	segmentCount int
	now          func() int64 // current time, ns relative to txn start
}

// NewTree creates a tree with its root already started at t=0. now
// returns nanoseconds relative to the transaction's monotonic reference.
func NewTree(maxSegments int, now func() int64) *Tree {
	t := &Tree{
		stacks:      make(map[int][]*Segment),
		maxSegments: maxSegments,
		now:         now,
	}
	root := &Segment{
		AsyncContextIndex: defaultContext,
		Priority:          ext.PriorityRoot,
		NameIndex:         -1,
	}
	t.root = root
	t.slab = append(t.slab, root)
	t.stacks[defaultContext] = []*Segment{root}
	t.segmentCount = 1
	if maxSegments > 0 {
		// The root always occupies one slot (the root is always
		// retained), so the eviction heap bounds the remaining
		// maxSegments-1 non-root segments. maxSegments == 1 means
		// that remainder is zero — heap.New(0, ...) would instead
		// create an *unbounded* heap (bound == 0 is its "unbounded"
		// sentinel), so that case is handled by never retaining a
		// non-root segment at all instead of asking the heap package
		// for zero capacity.
		bound := maxSegments - 1
		if bound == 0 {
			t.zeroCapacity = true
		} else {
			t.evictHeap = heap.New(bound, func(a, b *Segment) bool {
				return a.Duration() < b.Duration()
			})
		}
	}
	return t
}

// Root returns the transaction's root segment.
func (t *Tree) Root() *Segment { return t.root }

// SegmentCount returns the number of segments currently reachable from
// the root, plus the root itself.
func (t *Tree) SegmentCount() int { return t.segmentCount }

// Slab returns every segment ever allocated for this transaction,
// including ones later discarded or evicted. Used to close segments
// still open at transaction end, by the finalizer's per-segment metric
// drain, and by tests.
func (t *Tree) Slab() []*Segment { return t.slab }

func (t *Tree) stackTop(asyncContext int) *Segment {
	st := t.stacks[asyncContext]
	if len(st) == 0 {
		return t.root
	}
	return st[len(st)-1]
}

// Start begins a new segment. If parent is nil, the parent is the current
// top of the named async-context stack (or the root if that stack is
// empty).
func (t *Tree) Start(parent *Segment, asyncContext int, typ ext.SegmentType) *Segment {
	if parent == nil {
		parent = t.stackTop(asyncContext)
	}
	s := &Segment{
		Type:              typ,
		Start:             t.now(),
		AsyncContextIndex: asyncContext,
		Parent:            parent,
		NameIndex:         -1,
	}
	parent.Children.Push(s)
	t.stacks[asyncContext] = append(t.stacks[asyncContext], s)
	t.slab = append(t.slab, s)
	t.segmentCount++
	return s
}

// End closes seg, unless its Stop was already set explicitly via
// SetTiming. Returns false if seg was already ended.
func (t *Tree) End(seg *Segment) bool {
	if seg.ended {
		return false
	}
	if seg.Stop == 0 {
		seg.Stop = t.now()
	}
	seg.ended = true
	t.popFromStack(seg)
	if seg.IsRoot() {
		return true
	}
	if t.zeroCapacity {
		t.discard(seg)
		return true
	}
	if t.evictHeap != nil {
		evictedValue, didEvict, inserted := t.evictHeap.Insert(seg)
		if didEvict {
			if inserted {
				// seg was admitted; evictedValue loses its place in
				// the tree but keeps its allocation in the slab.
				t.discard(evictedValue)
			} else {
				// seg itself was the smallest: it never joins the
				// bounded retained set.
				t.discard(seg)
			}
		}
	}
	return true
}

// popFromStack removes seg from its async-context stack. By invariant it
// is the top; if a caller violated LIFO ordering this falls back to a
// linear scan rather than panicking — bad input degrades silently.
func (t *Tree) popFromStack(seg *Segment) {
	st := t.stacks[seg.AsyncContextIndex]
	n := len(st)
	if n > 0 && st[n-1] == seg {
		t.stacks[seg.AsyncContextIndex] = st[:n-1]
		return
	}
	for i, s := range st {
		if s == seg {
			t.stacks[seg.AsyncContextIndex] = append(st[:i], st[i+1:]...)
			return
		}
	}
}

// SetTiming overrides both endpoints explicitly.
func (t *Tree) SetTiming(seg *Segment, start, duration int64) {
	seg.Start = start
	seg.Stop = start + duration
}

// SetParent reparents seg under newParent. Rejected (returns false) if
// newParent is seg itself or a descendant of seg, which would create a
// cycle, rather than relying on cycle-coloring at traversal time.
func (t *Tree) SetParent(seg, newParent *Segment) bool {
	if seg == nil || newParent == nil || seg == newParent {
		return false
	}
	if t.isDescendant(newParent, seg) {
		return false
	}
	if seg.Parent != nil {
		seg.Parent.Children.Remove(seg)
	}
	newParent.Children.Push(seg)
	seg.Parent = newParent
	return true
}

// isDescendant reports whether candidate is in the subtree rooted at of.
func (t *Tree) isDescendant(candidate, of *Segment) bool {
	if candidate == of {
		return true
	}
	found := false
	of.Color = Grey
	of.Children.Each(func(c *Segment) {
		if found || c.Color == Grey {
			return
		}
		if t.isDescendant(candidate, c) {
			found = true
		}
	})
	of.Color = White
	return found
}

// Discard detaches seg from the tree, promoting its children to seg's
// parent at the point of detachment (preserving order).
func (t *Tree) Discard(seg *Segment) {
	t.discard(seg)
}

func (t *Tree) discard(seg *Segment) {
	parent := seg.Parent
	if parent == nil {
		return
	}
	idx := parent.Children.IndexOf(seg)
	if idx < 0 {
		return
	}
	parent.Children.RemoveAt(idx)
	n := seg.Children.Len()
	promoted := make([]*Segment, n)
	for i := 0; i < n; i++ {
		c := seg.Children.At(i)
		c.Parent = parent
		promoted[i] = c
	}
	parent.Children.InsertSliceAt(idx, promoted)
	t.segmentCount--
}

// AddMetric queues a per-segment metric to be emitted at finalization.
func (t *Tree) AddMetric(seg *Segment, name string, scoped bool) {
	seg.Metrics = append(seg.Metrics, QueuedMetric{Name: name, Scoped: scoped})
}
