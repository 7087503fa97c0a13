// Package heap implements a double-ended priority queue (a min-max heap)
// supporting O(log n) insert, peek-min, peek-max, pop-min, and pop-max.
// It bounds the span-event and trace-segment reservoirs during
// finalization, and optionally the transaction's max_segments
// eviction heap.
//
// Grounded on original_source/axiom/util_minmax_heap.h: a bounded heap
// created with a fixed capacity; insertion past capacity evicts (and,
// here, returns to the caller rather than invoking a destructor) the
// current minimum.
package heap

// CompareFunc reports whether a sorts before b. "Before" is this heap's
// notion of "smaller" — the element evicted first when the heap is full.
type CompareFunc[T any] func(a, b T) bool

// Heap is a bounded (or unbounded, if bound == 0) min-max heap.
type Heap[T any] struct {
	data  []T
	less  CompareFunc[T]
	bound int
}

// New creates a heap. bound == 0 means unbounded.
func New[T any](bound int, less CompareFunc[T]) *Heap[T] {
	return &Heap[T]{less: less, bound: bound}
}

// Len reports the current element count.
func (h *Heap[T]) Len() int { return len(h.data) }

// Full reports whether the heap is bounded and at capacity.
func (h *Heap[T]) Full() bool { return h.bound > 0 && len(h.data) >= h.bound }

// Insert adds v to the heap. If the heap is bounded and already at
// capacity, the current minimum is evicted and returned alongside v being
// inserted; evicted is false only when the heap had room. If v does not
// strictly beat the current minimum, v itself is the one turned away: it
// comes back as evictedValue with evicted true and ok false.
//
// ok reports whether v was actually retained in the heap.
func (h *Heap[T]) Insert(v T) (evictedValue T, evicted bool, ok bool) {
	if !h.Full() {
		h.push(v)
		return evictedValue, false, true
	}
	// Bounded and full: v only survives if it strictly beats the
	// current minimum. Ties favor what's already resident.
	min := h.data[h.minIndex()]
	if !h.less(min, v) {
		return v, true, false
	}
	evictedValue = h.popMinRaw()
	h.push(v)
	return evictedValue, true, true
}

// PeekMin returns the minimum element without removing it.
func (h *Heap[T]) PeekMin() (T, bool) {
	var zero T
	if len(h.data) == 0 {
		return zero, false
	}
	return h.data[h.minIndex()], true
}

// PeekMax returns the maximum element without removing it.
func (h *Heap[T]) PeekMax() (T, bool) {
	var zero T
	if len(h.data) == 0 {
		return zero, false
	}
	return h.data[h.maxIndex()], true
}

// PopMin removes and returns the minimum element.
func (h *Heap[T]) PopMin() (T, bool) {
	var zero T
	if len(h.data) == 0 {
		return zero, false
	}
	return h.popMinRaw(), true
}

// PopMax removes and returns the maximum element.
func (h *Heap[T]) PopMax() (T, bool) {
	var zero T
	if len(h.data) == 0 {
		return zero, false
	}
	idx := h.maxIndex()
	v := h.data[idx]
	h.removeAt(idx)
	return v, true
}

// Items returns a copy of the heap's contents in unspecified order.
func (h *Heap[T]) Items() []T {
	out := make([]T, len(h.data))
	copy(out, h.data)
	return out
}

func (h *Heap[T]) push(v T) {
	h.data = append(h.data, v)
	h.siftUp(len(h.data) - 1)
}

func (h *Heap[T]) popMinRaw() T {
	idx := h.minIndex()
	v := h.data[idx]
	h.removeAt(idx)
	return v
}

func (h *Heap[T]) minIndex() int {
	// Min-max heap convention: root (index 0) is always on a "min"
	// level, so it is always the global minimum.
	return 0
}

func (h *Heap[T]) maxIndex() int {
	switch len(h.data) {
	case 0:
		return -1
	case 1:
		return 0
	case 2:
		return 1
	default:
		// The max is one of the two children of the root (both on a
		// "max" level).
		if h.less(h.data[1], h.data[2]) {
			return 2
		}
		return 1
	}
}

func (h *Heap[T]) removeAt(idx int) {
	last := len(h.data) - 1
	h.data[idx] = h.data[last]
	h.data = h.data[:last]
	if idx < len(h.data) {
		h.siftDown(idx)
		h.siftUp(idx)
	}
}

func level(i int) int {
	lvl := 0
	for i > 0 {
		i = (i - 1) / 2
		lvl++
	}
	return lvl
}

func isMinLevel(i int) bool { return level(i)%2 == 0 }

func hasGrandparent(i int) bool {
	return i >= 3
}

func grandparentOf(i int) int {
	return ((i-1)/2 - 1) / 2
}

func (h *Heap[T]) siftUp(i int) {
	if i == 0 {
		return
	}
	parent := (i - 1) / 2
	if isMinLevel(i) {
		if h.less(h.data[parent], h.data[i]) {
			h.swap(i, parent)
			h.siftUpMax(parent)
		} else {
			h.siftUpMin(i)
		}
	} else {
		if h.less(h.data[i], h.data[parent]) {
			h.swap(i, parent)
			h.siftUpMin(parent)
		} else {
			h.siftUpMax(i)
		}
	}
}

func (h *Heap[T]) siftUpMin(i int) {
	for hasGrandparent(i) {
		gp := grandparentOf(i)
		if h.less(h.data[i], h.data[gp]) {
			h.swap(i, gp)
			i = gp
		} else {
			return
		}
	}
}

func (h *Heap[T]) siftUpMax(i int) {
	for hasGrandparent(i) {
		gp := grandparentOf(i)
		if h.less(h.data[gp], h.data[i]) {
			h.swap(i, gp)
			i = gp
		} else {
			return
		}
	}
}

func (h *Heap[T]) siftDown(i int) {
	for {
		if isMinLevel(i) {
			i = h.siftDownMin(i)
		} else {
			i = h.siftDownMax(i)
		}
		if i < 0 {
			return
		}
	}
}

// childGrandchild enumerates i's children and grandchildren, tagging each
// index as a grandchild (true) or direct child (false).
func (h *Heap[T]) childGrandchild(i int) (children, grandchildren []int) {
	l, r := 2*i+1, 2*i+2
	for _, c := range []int{l, r} {
		if c < len(h.data) {
			children = append(children, c)
		}
	}
	for _, p := range children {
		gl, gr := 2*p+1, 2*p+2
		for _, g := range []int{gl, gr} {
			if g < len(h.data) {
				grandchildren = append(grandchildren, g)
			}
		}
	}
	return children, grandchildren
}

// siftDownMin restores the min-heap property starting at i (a min-level
// node), returning the index to continue sifting from, or -1 when done.
func (h *Heap[T]) siftDownMin(i int) int {
	children, grandchildren := h.childGrandchild(i)
	if len(children) == 0 {
		return -1
	}
	m := children[0]
	isGrandchild := false
	for _, c := range children[1:] {
		if h.less(h.data[c], h.data[m]) {
			m = c
		}
	}
	for _, g := range grandchildren {
		if h.less(h.data[g], h.data[m]) {
			m = g
			isGrandchild = true
		}
	}
	if !isGrandchild {
		if h.less(h.data[m], h.data[i]) {
			h.swap(i, m)
		}
		return -1
	}
	if !h.less(h.data[m], h.data[i]) {
		return -1
	}
	h.swap(m, i)
	parent := (m - 1) / 2
	if h.less(h.data[parent], h.data[m]) {
		h.swap(parent, m)
	}
	return m
}

func (h *Heap[T]) siftDownMax(i int) int {
	children, grandchildren := h.childGrandchild(i)
	if len(children) == 0 {
		return -1
	}
	m := children[0]
	isGrandchild := false
	for _, c := range children[1:] {
		if h.less(h.data[m], h.data[c]) {
			m = c
		}
	}
	for _, g := range grandchildren {
		if h.less(h.data[m], h.data[g]) {
			m = g
			isGrandchild = true
		}
	}
	if !isGrandchild {
		if h.less(h.data[i], h.data[m]) {
			h.swap(i, m)
		}
		return -1
	}
	if !h.less(h.data[i], h.data[m]) {
		return -1
	}
	h.swap(m, i)
	parent := (m - 1) / 2
	if h.less(h.data[m], h.data[parent]) {
		h.swap(parent, m)
	}
	return m
}

func (h *Heap[T]) swap(i, j int) {
	h.data[i], h.data[j] = h.data[j], h.data[i]
}
