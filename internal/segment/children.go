package segment

// inlineCapacity is the packed-array size before a segment's children
// promote to a growable vector.
const inlineCapacity = 4

// ChildList is a tagged union of a small inline array and a growable
// vector. Empty lists never allocate; promotion happens on the
// (inlineCapacity+1)th push. Children are kept in insertion order.
type ChildList struct {
	inline    [inlineCapacity]*Segment
	inlineLen int
	overflow  []*Segment // non-nil only once promoted
}

// Len reports the number of children.
func (c *ChildList) Len() int {
	if c.overflow != nil {
		return len(c.overflow)
	}
	return c.inlineLen
}

// At returns the i'th child in insertion order.
func (c *ChildList) At(i int) *Segment {
	if c.overflow != nil {
		return c.overflow[i]
	}
	return c.inline[i]
}

// Push appends a child, promoting from the inline array to overflow when
// capacity is exceeded.
func (c *ChildList) Push(s *Segment) {
	if c.overflow != nil {
		c.overflow = append(c.overflow, s)
		return
	}
	if c.inlineLen < inlineCapacity {
		c.inline[c.inlineLen] = s
		c.inlineLen++
		return
	}
	// Promote.
	c.overflow = make([]*Segment, 0, inlineCapacity+1)
	c.overflow = append(c.overflow, c.inline[:c.inlineLen]...)
	c.overflow = append(c.overflow, s)
	c.inlineLen = 0
}

// IndexOf returns the position of s, or -1 if not present.
func (c *ChildList) IndexOf(s *Segment) int {
	n := c.Len()
	for i := 0; i < n; i++ {
		if c.At(i) == s {
			return i
		}
	}
	return -1
}

// RemoveAt deletes the child at index i, preserving the relative order of
// the rest.
func (c *ChildList) RemoveAt(i int) {
	if c.overflow != nil {
		c.overflow = append(c.overflow[:i], c.overflow[i+1:]...)
		return
	}
	for j := i; j < c.inlineLen-1; j++ {
		c.inline[j] = c.inline[j+1]
	}
	c.inlineLen--
	c.inline[c.inlineLen] = nil
}

// Remove deletes s if present, reporting whether it was found.
func (c *ChildList) Remove(s *Segment) bool {
	i := c.IndexOf(s)
	if i < 0 {
		return false
	}
	c.RemoveAt(i)
	return true
}

// InsertSliceAt splices children into the list starting at index i,
// preserving order — used by discard() to promote a removed segment's
// children into its parent's list at the point of detachment.
func (c *ChildList) InsertSliceAt(i int, children []*Segment) {
	if len(children) == 0 {
		return
	}
	// Force overflow representation for simplicity; inline promotion
	// on an arbitrary splice is not worth the complexity given
	// children lists are rarely spliced into more than once.
	if c.overflow == nil {
		c.overflow = append([]*Segment{}, c.inline[:c.inlineLen]...)
		c.inlineLen = 0
	}
	tail := append([]*Segment{}, c.overflow[i:]...)
	c.overflow = append(c.overflow[:i], children...)
	c.overflow = append(c.overflow, tail...)
}

// Each calls fn for every child in order.
func (c *ChildList) Each(fn func(*Segment)) {
	n := c.Len()
	for i := 0; i < n; i++ {
		fn(c.At(i))
	}
}
