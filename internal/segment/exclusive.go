package segment

import "sort"

// IntervalSet maintains a sorted set of disjoint [start, stop] intervals,
// used to compute exclusive time: given a parent interval and
// its children's intervals on the same async context, exclusive time is
// the parent's duration minus the union of child intervals clamped to the
// parent.
type IntervalSet struct {
	intervals [][2]int64 // sorted, disjoint, by start
}

// Add inserts [start, stop], merging with any overlapping or adjacent
// existing intervals.
func (s *IntervalSet) Add(start, stop int64) {
	if stop < start {
		return
	}
	// Insertion point by start.
	i := sort.Search(len(s.intervals), func(i int) bool { return s.intervals[i][0] >= start })
	merged := [2]int64{start, stop}
	// Merge with the interval immediately before, if it overlaps/touches.
	if i > 0 && s.intervals[i-1][1] >= merged[0] {
		i--
		if s.intervals[i][0] < merged[0] {
			merged[0] = s.intervals[i][0]
		}
		if s.intervals[i][1] > merged[1] {
			merged[1] = s.intervals[i][1]
		}
		s.intervals = append(s.intervals[:i], s.intervals[i+1:]...)
	}
	// Merge with any following intervals that now overlap/touch.
	j := i
	for j < len(s.intervals) && s.intervals[j][0] <= merged[1] {
		if s.intervals[j][1] > merged[1] {
			merged[1] = s.intervals[j][1]
		}
		j++
	}
	s.intervals = append(s.intervals[:i], append([][2]int64{merged}, s.intervals[j:]...)...)
}

// UnionLength returns the sum of interval lengths clamped to
// [clampStart, clampStop].
func (s *IntervalSet) UnionLength(clampStart, clampStop int64) int64 {
	var total int64
	for _, iv := range s.intervals {
		start, stop := iv[0], iv[1]
		if start < clampStart {
			start = clampStart
		}
		if stop > clampStop {
			stop = clampStop
		}
		if stop > start {
			total += stop - start
		}
	}
	return total
}

// Exclusive computes exclusive time for a segment spanning
// [start, stop) given the intervals of its same-async-context children.
func Exclusive(start, stop int64, childIntervals [][2]int64) int64 {
	var set IntervalSet
	for _, iv := range childIntervals {
		set.Add(iv[0], iv[1])
	}
	duration := stop - start
	if duration < 0 {
		duration = 0
	}
	covered := set.UnionLength(start, stop)
	excl := duration - covered
	if excl < 0 {
		excl = 0
	}
	return excl
}

// SameContextChildIntervals returns the [start,stop] intervals of every
// direct child of seg sharing seg's async context (used for the
// per-segment exclusive-time pass).
func SameContextChildIntervals(seg *Segment) [][2]int64 {
	var out [][2]int64
	seg.Children.Each(func(c *Segment) {
		if c.AsyncContextIndex != seg.AsyncContextIndex {
			return
		}
		if c.Stop == 0 {
			return // still open; contributes nothing, malformed data ignored
		}
		out = append(out, [2]int64{c.Start, c.Stop})
	})
	return out
}

// SameContextDescendantIntervals recursively collects the intervals of
// every descendant of root sharing root's async context — used by the
// "discount main context blocking" option, which needs the
// time the root's context was occupied by *any* depth of off-context
// work re-entering that same context, not just direct children.
func SameContextDescendantIntervals(root *Segment) [][2]int64 {
	var out [][2]int64
	var walk func(*Segment)
	walk = func(s *Segment) {
		s.Children.Each(func(c *Segment) {
			if c.AsyncContextIndex == root.AsyncContextIndex && c.Stop != 0 {
				out = append(out, [2]int64{c.Start, c.Stop})
			}
			walk(c)
		})
	}
	walk(root)
	return out
}
