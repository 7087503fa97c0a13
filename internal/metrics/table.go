// Package metrics implements a bounded, map-indexed metric table:
// timing and Apdex metrics keyed by name, with forced insertion past
// the capacity bound and compact JSON emission.
package metrics

import (
	"fmt"
	"math"
	"strings"
)

// Flag is a bitmask on a metric slot.
type Flag uint8

const (
	FlagApdex Flag = 1 << iota
	FlagForced
)

// Kind discriminates how mdata is interpreted.
type Kind uint8

const (
	KindTiming Kind = iota
	KindApdex
)

// Data is the six-slot mdata array, reinterpreted per Kind:
//
//	timing: {count, total, exclusive, min, max, sumOfSquares}
//	apdex:  {satisfying, tolerating, failing, minApdex, maxApdex, 0}
type Data [6]float64

// Metric is one table entry.
type Metric struct {
	Name  string
	Kind  Kind
	Flags Flag
	Data  Data
}

func (m *Metric) forced() bool { return m.Flags&FlagForced != 0 }

// Table is a fixed-capacity metric table. A capacity of 0 means unbounded.
type Table struct {
	capacity int
	index    map[string]int
	entries  []Metric
	dropped  bool
}

// New creates a table bounded at capacity entries (0 = unbounded).
func New(capacity int) *Table {
	return &Table{capacity: capacity, index: make(map[string]int)}
}

// Len reports the number of distinct metric names currently stored.
func (t *Table) Len() int { return len(t.entries) }

func (t *Table) get(name string) (*Metric, bool) {
	if idx, ok := t.index[name]; ok {
		return &t.entries[idx], true
	}
	return nil, false
}

func (t *Table) full() bool {
	return t.capacity > 0 && len(t.entries) >= t.capacity
}

func (t *Table) insertSlot(name string, kind Kind, forced bool) (*Metric, bool) {
	if m, ok := t.get(name); ok {
		return m, true
	}
	if !forced && t.full() {
		t.noteDropped()
		return nil, false
	}
	m := Metric{Name: name, Kind: kind}
	if forced {
		m.Flags |= FlagForced
	}
	t.entries = append(t.entries, m)
	t.index[name] = len(t.entries) - 1
	return &t.entries[len(t.entries)-1], true
}

// noteDropped bumps the one-time drop flag used to force-add
// Supportability/MetricsDropped on first overflow. The caller observes
// DroppedSinceLastCheck() to decide whether to force-add that metric.
func (t *Table) noteDropped() {
	t.dropped = true
}

// DroppedSinceLastCheck reports and clears whether any non-forced add has
// been rejected for capacity since the last call.
func (t *Table) DroppedSinceLastCheck() bool {
	d := t.dropped
	t.dropped = false
	return d
}

// Add records a timing sample of duration seconds (and optional exclusive
// time, defaulting to duration when exclusive < 0). Returns false if the
// metric was dropped for capacity.
func (t *Table) Add(name string, duration, exclusive float64) bool {
	return t.add(name, duration, exclusive, false)
}

// ForceAdd behaves like Add but bypasses the capacity bound.
func (t *Table) ForceAdd(name string, duration, exclusive float64) bool {
	return t.add(name, duration, exclusive, true)
}

func (t *Table) add(name string, duration, exclusive float64, forced bool) bool {
	if exclusive < 0 {
		exclusive = duration
	}
	m, ok := t.insertSlot(name, KindTiming, forced)
	if !ok {
		return false
	}
	d := &m.Data
	if d[0] == 0 {
		d[3] = duration // min
		d[4] = duration // max
	} else {
		d[3] = math.Min(d[3], duration)
		d[4] = math.Max(d[4], duration)
	}
	d[0]++           // count
	d[1] += duration  // total
	d[2] += exclusive // exclusive
	d[5] += duration * duration
	return true
}

// AddApdex records one Apdex sample: satisfying xor tolerating xor failing.
func (t *Table) AddApdex(name string, satisfying, tolerating, failing int, apdexT float64) bool {
	return t.addApdex(name, satisfying, tolerating, failing, apdexT, false)
}

// ForceAddApdex is the forced variant of AddApdex.
func (t *Table) ForceAddApdex(name string, satisfying, tolerating, failing int, apdexT float64) bool {
	return t.addApdex(name, satisfying, tolerating, failing, apdexT, true)
}

func (t *Table) addApdex(name string, satisfying, tolerating, failing int, apdexT float64, forced bool) bool {
	m, ok := t.insertSlot(name, KindApdex, forced)
	if !ok {
		return false
	}
	m.Flags |= FlagApdex
	d := &m.Data
	d[0] += float64(satisfying)
	d[1] += float64(tolerating)
	d[2] += float64(failing)
	if d[3] == 0 || apdexT < d[3] {
		d[3] = apdexT
	}
	if apdexT > d[4] {
		d[4] = apdexT
	}
	return true
}

// JSON renders the table using its compact wire format:
//
//	[{"name": N, "data":[...], "forced": true?}, ...]
//
// with timing seconds at microsecond precision and the name replaced by
// the interned handle N supplied by nameIndex.
func (t *Table) JSON(nameIndex func(string) int) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, m := range t.entries {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(`{"name":`)
		fmt.Fprintf(&b, "%d", nameIndex(m.Name))
		b.WriteString(`,"data":[`)
		d := m.Data
		if m.Kind == KindApdex {
			fmt.Fprintf(&b, "%d,%d,%d,%s,%s,0", int64(d[0]), int64(d[1]), int64(d[2]), secs(d[3]), secs(d[4]))
		} else {
			fmt.Fprintf(&b, "%d,%s,%s,%s,%s,%s", int64(d[0]), secs(d[1]), secs(d[2]), secs(d[3]), secs(d[4]), secs(d[5]))
		}
		b.WriteByte(']')
		if m.forced() {
			b.WriteString(`,"forced":true`)
		}
		b.WriteByte('}')
	}
	b.WriteByte(']')
	return b.String()
}

// secs formats a duration already expressed in seconds at microsecond
// precision.
func secs(v float64) string {
	return fmt.Sprintf("%.6f", v)
}
