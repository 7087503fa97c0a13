// Package segment implements the segment tree: a timed interval
// inside a transaction, nested via parent/child links, with a
// packed-array-then-vector children union, async-context-scoped
// parent stacks, and a bounded eviction heap.
package segment

import (
	"fmt"

	"golang.org/x/xerrors"

	"github.com/apmcore/tracecore/ext"
)

// Color is used by cycle-safe tree traversals: nodes are colored grey
// on entry and children already grey are skipped. By construction this
// tree is kept acyclic (SetParent rejects reparenting into a
// descendant), so coloring here is a defensive second layer, not
// load-bearing.
type Color uint8

const (
	White Color = iota
	Grey
)

// DatastoreAttrs is the typed payload for ext.SegmentDatastore segments.
type DatastoreAttrs struct {
	Component       string
	SQL             string
	SQLObfuscated   string
	InputQueryJSON  string
	BacktraceJSON   string
	ExplainPlanJSON string
	Host            string
	DBName          string
	PortOrPath      string
}

// ExternalAttrs is the typed payload for ext.SegmentExternal segments.
type ExternalAttrs struct {
	URI             string
	Library         string
	Procedure       string
	TransactionGUID string
	Status          int
}

// MessageAttrs is the typed payload for ext.SegmentMessage segments.
type MessageAttrs struct {
	DestinationName string
	MessagingSystem string
	ServerAddress   string
}

// Error is a segment-level error record.
type Error struct {
	Message string
	Class   string
	// Detail holds a formatted representation when the originating
	// error value implements xerrors.Formatter (mirrors how a dd-trace-go-style
	// setTagError handling of xerrors.Formatter/fmt.Formatter errors).
	Detail string
}

// NewError builds an Error from msg/class, and — if cause implements
// xerrors.Formatter — a formatted detail string.
func NewError(msg, class string, cause error) *Error {
	e := &Error{Message: msg, Class: class}
	switch cause.(type) {
	case xerrors.Formatter, fmt.Formatter:
		e.Detail = fmt.Sprintf("%+v", cause)
	}
	return e
}

// QueuedMetric is a per-segment metric queued at segment_end time to
// be emitted by the finalizer.
type QueuedMetric struct {
	Name   string
	Scoped bool
}

// Segment is one timed interval in the tree.
type Segment struct {
	Type ext.SegmentType

	// Start/Stop are nanoseconds relative to the transaction's
	// monotonic reference. Stop == 0 means still open.
	Start int64
	Stop  int64

	// NameIndex is -1 until SetName interns a name for this segment.
	NameIndex int
	// AsyncContextIndex is -1 for the default (unnamed) async context.
	AsyncContextIndex int

	Parent   *Segment
	Children ChildList

	// ID is the optional 16-hex span id, populated lazily when needed
	// for DT payload creation or span-event emission.
	ID string

	Priority ext.SegmentPriority

	Datastore *DatastoreAttrs
	External  *ExternalAttrs
	Message   *MessageAttrs

	Attributes         AttrSink
	AttributesTxnEvent AttrSink

	Err *Error

	Color Color

	// ExclusiveTime is nil until the finalizer's pass 1 computes it.
	ExclusiveTime *int64

	Metrics []QueuedMetric

	ended bool
}

// AttrSink is the narrow interface Segment needs from an attribute set,
// kept here (rather than importing internal/attribute directly) so this
// package has no dependency on the attribute filter machinery — callers
// wire in whatever Set implementation they use.
type AttrSink interface {
	Add(key string, value interface{}, dest ext.Destination) ext.Destination
}

// IsRoot reports whether this segment is the transaction's root.
func (s *Segment) IsRoot() bool { return s.Priority&ext.PriorityRoot != 0 }

// Duration returns Stop-Start, or 0 if the segment hasn't ended.
func (s *Segment) Duration() int64 {
	if s.Stop == 0 {
		return 0
	}
	return s.Stop - s.Start
}

// Ended reports whether segment_end has already been called.
func (s *Segment) Ended() bool { return s.ended }
