package tracecore

import (
	"encoding/hex"

	"github.com/google/uuid"

	"github.com/apmcore/tracecore/ext"
	"github.com/apmcore/tracecore/internal/segment"
)

// Seg is the public handle to one segment tree node. It wraps
// internal/segment's Segment with the owning transaction, needed for
// attribute filtering and time-base conversions.
type Seg struct {
	txn *Txn
	seg *segment.Segment
}

// End closes the segment. Returns false if it was already ended or the
// transaction isn't recording.
func (s *Seg) End() bool {
	if s == nil || s.txn == nil || !s.txn.recording {
		return false
	}
	return s.txn.tree.End(s.seg)
}

// SetParent reparents s under parent, rejecting the move if it would
// create a cycle.
func (s *Seg) SetParent(parent *Seg) bool {
	if s == nil || parent == nil {
		return false
	}
	return s.txn.tree.SetParent(s.seg, parent.seg)
}

// SetTiming overrides both endpoints, in nanoseconds relative to
// transaction start.
func (s *Seg) SetTiming(startNS, durationNS int64) {
	if s == nil {
		return
	}
	s.txn.tree.SetTiming(s.seg, startNS, durationNS)
}

// SetName sets the segment's display name.
func (s *Seg) SetName(name string) {
	if s == nil {
		return
	}
	s.seg.NameIndex = s.txn.names.Intern(name)
}

// SetError attaches a segment-level error record.
func (s *Seg) SetError(msg, class string) {
	if s == nil {
		return
	}
	if s.txn.opts.HighSecurity {
		msg = ""
	}
	s.seg.Err = &segment.Error{Message: msg, Class: class}
}

// SetErrorCause attaches a segment-level error record, formatting cause
// via segment.NewError if it implements a Formatter interface.
func (s *Seg) SetErrorCause(msg, class string, cause error) {
	if s == nil {
		return
	}
	e := segment.NewError(msg, class, cause)
	if s.txn.opts.HighSecurity {
		e.Message = ""
		e.Detail = ""
	}
	s.seg.Err = e
}

// AddChildMetric queues a per-segment metric emitted at finalization.
func (s *Seg) AddChildMetric(name string, scoped bool) {
	if s == nil {
		return
	}
	s.txn.tree.AddMetric(s.seg, name, scoped)
}

// Discard detaches s from the tree, promoting its children to its
// parent.
func (s *Seg) Discard() {
	if s == nil {
		return
	}
	s.txn.tree.Discard(s.seg)
}

// SetUserAttribute stores a user attribute restricted to dest after the
// transaction's configured include/exclude filters.
func (s *Seg) SetUserAttribute(key string, value interface{}, dest ext.Destination) ext.Destination {
	if s == nil || s.txn.opts.HighSecurity {
		return ext.DestNone
	}
	if s.seg.Attributes == nil {
		s.seg.Attributes = s.txn.newAttrSet()
	}
	return s.seg.Attributes.Add(key, value, dest)
}

// SetDatastore marks the segment as a datastore call.
func (s *Seg) SetDatastore(a segment.DatastoreAttrs) {
	if s == nil {
		return
	}
	s.seg.Type = ext.SegmentDatastore
	s.seg.Datastore = &a
}

// SetExternal marks the segment as an external call.
func (s *Seg) SetExternal(a segment.ExternalAttrs) {
	if s == nil {
		return
	}
	s.seg.Type = ext.SegmentExternal
	s.seg.External = &a
}

// SetMessage marks the segment as a message-queue call.
func (s *Seg) SetMessage(a segment.MessageAttrs) {
	if s == nil {
		return
	}
	s.seg.Type = ext.SegmentMessage
	s.seg.Message = &a
}

// ID returns the segment's 16-hex span id, generating one lazily on
// first call, when the segment's id is emitted in an outbound DT
// payload or when span events are being produced for it.
func (s *Seg) ID() string {
	if s == nil {
		return ""
	}
	if s.seg.ID == "" {
		s.seg.ID = randomSpanID()
		s.seg.Priority |= ext.PriorityDT
	}
	return s.seg.ID
}

func randomSpanID() string {
	u := uuid.New()
	return hex.EncodeToString(u[:8])
}
