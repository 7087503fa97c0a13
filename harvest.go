package tracecore

import (
	"bytes"

	"github.com/apmcore/tracecore/internal/wire"
	"github.com/tinylib/msgp/msgp"
)

// SpanEvent is a single emitted span event: intrinsics, user
// attributes, and agent attributes.
type SpanEvent struct {
	Name       string
	Category   string
	TimestampMS int64
	DurationS  float64
	ParentID   string // "" at root
	GUID       string

	Intrinsics []wire.Attr
	UserAttrs  []wire.Attr
	AgentAttrs []wire.Attr
}

// Artifacts is the finalizer's output collection: the trace JSON
// document (if produced), the span-event vector (if produced), the
// transaction's total time, and its unscoped and scoped metric tables.
type Artifacts struct {
	TraceJSON   string // "" if not produced
	HasTrace    bool
	SpanEvents  []SpanEvent
	HasSpans    bool
	TotalTimeNS int64
	MetricsJSON       string
	ScopedMetricsJSON string
	TxnEventName      string
}

// HarvestSink is the narrow interface the core hands finalized
// artifacts to; everything about batching, transport, and the daemon
// IPC connection lives outside the core.
type HarvestSink interface {
	HarvestTxn(a Artifacts)
}

// HarvestFunc adapts a plain function to HarvestSink.
type HarvestFunc func(Artifacts)

// HarvestTxn implements HarvestSink.
func (f HarvestFunc) HarvestTxn(a Artifacts) { f(a) }

// EncodeSpanEventBatch renders a's span events as a msgpack-encoded
// wire.SpanEventBatch, for a harvest sink that ships span events over
// a binary transport instead of folding them into the trace-JSON text.
func (a Artifacts) EncodeSpanEventBatch() ([]byte, error) {
	batch := make(wire.SpanEventBatch, len(a.SpanEvents))
	for i, ev := range a.SpanEvents {
		rec := wire.SpanEventRecord{
			Name:        ev.Name,
			Category:    ev.Category,
			TimestampMS: ev.TimestampMS,
			DurationS:   ev.DurationS,
			ParentID:    ev.ParentID,
			GUID:        ev.GUID,
		}
		switch ev.Category {
		case "datastore":
			rec.Datastore = datastoreFieldsFrom(ev.AgentAttrs)
		case "http":
			rec.HTTP = httpFieldsFrom(ev.AgentAttrs)
		case "message":
			rec.Message = messageFieldsFrom(ev.AgentAttrs)
		}
		batch[i] = rec
	}

	var buf bytes.Buffer
	w := msgp.NewWriter(&buf)
	if err := batch.EncodeMsg(w); err != nil {
		return nil, err
	}
	if err := w.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func attrString(attrs []wire.Attr, key string) string {
	for _, a := range attrs {
		if a.Key != key {
			continue
		}
		if s, ok := a.Value.(string); ok {
			return s
		}
	}
	return ""
}

func attrInt(attrs []wire.Attr, key string) int {
	for _, a := range attrs {
		if a.Key != key {
			continue
		}
		switch v := a.Value.(type) {
		case int:
			return v
		case uint64:
			return int(v)
		}
	}
	return 0
}

func datastoreFieldsFrom(attrs []wire.Attr) *wire.DatastoreFields {
	return &wire.DatastoreFields{
		Host:      attrString(attrs, "host"),
		DBName:    attrString(attrs, "database_name"),
		Statement: attrString(attrs, "sql_obfuscated"),
		Address:   attrString(attrs, "port_path_or_id"),
	}
}

func httpFieldsFrom(attrs []wire.Attr) *wire.HTTPFields {
	return &wire.HTTPFields{
		URL:       attrString(attrs, "uri"),
		Method:    attrString(attrs, "procedure"),
		Component: attrString(attrs, "library"),
		Status:    attrInt(attrs, "status"),
	}
}

func messageFieldsFrom(attrs []wire.Attr) *wire.MessageFields {
	return &wire.MessageFields{
		Destination: attrString(attrs, "destination_name"),
		System:      attrString(attrs, "messaging_system"),
		Address:     attrString(attrs, "server_address"),
	}
}
