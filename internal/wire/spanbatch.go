package wire

import (
	"github.com/tinylib/msgp/msgp"
)

// SpanEventRecord is the msgpack-transportable shape of one span
// event, used when a harvest sink ships span
// events over a binary transport instead of folding them into the
// trace-JSON text. Hand-written in the style of a generated
// msgp.Encodable span type: fields are written in a fixed order via
// the low-level msgp.Writer rather than through reflection, so field
// order on the wire is a property of this code, not of struct tag
// ordering a decoder elsewhere might not honor.
type SpanEventRecord struct {
	Name       string
	Category   string
	TimestampMS int64
	DurationS  float64
	ParentID   string // "" at root
	GUID       string
	Datastore  *DatastoreFields
	HTTP       *HTTPFields
	Message    *MessageFields
}

// DatastoreFields holds the datastore-category span-event extras.
type DatastoreFields struct {
	Host      string
	DBName    string
	Statement string
	Address   string
}

// HTTPFields holds the http-category span-event extras.
type HTTPFields struct {
	URL       string
	Method    string
	Component string
	Status    int
}

// MessageFields holds the message-category span-event extras.
type MessageFields struct {
	Destination string
	System      string
	Address     string
}

// SpanEventBatch implements msgp.Encodable over a slice of
// SpanEventRecord, mirroring a msgp-generated spanList/spanLists
// wrapper-over-a-slice pattern used to give msgp a named type to
// generate array-of-struct encoding for.
type SpanEventBatch []SpanEventRecord

var _ msgp.Encodable = (SpanEventBatch)(nil)

// EncodeMsg writes the batch as a msgpack array of fixed-shape maps,
// one per span event, in field-declaration order.
func (b SpanEventBatch) EncodeMsg(w *msgp.Writer) error {
	if err := w.WriteArrayHeader(uint32(len(b))); err != nil {
		return err
	}
	for _, rec := range b {
		if err := rec.EncodeMsg(w); err != nil {
			return err
		}
	}
	return nil
}

// EncodeMsg writes one span event as a msgpack map.
func (r SpanEventRecord) EncodeMsg(w *msgp.Writer) error {
	fields := 6
	if r.Datastore != nil {
		fields++
	}
	if r.HTTP != nil {
		fields++
	}
	if r.Message != nil {
		fields++
	}
	if err := w.WriteMapHeader(uint32(fields)); err != nil {
		return err
	}
	pairs := []struct {
		key string
		wr  func() error
	}{
		{"name", func() error { return w.WriteString(r.Name) }},
		{"category", func() error { return w.WriteString(r.Category) }},
		{"timestamp", func() error { return w.WriteInt64(r.TimestampMS) }},
		{"duration", func() error { return w.WriteFloat64(r.DurationS) }},
		{"parentId", func() error { return w.WriteString(r.ParentID) }},
		{"guid", func() error { return w.WriteString(r.GUID) }},
	}
	for _, p := range pairs {
		if err := w.WriteString(p.key); err != nil {
			return err
		}
		if err := p.wr(); err != nil {
			return err
		}
	}
	if err := encodeDatastore(w, r.Datastore); err != nil {
		return err
	}
	if err := encodeHTTP(w, r.HTTP); err != nil {
		return err
	}
	return encodeMessage(w, r.Message)
}

func encodeDatastore(w *msgp.Writer, d *DatastoreFields) error {
	if d == nil {
		return nil
	}
	if err := w.WriteString("datastore"); err != nil {
		return err
	}
	if err := w.WriteMapHeader(4); err != nil {
		return err
	}
	for _, kv := range []struct{ k, v string }{
		{"host", d.Host}, {"databaseName", d.DBName},
		{"statement", d.Statement}, {"address", d.Address},
	} {
		if err := w.WriteString(kv.k); err != nil {
			return err
		}
		if err := w.WriteString(kv.v); err != nil {
			return err
		}
	}
	return nil
}

func encodeHTTP(w *msgp.Writer, h *HTTPFields) error {
	if h == nil {
		return nil
	}
	if err := w.WriteString("http"); err != nil {
		return err
	}
	if err := w.WriteMapHeader(4); err != nil {
		return err
	}
	if err := w.WriteString("url"); err != nil {
		return err
	}
	if err := w.WriteString(h.URL); err != nil {
		return err
	}
	if err := w.WriteString("method"); err != nil {
		return err
	}
	if err := w.WriteString(h.Method); err != nil {
		return err
	}
	if err := w.WriteString("component"); err != nil {
		return err
	}
	if err := w.WriteString(h.Component); err != nil {
		return err
	}
	if err := w.WriteString("status"); err != nil {
		return err
	}
	return w.WriteInt(h.Status)
}

func encodeMessage(w *msgp.Writer, m *MessageFields) error {
	if m == nil {
		return nil
	}
	if err := w.WriteString("message"); err != nil {
		return err
	}
	if err := w.WriteMapHeader(3); err != nil {
		return err
	}
	for _, kv := range []struct{ k, v string }{
		{"destination", m.Destination}, {"system", m.System}, {"address", m.Address},
	} {
		if err := w.WriteString(kv.k); err != nil {
			return err
		}
		if err := w.WriteString(kv.v); err != nil {
			return err
		}
	}
	return nil
}
