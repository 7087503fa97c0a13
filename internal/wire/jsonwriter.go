// Package wire implements the ordered, non-reflective encoders the
// trace-JSON tuple format and the span-event tuple format need. Both
// formats are positional — arrays, not objects keyed by field name —
// and their inner attribute maps must be key-sorted with a fixed set
// of typed keys ahead of user attributes. That rules out
// encoding/json's map marshaling (Go randomizes nothing, but it
// alphabetizes every map key uniformly, which doesn't let typed keys
// precede user ones), so this package builds the JSON text by hand,
// encoding field-by-field in a fixed order instead.
package wire

import (
	"bytes"
	"encoding/json"
	"sort"
)

// Attr is one attribute key/value pair destined for a trace or
// span-event attribute block.
type Attr struct {
	Key   string
	Value interface{}
}

// typedKeyOrder is the fixed precedence of type-specific keys ahead of
// user attributes in a segment's attribute block.
var typedKeyOrder = []string{
	"host", "database_name", "sql_obfuscated", "uri", "library",
	"procedure", "status", "destination_name", "messaging_system",
	"server_address", "async_context", "backtrace", "explain_plan",
	"input_query", "transaction_guid", "port_path_or_id",
}

var typedKeyRank = func() map[string]int {
	m := make(map[string]int, len(typedKeyOrder))
	for i, k := range typedKeyOrder {
		m[k] = i
	}
	return m
}()

// WriteAttrs appends a JSON object built from attrs, with any key
// present in typedKeyOrder emitted first (in that fixed order) and the
// remainder emitted key-sorted.
func WriteAttrs(buf *bytes.Buffer, attrs []Attr) {
	sorted := make([]Attr, len(attrs))
	copy(sorted, attrs)
	sort.SliceStable(sorted, func(i, j int) bool {
		ri, typedI := typedKeyRank[sorted[i].Key]
		rj, typedJ := typedKeyRank[sorted[j].Key]
		switch {
		case typedI && typedJ:
			return ri < rj
		case typedI:
			return true
		case typedJ:
			return false
		default:
			return sorted[i].Key < sorted[j].Key
		}
	})
	buf.WriteByte('{')
	for i, a := range sorted {
		if i > 0 {
			buf.WriteByte(',')
		}
		WriteJSONString(buf, a.Key)
		buf.WriteByte(':')
		WriteValue(buf, a.Value)
	}
	buf.WriteByte('}')
}

// WriteJSONString appends s as a properly escaped JSON string literal.
// json.Marshal of a bare string never reorders anything — the
// map-ordering hazard this package exists to avoid is specific to
// marshaling map/struct values — so reusing it here for escaping is
// safe and saves hand-rolling RFC 8259's escape table.
func WriteJSONString(buf *bytes.Buffer, s string) {
	b, _ := json.Marshal(s)
	buf.Write(b)
}

// WriteValue appends v as a JSON scalar. Supported types are the ones
// segment attributes and typed fields actually carry: string, bool,
// the integer and float kinds, and nil.
func WriteValue(buf *bytes.Buffer, v interface{}) {
	switch t := v.(type) {
	case nil:
		buf.WriteString("null")
	case string:
		WriteJSONString(buf, t)
	case bool:
		if t {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	default:
		b, err := json.Marshal(t)
		if err != nil {
			buf.WriteString("null")
			return
		}
		buf.Write(b)
	}
}

// NodeWriter accumulates the already-rendered JSON of a node's
// children so a caller can emit nodes bottom-up during a DFS without
// re-walking the tree.
type NodeWriter struct {
	buf bytes.Buffer
}

// WriteNode renders one trace-JSON tuple:
// [start_ms, stop_ms, "name_ref", {attrs}, [children...]].
func (n *NodeWriter) WriteNode(startMS, stopMS int64, nameRef string, attrs []Attr, childrenJSON []string) string {
	n.buf.Reset()
	n.buf.WriteByte('[')
	WriteValue(&n.buf, startMS)
	n.buf.WriteByte(',')
	WriteValue(&n.buf, stopMS)
	n.buf.WriteByte(',')
	WriteJSONString(&n.buf, nameRef)
	n.buf.WriteByte(',')
	WriteAttrs(&n.buf, attrs)
	n.buf.WriteByte(',')
	n.buf.WriteByte('[')
	for i, c := range childrenJSON {
		if i > 0 {
			n.buf.WriteByte(',')
		}
		n.buf.WriteString(c)
	}
	n.buf.WriteByte(']')
	n.buf.WriteByte(']')
	return n.buf.String()
}

// WriteDocument renders the outer trace document:
// [[0, {}, {}, root_node, intrinsics], name_pool].
func WriteDocument(rootNodeJSON string, intrinsics []Attr, namePool []string) string {
	var buf bytes.Buffer
	buf.WriteString("[[0,{},{},")
	buf.WriteString(rootNodeJSON)
	buf.WriteByte(',')
	WriteAttrs(&buf, intrinsics)
	buf.WriteString("],[")
	for i, name := range namePool {
		if i > 0 {
			buf.WriteByte(',')
		}
		WriteJSONString(&buf, name)
	}
	buf.WriteString("]]")
	return buf.String()
}

// WriteRootWrapper renders the root node's outer wrapper:
// [0, duration_ms, "ROOT", {}, [real_root_node]].
func WriteRootWrapper(durationMS int64, realRootJSON string) string {
	var buf bytes.Buffer
	buf.WriteString("[0,")
	WriteValue(&buf, durationMS)
	buf.WriteString(`,"ROOT",{},[`)
	buf.WriteString(realRootJSON)
	buf.WriteString("]]")
	return buf.String()
}
