// Package trace implements the distributed-trace propagation layer:
// accepting and creating the proprietary JSON+base64 payload and the
// W3C Trace Context (traceparent/tracestate) headers, with the
// precedence, trust, and supportability-metric rules that go with
// them.
package trace

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/apmcore/tracecore/ext"
	"github.com/apmcore/tracecore/internal/telemetry"
)

// ParentType mirrors the "ty" field of the proprietary payload and the
// parentType segment of the W3C tracestate NR vendor entry.
type ParentType int

const (
	ParentApp ParentType = iota
	ParentBrowser
	ParentMobile
)

func (p ParentType) String() string {
	switch p {
	case ParentBrowser:
		return "Browser"
	case ParentMobile:
		return "Mobile"
	default:
		return "App"
	}
}

func parseParentType(s string) ParentType {
	switch s {
	case "Browser", "1":
		return ParentBrowser
	case "Mobile", "2":
		return ParentMobile
	default:
		return ParentApp
	}
}

// State holds one transaction's distributed-trace state: whichever of
// accept/create happened, and whatever was learned from or will be
// emitted in headers.
type State struct {
	InboundSet  bool
	OutboundSet bool
	W3CAccepted bool // true if the accepted inbound form was traceparent, not the proprietary payload

	TraceID         string // lowercase hex; 32 chars if accepted, else txn guid zero-padded
	GUID            string // inbound span/guid id
	TxnID           string // inbound transaction id
	Type            ParentType
	Account         string
	App             string
	Sampled         *bool
	Priority        float64
	TimestampMS     int64
	Transport       string
	TrustedParentID string   // W3C: the parent-id field of the accepted traceparent
	TracingVendors  []string // preserved non-NR tracestate vendor entries, sorted, <=31
}

// propagatedPayload is the on-the-wire shape of the proprietary DT
// payload: struct field order is preserved by
// encoding/json for structs (only map marshaling reorders keys), so
// this keeps the documented "v" then "d" tuple shape without needing
// the ordered wire writer used for trace JSON.
type propagatedPayload struct {
	V [2]int          `json:"v"`
	D propagatedFields `json:"d"`
}

type propagatedFields struct {
	Type      string  `json:"ty"`
	Account   string  `json:"ac"`
	App       string  `json:"ap"`
	ID        string  `json:"id,omitempty"`
	TraceID   string  `json:"tr"`
	TxnID     string  `json:"tx,omitempty"`
	Priority  *float64 `json:"pr,omitempty"`
	Sampled   *bool   `json:"sa,omitempty"`
	Timestamp int64   `json:"ti"`
	TrustKey  string  `json:"tk,omitempty"`
}

// AcceptResult is returned by Accept so callers can fold the outcome
// into transport-duration metrics without re-deriving state.
type AcceptResult struct {
	Accepted bool
	Type     ParentType
}

// Accept applies the precedence rule: traceparent first, then the
// proprietary "newrelic" header, and records exactly one accept-outcome
// supportability metric on every path. A W3C accept whose tracestate
// header has no valid entry for the trusted account key also records
// the NoNrEntry or InvalidNrEntry tracestate metric.
func Accept(st *State, headers map[string]string, transportType string, isWeb bool, trustedAccountKey, txnGUID string, sink *telemetry.Sink, nowMS int64) AcceptResult {
	if st.InboundSet || st.OutboundSet {
		sink.Incr(ext.SupportDTAcceptIgnoredCreateBefore)
		return AcceptResult{}
	}
	if transportType == "" {
		if isWeb {
			transportType = "HTTP"
		} else {
			transportType = "Unknown"
		}
	}

	traceparent, hasTraceparent := lookupHeader(headers, "traceparent")
	if hasTraceparent {
		return acceptW3C(st, traceparent, headers, transportType, trustedAccountKey, sink, nowMS)
	}

	newrelic, hasNewrelic := lookupHeader(headers, "newrelic")
	if hasNewrelic {
		return acceptProprietary(st, newrelic, transportType, trustedAccountKey, sink, nowMS)
	}

	sink.Incr(ext.SupportDTAcceptIgnoredNull)
	return AcceptResult{}
}

func lookupHeader(headers map[string]string, key string) (string, bool) {
	v, ok := headers[strings.ToLower(key)]
	return v, ok && v != ""
}

func acceptW3C(st *State, traceparent string, headers map[string]string, transportType, trustedAccountKey string, sink *telemetry.Sink, nowMS int64) AcceptResult {
	traceID, parentID, sampled, ok := parseTraceparent(traceparent)
	if !ok {
		sink.Incr(ext.SupportTraceContextParentParseExc)
		return AcceptResult{}
	}

	st.InboundSet = true
	st.W3CAccepted = true
	st.TraceID = traceID
	st.TrustedParentID = parentID
	st.GUID = parentID
	st.Sampled = &sampled
	st.Transport = transportType
	st.TimestampMS = nowMS
	st.Type = ParentApp

	if tracestate, has := lookupHeader(headers, "tracestate"); has {
		vendors, nrFound, nrValid := parseTracestate(st, tracestate, trustedAccountKey)
		st.TracingVendors = vendors
		if !nrFound {
			sink.Incr(ext.SupportTraceContextStateNoNrEntry)
		} else if !nrValid {
			sink.Incr(ext.SupportTraceContextStateInvalidNrEntry)
		}
	}

	sink.Incr(ext.SupportTraceContextAcceptSuccess)
	return AcceptResult{Accepted: true, Type: st.Type}
}

// parseTraceparent applies W3C Trace Context's field-length/hex-
// validity strictness, with one redesigned rule: version 0xff is
// rejected, every other non-zero version is accepted but its flags
// are treated as 00 (ignored) rather than read.
func parseTraceparent(header string) (traceID, parentID string, sampled bool, ok bool) {
	h := strings.ToLower(strings.Trim(header, "\t -"))
	if len(h) < 55 {
		return "", "", false, false
	}
	parts := strings.SplitN(h, "-", 5)
	if len(parts) < 4 {
		return "", "", false, false
	}
	version := parts[0]
	if len(version) != 2 {
		return "", "", false, false
	}
	v, err := strconv.ParseUint(version, 16, 8)
	if err != nil || v == 0xff {
		return "", "", false, false
	}
	if v == 0 && len(h) != 55 {
		return "", "", false, false
	}
	traceID = parts[1]
	if len(traceID) != 32 || !isHex(traceID) {
		return "", "", false, false
	}
	parentID = parts[2]
	if len(parentID) != 16 || !isHex(parentID) {
		return "", "", false, false
	}
	flags := parts[3]
	if len(flags) != 2 || !isHex(flags) {
		return "", "", false, false
	}
	if v == 0 {
		f, err := strconv.ParseUint(flags, 16, 8)
		if err != nil {
			return "", "", false, false
		}
		sampled = f&0x1 != 0
	} else {
		sampled = false // unknown versions: flags treated as 00
	}
	return traceID, parentID, sampled, true
}

func isHex(s string) bool {
	if len(s) == 0 {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// parseTracestate finds the "<trusted_key>@nr" vendor entry and
// preserves the rest (sorted, capped to 31) into tracingVendors.
func parseTracestate(st *State, header, trustedAccountKey string) (tracingVendors []string, nrFound, nrValid bool) {
	nrKey := trustedAccountKey + "@nr"
	groups := strings.Split(strings.Trim(header, "\t "), ",")
	var others []string
	for _, g := range groups {
		g = strings.TrimSpace(g)
		if g == "" {
			continue
		}
		eq := strings.Index(g, "=")
		if eq < 0 {
			continue
		}
		key, val := g[:eq], g[eq+1:]
		if key == nrKey {
			nrFound = true
			nrValid = applyNrTracestate(st, val)
			continue
		}
		others = append(others, g)
	}
	sort.Strings(others)
	if len(others) > 31 {
		others = others[:31]
	}
	return others, nrFound, nrValid
}

// applyNrTracestate parses the dash-separated NR vendor entry value:
// version-parentType-account-app-spanId-txnId-sampled-priority-timestamp.
func applyNrTracestate(st *State, val string) bool {
	fields := strings.Split(val, "-")
	if len(fields) < 9 {
		return false
	}
	st.Type = parseParentType(fields[1])
	st.Account = fields[2]
	st.App = fields[3]
	if fields[4] != "" {
		st.TrustedParentID = fields[4]
	}
	if fields[5] != "" {
		st.TxnID = fields[5]
	}
	if fields[6] != "" {
		sampled := fields[6] == "1"
		st.Sampled = &sampled
	}
	if fields[7] != "" {
		if p, err := strconv.ParseFloat(fields[7], 64); err == nil {
			st.Priority = p
		}
	}
	if fields[8] != "" {
		if ts, err := strconv.ParseInt(fields[8], 10, 64); err == nil {
			st.TimestampMS = ts
		}
	}
	return true
}

func acceptProprietary(st *State, raw, transportType, trustedAccountKey string, sink *telemetry.Sink, nowMS int64) AcceptResult {
	decoded := raw
	if !strings.HasPrefix(strings.TrimSpace(raw), "{") {
		b, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			sink.Incr(ext.SupportDTAcceptParseException)
			return AcceptResult{}
		}
		decoded = string(b)
	}
	var payload propagatedPayload
	if err := json.Unmarshal([]byte(decoded), &payload); err != nil {
		sink.Incr(ext.SupportDTAcceptParseException)
		return AcceptResult{}
	}
	if payload.V[0] != 0 {
		sink.Incr(ext.SupportDTAcceptIgnoredMajorVersion)
		return AcceptResult{}
	}
	trustKey := payload.D.TrustKey
	if trustKey == "" {
		trustKey = payload.D.Account
	}
	if trustKey != trustedAccountKey {
		sink.Incr(ext.SupportDTAcceptIgnoredUntrustedAcct)
		return AcceptResult{}
	}

	st.InboundSet = true
	st.W3CAccepted = false
	st.TraceID = payload.D.TraceID
	st.GUID = payload.D.ID
	st.TxnID = payload.D.TxnID
	st.Type = parseParentType(payload.D.Type)
	st.Account = payload.D.Account
	st.App = payload.D.App
	st.Sampled = payload.D.Sampled
	if payload.D.Priority != nil {
		st.Priority = *payload.D.Priority
	}
	st.TimestampMS = payload.D.Timestamp
	st.Transport = transportType

	sink.Incr(ext.SupportDTAcceptSuccess)
	return AcceptResult{Accepted: true, Type: st.Type}
}

// CreateProprietary builds the outbound JSON+base64-eligible payload.
// segmentID is used as "id" if non-empty, else a random
// 16-hex id is generated. Rejects (ok=false) when st records both an
// accepted inbound payload and an earlier outbound create.
func CreateProprietary(st *State, account, app, traceID, txnGUID, segmentID string, priority float64, sampled bool, nowMS int64, trustedAccountKey string, sink *telemetry.Sink) (string, bool) {
	if st.InboundSet && st.OutboundSet {
		sink.Incr(ext.SupportDTAcceptIgnoredCreateBefore)
		return "", false
	}
	id := segmentID
	if id == "" {
		id = randomSpanID()
	}
	payload := propagatedPayload{
		V: [2]int{0, 1},
		D: propagatedFields{
			Type:      ParentApp.String(),
			Account:   account,
			App:       app,
			ID:        id,
			TraceID:   traceID,
			TxnID:     txnGUID,
			Priority:  &priority,
			Sampled:   &sampled,
			Timestamp: nowMS,
		},
	}
	if trustedAccountKey != account {
		payload.D.TrustKey = trustedAccountKey
	}
	b, err := json.Marshal(payload)
	if err != nil {
		sink.Incr(ext.SupportDTCreateException)
		return "", false
	}
	st.OutboundSet = true
	sink.Incr(ext.SupportDTCreateSuccess)
	return string(b), true
}

// CreateW3CTraceparent builds the outbound traceparent header value.
func CreateW3CTraceparent(st *State, traceID, segmentID string, sampled bool, sink *telemetry.Sink) (string, bool) {
	if st.InboundSet && st.OutboundSet {
		sink.Incr(ext.SupportDTAcceptIgnoredCreateBefore)
		return "", false
	}
	id := segmentID
	if id == "" {
		id = randomSpanID()
	}
	flags := "00"
	if sampled {
		flags = "01"
	}
	st.OutboundSet = true
	sink.Incr(ext.SupportTraceContextCreateSuccess)
	return fmt.Sprintf("00-%s-%s-%s", traceID, id, flags), true
}

// CreateW3CTracestate builds the outbound tracestate header value,
// with the NR vendor entry first followed by preserved inbound vendor
// entries, comma-joined.
func CreateW3CTracestate(st *State, trustedAccountKey, account, app, spanID, txnID string, sampled bool, priority float64, nowMS int64) string {
	sampledBit := "0"
	if sampled {
		sampledBit = "1"
	}
	nr := fmt.Sprintf("%s@nr=0-0-%s-%s-%s-%s-%s-%s-%d",
		trustedAccountKey, account, app, spanID, txnID, sampledBit, formatPriority(priority), nowMS)
	if len(st.TracingVendors) == 0 {
		return nr
	}
	return nr + "," + strings.Join(st.TracingVendors, ",")
}

func formatPriority(p float64) string {
	return strconv.FormatFloat(p, 'g', -1, 64)
}

func randomSpanID() string {
	u := uuid.New()
	return hex.EncodeToString(u[:8])
}

// TraceIDOrPadded returns the accepted inbound trace id, or — if none
// was accepted — the transaction guid left-padded with zeros to 32
// hex characters.
func TraceIDOrPadded(st *State, txnGUID string) string {
	if st.InboundSet && st.TraceID != "" {
		return st.TraceID
	}
	if len(txnGUID) >= 32 {
		return txnGUID[:32]
	}
	return strings.Repeat("0", 32-len(txnGUID)) + txnGUID
}
