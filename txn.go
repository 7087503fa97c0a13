package tracecore

import (
	"time"

	"github.com/apmcore/tracecore/ext"
	"github.com/apmcore/tracecore/internal/attribute"
	"github.com/apmcore/tracecore/internal/log"
	"github.com/apmcore/tracecore/internal/metrics"
	"github.com/apmcore/tracecore/internal/namer"
	"github.com/apmcore/tracecore/internal/segment"
	"github.com/apmcore/tracecore/internal/stringtable"
	"github.com/apmcore/tracecore/internal/telemetry"
	"github.com/apmcore/tracecore/internal/trace"
)

// TxnError is the transaction-level error record. Only the
// highest-priority error observed is kept; a later error of equal
// priority replaces it, a later lower-priority error is dropped.
type TxnError struct {
	Priority  int
	Message   string
	Class     string
	StackJSON string
}

// CustomEvent is one entry of the custom-events reservoir.
type CustomEvent struct {
	Type   string
	Params map[string]interface{}
	When   time.Time
}

// LogEvent is one entry of the log-events reservoir.
type LogEvent struct {
	Level       string
	Message     string
	TimestampNS int64
	Labels      map[string]string
	AppName     string
}

// Txn is one request or background job. It is owned by exactly one
// execution context for its lifetime, from begin through end and
// finalize — no internal locking.
type Txn struct {
	app  *App
	opts Options

	guid       string
	absStartUS int64
	clock      func() int64 // ns elapsed since absStart

	tree            *segment.Tree
	names           *stringtable.Pool
	metricsScoped   *metrics.Table
	metricsUnscoped *metrics.Table
	attrFilter      *attribute.Filter
	attrs           *attribute.Set
	dt              *trace.State
	namer           *namer.Namer
	telemetry       *telemetry.Sink

	recording  bool
	background bool
	ignore     bool
	ended      bool

	pathFrozen   bool
	pathType     ext.PathType
	pathCategory string
	pathName     string
	finalName    string

	httpStatus int
	queueStart int64 // http_x_start, ns since absStart; 0 = unset

	errors []TxnError

	customEvents []CustomEvent
	logEvents    []LogEvent

	totalTimeCallback func(totalTimeNS int64)
	sink              HarvestSink
}

// Begin starts a new transaction owned by app.
func Begin(app *App, opts Options, sink HarvestSink) *Txn {
	start := time.Now()
	return beginAt(app, opts, sink, start.UnixMicro(), func() int64 { return int64(time.Since(start)) })
}

func beginAt(app *App, opts Options, sink HarvestSink, absStartUS int64, clock func() int64) *Txn {
	app.Acquire()
	var bound int
	if opts.MaxSegments > 0 {
		bound = opts.MaxSegments
	}
	t := &Txn{
		app:             app,
		opts:            opts,
		guid:            randomSpanID(),
		absStartUS:      absStartUS,
		clock:           clock,
		tree:            segment.NewTree(bound, clock),
		names:           stringtable.New(),
		metricsScoped:   metrics.New(0),
		metricsUnscoped: metrics.New(0),
		dt:              &trace.State{},
		namer:           app.namer(),
		telemetry:       app.telemetry,
		recording:       true,
		sink:            sink,
	}
	t.attrFilter = app.attrFilter
	t.attrs = t.newAttrSet()
	return t
}

func (t *Txn) newAttrSet() *attribute.Set {
	return attribute.NewSet(t.attrFilter)
}

// contextIndex maps an async-context name to the integer key the
// segment tree uses for its per-context parent stacks. "" is the
// default (unnamed) context.
func (t *Txn) contextIndex(asyncContext string) int {
	if asyncContext == "" {
		return -1
	}
	return t.names.Intern(asyncContext)
}

// SegmentStart begins a new segment.
func (t *Txn) SegmentStart(parent *Seg, asyncContext string) *Seg {
	if !t.recording {
		return &Seg{txn: t, seg: &segment.Segment{}}
	}
	var parentSeg *segment.Segment
	if parent != nil {
		parentSeg = parent.seg
	}
	s := t.tree.Start(parentSeg, t.contextIndex(asyncContext), ext.SegmentCustom)
	return &Seg{txn: t, seg: s}
}

// Root returns the transaction's root segment handle.
func (t *Txn) Root() *Seg {
	return &Seg{txn: t, seg: t.tree.Root()}
}

// GUID returns the transaction's own 16-hex identifier.
func (t *Txn) GUID() string { return t.guid }

// Ignore marks the transaction so end/finalize still run but produce
// no output.
func (t *Txn) Ignore() { t.ignore = true }

// SetAsBackground marks the transaction as a background job rather
// than web. Rejected once the name has frozen, mirroring
// Supportability/background_status_change_prevented.
func (t *Txn) SetAsBackground() bool {
	if t.pathFrozen {
		t.telemetry.Incr(ext.SupportBackgroundStatusChangePrev)
		return false
	}
	t.background = true
	return true
}

// SetAsWeb marks the transaction as a web transaction.
func (t *Txn) SetAsWeb() bool {
	if t.pathFrozen {
		t.telemetry.Incr(ext.SupportBackgroundStatusChangePrev)
		return false
	}
	t.background = false
	return true
}

// SetHTTPStatus records the response status code.
func (t *Txn) SetHTTPStatus(status int) { t.httpStatus = status }

// SetQueueStart records the queue-arrival time as a nanosecond offset
// from the transaction start (negative when the request queued before
// the transaction began), used for the WebFrontend/QueueTime metric.
func (t *Txn) SetQueueStart(ns int64) { t.queueStart = ns }

// SetPath names the transaction. A higher-priority pathType
// overwrites a previously frozen name; overwritePolicy, when true,
// forces replacement even at equal-or-lower priority.
func (t *Txn) SetPath(rawName string, pathType ext.PathType, overwritePolicy bool) {
	if t.pathFrozen && pathType <= t.pathType && !overwritePolicy {
		return
	}
	category := pathType.String()
	name, ignore := t.namer.Name(rawName, category, pathType, t.background)
	if ignore {
		t.ignore = true
		return
	}
	t.pathName = rawName
	t.pathType = pathType
	t.pathCategory = category
	t.finalName = name
	t.pathFrozen = true
}

// RecordError attaches an error to the transaction. Only the
// highest-priority error observed is kept. If addToSegment, the
// transaction's root segment also gets the error.
func (t *Txn) RecordError(priority int, addToSegment bool, msg, class, stackJSON string) {
	if !t.opts.ErrorCollectionEnabled {
		return
	}
	if t.opts.HighSecurity {
		msg = ""
		stackJSON = ""
	}
	if len(t.errors) == 0 || priority >= t.errors[0].Priority {
		t.errors = []TxnError{{Priority: priority, Message: msg, Class: class, StackJSON: stackJSON}}
	}
	if addToSegment {
		t.Root().SetError(msg, class)
	}
}

// AddUserCustomParameter stores a user-supplied key/value visible to
// trace, error, and transaction-event destinations, refused entirely
// under high security.
func (t *Txn) AddUserCustomParameter(key string, value interface{}) bool {
	if t.opts.HighSecurity {
		return false
	}
	dest := t.attrs.Add(key, value, ext.DestTrace|ext.DestError|ext.DestTxnEvent)
	return dest != ext.DestNone
}

// AddCustomMetric adds a custom timing metric, valueMS in
// milliseconds.
func (t *Txn) AddCustomMetric(name string, valueMS float64) {
	t.metricsUnscoped.Add(name, valueMS/1000.0, -1)
}

// RecordCustomEvent appends to the custom-events reservoir, unless
// custom events are disabled or high security is set.
func (t *Txn) RecordCustomEvent(eventType string, params map[string]interface{}, when time.Time) bool {
	if !t.opts.CustomEventsEnabled || t.opts.HighSecurity {
		return false
	}
	t.customEvents = append(t.customEvents, CustomEvent{Type: eventType, Params: params, When: when})
	return true
}

// RecordLogEvent appends to the log-events reservoir and bumps the
// Logging/lines family of Supportability counters.
func (t *Txn) RecordLogEvent(level, msg string, timestampNS int64, labels map[string]string, appName string) {
	t.logEvents = append(t.logEvents, LogEvent{Level: level, Message: msg, TimestampNS: timestampNS, Labels: labels, AppName: appName})
	t.telemetry.Incr("Logging/lines")
	t.telemetry.Incr("Logging/lines/" + level)
}

// AcceptDistributedTracePayload accepts an inbound distributed-trace
// payload, trying the W3C form first and falling back to the
// proprietary form.
func (t *Txn) AcceptDistributedTracePayload(headers map[string]string, transportType string) bool {
	if !t.opts.DistributedTracingEnabled {
		return false
	}
	res := trace.Accept(t.dt, headers, transportType, !t.background, t.opts.TrustedAccountKey, t.guid, t.telemetry, nowMS(t))
	if !res.Accepted {
		return false
	}
	t.recordTransportDuration(res)
	return true
}

func (t *Txn) recordTransportDuration(res trace.AcceptResult) {
	elapsedMS := nowMS(t) - t.dt.TimestampMS
	if elapsedMS < 0 {
		elapsedMS = 0
	}
	suffix := "Other"
	if !t.background {
		suffix = "Web"
	}
	name := "TransportDuration/" + res.Type.String() + "/" + t.dt.Account + "/" + t.dt.App + "/" + t.dt.Transport + "/" + suffix
	t.metricsUnscoped.Add(name, float64(elapsedMS)/1000.0, -1)
}

func nowMS(t *Txn) int64 {
	return t.absStartUS/1000 + t.clock()/int64(time.Millisecond)
}

// CreateDistributedTracePayload creates the proprietary outbound
// distributed-trace payload.
func (t *Txn) CreateDistributedTracePayload(seg *Seg) (string, bool) {
	if !t.opts.DistributedTracingEnabled {
		return "", false
	}
	traceID := trace.TraceIDOrPadded(t.dt, t.guid)
	segmentID := ""
	if seg != nil {
		segmentID = seg.ID()
	}
	priority, sampled := t.samplingDecision()
	return trace.CreateProprietary(t.dt, t.opts.AccountID, t.opts.AppID, traceID, t.guid, segmentID, priority, sampled, nowMS(t), t.opts.TrustedAccountKey, t.telemetry)
}

// CreateW3CTraceparentHeader creates the outbound traceparent header.
func (t *Txn) CreateW3CTraceparentHeader(seg *Seg) (string, bool) {
	if !t.opts.DistributedTracingEnabled {
		return "", false
	}
	traceID := trace.TraceIDOrPadded(t.dt, t.guid)
	segmentID := ""
	if seg != nil {
		segmentID = seg.ID()
	}
	_, sampled := t.samplingDecision()
	return trace.CreateW3CTraceparent(t.dt, traceID, segmentID, sampled, t.telemetry)
}

// CreateW3CTracestateHeader creates the outbound tracestate header.
func (t *Txn) CreateW3CTracestateHeader(seg *Seg) string {
	segmentID := ""
	if seg != nil {
		segmentID = seg.ID()
	}
	priority, sampled := t.samplingDecision()
	return trace.CreateW3CTracestate(t.dt, t.opts.TrustedAccountKey, t.opts.AccountID, t.opts.AppID, segmentID, t.guid, sampled, priority, nowMS(t))
}

// samplingDecision returns this transaction's DT priority/sampled
// pair: whatever was set by an accepted inbound payload, or a default
// "always sample" decision for a root transaction.
func (t *Txn) samplingDecision() (priority float64, sampled bool) {
	if t.dt.InboundSet && t.dt.Sampled != nil {
		return t.dt.Priority, *t.dt.Sampled
	}
	return 1.0, true
}

// End finalizes the transaction: every open segment is closed to now,
// the finalizer runs, and the resulting artifacts are handed to the
// harvest sink. Safe to call more than once; only the first call has
// any effect.
func (t *Txn) End() {
	if t.ended {
		return
	}
	t.ended = true
	t.recording = false
	closeOpenSegments(t.tree, t.clock())
	artifacts := t.finalize()
	if t.ignore {
		return
	}
	if t.sink != nil {
		t.sink.HarvestTxn(artifacts)
	}
	log.Debug("tracecore: transaction %s finalized", t.guid)
}

func closeOpenSegments(tr *segment.Tree, now int64) {
	for _, s := range tr.Slab() {
		if s.Stop == 0 {
			s.Stop = now
		}
	}
}
