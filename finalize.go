package tracecore

import (
	"strconv"
	"strings"

	"github.com/apmcore/tracecore/ext"
	"github.com/apmcore/tracecore/internal/attribute"
	"github.com/apmcore/tracecore/internal/heap"
	"github.com/apmcore/tracecore/internal/segment"
	"github.com/apmcore/tracecore/internal/wire"
)

// finalize runs the two-pass finalizer: pass 1 walks the tree once to
// compute exclusive times and total time and to build the bounded
// trace/span reservoirs; pass 2 walks it again in DFS order emitting
// trace JSON and span events using whatever pass 1 decided was in
// sample.
func (t *Txn) finalize() Artifacts {
	root := t.tree.Root()
	if root == nil {
		return Artifacts{}
	}
	if t.finalName != "" {
		root.NameIndex = t.names.Intern(t.finalName)
	}

	fin := &finalizer{
		txn:   t,
		nodeW: &wire.NodeWriter{},
	}
	fin.pass1(root)

	totalTimeNS := fin.totalTimeNS
	if t.opts.DiscountMainContextBlocking {
		blocked := segment.Exclusive(root.Start, root.Stop, segment.SameContextDescendantIntervals(root))
		mainActive := root.Duration() - blocked
		if mainActive < 0 {
			mainActive = 0
		}
		totalTimeNS = totalTimeNS - (root.Duration() - mainActive)
		if totalTimeNS < 0 {
			totalTimeNS = 0
		}
	}
	if t.totalTimeCallback != nil {
		t.totalTimeCallback(totalTimeNS)
	}

	fin.recordSegmentMetrics()
	t.recordRollupMetrics(totalTimeNS, root.Duration())

	var artifacts Artifacts
	artifacts.TotalTimeNS = totalTimeNS
	artifacts.TxnEventName = t.finalName

	if t.traceEligible(root.Duration()) {
		artifacts.TraceJSON = fin.emitTrace(root)
		artifacts.HasTrace = true
	}
	if t.spansEligible() {
		fin.clearColors(root)
		artifacts.SpanEvents = fin.emitSpans(root, "", "")
		artifacts.HasSpans = true
	}
	if t.metricsUnscoped.DroppedSinceLastCheck() {
		t.metricsUnscoped.ForceAdd(ext.SupportMetricsDropped, 1, -1)
	}
	if t.metricsScoped.DroppedSinceLastCheck() {
		t.metricsScoped.ForceAdd(ext.SupportMetricsDropped, 1, -1)
	}
	artifacts.MetricsJSON = t.metricsUnscoped.JSON(t.names.Intern)
	artifacts.ScopedMetricsJSON = t.metricsScoped.JSON(t.names.Intern)
	return artifacts
}

// recordSegmentMetrics walks every segment ever allocated (including
// discarded ones, which still carry metrics queued before their
// discard) and feeds each queued metric to the scoped or unscoped
// table by seg.Duration, with exclusive time when pass 1 computed one.
func (f *finalizer) recordSegmentMetrics() {
	for _, s := range f.txn.tree.Slab() {
		if len(s.Metrics) == 0 {
			continue
		}
		durationS := float64(s.Duration()) / 1e9
		exclusiveS := durationS
		if s.ExclusiveTime != nil {
			exclusiveS = float64(*s.ExclusiveTime) / 1e9
		}
		for _, qm := range s.Metrics {
			if qm.Scoped {
				f.txn.metricsScoped.Add(qm.Name, durationS, exclusiveS)
			} else {
				f.txn.metricsUnscoped.Add(qm.Name, durationS, exclusiveS)
			}
		}
	}
}

// recordRollupMetrics records the transaction-level unscoped metrics:
// the Web/OtherTransaction family, HttpDispatcher, total time, queue
// time, Apdex, and error counts, grounded on nr_txn_create_rollup_metrics
// and nr_txn_create_apdex_metrics.
func (t *Txn) recordRollupMetrics(totalTimeNS, durationNS int64) {
	durationS := float64(durationNS) / 1e9
	totalTimeS := float64(totalTimeNS) / 1e9

	name := t.finalName
	if name == "" {
		name = "(unknown)"
	}
	suffix := strings.TrimPrefix(name, "WebTransaction/")
	suffix = strings.TrimPrefix(suffix, "OtherTransaction/")

	if t.background {
		t.metricsUnscoped.Add(ext.OtherTransactionAll, durationS, -1)
		t.metricsUnscoped.Add(name, durationS, -1)
		t.metricsUnscoped.Add("OtherTransactionTotalTime", totalTimeS, -1)
		t.metricsUnscoped.Add("OtherTransactionTotalTime/"+suffix, totalTimeS, -1)
	} else {
		t.metricsUnscoped.Add(ext.WebTransaction, durationS, -1)
		t.metricsUnscoped.Add(name, durationS, -1)
		t.metricsUnscoped.Add(ext.HTTPDispatcher, durationS, -1)
		t.metricsUnscoped.Add("WebTransactionTotalTime", totalTimeS, -1)
		t.metricsUnscoped.Add("WebTransactionTotalTime/"+suffix, totalTimeS, -1)
		if t.queueStart != 0 {
			queueNS := -t.queueStart
			if queueNS < 0 {
				queueNS = 0
			}
			t.metricsUnscoped.Add(ext.WebQueueTime, float64(queueNS)/1e9, -1)
		}
	}

	if !t.opts.ApdexIgnore {
		t.recordApdex(name, durationS)
	}

	if len(t.errors) > 0 {
		t.metricsUnscoped.Add(ext.ErrorsAll, 0, -1)
		if t.background {
			t.metricsUnscoped.Add(ext.ErrorsAllOther, 0, -1)
		} else {
			t.metricsUnscoped.Add(ext.ErrorsAllWeb, 0, -1)
		}
		t.metricsUnscoped.Add("Errors/"+name, 0, -1)
	}
}

// recordApdex buckets durationS against ApdexT (satisfying ≤ T,
// tolerating ≤ 4T, else failing), with any recorded error forcing
// failing regardless of duration.
func (t *Txn) recordApdex(name string, durationS float64) {
	var satisfying, tolerating, failing int
	switch {
	case len(t.errors) > 0:
		failing = 1
	case durationS <= t.opts.ApdexT:
		satisfying = 1
	case durationS <= t.opts.ApdexT*4:
		tolerating = 1
	default:
		failing = 1
	}
	t.metricsUnscoped.AddApdex(ext.Apdex, satisfying, tolerating, failing, t.opts.ApdexT)
	t.metricsUnscoped.AddApdex(ext.Apdex+"/"+strings.TrimPrefix(strings.TrimPrefix(name, "WebTransaction/"), "OtherTransaction/"), satisfying, tolerating, failing, t.opts.ApdexT)
}

// traceEligible reports whether trace JSON should be produced:
// tt_enabled, trace_limit > 0, and duration meets the configured threshold.
func (t *Txn) traceEligible(durationNS int64) bool {
	if !t.opts.TTEnabled || t.opts.TraceLimit <= 0 {
		return false
	}
	var thresholdNS int64
	if t.opts.TTIsApdexF {
		thresholdNS = int64(t.opts.ApdexT * 4 * 1e9)
	} else {
		thresholdNS = t.opts.TTThresholdNS
	}
	return durationNS >= thresholdNS
}

// spansEligible reports whether span events should be produced: DT
// enabled, span events enabled, and the transaction sampled.
func (t *Txn) spansEligible() bool {
	if !t.opts.DistributedTracingEnabled || !t.opts.SpanEventsEnabled {
		return false
	}
	_, sampled := t.samplingDecision()
	return sampled
}

type finalizer struct {
	txn *Txn

	totalTimeNS int64

	traceHeap *heap.Heap[*segment.Segment]
	spanHeap  *heap.Heap[*segment.Segment]
	traceSet map[*segment.Segment]bool
	spanSet  map[*segment.Segment]bool

	nodeW *wire.NodeWriter
}

// pass1 walks the live tree once, skipping grey (already-visited)
// nodes, accumulating total time and, if the segment count exceeds
// either reservoir's limit, populating the bounded heaps.
func (f *finalizer) pass1(root *segment.Segment) {
	count := f.txn.tree.SegmentCount()
	if f.txn.opts.TraceLimit > 0 && count > f.txn.opts.TraceLimit {
		f.traceHeap = heap.New(f.txn.opts.TraceLimit, func(a, b *segment.Segment) bool {
			return a.Duration() < b.Duration()
		})
	}
	if f.txn.opts.SpanLimit > 0 && count > f.txn.opts.SpanLimit {
		f.spanHeap = heap.New(f.txn.opts.SpanLimit, spanLess)
	}

	var walk func(s *segment.Segment)
	walk = func(s *segment.Segment) {
		if s.Color == segment.Grey {
			return
		}
		s.Color = segment.Grey

		if s.Stop >= s.Start {
			excl := segment.Exclusive(s.Start, s.Stop, segment.SameContextChildIntervals(s))
			s.ExclusiveTime = &excl
			f.totalTimeNS += excl
		}

		if f.traceHeap != nil {
			f.traceHeap.Insert(s)
		}
		if f.spanHeap != nil {
			f.spanHeap.Insert(s)
		}

		s.Children.Each(walk)
	}
	walk(root)

	if f.traceHeap != nil {
		f.traceSet = make(map[*segment.Segment]bool, f.traceHeap.Len())
		for _, s := range f.traceHeap.Items() {
			f.traceSet[s] = true
		}
	}
	if f.spanHeap != nil {
		f.spanSet = make(map[*segment.Segment]bool, f.spanHeap.Len())
		for _, s := range f.spanHeap.Items() {
			f.spanSet[s] = true
		}
	}
}

// spanLess is the span reservoir comparator: a lower-priority segment
// is evicted first whatever its duration; among equal priorities the
// shorter segment is evicted first.
func spanLess(a, b *segment.Segment) bool {
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	return a.Duration() < b.Duration()
}

func (f *finalizer) clearColors(root *segment.Segment) {
	var walk func(*segment.Segment)
	walk = func(s *segment.Segment) {
		if s.Color == segment.White {
			return
		}
		s.Color = segment.White
		s.Children.Each(walk)
	}
	walk(root)
}

// emitTrace performs pass 2's trace-JSON DFS emission.
func (f *finalizer) emitTrace(root *segment.Segment) string {
	realRoot := f.emitNode(root)
	rootWrapper := wire.WriteRootWrapper(nsToMS(root.Duration()), realRoot)
	intrinsics := []wire.Attr{
		{Key: "totalTime", Value: float64(f.totalTimeNS) / 1e9},
	}
	return wire.WriteDocument(rootWrapper, intrinsics, f.txn.names.Names())
}

// emitNode renders seg's subtree bottom-up. Zero-duration segments are
// omitted and their children hoisted to seg's emission site.
// When a trace sample set exists and seg is not in it, seg itself is
// skipped but its children still emit, reparented to the nearest
// emitted ancestor — which, since emitNode only ever returns rendered
// JSON for emitted nodes, is simply the caller one level up.
func (f *finalizer) emitNode(seg *segment.Segment) string {
	var children []string
	n := seg.Children.Len()
	for i := 0; i < n; i++ {
		c := seg.Children.At(i)
		if c.Stop < c.Start {
			continue // malformed: dropped, not aborted
		}
		rendered := f.emitSegmentOrChildren(c)
		children = append(children, rendered...)
	}
	attrs := attrsFor(seg)
	return f.nodeW.WriteNode(nsToMS(seg.Start), nsToMS(seg.Stop), strconv.Itoa(f.resolveNameIndex(seg)), attrs, children)
}

// resolveNameIndex returns a name-pool index guaranteed to resolve:
// seg.NameIndex if SetName was ever called, else the (possibly newly
// interned) index for "<unknown>".
func (f *finalizer) resolveNameIndex(seg *segment.Segment) int {
	if _, ok := f.txn.names.String(seg.NameIndex); ok {
		return seg.NameIndex
	}
	return f.txn.names.Intern("<unknown>")
}

// emitSegmentOrChildren returns the rendered JSON for seg as a single
// element slice. If seg is zero-duration or excluded from the trace
// sample set, seg's own node is skipped and its children's rendered
// JSON is spliced in directly at this call site instead — which is
// exactly the hoisting/reparenting behavior the trace format needs.
func (f *finalizer) emitSegmentOrChildren(seg *segment.Segment) []string {
	zeroDuration := seg.Duration() == 0
	notInSample := f.traceSet != nil && !f.traceSet[seg]
	if zeroDuration || notInSample {
		var out []string
		n := seg.Children.Len()
		for i := 0; i < n; i++ {
			c := seg.Children.At(i)
			if c.Stop < c.Start {
				continue
			}
			out = append(out, f.emitSegmentOrChildren(c)...)
		}
		return out
	}
	return []string{f.emitNode(seg)}
}

func attrsFor(seg *segment.Segment) []wire.Attr {
	var attrs []wire.Attr
	if seg.Datastore != nil {
		d := seg.Datastore
		if d.Host != "" {
			attrs = append(attrs, wire.Attr{Key: "host", Value: d.Host})
		}
		if d.DBName != "" {
			attrs = append(attrs, wire.Attr{Key: "database_name", Value: d.DBName})
		}
		if d.SQLObfuscated != "" {
			attrs = append(attrs, wire.Attr{Key: "sql_obfuscated", Value: d.SQLObfuscated})
		}
		if d.PortOrPath != "" {
			attrs = append(attrs, wire.Attr{Key: "port_path_or_id", Value: d.PortOrPath})
		}
		if d.ExplainPlanJSON != "" {
			attrs = append(attrs, wire.Attr{Key: "explain_plan", Value: d.ExplainPlanJSON})
		}
		if d.InputQueryJSON != "" {
			attrs = append(attrs, wire.Attr{Key: "input_query", Value: d.InputQueryJSON})
		}
		if d.BacktraceJSON != "" {
			attrs = append(attrs, wire.Attr{Key: "backtrace", Value: d.BacktraceJSON})
		}
	}
	if seg.External != nil {
		e := seg.External
		if e.URI != "" {
			attrs = append(attrs, wire.Attr{Key: "uri", Value: e.URI})
		}
		if e.Library != "" {
			attrs = append(attrs, wire.Attr{Key: "library", Value: e.Library})
		}
		if e.Procedure != "" {
			attrs = append(attrs, wire.Attr{Key: "procedure", Value: e.Procedure})
		}
		if e.Status != 0 {
			attrs = append(attrs, wire.Attr{Key: "status", Value: e.Status})
		}
		if e.TransactionGUID != "" {
			attrs = append(attrs, wire.Attr{Key: "transaction_guid", Value: e.TransactionGUID})
		}
	}
	if seg.Message != nil {
		m := seg.Message
		if m.DestinationName != "" {
			attrs = append(attrs, wire.Attr{Key: "destination_name", Value: m.DestinationName})
		}
		if m.MessagingSystem != "" {
			attrs = append(attrs, wire.Attr{Key: "messaging_system", Value: m.MessagingSystem})
		}
		if m.ServerAddress != "" {
			attrs = append(attrs, wire.Attr{Key: "server_address", Value: m.ServerAddress})
		}
	}
	if seg.AsyncContextIndex != -1 {
		attrs = append(attrs, wire.Attr{Key: "async_context", Value: strconv.Itoa(seg.AsyncContextIndex)})
	}
	if s, ok := attributesOf(seg); ok {
		for _, a := range s {
			attrs = append(attrs, wire.Attr{Key: a.Key, Value: a.Value})
		}
	}
	return attrs
}

// attributesOf extracts the key-sorted user-attribute subset for the
// trace destination, if seg carries an attribute set. seg.Attributes
// is typed as segment.AttrSink (a narrow Add-only interface) so this
// package asserts the wider ForDestination capability that
// attribute.Set actually provides.
func attributesOf(seg *segment.Segment) ([]attribute.KV, bool) {
	type destinationLister interface {
		ForDestination(ext.Destination) []attribute.KV
	}
	lister, ok := seg.Attributes.(destinationLister)
	if !ok {
		return nil, false
	}
	return lister.ForDestination(ext.DestTrace), true
}

func nsToMS(ns int64) int64 { return ns / 1_000_000 }

func relStart(t *Txn, seg *segment.Segment) int64 { return t.absStartUS*1000 + seg.Start }

// emitSpans performs pass 2's span-event emission: one event per
// sampled segment, in DFS order, parent_id following the nearest
// emitted ancestor.
func (f *finalizer) emitSpans(seg *segment.Segment, parentID, parentCategory string) []SpanEvent {
	var out []SpanEvent
	inSample := f.spanSet == nil || f.spanSet[seg]
	nextParentID := parentID
	if inSample {
		ev := f.buildSpanEvent(seg, parentID)
		out = append(out, ev)
		nextParentID = ev.GUID
	}
	n := seg.Children.Len()
	for i := 0; i < n; i++ {
		c := seg.Children.At(i)
		out = append(out, f.emitSpans(c, nextParentID, parentCategory)...)
	}
	return out
}

func (f *finalizer) buildSpanEvent(seg *segment.Segment, parentID string) SpanEvent {
	name, ok := f.txn.names.String(seg.NameIndex)
	if !ok {
		name = "<unknown>"
	}
	if seg.ID == "" {
		seg.ID = randomSpanID()
	}
	var userAttrs, agentAttrs []wire.Attr
	if kvs, ok := attributesOf(seg); ok {
		for _, kv := range kvs {
			userAttrs = append(userAttrs, wire.Attr{Key: kv.Key, Value: kv.Value})
		}
	}
	agentAttrs = attrsFor(seg)

	category := "generic"
	switch seg.Type {
	case ext.SegmentDatastore:
		category = "datastore"
	case ext.SegmentExternal:
		category = "http"
	case ext.SegmentMessage:
		category = "message"
	}

	pid := parentID
	if seg.IsRoot() {
		pid = ""
	}

	return SpanEvent{
		Name:        name,
		Category:    category,
		TimestampMS: nsToMS(relStart(f.txn, seg)),
		DurationS:   float64(seg.Duration()) / 1e9,
		ParentID:    pid,
		GUID:        seg.ID,
		UserAttrs:   userAttrs,
		AgentAttrs:  agentAttrs,
	}
}
