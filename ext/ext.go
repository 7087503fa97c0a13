// Package ext holds the fixed string constants that make up part of the
// wire contract between this core and the backend it reports to: segment
// priority flags, segment/span categories, and Supportability metric names.
package ext

// SegmentPriority is a bitfield. Higher numeric priority survives longer
// in the finalizer's bounded span-event reservoir.
type SegmentPriority uint32

const (
	// PriorityRoot marks the transaction's root segment.
	PriorityRoot SegmentPriority = 1 << 16
	// PriorityDT marks a segment that participated in distributed-trace
	// payload creation (its id was emitted in an outbound header).
	PriorityDT SegmentPriority = 1 << 15
	// PriorityLog marks a segment associated with a forwarded log event.
	PriorityLog SegmentPriority = 1 << 14
	// PriorityAttr marks a segment carrying a user attribute.
	PriorityAttr SegmentPriority = 1 << 13
)

// SegmentType discriminates the typed payload a segment carries.
type SegmentType int

const (
	SegmentCustom SegmentType = iota
	SegmentDatastore
	SegmentExternal
	SegmentMessage
)

func (t SegmentType) String() string {
	switch t {
	case SegmentDatastore:
		return "datastore"
	case SegmentExternal:
		return "external"
	case SegmentMessage:
		return "message"
	default:
		return "custom"
	}
}

// SpanCategory is the span event's "category" field.
type SpanCategory string

const (
	CategoryGeneric   SpanCategory = "generic"
	CategoryDatastore SpanCategory = "datastore"
	CategoryHTTP      SpanCategory = "http"
	CategoryMessage   SpanCategory = "message"
)

// Destination is a bitmask of the places an attribute may be forwarded to.
type Destination uint8

const (
	DestTrace Destination = 1 << iota
	DestError
	DestTxnEvent
	DestSpanEvent
	DestBrowser

	DestNone Destination = 0
	DestAll  Destination = DestTrace | DestError | DestTxnEvent | DestSpanEvent | DestBrowser
)

// PathType is the namer's priority order for transaction names, lowest
// priority first.
type PathType int

const (
	PathUnknown PathType = iota
	PathURI
	PathStatusCode
	PathFunction
	PathAction
	PathCustom
)

func (t PathType) String() string {
	switch t {
	case PathURI:
		return "Uri"
	case PathStatusCode:
		return "StatusCode"
	case PathFunction:
		return "Function"
	case PathAction:
		return "Action"
	case PathCustom:
		return "Custom"
	default:
		return "Unknown"
	}
}

// RecordSQL controls how much of a datastore segment's SQL is retained.
type RecordSQL int

const (
	RecordSQLOff RecordSQL = iota
	RecordSQLRaw
	RecordSQLObfuscated
)

// Fixed Supportability metric name strings. These are part of the wire
// contract with the backend and must never be altered.
const (
	SupportDTAcceptSuccess              = "Supportability/DistributedTrace/AcceptPayload/Success"
	SupportDTAcceptException            = "Supportability/DistributedTrace/AcceptPayload/Exception"
	SupportDTAcceptParseException       = "Supportability/DistributedTrace/AcceptPayload/ParseException"
	SupportDTAcceptIgnoredNull          = "Supportability/DistributedTrace/AcceptPayload/Ignored/Null"
	SupportDTAcceptIgnoredMultiple      = "Supportability/DistributedTrace/AcceptPayload/Ignored/Multiple"
	SupportDTAcceptIgnoredMajorVersion  = "Supportability/DistributedTrace/AcceptPayload/Ignored/MajorVersion"
	SupportDTAcceptIgnoredUntrustedAcct = "Supportability/DistributedTrace/AcceptPayload/Ignored/UntrustedAccount"
	SupportDTAcceptIgnoredCreateBefore  = "Supportability/DistributedTrace/AcceptPayload/Ignored/CreateBeforeAccept"
	SupportDTCreateSuccess              = "Supportability/DistributedTrace/CreatePayload/Success"
	SupportDTCreateException            = "Supportability/DistributedTrace/CreatePayload/Exception"

	SupportTraceContextAcceptSuccess       = "Supportability/TraceContext/Accept/Success"
	SupportTraceContextParentParseExc      = "Supportability/TraceContext/TraceParent/Parse/Exception"
	SupportTraceContextStateNoNrEntry      = "Supportability/TraceContext/TraceState/NoNrEntry"
	SupportTraceContextStateInvalidNrEntry = "Supportability/TraceContext/TraceState/InvalidNrEntry"
	SupportTraceContextCreateSuccess       = "Supportability/TraceContext/Create/Success"
	SupportTraceContextCreateException     = "Supportability/TraceContext/Create/Exception"

	SupportInfiniteTracingSpanSeen = "Supportability/InfiniteTracing/Span/Seen"

	LoggingLines            = "Logging/lines"
	LoggingLinesLevelPrefix = "Logging/lines/" // + LEVEL
	LoggingForwardingDrop   = "Logging/Forwarding/Dropped"

	SupportMetricsDropped              = "Supportability/MetricsDropped"
	SupportInstrumentedFunctionPrefix  = "Supportability/InstrumentedFunction/" // + name
	SupportBackgroundStatusChangePrev  = "Supportability/background_status_change_prevented"

	HTTPDispatcher = "HttpDispatcher"
	WebTransaction = "WebTransaction"
	Apdex          = "Apdex"

	OtherTransactionAll = "OtherTransaction/all"
	WebQueueTime        = "WebFrontend/QueueTime"

	ErrorsAll      = "Errors/all"
	ErrorsAllWeb   = "Errors/allWeb"
	ErrorsAllOther = "Errors/allOther"
)
