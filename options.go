package tracecore

import "github.com/apmcore/tracecore/ext"

// Options are a transaction's configuration, immutable after Begin.
type Options struct {
	DistributedTracingEnabled bool
	SpanEventsEnabled         bool
	TransactionEventsEnabled  bool
	CustomEventsEnabled       bool
	ErrorCollectionEnabled    bool
	ApdexIgnore               bool
	AnalyticsEventsEnabled    bool

	TTEnabled    bool
	TTThresholdNS int64 // 0 and TTIsApdexF both unset means "always trace"
	TTIsApdexF   bool
	ApdexT       float64 // seconds

	MaxSegments int // 0 = unbounded
	TraceLimit  int // bounded trace-segment reservoir size
	SpanLimit   int // bounded span-event reservoir size

	SpanQueueBatchSize    int
	SpanQueueBatchTimeoutNS int64

	RecordSQL ext.RecordSQL

	DiscountMainContextBlocking bool

	HighSecurity bool
	LASP         bool

	TrustedAccountKey string
	AccountID         string
	AppID             string
}

// Option configures Options via the functional-options pattern common
// to dd-trace-go-style tracer configuration surfaces (e.g.
// tracer.StartOption).
type Option func(*Options)

// defaultReservoirLimit is the trace/span reservoir size large enough
// that the bounded min-max heap never engages for an ordinarily sized
// transaction; callers tune it down with WithTraceLimit/WithSpanLimit.
const defaultReservoirLimit = 2000

// DefaultOptions returns the zero-value-safe baseline: DT, span events,
// transaction events, error collection, and analytics events on;
// tt_enabled with threshold 0 (always trace); unbounded segment tree,
// and trace/span reservoirs large enough not to bind in practice.
func DefaultOptions() Options {
	return Options{
		DistributedTracingEnabled: true,
		SpanEventsEnabled:         true,
		TransactionEventsEnabled:  true,
		CustomEventsEnabled:       true,
		ErrorCollectionEnabled:    true,
		AnalyticsEventsEnabled:    true,
		TTEnabled:                 true,
		ApdexT:                    0.5,
		TraceLimit:                defaultReservoirLimit,
		SpanLimit:                 defaultReservoirLimit,
		RecordSQL:                 ext.RecordSQLObfuscated,
	}
}

// WithMaxSegments bounds the segment tree.
func WithMaxSegments(n int) Option { return func(o *Options) { o.MaxSegments = n } }

// WithTraceThreshold sets an absolute nanosecond trace-JSON threshold
// and disables the apdex-multiple threshold.
func WithTraceThreshold(ns int64) Option {
	return func(o *Options) { o.TTThresholdNS = ns; o.TTIsApdexF = false }
}

// WithApdexThresholdTrace makes the trace threshold 4x apdex_t instead
// of an absolute value.
func WithApdexThresholdTrace() Option { return func(o *Options) { o.TTIsApdexF = true } }

// WithApdexT sets the Apdex satisfying threshold, in seconds.
func WithApdexT(seconds float64) Option { return func(o *Options) { o.ApdexT = seconds } }

// WithTraceLimit bounds the trace-segment reservoir; every segment is
// eligible as long as segment_count stays at or below n. n == 0 turns
// trace-JSON production off entirely.
func WithTraceLimit(n int) Option { return func(o *Options) { o.TraceLimit = n } }

// WithSpanLimit bounds the span-event reservoir.
func WithSpanLimit(n int) Option { return func(o *Options) { o.SpanLimit = n } }

// WithDiscountMainContextBlocking enables the total-time adjustment
// that nets out time the main context spent blocked on other contexts.
func WithDiscountMainContextBlocking() Option {
	return func(o *Options) { o.DiscountMainContextBlocking = true }
}

// WithDistributedTracing toggles distributed tracing.
func WithDistributedTracing(enabled bool) Option {
	return func(o *Options) { o.DistributedTracingEnabled = enabled }
}

// WithHighSecurity enables the high-security posture: strips error
// messages, forbids user-custom attribute additions.
func WithHighSecurity() Option { return func(o *Options) { o.HighSecurity = true } }

// WithTrustedAccount sets the DT trust triple.
func WithTrustedAccount(trustedKey, accountID, appID string) Option {
	return func(o *Options) {
		o.TrustedAccountKey = trustedKey
		o.AccountID = accountID
		o.AppID = appID
	}
}

// New applies opts over DefaultOptions.
func New(opts ...Option) Options {
	o := DefaultOptions()
	for _, fn := range opts {
		fn(&o)
	}
	return o
}
