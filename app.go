package tracecore

import (
	"sync"

	"github.com/apmcore/tracecore/internal/attribute"
	"github.com/apmcore/tracecore/internal/log"
	"github.com/apmcore/tracecore/internal/matcher"
	"github.com/apmcore/tracecore/internal/namer"
	"github.com/apmcore/tracecore/internal/telemetry"
)

// App is the process-wide handle: reference-counted, locked only by
// Acquire, Release and RefCount and while a transaction takes its
// naming configuration at Begin. Transactions keep pointers to the
// App's attribute filter and telemetry sink but never lock it after
// Begin.
type App struct {
	mu       sync.Mutex
	refCount int

	urlRules         namer.RuleSet
	txnRules         namer.RuleSet
	segmentTerms     *namer.SegmentTerms
	frameworkMatcher *matcher.Matcher

	attrFilter *attribute.Filter
	telemetry  *telemetry.Sink
}

// AppOption configures an App at construction time.
type AppOption func(*App)

// NewApp builds a process-wide App handle. client, if non-nil, receives
// Supportability-style counters; passing nil uses a no-op sink.
func NewApp(client telemetry.Client, opts ...AppOption) *App {
	if client == nil {
		client = telemetry.NoOp{}
	}
	a := &App{
		segmentTerms: namer.NewSegmentTerms(),
		telemetry:    telemetry.New(client),
	}
	for _, fn := range opts {
		fn(a)
	}
	return a
}

// WithURLRules installs the URL-rule set applied by the namer.
func WithURLRules(rules namer.RuleSet) AppOption {
	return func(a *App) { a.urlRules = rules }
}

// WithTxnRules installs the transaction-rule set applied by the namer.
func WithTxnRules(rules namer.RuleSet) AppOption {
	return func(a *App) { a.txnRules = rules }
}

// WithSegmentTerms installs the per-prefix segment-term whitelist table.
func WithSegmentTerms(terms *namer.SegmentTerms) AppOption {
	return func(a *App) { a.segmentTerms = terms }
}

// WithFrameworkPrefixes registers the ordered list of framework-handler
// path prefixes (e.g. "/controllers/", "/handlers/") used to shorten a
// PathFunction/PathAction raw name down to its trailing handler name
// before naming rules apply.
func WithFrameworkPrefixes(prefixes ...string) AppOption {
	return func(a *App) {
		m := matcher.New()
		for _, p := range prefixes {
			m.AddPrefix(p)
		}
		a.frameworkMatcher = m
	}
}

// WithAttributeFilter installs the process-wide include/exclude
// attribute filter.
func WithAttributeFilter(filter *attribute.Filter) AppOption {
	return func(a *App) { a.attrFilter = filter }
}

// Acquire increments the reference count, guarded by the app's lock,
// acquired only at transaction begin.
func (a *App) Acquire() {
	a.mu.Lock()
	a.refCount++
	a.mu.Unlock()
}

// Release decrements the reference count.
func (a *App) Release() {
	a.mu.Lock()
	a.refCount--
	a.mu.Unlock()
}

// RefCount reports the current reference count, for tests and
// diagnostics.
func (a *App) RefCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.refCount
}

func (a *App) namer() *namer.Namer {
	a.mu.Lock()
	defer a.mu.Unlock()
	return &namer.Namer{
		URLRules:         a.urlRules,
		TxnRules:         a.txnRules,
		SegmentTerms:     a.segmentTerms,
		FrameworkMatcher: a.frameworkMatcher,
	}
}

// SetLogger installs the process-wide logger used by this module.
func SetLogger(l log.Logger) { log.UseLogger(l) }
