package tracecore

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/apmcore/tracecore/ext"
	"github.com/apmcore/tracecore/internal/segment"
)

// TestMain verifies the core leaks no goroutines across a suite run; it
// does none of its own work, so this is mostly a check that nothing
// accidentally starts a background worker.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// clockAt returns a fake clock that yields each value in sequence,
// holding on the last one once exhausted.
func clockAt(valuesNS ...int64) func() int64 {
	i := 0
	return func() int64 {
		v := valuesNS[i]
		if i < len(valuesNS)-1 {
			i++
		}
		return v
	}
}

func TestSyncTransactionProducesNestedTraceAndRollupMetrics(t *testing.T) {
	clock := clockAt(10_000_000, 20_000_000, 40_000_000, 60_000_000, 100_000_000)
	app := NewApp(nil)
	var got Artifacts
	sink := HarvestFunc(func(a Artifacts) { got = a })

	txn := beginAt(app, New(), sink, 1_000_000_000, clock)
	s1 := txn.SegmentStart(txn.Root(), "")
	s1.SetName("Segment/S1")
	s2 := txn.SegmentStart(s1, "")
	s2.SetName("Segment/S2")
	s2.End()
	s1.End()
	txn.SetPath("/users/:id", ext.PathURI, false)
	txn.End()

	require.True(t, got.HasTrace)
	assert.Equal(t, int64(100_000_000), got.TotalTimeNS)
	assert.Contains(t, got.TraceJSON, `[0,100,"ROOT"`)
	assert.Contains(t, got.TraceJSON, "[10,60,")
	assert.Contains(t, got.TraceJSON, "[20,40,")

	require.True(t, got.HasSpans)
	assert.Len(t, got.SpanEvents, 3)

	assert.Equal(t, "WebTransaction/Uri/users/:id", txn.finalName)
	assert.Equal(t, 7, txn.metricsUnscoped.Len())
	assert.Contains(t, got.MetricsJSON, `"data":[1,0.100000,0.100000,0.100000,0.100000,0.010000]`)
	assert.Contains(t, got.MetricsJSON, `"data":[1,0,0,0.500000,0.500000,0]`)
}

func TestDiscountMainContextBlockingReducesTotalTime(t *testing.T) {
	clock := clockAt(0, 10_000_000, 20_000_000, 40_000_000, 40_000_000)
	app := NewApp(nil)
	var got Artifacts
	sink := HarvestFunc(func(a Artifacts) { got = a })

	txn := beginAt(app, New(WithDiscountMainContextBlocking()), sink, 0, clock)
	bg := txn.SegmentStart(nil, "bg")
	main := txn.SegmentStart(nil, "")
	main.End()
	bg.End()
	txn.End()

	// Without the discount, pass 1's exclusive-time sum is 80ms: root
	// runs 30ms of its own code (40ms minus the 10ms "main" spent
	// inside it), "main" runs 10ms, and "bg" runs the full 40ms on its
	// own context. The discount nets out the 30ms the root's own
	// context was blocked waiting on "bg", leaving 50ms.
	assert.Equal(t, int64(50_000_000), got.TotalTimeNS)
}

func TestBoundedTraceReservoirRetainsRootAndLongestSegment(t *testing.T) {
	clock := clockAt(1_000_000, 2_000_000, 3_000_000, 4_000_000, 5_000_000, 6_000_000, 9_000_000)
	app := NewApp(nil)
	var got Artifacts
	sink := HarvestFunc(func(a Artifacts) { got = a })

	opts := New()
	opts.TraceLimit = 2
	opts.SpanEventsEnabled = false

	txn := beginAt(app, opts, sink, 0, clock)
	txn.Root().SetName("WebTransaction/*")
	a := txn.SegmentStart(nil, "")
	a.SetName("A")
	b := txn.SegmentStart(a, "")
	c := txn.SegmentStart(b, "")
	c.End()
	b.End()
	a.End()
	txn.End()

	require.True(t, got.HasTrace)
	assert.False(t, got.HasSpans)
	assert.Contains(t, got.TraceJSON, `[0,9,"ROOT"`)
	assert.Contains(t, got.TraceJSON, "[1,6,")
	assert.NotContains(t, got.TraceJSON, "[2,5,")
	assert.NotContains(t, got.TraceJSON, "[3,4,")
	assert.True(t, strings.HasSuffix(got.TraceJSON, `],["WebTransaction/*","A"]]`))
}

func TestPerSegmentQueuedMetricsDrainToScopedAndUnscopedTables(t *testing.T) {
	clock := clockAt(0, 10_000_000)
	app := NewApp(nil)
	var got Artifacts
	sink := HarvestFunc(func(a Artifacts) { got = a })

	txn := beginAt(app, New(), sink, 0, clock)
	seg := txn.SegmentStart(nil, "")
	seg.AddChildMetric("Custom/Scoped", true)
	seg.AddChildMetric("Custom/Unscoped", false)
	seg.End()
	txn.End()

	assert.Equal(t, 1, txn.metricsScoped.Len())
	assert.Contains(t, got.ScopedMetricsJSON, `"data":[1,0.010000,0.010000,0.010000,0.010000,0.000100]`)
	assert.GreaterOrEqual(t, txn.metricsUnscoped.Len(), 1)
}

func TestSpanEventBatchEncodesToMsgpack(t *testing.T) {
	clock := clockAt(0, 5_000_000, 10_000_000)
	app := NewApp(nil)
	var got Artifacts
	sink := HarvestFunc(func(a Artifacts) { got = a })

	txn := beginAt(app, New(), sink, 0, clock)
	seg := txn.SegmentStart(nil, "")
	seg.SetDatastore(segment.DatastoreAttrs{
		Host:          "db.internal",
		DBName:        "orders",
		SQLObfuscated: "select * from orders",
		PortOrPath:    "5432",
	})
	seg.End()
	txn.End()

	require.True(t, got.HasSpans)
	require.NotEmpty(t, got.SpanEvents)

	encoded, err := got.EncodeSpanEventBatch()
	require.NoError(t, err)
	assert.NotEmpty(t, encoded)
}
