package metrics

import (
	"strings"
	"testing"
)

func nameIdx(names []string) func(string) int {
	idx := map[string]int{}
	for i, n := range names {
		idx[n] = i
	}
	return func(s string) int { return idx[s] }
}

func TestAddAccumulates(t *testing.T) {
	tb := New(0)
	tb.Add("WebTransaction", 0.1, -1)
	tb.Add("WebTransaction", 0.3, -1)
	m, ok := tb.get("WebTransaction")
	if !ok {
		t.Fatal("expected metric present")
	}
	if m.Data[0] != 2 {
		t.Fatalf("expected count 2, got %v", m.Data[0])
	}
	if got := m.Data[1]; got < 0.399 || got > 0.401 {
		t.Fatalf("expected total ~0.4, got %v", got)
	}
	if m.Data[3] != 0.1 || m.Data[4] != 0.3 {
		t.Fatalf("expected min=0.1 max=0.3, got min=%v max=%v", m.Data[3], m.Data[4])
	}
}

// Metric drop scenario: table of size 1, two Add
// calls with different names (second dropped), one ForceAdd. Expect JSON
// array of length 3: first metric, forced MetricsDropped, forced metric.
func TestMetricDropScenario(t *testing.T) {
	tb := New(1)
	if !tb.Add("first", 0.05, -1) {
		t.Fatal("first add into empty table must succeed")
	}
	if tb.Add("second", 0.05, -1) {
		t.Fatal("second add must be dropped: table at capacity")
	}
	if !tb.DroppedSinceLastCheck() {
		t.Fatal("expected drop to be noted")
	}
	tb.ForceAdd("Supportability/MetricsDropped", 1, -1)
	tb.ForceAdd("forced-metric", 2, -1)

	names := []string{"first", "Supportability/MetricsDropped", "forced-metric"}
	js := tb.JSON(nameIdx(names))
	if strings.Count(js, `"name"`) != 3 {
		t.Fatalf("expected 3 entries, got json: %s", js)
	}
	if strings.Count(js, `"forced":true`) != 2 {
		t.Fatalf("expected 2 forced entries, got json: %s", js)
	}
}

func TestApdexBuckets(t *testing.T) {
	tb := New(0)
	tb.AddApdex("Apdex", 1, 0, 0, 0.5)
	tb.AddApdex("Apdex", 0, 1, 0, 0.5)
	m, _ := tb.get("Apdex")
	if m.Data[0] != 1 || m.Data[1] != 1 || m.Data[2] != 0 {
		t.Fatalf("unexpected apdex buckets: %v", m.Data)
	}
	if m.Flags&FlagApdex == 0 {
		t.Fatal("expected apdex flag set")
	}
}
