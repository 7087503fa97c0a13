package attribute

import (
	"testing"

	"github.com/apmcore/tracecore/ext"
)

func TestAddAndForDestination(t *testing.T) {
	s := NewSet(nil)
	s.Add("http.url", "/x", ext.DestTrace|ext.DestSpanEvent)
	s.Add("db.rows", 5, ext.DestTrace)

	trace := s.ForDestination(ext.DestTrace)
	if len(trace) != 2 {
		t.Fatalf("expected 2 trace attrs, got %d", len(trace))
	}
	if trace[0].Key != "db.rows" || trace[1].Key != "http.url" {
		t.Fatalf("expected key-sorted output, got %+v", trace)
	}
	span := s.ForDestination(ext.DestSpanEvent)
	if len(span) != 1 || span[0].Key != "http.url" {
		t.Fatalf("expected only http.url for span destination, got %+v", span)
	}
}

func TestFilterExcludeWins(t *testing.T) {
	f := NewFilter().
		Include("request.*", ext.DestAll).
		Exclude("request.headers.*", ext.DestAll)
	s := NewSet(f)
	d := s.Add("request.headers.cookie", "secret", ext.DestTrace)
	if d != ext.DestNone {
		t.Fatalf("expected exclude of more specific pattern to win, got %v", d)
	}
	d2 := s.Add("request.uri", "/x", ext.DestTrace)
	if d2 != ext.DestTrace {
		t.Fatalf("expected request.uri to remain included, got %v", d2)
	}
}

func TestFilterRestrictsDestinationOnly(t *testing.T) {
	f := NewFilter().Exclude("secret.*", ext.DestBrowser)
	s := NewSet(f)
	d := s.Add("secret.token", "x", ext.DestTrace|ext.DestBrowser)
	if d != ext.DestTrace {
		t.Fatalf("expected browser destination stripped but trace kept, got %v", d)
	}
}
