package segment

import (
	"errors"
	"testing"

	"github.com/apmcore/tracecore/ext"
)

func TestNewErrorPlainCause(t *testing.T) {
	e := NewError("boom", "RuntimeError", errors.New("plain"))
	if e.Message != "boom" || e.Class != "RuntimeError" {
		t.Fatalf("unexpected error fields: %+v", e)
	}
	if e.Detail != "" {
		t.Fatalf("plain errors.New cause should not produce a formatted detail, got %q", e.Detail)
	}
}

func TestIsRootAndDuration(t *testing.T) {
	root := &Segment{Priority: ext.PriorityRoot, Start: 0, Stop: 100}
	if !root.IsRoot() {
		t.Fatal("expected root segment to report IsRoot")
	}
	if root.Duration() != 100 {
		t.Fatalf("expected duration 100, got %d", root.Duration())
	}

	open := &Segment{Start: 10}
	if open.Duration() != 0 {
		t.Fatalf("expected an unended segment to report 0 duration, got %d", open.Duration())
	}
}
