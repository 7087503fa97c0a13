package matcher

import "testing"

func TestMatchFirstSegment(t *testing.T) {
	m := New()
	m.AddPrefix("/api")
	got, ok := m.Match("/api/users/42")
	if !ok || got != "users" {
		t.Fatalf("expected 'users', got %q ok=%v", got, ok)
	}
}

func TestMatchCaseInsensitivePrefix(t *testing.T) {
	m := New()
	m.AddPrefix("/API")
	got, ok := m.Match("/api/Users/42")
	if !ok || got != "Users" {
		t.Fatalf("expected original-case 'Users', got %q", got)
	}
}

func TestMatchFirstPrefixWins(t *testing.T) {
	m := New()
	m.AddPrefix("/api/v1")
	m.AddPrefix("/api")
	got, ok := m.Match("/api/v1/widgets")
	if !ok || got != "widgets" {
		t.Fatalf("expected first-registered prefix to match, got %q", got)
	}
}

func TestMatchNoPrefix(t *testing.T) {
	m := New()
	m.AddPrefix("/admin")
	if _, ok := m.Match("/public/index"); ok {
		t.Fatal("expected no match")
	}
}

// The source's "directory matching" oddity (trailing content after a
// prefix with no further slash reincludes the prefix text) is
// normalized away here: a bare prefix match with nothing following
// returns the empty remainder, not the prefix itself.
func TestDirectoryMatchingNormalized(t *testing.T) {
	m := New()
	m.AddPrefix("/include")
	got, ok := m.Match("/include/")
	if !ok || got != "" {
		t.Fatalf("expected empty trailing segment, got %q", got)
	}
}

func TestMatchCoreTakesLastSegment(t *testing.T) {
	m := New()
	m.AddPrefix("/static")
	got, ok := m.MatchCore("/static/js/vendor/app.min.js")
	if !ok || got != "app.min.js" {
		t.Fatalf("expected last segment, got %q", got)
	}
}
