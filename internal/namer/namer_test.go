package namer

import (
	"regexp"
	"testing"

	"github.com/apmcore/tracecore/ext"
	"github.com/apmcore/tracecore/internal/matcher"
)

func TestBasicURINaming(t *testing.T) {
	n := New()
	got, ignore := n.Name("/users/42", "Uri", ext.PathURI, false)
	if ignore {
		t.Fatal("did not expect ignore")
	}
	if got != "WebTransaction/Uri/users/42" {
		t.Fatalf("unexpected name: %q", got)
	}
}

func TestBackgroundPrefix(t *testing.T) {
	n := New()
	got, _ := n.Name("worker.process", "Custom", ext.PathCustom, true)
	if got != "OtherTransaction/Custom/worker.process" {
		t.Fatalf("unexpected name: %q", got)
	}
}

func TestURLRuleIgnoresBackground(t *testing.T) {
	n := New()
	n.URLRules = RuleSet{{Pattern: regexp.MustCompile(`/health`), Ignore: true}}
	// Background transactions never run URL rules.
	got, ignore := n.Name("/health", "Custom", ext.PathCustom, true)
	if ignore {
		t.Fatal("URL rules must not apply to background transactions")
	}
	if got != "OtherTransaction/Custom/health" {
		t.Fatalf("unexpected name: %q", got)
	}
}

func TestURLRuleIgnore(t *testing.T) {
	n := New()
	n.URLRules = RuleSet{{Pattern: regexp.MustCompile(`/health`), Ignore: true}}
	_, ignore := n.Name("/health", "Uri", ext.PathURI, false)
	if !ignore {
		t.Fatal("expected ignore")
	}
}

func TestSegmentTermsReplaceAndCollapse(t *testing.T) {
	st := NewSegmentTerms()
	st.SetWhitelist("WebTransaction/Uri", []string{"users"})
	n := New()
	n.SegmentTerms = st
	got, _ := n.Name("/users/42/orders/7", "Uri", ext.PathURI, false)
	if got != "WebTransaction/Uri/users/*" {
		t.Fatalf("unexpected collapsed name: %q", got)
	}
}

func TestFrameworkMatcherShortensFunctionName(t *testing.T) {
	m := matcher.New()
	m.AddPrefix("/controllers/")
	n := New()
	n.FrameworkMatcher = m
	got, _ := n.Name("/app/controllers/orders/show", "Action", ext.PathAction, false)
	if got != "WebTransaction/Action/show" {
		t.Fatalf("unexpected name: %q", got)
	}
}

func TestFrameworkMatcherIgnoredForURIPathType(t *testing.T) {
	m := matcher.New()
	m.AddPrefix("/controllers/")
	n := New()
	n.FrameworkMatcher = m
	got, _ := n.Name("/controllers/orders", "Uri", ext.PathURI, false)
	if got != "WebTransaction/Uri/controllers/orders" {
		t.Fatalf("framework matcher must not apply to PathURI: %q", got)
	}
}

func TestTxnRuleAppliesToAllTypes(t *testing.T) {
	n := New()
	n.TxnRules = RuleSet{{Pattern: regexp.MustCompile(`^old/`), Replacement: "new/"}}
	got, _ := n.Name("old/path", "Custom", ext.PathFunction, false)
	if got != "WebTransaction/Custom/new/path" {
		t.Fatalf("unexpected name: %q", got)
	}
}
