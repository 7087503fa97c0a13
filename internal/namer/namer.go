// Package namer applies path-type priority, URL rules, transaction rules,
// and segment-term whitelists to produce the final transaction name.
package namer

import (
	"regexp"
	"strings"

	"github.com/apmcore/tracecore/ext"
	"github.com/apmcore/tracecore/internal/matcher"
)

// Rule is a single regex match/replace rule (a URL rule or transaction
// rule). If Ignore is set, a match causes the whole transaction to be
// marked ignored rather than renamed.
type Rule struct {
	Pattern     *regexp.Regexp
	Replacement string
	Ignore      bool
	Terminate   bool // stop applying subsequent rules once this one matches
}

// RuleSet is an ordered list of Rules, applied in registration order.
type RuleSet []Rule

// Apply runs every matching rule against name in order, returning the
// transformed name and whether the transaction should be ignored.
func (rs RuleSet) Apply(name string) (result string, ignore bool) {
	result = name
	for _, r := range rs {
		if !r.Pattern.MatchString(result) {
			continue
		}
		if r.Ignore {
			return result, true
		}
		result = r.Pattern.ReplaceAllString(result, r.Replacement)
		if r.Terminate {
			break
		}
	}
	return result, false
}

// SegmentTerms maps a registered path prefix to the set of whitelisted
// path segments that may appear verbatim after it; anything else is
// replaced with "*", and consecutive "*"s collapse to one.
type SegmentTerms struct {
	byPrefix map[string]map[string]bool
	order    []string
}

// NewSegmentTerms returns an empty SegmentTerms table.
func NewSegmentTerms() *SegmentTerms {
	return &SegmentTerms{byPrefix: make(map[string]map[string]bool)}
}

// SetWhitelist registers terms as the whitelist for paths beginning with
// prefix (prefix should already be normalized, e.g. "WebTransaction/Uri").
func (st *SegmentTerms) SetWhitelist(prefix string, terms []string) {
	if _, ok := st.byPrefix[prefix]; !ok {
		st.order = append(st.order, prefix)
	}
	set := make(map[string]bool, len(terms))
	for _, t := range terms {
		set[t] = true
	}
	st.byPrefix[prefix] = set
}

// Apply finds the longest registered prefix that name starts with and
// replaces every path segment after it not on that prefix's whitelist
// with "*", collapsing consecutive stars.
func (st *SegmentTerms) Apply(name string) string {
	best := ""
	for _, p := range st.order {
		if strings.HasPrefix(name, p+"/") && len(p) > len(best) {
			best = p
		}
	}
	if best == "" {
		return name
	}
	whitelist := st.byPrefix[best]
	rest := name[len(best)+1:]
	segments := strings.Split(rest, "/")
	var out []string
	lastStar := false
	for _, seg := range segments {
		if whitelist[seg] {
			out = append(out, seg)
			lastStar = false
			continue
		}
		if lastStar {
			continue
		}
		out = append(out, "*")
		lastStar = true
	}
	return best + "/" + strings.Join(out, "/")
}

// Namer produces the final transaction name.
type Namer struct {
	URLRules     RuleSet
	TxnRules     RuleSet
	SegmentTerms *SegmentTerms

	// FrameworkMatcher, if set, is tried against PathFunction/PathAction
	// raw names before rule application: a registered framework prefix
	// (e.g. "/controllers/") strips down to the trailing handler name
	// instead of naming the transaction after a full callback path.
	FrameworkMatcher *matcher.Matcher
}

// New returns a Namer with empty rule sets.
func New() *Namer {
	return &Namer{SegmentTerms: NewSegmentTerms()}
}

// Name computes the final transaction name for rawName (either the
// request URI or the output of a user-supplied naming function),
// category (e.g. "Uri", "Action", a framework/controller name), pathType,
// and whether the transaction is a background job.
//
// Returns (name, ignore).
func (n *Namer) Name(rawName string, category string, pathType ext.PathType, background bool) (string, bool) {
	name := rawName
	if (pathType == ext.PathFunction || pathType == ext.PathAction) && n.FrameworkMatcher != nil {
		if core, ok := n.FrameworkMatcher.MatchCore(name); ok && core != "" {
			name = core
		}
	}
	if (pathType == ext.PathURI || pathType == ext.PathCustom) && !background {
		var ignore bool
		name, ignore = n.URLRules.Apply(name)
		if ignore {
			return "", true
		}
	}
	var ignore bool
	name, ignore = n.TxnRules.Apply(name)
	if ignore {
		return "", true
	}
	prefix := "WebTransaction"
	if background {
		prefix = "OtherTransaction"
	}
	full := prefix + "/" + category + "/" + strings.TrimPrefix(name, "/")
	if n.SegmentTerms != nil {
		full = n.SegmentTerms.Apply(full)
	}
	return full, false
}
