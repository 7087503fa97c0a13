// Package attribute implements the key→value store with per-attribute
// destination bitmasks and configurable include/exclude filters.
package attribute

import (
	"sort"
	"strings"

	"github.com/apmcore/tracecore/ext"
)

// Value is a single attribute: its value and the destinations it's
// permitted to reach after filtering.
type Value struct {
	Value interface{}
	Dest  ext.Destination
}

// Set is an ordered, filterable collection of user attributes.
type Set struct {
	values map[string]Value
	filter *Filter
}

// NewSet creates an attribute set governed by filter. filter may be nil,
// meaning every destination in the requested mask is honored unmodified.
func NewSet(filter *Filter) *Set {
	return &Set{values: make(map[string]Value), filter: filter}
}

// Add stores key=value, restricted to dest after applying the configured
// include/exclude filters. Returns the destinations the value actually
// ended up enabled for (may be ext.DestNone if entirely filtered out).
func (s *Set) Add(key string, value interface{}, dest ext.Destination) ext.Destination {
	if s.filter != nil {
		dest = s.filter.Apply(key, dest)
	}
	if dest == ext.DestNone {
		return ext.DestNone
	}
	s.values[key] = Value{Value: value, Dest: dest}
	return dest
}

// Get returns the stored value for key, if present.
func (s *Set) Get(key string) (Value, bool) {
	v, ok := s.values[key]
	return v, ok
}

// Len reports the number of stored attributes.
func (s *Set) Len() int { return len(s.values) }

// ForDestination returns the key-sorted subset of attributes enabled
// for dest, formatted for emission.
func (s *Set) ForDestination(dest ext.Destination) []KV {
	var out []KV
	for k, v := range s.values {
		if v.Dest&dest != 0 {
			out = append(out, KV{Key: k, Value: v.Value})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// KV is a sorted, emission-ready key/value pair.
type KV struct {
	Key   string
	Value interface{}
}

// Filter transforms a requested destination mask per key, based on
// wildcard include/exclude rules computed at configuration time.
//
// Rule precedence: the most specific matching rule wins; ties between an
// include and an exclude of equal specificity favor exclude (deny wins).
type Filter struct {
	rules []rule
}

type rule struct {
	prefix  string // "" matches everything; "foo.*" matches foo.<anything>
	exclude bool
	dest    ext.Destination // destinations this rule targets
}

// NewFilter returns an empty Filter; rules are added with Include and
// Exclude. Each pattern may end in "*" to match any key sharing the
// literal prefix before the star. A rule's dest restricts which
// destination bits it affects; ext.DestAll means "all destinations this
// attribute is otherwise headed to".
func NewFilter() *Filter {
	return &Filter{}
}

// Include whitelists keys matching pattern for the given destinations.
func (f *Filter) Include(pattern string, dest ext.Destination) *Filter {
	f.rules = append(f.rules, rule{prefix: pattern, exclude: false, dest: dest})
	return f
}

// Exclude blacklists keys matching pattern for the given destinations.
func (f *Filter) Exclude(pattern string, dest ext.Destination) *Filter {
	f.rules = append(f.rules, rule{prefix: pattern, exclude: true, dest: dest})
	return f
}

// Apply narrows requested to the destinations key is still permitted to
// reach after filtering.
func (f *Filter) Apply(key string, requested ext.Destination) ext.Destination {
	if f == nil {
		return requested
	}
	allowed := requested
	bestSpecificity := -1
	var excludedAtBest ext.Destination
	for _, r := range f.rules {
		if !matches(r.prefix, key) {
			continue
		}
		spec := specificity(r.prefix)
		if spec < bestSpecificity {
			continue
		}
		affected := r.dest & requested
		if affected == 0 {
			continue
		}
		if spec > bestSpecificity {
			// A strictly more specific rule resets prior decisions
			// for the destinations it covers.
			bestSpecificity = spec
			excludedAtBest = 0
		}
		if r.exclude {
			allowed &^= affected
			excludedAtBest |= affected
		} else {
			allowed |= affected &^ excludedAtBest
		}
	}
	return allowed
}

func specificity(pattern string) int {
	return len(strings.TrimSuffix(pattern, "*"))
}

func matches(pattern, key string) bool {
	if pattern == "" || pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(key, strings.TrimSuffix(pattern, "*"))
	}
	return pattern == key
}
