// Package authmw enforces credential authentication on inbound HTTP
// requests. The scope-resolution core is framework-agnostic; Handler adapts
// it to net/http so any router that accepts standard middleware can mount
// it.
package authmw

import (
	"sort"
	"strings"
)

// Rule binds a path to the scopes a credential must carry to reach it.
type Rule struct {
	Path   string
	Scopes []string
}

// RouteTable resolves the required scopes for a request path. An exact match
// always wins over a prefix match; among prefixes, the longest wins.
// Excluded paths may be served without any credential.
type RouteTable struct {
	exact      map[string][]string
	prefixes   []Rule
	exclusions map[string]struct{}
}

// NewRouteTable builds a table from rules and an exclusion list. Rules whose
// path ends in "/" are treated as prefixes; all others are exact.
func NewRouteTable(rules []Rule, exclusions []string) *RouteTable {
	t := &RouteTable{
		exact:      make(map[string][]string),
		exclusions: make(map[string]struct{}, len(exclusions)),
	}

	for _, rule := range rules {
		scopes := append([]string(nil), rule.Scopes...)
		if strings.HasSuffix(rule.Path, "/") {
			t.prefixes = append(t.prefixes, Rule{Path: rule.Path, Scopes: scopes})
		} else {
			t.exact[rule.Path] = scopes
		}
	}

	// Longest prefix first, so the first match is the winner.
	sort.Slice(t.prefixes, func(i, j int) bool {
		return len(t.prefixes[i].Path) > len(t.prefixes[j].Path)
	})

	for _, path := range exclusions {
		t.exclusions[path] = struct{}{}
	}

	return t
}

// Excluded reports whether the path may be served unauthenticated.
func (t *RouteTable) Excluded(path string) bool {
	_, ok := t.exclusions[path]
	return ok
}

// RequiredScopes resolves the scopes protecting the path. Paths with no
// matching rule still require a valid credential, just without any
// particular scope.
func (t *RouteTable) RequiredScopes(path string) []string {
	if scopes, ok := t.exact[path]; ok {
		return scopes
	}
	for _, rule := range t.prefixes {
		if strings.HasPrefix(path, rule.Path) {
			return rule.Scopes
		}
	}
	return nil
}
