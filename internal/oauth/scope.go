package oauth

import "strings"

// ParseScope splits a space-delimited scope string, dropping duplicates.
func ParseScope(scope string) []string {
	fields := strings.Fields(scope)
	seen := make(map[string]bool, len(fields))
	out := fields[:0]
	for _, f := range fields {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}

// JoinScope is the inverse of ParseScope.
func JoinScope(scopes []string) string {
	return strings.Join(scopes, " ")
}

// ScopeSubset reports whether every scope in requested appears in allowed.
// The empty request is a subset of anything.
func ScopeSubset(requested string, allowed []string) bool {
	set := make(map[string]bool, len(allowed))
	for _, s := range allowed {
		set[s] = true
	}
	for _, s := range strings.Fields(requested) {
		if !set[s] {
			return false
		}
	}
	return true
}

// HasScope reports whether scope contains s.
func HasScope(scope, s string) bool {
	for _, f := range strings.Fields(scope) {
		if f == s {
			return true
		}
	}
	return false
}
