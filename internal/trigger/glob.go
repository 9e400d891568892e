package trigger

import "strings"

// Match reports whether s matches the glob pattern. Supported wildcards are
// '*' (any run, including empty) and '?' (any single character). Matching is
// case-insensitive, per the tag-name filter contract.
func Match(pattern, s string) bool {
	return matchFold(strings.ToLower(pattern), strings.ToLower(s))
}

func matchFold(pattern, s string) bool {
	// Iterative glob with single-star backtracking.
	var pi, si int
	star, mark := -1, 0
	for si < len(s) {
		switch {
		case pi < len(pattern) && (pattern[pi] == '?' || pattern[pi] == s[si]):
			pi++
			si++
		case pi < len(pattern) && pattern[pi] == '*':
			star = pi
			mark = si
			pi++
		case star >= 0:
			pi = star + 1
			mark++
			si = mark
		default:
			return false
		}
	}
	for pi < len(pattern) && pattern[pi] == '*' {
		pi++
	}
	return pi == len(pattern)
}

// MatchAny reports whether s matches at least one of the patterns.
func MatchAny(patterns []string, s string) bool {
	for _, p := range patterns {
		if Match(p, s) {
			return true
		}
	}
	return false
}
