package model

import "strings"

// NormalizeSymbol canonicalizes a user-supplied ticker: trims whitespace,
// uppercases, and appends the exchange suffix (e.g. ".NS") when the symbol
// carries no exchange qualifier of its own. Returns "" for blank input.
func NormalizeSymbol(raw, suffix string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return ""
	}
	if suffix != "" && !strings.Contains(s, ".") {
		s += suffix
	}
	return s
}
