// Package utils holds small parsing helpers shared by the gateway handlers.
package utils

import "strconv"

// Listing bounds applied by ParsePage.
const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

// AtoiDefault parses s, returning def when s is empty or not an integer.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// ParsePage reads page/limit query values, substituting defaults for
// missing, malformed or non-positive input and capping limit at MaxLimit.
func ParsePage(page, limit string) (int, int) {
	p := AtoiDefault(page, DefaultPage)
	if p < 1 {
		p = DefaultPage
	}
	l := AtoiDefault(limit, DefaultLimit)
	if l < 1 {
		l = DefaultLimit
	}
	if l > MaxLimit {
		l = MaxLimit
	}
	return p, l
}
