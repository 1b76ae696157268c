package textutil

import (
	"strings"
)

// CollapseWhitespace trims a string and folds every run of whitespace,
// newlines included, into a single space.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeName lowercases and collapses a display name so names from
// different sources compare loosely.
func NormalizeName(name string) string {
	return strings.ToLower(CollapseWhitespace(name))
}
