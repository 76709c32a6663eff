// Package strings provides string list helpers shared by config parsing.
package strings

import (
	"strings"
)

// DedupeAndTrim removes duplicates and empty strings from a slice,
// trimming whitespace from each element. Order is preserved and case is
// significant.
//
// Example:
//
//	DedupeAndTrim([]string{"  Member ", "Alumni", "Member", "", "  "})
//	// Returns: []string{"Member", "Alumni"}
func DedupeAndTrim(values []string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))

	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; !ok {
			seen[trimmed] = struct{}{}
			result = append(result, trimmed)
		}
	}

	return result
}

// SplitList splits a comma-separated value and applies DedupeAndTrim.
// An empty or blank input yields an empty, non-nil slice.
func SplitList(raw string) []string {
	return DedupeAndTrim(strings.Split(raw, ","))
}
