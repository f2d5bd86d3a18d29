// Package strings holds small string-slice helpers.
package strings

import (
	"strings"
)

// DedupeAndTrim trims each value and drops empties and repeats, keeping first
// occurrence order.
func DedupeAndTrim(values []string) []string {
	if len(values) == 0 {
		return values
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// SplitList splits a separated list such as "a:9092, b:9092" and cleans it
// with DedupeAndTrim. An all-blank input yields nil.
func SplitList(s, sep string) []string {
	out := DedupeAndTrim(strings.Split(s, sep))
	if len(out) == 0 {
		return nil
	}
	return out
}
