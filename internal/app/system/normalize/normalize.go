// Package normalize provides helper functions for consistent string normalization.
// Use these helpers instead of scattered strings.ToLower and strings.TrimSpace calls.
package normalize

import "strings"

// Name trims surrounding whitespace.
func Name(s string) string {
	return strings.TrimSpace(s)
}

// Role lowercases and trims a role value.
func Role(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Username trims a platform username and drops a leading "@".
func Username(s string) string {
	return strings.TrimPrefix(strings.TrimSpace(s), "@")
}

// Identifier lowercases and trims a brute-force counter key.
func Identifier(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// RoleList splits a comma-separated role list, normalizing each entry and
// dropping blanks and duplicates. Order is preserved.
func RoleList(csv string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, part := range strings.Split(csv, ",") {
		r := Role(part)
		if r == "" || seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	return out
}
