// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package placeholder finds and rewrites {{key}} placeholders in message text.
package placeholder

import (
	"regexp"
	"strings"
)

// =============================================================================
// DELIMITERS
// =============================================================================

const (
	// Open marks the start of a placeholder.
	Open = "{{"
	// Close marks the end of a placeholder.
	Close = "}}"
)

// PERFORMANCE: compiled once at startup.
// A placeholder body may not contain a brace, so "{{ {{a}} }}" yields "a" and a
// key can never carry delimiter characters.
var pattern = regexp.MustCompile(`\{\{([^{}]*)\}\}`)

// =============================================================================
// EXTRACTION
// =============================================================================

// Extract returns the distinct placeholder keys in text, in order of first
// occurrence. Bodies are trimmed; empty bodies and unclosed markers are ignored.
func Extract(text string) []string {
	matches := pattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return []string{}
	}

	seen := make(map[string]bool, len(matches))
	keys := make([]string, 0, len(matches))
	for _, m := range matches {
		key := strings.TrimSpace(m[1])
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		keys = append(keys, key)
	}
	return keys
}

// Contains reports whether text holds at least one placeholder for key.
func Contains(text, key string) bool {
	for _, m := range pattern.FindAllStringSubmatch(text, -1) {
		if strings.TrimSpace(m[1]) == key {
			return true
		}
	}
	return false
}

// HasDelimiter reports whether s contains a brace and so cannot be a key.
func HasDelimiter(s string) bool {
	return strings.ContainsAny(s, "{}")
}

// =============================================================================
// REWRITING
// =============================================================================

// Substitute replaces every non-empty placeholder with lookup(key). The scan is
// a single pass, so values containing "{{...}}" are inserted verbatim.
func Substitute(text string, lookup func(key string) string) string {
	return pattern.ReplaceAllStringFunc(text, func(match string) string {
		key := strings.TrimSpace(match[len(Open) : len(match)-len(Close)])
		if key == "" {
			return match
		}
		return lookup(key)
	})
}

// ReplaceKey rewrites every placeholder for oldKey to name newKey, keeping any
// padding inside the braces, and returns the new text and the number of
// occurrences rewritten.
func ReplaceKey(text, oldKey, newKey string) (string, int) {
	return rewrite(text, oldKey, func(body string) string {
		start := strings.Index(body, oldKey)
		return Open + body[:start] + newKey + body[start+len(oldKey):] + Close
	})
}

// StripKey removes every placeholder for key and returns the new text and the
// number of occurrences removed.
func StripKey(text, key string) (string, int) {
	return rewrite(text, key, func(string) string { return "" })
}

func rewrite(text, key string, replace func(body string) string) (string, int) {
	count := 0
	out := pattern.ReplaceAllStringFunc(text, func(match string) string {
		body := match[len(Open) : len(match)-len(Close)]
		if strings.TrimSpace(body) != key {
			return match
		}
		count++
		return replace(body)
	})
	return out, count
}
