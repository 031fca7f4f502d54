package llm

import (
	"regexp"
	"strings"
)

// Pre-compiled patterns for JSON extraction from completion text.
var (
	// jsonBlockPattern matches JSON inside markdown code fences: ```json { ... } ```
	jsonBlockPattern = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(\\{.*\\})\\s*```")
	// jsonObjectPattern matches any JSON object (greedy fallback).
	jsonObjectPattern = regexp.MustCompile(`(?s)\{[\s\S]*\}`)
	// trailingCommaPattern matches trailing commas before ] or }.
	trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)
)

// ExtractJSON extracts a JSON object from a completion response string.
// Models frequently wrap JSON in markdown fences or leave trailing commas;
// both are tolerated. Returns "" when no object is found.
func ExtractJSON(content string) string {
	raw := ""
	if m := jsonBlockPattern.FindStringSubmatch(content); len(m) > 1 {
		raw = m[1]
	} else if m := jsonObjectPattern.FindString(content); m != "" {
		raw = m
	}
	if raw == "" {
		return ""
	}
	return trailingCommaPattern.ReplaceAllString(strings.TrimSpace(raw), "$1")
}
