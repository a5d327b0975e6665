package genai

import (
	"encoding/json"
	"strings"
)

// ExtractJSON pulls a JSON object out of free-form model text. It tries, in
// order: the whole text as JSON, the contents of a ```json fenced block, and
// the first balanced {...} span. Returns the JSON text and whether anything
// valid was found.
func ExtractJSON(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}
	if json.Valid([]byte(text)) {
		return text, true
	}
	if fenced, ok := extractFenced(text); ok && json.Valid([]byte(fenced)) {
		return fenced, true
	}
	if span, ok := extractBraceSpan(text); ok && json.Valid([]byte(span)) {
		return span, true
	}
	return "", false
}

// extractFenced returns the body of the first ``` fenced block, tolerating an
// optional "json" language tag.
func extractFenced(text string) (string, bool) {
	start := strings.Index(text, "```")
	if start < 0 {
		return "", false
	}
	body := text[start+3:]
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		firstLine := strings.TrimSpace(body[:nl])
		if firstLine == "json" || firstLine == "" {
			body = body[nl+1:]
		}
	}
	end := strings.Index(body, "```")
	if end < 0 {
		return "", false
	}
	return strings.TrimSpace(body[:end]), true
}

// extractBraceSpan returns the first balanced top-level {...} span. Braces
// inside JSON strings are skipped.
func extractBraceSpan(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}
