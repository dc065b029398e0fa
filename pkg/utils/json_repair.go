package utils

import (
	"encoding/json"
	"errors"
	"strings"
)

var ErrUnparseableJSON = errors.New("model output is not repairable JSON")

// RepairJSON makes a best effort to turn near-valid model output into a JSON
// object: an outer markdown fence and surrounding prose are dropped, the outermost
// object is cut out, and trailing commas are removed.
func RepairJSON(raw string) (string, error) {
	s := trimFence(strings.TrimSpace(strings.TrimPrefix(raw, "\ufeff")))

	start := strings.IndexByte(s, '{')
	if start == -1 {
		return "", ErrUnparseableJSON
	}
	end := findMatchingBrace(s, start)
	if end == -1 {
		return "", ErrUnparseableJSON
	}
	s = removeTrailingCommas(s[start : end+1])

	if !json.Valid([]byte(s)) {
		return "", ErrUnparseableJSON
	}
	return s, nil
}

// trimFence drops an opening and a closing ``` marker; a language tag left
// behind is skipped by the brace cut. Backticks anywhere else are content.
func trimFence(s string) string {
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// findMatchingBrace finds the matching closing brace for an opening brace
func findMatchingBrace(s string, start int) int {
	if start >= len(s) || s[start] != '{' {
		return -1
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		char := s[i]

		if escaped {
			escaped = false
			continue
		}
		if char == '\\' && inString {
			escaped = true
			continue
		}
		if char == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		switch char {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}

	return -1
}

// removeTrailingCommas drops a comma that is followed (ignoring whitespace)
// by '}' or ']', leaving string contents alone.
func removeTrailingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		char := s[i]
		switch {
		case escaped:
			escaped = false
		case char == '\\' && inString:
			escaped = true
		case char == '"':
			inString = !inString
		case char == ',' && !inString:
			j := i + 1
			for j < len(s) && strings.IndexByte(" \t\r\n", s[j]) >= 0 {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
		}
		b.WriteByte(char)
	}
	return b.String()
}
