package parser

import "strings"

// Strategy extracts candidate JSON payloads from raw backend text, in the
// order they should be tried. Extract is total: it never panics and returns
// nothing when it finds nothing.
type Strategy struct {
	Name    string
	Extract func(text string) []string
}

// DefaultStrategies is the extraction chain used by the typed entry points.
var DefaultStrategies = []Strategy{
	{Name: "direct", Extract: single(extractDirect)},
	{Name: "fenced", Extract: single(extractFenced)},
	{Name: "bracket", Extract: bracketSpans},
}

func single(extract func(string) (string, bool)) func(string) []string {
	return func(text string) []string {
		if payload, ok := extract(text); ok {
			return []string{payload}
		}
		return nil
	}
}

func extractDirect(text string) (string, bool) {
	text = strings.TrimSpace(text)
	return text, text != ""
}

// extractFenced returns the contents of the first ``` block, skipping an
// optional language tag on the opening line.
func extractFenced(text string) (string, bool) {
	const fence = "```"
	start := strings.Index(text, fence)
	if start == -1 {
		return "", false
	}
	start += len(fence)

	if nl := strings.IndexByte(text[start:], '\n'); nl != -1 {
		tag := strings.TrimSpace(text[start : start+nl])
		if tag == "" || isLanguageTag(tag) {
			start += nl + 1
		}
	}

	end := strings.Index(text[start:], fence)
	if end == -1 {
		return "", false
	}
	body := strings.TrimSpace(text[start : start+end])
	return body, body != ""
}

func isLanguageTag(s string) bool {
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_') {
			return false
		}
	}
	return true
}

// bracketSpans returns every top-level balanced {...} or [...] span in
// order, so a payload preceded by bracketed prose is still offered.
// Brackets inside JSON strings are ignored. Scanning stops at the first
// mismatched or unterminated span rather than guessing past it.
func bracketSpans(text string) []string {
	var spans []string
	for pos := 0; pos < len(text); {
		start := strings.IndexAny(text[pos:], "{[")
		if start == -1 {
			break
		}
		start += pos

		end, ok := balancedEnd(text, start)
		if !ok {
			break
		}
		spans = append(spans, text[start:end])
		pos = end
	}
	return spans
}

// balancedEnd returns the index just past the span opened at text[start].
func balancedEnd(text string, start int) (int, bool) {
	var stack []byte
	inString := false
	escapeNext := false

	for i := start; i < len(text); i++ {
		c := text[i]

		if escapeNext {
			escapeNext = false
			continue
		}
		if inString {
			switch c {
			case '\\':
				escapeNext = true
			case '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) == 0 || stack[len(stack)-1] != c {
				return 0, false
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return i + 1, true
			}
		}
	}
	return 0, false
}
