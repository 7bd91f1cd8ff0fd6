// Package llm - util.go provides shared utilities for LLM response processing.
package llm

import "strings"

// CleanJSONBlock removes markdown code block wrappers and conversational
// preamble or trailing text from JSON responses. LLMs often wrap JSON in
// ```json ... ``` blocks or narrate around it even when instructed not to.
func CleanJSONBlock(text string) string {
	text = strings.TrimSpace(text)

	// Handle ```json ... ``` blocks
	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		return strings.TrimSpace(text)
	}

	// Handle generic ``` ... ``` blocks
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		// Skip potential language identifier on first line
		if idx := strings.Index(text, "\n"); idx >= 0 {
			firstLine := text[:idx]
			if len(firstLine) < 20 && !strings.Contains(firstLine, " ") && !strings.Contains(firstLine, "{") {
				text = text[idx+1:]
			}
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		return strings.TrimSpace(text)
	}

	// Strip prose around the first complete JSON value
	objStart := strings.Index(text, "{")
	arrStart := strings.Index(text, "[")
	if objStart >= 0 && (arrStart < 0 || objStart < arrStart) {
		if out := extractJSONObject(text[objStart:]); out != "" {
			return out
		}
	} else if arrStart >= 0 {
		if out := extractJSONArray(text[arrStart:]); out != "" {
			return out
		}
	}

	return text
}

// extractJSONObject returns the balanced JSON object at the start of input,
// or "" when input does not begin with one. Braces inside string literals do
// not count toward nesting.
func extractJSONObject(input string) string {
	return extractBalanced(input, '{', '}')
}

// extractJSONArray is extractJSONObject for arrays.
func extractJSONArray(input string) string {
	return extractBalanced(input, '[', ']')
}

func extractBalanced(input string, open, close byte) string {
	if len(input) == 0 || input[0] != open {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(input); i++ {
		c := input[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == open:
			depth++
		case c == close:
			depth--
			if depth == 0 {
				return input[:i+1]
			}
		}
	}
	return ""
}

// NormalizePrompt collapses whitespace and lowercases text so logically
// identical prompts hash to the same cache key.
func NormalizePrompt(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}
