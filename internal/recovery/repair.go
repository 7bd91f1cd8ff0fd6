package recovery

import (
	"regexp"
	"strings"
)

// extractOuterObject slices out the outermost {...} span. Models routinely
// surround their JSON with prose or leave stray text after the closing brace.
func extractOuterObject(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		return text[start : end+1]
	}
	return text
}

var (
	unquotedKey   = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_\-]*)\s*:`)
	unquotedValue = regexp.MustCompile(`:\s*([A-Za-z][A-Za-z0-9 _\-]*[A-Za-z0-9])(\s*[,}\]])`)
	adjacentStrs  = regexp.MustCompile(`("(?:\\.|[^"\\])*")(\s*\n?\s*)("(?:\\.|[^"\\])*"\s*:)`)
	closerThenKey = regexp.MustCompile(`([}\]])(\s*\n\s*)(")`)
	trailingComma = regexp.MustCompile(`,(\s*[}\]])`)
)

// repairSpans fixes the common span-level defects in model JSON: unquoted
// keys and values, missing commas between members, trailing commas, raw
// newlines inside string literals, and unbalanced quotes or brackets.
func repairSpans(text string) string {
	text = unquotedKey.ReplaceAllString(text, `$1"$2":`)

	text = unquotedValue.ReplaceAllStringFunc(text, func(match string) string {
		sub := unquotedValue.FindStringSubmatch(match)
		word := strings.TrimSpace(sub[1])
		switch strings.ToLower(word) {
		case "true", "false", "null":
			return match
		}
		return `: "` + sub[1] + `"` + sub[2]
	})

	text = adjacentStrs.ReplaceAllString(text, `$1,$2$3`)
	text = closerThenKey.ReplaceAllString(text, `$1,$2$3`)
	text = trailingComma.ReplaceAllString(text, `$1`)
	text = escapeNewlinesInStrings(text)
	return balanceDelimiters(text)
}

// repairLines inspects each line independently and fixes isolated defects
// that span-based repair misses: a missing colon between key and value, and
// a missing comma before a line that starts a new member.
func repairLines(text string) string {
	lines := strings.Split(text, "\n")

	missingColon := regexp.MustCompile(`^(\s*"(?:\\.|[^"\\])*")\s+(".*)$`)

	for i, line := range lines {
		if m := missingColon.FindStringSubmatch(line); m != nil {
			lines[i] = m[1] + ": " + m[2]
		}
	}

	for i := 0; i < len(lines)-1; i++ {
		current := strings.TrimRight(lines[i], " \t")
		next := strings.TrimSpace(lines[i+1])
		if current == "" || !strings.HasPrefix(next, `"`) {
			continue
		}
		if endsValue(current) {
			lines[i] = current + ","
		}
	}

	return strings.Join(lines, "\n")
}

// endsValue reports whether a line ends with a complete JSON value that
// needs a comma before a following member.
func endsValue(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return false
	}
	switch trimmed[len(trimmed)-1] {
	case ',', '{', '[', ':':
		return false
	case '"', '}', ']':
		return true
	}
	lower := strings.ToLower(trimmed)
	if strings.HasSuffix(lower, "true") || strings.HasSuffix(lower, "false") || strings.HasSuffix(lower, "null") {
		return true
	}
	last := trimmed[len(trimmed)-1]
	return last >= '0' && last <= '9'
}

// escapeNewlinesInStrings replaces raw newlines inside string literals with
// the \n escape. Multi-line feedback text is the usual culprit.
func escapeNewlinesInStrings(text string) string {
	var sb strings.Builder
	sb.Grow(len(text))

	inString := false
	escaped := false
	for _, r := range text {
		if escaped {
			escaped = false
			sb.WriteRune(r)
			continue
		}
		switch r {
		case '\\':
			if inString {
				escaped = true
			}
			sb.WriteRune(r)
		case '"':
			inString = !inString
			sb.WriteRune(r)
		case '\n':
			if inString {
				sb.WriteString(`\n`)
			} else {
				sb.WriteRune(r)
			}
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// balanceDelimiters closes an unterminated string literal and appends any
// missing closing braces or brackets in the right order.
func balanceDelimiters(text string) string {
	var stack []rune
	inString := false
	escaped := false

	for _, r := range text {
		if escaped {
			escaped = false
			continue
		}
		switch r {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{', '[':
			if !inString {
				stack = append(stack, r)
			}
		case '}':
			if !inString && len(stack) > 0 && stack[len(stack)-1] == '{' {
				stack = stack[:len(stack)-1]
			}
		case ']':
			if !inString && len(stack) > 0 && stack[len(stack)-1] == '[' {
				stack = stack[:len(stack)-1]
			}
		}
	}

	if inString {
		text += `"`
	}
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			text += "}"
		} else {
			text += "]"
		}
	}
	return text
}
