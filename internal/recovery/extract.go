package recovery

import (
	"regexp"
	"strconv"
	"strings"
)

// extractFragments is the brute-force ladder stage: it scans for
// "key": value fragments belonging to schema fields regardless of the
// surrounding syntax and assembles a best-effort object. It succeeds if at
// least one schema field was found; missing fields are defaulted during
// conformance.
func extractFragments(text string, schema Schema) (map[string]any, bool) {
	obj := extractFields(text, schema.Fields)
	if len(obj) == 0 {
		return nil, false
	}
	return obj, true
}

func extractFields(text string, fields []Field) map[string]any {
	obj := make(map[string]any)

	for _, field := range fields {
		switch field.Type {
		case String:
			if v, ok := extractStringFragment(text, field.Name); ok {
				obj[field.Name] = v
			}
		case Integer, Number:
			if v, ok := extractNumberFragment(text, field.Name); ok {
				obj[field.Name] = v
			}
		case Boolean:
			if v, ok := extractBoolFragment(text, field.Name); ok {
				obj[field.Name] = v
			}
		case StringList:
			if v, ok := extractListFragment(text, field.Name); ok {
				obj[field.Name] = v
			}
		case Object:
			if span, ok := extractObjectSpan(text, field.Name); ok {
				nested := extractFields(span, field.Fields)
				if len(nested) > 0 {
					obj[field.Name] = nested
				}
			}
		case ObjectList:
			if items, ok := extractObjectListFragment(text, field.Name, field.Fields); ok {
				obj[field.Name] = items
			}
		}
	}

	return obj
}

func fieldPattern(name, valueExpr string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)"?` + regexp.QuoteMeta(name) + `"?\s*:\s*` + valueExpr)
}

func extractStringFragment(text, name string) (string, bool) {
	re := fieldPattern(name, `"((?:\\.|[^"\\])*)"`)
	if m := re.FindStringSubmatch(text); m != nil {
		return unescape(m[1]), true
	}
	// Unquoted value running to end of line.
	re = fieldPattern(name, `([^\n",{}\[\]][^\n"]*)`)
	if m := re.FindStringSubmatch(text); m != nil {
		return strings.TrimRight(strings.TrimSpace(m[1]), ","), true
	}
	return "", false
}

func extractNumberFragment(text, name string) (float64, bool) {
	re := fieldPattern(name, `"?(-?\d+(?:\.\d+)?)`)
	if m := re.FindStringSubmatch(text); m != nil {
		n, err := strconv.ParseFloat(m[1], 64)
		if err == nil {
			return n, true
		}
	}
	return 0, false
}

func extractBoolFragment(text, name string) (bool, bool) {
	re := fieldPattern(name, `"?(true|false|yes|no)`)
	if m := re.FindStringSubmatch(text); m != nil {
		lower := strings.ToLower(m[1])
		return lower == "true" || lower == "yes", true
	}
	return false, false
}

var quotedItem = regexp.MustCompile(`"((?:\\.|[^"\\])+)"`)

func extractListFragment(text, name string) ([]any, bool) {
	re := fieldPattern(name, `\[([^\]]*)`)
	m := re.FindStringSubmatch(text)
	if m == nil {
		return nil, false
	}

	var items []any
	for _, item := range quotedItem.FindAllStringSubmatch(m[1], -1) {
		items = append(items, unescape(item[1]))
	}
	if len(items) == 0 {
		// Tolerate bare comma-separated entries inside the brackets.
		for _, part := range strings.Split(m[1], ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				items = append(items, part)
			}
		}
	}
	if len(items) == 0 {
		return nil, false
	}
	return items, true
}

// extractObjectListFragment collects the {...} elements of the array
// following "name": and extracts member fields from each.
func extractObjectListFragment(text, name string, fields []Field) ([]any, bool) {
	re := fieldPattern(name, `\[`)
	loc := re.FindStringIndex(text)
	if loc == nil {
		return nil, false
	}

	span := text[loc[1]-1:]
	if end := matchingDelimiter(span, '[', ']'); end > 0 {
		span = span[:end+1]
	}

	var items []any
	rest := span
	for {
		start := strings.IndexByte(rest, '{')
		if start < 0 {
			break
		}
		end := matchingDelimiter(rest[start:], '{', '}')
		if end < 0 {
			end = len(rest) - start - 1
		}
		element := rest[start : start+end+1]
		nested := extractFields(element, fields)
		if len(nested) > 0 {
			items = append(items, nested)
		}
		rest = rest[start+end+1:]
	}

	if len(items) == 0 {
		return nil, false
	}
	return items, true
}

// matchingDelimiter returns the index of the closer balancing the opener at
// position 0, or -1 when the span is unterminated.
func matchingDelimiter(text string, opener, closer byte) int {
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case opener:
			if !inString {
				depth++
			}
		case closer:
			if !inString {
				depth--
				if depth == 0 {
					return i
				}
			}
		}
	}
	return -1
}

// extractObjectSpan returns the balanced {...} span following "name":.
func extractObjectSpan(text, name string) (string, bool) {
	re := fieldPattern(name, `\{`)
	loc := re.FindStringIndex(text)
	if loc == nil {
		return "", false
	}

	span := text[loc[1]-1:]
	if end := matchingDelimiter(span, '{', '}'); end >= 0 {
		return span[:end+1], true
	}
	// Unterminated object: take what is there.
	return span, true
}

func unescape(s string) string {
	replacer := strings.NewReplacer(`\"`, `"`, `\n`, "\n", `\t`, "\t", `\\`, `\`)
	return replacer.Replace(s)
}
