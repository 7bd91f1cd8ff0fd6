// Package recovery converts raw model text into schema-conformant objects.
// It applies a fixed ladder of parsing and repair stages, accepting the first
// stage whose output validates, and falls back to a deterministic minimal
// object when nothing else works. The package never returns an error past
// this boundary: malformed model output is absorbed here and surfaced only
// as diagnostic metadata on the Result.
package recovery

import (
	"encoding/json"
	"errors"

	"github.com/jonathan/interview-agent/internal/llm"
	"github.com/jonathan/interview-agent/internal/schemas"
)

// Stage names, in ladder order.
const (
	StageDirect    = "direct"
	StageSpans     = "span_repair"
	StageLines     = "line_repair"
	StageFragments = "fragment_extraction"
	StageFallback  = "fallback"
)

// Attempt records the outcome of one ladder stage for diagnostics.
type Attempt struct {
	Stage string `json:"stage"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Result holds the recovered object and the ladder's diagnostic trail.
type Result struct {
	// Object is always schema-valid, possibly the fallback.
	Object map[string]any
	// Stage names the ladder rung that produced Object.
	Stage string
	// Fallback reports whether the deterministic fallback was used.
	Fallback bool
	// Attempts lists every stage tried and its outcome.
	Attempts []Attempt
}

type stage struct {
	name string
	// fn parses or repairs text into a candidate object. A false return
	// means the stage could not produce any structure at all.
	fn func(string) (map[string]any, bool)
	// bestEffort stages accept partial objects with defaults filled in.
	bestEffort bool
}

// Recover converts raw model text into an object conforming to schema.
// It always succeeds; inspect Result.Fallback and Result.Attempts to see
// how hard it had to work.
func Recover(raw string, schema Schema) *Result {
	text := llm.CleanJSONBlock(raw)
	text = extractOuterObject(text)

	ladder := []stage{
		{name: StageDirect, fn: parseDirect},
		{name: StageSpans, fn: func(s string) (map[string]any, bool) { return parseDirect(repairSpans(s)) }},
		{name: StageLines, fn: func(s string) (map[string]any, bool) { return parseDirect(repairLines(repairSpans(s))) }},
		{name: StageFragments, fn: func(s string) (map[string]any, bool) { return extractFragments(s, schema) }, bestEffort: true},
	}

	result := &Result{}
	for _, st := range ladder {
		candidate, ok := st.fn(text)
		if !ok {
			result.Attempts = append(result.Attempts, Attempt{Stage: st.name, Error: "no parseable structure"})
			continue
		}

		conformed, err := schema.conform(candidate, st.bestEffort)
		if err == nil {
			err = checkDocument(schema, conformed)
		}
		if err != nil {
			result.Attempts = append(result.Attempts, Attempt{Stage: st.name, Error: err.Error()})
			continue
		}

		result.Attempts = append(result.Attempts, Attempt{Stage: st.name, OK: true})
		result.Object = conformed
		result.Stage = st.name
		return result
	}

	// Every parse and repair stage failed validation: deterministic fallback.
	result.Attempts = append(result.Attempts, Attempt{Stage: StageFallback, OK: true})
	result.Object = schema.Fallback()
	result.Stage = StageFallback
	result.Fallback = true
	return result
}

// parseDirect attempts a strict JSON parse of the text.
func parseDirect(text string) (map[string]any, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return nil, false
	}
	return obj, true
}

// checkDocument runs the optional JSON Schema document against the conformed
// object. Clamping has already happened, so a failure here means the stage
// assembled something structurally wrong, not merely out of range.
func checkDocument(schema Schema, obj map[string]any) error {
	if schema.Document == "" {
		return nil
	}
	encoded, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	err = schemas.ValidateJSONString(schema.Document, string(encoded))
	var loadErr *schemas.SchemaLoadError
	if errors.As(err, &loadErr) {
		// A broken schema document is a programming error, not bad model
		// output; do not penalize the stage for it.
		return nil
	}
	return err
}
