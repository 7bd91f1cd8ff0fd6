package recovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reviewSchema() Schema {
	min, max := Bounds(0, 100)
	return Schema{
		Name: "review",
		Fields: []Field{
			{Name: "title", Type: String, Required: true},
			{Name: "score", Type: Integer, Required: true, Min: min, Max: max},
			{Name: "approved", Type: Boolean},
			{Name: "tags", Type: StringList},
		},
	}
}

func TestRecover_ValidJSONEqualsDirectParse(t *testing.T) {
	raw := `{"title": "Solid answer", "score": 82, "approved": true, "tags": ["go", "sql"]}`

	result := Recover(raw, reviewSchema())
	require.Equal(t, StageDirect, result.Stage)
	assert.False(t, result.Fallback)
	assert.Equal(t, map[string]any{
		"title":    "Solid answer",
		"score":    82,
		"approved": true,
		"tags":     []string{"go", "sql"},
	}, result.Object)
}

func TestRecover_MarkdownFence(t *testing.T) {
	raw := "```json\n{\"title\": \"ok\", \"score\": 50}\n```"

	result := Recover(raw, reviewSchema())
	assert.Equal(t, StageDirect, result.Stage)
	assert.Equal(t, "ok", result.Object["title"])
}

func TestRecover_LeadingProse(t *testing.T) {
	raw := `Sure! Here is the evaluation you asked for:
{"title": "with prose", "score": 70}
Let me know if you need anything else.`

	result := Recover(raw, reviewSchema())
	assert.False(t, result.Fallback)
	assert.Equal(t, "with prose", result.Object["title"])
}

func TestRecover_UnquotedKeys(t *testing.T) {
	raw := `{title: "loose keys", score: 65}`

	result := Recover(raw, reviewSchema())
	require.False(t, result.Fallback)
	assert.Equal(t, StageSpans, result.Stage)
	assert.Equal(t, "loose keys", result.Object["title"])
	assert.Equal(t, 65, result.Object["score"])
}

func TestRecover_TrailingCommas(t *testing.T) {
	raw := `{"title": "trailing", "score": 40, "tags": ["a", "b",],}`

	result := Recover(raw, reviewSchema())
	assert.False(t, result.Fallback)
	assert.Equal(t, []string{"a", "b"}, result.Object["tags"])
}

func TestRecover_UnbalancedBraces(t *testing.T) {
	raw := `{"title": "cut off", "score": 55, "tags": ["x"`

	result := Recover(raw, reviewSchema())
	assert.False(t, result.Fallback)
	assert.Equal(t, "cut off", result.Object["title"])
}

func TestRecover_RawNewlinesInStrings(t *testing.T) {
	raw := "{\"title\": \"line one\nline two\", \"score\": 30}"

	result := Recover(raw, reviewSchema())
	require.False(t, result.Fallback)
	assert.Contains(t, result.Object["title"], "line one")
}

func TestRecover_FragmentExtraction(t *testing.T) {
	// hopeless as JSON, but the fields are visible in the wreckage
	raw := `The candidate did well "title": "fragments only" and I would
	say "score": 77 overall with no structural JSON anywhere {{{`

	result := Recover(raw, reviewSchema())
	require.False(t, result.Fallback)
	assert.Equal(t, StageFragments, result.Stage)
	assert.Equal(t, "fragments only", result.Object["title"])
	assert.Equal(t, 77, result.Object["score"])
}

func TestRecover_FallbackNeverFails(t *testing.T) {
	inputs := []string{
		"",
		"complete nonsense with no fields at all",
		"null",
		"[1, 2, 3]",
		"\x00\x01\x02",
	}
	for _, raw := range inputs {
		result := Recover(raw, reviewSchema())
		require.NotNil(t, result.Object, "input %q", raw)
		if result.Fallback {
			assert.Equal(t, StageFallback, result.Stage)
			assert.Equal(t, "", result.Object["title"])
			assert.Equal(t, 0, result.Object["score"])
		}
	}
}

func TestRecover_AttemptTrail(t *testing.T) {
	raw := `{title: "trail", score: 10}`

	result := Recover(raw, reviewSchema())
	require.NotEmpty(t, result.Attempts)
	assert.Equal(t, StageDirect, result.Attempts[0].Stage)
	assert.False(t, result.Attempts[0].OK)
	assert.NotEmpty(t, result.Attempts[0].Error)
	last := result.Attempts[len(result.Attempts)-1]
	assert.True(t, last.OK)
}

func TestRecover_ScoreClamping(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want int
	}{
		{"above max", `{"title": "x", "score": 150}`, 100},
		{"below min", `{"title": "x", "score": -20}`, 0},
		{"in range", `{"title": "x", "score": 73}`, 73},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Recover(tt.raw, reviewSchema())
			require.False(t, result.Fallback)
			assert.Equal(t, tt.want, result.Object["score"])
		})
	}
}

func TestRecover_TypeCoercion(t *testing.T) {
	raw := `{"title": 42, "score": "8/10", "approved": "yes", "tags": "solo"}`

	result := Recover(raw, reviewSchema())
	require.False(t, result.Fallback)
	assert.Equal(t, "42", result.Object["title"])
	assert.Equal(t, 8, result.Object["score"])
	assert.Equal(t, true, result.Object["approved"])
	assert.Equal(t, []string{"solo"}, result.Object["tags"])
}

func TestRecover_NestedObjects(t *testing.T) {
	schema := Schema{
		Name: "nested",
		Fields: []Field{
			{Name: "assessment", Type: Object, Required: true, Fields: []Field{
				{Name: "score", Type: Integer, Min: ptrF(0), Max: ptrF(100)},
				{Name: "feedback", Type: String},
			}},
			{Name: "items", Type: ObjectList, Fields: []Field{
				{Name: "question", Type: String, Required: true},
			}},
		},
	}
	raw := `{"assessment": {"score": 120, "feedback": "strong"}, "items": [{"question": "q1"}, "bare string"]}`

	result := Recover(raw, schema)
	require.False(t, result.Fallback)

	assessment := result.Object["assessment"].(map[string]any)
	assert.Equal(t, 100, assessment["score"])
	assert.Equal(t, "strong", assessment["feedback"])

	items := result.Object["items"].([]map[string]any)
	require.Len(t, items, 2)
	assert.Equal(t, "q1", items[0]["question"])
	assert.Equal(t, "bare string", items[1]["question"])
}

func TestRecover_MissingRequiredUsesLaterStage(t *testing.T) {
	// parses fine, but title is missing; fragments fill defaults
	raw := `{"score": 12}`

	result := Recover(raw, reviewSchema())
	require.False(t, result.Fallback)
	assert.Equal(t, StageFragments, result.Stage)
	assert.Equal(t, "", result.Object["title"])
	assert.Equal(t, 12, result.Object["score"])
}

func TestRecover_DocumentCheck(t *testing.T) {
	schema := reviewSchema()
	schema.Document = `{
		"type": "object",
		"required": ["title", "score"],
		"properties": {
			"title": {"type": "string", "minLength": 1},
			"score": {"type": "integer"}
		}
	}`

	good := Recover(`{"title": "ok", "score": 10}`, schema)
	assert.Equal(t, StageDirect, good.Stage)

	// empty title violates the document, pushing recovery down the ladder
	bad := Recover(`{"title": "", "score": 10}`, schema)
	assert.NotEqual(t, StageDirect, bad.Stage)
}

func TestSchemaFallback_IsValid(t *testing.T) {
	schema := Schema{
		Name: "defaults",
		Fields: []Field{
			{Name: "text", Type: String, Required: true, Default: "n/a"},
			{Name: "score", Type: Number, Required: true, Min: ptrF(1), Max: ptrF(10)},
			{Name: "list", Type: StringList, Required: true},
		},
	}
	obj := schema.Fallback()
	assert.Equal(t, "n/a", obj["text"])
	assert.Equal(t, 1.0, obj["score"])
	assert.Equal(t, []string{}, obj["list"])
}

func ptrF(f float64) *float64 { return &f }
