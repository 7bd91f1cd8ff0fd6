// Package schemas embeds the JSON Schema documents for structured model output.
package schemas

import (
	_ "embed"
)

// InterviewScript is the JSON Schema for generated interview scripts.
//
//go:embed interview_script.schema.json
var InterviewScript string

// InterviewSummary is the JSON Schema for final interview summaries.
//
//go:embed interview_summary.schema.json
var InterviewSummary string
