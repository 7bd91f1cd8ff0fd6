// Package summary produces the final interview evaluation. The model's
// output has historically arrived in several shapes (string assessments,
// labeled-score lists, string next_steps), so a shape adapter maps every
// known variant onto the canonical structure before validation. A summary
// is always produced: model failure yields a schema-valid placeholder.
package summary

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/jonathan/interview-agent/internal/gateway"
	"github.com/jonathan/interview-agent/internal/llm"
	"github.com/jonathan/interview-agent/internal/memory"
	"github.com/jonathan/interview-agent/internal/profile"
	"github.com/jonathan/interview-agent/internal/prompts"
	"github.com/jonathan/interview-agent/internal/recovery"
	"github.com/jonathan/interview-agent/schemas"
)

// ScoredFeedback is a 0-100 score with written justification.
type ScoredFeedback struct {
	Score    int    `json:"score"`
	Feedback string `json:"feedback"`
}

// Recommendation is the hiring call.
type Recommendation struct {
	Score int    `json:"score"`
	Text  string `json:"text"`
}

// Summary is the canonical interview evaluation.
type Summary struct {
	CandidateName       string         `json:"candidate_name,omitempty"`
	Position            string         `json:"position,omitempty"`
	Strengths           []string       `json:"strengths"`
	Improvements        []string       `json:"improvements"`
	TechnicalAssessment ScoredFeedback `json:"technical_assessment"`
	CulturalFit         ScoredFeedback `json:"cultural_fit"`
	Recommendation      Recommendation `json:"recommendation"`
	NextSteps           []string       `json:"next_steps"`
	OverallAssessment   string         `json:"overall_assessment,omitempty"`
	// Placeholder reports that the model could not be reached and the
	// summary carries only minimal deterministic content.
	Placeholder bool `json:"placeholder,omitempty"`
}

// Generator builds summaries through the model gateway.
type Generator struct {
	gw     *gateway.Gateway
	logger *zap.Logger
}

func NewGenerator(gw *gateway.Gateway, logger *zap.Logger) *Generator {
	return &Generator{gw: gw, logger: logger}
}

// Summarize evaluates the whole interview: the full transcript and the
// memory insights go into the prompt, and the response is adapted, recovered,
// and clamped into the canonical shape. It never fails; a gateway error
// produces the placeholder summary.
func (g *Generator) Summarize(ctx context.Context, mem *memory.Memory, job *profile.Job, company *profile.Company, candidate *profile.Candidate) *Summary {
	prompt := buildPrompt(mem, job, company, candidate)

	raw, err := g.gw.GenerateJSON(ctx, prompt, llm.TierAdvanced)
	if err != nil {
		g.logger.Warn("summary generation failed, using placeholder", zap.Error(err))
		return placeholder(mem, job, candidate)
	}

	obj := adaptShape(raw)
	result := recovery.Recover(obj, summarySchema())
	if result.Fallback {
		g.logger.Warn("summary output irrecoverable, using placeholder",
			zap.String("stage", result.Stage))
		return placeholder(mem, job, candidate)
	}
	if result.Stage != recovery.StageDirect {
		g.logger.Info("summary output recovered", zap.String("stage", result.Stage))
	}

	s := fromObject(result.Object)
	fillBlanks(s, job, candidate)
	return s
}

func buildPrompt(mem *memory.Memory, job *profile.Job, company *profile.Company, candidate *profile.Candidate) string {
	var transcript strings.Builder
	for i, turn := range mem.Turns() {
		fmt.Fprintf(&transcript, "Q%d: %s\nA: %s\n\n", i+1, turn.Question, turn.Response)
	}

	var insights strings.Builder
	if topics := mem.Topics(); len(topics) > 0 {
		fmt.Fprintf(&insights, "- Topics mentioned: %s\n", strings.Join(topics, ", "))
	}
	if style := mem.DominantStyle(); style != "" {
		fmt.Fprintf(&insights, "- Communication style: %s\n", style)
	}
	for insight, count := range mem.Insights() {
		fmt.Fprintf(&insights, "- %s: %d instances\n", insight, count)
	}

	return prompts.Format(prompts.MustGet("summary.json", "interview-summary"), map[string]string{
		"CompanyName":    company.Name,
		"CompanyValues":  company.Values,
		"CandidateName":  candidate.Name,
		"JobTitle":       job.Title,
		"JobDescription": job.Description,
		"RequiredSkills": strings.Join(job.RequiredSkills, ", "),
		"Transcript":     transcript.String(),
		"Insights":       insights.String(),
	})
}

func summarySchema() recovery.Schema {
	scored := []recovery.Field{
		{Name: "score", Type: recovery.Integer, Min: ptr(0), Max: ptr(100), Default: 50},
		{Name: "feedback", Type: recovery.String},
	}
	return recovery.Schema{
		Name: "interview_summary",
		Fields: []recovery.Field{
			{Name: "candidate_name", Type: recovery.String},
			{Name: "position", Type: recovery.String},
			{Name: "strengths", Type: recovery.StringList, Required: true},
			{Name: "improvements", Type: recovery.StringList, Required: true},
			{Name: "technical_assessment", Type: recovery.Object, Required: true, Fields: scored},
			{Name: "cultural_fit", Type: recovery.Object, Required: true, Fields: scored},
			{Name: "recommendation", Type: recovery.Object, Required: true, Fields: []recovery.Field{
				{Name: "score", Type: recovery.Integer, Min: ptr(0), Max: ptr(100), Default: 50},
				{Name: "text", Type: recovery.String},
			}},
			{Name: "next_steps", Type: recovery.StringList, Required: true},
			{Name: "overall_assessment", Type: recovery.String},
		},
		Document: schemas.InterviewSummary,
	}
}

func ptr(f float64) *float64 { return &f }

// variant field names seen in historical model output
var listAliases = map[string]string{
	"improvements": "areas_for_improvement",
}

// adaptShape maps known output variants onto the canonical shape when the
// raw text parses as JSON, and returns the (possibly rewritten) text for
// recovery. Malformed text passes through untouched; the repair ladder
// handles it.
func adaptShape(raw string) string {
	text := llm.CleanJSONBlock(raw)
	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return raw
	}

	for canonical, alias := range listAliases {
		if _, ok := obj[canonical]; !ok {
			if v, present := obj[alias]; present {
				obj[canonical] = v
			}
		}
	}
	delete(obj, "areas_for_improvement")

	// string technical_evaluation replaces a missing technical_assessment
	if _, ok := obj["technical_assessment"]; !ok {
		if s, present := obj["technical_evaluation"].(string); present {
			obj["technical_assessment"] = map[string]any{"feedback": s}
		}
	}
	delete(obj, "technical_evaluation")

	if s, ok := obj["cultural_fit"].(string); ok {
		obj["cultural_fit"] = map[string]any{"feedback": s}
	}

	switch rec := obj["recommendation"].(type) {
	case string:
		obj["recommendation"] = map[string]any{
			"text":  rec,
			"score": RecommendationScore(rec),
		}
	case map[string]any:
		if _, ok := rec["score"]; !ok {
			recText, _ := rec["text"].(string)
			rec["score"] = RecommendationScore(recText)
		}
	}

	if s, ok := obj["next_steps"].(string); ok {
		obj["next_steps"] = strings.Split(s, "; ")
	}

	rewritten, err := json.Marshal(obj)
	if err != nil {
		return raw
	}
	return string(rewritten)
}

// RecommendationScore derives a 0-100 score from recommendation wording.
func RecommendationScore(text string) int {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "highly recommend"):
		return 90
	case strings.Contains(lower, "not recommend"):
		return 25
	case strings.Contains(lower, "recommend"):
		return 75
	case strings.Contains(lower, "neutral"):
		return 50
	default:
		return 50
	}
}

func fromObject(obj map[string]any) *Summary {
	s := &Summary{}
	s.CandidateName, _ = obj["candidate_name"].(string)
	s.Position, _ = obj["position"].(string)
	s.Strengths, _ = obj["strengths"].([]string)
	s.Improvements, _ = obj["improvements"].([]string)
	s.TechnicalAssessment = scoredFrom(obj["technical_assessment"])
	s.CulturalFit = scoredFrom(obj["cultural_fit"])
	s.NextSteps, _ = obj["next_steps"].([]string)
	s.OverallAssessment, _ = obj["overall_assessment"].(string)

	if rec, ok := obj["recommendation"].(map[string]any); ok {
		s.Recommendation.Score, _ = rec["score"].(int)
		s.Recommendation.Text, _ = rec["text"].(string)
	}
	return s
}

func scoredFrom(v any) ScoredFeedback {
	m, ok := v.(map[string]any)
	if !ok {
		return ScoredFeedback{Score: 50}
	}
	sf := ScoredFeedback{}
	sf.Score, _ = m["score"].(int)
	sf.Feedback, _ = m["feedback"].(string)
	return sf
}

// fillBlanks replaces empty list fields and missing identity fields with
// deterministic content so downstream consumers never see holes.
func fillBlanks(s *Summary, job *profile.Job, candidate *profile.Candidate) {
	if len(s.Strengths) == 0 {
		s.Strengths = []string{"Could not analyze fully"}
	}
	if len(s.Improvements) == 0 {
		s.Improvements = []string{"Could not analyze fully"}
	}
	if len(s.NextSteps) == 0 {
		s.NextSteps = []string{"Review the interview transcript before deciding"}
	}
	if s.Recommendation.Text == "" {
		s.Recommendation.Text = "More information needed"
	}
	if s.CandidateName == "" && candidate != nil {
		s.CandidateName = candidate.Name
	}
	if s.Position == "" && job != nil {
		s.Position = job.Title
	}
}

// placeholder is the minimal schema-valid summary used when the model is
// unavailable.
func placeholder(mem *memory.Memory, job *profile.Job, candidate *profile.Candidate) *Summary {
	name := "The candidate"
	if candidate != nil && candidate.Name != "" {
		name = candidate.Name
	}
	position := "the position"
	if job != nil && job.Title != "" {
		position = job.Title
	}
	responses := 0
	if mem != nil {
		responses = mem.Len()
	}

	return &Summary{
		CandidateName: name,
		Position:      position,
		Strengths:     []string{"Could not analyze fully"},
		Improvements:  []string{"Could not analyze fully"},
		TechnicalAssessment: ScoredFeedback{
			Score:    50,
			Feedback: fmt.Sprintf("Interview had only %d responses, which is not enough for a full evaluation", responses),
		},
		CulturalFit: ScoredFeedback{
			Score:    50,
			Feedback: "Not enough information to evaluate",
		},
		Recommendation: Recommendation{
			Score: 50,
			Text:  "More information needed",
		},
		NextSteps:         []string{"Consider conducting another interview to gather more information"},
		OverallAssessment: fmt.Sprintf("%s participated in a brief interview for %s but did not complete enough questions for a full assessment", name, position),
		Placeholder:       true,
	}
}
