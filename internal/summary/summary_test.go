package summary

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jonathan/interview-agent/internal/gateway"
	"github.com/jonathan/interview-agent/internal/llm"
	"github.com/jonathan/interview-agent/internal/memory"
	"github.com/jonathan/interview-agent/internal/profile"
)

type stubClient struct {
	reply string
	err   error
}

func (s *stubClient) GenerateContent(context.Context, string, llm.ModelTier) (string, error) {
	return s.reply, s.err
}

func (s *stubClient) GenerateJSON(context.Context, string, llm.ModelTier) (string, error) {
	return s.reply, s.err
}

func (s *stubClient) GetModel(llm.ModelTier) string { return "stub" }
func (s *stubClient) Close() error                  { return nil }

func summarize(t *testing.T, client llm.Client) *Summary {
	t.Helper()
	gen := NewGenerator(gateway.New(client, gateway.Options{}, zap.NewNop()), zap.NewNop())
	job, company, candidate := profile.SampleData()

	mem := memory.New()
	mem.AddTurn(memory.Turn{
		Question: "Tell me about yourself.",
		Category: "introduction",
		Response: "I build backend systems, mostly in Go with a Postgres database underneath.",
	})
	return gen.Summarize(context.Background(), mem, job, company, candidate)
}

const canonicalJSON = `{
	"candidate_name": "Jordan Reyes",
	"position": "Senior Backend Engineer",
	"strengths": ["clear communicator", "strong systems background"],
	"improvements": ["broader frontend exposure"],
	"technical_assessment": {"score": 82, "feedback": "deep and specific"},
	"cultural_fit": {"score": 70, "feedback": "values aligned"},
	"recommendation": {"score": 75, "text": "Recommend"},
	"next_steps": ["schedule a systems design round"],
	"overall_assessment": "A strong conversation overall."
}`

func TestSummarize_CanonicalOutput(t *testing.T) {
	s := summarize(t, &stubClient{reply: canonicalJSON})

	assert.False(t, s.Placeholder)
	assert.Equal(t, "Jordan Reyes", s.CandidateName)
	assert.Equal(t, []string{"clear communicator", "strong systems background"}, s.Strengths)
	assert.Equal(t, 82, s.TechnicalAssessment.Score)
	assert.Equal(t, 70, s.CulturalFit.Score)
	assert.Equal(t, Recommendation{Score: 75, Text: "Recommend"}, s.Recommendation)
	assert.Equal(t, []string{"schedule a systems design round"}, s.NextSteps)
}

func TestSummarize_GatewayErrorYieldsPlaceholder(t *testing.T) {
	s := summarize(t, &stubClient{err: errors.New("offline")})

	assert.True(t, s.Placeholder)
	assert.Equal(t, []string{"Could not analyze fully"}, s.Strengths)
	assert.Equal(t, 50, s.TechnicalAssessment.Score)
	assert.Equal(t, 50, s.Recommendation.Score)
	assert.NotEmpty(t, s.NextSteps)
	// identity comes from the profiles, not the model
	assert.Equal(t, "Jordan Reyes", s.CandidateName)
	assert.Equal(t, "Senior Backend Engineer", s.Position)
	assert.Contains(t, s.TechnicalAssessment.Feedback, "1 responses")
}

func TestSummarize_IrrecoverableOutputYieldsPlaceholder(t *testing.T) {
	s := summarize(t, &stubClient{reply: "I could not form an opinion."})
	assert.True(t, s.Placeholder)
}

func TestSummarize_VariantShape(t *testing.T) {
	variant := `{
		"strengths": ["pragmatic"],
		"areas_for_improvement": ["documentation habits"],
		"technical_evaluation": "Solid fundamentals with some gaps in distributed systems.",
		"cultural_fit": "Collaborative and curious.",
		"recommendation": "I would highly recommend moving forward.",
		"next_steps": "Schedule onsite; Check references"
	}`
	s := summarize(t, &stubClient{reply: variant})

	assert.False(t, s.Placeholder)
	assert.Equal(t, []string{"documentation habits"}, s.Improvements)
	assert.Equal(t, "Solid fundamentals with some gaps in distributed systems.", s.TechnicalAssessment.Feedback)
	assert.Equal(t, 50, s.TechnicalAssessment.Score)
	assert.Equal(t, "Collaborative and curious.", s.CulturalFit.Feedback)
	assert.Equal(t, 90, s.Recommendation.Score)
	assert.Equal(t, "I would highly recommend moving forward.", s.Recommendation.Text)
	assert.Equal(t, []string{"Schedule onsite", "Check references"}, s.NextSteps)
}

func TestSummarize_ScoresClamped(t *testing.T) {
	over := `{
		"strengths": ["x"],
		"improvements": ["y"],
		"technical_assessment": {"score": 150, "feedback": "great"},
		"cultural_fit": {"score": -10, "feedback": "unclear"},
		"recommendation": {"score": 999, "text": "Recommend"},
		"next_steps": ["z"]
	}`
	s := summarize(t, &stubClient{reply: over})

	assert.Equal(t, 100, s.TechnicalAssessment.Score)
	assert.Equal(t, 0, s.CulturalFit.Score)
	assert.Equal(t, 100, s.Recommendation.Score)
}

func TestSummarize_FencedOutputRecovered(t *testing.T) {
	s := summarize(t, &stubClient{reply: "```json\n" + canonicalJSON + "\n```"})
	assert.False(t, s.Placeholder)
	assert.Equal(t, 82, s.TechnicalAssessment.Score)
}

func TestAdaptShape_MalformedTextPassesThrough(t *testing.T) {
	raw := `{"strengths": ["unterminated`
	assert.Equal(t, raw, adaptShape(raw))
}

func TestAdaptShape_RecommendationMapWithoutScore(t *testing.T) {
	raw := `{"recommendation": {"text": "We should not recommend this candidate."}}`
	var obj map[string]any
	require.NoError(t, json.Unmarshal([]byte(adaptShape(raw)), &obj))

	rec := obj["recommendation"].(map[string]any)
	assert.Equal(t, float64(25), rec["score"])
}

func TestRecommendationScore(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"I highly recommend this candidate", 90},
		{"We do not recommend proceeding", 25},
		{"Not recommended for this role", 25},
		{"Recommend for hire", 75},
		{"Neutral on this one", 50},
		{"", 50},
		{"Unsure what to say", 50},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, RecommendationScore(tt.text))
		})
	}
}

func TestFillBlanks(t *testing.T) {
	job := &profile.Job{Title: "Platform Engineer"}
	candidate := &profile.Candidate{Name: "Sam Okafor"}

	s := &Summary{}
	fillBlanks(s, job, candidate)

	assert.Equal(t, []string{"Could not analyze fully"}, s.Strengths)
	assert.Equal(t, []string{"Could not analyze fully"}, s.Improvements)
	assert.Equal(t, []string{"Review the interview transcript before deciding"}, s.NextSteps)
	assert.Equal(t, "More information needed", s.Recommendation.Text)
	assert.Equal(t, "Sam Okafor", s.CandidateName)
	assert.Equal(t, "Platform Engineer", s.Position)
}

func TestFillBlanks_KeepsModelContent(t *testing.T) {
	s := &Summary{
		CandidateName:  "From Model",
		Strengths:      []string{"kept"},
		Recommendation: Recommendation{Text: "Recommend"},
	}
	fillBlanks(s, &profile.Job{Title: "X"}, &profile.Candidate{Name: "Y"})

	assert.Equal(t, "From Model", s.CandidateName)
	assert.Equal(t, []string{"kept"}, s.Strengths)
	assert.Equal(t, "Recommend", s.Recommendation.Text)
}

func TestPlaceholder_NilInputs(t *testing.T) {
	s := placeholder(nil, nil, nil)

	assert.True(t, s.Placeholder)
	assert.Equal(t, "The candidate", s.CandidateName)
	assert.Equal(t, "the position", s.Position)
	assert.Contains(t, s.TechnicalAssessment.Feedback, "0 responses")
}
