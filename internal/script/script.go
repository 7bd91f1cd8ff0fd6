// Package script generates the personalized interview script: an
// introduction, an ordered question sequence, and a closing. Question
// wording comes from the model; the ordering, transitions, and category
// guarantees are deterministic.
package script

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/jonathan/interview-agent/internal/gateway"
	"github.com/jonathan/interview-agent/internal/llm"
	"github.com/jonathan/interview-agent/internal/profile"
	"github.com/jonathan/interview-agent/internal/prompts"
	"github.com/jonathan/interview-agent/internal/recovery"
	"github.com/jonathan/interview-agent/schemas"
)

// Category classifies a question within the interview flow.
type Category string

// Question categories. Introduction and Closing are fixed bookends; the
// model only generates questions for the four middle categories.
const (
	CategoryIntroduction Category = "introduction"
	CategoryJobSpecific  Category = "job_specific"
	CategoryTechnical    Category = "technical"
	CategoryCompanyFit   Category = "company_fit"
	CategoryBehavioral   Category = "behavioral"
	CategoryClosing      Category = "closing"
)

// QuestionSpec is one planned question in the interview sequence.
type QuestionSpec struct {
	ID       string   `json:"id"`
	Category Category `json:"category"`
	Text     string   `json:"question"`
	// Purpose records why the question is asked; Criteria what a strong
	// answer looks like. Both feed response evaluation.
	Purpose  string `json:"purpose,omitempty"`
	Criteria string `json:"good_answer_criteria,omitempty"`
	// Transition is spoken before the question to connect it to the
	// previous exchange.
	Transition string `json:"transition,omitempty"`
}

// InterviewScript is the full plan for one interview. Questions is the
// organized sequence, introduction bookend first and closing bookend last.
type InterviewScript struct {
	Introduction string         `json:"introduction"`
	Closing      string         `json:"closing"`
	Questions    []QuestionSpec `json:"questions"`
	// Fallback reports that the deterministic script was used because the
	// model output could not be obtained.
	Fallback bool `json:"fallback,omitempty"`
}

// Generator produces interview scripts through the model gateway.
type Generator struct {
	gw     *gateway.Gateway
	logger *zap.Logger
}

func NewGenerator(gw *gateway.Gateway, logger *zap.Logger) *Generator {
	return &Generator{gw: gw, logger: logger}
}

// middle categories in the order the model is asked for them
var generatedCategories = []Category{
	CategoryJobSpecific,
	CategoryTechnical,
	CategoryCompanyFit,
	CategoryBehavioral,
}

// Generate builds a personalized script for the given profiles. Demo mode
// requests fewer questions per category. Generate never fails: if the model
// is unavailable or its output is irrecoverable, the deterministic fallback
// script is returned instead.
func (g *Generator) Generate(ctx context.Context, job *profile.Job, company *profile.Company, candidate *profile.Candidate, demo bool) *InterviewScript {
	prompt := g.buildPrompt(job, company, candidate, demo)

	raw, err := g.gw.GenerateJSON(ctx, prompt, llm.TierStandard)
	if err != nil {
		g.logger.Warn("script generation failed, using fallback script", zap.Error(err))
		return FallbackScript(job, demo)
	}

	result := recovery.Recover(raw, scriptSchema())
	if result.Fallback {
		g.logger.Warn("script output irrecoverable, using fallback script",
			zap.String("stage", result.Stage))
		return FallbackScript(job, demo)
	}
	if result.Stage != recovery.StageDirect {
		g.logger.Info("script output recovered", zap.String("stage", result.Stage))
	}

	return organize(fromObject(result.Object), false)
}

func (g *Generator) buildPrompt(job *profile.Job, company *profile.Company, candidate *profile.Candidate, demo bool) string {
	jobCount, techCount, fitCount, behaveCount := "5", "3-5", "2-3", "3-4"
	if demo {
		jobCount, techCount, fitCount, behaveCount = "2", "1", "1", "1"
	}

	template := prompts.MustGet("interview.json", "script-generation")
	return prompts.Format(template, map[string]string{
		"CompanyName":         company.Name,
		"JobTitle":            job.Title,
		"JobDescription":      job.Description,
		"RequiredSkills":      strings.Join(job.RequiredSkills, ", "),
		"CompanyDescription":  company.Description,
		"CompanyValues":       company.Values,
		"CandidateName":       candidate.Name,
		"CandidateExperience": candidate.Experience,
		"CandidateBackground": candidate.Background,
		"JobSpecificCount":    jobCount,
		"TechnicalCount":      techCount,
		"CompanyFitCount":     fitCount,
		"BehavioralCount":     behaveCount,
	})
}

func scriptSchema() recovery.Schema {
	questionFields := []recovery.Field{
		{Name: "question", Type: recovery.String, Required: true},
		{Name: "purpose", Type: recovery.String},
		{Name: "good_answer_criteria", Type: recovery.String},
	}
	categoryFields := make([]recovery.Field, 0, len(generatedCategories))
	for _, cat := range generatedCategories {
		categoryFields = append(categoryFields, recovery.Field{
			Name: string(cat), Type: recovery.ObjectList, Fields: questionFields,
		})
	}
	return recovery.Schema{
		Name: "interview_script",
		Fields: []recovery.Field{
			{Name: "introduction", Type: recovery.String, Required: true,
				Default: "Welcome to your interview. I'm excited to learn more about your background and experience."},
			{Name: "questions", Type: recovery.Object, Required: true, Fields: categoryFields},
			{Name: "closing", Type: recovery.String, Required: true,
				Default: "Thank you for your time today. We'll be in touch regarding next steps."},
		},
		Document: schemas.InterviewScript,
	}
}

// rawScript is the pre-organization shape: introduction, closing, and a
// question list per generated category.
type rawScript struct {
	introduction string
	closing      string
	questions    map[Category][]QuestionSpec
}

func fromObject(obj map[string]any) rawScript {
	rs := rawScript{questions: make(map[Category][]QuestionSpec)}
	rs.introduction, _ = obj["introduction"].(string)
	rs.closing, _ = obj["closing"].(string)

	questions, _ := obj["questions"].(map[string]any)
	for _, cat := range generatedCategories {
		list, _ := questions[string(cat)].([]map[string]any)
		for _, item := range list {
			q := QuestionSpec{Category: cat}
			q.Text, _ = item["question"].(string)
			q.Purpose, _ = item["purpose"].(string)
			q.Criteria, _ = item["good_answer_criteria"].(string)
			if q.Text != "" {
				rs.questions[cat] = append(rs.questions[cat], q)
			}
		}
	}
	return rs
}

// seedQuestions backfill any category the model left empty so the organized
// flow always covers all four.
var seedQuestions = map[Category]QuestionSpec{
	CategoryJobSpecific: {
		Text:     "Could you tell me about your relevant experience for this position?",
		Purpose:  "To understand the candidate's background",
		Criteria: "Specific examples that demonstrate required skills",
	},
	CategoryTechnical: {
		Text:     "Can you describe a technical challenge you faced recently and how you resolved it?",
		Purpose:  "To assess problem-solving abilities",
		Criteria: "Clear problem description and effective solution",
	},
	CategoryCompanyFit: {
		Text:     "What interests you most about working with our company?",
		Purpose:  "To gauge cultural fit",
		Criteria: "Alignment with company values",
	},
	CategoryBehavioral: {
		Text:     "Tell me about a time when you had to adapt to a significant change.",
		Purpose:  "To assess adaptability",
		Criteria: "Positive attitude toward change, specific actions taken",
	},
}

// rotating mid-interview transition phrases, keyed by category
var transitionPool = map[Category][]string{
	CategoryJobSpecific: {
		"Building on what we've discussed, I'd like to ask about your experience with...",
		"I'm interested to hear more about your background in...",
		"Let's talk more specifically about your work with...",
	},
	CategoryTechnical: {
		"Now I'd like to explore your technical knowledge in...",
		"Regarding the technical aspects of this role...",
		"Let's dive into some of the technical skills required for this position...",
	},
	CategoryCompanyFit: {
		"Considering our company values...",
		"From a team perspective...",
		"In terms of our work environment...",
	},
	CategoryBehavioral: {
		"Reflecting on your past experiences...",
		"I'm curious about how you've handled certain situations before...",
		"Let's discuss an example of when you've had to...",
	},
}

// transitions for the opening question of each category
var openingTransition = map[Category]string{
	CategoryJobSpecific: "Thanks for sharing that. I'd like to learn more about your relevant experience.",
	CategoryTechnical:   "Now I'd like to understand your technical capabilities a bit better.",
	CategoryCompanyFit:  "Switching gears a bit, I'd like to explore how you might fit with our company culture.",
	CategoryBehavioral:  "Let's talk about some of your past experiences and how you handled them.",
}

// organize flattens the per-category questions into a single natural
// sequence: introduction bookend, one opener per category to establish
// breadth, a round-robin pass over the remainder with rotating transitions,
// then the closing bookend. Every category contributes at least one question.
func organize(rs rawScript, fallback bool) *InterviewScript {
	for _, cat := range generatedCategories {
		if len(rs.questions[cat]) == 0 {
			rs.questions[cat] = []QuestionSpec{withCategory(seedQuestions[cat], cat)}
		}
	}

	sequence := []QuestionSpec{{
		Category:   CategoryIntroduction,
		Text:       "Could you please tell me a bit about yourself and your interest in this position?",
		Purpose:    "To break the ice and hear the candidate's self-introduction",
		Transition: "Thanks for joining us today. I'd like to start by getting to know you a bit better.",
	}}

	remaining := make(map[Category][]QuestionSpec, len(generatedCategories))
	for _, cat := range generatedCategories {
		q := rs.questions[cat][0]
		q.Transition = openingTransition[cat]
		sequence = append(sequence, withCategory(q, cat))
		remaining[cat] = rs.questions[cat][1:]
	}

	rotation := []Category{CategoryJobSpecific, CategoryBehavioral, CategoryTechnical, CategoryCompanyFit}
	for left := true; left; {
		left = false
		for _, cat := range rotation {
			pool := remaining[cat]
			if len(pool) == 0 {
				continue
			}
			q := pool[0]
			q.Transition = transitionPool[cat][len(pool)%len(transitionPool[cat])]
			sequence = append(sequence, withCategory(q, cat))
			remaining[cat] = pool[1:]
			left = left || len(remaining[cat]) > 0
		}
	}

	sequence = append(sequence, QuestionSpec{
		Category:   CategoryClosing,
		Text:       "Do you have any questions for me about the position or the company?",
		Purpose:    "To allow the candidate to ask questions and show their interest",
		Transition: "We've covered quite a bit today. Before we wrap up, I wanted to give you an opportunity to ask any questions you might have.",
	})

	for i := range sequence {
		sequence[i].ID = fmt.Sprintf("q%02d", i+1)
	}

	return &InterviewScript{
		Introduction: rs.introduction,
		Closing:      rs.closing,
		Questions:    sequence,
		Fallback:     fallback,
	}
}

func withCategory(q QuestionSpec, cat Category) QuestionSpec {
	q.Category = cat
	return q
}

// FallbackScript is the deterministic script used when the model cannot
// produce one. It keeps the interview viable with one question per category,
// plus a motivation question outside demo mode.
func FallbackScript(job *profile.Job, demo bool) *InterviewScript {
	title := "the position"
	if job != nil && job.Title != "" {
		title = job.Title
	}

	rs := rawScript{
		introduction: fmt.Sprintf("Hello and welcome to the interview for %s. Thank you for taking the time to speak with us today.", title),
		closing:      "Thank you for your time today. We'll be in touch regarding next steps.",
		questions: map[Category][]QuestionSpec{
			CategoryJobSpecific: {{
				Text:     fmt.Sprintf("Could you tell me about your experience related to %s?", title),
				Purpose:  "To understand the candidate's relevant experience",
				Criteria: "Specific examples of relevant work",
			}},
			CategoryTechnical: {{
				Text:     "What technical skills do you bring to this role?",
				Purpose:  "To assess technical capabilities",
				Criteria: "Relevant technical skills with examples",
			}},
			CategoryCompanyFit: {{
				Text:     "What do you know about our company?",
				Purpose:  "To assess company research",
				Criteria: "Knowledge of company and its values",
			}},
			CategoryBehavioral: {{
				Text:     "Tell me about a challenging situation you faced at work and how you handled it.",
				Purpose:  "To assess problem-solving abilities",
				Criteria: "Clear problem description, actions taken, and results",
			}},
		},
	}
	if !demo {
		rs.questions[CategoryJobSpecific] = append(rs.questions[CategoryJobSpecific], QuestionSpec{
			Text:     "What interests you most about this position?",
			Purpose:  "To gauge the candidate's motivation",
			Criteria: "Alignment with job responsibilities",
		})
	}
	return organize(rs, true)
}
