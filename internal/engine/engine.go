// Package engine drives one interview as a state machine. Each candidate
// response advances the machine through a fixed decision order: repeated
// answers, questions from the candidate, requests to move on, then quality
// evaluation deciding between a follow-up and the next scripted question.
// Model failures never stall the interview; every conversational piece has
// a deterministic fallback.
package engine

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/jonathan/interview-agent/internal/evaluate"
	"github.com/jonathan/interview-agent/internal/gateway"
	"github.com/jonathan/interview-agent/internal/llm"
	"github.com/jonathan/interview-agent/internal/memory"
	"github.com/jonathan/interview-agent/internal/profile"
	"github.com/jonathan/interview-agent/internal/promptcache"
	"github.com/jonathan/interview-agent/internal/prompts"
	"github.com/jonathan/interview-agent/internal/script"
	"github.com/jonathan/interview-agent/internal/summary"
)

// State names the interview lifecycle phase.
type State string

const (
	StateNotStarted       State = "not_started"
	StateInProgress       State = "in_progress"
	StateAwaitingFollowUp State = "awaiting_follow_up"
	StateComplete         State = "complete"
)

// InvalidStateError reports an operation attempted in the wrong phase.
type InvalidStateError struct {
	Op    string
	State State
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s in state %q", e.Op, e.State)
}

// Options tune interview behavior.
type Options struct {
	// Demo shortens the interview: fewer scripted questions and at most
	// one follow-up per question.
	Demo bool
	// FollowUpBudget caps follow-ups per question. Zero means the mode
	// default: 1 in demo, 2 otherwise.
	FollowUpBudget int
	// SimilarityThreshold overrides the duplicate detection threshold.
	SimilarityThreshold float64
}

func (o Options) budget() int {
	if o.FollowUpBudget > 0 {
		return o.FollowUpBudget
	}
	if o.Demo {
		return 1
	}
	return 2
}

// Deps are the shared services an interview runs on.
type Deps struct {
	Gateway *gateway.Gateway
	Cache   *promptcache.Cache
	Logger  *zap.Logger
}

// Prompt is what the interviewer says next.
type Prompt struct {
	Status         string                    `json:"status"`
	Introduction   string                    `json:"introduction,omitempty"`
	Acknowledgment string                    `json:"acknowledgment,omitempty"`
	Transition     string                    `json:"transition,omitempty"`
	Question       *script.QuestionSpec      `json:"question,omitempty"`
	IsFollowUp     bool                      `json:"is_follow_up,omitempty"`
	QuestionNumber int                       `json:"question_number,omitempty"`
	TotalQuestions int                       `json:"total_questions,omitempty"`
	ClosingRemarks string                    `json:"closing_remarks,omitempty"`
	Summary        *summary.Summary          `json:"summary,omitempty"`
}

// Snapshot is a point-in-time view of interview progress.
type Snapshot struct {
	State          State `json:"state"`
	QuestionIndex  int   `json:"question_index"`
	TotalQuestions int   `json:"total_questions"`
	Responses      int   `json:"responses"`
	FollowUps      int   `json:"follow_ups"`
}

// Interview is one candidate conversation. Methods are safe for concurrent
// use; responses are serialized behind the interview lock.
type Interview struct {
	mu sync.Mutex

	deps      Deps
	opts      Options
	job       *profile.Job
	company   *profile.Company
	candidate *profile.Candidate

	scriptGen  *script.Generator
	evaluator  *evaluate.Evaluator
	summarizer *summary.Generator

	state      State
	plan       *script.InterviewScript
	index      int
	followUps  map[string]int
	totalFUs   int
	pendingFU  string
	mem        *memory.Memory
	conclusion *summary.Summary
}

// New creates an interview for the given profiles. The script is generated
// lazily on Start.
func New(deps Deps, job *profile.Job, company *profile.Company, candidate *profile.Candidate, opts Options) *Interview {
	memOpts := []memory.Option{}
	if opts.SimilarityThreshold > 0 {
		memOpts = append(memOpts, memory.WithSimilarityThreshold(opts.SimilarityThreshold))
	}
	return &Interview{
		deps:       deps,
		opts:       opts,
		job:        job,
		company:    company,
		candidate:  candidate,
		scriptGen:  script.NewGenerator(deps.Gateway, deps.Logger),
		evaluator:  evaluate.NewEvaluator(deps.Gateway, deps.Cache, deps.Logger),
		summarizer: summary.NewGenerator(deps.Gateway, deps.Logger),
		state:      StateNotStarted,
		followUps:  make(map[string]int),
		mem:        memory.New(memOpts...),
	}
}

// Start generates the script if needed and presents the introduction and
// first question.
func (iv *Interview) Start(ctx context.Context) (*Prompt, error) {
	iv.mu.Lock()
	defer iv.mu.Unlock()

	if iv.state != StateNotStarted {
		return nil, &InvalidStateError{Op: "start", State: iv.state}
	}

	if iv.plan == nil {
		iv.plan = iv.scriptGen.Generate(ctx, iv.job, iv.company, iv.candidate, iv.opts.Demo)
	}

	iv.state = StateInProgress
	iv.index = 0

	first := iv.plan.Questions[0]
	return &Prompt{
		Status:         "active",
		Introduction:   iv.plan.Introduction,
		Transition:     first.Transition,
		Question:       &first,
		QuestionNumber: 1,
		TotalQuestions: len(iv.plan.Questions),
	}, nil
}

// Respond processes one candidate response and returns the next prompt.
// Exactly one turn is recorded per call.
func (iv *Interview) Respond(ctx context.Context, text string) (*Prompt, error) {
	iv.mu.Lock()
	defer iv.mu.Unlock()

	if iv.state != StateInProgress && iv.state != StateAwaitingFollowUp {
		return nil, &InvalidStateError{Op: "respond", State: iv.state}
	}

	current := iv.plan.Questions[iv.index]
	asked := current.Text
	isFollowUp := iv.state == StateAwaitingFollowUp
	if isFollowUp {
		asked = iv.pendingFU
	}

	isQuestion := iv.detectCandidateQuestion(ctx, text)

	if !isQuestion && iv.mem.IsDuplicate(text) {
		iv.record(current, asked, text, nil, memory.Flags{IsFollowUp: isFollowUp, IsDuplicate: true})
		iv.deps.Logger.Info("duplicate response, re-prompting", zap.String("question", current.ID))
		repeat := iv.pendingQuestion()
		return &Prompt{
			Status:         "active",
			Acknowledgment: "That sounds very similar to something you mentioned earlier. Could you share something new or go into more detail?",
			Question:       &repeat,
			IsFollowUp:     isFollowUp,
			QuestionNumber: iv.index + 1,
			TotalQuestions: len(iv.plan.Questions),
		}, nil
	}

	if isQuestion {
		answer := iv.answerCandidateQuestion(ctx, text)
		iv.record(current, asked, text, nil, memory.Flags{IsFollowUp: isFollowUp, IsCandidateQuestion: true})
		repeat := iv.pendingQuestion()
		return &Prompt{
			Status:         "active",
			Acknowledgment: answer,
			Question:       &repeat,
			IsFollowUp:     isFollowUp,
			QuestionNumber: iv.index + 1,
			TotalQuestions: len(iv.plan.Questions),
		}, nil
	}

	if wantsToMoveOn(text) {
		iv.record(current, asked, text, nil, memory.Flags{IsFollowUp: isFollowUp})
		iv.deps.Logger.Info("candidate asked to move on", zap.String("question", current.ID))
		return iv.advance(ctx, current, "Of course, let's move on.")
	}

	eval := iv.evaluator.Evaluate(ctx, current, text)
	iv.record(current, asked, text, &eval, memory.Flags{IsFollowUp: isFollowUp})

	if iv.shouldFollowUp(eval.Score, text, current) {
		if followUp := iv.generateFollowUp(ctx, current, text); followUp != "" {
			iv.followUps[current.ID]++
			iv.totalFUs++
			iv.pendingFU = followUp
			iv.state = StateAwaitingFollowUp
			return &Prompt{
				Status:         "active",
				Acknowledgment: iv.acknowledge(ctx, current, text),
				Question: &script.QuestionSpec{
					ID:       current.ID,
					Category: current.Category,
					Text:     followUp,
				},
				IsFollowUp:     true,
				QuestionNumber: iv.index + 1,
				TotalQuestions: len(iv.plan.Questions),
			}, nil
		}
	}

	return iv.advance(ctx, current, iv.acknowledge(ctx, current, text))
}

// pendingQuestion is the question the candidate is currently being asked,
// substituting the follow-up text when one is outstanding. Used when a
// turn must re-present rather than advance.
func (iv *Interview) pendingQuestion() script.QuestionSpec {
	q := iv.plan.Questions[iv.index]
	if iv.state == StateAwaitingFollowUp {
		q = script.QuestionSpec{
			ID:       q.ID,
			Category: q.Category,
			Text:     iv.pendingFU,
		}
	}
	return q
}

// advance moves past the current question, completing the interview when no
// questions remain.
func (iv *Interview) advance(ctx context.Context, current script.QuestionSpec, acknowledgment string) (*Prompt, error) {
	iv.pendingFU = ""
	iv.index++

	if iv.index >= len(iv.plan.Questions) {
		iv.state = StateComplete
		iv.conclusion = iv.summarizer.Summarize(ctx, iv.mem, iv.job, iv.company, iv.candidate)
		iv.deps.Logger.Info("interview complete", zap.Int("turns", iv.mem.Len()))
		return &Prompt{
			Status:         "complete",
			Acknowledgment: acknowledgment,
			ClosingRemarks: iv.plan.Closing,
			Summary:        iv.conclusion,
		}, nil
	}

	iv.state = StateInProgress
	next := iv.plan.Questions[iv.index]
	return &Prompt{
		Status:         "active",
		Acknowledgment: acknowledgment,
		Transition:     iv.transition(ctx, current, next),
		Question:       &next,
		QuestionNumber: iv.index + 1,
		TotalQuestions: len(iv.plan.Questions),
	}, nil
}

func (iv *Interview) record(q script.QuestionSpec, asked, response string, eval *evaluate.Result, flags memory.Flags) {
	iv.mem.AddTurn(memory.Turn{
		QuestionID: q.ID,
		Question:   asked,
		Category:   string(q.Category),
		Response:   response,
		Evaluation: eval,
		Flags:      flags,
	})
}

// Summary returns the final evaluation. It exists only once the interview
// is complete and never changes afterward.
func (iv *Interview) Summary() (*summary.Summary, error) {
	iv.mu.Lock()
	defer iv.mu.Unlock()
	if iv.state != StateComplete {
		return nil, &InvalidStateError{Op: "summarize", State: iv.state}
	}
	return iv.conclusion, nil
}

// State returns the current lifecycle phase.
func (iv *Interview) State() State {
	iv.mu.Lock()
	defer iv.mu.Unlock()
	return iv.state
}

// Snapshot reports progress counters for status endpoints.
func (iv *Interview) Snapshot() Snapshot {
	iv.mu.Lock()
	defer iv.mu.Unlock()
	total := 0
	if iv.plan != nil {
		total = len(iv.plan.Questions)
	}
	return Snapshot{
		State:          iv.state,
		QuestionIndex:  iv.index,
		TotalQuestions: total,
		Responses:      iv.mem.Len(),
		FollowUps:      iv.totalFUs,
	}
}

// Script returns the generated interview plan, nil before Start.
func (iv *Interview) Script() *script.InterviewScript {
	iv.mu.Lock()
	defer iv.mu.Unlock()
	return iv.plan
}

// Turns returns the recorded conversation so far.
func (iv *Interview) Turns() []memory.Turn {
	iv.mu.Lock()
	defer iv.mu.Unlock()
	return iv.mem.Turns()
}

// Reset returns the interview to its initial state. The generated script is
// kept so a restarted interview reuses it.
func (iv *Interview) Reset() {
	iv.mu.Lock()
	defer iv.mu.Unlock()
	iv.state = StateNotStarted
	iv.index = 0
	iv.followUps = make(map[string]int)
	iv.totalFUs = 0
	iv.pendingFU = ""
	iv.conclusion = nil
	memOpts := []memory.Option{}
	if iv.opts.SimilarityThreshold > 0 {
		memOpts = append(memOpts, memory.WithSimilarityThreshold(iv.opts.SimilarityThreshold))
	}
	iv.mem = memory.New(memOpts...)
}

var moveOnPhrases = []string{
	"can we move", "next question", "moving on", "let's continue",
	"next section", "proceed", "getting rushed", "short on time",
	"move forward", "continue with", "go ahead",
}

func wantsToMoveOn(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range moveOnPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

var questionPhrases = []string{
	"i have a question", "can you tell me", "could you explain",
	"tell me about", "what is", "how do you", "who is", "when will",
	"why do", "where is", "is there", "are there", "will you",
	"could you", "would it be", "do you know", "i wonder if",
	"i'd like to know",
}

// detectCandidateQuestion decides whether the response is a question for the
// interviewer. Cheap lexical checks run first; longer ambiguous texts go to
// the model, with the verdict cached per normalized text.
func (iv *Interview) detectCandidateQuestion(ctx context.Context, text string) bool {
	trimmed := strings.ToLower(strings.TrimSpace(text))
	if strings.HasSuffix(trimmed, "?") {
		return true
	}
	for _, phrase := range questionPhrases {
		if strings.Contains(trimmed, phrase) {
			return true
		}
	}
	if len(strings.Fields(trimmed)) <= 15 {
		return false
	}

	key := promptcache.NewKey("question_detection", text)
	verdict, err := iv.deps.Cache.GetOrCompute(key, func() (string, error) {
		prompt := prompts.Format(prompts.MustGet("interview.json", "question-detection"),
			map[string]string{"Text": trimmed})
		return iv.deps.Gateway.GenerateText(ctx, prompt, llm.TierLite)
	})
	if err != nil {
		iv.deps.Logger.Warn("question detection unavailable", zap.Error(err))
		return false
	}
	return strings.EqualFold(strings.TrimSpace(verdict), "yes")
}

// shouldFollowUp applies the quality gate. Demo mode keeps the interview
// short: only very brief answers get a follow-up. Otherwise weak answers
// always get one and middling answers get the first one.
func (iv *Interview) shouldFollowUp(score int, response string, q script.QuestionSpec) bool {
	count := iv.followUps[q.ID]
	if count >= iv.opts.budget() {
		return false
	}
	if iv.opts.Demo {
		return len(strings.Fields(response)) < 15
	}
	switch {
	case score <= 3:
		return true
	case score <= 6:
		return count == 0
	default:
		return false
	}
}

var sentenceEnd = regexp.MustCompile(`[.!?]+`)
var firstQuestion = regexp.MustCompile(`[^.!?]*\?`)

// generateFollowUp asks the model for a targeted follow-up. An empty return
// means no follow-up should be asked.
func (iv *Interview) generateFollowUp(ctx context.Context, q script.QuestionSpec, response string) string {
	prompt := prompts.Format(prompts.MustGet("interview.json", "follow-up"), map[string]string{
		"Question": q.Text,
		"Response": response,
		"JobTitle": iv.job.Title,
		"Gap":      "",
	})

	out, err := iv.deps.Gateway.GenerateText(ctx, prompt, llm.TierStandard)
	if err != nil {
		iv.deps.Logger.Warn("follow-up generation failed", zap.Error(err))
		return ""
	}
	if strings.Contains(out, "NO_FOLLOW_UP_NEEDED") {
		return ""
	}

	if match := firstQuestion.FindString(out); match != "" {
		return strings.TrimSpace(match)
	}
	return strings.TrimSpace(out)
}

// answerCandidateQuestion replies to a question from the candidate using
// profile and conversation context. The current scripted question is then
// re-presented unchanged.
func (iv *Interview) answerCandidateQuestion(ctx context.Context, questionText string) string {
	prompt := prompts.Format(prompts.MustGet("interview.json", "candidate-question"), map[string]string{
		"CompanyName":    iv.company.Name,
		"JobTitle":       iv.job.Title,
		"QuestionText":   questionText,
		"CompanyContext": iv.company.Description + "\n" + iv.company.Values,
		"JobContext":     iv.job.Description + "\n" + strings.Join(iv.job.RequiredSkills, ", "),
		"Conversation":   iv.mem.RecentContext(5),
	})

	answer, err := iv.deps.Gateway.GenerateText(ctx, prompt, llm.TierStandard)
	if err != nil {
		iv.deps.Logger.Warn("candidate question answer failed", zap.Error(err))
		return "That's a good question. Our company values transparency and innovation. Let's continue with the interview questions."
	}
	return strings.Trim(strings.TrimSpace(answer), "\"'`")
}

var simpleAcknowledgments = []string{
	"Thank you for your response.",
	"I appreciate your answer.",
	"Thanks for sharing that.",
	"I understand.",
	"Thanks for that perspective.",
}

var categoryAcknowledgments = map[script.Category][]string{
	script.CategoryIntroduction: {
		"Thank you for sharing that background information.",
		"I appreciate you giving us that overview.",
		"That's helpful context about your experience.",
	},
	script.CategoryJobSpecific: {
		"Thank you for sharing those insights about your experience.",
		"I appreciate your detailed explanation of your relevant background.",
		"That's valuable information about your skills in this area.",
	},
	script.CategoryTechnical: {
		"Thank you for walking me through your technical approach.",
		"I appreciate the technical details you provided.",
		"That's a helpful explanation of your technical expertise.",
	},
	script.CategoryCompanyFit: {
		"Thank you for sharing your thoughts on our company culture.",
		"I appreciate your perspective on how you might fit with our team.",
		"That's helpful to understand your alignment with our values.",
	},
	script.CategoryBehavioral: {
		"Thank you for sharing that experience with me.",
		"I appreciate the detailed example from your past work.",
		"That's a helpful illustration of how you handle those situations.",
	},
	script.CategoryClosing: {
		"Thank you for your thoughtful questions.",
		"I appreciate your interest in our company.",
		"Thank you for all your insights throughout this interview.",
	},
}

var defaultAcknowledgments = []string{
	"Thank you for that response.",
	"I appreciate your thoughtful answer.",
	"Thanks for sharing that with me.",
}

// acknowledge produces a brief reaction to the response. Short answers use
// the rotating canned pool; substantive answers get a model-written
// acknowledgment, cached and trimmed to two sentences, with the category
// pool as fallback.
func (iv *Interview) acknowledge(ctx context.Context, q script.QuestionSpec, response string) string {
	if len(strings.Fields(response)) < 15 {
		return simpleAcknowledgments[iv.mem.Len()%len(simpleAcknowledgments)]
	}

	key := promptcache.NewKey("acknowledgment", q.ID, response)
	out, err := iv.deps.Cache.GetOrCompute(key, func() (string, error) {
		prompt := prompts.Format(prompts.MustGet("interview.json", "acknowledgment"), map[string]string{
			"Question": q.Text,
			"Category": string(q.Category),
			"Response": response,
		})
		return iv.deps.Gateway.GenerateText(ctx, prompt, llm.TierLite)
	})
	if err != nil || strings.TrimSpace(out) == "" {
		return iv.fallbackAcknowledgment(q, response)
	}

	ack := strings.Trim(strings.TrimSpace(out), "\"'")
	if len(strings.Fields(ack)) > 25 {
		sentences := sentenceEnd.Split(ack, -1)
		kept := make([]string, 0, 2)
		for _, s := range sentences {
			if s = strings.TrimSpace(s); s != "" {
				kept = append(kept, s)
			}
			if len(kept) == 2 {
				break
			}
		}
		ack = strings.Join(kept, ". ") + "."
	}
	return ack
}

func (iv *Interview) fallbackAcknowledgment(q script.QuestionSpec, response string) string {
	pool, ok := categoryAcknowledgments[q.Category]
	if !ok {
		pool = defaultAcknowledgments
	}
	words := len(strings.Fields(response))
	if words > 100 {
		return pool[0] + " That was a very comprehensive answer."
	}
	if words > 50 {
		return pool[0]
	}
	return pool[iv.mem.Len()%len(pool)]
}

// transition produces the spoken bridge into the next question, preferring
// a model-written one informed by conversation memory and falling back to
// the scripted phrase.
func (iv *Interview) transition(ctx context.Context, current, next script.QuestionSpec) string {
	prompt := prompts.Format(prompts.MustGet("interview.json", "transition"), map[string]string{
		"Context": iv.mem.ContextPrompt(current.Text, next.Text),
	})
	out, err := iv.deps.Gateway.GenerateText(ctx, prompt, llm.TierLite)
	if err != nil || strings.TrimSpace(out) == "" {
		return next.Transition
	}
	return strings.Trim(strings.TrimSpace(out), "\"'")
}
