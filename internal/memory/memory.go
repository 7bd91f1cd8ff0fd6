// Package memory holds the conversation record for one interview: the
// append-only turn log plus derived signals (topics, communication style,
// category insights) and the normalized-response fingerprints used for
// duplicate detection.
//
// A Memory is not safe for concurrent use. Each interview serializes its
// turns, so callers hold one Memory per session behind the session lock.
package memory

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"

	"github.com/jonathan/interview-agent/internal/evaluate"
)

// DefaultSimilarityThreshold marks two normalized responses as duplicates.
const DefaultSimilarityThreshold = 0.8

// DefaultFingerprintWindow bounds how many prior responses are compared.
const DefaultFingerprintWindow = 20

// Flags annotate how a turn was handled.
type Flags struct {
	IsFollowUp          bool `json:"is_follow_up,omitempty"`
	IsDuplicate         bool `json:"is_duplicate,omitempty"`
	IsCandidateQuestion bool `json:"is_candidate_question,omitempty"`
}

// Turn is one exchange in the interview.
type Turn struct {
	QuestionID string           `json:"question_id"`
	Question   string           `json:"question"`
	Category   string           `json:"category"`
	Response   string           `json:"response"`
	Timestamp  time.Time        `json:"timestamp"`
	Evaluation *evaluate.Result `json:"evaluation,omitempty"`
	Flags      Flags            `json:"flags"`
}

// Memory accumulates turns and candidate insights over one interview.
type Memory struct {
	turns []Turn

	topics   map[string]struct{}
	style    map[string]int
	insights map[string]int

	fingerprints []string
	window       int
	threshold    float64
	metric       *metrics.SorensenDice
}

// Option adjusts Memory construction.
type Option func(*Memory)

// WithSimilarityThreshold overrides the duplicate similarity threshold.
func WithSimilarityThreshold(t float64) Option {
	return func(m *Memory) { m.threshold = t }
}

// WithFingerprintWindow overrides how many recent responses are kept for
// duplicate comparison.
func WithFingerprintWindow(n int) Option {
	return func(m *Memory) { m.window = n }
}

func New(opts ...Option) *Memory {
	m := &Memory{
		topics:    make(map[string]struct{}),
		style:     make(map[string]int),
		insights:  make(map[string]int),
		window:    DefaultFingerprintWindow,
		threshold: DefaultSimilarityThreshold,
		metric:    metrics.NewSorensenDice(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AddTurn appends a turn and updates derived insights. Candidate questions
// and duplicates contribute to the log but not to fingerprints, so asking
// about the company twice is not itself flagged as repetition.
func (m *Memory) AddTurn(turn Turn) {
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now()
	}
	m.turns = append(m.turns, turn)

	if turn.Flags.IsCandidateQuestion || turn.Flags.IsDuplicate {
		return
	}

	m.extractTopics(turn.Response)
	m.analyzeStyle(turn.Response)
	m.analyzeCategory(turn.Category, turn.Response)

	if fp := Normalize(turn.Response); fp != "" {
		m.fingerprints = append(m.fingerprints, fp)
		if len(m.fingerprints) > m.window {
			m.fingerprints = m.fingerprints[len(m.fingerprints)-m.window:]
		}
	}
}

// IsDuplicate reports whether the response is near-identical to a recent
// prior response, using Sorensen-Dice bigram similarity on the normalized
// text.
func (m *Memory) IsDuplicate(response string) bool {
	fp := Normalize(response)
	if fp == "" {
		return false
	}
	for _, prev := range m.fingerprints {
		if strutil.Similarity(fp, prev, m.metric) > m.threshold {
			return true
		}
	}
	return false
}

// Normalize lowercases and collapses whitespace for fingerprint comparison.
func Normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// Turns returns the full turn log.
func (m *Memory) Turns() []Turn {
	return m.turns
}

// Len returns the number of recorded turns.
func (m *Memory) Len() int {
	return len(m.turns)
}

// Topics returns the distinct technical topics mentioned so far, sorted.
func (m *Memory) Topics() []string {
	out := make([]string, 0, len(m.topics))
	for t := range m.topics {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// DominantStyle returns the most frequently observed communication style,
// or "" when nothing stands out. Ties break alphabetically so the result
// is stable.
func (m *Memory) DominantStyle() string {
	best, bestCount := "", 0
	for style, count := range m.style {
		if count > bestCount || (count == bestCount && style < best) {
			best, bestCount = style, count
		}
	}
	return best
}

// Insights returns a copy of the category insight counters.
func (m *Memory) Insights() map[string]int {
	out := make(map[string]int, len(m.insights))
	for k, v := range m.insights {
		out[k] = v
	}
	return out
}

// ContextPrompt builds the conversational context used to generate a
// transition between the current and next question.
func (m *Memory) ContextPrompt(currentQuestion, nextQuestion string) string {
	var b strings.Builder
	b.WriteString("Based on the conversation so far:\n")
	b.WriteString(m.RecentContext(3))

	b.WriteString("Candidate insights:\n")
	if topics := m.Topics(); len(topics) > 0 {
		fmt.Fprintf(&b, "- Topics mentioned: %s\n", strings.Join(topics, ", "))
	}
	if style := m.DominantStyle(); style != "" {
		fmt.Fprintf(&b, "- Communication style: %s\n", style)
	}
	for _, insight := range sortedKeys(m.insights) {
		fmt.Fprintf(&b, "- %s: %d instances\n", titleize(insight), m.insights[insight])
	}

	fmt.Fprintf(&b, "\nCurrent question: %s\n", currentQuestion)
	fmt.Fprintf(&b, "Next question: %s", nextQuestion)
	return b.String()
}

// RecentContext returns the last n exchanges as question/answer lines, for
// answering candidate questions with awareness of what was already said.
func (m *Memory) RecentContext(n int) string {
	turns := m.turns
	if len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	var b strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&b, "Q: %s\nA: %s\n\n", t.Question, t.Response)
	}
	return b.String()
}

var techTerms = []string{
	"python", "javascript", "react", "node", "aws", "cloud", "api",
	"database", "sql", "nosql", "frontend", "backend", "fullstack",
	"devops", "agile", "machine learning", "ai", "go", "kubernetes",
	"docker", "microservices",
}

var termPatterns = func() map[string]*regexp.Regexp {
	out := make(map[string]*regexp.Regexp, len(techTerms))
	for _, term := range techTerms {
		out[term] = regexp.MustCompile(`\b` + regexp.QuoteMeta(term) + `\b`)
	}
	return out
}()

func (m *Memory) extractTopics(response string) {
	lower := strings.ToLower(response)
	for term, pattern := range termPatterns {
		if pattern.MatchString(lower) {
			m.topics[term] = struct{}{}
		}
	}
}

var hesitationWords = []string{"um", "uh", "like", "you know", "sort of", "kind of"}

func (m *Memory) analyzeStyle(response string) {
	words := len(strings.Fields(response))
	if words < 15 {
		m.style["concise"]++
	} else if words > 100 {
		m.style["verbose"]++
	}

	lower := strings.ToLower(response)
	jargon := 0
	for topic := range m.topics {
		if strings.Contains(lower, topic) {
			jargon++
		}
	}
	if jargon > 3 {
		m.style["technical"]++
	}

	hesitation := 0
	for _, w := range hesitationWords {
		if strings.Contains(lower, w) {
			hesitation++
		}
	}
	if hesitation > 3 {
		m.style["hesitant"]++
	}
}

var (
	depthIndicators   = []string{"implemented", "designed", "developed", "architected", "because", "in order to", "specifically"}
	situationTerms    = []string{"situation", "context", "background", "when i"}
	taskTerms         = []string{"task", "goal", "objective", "needed to", "had to"}
	actionTerms       = []string{"action", "approach", "did", "implemented", "executed"}
	outcomeTerms      = []string{"result", "outcome", "impact", "learned", "accomplished"}
	experienceMarkers = []string{"experience", "worked on", "project", "role", "position", "job"}
)

func (m *Memory) analyzeCategory(category, response string) {
	lower := strings.ToLower(response)
	switch category {
	case "technical":
		depth := 0
		for _, ind := range depthIndicators {
			if strings.Contains(lower, ind) {
				depth++
			}
		}
		if depth > 2 {
			m.insights["technical_depth"]++
		}
	case "behavioral":
		star := 0
		for _, group := range [][]string{situationTerms, taskTerms, actionTerms, outcomeTerms} {
			if containsAny(lower, group) {
				star++
			}
		}
		if star >= 3 {
			m.insights["structured_responses"]++
		}
	case "job_specific":
		if containsAny(lower, experienceMarkers) {
			m.insights["relevant_experience"]++
		}
	}
}

func containsAny(text string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(text, t) {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]int) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func titleize(snake string) string {
	parts := strings.Split(snake, "_")
	for i, p := range parts {
		if p != "" {
			parts[i] = strings.ToUpper(p[:1]) + p[1:]
		}
	}
	return strings.Join(parts, " ")
}
