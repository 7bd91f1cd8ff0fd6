// Package evaluate scores candidate responses. The primary path asks the
// model for a 1-10 quality rating; when the model is unavailable a
// deterministic heuristic takes over so the interview never stalls on
// evaluation.
package evaluate

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/jonathan/interview-agent/internal/gateway"
	"github.com/jonathan/interview-agent/internal/llm"
	"github.com/jonathan/interview-agent/internal/promptcache"
	"github.com/jonathan/interview-agent/internal/prompts"
	"github.com/jonathan/interview-agent/internal/script"
)

// Signal is a coarse quality band derived from the numeric score.
type Signal string

const (
	SignalShallow       Signal = "shallow"
	SignalAdequate      Signal = "adequate"
	SignalComprehensive Signal = "comprehensive"
)

// Result is the outcome of evaluating one response.
type Result struct {
	// Score is in [1,10].
	Score     int    `json:"score"`
	Rationale string `json:"rationale"`
	Signal    Signal `json:"signal"`
	// Heuristic reports that the score came from the local fallback rather
	// than the model.
	Heuristic bool `json:"heuristic,omitempty"`
}

// Evaluator scores responses through the gateway, caching model scores per
// (question, normalized response) pair.
type Evaluator struct {
	gw     *gateway.Gateway
	cache  *promptcache.Cache
	logger *zap.Logger
}

func NewEvaluator(gw *gateway.Gateway, cache *promptcache.Cache, logger *zap.Logger) *Evaluator {
	return &Evaluator{gw: gw, cache: cache, logger: logger}
}

// Evaluate rates a candidate response against the question that prompted it.
// Model scores are cached; heuristic scores are not, so a later retry can
// still reach the model.
func (e *Evaluator) Evaluate(ctx context.Context, question script.QuestionSpec, response string) Result {
	key := promptcache.NewKey("response_quality", question.ID, response)

	raw, err := e.cache.GetOrCompute(key, func() (string, error) {
		prompt := prompts.Format(prompts.MustGet("evaluation.json", "quality-score"), map[string]string{
			"Question": question.Text,
			"Category": string(question.Category),
			"Response": response,
		})
		return e.gw.GenerateText(ctx, prompt, llm.TierLite)
	})
	if err != nil {
		e.logger.Warn("model evaluation failed, using heuristic score", zap.Error(err))
		return heuristicResult(question, response)
	}

	score, ok := parseScore(raw)
	if !ok {
		e.logger.Warn("unparseable quality score, using heuristic", zap.String("raw", strings.TrimSpace(raw)))
		e.cache.Remove(key)
		return heuristicResult(question, response)
	}
	return Result{
		Score:     score,
		Rationale: "model quality rating",
		Signal:    signalFor(score),
	}
}

var scorePattern = regexp.MustCompile(`\d+`)

// parseScore extracts the first integer from model output, tolerating
// wrappers like "Score: 8" or "8/10", and clamps it to [1,10].
func parseScore(text string) (int, bool) {
	match := scorePattern.FindString(text)
	if match == "" {
		return 0, false
	}
	n, err := strconv.Atoi(match)
	if err != nil {
		return 0, false
	}
	if n < 1 {
		n = 1
	}
	if n > 10 {
		n = 10
	}
	return n, true
}

func signalFor(score int) Signal {
	switch {
	case score <= 3:
		return SignalShallow
	case score <= 6:
		return SignalAdequate
	default:
		return SignalComprehensive
	}
}

var (
	technicalMarkers = []string{
		"implemented", "designed", "developed", "algorithm", "complexity",
		"architecture", "solution", "framework", "database", "system",
		"code", "programming",
	}
	situationMarkers = []string{"when", "situation", "context", "challenge", "problem", "faced"}
	actionMarkers    = []string{"did", "action", "took", "steps", "approach", "handled", "implemented"}
	resultMarkers    = []string{"result", "outcome", "impact", "learned", "achieved", "ended", "succeeded"}
)

// heuristicResult scores a response without the model: word count sets a
// baseline, category markers and overlap with the answer criteria adjust it.
func heuristicResult(question script.QuestionSpec, response string) Result {
	lower := strings.ToLower(response)
	words := len(strings.Fields(response))

	var score int
	switch {
	case words < 10:
		score = 2
	case words < 25:
		score = 3
	case words > 100:
		score = 8
	default:
		score = 5
	}

	switch question.Category {
	case script.CategoryTechnical:
		if countMarkers(lower, technicalMarkers) >= 2 {
			score++
		} else {
			score--
		}
	case script.CategoryBehavioral:
		star := 0
		for _, markers := range [][]string{situationMarkers, actionMarkers, resultMarkers} {
			if countMarkers(lower, markers) > 0 {
				star++
			}
		}
		if star == 3 {
			score++
		} else if star <= 1 {
			score--
		}
	}

	if criteriaOverlap(lower, question.Criteria) >= 2 {
		score++
	}

	if score < 1 {
		score = 1
	}
	if score > 10 {
		score = 10
	}
	return Result{
		Score:     score,
		Rationale: "heuristic length and marker analysis",
		Signal:    signalFor(score),
		Heuristic: true,
	}
}

func countMarkers(lower string, markers []string) int {
	n := 0
	for _, m := range markers {
		if strings.Contains(lower, m) {
			n++
		}
	}
	return n
}

// criteriaOverlap counts distinct words of 5+ letters from the answer
// criteria that appear in the response.
func criteriaOverlap(lowerResponse, criteria string) int {
	seen := make(map[string]struct{})
	n := 0
	for _, word := range strings.Fields(strings.ToLower(criteria)) {
		word = strings.Trim(word, ".,;:\"'")
		if len(word) < 5 {
			continue
		}
		if _, dup := seen[word]; dup {
			continue
		}
		seen[word] = struct{}{}
		if strings.Contains(lowerResponse, word) {
			n++
		}
	}
	return n
}
