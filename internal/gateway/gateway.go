// Package gateway wraps the LLM client with the call discipline the dialogue
// core relies on: a bounded timeout per call and at most one retry. Timeouts
// and transport failures surface as ErrModelUnavailable so callers can switch
// to their deterministic fallback paths instead of aborting the interview.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jonathan/interview-agent/internal/llm"
	"github.com/jonathan/interview-agent/internal/logging"
)

// ErrModelUnavailable indicates the model call failed or timed out after the
// configured retry. It is recovered locally and never surfaced to API callers.
var ErrModelUnavailable = errors.New("model unavailable")

// Options configures call bounds for the gateway.
type Options struct {
	// Timeout bounds a single model call. Zero uses DefaultTimeout.
	Timeout time.Duration
	// Retries is the number of additional attempts after the first failure.
	// At most one retry is made; larger values are clamped.
	Retries int
}

// DefaultTimeout bounds individual model calls when no timeout is configured.
const DefaultTimeout = 30 * time.Second

// Gateway is the single entry point for model calls made by the dialogue core.
type Gateway struct {
	client  llm.Client
	timeout time.Duration
	retries int
	logger  *zap.Logger
}

// New creates a gateway around an LLM client.
func New(client llm.Client, opts Options, logger *zap.Logger) *Gateway {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	retries := opts.Retries
	if retries < 0 {
		retries = 0
	}
	if retries > 1 {
		retries = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		client:  client,
		timeout: timeout,
		retries: retries,
		logger:  logger,
	}
}

// GenerateText requests free text from the model.
func (g *Gateway) GenerateText(ctx context.Context, prompt string, tier llm.ModelTier) (string, error) {
	return g.call(ctx, prompt, tier, g.client.GenerateContent)
}

// GenerateJSON requests JSON output from the model. The result still has to
// go through the recovery ladder; JSON mode reduces malformed replies but
// does not eliminate them.
func (g *Gateway) GenerateJSON(ctx context.Context, prompt string, tier llm.ModelTier) (string, error) {
	return g.call(ctx, prompt, tier, g.client.GenerateJSON)
}

func (g *Gateway) call(ctx context.Context, prompt string, tier llm.ModelTier, fn func(context.Context, string, llm.ModelTier) (string, error)) (string, error) {
	var lastErr error

	for attempt := 0; attempt <= g.retries; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		text, err := fn(callCtx, prompt, tier)
		cancel()

		if err == nil {
			return text, nil
		}
		lastErr = err

		g.logger.Warn("model call failed",
			zap.String("tier", string(tier)),
			zap.Int("attempt", attempt+1),
			zap.String("prompt", logging.Truncate(prompt, 120)),
			zap.Error(err))

		// The parent context being done means the caller gave up, not the model.
		if ctx.Err() != nil {
			break
		}
	}

	return "", fmt.Errorf("%w: %v", ErrModelUnavailable, lastErr)
}
