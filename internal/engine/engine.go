// Package engine adapts the Gemini text-generation backend (via Genkit) into
// the three logical operations promptwise needs: optimize a raw prompt,
// explain an optimization, and synthesize deep-research follow-ups.
//
// The backend streams fragments; the engine aggregates them and hands one
// complete string per operation back to callers. Callers never see
// fragment-by-fragment delivery.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/time/rate"

	"github.com/promptwise/promptwise/internal/log"
)

// DefaultModel is the Genkit model reference used when none is configured.
const DefaultModel = "googleai/gemini-2.5-flash"

// DefaultTimeout bounds a single generation call, retries included.
const DefaultTimeout = 2 * time.Minute

// ErrUnavailable indicates the generation backend was unreachable or
// produced no output. The failed turn is retryable; callers must not
// tear down the session because of it.
var ErrUnavailable = errors.New("generation backend unavailable")

// Config contains the required parameters for the Engine.
type Config struct {
	Genkit *genkit.Genkit
	Logger log.Logger

	// Model is the Genkit model reference. Empty uses DefaultModel.
	Model string

	// Timeout bounds one logical operation. Zero uses DefaultTimeout.
	Timeout time.Duration

	// RetryConfig controls backoff for transient backend errors
	// (zero value uses defaults).
	RetryConfig RetryConfig

	// RateLimiter throttles outbound calls (nil = default limiter).
	RateLimiter *rate.Limiter
}

func (cfg Config) validate() error {
	if cfg.Genkit == nil {
		return errors.New("genkit instance is required")
	}
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	return nil
}

// Engine is the gateway to the text-generation backend.
//
// All configuration is captured immutably at construction, so an Engine is
// safe for concurrent use.
type Engine struct {
	g       *genkit.Genkit
	model   string
	timeout time.Duration
	retry   RetryConfig
	limiter *rate.Limiter
	logger  log.Logger
}

// New creates an Engine with the given configuration.
func New(cfg Config) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	retryCfg := cfg.RetryConfig
	if retryCfg.MaxRetries == 0 {
		retryCfg = DefaultRetryConfig()
	}

	// Default: 10 requests/sec sustained, burst of 30.
	limiter := cfg.RateLimiter
	if limiter == nil {
		limiter = rate.NewLimiter(10, 30)
	}

	e := &Engine{
		g:       cfg.Genkit,
		model:   model,
		timeout: timeout,
		retry:   retryCfg,
		limiter: limiter,
		logger:  cfg.Logger,
	}

	e.logger.Info("generation engine initialized", "model", model)
	return e, nil
}

// Optimize rewrites a raw prompt according to the given optimization mode
// and returns the complete optimized text.
func (e *Engine) Optimize(ctx context.Context, prompt string, mode Mode) (string, error) {
	return e.generate(ctx, "optimize", optimizeSystemPrompt(mode), prompt)
}

// Explain produces an explanation of why optimized improves on original for
// the given mode. The result usually, but not always, embeds a JSON analysis
// block; use ExtractAnalysis to look for it.
func (e *Engine) Explain(ctx context.Context, original, optimized string, mode Mode) (string, error) {
	user := fmt.Sprintf("Original prompt:\n%s\n\nOptimized prompt:\n%s\n\nOptimization mode: %s",
		original, optimized, mode)
	return e.generate(ctx, "explain", explainSystemPrompt, user)
}

// Followup synthesizes a deep-research answer from the questions the model
// asked, the prior optimized context, and the user's stated preferences.
// preferences may be empty when the user declined to state any.
func (e *Engine) Followup(ctx context.Context, questions, priorContext, preferences string) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Questions the model asked:\n%s\n\n", questions)
	fmt.Fprintf(&b, "Research prompt under refinement:\n%s\n", priorContext)
	if preferences != "" {
		fmt.Fprintf(&b, "\nUser preferences and answers:\n%s\n", preferences)
	}
	return e.generate(ctx, "followup", followupSystemPrompt, b.String())
}

// generate runs one generation with retry, aggregating streamed fragments
// into a single string. Empty output after all retries maps to ErrUnavailable.
func (e *Engine) generate(ctx context.Context, op, system, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()

	var fragments strings.Builder
	opts := []ai.GenerateOption{
		ai.WithModelName(e.model),
		ai.WithSystem(system),
		ai.WithPrompt(prompt),
		ai.WithStreaming(func(_ context.Context, chunk *ai.ModelResponseChunk) error {
			fragments.WriteString(chunk.Text())
			return nil
		}),
	}

	resp, err := e.generateWithRetry(ctx, &fragments, opts)
	if err != nil {
		e.logger.Warn("generation failed",
			"op", op,
			"elapsed", time.Since(start),
			"error", err)
		return "", fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	// Prefer the aggregated stream; fall back to the final response text
	// for models that do not stream.
	text := fragments.String()
	if text == "" {
		text = resp.Text()
	}
	if strings.TrimSpace(text) == "" {
		e.logger.Warn("generation returned no fragments", "op", op)
		return "", fmt.Errorf("%w: empty response", ErrUnavailable)
	}

	e.logger.Debug("generation completed",
		"op", op,
		"elapsed", time.Since(start),
		"responseLength", len(text))
	return text, nil
}
