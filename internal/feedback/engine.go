package feedback

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/jaehoon-kim/lectern/internal/llm"
)

// GenerationError reports a failed feedback or summary call. Feedback
// failures are non-fatal; a summary failure is reported and ends teardown.
type GenerationError struct {
	Op  string
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generate %s: %v", e.Op, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

const feedbackSystemPrompt = `You are a real-time lecture learning assistant.
You provide supplementary learning material for the concepts the lecturer is explaining.

Your role:
- Explain related functions, methods, and usage for any technique or concept mentioned
- Give practical code examples (use markdown code blocks)
- Point out related advanced concepts or tips

Example: when the lecturer covers "AJAX", add information about the fetch API, axios usage, async/await patterns, and so on.

Response format:
- Keep it concise (3-4 sentences)
- Use fenced code blocks with a language tag for any code
- Do not summarize; provide only information a learner would benefit from knowing beyond the lecture`

const (
	feedbackWindowChars  = 500
	feedbackMaxTokens    = 300
	feedbackTemperature  = 0.7
	summaryMaxTokens     = 300
	summaryTemperature   = 0.3
	summaryMinInputWords = 20
)

// backoff is the bounded retry ladder for summary calls.
var backoff = []time.Duration{1 * time.Second, 4 * time.Second, 16 * time.Second}

type ClientFactory func(provider, model string) (llm.Client, error)

// Config carries the engine's tunables.
type Config struct {
	FeedbackModel   string // provider/model
	SummaryModel    string // provider/model
	SummaryMaxChars int
	Logger          *log.Logger
}

// Engine generates learning feedback and the end-of-session summary. It is
// stateless between calls; the caller supplies all context per call.
type Engine struct {
	cfg     Config
	factory ClientFactory
	sleep   func(time.Duration)
}

func New(cfg Config, factory ClientFactory) *Engine {
	if cfg.SummaryMaxChars <= 0 {
		cfg.SummaryMaxChars = 2000
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	return &Engine{cfg: cfg, factory: factory, sleep: time.Sleep}
}

// Feedback generates supplementary learning information for the given
// window of recent final transcript text.
func (e *Engine) Feedback(ctx context.Context, window string) (string, error) {
	client, err := e.client(e.cfg.FeedbackModel)
	if err != nil {
		return "", &GenerationError{Op: "feedback", Err: err}
	}

	userContent := fmt.Sprintf("[Current lecture content]\n%s\n\nSupplementary learning information (avoid repeating earlier feedback):",
		truncateRunes(window, feedbackWindowChars))

	result, err := client.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: "system", Content: feedbackSystemPrompt},
			{Role: "user", Content: userContent},
		},
		MaxTokens:   feedbackMaxTokens,
		Temperature: feedbackTemperature,
	})
	if err != nil {
		return "", &GenerationError{Op: "feedback", Err: err}
	}
	return result, nil
}

// Summarize produces the end-of-session summary from the full accumulated
// transcript. Near-empty transcripts return "" without a provider call.
// Transient failures are retried on a bounded backoff ladder.
func (e *Engine) Summarize(ctx context.Context, transcript string) (string, error) {
	if len(strings.Fields(transcript)) < summaryMinInputWords {
		return "", nil
	}

	client, err := e.client(e.cfg.SummaryModel)
	if err != nil {
		return "", &GenerationError{Op: "summary", Err: err}
	}

	userContent := fmt.Sprintf(`Summarize this lecture concisely:
%s

- Topic:
- Key ideas:
- Takeaways:`, truncateRunes(transcript, e.cfg.SummaryMaxChars))

	req := llm.Request{
		Messages:    []llm.Message{{Role: "user", Content: userContent}},
		MaxTokens:   summaryMaxTokens,
		Temperature: summaryTemperature,
	}

	var lastErr error
	for attempt := range backoff {
		result, err := client.Complete(ctx, req)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		if attempt < len(backoff)-1 {
			e.cfg.Logger.Warn("summary attempt failed, retrying", "attempt", attempt+1, "err", err)
			e.sleep(backoff[attempt])
		}
	}
	return "", &GenerationError{Op: "summary", Err: fmt.Errorf("failed after retries: %w", lastErr)}
}

func (e *Engine) client(modelStr string) (llm.Client, error) {
	provider, model, err := llm.ParseModel(modelStr)
	if err != nil {
		return nil, err
	}
	return e.factory(provider, model)
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
