package answer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/eoralabs/kbase/engine/domain"
	"github.com/eoralabs/kbase/engine/llm"
)

// Options configures answer generation.
type Options struct {
	Temperature float64
	MaxTokens   int
	// MaxResults bounds how many ranked results enter the context window.
	MaxResults int
	// GenerateTimeout bounds the provider round trip.
	GenerateTimeout time.Duration
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		Temperature:     0.7,
		MaxTokens:       500,
		MaxResults:      5,
		GenerateTimeout: 60 * time.Second,
	}
}

// Generator composes the final answer from ranked contexts.
type Generator struct {
	provider llm.Provider
	opts     Options
	logger   *slog.Logger
}

// New creates a Generator.
func New(provider llm.Provider, opts Options, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{provider: provider, opts: opts, logger: logger}
}

// Answer produces a user-safe answer text. It never returns an error: an
// empty context list yields NoAnswerText without any network call, and a
// provider failure is logged and degraded to GenerationFailedText.
func (g *Generator) Answer(ctx context.Context, query string, contexts []domain.SearchResult) string {
	if len(contexts) == 0 {
		return NoAnswerText
	}

	contextText, linksText := AssembleContext(contexts, g.opts.MaxResults)
	messages := []domain.Message{
		{Role: domain.RoleSystem, Content: SystemPrompt},
		{Role: domain.RoleUser, Content: userPrompt(contextText, linksText, query)},
	}

	genCtx, cancel := context.WithTimeout(ctx, g.opts.GenerateTimeout)
	defer cancel()

	text, err := g.provider.Generate(genCtx, messages, g.opts.Temperature, g.opts.MaxTokens)
	if err != nil {
		g.logger.Error("answer: generation failed", "provider", g.provider.Name(), "error", err)
		return GenerationFailedText
	}

	g.logger.Info("answer: generated", "provider", g.provider.Name(), "answer_len", len(text))
	return text
}

func userPrompt(contextText, linksText, query string) string {
	return fmt.Sprintf("%s\n\nSource links:\n%s\n\nClient question: %s\n\n%s",
		contextText, linksText, query, answerInstruction)
}
