// Package llm provides the LLM provider abstraction: a uniform Generate
// capability with interchangeable backends selected by configuration.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/eoralabs/kbase/engine/domain"
)

// Recognized provider identifiers.
const (
	ProviderGigaChat = "gigachat"
	ProviderSonar    = "sonar"
)

// Provider is an interchangeable LLM backend. Every failure mode (network,
// auth, malformed response) surfaces as a *domain.ProviderError; no retries
// happen inside a provider.
type Provider interface {
	Name() string
	Generate(ctx context.Context, messages []domain.Message, temperature float64, maxTokens int) (string, error)
}

// Config selects and configures a provider backend.
type Config struct {
	Provider string
	GigaChat GigaChatConfig
	Sonar    SonarConfig
}

// registry maps provider identifiers to constructors. Unknown identifiers
// fail at selection time, not at request time.
var registry = map[string]func(Config, *slog.Logger) Provider{
	ProviderGigaChat: func(cfg Config, log *slog.Logger) Provider { return NewGigaChat(cfg.GigaChat, log) },
	ProviderSonar:    func(cfg Config, log *slog.Logger) Provider { return NewSonar(cfg.Sonar, log) },
}

// New constructs the configured provider.
func New(cfg Config, logger *slog.Logger) (Provider, error) {
	construct, ok := registry[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownProvider, cfg.Provider)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return construct(cfg, logger), nil
}

// chatResponse is the common chat-completions response shape. Both backends
// require a non-empty choices list.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

const defaultHTTPTimeout = 30 * time.Second
