package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/eoralabs/kbase/engine/domain"
	"github.com/google/uuid"
)

// GigaChatConfig configures the token-authenticated GigaChat backend.
type GigaChatConfig struct {
	// BaseURL of the chat API, e.g. https://gigachat.devices.sberbank.ru/api/v1
	BaseURL string
	// AuthURL of the OAuth token endpoint.
	AuthURL string
	// AuthKey is the base64-encoded client credential sent as Basic auth.
	AuthKey string
	// Scope of the requested token, e.g. GIGACHAT_API_PERS.
	Scope string
	Model string
	// Timeout bounds each HTTP round trip (token acquisition and generation
	// each get their own budget).
	Timeout time.Duration
	// TokenSafety refreshes the token this long before its hard expiry so a
	// request cannot race expiry mid-flight.
	TokenSafety time.Duration
}

const (
	defaultTokenSafety   = 5 * time.Minute
	defaultTokenLifetime = 30 * time.Minute
)

// GigaChat is a chat-completions backend behind OAuth client-credential
// auth. The cached token is the only shared mutable state; the mutex keeps
// at most one acquisition in flight and makes all waiters observe its result.
type GigaChat struct {
	cfg    GigaChatConfig
	client *http.Client
	logger *slog.Logger

	mu        sync.Mutex
	token     string
	expiresAt time.Time
	now       func() time.Time
}

// NewGigaChat creates the backend with an absent credential; the first
// Generate call acquires it lazily.
func NewGigaChat(cfg GigaChatConfig, logger *slog.Logger) *GigaChat {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultHTTPTimeout
	}
	if cfg.TokenSafety <= 0 {
		cfg.TokenSafety = defaultTokenSafety
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GigaChat{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
		now:    time.Now,
	}
}

func (g *GigaChat) Name() string { return ProviderGigaChat }

func (g *GigaChat) fail(err error) error {
	return &domain.ProviderError{Provider: ProviderGigaChat, Err: err}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// accessToken returns the cached token, acquiring a fresh one when absent
// or inside the safety margin of its expiry. On acquisition failure the
// cached state is left untouched and the error propagates.
func (g *GigaChat) accessToken(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.token != "" && g.now().Before(g.expiresAt.Add(-g.cfg.TokenSafety)) {
		return g.token, nil
	}

	form := url.Values{"scope": {g.cfg.Scope}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.AuthURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("RqUID", uuid.NewString())
	req.Header.Set("Authorization", "Basic "+g.cfg.AuthKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token request: status %d", resp.StatusCode)
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("token request: decode: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("token request: empty access_token")
	}

	lifetime := defaultTokenLifetime
	if tok.ExpiresIn > 0 {
		lifetime = time.Duration(tok.ExpiresIn) * time.Second
	}
	g.token = tok.AccessToken
	g.expiresAt = g.now().Add(lifetime)
	g.logger.Info("gigachat: access token acquired", "expires_at", g.expiresAt)
	return g.token, nil
}

type gigaChatRequest struct {
	Model             string           `json:"model"`
	Messages          []domain.Message `json:"messages"`
	Temperature       float64          `json:"temperature"`
	MaxTokens         int              `json:"max_tokens"`
	RepetitionPenalty float64          `json:"repetition_penalty"`
	UpdateInterval    int              `json:"update_interval"`
}

// Generate sends a chat-completion request. The returned text is the first
// choice's message content, trimmed of surrounding whitespace.
func (g *GigaChat) Generate(ctx context.Context, messages []domain.Message, temperature float64, maxTokens int) (string, error) {
	token, err := g.accessToken(ctx)
	if err != nil {
		return "", g.fail(err)
	}

	body, err := json.Marshal(gigaChatRequest{
		Model:             g.cfg.Model,
		Messages:          messages,
		Temperature:       temperature,
		MaxTokens:         maxTokens,
		RepetitionPenalty: 1.1,
	})
	if err != nil {
		return "", g.fail(fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", g.fail(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := g.client.Do(req)
	if err != nil {
		return "", g.fail(fmt.Errorf("chat request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", g.fail(fmt.Errorf("chat request: status %d", resp.StatusCode))
	}

	var chat chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return "", g.fail(fmt.Errorf("chat request: decode: %w", err))
	}
	if len(chat.Choices) == 0 {
		return "", g.fail(fmt.Errorf("chat request: no choices in response"))
	}
	return strings.TrimSpace(chat.Choices[0].Message.Content), nil
}
