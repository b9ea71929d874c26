package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/eoralabs/kbase/engine/domain"
)

// SonarConfig configures the search-augmented Perplexity Sonar backend.
type SonarConfig struct {
	// BaseURL of the chat completions endpoint.
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
	// SearchDomain restricts Sonar's own web retrieval to one domain.
	SearchDomain string
}

// Sonar generates in a deliberately narrow, literal mode: temperature,
// top_p and max_tokens are backend constants, not caller-configurable.
const (
	sonarTemperature = 0.05
	sonarTopP        = 0.8
	sonarMaxTokens   = 2000
)

const defaultSonarTimeout = 120 * time.Second

// Sonar is the search-augmented backend.
type Sonar struct {
	cfg    SonarConfig
	client *http.Client
	logger *slog.Logger
}

// NewSonar creates the backend.
func NewSonar(cfg SonarConfig, logger *slog.Logger) *Sonar {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultSonarTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sonar{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

func (s *Sonar) Name() string { return ProviderSonar }

func (s *Sonar) fail(err error) error {
	return &domain.ProviderError{Provider: ProviderSonar, Err: err}
}

type sonarRequest struct {
	Model                  string           `json:"model"`
	Messages               []domain.Message `json:"messages"`
	Temperature            float64          `json:"temperature"`
	TopP                   float64          `json:"top_p"`
	MaxTokens              int              `json:"max_tokens"`
	SearchDomainFilter     []string         `json:"search_domain_filter,omitempty"`
	ReturnImages           bool             `json:"return_images"`
	ReturnRelatedQuestions bool             `json:"return_related_questions"`
}

// Generate sends a chat-completion request. The temperature and maxTokens
// arguments are ignored; Sonar runs with its fixed backend constants.
func (s *Sonar) Generate(ctx context.Context, messages []domain.Message, _ float64, _ int) (string, error) {
	payload := sonarRequest{
		Model:       s.cfg.Model,
		Messages:    messages,
		Temperature: sonarTemperature,
		TopP:        sonarTopP,
		MaxTokens:   sonarMaxTokens,
	}
	if s.cfg.SearchDomain != "" {
		payload.SearchDomainFilter = []string{s.cfg.SearchDomain}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", s.fail(fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL, bytes.NewReader(body))
	if err != nil {
		return "", s.fail(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", s.fail(fmt.Errorf("chat request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", s.fail(fmt.Errorf("chat request: status %d", resp.StatusCode))
	}

	var chat chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return "", s.fail(fmt.Errorf("chat request: decode: %w", err))
	}
	if len(chat.Choices) == 0 {
		return "", s.fail(fmt.Errorf("chat request: no choices in response"))
	}
	return strings.TrimSpace(chat.Choices[0].Message.Content), nil
}
