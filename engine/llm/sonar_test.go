package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/eoralabs/kbase/engine/domain"
)

func TestSonar_Generate(t *testing.T) {
	var captured sonarRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{
				map[string]any{"message": map[string]any{"content": "\ngrounded answer\n"}},
			},
		})
	}))
	defer srv.Close()

	s := NewSonar(SonarConfig{
		BaseURL:      srv.URL,
		APIKey:       "sk-test",
		Model:        "sonar",
		Timeout:      5 * time.Second,
		SearchDomain: "eora.ru",
	}, nil)

	// Caller params must not leak into the narrow generation mode.
	got, err := s.Generate(context.Background(), askMessages, 0.9, 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "grounded answer" {
		t.Errorf("Generate() = %q", got)
	}
	if captured.Temperature != sonarTemperature || captured.TopP != sonarTopP || captured.MaxTokens != sonarMaxTokens {
		t.Errorf("backend constants overridden: %+v", captured)
	}
	if len(captured.SearchDomainFilter) != 1 || captured.SearchDomainFilter[0] != "eora.ru" {
		t.Errorf("search_domain_filter = %v", captured.SearchDomainFilter)
	}
	if captured.ReturnImages || captured.ReturnRelatedQuestions {
		t.Errorf("images/related questions enabled: %+v", captured)
	}
}

func TestSonar_Non200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	s := NewSonar(SonarConfig{BaseURL: srv.URL, APIKey: "k", Model: "sonar", Timeout: time.Second}, nil)
	_, err := s.Generate(context.Background(), askMessages, 0, 0)
	var provErr *domain.ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
}

func TestSonar_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer srv.Close()

	s := NewSonar(SonarConfig{BaseURL: srv.URL, APIKey: "k", Model: "sonar", Timeout: time.Second}, nil)
	_, err := s.Generate(context.Background(), askMessages, 0, 0)
	var provErr *domain.ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
}
