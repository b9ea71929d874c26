// Package main implements the knowledge base API server.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/eoralabs/kbase/engine/answer"
	"github.com/eoralabs/kbase/engine/domain"
	"github.com/eoralabs/kbase/engine/llm"
	"github.com/eoralabs/kbase/engine/rank"
	"github.com/eoralabs/kbase/engine/semantic"
	"github.com/eoralabs/kbase/pkg/catalog"
	"github.com/eoralabs/kbase/pkg/embed"
	"github.com/eoralabs/kbase/pkg/metrics"
	"github.com/eoralabs/kbase/pkg/mid"
	"github.com/eoralabs/kbase/pkg/resilience"
)

// Config holds all environment-based configuration.
type Config struct {
	Port       string
	CORSOrigin string

	EmbedURL   string
	EmbedModel string

	QdrantURL  string
	Collection string

	Neo4jURL  string
	Neo4jUser string
	Neo4jPass string

	Provider string
	GigaChat llm.GigaChatConfig
	Sonar    llm.SonarConfig

	TopK          int
	MinSimilarity float64
	Confidence    float64

	Temperature float64
	MaxTokens   int
	MaxResults  int
}

func loadConfig() Config {
	return Config{
		Port:       envOr("PORT", "8080"),
		CORSOrigin: envOr("CORS_ORIGIN", "*"),

		EmbedURL:   envOr("EMBED_URL", "http://localhost:11434"),
		EmbedModel: envOr("EMBED_MODEL", "nomic-embed-text"),

		QdrantURL:  envOr("QDRANT_URL", "localhost:6334"),
		Collection: envOr("QDRANT_COLLECTION", "kbase"),

		Neo4jURL:  envOr("NEO4J_URL", "neo4j://localhost:7687"),
		Neo4jUser: envOr("NEO4J_USER", "neo4j"),
		Neo4jPass: envOr("NEO4J_PASS", "password"),

		Provider: envOr("LLM_PROVIDER", llm.ProviderGigaChat),
		GigaChat: llm.GigaChatConfig{
			BaseURL: envOr("GIGACHAT_URL", "https://gigachat.devices.sberbank.ru/api/v1"),
			AuthURL: envOr("GIGACHAT_AUTH_URL", "https://ngw.devices.sberbank.ru:9443/api/v2/oauth"),
			AuthKey: os.Getenv("GIGACHAT_AUTH_KEY"),
			Scope:   envOr("GIGACHAT_SCOPE", "GIGACHAT_API_PERS"),
			Model:   envOr("GIGACHAT_MODEL", "GigaChat"),
		},
		Sonar: llm.SonarConfig{
			BaseURL:      envOr("SONAR_URL", "https://api.perplexity.ai"),
			APIKey:       os.Getenv("SONAR_API_KEY"),
			Model:        envOr("SONAR_MODEL", "sonar"),
			SearchDomain: envOr("SONAR_SEARCH_DOMAIN", "eora.ru"),
		},

		TopK:          envInt("TOP_K", 5),
		MinSimilarity: envFloat("MIN_SIMILARITY", 0.3),
		Confidence:    envFloat("CONFIDENCE", 0.4),

		Temperature: envFloat("TEMPERATURE", 0.7),
		MaxTokens:   envInt("MAX_TOKENS", 500),
		MaxResults:  envInt("MAX_CONTEXT_RESULTS", 5),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := loadConfig()

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Connect to Qdrant ---
	vectorStore, err := semantic.New(cfg.QdrantURL, cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant connect: %w", err)
	}
	defer vectorStore.Close()

	// --- Connect to Neo4j ---
	neo4jDriver, err := neo4j.NewDriverWithContext(cfg.Neo4jURL, neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPass, ""))
	if err != nil {
		return fmt.Errorf("neo4j driver: %w", err)
	}
	defer neo4jDriver.Close(ctx)
	cat := catalog.New(neo4jDriver)

	// --- Embedding client ---
	embedder := embed.New(cfg.EmbedURL, cfg.EmbedModel, 30*time.Second)

	// --- LLM provider behind a circuit breaker ---
	provider, err := llm.New(llm.Config{Provider: cfg.Provider, GigaChat: cfg.GigaChat, Sonar: cfg.Sonar}, logger)
	if err != nil {
		return fmt.Errorf("llm provider: %w", err)
	}
	guarded := &guardedProvider{
		inner:   provider,
		breaker: resilience.NewBreaker(resilience.DefaultBreakerOpts),
	}

	// --- Retrieval and generation ---
	rankOpts := rank.DefaultOptions()
	rankOpts.MinSimilarity = cfg.MinSimilarity
	rankOpts.Confidence = cfg.Confidence
	ranker := rank.New(embedder, vectorStore, rankOpts, logger)

	genOpts := answer.DefaultOptions()
	genOpts.Temperature = cfg.Temperature
	genOpts.MaxTokens = cfg.MaxTokens
	genOpts.MaxResults = cfg.MaxResults
	generator := answer.New(guarded, genOpts, logger)

	// --- Metrics ---
	reg := metrics.New()
	svc := &askService{
		ranker:    ranker,
		generator: generator,
		catalog:   cat,
		topK:      cfg.TopK,
		logger:    logger,
		questions: reg.Counter("questions_total", "Questions handled"),
		noAnswer:  reg.Counter("questions_no_answer_total", "Questions with no relevant context"),
		latency:   reg.Histogram("answer_duration_seconds", "End-to-end answer latency", nil),
	}

	// --- Build HTTP server ---
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", handleHealth)
	mux.HandleFunc("POST /api/v1/ask", svc.handleAsk)
	mux.HandleFunc("GET /api/v1/sources", svc.handleSources)
	mux.Handle("GET /metrics", reg.Handler())

	handler := mid.Chain(mux,
		mid.Recover(logger),
		mid.RequestID(),
		mid.Logger(logger),
		mid.CORS(cfg.CORSOrigin),
		mid.OTel("kbase-api"),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// --- Graceful shutdown ---
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Port, "provider", provider.Name())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

// guardedProvider wraps an llm.Provider with a circuit breaker so a flapping
// backend sheds load instead of stacking timeouts.
type guardedProvider struct {
	inner   llm.Provider
	breaker *resilience.Breaker
}

func (g *guardedProvider) Name() string { return g.inner.Name() }

func (g *guardedProvider) Generate(ctx context.Context, messages []domain.Message, temperature float64, maxTokens int) (string, error) {
	var text string
	err := g.breaker.Call(ctx, func(ctx context.Context) error {
		var genErr error
		text, genErr = g.inner.Generate(ctx, messages, temperature, maxTokens)
		return genErr
	})
	return text, err
}

// --- Handlers ---

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

type askService struct {
	ranker    *rank.Ranker
	generator *answer.Generator
	catalog   *catalog.Catalog
	topK      int
	logger    *slog.Logger

	questions *metrics.Counter
	noAnswer  *metrics.Counter
	latency   *metrics.Histogram
}

// AskRequest is the JSON body for POST /api/v1/ask.
type AskRequest struct {
	Question string `json:"question"`
}

// AskResponse is the JSON response for POST /api/v1/ask.
type AskResponse struct {
	Answer       string   `json:"answer"`
	Sources      []string `json:"sources"`
	ProcessingMS int64    `json:"processing_ms"`
	Timestamp    string   `json:"timestamp"`
}

func (s *askService) handleAsk(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := domain.ValidateQuestion(req.Question); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.questions.Inc()

	results, err := s.ranker.RankAndFilter(r.Context(), req.Question, s.topK)
	if err != nil {
		s.logger.Error("search failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	var text string
	var sources []string
	if !s.ranker.HasRelevantInformation(results) {
		s.noAnswer.Inc()
		text = answer.NoAnswerText
	} else {
		text = s.generator.Answer(r.Context(), req.Question, results)
		sources = sourceURLs(results)
	}

	s.latency.Since(start)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(AskResponse{
		Answer:       text,
		Sources:      sources,
		ProcessingMS: time.Since(start).Milliseconds(),
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
	})
}

// SourcesResponse is the JSON response for GET /api/v1/sources.
type SourcesResponse struct {
	Sources []catalog.Entry `json:"sources"`
	Count   int             `json:"count"`
}

func (s *askService) handleSources(w http.ResponseWriter, r *http.Request) {
	entries, err := s.catalog.List(r.Context(), envInt("SOURCES_LIMIT", 100))
	if err != nil {
		s.logger.Error("catalog list failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(SourcesResponse{Sources: entries, Count: len(entries)})
}

// sourceURLs returns the deduplicated source links behind the results,
// preserving rank order.
func sourceURLs(results []domain.SearchResult) []string {
	seen := make(map[string]bool, len(results))
	var urls []string
	for _, r := range results {
		if r.Meta.SourceURL == "" || seen[r.Meta.SourceURL] {
			continue
		}
		seen[r.Meta.SourceURL] = true
		urls = append(urls, r.Meta.SourceURL)
	}
	return urls
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
