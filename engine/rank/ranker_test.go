package rank

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/eoralabs/kbase/engine/domain"
)

// --- Mocks ---

type mockEmbedder struct {
	vector []float32
	err    error
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return m.vector, m.err
}

type mockSearcher struct {
	results []domain.SearchResult
	err     error
	lastK   int
}

func (m *mockSearcher) Query(_ context.Context, _ []float32, k int) ([]domain.SearchResult, error) {
	m.lastK = k
	return m.results, m.err
}

func result(id string, sim float64, title, content string) domain.SearchResult {
	return domain.SearchResult{
		ChunkID:         id,
		Content:         content,
		SimilarityScore: sim,
		Meta:            domain.ChunkMeta{SourceTitle: title, SourceURL: "https://eora.ru/" + id},
	}
}

func newRanker(s *mockSearcher) *Ranker {
	return New(&mockEmbedder{vector: []float32{0.1}}, s, DefaultOptions(), nil)
}

// --- Tests ---

func TestRankAndFilter_OverFetches(t *testing.T) {
	s := &mockSearcher{}
	if _, err := newRanker(s).RankAndFilter(context.Background(), "q", 5); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.lastK != 10 {
		t.Errorf("index queried with k=%d, want 10", s.lastK)
	}
}

func TestRankAndFilter_ThresholdIsStrict(t *testing.T) {
	s := &mockSearcher{results: []domain.SearchResult{
		result("a", 0.31, "t", "c"),
		result("b", 0.30, "t", "c"), // exactly at threshold: dropped
		result("c", 0.10, "t", "c"),
	}}
	results, err := newRanker(s).RankAndFilter(context.Background(), "q", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || results[0].ChunkID != "a" {
		t.Fatalf("results = %+v", results)
	}
}

func TestRankAndFilter_EmptyAfterFilter(t *testing.T) {
	s := &mockSearcher{results: []domain.SearchResult{result("a", 0.1, "t", "c")}}
	results, err := newRanker(s).RankAndFilter(context.Background(), "q", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results, got %d", len(results))
	}
}

func TestRankAndFilter_ScoresAndOrder(t *testing.T) {
	long := make([]byte, 0)
	for i := 0; i < 200; i++ {
		long = append(long, []byte("word ")...)
	}
	s := &mockSearcher{results: []domain.SearchResult{
		result("low", 0.5, "irrelevant", "short text"),
		result("high", 0.6, "chatbot development services", string(long)),
	}}

	results, err := newRanker(s).RankAndFilter(context.Background(), "chatbot development", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ChunkID != "high" {
		t.Errorf("order = %s, %s", results[0].ChunkID, results[1].ChunkID)
	}
	for _, res := range results {
		if res.FinalScore < res.SimilarityScore {
			t.Errorf("%s: final %f < similarity %f", res.ChunkID, res.FinalScore, res.SimilarityScore)
		}
	}
	// 0.6 similarity + 0.1 capped length bonus + 0.2 full title overlap.
	if math.Abs(results[0].FinalScore-0.9) > 1e-9 {
		t.Errorf("final score = %f, want 0.9", results[0].FinalScore)
	}
}

func TestRankAndFilter_StableOnTies(t *testing.T) {
	s := &mockSearcher{results: []domain.SearchResult{
		result("first", 0.5, "x", "same"),
		result("second", 0.5, "x", "same"),
	}}
	results, err := newRanker(s).RankAndFilter(context.Background(), "q", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if results[0].ChunkID != "first" || results[1].ChunkID != "second" {
		t.Errorf("tie order broken: %s, %s", results[0].ChunkID, results[1].ChunkID)
	}
}

func TestRankAndFilter_Truncates(t *testing.T) {
	s := &mockSearcher{results: []domain.SearchResult{
		result("a", 0.9, "t", "c"),
		result("b", 0.8, "t", "c"),
		result("c", 0.7, "t", "c"),
	}}
	results, err := newRanker(s).RankAndFilter(context.Background(), "q", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
}

func TestRankAndFilter_SearchErrorPropagates(t *testing.T) {
	idxErr := &domain.IndexError{Op: "search", Err: errors.New("down")}
	s := &mockSearcher{err: idxErr}
	_, err := newRanker(s).RankAndFilter(context.Background(), "q", 5)
	var got *domain.IndexError
	if !errors.As(err, &got) {
		t.Fatalf("expected IndexError, got %v", err)
	}
}

func TestTitleBonus(t *testing.T) {
	tests := []struct {
		name   string
		title  string
		query  string
		want   float64
	}{
		{"no query words", "Some Title", "", 0},
		{"no overlap", "voice assistant", "computer vision", 0},
		{"full overlap", "Chatbot Development", "chatbot development", 0.2},
		{"half overlap", "chatbot services", "chatbot pricing", 0.1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := titleBonus(tt.title, tt.query)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("titleBonus(%q, %q) = %f, want %f", tt.title, tt.query, got, tt.want)
			}
		})
	}
}

func TestHasRelevantInformation(t *testing.T) {
	r := newRanker(&mockSearcher{})
	if r.HasRelevantInformation(nil) {
		t.Error("empty list reported relevant")
	}
	if r.HasRelevantInformation([]domain.SearchResult{result("a", 0.4, "t", "c")}) {
		t.Error("similarity exactly at confidence bar reported relevant")
	}
	if !r.HasRelevantInformation([]domain.SearchResult{result("a", 0.41, "t", "c")}) {
		t.Error("similarity above confidence bar not reported relevant")
	}
	// The raw similarity is the gate, even when the final score is higher.
	res := result("a", 0.35, "t", "c")
	res.FinalScore = 0.65
	if r.HasRelevantInformation([]domain.SearchResult{res}) {
		t.Error("final score used instead of raw similarity")
	}
}
