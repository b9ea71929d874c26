package ingest

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/eoralabs/kbase/engine/domain"
)

func testDoc(words int) domain.Document {
	parts := make([]string, words)
	for i := range parts {
		parts[i] = fmt.Sprintf("w%d", i)
	}
	return domain.Document{
		URL:     "https://eora.ru/cases/a",
		Title:   "Case A",
		Content: strings.Join(parts, " "),
	}
}

func TestChunkDocument_ShortDocument(t *testing.T) {
	chunks, err := ChunkDocument(testDoc(8), 10, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	c := chunks[0]
	if c.ChunkIndex != 0 || c.TotalChunks != 1 || c.WordCount != 8 {
		t.Errorf("chunk = %+v", c)
	}
	if c.ChunkID != "https://eora.ru/cases/a#chunk_0" {
		t.Errorf("chunk id = %q", c.ChunkID)
	}
}

func TestChunkDocument_Empty(t *testing.T) {
	doc := domain.Document{URL: "https://eora.ru", Title: "Empty", Content: ""}
	chunks, err := ChunkDocument(doc, 10, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Content != "" || chunks[0].WordCount != 0 {
		t.Errorf("chunk = %+v", chunks[0])
	}
}

func TestChunkDocument_Windows(t *testing.T) {
	// 25 words, window 10, overlap 2: step 8, total = ceil(25/8) = 4.
	chunks, err := ChunkDocument(testDoc(25), 10, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	covered := make(map[string]bool)
	for i, c := range chunks {
		if c.ChunkIndex != i {
			t.Errorf("chunk %d has index %d", i, c.ChunkIndex)
		}
		if c.TotalChunks != 4 {
			t.Errorf("chunk %d TotalChunks = %d, want 4", i, c.TotalChunks)
		}
		if c.WordCount != len(strings.Fields(c.Content)) {
			t.Errorf("chunk %d word count mismatch", i)
		}
		for _, w := range strings.Fields(c.Content) {
			covered[w] = true
		}
	}

	// Every word of the document appears in at least one chunk.
	for i := 0; i < 25; i++ {
		if !covered[fmt.Sprintf("w%d", i)] {
			t.Errorf("word w%d not covered by any chunk", i)
		}
	}

	// Tail window is clamped, not padded.
	last := chunks[len(chunks)-1]
	if last.WordCount > 10 {
		t.Errorf("tail chunk has %d words", last.WordCount)
	}
	if !strings.HasSuffix(last.Content, "w24") {
		t.Errorf("tail chunk does not end at document end: %q", last.Content)
	}
}

func TestChunkDocument_BadConfig(t *testing.T) {
	for _, tt := range []struct{ size, overlap int }{
		{10, 10},
		{10, 15},
		{0, 0},
		{10, -1},
	} {
		if _, err := ChunkDocument(testDoc(5), tt.size, tt.overlap); !errors.Is(err, domain.ErrChunkConfig) {
			t.Errorf("size=%d overlap=%d: got %v, want ErrChunkConfig", tt.size, tt.overlap, err)
		}
	}
}
