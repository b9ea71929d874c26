package answer

import (
	"strings"
	"testing"

	"github.com/eoralabs/kbase/engine/domain"
)

func res(title, content, url string) domain.SearchResult {
	return domain.SearchResult{
		Content: content,
		Meta:    domain.ChunkMeta{SourceTitle: title, SourceURL: url},
	}
}

func TestAssembleContext(t *testing.T) {
	results := []domain.SearchResult{
		res("Case A", "text a", "https://eora.ru/a"),
		res("Case B", "text b", "https://eora.ru/b"),
	}

	ctxText, links := AssembleContext(results, 5)

	if !strings.Contains(ctxText, "Source: Case A\nContext: text a\nLink: https://eora.ru/a\n") {
		t.Errorf("context missing first entry:\n%s", ctxText)
	}
	if strings.Count(ctxText, "\n---\n") != 1 {
		t.Errorf("wrong separator count in context:\n%s", ctxText)
	}
	if links != "https://eora.ru/a\n---\nhttps://eora.ru/b" {
		t.Errorf("links = %q", links)
	}
}

func TestAssembleContext_Truncates(t *testing.T) {
	results := []domain.SearchResult{
		res("A", "a", "u1"),
		res("B", "b", "u2"),
		res("C", "c", "u3"),
	}

	ctxText, links := AssembleContext(results, 2)
	if strings.Contains(ctxText, "Source: C") {
		t.Error("context not truncated to maxResults")
	}
	if strings.Contains(links, "u3") {
		t.Error("links not truncated to maxResults")
	}
	// Order preserved, no rescoring.
	if strings.Index(ctxText, "Source: A") > strings.Index(ctxText, "Source: B") {
		t.Error("entries reordered")
	}
}

func TestAssembleContext_Empty(t *testing.T) {
	ctxText, links := AssembleContext(nil, 5)
	if ctxText != "" || links != "" {
		t.Errorf("got %q / %q, want empty strings", ctxText, links)
	}
}
