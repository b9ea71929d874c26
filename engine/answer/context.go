// Package answer turns ranked search results into a grounded LLM answer:
// it bounds and formats the retrieved context, builds the conversation, and
// degrades to fixed user-safe texts on every failure path.
package answer

import (
	"fmt"
	"strings"

	"github.com/eoralabs/kbase/engine/domain"
)

// contextSeparator joins context entries and link entries alike.
const contextSeparator = "\n---\n"

// AssembleContext renders at most maxResults entries into a prompt-ready
// context block and a parallel links block. It is purely a formatting and
// bounding step: no reordering, no rescoring. Empty input yields two empty
// strings.
func AssembleContext(results []domain.SearchResult, maxResults int) (contextText, linksText string) {
	if maxResults > 0 && len(results) > maxResults {
		results = results[:maxResults]
	}

	parts := make([]string, len(results))
	links := make([]string, len(results))
	for i, r := range results {
		parts[i] = fmt.Sprintf("Source: %s\nContext: %s\nLink: %s\n",
			r.Meta.SourceTitle, r.Content, r.Meta.SourceURL)
		links[i] = r.Meta.SourceURL
	}
	return strings.Join(parts, contextSeparator), strings.Join(links, contextSeparator)
}
