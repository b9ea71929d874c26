package ingest

import (
	"math"
	"strings"

	"github.com/eoralabs/kbase/engine/domain"
)

const (
	// DefaultChunkSize is the window size in words.
	DefaultChunkSize = 512
	// DefaultOverlap is the number of words shared between adjacent windows.
	DefaultOverlap = 50
)

// ChunkDocument splits a document into overlapping word windows.
//
// A document of at most chunkSize words yields exactly one chunk covering the
// whole document (an empty document yields one empty chunk). Longer documents
// are split into windows of chunkSize words advancing by chunkSize-overlap
// words per step; the last window is clamped to the document end, never
// padded. TotalChunks is ceil(wordCount/(chunkSize-overlap)) and is stamped
// identically into every chunk.
//
// overlap >= chunkSize would stall the window and is rejected with
// domain.ErrChunkConfig.
func ChunkDocument(doc domain.Document, chunkSize, overlap int) ([]domain.Chunk, error) {
	if chunkSize <= 0 || overlap < 0 || overlap >= chunkSize {
		return nil, domain.ErrChunkConfig
	}

	words := strings.Fields(doc.Content)
	if len(words) <= chunkSize {
		return []domain.Chunk{makeChunk(doc, doc.Content, 0, 1)}, nil
	}

	step := chunkSize - overlap
	total := int(math.Ceil(float64(len(words)) / float64(step)))

	var chunks []domain.Chunk
	for i := 0; i < len(words); i += step {
		end := i + chunkSize
		if end > len(words) {
			end = len(words)
		}
		content := strings.Join(words[i:end], " ")
		chunks = append(chunks, makeChunk(doc, content, len(chunks), total))

		if end == len(words) {
			break
		}
	}
	return chunks, nil
}

func makeChunk(doc domain.Document, content string, index, total int) domain.Chunk {
	return domain.Chunk{
		ChunkID:     domain.ChunkID(doc.URL, index),
		Content:     content,
		SourceURL:   doc.URL,
		SourceTitle: doc.Title,
		ChunkIndex:  index,
		TotalChunks: total,
		WordCount:   len(strings.Fields(content)),
	}
}
