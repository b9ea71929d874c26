package ingest

import "github.com/eoralabs/kbase/engine/domain"

// ChunkedDoc is a document split into retrievable chunks.
type ChunkedDoc struct {
	Doc    domain.Document
	Chunks []domain.Chunk
}

// EmbeddedDoc pairs each chunk with its embedding vector.
type EmbeddedDoc struct {
	ChunkedDoc
	Vectors [][]float32
}
