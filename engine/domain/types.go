// Package domain defines the core data model for the kbase retrieval
// pipeline: documents, chunks, search results, and chat messages. It also
// acts as the validation gate at pipeline entry points and carries the
// error taxonomy shared by all engine packages.
package domain

import "fmt"

// Document is a cleaned source page as produced by the parser. Immutable
// once created; consumed only by the chunker.
type Document struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Chunk is the atomic retrievable unit derived from a Document. Created
// once at ingestion, stored in the vector index, never mutated after.
type Chunk struct {
	ChunkID     string `json:"chunk_id"`
	Content     string `json:"content"`
	SourceURL   string `json:"source_url"`
	SourceTitle string `json:"source_title"`
	ChunkIndex  int    `json:"chunk_index"`
	TotalChunks int    `json:"total_chunks"`
	WordCount   int    `json:"word_count"`
}

// ChunkID derives the deterministic chunk identifier for a document URL
// and zero-based chunk index.
func ChunkID(url string, index int) string {
	return fmt.Sprintf("%s#chunk_%d", url, index)
}

// ChunkMeta is the metadata stored alongside a chunk's content in the
// vector index payload.
type ChunkMeta struct {
	SourceURL   string `json:"source_url"`
	SourceTitle string `json:"source_title"`
	ChunkIndex  int    `json:"chunk_index"`
	TotalChunks int    `json:"total_chunks"`
	WordCount   int    `json:"word_count"`
}

// SearchResult is a transient per-query hit from the similarity index.
// SimilarityScore is the raw index similarity in [0,1]; FinalScore adds
// the re-ranking bonuses and is always >= SimilarityScore.
type SearchResult struct {
	ChunkID         string    `json:"chunk_id"`
	Content         string    `json:"content"`
	Meta            ChunkMeta `json:"metadata"`
	SimilarityScore float64   `json:"similarity_score"`
	FinalScore      float64   `json:"final_score"`
}

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
)

// Message is one turn of the conversation sent to an LLM provider.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
