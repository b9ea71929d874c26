// Package ingest provides the ingestion pipeline that processes parsed
// documents through validation, chunking, embedding, and storage stages.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/eoralabs/kbase/engine/domain"
	"github.com/eoralabs/kbase/pkg/catalog"
	"github.com/eoralabs/kbase/pkg/fn"
	"github.com/nats-io/nats.go"
)

const (
	// IngestSubject is the NATS subject for parsed documents.
	IngestSubject = "kbase.ingest"
	// DLQSubject is the dead letter queue subject for failed documents.
	DLQSubject = "kbase.ingest.dlq"
	// MaxRetries before sending to DLQ.
	MaxRetries = 3
	// EmbedBatchSize is the max chunks per embedding request.
	EmbedBatchSize = 100
)

// Embedder produces embedding vectors for chunk contents.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// ChunkStore is the subset of the vector store the pipeline writes to.
type ChunkStore interface {
	DeleteBySourceURL(ctx context.Context, url string) error
	Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) error
}

// Recorder is the document catalog interface used for dedup and bookkeeping.
type Recorder interface {
	Seen(ctx context.Context, url string) (bool, error)
	Record(ctx context.Context, e catalog.Entry) error
}

// Deps holds the external dependencies and configuration for the pipeline.
type Deps struct {
	Embedder  Embedder
	Store     ChunkStore
	Catalog   Recorder
	ChunkSize int
	Overlap   int
	// SkipSeen makes the consumer drop documents already in the catalog
	// instead of re-ingesting them.
	SkipSeen bool
	Logger   *slog.Logger
}

// --- Pipeline stages ---

// Validate gates documents via domain validation.
var Validate fn.Stage[domain.Document, domain.Document] = func(_ context.Context, doc domain.Document) fn.Result[domain.Document] {
	if err := domain.ValidateDocument(doc); err != nil {
		return fn.Err[domain.Document](err)
	}
	return fn.Ok(doc)
}

// NewChunk creates the chunking stage for the configured window geometry.
func NewChunk(chunkSize, overlap int) fn.Stage[domain.Document, ChunkedDoc] {
	return func(_ context.Context, doc domain.Document) fn.Result[ChunkedDoc] {
		chunks, err := ChunkDocument(doc, chunkSize, overlap)
		if err != nil {
			return fn.Err[ChunkedDoc](err)
		}
		return fn.Ok(ChunkedDoc{Doc: doc, Chunks: chunks})
	}
}

// NewEmbed creates the embedding stage, batching chunks per request.
func NewEmbed(embedder Embedder) fn.Stage[ChunkedDoc, EmbeddedDoc] {
	return func(ctx context.Context, doc ChunkedDoc) fn.Result[EmbeddedDoc] {
		vectors := make([][]float32, 0, len(doc.Chunks))

		for i := 0; i < len(doc.Chunks); i += EmbedBatchSize {
			end := i + EmbedBatchSize
			if end > len(doc.Chunks) {
				end = len(doc.Chunks)
			}

			texts := make([]string, end-i)
			for j, c := range doc.Chunks[i:end] {
				texts[j] = c.Content
			}

			batch, err := embedder.EmbedBatch(ctx, texts)
			if err != nil {
				return fn.Err[EmbeddedDoc](fmt.Errorf("embed batch: %w", err))
			}
			vectors = append(vectors, batch...)
		}

		return fn.Ok(EmbeddedDoc{ChunkedDoc: doc, Vectors: vectors})
	}
}

// NewStore creates the storage stage: stale chunks of the document are
// removed before the fresh ones are upserted, then the catalog entry is
// recorded. Returns the document URL on success.
func NewStore(store ChunkStore, cat Recorder) fn.Stage[EmbeddedDoc, string] {
	return func(ctx context.Context, doc EmbeddedDoc) fn.Result[string] {
		if err := store.DeleteBySourceURL(ctx, doc.Doc.URL); err != nil {
			return fn.Err[string](fmt.Errorf("delete stale chunks: %w", err))
		}
		if err := store.Upsert(ctx, doc.Chunks, doc.Vectors); err != nil {
			return fn.Err[string](fmt.Errorf("vector upsert: %w", err))
		}

		wordCount := 0
		for _, c := range doc.Chunks {
			wordCount += c.WordCount
		}
		entry := catalog.Entry{
			URL:         doc.Doc.URL,
			Title:       doc.Doc.Title,
			WordCount:   wordCount,
			TotalChunks: len(doc.Chunks),
			IngestedAt:  time.Now(),
		}
		if err := cat.Record(ctx, entry); err != nil {
			return fn.Err[string](fmt.Errorf("catalog record: %w", err))
		}

		return fn.Ok(doc.Doc.URL)
	}
}

// LoggedTap returns a stage that logs entry/exit with duration.
func LoggedTap[T any](name string, log *slog.Logger) fn.Stage[T, T] {
	return func(ctx context.Context, t T) fn.Result[T] {
		log.Info("stage.enter", "stage", name)
		start := time.Now()
		defer func() {
			log.Info("stage.exit", "stage", name, "duration", time.Since(start))
		}()
		return fn.Ok(t)
	}
}

// NewPipeline constructs the full ingestion pipeline with all stages wired.
func NewPipeline(deps Deps) fn.Stage[domain.Document, string] {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	chunkSize := deps.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	overlap := deps.Overlap
	if overlap <= 0 {
		overlap = DefaultOverlap
	}

	validated := fn.Then(LoggedTap[domain.Document]("validate", log), Validate)
	chunked := fn.Then(validated, fn.Then(LoggedTap[domain.Document]("chunk", log), NewChunk(chunkSize, overlap)))
	embedded := fn.Then(chunked, fn.Then(LoggedTap[ChunkedDoc]("embed", log), NewEmbed(deps.Embedder)))
	stored := fn.Then(embedded, fn.Then(LoggedTap[EmbeddedDoc]("store", log), NewStore(deps.Store, deps.Catalog)))

	return stored
}

// dlqMessage is published to the DLQ on repeated failure.
type dlqMessage struct {
	Doc     domain.Document `json:"document"`
	Error   string          `json:"error"`
	Retries int             `json:"retries"`
}

// StartConsumer subscribes to the ingest subject and runs each document
// through the pipeline with retry and DLQ support.
func StartConsumer(nc *nats.Conn, deps Deps) (*nats.Subscription, error) {
	pipeline := NewPipeline(deps)
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	return nc.Subscribe(IngestSubject, func(msg *nats.Msg) {
		var doc domain.Document
		if err := json.Unmarshal(msg.Data, &doc); err != nil {
			log.Error("ingest: unmarshal failed", "error", err)
			return
		}

		ctx := context.Background()

		if deps.SkipSeen && deps.Catalog != nil {
			seen, err := deps.Catalog.Seen(ctx, doc.URL)
			if err != nil {
				log.Warn("ingest: dedup check failed", "error", err)
			} else if seen {
				log.Info("ingest: skipping duplicate", "url", doc.URL)
				return
			}
		}

		retries := 0
		if msg.Header != nil {
			if v := msg.Header.Get("X-Retry-Count"); v != "" {
				fmt.Sscanf(v, "%d", &retries)
			}
		}

		result := pipeline(ctx, doc)
		if result.IsErr() {
			_, pipeErr := result.Unwrap()
			retries++
			log.Error("ingest: pipeline failed",
				"error", pipeErr,
				"url", doc.URL,
				"retry", retries,
			)

			if retries >= MaxRetries {
				dlq := dlqMessage{Doc: doc, Error: pipeErr.Error(), Retries: retries}
				data, _ := json.Marshal(dlq)
				if err := nc.Publish(DLQSubject, data); err != nil {
					log.Error("ingest: DLQ publish failed", "error", err)
				}
			} else {
				retryMsg := nats.NewMsg(IngestSubject)
				retryMsg.Data = msg.Data
				retryMsg.Header = nats.Header{}
				retryMsg.Header.Set("X-Retry-Count", fmt.Sprintf("%d", retries))
				if err := nc.PublishMsg(retryMsg); err != nil {
					log.Error("ingest: retry publish failed", "error", err)
				}
			}
			return
		}

		url, _ := result.Unwrap()
		log.Info("ingest: success", "url", url)
	})
}
