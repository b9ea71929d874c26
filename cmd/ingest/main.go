// Command ingest consumes parsed documents from NATS and runs them through
// the chunk/embed/store pipeline into Qdrant and Neo4j.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/eoralabs/kbase/engine/ingest"
	"github.com/eoralabs/kbase/engine/semantic"
	"github.com/eoralabs/kbase/pkg/catalog"
	"github.com/eoralabs/kbase/pkg/embed"
	"github.com/eoralabs/kbase/pkg/metrics"
)

var met = metrics.New()

var (
	mDocsTotal   = met.Counter("kbase_ingest_docs_total", "Documents ingested")
	mDocsSkipped = met.Counter("kbase_ingest_docs_skipped_total", "Documents skipped by dedup")
	mEmbedCalls  = met.Counter("kbase_ingest_embed_calls_total", "Embedding batch calls")
	mEmbedDur    = met.Histogram("kbase_ingest_embed_duration_seconds", "Embedding call time", nil)
)

func main() {
	var (
		natsURL     = flag.String("nats", nats.DefaultURL, "NATS server URL")
		embedURL    = flag.String("embed", "http://localhost:11434", "embedding server base URL")
		embedModel  = flag.String("model", "nomic-embed-text", "embedding model")
		vectorDims  = flag.Int("dims", 768, "embedding vector dimensions")
		qdrantAddr  = flag.String("qdrant", "localhost:6334", "Qdrant gRPC address")
		collection  = flag.String("collection", "kbase", "Qdrant collection name")
		neo4jURL    = flag.String("neo4j", "neo4j://localhost:7687", "Neo4j bolt URL")
		neo4jUser   = flag.String("neo4j-user", "neo4j", "Neo4j username")
		neo4jPass   = flag.String("neo4j-pass", "password", "Neo4j password")
		chunkSize   = flag.Int("chunk-size", ingest.DefaultChunkSize, "chunk size in words")
		overlap     = flag.Int("overlap", ingest.DefaultOverlap, "chunk overlap in words")
		skipSeen    = flag.Bool("skip-seen", false, "skip documents already in the catalog")
		metricsPort = flag.Int("metrics-port", 9091, "metrics listen port")
	)
	flag.Parse()

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// Connect NATS
	nc, err := nats.Connect(*natsURL)
	if err != nil {
		log.Error("nats connect failed", "error", err)
		os.Exit(1)
	}
	defer nc.Drain()
	log.Info("connected to NATS", "url", *natsURL)

	// Connect Neo4j
	driver, err := neo4j.NewDriverWithContext(*neo4jURL, neo4j.BasicAuth(*neo4jUser, *neo4jPass, ""))
	if err != nil {
		log.Error("neo4j connect failed", "error", err)
		os.Exit(1)
	}
	defer driver.Close(ctx)
	if err := driver.VerifyConnectivity(ctx); err != nil {
		log.Error("neo4j verify failed", "error", err)
		os.Exit(1)
	}
	log.Info("connected to Neo4j")

	// Connect Qdrant
	vs, err := semantic.New(*qdrantAddr, *collection)
	if err != nil {
		log.Error("qdrant connect failed", "error", err)
		os.Exit(1)
	}
	defer vs.Close()
	if err := vs.EnsureCollection(ctx, *vectorDims); err != nil {
		log.Error("qdrant ensure collection failed", "error", err)
		os.Exit(1)
	}
	log.Info("connected to Qdrant", "collection", *collection, "dims", *vectorDims)

	embedder := embed.New(*embedURL, *embedModel, 60*time.Second)
	cat := catalog.New(driver)

	deps := ingest.Deps{
		Embedder:  &meteredEmbedder{inner: embedder},
		Store:     vs,
		Catalog:   &meteredCatalog{inner: cat},
		ChunkSize: *chunkSize,
		Overlap:   *overlap,
		SkipSeen:  *skipSeen,
		Logger:    log,
	}

	sub, err := ingest.StartConsumer(nc, deps)
	if err != nil {
		log.Error("subscribe failed", "error", err)
		os.Exit(1)
	}
	defer sub.Unsubscribe()

	go serveMetrics(*metricsPort, log)

	log.Info("ingest consumer running", "subject", ingest.IngestSubject, "chunk_size", *chunkSize, "overlap", *overlap)
	<-ctx.Done()
	log.Info("shutting down")
}

func serveMetrics(port int, log *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", met.Handler())
	if err := http.ListenAndServe(fmt.Sprintf(":%d", port), mux); err != nil {
		log.Error("metrics server failed", "error", err)
	}
}

// meteredEmbedder counts and times embedding batch calls.
type meteredEmbedder struct {
	inner ingest.Embedder
}

func (m *meteredEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()
	vectors, err := m.inner.EmbedBatch(ctx, texts)
	mEmbedDur.Since(start)
	mEmbedCalls.Inc()
	return vectors, err
}

// meteredCatalog counts ingested and deduplicated documents.
type meteredCatalog struct {
	inner ingest.Recorder
}

func (m *meteredCatalog) Seen(ctx context.Context, url string) (bool, error) {
	seen, err := m.inner.Seen(ctx, url)
	if err == nil && seen {
		mDocsSkipped.Inc()
	}
	return seen, err
}

func (m *meteredCatalog) Record(ctx context.Context, e catalog.Entry) error {
	err := m.inner.Record(ctx, e)
	if err == nil {
		mDocsTotal.Inc()
	}
	return err
}
