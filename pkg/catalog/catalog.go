// Package catalog tracks ingested documents in Neo4j. The ingestion worker
// uses it for dedup checks and re-ingestion bookkeeping; the API exposes its
// listing as the sources endpoint.
package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Entry records one ingested document.
type Entry struct {
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	WordCount   int       `json:"word_count"`
	TotalChunks int       `json:"total_chunks"`
	IngestedAt  time.Time `json:"ingested_at"`
}

// result is the minimal interface needed from a neo4j result.
type result interface {
	Next(ctx context.Context) bool
	Record() *neo4j.Record
}

// runner is the minimal interface needed from a neo4j session.
type runner interface {
	Run(ctx context.Context, cypher string, params map[string]any) (result, error)
	Close(ctx context.Context) error
}

// Catalog is a Neo4j-backed document catalog.
type Catalog struct {
	driver     neo4j.DriverWithContext
	newSession func(ctx context.Context) runner // for testing
}

// New creates a Catalog on the given driver.
func New(driver neo4j.DriverWithContext) *Catalog {
	return &Catalog{driver: driver}
}

type sessionAdapter struct {
	sess neo4j.SessionWithContext
}

func (a *sessionAdapter) Run(ctx context.Context, cypher string, params map[string]any) (result, error) {
	return a.sess.Run(ctx, cypher, params)
}

func (a *sessionAdapter) Close(ctx context.Context) error {
	return a.sess.Close(ctx)
}

func (c *Catalog) session(ctx context.Context) runner {
	if c.newSession != nil {
		return c.newSession(ctx)
	}
	return &sessionAdapter{sess: c.driver.NewSession(ctx, neo4j.SessionConfig{})}
}

// Seen reports whether a document URL has already been ingested.
func (c *Catalog) Seen(ctx context.Context, url string) (bool, error) {
	sess := c.session(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx,
		"MATCH (d:Document {url: $url}) RETURN d.url",
		map[string]any{"url": url})
	if err != nil {
		return false, fmt.Errorf("catalog: seen %s: %w", url, err)
	}
	return res.Next(ctx), nil
}

// Record upserts a catalog entry after a successful ingestion.
func (c *Catalog) Record(ctx context.Context, e Entry) error {
	sess := c.session(ctx)
	defer sess.Close(ctx)

	_, err := sess.Run(ctx,
		`MERGE (d:Document {url: $url})
		 SET d.title = $title, d.word_count = $word_count,
		     d.total_chunks = $total_chunks, d.ingested_at = $ingested_at`,
		map[string]any{
			"url":          e.URL,
			"title":        e.Title,
			"word_count":   e.WordCount,
			"total_chunks": e.TotalChunks,
			"ingested_at":  e.IngestedAt.UTC().Format(time.RFC3339),
		})
	if err != nil {
		return fmt.Errorf("catalog: record %s: %w", e.URL, err)
	}
	return nil
}

// List returns up to limit catalog entries ordered by URL.
func (c *Catalog) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	sess := c.session(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx,
		`MATCH (d:Document)
		 RETURN d.url, d.title, d.word_count, d.total_chunks, d.ingested_at
		 ORDER BY d.url LIMIT $limit`,
		map[string]any{"limit": limit})
	if err != nil {
		return nil, fmt.Errorf("catalog: list: %w", err)
	}

	var entries []Entry
	for res.Next(ctx) {
		entries = append(entries, entryFromRecord(res.Record()))
	}
	return entries, nil
}

func entryFromRecord(rec *neo4j.Record) Entry {
	var e Entry
	if len(rec.Values) < 5 {
		return e
	}
	e.URL, _ = rec.Values[0].(string)
	e.Title, _ = rec.Values[1].(string)
	if n, ok := rec.Values[2].(int64); ok {
		e.WordCount = int(n)
	}
	if n, ok := rec.Values[3].(int64); ok {
		e.TotalChunks = int(n)
	}
	if s, ok := rec.Values[4].(string); ok {
		e.IngestedAt, _ = time.Parse(time.RFC3339, s)
	}
	return e
}
