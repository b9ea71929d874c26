// Command crawl fetches a list of knowledge base pages and publishes the
// cleaned documents to the ingest subject.
package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/eoralabs/kbase/engine/ingest"
	"github.com/eoralabs/kbase/engine/parser"
	"github.com/eoralabs/kbase/pkg/natsutil"
)

func main() {
	var (
		urlsFile = flag.String("urls", "urls.txt", "file with one URL per line")
		natsURL  = flag.String("nats", nats.DefaultURL, "NATS server URL")
		rps      = flag.Float64("rps", 2, "max page fetches per second")
		timeout  = flag.Duration("timeout", 30*time.Second, "per-page fetch timeout")
	)
	flag.Parse()

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	urls, err := readURLs(*urlsFile)
	if err != nil {
		log.Error("read urls failed", "file", *urlsFile, "error", err)
		os.Exit(1)
	}
	if len(urls) == 0 {
		log.Error("no urls to crawl", "file", *urlsFile)
		os.Exit(1)
	}

	nc, err := nats.Connect(*natsURL)
	if err != nil {
		log.Error("nats connect failed", "error", err)
		os.Exit(1)
	}
	defer nc.Drain()

	opts := parser.DefaultOptions()
	opts.Timeout = *timeout
	opts.RequestsPerSecond = *rps
	p := parser.New(opts, log)

	published, failed := 0, 0
	for _, url := range urls {
		if ctx.Err() != nil {
			break
		}

		doc, err := p.Parse(ctx, url)
		if err != nil {
			log.Error("parse failed", "url", url, "error", err)
			failed++
			continue
		}

		if err := natsutil.Publish(ctx, nc, ingest.IngestSubject, doc); err != nil {
			log.Error("publish failed", "url", url, "error", err)
			failed++
			continue
		}

		log.Info("published", "url", url, "title", doc.Title)
		published++
	}

	if err := nc.Flush(); err != nil {
		log.Error("nats flush failed", "error", err)
	}
	log.Info("crawl done", "published", published, "failed", failed)
}

// readURLs loads one URL per line, skipping blanks and # comments.
func readURLs(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var urls []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	return urls, sc.Err()
}
