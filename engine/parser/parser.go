// Package parser fetches knowledge-base pages and reduces them to plain
// text Documents ready for chunking.
package parser

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"github.com/eoralabs/kbase/engine/domain"
)

const (
	defaultUserAgent = "kbase-crawler/1.0 (+https://eora.ru)"
	defaultTimeout   = 30 * time.Second
)

// titleSelectors are tried in order; the first non-empty match wins.
var titleSelectors = []string{"h1", "title", ".page-title", ".project-title"}

// contentSelectors locate the main content block; body is the fallback.
var contentSelectors = []string{"main", "article", ".content"}

var whitespaceRE = regexp.MustCompile(`\s+`)

// Options configures the page parser.
type Options struct {
	UserAgent string
	Timeout   time.Duration
	// RequestsPerSecond throttles outgoing fetches. Zero disables the limiter.
	RequestsPerSecond float64
}

// DefaultOptions returns polite crawl settings.
func DefaultOptions() Options {
	return Options{
		UserAgent:         defaultUserAgent,
		Timeout:           defaultTimeout,
		RequestsPerSecond: 2,
	}
}

// Parser fetches pages and extracts their title and readable text.
type Parser struct {
	client    *http.Client
	userAgent string
	limiter   *rate.Limiter
	logger    *slog.Logger
}

// New creates a Parser with its own HTTP client.
func New(opts Options, logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	return &Parser{
		client:    &http.Client{Timeout: opts.Timeout},
		userAgent: opts.UserAgent,
		limiter:   limiter,
		logger:    logger,
	}
}

// Parse fetches url and returns a cleaned Document. The returned document
// always carries the fetched url; Title falls back to the URL when the page
// offers none.
func (p *Parser) Parse(ctx context.Context, url string) (domain.Document, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return domain.Document{}, fmt.Errorf("parser: rate wait: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.Document{}, fmt.Errorf("parser: build request: %w", err)
	}
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := p.client.Do(req)
	if err != nil {
		return domain.Document{}, fmt.Errorf("parser: fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.Document{}, fmt.Errorf("parser: fetch %s: unexpected status %d", url, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return domain.Document{}, fmt.Errorf("parser: parse %s: %w", url, err)
	}

	title, content := extract(doc)
	if title == "" {
		title = url
	}

	p.logger.Debug("parser: page parsed", "url", url, "title", title, "content_len", len(content))

	return domain.Document{URL: url, Title: title, Content: content}, nil
}

func extract(doc *goquery.Document) (title, content string) {
	doc.Find("script, style, nav, footer, header").Remove()

	for _, sel := range titleSelectors {
		if t := clean(doc.Find(sel).First().Text()); t != "" {
			title = t
			break
		}
	}

	var block *goquery.Selection
	for _, sel := range contentSelectors {
		if s := doc.Find(sel); s.Length() > 0 {
			block = s.First()
			break
		}
	}
	if block == nil {
		block = doc.Find("body")
	}
	content = clean(block.Text())
	return title, content
}

// clean collapses runs of whitespace into single spaces.
func clean(s string) string {
	return strings.TrimSpace(whitespaceRE.ReplaceAllString(s, " "))
}
