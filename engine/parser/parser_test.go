package parser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const samplePage = `<!DOCTYPE html>
<html>
<head>
  <title>Fallback Title</title>
  <style>.x { color: red }</style>
  <script>console.log("tracking")</script>
</head>
<body>
  <header>Site header</header>
  <nav>Home | Projects</nav>
  <main>
    <h1>Chatbot   for a Bank</h1>
    <p>We built a   voice assistant.</p>
    <p>It handles client requests.</p>
  </main>
  <footer>Contacts</footer>
</body>
</html>`

func testParser(t *testing.T, handler http.HandlerFunc) (*Parser, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	opts := DefaultOptions()
	opts.RequestsPerSecond = 0
	return New(opts, nil), srv
}

func TestParse(t *testing.T) {
	var gotUA string
	p, srv := testParser(t, func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Write([]byte(samplePage))
	})

	doc, err := p.Parse(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	if doc.URL != srv.URL {
		t.Errorf("URL = %q, want %q", doc.URL, srv.URL)
	}
	if doc.Title != "Chatbot for a Bank" {
		t.Errorf("Title = %q", doc.Title)
	}
	if !strings.Contains(doc.Content, "We built a voice assistant.") {
		t.Errorf("Content missing paragraph text: %q", doc.Content)
	}
	for _, junk := range []string{"tracking", "color: red", "Site header", "Home | Projects", "Contacts"} {
		if strings.Contains(doc.Content, junk) {
			t.Errorf("Content contains stripped element text %q", junk)
		}
	}
	if strings.Contains(doc.Content, "  ") {
		t.Errorf("Content has uncollapsed whitespace: %q", doc.Content)
	}
	if gotUA != defaultUserAgent {
		t.Errorf("User-Agent = %q", gotUA)
	}
}

func TestParse_TitleFallsBackToURL(t *testing.T) {
	p, srv := testParser(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><p>no headings here</p></body></html>`))
	})

	doc, err := p.Parse(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if doc.Title != srv.URL {
		t.Errorf("Title = %q, want the URL", doc.Title)
	}
}

func TestParse_BodyFallback(t *testing.T) {
	p, srv := testParser(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><h1>Plain Page</h1><p>body only content</p></body></html>`))
	})

	doc, err := p.Parse(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if !strings.Contains(doc.Content, "body only content") {
		t.Errorf("Content = %q", doc.Content)
	}
}

func TestParse_HTTPError(t *testing.T) {
	p, srv := testParser(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	})

	if _, err := p.Parse(context.Background(), srv.URL); err == nil {
		t.Fatal("expected error for non-200 response")
	}
}

func TestParse_CanceledContext(t *testing.T) {
	p := New(DefaultOptions(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := p.Parse(ctx, "http://127.0.0.1:0/never"); err == nil {
		t.Fatal("expected error for canceled context")
	}
}
