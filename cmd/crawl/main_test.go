package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestReadURLs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "urls.txt")
	content := "https://eora.ru/a\n\n# comment\n  https://eora.ru/b  \n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	urls, err := readURLs(path)
	if err != nil {
		t.Fatalf("readURLs: %v", err)
	}
	if len(urls) != 2 {
		t.Fatalf("expected 2 urls, got %v", urls)
	}
	if urls[0] != "https://eora.ru/a" || urls[1] != "https://eora.ru/b" {
		t.Fatalf("unexpected urls: %v", urls)
	}
}

func TestReadURLs_Missing(t *testing.T) {
	if _, err := readURLs(filepath.Join(t.TempDir(), "nope.txt")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
