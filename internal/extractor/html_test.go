package extractor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTMLExtractorBuildsSectionPaths(t *testing.T) {
	page := `<html><body>
		<h1>Title</h1>
		<p>intro text</p>
		<h2>Sub</h2>
		<p>nested text</p>
	</body></html>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(page))
	}))
	defer srv.Close()

	e := NewHTMLExtractor(srv.Client())
	frags, err := e.Extract(context.Background(), Source{URL: srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(frags) != 2 {
		t.Fatalf("expected 2 coalesced fragments, got %d: %+v", len(frags), frags)
	}
	if frags[0].SectionPath == nil || *frags[0].SectionPath != "Title" {
		t.Fatalf("expected first fragment under 'Title', got %v", frags[0].SectionPath)
	}
	if frags[1].SectionPath == nil || *frags[1].SectionPath != "Title > Sub" {
		t.Fatalf("expected second fragment under 'Title > Sub', got %v", frags[1].SectionPath)
	}
}

func TestHTMLExtractorSkipsScriptAndStyle(t *testing.T) {
	page := `<html><body>
		<script>var x = "should not appear";</script>
		<style>.a { color: red; }</style>
		<p>visible text</p>
	</body></html>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(page))
	}))
	defer srv.Close()

	e := NewHTMLExtractor(srv.Client())
	frags, err := e.Extract(context.Background(), Source{URL: srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, f := range frags {
		if f.Text == "should not appear" {
			t.Fatalf("script content leaked into fragments: %+v", frags)
		}
	}
	found := false
	for _, f := range frags {
		if f.Text == "visible text" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected visible paragraph text, got %+v", frags)
	}
}

func TestHTMLExtractorErrorsOnNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	e := NewHTMLExtractor(srv.Client())
	if _, err := e.Extract(context.Background(), Source{URL: srv.URL}); err == nil {
		t.Fatal("expected error on 404 response")
	}
}

func TestHTMLExtractorKindAndCPUBound(t *testing.T) {
	e := NewHTMLExtractor(nil)
	if e.Kind() != "url_extraction" {
		t.Fatalf("unexpected kind: %v", e.Kind())
	}
	if !e.IsCPUBound() {
		t.Fatal("html parsing should be treated as CPU-bound")
	}
}
