package extractor

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
)

// fakeYoutubeTransport serves a canned watch page on the first request and
// a canned timedtext XML document on the second, regardless of host, so
// Extract can be exercised without reaching the real YouTube endpoints.
type fakeYoutubeTransport struct {
	calls int
}

func (f *fakeYoutubeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	f.calls++
	var body string
	switch f.calls {
	case 1:
		body = `var ytInitialPlayerResponse = {"captions":{"captionTracks":[{"baseUrl":"https://example.com/timedtext?lang=en","vssId":"a.en"}]}};`
	default:
		body = `<?xml version="1.0" encoding="utf-8"?>
<transcript>
  <text start="0.5" dur="2.0">Intro</text>
  <text start="150.0" dur="3.0">Two thirty mark</text>
</transcript>`
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}, nil
}

func TestYoutubeExtractorPageNumberIsWholeMinutes(t *testing.T) {
	client := &http.Client{Transport: &fakeYoutubeTransport{}}
	e := NewYoutubeExtractor(client)

	fragments, err := e.Extract(context.Background(), Source{URL: "https://www.youtube.com/watch?v=abc123"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fragments) != 2 {
		t.Fatalf("expected 2 fragments, got %d", len(fragments))
	}
	if got := *fragments[0].PageNumber; got != 0 {
		t.Fatalf("caption at 0:00.5 expected page 0, got %d", got)
	}
	if got := *fragments[1].PageNumber; got != 2 {
		t.Fatalf("caption at 2:30 expected page 2 (whole minutes), got %d", got)
	}
}

func TestVideoIDFromURLWatchForm(t *testing.T) {
	id, err := videoIDFromURL("https://www.youtube.com/watch?v=abc123&t=5s")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "abc123" {
		t.Fatalf("expected abc123, got %q", id)
	}
}

func TestVideoIDFromURLShortForm(t *testing.T) {
	id, err := videoIDFromURL("https://youtu.be/xyz789")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "xyz789" {
		t.Fatalf("expected xyz789, got %q", id)
	}
}

func TestVideoIDFromURLMissingID(t *testing.T) {
	if _, err := videoIDFromURL("https://www.youtube.com/watch"); err == nil {
		t.Fatal("expected error when no video id present")
	}
}

func TestUnescapeEntities(t *testing.T) {
	in := "Tom &amp; Jerry said &quot;hi&quot; &lt;loudly&gt; &#39;today&#39;"
	want := `Tom & Jerry said "hi" <loudly> 'today'`
	if got := unescapeEntities(in); got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestExtractBaseURL(t *testing.T) {
	track := []byte(`{"baseUrl":"https://example.com/timedtext?v=abc&lang=en","vssId":"a.en"}`)
	got, err := extractBaseURL(track)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `https://example.com/timedtext?v=abc&lang=en`
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestExtractBaseURLMissing(t *testing.T) {
	if _, err := extractBaseURL([]byte(`{"vssId":"a.en"}`)); err == nil {
		t.Fatal("expected error when baseUrl is absent")
	}
}

func TestYoutubeExtractorKindAndCPUBound(t *testing.T) {
	e := NewYoutubeExtractor(nil)
	if e.Kind() != "youtube_extraction" {
		t.Fatalf("unexpected kind: %v", e.Kind())
	}
	if e.IsCPUBound() {
		t.Fatal("youtube extraction is network-bound, not CPU-bound")
	}
}
