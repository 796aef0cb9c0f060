package search

import (
	"context"
	"errors"
	"testing"

	"github.com/dharsanguruparan/ingestkit/internal/repository"
)

type fakeEmbedder struct {
	vectors [][]float32
	err     error
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vectors, nil
}

type fakeSearcher struct {
	results []repository.SimilarityResult
	err     error
}

func (f *fakeSearcher) SearchSimilar(ctx context.Context, query []float32, modelName, fileID string, limit int) ([]repository.SimilarityResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

func TestQueryRejectsEmptyQuery(t *testing.T) {
	e := &Engine{embedder: &fakeEmbedder{}, embeddings: &fakeSearcher{}, modelName: "m"}
	if _, err := e.Query(context.Background(), "", "", 10, nil); err == nil {
		t.Fatal("expected error for empty query")
	} else if !errors.Is(err, ErrEmptyQuery) {
		t.Fatalf("expected ErrEmptyQuery, got %v", err)
	}
}

func TestQueryConvertsDistanceToSimilarity(t *testing.T) {
	page := 2
	section := "Intro"
	e := &Engine{
		embedder: &fakeEmbedder{vectors: [][]float32{{0.1, 0.2}}},
		embeddings: &fakeSearcher{results: []repository.SimilarityResult{
			{ChunkID: "c1", FileID: "f1", Text: "hello", PageNumber: &page, SectionPath: &section, Distance: 0},
			{ChunkID: "c2", FileID: "f1", Text: "world", Distance: 1},
		}},
		modelName: "m",
	}

	resp, err := e.Query(context.Background(), "what is hello", "", 10, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Total != 2 || len(resp.Results) != 2 {
		t.Fatalf("expected 2 results, got %+v", resp)
	}
	if resp.Results[0].Similarity != 1 {
		t.Fatalf("expected similarity 1 for distance 0, got %v", resp.Results[0].Similarity)
	}
	if resp.Results[1].Similarity != 0.5 {
		t.Fatalf("expected similarity 0.5 for distance 1, got %v", resp.Results[1].Similarity)
	}
	if resp.Results[0].PageNumber == nil || *resp.Results[0].PageNumber != 2 {
		t.Fatalf("expected page number preserved, got %v", resp.Results[0].PageNumber)
	}
}

func TestQueryDefaultsLimitWhenNonPositive(t *testing.T) {
	var capturedLimit int
	e := &Engine{
		embedder: &fakeEmbedder{vectors: [][]float32{{0.1}}},
		embeddings: &captureLimitSearcher{capture: &capturedLimit},
		modelName: "m",
	}
	if _, err := e.Query(context.Background(), "q", "", 0, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if capturedLimit != 10 {
		t.Fatalf("expected default limit 10, got %d", capturedLimit)
	}
}

func TestQueryCapsLimitAtMax(t *testing.T) {
	var capturedLimit int
	e := &Engine{
		embedder:   &fakeEmbedder{vectors: [][]float32{{0.1}}},
		embeddings: &captureLimitSearcher{capture: &capturedLimit},
		modelName:  "m",
	}
	if _, err := e.Query(context.Background(), "q", "", 1000, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if capturedLimit != MaxLimit {
		t.Fatalf("expected limit capped at %d, got %d", MaxLimit, capturedLimit)
	}
}

func TestQueryFiltersBelowThreshold(t *testing.T) {
	threshold := 0.9
	e := &Engine{
		embedder: &fakeEmbedder{vectors: [][]float32{{0.1}}},
		embeddings: &fakeSearcher{results: []repository.SimilarityResult{
			{ChunkID: "close", Distance: 0},   // similarity 1.0
			{ChunkID: "far", Distance: 9},     // similarity 0.1
		}},
		modelName: "m",
	}
	resp, err := e.Query(context.Background(), "q", "", 10, &threshold)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Total != 1 || resp.Results[0].ChunkID != "close" {
		t.Fatalf("expected only the above-threshold result, got %+v", resp.Results)
	}
}

type captureLimitSearcher struct {
	capture *int
}

func (c *captureLimitSearcher) SearchSimilar(ctx context.Context, query []float32, modelName, fileID string, limit int) ([]repository.SimilarityResult, error) {
	*c.capture = limit
	return nil, nil
}

func TestQueryPropagatesEmbedError(t *testing.T) {
	e := &Engine{embedder: &fakeEmbedder{err: errors.New("boom")}, embeddings: &fakeSearcher{}, modelName: "m"}
	if _, err := e.Query(context.Background(), "q", "", 10, nil); err == nil {
		t.Fatal("expected error propagated from embedder")
	} else if !errors.Is(err, ErrSearchFailed) {
		t.Fatalf("expected ErrSearchFailed, got %v", err)
	}
}

func TestQueryPropagatesSearchError(t *testing.T) {
	e := &Engine{
		embedder:   &fakeEmbedder{vectors: [][]float32{{0.1}}},
		embeddings: &fakeSearcher{err: errors.New("boom")},
		modelName:  "m",
	}
	if _, err := e.Query(context.Background(), "q", "", 10, nil); err == nil {
		t.Fatal("expected error propagated from similarity search")
	} else if !errors.Is(err, ErrSearchFailed) {
		t.Fatalf("expected ErrSearchFailed, got %v", err)
	}
}
