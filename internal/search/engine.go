// Package search implements the Search Engine: it embeds a query string and
// asks the Metadata Store for the nearest chunks by vector distance.
package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dharsanguruparan/ingestkit/internal/embeddingclient"
	"github.com/dharsanguruparan/ingestkit/internal/repository"
)

// ErrEmptyQuery is returned when the query text is blank.
var ErrEmptyQuery = errors.New("empty query")

// ErrSearchFailed wraps embedding or similarity-search failures that should
// surface as a single stable code rather than a generic internal error.
var ErrSearchFailed = errors.New("search failed")

// MaxLimit is the hard ceiling on results per query, regardless of what the
// caller asks for.
const MaxLimit = 100

const defaultLimit = 10

// Result is one matched chunk, with distance converted to a bounded
// similarity score so callers don't need to know the underlying metric.
type Result struct {
	ChunkID     string  `json:"chunkId"`
	FileID      string  `json:"fileId"`
	Text        string  `json:"text"`
	PageNumber  *int    `json:"pageNumber,omitempty"`
	SectionPath *string `json:"sectionPath,omitempty"`
	Similarity  float64 `json:"similarity"`
}

// Response is the full outcome of a search request.
type Response struct {
	Results   []Result      `json:"results"`
	Total     int           `json:"total"`
	Elapsed   time.Duration `json:"-"`
	ElapsedMs int64         `json:"elapsedMs"`
}

// embedder is the subset of embeddingclient.Client the Search Engine needs.
type embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// similaritySearcher is the subset of repository.EmbeddingRepository the
// Search Engine needs, so it can be exercised with a fake in tests.
type similaritySearcher interface {
	SearchSimilar(ctx context.Context, query []float32, modelName, fileID string, limit int) ([]repository.SimilarityResult, error)
}

// Engine wires the embedding client and the embeddings repository together.
type Engine struct {
	embedder   embedder
	embeddings similaritySearcher
	modelName  string
}

func New(embedder *embeddingclient.Client, embeddings *repository.EmbeddingRepository, modelName string) *Engine {
	return &Engine{embedder: embedder, embeddings: embeddings, modelName: modelName}
}

// Query runs a similarity search for queryText, optionally scoped to one
// file, returning at most limit results (capped at MaxLimit) ordered by
// descending similarity. When threshold is non-nil, results whose
// similarity falls below it are dropped. An empty query is rejected
// outright rather than silently returning nothing useful.
func (e *Engine) Query(ctx context.Context, queryText string, fileID string, limit int, threshold *float64) (*Response, error) {
	if queryText == "" {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	start := time.Now()
	vectors, err := e.embedder.Embed(ctx, []string{queryText})
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %v", ErrSearchFailed, err)
	}

	rows, err := e.embeddings.SearchSimilar(ctx, vectors[0], e.modelName, fileID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: similarity search: %v", ErrSearchFailed, err)
	}

	results := make([]Result, 0, len(rows))
	for _, row := range rows {
		similarity := 1 / (1 + row.Distance)
		if threshold != nil && similarity < *threshold {
			continue
		}
		results = append(results, Result{
			ChunkID:     row.ChunkID,
			FileID:      row.FileID,
			Text:        row.Text,
			PageNumber:  row.PageNumber,
			SectionPath: row.SectionPath,
			Similarity:  similarity,
		})
	}

	elapsed := time.Since(start)
	return &Response{Results: results, Total: len(results), Elapsed: elapsed, ElapsedMs: elapsed.Milliseconds()}, nil
}
