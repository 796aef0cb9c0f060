package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/dharsanguruparan/ingestkit/internal/model"
)

// EmbeddingRepository persists embeddings and serves the similarity queries
// the Search Engine issues. At most one row exists per (chunk_id,
// model_name, model_version); SaveBatch upserts on that constraint instead
// of relying on schema alone to enforce it.
type EmbeddingRepository struct {
	pool *pgxpool.Pool
}

func NewEmbeddingRepository(pool *pgxpool.Pool) *EmbeddingRepository {
	return &EmbeddingRepository{pool: pool}
}

// SaveBatch upserts embeddings within the caller's transaction.
func (r *EmbeddingRepository) SaveBatch(ctx context.Context, tx pgx.Tx, embeddings []*model.Embedding) error {
	if len(embeddings) == 0 {
		return nil
	}
	now := time.Now().UTC()
	batch := &pgx.Batch{}
	for _, e := range embeddings {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		e.GeneratedAt = now
		version := ""
		if e.ModelVersion != nil {
			version = *e.ModelVersion
		}
		params, err := json.Marshal(e.GenerationParams)
		if err != nil {
			return fmt.Errorf("marshal generation params: %w", err)
		}
		batch.Queue(`
			INSERT INTO embeddings (id, content_chunk_id, embedding, model_name, model_version, generated_at, generation_params)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
			ON CONFLICT (content_chunk_id, model_name, model_version)
			DO UPDATE SET embedding = EXCLUDED.embedding, generated_at = EXCLUDED.generated_at, generation_params = EXCLUDED.generation_params
		`, e.ID, e.ChunkID, pgvector.NewVector(e.Vector), e.ModelName, version, e.GeneratedAt, params)
	}
	br := tx.SendBatch(ctx, batch)
	defer br.Close()
	for range embeddings {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("upsert embedding: %w", err)
		}
	}
	return nil
}

// SimilarityResult pairs a chunk with its distance to a query vector.
type SimilarityResult struct {
	ChunkID    string
	FileID     string
	Text       string
	PageNumber *int
	SectionPath *string
	Distance   float64
}

// SearchSimilar returns the nearest chunks to the query vector under L2
// distance, optionally restricted to one file, ordered nearest-first.
func (r *EmbeddingRepository) SearchSimilar(ctx context.Context, query []float32, modelName string, fileID string, limit int) ([]SimilarityResult, error) {
	qv := pgvector.NewVector(query)
	args := []any{qv, modelName}
	fileFilter := ""
	if fileID != "" {
		args = append(args, fileID)
		fileFilter = "AND c.file_id = $3"
	}
	args = append(args, limit)
	limitPos := len(args)

	sql := fmt.Sprintf(`
		SELECT c.id, c.file_id, c.chunk_text, c.page_number, c.section_path, e.embedding <-> $1 AS distance
		FROM embeddings e
		JOIN content_chunks c ON c.id = e.content_chunk_id
		WHERE e.model_name = $2 %s
		ORDER BY e.embedding <-> $1 ASC
		LIMIT $%d
	`, fileFilter, limitPos)

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	defer rows.Close()

	var out []SimilarityResult
	for rows.Next() {
		var s SimilarityResult
		if err := rows.Scan(&s.ChunkID, &s.FileID, &s.Text, &s.PageNumber, &s.SectionPath, &s.Distance); err != nil {
			return nil, fmt.Errorf("scan similarity row: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// CountByFile returns how many embeddings exist for a file's chunks.
func (r *EmbeddingRepository) CountByFile(ctx context.Context, fileID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM embeddings e JOIN content_chunks c ON c.id = e.content_chunk_id WHERE c.file_id = $1
	`, fileID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count embeddings: %w", err)
	}
	return n, nil
}
