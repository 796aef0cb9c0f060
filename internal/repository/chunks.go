package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dharsanguruparan/ingestkit/internal/model"
)

// ChunkRepository persists content_chunks. Chunk indices are unique within
// a file by the unique(file_id, chunk_index) constraint; they are dense and
// 0-based because the pipeline numbers a file's chunks 0..N-1 before
// SaveBatch, not because the schema enforces it.
type ChunkRepository struct {
	pool *pgxpool.Pool
}

func NewChunkRepository(pool *pgxpool.Pool) *ChunkRepository {
	return &ChunkRepository{pool: pool}
}

// SaveBatch inserts all chunks for a file in a single round trip, in
// ascending chunk_index order, using the transaction the caller supplies so
// the pipeline can commit chunks, embeddings and job completion atomically.
func (r *ChunkRepository) SaveBatch(ctx context.Context, tx pgx.Tx, chunks []*model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	now := time.Now().UTC()
	batch := &pgx.Batch{}
	for _, c := range chunks {
		c.CreatedAt = now
		batch.Queue(`
			INSERT INTO content_chunks (id, file_id, chunk_text, chunk_index, token_count, page_number, section_path, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, c.ID, c.FileID, c.Text, c.ChunkIndex, c.TokenCount, c.PageNumber, c.SectionPath, c.CreatedAt)
	}
	br := tx.SendBatch(ctx, batch)
	defer br.Close()
	for range chunks {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("insert chunk: %w", err)
		}
	}
	return nil
}

// ListByFile returns every chunk belonging to a file in index order.
func (r *ChunkRepository) ListByFile(ctx context.Context, fileID string) ([]*model.Chunk, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, file_id, chunk_text, chunk_index, token_count, page_number, section_path, created_at
		FROM content_chunks WHERE file_id = $1 ORDER BY chunk_index ASC
	`, fileID)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	defer rows.Close()

	var out []*model.Chunk
	for rows.Next() {
		var c model.Chunk
		if err := rows.Scan(&c.ID, &c.FileID, &c.Text, &c.ChunkIndex, &c.TokenCount, &c.PageNumber, &c.SectionPath, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

// CountByFile returns how many chunks exist for a file.
func (r *ChunkRepository) CountByFile(ctx context.Context, fileID string) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM content_chunks WHERE file_id = $1`, fileID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return n, nil
}

// Get returns a single chunk by id.
func (r *ChunkRepository) Get(ctx context.Context, id string) (*model.Chunk, error) {
	var c model.Chunk
	err := r.pool.QueryRow(ctx, `
		SELECT id, file_id, chunk_text, chunk_index, token_count, page_number, section_path, created_at
		FROM content_chunks WHERE id = $1
	`, id).Scan(&c.ID, &c.FileID, &c.Text, &c.ChunkIndex, &c.TokenCount, &c.PageNumber, &c.SectionPath, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrChunkNotFound
		}
		return nil, fmt.Errorf("get chunk: %w", err)
	}
	return &c, nil
}
