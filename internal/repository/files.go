// Package repository wraps all SQL used throughout the API and worker
// processes. Each file groups the queries for one entity; all of them share
// the same pgx pool and so the same Metadata Store transactionally.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dharsanguruparan/ingestkit/internal/model"
)

// ErrNotFound is the general "no such row" sentinel; callers that need to
// report which entity was missing should prefer the entity-specific
// sentinels below, which all satisfy errors.Is(err, ErrNotFound) too.
var ErrNotFound = errors.New("repository: not found")

var (
	ErrFileNotFound      = fmt.Errorf("file: %w", ErrNotFound)
	ErrJobNotFound       = fmt.Errorf("job: %w", ErrNotFound)
	ErrChunkNotFound     = fmt.Errorf("chunk: %w", ErrNotFound)
	ErrEmbeddingNotFound = fmt.Errorf("embedding: %w", ErrNotFound)
)

// FileRepository persists files and derives their processing status from the
// most recent job row rather than storing status redundantly on the file.
type FileRepository struct {
	pool *pgxpool.Pool
}

func NewFileRepository(pool *pgxpool.Pool) *FileRepository {
	return &FileRepository{pool: pool}
}

// Create inserts a new file row.
func (r *FileRepository) Create(ctx context.Context, f *model.File) error {
	now := time.Now().UTC()
	f.CreatedAt = now
	f.UpdatedAt = now
	meta, err := json.Marshal(f.Metadata)
	if err != nil {
		return fmt.Errorf("marshal file metadata: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO files (id, name, mime_type, size_bytes, content_hash, metadata, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, f.ID, f.Name, f.MimeType, f.SizeBytes, f.ContentHash, meta, f.CreatedAt, f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert file: %w", err)
	}
	return nil
}

// Get returns a file by id, with Status populated from its latest job (if
// any); a file with no jobs yet reports an empty status.
func (r *FileRepository) Get(ctx context.Context, id string) (*model.File, error) {
	var f model.File
	var meta []byte
	row := r.pool.QueryRow(ctx, `
		SELECT f.id, f.name, f.mime_type, f.size_bytes, f.content_hash, f.metadata, f.created_at, f.updated_at,
			COALESCE((SELECT j.status FROM processing_jobs j WHERE j.file_id = f.id ORDER BY j.created_at DESC LIMIT 1), '')
		FROM files f WHERE f.id = $1
	`, id)
	var status string
	if err := row.Scan(&f.ID, &f.Name, &f.MimeType, &f.SizeBytes, &f.ContentHash, &meta, &f.CreatedAt, &f.UpdatedAt, &status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrFileNotFound
		}
		return nil, fmt.Errorf("select file: %w", err)
	}
	f.Status = status
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &f.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal file metadata: %w", err)
		}
	}
	return &f, nil
}

// GetByContentHash looks up an existing file with identical content, letting
// callers skip re-uploading bytes the blob store already has.
func (r *FileRepository) GetByContentHash(ctx context.Context, hash string) (*model.File, error) {
	var id string
	err := r.pool.QueryRow(ctx, `SELECT id FROM files WHERE content_hash = $1 ORDER BY created_at DESC LIMIT 1`, hash).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrFileNotFound
		}
		return nil, fmt.Errorf("select file by hash: %w", err)
	}
	return r.Get(ctx, id)
}

// List returns files ordered by newest first, paginated.
func (r *FileRepository) List(ctx context.Context, limit, offset int) ([]*model.File, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT f.id, f.name, f.mime_type, f.size_bytes, f.content_hash, f.metadata, f.created_at, f.updated_at,
			COALESCE((SELECT j.status FROM processing_jobs j WHERE j.file_id = f.id ORDER BY j.created_at DESC LIMIT 1), '')
		FROM files f ORDER BY f.created_at DESC LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	var out []*model.File
	for rows.Next() {
		var f model.File
		var meta []byte
		var status string
		if err := rows.Scan(&f.ID, &f.Name, &f.MimeType, &f.SizeBytes, &f.ContentHash, &meta, &f.CreatedAt, &f.UpdatedAt, &status); err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		f.Status = status
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &f.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal file metadata: %w", err)
			}
		}
		out = append(out, &f)
	}
	return out, rows.Err()
}

// ListAllContentHashes returns every content hash currently referenced by a
// file row, for reconciling against blob store contents during a sweep.
func (r *FileRepository) ListAllContentHashes(ctx context.Context) (map[string]struct{}, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT content_hash FROM files WHERE content_hash != ''`)
	if err != nil {
		return nil, fmt.Errorf("list content hashes: %w", err)
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var hash string
		if err := rows.Scan(&hash); err != nil {
			return nil, fmt.Errorf("scan content hash: %w", err)
		}
		out[hash] = struct{}{}
	}
	return out, rows.Err()
}

// Update changes a file's mutable fields (name, metadata) and returns the
// refreshed row. Content, size and hash are immutable once uploaded.
func (r *FileRepository) Update(ctx context.Context, id string, name string, metadata map[string]string) (*model.File, error) {
	meta, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal file metadata: %w", err)
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE files SET name = $1, metadata = $2, updated_at = now() WHERE id = $3
	`, name, meta, id)
	if err != nil {
		return nil, fmt.Errorf("update file: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrFileNotFound
	}
	return r.Get(ctx, id)
}

// Delete removes a file; content_chunks and processing_jobs cascade via FK.
func (r *FileRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM files WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrFileNotFound
	}
	return nil
}
