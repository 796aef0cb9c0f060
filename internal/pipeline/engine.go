// Package pipeline implements the Pipeline Engine: a pool of worker
// goroutines that claim queued jobs from the Metadata Store, run them
// through extraction, chunking and embedding, and persist the result. The
// Metadata Store's SKIP LOCKED claim query is the only coordination point,
// so any number of worker processes can run against it safely without a
// separate job broker.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dharsanguruparan/ingestkit/internal/blobstore"
	"github.com/dharsanguruparan/ingestkit/internal/chunker"
	"github.com/dharsanguruparan/ingestkit/internal/embeddingclient"
	"github.com/dharsanguruparan/ingestkit/internal/extractor"
	"github.com/dharsanguruparan/ingestkit/internal/model"
	"github.com/dharsanguruparan/ingestkit/internal/progressbus"
	"github.com/dharsanguruparan/ingestkit/internal/repository"
)

// Progress weights mark where each stage starts within a job's overall
// [0,1] progress, matching the boundaries the HTTP API and SSE streams
// report to callers.
const (
	weightAcquired  = 0.05
	weightExtracted = 0.40
	weightChunked   = 0.50
	weightEmbedded  = 0.95
	weightDone      = 1.0

	pollInterval     = 500 * time.Millisecond
	embeddingBatch   = 16
	embeddingModel   = "default"
)

// Engine runs the worker pool.
type Engine struct {
	pool       *pgxpool.Pool
	jobs       *repository.JobRepository
	files      *repository.FileRepository
	chunks     *repository.ChunkRepository
	embeddings *repository.EmbeddingRepository
	blobs      *blobstore.Store
	extractors *extractor.Registry
	embedder   *embeddingclient.Client
	bus        *progressbus.Bus
	policy     chunker.Policy

	embeddingModelName    string
	embeddingModelVersion string

	workerCount int
	cpuSem      chan struct{}

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// Config bundles the Engine's dependencies.
type Config struct {
	Pool          *pgxpool.Pool
	Jobs          *repository.JobRepository
	Files         *repository.FileRepository
	Chunks        *repository.ChunkRepository
	Embeddings    *repository.EmbeddingRepository
	Blobs         *blobstore.Store
	Extractors    *extractor.Registry
	Embedder      *embeddingclient.Client
	Bus           *progressbus.Bus
	ChunkPolicy   chunker.Policy
	WorkerCount   int
	CPUPoolSize   int
	ModelName     string
	ModelVersion  string
}

// New constructs an Engine ready to Run.
func New(cfg Config) *Engine {
	workers := cfg.WorkerCount
	if workers <= 0 {
		workers = 1
	}
	cpuSize := cfg.CPUPoolSize
	if cpuSize <= 0 {
		cpuSize = 1
	}
	return &Engine{
		pool:                  cfg.Pool,
		jobs:                  cfg.Jobs,
		files:                 cfg.Files,
		chunks:                cfg.Chunks,
		embeddings:            cfg.Embeddings,
		blobs:                 cfg.Blobs,
		extractors:            cfg.Extractors,
		embedder:              cfg.Embedder,
		bus:                   cfg.Bus,
		policy:                cfg.ChunkPolicy,
		embeddingModelName:    cfg.ModelName,
		embeddingModelVersion: cfg.ModelVersion,
		workerCount:           workers,
		cpuSem:                make(chan struct{}, cpuSize),
		cancels:               make(map[string]context.CancelFunc),
	}
}

// Run starts the worker pool and blocks until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < e.workerCount; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			e.runWorker(ctx, id)
		}(i)
	}
	wg.Wait()
}

// runWorker polls for one job at a time and runs it to completion before
// claiming again, so the number of jobs in 'processing' owned by this
// process never exceeds one per worker goroutine.
func (e *Engine) runWorker(ctx context.Context, id int) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			job, err := e.jobs.Claim(ctx)
			if err != nil {
				log.Printf("pipeline worker %d: claim job: %v", id, err)
				continue
			}
			if job == nil {
				continue
			}
			e.runJob(ctx, job)
		}
	}
}

// Cancel requests cancellation of an in-flight job. It is a no-op if the job
// isn't currently owned by this process (e.g. it's queued, not yet claimed,
// or running on another worker process); the caller should still persist
// the cancellation request via the Job Store.
func (e *Engine) Cancel(jobID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cancel, ok := e.cancels[jobID]; ok {
		cancel()
	}
}

func (e *Engine) runJob(parent context.Context, job *model.Job) {
	jobCtx, cancel := context.WithCancel(parent)
	e.mu.Lock()
	e.cancels[job.ID] = cancel
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.cancels, job.ID)
		e.mu.Unlock()
		cancel()
	}()

	defer func() {
		if r := recover(); r != nil {
			reason := fmt.Sprintf("failed:internal:panic: %v", r)
			_ = e.jobs.Fail(parent, job.ID, reason)
			e.publish(job.ID, model.JobFailed, 0, "", nil, reason)
		}
	}()

	start := time.Now()
	if err := e.process(jobCtx, job); err != nil {
		if errors.Is(jobCtx.Err(), context.Canceled) {
			e.publish(job.ID, model.JobCancelled, job.Progress, "", nil, "")
			return
		}
		reason := classifyFailure(err)
		if failErr := e.jobs.Fail(parent, job.ID, reason); failErr != nil {
			log.Printf("pipeline: mark job %s failed: %v", job.ID, failErr)
		}
		e.publish(job.ID, model.JobFailed, job.Progress, "", nil, reason)
		return
	}
	log.Printf("pipeline: job %s completed in %s", job.ID, time.Since(start))
}

func classifyFailure(err error) string {
	return fmt.Sprintf("failed:%s", err.Error())
}

func (e *Engine) publish(jobID string, status model.JobStatus, progress float64, message string, result *model.JobResult, errMsg string) {
	e.bus.Publish(model.ProgressEvent{
		JobID:    jobID,
		Status:   status,
		Progress: progress,
		Message:  message,
		Result:   result,
		Error:    errMsg,
	})
}

// advance persists progress to the Job Store (bumping the caller's tracked
// version on success) and broadcasts it on the Progress Bus. A version
// conflict means another actor (typically a cancellation request) raced
// ahead; the caller surfaces that as an error so processing stops instead
// of clobbering the newer state.
func (e *Engine) advance(ctx context.Context, job *model.Job, progress float64, message string) error {
	if err := e.jobs.UpdateProgress(ctx, job.ID, job.Version, progress); err != nil {
		return err
	}
	job.Version++
	job.Progress = progress
	e.publish(job.ID, model.JobProcessing, progress, message, nil, "")
	return nil
}

func (e *Engine) process(ctx context.Context, job *model.Job) error {
	e.publish(job.ID, model.JobProcessing, 0, "acquiring source", nil, "")

	src, mimeType, err := e.acquireSource(ctx, job)
	if err != nil {
		return fmt.Errorf("acquisition:%w", err)
	}
	if err := e.checkCancelled(ctx); err != nil {
		return err
	}
	if err := e.advance(ctx, job, weightAcquired, "extracting text"); err != nil {
		return fmt.Errorf("acquisition:%w", err)
	}

	ex, err := e.extractors.For(job.Kind, mimeType)
	if err != nil {
		return fmt.Errorf("extraction:%w", err)
	}

	fragments, err := e.runExtraction(ctx, ex, src)
	if err != nil {
		return fmt.Errorf("extraction:%w", err)
	}
	if err := e.checkCancelled(ctx); err != nil {
		return err
	}
	totalLen := 0
	var fullText strings.Builder
	for _, f := range fragments {
		totalLen += len(f.Text)
		fullText.WriteString(f.Text)
		fullText.WriteString("\n")
	}
	textKey, err := e.blobs.UploadText(ctx, []byte(fullText.String()))
	if err != nil {
		return fmt.Errorf("extraction:upload extracted text: %w", err)
	}
	if err := e.advance(ctx, job, weightExtracted, "chunking text"); err != nil {
		return fmt.Errorf("extraction:%w", err)
	}

	drafts := chunker.Split(fragments, e.policy)
	if err := e.checkCancelled(ctx); err != nil {
		return err
	}
	if err := e.advance(ctx, job, weightChunked, "generating embeddings"); err != nil {
		return fmt.Errorf("chunking:%w", err)
	}

	chunks := make([]*model.Chunk, len(drafts))
	for i, d := range drafts {
		chunks[i] = &model.Chunk{
			ID:          uuid.NewString(),
			FileID:      job.FileID,
			Text:        d.Text,
			ChunkIndex:  i,
			TokenCount:  d.TokenCount,
			PageNumber:  d.PageNumber,
			SectionPath: d.SectionPath,
		}
	}

	embeddings, err := e.embedChunks(ctx, job, chunks)
	if err != nil {
		return fmt.Errorf("embedding:%w", err)
	}
	if err := e.checkCancelled(ctx); err != nil {
		return err
	}
	if err := e.advance(ctx, job, weightEmbedded, "persisting results"); err != nil {
		return fmt.Errorf("embedding:%w", err)
	}

	result := &model.JobResult{
		ChunksCreated:       len(chunks),
		EmbeddingsCreated:   len(embeddings),
		ProcessingTimeMs:    time.Since(job.CreatedAt).Milliseconds(),
		ExtractedTextLength: totalLen,
		TextBlobKey:         textKey,
	}
	if err := e.persist(ctx, job, chunks, embeddings, result); err != nil {
		return fmt.Errorf("persistence:%w", err)
	}

	e.publish(job.ID, model.JobCompleted, weightDone, "done", result, "")
	return nil
}

func (e *Engine) checkCancelled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}

// acquireSource resolves the bytes or URL a job's extractor needs.
func (e *Engine) acquireSource(ctx context.Context, job *model.Job) (extractor.Source, string, error) {
	switch job.Kind {
	case model.JobFileProcessing:
		file, err := e.files.Get(ctx, job.FileID)
		if err != nil {
			return extractor.Source{}, "", fmt.Errorf("load file: %w", err)
		}
		data, err := e.blobs.DownloadRaw(ctx, file.ContentHash)
		if err != nil {
			return extractor.Source{}, "", fmt.Errorf("download raw: %w", err)
		}
		return extractor.Source{Data: data, MimeType: file.MimeType}, file.MimeType, nil
	case model.JobURLExtraction, model.JobYoutubeExtraction:
		url := job.Payload["url"]
		if url == "" {
			return extractor.Source{}, "", fmt.Errorf("job payload missing url")
		}
		return extractor.Source{URL: url}, "", nil
	default:
		return extractor.Source{}, "", fmt.Errorf("unsupported job kind %q", job.Kind)
	}
}

// runExtraction executes an extractor, routing CPU-bound ones through the
// bounded worker pool so heavy parsing doesn't starve I/O-bound stages.
func (e *Engine) runExtraction(ctx context.Context, ex extractor.Extractor, src extractor.Source) ([]extractor.Fragment, error) {
	if !ex.IsCPUBound() {
		return ex.Extract(ctx, src)
	}

	select {
	case e.cpuSem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-e.cpuSem }()

	return ex.Extract(ctx, src)
}

// embedChunks embeds chunk text in batches, checking for cancellation
// between each batch so a cancelled job doesn't burn through its remaining
// quota before stopping.
func (e *Engine) embedChunks(ctx context.Context, job *model.Job, chunks []*model.Chunk) ([]*model.Embedding, error) {
	var out []*model.Embedding
	for start := 0; start < len(chunks); start += embeddingBatch {
		if err := e.checkCancelled(ctx); err != nil {
			return nil, err
		}
		end := start + embeddingBatch
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]
		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}
		vectors, err := e.embedder.Embed(ctx, texts)
		if err != nil {
			return nil, err
		}
		for i, c := range batch {
			var version *string
			if e.embeddingModelVersion != "" {
				v := e.embeddingModelVersion
				version = &v
			}
			out = append(out, &model.Embedding{
				ChunkID:      c.ID,
				Vector:       vectors[i],
				ModelName:    e.embeddingModelName,
				ModelVersion: version,
			})
		}
		progress := weightChunked + (weightEmbedded-weightChunked)*float64(end)/float64(len(chunks))
		e.publish(job.ID, model.JobProcessing, progress, "generating embeddings", nil, "")
	}
	return out, nil
}

// persist writes chunks, embeddings and the job's completion in a single
// transaction: a failure partway through must not leave orphaned chunks
// with no embeddings, or a completed job with no persisted chunks.
func (e *Engine) persist(ctx context.Context, job *model.Job, chunks []*model.Chunk, embeddings []*model.Embedding, result *model.JobResult) error {
	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := e.chunks.SaveBatch(ctx, tx, chunks); err != nil {
		return err
	}
	if err := e.embeddings.SaveBatch(ctx, tx, embeddings); err != nil {
		return err
	}
	if err := e.jobs.Complete(ctx, tx, job.ID, job.Version, result); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
