// Package main is a standalone Pipeline Engine worker: it claims jobs from
// the Metadata Store and processes them exactly like the engine embedded in
// cmd/server, for scaling processing capacity horizontally. Its Progress
// Bus is local to this process, so SSE subscribers connected to cmd/server
// won't see live pushes for jobs this process claims; polling GET /jobs/{id}
// still reflects accurate state, since progress is persisted to the
// Metadata Store regardless of which process advances it.
package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/dharsanguruparan/ingestkit/internal/blobstore"
	"github.com/dharsanguruparan/ingestkit/internal/chunker"
	"github.com/dharsanguruparan/ingestkit/internal/config"
	"github.com/dharsanguruparan/ingestkit/internal/database"
	"github.com/dharsanguruparan/ingestkit/internal/embeddingclient"
	"github.com/dharsanguruparan/ingestkit/internal/extractor"
	"github.com/dharsanguruparan/ingestkit/internal/pipeline"
	"github.com/dharsanguruparan/ingestkit/internal/progressbus"
	"github.com/dharsanguruparan/ingestkit/internal/repository"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}
	defer pool.Close()
	if err := database.EnsureSchema(ctx, pool, cfg.VectorDimension); err != nil {
		log.Fatalf("ensure schema: %v", err)
	}

	files := repository.NewFileRepository(pool)
	jobs := repository.NewJobRepository(pool)
	chunks := repository.NewChunkRepository(pool)
	embeddings := repository.NewEmbeddingRepository(pool)

	blobs, err := blobstore.New(cfg)
	if err != nil {
		log.Fatalf("init blob store: %v", err)
	}
	if err := blobs.EnsureBuckets(ctx); err != nil {
		log.Fatalf("ensure buckets: %v", err)
	}

	embedder := embeddingclient.New(embeddingclient.Config{
		Endpoint:   cfg.EmbeddingEndpoint,
		APIKey:     cfg.EmbeddingAPIKey,
		Model:      cfg.EmbeddingModel,
		RPS:        cfg.EmbeddingRPS,
		MaxRetries: cfg.EmbeddingMaxRetries,
	})

	registry := extractor.NewRegistry(
		extractor.NewPDFExtractor(),
		extractor.NewHTMLExtractor(http.DefaultClient),
		extractor.NewYoutubeExtractor(http.DefaultClient),
	)
	registry.RegisterMime("application/pdf", extractor.NewPDFExtractor())
	registry.RegisterMime("text/plain; charset=utf-8", extractor.NewPlaintextExtractor())
	registry.RegisterMime("text/plain", extractor.NewPlaintextExtractor())

	bus := progressbus.New(cfg.ProgressBufferSize)

	engine := pipeline.New(pipeline.Config{
		Pool:         pool,
		Jobs:         jobs,
		Files:        files,
		Chunks:       chunks,
		Embeddings:   embeddings,
		Blobs:        blobs,
		Extractors:   registry,
		Embedder:     embedder,
		Bus:          bus,
		ChunkPolicy:  chunker.Policy{TargetTokens: cfg.ChunkTargetTokens, OverlapTokens: cfg.ChunkOverlapTokens, HardCeiling: cfg.ChunkHardCeiling},
		WorkerCount:  cfg.WorkerPoolSize,
		CPUPoolSize:  cfg.CPUPoolSize,
		ModelName:    cfg.EmbeddingModel,
		ModelVersion: cfg.EmbeddingVersion,
	})

	log.Printf("ingestkit worker running with %d pipeline workers", cfg.WorkerPoolSize)
	engine.Run(ctx)
	log.Printf("ingestkit worker stopped")
}
