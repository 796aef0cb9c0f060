// Package main is the entry point for the ingestkit API server. It serves
// the HTTP surface and, by default, also runs the Pipeline Engine in
// process so the Progress Bus (which is explicitly in-memory) can push live
// SSE updates for jobs it processes. Run cmd/worker alongside it for extra
// processing capacity; jobs claimed by a separate worker process still
// transition correctly through the Metadata Store, but their progress only
// becomes visible here once the worker persists it, not via live push.
package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/dharsanguruparan/ingestkit/internal/blobstore"
	"github.com/dharsanguruparan/ingestkit/internal/chunker"
	"github.com/dharsanguruparan/ingestkit/internal/config"
	"github.com/dharsanguruparan/ingestkit/internal/database"
	"github.com/dharsanguruparan/ingestkit/internal/embeddingclient"
	"github.com/dharsanguruparan/ingestkit/internal/extractor"
	"github.com/dharsanguruparan/ingestkit/internal/httpapi"
	"github.com/dharsanguruparan/ingestkit/internal/pipeline"
	"github.com/dharsanguruparan/ingestkit/internal/progressbus"
	"github.com/dharsanguruparan/ingestkit/internal/repository"
	"github.com/dharsanguruparan/ingestkit/internal/search"
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
	go engine.Run(ctx)

	searchEngine := search.New(embedder, embeddings, cfg.EmbeddingModel)

	srv := httpapi.New(httpapi.Deps{
		Config:     cfg,
		Files:      files,
		Jobs:       jobs,
		Chunks:     chunks,
		Embeddings: embeddings,
		Blobs:      blobs,
		Bus:        bus,
		Search:     searchEngine,
		Engine:     engine,
	})

	log.Printf("ingestkit starting with %d pipeline workers (GOMAXPROCS=%d)", cfg.WorkerPoolSize, runtime.GOMAXPROCS(0))
	if err := srv.Run(ctx); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
