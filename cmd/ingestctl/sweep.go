package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dharsanguruparan/ingestkit/internal/blobstore"
	"github.com/dharsanguruparan/ingestkit/internal/config"
	"github.com/dharsanguruparan/ingestkit/internal/database"
	"github.com/dharsanguruparan/ingestkit/internal/repository"
)

func newSweepCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete blobs no file or job result still references",
		Long: `sweep reconciles the raw and text buckets against the Metadata Store: any raw
object whose content hash isn't referenced by a file row, and any text object whose key
isn't referenced by a completed job's result, is orphaned and gets removed. Orphans
happen when an upload is retried, a file row is deleted, or a job is cancelled after its
text was already archived.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep(cmd.Context(), dryRun)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report orphaned blobs without deleting them")
	return cmd
}

func runSweep(ctx context.Context, dryRun bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	files := repository.NewFileRepository(pool)
	jobs := repository.NewJobRepository(pool)

	blobs, err := blobstore.New(cfg)
	if err != nil {
		return fmt.Errorf("init blob store: %w", err)
	}

	referencedRaw, err := files.ListAllContentHashes(ctx)
	if err != nil {
		return fmt.Errorf("list referenced content hashes: %w", err)
	}
	referencedText, err := jobs.ListAllTextBlobKeys(ctx)
	if err != nil {
		return fmt.Errorf("list referenced text blob keys: %w", err)
	}

	rawOrphans, err := orphanKeys(ctx, blobs.ListRawKeys, referencedRaw)
	if err != nil {
		return fmt.Errorf("scan raw bucket: %w", err)
	}
	textOrphans, err := orphanKeys(ctx, blobs.ListTextKeys, referencedText)
	if err != nil {
		return fmt.Errorf("scan text bucket: %w", err)
	}

	if len(rawOrphans) == 0 && len(textOrphans) == 0 {
		fmt.Println("sweep: no orphaned blobs found")
		return nil
	}

	for _, key := range rawOrphans {
		if dryRun {
			fmt.Printf("sweep: would delete raw/%s\n", key)
			continue
		}
		if err := blobs.DeleteRaw(ctx, key); err != nil {
			return fmt.Errorf("delete raw object %s: %w", key, err)
		}
		fmt.Printf("sweep: deleted raw/%s\n", key)
	}
	for _, key := range textOrphans {
		if dryRun {
			fmt.Printf("sweep: would delete text/%s\n", key)
			continue
		}
		if err := blobs.DeleteText(ctx, key); err != nil {
			return fmt.Errorf("delete text object %s: %w", key, err)
		}
		fmt.Printf("sweep: deleted text/%s\n", key)
	}
	return nil
}

func orphanKeys(ctx context.Context, list func(context.Context) ([]string, error), referenced map[string]struct{}) ([]string, error) {
	keys, err := list(ctx)
	if err != nil {
		return nil, err
	}
	var orphans []string
	for _, key := range keys {
		if _, ok := referenced[key]; !ok {
			orphans = append(orphans, key)
		}
	}
	return orphans, nil
}
