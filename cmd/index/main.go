// Command index is a thin front-end over automation.Unified's ingestion
// pipeline: it loads configuration, ensures the default index exists, and
// walks a repository into it. Per spec.md §1, the CLI front-end itself is
// out of scope as a collaborator; this binary is wiring only.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/henryperkins/mcprag-sub001/internal/automation"
	"github.com/henryperkins/mcprag-sub001/internal/schema"
	"github.com/henryperkins/mcprag-sub001/pkg/config"
)

func main() {
	repoName := flag.String("repo", "", "Repository name (defaults to the root directory's base name)")
	merge := flag.Bool("merge", true, "Use merge-or-upload instead of plain upload")
	force := flag.Bool("force", false, "Reindex every file even if the file-hash cache reports it unchanged")
	flag.Parse()

	repoRoot, err := os.Getwd()
	if err != nil {
		slog.Error("failed to get current directory", "error", err)
		os.Exit(1)
	}
	if args := flag.Args(); len(args) > 0 {
		repoRoot = args[0]
	}
	if *repoName == "" {
		*repoName = filepath.Base(repoRoot)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	u, err := automation.New(cfg)
	if err != nil {
		slog.Error("failed to initialize automation facade", "error", err)
		os.Exit(1)
	}
	defer u.Close()

	ctx := context.Background()

	features := []schema.Feature{schema.FeatureFacetedSearch}
	if cfg.Embedding.Provider != "null" && cfg.Embedding.Provider != "" {
		features = append(features, schema.FeatureVectorSearch)
	}
	if _, err := u.EnsureIndexExists(ctx, features, nil); err != nil {
		slog.Error("failed to ensure index exists", "error", err)
		os.Exit(1)
	}

	slog.Info("starting repository indexing", "repository", repoRoot, "repo_name", *repoName, "index", cfg.Service.IndexName)

	result, err := u.CLI.IngestRepository(ctx, cfg.Service.IndexName, *repoName, repoRoot, cfg.Filter, cfg.Indexing.BatchSize, *merge, *force)
	if err != nil {
		slog.Error("ingestion failed", "error", err)
		os.Exit(1)
	}

	slog.Info("ingestion complete",
		"files_scanned", result.FilesScanned,
		"files_indexed", result.FilesIndexed,
		"files_skipped", result.FilesSkipped,
		"files_parse_failed", result.FilesParseFailed,
		"chunks_total", result.ChunksTotal,
		"elapsed_seconds", result.ElapsedSeconds)

	if result.Upload != nil {
		slog.Info("upload summary",
			"total", result.Upload.TotalProcessed,
			"succeeded", result.Upload.Succeeded,
			"failed", result.Upload.Failed,
			"documents_per_second", result.Upload.DocumentsPerSecond)
		if result.Upload.Failed > 0 {
			os.Exit(1)
		}
	}
}
