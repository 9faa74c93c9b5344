// Command search-test drives automation.Unified's HybridSearcher against a
// live index and prints the fused, ranked results. Per spec.md §1, thin CLI
// front-ends are out of scope as collaborators; this binary exercises
// internal/hybrid for manual verification only.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/henryperkins/mcprag-sub001/internal/automation"
	"github.com/henryperkins/mcprag-sub001/internal/filter"
	"github.com/henryperkins/mcprag-sub001/pkg/config"
)

func main() {
	query := flag.String("query", "JWT token validation", "Search query")
	repository := flag.String("repo", "", "Restrict results to this repository")
	language := flag.String("language", "", "Restrict results to this language")
	topK := flag.Int("top", 10, "Number of results to return")
	flag.Parse()

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

	var clauses []filter.Clause
	if *repository != "" {
		clauses = append(clauses, u.FilterManager.Repository(*repository))
	}
	if *language != "" {
		clauses = append(clauses, u.FilterManager.Language(*language))
	}
	baseFilter := u.FilterManager.CombineAnd(clauses...)

	slog.Info("starting hybrid search", "query", *query, "index", cfg.Service.IndexName, "top_k", *topK)

	start := time.Now()
	results, err := u.Search.Search(context.Background(), *query, baseFilter, *topK)
	if err != nil {
		slog.Error("search failed", "error", err)
		os.Exit(1)
	}
	duration := time.Since(start)

	slog.Info("search completed", "duration", duration, "results_found", len(results))
	if len(results) == 0 {
		slog.Warn("no results found")
		return
	}

	for i, r := range results {
		doc := r.Document
		location := fmt.Sprintf("%s:%d-%d", doc.FilePath, doc.StartLine, doc.EndLine)
		if doc.FunctionName != "" {
			location += fmt.Sprintf(" (in %s)", doc.FunctionName)
		} else if doc.ClassName != "" {
			location += fmt.Sprintf(" (in class %s)", doc.ClassName)
		}

		slog.Info("result",
			"rank", i+1,
			"id", r.ID,
			"location", location,
			"score", r.Score,
			"exact_boost", r.ExactBoost,
			"language", doc.Language,
			"chunk_type", doc.ChunkType)
	}
}
