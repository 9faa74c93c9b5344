package chunk

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/henryperkins/mcprag-sub001/internal/search"
	"github.com/henryperkins/mcprag-sub001/pkg/config"
	"github.com/henryperkins/mcprag-sub001/pkg/ignore"
)

// Processor is FileProcessor (spec.md §4.4): walks a repository root and
// yields chunk documents, dispatching by file extension and parallelizing
// across files with golang.org/x/sync/errgroup (SPEC_FULL.md §B), in place
// of the reference implementation's hand-rolled channel/WaitGroup pool in
// internal/indexer/indexer.go.
type Processor struct {
	cfg           *config.IndexingConfig
	langTable     *LanguageTable
	pythonChunker *PythonChunker
	tokenSplitter *TokenSplitter
}

// maxChunkTokens bounds an individual function/class chunk so it stays well
// under typical embedding-model input limits; oversized nodes are split by
// TokenSplitter rather than silently truncated.
const maxChunkTokens = 2000

func NewProcessor(cfg *config.IndexingConfig, langTable *LanguageTable) *Processor {
	splitter, err := NewTokenSplitter()
	if err != nil {
		// cl100k_base ships with tiktoken-go; this only fails if the
		// encoding asset is missing from the build, in which case oversized
		// chunks fall back to whole-chunk truncation at upload time.
		splitter = nil
	}
	return &Processor{
		cfg:           cfg,
		langTable:     langTable,
		pythonChunker: NewPythonChunker(),
		tokenSplitter: splitter,
	}
}

// ProcessRepository scans repoRoot and processes every indexable file
// concurrently, honoring spec.md §4.4's root-inside-excluded-dir refusal
// and the gitignore/default-exclude traversal rules.
func (p *Processor) ProcessRepository(ctx context.Context, repo, repoRoot string, filterCfg config.FilterConfig) ([]FileResult, *ScanResult, error) {
	matcher := ignore.NewFromConfig(filterCfg.DefaultExcludes, filterCfg.PathExclusions, filterCfg.RespectGitignore, repoRoot)

	if !filterCfg.AllowExternalRoots && matcher.RootInsideExcluded(repoRoot) {
		return nil, nil, fmt.Errorf("repository root %q is itself inside an excluded directory; override explicitly to index it", repoRoot)
	}

	scanner := NewScanner(p.cfg, matcher, p.langTable)
	scan, err := scanner.Scan(repoRoot)
	if err != nil {
		return nil, nil, err
	}

	results := make([]FileResult, len(scan.Files))

	workers := p.cfg.ParallelWorkers
	if workers <= 0 {
		workers = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, path := range scan.Files {
		i, path := i, path
		g.Go(func() error {
			relPath, err := filepath.Rel(repoRoot, path)
			if err != nil {
				relPath = path
			}
			result, err := p.ProcessFile(gctx, repo, relPath, path)
			if err != nil {
				return fmt.Errorf("process %s: %w", relPath, err)
			}
			results[i] = *result
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, scan, err
	}

	return results, scan, nil
}

// ProcessFile reads one file and produces its chunk documents, per
// spec.md §4.4's chunking rules.
func (p *Processor) ProcessFile(ctx context.Context, repo, relativePath, absolutePath string) (*FileResult, error) {
	info, err := os.Stat(absolutePath)
	if err != nil {
		return nil, fmt.Errorf("stat: %w", err)
	}

	data, err := os.ReadFile(absolutePath)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	content := string(data)

	lang, _ := p.langTable.Detect(absolutePath)
	totalLines := strings.Count(content, "\n") + 1

	var rawChunks []rawChunk
	parseFailed := false

	if lang.Name == PrimaryLanguage {
		rc, err := p.pythonChunker.Chunk(ctx, content, p.cfg.MaxChunkSizeBytes, p.cfg.EnableHierarchicalChunking)
		if err != nil || len(rc) == 0 {
			parseFailed = err != nil
			rawChunks = []rawChunk{fileChunk(content, totalLines)}
		} else {
			rawChunks = p.splitOversized(rc)
		}
	} else {
		rawChunks = []rawChunk{fileChunk(content, totalLines)}
	}

	docs := buildDocuments(repo, relativePath, lang.Name, rawChunks, info.ModTime())

	return &FileResult{
		RelativePath: relativePath,
		Language:     lang.Name,
		Documents:    docs,
		ParseFailed:  parseFailed,
	}, nil
}

// splitOversized runs function/class chunks through the token splitter when
// it's available and a node exceeds maxChunkTokens; whole-file chunks are
// never split here, since spec.md §3 pins start_line=1/end_line=total for
// chunk_type=file.
func (p *Processor) splitOversized(raw []rawChunk) []rawChunk {
	if p.tokenSplitter == nil {
		return raw
	}
	out := make([]rawChunk, 0, len(raw))
	for _, rc := range raw {
		if rc.ChunkType == "file" {
			out = append(out, rc)
			continue
		}
		out = append(out, p.tokenSplitter.Split(rc, maxChunkTokens, minOverlapLines)...)
	}
	return out
}

// Stats aggregates chunk_type counts across a set of FileResults.
func Stats(results []FileResult) map[search.ChunkType]int {
	stats := make(map[search.ChunkType]int)
	for _, r := range results {
		for _, d := range r.Documents {
			stats[d.ChunkType]++
		}
	}
	return stats
}
