package automation

import (
	"context"
	"log"
	"path/filepath"
	"time"

	"github.com/henryperkins/mcprag-sub001/internal/cachefile"
	"github.com/henryperkins/mcprag-sub001/internal/chunk"
	"github.com/henryperkins/mcprag-sub001/internal/embed"
	"github.com/henryperkins/mcprag-sub001/internal/search"
	"github.com/henryperkins/mcprag-sub001/pkg/config"
)

// CLIAutomation is the "repo ingestion orchestrator used by tooling" named
// in spec.md §2's component table (not the CLI front-end itself, which
// spec.md §1 places out of scope as an external collaborator). Grounded on
// original_source/enhanced_rag/azure_integration/automation/cli_manager.py.
type CLIAutomation struct {
	processor *chunk.Processor
	embedder  embed.Provider
	data      *DataAutomation
	cache     *cachefile.Manager
	langTable *chunk.LanguageTable
	embedCfg  config.EmbeddingConfig
}

func NewCLIAutomation(processor *chunk.Processor, embedder embed.Provider, data *DataAutomation, cache *cachefile.Manager, langTable *chunk.LanguageTable, embedCfg config.EmbeddingConfig) *CLIAutomation {
	return &CLIAutomation{
		processor: processor,
		embedder:  embedder,
		data:      data,
		cache:     cache,
		langTable: langTable,
		embedCfg:  embedCfg,
	}
}

// IngestResult summarizes one repository ingestion run.
type IngestResult struct {
	FilesScanned     int
	FilesIndexed     int
	FilesSkipped     int
	FilesParseFailed int
	ChunksTotal      int
	ElapsedSeconds   float64
	Upload           *BulkUploadReport
}

// IngestRepository walks repoRoot, chunks every indexable file, embeds the
// chunks that lack a vector, and bulk-uploads the resulting documents, per
// spec.md §2's "CLIAutomation: repo ingestion orchestrator" and the
// FileProcessor -> (EmbeddingProvider + DataAutomation) -> SearchOperations
// data flow in spec.md §2. If force is false and a file-hash cache is
// configured, byte-identical files since the last run are skipped (an
// incremental-reindex optimization, advisory only: cachefile.Manager is
// process-local per spec.md §3's embedding-cache note, generalized here to
// file hashes).
func (c *CLIAutomation) IngestRepository(ctx context.Context, indexName, repo, repoRoot string, filterCfg config.FilterConfig, batchSize int, merge, force bool) (*IngestResult, error) {
	start := time.Now()
	result := &IngestResult{}

	if c.cache != nil {
		if err := c.cache.Load(repoRoot); err != nil {
			log.Printf("cli: failed to load file-hash cache for %s: %v", repoRoot, err)
		}
	}

	files, scan, err := c.processor.ProcessRepository(ctx, repo, repoRoot, filterCfg)
	if err != nil {
		return nil, err
	}
	result.FilesScanned = scan.TotalFiles

	docs := make(chan *search.Document, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(docs)
		for _, fr := range files {
			if fr.ParseFailed {
				result.FilesParseFailed++
			}

			if !force && c.cache != nil {
				needsReindex, err := c.cache.NeedsReindex(filepath.Join(repoRoot, fr.RelativePath))
				if err == nil && !needsReindex {
					result.FilesSkipped++
					continue
				}
			}

			for _, doc := range fr.Documents {
				c.embedDocument(ctx, doc)
				select {
				case docs <- doc:
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				}
			}

			result.FilesIndexed++
			result.ChunksTotal += len(fr.Documents)

			if c.cache != nil {
				if err := c.cache.Update(filepath.Join(repoRoot, fr.RelativePath), len(fr.Documents)); err != nil {
					log.Printf("cli: failed to update file-hash cache for %s: %v", fr.RelativePath, err)
				}
			}
		}
	}()

	report, uploadErr := c.data.BulkUpload(ctx, indexName, docs, batchSize, merge, nil)
	if uploadErr != nil {
		return nil, uploadErr
	}
	select {
	case err := <-errCh:
		if err != nil {
			return nil, err
		}
	default:
	}
	result.Upload = report

	if c.cache != nil {
		if err := c.cache.Save(); err != nil {
			log.Printf("cli: failed to persist file-hash cache for %s: %v", repoRoot, err)
		}
	}

	result.ElapsedSeconds = time.Since(start).Seconds()
	return result, nil
}

// embedDocument fills in a document's content_vector using EmbedCode when a
// function/class signature or docstring is available as context, falling
// back to Embed on bare content, per spec.md §4.5. A provider failure
// leaves the document without a vector rather than failing the ingestion,
// per spec.md §8's "An embedding provider failure mid-batch produces
// partial upload (documents without vectors)".
func (c *CLIAutomation) embedDocument(ctx context.Context, doc *search.Document) {
	if c.embedder == nil {
		return
	}

	context_ := doc.Signature
	if context_ == "" {
		context_ = doc.Docstring
	}

	var (
		vec []float32
		err error
	)
	if context_ != "" {
		vec, err = c.embedder.EmbedCode(ctx, doc.Content, context_)
	} else {
		vec, err = c.embedder.Embed(ctx, doc.Content)
	}
	if err != nil {
		return
	}
	if len(vec) != c.embedCfg.Dimensions {
		log.Printf("cli: embedding dimension mismatch for %s (got %d, want %d), leaving document unvectorized", doc.ChunkID, len(vec), c.embedCfg.Dimensions)
		return
	}
	doc.ContentVector = vec
}

// LanguageNames exposes the shared language table for tooling that lists
// supported languages, replacing cli_manager.py's own duplicate table
// (DESIGN.md Open Question decision 4).
func (c *CLIAutomation) LanguageNames() []string {
	return c.langTable.Names()
}
