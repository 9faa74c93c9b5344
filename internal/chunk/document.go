package chunk

import (
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/henryperkins/mcprag-sub001/internal/search"
)

// FileResult is FileProcessor's per-file output: the chunk documents
// extracted from one file plus whether the primary-language AST parse
// succeeded (for scan-level statistics/health reporting).
type FileResult struct {
	RelativePath string
	Language     string
	Documents    []*search.Document
	ParseFailed  bool
}

// buildDocuments turns rawChunks (or, for non-primary languages, a single
// whole-file fallback) into search.Document records, assigning chunk_id/id
// in traversal order starting at 0, per spec.md §4.4's determinism
// invariant: re-processing a byte-identical file yields the same chunks in
// the same order and thus the same ids.
func buildDocuments(repo, relativePath, language string, rawChunks []rawChunk, lastModified time.Time) []*search.Document {
	docs := make([]*search.Document, 0, len(rawChunks))
	for i, rc := range rawChunks {
		chunkType := search.ChunkTypeFunction
		switch rc.ChunkType {
		case "class":
			chunkType = search.ChunkTypeClass
		case "file":
			chunkType = search.ChunkTypeFile
		}

		doc := &search.Document{
			ID:            search.DocumentID(repo, relativePath, i),
			Content:       rc.Content,
			Repository:    repo,
			FilePath:      relativePath,
			FileExtension: strings.ToLower(filepath.Ext(relativePath)),
			Language:      language,
			ChunkType:     chunkType,
			ChunkID:       chunkIDFor(relativePath, i),
			StartLine:     rc.StartLine,
			EndLine:       rc.EndLine,
			FunctionName:  rc.FunctionName,
			ClassName:     rc.ClassName,
			Signature:     rc.Signature,
			Docstring:     rc.Docstring,
			LastModified:  lastModified.UTC().Format(time.RFC3339),
			ParentChunkID: rc.ParentChunkID,
		}
		doc.EnforceSizeLimit()
		docs = append(docs, doc)
	}
	return docs
}

func chunkIDFor(relativePath string, index int) string {
	return relativePath + ":" + strconv.Itoa(index)
}

// fileChunk builds the single whole-file rawChunk used for non-primary
// languages and for primary-language parse failures, per spec.md §4.4.
func fileChunk(content string, totalLines int) rawChunk {
	return rawChunk{
		ChunkType: "file",
		Content:   content,
		StartLine: 1,
		EndLine:   totalLines,
	}
}
