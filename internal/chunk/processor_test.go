package chunk

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/henryperkins/mcprag-sub001/pkg/config"
)

func testConfig() *config.IndexingConfig {
	return &config.IndexingConfig{
		MaxFileSizeMB:              1,
		ParallelWorkers:            2,
		MaxChunkSizeBytes:          8000,
		EnableHierarchicalChunking: true,
	}
}

func TestProcessFilePythonProducesFunctionChunks(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mod.py")
	src := "def add(a, b):\n    \"\"\"Add two numbers.\"\"\"\n    return a + b\n\n\ndef sub(a, b):\n    return a - b\n"
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}

	p := NewProcessor(testConfig(), NewLanguageTable())
	result, err := p.ProcessFile(context.Background(), "acme/repo", "mod.py", path)
	if err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}
	if result.ParseFailed {
		t.Fatalf("expected successful AST parse")
	}
	if len(result.Documents) != 2 {
		t.Fatalf("expected 2 function chunks, got %d", len(result.Documents))
	}
	if result.Documents[0].FunctionName != "add" || result.Documents[1].FunctionName != "sub" {
		t.Fatalf("unexpected function names: %q, %q", result.Documents[0].FunctionName, result.Documents[1].FunctionName)
	}
	if result.Documents[0].Docstring == "" {
		t.Fatalf("expected docstring to be extracted for add()")
	}
}

func TestProcessFileParseFailureFallsBackToWholeFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.py")
	src := "def (:\n    this is not python\n}}}\n"
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}

	p := NewProcessor(testConfig(), NewLanguageTable())
	result, err := p.ProcessFile(context.Background(), "acme/repo", "broken.py", path)
	if err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}
	if len(result.Documents) != 1 {
		t.Fatalf("expected exactly one whole-file fallback chunk, got %d", len(result.Documents))
	}
	if result.Documents[0].ChunkType != "file" {
		t.Fatalf("expected chunk_type=file fallback, got %q", result.Documents[0].ChunkType)
	}
}

func TestProcessFileNonPrimaryLanguageIsAlwaysWholeFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "main.go")
	src := "package main\n\nfunc main() {}\n\nfunc helper() {}\n"
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}

	p := NewProcessor(testConfig(), NewLanguageTable())
	result, err := p.ProcessFile(context.Background(), "acme/repo", "main.go", path)
	if err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}
	if len(result.Documents) != 1 || result.Documents[0].ChunkType != "file" {
		t.Fatalf("non-primary languages must always produce exactly one whole-file chunk, got %d docs", len(result.Documents))
	}
}

func TestProcessRepositoryTraversalOrderIsDeterministic(t *testing.T) {
	dir := t.TempDir()
	mustWrite(t, filepath.Join(dir, "a.py"), "def a():\n    pass\n")
	mustWrite(t, filepath.Join(dir, "b.py"), "def b():\n    pass\n")
	if err := os.Mkdir(filepath.Join(dir, "venv"), 0o755); err != nil {
		t.Fatal(err)
	}
	mustWrite(t, filepath.Join(dir, "venv", "ignored.py"), "def ignored():\n    pass\n")

	p := NewProcessor(testConfig(), NewLanguageTable())
	filterCfg := config.FilterConfig{
		DefaultExcludes:  []string{".git", "node_modules", "__pycache__", "venv", ".venv", "dist", "build"},
		RespectGitignore: false,
	}

	first, scan, err := p.ProcessRepository(context.Background(), "acme/repo", dir, filterCfg)
	if err != nil {
		t.Fatalf("ProcessRepository: %v", err)
	}
	if len(scan.Files) != 2 || len(first) != 2 {
		t.Fatalf("expected venv/ignored.py to be skipped, leaving a.py and b.py, got %d files", len(first))
	}

	second, _, err := p.ProcessRepository(context.Background(), "acme/repo", dir, filterCfg)
	if err != nil {
		t.Fatalf("ProcessRepository (second run): %v", err)
	}

	if len(first) != len(second) {
		t.Fatalf("expected stable file count across runs, got %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].RelativePath != second[i].RelativePath {
			t.Fatalf("traversal order not stable at index %d: %q vs %q", i, first[i].RelativePath, second[i].RelativePath)
		}
		for j := range first[i].Documents {
			if first[i].Documents[j].ID != second[i].Documents[j].ID {
				t.Fatalf("document id not stable across runs for %s[%d]", first[i].RelativePath, j)
			}
		}
	}
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
