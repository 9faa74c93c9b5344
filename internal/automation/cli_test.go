package automation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/henryperkins/mcprag-sub001/internal/cachefile"
	"github.com/henryperkins/mcprag-sub001/internal/chunk"
	"github.com/henryperkins/mcprag-sub001/internal/embed"
	"github.com/henryperkins/mcprag-sub001/internal/ratelimit"
	"github.com/henryperkins/mcprag-sub001/internal/restclient"
	"github.com/henryperkins/mcprag-sub001/internal/search"
	"github.com/henryperkins/mcprag-sub001/pkg/config"
)

func writeTestRepo(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"main.go":      "package main\n\nfunc main() {\n\tprintln(\"hello\")\n}\n",
		"util.go":      "package main\n\nfunc helper() int {\n\treturn 42\n}\n",
		"README.md":    "# test repo\n",
		".git/HEAD":    "ref: refs/heads/main\n",
	}
	for rel, content := range files {
		full := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(full, []byte(content), 0644); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}
	return root
}

func TestIngestRepositoryUploadsChunkedDocuments(t *testing.T) {
	repoRoot := writeTestRepo(t)

	var uploadedCount int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/indexes/test-idx/docs/index" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		var body struct {
			Value []map[string]any `json:"value"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		uploadedCount += len(body.Value)

		resp := struct {
			Value []search.UploadResultItem `json:"value"`
		}{}
		for range body.Value {
			resp.Value = append(resp.Value, search.UploadResultItem{Status: true})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	client, err := restclient.New(restclient.Config{Endpoint: srv.URL, APIKey: "secret"})
	if err != nil {
		t.Fatalf("restclient.New failed: %v", err)
	}
	defer client.Close()

	ops := search.New(client)
	data := NewDataAutomation(ops, ratelimit.New(4, 0))
	langTable := chunk.NewLanguageTable()
	processor := chunk.NewProcessor(&config.IndexingConfig{
		BatchSize:         100,
		ParallelWorkers:   2,
		MaxFileSizeMB:     1,
		MaxChunkSizeBytes: 8000,
	}, langTable)

	cli := NewCLIAutomation(processor, embed.NullProvider{}, data, nil, langTable, config.EmbeddingConfig{Dimensions: 1536})

	filterCfg := config.FilterConfig{
		RespectGitignore: false,
		DefaultExcludes:  []string{".git"},
	}

	result, err := cli.IngestRepository(context.Background(), "test-idx", "test-repo", repoRoot, filterCfg, 50, true, false)
	if err != nil {
		t.Fatalf("IngestRepository failed: %v", err)
	}
	if result.FilesIndexed == 0 {
		t.Fatalf("expected at least one file to be indexed, got 0 (scanned=%d skipped=%d)", result.FilesScanned, result.FilesSkipped)
	}
	if result.Upload == nil {
		t.Fatalf("expected a non-nil upload report")
	}
	if uploadedCount != result.ChunksTotal {
		t.Fatalf("expected every produced chunk to reach the upload endpoint: uploaded=%d chunks_total=%d", uploadedCount, result.ChunksTotal)
	}
}

func TestIngestRepositorySkipsUnchangedFilesWithCache(t *testing.T) {
	repoRoot := writeTestRepo(t)
	cacheDir := t.TempDir()

	cache, err := cachefile.NewManager(cacheDir)
	if err != nil {
		t.Fatalf("cachefile.NewManager failed: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(struct {
			Value []search.UploadResultItem `json:"value"`
		}{})
	}))
	defer srv.Close()
	client, err := restclient.New(restclient.Config{Endpoint: srv.URL, APIKey: "secret"})
	if err != nil {
		t.Fatalf("restclient.New failed: %v", err)
	}
	defer client.Close()

	ops := search.New(client)
	data := NewDataAutomation(ops, ratelimit.New(4, 0))
	langTable := chunk.NewLanguageTable()
	processor := chunk.NewProcessor(&config.IndexingConfig{
		BatchSize:         100,
		ParallelWorkers:   2,
		MaxFileSizeMB:     1,
		MaxChunkSizeBytes: 8000,
	}, langTable)
	cli := NewCLIAutomation(processor, embed.NullProvider{}, data, cache, langTable, config.EmbeddingConfig{Dimensions: 1536})

	filterCfg := config.FilterConfig{RespectGitignore: false, DefaultExcludes: []string{".git"}}

	first, err := cli.IngestRepository(context.Background(), "test-idx", "test-repo", repoRoot, filterCfg, 50, true, false)
	if err != nil {
		t.Fatalf("first IngestRepository failed: %v", err)
	}
	if first.FilesIndexed == 0 {
		t.Fatalf("expected files indexed on first pass")
	}

	second, err := cli.IngestRepository(context.Background(), "test-idx", "test-repo", repoRoot, filterCfg, 50, true, false)
	if err != nil {
		t.Fatalf("second IngestRepository failed: %v", err)
	}
	if second.FilesSkipped == 0 {
		t.Fatalf("expected unchanged files to be skipped on the second pass, got skipped=0 indexed=%d", second.FilesIndexed)
	}
}
