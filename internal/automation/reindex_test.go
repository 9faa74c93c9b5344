package automation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/henryperkins/mcprag-sub001/internal/restclient"
	"github.com/henryperkins/mcprag-sub001/internal/search"
	"github.com/henryperkins/mcprag-sub001/pkg/config"
)

func TestValidateSchemaFlagsMissingRequiredFields(t *testing.T) {
	r := NewReindexAutomation(nil, nil, nil, &config.IndexingConfig{}, config.FilterConfig{}, "idx", 1536)

	def := &search.Schema{
		Fields: []search.Field{
			{Name: "id", Type: "Edm.String", Key: true},
		},
	}
	issues, warnings := r.validateSchema(def)
	if len(issues) != 1 {
		t.Fatalf("expected one issue for the three missing required fields, got %v", issues)
	}
	if len(warnings) != 0 {
		t.Fatalf("expected no warnings when vector search is disabled, got %v", warnings)
	}
}

func TestValidateSchemaWarnsOnVectorDimensionMismatch(t *testing.T) {
	r := NewReindexAutomation(nil, nil, nil, &config.IndexingConfig{}, config.FilterConfig{}, "idx", 1536)

	def := &search.Schema{
		Fields: []search.Field{
			{Name: "id", Type: "Edm.String", Key: true},
			{Name: "file_path", Type: "Edm.String", Filterable: true},
			{Name: "repository", Type: "Edm.String", Facetable: true},
			{Name: "content", Type: "Edm.String"},
			{Name: "content_vector", Type: "Collection(Edm.Single)", Dimensions: 768},
		},
		VectorSearch: &search.VectorSearch{},
	}
	issues, warnings := r.validateSchema(def)
	if len(issues) != 0 {
		t.Fatalf("expected no issues (all required fields present), got %v", issues)
	}

	found := false
	for _, w := range warnings {
		if w == "content_vector dimensions 768 != expected 1536" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a dimension-mismatch warning, got %v", warnings)
	}
}

func TestValidateSchemaWarnsOnMissingFilterableFacetableAttributes(t *testing.T) {
	r := NewReindexAutomation(nil, nil, nil, &config.IndexingConfig{}, config.FilterConfig{}, "idx", 1536)

	def := &search.Schema{
		Fields: []search.Field{
			{Name: "id", Type: "Edm.String", Key: true},
			{Name: "file_path", Type: "Edm.String"},
			{Name: "repository", Type: "Edm.String"},
			{Name: "content", Type: "Edm.String"},
		},
	}
	_, warnings := r.validateSchema(def)
	if len(warnings) != 2 {
		t.Fatalf("expected warnings for non-filterable file_path and non-facetable repository, got %v", warnings)
	}
}

func TestGetIndexHealthComposesSchemaAndStats(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/indexes/idx", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(search.Schema{
			Name: "idx",
			Fields: []search.Field{
				{Name: "id", Type: "Edm.String", Key: true},
				{Name: "file_path", Type: "Edm.String", Filterable: true},
				{Name: "repository", Type: "Edm.String", Facetable: true},
				{Name: "content", Type: "Edm.String"},
			},
		})
	})
	mux.HandleFunc("/indexes/idx/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(search.IndexStatistics{DocumentCount: 42, StorageSize: 1024})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()
	client, err := restclient.New(restclient.Config{Endpoint: srv.URL, APIKey: "secret"})
	if err != nil {
		t.Fatalf("restclient.New failed: %v", err)
	}
	defer client.Close()

	ops := search.New(client)
	r := NewReindexAutomation(ops, nil, nil, &config.IndexingConfig{}, config.FilterConfig{}, "idx", 1536)

	health, err := r.GetIndexHealth(context.Background(), "idx")
	if err != nil {
		t.Fatalf("GetIndexHealth failed: %v", err)
	}
	if health.DocumentCount != 42 || health.StorageSizeBytes != 1024 {
		t.Fatalf("expected stats to carry through, got %+v", health)
	}
	if !health.SchemaValid {
		t.Fatalf("expected a fully-fielded schema to be valid, issues=%v", health.SchemaIssues)
	}
}

func TestGetIndexHealthUsesDefaultIndexWhenNameEmpty(t *testing.T) {
	var sawSchemaRequest bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/indexes/default-idx":
			sawSchemaRequest = true
			json.NewEncoder(w).Encode(search.Schema{Name: "default-idx"})
		case "/indexes/default-idx/stats":
			json.NewEncoder(w).Encode(search.IndexStatistics{})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()
	client, err := restclient.New(restclient.Config{Endpoint: srv.URL, APIKey: "secret"})
	if err != nil {
		t.Fatalf("restclient.New failed: %v", err)
	}
	defer client.Close()

	ops := search.New(client)
	r := NewReindexAutomation(ops, nil, nil, &config.IndexingConfig{}, config.FilterConfig{}, "default-idx", 1536)

	if _, err := r.GetIndexHealth(context.Background(), ""); err != nil {
		t.Fatalf("GetIndexHealth failed: %v", err)
	}
	if !sawSchemaRequest {
		t.Fatalf("expected empty indexName to fall back to defaultIndex and request its schema")
	}
}
