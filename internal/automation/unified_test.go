package automation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/henryperkins/mcprag-sub001/internal/restclient"
	"github.com/henryperkins/mcprag-sub001/internal/schema"
	"github.com/henryperkins/mcprag-sub001/internal/search"
)

func TestSchemaEquivalentDetectsFieldDifferences(t *testing.T) {
	base := &search.Schema{
		Name: "idx",
		Fields: []search.Field{
			{Name: "id", Type: "Edm.String", Key: true, Retrievable: true},
			{Name: "content", Type: "Edm.String", Searchable: true, Retrievable: true},
		},
	}
	identical := &search.Schema{
		Name: "idx",
		Fields: []search.Field{
			{Name: "content", Type: "Edm.String", Searchable: true, Retrievable: true},
			{Name: "id", Type: "Edm.String", Key: true, Retrievable: true},
		},
	}
	if !schemaEquivalent(base, identical) {
		t.Fatalf("expected schemas with the same fields in different order to be equivalent")
	}

	changedType := &search.Schema{
		Name: "idx",
		Fields: []search.Field{
			{Name: "id", Type: "Edm.String", Key: true, Retrievable: true},
			{Name: "content", Type: "Edm.Int32", Searchable: true, Retrievable: true},
		},
	}
	if schemaEquivalent(base, changedType) {
		t.Fatalf("expected a field type change to make schemas non-equivalent")
	}

	extraField := &search.Schema{
		Name: "idx",
		Fields: append(append([]search.Field{}, base.Fields...), search.Field{Name: "extra", Type: "Edm.String"}),
	}
	if schemaEquivalent(base, extraField) {
		t.Fatalf("expected an added field to make schemas non-equivalent")
	}

	if schemaEquivalent(nil, base) || schemaEquivalent(base, nil) {
		t.Fatalf("expected nil schemas to never be equivalent")
	}
}

func TestEnsureIndexExistsSkipsNegotiationWhenEquivalent(t *testing.T) {
	desired := schema.NewBuilder(nil, "semantic-config").Generate(context.Background(), "idx", []schema.Feature{schema.FeatureFacetedSearch}, nil)

	var negotiateCalled bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/indexes/idx":
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(desired)
		case r.Method == http.MethodPut && r.URL.Path == "/indexes/idx":
			negotiateCalled = true
			w.WriteHeader(http.StatusOK)
		default:
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	client, err := restclient.New(restclient.Config{Endpoint: srv.URL, APIKey: "secret"})
	if err != nil {
		t.Fatalf("restclient.New failed: %v", err)
	}
	defer client.Close()

	ops := search.New(client)
	u := &Unified{
		Ops:           ops,
		SchemaBuilder: schema.NewBuilder(ops, "semantic-config"),
		Negotiator:    schema.NewNegotiator(ops),
		DefaultIndex:  "idx",
	}

	result, err := u.EnsureIndexExists(context.Background(), []schema.Feature{schema.FeatureFacetedSearch}, nil)
	if err != nil {
		t.Fatalf("EnsureIndexExists failed: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success")
	}
	if negotiateCalled {
		t.Fatalf("expected no PUT when the existing schema already matches desired")
	}
}

func TestEnsureIndexExistsNegotiatesWhenMissing(t *testing.T) {
	var putCalled bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/indexes/idx":
			w.WriteHeader(http.StatusNotFound)
		case r.Method == http.MethodPut && r.URL.Path == "/indexes/idx":
			putCalled = true
			w.Header().Set("Content-Type", "application/json")
			var schemaBody search.Schema
			json.NewDecoder(r.Body).Decode(&schemaBody)
			json.NewEncoder(w).Encode(schemaBody)
		default:
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	client, err := restclient.New(restclient.Config{Endpoint: srv.URL, APIKey: "secret"})
	if err != nil {
		t.Fatalf("restclient.New failed: %v", err)
	}
	defer client.Close()

	ops := search.New(client)
	u := &Unified{
		Ops:           ops,
		SchemaBuilder: schema.NewBuilder(ops, "semantic-config"),
		Negotiator:    schema.NewNegotiator(ops),
		DefaultIndex:  "idx",
	}

	result, err := u.EnsureIndexExists(context.Background(), []schema.Feature{schema.FeatureFacetedSearch}, nil)
	if err != nil {
		t.Fatalf("EnsureIndexExists failed: %v", err)
	}
	if !putCalled {
		t.Fatalf("expected a PUT to create the missing index")
	}
	if !result.Success {
		t.Fatalf("expected success")
	}
}
