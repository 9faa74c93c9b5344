package restclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRequestSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("api-version") != defaultAPIVersion {
			t.Errorf("missing api-version query param")
		}
		if r.Header.Get("api-key") != "secret" {
			t.Errorf("missing api-key header")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c, err := New(Config{Endpoint: srv.URL, APIKey: "secret"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	var out struct {
		OK bool `json:"ok"`
	}
	if err := c.Request(context.Background(), http.MethodGet, "/indexes/foo", nil, nil, &out); err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if !out.OK {
		t.Fatalf("expected ok=true")
	}
}

func TestRequestRetriesThenFails(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, err := New(Config{Endpoint: srv.URL, APIKey: "secret", RetryAttempts: 3, RetryBaseDelay: 1})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	err = c.Request(context.Background(), http.MethodGet, "/indexes/foo", nil, nil, nil)
	if err == nil {
		t.Fatalf("expected error")
	}
	if attempts < 2 {
		t.Fatalf("expected multiple attempts, got %d", attempts)
	}
}

func TestMissingEndpoint(t *testing.T) {
	if _, err := New(Config{APIKey: "x"}); err == nil {
		t.Fatalf("expected ConfigError for missing endpoint")
	}
}

func TestRequestDoesNotRetryDocumentsPost(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, err := New(Config{Endpoint: srv.URL, APIKey: "secret", RetryAttempts: 3, RetryBaseDelay: 1})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	err = c.Request(context.Background(), http.MethodPost, "/indexes/foo/docs/index", nil, map[string]any{"value": []any{}}, nil)
	if err == nil {
		t.Fatalf("expected error")
	}
	if attempts != 1 {
		t.Fatalf("expected exactly one attempt for documents POST, got %d", attempts)
	}
}
