package automation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/henryperkins/mcprag-sub001/internal/restclient"
	"github.com/henryperkins/mcprag-sub001/internal/search"
	"github.com/henryperkins/mcprag-sub001/pkg/config"
)

func newTestHealthMonitor(t *testing.T, handler http.HandlerFunc) (*HealthMonitor, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	client, err := restclient.New(restclient.Config{Endpoint: srv.URL, APIKey: "secret"})
	if err != nil {
		t.Fatalf("restclient.New failed: %v", err)
	}
	t.Cleanup(srv.Close)
	t.Cleanup(client.Close)

	ops := search.New(client)
	data := NewDataAutomation(ops, nil)
	_ = data
	reindex := NewReindexAutomation(ops, nil, nil, &config.IndexingConfig{}, config.FilterConfig{}, "idx", 1536)
	indexer := NewIndexerAutomation(ops)
	return NewHealthMonitor(ops, reindex, indexer), srv
}

func TestServiceHealthFlagsQuotaPressure(t *testing.T) {
	monitor, _ := newTestHealthMonitor(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/servicestats" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(search.ServiceStatistics{
			Counters: map[string]search.Counter{
				"documentCount": {Usage: 50, Quota: 1000},
				"indexesCount":  {Usage: 19, Quota: 20},
			},
		})
	})

	health := monitor.ServiceHealth(context.Background())
	if health.Status != StatusWarning {
		t.Fatalf("expected warning status at 95%% quota usage, got %s", health.Status)
	}
	if len(health.Issues) != 1 {
		t.Fatalf("expected exactly one issue, got %d: %+v", len(health.Issues), health.Issues)
	}
}

func TestServiceHealthErrorOnRequestFailure(t *testing.T) {
	monitor, _ := newTestHealthMonitor(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	health := monitor.ServiceHealth(context.Background())
	if health.Status != StatusError {
		t.Fatalf("expected error status on request failure, got %s", health.Status)
	}
}

func TestFullReportAppliesWorstOfPrecedence(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/servicestats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(search.ServiceStatistics{})
	})
	mux.HandleFunc("/indexes/idx", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(search.Schema{
			Name: "idx",
			Fields: []search.Field{
				{Name: "id", Type: "Edm.String", Key: true},
			},
		})
	})
	mux.HandleFunc("/indexes/idx/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(search.IndexStatistics{DocumentCount: 10})
	})
	mux.HandleFunc("/indexers/bad-indexer/status", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()
	client, err := restclient.New(restclient.Config{Endpoint: srv.URL, APIKey: "secret"})
	if err != nil {
		t.Fatalf("restclient.New failed: %v", err)
	}
	defer client.Close()

	ops := search.New(client)
	reindex := NewReindexAutomation(ops, nil, nil, &config.IndexingConfig{}, config.FilterConfig{}, "idx", 1536)
	indexer := NewIndexerAutomation(ops)
	monitor := NewHealthMonitor(ops, reindex, indexer)

	report := monitor.FullReport(context.Background(), []string{"idx"}, []string{"bad-indexer"}, 24)
	if report.Overall != StatusCritical {
		t.Fatalf("expected overall=critical (index is missing required fields), got %s", report.Overall)
	}
	if len(report.Indexers) != 1 || report.Indexers[0].Status != StatusError {
		t.Fatalf("expected the unreachable indexer to report StatusError, got %+v", report.Indexers)
	}
}

func TestWorstOfPrecedenceOrdering(t *testing.T) {
	cases := []struct {
		a, b, want Status
	}{
		{StatusHealthy, StatusWarning, StatusWarning},
		{StatusWarning, StatusError, StatusError},
		{StatusError, StatusCritical, StatusCritical},
		{StatusCritical, StatusHealthy, StatusCritical},
	}
	for _, c := range cases {
		if got := worstOf(c.a, c.b); got != c.want {
			t.Errorf("worstOf(%s, %s) = %s, want %s", c.a, c.b, got, c.want)
		}
	}
}

func TestIndexerHealthStatusClassification(t *testing.T) {
	now := time.Now().UTC()
	mux := http.NewServeMux()
	mux.HandleFunc("/indexers/my-indexer/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(search.IndexerStatus{
			Status: "idle",
			ExecutionHistory: []search.IndexerExecutionResult{
				{Status: search.ExecSuccess, StartTime: now.Format(time.RFC3339)},
				{Status: search.ExecError, StartTime: now.Format(time.RFC3339)},
			},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	client, err := restclient.New(restclient.Config{Endpoint: srv.URL, APIKey: "secret"})
	if err != nil {
		t.Fatalf("restclient.New failed: %v", err)
	}
	defer client.Close()

	ops := search.New(client)
	indexer := NewIndexerAutomation(ops)
	monitor := NewHealthMonitor(ops, NewReindexAutomation(ops, nil, nil, &config.IndexingConfig{}, config.FilterConfig{}, "idx", 1536), indexer)

	report, status := monitor.IndexerHealthStatus(context.Background(), "my-indexer", 24)
	if report == nil {
		t.Fatalf("expected a non-nil report")
	}
	if status != StatusCritical {
		t.Fatalf("expected critical status at 50%% success rate, got %s", status)
	}
}
