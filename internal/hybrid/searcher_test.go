package hybrid

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/henryperkins/mcprag-sub001/internal/embed"
	"github.com/henryperkins/mcprag-sub001/internal/restclient"
	"github.com/henryperkins/mcprag-sub001/internal/search"
	"github.com/henryperkins/mcprag-sub001/pkg/config"
)

func testCfg() config.SearchConfig {
	return config.SearchConfig{
		SemanticWeight:     0.4,
		KeywordWeight:      0.2,
		VectorWeight:       0.4,
		ExactBoost:         0.35,
		DeadlineMS:         3000,
		SemanticConfigName: "semantic-config",
	}
}

func rerankerScore(v float64) *float64 { return &v }

func TestFuseWeightDispatchSemanticVsKeyword(t *testing.T) {
	s := &Searcher{cfg: testCfg()}

	semanticItem := search.SearchResultItem{
		Document:      search.Document{ID: "a"},
		Score:         1.0,
		RerankerScore: rerankerScore(2.5),
	}
	keywordItem := search.SearchResultItem{
		Document: search.Document{ID: "b"},
		Score:    1.0,
	}

	fused := s.fuse([]search.SearchResultItem{semanticItem, keywordItem}, nil, nil, 10)

	byID := map[string]Result{}
	for _, r := range fused {
		byID[r.ID] = r
	}

	if got, want := byID["a"].Score, testCfg().SemanticWeight; got != want {
		t.Fatalf("expected reranked result to get semantic weight %v, got %v", want, got)
	}
	if got, want := byID["b"].Score, testCfg().KeywordWeight; got != want {
		t.Fatalf("expected non-reranked result to get keyword weight %v, got %v", want, got)
	}
}

func TestFuseExactBoostIsAdditiveNotMultiplicative(t *testing.T) {
	s := &Searcher{cfg: testCfg()}

	keywordItem := search.SearchResultItem{
		Document: search.Document{ID: "a"},
		Score:    1.0,
	}
	exactItem := search.SearchResultItem{
		Document: search.Document{ID: "a"},
		Score:    3.0,
	}

	fused := s.fuse([]search.SearchResultItem{keywordItem}, []search.SearchResultItem{exactItem}, nil, 10)
	if len(fused) != 1 {
		t.Fatalf("expected one fused result, got %d", len(fused))
	}

	want := keywordItem.Score*s.cfg.KeywordWeight + exactItem.Score*s.cfg.ExactBoost
	if fused[0].Score != want {
		t.Fatalf("expected additive boost %v, got %v", want, fused[0].Score)
	}
	if !fused[0].ExactBoost {
		t.Fatalf("expected ExactBoost marker to be set")
	}
}

func TestFuseExactBoostFloorsLowScoresAtOne(t *testing.T) {
	s := &Searcher{cfg: testCfg()}

	exactItem := search.SearchResultItem{
		Document: search.Document{ID: "new"},
		Score:    0.1, // below 1.0 floor
	}

	fused := s.fuse(nil, []search.SearchResultItem{exactItem}, nil, 10)
	if len(fused) != 1 {
		t.Fatalf("expected one fused result, got %d", len(fused))
	}
	want := 1.0 * s.cfg.ExactBoost
	if fused[0].Score != want {
		t.Fatalf("expected floored boost %v, got %v", want, fused[0].Score)
	}
}

func TestFuseOrderingIsDeterministicAcrossPassOrder(t *testing.T) {
	s := &Searcher{cfg: testCfg()}

	a := search.SearchResultItem{Document: search.Document{ID: "a"}, Score: 1.0, RerankerScore: rerankerScore(1)}
	b := search.SearchResultItem{Document: search.Document{ID: "b"}, Score: 1.0, RerankerScore: rerankerScore(1)}
	vec := search.SearchResultItem{Document: search.Document{ID: "c"}, Score: 2.0}

	fused1 := s.fuse([]search.SearchResultItem{a, b}, nil, []search.SearchResultItem{vec}, 10)
	fused2 := s.fuse([]search.SearchResultItem{b, a}, nil, []search.SearchResultItem{vec}, 10)

	if len(fused1) != len(fused2) {
		t.Fatalf("result count differs across input order: %d vs %d", len(fused1), len(fused2))
	}
	for i := range fused1 {
		if fused1[i].ID != fused2[i].ID || fused1[i].Score != fused2[i].Score {
			t.Fatalf("fusion order not deterministic: %+v vs %+v", fused1, fused2)
		}
	}
}

func TestFuseTruncatesToTopK(t *testing.T) {
	s := &Searcher{cfg: testCfg()}

	items := []search.SearchResultItem{
		{Document: search.Document{ID: "a"}, Score: 3.0},
		{Document: search.Document{ID: "b"}, Score: 2.0},
		{Document: search.Document{ID: "c"}, Score: 1.0},
	}

	fused := s.fuse(items, nil, nil, 2)
	if len(fused) != 2 {
		t.Fatalf("expected truncation to top 2, got %d", len(fused))
	}
	if fused[0].ID != "a" || fused[1].ID != "b" {
		t.Fatalf("expected highest-scoring results first, got %+v", fused)
	}
}

func TestExtractExactTermsQuotedAndNumeric(t *testing.T) {
	terms := ExtractExactTerms(`find "connection pool" and error code 42 in module 7`)
	want := map[string]bool{"connection pool": true, "42": true}
	got := map[string]bool{}
	for _, term := range terms {
		got[term] = true
	}
	for w := range want {
		if !got[w] {
			t.Fatalf("expected term %q in %v", w, terms)
		}
	}
}

func TestExtractExactTermsIgnoresSingleDigits(t *testing.T) {
	terms := ExtractExactTerms("retry 3 times")
	for _, term := range terms {
		if term == "3" {
			t.Fatalf("expected single-digit numbers to be excluded, got %v", terms)
		}
	}
}

func TestSearchTopKZeroIssuesNoHTTPCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected HTTP call for top_k=0: %s %s", r.Method, r.URL.Path)
	}))
	defer srv.Close()

	client, err := restclient.New(restclient.Config{Endpoint: srv.URL, APIKey: "secret"})
	if err != nil {
		t.Fatalf("restclient.New failed: %v", err)
	}
	defer client.Close()

	s := New(search.New(client), embed.NullProvider{}, "idx", testCfg())

	results, err := s.Search(context.Background(), `"exact" 42`, nil, 0)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected empty result for top_k=0, got %v", results)
	}
}

func TestIsExactTermQuery(t *testing.T) {
	if !IsExactTermQuery(`"exact phrase"`) {
		t.Fatalf("expected quoted phrase to be detected as an exact-term query")
	}
	if IsExactTermQuery("plain search text") {
		t.Fatalf("expected plain text to not be an exact-term query")
	}
}
