// Package hybrid implements HybridSearcher (spec.md §4.9): fan-out across
// semantic/keyword, exact-term, and vector passes with weighted fusion,
// grounded on original_source/enhanced_rag/retrieval/hybrid_searcher.py's
// search() method, cross-checked against the reference implementation's
// internal/search/searcher.go applyHybridScoring (independently confirming
// the additive, not multiplicative, exact-match boost).
package hybrid

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/henryperkins/mcprag-sub001/internal/embed"
	"github.com/henryperkins/mcprag-sub001/internal/filter"
	"github.com/henryperkins/mcprag-sub001/internal/search"
	"github.com/henryperkins/mcprag-sub001/pkg/config"
)

// exactFields is the fixed field set exact terms are OR'd across, per
// hybrid_searcher.py's _term_filter.
var exactFields = []string{"content", "function_name", "class_name", "docstring"}

var (
	quotedTermRe  = regexp.MustCompile(`"([^"]+)"|'([^']+)'`)
	numericTermRe = regexp.MustCompile(`(?:^|[^\w.])(\d{2,})(?:[^\w.]|$)`)
)

// ExtractExactTerms pulls quoted phrases and 2+ digit numeric literals out
// of a query, per hybrid_searcher.py's exact-term detection.
func ExtractExactTerms(query string) []string {
	var terms []string
	for _, m := range quotedTermRe.FindAllStringSubmatch(query, -1) {
		if m[1] != "" {
			terms = append(terms, m[1])
		} else if m[2] != "" {
			terms = append(terms, m[2])
		}
	}
	for _, m := range numericTermRe.FindAllStringSubmatch(query, -1) {
		terms = append(terms, m[1])
	}
	return terms
}

// Result is one fused search result, the Go analogue of hybrid_searcher.py's
// HybridSearchResult.
type Result struct {
	ID         string
	Document   search.Document
	Score      float64
	ExactBoost bool
}

// Searcher is HybridSearcher: three independent passes fused into one
// ranked list, per spec.md §4.9. Callers own the filter.Manager used to
// build baseFilter; Searcher only needs internal/filter for the exact-term
// clause it constructs itself.
type Searcher struct {
	ops      *search.Operations
	embedder embed.Provider
	index    string
	cfg      config.SearchConfig
}

func New(ops *search.Operations, embedder embed.Provider, index string, cfg config.SearchConfig) *Searcher {
	return &Searcher{ops: ops, embedder: embedder, index: index, cfg: cfg}
}

// Search runs the semantic/keyword, exact-term, and vector passes
// concurrently under cfg.DeadlineMS, fuses their results, and returns the
// top topK by fused score. Each pass is independently fault-tolerant: a
// failing pass is dropped rather than aborting the other two, mirroring
// hybrid_searcher.py's per-pass try/except.
func (s *Searcher) Search(ctx context.Context, query string, baseFilter filter.Clause, topK int) ([]Result, error) {
	if topK <= 0 {
		return nil, nil
	}

	deadline := time.Duration(s.cfg.DeadlineMS) * time.Millisecond
	if deadline <= 0 {
		deadline = 3 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	filterExpr := filter.Render(baseFilter)

	var keywordSemantic, exact, vector []search.SearchResultItem

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		r, err := s.semanticPass(gctx, query, filterExpr, topK)
		if err != nil {
			return nil // pass failure is non-fatal, per hybrid_searcher.py
		}
		keywordSemantic = r
		return nil
	})

	g.Go(func() error {
		r, err := s.exactPass(gctx, query, filterExpr, topK)
		if err != nil {
			return nil
		}
		exact = r
		return nil
	})

	g.Go(func() error {
		r, err := s.vectorPass(gctx, query, filterExpr, topK)
		if err != nil {
			return nil
		}
		vector = r
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return s.fuse(keywordSemantic, exact, vector, topK), nil
}

func (s *Searcher) semanticPass(ctx context.Context, query, filterExpr string, topK int) ([]search.SearchResultItem, error) {
	req := search.SearchRequest{
		Search:                query,
		QueryType:             "semantic",
		SemanticConfiguration: s.cfg.SemanticConfigName,
		Filter:                filterExpr,
		Top:                   topK * 2,
		QueryCaption:          "extractive",
		QueryAnswer:           "extractive",
	}
	resp, err := s.ops.Search(ctx, s.index, req)
	if err != nil {
		return nil, err
	}
	return resp.Value, nil
}

func (s *Searcher) exactPass(ctx context.Context, query, filterExpr string, topK int) ([]search.SearchResultItem, error) {
	terms := ExtractExactTerms(query)
	if len(terms) == 0 {
		return nil, nil
	}

	termClause := filter.ExactTermsClause(terms, exactFields)

	var clauses []filter.Clause
	clauses = append(clauses, termClause)
	if filterExpr != "" {
		clauses = append(clauses, rawExpr(filterExpr))
	}
	finalFilter := filter.Render(filter.And(clauses...))

	req := search.SearchRequest{
		Search: query,
		Filter: finalFilter,
		Top:    topK * 2,
	}
	resp, err := s.ops.Search(ctx, s.index, req)
	if err != nil {
		return nil, err
	}
	return resp.Value, nil
}

func (s *Searcher) vectorPass(ctx context.Context, query, filterExpr string, topK int) ([]search.SearchResultItem, error) {
	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	req := search.SearchRequest{
		Search: "",
		Filter: filterExpr,
		Top:    topK * 2,
		VectorQueries: []search.VectorQuery{
			{Kind: "vector", Vector: vector, K: topK * 2, Fields: "content_vector"},
		},
	}
	resp, err := s.ops.Search(ctx, s.index, req)
	if err != nil {
		return nil, err
	}
	return resp.Value, nil
}

// fuse implements hybrid_searcher.py's by_id/_update fusion plus the
// additive exact-term boost, then sorts descending by score with a
// deterministic id tie-break (spec.md §8's determinism requirement).
func (s *Searcher) fuse(keywordSemantic, exact, vector []search.SearchResultItem, topK int) []Result {
	byID := make(map[string]*Result)

	update := func(item search.SearchResultItem, weight float64) {
		if r, ok := byID[item.ID]; ok {
			r.Score += item.Score * weight
			return
		}
		byID[item.ID] = &Result{
			ID:       item.ID,
			Document: item.Document,
			Score:    item.Score * weight,
		}
	}

	for _, item := range keywordSemantic {
		weight := s.cfg.KeywordWeight
		if item.RerankerScore != nil {
			weight = s.cfg.SemanticWeight
		}
		update(item, weight)
	}

	for _, item := range vector {
		update(item, s.cfg.VectorWeight)
	}

	for _, item := range exact {
		boosted := item.Score
		if boosted < 1.0 {
			boosted = 1.0
		}
		boosted *= s.cfg.ExactBoost

		if r, ok := byID[item.ID]; ok {
			r.Score += boosted
			r.ExactBoost = true
		} else {
			byID[item.ID] = &Result{
				ID:         item.ID,
				Document:   item.Document,
				Score:      boosted,
				ExactBoost: true,
			}
		}
	}

	fused := make([]Result, 0, len(byID))
	for _, r := range byID {
		fused = append(fused, *r)
	}

	sort.Slice(fused, func(i, j int) bool {
		if fused[i].Score != fused[j].Score {
			return fused[i].Score > fused[j].Score
		}
		return fused[i].ID < fused[j].ID
	})

	if len(fused) > topK {
		fused = fused[:topK]
	}
	return fused
}

type rawExpr string

func (r rawExpr) Render() string { return string(r) }

// IsExactTermQuery reports whether query contains any exact term detectable
// by ExtractExactTerms, used by callers deciding whether to surface the
// exact pass's contribution separately.
func IsExactTermQuery(query string) bool {
	return len(ExtractExactTerms(strings.TrimSpace(query))) > 0
}
