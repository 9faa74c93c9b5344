package embed

import (
	"context"
	"errors"
	"testing"
	"time"
)

type stubProvider struct {
	calls   int
	vectors map[string][]float32
}

func (s *stubProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	s.calls++
	if v, ok := s.vectors[text]; ok {
		return v, nil
	}
	return []float32{1, 2, 3}, nil
}

func (s *stubProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, []error) {
	vectors := make([][]float32, len(texts))
	errsOut := make([]error, len(texts))
	for i, t := range texts {
		vectors[i], errsOut[i] = s.Embed(ctx, t)
	}
	return vectors, errsOut
}

func (s *stubProvider) EmbedCode(ctx context.Context, code, context_ string) ([]float32, error) {
	return s.Embed(ctx, code+context_)
}

func TestCachingProviderHitsAndMisses(t *testing.T) {
	inner := &stubProvider{vectors: map[string][]float32{}}
	c, err := NewCachingProvider(inner, 16, time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := c.Embed(context.Background(), "hello"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Embed(context.Background(), "hello"); err != nil {
		t.Fatal(err)
	}

	stats := c.Stats()
	if stats.Hits != 1 || stats.Misses != 1 || stats.EmbeddingsGenerated != 1 {
		t.Fatalf("expected 1 hit / 1 miss / 1 generated, got %+v", stats)
	}
	if inner.calls != 1 {
		t.Fatalf("expected provider to be called exactly once, got %d", inner.calls)
	}
}

func TestCachingProviderTTLExpiry(t *testing.T) {
	inner := &stubProvider{vectors: map[string][]float32{}}
	c, err := NewCachingProvider(inner, 16, time.Nanosecond)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := c.Embed(context.Background(), "hello"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(time.Millisecond)
	if _, err := c.Embed(context.Background(), "hello"); err != nil {
		t.Fatal(err)
	}

	if inner.calls != 2 {
		t.Fatalf("expected expiry to force a second provider call, got %d calls", inner.calls)
	}
}

func TestCachingProviderEmbedBatchPreservesOrderOnPartialCacheHit(t *testing.T) {
	inner := &stubProvider{vectors: map[string][]float32{
		"a": {1},
		"b": {2},
		"c": {3},
	}}
	c, err := NewCachingProvider(inner, 16, time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := c.Embed(context.Background(), "b"); err != nil {
		t.Fatal(err)
	}

	vectors, errs := c.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	for i, e := range errs {
		if e != nil {
			t.Fatalf("unexpected error at index %d: %v", i, e)
		}
	}
	if vectors[0][0] != 1 || vectors[1][0] != 2 || vectors[2][0] != 3 {
		t.Fatalf("batch result out of order: %v", vectors)
	}
}

func TestNullProviderFailsClosed(t *testing.T) {
	var p NullProvider
	if _, err := p.Embed(context.Background(), "x"); !errors.Is(err, errNoProvider) {
		t.Fatalf("expected errNoProvider, got %v", err)
	}
}
