package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// cacheEntry pairs a cached vector with its expiry time for TTL eviction.
type cacheEntry struct {
	vector    []float32
	expiresAt time.Time
}

// CacheStats mirrors the reference implementation's embedding-cache
// counters (cache_hits/cache_misses/embeddings_generated), returned by
// CachingProvider.Stats.
type CacheStats struct {
	Hits               int64
	Misses             int64
	EmbeddingsGenerated int64
}

// CachingProvider wraps a Provider with an LRU+TTL cache keyed on the SHA-256
// of the input text, grounded on the reference implementation's embedding
// cache (internal/embeddings) and built on hashicorp/golang-lru/v2, the
// library SPEC_FULL.md §B designates for this concern.
type CachingProvider struct {
	inner Provider
	ttl   time.Duration
	lru   *lru.Cache[string, cacheEntry]
	mu    sync.Mutex

	hits      atomic.Int64
	misses    atomic.Int64
	generated atomic.Int64
}

// NewCachingProvider wraps inner with an LRU of the given size and a TTL for
// entries; ttl <= 0 disables expiry (entries live until evicted by size).
func NewCachingProvider(inner Provider, size int, ttl time.Duration) (*CachingProvider, error) {
	if size <= 0 {
		size = 4096
	}
	c, err := lru.New[string, cacheEntry](size)
	if err != nil {
		return nil, err
	}
	return &CachingProvider{inner: inner, ttl: ttl, lru: c}, nil
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func (c *CachingProvider) lookup(text string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.lru.Get(cacheKey(text))
	if !ok {
		return nil, false
	}
	if c.ttl > 0 && time.Now().After(entry.expiresAt) {
		c.lru.Remove(cacheKey(text))
		return nil, false
	}
	return entry.vector, true
}

func (c *CachingProvider) store(text string, vector []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := time.Time{}
	if c.ttl > 0 {
		expiresAt = time.Now().Add(c.ttl)
	}
	c.lru.Add(cacheKey(text), cacheEntry{vector: vector, expiresAt: expiresAt})
}

func (c *CachingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.lookup(text); ok {
		c.hits.Add(1)
		return v, nil
	}
	c.misses.Add(1)

	v, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.generated.Add(1)
	c.store(text, v)
	return v, nil
}

// EmbedBatch checks the cache per-item, then delegates the cache misses to
// the wrapped provider in one batch call, preserving input order.
func (c *CachingProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, []error) {
	vectors := make([][]float32, len(texts))
	errsOut := make([]error, len(texts))

	var missIdx []int
	var missTexts []string
	for i, t := range texts {
		if v, ok := c.lookup(t); ok {
			c.hits.Add(1)
			vectors[i] = v
			continue
		}
		c.misses.Add(1)
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, t)
	}

	if len(missTexts) == 0 {
		return vectors, errsOut
	}

	missVectors, missErrs := c.inner.EmbedBatch(ctx, missTexts)
	for j, i := range missIdx {
		vectors[i] = missVectors[j]
		errsOut[i] = missErrs[j]
		if missErrs[j] == nil {
			c.generated.Add(1)
			c.store(missTexts[j], missVectors[j])
		}
	}

	return vectors, errsOut
}

func (c *CachingProvider) EmbedCode(ctx context.Context, code, context_ string) ([]float32, error) {
	combined := truncateForEmbedding(context_ + "\n\nCode:\n" + code)
	return c.Embed(ctx, combined)
}

// Stats returns a snapshot of cache counters, per spec.md §6's
// health-report fields.
func (c *CachingProvider) Stats() CacheStats {
	return CacheStats{
		Hits:                c.hits.Load(),
		Misses:              c.misses.Load(),
		EmbeddingsGenerated: c.generated.Load(),
	}
}
