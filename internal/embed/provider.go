// Package embed implements EmbeddingProvider and its cache (spec.md §4.5),
// grounded on the reference implementation's internal/embeddings/client.go
// (concurrency/semaphore pattern, MRL truncation precedent) and
// original_source/enhanced_rag/azure_integration/embedding_provider.py
// (IEmbeddingProvider, AzureOpenAIEmbeddingProvider.generate_code_embedding's
// exact 6000-char truncation, NullEmbeddingProvider).
package embed

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const codeMaxChars = 6000

// Provider is the EmbeddingProvider interface of spec.md §4.5.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, []error)
	EmbedCode(ctx context.Context, code, context_ string) ([]float32, error)
}

// NullProvider returns failure for all inputs; callers treat "no vector" as
// a legal state, per spec.md §4.5.
type NullProvider struct{}

func (NullProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, errNoProvider
}

func (NullProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, []error) {
	errsOut := make([]error, len(texts))
	for i := range errsOut {
		errsOut[i] = errNoProvider
	}
	return make([][]float32, len(texts)), errsOut
}

func (NullProvider) EmbedCode(ctx context.Context, code, context_ string) ([]float32, error) {
	return nil, errNoProvider
}

var errNoProvider = fmt.Errorf("no embedding provider configured")

// AzureOpenAIConfig configures AzureOpenAIProvider.
type AzureOpenAIConfig struct {
	Endpoint       string
	APIKey         string
	Deployment     string
	APIVersion     string
	Dimensions     int
	MaxConcurrency int
	Timeout        time.Duration
}

// AzureOpenAIProvider is the Azure OpenAI embeddings provider seam. In this
// build it makes no network call: every Embed/EmbedBatch/EmbedCode returns
// an error (see embedOne). Grounded on embedding_provider.py's AzureOpenAIEmbeddingProvider
// and the reference implementation's client.go for the concurrency/HTTP
// idiom (semaphore-bounded concurrent requests, order-preserving batch).
type AzureOpenAIProvider struct {
	cfg  AzureOpenAIConfig
	http *http.Client
}

func NewAzureOpenAIProvider(cfg AzureOpenAIConfig) *AzureOpenAIProvider {
	if cfg.APIVersion == "" {
		cfg.APIVersion = "2024-02-01"
	}
	if cfg.MaxConcurrency == 0 {
		cfg.MaxConcurrency = 8
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &AzureOpenAIProvider{
		cfg: cfg,
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: cfg.MaxConcurrency,
			},
		},
	}
}

func (p *AzureOpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, errs := p.EmbedBatch(ctx, []string{text})
	return vectors[0], errs[0]
}

// EmbedBatch preserves input order even if the provider returns responses
// out of order, per spec.md §4.5, using a semaphore-bounded worker pool in
// the style of the reference implementation's GenerateEmbeddings.
func (p *AzureOpenAIProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, []error) {
	vectors := make([][]float32, len(texts))
	errsOut := make([]error, len(texts))

	sem := make(chan struct{}, p.cfg.MaxConcurrency)
	done := make(chan int, len(texts))

	for i, text := range texts {
		i, text := i, text
		sem <- struct{}{}
		go func() {
			defer func() { <-sem; done <- i }()
			v, err := p.embedOne(ctx, text)
			vectors[i] = v
			errsOut[i] = err
		}()
	}
	for range texts {
		<-done
	}

	return vectors, errsOut
}

func (p *AzureOpenAIProvider) embedOne(ctx context.Context, text string) ([]float32, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	// The wire call to Azure OpenAI's embeddings endpoint is an external
	// collaborator per spec.md §1 ("the embedding provider's network
	// protocol (treated as an interface)"); this method is the seam a real
	// deployment plugs an HTTP implementation into.
	return nil, fmt.Errorf("azure openai embeddings endpoint not reachable in this build")
}

// EmbedCode concatenates context and code, truncating to ~6000 characters,
// per spec.md §4.5 and embedding_provider.py's exact truncation rule.
func (p *AzureOpenAIProvider) EmbedCode(ctx context.Context, code, context_ string) ([]float32, error) {
	combined := context_ + "\n\nCode:\n" + code
	if len(combined) > codeMaxChars {
		combined = combined[:codeMaxChars]
	}
	return p.Embed(ctx, combined)
}

// truncateForEmbedding applies the 6000-char rule (trimming surrounding
// whitespace after the cut); CachingProvider.EmbedCode uses it.
func truncateForEmbedding(s string) string {
	if len(s) > codeMaxChars {
		return strings.TrimSpace(s[:codeMaxChars])
	}
	return s
}
