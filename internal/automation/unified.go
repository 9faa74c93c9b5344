package automation

import (
	"context"
	"log"
	"time"

	"github.com/henryperkins/mcprag-sub001/internal/cachefile"
	"github.com/henryperkins/mcprag-sub001/internal/chunk"
	"github.com/henryperkins/mcprag-sub001/internal/embed"
	"github.com/henryperkins/mcprag-sub001/internal/filter"
	"github.com/henryperkins/mcprag-sub001/internal/hybrid"
	"github.com/henryperkins/mcprag-sub001/internal/ratelimit"
	"github.com/henryperkins/mcprag-sub001/internal/restclient"
	"github.com/henryperkins/mcprag-sub001/internal/schema"
	"github.com/henryperkins/mcprag-sub001/internal/search"
	"github.com/henryperkins/mcprag-sub001/pkg/config"
)

// Unified is UnifiedAutomation (spec.md §2): a façade composing every other
// automation component around one RestClient/Operations pair and one
// default index, grounded on
// original_source/enhanced_rag/azure_integration/automation/unified_manager.py.
type Unified struct {
	cfg *config.Config

	Client   *restclient.Client
	Ops      *search.Operations
	Embedder embed.Provider

	SchemaBuilder *schema.Builder
	Negotiator    *schema.Negotiator
	FilterManager *filter.Manager
	LangTable     *chunk.LanguageTable

	Data    *DataAutomation
	Indexer *IndexerAutomation
	Reindex *ReindexAutomation
	Health  *HealthMonitor
	CLI     *CLIAutomation
	Search  *hybrid.Searcher

	DefaultIndex string
}

// New constructs the full façade from cfg, following unified_manager.py's
// __init__ construction order: RestClient first, then SearchOperations,
// then the embedding provider (an unrecognized provider name yields a no-op
// provider with a logged warning rather than a hard error, and a failure to
// build the embedding cache yields the uncached provider, per
// SPEC_FULL.md §C.6), then every downstream automation component built atop
// those two.
func New(cfg *config.Config) (*Unified, error) {
	client, err := restclient.New(restclient.Config{
		Endpoint:       cfg.Service.Endpoint,
		APIKey:         cfg.Service.APIKey,
		APIVersion:     cfg.Service.APIVersion,
		Timeout:        time.Duration(cfg.Service.RequestTimeoutSeconds) * time.Second,
		RetryAttempts:  cfg.Service.RetryAttempts,
		RetryBaseDelay: time.Duration(cfg.Service.RetryDelaySeconds * float64(time.Second)),
	})
	if err != nil {
		return nil, err
	}

	ops := search.New(client)

	embedder := buildEmbedder(cfg.Embedding)

	limiter := ratelimit.New(cfg.Service.MaxConcurrentRequests, time.Duration(cfg.Service.RateLimitDelaySeconds*float64(time.Second)))
	langTable := chunk.NewLanguageTable()
	processor := chunk.NewProcessor(&cfg.Indexing, langTable)

	var fileCache *cachefile.Manager
	if cfg.Cache.Directory != "" {
		fileCache, err = cachefile.NewManager(cfg.Cache.Directory)
		if err != nil {
			log.Printf("unified: failed to open file-hash cache directory %s: %v (continuing without it)", cfg.Cache.Directory, err)
			fileCache = nil
		}
	}

	data := NewDataAutomation(ops, limiter)
	indexer := NewIndexerAutomation(ops)
	reindex := NewReindexAutomation(ops, data, langTable, &cfg.Indexing, cfg.Filter, cfg.Service.IndexName, cfg.Embedding.Dimensions)
	health := NewHealthMonitor(ops, reindex, indexer)
	cli := NewCLIAutomation(processor, embedder, data, fileCache, langTable, cfg.Embedding)
	searcher := hybrid.New(ops, embedder, cfg.Service.IndexName, cfg.Search)

	return &Unified{
		cfg:           cfg,
		Client:        client,
		Ops:           ops,
		Embedder:      embedder,
		SchemaBuilder: schema.NewBuilder(ops, cfg.Search.SemanticConfigName),
		Negotiator:    schema.NewNegotiator(ops),
		FilterManager: filter.NewManager(cfg.Filter.PathExclusions),
		LangTable:     langTable,
		Data:          data,
		Indexer:       indexer,
		Reindex:       reindex,
		Health:        health,
		CLI:           cli,
		Search:        searcher,
		DefaultIndex:  cfg.Service.IndexName,
	}, nil
}

// buildEmbedder selects and wraps the configured embedding provider. An
// unrecognized or "null" provider name yields embed.NullProvider, mirroring
// unified_manager.py's tolerant fallback rather than a configuration error:
// spec.md §4.5 treats "no vector" as a legal document state.
func buildEmbedder(cfg config.EmbeddingConfig) embed.Provider {
	var inner embed.Provider
	switch cfg.Provider {
	case "azure_openai":
		inner = embed.NewAzureOpenAIProvider(embed.AzureOpenAIConfig{
			Endpoint:   cfg.Endpoint,
			APIKey:     cfg.APIKey,
			Deployment: cfg.Deployment,
			Dimensions: cfg.Dimensions,
		})
	default:
		if cfg.Provider != "" && cfg.Provider != "null" {
			log.Printf("unified: unrecognized embedding provider %q, falling back to null provider", cfg.Provider)
		}
		return embed.NullProvider{}
	}

	ttl := time.Duration(cfg.CacheTTLSeconds) * time.Second
	cached, err := embed.NewCachingProvider(inner, cfg.CacheSize, ttl)
	if err != nil {
		log.Printf("unified: failed to build embedding cache: %v (continuing uncached)", err)
		return inner
	}
	return cached
}

// Close releases the façade's shared resources, per spec.md §9's
// "init -> use -> cleanup" lifecycle: the HTTP connection pool is closed.
// The in-memory embedding cache is not purged here, and the file-hash cache
// is not written here; it is persisted at the end of each
// CLIAutomation.IngestRepository call.
func (u *Unified) Close() {
	u.Client.Close()
}

// EnsureIndexExists creates the default index if absent, or negotiates an
// update if the local definition differs on comparable attributes, per
// spec.md §3's schema ownership rule. It is idempotent: calling it twice
// with the same desired schema performs at most one update, per spec.md §8.
func (u *Unified) EnsureIndexExists(ctx context.Context, features []schema.Feature, customFields []search.Field) (*schema.NegotiationResult, error) {
	desired := u.SchemaBuilder.Generate(ctx, u.DefaultIndex, features, customFields)

	existing, err := u.Ops.GetIndex(ctx, u.DefaultIndex)
	if err == nil && schemaEquivalent(existing, desired) {
		return &schema.NegotiationResult{Success: true, Negotiated: existing}, nil
	}

	return u.Negotiator.Negotiate(ctx, desired, u.DefaultIndex)
}

// schemaEquivalent compares the comparable attributes spec.md §3 names for
// schema ownership: field set, types, key, attribute flags, and vector
// config presence. It intentionally ignores field ordering and any
// service-assigned metadata.
func schemaEquivalent(a, b *search.Schema) bool {
	if a == nil || b == nil {
		return false
	}
	if len(a.Fields) != len(b.Fields) {
		return false
	}
	byName := make(map[string]search.Field, len(a.Fields))
	for _, f := range a.Fields {
		byName[f.Name] = f
	}
	for _, f := range b.Fields {
		existing, ok := byName[f.Name]
		if !ok {
			return false
		}
		if existing.Type != f.Type || existing.Key != f.Key ||
			existing.Searchable != f.Searchable || existing.Filterable != f.Filterable ||
			existing.Sortable != f.Sortable || existing.Facetable != f.Facetable ||
			existing.Retrievable != f.Retrievable {
			return false
		}
	}
	return (a.VectorSearch != nil) == (b.VectorSearch != nil)
}
