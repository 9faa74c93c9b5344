// Package schema implements SchemaBuilder & Negotiator (spec.md §4.3),
// grounded on original_source/enhanced_rag/azure_integration/schema_automation.py.
package schema

import (
	"context"
	"fmt"

	"github.com/henryperkins/mcprag-sub001/internal/search"
)

// Feature is one of the requestable schema features, per spec.md §4.3's
// "express the feature set as an explicit enum" redesign note (§9).
type Feature string

const (
	FeatureVectorSearch    Feature = "vector_search"
	FeatureSemanticSearch  Feature = "semantic_search"
	FeatureFacetedSearch   Feature = "faceted_search"
	FeatureScoringProfiles Feature = "scoring_profiles"
)

// candidateDimensions is the probe order from spec.md §4.3.
var candidateDimensions = []int{3072, 1536, 1024, 512}

// Builder is SchemaBuilder: generate(features, custom_fields) -> schema.
type Builder struct {
	ops                *search.Operations
	semanticConfigName string
}

func NewBuilder(ops *search.Operations, semanticConfigName string) *Builder {
	if semanticConfigName == "" {
		semanticConfigName = "semantic-config"
	}
	return &Builder{ops: ops, semanticConfigName: semanticConfigName}
}

// Capabilities is the result of DetectCapabilities, grounded on
// schema_automation.py's detect_azure_capabilities.
type Capabilities struct {
	MaxVectorDimensions int
	SemanticSupported   bool
	CustomAnalyzers     bool
}

// DetectCapabilities probes the service by creating and discarding a
// throwaway index with each candidate feature, per SPEC_FULL.md §C.1.
func (b *Builder) DetectCapabilities(ctx context.Context) Capabilities {
	caps := Capabilities{MaxVectorDimensions: 1536}
	if b.ops == nil {
		return caps
	}

	for _, dims := range candidateDimensions {
		probe := &search.Schema{
			Name: "capability-probe",
			Fields: []search.Field{
				{Name: "id", Type: "Edm.String", Key: true},
				{Name: "content_vector", Type: "Collection(Edm.Single)", Dimensions: dims, VectorSearchProfile: "probe-profile"},
			},
			VectorSearch: &search.VectorSearch{
				Algorithms: []search.VectorAlgorithm{{Name: "probe-algo", Kind: "hnsw", Metric: "cosine"}},
				Profiles:   []search.VectorProfile{{Name: "probe-profile", AlgorithmName: "probe-algo"}},
			},
		}
		if err := b.ops.CreateOrUpdateIndex(ctx, probe); err == nil {
			caps.MaxVectorDimensions = dims
			b.ops.DeleteIndex(ctx, probe.Name)
			break
		}
	}

	semanticProbe := &search.Schema{
		Name:   "capability-probe-semantic",
		Fields: []search.Field{{Name: "id", Type: "Edm.String", Key: true}, {Name: "content", Type: "Edm.String", Searchable: true}},
		Semantic: &search.SemanticSearch{Configurations: []search.SemanticConfiguration{{
			Name:              b.semanticConfigName,
			PrioritizedFields: search.SemanticPrioritizedFields{ContentFields: []search.SemanticField{{FieldName: "content"}}},
		}}},
	}
	if err := b.ops.CreateOrUpdateIndex(ctx, semanticProbe); err == nil {
		caps.SemanticSupported = true
		b.ops.DeleteIndex(ctx, semanticProbe.Name)
	}

	return caps
}

// Generate builds a schema from the requested features and custom fields,
// per spec.md §4.3.
func (b *Builder) Generate(ctx context.Context, indexName string, features []Feature, customFields []search.Field) *search.Schema {
	caps := b.DetectCapabilities(ctx)

	sch := &search.Schema{
		Name: indexName,
		Fields: []search.Field{
			{Name: "id", Type: "Edm.String", Key: true, Filterable: true, Retrievable: true},
		},
		CorsOptions: &search.CorsOptions{AllowedOrigins: []string{"*"}, MaxAgeInSeconds: 300},
	}

	seen := map[string]bool{"id": true}
	addField := func(f search.Field) {
		if seen[f.Name] {
			return
		}
		seen[f.Name] = true
		sch.Fields = append(sch.Fields, f)
	}

	for _, feature := range features {
		switch feature {
		case FeatureVectorSearch:
			addField(search.Field{
				Name: "content_vector", Type: "Collection(Edm.Single)", Searchable: true,
				Dimensions: caps.MaxVectorDimensions, VectorSearchProfile: "vector-profile",
			})
			sch.VectorSearch = &search.VectorSearch{
				Algorithms: []search.VectorAlgorithm{{
					Name: "vector-algo", Kind: "hnsw",
					M: 4, EfConstruction: 400, EfSearch: 500, Metric: "cosine",
				}},
				Profiles: []search.VectorProfile{{Name: "vector-profile", AlgorithmName: "vector-algo"}},
			}
		case FeatureSemanticSearch:
			addField(search.Field{Name: "content", Type: "Edm.String", Searchable: true, Analyzer: "en.microsoft"})
			sch.Semantic = &search.SemanticSearch{Configurations: []search.SemanticConfiguration{{
				Name: b.semanticConfigName,
				PrioritizedFields: search.SemanticPrioritizedFields{
					ContentFields: []search.SemanticField{{FieldName: "content"}},
				},
			}}}
		case FeatureFacetedSearch:
			addField(search.Field{Name: "repository", Type: "Edm.String", Facetable: true, Filterable: true})
			addField(search.Field{Name: "language", Type: "Edm.String", Facetable: true, Filterable: true})
		case FeatureScoringProfiles:
			sch.ScoringProfiles = []search.ScoringProfile{}
		}
	}

	for _, f := range customFields {
		addField(f)
	}

	return sch
}

// UpdateExisting computes a diff between an existing index and a schema
// generated for newFeatures, flagging type/key changes as requiring
// reindex, per spec.md §4.3.
type UpdateResult struct {
	Changes         []string
	RequiresReindex bool
}

func (b *Builder) UpdateExisting(ctx context.Context, indexName string, newFeatures []Feature) (*UpdateResult, error) {
	existing, err := b.ops.GetIndex(ctx, indexName)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch existing index: %w", err)
	}

	desired := b.Generate(ctx, indexName, newFeatures, nil)

	existingByName := map[string]search.Field{}
	for _, f := range existing.Fields {
		existingByName[f.Name] = f
	}

	result := &UpdateResult{}
	for _, f := range desired.Fields {
		prior, ok := existingByName[f.Name]
		if !ok {
			result.Changes = append(result.Changes, fmt.Sprintf("add field %q", f.Name))
			continue
		}
		if prior.Type != f.Type || prior.Key != f.Key {
			result.Changes = append(result.Changes, fmt.Sprintf("field %q type/key changed", f.Name))
			result.RequiresReindex = true
		}
	}

	return result, nil
}
