package schema

import (
	"context"
	"fmt"

	"github.com/henryperkins/mcprag-sub001/internal/errs"
	"github.com/henryperkins/mcprag-sub001/internal/search"
)

// NegotiationResult is negotiate's return value, per spec.md §4.3.
type NegotiationResult struct {
	Success    bool
	Negotiated *search.Schema
	Changes    []string
	Warnings   []string
}

// Negotiator attempts to create/validate a desired schema and, on failure,
// applies the compatibility adjustments from
// original_source/enhanced_rag/azure_integration/schema_automation.py's
// _adjust_schema_for_compatibility, verbatim (see DESIGN.md).
type Negotiator struct {
	ops *search.Operations
}

func NewNegotiator(ops *search.Operations) *Negotiator {
	return &Negotiator{ops: ops}
}

func (n *Negotiator) Negotiate(ctx context.Context, desired *search.Schema, indexName string) (*NegotiationResult, error) {
	result := &NegotiationResult{}

	test := *desired
	test.Name = indexName

	if err := n.ops.CreateOrUpdateIndex(ctx, &test); err == nil {
		result.Success = true
		result.Negotiated = &test
		return result, nil
	}

	adjusted := adjustForCompatibility(&test)
	if err := n.ops.CreateOrUpdateIndex(ctx, adjusted); err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("failed to create index: %v", err))
		return result, errs.Wrap(errs.KindSchemaIncompatible, "schema cannot be created after negotiation", err)
	}

	result.Success = true
	result.Negotiated = adjusted
	result.Changes = documentChanges(desired, adjusted)
	return result, nil
}

// adjustForCompatibility ports schema_automation.py's
// _adjust_schema_for_compatibility adjustment list verbatim.
func adjustForCompatibility(schema *search.Schema) *search.Schema {
	adjusted := *schema
	fields := make([]search.Field, len(schema.Fields))
	copy(fields, schema.Fields)

	for i, f := range fields {
		// 1. searchable fields whose type is not string lose searchable.
		if f.Searchable && f.Type != "Edm.String" && f.Type != "Collection(Edm.String)" {
			fields[i].Searchable = false
		}
		// 2. vector fields force filterable=false, sortable=false,
		//    facetable=false, retrievable=false, searchable=true.
		if f.Type == "Collection(Edm.Single)" {
			fields[i].Filterable = false
			fields[i].Sortable = false
			fields[i].Facetable = false
			fields[i].Retrievable = false
			fields[i].Searchable = true
		}
		// 3. unknown analyzer names fall back to standard.lucene.
		if f.Analyzer != "" && !knownAnalyzer(f.Analyzer) {
			fields[i].Analyzer = "standard.lucene"
		}
	}

	adjusted.Fields = fields
	return &adjusted
}

func knownAnalyzer(name string) bool {
	switch name {
	case "en.microsoft", "standard.lucene", "keyword", "simple", "whitespace":
		return true
	default:
		return false
	}
}

// documentChanges records every adjustment for observability, per
// spec.md §4.3 "Records every adjustment in changes[]".
func documentChanges(desired, adjusted *search.Schema) []string {
	var changes []string
	byName := map[string]search.Field{}
	for _, f := range desired.Fields {
		byName[f.Name] = f
	}
	for _, f := range adjusted.Fields {
		prior, ok := byName[f.Name]
		if !ok {
			continue
		}
		if prior.Searchable != f.Searchable {
			changes = append(changes, fmt.Sprintf("field %q searchable %v -> %v", f.Name, prior.Searchable, f.Searchable))
		}
		if prior.Analyzer != f.Analyzer {
			changes = append(changes, fmt.Sprintf("field %q analyzer %q -> %q", f.Name, prior.Analyzer, f.Analyzer))
		}
		if prior.Filterable != f.Filterable || prior.Sortable != f.Sortable || prior.Facetable != f.Facetable || prior.Retrievable != f.Retrievable {
			changes = append(changes, fmt.Sprintf("field %q vector attribute flags normalized", f.Name))
		}
	}
	return changes
}
