package search

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/henryperkins/mcprag-sub001/internal/errs"
	"github.com/henryperkins/mcprag-sub001/internal/restclient"
)

// Operations is SearchOperations (spec.md §4.2): typed CRUD wrappers over
// the wire contract, grounded on
// original_source/enhanced_rag/azure_integration/rest/operations.py's
// SearchOperations, almost method-for-method, and structurally shaped like
// the reference implementation's internal/vectordb.Client (one method per
// concern, returning Go types rather than maps).
type Operations struct {
	client *restclient.Client
}

func New(client *restclient.Client) *Operations {
	return &Operations{client: client}
}

// --- Index ---

func (o *Operations) CreateOrUpdateIndex(ctx context.Context, schema *Schema) error {
	return o.client.Request(ctx, "PUT", "/indexes/"+schema.Name, nil, schema, nil)
}

func (o *Operations) DeleteIndex(ctx context.Context, name string) error {
	return o.client.Request(ctx, "DELETE", "/indexes/"+name, nil, nil, nil)
}

func (o *Operations) GetIndex(ctx context.Context, name string) (*Schema, error) {
	var out Schema
	if err := o.client.Request(ctx, "GET", "/indexes/"+name, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (o *Operations) ListIndexes(ctx context.Context) ([]Schema, error) {
	var out struct {
		Value []Schema `json:"value"`
	}
	if err := o.client.Request(ctx, "GET", "/indexes", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Value, nil
}

func (o *Operations) IndexStats(ctx context.Context, name string) (*IndexStatistics, error) {
	var out IndexStatistics
	if err := o.client.Request(ctx, "GET", "/indexes/"+name+"/stats", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (o *Operations) AnalyzeText(ctx context.Context, indexName, analyzer, text string) ([]string, error) {
	var out struct {
		Tokens []struct {
			Token string `json:"token"`
		} `json:"tokens"`
	}
	body := map[string]any{"text": text, "analyzer": analyzer}
	if err := o.client.Request(ctx, "POST", "/indexes/"+indexName+"/analyze", nil, body, &out); err != nil {
		return nil, err
	}
	tokens := make([]string, len(out.Tokens))
	for i, t := range out.Tokens {
		tokens[i] = t.Token
	}
	return tokens, nil
}

// --- Documents ---

// Upload uploads or merges docs, translating merge=true into per-item
// @search.action=merge, per spec.md §4.2.
func (o *Operations) Upload(ctx context.Context, indexName string, docs []Document, merge bool) ([]UploadResultItem, error) {
	action := ActionUpload
	if merge {
		action = ActionMerge
	}
	items := make([]uploadItem, len(docs))
	for i, d := range docs {
		d.EnforceSizeLimit()
		items[i] = uploadItem{Action: action, Document: d}
	}
	body := map[string]any{"value": items}
	var out uploadResponse
	if err := o.client.Request(ctx, "POST", "/indexes/"+indexName+"/docs/index", nil, body, &out); err != nil {
		return nil, err
	}
	return out.Value, nil
}

func (o *Operations) DeleteByKeys(ctx context.Context, indexName, keyField string, keys []string) ([]UploadResultItem, error) {
	items := make([]map[string]any, len(keys))
	for i, k := range keys {
		items[i] = map[string]any{"@search.action": string(ActionDelete), keyField: k}
	}
	body := map[string]any{"value": items}
	var out uploadResponse
	if err := o.client.Request(ctx, "POST", "/indexes/"+indexName+"/docs/index", nil, body, &out); err != nil {
		return nil, err
	}
	return out.Value, nil
}

func (o *Operations) GetDocument(ctx context.Context, indexName, key string) (*Document, error) {
	var out Document
	if err := o.client.Request(ctx, "GET", "/indexes/"+indexName+"/docs/"+url.PathEscape(key), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (o *Operations) CountDocuments(ctx context.Context, indexName string) (int, error) {
	var out any
	if err := o.client.Request(ctx, "GET", "/indexes/"+indexName+"/docs/$count", nil, nil, &out); err != nil {
		return 0, err
	}
	switch v := out.(type) {
	case float64:
		return int(v), nil
	case map[string]any:
		if c, ok := v["@odata.count"].(float64); ok {
			return int(c), nil
		}
	}
	return 0, errs.New(errs.KindRequest, "unexpected count response shape")
}

func (o *Operations) Search(ctx context.Context, indexName string, req SearchRequest) (*SearchResponse, error) {
	var out SearchResponse
	if err := o.client.Request(ctx, "POST", "/indexes/"+indexName+"/docs/search", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// --- Indexer ---

func (o *Operations) CreateOrUpdateIndexer(ctx context.Context, ix *Indexer) error {
	return o.client.Request(ctx, "PUT", "/indexers/"+ix.Name, nil, ix, nil)
}

func (o *Operations) DeleteIndexer(ctx context.Context, name string) error {
	return o.client.Request(ctx, "DELETE", "/indexers/"+name, nil, nil, nil)
}

func (o *Operations) GetIndexer(ctx context.Context, name string) (*Indexer, error) {
	var out Indexer
	if err := o.client.Request(ctx, "GET", "/indexers/"+name, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (o *Operations) ListIndexers(ctx context.Context) ([]Indexer, error) {
	var out struct {
		Value []Indexer `json:"value"`
	}
	if err := o.client.Request(ctx, "GET", "/indexers", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Value, nil
}

func (o *Operations) RunIndexerAsync(ctx context.Context, name string) error {
	return o.client.Request(ctx, "POST", "/indexers/"+name+"/run", nil, nil, nil)
}

func (o *Operations) ResetIndexer(ctx context.Context, name string) error {
	return o.client.Request(ctx, "POST", "/indexers/"+name+"/reset", nil, nil, nil)
}

func (o *Operations) GetIndexerStatus(ctx context.Context, name string) (*IndexerStatus, error) {
	var out IndexerStatus
	if err := o.client.Request(ctx, "GET", "/indexers/"+name+"/status", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RunIndexerOptions configures Run's polling behavior, per spec.md §4.2.
type RunIndexerOptions struct {
	Wait         bool
	PollInterval time.Duration
	Timeout      time.Duration
}

// Run triggers an indexer run and, if Wait is set, polls status every
// PollInterval until lastResult.status reaches a terminal state or Timeout
// elapses, per spec.md §4.2.
func (o *Operations) Run(ctx context.Context, name string, opts RunIndexerOptions) (*IndexerExecutionResult, error) {
	if err := o.RunIndexerAsync(ctx, name); err != nil {
		return nil, err
	}
	if !opts.Wait {
		return nil, nil
	}

	poll := opts.PollInterval
	if poll == 0 {
		poll = 2 * time.Second
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 300 * time.Second
	}

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		status, err := o.GetIndexerStatus(ctx, name)
		if err != nil {
			return nil, err
		}
		if status.LastResult != nil {
			switch status.LastResult.Status {
			case ExecSuccess, ExecTransientFailure, ExecError:
				return status.LastResult, nil
			}
		}
		if time.Now().After(deadline) {
			return status.LastResult, errs.New(errs.KindTimeout, fmt.Sprintf("indexer %s did not reach a terminal state within %s", name, timeout))
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// --- Datasource ---

func (o *Operations) CreateOrUpdateDatasource(ctx context.Context, ds *Datasource) error {
	return o.client.Request(ctx, "PUT", "/datasources/"+ds.Name, nil, ds, nil)
}

func (o *Operations) DeleteDatasource(ctx context.Context, name string) error {
	return o.client.Request(ctx, "DELETE", "/datasources/"+name, nil, nil, nil)
}

func (o *Operations) GetDatasource(ctx context.Context, name string) (*Datasource, error) {
	var out Datasource
	if err := o.client.Request(ctx, "GET", "/datasources/"+name, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (o *Operations) ListDatasources(ctx context.Context) ([]Datasource, error) {
	var out struct {
		Value []Datasource `json:"value"`
	}
	if err := o.client.Request(ctx, "GET", "/datasources", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Value, nil
}

// --- Skillset ---

func (o *Operations) CreateOrUpdateSkillset(ctx context.Context, ss *Skillset) error {
	return o.client.Request(ctx, "PUT", "/skillsets/"+ss.Name, nil, ss, nil)
}

func (o *Operations) DeleteSkillset(ctx context.Context, name string) error {
	return o.client.Request(ctx, "DELETE", "/skillsets/"+name, nil, nil, nil)
}

func (o *Operations) GetSkillset(ctx context.Context, name string) (*Skillset, error) {
	var out Skillset
	if err := o.client.Request(ctx, "GET", "/skillsets/"+name, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (o *Operations) ListSkillsets(ctx context.Context) ([]Skillset, error) {
	var out struct {
		Value []Skillset `json:"value"`
	}
	if err := o.client.Request(ctx, "GET", "/skillsets", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Value, nil
}

func (o *Operations) ResetSkills(ctx context.Context, skillsetName string, skillNames []string) error {
	body := map[string]any{"skillNames": skillNames}
	return o.client.Request(ctx, "POST", "/skillsets/"+skillsetName+"/resetskills", nil, body, nil)
}

// --- Service ---

func (o *Operations) ServiceStatistics(ctx context.Context) (*ServiceStatistics, error) {
	var out ServiceStatistics
	if err := o.client.Request(ctx, "GET", "/servicestats", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
