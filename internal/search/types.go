// Package search implements SearchOperations (spec.md §4.2): typed CRUD
// wrappers over the managed service's index/document/indexer/datasource/
// skillset/search wire contract (spec.md §6), built on internal/restclient.
package search

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// ChunkType is the tagged variant spec.md §3 calls for in place of a
// dynamically-typed document dictionary.
type ChunkType string

const (
	ChunkTypeFunction ChunkType = "function"
	ChunkTypeClass    ChunkType = "class"
	ChunkTypeFile     ChunkType = "file"
)

const (
	maxContentChars = 32000
	maxDocBytes     = 1 << 20 // 1 MiB
	truncateMargin  = 0.80    // truncate to ~80% of the limit, per spec.md §3/§8
)

// MaxBatchBytes is the spec.md §8 quantified invariant for a bulk-upload
// batch: sum(sizeof(json(d)) for d in B) ≤ 1 MiB × 1.05, the 5% margin
// accounting for request framing. DataAutomation.BulkUpload splits a batch
// before accumulated serialized size would cross this bound.
const MaxBatchBytes = int(float64(maxDocBytes) * 1.05)

// Document is the one strongly-typed index record, per spec.md §3 and the
// "Dynamic document dictionaries" redesign note in §9.
type Document struct {
	ID             string    `json:"id"`
	Content        string    `json:"content"`
	Truncated      bool      `json:"truncated"`
	Repository     string    `json:"repository"`
	FilePath       string    `json:"file_path"`
	FileExtension  string    `json:"file_extension"`
	Language       string    `json:"language"`
	ChunkType      ChunkType `json:"chunk_type"`
	ChunkID        string    `json:"chunk_id"`
	StartLine      int       `json:"start_line"`
	EndLine        int       `json:"end_line"`
	FunctionName   string    `json:"function_name,omitempty"`
	ClassName      string    `json:"class_name,omitempty"`
	Signature      string    `json:"signature,omitempty"`
	Docstring      string    `json:"docstring,omitempty"`
	Imports        []string  `json:"imports,omitempty"`
	Dependencies   []string  `json:"dependencies,omitempty"`
	LastModified   string    `json:"last_modified"`
	ContentVector  []float32 `json:"content_vector,omitempty"`
	ParentChunkID  string    `json:"-"`
}

// DocumentID implements the content-addressed id law of spec.md §3/§8:
// the first 16 hex chars of SHA-256 of "{repo}:{relative_path}:{chunk_index}".
func DocumentID(repo, relativePath string, chunkIndex int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%d", repo, relativePath, chunkIndex)))
	return hex.EncodeToString(sum[:])[:16]
}

// EnforceSizeLimit applies the ≤1 MiB serialized-size rule with an ~80%
// safety-margin truncation, per spec.md §3 and the truncation boundary test
// in §8. It operates on content length as a proxy for serialized size,
// mirroring the reference implementation's practice of bounding by
// character count rather than doing a full marshal-then-measure round trip
// on the hot path.
func (d *Document) EnforceSizeLimit() {
	if len(d.Content) > maxContentChars {
		limit := int(float64(maxContentChars) * truncateMargin)
		d.Content = d.Content[:limit] + "…"
		d.Truncated = true
	}
}

// JSONSize returns the document's approximate serialized size, including the
// @search.action wrapper field, used by DataAutomation to bound a batch's
// accumulated size rather than just its item count (spec.md §4.6/§8).
func (d *Document) JSONSize() int {
	b, err := json.Marshal(uploadItem{Action: ActionUpload, Document: *d})
	if err != nil {
		return len(d.Content)
	}
	return len(b)
}

// ValidVector is the spec.md §3 vector-field validation: it reports whether
// the document has no vector or one whose length matches the index's
// configured dimensions. Upload does not call it.
func (d *Document) ValidVector(dimensions int) bool {
	return len(d.ContentVector) == 0 || len(d.ContentVector) == dimensions
}

// Field describes one index schema field, per spec.md §3.
type Field struct {
	Name                string `json:"name"`
	Type                string `json:"type"`
	Key                 bool   `json:"key,omitempty"`
	Searchable          bool   `json:"searchable,omitempty"`
	Filterable          bool   `json:"filterable,omitempty"`
	Sortable            bool   `json:"sortable,omitempty"`
	Facetable           bool   `json:"facetable,omitempty"`
	Retrievable         bool   `json:"retrievable,omitempty"`
	Analyzer            string `json:"analyzer,omitempty"`
	Dimensions          int    `json:"dimensions,omitempty"`
	VectorSearchProfile string `json:"vectorSearchProfile,omitempty"`
}

// VectorAlgorithm describes one HNSW algorithm configuration, per spec.md §3.
type VectorAlgorithm struct {
	Name           string  `json:"name"`
	Kind           string  `json:"kind"`
	M              int     `json:"m,omitempty"`
	EfConstruction int     `json:"efConstruction,omitempty"`
	EfSearch       int     `json:"efSearch,omitempty"`
	Metric         string  `json:"metric,omitempty"`
}

type VectorProfile struct {
	Name          string `json:"name"`
	AlgorithmName string `json:"algorithm"`
}

type VectorSearch struct {
	Algorithms []VectorAlgorithm `json:"algorithms,omitempty"`
	Profiles   []VectorProfile   `json:"profiles,omitempty"`
}

type SemanticField struct {
	FieldName string `json:"fieldName"`
}

type SemanticPrioritizedFields struct {
	TitleField   *SemanticField  `json:"titleField,omitempty"`
	ContentFields []SemanticField `json:"contentFields,omitempty"`
	KeywordFields []SemanticField `json:"keywordsFields,omitempty"`
}

type SemanticConfiguration struct {
	Name              string                    `json:"name"`
	PrioritizedFields SemanticPrioritizedFields `json:"prioritizedFields"`
}

type SemanticSearch struct {
	Configurations []SemanticConfiguration `json:"configurations,omitempty"`
}

type ScoringProfile struct {
	Name string `json:"name"`
}

type CorsOptions struct {
	AllowedOrigins  []string `json:"allowedOrigins"`
	MaxAgeInSeconds int      `json:"maxAgeInSeconds"`
}

// Schema is the index schema, per spec.md §3.
type Schema struct {
	Name            string           `json:"name"`
	Fields          []Field          `json:"fields"`
	VectorSearch    *VectorSearch    `json:"vectorSearch,omitempty"`
	Semantic        *SemanticSearch  `json:"semanticSearch,omitempty"`
	ScoringProfiles []ScoringProfile `json:"scoringProfiles,omitempty"`
	Suggesters      []any            `json:"suggesters,omitempty"`
	CorsOptions     *CorsOptions     `json:"corsOptions,omitempty"`
}

// KeyField returns the name of the schema's key field, if any.
func (s *Schema) KeyField() (string, bool) {
	for _, f := range s.Fields {
		if f.Key {
			return f.Name, true
		}
	}
	return "", false
}

// Datasource, Skillset, Indexer are structural-only per spec.md §3: opaque
// to the core except for names and wiring.
type Datasource struct {
	Name           string         `json:"name"`
	Type           string         `json:"type"`
	ConnectionStr  string         `json:"credentials"`
	Container      map[string]any `json:"container"`
}

type Skillset struct {
	Name   string `json:"name"`
	Skills []any  `json:"skills"`
}

type IndexerSchedule struct {
	Interval string `json:"interval"` // ISO-8601 duration, e.g. "PT1H"
}

type Indexer struct {
	Name                    string           `json:"name"`
	DataSourceName          string           `json:"dataSourceName"`
	TargetIndexName         string           `json:"targetIndexName"`
	SkillsetName            string           `json:"skillsetName,omitempty"`
	Schedule                *IndexerSchedule `json:"schedule,omitempty"`
	Parameters              map[string]any   `json:"parameters,omitempty"`
}

// IndexerExecutionStatus is the terminal-state set run(wait=true) polls for,
// per spec.md §4.2.
type IndexerExecutionStatus string

const (
	ExecSuccess           IndexerExecutionStatus = "success"
	ExecTransientFailure   IndexerExecutionStatus = "transientFailure"
	ExecError              IndexerExecutionStatus = "error"
	ExecInProgress         IndexerExecutionStatus = "inProgress"
	ExecReset              IndexerExecutionStatus = "reset"
)

type IndexerExecutionResult struct {
	Status        IndexerExecutionStatus `json:"status"`
	ErrorMessage  string                 `json:"errorMessage,omitempty"`
	ItemsProcessed int                    `json:"itemsProcessed"`
	ItemsFailed    int                    `json:"itemsFailed"`
	StartTime      string                 `json:"startTime,omitempty"`
	EndTime        string                 `json:"endTime,omitempty"`
}

type IndexerStatus struct {
	Status           string                    `json:"status"`
	LastResult       *IndexerExecutionResult   `json:"lastResult,omitempty"`
	ExecutionHistory []IndexerExecutionResult  `json:"executionHistory,omitempty"`
}

// UploadAction is the per-document @search.action, per spec.md §6.
type UploadAction string

const (
	ActionUpload UploadAction = "upload"
	ActionMerge  UploadAction = "merge"
	ActionDelete UploadAction = "delete"
)

type uploadItem struct {
	Action   UploadAction `json:"@search.action"`
	Document
}

// UploadResultItem is the per-document status the service returns, per
// spec.md §4.2 "The response carries per-item status; callers aggregate."
type UploadResultItem struct {
	Key       string `json:"key"`
	Status    bool   `json:"status"`
	ErrorMsg  string `json:"errorMessage,omitempty"`
	StatusCode int   `json:"statusCode"`
}

type uploadResponse struct {
	Value []UploadResultItem `json:"value"`
}

type SearchRequest struct {
	Search                string            `json:"search"`
	QueryType             string            `json:"queryType,omitempty"`
	SemanticConfiguration string            `json:"semanticConfiguration,omitempty"`
	Filter                string            `json:"filter,omitempty"`
	Top                   int               `json:"top,omitempty"`
	Skip                  int               `json:"skip,omitempty"`
	Select                string            `json:"select,omitempty"`
	OrderBy               string            `json:"orderby,omitempty"`
	DisableRandomization  bool              `json:"disableRandomization,omitempty"`
	QueryCaption          string            `json:"queryCaption,omitempty"`
	QueryAnswer           string            `json:"queryAnswer,omitempty"`
	VectorQueries         []VectorQuery     `json:"vectorQueries,omitempty"`
	Count                 bool              `json:"count,omitempty"`
}

type VectorQuery struct {
	Kind   string    `json:"kind"`
	Vector []float32 `json:"vector,omitempty"`
	Text   string    `json:"text,omitempty"`
	K      int       `json:"k"`
	Fields string    `json:"fields"`
}

type SearchResultItem struct {
	Document
	Score          float64 `json:"@search.score"`
	RerankerScore  *float64 `json:"@search.rerankerScore,omitempty"`
}

type SearchResponse struct {
	Count   *int                `json:"@odata.count,omitempty"`
	Value   []SearchResultItem  `json:"value"`
}

type ServiceStatistics struct {
	Counters map[string]Counter `json:"counters"`
	Limits   map[string]int     `json:"limits"`
}

type Counter struct {
	Usage int `json:"usage"`
	Quota int `json:"quota"`
}

type IndexStatistics struct {
	DocumentCount int `json:"documentCount"`
	StorageSize   int `json:"storageSize"`
}
