package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/henryperkins/mcprag-sub001/internal/chunk"
	"github.com/henryperkins/mcprag-sub001/internal/search"
	"github.com/henryperkins/mcprag-sub001/pkg/config"
)

// ReindexAutomation is ReindexAutomation (spec.md §4.8), grounded on
// reindex_manager.py.
type ReindexAutomation struct {
	ops          *search.Operations
	data         *DataAutomation
	langTable    *chunk.LanguageTable
	indexingCfg  *config.IndexingConfig
	filterCfg    config.FilterConfig
	defaultIndex string
	expectedDims int
}

func NewReindexAutomation(ops *search.Operations, data *DataAutomation, langTable *chunk.LanguageTable, indexingCfg *config.IndexingConfig, filterCfg config.FilterConfig, defaultIndex string, expectedDims int) *ReindexAutomation {
	return &ReindexAutomation{
		ops:          ops,
		data:         data,
		langTable:    langTable,
		indexingCfg:  indexingCfg,
		filterCfg:    filterCfg,
		defaultIndex: defaultIndex,
		expectedDims: expectedDims,
	}
}

// IndexHealth is returned by GetIndexHealth.
type IndexHealth struct {
	Name                   string
	DocumentCount          int
	StorageSizeBytes       int
	FieldCount             int
	VectorSearchEnabled    bool
	SemanticSearchEnabled  bool
	SchemaValid            bool
	SchemaIssues           []string
	SchemaWarnings         []string
	LastCheck              time.Time
}

// GetIndexHealth composes schema presence, field coverage, vector-field
// dimensions, and stats into one report, per spec.md §4.8.
func (r *ReindexAutomation) GetIndexHealth(ctx context.Context, indexName string) (*IndexHealth, error) {
	if indexName == "" {
		indexName = r.defaultIndex
	}

	def, err := r.ops.GetIndex(ctx, indexName)
	if err != nil {
		return &IndexHealth{Name: indexName, SchemaIssues: []string{err.Error()}}, err
	}
	stats, statsErr := r.ops.IndexStats(ctx, indexName)
	if statsErr != nil {
		stats = &search.IndexStatistics{}
	}

	issues, warnings := r.validateSchema(def)

	return &IndexHealth{
		Name:                  def.Name,
		DocumentCount:         stats.DocumentCount,
		StorageSizeBytes:      stats.StorageSize,
		FieldCount:            len(def.Fields),
		VectorSearchEnabled:   def.VectorSearch != nil,
		SemanticSearchEnabled: def.Semantic != nil,
		SchemaValid:           len(issues) == 0,
		SchemaIssues:          issues,
		SchemaWarnings:        warnings,
		LastCheck:             time.Now().UTC(),
	}, nil
}

// validateSchema checks required fields, vector-field dimensions against
// expectedDims, and the filterable/facetable attributes reindex_manager.py
// checks, per SPEC_FULL.md §C.
func (r *ReindexAutomation) validateSchema(def *search.Schema) (issues, warnings []string) {
	names := make(map[string]bool, len(def.Fields))
	for _, f := range def.Fields {
		names[f.Name] = true
	}
	required := []string{"id", "file_path", "repository", "content"}
	var missing []string
	for _, name := range required {
		if !names[name] {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		issues = append(issues, fmt.Sprintf("missing required fields: %v", missing))
	}

	if def.VectorSearch != nil {
		var vectorFields []search.Field
		for _, f := range def.Fields {
			if f.Dimensions > 0 {
				vectorFields = append(vectorFields, f)
			}
		}
		if len(vectorFields) == 0 {
			warnings = append(warnings, "vector search enabled but no vector fields found")
		}
		for _, vf := range vectorFields {
			if vf.Name == "content_vector" && vf.Dimensions != r.expectedDims {
				warnings = append(warnings, fmt.Sprintf("content_vector dimensions %d != expected %d", vf.Dimensions, r.expectedDims))
			}
		}
	}

	for _, f := range def.Fields {
		if f.Name == "file_path" && !f.Filterable {
			warnings = append(warnings, "field 'file_path' should be filterable")
		}
		if f.Name == "repository" && !f.Facetable {
			warnings = append(warnings, "field 'repository' should be facetable")
		}
	}
	return issues, warnings
}

// ReindexResult is returned by PerformReindex.
type ReindexResult struct {
	Method            string
	Status            string
	Action            string
	DocumentsCleared  int
	DocumentsUploaded int
	Error             string
	StartTime         time.Time
	EndTime           time.Time
}

func (r *ReindexResult) finish(start time.Time) *ReindexResult {
	r.StartTime = start
	r.EndTime = time.Now().UTC()
	return r
}

// PerformReindex dispatches to one of drop-rebuild/clear/repository, or
// validates without side effects when dryRun is set, per spec.md §4.8.
func (r *ReindexAutomation) PerformReindex(ctx context.Context, method, repoPath, repoName string, savedSchema *search.Schema, clearFilter string, dryRun bool) *ReindexResult {
	start := time.Now().UTC()
	result := &ReindexResult{Method: method}

	if dryRun {
		switch method {
		case "drop-rebuild":
			result.Action = "would drop and rebuild index " + r.defaultIndex
			result.Status = "validated"
		case "clear":
			stats, err := r.ops.IndexStats(ctx, r.defaultIndex)
			if err != nil {
				result.Status, result.Error = "error", err.Error()
				return result.finish(start)
			}
			result.Action = fmt.Sprintf("would clear %d documents", stats.DocumentCount)
			result.Status = "validated"
		case "repository":
			if repoPath == "" || repoName == "" {
				result.Status, result.Error = "error", "repository path and name required"
				return result.finish(start)
			}
			result.Action = fmt.Sprintf("would reindex repository %s from %s", repoName, repoPath)
			result.Status = "validated"
		default:
			result.Status, result.Error = "error", "unknown reindexing method: "+method
		}
		return result.finish(start)
	}

	switch method {
	case "drop-rebuild":
		schema := savedSchema
		if schema == nil {
			fetched, err := r.ops.GetIndex(ctx, r.defaultIndex)
			if err != nil {
				result.Status, result.Error = "error", err.Error()
				return result.finish(start)
			}
			schema = fetched
		}
		schema.Name = r.defaultIndex
		_ = r.ops.DeleteIndex(ctx, r.defaultIndex) // best-effort, index may not exist
		if err := r.ops.CreateOrUpdateIndex(ctx, schema); err != nil {
			result.Status, result.Error = "error", err.Error()
			return result.finish(start)
		}
		result.Status = "success"
	case "clear":
		count, err := r.clearDocuments(ctx, r.defaultIndex, clearFilter)
		if err != nil {
			result.Status, result.Error = "error", err.Error()
			return result.finish(start)
		}
		result.Status = "success"
		result.DocumentsCleared = count
	case "repository":
		if repoPath == "" || repoName == "" {
			result.Status, result.Error = "error", "repository path and name required"
			return result.finish(start)
		}
		if clearFilter != "" {
			if _, err := r.clearDocuments(ctx, r.defaultIndex, clearFilter); err != nil {
				result.Status, result.Error = "error", err.Error()
				return result.finish(start)
			}
		}
		uploaded, err := r.reindexRepository(ctx, r.defaultIndex, repoPath, repoName)
		if err != nil {
			result.Status, result.Error = "error", err.Error()
			return result.finish(start)
		}
		result.Status = "success"
		result.DocumentsUploaded = uploaded
	default:
		result.Status, result.Error = "error", "unknown reindexing method: "+method
	}
	return result.finish(start)
}

// clearDocuments fetches keys matching filterExpr and deletes them in
// batches of 1000, per spec.md §4.8.
func (r *ReindexAutomation) clearDocuments(ctx context.Context, indexName, filterExpr string) (int, error) {
	const batchSize = 1000
	total := 0
	skip := 0
	for {
		resp, err := r.ops.Search(ctx, indexName, search.SearchRequest{
			Search: "*",
			Select: "id",
			Top:    batchSize,
			Skip:   skip,
			Filter: filterExpr,
		})
		if err != nil {
			return total, err
		}
		keys := make([]string, 0, len(resp.Value))
		for _, item := range resp.Value {
			if item.ID != "" {
				keys = append(keys, item.ID)
			}
		}
		if len(keys) == 0 {
			break
		}
		if _, err := r.ops.DeleteByKeys(ctx, indexName, "id", keys); err != nil {
			return total, err
		}
		total += len(keys)
		skip += batchSize
	}
	return total, nil
}

// reindexRepository walks repoPath with the shared FileProcessor and
// bulk-uploads the resulting documents, per spec.md §4.8.
func (r *ReindexAutomation) reindexRepository(ctx context.Context, indexName, repoPath, repoName string) (int, error) {
	processor := chunk.NewProcessor(r.indexingCfg, r.langTable)
	results, _, err := processor.ProcessRepository(ctx, repoName, repoPath, r.filterCfg)
	if err != nil {
		return 0, err
	}

	docs := make(chan *search.Document)
	go func() {
		defer close(docs)
		for _, fr := range results {
			for _, doc := range fr.Documents {
				select {
				case docs <- doc:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	report, err := r.data.BulkUpload(ctx, indexName, docs, 100, false, nil)
	if err != nil {
		return report.Succeeded, err
	}
	return report.Succeeded, nil
}

// backupMetadata is the header reindex_manager.py's backup writer embeds in
// the exported schema, per spec.md §6 and SPEC_FULL.md §C.8.
type backupMetadata struct {
	Timestamp     string `json:"timestamp"`
	IndexName     string `json:"index_name"`
	DocumentCount *int   `json:"document_count,omitempty"`
}

type backupFile struct {
	search.Schema
	BackupMetadata backupMetadata `json:"_backup_metadata"`
}

// BackupAndRestoreResult is returned by BackupAndRestore.
type BackupAndRestoreResult struct {
	Action  string
	Path    string
	Success bool
}

// BackupAndRestore writes the live schema plus a _backup_metadata header
// (action="backup"), or deletes and recreates the index from a prior backup
// (action="restore"), per spec.md §4.8. Writes are atomic: temp file then
// rename, per spec.md §5's filesystem-writer rule.
func (r *ReindexAutomation) BackupAndRestore(ctx context.Context, action, path string) (*BackupAndRestoreResult, error) {
	switch action {
	case "backup":
		if path == "" {
			path = fmt.Sprintf("index_backup_%s.json", time.Now().UTC().Format("20060102_150405"))
		}
		schema, err := r.ops.GetIndex(ctx, r.defaultIndex)
		if err != nil {
			return &BackupAndRestoreResult{Action: action, Path: path, Success: false}, err
		}
		var docCount *int
		if stats, err := r.ops.IndexStats(ctx, r.defaultIndex); err == nil {
			c := stats.DocumentCount
			docCount = &c
		}
		payload := backupFile{
			Schema: *schema,
			BackupMetadata: backupMetadata{
				Timestamp:     time.Now().UTC().Format(time.RFC3339),
				IndexName:     r.defaultIndex,
				DocumentCount: docCount,
			},
		}
		if err := writeAtomicJSON(path, payload); err != nil {
			return &BackupAndRestoreResult{Action: action, Path: path, Success: false}, err
		}
		return &BackupAndRestoreResult{Action: action, Path: path, Success: true}, nil

	case "restore":
		if path == "" {
			return nil, fmt.Errorf("valid backup file path required for restore")
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read backup: %w", err)
		}
		var schema search.Schema
		if err := json.Unmarshal(data, &schema); err != nil {
			return nil, fmt.Errorf("parse backup: %w", err)
		}
		_ = r.ops.DeleteIndex(ctx, r.defaultIndex) // best-effort
		if err := r.ops.CreateOrUpdateIndex(ctx, &schema); err != nil {
			return &BackupAndRestoreResult{Action: action, Path: path, Success: false}, err
		}
		return &BackupAndRestoreResult{Action: action, Path: path, Success: true}, nil

	default:
		return nil, fmt.Errorf("invalid action: %s", action)
	}
}

func writeAtomicJSON(path string, v any) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-backup-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

// ReindexRecommendation is one entry in AnalyzeReindexNeed's output.
type ReindexRecommendation struct {
	Priority string // "high", "medium", "low"
	Action   string
	Reason   string
}

// AnalyzeReindexNeedResult is returned by AnalyzeReindexNeed.
type AnalyzeReindexNeedResult struct {
	NeedsReindex    bool
	Health          *IndexHealth
	Recommendations []ReindexRecommendation
	AnalyzedAt      time.Time
}

const tenGiB = 10 * 1024 * 1024 * 1024

// AnalyzeReindexNeed composes schema validity, warnings, emptiness, and
// size checks into a priority-ordered recommendation list, per spec.md §4.8.
func (r *ReindexAutomation) AnalyzeReindexNeed(ctx context.Context, thresholdDays int) (*AnalyzeReindexNeedResult, error) {
	health, err := r.GetIndexHealth(ctx, r.defaultIndex)
	if err != nil {
		return nil, err
	}

	var recs []ReindexRecommendation
	if !health.SchemaValid {
		recs = append(recs, ReindexRecommendation{Priority: "high", Action: "drop-rebuild", Reason: fmt.Sprintf("schema validation failed: %v", health.SchemaIssues)})
	}
	if len(health.SchemaWarnings) > 0 {
		recs = append(recs, ReindexRecommendation{Priority: "medium", Action: "schema-update", Reason: fmt.Sprintf("schema warnings: %v", health.SchemaWarnings)})
	}
	if health.DocumentCount == 0 {
		recs = append(recs, ReindexRecommendation{Priority: "high", Action: "repository", Reason: "index is empty"})
	}
	if health.StorageSizeBytes > tenGiB {
		recs = append(recs, ReindexRecommendation{Priority: "low", Action: "optimize", Reason: "index size exceeds 10GB, consider optimization"})
	}
	rank := map[string]int{"high": 0, "medium": 1, "low": 2}
	sort.SliceStable(recs, func(i, j int) bool { return rank[recs[i].Priority] < rank[recs[j].Priority] })

	needsReindex := false
	for _, rec := range recs {
		if rec.Priority == "high" {
			needsReindex = true
			break
		}
	}

	return &AnalyzeReindexNeedResult{
		NeedsReindex:    needsReindex,
		Health:          health,
		Recommendations: recs,
		AnalyzedAt:      time.Now().UTC(),
	}, nil
}
