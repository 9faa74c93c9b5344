// Package automation implements the façade components of spec.md §4.6-4.8,
// §4.11: DataAutomation, IndexerAutomation, ReindexAutomation, HealthMonitor,
// and the Unified/CLI façades that compose them, grounded on
// original_source/enhanced_rag/azure_integration/automation/*.py.
package automation

import (
	"context"
	"fmt"
	"time"

	"github.com/henryperkins/mcprag-sub001/internal/ratelimit"
	"github.com/henryperkins/mcprag-sub001/internal/search"
)

const maxFailedDocumentsLogged = 100

// BulkUploadReport is the summary returned by DataAutomation.BulkUpload, per
// spec.md §4.6.
type BulkUploadReport struct {
	TotalProcessed     int
	Succeeded          int
	Failed             int
	ElapsedSeconds     float64
	DocumentsPerSecond float64
	FailedDocuments    []search.UploadResultItem
}

// DataAutomation is DataAutomation (spec.md §4.6), grounded on
// data_manager.py.
type DataAutomation struct {
	ops     *search.Operations
	limiter *ratelimit.Limiter
}

func NewDataAutomation(ops *search.Operations, limiter *ratelimit.Limiter) *DataAutomation {
	return &DataAutomation{ops: ops, limiter: limiter}
}

// BulkUpload drains docs in batches of at most batchSize (clamped to 1000),
// uploading each batch and accumulating per-item results, per spec.md §4.6.
// progressCB, if non-nil, is invoked after every batch with the running
// totals.
func (d *DataAutomation) BulkUpload(ctx context.Context, indexName string, docs <-chan *search.Document, batchSize int, merge bool, progressCB func(processed, succeeded, failed int)) (*BulkUploadReport, error) {
	if batchSize <= 0 || batchSize > 1000 {
		batchSize = 1000
	}

	start := time.Now()
	report := &BulkUploadReport{}

	batch := make([]*search.Document, 0, batchSize)
	batchBytes := 0
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		succeeded, failed, failedItems, err := d.uploadBatch(ctx, indexName, batch, merge)
		report.TotalProcessed += len(batch)
		report.Succeeded += succeeded
		report.Failed += failed
		if len(report.FailedDocuments) < maxFailedDocumentsLogged {
			remaining := maxFailedDocumentsLogged - len(report.FailedDocuments)
			if remaining > len(failedItems) {
				remaining = len(failedItems)
			}
			report.FailedDocuments = append(report.FailedDocuments, failedItems[:remaining]...)
		}
		if progressCB != nil {
			progressCB(report.TotalProcessed, report.Succeeded, report.Failed)
		}
		batch = batch[:0]
		batchBytes = 0
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return report, ctx.Err()
		case doc, ok := <-docs:
			if !ok {
				if err := flush(); err != nil {
					return report, err
				}
				report.ElapsedSeconds = time.Since(start).Seconds()
				if report.ElapsedSeconds > 0 {
					report.DocumentsPerSecond = float64(report.TotalProcessed) / report.ElapsedSeconds
				}
				return report, nil
			}
			docBytes := doc.JSONSize()
			// Split before adding a document that would push the batch's
			// accumulated serialized size past the bound, per spec.md
			// §4.6/§8 — count alone is not sufficient, since a handful of
			// near-32000-char documents already exceeds 1 MiB.
			if len(batch) > 0 && batchBytes+docBytes > search.MaxBatchBytes {
				if err := flush(); err != nil {
					return report, err
				}
			}
			batch = append(batch, doc)
			batchBytes += docBytes
			if len(batch) >= batchSize || batchBytes >= search.MaxBatchBytes {
				if err := flush(); err != nil {
					return report, err
				}
			}
		}
	}
}

// uploadBatch uploads one batch, treating a whole-batch transport failure as
// every document failed (the batch-level retry already happened inside
// RestClient), per data_manager.py's _upload_batch.
func (d *DataAutomation) uploadBatch(ctx context.Context, indexName string, batch []*search.Document, merge bool) (succeeded, failed int, failedItems []search.UploadResultItem, err error) {
	docs := make([]search.Document, len(batch))
	for i, doc := range batch {
		docs[i] = *doc
	}
	result, uploadErr := d.ops.Upload(ctx, indexName, docs, merge)
	if uploadErr != nil {
		return 0, len(batch), []search.UploadResultItem{{ErrorMsg: uploadErr.Error()}}, uploadErr
	}
	for _, item := range result {
		if item.Status {
			succeeded++
		} else {
			failed++
			failedItems = append(failedItems, item)
		}
	}
	return succeeded, failed, failedItems, nil
}

// CleanupReport is returned by CleanupOldDocuments.
type CleanupReport struct {
	Found      int
	Deleted    int
	DryRun     bool
	DateField  string
	CutoffDate string
}

// CleanupOldDocuments deletes (or, with dryRun, only counts) documents whose
// dateField is older than now-daysOld, per spec.md §4.6.
func (d *DataAutomation) CleanupOldDocuments(ctx context.Context, indexName, dateField string, daysOld int, dryRun bool) (*CleanupReport, error) {
	cutoff := time.Now().UTC().Add(-time.Duration(daysOld) * 24 * time.Hour)
	cutoffStr := cutoff.Format(time.RFC3339)
	report := &CleanupReport{DryRun: dryRun, DateField: dateField, CutoffDate: cutoffStr}

	const batchSize = 100
	skip := 0
	for {
		resp, err := d.ops.Search(ctx, indexName, search.SearchRequest{
			Search: "*",
			Filter: fmt.Sprintf("%s lt %s", dateField, cutoffStr),
			Select: "id",
			Top:    batchSize,
			Skip:   skip,
		})
		if err != nil {
			return report, err
		}
		if len(resp.Value) == 0 {
			break
		}
		report.Found += len(resp.Value)

		if !dryRun {
			keys := make([]string, len(resp.Value))
			for i, item := range resp.Value {
				keys[i] = item.ID
			}
			deleteResp, err := d.ops.DeleteByKeys(ctx, indexName, "id", keys)
			if err != nil {
				return report, err
			}
			for _, item := range deleteResp {
				if item.Status {
					report.Deleted++
				}
			}
		} else {
			report.Deleted = report.Found
		}

		if len(resp.Value) < batchSize {
			break
		}
		skip += batchSize
		if err := d.throttle(ctx); err != nil {
			return report, err
		}
	}
	return report, nil
}

// ReindexReport is returned by ReindexDocuments.
type ReindexReport struct {
	TotalProcessed int
	Succeeded      int
	Failed         int
	SourceIndex    string
	TargetIndex    string
}

// ReindexDocuments paginates source in deterministic order, optionally
// transforms each document, and uploads the result to target, per
// spec.md §4.6. A transform returning (nil, nil) drops the document.
func (d *DataAutomation) ReindexDocuments(ctx context.Context, source, target string, transform func(*search.Document) (*search.Document, error), filterExpr string) (*ReindexReport, error) {
	report := &ReindexReport{SourceIndex: source, TargetIndex: target}
	const batchSize = 100
	skip := 0

	for {
		req := search.SearchRequest{
			Search:  "*",
			Top:     batchSize,
			Skip:    skip,
			OrderBy: "id asc",
		}
		if filterExpr != "" {
			req.Filter = filterExpr
		}
		resp, err := d.ops.Search(ctx, source, req)
		if err != nil {
			return report, err
		}
		if len(resp.Value) == 0 {
			break
		}

		docs := make([]*search.Document, 0, len(resp.Value))
		for i := range resp.Value {
			doc := resp.Value[i].Document
			if transform != nil {
				transformed, err := transform(&doc)
				if err != nil || transformed == nil {
					continue
				}
				doc = *transformed
			}
			docs = append(docs, &doc)
		}

		if len(docs) > 0 {
			succeeded, failed, _, err := d.uploadBatch(ctx, target, docs, false)
			if err != nil {
				return report, err
			}
			report.TotalProcessed += len(docs)
			report.Succeeded += succeeded
			report.Failed += failed
		}

		if len(resp.Value) < batchSize {
			break
		}
		skip += batchSize
		if err := d.throttle(ctx); err != nil {
			return report, err
		}
	}
	return report, nil
}

// VerifyIssue names one verification finding.
type VerifyIssue struct {
	Type       string
	DocumentID string
	Field      string
}

// VerifyReport is returned by VerifyDocuments.
type VerifyReport struct {
	TotalDocuments    int
	SampledDocuments  int
	Issues            []VerifyIssue
	IssueCount        int
	FieldCoveragePct  map[string]float64
	VerifiedAt        time.Time
}

const maxVerifyIssuesReported = 50

// VerifyDocuments samples up to sampleSize documents and reports missing
// checkFields plus per-field presence coverage, per spec.md §4.6.
func (d *DataAutomation) VerifyDocuments(ctx context.Context, indexName string, sampleSize int, checkFields []string) (*VerifyReport, error) {
	total, err := d.ops.CountDocuments(ctx, indexName)
	if err != nil {
		return nil, err
	}

	top := sampleSize
	if total < top {
		top = total
	}
	resp, err := d.ops.Search(ctx, indexName, search.SearchRequest{Search: "*", Top: top})
	if err != nil {
		return nil, err
	}

	report := &VerifyReport{
		TotalDocuments:   total,
		SampledDocuments: len(resp.Value),
		FieldCoveragePct: make(map[string]float64),
		VerifiedAt:       time.Now().UTC(),
	}

	present := make(map[string]int)
	for _, item := range resp.Value {
		fields := documentFieldPresence(item.Document)
		for _, field := range checkFields {
			if !fields[field] {
				report.Issues = append(report.Issues, VerifyIssue{Type: "missing_field", DocumentID: item.ID, Field: field})
			}
		}
		for field, ok := range fields {
			if ok {
				present[field]++
			}
		}
	}

	report.IssueCount = len(report.Issues)
	if len(report.Issues) > maxVerifyIssuesReported {
		report.Issues = report.Issues[:maxVerifyIssuesReported]
	}

	if len(resp.Value) > 0 {
		for field, count := range present {
			report.FieldCoveragePct[field] = round2(float64(count) / float64(len(resp.Value)) * 100)
		}
	}
	return report, nil
}

// documentFieldPresence reports, for the fields that matter to verification,
// whether each is non-empty on doc.
func documentFieldPresence(doc search.Document) map[string]bool {
	return map[string]bool{
		"content":       doc.Content != "",
		"repository":    doc.Repository != "",
		"file_path":     doc.FilePath != "",
		"language":      doc.Language != "",
		"chunk_type":    doc.ChunkType != "",
		"function_name": doc.FunctionName != "",
		"class_name":    doc.ClassName != "",
		"docstring":     doc.Docstring != "",
		"last_modified": doc.LastModified != "",
	}
}

func round2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}

// ExportDocumentsIterator streams documents from indexName matching
// filterExpr (select restricted to selectFields, if any) onto the returned
// channel, closing it when exhausted or ctx is done, with a small per-page
// delay per spec.md §4.6. Errors are sent on the error channel and terminate
// the stream.
func (d *DataAutomation) ExportDocumentsIterator(ctx context.Context, indexName, filterExpr string, selectFields []string, pageDelay time.Duration) (<-chan search.Document, <-chan error) {
	out := make(chan search.Document)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		const batchSize = 100
		skip := 0
		selectExpr := ""
		for i, f := range selectFields {
			if i > 0 {
				selectExpr += ","
			}
			selectExpr += f
		}

		for {
			resp, err := d.ops.Search(ctx, indexName, search.SearchRequest{
				Search: "*",
				Filter: filterExpr,
				Select: selectExpr,
				Top:    batchSize,
				Skip:   skip,
			})
			if err != nil {
				errCh <- err
				return
			}
			if len(resp.Value) == 0 {
				return
			}

			for _, item := range resp.Value {
				select {
				case out <- item.Document:
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				}
			}

			if len(resp.Value) < batchSize {
				return
			}
			skip += batchSize

			if pageDelay > 0 {
				select {
				case <-time.After(pageDelay):
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				}
			}
		}
	}()

	return out, errCh
}

// ExportDocuments materializes ExportDocumentsIterator's stream into a
// slice, per spec.md §4.6's "export_documents" non-iterator form.
func (d *DataAutomation) ExportDocuments(ctx context.Context, indexName, filterExpr string, selectFields []string, pageDelay time.Duration) ([]search.Document, error) {
	out, errCh := d.ExportDocumentsIterator(ctx, indexName, filterExpr, selectFields, pageDelay)
	var docs []search.Document
	for doc := range out {
		docs = append(docs, doc)
	}
	if err := <-errCh; err != nil {
		return docs, err
	}
	return docs, nil
}

// throttle applies the shared rate limiter between pagination pages, if one
// is configured.
func (d *DataAutomation) throttle(ctx context.Context) error {
	if d.limiter == nil {
		return nil
	}
	release, err := d.limiter.Acquire(ctx)
	if err != nil {
		return err
	}
	release()
	return nil
}
