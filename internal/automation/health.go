package automation

import (
	"context"

	"github.com/henryperkins/mcprag-sub001/internal/search"
)

// Status is the tri-valued (plus error) overall classification HealthMonitor
// rolls service/index/indexer health up to, per spec.md §4.11.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
	StatusError    Status = "error"
)

// Issue is one structured health finding, per spec.md §4.11.
type Issue struct {
	Type     string
	Message  string
	Severity Status
}

// ServiceHealth rolls up service statistics (counters vs limits), per
// spec.md §4.11.
type ServiceHealth struct {
	Status Status
	Issues []Issue
	Stats  *search.ServiceStatistics
}

// IndexerHealth is one indexer's contribution to the full health report.
type IndexerHealth struct {
	Name   string
	Status Status
	Report *IndexerHealthReport
}

// FullHealthReport composes service, index, and indexer health into one
// overall status, per spec.md §4.11 and SPEC_FULL.md §C.5 (severity
// precedence carried from health_monitor.py:get_full_health_report:
// critical > error > warning > healthy — the base spec names the four
// states but not their combination order).
type FullHealthReport struct {
	Overall  Status
	Service  ServiceHealth
	Indexes  []IndexHealth
	Indexers []IndexerHealth
	Issues   []Issue
}

// HealthMonitor is HealthMonitor (spec.md §4.11), grounded on
// original_source/enhanced_rag/azure_integration/automation/health_monitor.py.
type HealthMonitor struct {
	ops     *search.Operations
	reindex *ReindexAutomation
	indexer *IndexerAutomation
}

func NewHealthMonitor(ops *search.Operations, reindex *ReindexAutomation, indexer *IndexerAutomation) *HealthMonitor {
	return &HealthMonitor{ops: ops, reindex: reindex, indexer: indexer}
}

// ServiceHealth rolls up service statistics: a counter at or above 90% of
// its quota is a warning, at or above 100% is critical.
func (h *HealthMonitor) ServiceHealth(ctx context.Context) ServiceHealth {
	stats, err := h.ops.ServiceStatistics(ctx)
	if err != nil {
		return ServiceHealth{Status: StatusError, Issues: []Issue{{
			Type: "service_stats", Message: "failed to fetch service statistics", Severity: StatusError,
		}}}
	}

	result := ServiceHealth{Status: StatusHealthy, Stats: stats}
	for name, counter := range stats.Counters {
		if counter.Quota <= 0 {
			continue
		}
		ratio := float64(counter.Usage) / float64(counter.Quota)
		switch {
		case ratio >= 1.0:
			result.Issues = append(result.Issues, Issue{Type: "quota", Message: name + " at or over quota", Severity: StatusCritical})
			result.Status = worstOf(result.Status, StatusCritical)
		case ratio >= 0.9:
			result.Issues = append(result.Issues, Issue{Type: "quota", Message: name + " approaching quota", Severity: StatusWarning})
			result.Status = worstOf(result.Status, StatusWarning)
		}
	}
	return result
}

// IndexHealth reports one index's health via ReindexAutomation.GetIndexHealth,
// classified by the presence of hard issues (critical) vs warnings only
// (warning) vs neither (healthy).
func (h *HealthMonitor) IndexHealth(ctx context.Context, indexName string) (*IndexHealth, Status) {
	report, err := h.reindex.GetIndexHealth(ctx, indexName)
	if err != nil {
		return nil, StatusError
	}
	switch {
	case len(report.SchemaIssues) > 0:
		return report, StatusCritical
	case len(report.SchemaWarnings) > 0:
		return report, StatusWarning
	default:
		return report, StatusHealthy
	}
}

// IndexerHealthStatus reclassifies an IndexerHealthReport's three-valued
// HealthSeverity onto the shared Status scale HealthMonitor uses.
func (h *HealthMonitor) IndexerHealthStatus(ctx context.Context, indexerName string, lookbackHours int) (*IndexerHealthReport, Status) {
	report, err := h.indexer.MonitorIndexerHealth(ctx, indexerName, lookbackHours)
	if err != nil {
		return nil, StatusError
	}
	switch report.OverallHealth {
	case IndexerCritical:
		return report, StatusCritical
	case IndexerWarning:
		return report, StatusWarning
	default:
		return report, StatusHealthy
	}
}

// FullReport composes service, index, and indexer health for the named
// indexes/indexers into one rollup, per spec.md §4.11.
func (h *HealthMonitor) FullReport(ctx context.Context, indexNames, indexerNames []string, lookbackHours int) *FullHealthReport {
	report := &FullHealthReport{Overall: StatusHealthy}

	report.Service = h.ServiceHealth(ctx)
	report.Overall = worstOf(report.Overall, report.Service.Status)
	report.Issues = append(report.Issues, report.Service.Issues...)

	for _, name := range indexNames {
		idx, status := h.IndexHealth(ctx, name)
		report.Overall = worstOf(report.Overall, status)
		if idx != nil {
			report.Indexes = append(report.Indexes, *idx)
			for _, msg := range idx.SchemaIssues {
				report.Issues = append(report.Issues, Issue{Type: "index_schema", Message: msg, Severity: StatusCritical})
			}
			for _, msg := range idx.SchemaWarnings {
				report.Issues = append(report.Issues, Issue{Type: "index_schema", Message: msg, Severity: StatusWarning})
			}
		} else {
			report.Issues = append(report.Issues, Issue{Type: "index", Message: "failed to fetch health for index " + name, Severity: StatusError})
		}
	}

	for _, name := range indexerNames {
		ih, status := h.IndexerHealthStatus(ctx, name, lookbackHours)
		report.Overall = worstOf(report.Overall, status)
		entry := IndexerHealth{Name: name, Status: status, Report: ih}
		report.Indexers = append(report.Indexers, entry)
		if ih == nil {
			report.Issues = append(report.Issues, Issue{Type: "indexer", Message: "failed to fetch health for indexer " + name, Severity: StatusError})
		}
	}

	return report
}

// worstOf applies the critical > error > warning > healthy precedence from
// health_monitor.py:get_full_health_report.
func worstOf(a, b Status) Status {
	rank := map[Status]int{StatusHealthy: 0, StatusWarning: 1, StatusError: 2, StatusCritical: 3}
	if rank[b] > rank[a] {
		return b
	}
	return a
}
