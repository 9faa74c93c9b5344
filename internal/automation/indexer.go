package automation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/henryperkins/mcprag-sub001/internal/search"
)

// IndexerAutomation is IndexerAutomation (spec.md §4.7), grounded on
// indexer_manager.py.
type IndexerAutomation struct {
	ops *search.Operations
}

func NewIndexerAutomation(ops *search.Operations) *IndexerAutomation {
	return &IndexerAutomation{ops: ops}
}

// PipelineResult names the resources created by CreateBlobIndexerPipeline
// and their outcome.
type PipelineResult struct {
	DatasourceName string
	SkillsetName   string
	IndexerName    string
	Started        bool
}

// CreateBlobIndexerPipeline creates a datasource, optional skillset, and
// indexer wired together, then triggers an immediate run, per spec.md §4.7.
// On any failure, resources created within this call are rolled back via a
// defer-driven cleanup stack before the error surfaces (SPEC_FULL.md §C.3),
// one of the few places a defer reads more naturally here than the
// reference's manual try/except cleanup.
func (ia *IndexerAutomation) CreateBlobIndexerPipeline(ctx context.Context, namePrefix, indexName, connectionString, containerName string, scheduleHours int, skillset *search.Skillset) (*PipelineResult, error) {
	datasourceName := namePrefix + "-datasource"
	indexerName := namePrefix + "-indexer"

	result := &PipelineResult{}
	succeeded := false

	var cleanup []func()
	defer func() {
		if succeeded {
			return
		}
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
	}()

	ds := &search.Datasource{
		Name:          datasourceName,
		Type:          "azureblob",
		ConnectionStr: connectionString,
		Container:     map[string]any{"name": containerName},
	}
	if err := ia.ops.CreateOrUpdateDatasource(ctx, ds); err != nil {
		return nil, fmt.Errorf("create datasource: %w", err)
	}
	result.DatasourceName = datasourceName
	cleanup = append(cleanup, func() { _ = ia.ops.DeleteDatasource(context.Background(), datasourceName) })

	skillsetName := ""
	if skillset != nil {
		skillsetName = namePrefix + "-skillset"
		skillset.Name = skillsetName
		if err := ia.ops.CreateOrUpdateSkillset(ctx, skillset); err != nil {
			return nil, fmt.Errorf("create skillset: %w", err)
		}
		result.SkillsetName = skillsetName
		cleanup = append(cleanup, func() { _ = ia.ops.DeleteSkillset(context.Background(), skillsetName) })
	}

	indexer := &search.Indexer{
		Name:            indexerName,
		DataSourceName:  datasourceName,
		TargetIndexName: indexName,
		SkillsetName:    skillsetName,
		Schedule:        &search.IndexerSchedule{Interval: fmt.Sprintf("PT%dH", scheduleHours)},
		Parameters: map[string]any{
			"configuration": map[string]any{
				"parsingMode":            "default",
				"maxFailedItems":         0,
				"maxFailedItemsPerBatch": 0,
			},
		},
	}
	if err := ia.ops.CreateOrUpdateIndexer(ctx, indexer); err != nil {
		return nil, fmt.Errorf("create indexer: %w", err)
	}
	result.IndexerName = indexerName
	cleanup = append(cleanup, func() { _ = ia.ops.DeleteIndexer(context.Background(), indexerName) })

	if err := ia.ops.RunIndexerAsync(ctx, indexerName); err != nil {
		return nil, fmt.Errorf("run indexer: %w", err)
	}
	result.Started = true

	succeeded = true
	return result, nil
}

// HealthSeverity is the three-valued classification monitor_indexer_health
// returns, per spec.md §4.7.
type HealthSeverity string

const (
	IndexerHealthy  HealthSeverity = "healthy"
	IndexerWarning  HealthSeverity = "warning"
	IndexerCritical HealthSeverity = "critical"
)

// IndexerHealthReport is returned by MonitorIndexerHealth.
type IndexerHealthReport struct {
	IndexerName     string
	CurrentStatus   string
	OverallHealth   HealthSeverity
	HealthScore     float64
	LookbackHours   int
	TotalExecutions int
	Succeeded       int
	Failed          int
	ItemsProcessed  int
	ItemsFailed     int
}

// MonitorIndexerHealth computes a health score from the fraction of
// successful executions within lookbackHours, classified
// healthy(>=90%)/warning(>=70%)/critical(<70%), per spec.md §4.7.
func (ia *IndexerAutomation) MonitorIndexerHealth(ctx context.Context, indexerName string, lookbackHours int) (*IndexerHealthReport, error) {
	status, err := ia.ops.GetIndexerStatus(ctx, indexerName)
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().UTC().Add(-time.Duration(lookbackHours) * time.Hour)
	report := &IndexerHealthReport{IndexerName: indexerName, CurrentStatus: status.Status, LookbackHours: lookbackHours}

	for _, exec := range status.ExecutionHistory {
		if exec.StartTime != "" {
			if t, err := time.Parse(time.RFC3339, exec.StartTime); err == nil && t.Before(cutoff) {
				continue
			}
		}
		if exec.Status == search.ExecSuccess {
			report.Succeeded++
		} else {
			report.Failed++
		}
		report.ItemsProcessed += exec.ItemsProcessed
		report.ItemsFailed += exec.ItemsFailed
	}

	report.TotalExecutions = report.Succeeded + report.Failed
	if report.TotalExecutions > 0 {
		report.HealthScore = round2(float64(report.Succeeded) / float64(report.TotalExecutions) * 100)
	}

	switch {
	case report.HealthScore >= 90 || report.TotalExecutions == 0:
		report.OverallHealth = IndexerHealthy
	case report.HealthScore >= 70:
		report.OverallHealth = IndexerWarning
	default:
		report.OverallHealth = IndexerCritical
	}
	return report, nil
}

// ScheduleRecommendation is one entry in OptimizeIndexerSchedule's output.
type ScheduleRecommendation struct {
	Type                      string
	Reason                    string
	CurrentIntervalMinutes    int
	RecommendedIntervalMinutes int
}

// OptimizeIndexerSchedule inspects the last 20 executions and recommends
// schedule adjustments, per spec.md §4.7 and SPEC_FULL.md §C.4's verbatim
// thresholds.
func (ia *IndexerAutomation) OptimizeIndexerSchedule(ctx context.Context, indexerName string, targetFreshnessMinutes int) ([]ScheduleRecommendation, error) {
	status, err := ia.ops.GetIndexerStatus(ctx, indexerName)
	if err != nil {
		return nil, err
	}
	indexerDef, err := ia.ops.GetIndexer(ctx, indexerName)
	if err != nil {
		return nil, err
	}

	history := status.ExecutionHistory
	if len(history) > 20 {
		history = history[:20]
	}
	if len(history) < 5 {
		return nil, nil
	}

	var totalExecSeconds, totalItems float64
	var execSamples int
	for _, exec := range history {
		if exec.StartTime != "" && exec.EndTime != "" {
			start, errStart := time.Parse(time.RFC3339, exec.StartTime)
			end, errEnd := time.Parse(time.RFC3339, exec.EndTime)
			if errStart == nil && errEnd == nil {
				totalExecSeconds += end.Sub(start).Seconds()
				execSamples++
			}
		}
		totalItems += float64(exec.ItemsProcessed)
	}

	avgExecSeconds := 0.0
	if execSamples > 0 {
		avgExecSeconds = totalExecSeconds / float64(execSamples)
	}
	avgItemsPerRun := totalItems / float64(len(history))

	currentMinutes := parseScheduleMinutes(indexerDef.Schedule)

	var recs []ScheduleRecommendation
	if avgExecSeconds > float64(currentMinutes)*60*0.5 {
		recommended := currentMinutes * 2
		if alt := int(avgExecSeconds / 60 * 2); alt > recommended {
			recommended = alt
		}
		recs = append(recs, ScheduleRecommendation{
			Type: "increase_interval", Reason: "execution time is too long relative to schedule",
			CurrentIntervalMinutes: currentMinutes, RecommendedIntervalMinutes: recommended,
		})
	}
	if avgItemsPerRun < 10 && currentMinutes < 1440 {
		recommended := currentMinutes * 4
		if recommended > 1440 {
			recommended = 1440
		}
		recs = append(recs, ScheduleRecommendation{
			Type: "decrease_frequency", Reason: "very few items processed per run",
			CurrentIntervalMinutes: currentMinutes, RecommendedIntervalMinutes: recommended,
		})
	}
	if currentMinutes > targetFreshnessMinutes {
		recs = append(recs, ScheduleRecommendation{
			Type: "increase_frequency", Reason: fmt.Sprintf("current schedule doesn't meet %d minute freshness target", targetFreshnessMinutes),
			CurrentIntervalMinutes: currentMinutes, RecommendedIntervalMinutes: targetFreshnessMinutes,
		})
	}
	return recs, nil
}

// parseScheduleMinutes parses the subset of ISO-8601 durations this repo
// ever writes ("PT{n}H" or "PT{n}M"), defaulting to 60 minutes.
func parseScheduleMinutes(schedule *search.IndexerSchedule) int {
	if schedule == nil || !strings.HasPrefix(schedule.Interval, "PT") {
		return 60
	}
	body := schedule.Interval[2:]
	switch {
	case strings.HasSuffix(body, "H"):
		var hours int
		fmt.Sscanf(body, "%dH", &hours)
		return hours * 60
	case strings.HasSuffix(body, "M"):
		var minutes int
		fmt.Sscanf(body, "%dM", &minutes)
		return minutes
	default:
		return 60
	}
}

// ResetAndRunResult is returned by ResetAndRun.
type ResetAndRunResult struct {
	Status         string // "started", "completed", or "timeout"
	FinalStatus    search.IndexerExecutionStatus
	ItemsProcessed int
	ItemsFailed    int
}

// ResetAndRun resets then runs indexerName, optionally polling for
// completion, per spec.md §4.7.
func (ia *IndexerAutomation) ResetAndRun(ctx context.Context, indexerName string, wait bool, timeout time.Duration) (*ResetAndRunResult, error) {
	if err := ia.ops.ResetIndexer(ctx, indexerName); err != nil {
		return nil, fmt.Errorf("reset indexer: %w", err)
	}
	if err := ia.ops.RunIndexerAsync(ctx, indexerName); err != nil {
		return nil, fmt.Errorf("run indexer: %w", err)
	}
	if !wait {
		return &ResetAndRunResult{Status: "started"}, nil
	}

	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		status, err := ia.ops.GetIndexerStatus(ctx, indexerName)
		if err != nil {
			return nil, err
		}
		if status.Status == "idle" || status.Status == "error" {
			result := &ResetAndRunResult{Status: "completed"}
			if status.LastResult != nil {
				result.FinalStatus = status.LastResult.Status
				result.ItemsProcessed = status.LastResult.ItemsProcessed
				result.ItemsFailed = status.LastResult.ItemsFailed
			}
			return result, nil
		}
		if time.Now().After(deadline) {
			return &ResetAndRunResult{Status: "timeout"}, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
