package models

import (
	"fmt"
	"math"
	"time"
)

const (
	StatusOptimal        = "optimal"
	StatusGood           = "good"
	StatusNeedsAttention = "needs_attention"
)

// Update DTOs use pointer fields so absent keys are distinguishable from
// explicit zeroes; merges only touch the fields a caller actually sent.

type CostUpdate struct {
	ClaudeAPI *float64 `json:"claude_api,omitempty"`
	Storage   *float64 `json:"storage,omitempty"`
	Compute   *float64 `json:"compute,omitempty"`
	Bandwidth *float64 `json:"bandwidth,omitempty"`
	Total     *float64 `json:"total,omitempty"`
	Currency  *string  `json:"currency,omitempty"`
}

type EfficiencyUpdate struct {
	DocumentsPerHour     *float64 `json:"documents_per_hour,omitempty"`
	TokensPerSecond      *float64 `json:"tokens_per_second,omitempty"`
	ProcessingEfficiency *float64 `json:"processing_efficiency,omitempty"`
	ResourceUtilization  *float64 `json:"resource_utilization,omitempty"`
}

// TotalTime is accepted for coherence checking only; the merge recomputes it
// from the five components and ignores the supplied value.
type PerformanceUpdate struct {
	GenerationTime *float64          `json:"generation_time,omitempty"`
	ProcessingTime *float64          `json:"processing_time,omitempty"`
	InterviewTime  *float64          `json:"interview_time,omitempty"`
	ExportTime     *float64          `json:"export_time,omitempty"`
	QueueWaitTime  *float64          `json:"queue_wait_time,omitempty"`
	TotalTime      *float64          `json:"total_time,omitempty"`
	Efficiency     *EfficiencyUpdate `json:"efficiency,omitempty"`
}

type ActivityPatternUpdate struct {
	PeakHours          []int      `json:"peak_hours,omitempty"`
	AvgDocumentsPerDay *float64   `json:"avg_documents_per_day,omitempty"`
	LastActivityAt     *time.Time `json:"last_activity_at,omitempty"`
}

type UsageUpdate struct {
	DocumentsGenerated *int64                 `json:"documents_generated,omitempty"`
	FilesProcessed     *int64                 `json:"files_processed,omitempty"`
	TokensUsed         *int64                 `json:"tokens_used,omitempty"`
	APICallsCount      *int64                 `json:"api_calls_count,omitempty"`
	StorageSize        *int64                 `json:"storage_size,omitempty"`
	ExportCount        *int64                 `json:"export_count,omitempty"`
	ActivityPattern    *ActivityPatternUpdate `json:"activity_pattern,omitempty"`
}

type MetadataUpdate struct {
	Sources    []string   `json:"sources,omitempty"`
	Version    *string    `json:"version,omitempty"`
	BatchID    *string    `json:"batch_id,omitempty"`
	Confidence *float64   `json:"confidence,omitempty"`
	Timestamp  *time.Time `json:"timestamp,omitempty"`
}

type UpdateStatisticsRequest struct {
	Costs       *CostUpdate        `json:"costs,omitempty"`
	Performance *PerformanceUpdate `json:"performance,omitempty"`
	Usage       *UsageUpdate       `json:"usage,omitempty"`
	Metadata    *MetadataUpdate    `json:"metadata,omitempty"`
}

// IsEmpty reports whether the request carries no sub-record at all.
func (r *UpdateStatisticsRequest) IsEmpty() bool {
	return r == nil || (r.Costs == nil && r.Performance == nil && r.Usage == nil && r.Metadata == nil)
}

func derefOr0(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func derefOr0i(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}

// ValidateCoherence checks the request's internal consistency: supplied
// totals against supplied components, document counts against file counts,
// and the report timestamp against server time. The result is advisory; the
// caller logs issues but persists anyway.
func (r *UpdateStatisticsRequest) ValidateCoherence(now time.Time) ConsistencyReport {
	issues := []string{}
	if r == nil {
		return ConsistencyReport{Valid: true, Issues: issues}
	}

	if r.Costs != nil && r.Costs.Total != nil {
		componentSum := derefOr0(r.Costs.ClaudeAPI) + derefOr0(r.Costs.Storage) +
			derefOr0(r.Costs.Compute) + derefOr0(r.Costs.Bandwidth)
		if math.Abs(*r.Costs.Total-componentSum) > costTotalToleranceUSD {
			issues = append(issues, fmt.Sprintf(
				"supplied cost total %.4f does not match component sum %.4f", *r.Costs.Total, componentSum))
		}
	}

	if r.Performance != nil && r.Performance.TotalTime != nil {
		timeSum := derefOr0(r.Performance.GenerationTime) + derefOr0(r.Performance.ProcessingTime) +
			derefOr0(r.Performance.InterviewTime) + derefOr0(r.Performance.ExportTime) +
			derefOr0(r.Performance.QueueWaitTime)
		if math.Abs(*r.Performance.TotalTime-timeSum) > totalTimeToleranceSecs {
			issues = append(issues, fmt.Sprintf(
				"supplied total time %.3fs does not match component sum %.3fs", *r.Performance.TotalTime, timeSum))
		}
	}

	if r.Usage != nil && r.Usage.DocumentsGenerated != nil {
		filesProcessed := derefOr0i(r.Usage.FilesProcessed)
		if *r.Usage.DocumentsGenerated > filesProcessed+10 {
			issues = append(issues, fmt.Sprintf(
				"documents generated %d exceeds files processed %d by more than 10", *r.Usage.DocumentsGenerated, filesProcessed))
		}
	}

	if r.Metadata != nil && r.Metadata.Timestamp != nil {
		ts := *r.Metadata.Timestamp
		if ts.After(now.Add(5*time.Minute)) || ts.Before(now.Add(-24*time.Hour)) {
			issues = append(issues, fmt.Sprintf(
				"report timestamp %s is outside the accepted window", ts.Format(time.RFC3339)))
		}
	}

	return ConsistencyReport{Valid: len(issues) == 0, Issues: issues}
}

// PartialUpdateRequest replaces whole sub-records without any merge or
// derived-field recompute. Totals, breakdowns and bottlenecks are written
// exactly as supplied; callers own their consistency.
type PartialUpdateRequest struct {
	Costs       *CostData        `json:"costs,omitempty"`
	Performance *PerformanceData `json:"performance,omitempty"`
	Usage       *UsageData       `json:"usage,omitempty"`
	Metadata    *StatsMetadata   `json:"metadata,omitempty"`
}

func (r *PartialUpdateRequest) IsEmpty() bool {
	return r == nil || (r.Costs == nil && r.Performance == nil && r.Usage == nil && r.Metadata == nil)
}

type BatchStatisticsRequest struct {
	ProjectIDs []string `json:"project_ids" validate:"required,min=1,max=100"`
}

type SearchCriteria struct {
	MinCostTotal *float64   `json:"min_cost_total,omitempty"`
	MaxCostTotal *float64   `json:"max_cost_total,omitempty"`
	MinDocuments *int64     `json:"min_documents,omitempty"`
	MaxTotalTime *float64   `json:"max_total_time,omitempty"`
	UpdatedAfter *time.Time `json:"updated_after,omitempty"`
	Sources      []string   `json:"sources,omitempty"`
	Limit        int        `json:"limit,omitempty"`
	Offset       int        `json:"offset,omitempty"`
}

type CleanupRequest struct {
	RetentionDays int `json:"retention_days,omitempty"`
}

// CostView extends the stored cost record with the read-time ratios.
type CostView struct {
	CostData
	CostPerDocument *float64 `json:"cost_per_document,omitempty"`
	CostPerHour     *float64 `json:"cost_per_hour,omitempty"`
}

type EfficiencyScores struct {
	CostEfficiency        float64 `json:"cost_efficiency"`
	PerformanceEfficiency float64 `json:"performance_efficiency"`
	UsageEfficiency       float64 `json:"usage_efficiency"`
	Overall               float64 `json:"overall"`
	Status                string  `json:"status"`
}

type StatisticsResponse struct {
	ID              string           `json:"id"`
	ProjectID       string           `json:"project_id"`
	Costs           CostView         `json:"costs"`
	Performance     PerformanceData  `json:"performance"`
	Usage           UsageData        `json:"usage"`
	Metadata        StatsMetadata    `json:"metadata"`
	Efficiency      EfficiencyScores `json:"efficiency_scores"`
	Recommendations []string         `json:"recommendations"`
	Version         int64            `json:"version"`
	LastUpdated     time.Time        `json:"last_updated"`
}

type StatisticsSummary struct {
	ProjectID          string    `json:"project_id"`
	TotalCost          float64   `json:"total_cost"`
	TotalTime          float64   `json:"total_time"`
	DocumentsGenerated int64     `json:"documents_generated"`
	QualityScore       float64   `json:"quality_score"`
	OverallEfficiency  float64   `json:"overall_efficiency"`
	Status             string    `json:"status"`
	Bottlenecks        []string  `json:"bottlenecks"`
	Recommendations    []string  `json:"recommendations"`
	LastUpdated        time.Time `json:"last_updated"`
}

type GlobalStatistics struct {
	TotalProjects       int64     `json:"total_projects"`
	TotalCost           float64   `json:"total_cost"`
	TotalDocuments      int64     `json:"total_documents"`
	AverageQualityScore float64   `json:"average_quality_score"`
	GeneratedAt         time.Time `json:"generated_at"`
}
