package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

const (
	TrendStable = "stable"

	ResourceIntensityLight     = "light"
	ResourceIntensityModerate  = "moderate"
	ResourceIntensityIntensive = "intensive"

	BenchmarkFaster  = "faster"
	BenchmarkAverage = "average"
	BenchmarkSlower  = "slower"
)

// Phase thresholds in seconds; a phase exceeding its threshold is a bottleneck.
const (
	generationBottleneckThreshold = 60.0
	processingBottleneckThreshold = 30.0
	interviewBottleneckThreshold  = 300.0
	exportBottleneckThreshold     = 20.0
	queueWaitBottleneckThreshold  = 10.0
)

const (
	benchmarkFasterSecondsPerDoc  = 60.0
	benchmarkAverageSecondsPerDoc = 120.0

	intensityTokensThreshold    = 10000
	intensityDocumentsThreshold = 5
	intensityStorageThreshold   = 10 * 1024 * 1024
	intensityAPICallsThreshold  = 20

	costTotalToleranceUSD  = 0.01
	totalTimeToleranceSecs = 0.1

	freshnessPenaltyStartMinutes = 60.0
	freshnessPenaltyCap          = 20.0
)

type CostBreakdown struct {
	ClaudeAPIPercentage float64 `json:"claude_api_percentage"`
	StoragePercentage   float64 `json:"storage_percentage"`
	ComputePercentage   float64 `json:"compute_percentage"`
	BandwidthPercentage float64 `json:"bandwidth_percentage"`
}

type CostData struct {
	ClaudeAPI float64       `json:"claude_api"`
	Storage   float64       `json:"storage"`
	Compute   float64       `json:"compute"`
	Bandwidth float64       `json:"bandwidth"`
	Total     float64       `json:"total"`
	Currency  string        `json:"currency"`
	Breakdown CostBreakdown `json:"breakdown"`
	Trend     string        `json:"trend"`
}

type EfficiencyData struct {
	DocumentsPerHour     float64 `json:"documents_per_hour"`
	TokensPerSecond      float64 `json:"tokens_per_second"`
	ProcessingEfficiency float64 `json:"processing_efficiency"`
	ResourceUtilization  float64 `json:"resource_utilization"`
}

type PerformanceData struct {
	GenerationTime float64        `json:"generation_time"`
	ProcessingTime float64        `json:"processing_time"`
	InterviewTime  float64        `json:"interview_time"`
	ExportTime     float64        `json:"export_time"`
	QueueWaitTime  float64        `json:"queue_wait_time"`
	TotalTime      float64        `json:"total_time"`
	Efficiency     EfficiencyData `json:"efficiency"`
	Bottlenecks    []string       `json:"bottlenecks"`
	Benchmark      string         `json:"benchmark"`
}

type ActivityPattern struct {
	PeakHours          []int      `json:"peak_hours,omitempty"`
	AvgDocumentsPerDay float64    `json:"avg_documents_per_day,omitempty"`
	LastActivityAt     *time.Time `json:"last_activity_at,omitempty"`
}

type UsageData struct {
	DocumentsGenerated int64           `json:"documents_generated"`
	FilesProcessed     int64           `json:"files_processed"`
	TokensUsed         int64           `json:"tokens_used"`
	APICallsCount      int64           `json:"api_calls_count"`
	StorageSize        int64           `json:"storage_size"`
	ExportCount        int64           `json:"export_count"`
	TokensPerDocument  *int64          `json:"tokens_per_document,omitempty"`
	StorageEfficiency  float64         `json:"storage_efficiency"`
	ActivityPattern    ActivityPattern `json:"activity_pattern"`
	ResourceIntensity  string          `json:"resource_intensity"`
}

type StatsMetadata struct {
	Sources       []string   `json:"sources,omitempty"`
	Version       string     `json:"version,omitempty"`
	BatchID       string     `json:"batch_id,omitempty"`
	Confidence    float64    `json:"confidence"`
	DataFreshness float64    `json:"data_freshness"`
	Completeness  float64    `json:"completeness"`
	QualityScore  float64    `json:"quality_score"`
	Timestamp     *time.Time `json:"timestamp,omitempty"`
}

func jsonColumnValue(v any) (driver.Value, error) {
	b, err := json.Marshal(v)
	return string(b), err
}

func scanJSONColumn(dst any, value any) error {
	if value == nil {
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("unsupported type for JSON column: %T", value)
	}
	if len(bytes) == 0 {
		return nil
	}
	return json.Unmarshal(bytes, dst)
}

func jsonColumnDBType(db *gorm.DB) string {
	switch db.Dialector.Name() {
	case "postgres":
		return "JSONB"
	case "mysql":
		return "JSON"
	case "sqlite":
		return "TEXT"
	case "clickhouse":
		return "String"
	default:
		return "TEXT"
	}
}

func (c CostData) Value() (driver.Value, error) {
	return jsonColumnValue(c)
}

func (c *CostData) Scan(value any) error {
	return scanJSONColumn(c, value)
}

func (CostData) GormDataType() string {
	return "json"
}

func (CostData) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	return jsonColumnDBType(db)
}

func (p PerformanceData) Value() (driver.Value, error) {
	return jsonColumnValue(p)
}

func (p *PerformanceData) Scan(value any) error {
	return scanJSONColumn(p, value)
}

func (PerformanceData) GormDataType() string {
	return "json"
}

func (PerformanceData) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	return jsonColumnDBType(db)
}

func (u UsageData) Value() (driver.Value, error) {
	return jsonColumnValue(u)
}

func (u *UsageData) Scan(value any) error {
	return scanJSONColumn(u, value)
}

func (UsageData) GormDataType() string {
	return "json"
}

func (UsageData) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	return jsonColumnDBType(db)
}

func (m StatsMetadata) Value() (driver.Value, error) {
	return jsonColumnValue(m)
}

func (m *StatsMetadata) Scan(value any) error {
	return scanJSONColumn(m, value)
}

func (StatsMetadata) GormDataType() string {
	return "json"
}

func (StatsMetadata) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	return jsonColumnDBType(db)
}

// ProjectStatistics holds one project's merged statistics. Sub-records are
// persisted as JSON columns; the scalar columns mirror the hot fields so
// criteria queries and aggregates stay dialect-neutral.
type ProjectStatistics struct {
	ID          string          `gorm:"primaryKey;size:36" json:"id"`
	ProjectID   string          `gorm:"uniqueIndex;not null;size:36" json:"project_id"`
	Costs       CostData        `json:"costs"`
	Performance PerformanceData `json:"performance"`
	Usage       UsageData       `json:"usage"`
	Metadata    StatsMetadata   `json:"metadata"`

	CostTotal          float64 `gorm:"index;not null;default:0" json:"-"`
	DocumentsGenerated int64   `gorm:"index;not null;default:0" json:"-"`
	TotalTimeSeconds   float64 `gorm:"not null;default:0" json:"-"`
	QualityScore       float64 `gorm:"not null;default:0" json:"-"`
	SourcesList        string  `gorm:"size:512;not null;default:''" json:"-"`

	Version     int64     `gorm:"not null;default:1" json:"version"`
	LastUpdated time.Time `gorm:"not null;index;autoUpdateTime" json:"last_updated"`
}

func (ProjectStatistics) TableName() string {
	return "project_statistics"
}

func NewProjectStatistics(projectID string) *ProjectStatistics {
	return &ProjectStatistics{
		ID:        uuid.New().String(),
		ProjectID: projectID,
		Costs: CostData{
			Currency: "USD",
			Trend:    TrendStable,
		},
		Performance: PerformanceData{
			Benchmark: BenchmarkAverage,
		},
		Usage: UsageData{
			ResourceIntensity: ResourceIntensityLight,
		},
		Version: 1,
	}
}

// MergeCosts overlays the provided components and recomputes total and
// breakdown. A caller-supplied total is ignored; total is always the
// component sum.
func (s *ProjectStatistics) MergeCosts(partial *CostUpdate) {
	if partial == nil {
		return
	}
	if partial.ClaudeAPI != nil {
		s.Costs.ClaudeAPI = *partial.ClaudeAPI
	}
	if partial.Storage != nil {
		s.Costs.Storage = *partial.Storage
	}
	if partial.Compute != nil {
		s.Costs.Compute = *partial.Compute
	}
	if partial.Bandwidth != nil {
		s.Costs.Bandwidth = *partial.Bandwidth
	}
	if partial.Currency != nil && *partial.Currency != "" {
		s.Costs.Currency = *partial.Currency
	}
	s.recomputeCosts()
}

func (s *ProjectStatistics) recomputeCosts() {
	c := &s.Costs
	c.Total = c.ClaudeAPI + c.Storage + c.Compute + c.Bandwidth
	if c.Total > 0 {
		c.Breakdown = CostBreakdown{
			ClaudeAPIPercentage: c.ClaudeAPI / c.Total * 100,
			StoragePercentage:   c.Storage / c.Total * 100,
			ComputePercentage:   c.Compute / c.Total * 100,
			BandwidthPercentage: c.Bandwidth / c.Total * 100,
		}
	} else {
		c.Breakdown = CostBreakdown{}
	}
	if c.Currency == "" {
		c.Currency = "USD"
	}
	c.Trend = TrendStable
}

// MergePerformance overlays the provided phase times, deep-merges the
// efficiency sub-record, then recomputes total time, bottlenecks and the
// usage-dependent derived fields.
func (s *ProjectStatistics) MergePerformance(partial *PerformanceUpdate) {
	if partial == nil {
		return
	}
	p := &s.Performance
	if partial.GenerationTime != nil {
		p.GenerationTime = *partial.GenerationTime
	}
	if partial.ProcessingTime != nil {
		p.ProcessingTime = *partial.ProcessingTime
	}
	if partial.InterviewTime != nil {
		p.InterviewTime = *partial.InterviewTime
	}
	if partial.ExportTime != nil {
		p.ExportTime = *partial.ExportTime
	}
	if partial.QueueWaitTime != nil {
		p.QueueWaitTime = *partial.QueueWaitTime
	}
	if partial.Efficiency != nil {
		if partial.Efficiency.DocumentsPerHour != nil {
			p.Efficiency.DocumentsPerHour = *partial.Efficiency.DocumentsPerHour
		}
		if partial.Efficiency.TokensPerSecond != nil {
			p.Efficiency.TokensPerSecond = *partial.Efficiency.TokensPerSecond
		}
		if partial.Efficiency.ProcessingEfficiency != nil {
			p.Efficiency.ProcessingEfficiency = *partial.Efficiency.ProcessingEfficiency
		}
		if partial.Efficiency.ResourceUtilization != nil {
			p.Efficiency.ResourceUtilization = *partial.Efficiency.ResourceUtilization
		}
	}
	s.recomputePerformance()
}

func (s *ProjectStatistics) recomputePerformance() {
	p := &s.Performance
	p.TotalTime = p.GenerationTime + p.ProcessingTime + p.InterviewTime + p.ExportTime + p.QueueWaitTime

	bottlenecks := make([]string, 0, 5)
	if p.GenerationTime > generationBottleneckThreshold {
		bottlenecks = append(bottlenecks, "generation")
	}
	if p.ProcessingTime > processingBottleneckThreshold {
		bottlenecks = append(bottlenecks, "processing")
	}
	if p.InterviewTime > interviewBottleneckThreshold {
		bottlenecks = append(bottlenecks, "interview")
	}
	if p.ExportTime > exportBottleneckThreshold {
		bottlenecks = append(bottlenecks, "export")
	}
	if p.QueueWaitTime > queueWaitBottleneckThreshold {
		bottlenecks = append(bottlenecks, "queue_wait")
	}
	p.Bottlenecks = bottlenecks

	s.refreshCrossRecordDerived()
}

// MergeUsage overlays the provided counters, deep-merges the activity
// pattern, then recomputes the derived ratios and intensity.
func (s *ProjectStatistics) MergeUsage(partial *UsageUpdate) {
	if partial == nil {
		return
	}
	u := &s.Usage
	if partial.DocumentsGenerated != nil {
		u.DocumentsGenerated = *partial.DocumentsGenerated
	}
	if partial.FilesProcessed != nil {
		u.FilesProcessed = *partial.FilesProcessed
	}
	if partial.TokensUsed != nil {
		u.TokensUsed = *partial.TokensUsed
	}
	if partial.APICallsCount != nil {
		u.APICallsCount = *partial.APICallsCount
	}
	if partial.StorageSize != nil {
		u.StorageSize = *partial.StorageSize
	}
	if partial.ExportCount != nil {
		u.ExportCount = *partial.ExportCount
	}
	if partial.ActivityPattern != nil {
		if partial.ActivityPattern.PeakHours != nil {
			u.ActivityPattern.PeakHours = partial.ActivityPattern.PeakHours
		}
		if partial.ActivityPattern.AvgDocumentsPerDay != nil {
			u.ActivityPattern.AvgDocumentsPerDay = *partial.ActivityPattern.AvgDocumentsPerDay
		}
		if partial.ActivityPattern.LastActivityAt != nil {
			u.ActivityPattern.LastActivityAt = partial.ActivityPattern.LastActivityAt
		}
	}
	s.recomputeUsage()
}

func (s *ProjectStatistics) recomputeUsage() {
	u := &s.Usage

	if u.DocumentsGenerated > 0 && u.TokensUsed > 0 {
		tpd := int64(math.Round(float64(u.TokensUsed) / float64(u.DocumentsGenerated)))
		u.TokensPerDocument = &tpd
	} else {
		u.TokensPerDocument = nil
	}

	// Documents default to 1 here; tokens_per_document stays nil instead.
	// The asymmetry is intentional and relied upon by consumers.
	docs := u.DocumentsGenerated
	if docs <= 0 {
		docs = 1
	}
	u.StorageEfficiency = float64(u.StorageSize) / float64(docs)

	points := 0
	if u.TokensUsed > intensityTokensThreshold {
		points++
	}
	if u.DocumentsGenerated > intensityDocumentsThreshold {
		points++
	}
	if u.StorageSize > intensityStorageThreshold {
		points++
	}
	if u.APICallsCount > intensityAPICallsThreshold {
		points++
	}
	switch {
	case points >= 3:
		u.ResourceIntensity = ResourceIntensityIntensive
	case points >= 1:
		u.ResourceIntensity = ResourceIntensityModerate
	default:
		u.ResourceIntensity = ResourceIntensityLight
	}

	s.refreshCrossRecordDerived()
}

// refreshCrossRecordDerived recomputes the performance fields that depend on
// usage counters: throughput efficiency and the per-document benchmark.
func (s *ProjectStatistics) refreshCrossRecordDerived() {
	p := &s.Performance
	u := &s.Usage

	if p.TotalTime > 0 {
		p.Efficiency.DocumentsPerHour = float64(u.DocumentsGenerated) / (p.TotalTime / 3600)
		p.Efficiency.TokensPerSecond = float64(u.TokensUsed) / p.TotalTime
		p.Efficiency.ProcessingEfficiency = (p.TotalTime - p.QueueWaitTime) / p.TotalTime * 100
		p.Efficiency.ResourceUtilization = (p.GenerationTime + p.ProcessingTime) / p.TotalTime * 100
	}

	if u.DocumentsGenerated > 0 && p.TotalTime > 0 {
		perDoc := p.TotalTime / float64(u.DocumentsGenerated)
		switch {
		case perDoc < benchmarkFasterSecondsPerDoc:
			p.Benchmark = BenchmarkFaster
		case perDoc <= benchmarkAverageSecondsPerDoc:
			p.Benchmark = BenchmarkAverage
		default:
			p.Benchmark = BenchmarkSlower
		}
	} else {
		p.Benchmark = BenchmarkAverage
	}
}

// MergeMetadata overlays the provided fields, unions sources and marks the
// record fresh.
func (s *ProjectStatistics) MergeMetadata(partial *MetadataUpdate) {
	if partial == nil {
		return
	}
	m := &s.Metadata
	if len(partial.Sources) > 0 {
		existing := make(map[string]bool, len(m.Sources))
		for _, src := range m.Sources {
			existing[src] = true
		}
		for _, src := range partial.Sources {
			if src != "" && !existing[src] {
				m.Sources = append(m.Sources, src)
				existing[src] = true
			}
		}
	}
	if partial.Version != nil {
		m.Version = *partial.Version
	}
	if partial.BatchID != nil {
		m.BatchID = *partial.BatchID
	}
	if partial.Confidence != nil {
		m.Confidence = *partial.Confidence
	}
	if partial.Timestamp != nil {
		m.Timestamp = partial.Timestamp
	}
	m.DataFreshness = 0
}

type ConsistencyReport struct {
	Valid  bool     `json:"valid"`
	Issues []string `json:"issues"`
}

// ValidateConsistency checks the soft invariants. Violations are reported,
// never enforced; persistence proceeds regardless.
func (s *ProjectStatistics) ValidateConsistency() ConsistencyReport {
	issues := []string{}

	componentSum := s.Costs.ClaudeAPI + s.Costs.Storage + s.Costs.Compute + s.Costs.Bandwidth
	if math.Abs(s.Costs.Total-componentSum) > costTotalToleranceUSD {
		issues = append(issues, fmt.Sprintf(
			"cost total %.4f does not match component sum %.4f", s.Costs.Total, componentSum))
	}

	timeSum := s.Performance.GenerationTime + s.Performance.ProcessingTime +
		s.Performance.InterviewTime + s.Performance.ExportTime + s.Performance.QueueWaitTime
	if s.Performance.TotalTime < timeSum-totalTimeToleranceSecs {
		issues = append(issues, fmt.Sprintf(
			"total time %.3fs is below component sum %.3fs", s.Performance.TotalTime, timeSum))
	}

	if s.Usage.ExportCount > s.Usage.DocumentsGenerated {
		issues = append(issues, fmt.Sprintf(
			"export count %d exceeds documents generated %d", s.Usage.ExportCount, s.Usage.DocumentsGenerated))
	}

	if s.Usage.DocumentsGenerated > s.Usage.FilesProcessed+10 {
		issues = append(issues, fmt.Sprintf(
			"documents generated %d exceeds files processed %d by more than 10", s.Usage.DocumentsGenerated, s.Usage.FilesProcessed))
	}

	return ConsistencyReport{Valid: len(issues) == 0, Issues: issues}
}

// FreshnessMinutes derives the record's current staleness for read views:
// minutes elapsed since the last persisted write, or the stored freshness
// for unsaved entities.
func (s *ProjectStatistics) FreshnessMinutes(now time.Time) float64 {
	if s.LastUpdated.IsZero() {
		return s.Metadata.DataFreshness
	}
	minutes := now.Sub(s.LastUpdated).Minutes()
	if minutes < 0 {
		return 0
	}
	return minutes
}

// ComputeQualityScore scores the record 0-100 from field coverage,
// consistency issues and staleness, and stores the result in the metadata.
// Staleness is the stored Metadata.DataFreshness, which MergeMetadata
// forces to 0: a record is fresh immediately after a metadata write, no
// matter how old the previous persisted state was.
func (s *ProjectStatistics) ComputeQualityScore() float64 {
	score := 100.0

	if s.Costs.Total <= 0 {
		score -= 20
	}
	if s.Performance.TotalTime <= 0 {
		score -= 20
	}
	if s.Usage.DocumentsGenerated <= 0 {
		score -= 15
	}

	report := s.ValidateConsistency()
	score -= float64(len(report.Issues)) * 10

	freshness := s.Metadata.DataFreshness
	if freshness > freshnessPenaltyStartMinutes {
		penalty := (freshness - freshnessPenaltyStartMinutes) * 0.1
		if penalty > freshnessPenaltyCap {
			penalty = freshnessPenaltyCap
		}
		score -= penalty
	}

	score = math.Max(0, math.Min(100, score))
	s.Metadata.QualityScore = score
	s.Metadata.Completeness = s.computeCompleteness()
	return score
}

func (s *ProjectStatistics) computeCompleteness() float64 {
	present := 0
	if s.Costs.Total > 0 {
		present++
	}
	if s.Performance.TotalTime > 0 {
		present++
	}
	if s.Usage.DocumentsGenerated > 0 || s.Usage.FilesProcessed > 0 {
		present++
	}
	if len(s.Metadata.Sources) > 0 {
		present++
	}
	return float64(present) / 4 * 100
}

// ApplyUpdate runs the four merges for the sub-records present in the
// request and refreshes the quality fields.
func (s *ProjectStatistics) ApplyUpdate(req *UpdateStatisticsRequest) {
	if req == nil {
		return
	}
	s.MergeCosts(req.Costs)
	s.MergePerformance(req.Performance)
	s.MergeUsage(req.Usage)
	s.MergeMetadata(req.Metadata)
	s.ComputeQualityScore()
}

// RefreshDenormalized mirrors the hot JSON fields into their scalar columns.
// SourcesList is stored delimiter-wrapped (",a,b,") so containment checks work
// as plain LIKE filters on every supported dialect.
func (s *ProjectStatistics) RefreshDenormalized() {
	s.CostTotal = s.Costs.Total
	s.DocumentsGenerated = s.Usage.DocumentsGenerated
	s.TotalTimeSeconds = s.Performance.TotalTime
	s.QualityScore = s.Metadata.QualityScore

	if len(s.Metadata.Sources) > 0 {
		s.SourcesList = "," + strings.Join(s.Metadata.Sources, ",") + ","
	} else {
		s.SourcesList = ""
	}
}
