package statistics

import (
	"context"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/nibernar/statistics-service/internal/models"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"golang.org/x/sync/singleflight"
)

const (
	neutralEfficiencyScore = 50.0

	costBenchmarkPerDocument  = 5.0
	timeBenchmarkPerDocument  = 120.0
	tokenBenchmarkPerDocument = 3000.0

	highAPISharePercentage  = 80.0
	lowProcessingEfficiency = 70.0
	highTokensPerDocument   = 4000
)

// Notifier receives fire-and-forget notifications after successful
// mutations. Implementations must not block the caller.
type Notifier interface {
	StatisticsUpdated(projectID string, stats *models.ProjectStatistics)
	StatisticsDeleted(projectID string)
}

// Service composes the repository, the cache-aside layer and the event
// notifier, and computes the read-time derived views that are never
// persisted: per-document ratios, efficiency scores and recommendations.
type Service struct {
	repo     *Repository
	cache    *Cache
	notifier Notifier
	group    singleflight.Group
}

func NewService(repo *Repository, cache *Cache, notifier Notifier) *Service {
	return &Service{
		repo:     repo,
		cache:    cache,
		notifier: notifier,
	}
}

// UpdateStatistics merges the request into the project's record, refreshes
// the cache with the enriched result and notifies downstream consumers.
// Coherence validation is advisory: issues are logged, never rejected.
func (s *Service) UpdateStatistics(ctx context.Context, projectID string, req *models.UpdateStatisticsRequest) (*models.StatisticsResponse, error) {
	if report := req.ValidateCoherence(time.Now().UTC()); !report.Valid {
		fiberlog.Warnf("StatisticsService: advisory validation failed for project %s: %s",
			projectID, strings.Join(report.Issues, "; "))
	}

	stats, err := s.repo.Upsert(ctx, projectID, req)
	if err != nil {
		return nil, err
	}

	s.cache.InvalidateProject(ctx, projectID)

	resp := s.enrich(stats)
	s.cache.SetProject(ctx, projectID, resp)

	if s.notifier != nil {
		s.notifier.StatisticsUpdated(projectID, stats)
	}

	return resp, nil
}

// PartialUpdateStatistics replaces whole sub-records without recomputing
// derived fields. Returns ErrStatisticsNotFound when the project has no
// record yet.
func (s *Service) PartialUpdateStatistics(ctx context.Context, projectID string, req *models.PartialUpdateRequest) (*models.StatisticsResponse, error) {
	stats, err := s.repo.PartialUpdate(ctx, projectID, req)
	if err != nil {
		return nil, err
	}

	s.cache.InvalidateProject(ctx, projectID)

	resp := s.enrich(stats)
	s.cache.SetProject(ctx, projectID, resp)

	if s.notifier != nil {
		s.notifier.StatisticsUpdated(projectID, stats)
	}

	return resp, nil
}

// GetStatistics returns the enriched statistics for a project, or nil when
// none exist. Concurrent misses for the same project collapse into a single
// repository read.
func (s *Service) GetStatistics(ctx context.Context, projectID string) (*models.StatisticsResponse, error) {
	if cached, ok := s.cache.GetProject(ctx, projectID); ok {
		return cached, nil
	}

	v, err, _ := s.group.Do("project:"+projectID, func() (any, error) {
		stats, err := s.repo.FindByProjectID(ctx, projectID)
		if err != nil {
			return nil, err
		}
		if stats == nil {
			return (*models.StatisticsResponse)(nil), nil
		}

		resp := s.enrich(stats)
		s.cache.SetProject(ctx, projectID, resp)
		return resp, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*models.StatisticsResponse), nil
}

// GetStatisticsSummary returns the compact dashboard view for a project, or
// nil when the project has no statistics.
func (s *Service) GetStatisticsSummary(ctx context.Context, projectID string) (*models.StatisticsSummary, error) {
	if cached, ok := s.cache.GetSummary(ctx, projectID); ok {
		return cached, nil
	}

	v, err, _ := s.group.Do("summary:"+projectID, func() (any, error) {
		stats, err := s.repo.FindByProjectID(ctx, projectID)
		if err != nil {
			return nil, err
		}
		if stats == nil {
			return (*models.StatisticsSummary)(nil), nil
		}

		summary := s.buildSummary(stats)
		s.cache.SetSummary(ctx, projectID, summary)
		return summary, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*models.StatisticsSummary), nil
}

// DeleteStatistics removes a project's statistics and reports whether a
// record existed.
func (s *Service) DeleteStatistics(ctx context.Context, projectID string) (bool, error) {
	deleted, err := s.repo.DeleteByProjectID(ctx, projectID)
	if err != nil {
		return false, err
	}

	if deleted {
		s.cache.InvalidateProject(ctx, projectID)
		if s.notifier != nil {
			s.notifier.StatisticsDeleted(projectID)
		}
	}

	return deleted, nil
}

// GetBatchStatistics returns enriched statistics for every requested project
// that has a record. Projects without statistics are absent from the result,
// never padded with nulls.
func (s *Service) GetBatchStatistics(ctx context.Context, projectIDs []string) (map[string]*models.StatisticsResponse, error) {
	unique := make([]string, 0, len(projectIDs))
	seen := make(map[string]bool, len(projectIDs))
	for _, id := range projectIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		unique = append(unique, id)
	}

	found, err := s.repo.FindManyByProjectIDs(ctx, unique)
	if err != nil {
		return nil, err
	}

	result := make(map[string]*models.StatisticsResponse, len(found))
	for projectID, stats := range found {
		result[projectID] = s.enrich(stats)
	}

	return result, nil
}

// SearchStatistics returns enriched statistics matching the criteria, newest
// first.
func (s *Service) SearchStatistics(ctx context.Context, criteria models.SearchCriteria) ([]*models.StatisticsResponse, error) {
	rows, err := s.repo.FindByCriteria(ctx, criteria)
	if err != nil {
		return nil, err
	}

	results := make([]*models.StatisticsResponse, 0, len(rows))
	for i := range rows {
		results = append(results, s.enrich(&rows[i]))
	}

	return results, nil
}

// GetGlobalStatistics returns the cross-project aggregate, cache-aside with
// its own longer TTL.
func (s *Service) GetGlobalStatistics(ctx context.Context) (*models.GlobalStatistics, error) {
	if cached, ok := s.cache.GetGlobal(ctx); ok {
		return cached, nil
	}

	v, err, _ := s.group.Do("global", func() (any, error) {
		global, err := s.repo.GetGlobalStatistics(ctx)
		if err != nil {
			return nil, err
		}
		s.cache.SetGlobal(ctx, global)
		return global, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*models.GlobalStatistics), nil
}

// CleanupOldStatistics removes stale records for archived and deleted
// projects and returns how many were deleted.
func (s *Service) CleanupOldStatistics(ctx context.Context, retentionDays int) (int64, error) {
	removed, err := s.repo.CleanupOldStatistics(ctx, retentionDays)
	if err != nil {
		return 0, err
	}

	if removed > 0 {
		s.cache.InvalidateGlobal(ctx)
		fiberlog.Infof("StatisticsService: retention cleanup removed %d records", removed)
	}

	return removed, nil
}

// enrich builds the response view: stored state plus the read-time ratios,
// efficiency scores and recommendations. Nothing computed here is persisted.
func (s *Service) enrich(stats *models.ProjectStatistics) *models.StatisticsResponse {
	resp := &models.StatisticsResponse{
		ID:          stats.ID,
		ProjectID:   stats.ProjectID,
		Costs:       models.CostView{CostData: stats.Costs},
		Performance: stats.Performance,
		Usage:       stats.Usage,
		Metadata:    stats.Metadata,
		Version:     stats.Version,
		LastUpdated: stats.LastUpdated,
	}

	// The stored freshness is zeroed on writes; readers get the live value.
	resp.Metadata.DataFreshness = stats.FreshnessMinutes(time.Now().UTC())

	if docs := stats.Usage.DocumentsGenerated; docs > 0 {
		costPerDocument := stats.Costs.Total / float64(docs)
		resp.Costs.CostPerDocument = &costPerDocument
	}
	if totalTime := stats.Performance.TotalTime; totalTime > 0 {
		costPerHour := stats.Costs.Total / (totalTime / 3600)
		resp.Costs.CostPerHour = &costPerHour
	}

	resp.Efficiency = computeEfficiencyScores(stats)
	resp.Recommendations = buildRecommendations(stats, resp.Costs.CostPerDocument)

	return resp
}

func (s *Service) buildSummary(stats *models.ProjectStatistics) *models.StatisticsSummary {
	scores := computeEfficiencyScores(stats)
	var costPerDocument *float64
	if docs := stats.Usage.DocumentsGenerated; docs > 0 {
		cpd := stats.Costs.Total / float64(docs)
		costPerDocument = &cpd
	}

	return &models.StatisticsSummary{
		ProjectID:          stats.ProjectID,
		TotalCost:          stats.Costs.Total,
		TotalTime:          stats.Performance.TotalTime,
		DocumentsGenerated: stats.Usage.DocumentsGenerated,
		QualityScore:       stats.Metadata.QualityScore,
		OverallEfficiency:  scores.Overall,
		Status:             scores.Status,
		Bottlenecks:        stats.Performance.Bottlenecks,
		Recommendations:    buildRecommendations(stats, costPerDocument),
		LastUpdated:        stats.LastUpdated,
	}
}

// benchmarkScore rates actual against benchmark as min(100, max(0, b/a*100)).
// A zero or incomputable actual yields the neutral score rather than a
// division blowup.
func benchmarkScore(benchmark, actual float64) float64 {
	if actual <= 0 {
		return neutralEfficiencyScore
	}
	return math.Min(100, math.Max(0, benchmark/actual*100))
}

func computeEfficiencyScores(stats *models.ProjectStatistics) models.EfficiencyScores {
	scores := models.EfficiencyScores{
		CostEfficiency:        neutralEfficiencyScore,
		PerformanceEfficiency: neutralEfficiencyScore,
		UsageEfficiency:       neutralEfficiencyScore,
	}

	if docs := float64(stats.Usage.DocumentsGenerated); docs > 0 {
		scores.CostEfficiency = benchmarkScore(costBenchmarkPerDocument, stats.Costs.Total/docs)
		scores.PerformanceEfficiency = benchmarkScore(timeBenchmarkPerDocument, stats.Performance.TotalTime/docs)
	}
	if tpd := stats.Usage.TokensPerDocument; tpd != nil {
		scores.UsageEfficiency = benchmarkScore(tokenBenchmarkPerDocument, float64(*tpd))
	}

	scores.Overall = (scores.CostEfficiency + scores.PerformanceEfficiency + scores.UsageEfficiency) / 3

	switch {
	case scores.Overall >= 90:
		scores.Status = models.StatusOptimal
	case scores.Overall >= 70:
		scores.Status = models.StatusGood
	default:
		scores.Status = models.StatusNeedsAttention
	}

	return scores
}

func buildRecommendations(stats *models.ProjectStatistics, costPerDocument *float64) []string {
	recommendations := []string{}

	if costPerDocument != nil && *costPerDocument > costBenchmarkPerDocument {
		recommendations = append(recommendations,
			"Cost per document exceeds the $5 benchmark; review generation settings and prompt sizes")
	}
	if stats.Costs.Breakdown.ClaudeAPIPercentage > highAPISharePercentage {
		recommendations = append(recommendations,
			"API costs make up over 80% of total spend; consider caching or batching model calls")
	}
	if stats.Performance.TotalTime > 0 && stats.Performance.Efficiency.ProcessingEfficiency < lowProcessingEfficiency {
		recommendations = append(recommendations,
			"Processing efficiency is below 70%; investigate time lost outside active processing")
	}
	if slices.Contains(stats.Performance.Bottlenecks, "queue_wait") {
		recommendations = append(recommendations,
			"Queue wait time is a bottleneck; consider scaling workers or smoothing request bursts")
	}
	if tpd := stats.Usage.TokensPerDocument; tpd != nil && *tpd > highTokensPerDocument {
		recommendations = append(recommendations,
			"Token usage per document is above 4000; tighten prompts or trim context windows")
	}
	if stats.Usage.ExportCount == 0 && stats.Usage.DocumentsGenerated > 0 {
		recommendations = append(recommendations,
			"Documents are generated but never exported; verify the export pipeline is reachable")
	}

	return recommendations
}
