package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/nibernar/statistics-service/internal/models"
	"github.com/nibernar/statistics-service/internal/services/projects"
	"github.com/nibernar/statistics-service/internal/services/statistics"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type testEnv struct {
	app      *fiber.App
	stats    *statistics.Service
	projects *projects.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "api.db")), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	repo := statistics.NewRepository(db)
	require.NoError(t, repo.AutoMigrate())

	statsService := statistics.NewService(repo, statistics.NewCache(nil, models.CacheConfig{}), nil)
	projectsService := projects.NewService(db, statsService)

	app := fiber.New()
	v1 := app.Group("/api/v1")
	NewStatisticsHandler(statsService).RegisterRoutes(v1)
	NewProjectsHandler(projectsService).RegisterRoutes(v1)

	return &testEnv{app: app, stats: statsService, projects: projectsService}
}

func jsonRequest(method, target string, body any) *http.Request {
	var reader io.Reader
	if body != nil {
		payload, _ := json.Marshal(body)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeBody(t *testing.T, resp *http.Response, dest any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dest))
}

func (e *testEnv) putStatistics(t *testing.T, projectID string, body any) *http.Response {
	t.Helper()
	resp, err := e.app.Test(jsonRequest(http.MethodPut, "/api/v1/projects/"+projectID+"/statistics", body))
	require.NoError(t, err)
	return resp
}

func TestUpdateStatisticsEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp := env.putStatistics(t, "proj-1", fiber.Map{
		"costs": fiber.Map{"claude_api": 10, "storage": 2},
		"usage": fiber.Map{"documents_generated": 3, "files_processed": 3},
	})
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body models.StatisticsResponse
	decodeBody(t, resp, &body)
	assert.Equal(t, "proj-1", body.ProjectID)
	assert.InDelta(t, 12.0, body.Costs.Total, 1e-9)
	assert.Equal(t, int64(1), body.Version)

	// A second report merges instead of replacing.
	resp = env.putStatistics(t, "proj-1", fiber.Map{
		"costs": fiber.Map{"storage": 5},
	})
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	decodeBody(t, resp, &body)
	assert.InDelta(t, 15.0, body.Costs.Total, 1e-9)
	assert.Equal(t, int64(2), body.Version)
}

func TestUpdateStatisticsRejectsEmptyBody(t *testing.T) {
	env := newTestEnv(t)

	resp := env.putStatistics(t, "proj-1", fiber.Map{})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestGetStatisticsEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/projects/ghost/statistics", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	env.putStatistics(t, "proj-1", fiber.Map{"costs": fiber.Map{"claude_api": 4}})

	resp, err = env.app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/projects/proj-1/statistics", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body models.StatisticsResponse
	decodeBody(t, resp, &body)
	assert.InDelta(t, 4.0, body.Costs.Total, 1e-9)
}

func TestPartialUpdateStatisticsEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.app.Test(jsonRequest(http.MethodPatch, "/api/v1/projects/ghost/statistics", fiber.Map{
		"costs": fiber.Map{"claude_api": 1},
	}))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	env.putStatistics(t, "proj-1", fiber.Map{"costs": fiber.Map{"claude_api": 4}})

	resp, err = env.app.Test(jsonRequest(http.MethodPatch, "/api/v1/projects/proj-1/statistics", fiber.Map{
		"costs": fiber.Map{"claude_api": 1, "total": 999},
	}))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	// Wholesale replacement: the supplied total is written verbatim.
	var body models.StatisticsResponse
	decodeBody(t, resp, &body)
	assert.InDelta(t, 999.0, body.Costs.Total, 1e-9)
}

func TestPartialUpdateRejectsEmptyBody(t *testing.T) {
	env := newTestEnv(t)
	env.putStatistics(t, "proj-1", fiber.Map{"costs": fiber.Map{"claude_api": 4}})

	resp, err := env.app.Test(jsonRequest(http.MethodPatch, "/api/v1/projects/proj-1/statistics", fiber.Map{}))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestStatisticsSummaryEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/projects/ghost/statistics/summary", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	env.putStatistics(t, "proj-1", fiber.Map{
		"costs": fiber.Map{"claude_api": 3, "storage": 1},
		"usage": fiber.Map{"documents_generated": 2, "files_processed": 2},
	})

	resp, err = env.app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/projects/proj-1/statistics/summary", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var summary models.StatisticsSummary
	decodeBody(t, resp, &summary)
	assert.Equal(t, "proj-1", summary.ProjectID)
	assert.InDelta(t, 4.0, summary.TotalCost, 1e-9)
}

func TestDeleteStatisticsEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.app.Test(httptest.NewRequest(http.MethodDelete, "/api/v1/projects/ghost/statistics", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	env.putStatistics(t, "proj-1", fiber.Map{"costs": fiber.Map{"claude_api": 4}})

	resp, err = env.app.Test(httptest.NewRequest(http.MethodDelete, "/api/v1/projects/proj-1/statistics", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)

	resp, err = env.app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/projects/proj-1/statistics", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestBatchStatisticsEndpoint(t *testing.T) {
	env := newTestEnv(t)

	env.putStatistics(t, "proj-1", fiber.Map{"costs": fiber.Map{"claude_api": 4}})
	env.putStatistics(t, "proj-2", fiber.Map{"costs": fiber.Map{"claude_api": 8}})

	resp, err := env.app.Test(jsonRequest(http.MethodPost, "/api/v1/statistics/batch", fiber.Map{
		"project_ids": []string{"proj-1", "ghost", "proj-2"},
	}))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body map[string]models.StatisticsResponse
	decodeBody(t, resp, &body)
	assert.Len(t, body, 2)
	assert.Contains(t, body, "proj-1")
	assert.NotContains(t, body, "ghost")
}

func TestBatchStatisticsLimits(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.app.Test(jsonRequest(http.MethodPost, "/api/v1/statistics/batch", fiber.Map{
		"project_ids": []string{},
	}))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	tooMany := make([]string, maxBatchProjects+1)
	for i := range tooMany {
		tooMany[i] = fmt.Sprintf("proj-%d", i)
	}
	resp, err = env.app.Test(jsonRequest(http.MethodPost, "/api/v1/statistics/batch", fiber.Map{
		"project_ids": tooMany,
	}))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestSearchStatisticsEndpoint(t *testing.T) {
	env := newTestEnv(t)

	env.putStatistics(t, "proj-cheap", fiber.Map{"costs": fiber.Map{"claude_api": 2}})
	env.putStatistics(t, "proj-expensive", fiber.Map{"costs": fiber.Map{"claude_api": 50}})

	resp, err := env.app.Test(jsonRequest(http.MethodPost, "/api/v1/statistics/search", fiber.Map{
		"min_cost_total": 10,
	}))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body struct {
		Results []models.StatisticsResponse `json:"results"`
		Count   int                         `json:"count"`
	}
	decodeBody(t, resp, &body)
	assert.Equal(t, 1, body.Count)
	require.Len(t, body.Results, 1)
	assert.Equal(t, "proj-expensive", body.Results[0].ProjectID)
}

func TestGlobalStatisticsEndpoint(t *testing.T) {
	env := newTestEnv(t)

	env.putStatistics(t, "proj-1", fiber.Map{
		"costs": fiber.Map{"claude_api": 4},
		"usage": fiber.Map{"documents_generated": 2, "files_processed": 2},
	})

	resp, err := env.app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/statistics/global", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body models.GlobalStatistics
	decodeBody(t, resp, &body)
	assert.Equal(t, int64(1), body.TotalProjects)
	assert.InDelta(t, 4.0, body.TotalCost, 1e-9)
}

func TestCleanupStatisticsEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.app.Test(jsonRequest(http.MethodPost, "/api/v1/admin/statistics/cleanup", fiber.Map{
		"retention_days": -1,
	}))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, err = env.app.Test(jsonRequest(http.MethodPost, "/api/v1/admin/statistics/cleanup", fiber.Map{
		"retention_days": 30,
	}))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body map[string]int64
	decodeBody(t, resp, &body)
	assert.Zero(t, body["deleted"])
}
