package api

import (
	"errors"

	"github.com/nibernar/statistics-service/internal/models"
	"github.com/nibernar/statistics-service/internal/services/statistics"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
)

const maxBatchProjects = 100

type StatisticsHandler struct {
	statsService *statistics.Service
}

func NewStatisticsHandler(statsService *statistics.Service) *StatisticsHandler {
	return &StatisticsHandler{
		statsService: statsService,
	}
}

func (h *StatisticsHandler) RegisterRoutes(router fiber.Router) {
	router.Put("/projects/:projectId/statistics", h.UpdateStatistics)
	router.Patch("/projects/:projectId/statistics", h.PartialUpdateStatistics)
	router.Get("/projects/:projectId/statistics", h.GetStatistics)
	router.Get("/projects/:projectId/statistics/summary", h.GetStatisticsSummary)
	router.Delete("/projects/:projectId/statistics", h.DeleteStatistics)
	router.Post("/statistics/batch", h.GetBatchStatistics)
	router.Post("/statistics/search", h.SearchStatistics)
	router.Get("/statistics/global", h.GetGlobalStatistics)
	router.Post("/admin/statistics/cleanup", h.CleanupStatistics)
}

// UpdateStatistics merges a partial statistics report into the project's
// record, creating it on first write.
func (h *StatisticsHandler) UpdateStatistics(c *fiber.Ctx) error {
	projectID := c.Params("projectId")

	var req models.UpdateStatisticsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.IsEmpty() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Request must contain at least one of costs, performance, usage or metadata",
		})
	}

	resp, err := h.statsService.UpdateStatistics(c.Context(), projectID, &req)
	if err != nil {
		if errors.Is(err, statistics.ErrProjectIDRequired) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Project id is required",
			})
		}
		fiberlog.Errorf("[STATS_UPDATE] Failed for project %s: %v", projectID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update statistics",
		})
	}

	return c.JSON(resp)
}

// PartialUpdateStatistics replaces whole sub-records without recomputing
// derived fields; the record must already exist.
func (h *StatisticsHandler) PartialUpdateStatistics(c *fiber.Ctx) error {
	projectID := c.Params("projectId")

	var req models.PartialUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.IsEmpty() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Request must contain at least one of costs, performance, usage or metadata",
		})
	}

	resp, err := h.statsService.PartialUpdateStatistics(c.Context(), projectID, &req)
	if err != nil {
		if errors.Is(err, statistics.ErrStatisticsNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Statistics not found",
			})
		}
		fiberlog.Errorf("[STATS_PATCH] Failed for project %s: %v", projectID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update statistics",
		})
	}

	return c.JSON(resp)
}

func (h *StatisticsHandler) GetStatistics(c *fiber.Ctx) error {
	projectID := c.Params("projectId")

	resp, err := h.statsService.GetStatistics(c.Context(), projectID)
	if err != nil {
		fiberlog.Errorf("[STATS_GET] Failed for project %s: %v", projectID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get statistics",
		})
	}
	if resp == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Statistics not found",
		})
	}

	return c.JSON(resp)
}

func (h *StatisticsHandler) GetStatisticsSummary(c *fiber.Ctx) error {
	projectID := c.Params("projectId")

	summary, err := h.statsService.GetStatisticsSummary(c.Context(), projectID)
	if err != nil {
		fiberlog.Errorf("[STATS_SUMMARY] Failed for project %s: %v", projectID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get statistics summary",
		})
	}
	if summary == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Statistics not found",
		})
	}

	return c.JSON(summary)
}

func (h *StatisticsHandler) DeleteStatistics(c *fiber.Ctx) error {
	projectID := c.Params("projectId")

	deleted, err := h.statsService.DeleteStatistics(c.Context(), projectID)
	if err != nil {
		fiberlog.Errorf("[STATS_DELETE] Failed for project %s: %v", projectID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete statistics",
		})
	}
	if !deleted {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Statistics not found",
		})
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// GetBatchStatistics returns statistics for every requested project that has
// a record; projects without one are absent from the response map.
func (h *StatisticsHandler) GetBatchStatistics(c *fiber.Ctx) error {
	var req models.BatchStatisticsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if len(req.ProjectIDs) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "project_ids must not be empty",
		})
	}
	if len(req.ProjectIDs) > maxBatchProjects {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "project_ids exceeds the batch limit of 100",
		})
	}

	result, err := h.statsService.GetBatchStatistics(c.Context(), req.ProjectIDs)
	if err != nil {
		fiberlog.Errorf("[STATS_BATCH] Failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get statistics batch",
		})
	}

	return c.JSON(result)
}

func (h *StatisticsHandler) SearchStatistics(c *fiber.Ctx) error {
	var criteria models.SearchCriteria
	if err := c.BodyParser(&criteria); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid search criteria",
		})
	}

	results, err := h.statsService.SearchStatistics(c.Context(), criteria)
	if err != nil {
		fiberlog.Errorf("[STATS_SEARCH] Failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to search statistics",
		})
	}

	return c.JSON(fiber.Map{
		"results": results,
		"count":   len(results),
	})
}

func (h *StatisticsHandler) GetGlobalStatistics(c *fiber.Ctx) error {
	global, err := h.statsService.GetGlobalStatistics(c.Context())
	if err != nil {
		fiberlog.Errorf("[STATS_GLOBAL] Failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get global statistics",
		})
	}

	return c.JSON(global)
}

func (h *StatisticsHandler) CleanupStatistics(c *fiber.Ctx) error {
	var req models.CleanupRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.RetentionDays < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "retention_days must not be negative",
		})
	}

	deleted, err := h.statsService.CleanupOldStatistics(c.Context(), req.RetentionDays)
	if err != nil {
		fiberlog.Errorf("[RETENTION] Cleanup failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to clean up statistics",
		})
	}

	return c.JSON(fiber.Map{
		"deleted": deleted,
	})
}
