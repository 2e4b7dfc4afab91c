package api

import (
	"errors"
	"strconv"

	"github.com/nibernar/statistics-service/internal/models"
	"github.com/nibernar/statistics-service/internal/services/projects"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
)

type ProjectsHandler struct {
	projectsService *projects.Service
}

func NewProjectsHandler(projectsService *projects.Service) *ProjectsHandler {
	return &ProjectsHandler{
		projectsService: projectsService,
	}
}

func (h *ProjectsHandler) RegisterRoutes(router fiber.Router) {
	router.Post("/projects", h.CreateProject)
	router.Get("/projects", h.ListProjects)
	router.Get("/projects/:projectId", h.GetProject)
	router.Patch("/projects/:projectId", h.UpdateProject)
	router.Delete("/projects/:projectId", h.DeleteProject)
}

func (h *ProjectsHandler) CreateProject(c *fiber.Ctx) error {
	var req models.ProjectCreateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.Name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Project name is required",
		})
	}

	project, err := h.projectsService.CreateProject(c.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, projects.ErrDuplicateProjectID):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "Project with this id already exists",
			})
		case errors.Is(err, projects.ErrInvalidStatus):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid project status",
			})
		default:
			fiberlog.Errorf("[PROJECTS] Create failed: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to create project",
			})
		}
	}

	return c.Status(fiber.StatusCreated).JSON(project.ToResponse())
}

func (h *ProjectsHandler) GetProject(c *fiber.Ctx) error {
	projectID := c.Params("projectId")

	project, err := h.projectsService.GetProject(c.Context(), projectID)
	if err != nil {
		if errors.Is(err, projects.ErrProjectNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Project not found",
			})
		}
		fiberlog.Errorf("[PROJECTS] Get %s failed: %v", projectID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get project",
		})
	}

	return c.JSON(project.ToResponse())
}

func (h *ProjectsHandler) ListProjects(c *fiber.Ctx) error {
	status := models.ProjectStatus(c.Query("status"))
	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	offset, _ := strconv.Atoi(c.Query("offset", "0"))

	list, err := h.projectsService.ListProjects(c.Context(), status, limit, offset)
	if err != nil {
		if errors.Is(err, projects.ErrInvalidStatus) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid project status",
			})
		}
		fiberlog.Errorf("[PROJECTS] List failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list projects",
		})
	}

	responses := make([]*models.ProjectResponse, 0, len(list))
	for i := range list {
		responses = append(responses, list[i].ToResponse())
	}

	return c.JSON(fiber.Map{
		"projects": responses,
		"count":    len(responses),
	})
}

func (h *ProjectsHandler) UpdateProject(c *fiber.Ctx) error {
	projectID := c.Params("projectId")

	var req models.ProjectUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	project, err := h.projectsService.UpdateProject(c.Context(), projectID, &req)
	if err != nil {
		switch {
		case errors.Is(err, projects.ErrProjectNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Project not found",
			})
		case errors.Is(err, projects.ErrInvalidStatus):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid project status",
			})
		default:
			fiberlog.Errorf("[PROJECTS] Update %s failed: %v", projectID, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to update project",
			})
		}
	}

	return c.JSON(project.ToResponse())
}

func (h *ProjectsHandler) DeleteProject(c *fiber.Ctx) error {
	projectID := c.Params("projectId")

	if err := h.projectsService.DeleteProject(c.Context(), projectID); err != nil {
		if errors.Is(err, projects.ErrProjectNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Project not found",
			})
		}
		fiberlog.Errorf("[PROJECTS] Delete %s failed: %v", projectID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete project",
		})
	}

	return c.SendStatus(fiber.StatusNoContent)
}
