package api

import (
	"encoding/json"
	"errors"

	"github.com/nibernar/statistics-service/internal/services/projects"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
	svix "github.com/svix/svix-webhooks/go"
)

// ProjectWebhookHandler receives project lifecycle events from the platform.
// Archived and deleted projects mark their statistics for retention cleanup;
// deleted projects additionally purge statistics immediately.
type ProjectWebhookHandler struct {
	webhookSecret   string
	projectsService *projects.Service
}

func NewProjectWebhookHandler(webhookSecret string, projectsService *projects.Service) *ProjectWebhookHandler {
	return &ProjectWebhookHandler{
		webhookSecret:   webhookSecret,
		projectsService: projectsService,
	}
}

type ProjectWebhookEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type ProjectEventData struct {
	ID string `json:"id"`
}

func (h *ProjectWebhookHandler) HandleWebhook(c *fiber.Ctx) error {
	payload := c.Body()

	headers := make(map[string][]string)
	c.Request().Header.VisitAll(func(key, value []byte) {
		headers[string(key)] = []string{string(value)}
	})

	wh, err := svix.NewWebhook(h.webhookSecret)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to initialize webhook verifier",
		})
	}

	if err := wh.Verify(payload, headers); err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid webhook signature",
		})
	}

	var event ProjectWebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid JSON payload",
		})
	}

	var data ProjectEventData
	if err := json.Unmarshal(event.Data, &data); err != nil || data.ID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid project event data",
		})
	}

	switch event.Type {
	case "project.archived":
		if err := h.projectsService.ArchiveProject(c.Context(), data.ID); err != nil {
			return h.eventError(c, event.Type, data.ID, err)
		}
	case "project.deleted":
		if err := h.projectsService.DeleteProject(c.Context(), data.ID); err != nil {
			return h.eventError(c, event.Type, data.ID, err)
		}
	default:
		fiberlog.Debugf("[WEBHOOKS] Ignoring unhandled event type %s", event.Type)
	}

	return c.JSON(fiber.Map{
		"received": true,
	})
}

func (h *ProjectWebhookHandler) eventError(c *fiber.Ctx, eventType, projectID string, err error) error {
	if errors.Is(err, projects.ErrProjectNotFound) {
		// Unknown project: acknowledge so the sender stops retrying.
		fiberlog.Warnf("[WEBHOOKS] %s for unknown project %s", eventType, projectID)
		return c.JSON(fiber.Map{
			"received": true,
		})
	}

	fiberlog.Errorf("[WEBHOOKS] Failed to process %s for project %s: %v", eventType, projectID, err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "Failed to process event",
	})
}
