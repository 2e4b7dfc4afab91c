package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/nibernar/statistics-service/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	svix "github.com/svix/svix-webhooks/go"
)

const testWebhookSecret = "whsec_MfKQ9r8GKYqrTwjUPD8ILPZIo2LaLaSw"

func newWebhookEnv(t *testing.T) *testEnv {
	t.Helper()

	env := newTestEnv(t)
	handler := NewProjectWebhookHandler(testWebhookSecret, env.projects)
	env.app.Post("/webhooks/projects", handler.HandleWebhook)
	return env
}

func signedWebhookRequest(t *testing.T, payload []byte) *http.Request {
	t.Helper()

	wh, err := svix.NewWebhook(testWebhookSecret)
	require.NoError(t, err)

	msgID := fmt.Sprintf("msg_%d", time.Now().UnixNano())
	now := time.Now()
	signature, err := wh.Sign(msgID, now, payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/projects", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("svix-id", msgID)
	req.Header.Set("svix-timestamp", strconv.FormatInt(now.Unix(), 10))
	req.Header.Set("svix-signature", signature)
	return req
}

func projectEventPayload(t *testing.T, eventType, projectID string) []byte {
	t.Helper()
	payload, err := json.Marshal(fiber.Map{
		"type": eventType,
		"data": fiber.Map{"id": projectID},
	})
	require.NoError(t, err)
	return payload
}

func TestWebhookArchivesProject(t *testing.T) {
	env := newWebhookEnv(t)
	env.createProject(t, fiber.Map{"id": "proj-1", "name": "to archive"})

	payload := projectEventPayload(t, "project.archived", "proj-1")
	resp, err := env.app.Test(signedWebhookRequest(t, payload))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	project, err := env.projects.GetProject(t.Context(), "proj-1")
	require.NoError(t, err)
	assert.Equal(t, models.ProjectStatusArchived, project.Status)
}

func TestWebhookDeletesProjectAndStatistics(t *testing.T) {
	env := newWebhookEnv(t)
	env.createProject(t, fiber.Map{"id": "proj-1", "name": "to delete"})
	env.putStatistics(t, "proj-1", fiber.Map{"costs": fiber.Map{"claude_api": 4}})

	payload := projectEventPayload(t, "project.deleted", "proj-1")
	resp, err := env.app.Test(signedWebhookRequest(t, payload))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	_, err = env.projects.GetProject(t.Context(), "proj-1")
	assert.Error(t, err)

	stats, err := env.stats.GetStatistics(t.Context(), "proj-1")
	require.NoError(t, err)
	assert.Nil(t, stats)
}

func TestWebhookRejectsInvalidSignature(t *testing.T) {
	env := newWebhookEnv(t)

	payload := projectEventPayload(t, "project.archived", "proj-1")
	req := httptest.NewRequest(http.MethodPost, "/webhooks/projects", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("svix-id", "msg_1")
	req.Header.Set("svix-timestamp", strconv.FormatInt(time.Now().Unix(), 10))
	req.Header.Set("svix-signature", "v1,bm90LWEtcmVhbC1zaWduYXR1cmU=")

	resp, err := env.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestWebhookAcknowledgesUnknownProject(t *testing.T) {
	env := newWebhookEnv(t)

	payload := projectEventPayload(t, "project.archived", "ghost")
	resp, err := env.app.Test(signedWebhookRequest(t, payload))
	require.NoError(t, err)

	// Unknown projects are acknowledged so the sender stops retrying.
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body map[string]bool
	decodeBody(t, resp, &body)
	assert.True(t, body["received"])
}

func TestWebhookIgnoresUnhandledEventTypes(t *testing.T) {
	env := newWebhookEnv(t)
	env.createProject(t, fiber.Map{"id": "proj-1", "name": "untouched"})

	payload := projectEventPayload(t, "project.renamed", "proj-1")
	resp, err := env.app.Test(signedWebhookRequest(t, payload))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	project, err := env.projects.GetProject(t.Context(), "proj-1")
	require.NoError(t, err)
	assert.Equal(t, models.ProjectStatusActive, project.Status)
}

func TestWebhookRejectsMissingProjectID(t *testing.T) {
	env := newWebhookEnv(t)

	payload, err := json.Marshal(fiber.Map{
		"type": "project.archived",
		"data": fiber.Map{},
	})
	require.NoError(t, err)

	resp, err := env.app.Test(signedWebhookRequest(t, payload))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}
