package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nibernar/statistics-service/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (e *testEnv) createProject(t *testing.T, body any) *http.Response {
	t.Helper()
	resp, err := e.app.Test(jsonRequest(http.MethodPost, "/api/v1/projects", body))
	require.NoError(t, err)
	return resp
}

func TestCreateProjectEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp := env.createProject(t, fiber.Map{"id": "proj-1", "name": "Docs pipeline"})
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var body models.ProjectResponse
	decodeBody(t, resp, &body)
	assert.Equal(t, "proj-1", body.ID)
	assert.Equal(t, "Docs pipeline", body.Name)
	assert.Equal(t, models.ProjectStatusActive, body.Status)
}

func TestCreateProjectGeneratesID(t *testing.T) {
	env := newTestEnv(t)

	resp := env.createProject(t, fiber.Map{"name": "No explicit id"})
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var body models.ProjectResponse
	decodeBody(t, resp, &body)
	assert.NotEmpty(t, body.ID)
}

func TestCreateProjectValidation(t *testing.T) {
	env := newTestEnv(t)

	resp := env.createProject(t, fiber.Map{"description": "missing name"})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp = env.createProject(t, fiber.Map{"name": "bad status", "status": "suspended"})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestCreateProjectDuplicateID(t *testing.T) {
	env := newTestEnv(t)

	resp := env.createProject(t, fiber.Map{"id": "proj-1", "name": "first"})
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)

	resp = env.createProject(t, fiber.Map{"id": "proj-1", "name": "second"})
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
}

func TestGetProjectEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/projects/ghost", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	env.createProject(t, fiber.Map{"id": "proj-1", "name": "Docs pipeline"})

	resp, err = env.app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/projects/proj-1", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestListProjectsEndpoint(t *testing.T) {
	env := newTestEnv(t)

	env.createProject(t, fiber.Map{"id": "proj-1", "name": "active one"})
	env.createProject(t, fiber.Map{"id": "proj-2", "name": "archived one", "status": "archived"})

	resp, err := env.app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/projects", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body struct {
		Projects []models.ProjectResponse `json:"projects"`
		Count    int                      `json:"count"`
	}
	decodeBody(t, resp, &body)
	assert.Equal(t, 2, body.Count)

	resp, err = env.app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/projects?status=archived", nil))
	require.NoError(t, err)
	decodeBody(t, resp, &body)
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "proj-2", body.Projects[0].ID)

	resp, err = env.app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/projects?status=bogus", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestUpdateProjectEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.app.Test(jsonRequest(http.MethodPatch, "/api/v1/projects/ghost", fiber.Map{"name": "x"}))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	env.createProject(t, fiber.Map{"id": "proj-1", "name": "before"})

	resp, err = env.app.Test(jsonRequest(http.MethodPatch, "/api/v1/projects/proj-1", fiber.Map{
		"status": "archived",
	}))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = env.app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/projects/proj-1", nil))
	require.NoError(t, err)
	var body models.ProjectResponse
	decodeBody(t, resp, &body)
	assert.Equal(t, models.ProjectStatusArchived, body.Status)
}

func TestDeleteProjectCascadesToStatistics(t *testing.T) {
	env := newTestEnv(t)

	env.createProject(t, fiber.Map{"id": "proj-1", "name": "doomed"})
	env.putStatistics(t, "proj-1", fiber.Map{"costs": fiber.Map{"claude_api": 4}})

	resp, err := env.app.Test(httptest.NewRequest(http.MethodDelete, "/api/v1/projects/proj-1", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)

	resp, err = env.app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/projects/proj-1", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp, err = env.app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/projects/proj-1/statistics", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp, err = env.app.Test(httptest.NewRequest(http.MethodDelete, "/api/v1/projects/proj-1", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}
