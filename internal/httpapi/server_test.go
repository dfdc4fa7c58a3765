package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xycareh/gitbutler/internal/controller"
	"github.com/xycareh/gitbutler/internal/events"
	"github.com/xycareh/gitbutler/internal/project"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	registry := project.NewRegistry()
	bus := events.New(4)
	t.Cleanup(bus.Close)
	return New(controller.New(registry, bus), registry)
}

func TestPing(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "pong", body["message"])
}

func TestAddProjectRegistersAndReturnsID(t *testing.T) {
	s := newTestServer(t)
	payload, err := json.Marshal(addProjectRequest{Path: t.TempDir()})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/projects", bytes.NewReader(payload)))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	id, err := uuid.Parse(body["projectId"])
	require.NoError(t, err)
	_, err = s.Registry.Get(id)
	assert.NoError(t, err)
}

func TestAddProjectRejectsGet(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/projects", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestListBranchesRequiresValidProjectID(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/branches/list?projectId=not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
