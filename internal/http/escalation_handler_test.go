package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"salatiso-escalation/internal/domain"
	"salatiso-escalation/internal/repository"
	"salatiso-escalation/internal/service"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	logger := zap.NewNop()
	repo := repository.NewMemoryEscalationsRepository()
	escalationService := service.NewEscalationService(repo, nil, nil, logger)
	metricsService := service.NewMetricsService(repo, logger)

	router := NewRouter(logger)
	router.RegisterEscalationRoutes(NewEscalationHandler(escalationService, metricsService, logger))
	router.RegisterHealthRoutes()

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

// doRequest 发送带租户/用户头的请求，解码统一响应信封
func doRequest(t *testing.T, srv *httptest.Server, method, path string, body any) map[string]any {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-Id", "tenant-1")
	req.Header.Set("X-User-Id", "alice")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var envelope map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	return envelope
}

func resultOf(t *testing.T, envelope map[string]any) map[string]any {
	t.Helper()
	require.Equal(t, float64(ResultSuccess), envelope["code"], "expected success envelope, got: %v", envelope["message"])
	result, ok := envelope["result"].(map[string]any)
	require.True(t, ok)
	return result
}

func createTestEscalation(t *testing.T, srv *httptest.Server, severity string) string {
	t.Helper()
	envelope := doRequest(t, srv, http.MethodPost, "/api/v1/escalations", map[string]any{
		"incident_id": "incident-1",
		"context":     "family",
		"severity":    severity,
		"title":       "Water leak",
		"description": "Burst pipe in the kitchen",
	})
	result := resultOf(t, envelope)
	eventID, _ := result["event_id"].(string)
	require.NotEmpty(t, eventID)
	return eventID
}

func TestCreateEscalation_HTTP(t *testing.T) {
	srv := newTestServer(t)

	envelope := doRequest(t, srv, http.MethodPost, "/api/v1/escalations", map[string]any{
		"incident_id": "incident-1",
		"context":     "family",
		"severity":    "medium",
		"title":       "Water leak",
	})

	result := resultOf(t, envelope)
	assert.Equal(t, "tenant-1", result["tenant_id"])
	assert.Equal(t, "open", result["status"])
	assert.Equal(t, "individual", result["current_level"])
	assert.Equal(t, "alice", result["created_by"])
	assert.Equal(t, float64(1), result["version"])
}

func TestCreateEscalation_MissingTenant(t *testing.T) {
	srv := newTestServer(t)

	body, _ := json.Marshal(map[string]any{
		"incident_id": "incident-1",
		"context":     "family",
		"severity":    "medium",
		"title":       "t",
	})
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/escalations", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("X-User-Id", "alice")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var envelope map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	assert.Equal(t, float64(ResultError), envelope["code"])
	assert.Contains(t, envelope["message"], "tenant_id is required")
}

func TestEscalate_HTTP(t *testing.T) {
	srv := newTestServer(t)
	eventID := createTestEscalation(t, srv, "medium")

	envelope := doRequest(t, srv, http.MethodPost,
		fmt.Sprintf("/api/v1/escalations/%s/escalate", eventID),
		map[string]any{"reason": "no response from owner"})

	result := resultOf(t, envelope)
	assert.Equal(t, "family", result["current_level"])
	assert.Equal(t, "escalated", result["status"])
	assert.Equal(t, "individual", result["previous_level"])
}

func TestEscalate_TerminalLevelFails(t *testing.T) {
	srv := newTestServer(t)
	eventID := createTestEscalation(t, srv, "low")

	for i := 0; i < 3; i++ {
		envelope := doRequest(t, srv, http.MethodPost,
			fmt.Sprintf("/api/v1/escalations/%s/escalate", eventID),
			map[string]any{"reason": "still unresolved"})
		resultOf(t, envelope)
	}

	// professional 之后不能再升级
	envelope := doRequest(t, srv, http.MethodPost,
		fmt.Sprintf("/api/v1/escalations/%s/escalate", eventID),
		map[string]any{"reason": "one more"})
	assert.Equal(t, float64(ResultError), envelope["code"])
	assert.Contains(t, envelope["message"], string(domain.CodeEscalateError))
}

func TestUpdateStatus_HTTP(t *testing.T) {
	srv := newTestServer(t)
	eventID := createTestEscalation(t, srv, "medium")

	envelope := doRequest(t, srv, http.MethodPut,
		fmt.Sprintf("/api/v1/escalations/%s/status", eventID),
		map[string]any{"status": "resolved", "notes": "fixed"})

	result := resultOf(t, envelope)
	assert.Equal(t, "resolved", result["status"])
	assert.NotNil(t, result["resolved_at"])
	assert.Equal(t, "fixed", result["resolution_notes"])
}

func TestResponderLifecycle_HTTP(t *testing.T) {
	srv := newTestServer(t)
	eventID := createTestEscalation(t, srv, "medium")

	// alice（创建人）分配 bob 为响应人
	envelope := doRequest(t, srv, http.MethodPost,
		fmt.Sprintf("/api/v1/escalations/%s/responders", eventID),
		map[string]any{"user_id": "bob"})
	result := resultOf(t, envelope)
	responders, ok := result["responders"].([]any)
	require.True(t, ok)
	require.Len(t, responders, 1)

	// bob 确认分配
	req, err := http.NewRequest(http.MethodPut,
		srv.URL+fmt.Sprintf("/api/v1/escalations/%s/responders/acknowledge", eventID), nil)
	require.NoError(t, err)
	req.Header.Set("X-Tenant-Id", "tenant-1")
	req.Header.Set("X-User-Id", "bob")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var ackEnvelope map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ackEnvelope))
	ackResult := resultOf(t, ackEnvelope)
	ackResponders := ackResult["responders"].([]any)
	first := ackResponders[0].(map[string]any)
	assert.Equal(t, true, first["acknowledged"])
	assert.Equal(t, "acknowledged", first["status"])
}

func TestGetEscalation_HTTP(t *testing.T) {
	srv := newTestServer(t)
	eventID := createTestEscalation(t, srv, "medium")

	envelope := doRequest(t, srv, http.MethodGet, "/api/v1/escalations/"+eventID, nil)
	result := resultOf(t, envelope)
	assert.Equal(t, eventID, result["event_id"])
}

func TestGetEscalation_NotFound(t *testing.T) {
	srv := newTestServer(t)

	envelope := doRequest(t, srv, http.MethodGet, "/api/v1/escalations/nope", nil)
	assert.Equal(t, float64(ResultError), envelope["code"])
	assert.Contains(t, envelope["message"], string(domain.CodeReadError))
}

func TestListEscalations_HTTP(t *testing.T) {
	srv := newTestServer(t)
	createTestEscalation(t, srv, "medium")
	createTestEscalation(t, srv, "high")

	envelope := doRequest(t, srv, http.MethodGet, "/api/v1/escalations?open_only=true", nil)
	result := resultOf(t, envelope)
	assert.Equal(t, float64(2), result["total"])
	items, ok := result["items"].([]any)
	require.True(t, ok)
	assert.Len(t, items, 2)
}

func TestGetMetrics_HTTP(t *testing.T) {
	srv := newTestServer(t)
	createTestEscalation(t, srv, "medium")

	envelope := doRequest(t, srv, http.MethodGet, "/api/v1/escalations/metrics?range=week", nil)
	result := resultOf(t, envelope)
	assert.Equal(t, "week", result["time_range"])
	assert.Equal(t, float64(1), result["total"])
}

func TestExportEscalations_HTTP(t *testing.T) {
	srv := newTestServer(t)
	createTestEscalation(t, srv, "medium")

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/escalations/export", nil)
	require.NoError(t, err)
	req.Header.Set("X-Tenant-Id", "tenant-1")
	req.Header.Set("X-User-Id", "alice")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "spreadsheet")
	assert.Contains(t, resp.Header.Get("Content-Disposition"), ".xlsx")
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUnknownRoute_Returns404(t *testing.T) {
	srv := newTestServer(t)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/v1/escalations/evt-1", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
