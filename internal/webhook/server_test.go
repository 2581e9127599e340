package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mendhq/mend/internal/orchestrator"
	"github.com/mendhq/mend/internal/types"
)

type stubHealer struct {
	mu          sync.Mutex
	incidents   []*types.Incident
	deployments []orchestrator.DeploymentReport
	reportErr   error
	deployErr   error
}

func (s *stubHealer) Report(ctx context.Context, incident *types.Incident) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reportErr != nil {
		return s.reportErr
	}
	incident.ID = fmt.Sprintf("inc-%d", len(s.incidents)+1)
	incident.Status = types.IncidentOpen
	s.incidents = append(s.incidents, incident)
	return nil
}

func (s *stubHealer) HandleDeploymentStatus(ctx context.Context, report orchestrator.DeploymentReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deployErr != nil {
		return s.deployErr
	}
	s.deployments = append(s.deployments, report)
	return nil
}

func (s *stubHealer) Status() orchestrator.Status {
	return orchestrator.Status{Running: true}
}

func newTestServer(t *testing.T) (*stubHealer, *httptest.Server) {
	t.Helper()
	healer := &stubHealer{}
	ts := httptest.NewServer(NewServer("127.0.0.1:0", healer).routes())
	t.Cleanup(ts.Close)
	return healer, ts
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestHealthz(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "ok", body["status"])
}

func TestReportIncident(t *testing.T) {
	healer, ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/incidents", map[string]interface{}{
		"kind":        "runtime_error",
		"severity":    "high",
		"title":       "TypeError in request handler",
		"description": "TypeError: Cannot read properties of undefined",
		"source":      "error-detector",
	})

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "inc-1", body["id"])
	assert.Equal(t, "open", body["status"])

	require.Len(t, healer.incidents, 1)
	assert.Equal(t, types.KindRuntimeError, healer.incidents[0].Kind)
	assert.Equal(t, "error-detector", healer.incidents[0].Source)
}

func TestReportIncidentBadPayload(t *testing.T) {
	healer, ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/incidents", "application/json", bytes.NewReader([]byte("{broken")))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Contains(t, body["error"], "invalid incident payload")
	assert.Empty(t, healer.incidents)
}

func TestReportIncidentRejected(t *testing.T) {
	healer, ts := newTestServer(t)
	healer.reportErr = fmt.Errorf("storing incident: title is required")

	resp := postJSON(t, ts.URL+"/incidents", map[string]interface{}{"kind": "runtime_error"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Contains(t, body["error"], "title is required")
}

func TestDeploymentWebhook(t *testing.T) {
	healer, ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/webhooks/deployment", map[string]interface{}{
		"sessionId":        "sess-1",
		"deploymentStatus": "succeeded",
		"url":              "https://deploys.acme.dev/runs/8812",
	})

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "sess-1", body["session_id"])
	assert.Equal(t, "succeeded", body["deployment_status"])

	require.Len(t, healer.deployments, 1)
	assert.Equal(t, "sess-1", healer.deployments[0].SessionID)
	assert.Equal(t, types.DeployStatusSucceeded, healer.deployments[0].Status)
	assert.Equal(t, "https://deploys.acme.dev/runs/8812", healer.deployments[0].URL)
}

func TestDeploymentWebhookInvalid(t *testing.T) {
	healer, ts := newTestServer(t)
	healer.deployErr = fmt.Errorf("invalid deployment status %q", "sideways")

	resp := postJSON(t, ts.URL+"/webhooks/deployment", map[string]interface{}{
		"sessionId":        "sess-1",
		"deploymentStatus": "sideways",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDeploymentWebhookWhileStopped(t *testing.T) {
	healer, ts := newTestServer(t)
	healer.deployErr = fmt.Errorf("orchestrator is stopped")

	resp := postJSON(t, ts.URL+"/webhooks/deployment", map[string]interface{}{
		"sessionId":        "sess-1",
		"deploymentStatus": "succeeded",
	})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestStartAndShutdown(t *testing.T) {
	srv := NewServer("127.0.0.1:0", &stubHealer{})
	require.NoError(t, srv.Start())

	resp, err := http.Get("http://" + srv.Addr() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, srv.Shutdown(context.Background()))

	_, err = http.Get("http://" + srv.Addr() + "/healthz")
	assert.Error(t, err, "requests fail after shutdown")
}
