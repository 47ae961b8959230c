package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/copyleftdev/scryshot/internal/backend/mocks"
	"github.com/copyleftdev/scryshot/internal/config"
	"github.com/copyleftdev/scryshot/internal/runner"
	"github.com/copyleftdev/scryshot/internal/runs"
	"github.com/copyleftdev/scryshot/internal/scenario"
)

const runBody = `{
  "base_url": "http://localhost:3000",
  "scenarios": [
    {"name": "stats", "steps": [
      {"kind": "navigate", "url": "/app/stats"},
      {"kind": "wait_for", "selector": "h1"},
      {"kind": "screenshot", "path": "stats.png"}
    ]}
  ]
}`

func newTestServer(t *testing.T, apiKey string) *httptest.Server {
	t.Helper()
	b := mocks.NewMockBackend().Handle("/app/stats", &mocks.Route{Visible: []string{"h1"}})
	defaults := runner.DefaultOptions()
	defaults.ArtifactDir = t.TempDir()
	rm := runs.NewManager(runner.New(b, zap.NewNop()), runs.ManagerOptions{
		Defaults:    defaults,
		BackendName: b.Name(),
		MaxRuns:     1,
	}, zap.NewNop())

	cfg := &config.Config{}
	cfg.Security.AllowedOrigins = []string{"*"}
	cfg.Security.ApiKey = apiKey

	srv := httptest.NewServer(NewRouter(cfg, rm, zap.NewNop()))
	t.Cleanup(func() {
		srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = rm.Shutdown(ctx)
	})
	return srv
}

func do(t *testing.T, method, url, body string, header http.Header) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, "secret")
	resp := do(t, http.MethodGet, srv.URL+"/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, "")
	resp := do(t, http.MethodGet, srv.URL+"/metrics", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "scryshot_")
}

func TestSubmitAndFetchRun(t *testing.T) {
	srv := newTestServer(t, "")

	resp := do(t, http.MethodPost, srv.URL+"/api/v1/runs", runBody, nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var submitted SubmitRunResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&submitted))
	require.NotEmpty(t, submitted.RunID)
	assert.Equal(t, "/api/v1/runs/"+submitted.RunID, resp.Header.Get("Location"))

	var run runs.Run
	require.Eventually(t, func() bool {
		resp := do(t, http.MethodGet, srv.URL+"/api/v1/runs/"+submitted.RunID, "", nil)
		if resp.StatusCode != http.StatusOK {
			return false
		}
		run = runs.Run{}
		return json.NewDecoder(resp.Body).Decode(&run) == nil && run.Finished()
	}, 5*time.Second, 20*time.Millisecond)

	assert.Equal(t, runs.StatusCompleted, run.Status)
	require.Len(t, run.Results, 1)
	assert.Equal(t, scenario.StatusPassed, run.Results[0].Status)

	resp = do(t, http.MethodGet, srv.URL+"/api/v1/runs/"+submitted.RunID+"/artifacts/stats/stats.png", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, http.MethodGet, srv.URL+"/api/v1/runs/"+submitted.RunID+"/artifacts/report.json", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, http.MethodGet, srv.URL+"/api/v1/runs/"+submitted.RunID+"/artifacts/stats/missing.png", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSubmitRun_BadRequests(t *testing.T) {
	srv := newTestServer(t, "")

	tests := map[string]string{
		"malformed json":  `{"base_url":`,
		"unknown field":   `{"base_url":"http://localhost:3000","scenarios":[],"extra":1}`,
		"no scenarios":    `{"base_url":"http://localhost:3000","scenarios":[]}`,
		"invalid step":    `{"base_url":"http://localhost:3000","scenarios":[{"name":"x","steps":[{"kind":"hover"}]}]}`,
		"relative base":   `{"base_url":"/app","scenarios":[{"name":"x","steps":[{"kind":"navigate","url":"/"}]}]}`,
		"unknown device":  `{"base_url":"http://localhost:3000","scenarios":[{"name":"x","device":"Nokia 3310","steps":[{"kind":"navigate","url":"/"}]}]}`,
		"unknown profile": `{"base_url":"http://localhost:3000","options":{"device_profile":"Nokia 3310"},"scenarios":[{"name":"x","steps":[{"kind":"navigate","url":"/"}]}]}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			resp := do(t, http.MethodPost, srv.URL+"/api/v1/runs", body, nil)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			var payload map[string]string
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
			assert.NotEmpty(t, payload["error"])
		})
	}
}

func TestGetRun_NotFoundAndBadID(t *testing.T) {
	srv := newTestServer(t, "")

	resp := do(t, http.MethodGet, srv.URL+"/api/v1/runs/not-a-uuid", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, http.MethodGet, srv.URL+"/api/v1/runs/7f9c2a34-5b1e-4c8d-9a0f-3e6b2d1c4a58", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPIKeyAuth(t *testing.T) {
	srv := newTestServer(t, "secret")
	url := srv.URL + "/api/v1/runs/7f9c2a34-5b1e-4c8d-9a0f-3e6b2d1c4a58"

	tests := []struct {
		name   string
		header http.Header
		want   int
	}{
		{"missing", nil, http.StatusUnauthorized},
		{"wrong", http.Header{"X-Api-Key": {"nope"}}, http.StatusForbidden},
		{"header", http.Header{"X-Api-Key": {"secret"}}, http.StatusNotFound},
		{"bearer", http.Header{"Authorization": {"Bearer secret"}}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, http.MethodGet, url, "", tt.header)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}
