package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"phobos.org.uk/ccbridge/internal/api"
	"phobos.org.uk/ccbridge/internal/bridge"
	"phobos.org.uk/ccbridge/internal/config"
	"phobos.org.uk/ccbridge/internal/logging"
	"phobos.org.uk/ccbridge/internal/testutil"
)

func newTestServer(t *testing.T, launchers []bridge.Launcher, tokenHash string) (*Server, *logging.Logger) {
	t.Helper()
	cfg := config.Default()
	cfg.Engine.Launchers = launchers
	cfg.Auth.TokenHash = tokenHash

	log := logging.New(logging.Config{Output: &bytes.Buffer{}, Level: logging.LevelDebug, Component: "server"})
	b := bridge.New(cfg.BridgeOptions(log))
	return New(cfg, "test-version", b, log), log
}

func mockLaunchers(engine testutil.MockEngine) []bridge.Launcher {
	return []bridge.Launcher{{Name: "mock", Program: engine.Path}}
}

func do(t *testing.T, s *Server, method, path, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) api.ErrorResponse {
	t.Helper()
	var resp api.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestStatusEndpoint(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, bridge.DefaultLaunchers(), "")
	w := do(t, s, "GET", "/status", "")

	require.Equal(t, http.StatusOK, w.Code)
	var resp StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "bridge", resp.Type)
	assert.Equal(t, "test-version", resp.Version)
	assert.Equal(t, bridge.DefaultModule, resp.Module)
	assert.Len(t, resp.Launchers, 3)
	assert.False(t, resp.Auth)
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
}

func TestOperationsEndpoint(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, bridge.DefaultLaunchers(), "")
	w := do(t, s, "GET", "/api/operations", "")

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Operations []bridge.Operation `json:"operations"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Operations, len(bridge.Catalog()))
}

func TestCallSuccessWritesPayloadVerbatim(t *testing.T) {
	t.Parallel()

	engine := testutil.NewMockEngine(t, testutil.DashboardPayload, "", 0)
	s, log := newTestServer(t, mockLaunchers(engine), "")

	requestID := "6f1c7d1e-4f6b-4b8a-9c55-3d1f2a9b7e10"
	w := do(t, s, "POST", "/api/dashboard", `{"from":"2025-01-01","to":"2025-12-31","refresh":true}`,
		RequestIDHeader, requestID)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, testutil.DashboardPayload, w.Body.String())
	assert.Equal(t, requestID, w.Header().Get(RequestIDHeader))
	assert.Equal(t, []string{
		"-m", bridge.DefaultModule,
		"dashboard", "--from", "2025-01-01", "--to", "2025-12-31", "--refresh", "1", "--granularity", "month",
	}, engine.Args(t))

	res := log.Query(logging.Query{CallID: requestID})
	require.NotEmpty(t, res.Entries)
	assert.Equal(t, "call completed", res.Entries[len(res.Entries)-1].Message)
}

func TestCallErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		launchers  func(t *testing.T) []bridge.Launcher
		body       string
		path       string
		wantStatus int
		wantError  string
		wantMsg    string
	}{
		{
			name: "engine error",
			launchers: func(t *testing.T) []bridge.Launcher {
				return mockLaunchers(testutil.NewMockEngine(t, "", "db locked", 1))
			},
			path:       "/api/day",
			body:       `{"date":"2025-06-15"}`,
			wantStatus: http.StatusBadGateway,
			wantError:  "engine_error",
			wantMsg:    "db locked",
		},
		{
			name: "malformed output",
			launchers: func(t *testing.T) []bridge.Launcher {
				return mockLaunchers(testutil.NewMockEngine(t, "not json", "", 0))
			},
			path:       "/api/list-projects",
			wantStatus: http.StatusBadGateway,
			wantError:  "malformed_output",
			wantMsg:    "not json",
		},
		{
			name: "interpreter unavailable",
			launchers: func(t *testing.T) []bridge.Launcher {
				return []bridge.Launcher{{Name: "gone", Program: testutil.MissingProgram(t)}}
			},
			path:       "/api/usage-accounts",
			wantStatus: http.StatusServiceUnavailable,
			wantError:  "interpreter_unavailable",
			wantMsg:    "tried gone",
		},
		{
			name:       "validation",
			launchers:  func(t *testing.T) []bridge.Launcher { return bridge.DefaultLaunchers() },
			path:       "/api/dashboard",
			body:       `{"from":"2025-01-01","to":"2025-12-31","granularity":"year"}`,
			wantStatus: http.StatusBadRequest,
			wantError:  api.ErrorValidation,
			wantMsg:    "granularity",
		},
		{
			name:       "unknown operation",
			launchers:  func(t *testing.T) []bridge.Launcher { return bridge.DefaultLaunchers() },
			path:       "/api/weather",
			wantStatus: http.StatusNotFound,
			wantError:  api.ErrorNotFound,
			wantMsg:    "weather",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s, _ := newTestServer(t, tt.launchers(t), "")
			w := do(t, s, "POST", tt.path, tt.body)

			require.Equal(t, tt.wantStatus, w.Code)
			resp := decodeError(t, w)
			assert.Equal(t, tt.wantError, resp.Error)
			assert.Contains(t, resp.Message, tt.wantMsg)
		})
	}
}

func TestCallTimeout(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Engine.Launchers = []bridge.Launcher{{Name: "sh", Program: "/bin/sh", Args: []string{"-c", "sleep 30", "sh"}}}
	cfg.Engine.Timeout = 200 * time.Millisecond
	s := New(cfg, "test", bridge.New(cfg.BridgeOptions(nil)), nil)

	start := time.Now()
	w := do(t, s, "POST", "/api/list-projects", "")
	assert.Less(t, time.Since(start), 10*time.Second)
	require.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, decodeError(t, w).Message, "deadline exceeded")
}

func TestAuth(t *testing.T) {
	t.Parallel()

	hash, err := HashToken("s3cret")
	require.NoError(t, err)
	engine := testutil.NewMockEngine(t, `{"projects":[]}`, "", 0)
	s, _ := newTestServer(t, mockLaunchers(engine), hash)

	// Status stays open.
	require.Equal(t, http.StatusOK, do(t, s, "GET", "/status", "").Code)

	for _, header := range [][]string{
		nil,
		{"Authorization", "Bearer wrong"},
		{"Authorization", "s3cret"},
	} {
		w := do(t, s, "POST", "/api/list-projects", "", header...)
		require.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, api.ErrorUnauthorized, decodeError(t, w).Error)
	}
	assert.False(t, engine.Ran())

	w := do(t, s, "POST", "/api/list-projects", "", "Authorization", "Bearer s3cret")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"projects":[]}`, w.Body.String())

	require.Equal(t, http.StatusUnauthorized, do(t, s, "GET", "/logs", "").Code)
	require.Equal(t, http.StatusUnauthorized, do(t, s, "DELETE", "/logs", "").Code)
}

func TestLogsEndpoints(t *testing.T) {
	t.Parallel()

	engine := testutil.NewMockEngine(t, "", "boom", 1)
	s, _ := newTestServer(t, mockLaunchers(engine), "")
	require.Equal(t, http.StatusBadGateway, do(t, s, "POST", "/api/list-projects", "").Code)

	w := do(t, s, "GET", "/logs?level=error&operation=list-projects", "")
	require.Equal(t, http.StatusOK, w.Code)
	var res logging.QueryResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.Len(t, res.Entries, 1)
	assert.Equal(t, "call failed", res.Entries[0].Message)

	w = do(t, s, "GET", "/logs?limit=abc", "")
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, s, "GET", "/logs/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	var stats logging.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, int64(1), stats.Error)

	w = do(t, s, "DELETE", "/logs", "")
	require.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, s, "GET", "/logs", "")
	require.Equal(t, http.StatusOK, w.Code)
	res = logging.QueryResult{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Empty(t, res.Entries)
	assert.Zero(t, res.Counts.Total)
}

func TestAddr(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Port = 9411
	s := New(cfg, "v", bridge.New(bridge.Options{}), nil)
	assert.Equal(t, "127.0.0.1:9411", s.Addr())
}
