//go:build integration

package server

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/gavv/httpexpect/v2"
	"github.com/stretchr/testify/require"
	"phobos.org.uk/ccbridge/internal/bridge"
	"phobos.org.uk/ccbridge/internal/config"
	"phobos.org.uk/ccbridge/internal/logging"
	"phobos.org.uk/ccbridge/internal/testutil"
)

func TestIntegrationShellToEngine(t *testing.T) {
	engine := testutil.NewMockEngine(t, `{"project":{"project_id":"-home-me-app","name":"App","visible":false}}`, "", 0)
	hash, err := HashToken("shell-token")
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Port = testutil.AllocateTestPort(t)
	cfg.Engine.Launchers = []bridge.Launcher{
		{Name: "python3", Program: testutil.MissingProgram(t)},
		{Name: "mock", Program: engine.Path},
	}
	cfg.Auth.TokenHash = hash

	log := logging.New(logging.Config{Level: logging.LevelDebug, Component: "server"})
	s := New(cfg, "test-version", bridge.New(cfg.BridgeOptions(log)), log)

	go func() {
		s.Start()
	}()
	baseURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Port)
	testutil.WaitForHealthy(t, baseURL+"/status", 10*time.Second)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.Shutdown(ctx)
	}()

	e := httpexpect.Default(t, baseURL)

	e.GET("/status").
		Expect().
		Status(http.StatusOK).
		JSON().Object().
		HasValue("type", "bridge").
		HasValue("version", "test-version").
		HasValue("auth", true).
		ContainsKey("uptime_seconds")

	e.POST("/api/update-project").
		WithJSON(map[string]any{"projectId": "-home-me-app", "visible": false}).
		Expect().
		Status(http.StatusUnauthorized)

	e.POST("/api/update-project").
		WithHeader("Authorization", "Bearer shell-token").
		WithJSON(map[string]any{"projectId": "-home-me-app", "visible": false}).
		Expect().
		Status(http.StatusOK).
		JSON().Object().
		Value("project").Object().
		HasValue("project_id", "-home-me-app")

	require.Equal(t, []string{
		"-m", bridge.DefaultModule,
		"update-project", "--project-id=-home-me-app", "--visible=0",
	}, engine.Args(t))

	warnings := e.GET("/logs").
		WithHeader("Authorization", "Bearer shell-token").
		WithQuery("level", "warn").
		Expect().
		Status(http.StatusOK).
		JSON().Object().
		Value("entries").Array()
	warnings.Length().IsEqual(2)
	warnings.Value(0).Object().HasValue("message", "rejected unauthenticated request")
	warnings.Value(1).Object().
		HasValue("message", "launcher unavailable").
		HasValue("operation", "update-project")

	e.GET("/logs").
		WithHeader("Authorization", "Bearer shell-token").
		WithQuery("operation", "update-project").
		WithQuery("level", "warn").
		Expect().
		Status(http.StatusOK).
		JSON().Object().
		Value("entries").Array().
		Length().IsEqual(1)
}
