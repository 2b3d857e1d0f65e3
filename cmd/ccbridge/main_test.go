package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"phobos.org.uk/ccbridge/internal/bridge"
	"phobos.org.uk/ccbridge/internal/testutil"
)

func writeConfig(t *testing.T, engine testutil.MockEngine) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := fmt.Sprintf("log_level: error\nengine:\n  launchers:\n    - name: mock\n      program: %s\n", engine.Path)
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))
	return path
}

func TestCallCmdForwardsOnlyGivenFlags(t *testing.T) {
	t.Setenv(bridge.LauncherEnv, "")
	engine := testutil.NewMockEngine(t, `{"project":{"project_id":"-x"}}`, "", 0)
	cfgPath := writeConfig(t, engine)

	var stdout, stderr bytes.Buffer
	code := callCmd([]string{"update-project", "-config", cfgPath, "-project-id", "-x", "-visible=false"}, &stdout, &stderr)

	require.Equal(t, 0, code, stderr.String())
	require.JSONEq(t, `{"project":{"project_id":"-x"}}`, stdout.String())
	require.Equal(t, []string{"-m", bridge.DefaultModule, "update-project", "--project-id=-x", "--visible=0"}, engine.Args(t))
}

func TestCallCmdDashboardDefaults(t *testing.T) {
	t.Setenv(bridge.LauncherEnv, "")
	engine := testutil.NewMockEngine(t, testutil.DashboardPayload, "", 0)
	cfgPath := writeConfig(t, engine)

	var stdout, stderr bytes.Buffer
	code := callCmd([]string{"dashboard", "-config", cfgPath, "-from", "2025-01-01", "-to", "2025-12-31"}, &stdout, &stderr)

	require.Equal(t, 0, code, stderr.String())
	require.Equal(t, []string{
		"-m", bridge.DefaultModule,
		"dashboard", "--from", "2025-01-01", "--to", "2025-12-31", "--refresh", "0", "--granularity", "month",
	}, engine.Args(t))
}

func TestCallCmdFailures(t *testing.T) {
	t.Setenv(bridge.LauncherEnv, "")
	engine := testutil.NewMockEngine(t, "", "db locked", 1)
	cfgPath := writeConfig(t, engine)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "no operation", args: nil, want: "Usage"},
		{name: "unknown operation", args: []string{"weather"}, want: "Unknown operation"},
		{name: "validation", args: []string{"day", "-config", cfgPath}, want: "date is required"},
		{name: "engine error", args: []string{"day", "-config", cfgPath, "-date", "2025-06-15"}, want: "engine_error: db locked"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			code := callCmd(tt.args, &stdout, &stderr)
			require.Equal(t, 1, code)
			require.Contains(t, stderr.String(), tt.want)
			require.Empty(t, stdout.String())
		})
	}
}

func TestOperationsCmd(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	operationsCmd(&out)
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, len(bridge.Catalog())+1)
	require.Contains(t, out.String(), "limit-resets")
}

func TestCallCmdHelpDescribesFlags(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	code := callCmd([]string{"day", "-h"}, &stdout, &stderr)

	require.Equal(t, 1, code)
	require.Contains(t, stderr.String(), "Day to break down, YYYY-MM-DD (day)")
	require.Contains(t, stderr.String(), "Timeline bucket: month, week, or day")
	require.NotContains(t, stderr.String(), "\n    \tdate\n")
}
