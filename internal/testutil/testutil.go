package testutil

import (
	"fmt"
	"hash/fnv"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// AllocateTestPort returns a deterministic port based on test name
func AllocateTestPort(t *testing.T) int {
	t.Helper()
	h := fnv.New32a()
	h.Write([]byte(t.Name()))
	return 20000 + int(h.Sum32()%10000)
}

// WaitForHealthy waits for a URL to return 200 OK
func WaitForHealthy(t *testing.T, url string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	client := &http.Client{Timeout: 500 * time.Millisecond}

	for time.Now().Before(deadline) {
		resp, err := client.Get(url)
		if err == nil && resp.StatusCode == http.StatusOK {
			resp.Body.Close()
			return
		}
		if resp != nil {
			resp.Body.Close()
		}
		time.Sleep(50 * time.Millisecond)
	}

	t.Fatalf("Service at %s did not become healthy within %v", url, timeout)
}

// MockEngine is a shell script standing in for the analytics engine.
// It records its arguments, one per line, and replays fixed output.
type MockEngine struct {
	Path     string
	ArgsFile string
}

// NewMockEngine writes an executable engine script into a temp dir.
func NewMockEngine(t *testing.T, stdout, stderr string, exitCode int) MockEngine {
	t.Helper()
	dir := t.TempDir()
	m := MockEngine{
		Path:     filepath.Join(dir, "mock-engine"),
		ArgsFile: filepath.Join(dir, "args"),
	}
	script := fmt.Sprintf(`#!/bin/sh
printf '%%s\n' "$@" > %s
printf '%%s' %s
printf '%%s' %s >&2
exit %d
`, shellQuote(m.ArgsFile), shellQuote(stdout), shellQuote(stderr), exitCode)

	if err := os.WriteFile(m.Path, []byte(script), 0755); err != nil {
		t.Fatalf("writing mock engine: %v", err)
	}
	return m
}

// Args returns the arguments of the last run, or nil if it never ran.
func (m MockEngine) Args(t *testing.T) []string {
	t.Helper()
	data, err := os.ReadFile(m.ArgsFile)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		t.Fatalf("reading mock engine args: %v", err)
	}
	return strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
}

// Ran reports whether the script was executed.
func (m MockEngine) Ran() bool {
	_, err := os.Stat(m.ArgsFile)
	return err == nil
}

// MissingProgram returns a path that is guaranteed not to exist.
func MissingProgram(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "no-such-launcher")
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// DashboardPayload is a minimal engine response for the dashboard operation.
const DashboardPayload = `{"range":{"from":"2025-01-01","to":"2025-12-31"},"totals":{"messages":12,"sessions":3},"daily_activity":[],"timeline":{"granularity":"month","data":[]},"model_distribution":[],"hourly_profile":[],"recent_sessions":[]}`
