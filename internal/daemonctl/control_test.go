package daemonctl_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scriptlab/internal/api"
	"scriptlab/internal/daemonctl"
)

func healthServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/health" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok","database":"ok"}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestReadPID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scriptlab.pid")

	pid, err := daemonctl.ReadPID(path)
	require.NoError(t, err)
	assert.Zero(t, pid)

	require.NoError(t, os.WriteFile(path, []byte("garbage\n"), 0o644))
	pid, err = daemonctl.ReadPID(path)
	require.NoError(t, err)
	assert.Zero(t, pid)

	require.NoError(t, os.WriteFile(path, []byte(strconv.Itoa(4242)+"\n"), 0o644))
	pid, err = daemonctl.ReadPID(path)
	require.NoError(t, err)
	assert.Equal(t, 4242, pid)
}

func TestProcessAlive(t *testing.T) {
	assert.True(t, daemonctl.ProcessAlive(os.Getpid()))
	assert.False(t, daemonctl.ProcessAlive(0))
}

func TestEnsureStartedWhenAlreadyRunning(t *testing.T) {
	srv := healthServer(t)
	client := api.NewClient(srv.URL, "", "")

	// The executable is never launched when health already answers.
	result, err := daemonctl.EnsureStarted(context.Background(), client, "/nonexistent/scriptlab", daemonctl.LaunchOptions{}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, daemonctl.StartStateAlreadyRunning, result.State)
	assert.False(t, result.Launched)
	assert.Equal(t, "ok", result.Database)
}

func TestLaunchRejectsEmptyExecutable(t *testing.T) {
	err := daemonctl.Launch("  ", daemonctl.LaunchOptions{})
	require.Error(t, err)
}

func TestStopWithoutDaemon(t *testing.T) {
	client := api.NewClient("http://127.0.0.1:1", "", "")
	_, err := daemonctl.Stop(context.Background(), client, filepath.Join(t.TempDir(), "scriptlab.pid"), time.Second)
	require.ErrorIs(t, err, daemonctl.ErrDaemonNotRunning)
}

func TestProcessInfo(t *testing.T) {
	srv := healthServer(t)
	path := filepath.Join(t.TempDir(), "scriptlab.pid")
	require.NoError(t, os.WriteFile(path, []byte("31337"), 0o644))

	alive, pid, err := daemonctl.ProcessInfo(context.Background(), api.NewClient(srv.URL, "", ""), path)
	require.NoError(t, err)
	assert.True(t, alive)
	assert.Equal(t, 31337, pid)

	alive, _, err = daemonctl.ProcessInfo(context.Background(), api.NewClient("http://127.0.0.1:1", "", ""), path)
	require.NoError(t, err)
	assert.False(t, alive)
}

func TestWaitForShutdownReturnsWhenUnreachable(t *testing.T) {
	client := api.NewClient("http://127.0.0.1:1", "", "")
	require.NoError(t, daemonctl.WaitForShutdown(context.Background(), client, time.Second))
}
