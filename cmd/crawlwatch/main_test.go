package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"

	"github.com/dm/crawlwatch/internal/config"
	"github.com/dm/crawlwatch/internal/model"
)

// crawlServer is a minimal crawl server: session 404 is unknown, every
// other session reports running until stopped.
type crawlServer struct {
	mu       sync.Mutex
	stopped  map[string]bool
	commands []string
}

func newCrawlServer(t *testing.T) (*httptest.Server, *crawlServer) {
	t.Helper()
	cs := &crawlServer{stopped: map[string]bool{}}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /sessions/{id}/status", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if id == "404" {
			http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
			return
		}
		status := "running"
		cs.mu.Lock()
		if cs.stopped[id] {
			status = "cancelled"
		}
		cs.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"status":                status,
			"progress_percentage":   40,
			"total_urls_discovered": 1000,
			"total_urls_processed":  400,
			"total_files_found":     12,
		})
	})
	mux.HandleFunc("GET /dashboard/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"total_sessions":3,"active_sessions":0,"completed_sessions":2,"failed_sessions":0,"total_files_found":1500}`))
	})
	mux.HandleFunc("POST /sessions/{id}/{op}", func(w http.ResponseWriter, r *http.Request) {
		id, op := r.PathValue("id"), r.PathValue("op")
		cs.mu.Lock()
		cs.commands = append(cs.commands, op+" "+id)
		if op == "stop" {
			cs.stopped[id] = true
		}
		cs.mu.Unlock()
		w.Write([]byte(`{"ok":true}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, cs
}

func (cs *crawlServer) issued() []string {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return append([]string(nil), cs.commands...)
}

type harness struct {
	runner *Runner
	out    *bytes.Buffer
	errOut *bytes.Buffer
}

func newHarness(input string, env map[string]string) *harness {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	runner := NewRunner(RunnerOpts{
		Logger:    config.NewLogger(errOut, "info"),
		Output:    out,
		ErrOutput: errOut,
		Input:     strings.NewReader(input),
		LookupEnv: func(k string) (string, bool) {
			v, ok := env[k]
			return v, ok
		},
	})
	return &harness{runner: runner, out: out, errOut: errOut}
}

func (h *harness) run(args ...string) error {
	return newApp(h.runner).Run(context.Background(), append([]string{"crawlwatch"}, args...))
}

func TestNewRunner_Defaults(t *testing.T) {
	r := NewRunner(RunnerOpts{})
	assert.NotNil(t, r.logger)
	assert.Equal(t, os.Stdout, r.output)
	assert.Equal(t, os.Stdin, r.input)
	assert.NotNil(t, r.lookupEnv)
}

func TestRegister(t *testing.T) {
	var names []string
	for _, c := range NewRunner(RunnerOpts{}).register() {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"init", "watch", "status", "stats", "start", "stop", "pause"}, names)
}

func TestParseConfirm(t *testing.T) {
	tests := []struct {
		answer string
		want   bool
	}{
		{"y\n", true},
		{"Y", true},
		{" yes \n", true},
		{"YES", true},
		{"", false},
		{"\n", false},
		{"n", false},
		{"yep", false},
	}
	for _, tc := range tests {
		t.Run(tc.answer, func(t *testing.T) {
			assert.Equal(t, tc.want, parseConfirm(tc.answer))
		})
	}
}

func TestPromptConfirmer(t *testing.T) {
	var out bytes.Buffer
	p := &promptConfirmer{in: bufio.NewReader(strings.NewReader("y\n")), out: &out}
	ok, err := p.Confirm(context.Background(), "7", model.CommandStop)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, out.String(), "Stop session 7?")

	p = &promptConfirmer{in: bufio.NewReader(strings.NewReader("")), out: &out}
	ok, err = p.Confirm(context.Background(), "7", model.CommandStop)
	require.NoError(t, err)
	assert.False(t, ok, "EOF declines")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ok, err = p.Confirm(ctx, "7", model.CommandStop)
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPromptConfirmer_CancelledWhileWaiting(t *testing.T) {
	r, w := io.Pipe()
	t.Cleanup(func() { w.Close() })
	p := &promptConfirmer{in: bufio.NewReader(r), out: io.Discard}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := p.Confirm(ctx, "7", model.CommandStop)
		done <- err
	}()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(time.Second):
		t.Fatal("Confirm kept waiting for input after its context ended")
	}
}

func TestLoadConfig_Layering(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "crawlwatch.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[server]
base_url = "http://from-file:8000"
[poll]
interval = "9s"
[log]
level = "error"
`), 0o600))

	h := newHarness("", map[string]string{config.EnvCSRFToken: "tok"})
	var got *config.Config
	loader := &cli.Command{
		Name:  "loader",
		Flags: globalFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			var err error
			got, err = h.runner.loadConfig(cmd)
			return err
		},
	}
	err := loader.Run(context.Background(), []string{"loader",
		"--config", path, "--env-file", filepath.Join(dir, "missing.env"),
		"--interval", "2s", "--insecure", "--push", "none"})
	require.NoError(t, err)

	assert.Equal(t, "http://from-file:8000", got.Server.BaseURL)
	assert.Equal(t, 2*time.Second, got.Poll.Interval.Duration, "flag wins over file")
	assert.True(t, got.Server.Insecure)
	assert.Equal(t, config.PushNone, got.Push.Transport)
	assert.Equal(t, "tok", got.Server.CSRFToken)
	assert.Equal(t, "error", h.runner.logger.GetLevel().String())
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"missing explicit file", []string{"--config", "/nonexistent/crawlwatch.toml", "status", "1"}},
		{"zero interval", []string{"--interval", "0s", "status", "1"}},
		{"bad url", []string{"--url", "ftp://x", "status", "1"}},
		{"bad transport", []string{"--push", "pigeon", "status", "1"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness("", nil)
			assert.Error(t, h.run(tc.args...))
		})
	}
}

func TestStatus(t *testing.T) {
	srv, _ := newCrawlServer(t)
	h := newHarness("", nil)

	require.NoError(t, h.run("--url", srv.URL, "status", "1", "2"))
	out := h.out.String()
	assert.Contains(t, out, "SESSION")
	assert.Contains(t, out, "running")
	assert.Contains(t, out, "40.0%")
	assert.Contains(t, out, "400/1,000")
}

func TestStatus_PartialFailure(t *testing.T) {
	srv, _ := newCrawlServer(t)
	h := newHarness("", nil)

	err := h.run("--url", srv.URL, "status", "1", "404")
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrTransport)
	assert.Contains(t, err.Error(), "1 of 2")
	assert.Contains(t, h.out.String(), "running", "successful rows are still printed")
	assert.Contains(t, h.out.String(), "error")
}

func TestStatus_JSON(t *testing.T) {
	srv, _ := newCrawlServer(t)
	h := newHarness("", nil)

	require.NoError(t, h.run("--url", srv.URL, "status", "--json", "3"))
	var got []sessionJSON
	require.NoError(t, json.Unmarshal(h.out.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "3", got[0].ID)
	assert.Equal(t, "running", got[0].Status)
	assert.Equal(t, int64(400), got[0].URLsProcessed)
}

func TestStatus_RequiresIDs(t *testing.T) {
	h := newHarness("", nil)
	assert.Error(t, h.run("--url", "http://localhost:1", "status"))
}

func TestStats(t *testing.T) {
	srv, _ := newCrawlServer(t)
	h := newHarness("", nil)

	require.NoError(t, h.run("--url", srv.URL, "stats", "1"))
	out := h.out.String()
	assert.Contains(t, out, "3 total")
	assert.Contains(t, out, "1,500")
	// Session 1 is running but the server reports no active sessions.
	assert.Contains(t, out, "Mismatch:  active_sessions server 0, sessions 1")
}

func TestStats_JSON(t *testing.T) {
	srv, _ := newCrawlServer(t)
	h := newHarness("", nil)

	require.NoError(t, h.run("--url", srv.URL, "stats", "--json"))
	var got statsJSON
	require.NoError(t, json.Unmarshal(h.out.Bytes(), &got))
	assert.Equal(t, 3, got.Server.TotalSessions)
	assert.Empty(t, got.Discrepancies, "nothing to compare without sessions")
}

func TestStop_Declined(t *testing.T) {
	srv, cs := newCrawlServer(t)
	h := newHarness("n\n", nil)

	require.NoError(t, h.run("--url", srv.URL, "stop", "5"))
	assert.Contains(t, h.out.String(), "Stop session 5?")
	assert.Contains(t, h.out.String(), "stop 5 cancelled")
	assert.Empty(t, cs.issued(), "declined stop never reaches the server")
}

func TestStop_Confirmed(t *testing.T) {
	srv, cs := newCrawlServer(t)
	h := newHarness("y\n", nil)

	require.NoError(t, h.run("--url", srv.URL, "stop", "5"))
	assert.Equal(t, []string{"stop 5"}, cs.issued())
	assert.Contains(t, h.out.String(), "stop 5 accepted")
	assert.Contains(t, h.out.String(), "session 5 is cancelled")
}

func TestStop_Yes(t *testing.T) {
	srv, cs := newCrawlServer(t)
	h := newHarness("", nil)

	require.NoError(t, h.run("--url", srv.URL, "stop", "--yes", "6"))
	assert.Equal(t, []string{"stop 6"}, cs.issued())
	assert.NotContains(t, h.out.String(), "[y/N]")
}

func TestStartAndPause(t *testing.T) {
	srv, cs := newCrawlServer(t)
	h := newHarness("", nil)

	require.NoError(t, h.run("--url", srv.URL, "start", "8"))
	require.NoError(t, h.run("--url", srv.URL, "pause", "8"))
	assert.Equal(t, []string{"start 8", "pause 8"}, cs.issued())
	assert.NotContains(t, h.out.String(), "[y/N]", "only stop asks")
}

func TestCommand_ArgCount(t *testing.T) {
	h := newHarness("", nil)
	assert.Error(t, h.run("--url", "http://localhost:1", "start"))
	assert.Error(t, h.run("--url", "http://localhost:1", "start", "1", "2"))
}

func TestCommand_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "conflict", http.StatusConflict)
	}))
	defer srv.Close()
	h := newHarness("", nil)

	err := h.run("--url", srv.URL, "pause", "9")
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrCommandFailed)
}

func TestInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crawlwatch.toml")
	h := newHarness("", nil)

	require.NoError(t, h.run("--config", path, "init"))
	assert.Contains(t, h.out.String(), "wrote "+path)
	cfg, err := config.Load(path, false)
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)

	assert.Error(t, h.run("--config", path, "init"), "refuses to overwrite")
}
