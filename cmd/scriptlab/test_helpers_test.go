package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"scriptlab/internal/advisory"
	"scriptlab/internal/api"
	"scriptlab/internal/config"
	"scriptlab/internal/logging"
	"scriptlab/internal/media"
	"scriptlab/internal/planner"
	"scriptlab/internal/testsupport"
	"scriptlab/internal/workflow"
)

const testToken = "cli-secret"

type cliTestEnv struct {
	cfg        *config.Config
	server     *httptest.Server
	llm        *httptest.Server
	media      *testsupport.StaticMedia
	logs       *logging.StreamHub
	configPath string
	baseDir    string
}

// setupCLITestEnv serves the API over httptest and points llm.base_url at a
// fake completions endpoint that answers plan prompts with a fixed plan.
func setupCLITestEnv(t *testing.T, stream *testsupport.ScriptedStream) *cliTestEnv {
	t.Helper()
	if stream == nil {
		stream = testsupport.NewScriptedStream()
	}

	cfg := testsupport.NewConfig(t, testsupport.WithAPIToken(testToken), testsupport.WithCritique(false))
	base := testsupport.BaseDir(cfg)

	llm := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		request, _ := io.ReadAll(r.Body)
		content := testsupport.PlanReply
		if strings.Contains(string(request), "Respond with") {
			content = `{"ok":true}`
		}
		body, _ := json.Marshal(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"content": content}}},
		})
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}))
	t.Cleanup(llm.Close)
	cfg.LLM.BaseURL = llm.URL

	st := testsupport.MustOpenStore(t, cfg)
	files, err := media.NewStore(cfg.Paths.MediaDir, cfg.MediaURL)
	if err != nil {
		t.Fatalf("media.NewStore: %v", err)
	}
	gen := &testsupport.StaticMedia{}
	mgr := workflow.NewManager(st,
		planner.New(testsupport.NewScriptedText(testsupport.PlanReply, testsupport.PlanReply), planner.WithCritique(false)),
		advisory.NewAdvisor(stream),
		gen,
	)
	hub := logging.NewStreamHub(64)
	srv := httptest.NewServer(api.New(cfg, mgr, files, api.WithHealthCheck(st), api.WithLogStream(hub)).Handler())
	t.Cleanup(srv.Close)

	configPath := filepath.Join(base, "scriptlab.toml")
	writeTestConfig(t, configPath, cfg)

	return &cliTestEnv{
		cfg:        cfg,
		server:     srv,
		llm:        llm,
		media:      gen,
		logs:       hub,
		configPath: configPath,
		baseDir:    base,
	}
}

func (e *cliTestEnv) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	return runCLI(t, args, e.server.URL, e.configPath)
}

func runCLI(t *testing.T, args []string, server, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if server != "" {
		flags = append(flags, "--server", server)
	}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(`[paths]
data_dir = %q
log_dir = %q
media_dir = %q

[api]
bind = %q
token = %q

[llm]
api_key = %q
base_url = %q

[generation]
critique = %t

[notifications]
ntfy_topic = %q
`,
		cfg.Paths.DataDir,
		cfg.Paths.LogDir,
		cfg.Paths.MediaDir,
		cfg.API.Bind,
		cfg.API.Token,
		cfg.LLM.APIKey,
		cfg.LLM.BaseURL,
		cfg.Generation.Critique,
		cfg.Notifications.NtfyTopic,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func writeBrief(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "brief.yaml")
	content := `idea: Three desk tools I use daily
format: talking_head
tone: friendly
brand:
  business_name: Desk Lab
  niche: productivity
  pillars: [focus, simplicity]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write brief: %v", err)
	}
	return path
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
