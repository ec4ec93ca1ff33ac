package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"scriptlab/internal/config"
)

func TestLoadDefaultConfigUsesEnvKeysAndExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("OPENROUTER_API_KEY", "or-key")
	t.Setenv("GEMINI_API_KEY", "gm-key")
	t.Setenv("SCRIPTLAB_API_TOKEN", "secret")

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if exists {
		t.Fatalf("expected exists=false when no config file present")
	}
	expectedPath := filepath.Join(tempHome, ".config", "scriptlab", "config.toml")
	if resolved != expectedPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, expectedPath)
	}
	if cfg.LLM.APIKey != "or-key" {
		t.Fatalf("expected OpenRouter key from env, got %q", cfg.LLM.APIKey)
	}
	if cfg.Gemini.APIKey != "gm-key" {
		t.Fatalf("expected Gemini key from env, got %q", cfg.Gemini.APIKey)
	}
	if cfg.API.Token != "secret" {
		t.Fatalf("expected API token from env, got %q", cfg.API.Token)
	}

	expectedData := filepath.Join(tempHome, ".local", "share", "scriptlab")
	if cfg.Paths.DataDir != expectedData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, expectedData)
	}
	if cfg.Paths.MediaDir != filepath.Join(expectedData, "media") {
		t.Fatalf("unexpected media dir: %q", cfg.Paths.MediaDir)
	}
	if cfg.API.PublicBaseURL != "http://127.0.0.1:7490" {
		t.Fatalf("unexpected public base url: %q", cfg.API.PublicBaseURL)
	}
	if cfg.Media.AspectRatio != "9:16" {
		t.Fatalf("unexpected aspect ratio: %q", cfg.Media.AspectRatio)
	}
	if !cfg.Generation.Critique {
		t.Fatal("expected critique enabled by default")
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.LogDir, cfg.Paths.MediaDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be a directory", dir)
		}
	}
}

func TestLoadCustomConfigOverrides(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("OPENROUTER_API_KEY", "")

	configPath := filepath.Join(t.TempDir(), "config.toml")
	content := `
[paths]
data_dir = "~/data"

[api]
bind = "0.0.0.0:9000"
public_base_url = "https://studio.example.com/"

[llm]
provider = "Gemini"

[gemini]
api_key = "file-key"

[media]
image_provider = "render"
render_url = "http://renderer.local/jobs"

[generation]
critique = false
max_concurrent = 2

[logging]
format = "json"
level = "DEBUG"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected custom config to be used, got %q exists=%v", resolved, exists)
	}
	if cfg.Paths.DataDir != filepath.Join(tempHome, "data") {
		t.Fatalf("unexpected data dir: %q", cfg.Paths.DataDir)
	}
	if cfg.LLM.Provider != config.ProviderGemini {
		t.Fatalf("expected provider normalized to gemini, got %q", cfg.LLM.Provider)
	}
	if cfg.API.PublicBaseURL != "https://studio.example.com" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.API.PublicBaseURL)
	}
	if got := cfg.MediaURL("wf/slot.png"); got != "https://studio.example.com/media/wf/slot.png" {
		t.Fatalf("unexpected media url: %q", got)
	}
	if cfg.Generation.Critique {
		t.Fatal("expected critique disabled")
	}
	if cfg.Generation.MaxConcurrent != 2 {
		t.Fatalf("unexpected max concurrent: %d", cfg.Generation.MaxConcurrent)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Fatalf("unexpected logging config: %+v", cfg.Logging)
	}
}

func TestValidateRejectsMissingKeysAndUnknownProviders(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{
			name:   "missing openrouter key",
			mutate: func(c *config.Config) { c.LLM.APIKey = "" },
			want:   "llm.api_key",
		},
		{
			name:   "unknown text provider",
			mutate: func(c *config.Config) { c.LLM.Provider = "davinci" },
			want:   "llm.provider",
		},
		{
			name:   "gemini images without key",
			mutate: func(c *config.Config) { c.Media.ImageProvider = config.ProviderGemini },
			want:   "gemini.api_key",
		},
		{
			name:   "render without url",
			mutate: func(c *config.Config) { c.Media.ImageProvider = config.ProviderRender },
			want:   "media.render_url",
		},
		{
			name:   "bad log level",
			mutate: func(c *config.Config) { c.Logging.Level = "chatty" },
			want:   "logging.level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.LLM.APIKey = "key"
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected validation error containing %q", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error to mention %q, got %v", tt.want, err)
			}
		})
	}
}

func TestCreateSampleWritesLoadableFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("OPENROUTER_API_KEY", "or-key")

	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load sample failed: %v", err)
	}
	if !exists {
		t.Fatal("expected sample file to exist")
	}
	if cfg.Media.ImageProvider != config.ProviderPollinations {
		t.Fatalf("unexpected image provider: %q", cfg.Media.ImageProvider)
	}
}
