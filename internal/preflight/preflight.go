package preflight

import (
	"context"
	"strings"

	"scriptlab/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckDirectoryAccess("Media directory", cfg.Paths.MediaDir),
	}

	switch cfg.LLM.Provider {
	case config.ProviderGemini:
		results = append(results, CheckAPIKey("Gemini text", cfg.Gemini.APIKey))
	default:
		results = append(results, CheckLLM(ctx, "Text LLM", cfg.GetLLM()))
	}

	if cfg.Media.ImageProvider == config.ProviderGemini && cfg.LLM.Provider != config.ProviderGemini {
		results = append(results, CheckAPIKey("Gemini images", cfg.Gemini.APIKey))
	}
	if strings.TrimSpace(cfg.Media.RenderURL) != "" {
		results = append(results, CheckRender(ctx, cfg.Media.RenderURL, cfg.Media.RenderAPIKey))
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}
