package daemon

import (
	"context"
	"fmt"
	"strings"

	"scriptlab/internal/advisory"
	"scriptlab/internal/config"
	"scriptlab/internal/media"
	"scriptlab/internal/plan"
	"scriptlab/internal/planner"
	"scriptlab/internal/services/gemini"
	"scriptlab/internal/services/llm"
	"scriptlab/internal/services/pollinations"
	"scriptlab/internal/services/render"
)

// Providers bundles the capabilities the workflow manager consumes.
type Providers struct {
	Text   planner.TextGenerator
	Stream advisory.StreamGenerator
	Media  *media.Router
}

// textProvider is satisfied by both the OpenRouter and Gemini clients.
type textProvider interface {
	planner.TextGenerator
	advisory.StreamGenerator
}

// BuildProviders selects providers from configuration. Generated media that
// must be persisted locally is written to files.
func BuildProviders(ctx context.Context, cfg *config.Config, files *media.Store) (Providers, error) {
	var (
		text textProvider
		gem  *gemini.Client
	)
	needGemini := cfg.LLM.Provider == config.ProviderGemini || cfg.Media.ImageProvider == config.ProviderGemini
	if needGemini {
		client, err := gemini.New(ctx, gemini.Config{
			APIKey:      cfg.Gemini.APIKey,
			TextModel:   cfg.Gemini.TextModel,
			ImageModel:  cfg.Gemini.ImageModel,
			Temperature: cfg.LLM.Temperature,
		}, gemini.WithStore(files))
		if err != nil {
			return Providers{}, fmt.Errorf("gemini client: %w", err)
		}
		gem = client
	}

	if cfg.LLM.Provider == config.ProviderGemini {
		text = gem
	} else {
		settings := cfg.GetLLM()
		text = llm.NewClient(llm.Config{
			APIKey:         settings.APIKey,
			BaseURL:        settings.BaseURL,
			Model:          settings.Model,
			Referer:        settings.Referer,
			Title:          settings.Title,
			TimeoutSeconds: settings.TimeoutSeconds,
			Temperature:    settings.Temperature,
		})
	}

	router := media.NewRouter()
	var renderer *render.Client
	if strings.TrimSpace(cfg.Media.RenderURL) != "" {
		renderer = render.New(cfg.Media.RenderURL, cfg.Media.RenderAPIKey, cfg.Media.RenderTimeoutSeconds)
	}
	switch cfg.Media.ImageProvider {
	case config.ProviderGemini:
		router.Route(plan.MediumImage, config.ProviderGemini, gem)
	case config.ProviderRender:
		if renderer == nil {
			return Providers{}, fmt.Errorf("media.image_provider %q requires media.render_url", config.ProviderRender)
		}
		router.Route(plan.MediumImage, config.ProviderRender, renderer)
	default:
		router.Route(plan.MediumImage, config.ProviderPollinations,
			pollinations.New(cfg.Media.PollinationsBaseURL, cfg.Media.PollinationsModel, files))
	}
	if renderer != nil {
		router.Route(plan.MediumVideo, config.ProviderRender, renderer)
		router.Route(plan.MediumAudio, config.ProviderRender, renderer)
	}

	return Providers{Text: text, Stream: text, Media: router}, nil
}
