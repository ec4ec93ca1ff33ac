package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateLLM(); err != nil {
		return err
	}
	if err := c.validateMedia(); err != nil {
		return err
	}
	if err := c.validateGeneration(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateLLM() error {
	switch c.LLM.Provider {
	case ProviderOpenRouter:
		if c.LLM.APIKey == "" {
			return fmt.Errorf("llm.api_key is required. Set OPENROUTER_API_KEY env var or edit %s (create with 'scriptlab config init')", c.configHint())
		}
	case ProviderGemini:
		if c.Gemini.APIKey == "" {
			return fmt.Errorf("gemini.api_key is required when llm.provider is %q. Set GEMINI_API_KEY or edit %s", ProviderGemini, c.configHint())
		}
	default:
		return fmt.Errorf("llm.provider: unsupported value %q (want %q or %q)", c.LLM.Provider, ProviderOpenRouter, ProviderGemini)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return errors.New("llm.temperature must be between 0 and 2")
	}
	return nil
}

func (c *Config) validateMedia() error {
	switch c.Media.ImageProvider {
	case ProviderPollinations:
	case ProviderGemini:
		if c.Gemini.APIKey == "" {
			return errors.New("gemini.api_key must be set when media.image_provider is \"gemini\"")
		}
	case ProviderRender:
		if c.Media.RenderURL == "" {
			return errors.New("media.render_url must be set when media.image_provider is \"render\"")
		}
	default:
		return fmt.Errorf("media.image_provider: unsupported value %q", c.Media.ImageProvider)
	}
	if !strings.Contains(c.Media.AspectRatio, ":") {
		return fmt.Errorf("media.aspect_ratio must look like W:H, got %q", c.Media.AspectRatio)
	}
	return nil
}

func (c *Config) validateGeneration() error {
	if c.Generation.MaxConcurrent <= 0 {
		return errors.New("generation.max_concurrent must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func (c *Config) configHint() string {
	path, err := DefaultConfigPath()
	if err != nil {
		return defaultConfigPath
	}
	return path
}
