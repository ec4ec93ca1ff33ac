package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeAPI()
	c.normalizeLLM()
	c.normalizeGemini()
	c.normalizeMedia()
	c.normalizeGeneration()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.MediaDir) == "" {
		c.Paths.MediaDir = defaultMediaDir
	}
	if c.Paths.MediaDir, err = expandPath(c.Paths.MediaDir); err != nil {
		return fmt.Errorf("paths.media_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeAPI() {
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	c.API.Token = strings.TrimSpace(c.API.Token)
	if c.API.Token == "" {
		if value, ok := os.LookupEnv("SCRIPTLAB_API_TOKEN"); ok {
			c.API.Token = strings.TrimSpace(value)
		}
	}
	c.API.PublicBaseURL = strings.TrimRight(strings.TrimSpace(c.API.PublicBaseURL), "/")
	if c.API.PublicBaseURL == "" && c.API.Bind != "" {
		c.API.PublicBaseURL = "http://" + c.API.Bind
	}
	if c.API.MaxUploadMiB <= 0 {
		c.API.MaxUploadMiB = defaultMaxUploadMiB
	}
}

func (c *Config) normalizeLLM() {
	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	if c.LLM.Provider == "" {
		c.LLM.Provider = defaultTextProvider
	}
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	if c.LLM.APIKey == "" {
		if value, ok := os.LookupEnv("OPENROUTER_API_KEY"); ok {
			c.LLM.APIKey = strings.TrimSpace(value)
		}
	}
	if strings.TrimSpace(c.LLM.BaseURL) == "" {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	if strings.TrimSpace(c.LLM.Model) == "" {
		c.LLM.Model = defaultLLMModel
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeoutSeconds
	}
}

func (c *Config) normalizeGemini() {
	c.Gemini.APIKey = strings.TrimSpace(c.Gemini.APIKey)
	if c.Gemini.APIKey == "" {
		for _, name := range []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"} {
			if value, ok := os.LookupEnv(name); ok && strings.TrimSpace(value) != "" {
				c.Gemini.APIKey = strings.TrimSpace(value)
				break
			}
		}
	}
	if strings.TrimSpace(c.Gemini.TextModel) == "" {
		c.Gemini.TextModel = defaultGeminiTextModel
	}
	if strings.TrimSpace(c.Gemini.ImageModel) == "" {
		c.Gemini.ImageModel = defaultGeminiImageModel
	}
}

func (c *Config) normalizeMedia() {
	c.Media.ImageProvider = strings.ToLower(strings.TrimSpace(c.Media.ImageProvider))
	if c.Media.ImageProvider == "" {
		c.Media.ImageProvider = defaultImageProvider
	}
	if strings.TrimSpace(c.Media.PollinationsBaseURL) == "" {
		c.Media.PollinationsBaseURL = defaultPollinationsBaseURL
	}
	if strings.TrimSpace(c.Media.PollinationsModel) == "" {
		c.Media.PollinationsModel = defaultPollinationsModel
	}
	c.Media.RenderURL = strings.TrimSpace(c.Media.RenderURL)
	c.Media.RenderAPIKey = strings.TrimSpace(c.Media.RenderAPIKey)
	if c.Media.RenderAPIKey == "" {
		if value, ok := os.LookupEnv("SCRIPTLAB_RENDER_API_KEY"); ok {
			c.Media.RenderAPIKey = strings.TrimSpace(value)
		}
	}
	if c.Media.RenderTimeoutSeconds <= 0 {
		c.Media.RenderTimeoutSeconds = defaultRenderTimeoutSeconds
	}
	if strings.TrimSpace(c.Media.AspectRatio) == "" {
		c.Media.AspectRatio = defaultAspectRatio
	}
}

func (c *Config) normalizeGeneration() {
	if c.Generation.MaxConcurrent <= 0 {
		c.Generation.MaxConcurrent = defaultMaxConcurrent
	}
	if c.Generation.ChatHistoryTurns < 0 {
		c.Generation.ChatHistoryTurns = 0
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("SCRIPTLAB_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
	if c.Notifications.RequestTimeoutSeconds <= 0 {
		c.Notifications.RequestTimeoutSeconds = defaultNotifyTimeoutSeconds
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
