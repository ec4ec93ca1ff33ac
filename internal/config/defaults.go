package config

const (
	defaultConfigPath           = "~/.config/scriptlab/config.toml"
	defaultDataDir              = "~/.local/share/scriptlab"
	defaultLogDir               = "~/.local/share/scriptlab/logs"
	defaultMediaDir             = "~/.local/share/scriptlab/media"
	defaultAPIBind              = "127.0.0.1:7490"
	defaultMaxUploadMiB         = 64
	defaultTextProvider         = ProviderOpenRouter
	defaultLLMBaseURL           = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel             = "google/gemini-2.5-flash"
	defaultLLMReferer           = "https://github.com/scriptlab/scriptlab"
	defaultLLMTitle             = "scriptlab"
	defaultLLMTimeoutSeconds    = 90
	defaultLLMTemperature       = 0.7
	defaultGeminiTextModel      = "gemini-2.5-flash"
	defaultGeminiImageModel     = "gemini-2.5-flash-image"
	defaultImageProvider        = ProviderPollinations
	defaultPollinationsBaseURL  = "https://image.pollinations.ai/prompt/"
	defaultPollinationsModel    = "flux"
	defaultRenderTimeoutSeconds = 300
	defaultAspectRatio          = "9:16"
	defaultMaxConcurrent        = 4
	defaultChatHistoryTurns     = 12
	defaultNotifyTimeoutSeconds = 10
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"

	mediaRoute = "/media/"
)

// Provider names accepted by llm.provider and media.image_provider.
const (
	ProviderOpenRouter   = "openrouter"
	ProviderGemini       = "gemini"
	ProviderPollinations = "pollinations"
	ProviderRender       = "render"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:  defaultDataDir,
			LogDir:   defaultLogDir,
			MediaDir: defaultMediaDir,
		},
		API: API{
			Bind:         defaultAPIBind,
			MaxUploadMiB: defaultMaxUploadMiB,
		},
		LLM: LLM{
			Provider:       defaultTextProvider,
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			Referer:        defaultLLMReferer,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
			Temperature:    defaultLLMTemperature,
		},
		Gemini: Gemini{
			TextModel:  defaultGeminiTextModel,
			ImageModel: defaultGeminiImageModel,
		},
		Media: Media{
			ImageProvider:        defaultImageProvider,
			PollinationsBaseURL:  defaultPollinationsBaseURL,
			PollinationsModel:    defaultPollinationsModel,
			RenderTimeoutSeconds: defaultRenderTimeoutSeconds,
			AspectRatio:          defaultAspectRatio,
		},
		Generation: Generation{
			Critique:         true,
			MaxConcurrent:    defaultMaxConcurrent,
			ChatHistoryTurns: defaultChatHistoryTurns,
		},
		Notifications: Notifications{
			RequestTimeoutSeconds: defaultNotifyTimeoutSeconds,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
