package gemini

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"scriptlab/internal/media"
	"scriptlab/internal/plan"
	"scriptlab/internal/services/llm"
)

const (
	defaultTextModel  = "gemini-2.5-flash"
	defaultImageModel = "gemini-2.5-flash-image"
	maxReferenceBytes = 16 << 20
)

// Config captures the settings needed to reach the Gemini API.
type Config struct {
	APIKey      string
	BaseURL     string
	TextModel   string
	ImageModel  string
	Temperature float64
}

// ByteSaver persists generated media.
type ByteSaver interface {
	SaveBytes(data []byte, contentType string) (media.Saved, error)
}

// Client wraps a genai client.
type Client struct {
	genai      *genai.Client
	cfg        Config
	store      ByteSaver
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithStore sets where generated images are written. Image generation fails
// without one.
func WithStore(store ByteSaver) Option {
	return func(c *Client) {
		c.store = store
	}
}

// WithHTTPClient overrides the HTTP client used for the API and for fetching
// reference images.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// New constructs a Gemini client.
func New(ctx context.Context, cfg Config, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("gemini: api key required")
	}
	if strings.TrimSpace(cfg.TextModel) == "" {
		cfg.TextModel = defaultTextModel
	}
	if strings.TrimSpace(cfg.ImageModel) == "" {
		cfg.ImageModel = defaultImageModel
	}
	c := &Client{cfg: cfg, httpClient: &http.Client{Timeout: 120 * time.Second}}
	for _, opt := range opts {
		opt(c)
	}

	clientCfg := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: c.httpClient,
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: base}
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	c.genai = client
	return c, nil
}

func (c *Client) textConfig(system string) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}
	if c.cfg.Temperature > 0 {
		config.Temperature = genai.Ptr(float32(c.cfg.Temperature))
	}
	if system = strings.TrimSpace(system); system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	return config
}

// GenerateText returns the model's reply to prompt.
func (c *Client) GenerateText(ctx context.Context, prompt, system string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", errors.New("gemini generate: prompt required")
	}
	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
	resp, err := c.genai.Models.GenerateContent(ctx, c.cfg.TextModel, contents, c.textConfig(system))
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("gemini generate: empty content (finish_reason=%s)", finishReason(resp))
	}
	return text, nil
}

// StreamText streams the model's reply to prompt. The channel carries the
// same deltas as the OpenRouter client so callers can swap providers.
func (c *Client) StreamText(ctx context.Context, prompt, system string) (<-chan llm.Delta, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, errors.New("gemini stream: prompt required")
	}
	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
	stream := c.genai.Models.GenerateContentStream(ctx, c.cfg.TextModel, contents, c.textConfig(system))

	out := make(chan llm.Delta, 16)
	go func() {
		defer close(out)
		for resp, err := range stream {
			delta := llm.Delta{Err: err}
			if err == nil {
				delta.Text = resp.Text()
				if delta.Text == "" {
					continue
				}
			}
			select {
			case out <- delta:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()
	return out, nil
}

// Generate implements media.Generator for images. Reference URLs are fetched
// and sent inline ahead of the prompt.
func (c *Client) Generate(ctx context.Context, req media.Request) (media.Result, error) {
	if req.Medium != plan.MediumImage {
		return media.Result{}, fmt.Errorf("gemini: unsupported medium %s", req.Medium)
	}
	if c.store == nil {
		return media.Result{}, errors.New("gemini: media store required for image generation")
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return media.Result{}, errors.New("gemini: prompt required")
	}

	parts := make([]*genai.Part, 0, len(req.ReferenceURLs)+1)
	for _, ref := range req.ReferenceURLs {
		data, mimeType, err := c.fetchReference(ctx, ref)
		if err != nil {
			return media.Result{}, err
		}
		parts = append(parts, genai.NewPartFromBytes(data, mimeType))
	}
	if ratio := strings.TrimSpace(req.AspectRatio); ratio != "" {
		prompt += fmt.Sprintf("\n\nCompose the image in a %s aspect ratio.", ratio)
	}
	parts = append(parts, genai.NewPartFromText(prompt))

	resp, err := c.genai.Models.GenerateContent(ctx, c.cfg.ImageModel,
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)},
		&genai.GenerateContentConfig{ResponseModalities: []string{"TEXT", "IMAGE"}},
	)
	if err != nil {
		return media.Result{}, fmt.Errorf("gemini image: %w", err)
	}
	blob := firstInlineImage(resp)
	if blob == nil {
		return media.Result{}, fmt.Errorf("gemini image: no image in response (finish_reason=%s)", finishReason(resp))
	}
	saved, err := c.store.SaveBytes(blob.Data, blob.MIMEType)
	if err != nil {
		return media.Result{}, fmt.Errorf("gemini image: %w", err)
	}
	return media.Result{
		URL: saved.URL,
		Metadata: map[string]string{
			"model":        c.cfg.ImageModel,
			"content_type": saved.ContentType,
			"file":         saved.Name,
		},
	}, nil
}

func (c *Client) fetchReference(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build reference request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch reference %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("fetch reference %s: http %d", url, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxReferenceBytes))
	if err != nil {
		return nil, "", fmt.Errorf("read reference %s: %w", url, err)
	}
	mimeType := resp.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	return data, mimeType, nil
}

func firstInlineImage(resp *genai.GenerateContentResponse) *genai.Blob {
	if resp == nil {
		return nil
	}
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return part.InlineData
			}
		}
	}
	return nil
}

func finishReason(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return "none"
	}
	return string(resp.Candidates[0].FinishReason)
}
