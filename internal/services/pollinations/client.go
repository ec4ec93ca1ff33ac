package pollinations

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"net/url"
	"strconv"
	"strings"
	"time"

	"scriptlab/internal/media"
	"scriptlab/internal/plan"
)

const (
	// DefaultBaseURL is the public prompt endpoint.
	DefaultBaseURL  = "https://image.pollinations.ai/prompt/"
	defaultModel    = "flux"
	defaultAttempts = 3
	shortSide       = 1080
)

// Fetcher downloads a URL into local media storage.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (media.Saved, error)
}

// Client is a media.Generator for images.
type Client struct {
	baseURL  string
	model    string
	store    Fetcher
	attempts int
	sleep    func(ctx context.Context, d time.Duration) error
}

// Option customizes the client.
type Option func(*Client)

// WithAttempts overrides the download attempt count.
func WithAttempts(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.attempts = n
		}
	}
}

// WithSleeper overrides how the client waits between attempts.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

// New constructs a client saving images through store.
func New(baseURL, model string, store Fetcher, opts ...Option) *Client {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	model = strings.TrimSpace(model)
	if model == "" {
		model = defaultModel
	}
	c := &Client{
		baseURL:  baseURL,
		model:    model,
		store:    store,
		attempts: defaultAttempts,
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Generate implements media.Generator. Only images are supported.
func (c *Client) Generate(ctx context.Context, req media.Request) (media.Result, error) {
	if req.Medium != plan.MediumImage {
		return media.Result{}, fmt.Errorf("pollinations: unsupported medium %s", req.Medium)
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return media.Result{}, errors.New("pollinations: prompt required")
	}
	if c.store == nil {
		return media.Result{}, errors.New("pollinations: media store required")
	}
	imageURL := c.buildURL(prompt, req.AspectRatio, req.ReferenceURLs)

	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		saved, err := c.store.Fetch(ctx, imageURL)
		if err == nil {
			return media.Result{
				URL: saved.URL,
				Metadata: map[string]string{
					"model":        c.model,
					"content_type": saved.ContentType,
					"file":         saved.Name,
				},
			}, nil
		}
		lastErr = err
		if ctx.Err() != nil || attempt == c.attempts {
			break
		}
		if err := c.sleep(ctx, time.Duration(attempt)*3*time.Second); err != nil {
			return media.Result{}, err
		}
	}
	return media.Result{}, fmt.Errorf("pollinations fetch failed after %d attempts: %w", c.attempts, lastErr)
}

func (c *Client) buildURL(prompt, aspectRatio string, refs []string) string {
	width, height := Dimensions(aspectRatio)
	query := url.Values{}
	query.Set("width", strconv.Itoa(width))
	query.Set("height", strconv.Itoa(height))
	query.Set("model", c.model)
	query.Set("nologo", "true")
	query.Set("seed", strconv.FormatUint(uint64(seedFor(prompt)), 10))
	if len(refs) > 0 {
		query.Set("image", strings.Join(refs, ","))
	}
	return c.baseURL + url.PathEscape(prompt) + "?" + query.Encode()
}

// Dimensions converts an aspect ratio such as "9:16" into pixel dimensions
// with a 1080 pixel short side. Unparseable ratios fall back to portrait.
func Dimensions(aspectRatio string) (int, int) {
	w, h, ok := parseRatio(aspectRatio)
	if !ok {
		w, h = 9, 16
	}
	if w <= h {
		return shortSide, shortSide * h / w
	}
	return shortSide * w / h, shortSide
}

func parseRatio(value string) (int, int, bool) {
	left, right, found := strings.Cut(strings.TrimSpace(value), ":")
	if !found {
		return 0, 0, false
	}
	w, err := strconv.Atoi(strings.TrimSpace(left))
	if err != nil || w <= 0 {
		return 0, 0, false
	}
	h, err := strconv.Atoi(strings.TrimSpace(right))
	if err != nil || h <= 0 {
		return 0, 0, false
	}
	return w, h, true
}

// seedFor keeps regenerations of the same prompt reproducible.
func seedFor(prompt string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(prompt))
	return h.Sum32() % 1_000_000
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
