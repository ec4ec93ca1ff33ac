package render

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"scriptlab/internal/media"
	"scriptlab/internal/services"
)

// HTTPDoer describes the HTTP client used by the render service.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

const (
	defaultTimeout      = 5 * time.Minute
	defaultPollInterval = 2 * time.Second
	maxResponseBytes    = 1 << 20
)

// Job states reported by the service.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Client is a media.Generator backed by the render service.
type Client struct {
	baseURL      string
	apiKey       string
	client       HTTPDoer
	timeout      time.Duration
	pollInterval time.Duration
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPDoer overrides the HTTP client.
func WithHTTPDoer(doer HTTPDoer) Option {
	return func(c *Client) {
		if doer != nil {
			c.client = doer
		}
	}
}

// WithPollInterval overrides how often pending jobs are polled.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// New constructs a render client. timeoutSeconds bounds a whole generation
// including polling; zero selects the default.
func New(baseURL, apiKey string, timeoutSeconds int, opts ...Option) *Client {
	c := &Client{
		baseURL:      strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:       strings.TrimSpace(apiKey),
		client:       &http.Client{Timeout: 60 * time.Second},
		timeout:      defaultTimeout,
		pollInterval: defaultPollInterval,
	}
	if timeoutSeconds > 0 {
		c.timeout = time.Duration(timeoutSeconds) * time.Second
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type generateRequest struct {
	Medium        string   `json:"medium"`
	Prompt        string   `json:"prompt"`
	AspectRatio   string   `json:"aspect_ratio,omitempty"`
	ReferenceURLs []string `json:"reference_urls,omitempty"`
}

type jobResponse struct {
	JobID    string            `json:"job_id"`
	Status   string            `json:"status"`
	URL      string            `json:"url"`
	Metadata map[string]string `json:"metadata"`
	Error    string            `json:"error"`
}

// Generate implements media.Generator.
func (c *Client) Generate(ctx context.Context, req media.Request) (media.Result, error) {
	if c.baseURL == "" {
		return media.Result{}, services.Wrap(services.ErrConfiguration, "render", "generate", "render url not configured", nil)
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return media.Result{}, errors.New("render: prompt required")
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload := generateRequest{
		Medium:        string(req.Medium),
		Prompt:        strings.TrimSpace(req.Prompt),
		AspectRatio:   req.AspectRatio,
		ReferenceURLs: req.ReferenceURLs,
	}
	job, err := c.do(ctx, http.MethodPost, c.baseURL+"/v1/generate", payload)
	if err != nil {
		return media.Result{}, err
	}
	for {
		switch job.Status {
		case StatusSucceeded, "":
			if strings.TrimSpace(job.URL) == "" {
				return media.Result{}, fmt.Errorf("render job %s finished without a url", job.JobID)
			}
			metadata := job.Metadata
			if metadata == nil {
				metadata = map[string]string{}
			}
			if job.JobID != "" {
				metadata["job_id"] = job.JobID
			}
			return media.Result{URL: job.URL, Metadata: metadata}, nil
		case StatusFailed:
			return media.Result{}, fmt.Errorf("render job %s failed: %s", job.JobID, strings.TrimSpace(job.Error))
		case StatusPending, StatusRunning:
			if job.JobID == "" {
				return media.Result{}, errors.New("render: pending response without job id")
			}
		default:
			return media.Result{}, fmt.Errorf("render job %s: unknown status %q", job.JobID, job.Status)
		}

		timer := time.NewTimer(c.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return media.Result{}, services.Wrap(services.ErrTimeout, "render", "poll", "job "+job.JobID+" did not finish in time", ctx.Err())
			}
			return media.Result{}, ctx.Err()
		case <-timer.C:
		}
		next, err := c.do(ctx, http.MethodGet, c.baseURL+"/v1/jobs/"+url.PathEscape(job.JobID), nil)
		if err != nil {
			return media.Result{}, err
		}
		if next.JobID == "" {
			next.JobID = job.JobID
		}
		job = next
	}
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload any) (jobResponse, error) {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return jobResponse{}, fmt.Errorf("encode render request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return jobResponse{}, fmt.Errorf("build render request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return jobResponse{}, fmt.Errorf("render request: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return jobResponse{}, fmt.Errorf("read render response: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return jobResponse{}, fmt.Errorf("render service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var job jobResponse
	if err := json.Unmarshal(raw, &job); err != nil {
		return jobResponse{}, fmt.Errorf("decode render response: %w", err)
	}
	job.Status = strings.ToLower(strings.TrimSpace(job.Status))
	return job, nil
}
