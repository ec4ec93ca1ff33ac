package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"scriptlab/internal/advisory"
	"scriptlab/internal/assets"
	"scriptlab/internal/workflow"
)

// Client talks to a running daemon over HTTP.
type Client struct {
	baseURL string
	token   string
	account string
	http    *http.Client
}

// APIError is a non-2xx response decoded from ErrorResponse.
type APIError struct {
	Status int
	Body   ErrorResponse
}

func (e *APIError) Error() string {
	if e.Body.Kind != "" {
		return fmt.Sprintf("%s (%s, http %d)", e.Body.Error, e.Body.Kind, e.Status)
	}
	return fmt.Sprintf("%s (http %d)", e.Body.Error, e.Status)
}

// NewClient builds a client for the daemon at baseURL acting as account.
// Requests carry no timeout of their own; chat streams and generations are
// bounded by the caller's context.
func NewClient(baseURL, token, account string) *Client {
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:   strings.TrimSpace(token),
		account: strings.TrimSpace(account),
		http:    &http.Client{},
	}
}

// BaseURLFor turns a listen address into a client base URL.
func BaseURLFor(bind string) string {
	bind = strings.TrimSpace(bind)
	if strings.HasPrefix(bind, "http://") || strings.HasPrefix(bind, "https://") {
		return bind
	}
	if strings.HasPrefix(bind, ":") {
		bind = "127.0.0.1" + bind
	}
	if host, port, ok := strings.Cut(bind, ":"); ok && (host == "0.0.0.0" || host == "") {
		bind = "127.0.0.1:" + port
	}
	return "http://" + bind
}

// Health reports daemon readiness.
func (c *Client) Health(ctx context.Context) (HealthResponse, error) {
	var out HealthResponse
	err := c.do(ctx, http.MethodGet, "/api/health", nil, &out)
	return out, err
}

// CreateWorkflow starts a workflow, optionally generating its plan.
func (c *Client) CreateWorkflow(ctx context.Context, req CreateWorkflowRequest) (workflow.View, error) {
	var out workflow.View
	err := c.do(ctx, http.MethodPost, "/api/workflows", req, &out)
	return out, err
}

// ListWorkflows returns the account's most recent workflows.
func (c *Client) ListWorkflows(ctx context.Context, limit int) ([]workflow.Summary, error) {
	path := "/api/workflows"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out WorkflowListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Workflows, nil
}

// GetWorkflow returns one workflow view.
func (c *Client) GetWorkflow(ctx context.Context, id string) (workflow.View, error) {
	var out workflow.View
	err := c.do(ctx, http.MethodGet, "/api/workflows/"+url.PathEscape(id), nil, &out)
	return out, err
}

// GeneratePlan regenerates a workflow's plan from its brief.
func (c *Client) GeneratePlan(ctx context.Context, id string) (workflow.View, error) {
	var out workflow.View
	err := c.do(ctx, http.MethodPost, "/api/workflows/"+url.PathEscape(id)+"/plan", nil, &out)
	return out, err
}

// GenerateAll generates every slot that is not ready.
func (c *Client) GenerateAll(ctx context.Context, id string) (assets.BulkReport, error) {
	var out assets.BulkReport
	err := c.do(ctx, http.MethodPost, "/api/workflows/"+url.PathEscape(id)+"/generate", nil, &out)
	return out, err
}

// Chat sends one advisory message and calls fn for each streamed event.
func (c *Client) Chat(ctx context.Context, id, message string, fn func(advisory.Event) error) error {
	req, err := c.newRequest(ctx, http.MethodPost, "/api/workflows/"+url.PathEscape(id)+"/chat", ChatRequest{Message: message})
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("chat request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	return advisory.ReadEvents(resp.Body, fn)
}

// Logs fetches buffered daemon logs after since.
func (c *Client) Logs(ctx context.Context, since uint64, limit int, follow bool) (LogStreamResponse, error) {
	q := url.Values{}
	q.Set("since", strconv.FormatUint(since, 10))
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if follow {
		q.Set("follow", "1")
	}
	var out LogStreamResponse
	err := c.do(ctx, http.MethodGet, "/api/logs?"+q.Encode(), nil, &out)
	return out, err
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.account != "" {
		req.Header.Set(headerAccountID, c.account)
	}
	return req, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(raw, &apiErr.Body); err != nil || apiErr.Body.Error == "" {
		apiErr.Body.Error = strings.TrimSpace(string(raw))
		if apiErr.Body.Error == "" {
			apiErr.Body.Error = http.StatusText(resp.StatusCode)
		}
	}
	return apiErr
}

// WaitHealthy polls Health until it succeeds or timeout passes.
func (c *Client) WaitHealthy(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		_, err := c.Health(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("timeout waiting for daemon")
	}
	return fmt.Errorf("daemon not healthy: %w", lastErr)
}
