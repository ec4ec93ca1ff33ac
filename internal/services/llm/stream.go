package llm

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Delta is one increment of a streamed completion. A Delta with a non-nil Err
// is the last value sent on the channel.
type Delta struct {
	Text string
	Err  error
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

const maxStreamLine = 1 << 20

// Stream issues a streaming completion and returns a channel of text deltas.
// Connection failures before the first byte are retried like Generate; once
// the stream is open, errors are delivered on the channel. The channel is
// closed when the stream ends or ctx is cancelled.
func (c *Client) Stream(ctx context.Context, req Request) (<-chan Delta, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return nil, errors.New("llm stream: api key required")
	}
	if len(req.Messages) == 0 {
		return nil, errors.New("llm stream: at least one message required")
	}
	payload := c.buildPayload(req, true)

	resp, err := c.openStreamWithRetry(ctx, payload)
	if err != nil {
		return nil, err
	}

	out := make(chan Delta, 16)
	go func() {
		defer close(out)
		defer resp.Body.Close()
		if err := readEventStream(ctx, resp.Body, out); err != nil {
			select {
			case out <- Delta{Err: err}:
			case <-ctx.Done():
			}
		}
	}()
	return out, nil
}

// StreamText streams the reply to prompt sent as a single user turn under the
// given system prompt.
func (c *Client) StreamText(ctx context.Context, prompt, system string) (<-chan Delta, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, errors.New("llm stream: prompt required")
	}
	return c.Stream(ctx, Request{
		System:   strings.TrimSpace(system),
		Messages: []Message{{Role: RoleUser, Content: prompt}},
	})
}

func (c *Client) openStreamWithRetry(ctx context.Context, payload chatCompletionRequest) (*http.Response, error) {
	attempts := c.retryAttempts()
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		resp, err := c.openStreamOnce(ctx, payload)
		if err == nil {
			return resp, nil
		}
		delay, retry := c.retryDelay(ctx, err, attempt, attempts)
		if !retry {
			return nil, err
		}
		if err := c.sleep(ctx, delay); err != nil {
			return nil, err
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = errors.New("unknown retry failure")
	}
	return nil, fmt.Errorf("llm stream: failed after %d attempts: %w", attempts, lastErr)
}

func (c *Client) openStreamOnce(ctx context.Context, payload chatCompletionRequest) (*http.Response, error) {
	req, err := c.newHTTPRequest(ctx, c.cfg.BaseURL, payload)
	if err != nil {
		return nil, err
	}
	// The client-wide timeout would cut long streams short; ctx bounds them instead.
	client := *c.httpClient
	client.Timeout = 0
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("llm stream: http error: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		retryAfter, _ := parseRetryAfter(resp.Header.Get("Retry-After"))
		return nil, &httpStatusError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
			RetryAfter: retryAfter,
		}
	}
	return resp, nil
}

// readEventStream parses OpenAI-style server-sent events ("data: {...}" lines
// terminated by "data: [DONE]") and forwards content deltas.
func readEventStream(ctx context.Context, body io.Reader, out chan<- Delta) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64<<10), maxStreamLine)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "[DONE]" {
			return nil
		}
		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return fmt.Errorf("llm stream: decode chunk: %w (chunk snippet: %s)", err, summarizePayloadSnippet(data))
		}
		if chunk.Error != nil {
			return fmt.Errorf("llm stream: api error: %s", strings.TrimSpace(chunk.Error.Message))
		}
		for _, choice := range chunk.Choices {
			if choice.Delta.Content == "" {
				continue
			}
			select {
			case out <- Delta{Text: choice.Delta.Content}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("llm stream: read: %w", err)
	}
	return ctx.Err()
}
