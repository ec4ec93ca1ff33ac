package testsupport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"scriptlab/internal/media"
	"scriptlab/internal/services/llm"
)

// ScriptedText answers GenerateText calls with queued replies in order and
// records every prompt.
type ScriptedText struct {
	mu      sync.Mutex
	replies []string
	errs    []error
	Prompts []string
}

// NewScriptedText queues replies.
func NewScriptedText(replies ...string) *ScriptedText {
	return &ScriptedText{replies: replies}
}

// Fail queues an error after the replies queued so far.
func (s *ScriptedText) Fail(err error) *ScriptedText {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.errs) < len(s.replies) {
		s.errs = append(s.errs, nil)
	}
	s.errs = append(s.errs, err)
	s.replies = append(s.replies, "")
	return s
}

// GenerateText implements planner.TextGenerator.
func (s *ScriptedText) GenerateText(_ context.Context, prompt, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Prompts = append(s.Prompts, prompt)
	call := len(s.Prompts) - 1
	if call < len(s.errs) && s.errs[call] != nil {
		return "", s.errs[call]
	}
	if call >= len(s.replies) {
		return "", errors.New("scripted text: no reply queued")
	}
	return s.replies[call], nil
}

// ScriptedStream streams queued replies word by word.
type ScriptedStream struct {
	mu      sync.Mutex
	replies []string
	Prompts []string
}

// NewScriptedStream queues replies.
func NewScriptedStream(replies ...string) *ScriptedStream {
	return &ScriptedStream{replies: replies}
}

// StreamText implements advisory.StreamGenerator.
func (s *ScriptedStream) StreamText(ctx context.Context, prompt, _ string) (<-chan llm.Delta, error) {
	s.mu.Lock()
	s.Prompts = append(s.Prompts, prompt)
	call := len(s.Prompts) - 1
	if call >= len(s.replies) {
		s.mu.Unlock()
		return nil, errors.New("scripted stream: no reply queued")
	}
	reply := s.replies[call]
	s.mu.Unlock()

	out := make(chan llm.Delta)
	go func() {
		defer close(out)
		for _, word := range strings.SplitAfter(reply, " ") {
			select {
			case out <- llm.Delta{Text: word}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// StaticMedia returns a deterministic URL per request and records requests.
type StaticMedia struct {
	mu       sync.Mutex
	Requests []media.Request
	// Err, when set, fails every call.
	Err error
}

// Generate implements media.Generator.
func (m *StaticMedia) Generate(_ context.Context, req media.Request) (media.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests = append(m.Requests, req)
	if m.Err != nil {
		return media.Result{}, m.Err
	}
	return media.Result{
		URL:      fmt.Sprintf("https://cdn.test/%s/%d", req.Medium, len(m.Requests)),
		Metadata: map[string]string{"provider": "static"},
	}, nil
}

// Calls returns the number of requests seen.
func (m *StaticMedia) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Requests)
}

// SteppedMedia blocks every call until the test releases it. Each call
// announces itself on Started with a channel that, once closed, lets that
// call return the URL https://cdn.test/step/<n> where n counts from 1.
type SteppedMedia struct {
	Started chan chan struct{}
	calls   atomic.Int32
}

// NewSteppedMedia returns a generator that buffers up to capacity pending
// call announcements.
func NewSteppedMedia(capacity int) *SteppedMedia {
	return &SteppedMedia{Started: make(chan chan struct{}, capacity)}
}

// Generate implements media.Generator.
func (m *SteppedMedia) Generate(ctx context.Context, _ media.Request) (media.Result, error) {
	n := m.calls.Add(1)
	release := make(chan struct{})
	m.Started <- release
	select {
	case <-release:
	case <-ctx.Done():
		return media.Result{}, ctx.Err()
	}
	return media.Result{URL: fmt.Sprintf("https://cdn.test/step/%d", n)}, nil
}
