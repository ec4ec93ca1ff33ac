package planner

import (
	"context"
	"sync"
)

// scriptedText replays canned responses in order and records prompts.
type scriptedText struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	prompts   []string
	systems   []string
}

func (s *scriptedText) GenerateText(_ context.Context, prompt, system string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := len(s.prompts)
	s.prompts = append(s.prompts, prompt)
	s.systems = append(s.systems, system)
	var err error
	if idx < len(s.errs) {
		err = s.errs[idx]
	}
	if err != nil {
		return "", err
	}
	if idx < len(s.responses) {
		return s.responses[idx], nil
	}
	return "", nil
}

func (s *scriptedText) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prompts)
}
