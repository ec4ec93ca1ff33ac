package render

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"scriptlab/internal/media"
	"scriptlab/internal/plan"
	"scriptlab/internal/services"
)

func TestGenerateImmediateResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/generate" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("unexpected auth header %q", got)
		}
		var payload generateRequest
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode: %v", err)
		}
		if payload.Medium != "audio" || len(payload.ReferenceURLs) != 1 {
			t.Errorf("unexpected payload %+v", payload)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"url": "https://cdn.example/vo.mp3", "metadata": map[string]string{"voice": "clone"}})
	}))
	defer server.Close()

	client := New(server.URL+"/", "secret", 5)
	result, err := client.Generate(context.Background(), media.Request{
		Medium:        plan.MediumAudio,
		Prompt:        "Three tools I use daily",
		ReferenceURLs: []string{"https://example.com/voice.wav"},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if result.URL != "https://cdn.example/vo.mp3" || result.Metadata["voice"] != "clone" {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestGeneratePollsPendingJob(t *testing.T) {
	var polls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/generate":
			_ = json.NewEncoder(w).Encode(map[string]any{"job_id": "job-1", "status": "pending"})
		case "/v1/jobs/job-1":
			if polls.Add(1) < 2 {
				_ = json.NewEncoder(w).Encode(map[string]any{"status": "running"})
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"status": "succeeded", "url": "https://cdn.example/clip.mp4"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := New(server.URL, "", 5, WithPollInterval(time.Millisecond))
	result, err := client.Generate(context.Background(), media.Request{Medium: plan.MediumVideo, Prompt: "typing"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if result.URL != "https://cdn.example/clip.mp4" || result.Metadata["job_id"] != "job-1" {
		t.Fatalf("unexpected result %+v", result)
	}
	if polls.Load() != 2 {
		t.Fatalf("expected 2 polls, got %d", polls.Load())
	}
}

func TestGenerateFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/generate":
			_ = json.NewEncoder(w).Encode(map[string]any{"job_id": "job-2", "status": "failed", "error": "content policy"})
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer server.Close()

	client := New(server.URL, "", 5)
	if _, err := client.Generate(context.Background(), media.Request{Medium: plan.MediumVideo, Prompt: "x"}); err == nil {
		t.Fatal("expected failed job to error")
	}

	unconfigured := New("", "", 0)
	_, err := unconfigured.Generate(context.Background(), media.Request{Medium: plan.MediumVideo, Prompt: "x"})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestGenerateTimesOutWhilePolling(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"job_id": "slow", "status": "running"})
	}))
	defer server.Close()

	client := New(server.URL, "", 0, WithPollInterval(5*time.Millisecond))
	client.timeout = 30 * time.Millisecond
	_, err := client.Generate(context.Background(), media.Request{Medium: plan.MediumVideo, Prompt: "x"})
	if !errors.Is(err, services.ErrTimeout) && !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected timeout, got %v", err)
	}
}
