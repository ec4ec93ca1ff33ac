package logging

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"
)

func TestStreamHandlerCarriesAccumulatedAttrs(t *testing.T) {
	hub := NewStreamHub(100)
	handler := newStreamHandler(slog.NewTextHandler(io.Discard, nil), hub)

	logger := slog.New(handler).
		With(slog.String(FieldComponent, "assets")).
		With(slog.String(FieldWorkflowID, "wf-9")).
		WithGroup("ignored").
		With(slog.String(FieldSlotID, "s2-video-broll"))

	logger.Info("generation started", slog.String("medium", "video"))

	events, _ := hub.Tail(10)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	evt := events[0]
	if evt.Component != "assets" || evt.WorkflowID != "wf-9" || evt.SlotID != "s2-video-broll" {
		t.Fatalf("unexpected event identity: %+v", evt)
	}
	if evt.Fields["medium"] != "video" {
		t.Fatalf("expected medium field, got %v", evt.Fields)
	}
	if evt.Sequence != 1 {
		t.Fatalf("expected sequence 1, got %d", evt.Sequence)
	}
}

func TestStreamHubEvictsOldest(t *testing.T) {
	hub := NewStreamHub(2)
	for i := 0; i < 3; i++ {
		hub.Publish(LogEvent{Message: "m"})
	}
	events, next := hub.Tail(0)
	if len(events) != 2 {
		t.Fatalf("expected 2 buffered events, got %d", len(events))
	}
	if events[0].Sequence != 2 || next != 3 {
		t.Fatalf("unexpected sequences: first=%d next=%d", events[0].Sequence, next)
	}
}

func TestStreamHubFetchWaitsForEvents(t *testing.T) {
	hub := NewStreamHub(10)
	hub.Publish(LogEvent{Message: "first"})

	done := make(chan []LogEvent, 1)
	go func() {
		events, _, _ := hub.Fetch(context.Background(), 1, 10, true)
		done <- events
	}()

	time.Sleep(20 * time.Millisecond)
	hub.Publish(LogEvent{Message: "second"})

	select {
	case events := <-done:
		if len(events) != 1 || events[0].Message != "second" {
			t.Fatalf("unexpected events: %+v", events)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Fetch did not wake on publish")
	}
}

func TestStreamHubFetchHonoursCancellation(t *testing.T) {
	hub := NewStreamHub(10)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := hub.Fetch(ctx, 0, 10, true); err == nil {
		t.Fatal("expected context error")
	}
}
