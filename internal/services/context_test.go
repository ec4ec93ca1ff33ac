package services_test

import (
	"context"
	"testing"

	"scriptlab/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithWorkflowID(ctx, "wf-1")
	ctx = services.WithSlotID(ctx, "s1-image-hook")
	ctx = services.WithOperation(ctx, "generate")
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.WorkflowIDFromContext(ctx); !ok || id != "wf-1" {
		t.Fatalf("unexpected workflow id: %v %v", id, ok)
	}
	if slot, ok := services.SlotIDFromContext(ctx); !ok || slot != "s1-image-hook" {
		t.Fatalf("unexpected slot id: %v %v", slot, ok)
	}
	if op, ok := services.OperationFromContext(ctx); !ok || op != "generate" {
		t.Fatalf("unexpected operation: %v %v", op, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestBlankValuesPreserveContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithSlotID(ctx, "")
	ctx = services.WithWorkflowID(ctx, "")
	if _, ok := services.SlotIDFromContext(ctx); ok {
		t.Fatal("expected no slot value")
	}
	if _, ok := services.WorkflowIDFromContext(ctx); ok {
		t.Fatal("expected no workflow value")
	}
}
