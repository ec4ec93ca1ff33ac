package api

import (
	"encoding/json"

	"scriptlab/internal/assets"
	"scriptlab/internal/logging"
	"scriptlab/internal/plan"
	"scriptlab/internal/planner"
	"scriptlab/internal/workflow"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error     string `json:"error"`
	Kind      string `json:"kind"`
	Retryable bool   `json:"retryable"`
	// WorkflowID is set when the workflow was created but a later step of the
	// same request failed.
	WorkflowID string `json:"workflow_id,omitempty"`
}

// CreateWorkflowRequest starts a session from a brief.
type CreateWorkflowRequest struct {
	Brief planner.Brief `json:"brief"`
	// Generate runs plan generation before responding.
	Generate bool `json:"generate"`
}

// WorkflowListResponse wraps workflow summaries.
type WorkflowListResponse struct {
	Workflows []workflow.Summary `json:"workflows"`
}

// SceneGenerateRequest generates a scene's slots. Regenerate applies the
// keyword and overlay options and replaces ready results.
type SceneGenerateRequest struct {
	Regenerate bool   `json:"regenerate"`
	Keyword    string `json:"keyword"`
	Overlay    bool   `json:"overlay"`
}

// AttachReferenceRequest stages a reference by URL.
type AttachReferenceRequest struct {
	ID     string      `json:"id"`
	URL    string      `json:"url"`
	Medium plan.Medium `json:"medium"`
}

// ReferenceResponse wraps an attached reference.
type ReferenceResponse struct {
	Reference assets.Reference `json:"reference"`
}

// SlotResponse wraps one slot view.
type SlotResponse struct {
	Slot assets.SlotView `json:"slot"`
}

// ChatRequest is one advisory message.
type ChatRequest struct {
	Message string `json:"message"`
}

// UpdateRequest is a manual plan update in the advisory wire form.
type UpdateRequest = json.RawMessage

// HealthResponse reports daemon readiness.
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Detail   string `json:"detail,omitempty"`
}

// LogStreamResponse is one page of buffered log events.
type LogStreamResponse struct {
	Events []logging.LogEvent `json:"events"`
	Next   uint64             `json:"next"`
}
