package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMalformedOutput marks a primary plan response that could not be parsed
	// even after repair. No partial plan is installed.
	ErrMalformedOutput = errors.New("malformed generation output")
	// ErrCritique marks a failed critique pass. It is logged and swallowed.
	ErrCritique = errors.New("critique failure")
	// ErrAssetGeneration marks a provider failure scoped to one asset slot.
	ErrAssetGeneration = errors.New("asset generation failure")
	// ErrStaleWrite marks a completed generation whose slot was cleared or
	// reassigned while the request was outstanding.
	ErrStaleWrite = errors.New("stale write detected")
	// ErrInvalidUpdate marks an advisory update rejected by shape validation.
	ErrInvalidUpdate = errors.New("invalid update shape")
	// ErrSlotBusy marks a generation request against a slot already in flight.
	ErrSlotBusy = errors.New("slot generation in flight")

	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
)

// Wrap builds an error message that includes component context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Retryable reports whether a user-initiated retry of the failed operation can
// reasonably succeed without changing its inputs.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrValidation), errors.Is(err, ErrConfiguration),
		errors.Is(err, ErrNotFound), errors.Is(err, ErrInvalidUpdate):
		return false
	default:
		return true
	}
}

// Kind returns a short, stable classification string for err. It is used in
// API error payloads and structured logs.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMalformedOutput):
		return "malformed_generation_output"
	case errors.Is(err, ErrCritique):
		return "critique_failure"
	case errors.Is(err, ErrAssetGeneration):
		return "asset_generation_failure"
	case errors.Is(err, ErrStaleWrite):
		return "stale_write"
	case errors.Is(err, ErrInvalidUpdate):
		return "invalid_update_shape"
	case errors.Is(err, ErrSlotBusy):
		return "slot_busy"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	default:
		return "transient"
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
