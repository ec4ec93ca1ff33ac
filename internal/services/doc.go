// Package services defines shared utilities consumed by the generation
// pipeline and its external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp workflow IDs, slot IDs, operation names, and
//     correlation identifiers for logging and tracing.
//   - Error markers plus the Wrap helper so failures keep their classification
//     (malformed output, stale write, invalid update, ...) across layers.
//   - Kind and Retryable, which the API layer uses to shape user-facing errors
//     with a retry affordance.
//
// Provider clients live in subpackages (llm, gemini, pollinations, render).
package services
