// Package planner turns a creator brief into a production plan.
//
// Generation runs in two stages. The primary stage composes a deterministic
// prompt (Compose), calls the text model, and extracts the plan from the raw
// response (Extract), repairing truncated JSON when needed. The refine stage
// asks the model to critique scene copy against the brand's content pillars
// and applies the returned per-scene changes. The refine stage is best-effort:
// its failures are logged and the primary plan is returned unchanged.
package planner
