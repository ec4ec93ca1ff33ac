// Package workflow owns production sessions: one brief, its plan, the asset
// slot registry, session defaults, and the advisory chat history.
//
// The Manager creates sessions from briefs, reloads them from the store, and
// caches live sessions so every writer (bulk generation, single slot or scene
// generation, and advisory chat updates) works against the same registry.
// Each Session serialises plan and defaults mutation under its own mutex
// while slot state stays in the registry, so many slots may generate at once.
// Advisory turns for a session run one at a time and their events are applied
// in arrival order.
//
// After every mutation the session persists its blobs best-effort and
// publishes a fresh View on the Broadcaster for live subscribers.
package workflow
