// Package media defines the asset generation capability shared by every
// provider and the local file store generated and uploaded media land in.
//
// Providers (Gemini, Pollinations, the render service) implement Generator.
// Router picks one per medium so the orchestrator never needs to know which
// backend serves a slot. Store owns the media directory: it writes provider
// bytes and user uploads under opaque names and turns them into URLs the API
// serves back to clients.
package media
