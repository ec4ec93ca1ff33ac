// Package notifications delivers workflow milestones to an ntfy topic.
//
// NewService returns a no-op publisher when no topic is configured, so
// callers never need to check whether notifications are enabled. Events
// carry a loose Payload map; each event type reads the keys it knows and
// ignores the rest.
package notifications
