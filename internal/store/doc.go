// Package store persists workflows and accounts in SQLite.
//
// Plans, session defaults, slot state and chat history are stored as opaque
// JSON blobs; the store never interprets them. Each workflow row carries a
// revision that UpdateWorkflow bumps, so callers can see whether they are
// looking at the latest write.
//
// Schema changes bump schemaVersion in schema.go. There are no migrations:
// an outdated database is rejected with ErrSchemaMismatch and must be
// recreated.
package store
