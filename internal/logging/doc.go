// Package logging assembles structured slog loggers and formatting helpers used
// across scriptlab services.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so pipeline code can tag log
// lines with workflow IDs, slot IDs, and correlation IDs. A bounded StreamHub
// mirrors recent records for the daemon's log tail endpoint. The package also
// provides a no-op logger for tests and wiring code that cannot fail.
package logging
