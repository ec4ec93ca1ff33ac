// Package preflight provides readiness checks for the directories and
// external services scriptlab depends on.
//
// The daemon runs RunAll at startup and logs each result; failures are
// reported but never stop the daemon, because providers may come back later.
// The CLI "config validate --check" command prints the same results.
//
// Each check is gated by its configuration: unused providers are skipped.
package preflight
