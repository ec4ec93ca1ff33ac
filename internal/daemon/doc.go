// Package daemon coordinates the long-running scriptlab process.
//
// It wires configuration, the workflow store, media storage, the text and
// media providers, and the workflow manager into a single lifecycle with
// flock-based locking to prevent multiple instances sharing a data
// directory. Start runs the preflight checks and brings up the HTTP API.
//
// Keep orchestration logic here: planning, asset generation, and advisory
// behavior live in their own packages while the daemon focuses on startup,
// shutdown, and provider selection.
package daemon
