// Command scriptlab is the command-line front end for the scriptlab daemon.
//
// It runs the daemon in the foreground (serve), manages a background daemon
// (start, stop, status), validates configuration, generates plans offline
// from a YAML brief, and talks to a running daemon over its HTTP API for
// workflows, advisory chat, and logs.
package main
