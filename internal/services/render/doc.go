// Package render talks to an external render service over a small JSON job
// API. It backs video and audio slots, and optionally images.
//
// A generation is submitted with POST /v1/generate. The service either
// answers with the finished asset URL or with a job id that is polled at
// GET /v1/jobs/{id} until it succeeds, fails, or the client timeout elapses.
package render
