// Package api exposes workflow sessions over HTTP.
//
// The gin engine built by New serves JSON endpoints under /api for workflow
// creation, plan generation, slot operations, session defaults, creator
// assets, and manual plan updates. Two endpoints stream instead of replying
// once:
//
//   - POST /api/workflows/:id/chat answers with server-sent advisory frames
//     ("data: <json>\n\n") carrying text, content_update, status, and error
//     events in arrival order.
//   - GET /api/workflows/:id/live upgrades to a websocket and pushes a fresh
//     session projection after every mutation.
//
// Generated and uploaded files are served from the media directory under
// config.MediaRoute without authentication so providers can fetch reference
// URLs.
//
// # Errors
//
// Every failure is rendered as ErrorResponse. The HTTP status and the
// retryable flag come from the services error markers, so a client can tell
// a busy slot (409, retryable) from a rejected update (422, not retryable).
//
// # Authentication
//
// When api.token is set, requests must carry "Authorization: Bearer <token>"
// (websocket clients may pass access_token as a query parameter instead).
// The caller's account comes from the X-Account-ID header.
package api
