// Package llm provides an OpenRouter chat client used for script planning,
// brand critique, and the advisory chat channel.
//
// # Entry Points
//
// NewClient: construct client from Config.
// Client.Generate: send a system prompt plus chat history, receive text.
// Client.CompleteJSON: send system/user prompts, receive a JSON response.
// Client.Stream: open a server-sent-events completion and receive deltas.
// Client.HealthCheck: verify API key and model availability.
// DecodeLLMJSON: decode model output that may be fenced or wrapped in prose.
//
// # Retry Behaviour
//
// The client retries on HTTP 408/429/5xx errors, empty content, and network
// timeouts with exponential backoff (base 1s, max 10s, up to 5 attempts by
// default). Streams retry only while opening the connection. Context
// cancellation aborts retries immediately.
package llm
