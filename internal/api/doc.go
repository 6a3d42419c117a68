// Package api exposes the prompt-optimization operations over HTTP.
//
// Every endpoint is stateless: one request performs exactly one generation
// operation, without touching conversation sessions. Persistence is
// best-effort — the generated text is always returned even when logging the
// run fails.
//
// File structure:
//   - server.go: HTTP server setup and lifecycle
//   - middleware.go: HTTP middleware (logging, recovery)
//   - health.go: Health check endpoints (/health, /ready)
//   - prompts.go: Optimize, explain, follow-up and feedback endpoints
//   - response.go: JSON response helpers
package api
