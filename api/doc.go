// Package api contains the HTTP surface of the gateway.
//
// # API Overview
//
// The gateway exposes:
//   - POST /v1/chat/completions — OpenAI-compatible chat completions
//     with priority-ordered provider failover (X-Provider-Id pins one
//     provider)
//   - /admin — provider credentials, health checks, orchestrator
//     events and provider call logs
//   - /healthz, /readyz, /version — probes and build info
//
// # Request tracking
//
// Every response carries an X-Request-Id header, echoed from the
// request or generated at ingress.
package api
