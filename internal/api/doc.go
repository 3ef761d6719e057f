// Package api hosts the HTTP server, middleware, and REST handlers for operator
// access. Notable routes:
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/runs to start a crawl, GET /v1/runs/{run_id} for its live
//     progress, and POST /v1/runs/{run_id}/cancel to stop it.
//   - GET /v1/history/runs and /v1/history/runs/{run_id}/sources for finished
//     runs via the store.RunRepository interface.
package api
