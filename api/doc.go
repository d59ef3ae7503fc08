// Package api documents the patloader admin HTTP API.
//
// Handlers live in api/handlers; this package only carries the
// package-level documentation and swag annotations entry point.
//
// # API Overview
//
// patloader exposes a small JSON API over the artifact loader:
//   - Listing sizes with their current and locally available versions
//   - Loading a size at a version (optionally bypassing the cache)
//   - Falling back to the previous version of a size
//   - Load history, when the history database is enabled
//   - Loader metrics and cache clearing
//   - A websocket stream of load progress events
//   - Health, readiness and version probes
//
// # Endpoints
//
//	GET    /api/v1/artifacts
//	GET    /api/v1/artifacts/{size}
//	POST   /api/v1/artifacts/{size}/load
//	POST   /api/v1/artifacts/{size}/fallback
//	GET    /api/v1/artifacts/{size}/current
//	GET    /api/v1/artifacts/{size}/history
//	GET    /api/v1/loader/metrics
//	DELETE /api/v1/loader/cache
//	GET    /api/v1/loader/progress   (websocket)
//	GET    /health, /healthz, /ready, /readyz, /version
//
// Every JSON response uses the envelope
//
//	{"success": bool, "data": ..., "error": {"code": "...", "message": "..."}, "timestamp": "..."}
//
// Error codes map to HTTP statuses: ARTIFACT_NOT_FOUND 404,
// FALLBACK_UNAVAILABLE 409, CORRUPT_ARTIFACT and VALIDATION_FAILED 422,
// RATE_LIMITED 429, CANCELED 408, TRANSFER_FAILED 502, CONFIGURATION 503.
//
// # Base URL
//
// The default base URL for the API is:
//
//	http://localhost:8080
//
// Prometheus metrics are served on a separate port (default 9091) at /metrics.
//
// # Generating Documentation
//
//	swag init -g cmd/patloader/main.go -o api --parseDependency --parseInternal
package api
