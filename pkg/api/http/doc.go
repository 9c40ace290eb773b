// Package http provides the HTTP REST API implementation.
//
// The HTTP server exposes endpoints for:
//   - Job submission and control (cancel, retry)
//   - Job and agent queries
//   - Health checks
//   - Prometheus metrics
package http
