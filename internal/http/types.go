// Package http hosts the MCP transports behind a single Echo instance.
package http

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}
