package http

import "github.com/fyrsmithlabs/ragd/internal/telemetry"

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// StatusResponse is the response body for GET /api/v1/status.
type StatusResponse struct {
	Status     string            `json:"status"`
	Version    string            `json:"version,omitempty"`
	Dispatch   string            `json:"dispatch,omitempty"`
	Collection *CollectionStatus `json:"collection,omitempty"`
	// Telemetry is set when exporters are enabled.
	Telemetry *telemetry.HealthStatus `json:"telemetry,omitempty"`
}

// CollectionStatus reports the configured collection. Points is -1 when
// the store could not be reached.
type CollectionStatus struct {
	Name   string `json:"name"`
	Points int    `json:"points"`
}
