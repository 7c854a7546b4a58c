// Package server provides the monitoring HTTP endpoints: health, statistics,
// sanitized configuration, recent audit records and Prometheus metrics.
package server
