// Package metrics defines the Prometheus collectors of the pipeline and
// the monitoring server.
package metrics
