/*
Package metrics defines and registers the control plane's Prometheus
metrics: connections currently open, commands dispatched by name,
command dispatch latency, bytes written to storage sinks, and job
state by name. Metrics are exposed via an HTTP handler for scraping.
*/
package metrics
