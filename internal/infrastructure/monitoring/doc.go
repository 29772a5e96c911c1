// Package monitoring provides Prometheus metrics for the registry.
//
// Metrics cover the HTTP surface (request counts, durations, sizes) and
// the domain operations behind it: installs by provenance and outcome,
// dependency resolutions, mirror sync runs with per-entry failure counts,
// and catalog cache behavior.
//
// Each Metrics value owns its own prometheus.Registry; the scrape
// endpoint is obtained from Handler(). A JSON snapshot of headline
// numbers is available through GetSnapshot for the /metrics/json API.
package monitoring
