// Package metrics exposes Prometheus instruments for discovery rounds,
// registry merges and command dispatch.
package metrics
