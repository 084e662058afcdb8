// Package discovery runs the periodic device discovery loop.
//
// Each round fans out to every enabled backend concurrently, bounds each
// backend with its own timeout, and merges all results into the registry
// under a single epoch captured at round start. One slow or failing
// backend delays a round by at most the backend timeout and never blocks
// the others.
package discovery
