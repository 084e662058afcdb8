// Package device defines the normalized device record and the concurrent
// registry that stores it.
//
// The registry is the only data structure every goroutine in the system
// touches: discovery rounds merge into it, the command dispatcher reads
// from and merges into it, and the API layer serves snapshots of it. One
// exclusive lock serializes all mutations; readers receive deep copies and
// never alias live records.
//
// # Staleness guard
//
// Discovery rounds run concurrently across backends, so a round that
// started earlier can finish later. Every record carries the epoch of its
// last accepted write; a discovery merge whose round epoch is older is
// dropped (MergeIgnoredStale). Command merges bypass the guard: they carry
// the most recent user intent.
//
// # Lifecycle
//
// A record is created the first time any discovery round observes its
// hardware, updated in place by later rounds and confirmed commands, and
// never deleted. A device that stops responding simply stops being
// refreshed; staleness policy belongs to consumers of LastSeen.
package device
