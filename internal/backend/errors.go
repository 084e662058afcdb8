package backend

import "errors"

// Typed adapter errors. The dispatcher and orchestrator convert these to
// caller-visible results with errors.Is(); no adapter failure propagates
// past those boundaries.
var (
	// ErrUnsupported is returned when a command targets a capability the
	// device or backend lacks.
	ErrUnsupported = errors.New("backend: unsupported operation")

	// ErrUnreachable is returned when backend I/O fails. The device is
	// not removed from the registry; transient network failures must not
	// erase known state.
	ErrUnreachable = errors.New("backend: device unreachable")

	// ErrInvalidValue is returned when a value fails validation before
	// clamping rules apply (wrong type, malformed payload).
	ErrInvalidValue = errors.New("backend: invalid value")

	// ErrInvalidHandle is returned when an adapter receives a handle it
	// did not produce.
	ErrInvalidHandle = errors.New("backend: invalid device handle")

	// ErrDiscoveryUnavailable is returned when a backend's discovery
	// mechanism fails entirely for a round. The round proceeds with zero
	// devices from that backend; the next round retries automatically.
	ErrDiscoveryUnavailable = errors.New("backend: discovery unavailable")
)
