package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrNotFound) {
//	    // handle not found case
//	}
var (
	// ErrNotFound is returned when a device ID does not exist.
	ErrNotFound = errors.New("device: not found")

	// ErrInvalidID is returned when a merge targets an empty ID.
	ErrInvalidID = errors.New("device: invalid id")

	// ErrMissingKind is returned when a merge would insert a new record
	// without declaring its backend kind.
	ErrMissingKind = errors.New("device: backend kind required for new record")
)
