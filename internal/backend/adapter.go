package backend

import (
	"context"

	"github.com/openhearth/hearth-core/internal/device"
)

// Request is the partial desired state the dispatcher asks an adapter to
// apply. Nil pointers mean "do not touch this aspect".
//
// Backends that require hue and saturation to be set together receive both
// populated; the dispatcher fills the sibling from the registry.
type Request struct {
	Power      *bool
	Brightness *int
	Hue        *int
	Saturation *int
}

// Discovery is one device observed by a discovery pass: the live backend
// connection object plus the normalized partial record derived from it.
type Discovery struct {
	ID     string
	Handle device.Handle
	Fields device.Fields
}

// Adapter translates one vendor protocol into the registry's normalized
// record shape. One implementation exists per device family; the
// orchestrator and dispatcher depend only on this contract.
//
// All methods may block on network I/O and must honour ctx cancellation.
// None of them are ever invoked while the registry lock is held.
type Adapter interface {
	// Kind returns the backend family tag stamped on every record this
	// adapter produces.
	Kind() device.Kind

	// Capabilities returns the capability set for this device family.
	Capabilities() []device.Capability

	// CouplesColor reports whether the backend requires hue and
	// saturation to be written together in a single command.
	CouplesColor() bool

	// Discover performs backend-specific network discovery, bounded by
	// ctx. An individual malformed device is skipped (and logged), never
	// fatal. If the discovery mechanism itself fails entirely, Discover
	// returns an empty batch and an error wrapping
	// ErrDiscoveryUnavailable; the orchestrator's round proceeds with
	// the other backends.
	Discover(ctx context.Context) ([]Discovery, error)

	// ReadState performs a best-effort live state read of one device.
	// Missing or unsupported fields are simply absent from the result,
	// never defaulted to a misleading value.
	ReadState(ctx context.Context, handle device.Handle) (device.Fields, error)

	// Apply issues a control call and returns only the fields it can
	// attest were applied — possibly a subset of the request. On failure
	// it returns a typed error (ErrUnsupported, ErrUnreachable,
	// ErrInvalidValue) and reports nothing as changed.
	Apply(ctx context.Context, handle device.Handle, req Request) (device.Fields, error)
}
