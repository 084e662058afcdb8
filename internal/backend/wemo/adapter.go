package wemo

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/openhearth/hearth-core/internal/backend"
	"github.com/openhearth/hearth-core/internal/device"
)

// ControlPoint discovers WeMo devices on the local network.
//
// The production implementation speaks SSDP and UPnP SOAP; tests inject
// fakes.
type ControlPoint interface {
	// Search broadcasts an SSDP M-SEARCH and collects responding WeMo
	// endpoints until ctx expires or is cancelled.
	Search(ctx context.Context) ([]Endpoint, error)
}

// Endpoint is one reachable WeMo device.
type Endpoint interface {
	// UDN returns the device's UPnP unique device name, empty if the
	// device description omitted it.
	UDN() string
	FriendlyName() string
	ModelName() string
	SerialNumber() string

	// Host returns the device's address as host:port.
	Host() string

	// Dimmable reports whether the device exposes a brightness service
	// (WeMo Dimmer). Switches and plugs are power-only.
	Dimmable() bool

	GetBinaryState(ctx context.Context) (bool, error)
	SetBinaryState(ctx context.Context, on bool) error
	GetBrightness(ctx context.Context) (int, error)
	SetBrightness(ctx context.Context, level int) error
}

// Logger is the subset of logging.Logger the adapter uses.
type Logger interface {
	Warn(msg string, args ...any)
	Debug(msg string, args ...any)
}

// Adapter bridges Belkin WeMo switches, plugs and dimmers into the
// registry. Dimmers additionally expose brightness; no WeMo device has
// colour.
type Adapter struct {
	cp     ControlPoint
	logger Logger
}

// New creates a WeMo adapter over the given control point.
func New(cp ControlPoint, logger Logger) *Adapter {
	return &Adapter{cp: cp, logger: logger}
}

// Kind returns the wemo backend tag.
func (a *Adapter) Kind() device.Kind {
	return device.KindWeMo
}

// Capabilities returns the superset across WeMo models. Individual
// records carry the narrower set derived per device during discovery.
func (a *Adapter) Capabilities() []device.Capability {
	return []device.Capability{device.CapPower, device.CapBrightness}
}

// CouplesColor always reports false; WeMo has no colour model.
func (a *Adapter) CouplesColor() bool {
	return false
}

// Discover runs an SSDP search and normalizes every responding device.
// A device that answers the search but fails state reads is still
// returned with its identity fields; state stays unknown.
func (a *Adapter) Discover(ctx context.Context) ([]backend.Discovery, error) {
	endpoints, err := a.cp.Search(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: wemo ssdp search: %w", backend.ErrDiscoveryUnavailable, err)
	}

	out := make([]backend.Discovery, 0, len(endpoints))
	for _, ep := range endpoints {
		id := DeviceID(ep)
		if id == "" {
			a.logger.Warn("skipping wemo device with no usable identity",
				"host", ep.Host(), "name", ep.FriendlyName())
			continue
		}

		fields := a.identityFields(ep)
		a.readInto(ctx, ep, &fields)

		out = append(out, backend.Discovery{
			ID:     id,
			Handle: ep,
			Fields: fields,
		})
	}
	return out, nil
}

// ReadState fetches the live power (and brightness for dimmers) of one
// device.
func (a *Adapter) ReadState(ctx context.Context, handle device.Handle) (device.Fields, error) {
	ep, err := endpointFromHandle(handle)
	if err != nil {
		return device.Fields{}, err
	}

	var fields device.Fields
	on, err := ep.GetBinaryState(ctx)
	if err != nil {
		return device.Fields{}, fmt.Errorf("%w: wemo %s: %w", backend.ErrUnreachable, ep.Host(), err)
	}
	fields.Power = &on

	if ep.Dimmable() {
		if level, err := ep.GetBrightness(ctx); err == nil {
			level = device.ClampBrightness(level)
			fields.Brightness = &level
		} else {
			a.logger.Debug("wemo brightness read failed", "host", ep.Host(), "error", err)
		}
	}

	return fields, nil
}

// Apply writes the requested power and brightness, returning only what
// succeeded. Colour requests are rejected as unsupported.
func (a *Adapter) Apply(ctx context.Context, handle device.Handle, req backend.Request) (device.Fields, error) {
	ep, err := endpointFromHandle(handle)
	if err != nil {
		return device.Fields{}, err
	}

	if req.Hue != nil || req.Saturation != nil {
		return device.Fields{}, fmt.Errorf("%w: wemo devices have no colour control", backend.ErrUnsupported)
	}
	if req.Brightness != nil && !ep.Dimmable() {
		return device.Fields{}, fmt.Errorf("%w: %s is not dimmable", backend.ErrUnsupported, ep.FriendlyName())
	}

	var confirmed device.Fields

	if req.Power != nil {
		if err := ep.SetBinaryState(ctx, *req.Power); err != nil {
			return device.Fields{}, fmt.Errorf("%w: wemo %s: %w", backend.ErrUnreachable, ep.Host(), err)
		}
		confirmed.Power = req.Power
	}

	if req.Brightness != nil {
		if err := ep.SetBrightness(ctx, *req.Brightness); err != nil {
			// Power may already have been applied; report what stuck.
			if confirmed.Power != nil {
				return confirmed, nil
			}
			return device.Fields{}, fmt.Errorf("%w: wemo %s: %w", backend.ErrUnreachable, ep.Host(), err)
		}
		confirmed.Brightness = req.Brightness
		// Setting a brightness level on a WeMo dimmer turns it on.
		if confirmed.Power == nil {
			on := true
			confirmed.Power = &on
		}
	}

	return confirmed, nil
}

// DeviceID derives the stable registry id for an endpoint.
//
// The UDN is used verbatim when present. Devices with broken description
// documents fall back to a name-based UUID over host plus serial, which
// is stable as long as the device keeps its address or serial.
func DeviceID(ep Endpoint) string {
	if udn := ep.UDN(); udn != "" {
		return udn
	}
	seed := ep.Host() + ep.SerialNumber()
	if seed == "" {
		return ""
	}
	return uuid.NewSHA1(uuid.NameSpaceDNS, []byte(seed)).String()
}

func (a *Adapter) identityFields(ep Endpoint) device.Fields {
	name := ep.FriendlyName()
	model := ep.ModelName()
	addr := ep.Host()

	caps := []device.Capability{device.CapPower}
	if ep.Dimmable() {
		caps = append(caps, device.CapBrightness)
	}

	return device.Fields{
		Kind:         device.KindWeMo,
		Capabilities: caps,
		Name:         &name,
		Model:        &model,
		Address:      &addr,
	}
}

// readInto augments identity fields with a best-effort state read.
// Failures leave state unknown rather than failing the discovery.
func (a *Adapter) readInto(ctx context.Context, ep Endpoint, fields *device.Fields) {
	on, err := ep.GetBinaryState(ctx)
	if err != nil {
		a.logger.Debug("wemo state read during discovery failed",
			"host", ep.Host(), "error", err)
		return
	}
	fields.Power = &on

	if ep.Dimmable() {
		if level, err := ep.GetBrightness(ctx); err == nil {
			level = device.ClampBrightness(level)
			fields.Brightness = &level
		}
	}
}

func endpointFromHandle(handle device.Handle) (Endpoint, error) {
	ep, ok := handle.(Endpoint)
	if !ok || ep == nil {
		return nil, fmt.Errorf("%w: expected wemo endpoint, got %T", backend.ErrInvalidHandle, handle)
	}
	return ep, nil
}

// compile-time interface check
var _ backend.Adapter = (*Adapter)(nil)
