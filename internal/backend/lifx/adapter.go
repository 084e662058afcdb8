package lifx

import (
	"context"
	"fmt"

	"github.com/openhearth/hearth-core/internal/backend"
	"github.com/openhearth/hearth-core/internal/device"
)

// LAN discovers LIFX bulbs on the local network.
//
// The production implementation speaks the LIFX LAN UDP protocol; tests
// inject fakes.
type LAN interface {
	// Scan broadcasts a GetService and collects responding bulbs until
	// ctx expires or is cancelled.
	Scan(ctx context.Context) ([]Bulb, error)
}

// Bulb is one reachable LIFX bulb.
type Bulb interface {
	// MAC returns the bulb's hardware address as lowercase hex without
	// separators. It anchors the registry id.
	MAC() string

	// Addr returns the bulb's address as host:port.
	Addr() string

	GetState(ctx context.Context) (State, error)
	SetPower(ctx context.Context, on bool) error
	SetColor(ctx context.Context, color HSBK) error
}

// State is a bulb's reported state in wire units.
type State struct {
	Label string
	Power bool
	Color HSBK
}

// HSBK is the LIFX colour tuple. Hue, Saturation and Brightness are
// scaled to the full uint16 range; Kelvin is in degrees.
type HSBK struct {
	Hue        uint16
	Saturation uint16
	Brightness uint16
	Kelvin     uint16
}

// Logger is the subset of logging.Logger the adapter uses.
type Logger interface {
	Warn(msg string, args ...any)
	Debug(msg string, args ...any)
}

// Adapter bridges LIFX LAN bulbs into the registry. All LIFX bulbs carry
// the full capability set, and hue and saturation are written together
// because the wire protocol's SetColor takes a complete tuple.
type Adapter struct {
	lan    LAN
	logger Logger
}

// New creates a LIFX adapter over the given LAN scanner.
func New(lan LAN, logger Logger) *Adapter {
	return &Adapter{lan: lan, logger: logger}
}

// Kind returns the lifx backend tag.
func (a *Adapter) Kind() device.Kind {
	return device.KindLIFX
}

// Capabilities returns the full set; every LIFX bulb is a colour light.
func (a *Adapter) Capabilities() []device.Capability {
	return []device.Capability{
		device.CapPower,
		device.CapBrightness,
		device.CapHue,
		device.CapSaturation,
	}
}

// CouplesColor reports true: SetColor writes the whole HSBK tuple, so a
// hue change must carry the current saturation and vice versa.
func (a *Adapter) CouplesColor() bool {
	return true
}

// Discover scans the LAN and normalizes every responding bulb. A bulb
// that answers the scan but fails the state read is still returned with
// its identity fields.
func (a *Adapter) Discover(ctx context.Context) ([]backend.Discovery, error) {
	bulbs, err := a.lan.Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: lifx lan scan: %w", backend.ErrDiscoveryUnavailable, err)
	}

	out := make([]backend.Discovery, 0, len(bulbs))
	for _, b := range bulbs {
		if b.MAC() == "" {
			a.logger.Warn("skipping lifx bulb with empty mac", "addr", b.Addr())
			continue
		}

		addr := b.Addr()
		fields := device.Fields{
			Kind:         device.KindLIFX,
			Capabilities: a.Capabilities(),
			Address:      &addr,
		}

		if st, err := b.GetState(ctx); err == nil {
			applyState(&fields, st)
		} else {
			a.logger.Debug("lifx state read during discovery failed",
				"addr", b.Addr(), "error", err)
		}

		out = append(out, backend.Discovery{
			ID:     DeviceID(b.MAC()),
			Handle: b,
			Fields: fields,
		})
	}
	return out, nil
}

// ReadState fetches the live state of one bulb.
func (a *Adapter) ReadState(ctx context.Context, handle device.Handle) (device.Fields, error) {
	b, err := bulbFromHandle(handle)
	if err != nil {
		return device.Fields{}, err
	}

	st, err := b.GetState(ctx)
	if err != nil {
		return device.Fields{}, fmt.Errorf("%w: lifx %s: %w", backend.ErrUnreachable, b.Addr(), err)
	}

	var fields device.Fields
	applyState(&fields, st)
	return fields, nil
}

// Apply writes the requested state. Colour and brightness changes go
// through SetColor, which needs the full HSBK tuple; components the
// request leaves out are filled from a fresh state read.
func (a *Adapter) Apply(ctx context.Context, handle device.Handle, req backend.Request) (device.Fields, error) {
	b, err := bulbFromHandle(handle)
	if err != nil {
		return device.Fields{}, err
	}

	var confirmed device.Fields

	if req.Brightness != nil || req.Hue != nil || req.Saturation != nil {
		st, err := b.GetState(ctx)
		if err != nil {
			return device.Fields{}, fmt.Errorf("%w: lifx %s: %w", backend.ErrUnreachable, b.Addr(), err)
		}

		color := st.Color
		if req.Hue != nil {
			color.Hue = hueToWire(*req.Hue)
		}
		if req.Saturation != nil {
			color.Saturation = percentToWire(*req.Saturation)
		}
		if req.Brightness != nil {
			color.Brightness = percentToWire(*req.Brightness)
		}

		if err := b.SetColor(ctx, color); err != nil {
			return device.Fields{}, fmt.Errorf("%w: lifx %s: %w", backend.ErrUnreachable, b.Addr(), err)
		}
		confirmed.Hue = intPtr(wireToHue(color.Hue))
		confirmed.Saturation = intPtr(wireToPercent(color.Saturation))
		confirmed.Brightness = intPtr(wireToPercent(color.Brightness))
	}

	if req.Power != nil {
		if err := b.SetPower(ctx, *req.Power); err != nil {
			// Colour may already have been applied; report what stuck.
			if confirmed.Brightness != nil {
				return confirmed, nil
			}
			return device.Fields{}, fmt.Errorf("%w: lifx %s: %w", backend.ErrUnreachable, b.Addr(), err)
		}
		confirmed.Power = req.Power
	}

	return confirmed, nil
}

// DeviceID derives the stable registry id from a bulb's MAC.
func DeviceID(mac string) string {
	return "lifx-" + mac
}

// applyState converts wire state into normalized fields.
func applyState(fields *device.Fields, st State) {
	if st.Label != "" {
		label := st.Label
		fields.Name = &label
	}
	power := st.Power
	fields.Power = &power
	fields.Hue = intPtr(wireToHue(st.Color.Hue))
	fields.Saturation = intPtr(wireToPercent(st.Color.Saturation))
	fields.Brightness = intPtr(wireToPercent(st.Color.Brightness))
}

// hueToWire converts degrees (0-360) to the uint16 wire scale.
func hueToWire(deg int) uint16 {
	deg = device.ClampHue(deg)
	return uint16((deg * 65535) / 360)
}

// wireToHue converts the uint16 wire scale to degrees, rounding.
func wireToHue(v uint16) int {
	return (int(v)*360 + 32767) / 65535
}

// percentToWire converts a percentage (0-100) to the uint16 wire scale.
func percentToWire(pct int) uint16 {
	pct = device.ClampBrightness(pct)
	return uint16((pct * 65535) / 100)
}

// wireToPercent converts the uint16 wire scale to a percentage, rounding.
func wireToPercent(v uint16) int {
	return (int(v)*100 + 32767) / 65535
}

func intPtr(v int) *int { return &v }

func bulbFromHandle(handle device.Handle) (Bulb, error) {
	b, ok := handle.(Bulb)
	if !ok || b == nil {
		return nil, fmt.Errorf("%w: expected lifx bulb, got %T", backend.ErrInvalidHandle, handle)
	}
	return b, nil
}

var _ backend.Adapter = (*Adapter)(nil)
