package device

import "time"

// Kind identifies the backend family that owns a device.
//
// A record's kind never changes after creation: the id is derived from
// hardware identity, and hardware does not migrate between protocols.
type Kind string

// Known backend kinds.
const (
	KindWeMo Kind = "wemo"
	KindLIFX Kind = "lifx"
	KindMQTT Kind = "mqtt"
)

// Capability represents an optional controllable aspect of a device.
type Capability string

// Capability constants.
const (
	CapPower      Capability = "power"
	CapBrightness Capability = "brightness"
	CapHue        Capability = "hue"
	CapSaturation Capability = "saturation"
)

// Value ranges for clamped numeric fields.
const (
	BrightnessMin = 0
	BrightnessMax = 100
	HueMin        = 0
	HueMax        = 360
	SaturationMin = 0
	SaturationMax = 100
)

// Handle is an opaque reference to a live backend connection object.
//
// It is owned exclusively by the backend adapter that produced it. The
// registry stores it and hands it back to the dispatcher, but never
// inspects or mutates it.
type Handle any

// Record is the normalized, backend-independent representation of a
// device's observable state.
//
// Power, Brightness, Hue and Saturation are pointers: nil means unknown
// (power) or unsupported/not yet observed (the optional fields). A field
// is only ever populated when the record's capability set allows it.
type Record struct {
	ID           string       `json:"id"`
	Kind         Kind         `json:"backend_kind"`
	Name         string       `json:"name"`
	Model        string       `json:"model"`
	Address      string       `json:"network_address"`
	Capabilities []Capability `json:"capabilities"`

	Power      *bool `json:"power_state,omitempty"`
	Brightness *int  `json:"brightness,omitempty"`
	Hue        *int  `json:"hue,omitempty"`
	Saturation *int  `json:"saturation,omitempty"`

	LastSeen time.Time `json:"last_seen"`

	// Epoch of the last accepted write; merges from older discovery
	// rounds are dropped.
	Epoch time.Time `json:"-"`

	// Handle is the live backend connection object. Never serialized.
	Handle Handle `json:"-"`
}

// HasCapability reports whether the record's capability set includes cap.
func (r *Record) HasCapability(cap Capability) bool {
	for _, c := range r.Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}

// DeepCopy creates an independent copy of the Record.
//
// All pointer fields are cloned so callers can modify the copy without
// affecting registry state. The Handle is shared by design: it is the
// adapter's live connection object and must not be duplicated.
func (r *Record) DeepCopy() *Record {
	if r == nil {
		return nil
	}

	cpy := *r

	if r.Capabilities != nil {
		cpy.Capabilities = make([]Capability, len(r.Capabilities))
		copy(cpy.Capabilities, r.Capabilities)
	}
	cpy.Power = copyBool(r.Power)
	cpy.Brightness = copyInt(r.Brightness)
	cpy.Hue = copyInt(r.Hue)
	cpy.Saturation = copyInt(r.Saturation)

	return &cpy
}

func copyBool(p *bool) *bool {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func copyInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Fields is a partial record: the subset of mutable fields a discovery
// pass or command confirmation proposes to write. Nil pointers mean
// "leave the stored value untouched".
type Fields struct {
	Name    *string
	Model   *string
	Address *string

	// Handle, when non-nil, replaces the stored live connection object.
	// Discovery passes refresh it every round; commands leave it alone.
	Handle Handle

	Power      *bool
	Brightness *int
	Hue        *int
	Saturation *int

	// Kind and Capabilities are honoured on insert only; an existing
	// record's kind and capability set are fixed at creation.
	Kind         Kind
	Capabilities []Capability
}

// ClampBrightness forces v into the 0-100 range.
func ClampBrightness(v int) int {
	return clamp(v, BrightnessMin, BrightnessMax)
}

// ClampHue forces v into the 0-360 range.
func ClampHue(v int) int {
	return clamp(v, HueMin, HueMax)
}

// ClampSaturation forces v into the 0-100 range.
func ClampSaturation(v int) int {
	return clamp(v, SaturationMin, SaturationMax)
}

func clamp(v, minVal, maxVal int) int {
	if v < minVal {
		return minVal
	}
	if v > maxVal {
		return maxVal
	}
	return v
}
