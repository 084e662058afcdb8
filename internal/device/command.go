package device

// CommandKind identifies a user-issued control operation.
type CommandKind string

// Supported command kinds.
const (
	CommandToggle        CommandKind = "toggle"
	CommandSetBrightness CommandKind = "set_brightness"
	CommandSetHue        CommandKind = "set_hue"
	CommandSetSaturation CommandKind = "set_saturation"
)

// Command is a control request targeting a single device.
//
// Value is only meaningful for the set_* kinds. Out-of-range values are
// clamped to the field's documented range, never rejected.
type Command struct {
	Kind  CommandKind `json:"command_kind"`
	Value int         `json:"value,omitempty"`
}

// ValidKind reports whether k is a recognised command kind.
func ValidKind(k CommandKind) bool {
	switch k {
	case CommandToggle, CommandSetBrightness, CommandSetHue, CommandSetSaturation:
		return true
	default:
		return false
	}
}

// RequiredCapability returns the capability a command kind targets.
func (c Command) RequiredCapability() Capability {
	switch c.Kind {
	case CommandSetBrightness:
		return CapBrightness
	case CommandSetHue:
		return CapHue
	case CommandSetSaturation:
		return CapSaturation
	default:
		return CapPower
	}
}
