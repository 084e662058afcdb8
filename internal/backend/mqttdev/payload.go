package mqttdev

import (
	"encoding/json"
	"fmt"

	"github.com/openhearth/hearth-core/internal/device"
)

// Announcement is the retained payload a device publishes to
// hearth/announce/<id> to make itself known.
type Announcement struct {
	Name         string       `json:"name"`
	Model        string       `json:"model,omitempty"`
	Capabilities []string     `json:"capabilities"`
	State        *StateReport `json:"state,omitempty"`
}

// StateReport is the payload a device publishes to
// hearth/announce/<id>/state after a state change. Absent fields mean
// the device did not report that aspect.
type StateReport struct {
	Power      *bool `json:"power,omitempty"`
	Brightness *int  `json:"brightness,omitempty"`
	Hue        *int  `json:"hue,omitempty"`
	Saturation *int  `json:"saturation,omitempty"`
}

// CommandPayload is published to hearth/set/<id>. Only requested
// aspects are present.
type CommandPayload struct {
	Power      *bool `json:"power,omitempty"`
	Brightness *int  `json:"brightness,omitempty"`
	Hue        *int  `json:"hue,omitempty"`
	Saturation *int  `json:"saturation,omitempty"`
}

// parseAnnouncement decodes and validates an announcement payload.
func parseAnnouncement(data []byte) (Announcement, error) {
	var ann Announcement
	if err := json.Unmarshal(data, &ann); err != nil {
		return Announcement{}, fmt.Errorf("decoding announcement: %w", err)
	}
	if ann.Name == "" {
		return Announcement{}, fmt.Errorf("announcement missing name")
	}
	if len(ann.Capabilities) == 0 {
		return Announcement{}, fmt.Errorf("announcement missing capabilities")
	}
	for _, c := range ann.Capabilities {
		if !knownCapability(c) {
			return Announcement{}, fmt.Errorf("unknown capability %q", c)
		}
	}
	return ann, nil
}

// parseStateReport decodes a state report payload.
func parseStateReport(data []byte) (StateReport, error) {
	var rep StateReport
	if err := json.Unmarshal(data, &rep); err != nil {
		return StateReport{}, fmt.Errorf("decoding state report: %w", err)
	}
	return rep, nil
}

func knownCapability(c string) bool {
	switch device.Capability(c) {
	case device.CapPower, device.CapBrightness, device.CapHue, device.CapSaturation:
		return true
	}
	return false
}

// capabilities converts announcement capability strings to typed values.
func (a Announcement) capabilities() []device.Capability {
	caps := make([]device.Capability, 0, len(a.Capabilities))
	for _, c := range a.Capabilities {
		caps = append(caps, device.Capability(c))
	}
	return caps
}

// fields converts a state report into normalized registry fields,
// clamping numeric values.
func (r StateReport) fields() device.Fields {
	var f device.Fields
	f.Power = r.Power
	if r.Brightness != nil {
		v := device.ClampBrightness(*r.Brightness)
		f.Brightness = &v
	}
	if r.Hue != nil {
		v := device.ClampHue(*r.Hue)
		f.Hue = &v
	}
	if r.Saturation != nil {
		v := device.ClampSaturation(*r.Saturation)
		f.Saturation = &v
	}
	return f
}
