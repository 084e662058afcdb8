package mqtt

import (
	"fmt"
	"strings"
)

// Topic layout:
//
//	hearth/announce/<device_id>        retained device announcements (inbound)
//	hearth/announce/<device_id>/state  state reports from announced devices (inbound)
//	hearth/set/<device_id>             command delivery to announced devices (outbound)
//	hearth/device/<device_id>/state    canonical registry state (outbound, retained)
//	hearth/system/status               Core online/offline status incl. LWT (outbound, retained)
//
// Inbound topics belong to the MQTT device backend; outbound topics are
// published by Core itself.

const topicPrefix = "hearth"

// Topics builds and parses Hearth topic strings.
// The zero value is ready to use.
type Topics struct{}

// DeviceAnnounce returns the announcement topic for a single device.
func (Topics) DeviceAnnounce(deviceID string) string {
	return fmt.Sprintf("%s/announce/%s", topicPrefix, deviceID)
}

// DeviceAnnounceWildcard returns the subscription filter covering all
// device announcements. It deliberately uses a single-level wildcard so
// it does not also match the per-device state subtopics.
func (Topics) DeviceAnnounceWildcard() string {
	return topicPrefix + "/announce/+"
}

// DeviceReport returns the state report topic for an announced device.
func (Topics) DeviceReport(deviceID string) string {
	return fmt.Sprintf("%s/announce/%s/state", topicPrefix, deviceID)
}

// DeviceReportWildcard returns the subscription filter covering all
// device state reports.
func (Topics) DeviceReportWildcard() string {
	return topicPrefix + "/announce/+/state"
}

// DeviceSet returns the command topic for an announced device.
func (Topics) DeviceSet(deviceID string) string {
	return fmt.Sprintf("%s/set/%s", topicPrefix, deviceID)
}

// CoreDeviceState returns the canonical state topic Core publishes for a
// registry record after an accepted merge.
func (Topics) CoreDeviceState(deviceID string) string {
	return fmt.Sprintf("%s/device/%s/state", topicPrefix, deviceID)
}

// SystemStatus returns the Core status topic used for online/offline
// announcements and the Last Will and Testament.
func (Topics) SystemStatus() string {
	return topicPrefix + "/system/status"
}

// ParseAnnounceTopic extracts the device id from an announcement or state
// report topic. The second return reports whether the topic is a state
// report rather than an announcement.
func (Topics) ParseAnnounceTopic(topic string) (deviceID string, isReport bool, err error) {
	parts := strings.Split(topic, "/")
	switch {
	case len(parts) == 3 && parts[0] == topicPrefix && parts[1] == "announce" && parts[2] != "":
		return parts[2], false, nil
	case len(parts) == 4 && parts[0] == topicPrefix && parts[1] == "announce" && parts[2] != "" && parts[3] == "state":
		return parts[2], true, nil
	default:
		return "", false, fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
	}
}
