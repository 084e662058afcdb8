// Package mqtt provides the MQTT connection layer for Hearth Core.
//
// It wraps paho.mqtt.golang with connection management, tracked
// subscriptions that survive reconnects, a Last Will and Testament on
// hearth/system/status, and panic-safe message handlers.
//
// Two groups of topics flow through the client:
//
//   - Inbound: device announcements and state reports consumed by the
//     MQTT device backend (hearth/announce/...).
//   - Outbound: canonical registry state (hearth/device/<id>/state,
//     retained) and commands to announced devices (hearth/set/<id>).
//
// See the Topics type for the full layout.
package mqtt
