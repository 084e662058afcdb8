// Package backend defines the capability contract every device-family
// adapter implements, and the typed errors those adapters report.
//
// Adapters own their live connection handles exclusively. The registry
// stores handles opaquely and the dispatcher passes them back to the
// owning adapter; nothing else touches them. Each adapter is independently
// replaceable: the orchestrator and dispatcher are written against the
// Adapter interface and tested with fakes.
//
// Reference implementations live in the subpackages wemo, lifx and
// mqttdev.
package backend
