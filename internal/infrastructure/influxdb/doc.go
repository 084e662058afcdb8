// Package influxdb records device state history for Hearth Core.
//
// It wraps the official influxdb-client-go v2 library. A registry
// observer feeds every accepted merge into WriteDeviceState, producing a
// time series of power, brightness and colour per device tagged with the
// backend and the merge source.
//
// # Thread Safety
//
// All methods are safe for concurrent use. Writes are non-blocking and
// batched according to config.yaml (batch_size, flush_interval); async
// write errors surface through the SetOnError callback.
package influxdb
