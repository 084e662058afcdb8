package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/openhearth/hearth-core/internal/device"
)

// WriteDeviceState records one device state observation.
//
// Only fields present on the record become point fields, so a bulb with
// colour writes four values while a plain switch writes one. The write
// is non-blocking; points are batched and sent asynchronously.
func (c *Client) WriteDeviceState(update device.Update) {
	if !c.IsConnected() {
		return
	}

	rec := update.Record

	fields := map[string]interface{}{}
	if rec.Power != nil {
		fields["power"] = boolToInt(*rec.Power)
	}
	if rec.Brightness != nil {
		fields["brightness"] = *rec.Brightness
	}
	if rec.Hue != nil {
		fields["hue"] = *rec.Hue
	}
	if rec.Saturation != nil {
		fields["saturation"] = *rec.Saturation
	}
	if len(fields) == 0 {
		return // identity-only merge, nothing to chart
	}

	source := "discovery"
	if update.Source == device.SourceCommand {
		source = "command"
	}

	point := write.NewPoint(
		"device_state",
		map[string]string{
			"device_id": rec.ID,
			"backend":   string(rec.Kind),
			"source":    source,
		},
		fields,
		rec.LastSeen,
	)

	c.writeAPI.WritePoint(point)
}

// boolToInt stores power as 0/1 so it charts alongside numeric fields.
func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

// WritePoint writes a custom point for measurements that don't fit the
// device-state helper.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// Observer returns a registry observer that records every accepted
// merge to the state history.
func (c *Client) Observer() device.Observer {
	return func(update device.Update) {
		c.WriteDeviceState(update)
	}
}
