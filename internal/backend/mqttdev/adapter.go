package mqttdev

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/openhearth/hearth-core/internal/backend"
	"github.com/openhearth/hearth-core/internal/device"
	"github.com/openhearth/hearth-core/internal/infrastructure/config"
	"github.com/openhearth/hearth-core/internal/infrastructure/mqtt"
)

// Broker is the slice of the MQTT client the adapter needs.
// Satisfied by *mqtt.Client; tests inject fakes.
type Broker interface {
	Subscribe(topic string, handler mqtt.MessageHandler) error
	Publish(ctx context.Context, topic string, payload any) error
}

// Logger is the subset of logging.Logger the adapter uses.
type Logger interface {
	Warn(msg string, args ...any)
	Debug(msg string, args ...any)
}

// entry is one announced device in the live table.
type entry struct {
	announcement Announcement
	lastState    StateReport
	lastSeen     time.Time
}

// Adapter bridges generic MQTT devices into the registry.
//
// Devices announce themselves with a retained message on
// hearth/announce/<id> and report state changes on the /state subtopic.
// The adapter maintains a live table from those messages; Discover
// snapshots the table rather than probing the network, so rounds are
// instant for this backend.
type Adapter struct {
	broker Broker
	cfg    config.MQTTDevConfig
	logger Logger
	topics mqtt.Topics

	mu      sync.Mutex
	entries map[string]*entry

	now func() time.Time
}

// handle is the opaque registry handle for an announced device: just its
// id, since commands travel over the shared broker connection.
type handle string

// New creates the MQTT device adapter. Call Start to begin listening.
func New(broker Broker, cfg config.MQTTDevConfig, logger Logger) *Adapter {
	return &Adapter{
		broker:  broker,
		cfg:     cfg,
		logger:  logger,
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// Start subscribes to the announcement and state report topics. Retained
// announcements arrive immediately, so the table is usually warm before
// the first discovery round.
func (a *Adapter) Start() error {
	if err := a.broker.Subscribe(a.topics.DeviceAnnounceWildcard(), a.handleMessage); err != nil {
		return fmt.Errorf("subscribing to announcements: %w", err)
	}
	if err := a.broker.Subscribe(a.topics.DeviceReportWildcard(), a.handleMessage); err != nil {
		return fmt.Errorf("subscribing to state reports: %w", err)
	}
	return nil
}

// handleMessage routes an inbound message to the announcement or state
// report path. Malformed payloads are logged and dropped.
func (a *Adapter) handleMessage(topic string, payload []byte) error {
	id, isReport, err := a.topics.ParseAnnounceTopic(topic)
	if err != nil {
		return err
	}

	if isReport {
		rep, err := parseStateReport(payload)
		if err != nil {
			a.logger.Warn("dropping malformed state report", "device_id", id, "error", err)
			return nil
		}
		a.recordReport(id, rep)
		return nil
	}

	// An empty retained payload is the MQTT convention for deletion.
	if len(payload) == 0 {
		a.remove(id)
		return nil
	}

	ann, err := parseAnnouncement(payload)
	if err != nil {
		a.logger.Warn("dropping malformed announcement", "device_id", id, "error", err)
		return nil
	}
	a.recordAnnouncement(id, ann)
	return nil
}

func (a *Adapter) recordAnnouncement(id string, ann Announcement) {
	a.mu.Lock()
	defer a.mu.Unlock()

	e, ok := a.entries[id]
	if !ok {
		e = &entry{}
		a.entries[id] = e
	}
	e.announcement = ann
	e.lastSeen = a.now()
	if ann.State != nil {
		e.lastState = *ann.State
	}
}

func (a *Adapter) recordReport(id string, rep StateReport) {
	a.mu.Lock()
	defer a.mu.Unlock()

	e, ok := a.entries[id]
	if !ok {
		// State from a device we have not seen announce; remember the
		// report so it lands once the retained announcement arrives.
		a.logger.Debug("state report for unannounced device", "device_id", id)
		e = &entry{}
		a.entries[id] = e
	}
	mergeReport(&e.lastState, rep)
	e.lastSeen = a.now()
}

// mergeReport overlays non-nil fields from rep onto dst.
func mergeReport(dst *StateReport, rep StateReport) {
	if rep.Power != nil {
		dst.Power = rep.Power
	}
	if rep.Brightness != nil {
		dst.Brightness = rep.Brightness
	}
	if rep.Hue != nil {
		dst.Hue = rep.Hue
	}
	if rep.Saturation != nil {
		dst.Saturation = rep.Saturation
	}
}

func (a *Adapter) remove(id string) {
	a.mu.Lock()
	delete(a.entries, id)
	a.mu.Unlock()
}

// Kind returns the mqtt backend tag.
func (a *Adapter) Kind() device.Kind {
	return device.KindMQTT
}

// Capabilities returns the superset; each announced device carries the
// narrower set from its announcement.
func (a *Adapter) Capabilities() []device.Capability {
	return []device.Capability{
		device.CapPower,
		device.CapBrightness,
		device.CapHue,
		device.CapSaturation,
	}
}

// CouplesColor reports false: command payloads carry independent fields.
func (a *Adapter) CouplesColor() bool {
	return false
}

// Discover snapshots the live table. Devices whose announcement has not
// been refreshed within the configured max age are dropped from results;
// they fall out of sight without a broker round trip.
func (a *Adapter) Discover(_ context.Context) ([]backend.Discovery, error) {
	maxAge := time.Duration(a.cfg.AnnounceMaxAge) * time.Second
	cutoff := time.Time{}
	if maxAge > 0 {
		cutoff = a.now().Add(-maxAge)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]backend.Discovery, 0, len(a.entries))
	for id, e := range a.entries {
		if e.announcement.Name == "" {
			continue // state seen, announcement still pending
		}
		if !cutoff.IsZero() && e.lastSeen.Before(cutoff) {
			continue
		}

		name := e.announcement.Name
		fields := e.lastState.fields()
		fields.Kind = device.KindMQTT
		fields.Capabilities = e.announcement.capabilities()
		fields.Name = &name
		if e.announcement.Model != "" {
			model := e.announcement.Model
			fields.Model = &model
		}

		out = append(out, backend.Discovery{
			ID:     id,
			Handle: handle(id),
			Fields: fields,
		})
	}
	return out, nil
}

// ReadState returns the device's last reported state from the live
// table. MQTT devices push rather than answer polls, so this never
// touches the network.
func (a *Adapter) ReadState(_ context.Context, h device.Handle) (device.Fields, error) {
	id, err := idFromHandle(h)
	if err != nil {
		return device.Fields{}, err
	}

	a.mu.Lock()
	e, ok := a.entries[id]
	var rep StateReport
	if ok {
		rep = e.lastState
	}
	a.mu.Unlock()

	if !ok {
		return device.Fields{}, fmt.Errorf("%w: %s no longer announced", backend.ErrUnreachable, id)
	}
	return rep.fields(), nil
}

// Apply publishes a command payload to the device's set topic. The
// broker's delivery acknowledgment is the attestation; the device's own
// state report later confirms or corrects via the normal report path.
func (a *Adapter) Apply(ctx context.Context, h device.Handle, req backend.Request) (device.Fields, error) {
	id, err := idFromHandle(h)
	if err != nil {
		return device.Fields{}, err
	}

	a.mu.Lock()
	_, known := a.entries[id]
	a.mu.Unlock()
	if !known {
		return device.Fields{}, fmt.Errorf("%w: %s no longer announced", backend.ErrUnreachable, id)
	}

	payload := CommandPayload{
		Power:      req.Power,
		Brightness: req.Brightness,
		Hue:        req.Hue,
		Saturation: req.Saturation,
	}
	if err := a.broker.Publish(ctx, a.topics.DeviceSet(id), payload); err != nil {
		return device.Fields{}, fmt.Errorf("%w: publishing command to %s: %w", backend.ErrUnreachable, id, err)
	}

	return device.Fields{
		Power:      req.Power,
		Brightness: req.Brightness,
		Hue:        req.Hue,
		Saturation: req.Saturation,
	}, nil
}

func idFromHandle(h device.Handle) (string, error) {
	id, ok := h.(handle)
	if !ok || id == "" {
		return "", fmt.Errorf("%w: expected mqtt device id, got %T", backend.ErrInvalidHandle, h)
	}
	return string(id), nil
}

var _ backend.Adapter = (*Adapter)(nil)
