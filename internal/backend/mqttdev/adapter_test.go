package mqttdev

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/openhearth/hearth-core/internal/backend"
	"github.com/openhearth/hearth-core/internal/device"
	"github.com/openhearth/hearth-core/internal/infrastructure/config"
	"github.com/openhearth/hearth-core/internal/infrastructure/mqtt"
)

type fakeBroker struct {
	subscriptions map[string]mqtt.MessageHandler
	published     []publishedMsg
	publishErr    error
}

type publishedMsg struct {
	topic   string
	payload any
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{subscriptions: make(map[string]mqtt.MessageHandler)}
}

func (f *fakeBroker) Subscribe(topic string, handler mqtt.MessageHandler) error {
	f.subscriptions[topic] = handler
	return nil
}

func (f *fakeBroker) Publish(_ context.Context, topic string, payload any) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, publishedMsg{topic: topic, payload: payload})
	return nil
}

// deliver simulates an inbound broker message.
func (f *fakeBroker) deliver(t *testing.T, filter, topic string, payload []byte) {
	t.Helper()
	h, ok := f.subscriptions[filter]
	if !ok {
		t.Fatalf("no subscription for filter %q", filter)
	}
	if err := h(topic, payload); err != nil {
		t.Fatalf("handler error: %v", err)
	}
}

type nopLogger struct{}

func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Debug(string, ...any) {}

func newTestAdapter(t *testing.T, cfg config.MQTTDevConfig) (*Adapter, *fakeBroker) {
	t.Helper()
	broker := newFakeBroker()
	a := New(broker, cfg, nopLogger{})
	if err := a.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return a, broker
}

func announce(t *testing.T, broker *fakeBroker, id string, ann Announcement) {
	t.Helper()
	data, err := json.Marshal(ann)
	if err != nil {
		t.Fatalf("marshalling announcement: %v", err)
	}
	broker.deliver(t, "hearth/announce/+", "hearth/announce/"+id, data)
}

func TestAnnouncementAppearsInDiscovery(t *testing.T) {
	a, broker := newTestAdapter(t, config.MQTTDevConfig{Enabled: true})

	on := true
	announce(t, broker, "desk-lamp", Announcement{
		Name:         "Desk Lamp",
		Model:        "generic-rgb",
		Capabilities: []string{"power", "brightness"},
		State:        &StateReport{Power: &on},
	})

	found, err := a.Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("Discover() returned %d devices, want 1", len(found))
	}

	d := found[0]
	if d.ID != "desk-lamp" {
		t.Errorf("ID = %q, want desk-lamp", d.ID)
	}
	if d.Fields.Kind != device.KindMQTT {
		t.Errorf("Kind = %q, want mqtt", d.Fields.Kind)
	}
	if d.Fields.Name == nil || *d.Fields.Name != "Desk Lamp" {
		t.Error("name should come from the announcement")
	}
	if d.Fields.Power == nil || !*d.Fields.Power {
		t.Error("initial state from the announcement should be present")
	}
	if len(d.Fields.Capabilities) != 2 {
		t.Errorf("capabilities = %v, want [power brightness]", d.Fields.Capabilities)
	}
}

func TestStateReportUpdatesTable(t *testing.T) {
	a, broker := newTestAdapter(t, config.MQTTDevConfig{Enabled: true})

	announce(t, broker, "desk-lamp", Announcement{
		Name:         "Desk Lamp",
		Capabilities: []string{"power", "brightness"},
	})

	broker.deliver(t, "hearth/announce/+/state", "hearth/announce/desk-lamp/state",
		[]byte(`{"power": true, "brightness": 150}`))

	fields, err := a.ReadState(context.Background(), handle("desk-lamp"))
	if err != nil {
		t.Fatalf("ReadState() error = %v", err)
	}
	if fields.Power == nil || !*fields.Power {
		t.Error("power should reflect the report")
	}
	if fields.Brightness == nil || *fields.Brightness != 100 {
		t.Errorf("brightness should be clamped to 100, got %v", fields.Brightness)
	}
}

func TestStateReportMergesPartialFields(t *testing.T) {
	a, broker := newTestAdapter(t, config.MQTTDevConfig{Enabled: true})

	announce(t, broker, "lamp", Announcement{
		Name:         "Lamp",
		Capabilities: []string{"power", "brightness"},
	})
	broker.deliver(t, "hearth/announce/+/state", "hearth/announce/lamp/state",
		[]byte(`{"power": true, "brightness": 60}`))
	broker.deliver(t, "hearth/announce/+/state", "hearth/announce/lamp/state",
		[]byte(`{"brightness": 30}`))

	fields, err := a.ReadState(context.Background(), handle("lamp"))
	if err != nil {
		t.Fatalf("ReadState() error = %v", err)
	}
	if fields.Power == nil || !*fields.Power {
		t.Error("earlier power report should survive a partial update")
	}
	if fields.Brightness == nil || *fields.Brightness != 30 {
		t.Errorf("brightness = %v, want 30", fields.Brightness)
	}
}

func TestEmptyRetainedPayloadRemovesDevice(t *testing.T) {
	a, broker := newTestAdapter(t, config.MQTTDevConfig{Enabled: true})

	announce(t, broker, "lamp", Announcement{
		Name:         "Lamp",
		Capabilities: []string{"power"},
	})
	broker.deliver(t, "hearth/announce/+", "hearth/announce/lamp", nil)

	found, err := a.Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(found) != 0 {
		t.Errorf("Discover() returned %d devices, want 0 after removal", len(found))
	}
}

func TestMalformedAnnouncementDropped(t *testing.T) {
	a, broker := newTestAdapter(t, config.MQTTDevConfig{Enabled: true})

	broker.deliver(t, "hearth/announce/+", "hearth/announce/bad", []byte(`{"name": ""}`))
	broker.deliver(t, "hearth/announce/+", "hearth/announce/worse", []byte(`not json`))
	broker.deliver(t, "hearth/announce/+", "hearth/announce/odd",
		[]byte(`{"name": "Odd", "capabilities": ["warp"]}`))

	found, err := a.Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(found) != 0 {
		t.Errorf("Discover() returned %d devices, want 0", len(found))
	}
}

func TestDiscoverDropsStaleAnnouncements(t *testing.T) {
	a, broker := newTestAdapter(t, config.MQTTDevConfig{Enabled: true, AnnounceMaxAge: 300})

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return base }

	announce(t, broker, "old-lamp", Announcement{
		Name: "Old Lamp", Capabilities: []string{"power"},
	})

	a.now = func() time.Time { return base.Add(10 * time.Minute) }
	announce(t, broker, "fresh-lamp", Announcement{
		Name: "Fresh Lamp", Capabilities: []string{"power"},
	})

	found, err := a.Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(found) != 1 || found[0].ID != "fresh-lamp" {
		t.Errorf("Discover() = %v, want only fresh-lamp", found)
	}
}

func TestApplyPublishesCommand(t *testing.T) {
	a, broker := newTestAdapter(t, config.MQTTDevConfig{Enabled: true})

	announce(t, broker, "lamp", Announcement{
		Name: "Lamp", Capabilities: []string{"power", "brightness"},
	})

	on := true
	level := 75
	confirmed, err := a.Apply(context.Background(), handle("lamp"),
		backend.Request{Power: &on, Brightness: &level})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	if len(broker.published) != 1 {
		t.Fatalf("published %d messages, want 1", len(broker.published))
	}
	if broker.published[0].topic != "hearth/set/lamp" {
		t.Errorf("topic = %q, want hearth/set/lamp", broker.published[0].topic)
	}
	if confirmed.Power == nil || confirmed.Brightness == nil {
		t.Error("confirmed fields should echo the request")
	}
}

func TestApplyUnannouncedDevice(t *testing.T) {
	a, _ := newTestAdapter(t, config.MQTTDevConfig{Enabled: true})

	on := true
	_, err := a.Apply(context.Background(), handle("ghost"), backend.Request{Power: &on})
	if !errors.Is(err, backend.ErrUnreachable) {
		t.Errorf("error = %v, want ErrUnreachable", err)
	}
}

func TestApplyPublishFailure(t *testing.T) {
	a, broker := newTestAdapter(t, config.MQTTDevConfig{Enabled: true})
	announce(t, broker, "lamp", Announcement{
		Name: "Lamp", Capabilities: []string{"power"},
	})
	broker.publishErr = errors.New("broker down")

	on := true
	_, err := a.Apply(context.Background(), handle("lamp"), backend.Request{Power: &on})
	if !errors.Is(err, backend.ErrUnreachable) {
		t.Errorf("error = %v, want ErrUnreachable", err)
	}
}

func TestApplyInvalidHandle(t *testing.T) {
	a, _ := newTestAdapter(t, config.MQTTDevConfig{Enabled: true})

	on := true
	_, err := a.Apply(context.Background(), 42, backend.Request{Power: &on})
	if !errors.Is(err, backend.ErrInvalidHandle) {
		t.Errorf("error = %v, want ErrInvalidHandle", err)
	}
}
