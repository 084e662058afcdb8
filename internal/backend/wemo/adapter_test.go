package wemo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/openhearth/hearth-core/internal/backend"
	"github.com/openhearth/hearth-core/internal/device"
)

type fakeEndpoint struct {
	udn      string
	name     string
	model    string
	serial   string
	host     string
	dimmable bool

	power      bool
	brightness int

	stateErr error
	setErr   error

	setPowerCalls      []bool
	setBrightnessCalls []int
}

func (f *fakeEndpoint) UDN() string          { return f.udn }
func (f *fakeEndpoint) FriendlyName() string { return f.name }
func (f *fakeEndpoint) ModelName() string    { return f.model }
func (f *fakeEndpoint) SerialNumber() string { return f.serial }
func (f *fakeEndpoint) Host() string         { return f.host }
func (f *fakeEndpoint) Dimmable() bool       { return f.dimmable }

func (f *fakeEndpoint) GetBinaryState(_ context.Context) (bool, error) {
	return f.power, f.stateErr
}

func (f *fakeEndpoint) SetBinaryState(_ context.Context, on bool) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.power = on
	f.setPowerCalls = append(f.setPowerCalls, on)
	return nil
}

func (f *fakeEndpoint) GetBrightness(_ context.Context) (int, error) {
	return f.brightness, f.stateErr
}

func (f *fakeEndpoint) SetBrightness(_ context.Context, level int) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.brightness = level
	f.setBrightnessCalls = append(f.setBrightnessCalls, level)
	return nil
}

type fakeControlPoint struct {
	endpoints []Endpoint
	err       error
}

func (f *fakeControlPoint) Search(_ context.Context) ([]Endpoint, error) {
	return f.endpoints, f.err
}

type nopLogger struct{}

func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Debug(string, ...any) {}

func TestDiscoverNormalizesDevices(t *testing.T) {
	sw := &fakeEndpoint{
		udn: "uuid:Socket-1_0-221517K0101769", name: "Desk Plug",
		model: "Socket", host: "10.0.0.5:49153", power: true,
	}
	dimmer := &fakeEndpoint{
		udn: "uuid:Dimmer-1_0-22B800K0102345", name: "Hall Dimmer",
		model: "Dimmer", host: "10.0.0.6:49153", dimmable: true,
		power: false, brightness: 70,
	}
	a := New(&fakeControlPoint{endpoints: []Endpoint{sw, dimmer}}, nopLogger{})

	found, err := a.Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(found) != 2 {
		t.Fatalf("Discover() returned %d devices, want 2", len(found))
	}

	first := found[0]
	if first.ID != sw.udn {
		t.Errorf("ID = %q, want UDN %q", first.ID, sw.udn)
	}
	if first.Fields.Kind != device.KindWeMo {
		t.Errorf("Kind = %q, want wemo", first.Fields.Kind)
	}
	if first.Fields.Power == nil || !*first.Fields.Power {
		t.Error("power should be observed on during discovery")
	}
	if len(first.Fields.Capabilities) != 1 || first.Fields.Capabilities[0] != device.CapPower {
		t.Errorf("switch capabilities = %v, want [power]", first.Fields.Capabilities)
	}

	second := found[1]
	if second.Fields.Brightness == nil || *second.Fields.Brightness != 70 {
		t.Error("dimmer brightness should be observed during discovery")
	}
	if len(second.Fields.Capabilities) != 2 {
		t.Errorf("dimmer capabilities = %v, want [power brightness]", second.Fields.Capabilities)
	}
}

func TestDiscoverSkipsDeviceWithoutIdentity(t *testing.T) {
	anon := &fakeEndpoint{name: "Mystery"}
	a := New(&fakeControlPoint{endpoints: []Endpoint{anon}}, nopLogger{})

	found, err := a.Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(found) != 0 {
		t.Errorf("Discover() returned %d devices, want 0", len(found))
	}
}

func TestDiscoverKeepsIdentityWhenStateReadFails(t *testing.T) {
	ep := &fakeEndpoint{
		udn: "uuid:Socket-1", name: "Flaky Plug", host: "10.0.0.7:49153",
		stateErr: errors.New("connection refused"),
	}
	a := New(&fakeControlPoint{endpoints: []Endpoint{ep}}, nopLogger{})

	found, err := a.Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("Discover() returned %d devices, want 1", len(found))
	}
	if found[0].Fields.Power != nil {
		t.Error("power should be unknown when the state read fails")
	}
	if found[0].Fields.Name == nil || *found[0].Fields.Name != "Flaky Plug" {
		t.Error("identity fields should survive a failed state read")
	}
}

func TestDiscoverSearchFailure(t *testing.T) {
	a := New(&fakeControlPoint{err: errors.New("socket error")}, nopLogger{})

	_, err := a.Discover(context.Background())
	if !errors.Is(err, backend.ErrDiscoveryUnavailable) {
		t.Errorf("error = %v, want ErrDiscoveryUnavailable", err)
	}
}

func TestDeviceIDFallback(t *testing.T) {
	ep := &fakeEndpoint{host: "10.0.0.5:49153", serial: "221517K0101769"}

	id1 := DeviceID(ep)
	if id1 == "" {
		t.Fatal("DeviceID() returned empty for device with host and serial")
	}
	if id2 := DeviceID(ep); id2 != id1 {
		t.Errorf("DeviceID() not stable: %q then %q", id1, id2)
	}

	other := &fakeEndpoint{host: "10.0.0.9:49153", serial: "OTHER"}
	if DeviceID(other) == id1 {
		t.Error("distinct devices produced the same fallback id")
	}
}

func TestApplyPower(t *testing.T) {
	ep := &fakeEndpoint{udn: "uuid:Socket-1", host: "10.0.0.5:49153"}
	a := New(&fakeControlPoint{}, nopLogger{})

	on := true
	confirmed, err := a.Apply(context.Background(), ep, backend.Request{Power: &on})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if confirmed.Power == nil || !*confirmed.Power {
		t.Error("confirmed fields should include power on")
	}
	if len(ep.setPowerCalls) != 1 || !ep.setPowerCalls[0] {
		t.Errorf("SetBinaryState calls = %v, want [true]", ep.setPowerCalls)
	}
}

func TestApplyBrightnessImpliesPowerOn(t *testing.T) {
	ep := &fakeEndpoint{udn: "uuid:Dimmer-1", host: "10.0.0.6:49153", dimmable: true}
	a := New(&fakeControlPoint{}, nopLogger{})

	level := 40
	confirmed, err := a.Apply(context.Background(), ep, backend.Request{Brightness: &level})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if confirmed.Brightness == nil || *confirmed.Brightness != 40 {
		t.Error("confirmed fields should include brightness")
	}
	if confirmed.Power == nil || !*confirmed.Power {
		t.Error("setting brightness should confirm power on")
	}
}

func TestApplyRejectsColour(t *testing.T) {
	ep := &fakeEndpoint{udn: "uuid:Dimmer-1", dimmable: true}
	a := New(&fakeControlPoint{}, nopLogger{})

	hue := 120
	_, err := a.Apply(context.Background(), ep, backend.Request{Hue: &hue})
	if !errors.Is(err, backend.ErrUnsupported) {
		t.Errorf("error = %v, want ErrUnsupported", err)
	}
}

func TestApplyRejectsBrightnessOnSwitch(t *testing.T) {
	ep := &fakeEndpoint{udn: "uuid:Socket-1", name: "Desk Plug"}
	a := New(&fakeControlPoint{}, nopLogger{})

	level := 50
	_, err := a.Apply(context.Background(), ep, backend.Request{Brightness: &level})
	if !errors.Is(err, backend.ErrUnsupported) {
		t.Errorf("error = %v, want ErrUnsupported", err)
	}
	if len(ep.setBrightnessCalls) != 0 {
		t.Error("no brightness call should reach the device")
	}
}

func TestApplyUnreachable(t *testing.T) {
	ep := &fakeEndpoint{udn: "uuid:Socket-1", setErr: errors.New("timeout")}
	a := New(&fakeControlPoint{}, nopLogger{})

	on := true
	_, err := a.Apply(context.Background(), ep, backend.Request{Power: &on})
	if !errors.Is(err, backend.ErrUnreachable) {
		t.Errorf("error = %v, want ErrUnreachable", err)
	}
}

func TestApplyInvalidHandle(t *testing.T) {
	a := New(&fakeControlPoint{}, nopLogger{})

	on := true
	_, err := a.Apply(context.Background(), "not-an-endpoint", backend.Request{Power: &on})
	if !errors.Is(err, backend.ErrInvalidHandle) {
		t.Errorf("error = %v, want ErrInvalidHandle", err)
	}
}

func TestReadState(t *testing.T) {
	ep := &fakeEndpoint{udn: "uuid:Dimmer-1", dimmable: true, power: true, brightness: 150}
	a := New(&fakeControlPoint{}, nopLogger{})

	fields, err := a.ReadState(context.Background(), ep)
	if err != nil {
		t.Fatalf("ReadState() error = %v", err)
	}
	if fields.Power == nil || !*fields.Power {
		t.Error("power should be read")
	}
	if fields.Brightness == nil || *fields.Brightness != 100 {
		t.Errorf("brightness should be clamped to 100, got %v", fields.Brightness)
	}
}

func TestParseSSDPLocation(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\n" +
		"CACHE-CONTROL: max-age=86400\r\n" +
		"LOCATION: http://10.0.0.5:49153/setup.xml\r\n" +
		"ST: urn:Belkin:service:basicevent:1\r\n\r\n"
	if got := parseSSDPLocation([]byte(raw)); got != "http://10.0.0.5:49153/setup.xml" {
		t.Errorf("parseSSDPLocation() = %q", got)
	}
	if got := parseSSDPLocation([]byte("HTTP/1.1 200 OK\r\n\r\n")); got != "" {
		t.Errorf("parseSSDPLocation() = %q, want empty", got)
	}
}

func TestNewControlPointSearchWindow(t *testing.T) {
	if got := NewControlPoint(0).searchWindow; got != defaultSearchWindow {
		t.Errorf("zero window = %v, want default %v", got, defaultSearchWindow)
	}
	if got := NewControlPoint(10 * time.Second).searchWindow; got != 10*time.Second {
		t.Errorf("window = %v, want 10s", got)
	}
}
