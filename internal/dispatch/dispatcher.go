package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/openhearth/hearth-core/internal/backend"
	"github.com/openhearth/hearth-core/internal/device"
)

// Logger is the subset of logging.Logger the dispatcher uses.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Recorder receives an audit entry for every executed command, success
// or failure. Satisfied by audit.Repository; a noop is used when unset.
type Recorder interface {
	RecordCommand(ctx context.Context, entry CommandEntry)
}

// Metrics counts command outcomes. Satisfied by metrics.Collector.
type Metrics interface {
	CountCommand(kind string, outcome string)
}

type noopRecorder struct{}

func (noopRecorder) RecordCommand(context.Context, CommandEntry) {}

type noopMetrics struct{}

func (noopMetrics) CountCommand(string, string) {}

// CommandEntry describes one executed command for the audit trail.
type CommandEntry struct {
	DeviceID string
	Kind     device.CommandKind
	Value    int
	Outcome  string
	Error    string
	Issued   time.Time
}

// Dispatcher routes control commands to the owning backend adapter and
// folds confirmed results back into the registry.
//
// The registry is read before the backend call and written only after
// the adapter attests success; a failed command leaves the registry
// untouched. No backend I/O happens while holding registry state beyond
// the initial deep-copied read.
type Dispatcher struct {
	registry *device.Registry
	adapters map[device.Kind]backend.Adapter
	logger   Logger
	recorder Recorder
	metrics  Metrics
	now      func() time.Time
}

// New creates a dispatcher over the given adapters, keyed by kind.
func New(registry *device.Registry, adapters []backend.Adapter, logger Logger) *Dispatcher {
	byKind := make(map[device.Kind]backend.Adapter, len(adapters))
	for _, a := range adapters {
		byKind[a.Kind()] = a
	}
	return &Dispatcher{
		registry: registry,
		adapters: byKind,
		logger:   logger,
		recorder: noopRecorder{},
		metrics:  noopMetrics{},
		now:      time.Now,
	}
}

// SetRecorder wires the command audit trail. Call before serving.
func (d *Dispatcher) SetRecorder(r Recorder) {
	if r != nil {
		d.recorder = r
	}
}

// SetMetrics wires a metrics collector. Call before serving.
func (d *Dispatcher) SetMetrics(m Metrics) {
	if m != nil {
		d.metrics = m
	}
}

// Execute runs one command against one device and returns the updated
// record on success.
//
// Failures map to typed errors the API layer translates to status codes:
// device.ErrNotFound for unknown ids, backend.ErrUnsupported for
// capability mismatches, backend.ErrUnreachable and
// backend.ErrInvalidValue passed through from the adapter.
func (d *Dispatcher) Execute(ctx context.Context, id string, cmd device.Command) (*device.Record, error) {
	updated, err := d.execute(ctx, id, cmd)

	entry := CommandEntry{
		DeviceID: id,
		Kind:     cmd.Kind,
		Value:    cmd.Value,
		Outcome:  "ok",
		Issued:   d.now(),
	}
	if err != nil {
		entry.Outcome = "error"
		entry.Error = err.Error()
	}
	// The audit write must survive a caller that disconnects right after
	// the command ran; record with the cancellation stripped.
	d.recorder.RecordCommand(context.WithoutCancel(ctx), entry)
	d.metrics.CountCommand(string(cmd.Kind), entry.Outcome)

	return updated, err
}

func (d *Dispatcher) execute(ctx context.Context, id string, cmd device.Command) (*device.Record, error) {
	if !device.ValidKind(cmd.Kind) {
		return nil, fmt.Errorf("%w: unknown command kind %q", backend.ErrInvalidValue, cmd.Kind)
	}

	rec, err := d.registry.Get(id)
	if err != nil {
		return nil, err
	}

	if !rec.HasCapability(cmd.RequiredCapability()) {
		return nil, fmt.Errorf("%w: %s does not support %s",
			backend.ErrUnsupported, rec.ID, cmd.RequiredCapability())
	}

	adapter, ok := d.adapters[rec.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: backend %s is not enabled", backend.ErrUnsupported, rec.Kind)
	}

	req := d.buildRequest(rec, cmd, adapter.CouplesColor())

	confirmed, err := adapter.Apply(ctx, rec.Handle, req)
	if err != nil {
		d.logger.Warn("command failed at backend",
			"id", id,
			"kind", cmd.Kind,
			"backend", rec.Kind,
			"error", err,
		)
		return nil, err
	}

	// Only fields the adapter attested land in the registry. Command
	// merges bypass the discovery staleness guard: they carry current
	// user intent.
	if _, err := d.registry.Merge(id, confirmed, d.now(), device.SourceCommand); err != nil {
		return nil, fmt.Errorf("recording confirmed state: %w", err)
	}

	updated, err := d.registry.Get(id)
	if err != nil {
		return nil, err
	}

	d.logger.Debug("command applied",
		"id", id,
		"kind", cmd.Kind,
		"backend", rec.Kind,
	)
	return updated, nil
}

// buildRequest translates a command into the partial desired state the
// adapter applies.
//
// Toggle resolves against the record's last known power; a device whose
// power was never observed is treated as off and toggled on. Numeric
// values are clamped, never rejected. When the backend couples colour,
// a hue or saturation change carries the sibling's last known value so
// the adapter can write a complete tuple.
func (d *Dispatcher) buildRequest(rec *device.Record, cmd device.Command, couplesColor bool) backend.Request {
	var req backend.Request

	switch cmd.Kind {
	case device.CommandToggle:
		desired := !(rec.Power != nil && *rec.Power)
		req.Power = &desired

	case device.CommandSetBrightness:
		v := device.ClampBrightness(cmd.Value)
		req.Brightness = &v

	case device.CommandSetHue:
		v := device.ClampHue(cmd.Value)
		req.Hue = &v
		if couplesColor {
			sat := 0
			if rec.Saturation != nil {
				sat = *rec.Saturation
			}
			req.Saturation = &sat
		}

	case device.CommandSetSaturation:
		v := device.ClampSaturation(cmd.Value)
		req.Saturation = &v
		if couplesColor {
			hue := 0
			if rec.Hue != nil {
				hue = *rec.Hue
			}
			req.Hue = &hue
		}
	}

	return req
}
