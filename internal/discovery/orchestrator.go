package discovery

import (
	"context"
	"sync"
	"time"

	"github.com/openhearth/hearth-core/internal/backend"
	"github.com/openhearth/hearth-core/internal/device"
)

// Logger is the subset of logging.Logger the orchestrator uses.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Metrics receives discovery round observations. Satisfied by
// metrics.Collector; a nil-safe noop is used when unset.
type Metrics interface {
	ObserveRound(duration time.Duration, devices int)
	CountMerge(result string)
	CountBackendFailure(kind string)
}

type noopMetrics struct{}

func (noopMetrics) ObserveRound(time.Duration, int) {}
func (noopMetrics) CountMerge(string)               {}
func (noopMetrics) CountBackendFailure(string)      {}

// Orchestrator runs the periodic discovery loop.
//
// Every round it fans out one goroutine per enabled backend, bounds each
// with the per-backend timeout, waits for all of them, and merges the
// combined results into the registry stamped with the round's epoch. The
// epoch is captured once at round start, so results from a slow round
// that completes after a newer one are dropped by the registry's
// staleness guard rather than clobbering fresher state.
type Orchestrator struct {
	registry *device.Registry
	adapters []backend.Adapter

	interval       time.Duration
	backendTimeout time.Duration

	logger  Logger
	metrics Metrics

	refreshCh chan struct{}
	now       func() time.Time
}

// New creates an orchestrator over the given adapters.
func New(registry *device.Registry, adapters []backend.Adapter, interval, backendTimeout time.Duration, logger Logger) *Orchestrator {
	return &Orchestrator{
		registry:       registry,
		adapters:       adapters,
		interval:       interval,
		backendTimeout: backendTimeout,
		logger:         logger,
		metrics:        noopMetrics{},
		refreshCh:      make(chan struct{}, 1),
		now:            time.Now,
	}
}

// SetMetrics wires a metrics collector. Call before Run.
func (o *Orchestrator) SetMetrics(m Metrics) {
	if m != nil {
		o.metrics = m
	}
}

// Run executes discovery rounds until ctx is cancelled. The first round
// starts immediately; subsequent rounds follow the configured interval.
// An on-demand refresh resets the interval timer.
//
// Run blocks; callers start it on its own goroutine.
func (o *Orchestrator) Run(ctx context.Context) {
	o.logger.Info("discovery loop starting",
		"backends", len(o.adapters),
		"interval", o.interval,
		"backend_timeout", o.backendTimeout,
	)

	timer := time.NewTimer(0) // fire the first round immediately
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			o.logger.Info("discovery loop stopping", "reason", ctx.Err())
			return
		case <-timer.C:
			o.RunRound(ctx)
			timer.Reset(o.interval)
		case <-o.refreshCh:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			o.RunRound(ctx)
			timer.Reset(o.interval)
		}
	}
}

// TriggerRefresh requests an immediate discovery round and resets the
// interval timer. Returns false if a refresh was already pending; the
// request coalesces with it.
func (o *Orchestrator) TriggerRefresh() bool {
	select {
	case o.refreshCh <- struct{}{}:
		return true
	default:
		return false
	}
}

// backendResult is one backend's contribution to a round.
type backendResult struct {
	kind    device.Kind
	devices []backend.Discovery
	err     error
}

// RunRound performs a single discovery round across all backends.
func (o *Orchestrator) RunRound(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	epoch := o.now()
	started := epoch

	results := make(chan backendResult, len(o.adapters))
	var wg sync.WaitGroup

	for _, a := range o.adapters {
		wg.Add(1)
		go func(a backend.Adapter) {
			defer wg.Done()

			bctx, cancel := context.WithTimeout(ctx, o.backendTimeout)
			defer cancel()

			devices, err := a.Discover(bctx)
			results <- backendResult{kind: a.Kind(), devices: devices, err: err}
		}(a)
	}

	wg.Wait()
	close(results)

	var merged, created, stale, failures int
	for res := range results {
		if res.err != nil {
			failures++
			o.metrics.CountBackendFailure(string(res.kind))
			o.logger.Warn("backend discovery failed",
				"backend", res.kind,
				"error", res.err,
			)
			continue
		}

		for _, d := range res.devices {
			result, err := o.registry.Merge(d.ID, d.Fields, epoch, device.SourceDiscovery)
			if err != nil {
				o.logger.Warn("discovery merge rejected",
					"backend", res.kind,
					"id", d.ID,
					"error", err,
				)
				continue
			}
			o.metrics.CountMerge(result.String())
			switch result {
			case device.MergeCreated:
				created++
				merged++
			case device.MergeUpdated:
				merged++
			case device.MergeIgnoredStale:
				stale++
			}
		}
	}

	duration := o.now().Sub(started)
	o.metrics.ObserveRound(duration, merged)

	o.logger.Debug("discovery round complete",
		"duration", duration,
		"merged", merged,
		"created", created,
		"stale_dropped", stale,
		"backend_failures", failures,
	)
}
