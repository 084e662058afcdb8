package device

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Source identifies where a merge originated.
type Source int

// Merge sources.
const (
	// SourceDiscovery marks merges produced by a discovery round.
	// They are subject to the epoch staleness guard.
	SourceDiscovery Source = iota

	// SourceCommand marks merges produced by a confirmed command.
	// They always win over any discovery epoch: they carry the most
	// recent user intent.
	SourceCommand
)

// MergeResult describes the outcome of a merge operation.
type MergeResult int

// Merge outcomes.
const (
	// MergeCreated means a new record was inserted.
	MergeCreated MergeResult = iota

	// MergeUpdated means an existing record was modified.
	MergeUpdated

	// MergeIgnoredStale means a discovery result older than the record's
	// current epoch was dropped. This is a normal condition, not an error.
	MergeIgnoredStale
)

// String returns a human-readable merge result for logs and metrics.
func (m MergeResult) String() string {
	switch m {
	case MergeCreated:
		return "created"
	case MergeUpdated:
		return "updated"
	case MergeIgnoredStale:
		return "ignored_stale"
	default:
		return "unknown"
	}
}

// Update is delivered to registry observers after every accepted merge.
type Update struct {
	Record Record
	Result MergeResult
	Source Source
}

// Observer receives accepted registry updates.
//
// Observers run on the merging goroutine, outside the registry lock,
// with a deep-copied record. They must not call back into Merge.
type Observer func(Update)

// Registry is the shared keyed store of normalized device records.
//
// All records live in a single map protected by one exclusive lock.
// Mutating operations hold the lock only for the map/field writes
// themselves; backend I/O never happens inside the critical section.
//
// All public methods are thread-safe.
type Registry struct {
	mu      sync.Mutex
	records map[string]*Record

	obsMu     sync.RWMutex
	observers []Observer

	logger Logger
}

// NewRegistry creates an empty device registry.
func NewRegistry() *Registry {
	return &Registry{
		records: make(map[string]*Record),
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Observe registers a callback invoked after every accepted merge.
//
// Registration should happen during startup, before discovery begins.
func (r *Registry) Observe(fn Observer) {
	r.obsMu.Lock()
	r.observers = append(r.observers, fn)
	r.obsMu.Unlock()
}

// Get retrieves a device record by ID.
// Returns ErrNotFound if the device does not exist.
// The returned record is a deep copy; callers can safely modify it.
func (r *Registry) Get(id string) (*Record, error) {
	r.mu.Lock()
	rec, ok := r.records[id]
	if !ok {
		r.mu.Unlock()
		return nil, ErrNotFound
	}
	cpy := rec.DeepCopy()
	r.mu.Unlock()

	return cpy, nil
}

// Snapshot returns an immutable point-in-time copy of every record,
// ordered by backend kind, then case-insensitive name.
//
// The copy is taken under the lock; sorting happens after release so
// concurrent merges are blocked only for the duration of the copy.
func (r *Registry) Snapshot() []Record {
	r.mu.Lock()
	records := make([]Record, 0, len(r.records))
	for _, rec := range r.records {
		records = append(records, *rec.DeepCopy())
	}
	r.mu.Unlock()

	sort.Slice(records, func(i, j int) bool {
		if records[i].Kind != records[j].Kind {
			return records[i].Kind < records[j].Kind
		}
		ni := strings.ToLower(records[i].Name)
		nj := strings.ToLower(records[j].Name)
		if ni != nj {
			return ni < nj
		}
		return records[i].ID < records[j].ID
	})

	return records
}

// Count returns the number of records currently held.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// Stats returns registry statistics for monitoring.
type Stats struct {
	TotalDevices int          `json:"total_devices"`
	ByKind       map[Kind]int `json:"by_kind"`
}

// GetStats returns current registry statistics.
func (r *Registry) GetStats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := Stats{
		TotalDevices: len(r.records),
		ByKind:       make(map[Kind]int),
	}
	for _, rec := range r.records {
		stats.ByKind[rec.Kind]++
	}
	return stats
}

// Merge applies a partial record to the registry.
//
// If no record with the given id exists, a new one is inserted (fields.Kind
// is required for inserts). If one exists, only the fields present in the
// proposal are overwritten, subject to the staleness guard: a discovery
// merge whose epoch is older than the record's last accepted epoch is
// dropped and reported as MergeIgnoredStale. Command merges always apply.
//
// Numeric fields are clamped to their documented range before storage, and
// optional fields are written only when the record's capability set allows
// them; a proposal never silently creates an unsupported field.
func (r *Registry) Merge(id string, fields Fields, epoch time.Time, src Source) (MergeResult, error) {
	if id == "" {
		return MergeIgnoredStale, ErrInvalidID
	}

	r.mu.Lock()

	rec, ok := r.records[id]
	if !ok {
		if fields.Kind == "" {
			r.mu.Unlock()
			return MergeIgnoredStale, ErrMissingKind
		}
		rec = &Record{
			ID:           id,
			Kind:         fields.Kind,
			Capabilities: append([]Capability(nil), fields.Capabilities...),
		}
		applyFields(rec, fields, epoch)
		r.records[id] = rec
		cpy := rec.DeepCopy()
		r.mu.Unlock()

		r.logger.Debug("device record created", "id", id, "kind", fields.Kind)
		r.notify(Update{Record: *cpy, Result: MergeCreated, Source: src})
		return MergeCreated, nil
	}

	// Staleness guard: late-arriving discovery results must not overwrite
	// newer state. Commands carry current user intent and always apply.
	if src == SourceDiscovery && epoch.Before(rec.Epoch) {
		r.mu.Unlock()
		r.logger.Debug("stale discovery result ignored",
			"id", id,
			"proposed_epoch", epoch,
			"record_epoch", rec.Epoch,
		)
		return MergeIgnoredStale, nil
	}

	if fields.Kind != "" && fields.Kind != rec.Kind {
		// Hardware-derived ids collide only when hardware identity does;
		// the record keeps its original kind.
		r.logger.Warn("merge proposed conflicting backend kind",
			"id", id,
			"record_kind", rec.Kind,
			"proposed_kind", fields.Kind,
		)
	}

	applyFields(rec, fields, epoch)
	cpy := rec.DeepCopy()
	r.mu.Unlock()

	r.notify(Update{Record: *cpy, Result: MergeUpdated, Source: src})
	return MergeUpdated, nil
}

// applyFields writes the present fields into rec. Caller holds the lock.
func applyFields(rec *Record, fields Fields, epoch time.Time) {
	if fields.Name != nil {
		rec.Name = *fields.Name
	}
	if fields.Model != nil {
		rec.Model = *fields.Model
	}
	if fields.Address != nil {
		rec.Address = *fields.Address
	}
	if fields.Handle != nil {
		rec.Handle = fields.Handle
	}
	if fields.Power != nil {
		v := *fields.Power
		rec.Power = &v
	}
	if fields.Brightness != nil && rec.HasCapability(CapBrightness) {
		v := ClampBrightness(*fields.Brightness)
		rec.Brightness = &v
	}
	if fields.Hue != nil && rec.HasCapability(CapHue) {
		v := ClampHue(*fields.Hue)
		rec.Hue = &v
	}
	if fields.Saturation != nil && rec.HasCapability(CapSaturation) {
		v := ClampSaturation(*fields.Saturation)
		rec.Saturation = &v
	}

	rec.LastSeen = epoch
	if epoch.After(rec.Epoch) {
		rec.Epoch = epoch
	}
}

// notify delivers an update to all observers, outside the registry lock.
func (r *Registry) notify(u Update) {
	r.obsMu.RLock()
	observers := r.observers
	r.obsMu.RUnlock()

	for _, fn := range observers {
		fn(u)
	}
}
