package device

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func strPtr(s string) *string { return &s }
func intPtr(v int) *int       { return &v }
func boolPtr(v bool) *bool    { return &v }

// seedFields returns a typical discovery proposal for a colour-capable bulb.
func seedFields() Fields {
	return Fields{
		Kind:         KindLIFX,
		Name:         strPtr("Bedroom Lamp"),
		Model:        strPtr("LIFX A19"),
		Address:      strPtr("192.168.1.40"),
		Power:        boolPtr(false),
		Brightness:   intPtr(50),
		Hue:          intPtr(120),
		Saturation:   intPtr(80),
		Capabilities: []Capability{CapPower, CapBrightness, CapHue, CapSaturation},
	}
}

func TestMergeCreatesRecord(t *testing.T) {
	r := NewRegistry()
	epoch := time.Now()

	result, err := r.Merge("lifx-d073d5", seedFields(), epoch, SourceDiscovery)
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if result != MergeCreated {
		t.Errorf("Merge() result = %v, want MergeCreated", result)
	}

	rec, err := r.Get("lifx-d073d5")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if rec.Kind != KindLIFX {
		t.Errorf("Kind = %q, want %q", rec.Kind, KindLIFX)
	}
	if rec.Name != "Bedroom Lamp" {
		t.Errorf("Name = %q, want Bedroom Lamp", rec.Name)
	}
	if rec.Power == nil || *rec.Power {
		t.Errorf("Power = %v, want false", rec.Power)
	}
	if !rec.Epoch.Equal(epoch) {
		t.Errorf("Epoch = %v, want %v", rec.Epoch, epoch)
	}
}

func TestMergeInsertRequiresKind(t *testing.T) {
	r := NewRegistry()

	f := seedFields()
	f.Kind = ""
	if _, err := r.Merge("x", f, time.Now(), SourceDiscovery); !errors.Is(err, ErrMissingKind) {
		t.Errorf("Merge() error = %v, want ErrMissingKind", err)
	}
	if r.Count() != 0 {
		t.Errorf("Count() = %d, want 0", r.Count())
	}
}

func TestMergeEmptyID(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Merge("", seedFields(), time.Now(), SourceDiscovery); !errors.Is(err, ErrInvalidID) {
		t.Errorf("Merge() error = %v, want ErrInvalidID", err)
	}
}

// Monotonic-epoch law: merges with a strictly smaller epoch never change
// stored state; ties are accepted (idempotent re-application).
func TestMergeStalenessGuard(t *testing.T) {
	base := time.Now()

	tests := []struct {
		name       string
		firstEpoch time.Time
		nextEpoch  time.Time
		wantResult MergeResult
		wantPower  bool
	}{
		{
			name:       "newer epoch applies",
			firstEpoch: base,
			nextEpoch:  base.Add(time.Second),
			wantResult: MergeUpdated,
			wantPower:  true,
		},
		{
			name:       "equal epoch applies",
			firstEpoch: base,
			nextEpoch:  base,
			wantResult: MergeUpdated,
			wantPower:  true,
		},
		{
			name:       "older epoch ignored",
			firstEpoch: base,
			nextEpoch:  base.Add(-time.Second),
			wantResult: MergeIgnoredStale,
			wantPower:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			if _, err := r.Merge("dev-1", seedFields(), tt.firstEpoch, SourceDiscovery); err != nil {
				t.Fatalf("seed Merge() error = %v", err)
			}

			result, err := r.Merge("dev-1", Fields{Power: boolPtr(true)}, tt.nextEpoch, SourceDiscovery)
			if err != nil {
				t.Fatalf("Merge() error = %v", err)
			}
			if result != tt.wantResult {
				t.Errorf("result = %v, want %v", result, tt.wantResult)
			}

			rec, _ := r.Get("dev-1")
			if *rec.Power != tt.wantPower {
				t.Errorf("Power = %v, want %v", *rec.Power, tt.wantPower)
			}
		})
	}
}

// Scenario from the concurrency model: discovery at epoch 100 observes
// power=false, a command merges power=true at epoch 150, then a late
// discovery result from epoch 90 arrives. Final state must be power=true.
func TestLateDiscoveryNeverOverwritesCommand(t *testing.T) {
	r := NewRegistry()
	base := time.Now()

	if _, err := r.Merge("x", seedFields(), base.Add(100*time.Millisecond), SourceDiscovery); err != nil {
		t.Fatalf("discovery merge error = %v", err)
	}

	result, err := r.Merge("x", Fields{Power: boolPtr(true)}, base.Add(150*time.Millisecond), SourceCommand)
	if err != nil || result != MergeUpdated {
		t.Fatalf("command merge = (%v, %v), want (MergeUpdated, nil)", result, err)
	}

	result, err = r.Merge("x", Fields{Power: boolPtr(false)}, base.Add(90*time.Millisecond), SourceDiscovery)
	if err != nil {
		t.Fatalf("late merge error = %v", err)
	}
	if result != MergeIgnoredStale {
		t.Errorf("late merge result = %v, want MergeIgnoredStale", result)
	}

	rec, _ := r.Get("x")
	if rec.Power == nil || !*rec.Power {
		t.Errorf("final Power = %v, want true", rec.Power)
	}
}

// Commands always win, even when the record epoch is somehow ahead of the
// command's timestamp (e.g. clock adjustment between rounds).
func TestCommandMergeBypassesGuard(t *testing.T) {
	r := NewRegistry()
	base := time.Now()

	if _, err := r.Merge("x", seedFields(), base.Add(time.Hour), SourceDiscovery); err != nil {
		t.Fatalf("seed Merge() error = %v", err)
	}

	result, err := r.Merge("x", Fields{Power: boolPtr(true)}, base, SourceCommand)
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if result != MergeUpdated {
		t.Errorf("result = %v, want MergeUpdated", result)
	}

	rec, _ := r.Get("x")
	if !*rec.Power {
		t.Error("command merge did not apply")
	}
	// Epoch stays monotonic: the future discovery epoch is retained.
	if !rec.Epoch.Equal(base.Add(time.Hour)) {
		t.Errorf("Epoch = %v, want %v", rec.Epoch, base.Add(time.Hour))
	}
}

// Clamping is total: out-of-range values are stored at the boundary.
func TestMergeClampsNumericFields(t *testing.T) {
	tests := []struct {
		name           string
		fields         Fields
		wantBrightness *int
		wantHue        *int
		wantSaturation *int
	}{
		{
			name:           "brightness above range",
			fields:         Fields{Brightness: intPtr(150)},
			wantBrightness: intPtr(100),
		},
		{
			name:           "brightness below range",
			fields:         Fields{Brightness: intPtr(-5)},
			wantBrightness: intPtr(0),
		},
		{
			name:    "hue above range",
			fields:  Fields{Hue: intPtr(400)},
			wantHue: intPtr(360),
		},
		{
			name:           "saturation below range",
			fields:         Fields{Saturation: intPtr(-1)},
			wantSaturation: intPtr(0),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			epoch := time.Now()
			if _, err := r.Merge("d", seedFields(), epoch, SourceDiscovery); err != nil {
				t.Fatalf("seed Merge() error = %v", err)
			}
			if _, err := r.Merge("d", tt.fields, epoch.Add(time.Second), SourceDiscovery); err != nil {
				t.Fatalf("Merge() error = %v", err)
			}

			rec, _ := r.Get("d")
			if tt.wantBrightness != nil && *rec.Brightness != *tt.wantBrightness {
				t.Errorf("Brightness = %d, want %d", *rec.Brightness, *tt.wantBrightness)
			}
			if tt.wantHue != nil && *rec.Hue != *tt.wantHue {
				t.Errorf("Hue = %d, want %d", *rec.Hue, *tt.wantHue)
			}
			if tt.wantSaturation != nil && *rec.Saturation != *tt.wantSaturation {
				t.Errorf("Saturation = %d, want %d", *rec.Saturation, *tt.wantSaturation)
			}
		})
	}
}

// A merge never creates an optional field the capability set lacks.
func TestMergeRespectsCapabilities(t *testing.T) {
	r := NewRegistry()
	epoch := time.Now()

	// Plain on/off plug: no brightness/hue/saturation capabilities.
	plug := Fields{
		Kind:         KindWeMo,
		Name:         strPtr("Kettle Plug"),
		Power:        boolPtr(true),
		Capabilities: []Capability{CapPower},
	}
	if _, err := r.Merge("wemo-1", plug, epoch, SourceDiscovery); err != nil {
		t.Fatalf("seed Merge() error = %v", err)
	}

	if _, err := r.Merge("wemo-1", Fields{Brightness: intPtr(40), Hue: intPtr(10)}, epoch.Add(time.Second), SourceDiscovery); err != nil {
		t.Fatalf("Merge() error = %v", err)
	}

	rec, _ := r.Get("wemo-1")
	if rec.Brightness != nil {
		t.Errorf("Brightness = %v, want nil (capability absent)", *rec.Brightness)
	}
	if rec.Hue != nil {
		t.Errorf("Hue = %v, want nil (capability absent)", *rec.Hue)
	}
}

// Kind is immutable after creation: colliding ids from another backend merge
// into the same record without reclassifying it.
func TestMergeKeepsOriginalKind(t *testing.T) {
	r := NewRegistry()
	epoch := time.Now()

	if _, err := r.Merge("shared", seedFields(), epoch, SourceDiscovery); err != nil {
		t.Fatalf("seed Merge() error = %v", err)
	}
	if _, err := r.Merge("shared", Fields{Kind: KindWeMo, Power: boolPtr(true)}, epoch.Add(time.Second), SourceDiscovery); err != nil {
		t.Fatalf("Merge() error = %v", err)
	}

	rec, _ := r.Get("shared")
	if rec.Kind != KindLIFX {
		t.Errorf("Kind = %q, want %q (original kind retained)", rec.Kind, KindLIFX)
	}
	if !*rec.Power {
		t.Error("fields from the colliding merge were not applied")
	}
}

func TestGetNotFound(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestGetReturnsDeepCopy(t *testing.T) {
	r := NewRegistry()
	epoch := time.Now()
	if _, err := r.Merge("d", seedFields(), epoch, SourceDiscovery); err != nil {
		t.Fatalf("Merge() error = %v", err)
	}

	rec, _ := r.Get("d")
	*rec.Brightness = 5
	rec.Name = "mutated"

	again, _ := r.Get("d")
	if *again.Brightness != 50 || again.Name != "Bedroom Lamp" {
		t.Error("mutation of returned record leaked into registry state")
	}
}

// Snapshot is idempotent and side-effect-free: two snapshots with no
// intervening merge are identical.
func TestSnapshotIdempotent(t *testing.T) {
	r := NewRegistry()
	epoch := time.Now()

	for i := 0; i < 5; i++ {
		f := seedFields()
		f.Name = strPtr(fmt.Sprintf("Lamp %d", i))
		if _, err := r.Merge(fmt.Sprintf("lifx-%d", i), f, epoch, SourceDiscovery); err != nil {
			t.Fatalf("Merge() error = %v", err)
		}
	}

	a := r.Snapshot()
	b := r.Snapshot()
	if len(a) != len(b) {
		t.Fatalf("snapshot lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].ID != b[i].ID || a[i].Name != b[i].Name || *a[i].Brightness != *b[i].Brightness {
			t.Errorf("snapshot entry %d differs: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestSnapshotOrdering(t *testing.T) {
	r := NewRegistry()
	epoch := time.Now()

	add := func(id string, kind Kind, name string) {
		t.Helper()
		f := Fields{Kind: kind, Name: strPtr(name), Capabilities: []Capability{CapPower}}
		if _, err := r.Merge(id, f, epoch, SourceDiscovery); err != nil {
			t.Fatalf("Merge(%s) error = %v", id, err)
		}
	}

	add("w1", KindWeMo, "zeta plug")
	add("l1", KindLIFX, "Beta Bulb")
	add("w2", KindWeMo, "Alpha Plug")
	add("l2", KindLIFX, "alpha bulb")

	snap := r.Snapshot()
	var got []string
	for _, rec := range snap {
		got = append(got, rec.ID)
	}

	// Ordered by kind (lifx < wemo), then case-insensitive name.
	want := []string{"l2", "l1", "w2", "w1"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("snapshot order = %v, want %v", got, want)
		}
	}
}

func TestObserversReceiveAcceptedMerges(t *testing.T) {
	r := NewRegistry()
	epoch := time.Now()

	var mu sync.Mutex
	var updates []Update
	r.Observe(func(u Update) {
		mu.Lock()
		updates = append(updates, u)
		mu.Unlock()
	})

	if _, err := r.Merge("d", seedFields(), epoch, SourceDiscovery); err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if _, err := r.Merge("d", Fields{Power: boolPtr(true)}, epoch.Add(time.Second), SourceCommand); err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	// Stale merge must not notify.
	if _, err := r.Merge("d", Fields{Power: boolPtr(false)}, epoch.Add(-time.Second), SourceDiscovery); err != nil {
		t.Fatalf("Merge() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(updates) != 2 {
		t.Fatalf("observer saw %d updates, want 2", len(updates))
	}
	if updates[0].Result != MergeCreated || updates[1].Source != SourceCommand {
		t.Errorf("unexpected updates: %+v", updates)
	}
}

// Concurrent merges and snapshots must not race or lose the newest write.
func TestConcurrentMergeAndSnapshot(t *testing.T) {
	r := NewRegistry()
	base := time.Now()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				f := Fields{
					Kind:         KindLIFX,
					Power:        boolPtr(i%2 == 0),
					Brightness:   intPtr(i),
					Capabilities: []Capability{CapPower, CapBrightness},
				}
				epoch := base.Add(time.Duration(i) * time.Millisecond)
				if _, err := r.Merge(fmt.Sprintf("dev-%d", g%4), f, epoch, SourceDiscovery); err != nil {
					t.Errorf("Merge() error = %v", err)
					return
				}
				_ = r.Snapshot()
			}
		}(g)
	}
	wg.Wait()

	if r.Count() != 4 {
		t.Errorf("Count() = %d, want 4", r.Count())
	}
	for _, rec := range r.Snapshot() {
		// Highest epoch wins for every record.
		if !rec.Epoch.Equal(base.Add(99 * time.Millisecond)) {
			t.Errorf("record %s epoch = %v, want %v", rec.ID, rec.Epoch, base.Add(99*time.Millisecond))
		}
	}
}

func TestClampHelpers(t *testing.T) {
	if got := ClampBrightness(150); got != 100 {
		t.Errorf("ClampBrightness(150) = %d, want 100", got)
	}
	if got := ClampBrightness(-5); got != 0 {
		t.Errorf("ClampBrightness(-5) = %d, want 0", got)
	}
	if got := ClampHue(400); got != 360 {
		t.Errorf("ClampHue(400) = %d, want 360", got)
	}
	if got := ClampSaturation(101); got != 100 {
		t.Errorf("ClampSaturation(101) = %d, want 100", got)
	}
	if got := ClampHue(180); got != 180 {
		t.Errorf("ClampHue(180) = %d, want 180", got)
	}
}
