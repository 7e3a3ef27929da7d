package scan

import (
	"context"
	"errors"
	"net/netip"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/muurk/shellyscan/internal/hostctx"
	"github.com/muurk/shellyscan/internal/identify"
	"github.com/muurk/shellyscan/internal/iprange"
	"github.com/muurk/shellyscan/internal/probe"
)

// fakeProber answers from a table of bodies; every other address times out.
type fakeProber struct {
	bodies map[string]string
	delay  time.Duration

	mu       sync.Mutex
	probed   []string
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (f *fakeProber) Probe(ctx context.Context, t probe.Target) probe.Outcome {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		old := f.maxSeen.Load()
		if n <= old || f.maxSeen.CompareAndSwap(old, n) {
			break
		}
	}

	f.mu.Lock()
	f.probed = append(f.probed, t.Addr.String())
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	body, ok := f.bodies[t.Addr.String()]
	if !ok {
		return probe.Outcome{Target: t, Kind: probe.KindTimeout, Err: context.DeadlineExceeded}
	}
	return probe.Outcome{Target: t, Kind: probe.KindReply, Status: 200, Body: []byte(body)}
}

func (f *fakeProber) probedAddrs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := slices.Clone(f.probed)
	slices.Sort(out)
	return out
}

func mustRanges(t *testing.T, s string) []iprange.AddressRange {
	t.Helper()
	r, err := iprange.ParseList(s)
	if err != nil {
		t.Fatalf("ParseList(%q) error = %v", s, err)
	}
	return r
}

func TestSession_FindsSingleDevice(t *testing.T) {
	fp := &fakeProber{bodies: map[string]string{
		"10.0.0.1": `{"id":"shelly-abc","name":"plug1"}`,
	}}

	s, err := NewSession(Config{Ranges: mustRanges(t, "10.0.0.0-10.0.0.3")}, WithProber(fp))
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}

	result, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []Device{{Name: "plug1", Addr: netip.MustParseAddr("10.0.0.1")}}
	if got := result.Devices(); !slices.Equal(got, want) {
		t.Errorf("Devices() = %v, want %v", got, want)
	}
	if s.State() != StateDone {
		t.Errorf("State() = %v, want done", s.State())
	}

	wantProbed := []string{"10.0.0.0", "10.0.0.1", "10.0.0.2", "10.0.0.3"}
	if got := fp.probedAddrs(); !slices.Equal(got, wantProbed) {
		t.Errorf("probed = %v, want %v", got, wantProbed)
	}

	stats := result.Stats
	if stats.Targets != 4 || stats.Probed != 4 || stats.Matches != 1 {
		t.Errorf("Stats = %+v, want 4 targets, 4 probed, 1 match", stats)
	}
	if stats.Workers != 4 {
		t.Errorf("Workers = %d, want 4 (fewer targets than the ceiling)", stats.Workers)
	}
	if stats.Kinds[probe.KindTimeout] != 3 {
		t.Errorf("timeouts = %d, want 3", stats.Kinds[probe.KindTimeout])
	}
}

func TestSession_NonMatchesAreNotErrors(t *testing.T) {
	fp := &fakeProber{bodies: map[string]string{
		"10.0.0.0": `{}`,
		"10.0.0.1": `{"id":42}`,
		"10.0.0.2": `not json`,
		"10.0.0.3": `{"id":"tasmota"}`,
	}}

	s, _ := NewSession(Config{Ranges: mustRanges(t, "10.0.0.0-10.0.0.3")}, WithProber(fp))
	result, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(result.Devices()) != 0 {
		t.Errorf("Devices() = %v, want none", result.Devices())
	}
	v := result.Stats.Verdicts
	if v[identify.MissingID] != 2 || v[identify.Undecodable] != 1 || v[identify.WrongFamily] != 1 {
		t.Errorf("Verdicts = %v", v)
	}
}

func TestSession_ConcurrencyCeiling(t *testing.T) {
	fp := &fakeProber{delay: 5 * time.Millisecond}

	s, _ := NewSession(Config{
		Ranges:      mustRanges(t, "10.0.0.0-10.0.0.255"),
		Concurrency: 8,
	}, WithProber(fp))

	result, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if peak := fp.maxSeen.Load(); peak > 8 {
		t.Errorf("max in-flight = %d, want <= 8", peak)
	}
	if result.Stats.Workers != 8 {
		t.Errorf("Workers = %d, want 8", result.Stats.Workers)
	}
	if result.Stats.Probed != 256 {
		t.Errorf("Probed = %d, want 256", result.Stats.Probed)
	}
	if len(fp.probedAddrs()) != 256 {
		t.Errorf("distinct probes = %d, want 256", len(fp.probedAddrs()))
	}
}

func TestSession_LargeScanIsFatal(t *testing.T) {
	fp := &fakeProber{}
	s, _ := NewSession(Config{Ranges: mustRanges(t, "10.0.0.0-10.255.255.255")}, WithProber(fp))

	result, err := s.Run(context.Background())
	if result != nil {
		t.Error("Run() result should be nil on fatal error")
	}
	var rangeErr *iprange.InvalidRangeError
	if !errors.As(err, &rangeErr) || !errors.Is(err, iprange.ErrLargeScan) {
		t.Fatalf("Run() error = %v, want InvalidRangeError(ErrLargeScan)", err)
	}
	if s.State() != StateFailed {
		t.Errorf("State() = %v, want failed", s.State())
	}
	if len(fp.probedAddrs()) != 0 {
		t.Error("nothing should be probed after a fatal error")
	}
}

func TestSession_HostContext(t *testing.T) {
	resolver := func(context.Context) (*hostctx.Context, error) {
		return &hostctx.Context{
			Interface: "eth0",
			Addr:      netip.MustParseAddr("192.168.7.10"),
			Prefix:    netip.MustParsePrefix("192.168.7.0/30"),
			Broadcast: netip.MustParseAddr("192.168.7.3"),
		}, nil
	}
	fp := &fakeProber{bodies: map[string]string{
		"192.168.7.2": `{"id":"shellyplus1-1","name":"porch"}`,
	}}

	s, _ := NewSession(Config{}, WithProber(fp), WithHostResolver(resolver))
	result, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Stats.Targets != 4 {
		t.Errorf("Targets = %d, want 4", result.Stats.Targets)
	}
	if result.Host == nil || result.Host.Interface != "eth0" {
		t.Errorf("Host = %v, want eth0 context", result.Host)
	}
	if got := result.Devices(); len(got) != 1 || got[0].Name != "porch" {
		t.Errorf("Devices() = %v", got)
	}
}

func TestSession_HostContextFailures(t *testing.T) {
	tests := []struct {
		name       string
		resolver   HostResolver
		allowLarge bool
		check      func(error) bool
	}{
		{
			name: "resolve error",
			resolver: func(context.Context) (*hostctx.Context, error) {
				return nil, hostctx.ErrNoRoute
			},
			check: func(err error) bool {
				var hcErr *HostContextError
				return errors.As(err, &hcErr) && errors.Is(err, hostctx.ErrNoRoute)
			},
		},
		{
			name: "slash 16 without override",
			resolver: func(context.Context) (*hostctx.Context, error) {
				return &hostctx.Context{
					Addr:      netip.MustParseAddr("10.1.2.3"),
					Prefix:    netip.MustParsePrefix("10.1.0.0/16"),
					Broadcast: netip.MustParseAddr("10.1.255.255"),
				}, nil
			},
			check: func(err error) bool { return errors.Is(err, iprange.ErrLargeScan) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := NewSession(Config{AllowLarge: tt.allowLarge}, WithProber(&fakeProber{}), WithHostResolver(tt.resolver))
			_, err := s.Run(context.Background())
			if !tt.check(err) {
				t.Errorf("Run() error = %v", err)
			}
			if s.State() != StateFailed {
				t.Errorf("State() = %v, want failed", s.State())
			}
		})
	}
}

func TestSession_ExtraTargets(t *testing.T) {
	fp := &fakeProber{bodies: map[string]string{
		"192.168.1.50": `{"id":"shellyplug-1","name":"lamp"}`,
	}}

	s, _ := NewSession(Config{
		Ranges: mustRanges(t, "10.0.0.0-10.0.0.1"),
		Extra: []netip.Addr{
			netip.MustParseAddr("10.0.0.1"), // already in range
			netip.MustParseAddr("192.168.1.50"),
			netip.MustParseAddr("192.168.1.50"), // duplicate
			netip.MustParseAddr("fe80::1"),
		},
	}, WithProber(fp))

	result, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []string{"10.0.0.0", "10.0.0.1", "192.168.1.50"}
	if got := fp.probedAddrs(); !slices.Equal(got, want) {
		t.Errorf("probed = %v, want %v", got, want)
	}
	if len(result.Devices()) != 1 {
		t.Errorf("Devices() = %v, want lamp", result.Devices())
	}
}

func TestSession_OverlappingRangesProbeOnce(t *testing.T) {
	fp := &fakeProber{bodies: map[string]string{
		"10.0.0.2": `{"id":"shelly1-1","name":"hall"}`,
	}}

	s, _ := NewSession(Config{Ranges: mustRanges(t, "10.0.0.0-10.0.0.3,10.0.0.2-10.0.0.5")}, WithProber(fp))
	result, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []string{"10.0.0.0", "10.0.0.1", "10.0.0.2", "10.0.0.3", "10.0.0.4", "10.0.0.5"}
	if got := fp.probedAddrs(); !slices.Equal(got, want) {
		t.Errorf("probed = %v, want %v", got, want)
	}
	if result.Stats.Targets != 6 || result.Stats.Probed != 6 {
		t.Errorf("Stats = %+v, want 6 targets and 6 probed", result.Stats)
	}
	if len(result.Devices()) != 1 {
		t.Errorf("Devices() = %v, want hall once", result.Devices())
	}
}

func TestSession_SkipVendor(t *testing.T) {
	fp := &fakeProber{bodies: map[string]string{
		"10.0.0.1": `{"id":"shellyplus1-a8032ab12345","name":"porch","mac":"A8032AB12345"}`,
	}}

	s, _ := NewSession(Config{Ranges: mustRanges(t, "10.0.0.1"), SkipVendor: true}, WithProber(fp))
	result, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(result.Entries) != 1 {
		t.Fatalf("Entries = %v, want porch", result.Entries)
	}
	id := result.Entries[0].Identification
	if id.MAC != "A8:03:2A:B1:23:45" || id.Vendor != "" {
		t.Errorf("MAC = %q, Vendor = %q, want the MAC without a vendor", id.MAC, id.Vendor)
	}
}

func TestSession_RunTwice(t *testing.T) {
	s, _ := NewSession(Config{Ranges: mustRanges(t, "10.0.0.1")}, WithProber(&fakeProber{}))
	if _, err := s.Run(context.Background()); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	if _, err := s.Run(context.Background()); !errors.Is(err, ErrSessionUsed) {
		t.Errorf("second Run() error = %v, want ErrSessionUsed", err)
	}
}

func TestSession_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fp := &fakeProber{delay: 2 * time.Millisecond}

	progress := make(chan Progress, 1024)
	s, _ := NewSession(Config{
		Ranges:      mustRanges(t, "10.0.0.0-10.0.3.255"),
		Concurrency: 4,
	}, WithProber(fp), WithProgress(progress))

	go func() {
		for p := range progress {
			if p.Done >= 20 {
				cancel()
			}
		}
	}()

	result, err := s.Run(ctx)
	close(progress)

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if result == nil {
		t.Fatal("Run() should return the partial result")
	}
	if result.Stats.Probed >= 1024 {
		t.Errorf("Probed = %d, want fewer than 1024 after cancellation", result.Stats.Probed)
	}
	if s.State() != StateDone {
		t.Errorf("State() = %v, want done", s.State())
	}
}

func TestSession_ProgressStates(t *testing.T) {
	progress := make(chan Progress, 64)
	s, _ := NewSession(Config{Ranges: mustRanges(t, "10.0.0.0-10.0.0.1")},
		WithProber(&fakeProber{}), WithProgress(progress))

	if _, err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	close(progress)

	var states []State
	var last Progress
	for p := range progress {
		if len(states) == 0 || states[len(states)-1] != p.State {
			states = append(states, p.State)
		}
		if p.State == StateRunning && p.Done > 0 {
			last = p
		}
	}

	want := []State{StateResolvingHostContext, StateExpandingRanges, StateRunning, StateDrained, StateDone}
	if !slices.Equal(states, want) {
		t.Errorf("states = %v, want %v", states, want)
	}
	if last.Done != 2 || last.Total != 2 {
		t.Errorf("last progress = %+v, want 2/2", last)
	}
}

func TestNewSession_Defaults(t *testing.T) {
	s, err := NewSession(Config{})
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	cfg := s.Config()
	if cfg.Concurrency != DefaultConcurrency {
		t.Errorf("Concurrency = %d, want %d", cfg.Concurrency, DefaultConcurrency)
	}
	if cfg.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %v, want %v", cfg.Timeout, DefaultTimeout)
	}
	if s.State() != StateIdle {
		t.Errorf("State() = %v, want idle", s.State())
	}

	if _, err := NewSession(Config{Concurrency: -1}); err == nil {
		t.Error("NewSession() with negative concurrency should fail")
	}
}
