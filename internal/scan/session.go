package scan

import (
	"context"
	"fmt"
	"iter"
	"net/netip"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/muurk/shellyscan/internal/hostctx"
	"github.com/muurk/shellyscan/internal/identify"
	"github.com/muurk/shellyscan/internal/iprange"
	"github.com/muurk/shellyscan/internal/logging"
	"github.com/muurk/shellyscan/internal/probe"
)

const (
	// DefaultConcurrency is the default ceiling on in-flight probes
	DefaultConcurrency = 256

	// DefaultTimeout is the default per-probe timeout
	DefaultTimeout = probe.DefaultTimeout
)

// State is a session lifecycle state
type State int32

const (
	StateIdle State = iota
	StateResolvingHostContext
	StateExpandingRanges
	StateRunning
	StateDrained
	StateDone
	StateFailed
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateResolvingHostContext:
		return "resolving-host-context"
	case StateExpandingRanges:
		return "expanding-ranges"
	case StateRunning:
		return "running"
	case StateDrained:
		return "drained"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", s)
	}
}

// Config describes one scan
type Config struct {
	// Ranges to scan; empty means the local network
	Ranges []iprange.AddressRange

	// Extra addresses to probe in addition to Ranges, e.g. mDNS candidates.
	// Addresses already covered by Ranges are probed once.
	Extra []netip.Addr

	// Concurrency is the ceiling on in-flight probes
	Concurrency int

	// Timeout is the per-probe timeout
	Timeout time.Duration

	// AllowLarge permits large scans
	AllowLarge bool

	// Port and Path select the probe endpoint (defaults 80 and "shelly")
	Port uint16
	Path string

	// Prefix is the required device id prefix (default "shelly")
	Prefix string

	// SkipVendor leaves Identification.Vendor empty
	SkipVendor bool
}

// HostResolver finds the local network when no ranges are given
type HostResolver func(ctx context.Context) (*hostctx.Context, error)

// Progress is a snapshot sent to progress listeners
type Progress struct {
	State   State
	Total   uint64
	Done    uint64
	Matches int
	Last    netip.Addr
	Verdict identify.Verdict
}

// Stats summarises a finished run
type Stats struct {
	Targets  uint64
	Probed   uint64
	Matches  int
	Workers  int
	Kinds    map[probe.Kind]uint64
	Verdicts map[identify.Verdict]uint64
	Elapsed  time.Duration
}

// Device is the (name, address) pair handed to output collaborators
type Device struct {
	Name string
	Addr netip.Addr
}

// Result is the outcome of a run
type Result struct {
	Entries []Entry
	Stats   Stats
	Host    *hostctx.Context // Set when the range came from the local network
}

// Devices returns the identified devices in discovery order
func (r *Result) Devices() []Device {
	out := make([]Device, 0, len(r.Entries))
	for _, e := range r.Entries {
		out = append(out, Device{Name: e.Name(), Addr: e.Addr})
	}
	return out
}

// Option configures a Session
type Option func(*Session)

// WithProber replaces the HTTP prober
func WithProber(p probe.Prober) Option {
	return func(s *Session) { s.prober = p }
}

// WithHostResolver replaces the local network lookup
func WithHostResolver(r HostResolver) Option {
	return func(s *Session) { s.resolveHost = r }
}

// WithProgress sends progress snapshots to ch. Sends never block; a slow
// listener misses snapshots.
func WithProgress(ch chan<- Progress) Option {
	return func(s *Session) { s.progress = ch }
}

// Session is a single scan invocation
type Session struct {
	cfg         Config
	prober      probe.Prober
	resolveHost HostResolver
	classifier  identify.Classifier
	progress    chan<- Progress
	agg         *Aggregator
	state       atomic.Int32
}

// NewSession creates a session, filling in defaults for zero config values
func NewSession(cfg Config, opts ...Option) (*Session, error) {
	if cfg.Concurrency < 0 {
		return nil, fmt.Errorf("concurrency must be positive, got %d", cfg.Concurrency)
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	s := &Session{
		cfg:         cfg,
		resolveHost: hostctx.Resolve,
		classifier:  identify.Classifier{Prefix: cfg.Prefix, SkipVendor: cfg.SkipVendor},
		agg:         NewAggregator(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// State returns the current lifecycle state
func (s *Session) State() State {
	return State(s.state.Load())
}

// Config returns the effective configuration
func (s *Session) Config() Config {
	return s.cfg
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
	s.notify(Progress{State: st})
}

func (s *Session) fail(err error) (*Result, error) {
	s.setState(StateFailed)
	logging.Error("Scan failed", zap.Error(err))
	return nil, err
}

func (s *Session) notify(p Progress) {
	if s.progress == nil {
		return
	}
	select {
	case s.progress <- p:
	default:
	}
}

// Run performs the scan. Fatal errors (*HostContextError,
// *iprange.InvalidRangeError) are returned with a nil Result. If ctx is
// cancelled while running, no new probes start, in-flight probes finish, and
// the partial Result is returned together with the context error.
func (s *Session) Run(ctx context.Context) (*Result, error) {
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateResolvingHostContext)) {
		return nil, ErrSessionUsed
	}
	s.notify(Progress{State: StateResolvingHostContext})
	start := time.Now()

	ranges := s.cfg.Ranges
	var host *hostctx.Context
	if len(ranges) == 0 {
		hc, err := s.resolveHost(ctx)
		if err != nil {
			return s.fail(&HostContextError{Op: "resolve local network", Err: err})
		}
		if hc.IsLarge() && !s.cfg.AllowLarge {
			return s.fail(&iprange.InvalidRangeError{
				Range:  hc.Range().String(),
				Reason: iprange.ErrLargeScan,
				Detail: fmt.Sprintf("local network %s is a /16 or larger", hc.Prefix),
			})
		}
		host = hc
		ranges = []iprange.AddressRange{hc.Range()}
	}

	s.setState(StateExpandingRanges)
	plan, err := iprange.Expand(ranges, iprange.Options{AllowLarge: s.cfg.AllowLarge})
	if err != nil {
		return s.fail(err)
	}
	extra := extraTargets(plan, s.cfg.Extra)
	total := plan.Count() + uint64(len(extra))

	workers := s.cfg.Concurrency
	if uint64(workers) > total {
		workers = int(total)
	}

	prober := s.prober
	if prober == nil {
		hp := probe.NewHTTPProber(s.cfg.Timeout)
		defer hp.Close()
		prober = hp
	}

	rangeText := make([]string, 0, len(ranges))
	for _, r := range ranges {
		rangeText = append(rangeText, r.String())
	}
	logging.LogScanStart(rangeText, total, workers, s.cfg.Timeout)

	s.setState(StateRunning)
	stats := s.run(ctx, prober, s.targets(plan, extra), total, workers)
	s.setState(StateDrained)

	stats.Elapsed = time.Since(start)
	stats.Matches = s.agg.Len()
	logging.LogScanDone(stats.Probed, stats.Matches, stats.Elapsed)

	result := &Result{Entries: s.agg.Entries(), Stats: stats, Host: host}
	s.setState(StateDone)

	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("scan interrupted: %w", err)
	}
	return result, nil
}

// run drives the feeder, the workers and the consumer until the queue is
// drained and every worker has returned.
func (s *Session) run(ctx context.Context, prober probe.Prober, targets iter.Seq[probe.Target], total uint64, workers int) Stats {
	stats := Stats{
		Targets:  total,
		Workers:  workers,
		Kinds:    make(map[probe.Kind]uint64),
		Verdicts: make(map[identify.Verdict]uint64),
	}

	queue := NewQueue(s.cfg.Concurrency)
	outcomes := make(chan probe.Outcome, s.cfg.Concurrency)

	// In-flight probes are not cut short by cancellation
	probeCtx := context.WithoutCancel(ctx)

	var g errgroup.Group
	g.Go(func() error {
		return queue.Fill(ctx, targets)
	})
	for range workers {
		g.Go(func() error {
			for {
				t, ok := queue.Next()
				if !ok {
					return nil
				}
				if ctx.Err() != nil {
					continue
				}
				outcomes <- prober.Probe(probeCtx, t)
			}
		})
	}

	go func() {
		if err := g.Wait(); err != nil {
			logging.Warn("Target feed stopped", zap.Error(err))
		}
		close(outcomes)
	}()

	for out := range outcomes {
		stats.Probed++
		stats.Kinds[out.Kind]++

		ident, verdict := s.classifier.Classify(out)
		stats.Verdicts[verdict]++
		logging.LogProbe(out.Target.Addr.String(), out.Kind.String(), out.Status, out.Elapsed)

		if verdict == identify.Match {
			s.agg.Put(out.Target.Addr, ident)
			logging.LogMatch(out.Target.Addr.String(), ident.ID, ident.Name)
		} else if verdict == identify.Undecodable {
			logging.LogRawBody("Undecodable reply from "+out.Target.Addr.String(), out.Body)
		}

		s.notify(Progress{
			State:   StateRunning,
			Total:   total,
			Done:    stats.Probed,
			Matches: s.agg.Len(),
			Last:    out.Target.Addr,
			Verdict: verdict,
		})
	}

	return stats
}

// targets yields the plan then the extra addresses as probe targets
func (s *Session) targets(plan *iprange.Plan, extra []netip.Addr) iter.Seq[probe.Target] {
	return func(yield func(probe.Target) bool) {
		for addr := range plan.All() {
			if !yield(s.target(addr)) {
				return
			}
		}
		for _, addr := range extra {
			if !yield(s.target(addr)) {
				return
			}
		}
	}
}

func (s *Session) target(addr netip.Addr) probe.Target {
	return probe.Target{Addr: addr, Port: s.cfg.Port, Path: s.cfg.Path}
}

// extraTargets drops extras that are not IPv4, already in the plan, or
// repeated.
func extraTargets(plan *iprange.Plan, extra []netip.Addr) []netip.Addr {
	seen := make(map[netip.Addr]struct{}, len(extra))
	out := make([]netip.Addr, 0, len(extra))
	for _, addr := range extra {
		addr = addr.Unmap()
		if !addr.Is4() || plan.Contains(addr) {
			continue
		}
		if _, dup := seen[addr]; dup {
			continue
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
	}
	return out
}
