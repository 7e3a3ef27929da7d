package discovery

import (
	"context"
	"fmt"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/muurk/shellyscan/internal/identify"
	"github.com/muurk/shellyscan/internal/logging"
	"github.com/muurk/shellyscan/internal/probe"
)

const (
	// ServiceShelly is the service type advertised by Gen2+ devices
	ServiceShelly = "_shelly._tcp"

	// ServiceHTTP is the service type advertised by every Shelly generation
	ServiceHTTP = "_http._tcp"

	// ServiceDomain is the mDNS domain (typically "local.")
	ServiceDomain = "local."

	// DefaultScanTimeout is the default browse duration
	DefaultScanTimeout = 3 * time.Second
)

// browseFunc starts browsing for service and writes entries until ctx is
// done. entries is always closed, also when an error is returned.
type browseFunc func(ctx context.Context, service, domain string, entries chan *zeroconf.ServiceEntry) error

func zeroconfBrowse(ctx context.Context, service, domain string, entries chan *zeroconf.ServiceEntry) error {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		close(entries)
		return fmt.Errorf("failed to create mDNS resolver: %w", err)
	}
	// A failed initial query cancels the browse loop, which closes entries
	return resolver.Browse(ctx, service, domain, entries)
}

// Scanner handles mDNS device discovery
type Scanner struct {
	// Timeout is how long to listen for advertisements
	Timeout time.Duration

	// Services are the service types to browse
	Services []string

	// Prefix is the case-insensitive instance or hostname prefix; empty
	// means the identification prefix "shelly"
	Prefix string

	browse browseFunc
}

// NewScanner creates a new mDNS scanner with default settings
func NewScanner() *Scanner {
	return &Scanner{
		Timeout:  DefaultScanTimeout,
		Services: []string{ServiceShelly, ServiceHTTP},
		browse:   zeroconfBrowse,
	}
}

// Scan browses every service type for Timeout and returns the matching
// candidates, one per address, in the order they were first seen.
func (s *Scanner) Scan(ctx context.Context) ([]Candidate, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	browse := s.browse
	if browse == nil {
		browse = zeroconfBrowse
	}

	var (
		mu         sync.Mutex
		candidates []Candidate
		seen       = make(map[netip.Addr]bool)
	)
	add := func(c Candidate) {
		mu.Lock()
		defer mu.Unlock()
		if seen[c.Addr] {
			return
		}
		seen[c.Addr] = true
		candidates = append(candidates, c)
		logging.Debug("mDNS candidate",
			zap.String("instance", c.Instance),
			zap.String("addr", c.Addr.String()),
			zap.String("service", c.Service),
		)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, service := range s.Services {
		g.Go(func() error {
			entries := make(chan *zeroconf.ServiceEntry)
			done := make(chan struct{})
			go func() {
				defer close(done)
				for entry := range entries {
					if c := s.parseServiceEntry(service, entry); c != nil {
						add(*c)
					}
				}
			}()

			err := browse(gctx, service, ServiceDomain, entries)
			<-done
			if err != nil {
				return fmt.Errorf("failed to browse for %s: %w", service, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return candidates, nil
}

// parseServiceEntry converts a zeroconf service entry to a Candidate.
// Returns nil if the entry is not a Shelly device or has no IPv4 address.
func (s *Scanner) parseServiceEntry(service string, entry *zeroconf.ServiceEntry) *Candidate {
	if entry == nil {
		return nil
	}

	prefix := s.Prefix
	if prefix == "" {
		prefix = identify.DefaultPrefix
	}
	prefix = strings.ToLower(prefix)
	if !strings.HasPrefix(strings.ToLower(entry.Instance), prefix) &&
		!strings.HasPrefix(strings.ToLower(entry.HostName), prefix) {
		return nil
	}

	// Probes are IPv4 only
	var addr netip.Addr
	for _, ip := range entry.AddrIPv4 {
		if a, ok := netip.AddrFromSlice(ip.To4()); ok {
			addr = a
			break
		}
	}
	if !addr.IsValid() {
		return nil
	}

	port := uint16(probe.DefaultPort)
	if entry.Port > 0 && entry.Port <= 0xffff {
		port = uint16(entry.Port)
	}

	// TXT records are in "key=value" format
	metadata := make(map[string]string)
	for _, txt := range entry.Text {
		key, value, _ := strings.Cut(txt, "=")
		metadata[key] = value
	}

	return &Candidate{
		Instance:     entry.Instance,
		Hostname:     entry.HostName,
		Addr:         addr,
		Port:         port,
		Service:      service,
		Metadata:     metadata,
		DiscoveredAt: time.Now(),
	}
}

// Scan is a convenience function to browse with a custom timeout
func Scan(ctx context.Context, timeout time.Duration) ([]Candidate, error) {
	scanner := NewScanner()
	scanner.Timeout = timeout
	return scanner.Scan(ctx)
}
