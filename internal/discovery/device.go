package discovery

import (
	"fmt"
	"net/netip"
	"time"

	"github.com/muurk/shellyscan/internal/probe"
)

// Candidate is a device seen in an mDNS advertisement
type Candidate struct {
	// Instance is the service instance name (e.g., "shellyplus1pm-a8032ab12345")
	Instance string

	// Hostname is the mDNS hostname (e.g., "ShellyPlus1PM-A8032AB12345.local.")
	Hostname string

	// Addr is the advertised IPv4 address
	Addr netip.Addr

	// Port is the advertised HTTP port
	Port uint16

	// Service is the service type the entry was found under
	Service string

	// Metadata contains the TXT record data. Gen2 devices send
	// "gen", "app" and "ver".
	Metadata map[string]string

	// DiscoveredAt is when the advertisement was received
	DiscoveredAt time.Time
}

// String returns a human-readable string representation of the candidate
func (c Candidate) String() string {
	return fmt.Sprintf("%s (%s) at %s", c.Instance, c.Hostname, netip.AddrPortFrom(c.Addr, c.Port))
}

// Target returns the probe target for the candidate's address and port
func (c Candidate) Target() probe.Target {
	return probe.Target{Addr: c.Addr, Port: c.Port}
}

// GetMetadata retrieves a metadata value by key, or returns empty string if not found
func (c Candidate) GetMetadata(key string) string {
	if c.Metadata == nil {
		return ""
	}
	return c.Metadata[key]
}

// Addrs returns the distinct candidate addresses in discovery order
func Addrs(candidates []Candidate) []netip.Addr {
	seen := make(map[netip.Addr]bool, len(candidates))
	out := make([]netip.Addr, 0, len(candidates))
	for _, c := range candidates {
		if !seen[c.Addr] {
			seen[c.Addr] = true
			out = append(out, c.Addr)
		}
	}
	return out
}
