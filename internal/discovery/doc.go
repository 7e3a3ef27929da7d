// Package discovery finds candidate Shelly devices with multicast DNS.
//
// Gen2+ devices advertise "_shelly._tcp"; Gen1 devices only advertise
// "_http._tcp". Both are browsed for a bounded time and every entry whose
// instance name or hostname starts with the family prefix becomes a
// Candidate.
//
// Candidates are only hints. A scan adds their addresses as extra targets
// and probes and classifies them like any other address, so a device that
// advertises but does not answer /shelly is never reported.
//
// # Usage Example
//
//	scanner := discovery.NewScanner()
//	scanner.Timeout = 3 * time.Second
//	candidates, err := scanner.Scan(ctx)
//	if err != nil {
//	    return err
//	}
//	extra := discovery.Addrs(candidates)
//
// # Network Requirements
//
// - Requires multicast support on the network interface
// - Devices must be on the same local network segment
// - Firewall must allow mDNS (UDP port 5353)
package discovery
