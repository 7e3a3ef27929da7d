// Package hostctx works out which IPv4 network this host is on, so a scan
// with no explicit ranges can cover the local subnet.
package hostctx

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"

	psnet "github.com/shirou/gopsutil/v3/net"
	"go4.org/netipx"

	"github.com/muurk/shellyscan/internal/iprange"
)

// RouteProbeAddr is the public address used to pick the outbound interface.
// Dialing UDP sends nothing; it only asks the kernel for a route.
const RouteProbeAddr = "8.8.8.8:80"

var (
	// ErrNoRoute means no outbound IPv4 route exists
	ErrNoRoute = errors.New("no outbound IPv4 route")
	// ErrNoInterface means no interface carries the outbound address
	ErrNoInterface = errors.New("no interface carries the outbound address")
)

// Context describes the local network of the outbound interface
type Context struct {
	Interface string
	Addr      netip.Addr
	Prefix    netip.Prefix // Masked network prefix
	Broadcast netip.Addr
}

// Range returns the network-to-broadcast range of the local network
func (c *Context) Range() iprange.AddressRange {
	span := netipx.RangeOfPrefix(c.Prefix)
	return iprange.RangeFrom(span.From(), span.To())
}

// IsLarge reports whether the local network is a /16 or larger, i.e. its
// broadcast address ends in .255.255
func (c *Context) IsLarge() bool {
	return c.Prefix.Bits() <= 16
}

// String returns a short description, e.g. "eth0 192.168.1.20/24"
func (c *Context) String() string {
	return fmt.Sprintf("%s %s/%d", c.Interface, c.Addr, c.Prefix.Bits())
}

// Resolve finds the outbound address and the network it belongs to.
func Resolve(ctx context.Context) (*Context, error) {
	local, err := OutboundAddr(ctx)
	if err != nil {
		return nil, err
	}

	ifaces, err := psnet.InterfacesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list interfaces: %w", err)
	}

	return FromInterfaces(ifaces, local)
}

// OutboundAddr returns the local IPv4 address the kernel would use to reach
// RouteProbeAddr.
func OutboundAddr(ctx context.Context) (netip.Addr, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp4", RouteProbeAddr)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("%w: %v", ErrNoRoute, err)
	}
	defer func() { _ = conn.Close() }()

	udpAddr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return netip.Addr{}, ErrNoRoute
	}
	addr, ok := netip.AddrFromSlice(udpAddr.IP)
	if !ok {
		return netip.Addr{}, ErrNoRoute
	}
	return addr.Unmap(), nil
}

// FromInterfaces finds local among the interface addresses and returns its
// network.
func FromInterfaces(ifaces psnet.InterfaceStatList, local netip.Addr) (*Context, error) {
	for _, iface := range ifaces {
		for _, a := range iface.Addrs {
			prefix, err := netip.ParsePrefix(a.Addr)
			if err != nil || !prefix.Addr().Is4() {
				continue
			}
			if prefix.Addr() != local {
				continue
			}
			return &Context{
				Interface: iface.Name,
				Addr:      local,
				Prefix:    prefix.Masked(),
				Broadcast: broadcast(prefix),
			}, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNoInterface, local)
}

func broadcast(prefix netip.Prefix) netip.Addr {
	return netipx.PrefixLastIP(prefix.Masked())
}
