package sim

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
)

// Fleet is a group of simulated devices on consecutive addresses
type Fleet struct {
	servers []*Server
}

// DeviceID returns the id of the i-th fleet device
func DeviceID(i int) string {
	return fmt.Sprintf("shellyplus1-%012x", 0xa8032ab00000+i)
}

// StartFleet starts count devices listening on first, first+1, ... all at
// port. Devices are named "sim-1", "sim-2", ... setup, if not nil, is
// called on each device before it starts serving.
func StartFleet(first netip.Addr, count, port int, setup func(*Device)) (*Fleet, error) {
	f := &Fleet{}
	addr := first
	for i := 1; i <= count; i++ {
		if !addr.IsValid() {
			_ = f.Shutdown(context.Background())
			return nil, fmt.Errorf("address range exhausted after %d devices", i-1)
		}

		dev := NewDevice(DeviceID(i), fmt.Sprintf("sim-%d", i))
		if setup != nil {
			setup(dev)
		}
		srv := New(&Config{Host: addr.String(), Port: port}, dev)
		if err := srv.Listen(); err != nil {
			_ = f.Shutdown(context.Background())
			return nil, err
		}
		f.servers = append(f.servers, srv)
		addr = addr.Next()
	}
	return f, nil
}

// Servers returns the running servers in address order
func (f *Fleet) Servers() []*Server {
	return f.servers
}

// Shutdown stops every device
func (f *Fleet) Shutdown(ctx context.Context) error {
	var errs []error
	for _, srv := range f.servers {
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
