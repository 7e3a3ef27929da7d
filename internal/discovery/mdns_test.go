package discovery

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/grandcat/zeroconf"
)

func TestScanner_parseServiceEntry(t *testing.T) {
	scanner := NewScanner()

	tests := []struct {
		name     string
		entry    *zeroconf.ServiceEntry
		wantNil  bool
		wantIP   string
		wantPort uint16
	}{
		{
			name: "gen2 device",
			entry: &zeroconf.ServiceEntry{
				ServiceRecord: zeroconf.ServiceRecord{Instance: "shellyplus1pm-a8032ab12345"},
				HostName:      "ShellyPlus1PM-A8032AB12345.local.",
				Port:          80,
				AddrIPv4:      []net.IP{net.ParseIP("192.168.1.20")},
				Text:          []string{"gen=2", "app=Plus1PM", "ver=1.0.8"},
			},
			wantIP:   "192.168.1.20",
			wantPort: 80,
		},
		{
			name: "gen1 device matched by hostname",
			entry: &zeroconf.ServiceEntry{
				ServiceRecord: zeroconf.ServiceRecord{Instance: "Kitchen Plug"},
				HostName:      "shellyplug-s-7C87CEB4A1B2.local.",
				Port:          80,
				AddrIPv4:      []net.IP{net.ParseIP("10.0.0.5")},
			},
			wantIP:   "10.0.0.5",
			wantPort: 80,
		},
		{
			name: "custom port",
			entry: &zeroconf.ServiceEntry{
				ServiceRecord: zeroconf.ServiceRecord{Instance: "shelly1-1"},
				HostName:      "shelly1-1.local.",
				Port:          8080,
				AddrIPv4:      []net.IP{net.ParseIP("192.168.1.100")},
			},
			wantIP:   "192.168.1.100",
			wantPort: 8080,
		},
		{
			name: "no port defaults to 80",
			entry: &zeroconf.ServiceEntry{
				ServiceRecord: zeroconf.ServiceRecord{Instance: "shelly1-2"},
				AddrIPv4:      []net.IP{net.ParseIP("172.16.0.1")},
			},
			wantIP:   "172.16.0.1",
			wantPort: 80,
		},
		{
			name: "other vendor",
			entry: &zeroconf.ServiceEntry{
				ServiceRecord: zeroconf.ServiceRecord{Instance: "printer"},
				HostName:      "printer.local.",
				AddrIPv4:      []net.IP{net.ParseIP("192.168.1.1")},
			},
			wantNil: true,
		},
		{
			name: "IPv6 only",
			entry: &zeroconf.ServiceEntry{
				ServiceRecord: zeroconf.ServiceRecord{Instance: "shelly1-3"},
				AddrIPv6:      []net.IP{net.ParseIP("fe80::1")},
			},
			wantNil: true,
		},
		{
			name:    "nil entry",
			entry:   nil,
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := scanner.parseServiceEntry(ServiceHTTP, tt.entry)

			if tt.wantNil {
				if c != nil {
					t.Errorf("parseServiceEntry() = %v, want nil", c)
				}
				return
			}
			if c == nil {
				t.Fatal("parseServiceEntry() = nil, want candidate")
			}
			if c.Addr.String() != tt.wantIP {
				t.Errorf("Addr = %v, want %v", c.Addr, tt.wantIP)
			}
			if c.Port != tt.wantPort {
				t.Errorf("Port = %v, want %v", c.Port, tt.wantPort)
			}
			if c.Service != ServiceHTTP {
				t.Errorf("Service = %v, want %v", c.Service, ServiceHTTP)
			}
			if time.Since(c.DiscoveredAt) > time.Second {
				t.Errorf("DiscoveredAt is not recent: %v", c.DiscoveredAt)
			}
		})
	}
}

func TestScanner_parseServiceEntry_Metadata(t *testing.T) {
	entry := &zeroconf.ServiceEntry{
		ServiceRecord: zeroconf.ServiceRecord{Instance: "shellyplus1-1"},
		AddrIPv4:      []net.IP{net.ParseIP("192.168.1.20")},
		Text:          []string{"gen=2", "app=Plus1", "flag"},
	}

	c := NewScanner().parseServiceEntry(ServiceShelly, entry)
	if c == nil {
		t.Fatal("parseServiceEntry() = nil, want candidate")
	}
	want := map[string]string{"gen": "2", "app": "Plus1", "flag": ""}
	for k, v := range want {
		if got := c.GetMetadata(k); got != v {
			t.Errorf("GetMetadata(%q) = %q, want %q", k, got, v)
		}
	}
}

func TestScanner_CustomPrefix(t *testing.T) {
	scanner := NewScanner()
	scanner.Prefix = "ShellyPro"

	pro := &zeroconf.ServiceEntry{
		ServiceRecord: zeroconf.ServiceRecord{Instance: "shellypro4pm-1"},
		AddrIPv4:      []net.IP{net.ParseIP("10.0.0.1")},
	}
	plus := &zeroconf.ServiceEntry{
		ServiceRecord: zeroconf.ServiceRecord{Instance: "shellyplus1-1"},
		AddrIPv4:      []net.IP{net.ParseIP("10.0.0.2")},
	}

	if scanner.parseServiceEntry(ServiceShelly, pro) == nil {
		t.Error("prefix match should be case-insensitive")
	}
	if scanner.parseServiceEntry(ServiceShelly, plus) != nil {
		t.Error("entry outside the prefix should be skipped")
	}
}

// fakeBrowse replays entries per service and closes the channel when ctx
// ends, as zeroconf does.
func fakeBrowse(byService map[string][]*zeroconf.ServiceEntry) browseFunc {
	return func(ctx context.Context, service, domain string, entries chan *zeroconf.ServiceEntry) error {
		go func() {
			defer close(entries)
			for _, e := range byService[service] {
				select {
				case entries <- e:
				case <-ctx.Done():
					return
				}
			}
			<-ctx.Done()
		}()
		return nil
	}
}

func TestScanner_Scan(t *testing.T) {
	gen2 := &zeroconf.ServiceEntry{
		ServiceRecord: zeroconf.ServiceRecord{Instance: "shellyplus1-1"},
		AddrIPv4:      []net.IP{net.ParseIP("10.0.0.2")},
	}
	gen1 := &zeroconf.ServiceEntry{
		ServiceRecord: zeroconf.ServiceRecord{Instance: "shelly1-1"},
		AddrIPv4:      []net.IP{net.ParseIP("10.0.0.3")},
	}
	printer := &zeroconf.ServiceEntry{
		ServiceRecord: zeroconf.ServiceRecord{Instance: "printer"},
		AddrIPv4:      []net.IP{net.ParseIP("10.0.0.4")},
	}

	scanner := NewScanner()
	scanner.Timeout = 50 * time.Millisecond
	scanner.browse = fakeBrowse(map[string][]*zeroconf.ServiceEntry{
		ServiceShelly: {gen2},
		ServiceHTTP:   {gen2, gen1, printer},
	})

	candidates, err := scanner.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}

	addrs := Addrs(candidates)
	if len(addrs) != 2 {
		t.Fatalf("Scan() found %v, want two distinct shelly addresses", addrs)
	}
	got := map[string]bool{addrs[0].String(): true, addrs[1].String(): true}
	if !got["10.0.0.2"] || !got["10.0.0.3"] {
		t.Errorf("Scan() addresses = %v", addrs)
	}
}

func TestScanner_ScanBrowseError(t *testing.T) {
	scanner := NewScanner()
	scanner.Timeout = time.Second
	scanner.browse = func(ctx context.Context, service, domain string, entries chan *zeroconf.ServiceEntry) error {
		if service == ServiceHTTP {
			// zeroconf closes entries itself when the initial query fails
			close(entries)
			return errors.New("no multicast interface")
		}
		return fakeBrowse(nil)(ctx, service, domain, entries)
	}

	_, err := scanner.Scan(context.Background())
	if err == nil || !strings.Contains(err.Error(), "no multicast interface") {
		t.Errorf("Scan() error = %v, want browse error", err)
	}
}

func TestScanner_ScanBrowseErrorClosedLater(t *testing.T) {
	scanner := NewScanner()
	scanner.Timeout = time.Second
	scanner.browse = func(ctx context.Context, service, domain string, entries chan *zeroconf.ServiceEntry) error {
		go func() {
			time.Sleep(10 * time.Millisecond)
			close(entries)
		}()
		return errors.New("sendto: network is unreachable")
	}

	candidates, err := scanner.Scan(context.Background())
	if err == nil || !strings.Contains(err.Error(), "network is unreachable") {
		t.Errorf("Scan() error = %v, want browse error", err)
	}
	if candidates != nil {
		t.Errorf("Scan() candidates = %v, want none", candidates)
	}
}

func TestNewScanner(t *testing.T) {
	scanner := NewScanner()

	if scanner.Timeout != DefaultScanTimeout {
		t.Errorf("scanner.Timeout = %v, want %v", scanner.Timeout, DefaultScanTimeout)
	}
	if len(scanner.Services) != 2 || scanner.Services[0] != ServiceShelly {
		t.Errorf("scanner.Services = %v", scanner.Services)
	}
}
