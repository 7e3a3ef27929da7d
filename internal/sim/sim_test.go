package sim

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/muurk/shellyscan/internal/identify"
	"github.com/muurk/shellyscan/internal/probe"
	"github.com/muurk/shellyscan/internal/shelly"
)

func startServer(t *testing.T, dev *Device) *Server {
	t.Helper()
	srv := New(&Config{Host: "127.0.0.1"}, dev)
	if err := srv.Listen(); err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func TestServer_ProbeAndClassify(t *testing.T) {
	srv := startServer(t, NewDevice("shellyplus1-a8032ab12345", "porch"))
	prober := probe.NewHTTPProber(time.Second)
	defer prober.Close()

	ap := netip.MustParseAddrPort(srv.Addr().String())
	out := prober.Probe(context.Background(), probe.Target{Addr: ap.Addr(), Port: ap.Port()})
	if out.Kind != probe.KindReply || out.Status != http.StatusOK {
		t.Fatalf("Probe() = %v status %d, want reply 200", out.Kind, out.Status)
	}

	ident, verdict := identify.Classify(out)
	if verdict != identify.Match {
		t.Fatalf("Classify() verdict = %v, want Match", verdict)
	}
	if ident.Name != "porch" || ident.MAC != "A8:03:2A:B1:23:45" || ident.Generation != 2 {
		t.Errorf("Classify() = %+v", ident)
	}
}

func TestServer_UnnamedDeviceFallsBackToID(t *testing.T) {
	srv := startServer(t, NewDevice("shellyplus1-a8032ab12345", ""))

	ident, err := shelly.NewClientWithURL(srv.URL()).Identify(context.Background())
	if err != nil {
		t.Fatalf("Identify() error = %v", err)
	}
	if ident.Name != "shellyplus1-a8032ab12345" {
		t.Errorf("Name = %q, want the id", ident.Name)
	}
}

func TestServer_RPCOverHTTP(t *testing.T) {
	srv := startServer(t, NewDevice("shellyplus1-a8032ab12345", "porch"))
	client := shelly.NewClientWithURL(srv.URL())
	ctx := context.Background()

	all, err := client.GetStatus(ctx, "shelly")
	if err != nil {
		t.Fatalf("GetStatus(shelly) error = %v", err)
	}
	for _, component := range []string{"switch:0", "sys", "wifi"} {
		if _, ok := all[component]; !ok {
			t.Errorf("Shelly.GetStatus missing %q", component)
		}
	}

	sw, err := client.GetStatus(ctx, "switch:0")
	if err != nil {
		t.Fatalf("GetStatus(switch:0) error = %v", err)
	}
	if sw["output"] != false {
		t.Errorf("switch:0 = %v", sw)
	}

	if _, err := client.GetStatus(ctx, "switch:7"); !shelly.IsRPCError(err) {
		t.Errorf("GetStatus(switch:7) error = %v, want RPC error", err)
	}

	_, err = client.GetConfig(ctx, "cover")
	devErr, ok := err.(*shelly.DeviceError)
	if !ok || devErr.StatusCode != http.StatusNotFound {
		t.Errorf("GetConfig(cover) error = %v, want 404", err)
	}
}

func TestServer_RPCQueryParams(t *testing.T) {
	srv := startServer(t, NewDevice("shellyplus1-a8032ab12345", "porch"))

	resp, err := http.Get(srv.URL() + "/rpc/Switch.GetStatus?id=0")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var status map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decode error = %v", err)
	}
	if status["id"] != float64(0) {
		t.Errorf("status = %v", status)
	}
}

func TestServer_Auth(t *testing.T) {
	dev := NewDevice("shellyplus1-a8032ab12345", "porch")
	dev.Password = "secret"
	srv := startServer(t, dev)
	ctx := context.Background()

	client := shelly.NewClientWithURL(srv.URL())
	ident, err := client.Identify(ctx)
	if err != nil {
		t.Fatalf("Identify() should not need auth: %v", err)
	}
	if !ident.AuthEnabled {
		t.Error("AuthEnabled should be reported")
	}

	if _, err := client.GetStatus(ctx, "sys"); !shelly.IsAuthError(err) {
		t.Errorf("GetStatus() without password error = %v, want auth error", err)
	}
	if _, err := client.DialWS(ctx); !shelly.IsAuthError(err) {
		t.Errorf("DialWS() without password error = %v, want auth error", err)
	}

	client.SetAuth(shelly.DefaultUsername, "secret")
	if _, err := client.GetStatus(ctx, "sys"); err != nil {
		t.Errorf("GetStatus() with password error = %v", err)
	}
}

func TestServer_RPCOverWebSocket(t *testing.T) {
	srv := startServer(t, NewDevice("shellyplus1-a8032ab12345", "porch"))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ws, err := shelly.NewClientWithURL(srv.URL()).DialWS(ctx)
	if err != nil {
		t.Fatalf("DialWS() error = %v", err)
	}

	cfg, err := ws.GetConfig(ctx, "sys")
	if err != nil {
		t.Fatalf("GetConfig(sys) error = %v", err)
	}
	device, _ := cfg["device"].(map[string]any)
	if device["name"] != "porch" {
		t.Errorf("sys config = %v", cfg)
	}

	if _, err := ws.Call(ctx, "Shelly.Reboot", nil); !shelly.IsRPCError(err) {
		t.Errorf("Call(Shelly.Reboot) error = %v, want RPC error", err)
	}

	if got := srv.GetActiveConnections(); got < 1 {
		t.Errorf("GetActiveConnections() = %d, want the websocket counted", got)
	}
	if err := ws.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestServer_ShutdownClosesWebSockets(t *testing.T) {
	srv := New(&Config{Host: "127.0.0.1"}, NewDevice("shellyplus1-a8032ab12345", "porch"))
	if err := srv.Listen(); err != nil {
		t.Fatalf("Listen() error = %v", err)
	}

	ws, err := shelly.NewClientWithURL(srv.URL()).DialWS(context.Background())
	if err != nil {
		t.Fatalf("DialWS() error = %v", err)
	}
	defer func() { _ = ws.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if got := srv.GetActiveConnections(); got != 0 {
		t.Errorf("GetActiveConnections() after shutdown = %d, want 0", got)
	}
}

func TestServer_NotFound(t *testing.T) {
	srv := startServer(t, NewDevice("shellyplus1-a8032ab12345", "porch"))

	resp, err := http.Get(srv.URL() + "/settings")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404 (%s)", resp.StatusCode, strings.TrimSpace(string(body)))
	}
}

func TestStartFleet(t *testing.T) {
	fleet, err := StartFleet(netip.MustParseAddr("127.0.0.1"), 1, 0, nil)
	if err != nil {
		t.Fatalf("StartFleet() error = %v", err)
	}
	defer func() { _ = fleet.Shutdown(context.Background()) }()

	servers := fleet.Servers()
	if len(servers) != 1 {
		t.Fatalf("Servers() = %d, want 1", len(servers))
	}
	if id := servers[0].Device().ID; id != DeviceID(1) {
		t.Errorf("device id = %s, want %s", id, DeviceID(1))
	}
}

func TestStartFleet_Setup(t *testing.T) {
	fleet, err := StartFleet(netip.MustParseAddr("127.0.0.1"), 1, 0, func(d *Device) {
		d.Password = "secret"
	})
	if err != nil {
		t.Fatalf("StartFleet() error = %v", err)
	}
	defer func() { _ = fleet.Shutdown(context.Background()) }()

	if auth, _ := fleet.Servers()[0].Device().Identity()["auth_en"].(bool); !auth {
		t.Error("setup should run before the device starts serving")
	}
}
