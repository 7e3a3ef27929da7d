// Package sim runs simulated Shelly Gen2 devices.
//
// A simulated device answers the same three endpoints as real hardware:
//
//	GET  /shelly          unauthenticated identification
//	POST /rpc/<method>    RPC over HTTP, JSON parameters in the body
//	GET  /rpc             RPC over WebSocket, JSON-RPC frames
//
// Each device gets its own listener, so a fleet of devices on loopback
// addresses (127.0.0.2, 127.0.0.3, ...) on Linux can be found with a normal
// range scan. It is used by tests and by cmd/shelly-sim for demos.
//
// # Usage Example
//
//	dev := sim.NewDevice("shellyplus1-a8032ab12345", "porch")
//	srv := sim.New(&sim.Config{Host: "127.0.0.1"}, dev)
//	if err := srv.Listen(); err != nil {
//	    log.Fatal(err)
//	}
//	defer srv.Shutdown(context.Background())
//	fmt.Println("listening on", srv.Addr())
package sim
