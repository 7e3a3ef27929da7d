// Package shelly provides a read-only client for the local RPC API of Shelly
// Gen2+ devices.
//
// Two transports are supported. The HTTP transport POSTs a JSON parameter
// object to /rpc/<Component>.<Method> and decodes the reply body. The
// WebSocket transport sends JSON-RPC frames over ws://<addr>/rpc and matches
// replies by request id.
//
// # Usage Example
//
//	client := shelly.NewClient(netip.MustParseAddr("192.168.1.20"), 80)
//	status, err := client.GetStatus(ctx, "shelly")
//	if err != nil {
//	    fmt.Println(shelly.GetShortErrorMessage(err))
//	    return
//	}
//	for component, data := range status {
//	    fmt.Printf("%s: %v\n", component, data)
//	}
//
// Requests are never retried. A failed call returns a *DeviceError whose Type
// says what went wrong; GetTroubleshootingHint turns it into advice for the
// user.
package shelly
