// Package probe sends the single HTTP request that asks an address whether it
// is a Shelly device.
//
// A probe never fails: every transport problem is folded into an Outcome
// whose Kind says what happened. Callers decide what an outcome means; this
// package only reports it.
//
//	p := probe.NewHTTPProber(2*time.Second)
//	defer p.Close()
//
//	out := p.Probe(ctx, probe.Target{Addr: addr, Path: "shelly"})
//	if out.Kind == probe.KindReply && out.Status == http.StatusOK {
//	    // out.Body holds at most MaxBodySize bytes
//	}
//
// Probes are never retried.
package probe
