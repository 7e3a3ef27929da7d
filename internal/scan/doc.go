// Package scan coordinates one discovery run over a set of address ranges.
//
// A Session owns everything a run needs: its queue, its workers, its
// aggregator and its prober. Nothing is shared between sessions and nothing
// survives a run. A session moves through these states:
//
//	Idle -> ResolvingHostContext -> ExpandingRanges -> Running -> Drained -> Done
//	              |                        |
//	              +--------> Failed <------+
//
// Only the first two working states can fail. Once targets are running, a
// probe that times out, is refused, or returns something that is not a
// Shelly device only counts as a miss.
//
// # Workers
//
// The number of workers equals the concurrency ceiling (or the number of
// targets, if smaller). Workers pull targets from a bounded Queue and send
// each probe.Outcome to a single consumer, which classifies it and records
// matches. Workers never touch the aggregator.
//
//	session, err := scan.NewSession(scan.Config{Ranges: ranges})
//	if err != nil {
//	    return err
//	}
//	result, err := session.Run(ctx)
//	if err != nil {
//	    return err
//	}
//	for _, d := range result.Devices() {
//	    fmt.Println(d.Name, d.Addr)
//	}
package scan
