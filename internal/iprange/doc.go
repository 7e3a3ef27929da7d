// Package iprange turns textual IPv4 ranges into an ordered,
// lazily enumerated scan plan.
//
// A range is written "a.b.c.d-e.f.g.h". It does not describe every address
// between the two endpoints: each of the four parts is expanded over its own
// bounds and the result is their product, with the most significant part
// outermost and the least significant part varying fastest.
//
//	10.0.0.0-10.0.1.3  =>  10.0.0.0 .. 10.0.0.3, 10.0.1.0 .. 10.0.1.3
//
// # Large Scans
//
// A range whose second part spans 0-255, or a plan with more than
// DefaultLargeScanThreshold addresses, is a large scan and is refused unless
// Options.AllowLarge is set:
//
//	plan, err := iprange.Expand(ranges, iprange.Options{AllowLarge: true})
//	if err != nil {
//	    var rangeErr *iprange.InvalidRangeError
//	    if errors.As(err, &rangeErr) { ... }
//	}
//	fmt.Println(plan.Count())
//	for addr := range plan.All() { ... }
//
// Plans never materialise their addresses, so counting a 16M address plan
// costs nothing.
package iprange
