package iprange

import (
	"errors"
	"fmt"
	"iter"
	"net/netip"
	"slices"
	"strconv"
	"strings"
)

// DefaultLargeScanThreshold is the largest plan accepted without AllowLarge.
const DefaultLargeScanThreshold uint64 = 65536

var (
	// ErrMalformed indicates the text is not "a.b.c.d-e.f.g.h" or "a.b.c.d"
	ErrMalformed = errors.New("malformed address range")
	// ErrOutOfRange indicates a part outside 0-255
	ErrOutOfRange = errors.New("address part out of range")
	// ErrReversed indicates a start that sorts after its end, or a part whose
	// start exceeds its end
	ErrReversed = errors.New("range start is after range end")
	// ErrLargeScan indicates a large scan without the override
	ErrLargeScan = errors.New("large scan is not enabled")
	// ErrEmpty indicates that no ranges were given
	ErrEmpty = errors.New("no address ranges given")
)

// InvalidRangeError is returned for any range that cannot be scanned.
// Reason is one of the Err* sentinels and can be matched with errors.Is.
type InvalidRangeError struct {
	Range  string // Offending range text (empty for plan-wide failures)
	Reason error  // Sentinel describing the failure
	Detail string // Extra context for humans
}

// Error implements the error interface
func (e *InvalidRangeError) Error() string {
	msg := e.Reason.Error()
	if e.Range != "" {
		msg = fmt.Sprintf("%s: %s", e.Range, msg)
	}
	if e.Detail != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Detail)
	}
	return "invalid range " + msg
}

// Unwrap returns the sentinel reason
func (e *InvalidRangeError) Unwrap() error {
	return e.Reason
}

// AddressRange is a pair of IPv4 endpoints expanded part by part.
type AddressRange struct {
	Start [4]uint8
	End   [4]uint8
}

// RangeFrom builds a range from two IPv4 addresses.
func RangeFrom(start, end netip.Addr) AddressRange {
	return AddressRange{Start: start.As4(), End: end.As4()}
}

// String returns the range in "a.b.c.d-e.f.g.h" form
func (r AddressRange) String() string {
	return fmt.Sprintf("%s-%s", netip.AddrFrom4(r.Start), netip.AddrFrom4(r.End))
}

// Count returns the number of addresses the range expands to, or 0 when any
// part is inverted.
func (r AddressRange) Count() uint64 {
	n := uint64(1)
	for i := range 4 {
		if r.Start[i] > r.End[i] {
			return 0
		}
		n *= uint64(r.End[i]-r.Start[i]) + 1
	}
	return n
}

// Contains reports whether addr is produced by expanding the range.
func (r AddressRange) Contains(addr netip.Addr) bool {
	if !addr.Is4() {
		return false
	}
	a := addr.As4()
	for i := range 4 {
		if a[i] < r.Start[i] || a[i] > r.End[i] {
			return false
		}
	}
	return true
}

// IsLarge reports whether the second part spans the whole 0-255 width.
func (r AddressRange) IsLarge() bool {
	return r.Start[1] == 0 && r.End[1] == 255
}

// covers reports whether every address of o is also produced by r.
func (r AddressRange) covers(o AddressRange) bool {
	for i := range 4 {
		if o.Start[i] < r.Start[i] || o.End[i] > r.End[i] {
			return false
		}
	}
	return true
}

// intersect returns the addresses produced by both ranges. ok is false when
// they share none.
func (r AddressRange) intersect(o AddressRange) (x AddressRange, ok bool) {
	for i := range 4 {
		x.Start[i] = max(r.Start[i], o.Start[i])
		x.End[i] = min(r.End[i], o.End[i])
		if x.Start[i] > x.End[i] {
			return AddressRange{}, false
		}
	}
	return x, true
}

// unionCount returns the number of distinct addresses produced by ranges.
// Each range adds the addresses not produced by an earlier one.
func unionCount(ranges []AddressRange) uint64 {
	var n uint64
next:
	for i, r := range ranges {
		var overlap []AddressRange
		for _, prev := range ranges[:i] {
			x, ok := r.intersect(prev)
			if !ok {
				continue
			}
			if x == r {
				continue next
			}
			overlap = appendUncovered(overlap, x)
		}
		n += r.Count() - unionCount(overlap)
	}
	return n
}

// appendUncovered adds x unless a range in list already covers it, and drops
// the ranges x covers.
func appendUncovered(list []AddressRange, x AddressRange) []AddressRange {
	for _, r := range list {
		if r.covers(x) {
			return list
		}
	}
	list = slices.DeleteFunc(list, func(r AddressRange) bool { return x.covers(r) })
	return append(list, x)
}

func (r AddressRange) validate() error {
	for i := range 4 {
		if r.Start[i] > r.End[i] {
			return &InvalidRangeError{
				Range:  r.String(),
				Reason: ErrReversed,
				Detail: fmt.Sprintf("part %d: %d > %d", i+1, r.Start[i], r.End[i]),
			}
		}
	}
	return nil
}

// all yields every address of the range, least significant part fastest.
func (r AddressRange) all(yield func(netip.Addr) bool) bool {
	for a := int(r.Start[0]); a <= int(r.End[0]); a++ {
		for b := int(r.Start[1]); b <= int(r.End[1]); b++ {
			for c := int(r.Start[2]); c <= int(r.End[2]); c++ {
				for d := int(r.Start[3]); d <= int(r.End[3]); d++ {
					if !yield(netip.AddrFrom4([4]byte{byte(a), byte(b), byte(c), byte(d)})) {
						return false
					}
				}
			}
		}
	}
	return true
}

// Parse parses "a.b.c.d-e.f.g.h". A single address is accepted as a range
// of one.
func Parse(s string) (AddressRange, error) {
	text := strings.TrimSpace(s)
	startText, endText, found := strings.Cut(text, "-")
	if !found {
		endText = startText
	}

	start, err := parseAddr(text, startText)
	if err != nil {
		return AddressRange{}, err
	}
	end, err := parseAddr(text, endText)
	if err != nil {
		return AddressRange{}, err
	}
	return AddressRange{Start: start, End: end}, nil
}

// ParseList parses a comma separated list of ranges.
func ParseList(s string) ([]AddressRange, error) {
	var ranges []AddressRange
	for _, item := range strings.Split(s, ",") {
		if strings.TrimSpace(item) == "" {
			continue
		}
		r, err := Parse(item)
		if err != nil {
			return nil, err
		}
		ranges = append(ranges, r)
	}
	if len(ranges) == 0 {
		return nil, &InvalidRangeError{Range: s, Reason: ErrEmpty}
	}
	return ranges, nil
}

func parseAddr(rangeText, s string) ([4]uint8, error) {
	var out [4]uint8
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) != 4 {
		return out, &InvalidRangeError{
			Range:  rangeText,
			Reason: ErrMalformed,
			Detail: fmt.Sprintf("%q does not have four parts", s),
		}
	}
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return out, &InvalidRangeError{
				Range:  rangeText,
				Reason: ErrMalformed,
				Detail: fmt.Sprintf("part %q is not a number", p),
			}
		}
		if n < 0 || n > 255 {
			return out, &InvalidRangeError{
				Range:  rangeText,
				Reason: ErrOutOfRange,
				Detail: fmt.Sprintf("part %d is outside 0-255", n),
			}
		}
		out[i] = uint8(n)
	}
	return out, nil
}

// Options controls plan validation.
type Options struct {
	// AllowLarge accepts large scans
	AllowLarge bool

	// Threshold overrides DefaultLargeScanThreshold when non-zero
	Threshold uint64
}

// Plan is a validated, ordered sequence of distinct scan addresses.
type Plan struct {
	ranges []AddressRange
	// earlier[i] holds the earlier ranges that share addresses with ranges[i]
	earlier [][]AddressRange
	count   uint64
}

// Expand validates ranges and returns their plan.
func Expand(ranges []AddressRange, opts Options) (*Plan, error) {
	if len(ranges) == 0 {
		return nil, &InvalidRangeError{Reason: ErrEmpty}
	}

	threshold := opts.Threshold
	if threshold == 0 {
		threshold = DefaultLargeScanThreshold
	}

	earlier := make([][]AddressRange, len(ranges))
	for i, r := range ranges {
		if err := r.validate(); err != nil {
			return nil, err
		}
		if r.IsLarge() && !opts.AllowLarge {
			return nil, &InvalidRangeError{
				Range:  r.String(),
				Reason: ErrLargeScan,
				Detail: "second part spans 0-255",
			}
		}
		for _, prev := range ranges[:i] {
			if _, ok := r.intersect(prev); ok {
				earlier[i] = append(earlier[i], prev)
			}
		}
	}
	total := unionCount(ranges)

	if total > threshold && !opts.AllowLarge {
		return nil, &InvalidRangeError{
			Reason: ErrLargeScan,
			Detail: fmt.Sprintf("%d addresses exceeds %d", total, threshold),
		}
	}

	return &Plan{
		ranges:  append([]AddressRange(nil), ranges...),
		earlier: earlier,
		count:   total,
	}, nil
}

// Count returns the number of distinct addresses in the plan
func (p *Plan) Count() uint64 {
	return p.count
}

// Ranges returns a copy of the ranges the plan was built from
func (p *Plan) Ranges() []AddressRange {
	return append([]AddressRange(nil), p.ranges...)
}

// All yields every address in plan order. Ranges are visited in the order
// given; an address already produced by an earlier range is skipped, so each
// address is yielded once.
func (p *Plan) All() iter.Seq[netip.Addr] {
	return func(yield func(netip.Addr) bool) {
		for i, r := range p.ranges {
			earlier := p.earlier[i]
			ok := r.all(func(addr netip.Addr) bool {
				for _, prev := range earlier {
					if prev.Contains(addr) {
						return true
					}
				}
				return yield(addr)
			})
			if !ok {
				return
			}
		}
	}
}

// Contains reports whether addr is produced by any range of the plan.
func (p *Plan) Contains(addr netip.Addr) bool {
	for _, r := range p.ranges {
		if r.Contains(addr) {
			return true
		}
	}
	return false
}
