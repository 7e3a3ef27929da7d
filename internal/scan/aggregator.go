package scan

import (
	"net/netip"
	"sync"

	"github.com/muurk/shellyscan/internal/identify"
)

// Entry is one identified device
type Entry struct {
	Addr           netip.Addr
	Identification identify.Identification
}

// Name returns the device name
func (e Entry) Name() string {
	return e.Identification.Name
}

// Aggregator collects identified devices keyed by address. It is safe for
// concurrent use. A second Put for the same address replaces the first but
// keeps its original position.
type Aggregator struct {
	mu      sync.Mutex
	entries map[netip.Addr]identify.Identification
	order   []netip.Addr
}

// NewAggregator creates an empty aggregator
func NewAggregator() *Aggregator {
	return &Aggregator{entries: make(map[netip.Addr]identify.Identification)}
}

// Put records the identification for addr. Last write wins.
func (a *Aggregator) Put(addr netip.Addr, ident identify.Identification) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.entries[addr]; !exists {
		a.order = append(a.order, addr)
	}
	a.entries[addr] = ident
}

// Get returns the identification recorded for addr
func (a *Aggregator) Get(addr netip.Addr) (identify.Identification, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	ident, ok := a.entries[addr]
	return ident, ok
}

// Len returns the number of distinct addresses recorded
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.order)
}

// Entries returns a snapshot of all entries in first-insertion order
func (a *Aggregator) Entries() []Entry {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]Entry, 0, len(a.order))
	for _, addr := range a.order {
		out = append(out, Entry{Addr: addr, Identification: a.entries[addr]})
	}
	return out
}
