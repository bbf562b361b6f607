package mem

import (
	"sync"

	"github.com/joshuapare/allockit/alloc"
)

// DefaultTombstones is the number of recently freed addresses remembered for
// double-free detection.
const DefaultTombstones = 1024

// Header is the metadata recorded for every tracked block.
type Header struct {
	ID     alloc.AllocID
	Layout alloc.Layout
}

// headerTable maps block addresses to headers.
//
// A header is written once by put and consumed once by take. Consumed addresses
// enter a fixed-size ring of tombstones and the oldest tombstone is forgotten when
// the ring is full. An address can sit in the ring more than once, so tombs counts
// occurrences. Live headers always win over tombstones.
type headerTable struct {
	mu    sync.Mutex
	live  map[uintptr]Header
	tombs map[uintptr]int
	ring  []uintptr
	next  int
}

func newHeaderTable(tombstones int) *headerTable {
	return &headerTable{
		live:  make(map[uintptr]Header),
		tombs: make(map[uintptr]int, tombstones),
		ring:  make([]uintptr, tombstones),
	}
}

// put records h for addr. It reports false if addr already has a live header.
func (t *headerTable) put(addr uintptr, h Header) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.live[addr]; ok {
		return false
	}
	t.live[addr] = h
	return true
}

func (t *headerTable) get(addr uintptr) (Header, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.live[addr]
	return h, ok
}

// lookupResult classifies an address passed to take.
type lookupResult uint8

const (
	headerFound lookupResult = iota
	headerFreed              // tombstoned: freed recently
	headerUnknown
	headerMismatch
)

// take consumes the header for addr. When want is non-nil the recorded layout
// must equal *want, otherwise the header stays in place and headerMismatch is
// returned along with it.
func (t *headerTable) take(addr uintptr, want *alloc.Layout) (Header, lookupResult) {
	t.mu.Lock()
	defer t.mu.Unlock()

	h, ok := t.live[addr]
	if !ok {
		if _, dead := t.tombs[addr]; dead {
			return Header{}, headerFreed
		}
		return Header{}, headerUnknown
	}
	if want != nil && h.Layout != *want {
		return h, headerMismatch
	}
	delete(t.live, addr)
	t.bury(addr)
	return h, headerFound
}

// bury adds addr to the tombstone ring. Caller holds t.mu.
func (t *headerTable) bury(addr uintptr) {
	if len(t.ring) == 0 {
		return
	}
	if old := t.ring[t.next]; old != 0 {
		if t.tombs[old] > 1 {
			t.tombs[old]--
		} else {
			delete(t.tombs, old)
		}
	}
	t.ring[t.next] = addr
	t.tombs[addr]++
	t.next = (t.next + 1) % len(t.ring)
}

// drop removes every live header belonging to id without tombstoning it and
// returns how many blocks and bytes were dropped.
func (t *headerTable) drop(id alloc.AllocID) (int, int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	blocks, bytes := 0, 0
	for addr, h := range t.live {
		if h.ID == id {
			blocks++
			bytes += h.Layout.Size
			delete(t.live, addr)
		}
	}
	return blocks, bytes
}

// unbury forgets every tombstone for addr. Called when an address is handed out
// again outside the table, so a later free of it is not taken for a double free.
func (t *headerTable) unbury(addr uintptr) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.tombs[addr]; !ok {
		return
	}
	delete(t.tombs, addr)
	for i, a := range t.ring {
		if a == addr {
			t.ring[i] = 0
		}
	}
}

// count returns the number of live headers belonging to id.
func (t *headerTable) count(id alloc.AllocID) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for _, h := range t.live {
		if h.ID == id {
			n++
		}
	}
	return n
}

func (t *headerTable) tombstoned(addr uintptr) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.tombs[addr]
	return ok
}

func (t *headerTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.live)
}

func (t *headerTable) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	clear(t.live)
	clear(t.tombs)
	clear(t.ring)
	t.next = 0
}
