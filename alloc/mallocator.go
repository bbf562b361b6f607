package alloc

import (
	"fmt"
	"sync"

	"github.com/joshuapare/allockit/internal/align"
)

// Mallocator hands out memory from the Go heap.
//
// Blocks are over-allocated by Align-1 bytes so any alignment can be met. The backing
// array stays referenced in live until Dealloc, which keeps the address from being
// recycled while the block is in use. Owns always reports true: the heap cannot be
// asked, so Mallocator is the designated last resort.
type Mallocator struct {
	mu   sync.Mutex
	live map[uintptr][]byte
}

// NewMallocator returns a heap allocator.
func NewMallocator() *Mallocator {
	return &Mallocator{live: make(map[uintptr][]byte)}
}

// Alloc allocates from the Go heap and keeps the block reachable until Dealloc.
func (m *Mallocator) Alloc(l Layout) []byte {
	if !l.Valid() {
		return nil
	}
	total, ok := align.AddOverflowSafe(l.Size, l.Align-1)
	if !ok {
		return nil
	}
	raw := make([]byte, total)
	off := align.Padding(Addr(raw), l.Align)
	p := raw[off : off+l.Size : off+l.Size]

	m.mu.Lock()
	m.live[Addr(p)] = raw
	m.mu.Unlock()
	return p
}

// Dealloc drops the reference to p. Unknown blocks are a violation.
func (m *Mallocator) Dealloc(p []byte, _ Layout) {
	a := Addr(p)

	m.mu.Lock()
	_, ok := m.live[a]
	delete(m.live, a)
	m.mu.Unlock()

	if !ok {
		violate(ErrUnknownPointer, p, Malloc, "not a live heap block")
	}
}

// Owns is always true: the heap cannot be asked.
func (m *Mallocator) Owns([]byte, Layout) bool { return true }

// SetID is ignored: heap blocks always belong to Malloc.
func (m *Mallocator) SetID(AllocID) {}

// ID is always Malloc.
func (m *Mallocator) ID() AllocID { return Malloc }

// Live returns the number of outstanding blocks.
func (m *Mallocator) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}

// AllocBuffer implements BufferSource.
func (m *Mallocator) AllocBuffer(l Layout) ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLayout, l)
	}
	p := m.Alloc(l)
	if p == nil {
		return nil, fmt.Errorf("%w: %v", ErrOutOfMemory, l)
	}
	return p, nil
}

// FreeBuffer implements BufferSource.
func (m *Mallocator) FreeBuffer(b []byte, l Layout) {
	m.Dealloc(b, l)
}

var (
	_ Allocator    = (*Mallocator)(nil)
	_ BufferSource = (*Mallocator)(nil)
)
