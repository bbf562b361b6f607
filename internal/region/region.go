// Package region reserves contiguous memory regions for allocator backends.
//
// On unix targets regions are anonymous private mappings that live outside the Go
// heap, so backends hand out memory the garbage collector never scans or moves.
// Elsewhere regions fall back to ordinary heap slices.
package region

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"github.com/joshuapare/allockit/alloc"
	"github.com/joshuapare/allockit/internal/align"
)

// ErrNotReserved is returned when releasing memory that was not reserved by the Source.
var ErrNotReserved = errors.New("region: buffer was not reserved by this source")

// Source reserves regions and implements alloc.BufferSource.
//
// The zero value is not usable; call NewSource.
type Source struct {
	mu sync.Mutex
	// live maps the aligned region address to the full reservation backing it.
	live map[uintptr][]byte
}

// NewSource returns an empty region source.
func NewSource() *Source {
	return &Source{live: make(map[uintptr][]byte)}
}

// AllocBuffer reserves a region of l.Size bytes aligned to l.Align.
func (s *Source) AllocBuffer(l alloc.Layout) ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("region: %w: %v", alloc.ErrInvalidLayout, l)
	}

	total := l.Size
	if l.Align > pageSize() {
		var ok bool
		total, ok = align.AddOverflowSafe(l.Size, l.Align)
		if !ok {
			return nil, fmt.Errorf("region: size %d: %w", l.Size, alloc.ErrOutOfMemory)
		}
	}

	raw, err := reserve(total)
	if err != nil {
		return nil, fmt.Errorf("region: reserve %d bytes: %w: %w", total, alloc.ErrOutOfMemory, err)
	}

	base := uintptr(unsafe.Pointer(unsafe.SliceData(raw)))
	off := align.Padding(base, l.Align)
	buf := raw[off : off+l.Size : off+l.Size]

	s.mu.Lock()
	s.live[base+uintptr(off)] = raw
	s.mu.Unlock()

	return buf, nil
}

// FreeBuffer releases a region previously returned by AllocBuffer.
func (s *Source) FreeBuffer(b []byte, _ alloc.Layout) {
	if err := s.Release(b); err != nil {
		panic(alloc.NewViolation(alloc.ErrNotOwned, addrOf(b), alloc.Untracked, err.Error()))
	}
}

// Release returns the region backing b to the operating system.
func (s *Source) Release(b []byte) error {
	addr := addrOf(b)

	s.mu.Lock()
	raw, ok := s.live[addr]
	if ok {
		delete(s.live, addr)
	}
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %#x", ErrNotReserved, addr)
	}
	return release(raw)
}

// Reserved returns the number of live regions.
func (s *Source) Reserved() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}

func addrOf(b []byte) uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(b)))
}

var _ alloc.BufferSource = (*Source)(nil)
