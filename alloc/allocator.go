package alloc

import (
	"io"
	"unsafe"
)

// Allocator is the operation set shared by every backend and wrapper.
type Allocator interface {
	// Alloc returns a block of exactly l.Size bytes aligned to l.Align, or nil.
	Alloc(l Layout) []byte

	// Dealloc releases a block previously returned by Alloc with the same layout.
	// Freeing a block the allocator does not own panics with a *Violation.
	Dealloc(p []byte, l Layout)

	// Owns reports whether p was handed out by this allocator.
	Owns(p []byte, l Layout) bool

	// SetID stamps the allocator (and anything it wraps) with its registry identity.
	SetID(id AllocID)

	// ID returns the identity set by SetID.
	ID() AllocID
}

// FreeSupporter is implemented by allocators that can report whether Dealloc
// actually returns memory for reuse.
type FreeSupporter interface {
	SupportsFree() bool
}

// Resetter is implemented by allocators that can release every block at once.
type Resetter interface {
	Reset()
}

// SupportsFree reports whether a reuses freed memory. Allocators that do not
// implement FreeSupporter are assumed to.
func SupportsFree(a Allocator) bool {
	if fs, ok := a.(FreeSupporter); ok {
		return fs.SupportsFree()
	}
	return true
}

// Close releases a's backing memory if it implements io.Closer.
func Close(a Allocator) error {
	if c, ok := a.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// BufferSource supplies the backing regions allocators carve up.
type BufferSource interface {
	AllocBuffer(l Layout) ([]byte, error)
	FreeBuffer(b []byte, l Layout)
}

// Addr returns the address of the first byte of p, or 0 for an empty slice.
func Addr(p []byte) uintptr {
	if cap(p) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(unsafe.SliceData(p)))
}

// region is the address range a region-backed allocator carves up.
type region struct {
	buf  []byte
	base uintptr
}

func newRegion(buf []byte) region {
	return region{buf: buf[:len(buf):len(buf)], base: Addr(buf)}
}

// offset returns p's offset into the region, or ok = false when p lies outside it.
func (r *region) offset(p []byte) (int, bool) {
	a := Addr(p)
	if a < r.base || a >= r.base+uintptr(len(r.buf)) {
		return 0, false
	}
	return int(a - r.base), true
}

// slice returns buf[off:off+n] with cap == len.
func (r *region) slice(off, n int) []byte {
	return r.buf[off : off+n : off+n]
}

// backing remembers where a constructor got its buffer so Close can return it.
type backing struct {
	src    BufferSource
	layout Layout
	buf    []byte
}

func (b *backing) release() {
	if b == nil || b.src == nil {
		return
	}
	src := b.src
	b.src = nil
	src.FreeBuffer(b.buf, b.layout)
}
