package alloc

import "github.com/joshuapare/allockit/internal/align"

// Linear is a bump allocator. Dealloc only checks ownership; memory comes back
// all at once through Reset.
type Linear struct {
	region
	off  int
	id   AllocID
	back *backing
}

// NewLinear returns a bump allocator over buf. A nil buf gives an allocator with
// zero capacity that rejects everything.
func NewLinear(buf []byte) *Linear {
	return &Linear{region: newRegion(buf)}
}

// Alloc bumps the cursor past l, aligned against the block's real address.
// It returns nil when the rest of the buffer is too small.
func (a *Linear) Alloc(l Layout) []byte {
	if !l.Valid() {
		return nil
	}
	start := a.off + align.Padding(a.base+uintptr(a.off), l.Align)
	end, ok := align.AddOverflowSafe(start, l.Size)
	if !ok || end > len(a.buf) {
		return nil
	}
	a.off = end
	return a.slice(start, l.Size)
}

// Dealloc only checks ownership. Memory comes back on Reset.
func (a *Linear) Dealloc(p []byte, l Layout) {
	if !a.Owns(p, l) {
		violate(ErrNotOwned, p, a.id, "linear allocator")
	}
}

// Owns reports whether p lies in the bumped part of the region.
func (a *Linear) Owns(p []byte, _ Layout) bool {
	off, ok := a.offset(p)
	return ok && off < a.off
}

// SetID records the registry id.
func (a *Linear) SetID(id AllocID) { a.id = id }

// ID returns the registry id.
func (a *Linear) ID() AllocID { return a.id }

// SupportsFree reports false: frees are no-ops until Reset.
func (a *Linear) SupportsFree() bool { return false }

// Reset rewinds the cursor, invalidating every block.
func (a *Linear) Reset() { a.off = 0 }

// Used returns the number of bytes consumed, padding included.
func (a *Linear) Used() int { return a.off }

// Cap returns the region size.
func (a *Linear) Cap() int { return len(a.buf) }

// Close returns the region to the source it came from.
func (a *Linear) Close() error {
	a.back.release()
	a.region = region{}
	a.off = 0
	return nil
}

var _ Allocator = (*Linear)(nil)
