package alloc

import "errors"

// Fallback tries main first and falls back when main returns nil.
type Fallback struct {
	main     Allocator
	fallback Allocator
	id       AllocID
}

// NewFallback returns an allocator that serves from main, then fallback.
func NewFallback(main, fallback Allocator) *Fallback {
	return &Fallback{main: main, fallback: fallback}
}

// Alloc tries the main allocator, then the fallback.
func (f *Fallback) Alloc(l Layout) []byte {
	if p := f.main.Alloc(l); p != nil {
		return p
	}
	return f.fallback.Alloc(l)
}

// Dealloc asks main first, then fallback, which one owns p.
func (f *Fallback) Dealloc(p []byte, l Layout) {
	switch {
	case f.main.Owns(p, l):
		f.main.Dealloc(p, l)
	case f.fallback.Owns(p, l):
		f.fallback.Dealloc(p, l)
	default:
		violate(ErrNotOwned, p, f.id, "neither side of the fallback owns the block")
	}
}

// Owns reports whether either side owns p.
func (f *Fallback) Owns(p []byte, l Layout) bool {
	return f.main.Owns(p, l) || f.fallback.Owns(p, l)
}

// SetID stamps both sides.
func (f *Fallback) SetID(id AllocID) {
	f.id = id
	f.main.SetID(id)
	f.fallback.SetID(id)
}

func (f *Fallback) ID() AllocID { return f.id }

// SupportsFree is true only when both sides support freeing.
func (f *Fallback) SupportsFree() bool {
	return SupportsFree(f.main) && SupportsFree(f.fallback)
}

// Main returns the primary allocator.
func (f *Fallback) Main() Allocator { return f.main }

// Secondary returns the fallback allocator.
func (f *Fallback) Secondary() Allocator { return f.fallback }

// Close closes both sides.
func (f *Fallback) Close() error {
	return errors.Join(Close(f.main), Close(f.fallback))
}

var _ Allocator = (*Fallback)(nil)
