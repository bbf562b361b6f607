package alloc

import (
	"fmt"

	"github.com/joshuapare/allockit/internal/align"
)

// Stack is a bump allocator with strict LIFO deallocation.
//
// Every request is rounded up to a multiple of maxAlign and requests that need more
// than maxAlign are rejected, so the cursor always stays maxAlign-aligned relative to
// the region start.
type Stack struct {
	region
	top      int
	maxAlign int
	frames   []frame
	id       AllocID
	back     *backing
}

// frame records one live allocation: where it starts and the cursor before it.
type frame struct {
	start int
	prev  int
}

// Marker is a saved stack position.
type Marker struct {
	top   int
	depth int
}

// NewStack returns a LIFO allocator over buf.
func NewStack(buf []byte, maxAlign int) (*Stack, error) {
	if !align.IsPow2(maxAlign) || maxAlign > MaxAlign {
		return nil, fmt.Errorf("%w: stack max alignment %d", ErrInvalidConfig, maxAlign)
	}
	return &Stack{region: newRegion(buf), maxAlign: maxAlign}, nil
}

// Alloc pushes a frame for l. Sizes round up to the stack's alignment; larger
// alignments are refused with nil.
func (s *Stack) Alloc(l Layout) []byte {
	if !l.Valid() || l.Align > s.maxAlign {
		return nil
	}
	size := align.Up(l.Size, s.maxAlign)
	start := s.top + align.Padding(s.base+uintptr(s.top), l.Align)
	end, ok := align.AddOverflowSafe(start, size)
	if !ok || end > len(s.buf) {
		return nil
	}
	s.frames = append(s.frames, frame{start: start, prev: s.top})
	s.top = end
	return s.slice(start, l.Size)
}

// Dealloc pops the top block. p must be the most recent live allocation.
func (s *Stack) Dealloc(p []byte, _ Layout) {
	off, ok := s.offset(p)
	if !ok {
		violate(ErrNotOwned, p, s.id, "stack allocator")
	}
	if len(s.frames) == 0 {
		violate(ErrDoubleFree, p, s.id, "stack is empty")
	}
	last := s.frames[len(s.frames)-1]
	if last.start != off {
		violate(ErrStackOrder, p, s.id, "offset %d freed while top block starts at %d", off, last.start)
	}
	s.frames = s.frames[:len(s.frames)-1]
	s.top = last.prev
}

// Owns reports whether p lies below the current top.
func (s *Stack) Owns(p []byte, _ Layout) bool {
	off, ok := s.offset(p)
	return ok && off < s.top
}

// SetID records the registry id.
func (s *Stack) SetID(id AllocID) { s.id = id }

// ID returns the registry id.
func (s *Stack) ID() AllocID { return s.id }

// Mark saves the current position.
func (s *Stack) Mark() Marker {
	return Marker{top: s.top, depth: len(s.frames)}
}

// Rewind pops every allocation made since m was taken.
func (s *Stack) Rewind(m Marker) {
	if m.top > s.top || m.depth > len(s.frames) {
		panic(NewViolation(ErrStackOrder, s.base+uintptr(m.top), s.id,
			fmt.Sprintf("rewind forward to %d from %d", m.top, s.top)))
	}
	s.frames = s.frames[:m.depth]
	s.top = m.top
}

// Reset pops everything.
func (s *Stack) Reset() {
	s.frames = s.frames[:0]
	s.top = 0
}

// Used returns the number of bytes currently pushed.
func (s *Stack) Used() int { return s.top }

// Depth returns the number of live blocks.
func (s *Stack) Depth() int { return len(s.frames) }

// Close returns the buffer to the source it came from, if any.
func (s *Stack) Close() error {
	s.back.release()
	s.region = region{}
	s.Reset()
	return nil
}

var _ Allocator = (*Stack)(nil)
