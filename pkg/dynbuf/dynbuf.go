// Package dynbuf is a growable byte buffer whose storage comes from the memory
// manager rather than the Go heap.
//
// A Buffer remembers the allocator that was active when it was created, so
//
//	mem.With(frameID, func() {
//	    b = dynbuf.New(m)
//	})
//
// keeps growing inside frameID even after the scope has exited.
package dynbuf

import (
	"fmt"
	"io"

	"github.com/joshuapare/allockit/alloc"
	"github.com/joshuapare/allockit/mem"
)

const minCap = 64

// Buffer is an io.Writer backed by manager-allocated memory. Release returns the
// memory; the zero value is not usable.
type Buffer struct {
	m   *mem.Manager
	id  alloc.AllocID
	buf []byte // full allocation; len(buf) is the capacity
	n   int
}

// New returns an empty buffer that allocates from the allocator active on the
// calling goroutine.
func New(m *mem.Manager) *Buffer {
	return NewIn(m, m.Resolve(alloc.Default))
}

// NewIn returns an empty buffer that allocates from id.
func NewIn(m *mem.Manager, id alloc.AllocID) *Buffer {
	return &Buffer{m: m, id: id}
}

// ID returns the allocator the buffer grows in.
func (b *Buffer) ID() alloc.AllocID { return b.id }

// grow makes room for at least n more bytes, doubling the allocation.
func (b *Buffer) grow(n int) error {
	if b.n+n <= len(b.buf) {
		return nil
	}
	want := max(2*len(b.buf), b.n+n, minCap)

	if b.buf == nil {
		l, err := alloc.NewLayout(want, alloc.Word)
		if err != nil {
			return err
		}
		p, err := b.m.Alloc(b.id, l, alloc.Uninitialized)
		if err != nil {
			return fmt.Errorf("dynbuf: grow to %d: %w", want, err)
		}
		b.buf = p
		return nil
	}

	p, err := b.m.Realloc(b.buf, want)
	if err != nil {
		return fmt.Errorf("dynbuf: grow to %d: %w", want, err)
	}
	b.buf = p
	return nil
}

// Write appends p. It implements io.Writer.
func (b *Buffer) Write(p []byte) (int, error) {
	if err := b.grow(len(p)); err != nil {
		return 0, err
	}
	b.n += copy(b.buf[b.n:], p)
	return len(p), nil
}

// WriteString appends s.
func (b *Buffer) WriteString(s string) (int, error) {
	if err := b.grow(len(s)); err != nil {
		return 0, err
	}
	b.n += copy(b.buf[b.n:], s)
	return len(s), nil
}

// WriteByte appends c.
func (b *Buffer) WriteByte(c byte) error {
	if err := b.grow(1); err != nil {
		return err
	}
	b.buf[b.n] = c
	b.n++
	return nil
}

// Bytes returns the written bytes. The slice is valid until the next write or Release.
func (b *Buffer) Bytes() []byte { return b.buf[:b.n:b.n] }

// String returns the written bytes as a string.
func (b *Buffer) String() string { return string(b.buf[:b.n]) }

// Len returns the number of written bytes.
func (b *Buffer) Len() int { return b.n }

// Cap returns the size of the current allocation.
func (b *Buffer) Cap() int { return len(b.buf) }

// Reset empties the buffer but keeps its allocation.
func (b *Buffer) Reset() { b.n = 0 }

// Release frees the allocation. The buffer can be reused afterwards.
func (b *Buffer) Release() {
	if b.buf != nil {
		b.m.Free(b.buf)
	}
	b.buf, b.n = nil, 0
}

var (
	_ io.Writer       = (*Buffer)(nil)
	_ io.StringWriter = (*Buffer)(nil)
	_ io.ByteWriter   = (*Buffer)(nil)
)
