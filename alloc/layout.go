package alloc

import (
	"fmt"
	"unsafe"

	"github.com/joshuapare/allockit/internal/align"
)

const (
	// MaxSize is the largest size a Layout may describe.
	MaxSize = 1<<40 - 1

	// MaxAlign is the largest alignment a Layout may request.
	MaxAlign = 1 << 15

	// Word is the alignment every backend honours for free.
	Word = align.Word
)

// Layout describes the size and alignment of a block.
type Layout struct {
	Size  int
	Align int
}

// NewLayout validates and returns a layout.
func NewLayout(size, alignment int) (Layout, error) {
	l := Layout{Size: size, Align: alignment}
	if !l.Valid() {
		return Layout{}, fmt.Errorf("%w: size=%d align=%d", ErrInvalidLayout, size, alignment)
	}
	return l, nil
}

// MustLayout is NewLayout that panics on an invalid layout. Intended for constants.
func MustLayout(size, alignment int) Layout {
	l, err := NewLayout(size, alignment)
	if err != nil {
		panic(err)
	}
	return l
}

// LayoutOf returns the layout of T. Zero-sized types get size 1.
func LayoutOf[T any]() Layout {
	var zero T
	size := int(unsafe.Sizeof(zero))
	if size == 0 {
		size = 1
	}
	return Layout{Size: size, Align: int(unsafe.Alignof(zero))}
}

// ArrayLayout returns the layout of [n]T.
func ArrayLayout[T any](n int) (Layout, error) {
	elem := LayoutOf[T]()
	size, ok := align.MulOverflowSafe(elem.Size, n)
	if !ok || n <= 0 {
		return Layout{}, fmt.Errorf("%w: %d elements of size %d", ErrInvalidLayout, n, elem.Size)
	}
	return NewLayout(size, elem.Align)
}

// Valid reports whether the layout can be allocated.
func (l Layout) Valid() bool {
	return l.Size > 0 && l.Size <= MaxSize && align.IsPow2(l.Align) && l.Align <= MaxAlign
}

// WithMinAlign returns l with its alignment raised to at least a.
func (l Layout) WithMinAlign(a int) Layout {
	if a > l.Align {
		l.Align = a
	}
	return l
}

// RoundedTo returns l with its size rounded up to a multiple of m (a power of two).
func (l Layout) RoundedTo(m int) Layout {
	l.Size = align.Up(l.Size, m)
	return l
}

func (l Layout) String() string {
	return fmt.Sprintf("Layout{size=%d align=%d}", l.Size, l.Align)
}
