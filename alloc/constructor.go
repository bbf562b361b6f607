package alloc

import (
	"fmt"

	"github.com/joshuapare/allockit/internal/align"
)

// Constructor builds an allocator whose backing region comes from src. The
// allocator returns the region to src when closed.
type Constructor func(src BufferSource) (Allocator, error)

// acquire takes a size-byte region aligned to alignment from src.
func acquire(src BufferSource, size, alignment int) (*backing, error) {
	l, err := NewLayout(size, alignment)
	if err != nil {
		return nil, err
	}
	buf, err := src.AllocBuffer(l)
	if err != nil {
		return nil, err
	}
	return &backing{src: src, layout: l, buf: buf}, nil
}

// LinearConstructor builds Linear allocators of size bytes.
func LinearConstructor(size int) Constructor {
	return func(src BufferSource) (Allocator, error) {
		b, err := acquire(src, size, Word)
		if err != nil {
			return nil, fmt.Errorf("linear: %w", err)
		}
		a := NewLinear(b.buf)
		a.back = b
		return a, nil
	}
}

// StackConstructor builds Stack allocators of size bytes.
func StackConstructor(size, maxAlign int) Constructor {
	return func(src BufferSource) (Allocator, error) {
		if !align.IsPow2(maxAlign) || maxAlign > MaxAlign {
			return nil, fmt.Errorf("stack: %w: max alignment %d", ErrInvalidConfig, maxAlign)
		}
		b, err := acquire(src, size, max(maxAlign, Word))
		if err != nil {
			return nil, fmt.Errorf("stack: %w", err)
		}
		s, err := NewStack(b.buf, maxAlign)
		if err != nil {
			b.release()
			return nil, err
		}
		s.back = b
		return s, nil
	}
}

// PoolConstructor builds Pools of size bytes split into block-sized blocks. size is
// rounded down to a whole number of blocks.
func PoolConstructor(size, block int) Constructor {
	return func(src BufferSource) (Allocator, error) {
		if block < Word || block%Word != 0 {
			return nil, fmt.Errorf("pool: %w: block size %d", ErrInvalidConfig, block)
		}
		b, err := acquire(src, size-size%block, min(align.LowBit(uintptr(block)), MaxAlign))
		if err != nil {
			return nil, fmt.Errorf("pool: %w", err)
		}
		p, err := NewPool(b.buf, block)
		if err != nil {
			b.release()
			return nil, err
		}
		p.back = b
		return p, nil
	}
}

// BitmapConstructor builds Bitmaps with count data blocks of block bytes.
func BitmapConstructor(block, count int) Constructor {
	return func(src BufferSource) (Allocator, error) {
		if block < Word || block%Word != 0 || count <= 0 {
			return nil, fmt.Errorf("bitmap: %w: %d blocks of %d bytes", ErrInvalidConfig, count, block)
		}
		b, err := acquire(src, BitmapBufferSize(block, count), Word)
		if err != nil {
			return nil, fmt.Errorf("bitmap: %w", err)
		}
		bm, err := NewBitmap(b.buf, block)
		if err != nil {
			b.release()
			return nil, err
		}
		bm.back = b
		return bm, nil
	}
}

// FreelistConstructor builds Freelists of size bytes.
func FreelistConstructor(size int, policy FitPolicy) Constructor {
	return func(src BufferSource) (Allocator, error) {
		b, err := acquire(src, size, Word)
		if err != nil {
			return nil, fmt.Errorf("freelist: %w", err)
		}
		f := NewFreelist(b.buf, policy)
		f.back = b
		return f, nil
	}
}
