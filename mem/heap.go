package mem

import "github.com/joshuapare/allockit/alloc"

// Heap allocates through whatever allocator is active on the calling goroutine.
// Callers never pass an AllocID; frees are routed by the block's header.
type Heap struct {
	m *Manager
}

// NewHeap returns a heap adapter bound to m.
func NewHeap(m *Manager) Heap {
	return Heap{m: m}
}

// Alloc allocates l from the active allocator.
func (h Heap) Alloc(l alloc.Layout) ([]byte, error) {
	return h.m.Alloc(alloc.Default, l, alloc.Uninitialized)
}

// AllocZeroed allocates l from the active allocator and zeroes it.
func (h Heap) AllocZeroed(l alloc.Layout) ([]byte, error) {
	return h.m.Alloc(alloc.Default, l, alloc.Zeroed)
}

// Free releases p. Blocks without a header are treated as untracked, except for
// recently freed addresses which are reported as double frees.
func (h Heap) Free(p []byte) {
	addr := alloc.Addr(p)
	if _, ok := h.m.headers.get(addr); ok {
		h.m.Free(p)
		return
	}
	if h.m.headers.tombstoned(addr) {
		h.m.violate(alloc.ErrDoubleFree, addr, alloc.Default, "block already freed")
	}
	h.m.DeallocUntracked(p)
}

// Realloc resizes p. A nil p allocates. Tracked blocks stay with their allocator;
// untracked blocks move to the active allocator.
func (h Heap) Realloc(p []byte, newSize int) ([]byte, error) {
	if p == nil {
		l, err := alloc.NewLayout(newSize, alloc.Word)
		if err != nil {
			return nil, err
		}
		return h.Alloc(l)
	}
	if _, ok := h.m.headers.get(alloc.Addr(p)); ok {
		return h.m.Realloc(p, newSize)
	}

	l, err := alloc.NewLayout(newSize, alloc.Word)
	if err != nil {
		return nil, err
	}
	np, err := h.Alloc(l)
	if err != nil {
		return nil, err
	}
	copy(np, p)
	h.Free(p)
	return np, nil
}

// Alloc allocates from the active allocator of the process-wide manager.
func Alloc(l alloc.Layout) ([]byte, error) {
	return Heap{Global()}.Alloc(l)
}

// AllocZeroed is Alloc with zeroed contents.
func AllocZeroed(l alloc.Layout) ([]byte, error) {
	return Heap{Global()}.AllocZeroed(l)
}

// Free releases a block allocated through the process-wide manager.
func Free(p []byte) {
	Heap{Global()}.Free(p)
}

// Realloc resizes a block allocated through the process-wide manager.
func Realloc(p []byte, newSize int) ([]byte, error) {
	return Heap{Global()}.Realloc(p, newSize)
}
