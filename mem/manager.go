package mem

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/joshuapare/allockit/alloc"
	"github.com/joshuapare/allockit/internal/align"
)

// entry is one registry slot. Its mutex serialises every call into the allocator.
type entry struct {
	mu    sync.Mutex
	id    alloc.AllocID
	name  string
	a     alloc.Allocator
	stats Stats
}

func (e *entry) alloc(l alloc.Layout) []byte {
	e.mu.Lock()
	defer e.mu.Unlock()

	p := e.a.Alloc(l)
	if p == nil {
		e.stats.Failures++
		return nil
	}
	e.stats.recordAlloc(l.Size)
	return p
}

func (e *entry) dealloc(p []byte, l alloc.Layout) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.a.Dealloc(p, l)
	e.stats.recordFree(l.Size)
}

func (e *entry) snapshot() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.stats
	s.ID, s.Name = e.id, e.name
	return s
}

// Option configures a Manager.
type Option func(*Manager)

// WithDefault sets the allocator used when alloc.Default resolves to nothing.
// alloc.Default and alloc.Untracked are ignored.
func WithDefault(id alloc.AllocID) Option {
	return func(m *Manager) {
		if id == alloc.Default || id == alloc.Untracked {
			m.log.Warn("ignoring invalid default allocator", zap.Stringer("id", id))
			return
		}
		m.def = id
	}
}

// WithLogger sets the manager's logger. Defaults to Logger().
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// WithTombstones sets how many freed addresses are remembered for double-free
// detection. Zero disables detection.
func WithTombstones(n int) Option {
	return func(m *Manager) { m.tombstones = max(n, 0) }
}

// Manager is a registry of allocators plus the header table for their blocks.
// All methods are safe for concurrent use.
type Manager struct {
	mu      sync.RWMutex
	entries []*entry // index is the registry id, nil for a free slot
	holes   int      // nil slots in entries
	def     alloc.AllocID
	closed  bool

	heap    *entry // serves alloc.Malloc
	headers *headerTable

	tombstones int
	log        *zap.Logger

	modMu   sync.Mutex
	modules map[string]Module
}

// New returns an empty manager whose default allocator is alloc.Malloc.
func New(opts ...Option) *Manager {
	m := &Manager{
		def:        alloc.Malloc,
		tombstones: DefaultTombstones,
		log:        Logger(),
		modules:    make(map[string]Module),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.heap = &entry{id: alloc.Malloc, name: "malloc", a: alloc.NewMallocator()}
	m.headers = newHeaderTable(m.tombstones)
	return m
}

// Register adds a to the registry under the lowest free id and stamps a with it.
func (m *Manager) Register(a alloc.Allocator) (alloc.AllocID, error) {
	return m.RegisterNamed("", a)
}

// RegisterNamed is Register with a display name used in stats and logs.
func (m *Manager) RegisterNamed(name string, a alloc.Allocator) (alloc.AllocID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return alloc.Default, ErrShutdown
	}

	slot := -1
	if m.holes > 0 {
		slot = slices.Index(m.entries, nil)
		m.holes--
	} else {
		if len(m.entries) > alloc.MaxRegistryID {
			return alloc.Default, ErrRegistryFull
		}
		slot = len(m.entries)
		m.entries = append(m.entries, nil)
	}

	id := alloc.ID(uint16(slot))
	a.SetID(id)
	m.entries[slot] = &entry{id: id, name: name, a: a}

	m.log.Debug("registered allocator",
		zap.Stringer("id", id),
		zap.String("name", name),
		zap.String("type", fmt.Sprintf("%T", a)))
	return id, nil
}

// Unregister removes id from the registry and hands the allocator back to the
// caller, who becomes responsible for closing it.
func (m *Manager) Unregister(id alloc.AllocID) (alloc.Allocator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.lookupLocked(id)
	if err != nil {
		return nil, err
	}
	// The entry lock may be held by an allocation that is itself waiting on m.mu
	// (arena growth through Buffers), so count live blocks from the header table.
	if live := m.headers.count(id); live > 0 {
		return nil, fmt.Errorf("%w: %s has %d blocks", ErrLiveAllocations, id, live)
	}

	n, _ := id.Index()
	m.entries[n] = nil
	m.holes++
	for len(m.entries) > 0 && m.entries[len(m.entries)-1] == nil {
		m.entries = m.entries[:len(m.entries)-1]
		m.holes--
	}
	if m.def == id {
		m.def = alloc.Malloc
	}
	m.log.Debug("unregistered allocator", zap.Stringer("id", id))
	return e.a, nil
}

// SetDefault sets the allocator that alloc.Default resolves to when no scope is active.
func (m *Manager) SetDefault(id alloc.AllocID) error {
	if id == alloc.Default || id == alloc.Untracked {
		return fmt.Errorf("%w: %s", ErrInvalidDefault, id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if id.IsRegistered() {
		if _, err := m.lookupLocked(id); err != nil {
			return err
		}
	}
	m.def = id
	return nil
}

// DefaultID returns the manager's default allocator.
func (m *Manager) DefaultID() alloc.AllocID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.def
}

// Resolve maps alloc.Default to the calling goroutine's active scope, then to the
// manager default. Other ids are returned unchanged.
func (m *Manager) Resolve(id alloc.AllocID) alloc.AllocID {
	if id != alloc.Default {
		return id
	}
	if top, ok := scopeTop(); ok && top != alloc.Default {
		return top
	}
	return m.DefaultID()
}

// Lookup returns the allocator registered under id.
func (m *Manager) Lookup(id alloc.AllocID) (alloc.Allocator, bool) {
	e, err := m.entry(id)
	if err != nil {
		return nil, false
	}
	return e.a, true
}

func (m *Manager) entry(id alloc.AllocID) (*entry, error) {
	if id == alloc.Malloc {
		return m.heap, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lookupLocked(id)
}

func (m *Manager) lookupLocked(id alloc.AllocID) (*entry, error) {
	n, ok := id.Index()
	if !ok || int(n) >= len(m.entries) || m.entries[n] == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnregistered, id)
	}
	return m.entries[n], nil
}

// Alloc allocates l through id, resolving alloc.Default first, and records a header.
// alloc.Untracked allocations get no header.
func (m *Manager) Alloc(id alloc.AllocID, l alloc.Layout, init alloc.InitState) ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("mem: %w: %v", alloc.ErrInvalidLayout, l)
	}
	id = m.Resolve(id)
	if id == alloc.Untracked {
		return m.AllocUntracked(l, init), nil
	}

	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return nil, ErrShutdown
	}

	e, err := m.entry(id)
	if err != nil {
		return nil, err
	}
	p := e.alloc(l)
	if p == nil {
		return nil, fmt.Errorf("mem: allocator %s: %w: %v", id, alloc.ErrOutOfMemory, l)
	}
	if init == alloc.Zeroed {
		clear(p)
	}
	if !m.headers.put(alloc.Addr(p), Header{ID: id, Layout: l}) {
		m.violate(alloc.ErrUnknownPointer, alloc.Addr(p), id, "allocator returned a block that is still live (reset outside the manager?)")
	}
	return p, nil
}

// Dealloc frees p, which must have been allocated with layout l.
func (m *Manager) Dealloc(p []byte, l alloc.Layout) {
	m.free(p, &l)
}

// Free frees p using the layout recorded in its header.
func (m *Manager) Free(p []byte) {
	m.free(p, nil)
}

func (m *Manager) free(p []byte, want *alloc.Layout) {
	addr := alloc.Addr(p)
	if h, ok := m.headers.get(addr); ok && cap(p) < h.Layout.Size {
		m.violate(alloc.ErrLayoutMismatch, addr, h.ID, "block capacity %d is below its allocated size %d", cap(p), h.Layout.Size)
	}
	h, res := m.headers.take(addr, want)
	switch res {
	case headerFreed:
		m.violate(alloc.ErrDoubleFree, addr, alloc.Default, "block already freed")
	case headerUnknown:
		m.violate(alloc.ErrUnknownPointer, addr, alloc.Default, "no header for block")
	case headerMismatch:
		m.violate(alloc.ErrLayoutMismatch, addr, h.ID, "freed with %v, allocated with %v", *want, h.Layout)
	}

	e, err := m.entry(h.ID)
	if err != nil {
		m.violate(ErrUnregistered, addr, h.ID, "allocator removed while block was live")
	}
	e.dealloc(p[:cap(p)][:h.Layout.Size:h.Layout.Size], h.Layout)
}

// Realloc moves p into a block of newSize bytes allocated through the same
// allocator and frees p. The first min(old, new) bytes are preserved.
func (m *Manager) Realloc(p []byte, newSize int) ([]byte, error) {
	addr := alloc.Addr(p)
	h, ok := m.headers.get(addr)
	if !ok {
		if m.headers.tombstoned(addr) {
			m.violate(alloc.ErrDoubleFree, addr, alloc.Default, "realloc of freed block")
		}
		m.violate(alloc.ErrUnknownPointer, addr, alloc.Default, "realloc of block with no header")
	}
	if cap(p) < h.Layout.Size {
		m.violate(alloc.ErrLayoutMismatch, addr, h.ID, "block capacity %d is below its allocated size %d", cap(p), h.Layout.Size)
	}

	l, err := alloc.NewLayout(newSize, h.Layout.Align)
	if err != nil {
		return nil, fmt.Errorf("mem: realloc: %w", err)
	}
	np, err := m.Alloc(h.ID, l, alloc.Uninitialized)
	if err != nil {
		return nil, err
	}
	copy(np, p[:cap(p)][:min(h.Layout.Size, newSize)])
	m.Free(p)
	return np, nil
}

// AllocUntracked allocates from the Go heap with no header. The block is reclaimed
// by the garbage collector once unreachable.
func (m *Manager) AllocUntracked(l alloc.Layout, _ alloc.InitState) []byte {
	p := untracked(l)
	// The collector may hand back the address of a tracked block freed earlier.
	m.headers.unbury(alloc.Addr(p))
	return p
}

// DeallocUntracked releases an untracked block. Passing a tracked block is a violation.
func (m *Manager) DeallocUntracked(p []byte) {
	if h, ok := m.headers.get(alloc.Addr(p)); ok {
		m.violate(ErrTrackedPointer, alloc.Addr(p), h.ID, "tracked block freed as untracked")
	}
}

// untracked returns a zeroed, aligned Go heap block.
func untracked(l alloc.Layout) []byte {
	raw := make([]byte, l.Size+l.Align-1)
	off := align.Padding(alloc.Addr(raw), l.Align)
	return raw[off : off+l.Size : off+l.Size]
}

// Header returns the header recorded for p.
func (m *Manager) Header(p []byte) (Header, bool) {
	return m.headers.get(alloc.Addr(p))
}

// Live returns the number of tracked blocks across all allocators.
func (m *Manager) Live() int {
	return m.headers.len()
}

// Buffers returns a BufferSource that carves regions out of id. It is how an
// ExpandableArena obtains new instances through a designated arena allocator.
func (m *Manager) Buffers(id alloc.AllocID) alloc.BufferSource {
	return managerBuffers{m: m, id: id}
}

type managerBuffers struct {
	m  *Manager
	id alloc.AllocID
}

func (b managerBuffers) AllocBuffer(l alloc.Layout) ([]byte, error) {
	return b.m.Alloc(b.id, l, alloc.Uninitialized)
}

func (b managerBuffers) FreeBuffer(p []byte, l alloc.Layout) {
	b.m.Dealloc(p, l)
}

// Stats returns the counters for id.
func (m *Manager) Stats(id alloc.AllocID) (Stats, bool) {
	e, err := m.entry(id)
	if err != nil {
		return Stats{}, false
	}
	return e.snapshot(), true
}

// Snapshot returns the counters of every registered allocator in id order,
// followed by alloc.Malloc.
func (m *Manager) Snapshot() []Stats {
	m.mu.RLock()
	entries := make([]*entry, 0, len(m.entries)+1)
	for _, e := range m.entries {
		if e != nil {
			entries = append(entries, e)
		}
	}
	m.mu.RUnlock()
	entries = append(entries, m.heap)

	out := make([]Stats, len(entries))
	for i, e := range entries {
		out[i] = e.snapshot()
	}
	return out
}

// Reset rewinds the allocator registered under id and drops the headers of every
// block it had handed out. The allocator must implement alloc.Resetter.
func (m *Manager) Reset(id alloc.AllocID) error {
	e, err := m.entry(id)
	if err != nil {
		return err
	}
	r, ok := e.a.(alloc.Resetter)
	if !ok {
		return fmt.Errorf("%w: %s (%T)", ErrNotResettable, id, e.a)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	r.Reset()
	blocks, _ := m.headers.drop(id)
	e.stats.Live = 0
	e.stats.LiveBytes = 0
	m.log.Debug("reset allocator", zap.Stringer("id", id), zap.Int("blocks", blocks))
	return nil
}

// Shutdown closes every registered allocator that implements io.Closer, newest
// first, logs leaked blocks and rejects further registrations and allocations.
// Calling it again is a no-op.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	entries := append([]*entry(nil), m.entries...)
	m.mu.Unlock()

	// Newest first: an arena's instances may be carved from an earlier allocator,
	// which must still be registered when they are returned.
	var errs []error
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if e == nil {
			continue
		}
		if _, ok := e.a.(io.Closer); !ok {
			continue
		}
		e.mu.Lock()
		err := alloc.Close(e.a)
		e.mu.Unlock()
		if err != nil {
			errs = append(errs, fmt.Errorf("close allocator %s: %w", e.id, err))
		}
	}

	for _, e := range append(entries, m.heap) {
		if e == nil {
			continue
		}
		if s := e.snapshot(); s.Live > 0 {
			m.log.Warn("allocator leaked blocks at shutdown",
				zap.Stringer("id", s.ID),
				zap.String("name", s.Name),
				zap.Int64("blocks", s.Live),
				zap.Int64("bytes", s.LiveBytes))
		}
	}

	m.mu.Lock()
	m.entries = nil
	m.mu.Unlock()
	m.headers.reset()
	m.log.Debug("memory manager shut down")
	return errors.Join(errs...)
}

// Closed reports whether Shutdown has run.
func (m *Manager) Closed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}
