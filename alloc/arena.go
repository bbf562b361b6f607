package alloc

import (
	"errors"
	"fmt"
	"sync"
)

// ArenaBuffers resolves the buffer source new arena instances are carved from.
// It is called on first growth, so the designated source may be registered after
// the arena is built.
type ArenaBuffers func() (BufferSource, error)

// StaticBuffers returns an ArenaBuffers that always yields src.
func StaticBuffers(src BufferSource) ArenaBuffers {
	return func() (BufferSource, error) { return src, nil }
}

// ExpandableArena grows a list of same-kind allocator instances on demand.
//
// Instances are tried in insertion order. When every instance rejects a request
// exactly one new instance is built with ctor and the request is retried against it.
// A request the fresh instance cannot serve either is too large for the kind; the
// instance is closed and nil is returned.
type ExpandableArena struct {
	mu        sync.Mutex
	ctor      Constructor
	buffers   ArenaBuffers
	src       BufferSource
	instances []Allocator
	id        AllocID
	lastErr   error
}

// NewExpandableArena returns an empty arena. No instance is built until the first Alloc.
func NewExpandableArena(ctor Constructor, buffers ArenaBuffers) *ExpandableArena {
	return &ExpandableArena{ctor: ctor, buffers: buffers}
}

// Alloc tries every instance in order and grows by one instance when all of them refuse.
func (a *ExpandableArena) Alloc(l Layout) []byte {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, inst := range a.instances {
		if p := inst.Alloc(l); p != nil {
			return p
		}
	}

	inst, err := a.grow()
	if err != nil {
		a.lastErr = err
		return nil
	}
	p := inst.Alloc(l)
	if p == nil {
		a.lastErr = errors.Join(
			fmt.Errorf("%w: %v does not fit a fresh arena instance", ErrOutOfMemory, l),
			Close(inst),
		)
		return nil
	}
	a.instances = append(a.instances, inst)
	return p
}

func (a *ExpandableArena) grow() (Allocator, error) {
	if a.src == nil {
		src, err := a.buffers()
		if err != nil {
			return nil, fmt.Errorf("arena buffers: %w", err)
		}
		a.src = src
	}
	inst, err := a.ctor(a.src)
	if err != nil {
		return nil, fmt.Errorf("arena instance: %w", err)
	}
	inst.SetID(a.id)
	return inst, nil
}

// Dealloc returns p to the instance that owns it. No owner is a violation.
func (a *ExpandableArena) Dealloc(p []byte, l Layout) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, inst := range a.instances {
		if inst.Owns(p, l) {
			inst.Dealloc(p, l)
			return
		}
	}
	violate(ErrNotOwned, p, a.id, "no arena instance owns the block (%d instances)", len(a.instances))
}

// Owns reports whether any instance owns p.
func (a *ExpandableArena) Owns(p []byte, l Layout) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, inst := range a.instances {
		if inst.Owns(p, l) {
			return true
		}
	}
	return false
}

// SetID stamps the arena and every instance built so far; later instances inherit it.
func (a *ExpandableArena) SetID(id AllocID) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.id = id
	for _, inst := range a.instances {
		inst.SetID(id)
	}
}

// ID returns the arena's registry id.
func (a *ExpandableArena) ID() AllocID {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.id
}

// Instances returns the number of instances built so far.
func (a *ExpandableArena) Instances() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.instances)
}

// Err returns the reason the most recent growth failed, if any.
func (a *ExpandableArena) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastErr
}

// Close releases every instance.
func (a *ExpandableArena) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var errs []error
	for _, inst := range a.instances {
		errs = append(errs, Close(inst))
	}
	a.instances = nil
	return errors.Join(errs...)
}

var _ Allocator = (*ExpandableArena)(nil)
