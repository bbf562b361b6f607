package alloc

import (
	"fmt"
	"strconv"
)

// MaxRegistryID is the largest id the memory manager assigns.
const MaxRegistryID = 0xFFFE

// IDKind distinguishes the AllocID variants.
type IDKind uint8

const (
	// KindDefault defers to the active scope.
	KindDefault IDKind = iota
	// KindRegistered names a registered allocator.
	KindRegistered
	// KindMalloc routes to the Go heap, bypassing the registry.
	KindMalloc
	// KindUntracked allocates from the Go heap with no header and no tracking.
	KindUntracked
)

// AllocID identifies the allocator that serviced (or should service) an allocation.
// The zero value is Default.
type AllocID struct {
	kind IDKind
	n    uint16
}

var (
	// Default defers to whatever the scope stack currently holds.
	Default = AllocID{}

	// Malloc always routes to the system heap.
	Malloc = AllocID{kind: KindMalloc}

	// Untracked allocations carry no header. Used before the manager exists.
	Untracked = AllocID{kind: KindUntracked}
)

// ID returns the registered id n. It panics if n is above MaxRegistryID.
func ID(n uint16) AllocID {
	if n > MaxRegistryID {
		panic(fmt.Sprintf("alloc: id %#x above MaxRegistryID", n))
	}
	return AllocID{kind: KindRegistered, n: n}
}

// Kind returns the variant of id.
func (id AllocID) Kind() IDKind {
	return id.kind
}

// Index returns the registry index for registered ids.
func (id AllocID) Index() (uint16, bool) {
	return id.n, id.kind == KindRegistered
}

// IsSentinel reports whether id is Malloc or Untracked.
func (id AllocID) IsSentinel() bool {
	return id.kind == KindMalloc || id.kind == KindUntracked
}

// IsRegistered reports whether id names a registry slot.
func (id AllocID) IsRegistered() bool {
	return id.kind == KindRegistered
}

func (id AllocID) String() string {
	switch id.kind {
	case KindDefault:
		return "default"
	case KindMalloc:
		return "malloc"
	case KindUntracked:
		return "untracked"
	default:
		return "#" + strconv.Itoa(int(id.n))
	}
}

// InitState selects what a fresh block contains.
type InitState uint8

const (
	// Uninitialized blocks have unspecified contents.
	Uninitialized InitState = iota
	// Zeroed blocks are guaranteed to be all zero.
	Zeroed
)

func (s InitState) String() string {
	if s == Zeroed {
		return "zeroed"
	}
	return "uninitialized"
}
