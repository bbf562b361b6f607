package mem

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/joshuapare/allockit/alloc"
)

var (
	// ErrRegistryFull indicates that every id in [0, MaxRegistryID] is taken.
	ErrRegistryFull = errors.New("mem: allocator registry is full")

	// ErrUnregistered indicates an id with no registered allocator.
	ErrUnregistered = errors.New("mem: allocator id not registered")

	// ErrShutdown indicates use of a manager after Shutdown.
	ErrShutdown = errors.New("mem: manager is shut down")

	// ErrLiveAllocations indicates an unregister while blocks from the allocator are live.
	ErrLiveAllocations = errors.New("mem: allocator has live allocations")

	// ErrInvalidDefault indicates an id that cannot serve as the default allocator.
	ErrInvalidDefault = errors.New("mem: id cannot be the default allocator")

	// ErrNotInitialized indicates use of the process-wide manager before Init.
	ErrNotInitialized = errors.New("mem: manager not initialized")

	// ErrAlreadyInitialized indicates a second Init without Teardown.
	ErrAlreadyInitialized = errors.New("mem: manager already initialized")

	// ErrScopeOrder indicates a scope exited out of LIFO order or from another goroutine.
	ErrScopeOrder = errors.New("mem: scope exited out of order")

	// ErrNotResettable indicates a Reset of an allocator that cannot rewind.
	ErrNotResettable = errors.New("mem: allocator cannot be reset")

	// ErrTrackedPointer indicates an untracked free of a block that carries a header.
	ErrTrackedPointer = errors.New("mem: pointer is tracked")

	// ErrModuleAttached indicates a module name that is already attached.
	ErrModuleAttached = errors.New("mem: module already attached")

	// ErrModuleNotAttached indicates a detach of an unknown module.
	ErrModuleNotAttached = errors.New("mem: module not attached")

	// ErrIncompatibleModule indicates a module whose version constraint rejects ABIVersion.
	ErrIncompatibleModule = errors.New("mem: module incompatible with allocator ABI")
)

// violate logs and panics with an *alloc.Violation.
func (m *Manager) violate(err error, addr uintptr, id alloc.AllocID, format string, args ...any) {
	v := alloc.NewViolation(err, addr, id, fmt.Sprintf(format, args...))
	m.log.Error("allocation contract violated",
		zap.Error(v.Err),
		zap.Stringer("allocator", id),
		zap.Uintptr("addr", addr),
		zap.String("detail", v.Detail))
	panic(v)
}
