package mem

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/joshuapare/allockit/alloc"
)

var (
	global   atomic.Pointer[Manager]
	globalMu sync.Mutex
)

// Init creates the process-wide manager. It must run once, before the first
// scoped allocation, and be paired with Teardown.
func Init(opts ...Option) (*Manager, error) {
	globalMu.Lock()
	defer globalMu.Unlock()

	if global.Load() != nil {
		return nil, ErrAlreadyInitialized
	}
	m := New(opts...)
	global.Store(m)
	m.log.Debug("memory manager initialized")
	return m, nil
}

// Global returns the process-wide manager. It panics before Init.
func Global() *Manager {
	m := global.Load()
	if m == nil {
		panic(alloc.NewViolation(ErrNotInitialized, 0, alloc.Default, "mem.Init has not run"))
	}
	return m
}

// Initialized reports whether the process-wide manager exists.
func Initialized() bool {
	return global.Load() != nil
}

// Teardown shuts the process-wide manager down and forgets it, so Init may run again.
func Teardown() error {
	globalMu.Lock()
	defer globalMu.Unlock()

	m := global.Swap(nil)
	if m == nil {
		return ErrNotInitialized
	}
	if err := m.Shutdown(); err != nil {
		return fmt.Errorf("mem: teardown: %w", err)
	}
	return nil
}
