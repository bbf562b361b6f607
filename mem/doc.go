// Package mem is the process-wide memory manager.
//
// A Manager keeps a registry of allocators addressed by alloc.AllocID, records a
// header for every tracked block so frees route back to the allocator that produced
// it, and resolves alloc.Default through a goroutine-local scope stack.
//
// # Lifecycle
//
//	m, err := mem.Init(mem.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	defer mem.Teardown()
//
//	frame, _ := alloc.LinearConstructor(1 << 20)(region.NewSource())
//	frameID, err := m.Register(frame)
//
// Registration happens during startup. Teardown shuts the manager down after the
// last allocation, logging leaks and closing every registered allocator.
//
// # Scopes
//
//	s := mem.Enter(frameID)
//	defer s.Exit()
//
//	buf, err := mem.Alloc(alloc.MustLayout(256, 8)) // served by frameID
//
// Scopes nest, are private to the goroutine that entered them, and must be exited
// in LIFO order on the same goroutine.
//
// # Headers
//
// Headers live in a side table keyed by block address rather than in front of the
// block. A bounded ring of recently freed addresses lets a second free of the same
// block be reported as a double free instead of an unknown pointer.
package mem
