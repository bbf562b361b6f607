// Package alloc provides composable memory allocators.
//
// # Overview
//
// Every allocator implements the Allocator interface: allocate a Layout, deallocate a
// previously returned block, test ownership, and carry an AllocID that the memory
// manager uses to route frees back to the allocator that produced a block.
//
// A block is a []byte whose first element address is the allocation address. Returned
// blocks always have cap == len so an append on one block can never write into its
// neighbour. A nil block means the request could not be satisfied.
//
// # Primitives
//
//   - Mallocator: Go heap passthrough, owns everything
//   - Linear: bump allocator, frees are no-ops until Reset
//   - Stack: bump allocator with strict LIFO frees and markers
//   - Pool: fixed-size blocks with an intrusive free list
//   - Bitmap: fixed-size blocks tracked by a bit set stored in the region itself
//   - Freelist: variable-size first-fit or best-fit allocator with coalescing
//
// # Composition
//
//   - Fallback: try the main allocator, then the fallback
//   - Segregator: route by request size against an immutable boundary
//   - ExpandableArena: add one more instance of the same kind when all existing instances are full
//   - SizeClassed: one Pool per size class, large requests to a separate allocator
//
// # Usage Example
//
//	src := alloc.NewMallocator()
//	frame, err := alloc.LinearConstructor(64 << 10)(src)
//	if err != nil {
//	    return err
//	}
//	general := alloc.NewFallback(frame, src)
//
//	buf := general.Alloc(alloc.MustLayout(128, 16))
//	if buf == nil {
//	    return alloc.ErrOutOfMemory
//	}
//	defer general.Dealloc(buf, alloc.MustLayout(128, 16))
//
// # Thread Safety
//
// Primitives and wrappers are not safe for concurrent use, with the exception of
// Mallocator and ExpandableArena which carry their own locks. The memory manager
// serialises access to each registered allocator.
//
// # Contract Violations
//
// Double frees, frees through foreign pointers and out-of-order stack frees are
// programmer errors. They panic with a *Violation that wraps one of the sentinel
// errors, so recovered values can be classified with errors.Is.
package alloc
