package alloc

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfMemory indicates that no allocator could satisfy a request.
	ErrOutOfMemory = errors.New("alloc: out of memory")

	// ErrInvalidLayout indicates a zero, oversized or badly aligned layout.
	ErrInvalidLayout = errors.New("alloc: invalid layout")

	// ErrInvalidConfig indicates bad construction parameters (block size, alignment, buffer length).
	ErrInvalidConfig = errors.New("alloc: invalid allocator configuration")

	// ErrDoubleFree indicates that a block was freed twice.
	ErrDoubleFree = errors.New("alloc: double free")

	// ErrNotOwned indicates that a block was freed through an allocator that does not own it.
	ErrNotOwned = errors.New("alloc: pointer not owned by allocator")

	// ErrUnknownPointer indicates a pointer inside an allocator's region that is not the start of a live block.
	ErrUnknownPointer = errors.New("alloc: unknown pointer")

	// ErrStackOrder indicates a stack deallocation or rewind that does not follow LIFO order.
	ErrStackOrder = errors.New("alloc: stack deallocation out of order")

	// ErrLayoutMismatch indicates a deallocation layout that differs from the allocation layout.
	ErrLayoutMismatch = errors.New("alloc: layout does not match allocation")
)

// Violation describes a broken allocation contract. Allocators panic with a *Violation;
// it is never returned as an ordinary error.
type Violation struct {
	Err    error   // one of the sentinel errors above (or a mem sentinel)
	Addr   uintptr // address of the offending block, 0 if not applicable
	ID     AllocID // allocator that detected the violation
	Detail string
}

// NewViolation builds a Violation.
func NewViolation(err error, addr uintptr, id AllocID, detail string) *Violation {
	return &Violation{Err: err, Addr: addr, ID: id, Detail: detail}
}

func (v *Violation) Error() string {
	msg := fmt.Sprintf("%v (allocator %s, addr %#x)", v.Err, v.ID, v.Addr)
	if v.Detail != "" {
		msg += ": " + v.Detail
	}
	return msg
}

// Unwrap returns the sentinel, so errors.Is works on a recovered Violation.
func (v *Violation) Unwrap() error {
	return v.Err
}

// violate panics with a Violation.
func violate(err error, p []byte, id AllocID, format string, args ...any) {
	panic(NewViolation(err, Addr(p), id, fmt.Sprintf(format, args...)))
}
