// Package align provides alignment and overflow-safe size arithmetic shared by the
// allocator backends.
package align

import (
	"math"
	"math/bits"
)

// Word is the minimum alignment every backend can honour.
const Word = 8

// IsPow2 reports whether n is a positive power of two.
func IsPow2(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// Up returns n aligned up to the next multiple of a. a must be a power of two.
//
// Example:
//
//	Up(1, 8)  = 8
//	Up(8, 8)  = 8
//	Up(9, 16) = 16
func Up(n, a int) int {
	return (n + a - 1) &^ (a - 1)
}

// UpPtr is Up for addresses.
func UpPtr(p uintptr, a int) uintptr {
	m := uintptr(a) - 1
	return (p + m) &^ m
}

// Padding returns the number of bytes needed to move addr up to a multiple of a.
func Padding(addr uintptr, a int) int {
	return int(UpPtr(addr, a) - addr)
}

// Log2 returns log2(n) for a power of two n.
func Log2(n int) int {
	return bits.TrailingZeros64(uint64(n))
}

// LowBit returns the largest power of two dividing n, i.e. the natural alignment
// of an offset or address. LowBit(0) returns 1<<62 so that zero never constrains.
func LowBit(n uintptr) int {
	if n == 0 {
		return 1 << 62
	}
	return 1 << bits.TrailingZeros64(uint64(n))
}

// AddOverflowSafe adds a and b, returning ok = false when the result would overflow int.
func AddOverflowSafe(a, b int) (int, bool) {
	switch {
	case b > 0 && a > math.MaxInt-b:
		return 0, false
	case b < 0 && a < math.MinInt-b:
		return 0, false
	default:
		return a + b, true
	}
}

// MulOverflowSafe multiplies two non-negative ints, returning ok = false on overflow
// or when either operand is negative.
func MulOverflowSafe(a, b int) (int, bool) {
	if a < 0 || b < 0 {
		return 0, false
	}
	if a == 0 || b == 0 {
		return 0, true
	}
	if a > math.MaxInt/b {
		return 0, false
	}
	return a * b, true
}
