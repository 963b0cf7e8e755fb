package safe

import (
	"math"
	"math/bits"
)

// OffsetAddr applies a signed offset to an address.
// Returns false if the result would wrap around the address space.
func OffsetAddr(base uint64, offset int64) (uint64, bool) {
	if offset >= 0 {
		sum, carry := bits.Add64(base, uint64(offset), 0)
		return sum, carry == 0
	}
	if offset == math.MinInt64 {
		return 0, false
	}
	neg := uint64(-offset)
	if neg > base {
		return 0, false
	}
	return base - neg, true
}

// MulLen multiplies an element count by an element size.
// Returns false on overflow.
func MulLen(count, size uint64) (uint64, bool) {
	hi, lo := bits.Mul64(count, size)
	return lo, hi == 0
}

// Uint64ToInt64 safely converts an uint64 value to int64, clamping to math.MaxInt64 if overflow
// would occur.
// Returns the converted value and a boolean indicating whether clamping occurred.
func Uint64ToInt64(val uint64) (int64, bool) {
	if val > math.MaxInt64 {
		return math.MaxInt64, true
	}
	return int64(val), false
}
