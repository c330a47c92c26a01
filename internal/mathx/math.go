package mathx

import "math/bits"

func FloorDiv(a, b int64) int64 {
	// b != 0
	q := a / b
	r := a % b
	if r != 0 && (r < 0) != (b < 0) {
		q--
	}
	return q
}

func CeilDiv(a, b int64) int64 {
	// b != 0
	q := a / b
	r := a % b
	if r != 0 && (r < 0) == (b < 0) {
		q++
	}
	return q
}

// IsPowerOfTwo reports whether n is a positive power of two.
func IsPowerOfTwo(n int64) bool {
	return n > 0 && n&(n-1) == 0
}

// Log2 returns floor(log2(n)) for n > 0.
func Log2(n uint64) uint {
	return uint(bits.Len64(n)) - 1
}
