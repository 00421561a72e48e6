package bits

import "math/bits"

// RoundupPowOf2ByCeil rounds n up to the next power of two using bits.Len.
func RoundupPowOf2ByCeil(n uint64) uint64 {
	if n <= 1 {
		return 1
	}
	return uint64(1) << bits.Len64(n-1)
}
