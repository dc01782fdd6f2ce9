// SPDX-License-Identifier: MIT
//
// Package bitint provides the power-of-two helpers used to size analysis
// windows and FFT buffers. All functions are allocation free and constant
// time, so they are safe to call from an audio callback.
package bitint

import "math/bits"

// NextPowerOfTwo returns the smallest power of two >= size, and 1 for
// size <= 0. Subtracting one first keeps exact powers unchanged: 8-1 = 0b0111
// has bit length 3, and 1<<3 = 8.
func NextPowerOfTwo(size int) int {
	if size <= 0 {
		return 1
	}
	return 1 << bits.Len(uint(size-1))
}

// IsPowerOfTwo reports whether n is a positive power of two. A power of two
// has exactly one bit set, so clearing its lowest set bit with n&(n-1)
// leaves zero.
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}
