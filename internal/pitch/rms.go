// SPDX-License-Identifier: MIT
package pitch

import "math"

// RMS returns the root mean square level of samples, 0 for an empty slice.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sumSquare float64
	for _, s := range samples {
		v := float64(s)
		sumSquare += v * v
	}
	return math.Sqrt(sumSquare / float64(len(samples)))
}
