// SPDX-License-Identifier: MIT
package analysis

import "slices"

// history keeps the last len(values) observations for smoothing.
type history struct {
	values []float64
	sorted []float64 // Scratch for median.
	next   int
	count  int
}

func newHistory(size int) history {
	return history{values: make([]float64, size), sorted: make([]float64, size)}
}

func (h *history) push(v float64) {
	h.values[h.next] = v
	h.next = (h.next + 1) % len(h.values)
	h.count = min(h.count+1, len(h.values))
}

func (h *history) len() int {
	return h.count
}

func (h *history) reset() {
	h.next, h.count = 0, 0
}

// mean returns 0 for an empty history.
func (h *history) mean() float64 {
	if h.count == 0 {
		return 0
	}
	var sum float64
	for _, v := range h.values[:h.count] {
		sum += v
	}
	return sum / float64(h.count)
}

// median returns the upper median, 0 for an empty history.
func (h *history) median() float64 {
	if h.count == 0 {
		return 0
	}
	s := h.sorted[:h.count]
	copy(s, h.values[:h.count])
	slices.Sort(s)
	return s[h.count/2]
}
