// SPDX-License-Identifier: MIT
package analysis

// OnsetDetector flags the start of phonation: a chunk whose level clears the
// threshold and jumps by at least minEnergyRatio over the previous chunk.
// A cooldown keeps one onset from firing on consecutive chunks.
type OnsetDetector struct {
	threshold      float64 // RMS level below which nothing triggers.
	minEnergyRatio float64 // Required rise over the previous chunk.
	cooldown       int     // Chunks to ignore after an onset.

	lastEnergy float64
	remaining  int
	onsets     uint64
}

// NewOnsetDetector creates a detector. A cooldown below zero is treated as 0.
func NewOnsetDetector(threshold, minEnergyRatio float64, cooldown int) *OnsetDetector {
	return &OnsetDetector{
		threshold:      threshold,
		minEnergyRatio: minEnergyRatio,
		cooldown:       max(cooldown, 0),
	}
}

// Observe feeds the RMS level of the next chunk and reports whether it
// starts a new phrase.
func (d *OnsetDetector) Observe(energy float64) bool {
	onset := false
	if d.remaining > 0 {
		d.remaining--
	} else if energy > d.threshold && (d.lastEnergy == 0 || energy/d.lastEnergy > d.minEnergyRatio) {
		onset = true
		d.onsets++
		d.remaining = d.cooldown
	}
	d.lastEnergy = energy
	return onset
}

// Onsets returns the number of onsets detected.
func (d *OnsetDetector) Onsets() uint64 {
	return d.onsets
}

// Reset forgets the previous level and any running cooldown.
func (d *OnsetDetector) Reset() {
	d.lastEnergy = 0
	d.remaining = 0
}
