// SPDX-License-Identifier: MIT
package tui

import (
	"fmt"
	"math"
)

// ReferenceA4 is the tuning reference in Hz.
const ReferenceA4 = 440.0

var noteNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// Note returns the nearest equal-tempered note for freq, its octave in
// scientific pitch notation and the offset from it in cents (-50..+50).
// Non-positive frequencies return an empty name.
func Note(freq float64) (name string, octave int, cents float64) {
	if !(freq > 0) || math.IsInf(freq, 0) {
		return "", 0, 0
	}
	midi := 69 + 12*math.Log2(freq/ReferenceA4)
	nearest := math.Round(midi)
	n := int(nearest)
	return noteNames[((n%12)+12)%12], int(math.Floor(nearest/12)) - 1, (midi - nearest) * 100
}

// NoteLabel formats freq as e.g. "A4 +3c".
func NoteLabel(freq float64) string {
	name, octave, cents := Note(freq)
	if name == "" {
		return "--"
	}
	return fmt.Sprintf("%s%d %+.0fc", name, octave, cents)
}
