// SPDX-License-Identifier: MIT
package tui

import (
	"math"
	"testing"
)

func TestNote(t *testing.T) {
	tests := []struct {
		freq   float64
		name   string
		octave int
		cents  float64
	}{
		{440, "A", 4, 0},
		{261.6256, "C", 4, 0},
		{220, "A", 3, 0},
		{82.4069, "E", 2, 0},
		{493.8833, "B", 4, 0},
		{446.0, "A", 4, 23.44},
		{430.0, "A", 4, -39.80},
		{27.5, "A", 0, 0},
		{16.3516, "C", 0, 0},
	}

	for _, tt := range tests {
		name, octave, cents := Note(tt.freq)
		if name != tt.name || octave != tt.octave || math.Abs(cents-tt.cents) > 0.05 {
			t.Errorf("Note(%g) = %s%d %+.2fc, want %s%d %+.2fc",
				tt.freq, name, octave, cents, tt.name, tt.octave, tt.cents)
		}
	}
}

func TestNoteInvalid(t *testing.T) {
	for _, f := range []float64{0, -100, math.NaN(), math.Inf(1)} {
		if name, _, _ := Note(f); name != "" {
			t.Errorf("Note(%g) = %q, want empty", f, name)
		}
	}
	if NoteLabel(0) != "--" {
		t.Errorf("NoteLabel(0) = %q", NoteLabel(0))
	}
	if got := NoteLabel(440); got != "A4 +0c" {
		t.Errorf("NoteLabel(440) = %q", got)
	}
}
