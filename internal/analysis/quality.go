// SPDX-License-Identifier: MIT
package analysis

import "encoding/json"

// VoiceQuality is the per-chunk output of the voice-quality channel.
type VoiceQuality struct {
	Timestamp float64 // Audio clock at chunk completion, in seconds.
	Volume    float64 // Chunk RMS.
	Onset     bool    // First loud chunk of a phrase.

	Pitch  float64 // Fundamental in Hz, valid when Voiced.
	Voiced bool

	Resonance  float64 // Smoothed LPC envelope centroid in Hz.
	F1, F2, F3 float64 // Formant estimates in Hz, 0 when absent.
	Vowel      string  // Coarse vowel guess from F1/F2, empty when unsure.
	Weight     float64 // Vocal weight 0-100 from the H1-H2 difference.
	Jitter     float64 // Mean absolute pitch change between chunks, Hz.

	// Smoothed harmonic levels behind Weight.
	H1dB, H2dB float64

	Brightness Brightness
	Bands      map[string]float64 // Relative band energies, nil when silent.
	Envelope   []float64          // LPC envelope when enabled, nil otherwise.
}

type voiceQualityJSON struct {
	Type      string   `json:"type"`
	Timestamp float64  `json:"timestamp"`
	Volume    float64  `json:"volume"`
	Onset     bool     `json:"onset,omitempty"`
	Pitch     *float64 `json:"pitch"`
	Resonance float64  `json:"resonance"`
	F1        float64  `json:"f1"`
	F2        float64  `json:"f2"`
	F3        float64  `json:"f3"`
	Vowel     string   `json:"vowel"`
	Weight    float64  `json:"weight"`
	Jitter    float64  `json:"jitter"`
	RatioHL   float64  `json:"ratioHL"`
	Centroid  float64  `json:"centroid"`
	Tilt      float64  `json:"tilt"`

	Bands    map[string]float64 `json:"bands,omitempty"`
	Spectrum []float64          `json:"spectrum,omitempty"`
	Debug    *voiceDebugJSON    `json:"debug,omitempty"`
}

type voiceDebugJSON struct {
	H1dB   float64 `json:"h1db"`
	H2dB   float64 `json:"h2db"`
	DiffDB float64 `json:"diffDb"`
}

// MarshalJSON encodes the message consumed by the visualizer clients. An
// unvoiced chunk carries a null pitch.
func (q VoiceQuality) MarshalJSON() ([]byte, error) {
	out := voiceQualityJSON{
		Type:      "voice",
		Timestamp: q.Timestamp,
		Volume:    q.Volume,
		Onset:     q.Onset,
		Resonance: q.Resonance,
		F1:        q.F1,
		F2:        q.F2,
		F3:        q.F3,
		Vowel:     q.Vowel,
		Weight:    q.Weight,
		Jitter:    q.Jitter,
		RatioHL:   q.Brightness.RatioHL,
		Centroid:  q.Brightness.Centroid,
		Tilt:      q.Brightness.Tilt,
		Bands:     q.Bands,
		Spectrum:  q.Envelope,
	}
	if q.Voiced {
		p := q.Pitch
		out.Pitch = &p
	}
	if q.H1dB != 0 || q.H2dB != 0 {
		out.Debug = &voiceDebugJSON{H1dB: q.H1dB, H2dB: q.H2dB, DiffDB: q.H1dB - q.H2dB}
	}
	return json.Marshal(out)
}
