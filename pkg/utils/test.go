// SPDX-License-Identifier: MIT
//
// Package utils holds deterministic signal generators and fakes shared by
// the package tests.
package utils

import (
	"math"
	"math/rand"
	"sync"
)

// DefaultAmplitude keeps generated signals at a typical speaking level.
const DefaultAmplitude = 0.5

// MockTransport records everything sent to it instead of transmitting.
type MockTransport struct {
	mu     sync.Mutex
	Sent   []any
	Closed bool
}

// Send stores data for later inspection.
func (m *MockTransport) Send(data any) error {
	m.mu.Lock()
	m.Sent = append(m.Sent, data)
	m.mu.Unlock()
	return nil
}

// Close marks the transport closed.
func (m *MockTransport) Close() error {
	m.mu.Lock()
	m.Closed = true
	m.mu.Unlock()
	return nil
}

// Messages returns a copy of the recorded messages.
func (m *MockTransport) Messages() []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]any, len(m.Sent))
	copy(out, m.Sent)
	return out
}

// GenerateSineWave returns size samples of a pure tone at DefaultAmplitude.
func GenerateSineWave(size int, sampleRate, frequency float64) []float32 {
	buffer := make([]float32, size)
	for i := range buffer {
		t := float64(i) / sampleRate
		buffer[i] = float32(math.Sin(2*math.Pi*frequency*t) * DefaultAmplitude)
	}
	return buffer
}

// GenerateComplexWave returns a voice-like tone: the fundamental plus two
// decaying harmonics, peaking below 1.0.
func GenerateComplexWave(size int, sampleRate, fundamental float64) []float32 {
	buffer := make([]float32, size)
	for i := range buffer {
		tm := float64(i) / sampleRate
		signal := math.Sin(2*math.Pi*fundamental*tm)*0.5 +
			math.Sin(2*math.Pi*2*fundamental*tm)*0.3 +
			math.Sin(2*math.Pi*3*fundamental*tm)*0.2
		buffer[i] = float32(signal * 0.9)
	}
	return buffer
}

// GenerateWhiteNoise returns uniformly distributed noise in
// [-amplitude, amplitude]. The same seed always yields the same samples.
func GenerateWhiteNoise(size int, amplitude float64, seed int64) []float32 {
	rng := rand.New(rand.NewSource(seed))
	buffer := make([]float32, size)
	for i := range buffer {
		buffer[i] = float32((rng.Float64()*2 - 1) * amplitude)
	}
	return buffer
}

// FindPeakBin returns the index of the largest magnitude in
// [startBin, endBin], clamping the range to the slice.
func FindPeakBin(magnitudes []float64, startBin, endBin int) int {
	if len(magnitudes) == 0 {
		return 0
	}

	if startBin < 0 {
		startBin = 0
	}

	if endBin >= len(magnitudes) {
		endBin = len(magnitudes) - 1
	}

	peakBin := startBin
	peakValue := magnitudes[startBin]

	for bin := startBin + 1; bin <= endBin; bin++ {
		if magnitudes[bin] > peakValue {
			peakValue = magnitudes[bin]
			peakBin = bin
		}
	}

	return peakBin
}
