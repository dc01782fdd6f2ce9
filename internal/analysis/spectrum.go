// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"math"
	"sync"

	vecmath "github.com/cwbudde/algo-vecmath"
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/stat"

	applog "pitchd/internal/log"
	"pitchd/pkg/bitint"
)

// Brightness bands and constants.
const (
	lowBandHighHz  = 1500.0
	highBandLowHz  = 3000.0
	highBandHighHz = 6000.0
	tiltLowHz      = 300.0
	tiltHighHz     = 4000.0
	epsilon        = 1e-12

	// DefaultPreEmphasis flattens the natural -6dB/octave voice slope before
	// brightness measurements.
	DefaultPreEmphasis = 0.97
)

// Brightness summarizes the spectral balance of one chunk.
type Brightness struct {
	RatioHL  float64 // log10(E[3-6kHz] / E[0-1.5kHz]).
	Centroid float64 // Power-weighted mean frequency in Hz.
	Tilt     float64 // Negated dB/Hz slope over 300-4000Hz; higher is brighter.
}

// Pre-allocated buffers for spectrum calculations.
type spectrumWorkspace struct {
	input  []float64    // Windowed, pre-emphasized input.
	output []complex128 // FFT coefficients, fftSize/2 + 1.
	re, im []float64    // Split coefficients for the vector power kernel.
	power  []float64    // |X[k]|^2.
	window []float64    // Pre-calculated window coefficients.
	tiltY  []float64    // dB power over the tilt band.
	mu     sync.RWMutex // Protects power for readers on other goroutines.
}

// SpectrumAnalyzer computes brightness features from a Hann-windowed FFT of
// each chunk. It implements AudioProcessor and SpectrumProvider.
type SpectrumAnalyzer struct {
	fft         *fourier.FFT
	fftSize     int
	sampleRate  float64
	preEmphasis float64
	workspace   spectrumWorkspace

	// Bins of the tilt regression, fixed at construction.
	tiltStart int
	tiltX     []float64

	latest Brightness
}

// Compile-time checks for interface implementations.
var _ AudioProcessor = (*SpectrumAnalyzer)(nil)
var _ SpectrumProvider = (*SpectrumAnalyzer)(nil)

// NewSpectrumAnalyzer creates an analyzer for fftSize-point transforms at
// sampleRate. preEmphasis of 0 disables the first-order high-pass.
func NewSpectrumAnalyzer(fftSize int, sampleRate float64, windowType WindowFunc, preEmphasis float64) (*SpectrumAnalyzer, error) {
	if !bitint.IsPowerOfTwo(fftSize) {
		return nil, fmt.Errorf("fft size must be a power of 2, got %d", fftSize)
	}
	if !(sampleRate > 0) {
		return nil, fmt.Errorf("sample rate must be positive, got %f", sampleRate)
	}
	if preEmphasis < 0 || preEmphasis >= 1 {
		return nil, fmt.Errorf("pre-emphasis must be in [0, 1), got %f", preEmphasis)
	}

	bins := fftSize/2 + 1
	s := &SpectrumAnalyzer{
		fft:         fourier.NewFFT(fftSize),
		fftSize:     fftSize,
		sampleRate:  sampleRate,
		preEmphasis: preEmphasis,
		workspace: spectrumWorkspace{
			input:  make([]float64, fftSize),
			output: make([]complex128, bins),
			re:     make([]float64, bins),
			im:     make([]float64, bins),
			power:  make([]float64, bins),
			window: windowCoefficients(fftSize, windowType),
		},
	}

	for k := range bins {
		f := s.GetFrequencyForBin(k)
		if f < tiltLowHz || f > tiltHighHz {
			continue
		}
		if s.tiltX == nil {
			s.tiltStart = k
		}
		s.tiltX = append(s.tiltX, f)
	}
	s.workspace.tiltY = make([]float64, len(s.tiltX))

	applog.Debugf("Analysis: Initializing SpectrumAnalyzer (Size: %d, SampleRate: %.1f Hz, Window: %v, Tilt bins: %d)",
		fftSize, sampleRate, windowType, len(s.tiltX))
	return s, nil
}

// Process analyzes samples and keeps the result for Latest.
func (s *SpectrumAnalyzer) Process(samples []float32) {
	s.latest = s.Analyze(samples)
}

// Latest returns the brightness of the last processed chunk.
func (s *SpectrumAnalyzer) Latest() Brightness {
	return s.latest
}

// Analyze windows samples (zero-padded or truncated to the FFT size),
// transforms them and derives the brightness features.
// Performance Critical (Hot Path):
// - All FFT and regression buffers are reused
func (s *SpectrumAnalyzer) Analyze(samples []float32) Brightness {
	ws := &s.workspace
	ws.mu.Lock()
	defer ws.mu.Unlock()

	prev := 0.0
	for i := range ws.input {
		if i >= len(samples) {
			ws.input[i] = 0
			continue
		}
		x := float64(samples[i])
		ws.input[i] = x - s.preEmphasis*prev
		prev = x
	}
	vecmath.MulBlockInPlace(ws.input, ws.window)

	s.fft.Coefficients(ws.output, ws.input)
	for k, c := range ws.output {
		ws.re[k] = real(c)
		ws.im[k] = imag(c)
	}
	vecmath.Power(ws.power, ws.re, ws.im)

	var eLow, eHigh, total, weighted float64
	for k, p := range ws.power {
		f := s.GetFrequencyForBin(k)
		switch {
		case f < lowBandHighHz:
			eLow += p
		case f >= highBandLowHz && f < highBandHighHz:
			eHigh += p
		}
		total += p
		weighted += f * p
	}

	b := Brightness{
		RatioHL:  math.Log10((eHigh + epsilon) / (eLow + epsilon)),
		Centroid: weighted / (total + epsilon),
	}

	if len(s.tiltX) > 1 {
		for i := range ws.tiltY {
			ws.tiltY[i] = 20 * math.Log10(ws.power[s.tiltStart+i]+epsilon)
		}
		_, slope := stat.LinearRegression(s.tiltX, ws.tiltY, nil, false)
		b.Tilt = -slope
	}
	return b
}

// PowerInto copies the latest power spectrum into dest, which must hold
// fftSize/2 + 1 values.
func (s *SpectrumAnalyzer) PowerInto(dest []float64) error {
	s.workspace.mu.RLock()
	defer s.workspace.mu.RUnlock()

	if len(dest) != len(s.workspace.power) {
		return fmt.Errorf("destination slice length %d does not match required length %d", len(dest), len(s.workspace.power))
	}
	copy(dest, s.workspace.power)
	return nil
}

// GetFrequencyForBin returns the center frequency (Hz) for an FFT bin, 0 for
// out-of-range bins.
func (s *SpectrumAnalyzer) GetFrequencyForBin(binIndex int) float64 {
	if binIndex < 0 || binIndex > s.fftSize/2 {
		return 0
	}
	return float64(binIndex) * s.sampleRate / float64(s.fftSize)
}

// GetFFTSize returns the number of FFT points.
func (s *SpectrumAnalyzer) GetFFTSize() int {
	return s.fftSize
}

// GetSampleRate returns the analysis sample rate.
func (s *SpectrumAnalyzer) GetSampleRate() float64 {
	return s.sampleRate
}
