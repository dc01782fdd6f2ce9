// SPDX-License-Identifier: MIT
package analysis

import (
	"math"
	"testing"

	"pitchd/pkg/utils"
)

const (
	testSampleRate = 44100.0
	testFFTSize    = 2048
)

func newTestSpectrum(t testing.TB, preEmphasis float64) *SpectrumAnalyzer {
	t.Helper()
	s, err := NewSpectrumAnalyzer(testFFTSize, testSampleRate, Hann, preEmphasis)
	if err != nil {
		t.Fatalf("NewSpectrumAnalyzer: %v", err)
	}
	return s
}

func TestNewSpectrumAnalyzerValidation(t *testing.T) {
	tests := []struct {
		desc        string
		size        int
		rate        float64
		preEmphasis float64
	}{
		{"Non power of two", 1000, testSampleRate, 0},
		{"Zero rate", 1024, 0, 0},
		{"NaN rate", 1024, math.NaN(), 0},
		{"Pre-emphasis of one", 1024, testSampleRate, 1},
		{"Negative pre-emphasis", 1024, testSampleRate, -0.5},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			if _, err := NewSpectrumAnalyzer(tt.size, tt.rate, Hann, tt.preEmphasis); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestSpectrumBrightness(t *testing.T) {
	s := newTestSpectrum(t, 0)

	dark := s.Analyze(utils.GenerateSineWave(testFFTSize, testSampleRate, 200))
	bright := s.Analyze(utils.GenerateSineWave(testFFTSize, testSampleRate, 4000))

	if dark.RatioHL >= 0 {
		t.Errorf("200Hz RatioHL = %f, want negative", dark.RatioHL)
	}
	if bright.RatioHL <= 0 {
		t.Errorf("4kHz RatioHL = %f, want positive", bright.RatioHL)
	}
	if !approxEqual(dark.Centroid, 200, 30) {
		t.Errorf("200Hz centroid = %f", dark.Centroid)
	}
	if !approxEqual(bright.Centroid, 4000, 30) {
		t.Errorf("4kHz centroid = %f", bright.Centroid)
	}
}

func TestSpectrumTilt(t *testing.T) {
	s := newTestSpectrum(t, 0)

	voiced := s.Analyze(utils.GenerateComplexWave(testFFTSize, testSampleRate, 150))
	noise := s.Analyze(utils.GenerateWhiteNoise(testFFTSize, 0.5, 7))

	if voiced.Tilt <= 0 {
		t.Errorf("harmonic tone tilt = %f, want positive (falling spectrum)", voiced.Tilt)
	}
	if voiced.Tilt <= noise.Tilt {
		t.Errorf("harmonic tone tilt %f should exceed white noise tilt %f", voiced.Tilt, noise.Tilt)
	}
}

func TestSpectrumPreEmphasisBrightens(t *testing.T) {
	flat := newTestSpectrum(t, 0)
	emphasized := newTestSpectrum(t, DefaultPreEmphasis)
	signal := utils.GenerateComplexWave(testFFTSize, testSampleRate, 220)

	if a, b := flat.Analyze(signal), emphasized.Analyze(signal); b.Centroid <= a.Centroid {
		t.Errorf("pre-emphasis centroid %f should exceed plain %f", b.Centroid, a.Centroid)
	}
}

func TestSpectrumSilence(t *testing.T) {
	s := newTestSpectrum(t, DefaultPreEmphasis)
	b := s.Analyze(make([]float32, testFFTSize))

	if b.RatioHL != 0 || b.Centroid != 0 || math.IsNaN(b.Tilt) {
		t.Errorf("silence = %+v, want zero ratio and centroid", b)
	}
}

func TestSpectrumProvider(t *testing.T) {
	s := newTestSpectrum(t, 0)
	s.Process(utils.GenerateSineWave(1000, testSampleRate, 1000)) // Zero padded.

	if s.GetFFTSize() != testFFTSize || s.GetSampleRate() != testSampleRate {
		t.Errorf("size/rate = %d/%f", s.GetFFTSize(), s.GetSampleRate())
	}
	if got := s.GetFrequencyForBin(testFFTSize / 2); got != testSampleRate/2 {
		t.Errorf("Nyquist bin = %f", got)
	}
	if s.GetFrequencyForBin(-1) != 0 || s.GetFrequencyForBin(testFFTSize) != 0 {
		t.Error("out of range bins should map to 0Hz")
	}

	if err := s.PowerInto(make([]float64, 10)); err == nil {
		t.Error("PowerInto accepted a short slice")
	}
	power := make([]float64, testFFTSize/2+1)
	if err := s.PowerInto(power); err != nil {
		t.Fatalf("PowerInto: %v", err)
	}
	peak := utils.FindPeakBin(power, 0, len(power)-1)
	if f := s.GetFrequencyForBin(peak); !approxEqual(f, 1000, testSampleRate/testFFTSize) {
		t.Errorf("peak at %f Hz, want ~1000", f)
	}
	if s.Latest().Centroid == 0 {
		t.Error("Latest() not updated by Process")
	}
}

func TestParseWindowFunc(t *testing.T) {
	tests := []struct {
		name    string
		want    WindowFunc
		wantErr bool
	}{
		{"hann", Hann, false},
		{"Hanning", Hann, false},
		{"HAMMING", Hamming, false},
		{"blackmannuttall", BlackmanNuttall, false},
		{"kaiser", Hann, true},
	}

	for _, tt := range tests {
		got, err := ParseWindowFunc(tt.name)
		if got != tt.want || (err != nil) != tt.wantErr {
			t.Errorf("ParseWindowFunc(%q) = %v, %v", tt.name, got, err)
		}
		if back, err := ParseWindowFunc(got.String()); err != nil || back != got {
			t.Errorf("String() = %q does not parse back", got.String())
		}
	}
}

func TestWindowCoefficients(t *testing.T) {
	hann := windowCoefficients(64, Hann)
	if hann[0] > 1e-12 || hann[63] > 1e-12 {
		t.Errorf("Hann endpoints = %f, %f, want 0", hann[0], hann[63])
	}
	hamming := windowCoefficients(64, Hamming)
	if !approxEqual(hamming[0], 0.08, 1e-9) {
		t.Errorf("Hamming endpoint = %f, want 0.08", hamming[0])
	}
}

func TestBandEnergy(t *testing.T) {
	s := newTestSpectrum(t, 0)
	bands, err := NewBandEnergyProcessor(s, VoiceBands)
	if err != nil {
		t.Fatalf("NewBandEnergyProcessor: %v", err)
	}

	s.Process(utils.GenerateSineWave(testFFTSize, testSampleRate, 1000))
	shares := make([]float64, len(VoiceBands))
	if err := bands.Compute(shares); err != nil {
		t.Fatalf("Compute: %v", err)
	}

	var total float64
	for _, v := range shares {
		total += v
	}
	if !approxEqual(total, 1, 1e-9) {
		t.Errorf("shares sum to %f, want 1", total)
	}
	if shares[1] < 0.99 {
		t.Errorf("lowMid share = %f for a 1kHz tone", shares[1])
	}

	levels, err := bands.Levels()
	if err != nil {
		t.Fatalf("Levels: %v", err)
	}
	if levels["lowMid"] != shares[1] || len(levels) != len(VoiceBands) {
		t.Errorf("Levels() = %v", levels)
	}

	if err := bands.Compute(make([]float64, 2)); err == nil {
		t.Error("Compute accepted a short destination")
	}
}

func TestBandEnergySilence(t *testing.T) {
	s := newTestSpectrum(t, 0)
	bands, _ := NewBandEnergyProcessor(s, VoiceBands)
	s.Process(make([]float32, testFFTSize))

	shares := make([]float64, len(VoiceBands))
	if err := bands.Compute(shares); err != nil {
		t.Fatalf("Compute: %v", err)
	}
	for i, v := range shares {
		if v != 0 {
			t.Errorf("share[%d] = %f for silence", i, v)
		}
	}
}

func TestNewBandEnergyProcessorValidation(t *testing.T) {
	if _, err := NewBandEnergyProcessor(nil, VoiceBands); err == nil {
		t.Error("accepted nil provider")
	}
	if _, err := NewBandEnergyProcessor(newTestSpectrum(t, 0), nil); err == nil {
		t.Error("accepted empty band list")
	}
}

func TestOnsetDetector(t *testing.T) {
	d := NewOnsetDetector(0.01, 4, 2)
	levels := []float64{0, 0.001, 0.2, 0.25, 0.3, 0.001, 0.001, 0.001, 0.2, 0.21}
	want := []bool{false, false, true, false, false, false, false, false, true, false}

	for i, level := range levels {
		if got := d.Observe(level); got != want[i] {
			t.Errorf("chunk %d (level %.3f): onset = %v, want %v", i, level, got, want[i])
		}
	}
	if d.Onsets() != 2 {
		t.Errorf("Onsets() = %d, want 2", d.Onsets())
	}

	d.Reset()
	if !d.Observe(0.5) {
		t.Error("first loud chunk after Reset should be an onset")
	}
}

func BenchmarkSpectrumAnalyze(b *testing.B) {
	s := newTestSpectrum(b, DefaultPreEmphasis)
	signal := utils.GenerateComplexWave(testFFTSize, testSampleRate, 220)

	b.ReportAllocs()
	for b.Loop() {
		s.Analyze(signal)
	}
}
