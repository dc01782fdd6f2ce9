// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"math"

	vecmath "github.com/cwbudde/algo-vecmath"

	applog "pitchd/internal/log"
	"pitchd/internal/pitch"
	"pitchd/internal/transport"
)

// Voice-quality defaults.
const (
	DefaultVoiceGate        = 0.005
	DefaultLPCOrder         = 14
	DefaultLPCRate          = 11025.0
	DefaultEnvelopePoints   = 512
	DefaultVoicePitchThresh = 0.15
	DefaultVoicePitchMin    = 50.0
	DefaultVoicePitchMax    = 800.0

	smoothingWindow    = 5
	resonanceAlpha     = 0.1
	resonanceJumpAlpha = 0.3
	resonanceJumpHz    = 200.0
	resonanceFloorHz   = 50.0
	silenceDecay       = 0.9
	neutralWeight      = 50.0
	maxHarmonicDiffDB  = 15.0
	harmonicSmoothing  = 0.1
	onsetRatio         = 4.0
	onsetCooldown      = 4
)

// VoiceConfig holds the voice-quality channel parameters.
type VoiceConfig struct {
	SampleRate      float64
	ChunkSize       int
	Gate            float64 // RMS below which a chunk counts as silence.
	LPCOrder        int
	LPCRate         float64 // Target rate of the LPC decimation.
	EnvelopePoints  int
	PitchThreshold  float64
	PitchMin        float64
	PitchMax        float64
	PreEmphasis     float64 // Brightness pre-emphasis coefficient.
	IncludeEnvelope bool    // Attach the LPC envelope to every message.
}

// DefaultVoiceConfig returns the tuned defaults for a stream at sampleRate.
func DefaultVoiceConfig(sampleRate float64) VoiceConfig {
	return VoiceConfig{
		SampleRate:     sampleRate,
		ChunkSize:      DefaultChunkSize,
		Gate:           DefaultVoiceGate,
		LPCOrder:       DefaultLPCOrder,
		LPCRate:        DefaultLPCRate,
		EnvelopePoints: DefaultEnvelopePoints,
		PitchThreshold: DefaultVoicePitchThresh,
		PitchMin:       DefaultVoicePitchMin,
		PitchMax:       DefaultVoicePitchMax,
		PreEmphasis:    DefaultPreEmphasis,
	}
}

// VoiceAnalyzer derives resonance, formants, vocal weight, jitter and
// spectral brightness from fixed-size chunks and sends a VoiceQuality per
// chunk to its transport. It implements ChunkHandler.
//
// Thread Safety:
// - Single goroutine; feed it through an AsyncChunkHandler from the audio thread
type VoiceAnalyzer struct {
	cfg       VoiceConfig
	transport transport.Transport

	estimator *pitch.Estimator
	spectrum  *SpectrumAnalyzer
	bands     *BandEnergyProcessor
	onset     *OnsetDetector

	ratio int     // Decimation factor.
	rate  float64 // Rate after decimation.

	// Pre-allocated LPC workspace.
	decimated []float64
	windowed  []float64
	hamming   []float64
	r, a, e   []float64
	envelope  []float64

	resonance history
	weights   history
	jitters   history

	lastResonance float64
	smoothed      float64
	lastPitch     float64
	smoothedH1    float64
	smoothedH2    float64

	samples uint64
}

// Compile-time checks for interface implementations.
var _ ChunkHandler = (*VoiceAnalyzer)(nil)

// NewVoiceAnalyzer validates cfg and allocates every buffer the analysis
// needs. tr may be nil when results are only read through Analyze.
func NewVoiceAnalyzer(cfg VoiceConfig, tr transport.Transport) (*VoiceAnalyzer, error) {
	switch {
	case !(cfg.SampleRate > 0):
		return nil, fmt.Errorf("voice analyzer: sample rate must be positive, got %f", cfg.SampleRate)
	case cfg.Gate < 0:
		return nil, fmt.Errorf("voice analyzer: gate must not be negative, got %f", cfg.Gate)
	case cfg.LPCOrder < 1:
		return nil, fmt.Errorf("voice analyzer: lpc order must be positive, got %d", cfg.LPCOrder)
	case !(cfg.LPCRate > 0):
		return nil, fmt.Errorf("voice analyzer: lpc rate must be positive, got %f", cfg.LPCRate)
	case cfg.EnvelopePoints < 2:
		return nil, fmt.Errorf("voice analyzer: envelope needs at least 2 points, got %d", cfg.EnvelopePoints)
	}

	estimator, err := pitch.NewEstimator(cfg.ChunkSize, pitch.DetectionConfig{
		SampleRate:   cfg.SampleRate,
		Threshold:    cfg.PitchThreshold,
		MinFrequency: cfg.PitchMin,
		MaxFrequency: cfg.PitchMax,
	})
	if err != nil {
		return nil, fmt.Errorf("voice analyzer pitch: %w", err)
	}

	spectrum, err := NewSpectrumAnalyzer(cfg.ChunkSize, cfg.SampleRate, Hann, cfg.PreEmphasis)
	if err != nil {
		return nil, fmt.Errorf("voice analyzer spectrum: %w", err)
	}
	bands, err := NewBandEnergyProcessor(spectrum, VoiceBands)
	if err != nil {
		return nil, err
	}

	ratio := max(int(cfg.SampleRate/cfg.LPCRate), 1)
	n := cfg.ChunkSize / ratio
	if n <= cfg.LPCOrder {
		return nil, fmt.Errorf("voice analyzer: %d decimated samples cannot fit an order %d predictor", n, cfg.LPCOrder)
	}

	v := &VoiceAnalyzer{
		cfg:       cfg,
		transport: tr,
		estimator: estimator,
		spectrum:  spectrum,
		bands:     bands,
		onset:     NewOnsetDetector(cfg.Gate, onsetRatio, onsetCooldown),
		ratio:     ratio,
		rate:      cfg.SampleRate / float64(ratio),
		decimated: make([]float64, n),
		windowed:  make([]float64, n),
		hamming:   windowCoefficients(n, Hamming),
		r:         make([]float64, cfg.LPCOrder+1),
		a:         make([]float64, cfg.LPCOrder+1),
		e:         make([]float64, cfg.LPCOrder+1),
		envelope:  make([]float64, cfg.EnvelopePoints),
		resonance: newHistory(smoothingWindow),
		weights:   newHistory(smoothingWindow),
		jitters:   newHistory(smoothingWindow),
	}

	applog.Infof("Analysis: Initializing VoiceAnalyzer (Chunk: %d, SampleRate: %.0f Hz, LPC: order %d at %.0f Hz)",
		cfg.ChunkSize, cfg.SampleRate, cfg.LPCOrder, v.rate)
	return v, nil
}

// HandleChunk analyzes one chunk and sends the result.
func (v *VoiceAnalyzer) HandleChunk(chunk []float32) {
	q := v.Analyze(chunk)
	if v.transport == nil {
		return
	}
	if err := v.transport.Send(q); err != nil {
		applog.Warnf("VoiceAnalyzer: Error sending voice quality: %v", err)
	}
}

// Analyze runs the full voice-quality pipeline over one chunk of exactly
// ChunkSize samples and updates the smoothing state.
func (v *VoiceAnalyzer) Analyze(chunk []float32) VoiceQuality {
	rms := pitch.RMS(chunk)
	v.samples += uint64(len(chunk))

	q := VoiceQuality{
		Timestamp: float64(v.samples) / v.cfg.SampleRate,
		Volume:    rms,
		Onset:     v.onset.Observe(rms),
	}

	if rms <= v.cfg.Gate {
		v.silence(&q)
		return q
	}

	dec := decimate(v.decimated, chunk, v.ratio)
	vecmath.MulBlock(v.windowed, dec, v.hamming)
	autocorrelate(v.r, v.windowed)
	levinsonDurbin(v.a, v.e, v.r)
	lpcEnvelope(v.envelope, v.a)

	est := v.estimator.Estimate(chunk)
	q.Voiced = est.Voiced
	q.Pitch = est.Frequency

	q.Resonance = v.updateResonance(v.envelopeCentroid())

	binHz := v.rate / float64(2*len(v.envelope))
	f1, f2, f3 := pickFormants(v.envelope, binHz)
	q.F1, q.F2, q.F3 = f1.freq, f2.freq, f3.freq
	q.Vowel = estimateVowel(f1.freq, f2.freq)

	q.Weight, q.H1dB, q.H2dB = v.updateWeight(est)
	q.Jitter = v.updateJitter(est)

	q.Brightness = v.spectrum.Analyze(chunk)
	if levels, err := v.bands.Levels(); err == nil {
		q.Bands = levels
	}
	if v.cfg.IncludeEnvelope {
		q.Envelope = append([]float64(nil), v.envelope...)
	}
	return q
}

// silence lets the resonance decay toward zero and clears the per-phrase
// pitch state.
func (v *VoiceAnalyzer) silence(q *VoiceQuality) {
	v.lastPitch = 0
	v.jitters.reset()
	v.smoothed *= silenceDecay
	if v.smoothed < resonanceFloorHz {
		v.smoothed = 0
	}
	v.lastResonance = v.smoothed
	q.Resonance = v.smoothed
}

func (v *VoiceAnalyzer) envelopeCentroid() float64 {
	binHz := v.rate / float64(2*len(v.envelope))
	var sumFreq, sumAmp float64
	for i, amp := range v.envelope {
		sumFreq += float64(i) * binHz * amp
		sumAmp += amp
	}
	if sumAmp <= 0 {
		return 0
	}
	return sumFreq / sumAmp
}

// updateResonance takes the median of the recent centroids and follows it
// slowly, faster after a large jump.
func (v *VoiceAnalyzer) updateResonance(centroid float64) float64 {
	v.resonance.push(centroid)
	median := v.resonance.median()

	alpha := resonanceAlpha
	if math.Abs(median-v.lastResonance) > resonanceJumpHz {
		alpha = resonanceJumpAlpha
	}
	v.smoothed = v.lastResonance*(1-alpha) + median*alpha
	v.lastResonance = v.smoothed
	return v.smoothed
}

// updateWeight maps the H1-H2 level difference (0-15dB) onto 0-100, where a
// strong second harmonic reads as a heavier voice.
func (v *VoiceAnalyzer) updateWeight(est pitch.Estimate) (weight, h1dB, h2dB float64) {
	weight = neutralWeight
	var h1, h2 float64
	if est.Voiced {
		m1 := magnitudeAt(v.windowed, est.Frequency, v.rate)
		m2 := magnitudeAt(v.windowed, 2*est.Frequency, v.rate)
		if m1 > 0 && m2 > 0 {
			h1 = 20 * math.Log10(m1)
			h2 = 20 * math.Log10(m2)
			diff := math.Max(0, math.Min(maxHarmonicDiffDB, h1-h2))
			weight = (1 - diff/maxHarmonicDiffDB) * 100
		}
	}
	v.weights.push(weight)

	if v.smoothedH1 == 0 {
		v.smoothedH1 = h1
	}
	if v.smoothedH2 == 0 {
		v.smoothedH2 = h2
	}
	v.smoothedH1 = v.smoothedH1*(1-harmonicSmoothing) + h1*harmonicSmoothing
	v.smoothedH2 = v.smoothedH2*(1-harmonicSmoothing) + h2*harmonicSmoothing

	return v.weights.mean(), v.smoothedH1, v.smoothedH2
}

func (v *VoiceAnalyzer) updateJitter(est pitch.Estimate) float64 {
	var jitter float64
	if est.Voiced && v.lastPitch > 0 {
		v.jitters.push(math.Abs(est.Frequency - v.lastPitch))
		jitter = v.jitters.mean()
	}
	v.lastPitch = 0
	if est.Voiced {
		v.lastPitch = est.Frequency
	}
	return jitter
}

// Spectrum exposes the brightness analyzer, for example to read its power
// spectrum.
func (v *VoiceAnalyzer) Spectrum() *SpectrumAnalyzer {
	return v.spectrum
}

// Config returns the analyzer configuration.
func (v *VoiceAnalyzer) Config() VoiceConfig {
	return v.cfg
}
