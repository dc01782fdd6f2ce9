// SPDX-License-Identifier: MIT
package pitch

import "fmt"

// rangeTolerance is the relative distance past a frequency bound that is
// still reported, pinned to the bound. Interpolating a dip at the first or
// last searched lag carries a bias of a few hundredths of a hertz.
const rangeTolerance = 1e-3

// Estimate is the outcome of analyzing one window. When Voiced is false
// no periodic signal was found and Frequency and Confidence are zero.
type Estimate struct {
	Frequency  float64 // Fundamental frequency in Hz.
	Confidence float64 // 1 - d'(tau), in [0, 1].
	Voiced     bool
}

// Estimator runs the YIN fundamental frequency method over fixed-size
// windows. It owns its scratch memory and is not safe for concurrent use;
// each audio thread should hold its own instance.
type Estimator struct {
	bufferSize int
	cfg        DetectionConfig
	minPeriod  int
	maxPeriod  int

	// Pre-allocated per-window workspace, sized once for bufferSize.
	samples []float64 // Window converted to float64.
	yin     []float64 // Difference function, normalized in place.
}

// NewEstimator creates an estimator for windows of exactly bufferSize
// samples. The configuration is validated against that size.
func NewEstimator(bufferSize int, cfg DetectionConfig) (*Estimator, error) {
	if err := cfg.Validate(bufferSize); err != nil {
		return nil, err
	}
	e := &Estimator{
		bufferSize: bufferSize,
		samples:    make([]float64, bufferSize),
		yin:        make([]float64, bufferSize),
	}
	e.apply(cfg)
	return e, nil
}

// Configure replaces the detection parameters. An invalid configuration is
// rejected and the previous one stays in effect.
func (e *Estimator) Configure(cfg DetectionConfig) error {
	if err := cfg.Validate(e.bufferSize); err != nil {
		return err
	}
	e.apply(cfg)
	return nil
}

func (e *Estimator) apply(cfg DetectionConfig) {
	e.cfg = cfg
	e.minPeriod = cfg.MinPeriod()
	e.maxPeriod = cfg.MaxPeriod()
}

// Config returns the configuration currently in effect.
func (e *Estimator) Config() DetectionConfig {
	return e.cfg
}

// BufferSize returns the window length the estimator accepts.
func (e *Estimator) BufferSize() int {
	return e.bufferSize
}

// Estimate analyzes one window. The window is only read. Passing a window
// whose length differs from BufferSize is a programming error and panics.
// Performance Critical (Hot Path):
// - No allocations
// - O(bufferSize * maxPeriod)
func (e *Estimator) Estimate(window []float32) Estimate {
	if len(window) != e.bufferSize {
		panic(fmt.Sprintf("pitch: window length %d, estimator expects %d", len(window), e.bufferSize))
	}

	if e.cfg.SilenceThreshold > 0 && RMS(window) < e.cfg.SilenceThreshold {
		return Estimate{}
	}

	for i, s := range window {
		e.samples[i] = float64(s)
	}

	e.difference()
	e.cumulativeMeanNormalizedDifference()

	tau := e.absoluteThreshold()
	if tau < 0 {
		return Estimate{}
	}

	frequency, ok := e.inRange(e.cfg.SampleRate / e.parabolicInterpolation(tau))
	if !ok {
		return Estimate{}
	}

	return Estimate{
		Frequency:  frequency,
		Confidence: 1 - e.yin[tau],
		Voiced:     true,
	}
}

// inRange reports whether frequency lies within the configured bounds.
// Estimates within rangeTolerance of a bound are pinned to it; anything
// further out is rejected rather than clamped.
func (e *Estimator) inRange(frequency float64) (float64, bool) {
	lo, hi := e.cfg.MinFrequency, e.cfg.MaxFrequency
	switch {
	case frequency >= lo && frequency <= hi:
		return frequency, true
	case frequency < lo && frequency >= lo*(1-rangeTolerance):
		return lo, true
	case frequency > hi && frequency <= hi*(1+rangeTolerance):
		return hi, true
	}
	return 0, false
}

// difference computes d(tau) = sum((x[i] - x[i+tau])^2) for every lag below
// maxPeriod. Lags under minPeriod are never candidates but feed the
// cumulative mean in the next step.
func (e *Estimator) difference() {
	x := e.samples
	n := len(x)
	e.yin[0] = 0
	for tau := 1; tau < e.maxPeriod; tau++ {
		var sum float64
		shifted := x[tau:]
		for i := range n - tau {
			delta := x[i] - shifted[i]
			sum += delta * delta
		}
		e.yin[tau] = sum
	}
}

// cumulativeMeanNormalizedDifference rewrites d(tau) as
// d'(tau) = d(tau) * tau / sum(d(1..tau)), with d'(0) = 1. A window with no
// energy up to tau has no periodicity to report, so d' stays at 1 there.
func (e *Estimator) cumulativeMeanNormalizedDifference() {
	e.yin[0] = 1
	var runningSum float64
	for tau := 1; tau < e.maxPeriod; tau++ {
		runningSum += e.yin[tau]
		if runningSum > 0 {
			e.yin[tau] *= float64(tau) / runningSum
		} else {
			e.yin[tau] = 1
		}
	}
}

// absoluteThreshold returns the first lag whose d' dips under the threshold,
// advanced to the bottom of that dip, or -1 when nothing crosses.
func (e *Estimator) absoluteThreshold() int {
	for tau := e.minPeriod; tau < e.maxPeriod; tau++ {
		if e.yin[tau] < e.cfg.Threshold {
			for tau+1 < e.maxPeriod && e.yin[tau+1] < e.yin[tau] {
				tau++
			}
			return tau
		}
	}
	return -1
}

// parabolicInterpolation refines tau to a fractional lag through the vertex
// of the parabola over d'(tau-1), d'(tau), d'(tau+1). d' is filled from lag
// 1, so a dip on minPeriod still has its left neighbour; only the last
// computed lag keeps its integer value.
func (e *Estimator) parabolicInterpolation(tau int) float64 {
	if tau < 1 || tau >= e.maxPeriod-1 {
		return float64(tau)
	}
	s0, s1, s2 := e.yin[tau-1], e.yin[tau], e.yin[tau+1]
	denominator := 2 * (2*s1 - s2 - s0)
	if denominator == 0 {
		return float64(tau)
	}
	return float64(tau) + (s2-s0)/denominator
}
