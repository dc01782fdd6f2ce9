// SPDX-License-Identifier: MIT
package pitch

import "time"

// Accumulator turns an arbitrarily chunked sample stream into overlapping
// analysis windows. Each time the ring buffer fills, the window is handed to
// the estimator, the result is emitted to the sink, and the newest half of
// the buffer is kept as the start of the next window.
//
// Thread Safety:
// - Owned by a single audio thread; no locks
// - All buffers are allocated in NewAccumulator and reused
type Accumulator struct {
	estimator *Estimator
	sink      Sink

	buffer     []float32 // Ring storage, bufferSize samples.
	window     []float32 // Snapshot handed to the estimator.
	writeIndex int
	overlap    int

	// Audio clock. Samples counted since clockBase was last rebased.
	clockBase    float64
	clockSamples uint64

	processCount     uint64
	totalProcessTime time.Duration
}

// NewAccumulator creates an accumulator and its estimator for windows of
// bufferSize samples. sink may be nil.
func NewAccumulator(bufferSize int, cfg DetectionConfig, sink Sink) (*Accumulator, error) {
	estimator, err := NewEstimator(bufferSize, cfg)
	if err != nil {
		return nil, err
	}
	return &Accumulator{
		estimator: estimator,
		sink:      sink,
		buffer:    make([]float32, bufferSize),
		window:    make([]float32, bufferSize),
		overlap:   bufferSize / 2,
	}, nil
}

// Configure updates sample rate, threshold and frequency bounds without
// discarding buffered samples. An invalid configuration is rejected and the
// last valid one stays in effect.
func (a *Accumulator) Configure(cfg DetectionConfig) error {
	prev := a.estimator.Config()
	if err := a.estimator.Configure(cfg); err != nil {
		return err
	}
	if cfg.SampleRate != prev.SampleRate {
		// Fold elapsed samples into the base so earlier timestamps hold.
		a.clockBase += float64(a.clockSamples) / prev.SampleRate
		a.clockSamples = 0
	}
	return nil
}

// Config returns the configuration currently in effect.
func (a *Accumulator) Config() DetectionConfig {
	return a.estimator.Config()
}

// SetSink replaces the event sink. Call it from the audio thread or before
// samples start flowing.
func (a *Accumulator) SetSink(sink Sink) {
	a.sink = sink
}

// PushSamples appends samples to the ring buffer and analyzes every window
// that fills along the way. It returns the number of windows completed.
// Performance Critical (Hot Path):
// - No allocations
// - Chunks of any length, including several buffers at once
func (a *Accumulator) PushSamples(samples []float32) int {
	completed := 0
	size := len(a.buffer)
	for len(samples) > 0 {
		n := copy(a.buffer[a.writeIndex:], samples)
		a.writeIndex += n
		a.clockSamples += uint64(n)
		samples = samples[n:]

		if a.writeIndex < size {
			continue
		}

		a.processWindow()
		completed++

		// 50% overlap: keep the newest half as the head of the next window.
		copy(a.buffer, a.buffer[size-a.overlap:])
		a.writeIndex = a.overlap
	}
	return completed
}

func (a *Accumulator) processWindow() {
	copy(a.window, a.buffer)
	timestamp := a.clockBase + float64(a.clockSamples)/a.estimator.cfg.SampleRate

	start := time.Now()
	estimate := a.estimator.Estimate(a.window)
	latency := time.Since(start)

	a.totalProcessTime += latency
	a.processCount++

	if a.sink != nil {
		a.sink.Emit(Event{
			Estimate:   estimate,
			Timestamp:  timestamp,
			Latency:    latency,
			AvgLatency: a.totalProcessTime / time.Duration(a.processCount),
		})
	}
}

// Stats returns how many windows were analyzed and their mean latency.
func (a *Accumulator) Stats() (windows uint64, avgLatency time.Duration) {
	if a.processCount == 0 {
		return 0, 0
	}
	return a.processCount, a.totalProcessTime / time.Duration(a.processCount)
}

// Buffered returns the number of samples waiting for the next window.
func (a *Accumulator) Buffered() int {
	return a.writeIndex
}

// Reset clears the buffer, the audio clock and latency statistics. It is
// meant for the start of a new session.
func (a *Accumulator) Reset() {
	clear(a.buffer)
	a.writeIndex = 0
	a.clockBase = 0
	a.clockSamples = 0
	a.processCount = 0
	a.totalProcessTime = 0
}
