// SPDX-License-Identifier: MIT
package analysis

// AudioProcessor is implemented by components fed directly from the capture
// stream. Process is usually called from the real-time audio callback, so
// implementations must not block or allocate.
type AudioProcessor interface {
	Process(samples []float32)
}

// ChunkHandler receives fixed-size blocks from a ChunkAggregator. The chunk
// slice is reused for the next block and must not be retained.
type ChunkHandler interface {
	HandleChunk(chunk []float32)
}

// ChunkHandlerFunc adapts a function to the ChunkHandler interface.
type ChunkHandlerFunc func(chunk []float32)

// HandleChunk calls f(chunk).
func (f ChunkHandlerFunc) HandleChunk(chunk []float32) {
	f(chunk)
}

// SpectrumProvider exposes the most recent power spectrum of an analyzer so
// band-level consumers stay decoupled from the FFT implementation.
type SpectrumProvider interface {
	PowerInto(dest []float64) error          // PowerInto copies the latest |X[k]|^2 into dest.
	GetFrequencyForBin(binIndex int) float64 // GetFrequencyForBin returns the center frequency (Hz) for a bin.
	GetFFTSize() int                         // GetFFTSize returns the number of FFT points.
	GetSampleRate() float64                  // GetSampleRate returns the analysis sample rate.
}
