// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"

	"pitchd/pkg/bitint"
)

// DefaultChunkSize matches the block length the voice-quality channel
// was tuned for (~46ms at 44.1kHz).
const DefaultChunkSize = 2048

// ChunkAggregator collects the capture stream into contiguous,
// non-overlapping chunks and forwards each full chunk to a handler.
//
// Thread Safety:
// - Owned by the audio thread; no locks
// - The chunk buffer is allocated once and reused
type ChunkAggregator struct {
	handler ChunkHandler
	buffer  []float32
	index   int
	chunks  uint64
}

// Compile-time checks for interface implementations.
var _ AudioProcessor = (*ChunkAggregator)(nil)

// NewChunkAggregator creates an aggregator emitting chunks of size samples.
// size must be a power of two so the chunk can feed an FFT unpadded.
func NewChunkAggregator(size int, handler ChunkHandler) (*ChunkAggregator, error) {
	if !bitint.IsPowerOfTwo(size) {
		return nil, fmt.Errorf("chunk size must be a power of 2, got %d", size)
	}
	if handler == nil {
		return nil, fmt.Errorf("chunk aggregator requires a handler")
	}
	return &ChunkAggregator{
		handler: handler,
		buffer:  make([]float32, size),
	}, nil
}

// Process appends samples and hands every completed chunk to the handler.
// Performance Critical (Hot Path):
// - No allocations
func (c *ChunkAggregator) Process(samples []float32) {
	for len(samples) > 0 {
		n := copy(c.buffer[c.index:], samples)
		c.index += n
		samples = samples[n:]

		if c.index == len(c.buffer) {
			c.handler.HandleChunk(c.buffer)
			c.chunks++
			c.index = 0
		}
	}
}

// Size returns the chunk length in samples.
func (c *ChunkAggregator) Size() int {
	return len(c.buffer)
}

// Chunks returns the number of chunks forwarded so far.
func (c *ChunkAggregator) Chunks() uint64 {
	return c.chunks
}

// Pending returns the samples collected toward the next chunk.
func (c *ChunkAggregator) Pending() int {
	return c.index
}
