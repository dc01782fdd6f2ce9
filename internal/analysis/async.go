// SPDX-License-Identifier: MIT
package analysis

import (
	"sync"
	"sync/atomic"

	applog "pitchd/internal/log"
)

// AsyncChunkHandler moves chunk analysis off the audio thread. HandleChunk
// copies the chunk into one of depth pre-allocated buffers and returns; a
// worker goroutine runs the wrapped handler. When every buffer is in use
// the chunk is dropped and counted.
type AsyncChunkHandler struct {
	next    ChunkHandler
	free    chan []float32
	ready   chan []float32
	dropped atomic.Uint64

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Compile-time checks for interface implementations.
var _ ChunkHandler = (*AsyncChunkHandler)(nil)

// NewAsyncChunkHandler starts the worker. depth below 1 is raised to 1.
func NewAsyncChunkHandler(next ChunkHandler, chunkSize, depth int) *AsyncChunkHandler {
	depth = max(depth, 1)
	h := &AsyncChunkHandler{
		next:  next,
		free:  make(chan []float32, depth),
		ready: make(chan []float32, depth),
	}
	for range depth {
		h.free <- make([]float32, chunkSize)
	}

	h.wg.Add(1)
	go h.run()
	return h
}

func (h *AsyncChunkHandler) run() {
	defer h.wg.Done()
	for buf := range h.ready {
		h.next.HandleChunk(buf)
		h.free <- buf
	}
}

// HandleChunk queues a copy of chunk without blocking.
// Performance Critical (Hot Path):
// - No allocations, no locks
func (h *AsyncChunkHandler) HandleChunk(chunk []float32) {
	select {
	case buf := <-h.free:
		copy(buf, chunk)
		h.ready <- buf
	default:
		h.dropped.Add(1)
	}
}

// Dropped returns the number of chunks discarded because the worker fell
// behind.
func (h *AsyncChunkHandler) Dropped() uint64 {
	return h.dropped.Load()
}

// Close drains queued chunks and stops the worker. HandleChunk must not be
// called after Close.
func (h *AsyncChunkHandler) Close() error {
	h.closeOnce.Do(func() {
		close(h.ready)
		h.wg.Wait()
		if n := h.Dropped(); n > 0 {
			applog.Warnf("AsyncChunkHandler: %d chunks dropped while the analyzer was busy", n)
		}
	})
	return nil
}
