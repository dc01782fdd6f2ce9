// SPDX-License-Identifier: MIT
package analysis

import (
	"sync"
	"testing"
	"time"
)

type recordingHandler struct {
	chunks [][]float32
}

func (r *recordingHandler) HandleChunk(chunk []float32) {
	r.chunks = append(r.chunks, append([]float32(nil), chunk...))
}

func sequence(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(i)
	}
	return out
}

func TestNewChunkAggregatorValidation(t *testing.T) {
	tests := []struct {
		desc    string
		size    int
		handler ChunkHandler
		wantErr bool
	}{
		{"Power of two", 2048, &recordingHandler{}, false},
		{"Small power of two", 1, &recordingHandler{}, false},
		{"Not a power of two", 1000, &recordingHandler{}, true},
		{"Zero", 0, &recordingHandler{}, true},
		{"Nil handler", 256, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			_, err := NewChunkAggregator(tt.size, tt.handler)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewChunkAggregator(%d) error = %v, wantErr %v", tt.size, err, tt.wantErr)
			}
		})
	}
}

func TestChunkAggregatorContiguousChunks(t *testing.T) {
	tests := []struct {
		desc    string
		total   int
		block   int
		chunks  int
		pending int
	}{
		{"Exact chunks", 1024, 256, 4, 0},
		{"Odd blocks", 1000, 128, 3, 232},
		{"Single large push", 1000, 1000, 3, 232},
		{"Under one chunk", 200, 7, 0, 200},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			h := &recordingHandler{}
			agg, err := NewChunkAggregator(256, h)
			if err != nil {
				t.Fatalf("NewChunkAggregator: %v", err)
			}

			input := sequence(tt.total)
			for off := 0; off < len(input); off += tt.block {
				agg.Process(input[off:min(off+tt.block, len(input))])
			}

			if len(h.chunks) != tt.chunks || agg.Chunks() != uint64(tt.chunks) {
				t.Fatalf("got %d chunks (Chunks() = %d), want %d", len(h.chunks), agg.Chunks(), tt.chunks)
			}
			if agg.Pending() != tt.pending {
				t.Errorf("Pending() = %d, want %d", agg.Pending(), tt.pending)
			}
			for c, chunk := range h.chunks {
				for i, v := range chunk {
					if want := float32(c*256 + i); v != want {
						t.Fatalf("chunk %d sample %d = %f, want %f", c, i, v, want)
					}
				}
			}
		})
	}
}

func TestChunkAggregatorHotPath(t *testing.T) {
	var count int
	agg, err := NewChunkAggregator(512, ChunkHandlerFunc(func([]float32) { count++ }))
	if err != nil {
		t.Fatalf("NewChunkAggregator: %v", err)
	}
	block := make([]float32, 128)

	allocs := testing.AllocsPerRun(100, func() {
		agg.Process(block)
	})

	if allocs > 0 {
		t.Errorf("Expected zero allocations in Process hot path, got %.1f", allocs)
	}
	if count == 0 {
		t.Error("handler never called")
	}
}

func TestAsyncChunkHandlerCopies(t *testing.T) {
	var mu sync.Mutex
	rec := &recordingHandler{}
	h := NewAsyncChunkHandler(ChunkHandlerFunc(func(c []float32) {
		mu.Lock()
		rec.HandleChunk(c)
		mu.Unlock()
	}), 4, 8)

	src := []float32{1, 2, 3, 4}
	h.HandleChunk(src)
	src[0] = 99
	h.HandleChunk(src)

	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(rec.chunks) != 2 {
		t.Fatalf("worker handled %d chunks, want 2", len(rec.chunks))
	}
	if rec.chunks[0][0] != 1 || rec.chunks[1][0] != 99 {
		t.Errorf("chunks = %v, want copies taken at HandleChunk time", rec.chunks)
	}
	if h.Dropped() != 0 {
		t.Errorf("Dropped() = %d, want 0", h.Dropped())
	}
}

func TestAsyncChunkHandlerDropsWhenBusy(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	var handled int

	h := NewAsyncChunkHandler(ChunkHandlerFunc(func([]float32) {
		started <- struct{}{}
		<-release
		handled++
	}), 4, 1)

	chunk := make([]float32, 4)
	h.HandleChunk(chunk)
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("worker did not pick up the first chunk")
	}

	h.HandleChunk(chunk)
	h.HandleChunk(chunk)
	close(release)

	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if handled != 1 {
		t.Errorf("handled = %d, want 1", handled)
	}
	if h.Dropped() != 2 {
		t.Errorf("Dropped() = %d, want 2", h.Dropped())
	}
}

func BenchmarkChunkAggregator(b *testing.B) {
	agg, _ := NewChunkAggregator(DefaultChunkSize, ChunkHandlerFunc(func([]float32) {}))
	block := make([]float32, 128)

	b.ReportAllocs()
	for b.Loop() {
		agg.Process(block)
	}
}
