// SPDX-License-Identifier: MIT
//
// Package observe records pitchd's OpenTelemetry metrics and exposes them
// to Prometheus scrapers.
//
// Instruments are created from any metric.MeterProvider; tests use an SDK
// provider with a ManualReader, the daemon uses InitProvider.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"pitchd/internal/analysis"
	"pitchd/internal/pitch"
	"pitchd/internal/transport"
)

const meterName = "pitchd"

// Window latencies sit in the tens of microseconds to a few milliseconds.
var windowBuckets = []float64{
	0.00001, 0.000025, 0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01,
}

// Metrics holds the pitchd instruments. Safe for concurrent use.
type Metrics struct {
	// WindowDuration is the time spent estimating one window, in seconds.
	WindowDuration metric.Float64Histogram
	// Windows counts analyzed windows, with attribute voiced=true/false.
	Windows metric.Int64Counter
	// VoiceChunks counts chunks handed to the voice-quality channel.
	VoiceChunks metric.Int64Counter

	dropMu      sync.Mutex
	dropSources map[string]transport.DropCounter

	voicedOpt   metric.AddOption
	unvoicedOpt metric.AddOption
}

// NewMetrics creates every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	met := &Metrics{
		dropSources: make(map[string]transport.DropCounter),
		voicedOpt:   metric.WithAttributeSet(attribute.NewSet(attribute.Bool("voiced", true))),
		unvoicedOpt: metric.WithAttributeSet(attribute.NewSet(attribute.Bool("voiced", false))),
	}

	var err error
	if met.WindowDuration, err = m.Float64Histogram("pitchd.window.duration",
		metric.WithDescription("Time spent estimating the pitch of one analysis window."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(windowBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Windows, err = m.Int64Counter("pitchd.windows",
		metric.WithDescription("Analysis windows processed, by voiced state."),
	); err != nil {
		return nil, err
	}
	if met.VoiceChunks, err = m.Int64Counter("pitchd.voice.chunks",
		metric.WithDescription("PCM chunks analyzed by the voice-quality channel."),
	); err != nil {
		return nil, err
	}
	if _, err = m.Int64ObservableCounter("pitchd.transport.dropped",
		metric.WithDescription("Messages discarded because a consumer fell behind."),
		metric.WithInt64Callback(met.observeDrops),
	); err != nil {
		return nil, err
	}
	return met, nil
}

// TrackDrops reports dc's drop count under attribute transport=name.
// Registering the same name again replaces the previous source.
func (m *Metrics) TrackDrops(name string, dc transport.DropCounter) {
	m.dropMu.Lock()
	m.dropSources[name] = dc
	m.dropMu.Unlock()
}

func (m *Metrics) observeDrops(_ context.Context, o metric.Int64Observer) error {
	m.dropMu.Lock()
	defer m.dropMu.Unlock()
	for name, dc := range m.dropSources {
		o.Observe(int64(dc.Dropped()), metric.WithAttributes(attribute.String("transport", name)))
	}
	return nil
}

// MetricsSink records every pitch event before passing it on.
type MetricsSink struct {
	metrics *Metrics
	next    pitch.Sink
	ctx     context.Context
}

// Compile-time checks for interface implementations.
var _ pitch.Sink = (*MetricsSink)(nil)

// NewMetricsSink wraps next, which may be nil.
func NewMetricsSink(m *Metrics, next pitch.Sink) *MetricsSink {
	return &MetricsSink{metrics: m, next: next, ctx: context.Background()}
}

// Emit runs on the audio thread.
// Performance Critical (Hot Path):
// - Attribute sets are built once in NewMetrics
func (s *MetricsSink) Emit(ev pitch.Event) {
	s.metrics.WindowDuration.Record(s.ctx, ev.Latency.Seconds())
	if ev.Voiced {
		s.metrics.Windows.Add(s.ctx, 1, s.metrics.voicedOpt)
	} else {
		s.metrics.Windows.Add(s.ctx, 1, s.metrics.unvoicedOpt)
	}
	if s.next != nil {
		s.next.Emit(ev)
	}
}

type countingHandler struct {
	metrics *Metrics
	next    analysis.ChunkHandler
	ctx     context.Context
}

// CountChunks wraps next so every chunk is counted in VoiceChunks.
func CountChunks(m *Metrics, next analysis.ChunkHandler) analysis.ChunkHandler {
	return &countingHandler{metrics: m, next: next, ctx: context.Background()}
}

func (h *countingHandler) HandleChunk(chunk []float32) {
	h.metrics.VoiceChunks.Add(h.ctx, 1)
	h.next.HandleChunk(chunk)
}
