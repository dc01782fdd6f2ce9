// SPDX-License-Identifier: MIT

// Package offline runs the live pipelines over a decoded recording.
package offline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"pitchd/internal/analysis"
	"pitchd/internal/config"
	applog "pitchd/internal/log"
	"pitchd/internal/pitch"
)

// DefaultBlockSize matches the default host buffer of the live engine.
const DefaultBlockSize = config.DefaultFramesPerBuffer

// Options tune an offline run.
type Options struct {
	BlockSize int       // Samples per push; <= 0 uses DefaultBlockSize.
	Voice     bool      // Also run the voice-quality channel.
	Events    io.Writer // Receives every result as a JSON line, nil to skip.
}

// Summary aggregates an offline run.
type Summary struct {
	SampleRate float64
	Duration   time.Duration

	Windows        int
	Voiced         int
	MeanPitch      float64 // Over voiced windows.
	MedianPitch    float64
	StdDevPitch    float64
	MinPitch       float64
	MaxPitch       float64
	MeanConfidence float64
	MeanLatency    time.Duration

	VoiceChunks   int
	MeanWeight    float64 // Over voiced chunks.
	MeanResonance float64
	MeanJitter    float64
}

// VoicedRatio is the share of windows with a pitch.
func (s Summary) VoicedRatio() float64 {
	if s.Windows == 0 {
		return 0
	}
	return float64(s.Voiced) / float64(s.Windows)
}

// Print writes a human-readable report.
func (s Summary) Print(w io.Writer) {
	fmt.Fprintf(w, "Duration:        %s at %.0f Hz\n", s.Duration.Round(time.Millisecond), s.SampleRate)
	fmt.Fprintf(w, "Windows:         %d (%d voiced, %.1f%%)\n", s.Windows, s.Voiced, 100*s.VoicedRatio())
	if s.Voiced > 0 {
		fmt.Fprintf(w, "Pitch:           median %.2f Hz, mean %.2f Hz, sd %.2f Hz\n", s.MedianPitch, s.MeanPitch, s.StdDevPitch)
		fmt.Fprintf(w, "Range:           %.2f - %.2f Hz\n", s.MinPitch, s.MaxPitch)
		fmt.Fprintf(w, "Confidence:      %.3f mean\n", s.MeanConfidence)
	}
	fmt.Fprintf(w, "Latency:         %s mean per window\n", s.MeanLatency)
	if s.VoiceChunks > 0 {
		fmt.Fprintf(w, "Voice chunks:    %d\n", s.VoiceChunks)
		fmt.Fprintf(w, "Weight:          %.1f\n", s.MeanWeight)
		fmt.Fprintf(w, "Resonance:       %.0f Hz\n", s.MeanResonance)
		fmt.Fprintf(w, "Jitter:          %.2f Hz\n", s.MeanJitter)
	}
}

// Analyze feeds samples through the pitch pipeline and, if enabled, the
// voice channel. The two pipelines are independent and run concurrently,
// each pushing BlockSize samples at a time as the audio callback would.
func Analyze(ctx context.Context, samples []float32, sampleRate float64, cfg *config.Config, opts Options) (Summary, error) {
	block := opts.BlockSize
	if block <= 0 {
		block = DefaultBlockSize
	}

	detection := cfg.Detection()
	detection.SampleRate = sampleRate
	var events []pitch.Event
	accumulator, err := pitch.NewAccumulator(cfg.Pitch.BufferSize, detection,
		pitch.SinkFunc(func(ev pitch.Event) { events = append(events, ev) }))
	if err != nil {
		return Summary{}, fmt.Errorf("pitch pipeline: %w", err)
	}

	var qualities []analysis.VoiceQuality
	var aggregator *analysis.ChunkAggregator
	if opts.Voice {
		vc := cfg.VoiceAnalysis()
		vc.SampleRate = sampleRate
		analyzer, err := analysis.NewVoiceAnalyzer(vc, nil)
		if err != nil {
			return Summary{}, fmt.Errorf("voice pipeline: %w", err)
		}
		aggregator, err = analysis.NewChunkAggregator(vc.ChunkSize, analysis.ChunkHandlerFunc(func(chunk []float32) {
			qualities = append(qualities, analyzer.Analyze(chunk))
		}))
		if err != nil {
			return Summary{}, fmt.Errorf("voice pipeline: %w", err)
		}
	}

	applog.Infof("Offline: Analyzing %d samples at %.0f Hz in blocks of %d", len(samples), sampleRate, block)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return pushBlocks(gctx, samples, block, func(b []float32) { accumulator.PushSamples(b) })
	})
	if aggregator != nil {
		g.Go(func() error {
			return pushBlocks(gctx, samples, block, aggregator.Process)
		})
	}
	if err := g.Wait(); err != nil {
		return Summary{}, err
	}

	if opts.Events != nil {
		if err := writeEvents(opts.Events, events, qualities); err != nil {
			return Summary{}, fmt.Errorf("write events: %w", err)
		}
	}

	s := summarize(events, qualities)
	s.SampleRate = sampleRate
	s.Duration = time.Duration(float64(len(samples)) / sampleRate * float64(time.Second))
	return s, nil
}

func pushBlocks(ctx context.Context, samples []float32, block int, push func([]float32)) error {
	for start := 0; start < len(samples); start += block {
		if err := ctx.Err(); err != nil {
			return err
		}
		push(samples[start:min(start+block, len(samples))])
	}
	return nil
}

// writeEvents merges both result streams in timestamp order.
func writeEvents(w io.Writer, events []pitch.Event, qualities []analysis.VoiceQuality) error {
	enc := json.NewEncoder(w)
	i, j := 0, 0
	for i < len(events) || j < len(qualities) {
		var err error
		if j == len(qualities) || (i < len(events) && events[i].Timestamp <= qualities[j].Timestamp) {
			err = enc.Encode(events[i])
			i++
		} else {
			err = enc.Encode(qualities[j])
			j++
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func summarize(events []pitch.Event, qualities []analysis.VoiceQuality) Summary {
	s := Summary{Windows: len(events), VoiceChunks: len(qualities)}

	var pitches, confidences []float64
	var latency time.Duration
	for _, ev := range events {
		latency += ev.Latency
		if ev.Voiced {
			pitches = append(pitches, ev.Frequency)
			confidences = append(confidences, ev.Confidence)
		}
	}
	if len(events) > 0 {
		s.MeanLatency = latency / time.Duration(len(events))
	}

	s.Voiced = len(pitches)
	if s.Voiced > 0 {
		s.MeanPitch, s.StdDevPitch = stat.MeanStdDev(pitches, nil)
		if s.Voiced == 1 {
			s.StdDevPitch = 0
		}
		s.MinPitch = floats.Min(pitches)
		s.MaxPitch = floats.Max(pitches)
		slices.Sort(pitches)
		s.MedianPitch = stat.Quantile(0.5, stat.Empirical, pitches, nil)
		s.MeanConfidence = stat.Mean(confidences, nil)
	}

	var weights, resonances, jitters []float64
	for _, q := range qualities {
		if q.Voiced {
			weights = append(weights, q.Weight)
			resonances = append(resonances, q.Resonance)
			jitters = append(jitters, q.Jitter)
		}
	}
	if len(weights) > 0 {
		s.MeanWeight = stat.Mean(weights, nil)
		s.MeanResonance = stat.Mean(resonances, nil)
		s.MeanJitter = stat.Mean(jitters, nil)
	}
	return s
}
