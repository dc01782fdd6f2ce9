// SPDX-License-Identifier: MIT
/*
Package audio hosts the pitch pipeline on a live PortAudio input stream:
- float32 capture, downmixed to mono in a preallocated buffer
- windowed pitch detection through pitch.Accumulator
- an optional voice-quality processor fed the same mono blocks
- detector reconfiguration applied between callbacks
- WAV recording of the mono stream

Thread Safety:
- The accumulator is owned by the audio callback; control-side changes are
  queued through an atomic pointer
- Pre-allocates buffers to avoid GC in hot path
- Locks OS thread during audio processing
*/
package audio

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/gordonklaus/portaudio"

	"pitchd/internal/analysis"
	"pitchd/internal/config"
	applog "pitchd/internal/log"
	"pitchd/internal/pitch"
)

// DefaultMaxConsecutiveWriteFailures stops a recording whose file keeps
// rejecting writes.
const DefaultMaxConsecutiveWriteFailures = 5

var ErrStreamOpen = errors.New("audio engine: input stream already open")

type Engine struct {
	// Core configuration and state.
	config   *config.Config
	channels int
	frames   int

	// Pitch pipeline, touched only by the audio thread once the stream runs.
	accumulator *pitch.Accumulator
	pending     atomic.Pointer[pitch.DetectionConfig]
	voice       analysis.AudioProcessor

	// Control side: last accepted detector config and the gate setting.
	controlMu     sync.Mutex
	detection     pitch.DetectionConfig
	gateEnabled   bool
	gateThreshold float64 // RMS in [0, 1].

	// Audio input handling.
	mono         []float32 // Downmix target, one host block.
	inputDevice  *portaudio.DeviceInfo
	inputLatency time.Duration
	inputStream  *portaudio.Stream

	// Recording state and buffers.
	isRecording   atomic.Bool
	recordMu      sync.Mutex // Held by Start/StopRecording; the callback only TryLocks.
	outputFile    *os.File
	wavEncoder    *wav.Encoder
	sampleBuf     *audio.IntBuffer // Reusable buffer for format conversion
	sampleScale   float32
	writeFailures int
}

// NewEngine builds the pitch pipeline for cfg without touching the audio
// device. sink receives one event per analysis window; voice, if not nil,
// receives every mono block.
func NewEngine(cfg *config.Config, sink pitch.Sink, voice analysis.AudioProcessor) (*Engine, error) {
	if cfg == nil {
		return nil, errors.New("audio engine: config cannot be nil")
	}
	if cfg.Audio.InputChannels < 1 || cfg.Audio.FramesPerBuffer < 1 {
		return nil, fmt.Errorf("audio engine: invalid stream format (%d channels, %d frames)",
			cfg.Audio.InputChannels, cfg.Audio.FramesPerBuffer)
	}

	detection := cfg.Detection()
	accumulator, err := pitch.NewAccumulator(cfg.Pitch.BufferSize, detection, sink)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		config:        cfg,
		channels:      cfg.Audio.InputChannels,
		frames:        cfg.Audio.FramesPerBuffer,
		accumulator:   accumulator,
		voice:         voice,
		detection:     detection,
		gateEnabled:   detection.SilenceThreshold > 0,
		gateThreshold: DefaultGateThreshold,
		mono:          make([]float32, cfg.Audio.FramesPerBuffer),
	}
	if e.gateEnabled {
		e.gateThreshold = detection.SilenceThreshold
	}
	return e, nil
}

// StartInputStream opens the configured input device and starts capture.
// PortAudio must be initialized.
func (e *Engine) StartInputStream() error {
	e.controlMu.Lock()
	defer e.controlMu.Unlock()

	if e.inputStream != nil {
		return ErrStreamOpen
	}

	device, err := InputDevice(e.config.Audio.InputDevice)
	if err != nil {
		return err
	}
	if device.MaxInputChannels < e.channels {
		return fmt.Errorf("device %s has %d input channels, %d requested",
			device.Name, device.MaxInputChannels, e.channels)
	}
	e.inputDevice = device
	if e.config.Audio.LowLatency {
		e.inputLatency = device.DefaultLowInputLatency
	} else {
		e.inputLatency = device.DefaultHighInputLatency
	}

	// Nothing is running yet, so the accumulator can be touched directly.
	if cfg := e.pending.Swap(nil); cfg != nil {
		if err := e.accumulator.Configure(*cfg); err != nil {
			return err
		}
	}
	e.accumulator.Reset()

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Channels: e.channels,
			Device:   device,
			Latency:  e.inputLatency,
		},
		Output: portaudio.StreamDeviceParameters{
			Channels: 0, // No output device
			Device:   nil,
		},
		FramesPerBuffer: e.frames,
		SampleRate:      e.detection.SampleRate,
	}

	stream, err := portaudio.OpenStream(params, e.processInputStream)
	if err != nil {
		return fmt.Errorf("open input stream on %s: %w", device.Name, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("start input stream on %s: %w", device.Name, err)
	}
	e.inputStream = stream

	applog.Infof("Engine: Capturing from %s (%d ch, %.0f Hz, %d frames, latency %s)",
		device.Name, e.channels, e.detection.SampleRate, e.frames, e.inputLatency)
	return nil
}

func (e *Engine) StopInputStream() error {
	e.controlMu.Lock()
	defer e.controlMu.Unlock()

	if e.inputStream == nil {
		return nil
	}
	if err := e.inputStream.Stop(); err != nil {
		return err
	}
	if err := e.inputStream.Close(); err != nil {
		return err
	}
	e.inputStream = nil

	windows, avg := e.accumulator.Stats()
	applog.Infof("Engine: Input stream stopped after %d windows (avg %s)", windows, avg)
	return nil
}

// Running reports whether the input stream is open.
func (e *Engine) Running() bool {
	e.controlMu.Lock()
	defer e.controlMu.Unlock()
	return e.inputStream != nil
}

// Configure validates cfg and queues it for the audio thread, which applies
// it before the next block. Buffered samples are kept. The sample rate is
// fixed while the stream is open.
func (e *Engine) Configure(cfg pitch.DetectionConfig) error {
	e.controlMu.Lock()
	defer e.controlMu.Unlock()
	return e.configureLocked(cfg)
}

func (e *Engine) configureLocked(cfg pitch.DetectionConfig) error {
	if err := cfg.Validate(e.config.Pitch.BufferSize); err != nil {
		return err
	}
	if e.inputStream != nil && cfg.SampleRate != e.detection.SampleRate {
		return fmt.Errorf("audio engine: cannot change sample rate from %g to %g while capturing",
			e.detection.SampleRate, cfg.SampleRate)
	}
	e.detection = cfg
	e.pending.Store(&cfg)
	return nil
}

// Detection returns the most recently accepted detector configuration.
func (e *Engine) Detection() pitch.DetectionConfig {
	e.controlMu.Lock()
	defer e.controlMu.Unlock()
	return e.detection
}

// processInputStream is the core audio processing callback.
// Performance Critical:
// - Runs in a dedicated OS thread (LockOSThread)
// - Uses pre-allocated buffers only
// - No dynamic allocations in the hot path
func (e *Engine) processInputStream(in []float32) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if cfg := e.pending.Swap(nil); cfg != nil {
		if err := e.accumulator.Configure(*cfg); err != nil {
			applog.Errorf("Engine: Rejected detector config: %v", err)
		}
	}

	// Hosts may hand over more than one block; walk it in mono-buffer steps.
	step := len(e.mono) * e.channels
	for len(in) > 0 {
		n := min(step, len(in))
		e.processBuffer(e.downmix(in[:n]))
		in = in[n:]
	}
}

// processBuffer feeds one mono block to every consumer.
// Performance Critical (Hot Path):
// - No allocations
func (e *Engine) processBuffer(mono []float32) {
	e.accumulator.PushSamples(mono)
	if e.voice != nil {
		e.voice.Process(mono)
	}
	if e.isRecording.Load() {
		e.writeRecording(mono)
	}
}

// downmix averages interleaved frames into e.mono. Mono input is returned
// as is.
func (e *Engine) downmix(in []float32) []float32 {
	if e.channels == 1 {
		return in
	}
	frames := len(in) / e.channels
	mono := e.mono[:frames]
	scale := 1 / float32(e.channels)
	for i := range mono {
		var sum float32
		for _, s := range in[i*e.channels : (i+1)*e.channels] {
			sum += s
		}
		mono[i] = sum * scale
	}
	return mono
}

// Close stops recording and capture.
func (e *Engine) Close() error {
	var errs []error
	if err := e.StopRecording(); err != nil {
		errs = append(errs, err)
	}
	if err := e.StopInputStream(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
