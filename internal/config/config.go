// SPDX-License-Identifier: MIT
package config

import (
	"time"

	"pitchd/internal/analysis"
	"pitchd/internal/pitch"
)

// Defaults and hardware limits.
const (
	DefaultLogLevel        = "info"
	DefaultDeviceID        = MinDeviceID
	DefaultSampleRate      = 44100
	DefaultFramesPerBuffer = 128 // Host block size; the accumulator re-chunks it.
	DefaultInputChannels   = 1

	MinDeviceID     = -1 // -1 selects the system default input.
	MinSampleRate   = 8000
	MaxSampleRate   = 192000
	MaxBufferFrames = 8192

	DefaultWebSocketAddr    = ":8080"
	DefaultUDPTargetAddress = "127.0.0.1:9090"
	DefaultUDPSendInterval  = 16 * time.Millisecond
	DefaultVoiceQueueDepth  = 4
	DefaultRecordingDir     = "./recordings"
	DefaultRecordingBits    = 16
)

// Config is the complete runtime configuration, loaded from YAML and then
// overridden by ENV_* variables and command line flags.
type Config struct {
	LogLevel  string          `yaml:"log_level"` // debug, info, warn, error.
	Audio     AudioConfig     `yaml:"audio"`
	Pitch     PitchConfig     `yaml:"pitch"`
	Voice     VoiceConfig     `yaml:"voice"`
	Recording RecordingConfig `yaml:"recording"`
	Transport TransportConfig `yaml:"transport"`
	Metrics   MetricsConfig   `yaml:"metrics"`

	// Set from the command line only.
	TUIMode bool `yaml:"-"`
}

// AudioConfig selects the capture device and stream format.
type AudioConfig struct {
	InputDevice     int     `yaml:"input_device"`      // PortAudio device index, -1 for the default input.
	SampleRate      float64 `yaml:"sample_rate"`       // Hz.
	FramesPerBuffer int     `yaml:"frames_per_buffer"` // Frames delivered per callback.
	InputChannels   int     `yaml:"input_channels"`    // Channels captured, downmixed to mono.
	LowLatency      bool    `yaml:"low_latency"`       // Request the device's low input latency.
}

// PitchConfig holds the detector parameters. The sample rate comes from
// AudioConfig.
type PitchConfig struct {
	BufferSize       int     `yaml:"buffer_size"`       // Analysis window, samples.
	Threshold        float64 `yaml:"threshold"`         // YIN absolute threshold.
	MinFrequency     float64 `yaml:"min_frequency"`     // Hz.
	MaxFrequency     float64 `yaml:"max_frequency"`     // Hz.
	SilenceThreshold float64 `yaml:"silence_threshold"` // RMS gate, 0 disables it.
}

// VoiceConfig controls the voice-quality channel.
type VoiceConfig struct {
	Enabled         bool    `yaml:"enabled"`
	ChunkSize       int     `yaml:"chunk_size"`       // Rounded up to a power of two.
	Gate            float64 `yaml:"gate"`             // RMS below which a chunk is silent.
	PreEmphasis     float64 `yaml:"pre_emphasis"`     // Brightness pre-emphasis coefficient.
	QueueDepth      int     `yaml:"queue_depth"`      // Chunks buffered between audio thread and analyzer.
	IncludeEnvelope bool    `yaml:"include_envelope"` // Attach the LPC envelope to each message.
}

// RecordingConfig controls WAV capture of the mono stream.
type RecordingConfig struct {
	Enabled   bool   `yaml:"enabled"`
	OutputDir string `yaml:"output_dir"`
	BitDepth  int    `yaml:"bit_depth"` // 16 or 24.
}

// TransportConfig selects where results are delivered.
type TransportConfig struct {
	WebSocketEnabled bool          `yaml:"websocket_enabled"`
	WebSocketAddr    string        `yaml:"websocket_addr"`
	UDPEnabled       bool          `yaml:"udp_enabled"`
	UDPTargetAddress string        `yaml:"udp_target_address"`
	UDPSendInterval  time.Duration `yaml:"udp_send_interval"`
	UDPQueueDepth    int           `yaml:"udp_queue_depth"`
}

// MetricsConfig enables the Prometheus endpoint. It is served by the
// websocket transport's HTTP server.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Default returns the built-in configuration.
func Default() *Config {
	detection := pitch.DefaultDetectionConfig()
	return &Config{
		LogLevel: DefaultLogLevel,
		Audio: AudioConfig{
			InputDevice:     DefaultDeviceID,
			SampleRate:      DefaultSampleRate,
			FramesPerBuffer: DefaultFramesPerBuffer,
			InputChannels:   DefaultInputChannels,
		},
		Pitch: PitchConfig{
			BufferSize:       pitch.DefaultBufferSize,
			Threshold:        detection.Threshold,
			MinFrequency:     detection.MinFrequency,
			MaxFrequency:     detection.MaxFrequency,
			SilenceThreshold: detection.SilenceThreshold,
		},
		Voice: VoiceConfig{
			Enabled:     true,
			ChunkSize:   analysis.DefaultChunkSize,
			Gate:        analysis.DefaultVoiceGate,
			PreEmphasis: analysis.DefaultPreEmphasis,
			QueueDepth:  DefaultVoiceQueueDepth,
		},
		Recording: RecordingConfig{
			OutputDir: DefaultRecordingDir,
			BitDepth:  DefaultRecordingBits,
		},
		Transport: TransportConfig{
			WebSocketEnabled: true,
			WebSocketAddr:    DefaultWebSocketAddr,
			UDPTargetAddress: DefaultUDPTargetAddress,
			UDPSendInterval:  DefaultUDPSendInterval,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Detection returns the detector configuration for the capture sample rate.
func (c *Config) Detection() pitch.DetectionConfig {
	return pitch.DetectionConfig{
		SampleRate:       c.Audio.SampleRate,
		Threshold:        c.Pitch.Threshold,
		MinFrequency:     c.Pitch.MinFrequency,
		MaxFrequency:     c.Pitch.MaxFrequency,
		SilenceThreshold: c.Pitch.SilenceThreshold,
	}
}

// VoiceAnalysis returns the voice-quality analyzer configuration.
func (c *Config) VoiceAnalysis() analysis.VoiceConfig {
	vc := analysis.DefaultVoiceConfig(c.Audio.SampleRate)
	vc.ChunkSize = c.Voice.ChunkSize
	vc.Gate = c.Voice.Gate
	vc.PreEmphasis = c.Voice.PreEmphasis
	vc.IncludeEnvelope = c.Voice.IncludeEnvelope
	return vc
}
