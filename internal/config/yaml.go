// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	applog "pitchd/internal/log"
	"pitchd/pkg/bitint"
)

// DefaultPath is searched when LoadConfig is given no path.
const DefaultPath = "config.yaml"

// LoadConfig builds the configuration from the defaults, the YAML file at
// path (or DefaultPath when path is empty and the file exists), and ENV_*
// overrides, then validates it.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		if _, err := os.Stat(DefaultPath); err == nil {
			path = DefaultPath
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		applog.Debugf("configuration: Loaded %s", path)
	}

	cfg.applyEnvOverrides()
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// normalize fixes values that have one obvious correction.
func (c *Config) normalize() {
	if c.Voice.ChunkSize > 0 && !bitint.IsPowerOfTwo(c.Voice.ChunkSize) {
		rounded := bitint.NextPowerOfTwo(c.Voice.ChunkSize)
		applog.Warnf("configuration: voice.chunk_size %d rounded up to %d", c.Voice.ChunkSize, rounded)
		c.Voice.ChunkSize = rounded
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// Validate checks every section. The detector parameters are checked by
// the pitch package against the configured window size.
func (c *Config) Validate() error {
	var errs []error

	if _, ok := applog.ParseLevel(c.LogLevel); !ok {
		errs = append(errs, fmt.Errorf("log_level %q is not one of debug, info, warn, error", c.LogLevel))
	}

	a := c.Audio
	if a.InputDevice < MinDeviceID {
		errs = append(errs, fmt.Errorf("audio.input_device must be >= %d, got %d", MinDeviceID, a.InputDevice))
	}
	if a.SampleRate < MinSampleRate || a.SampleRate > MaxSampleRate {
		errs = append(errs, fmt.Errorf("audio.sample_rate must be in [%d, %d], got %g", MinSampleRate, MaxSampleRate, a.SampleRate))
	}
	if a.FramesPerBuffer < 1 || a.FramesPerBuffer > MaxBufferFrames {
		errs = append(errs, fmt.Errorf("audio.frames_per_buffer must be in [1, %d], got %d", MaxBufferFrames, a.FramesPerBuffer))
	}
	if a.InputChannels < 1 {
		errs = append(errs, fmt.Errorf("audio.input_channels must be positive, got %d", a.InputChannels))
	}

	if err := c.Detection().Validate(c.Pitch.BufferSize); err != nil {
		errs = append(errs, fmt.Errorf("pitch: %w", err))
	}

	if c.Voice.Enabled {
		if c.Voice.QueueDepth < 1 {
			errs = append(errs, fmt.Errorf("voice.queue_depth must be positive, got %d", c.Voice.QueueDepth))
		}
		if !bitint.IsPowerOfTwo(c.Voice.ChunkSize) {
			errs = append(errs, fmt.Errorf("voice.chunk_size must be a power of two, got %d", c.Voice.ChunkSize))
		}
		if c.Voice.PreEmphasis < 0 || c.Voice.PreEmphasis >= 1 {
			errs = append(errs, fmt.Errorf("voice.pre_emphasis must be in [0, 1), got %g", c.Voice.PreEmphasis))
		}
	}

	if c.Recording.Enabled {
		if c.Recording.BitDepth != 16 && c.Recording.BitDepth != 24 {
			errs = append(errs, fmt.Errorf("recording.bit_depth must be 16 or 24, got %d", c.Recording.BitDepth))
		}
		if c.Recording.OutputDir == "" {
			errs = append(errs, errors.New("recording.output_dir must be set when recording is enabled"))
		}
	}

	t := c.Transport
	if t.UDPEnabled {
		if _, _, err := net.SplitHostPort(t.UDPTargetAddress); err != nil {
			errs = append(errs, fmt.Errorf("transport.udp_target_address %q: %w", t.UDPTargetAddress, err))
		}
		if t.UDPSendInterval <= 0 {
			errs = append(errs, errors.New("transport.udp_send_interval must be positive when UDP is enabled"))
		}
	}
	if t.WebSocketEnabled {
		if _, _, err := net.SplitHostPort(t.WebSocketAddr); err != nil {
			errs = append(errs, fmt.Errorf("transport.websocket_addr %q: %w", t.WebSocketAddr, err))
		}
	}
	if c.Metrics.Enabled && !t.WebSocketEnabled {
		errs = append(errs, errors.New("metrics.enabled requires transport.websocket_enabled"))
	}

	return errors.Join(errs...)
}

// applyEnvOverrides applies ENV_* variables on top of the file values.
// Unparseable values are logged and ignored.
func (c *Config) applyEnvOverrides() {
	envString("ENV_LOG_LEVEL", &c.LogLevel)
	envInt("ENV_INPUT_DEVICE", &c.Audio.InputDevice)
	envFloat("ENV_SAMPLE_RATE", &c.Audio.SampleRate)
	envFloat("ENV_PITCH_THRESHOLD", &c.Pitch.Threshold)
	envFloat("ENV_PITCH_SILENCE_THRESHOLD", &c.Pitch.SilenceThreshold)
	envBool("ENV_VOICE_ENABLED", &c.Voice.Enabled)
	envBool("ENV_WEBSOCKET_ENABLED", &c.Transport.WebSocketEnabled)
	envString("ENV_WEBSOCKET_ADDR", &c.Transport.WebSocketAddr)
	envBool("ENV_UDP_ENABLED", &c.Transport.UDPEnabled)
	envString("ENV_UDP_TARGET_ADDRESS", &c.Transport.UDPTargetAddress)
	envDuration("ENV_UDP_SEND_INTERVAL", &c.Transport.UDPSendInterval)
	envBool("ENV_METRICS_ENABLED", &c.Metrics.Enabled)
}

func envString(key string, dst *string) {
	if val, ok := os.LookupEnv(key); ok {
		*dst = val
		applog.Infof("configuration: Overriding from %s: %s", key, val)
	}
}

// envParse applies parse to the variable if it is set.
func envParse[T any](key string, dst *T, parse func(string) (T, error)) {
	val, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	parsed, err := parse(val)
	if err != nil {
		applog.Warnf("configuration: Ignoring %s=%q: %v", key, val, err)
		return
	}
	*dst = parsed
	applog.Infof("configuration: Overriding from %s: %v", key, parsed)
}

func envBool(key string, dst *bool) {
	envParse(key, dst, strconv.ParseBool)
}

func envInt(key string, dst *int) {
	envParse(key, dst, strconv.Atoi)
}

func envFloat(key string, dst *float64) {
	envParse(key, dst, func(s string) (float64, error) { return strconv.ParseFloat(s, 64) })
}

func envDuration(key string, dst *time.Duration) {
	envParse(key, dst, time.ParseDuration)
}
