// SPDX-License-Identifier: MIT
package pitch

import (
	"errors"
	"fmt"
	"math"
)

// Defaults for a voice-range detector running at CD sample rate.
const (
	DefaultBufferSize   = 1024
	DefaultSampleRate   = 44100
	DefaultThreshold    = 0.1
	DefaultMinFrequency = 80
	DefaultMaxFrequency = 500

	// minBufferSize keeps at least one lag on either side of the search range.
	minBufferSize = 4
)

// ErrInvalidConfig is matched by every ConfigurationError via errors.Is.
var ErrInvalidConfig = errors.New("invalid detection config")

// ConfigurationError reports a DetectionConfig field that cannot be used
// with the requested buffer size.
type ConfigurationError struct {
	Field  string
	Value  float64
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("pitch: invalid %s (%g): %s", e.Field, e.Value, e.Reason)
}

// Is lets callers test with errors.Is(err, ErrInvalidConfig).
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrInvalidConfig
}

// DetectionConfig holds the parameters of one estimator instance.
type DetectionConfig struct {
	SampleRate   float64 `yaml:"sample_rate"`
	Threshold    float64 `yaml:"threshold"`     // YIN absolute threshold, (0,1).
	MinFrequency float64 `yaml:"min_frequency"` // Lowest reportable pitch (Hz).
	MaxFrequency float64 `yaml:"max_frequency"` // Highest reportable pitch (Hz).

	// SilenceThreshold is an RMS floor below which YIN is skipped and the
	// window reports no pitch. Zero disables the gate.
	SilenceThreshold float64 `yaml:"silence_threshold"`
}

// DefaultDetectionConfig returns the 44.1kHz, 80-500Hz voice configuration.
func DefaultDetectionConfig() DetectionConfig {
	return DetectionConfig{
		SampleRate:   DefaultSampleRate,
		Threshold:    DefaultThreshold,
		MinFrequency: DefaultMinFrequency,
		MaxFrequency: DefaultMaxFrequency,
	}
}

// MinPeriod is the shortest lag searched, floor(sampleRate / maxFrequency).
func (c DetectionConfig) MinPeriod() int {
	return int(math.Floor(c.SampleRate / c.MaxFrequency))
}

// MaxPeriod is the exclusive upper lag bound, floor(sampleRate / minFrequency).
func (c DetectionConfig) MaxPeriod() int {
	return int(math.Floor(c.SampleRate / c.MinFrequency))
}

// Validate checks c against a window of bufferSize samples. The returned
// error is always a *ConfigurationError.
func (c DetectionConfig) Validate(bufferSize int) error {
	if bufferSize < minBufferSize {
		return &ConfigurationError{"buffer_size", float64(bufferSize), fmt.Sprintf("must be at least %d", minBufferSize)}
	}
	// The negated comparisons also reject NaN.
	if !(c.SampleRate > 0) || math.IsInf(c.SampleRate, 0) {
		return &ConfigurationError{"sample_rate", c.SampleRate, "must be positive and finite"}
	}
	if !(c.Threshold > 0 && c.Threshold < 1) {
		return &ConfigurationError{"threshold", c.Threshold, "must be in (0, 1)"}
	}
	if !(c.MinFrequency > 0) {
		return &ConfigurationError{"min_frequency", c.MinFrequency, "must be positive"}
	}
	if !(c.MaxFrequency > c.MinFrequency) || math.IsInf(c.MaxFrequency, 0) {
		return &ConfigurationError{"max_frequency", c.MaxFrequency, "must be finite and above min_frequency"}
	}
	if !(c.SilenceThreshold >= 0) {
		return &ConfigurationError{"silence_threshold", c.SilenceThreshold, "must not be negative"}
	}

	minPeriod, maxPeriod := c.MinPeriod(), c.MaxPeriod()
	if minPeriod < 1 {
		return &ConfigurationError{"max_frequency", c.MaxFrequency, "exceeds the sample rate"}
	}
	if minPeriod >= maxPeriod {
		return &ConfigurationError{"min_frequency", c.MinFrequency,
			fmt.Sprintf("lag range [%d, %d) is empty", minPeriod, maxPeriod)}
	}
	if maxPeriod >= bufferSize {
		return &ConfigurationError{"min_frequency", c.MinFrequency,
			fmt.Sprintf("period %d does not fit in a %d sample window", maxPeriod, bufferSize)}
	}
	return nil
}
