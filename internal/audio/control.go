// SPDX-License-Identifier: MIT
package audio

import (
	"encoding/json"
	"fmt"

	applog "pitchd/internal/log"
)

// ControlMessage is a partial detector update sent by a client. Absent
// fields keep their current value. Gate sets the energy gate threshold and
// turns the gate on, or off when it is 0.
type ControlMessage struct {
	SampleRate   *float64 `json:"sampleRate,omitempty"`
	Threshold    *float64 `json:"threshold,omitempty"`
	MinFrequency *float64 `json:"minFrequency,omitempty"`
	MaxFrequency *float64 `json:"maxFrequency,omitempty"`
	Gate         *float64 `json:"gate,omitempty"`
}

// HandleControl decodes a ControlMessage and applies it. The whole update is
// validated first; a rejected message changes nothing.
func (e *Engine) HandleControl(payload []byte) error {
	var msg ControlMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("control message: %w", err)
	}

	e.controlMu.Lock()
	defer e.controlMu.Unlock()

	cfg := e.detection
	set := func(dst *float64, v *float64) {
		if v != nil {
			*dst = *v
		}
	}
	set(&cfg.SampleRate, msg.SampleRate)
	set(&cfg.Threshold, msg.Threshold)
	set(&cfg.MinFrequency, msg.MinFrequency)
	set(&cfg.MaxFrequency, msg.MaxFrequency)

	gateEnabled, gateThreshold := e.gateEnabled, e.gateThreshold
	if msg.Gate != nil {
		gate := max(0, min(*msg.Gate, 1))
		gateEnabled = gate > 0
		if gateEnabled {
			gateThreshold = gate
		}
	}
	cfg.SilenceThreshold = 0
	if gateEnabled {
		cfg.SilenceThreshold = gateThreshold
	}

	if err := e.configureLocked(cfg); err != nil {
		return fmt.Errorf("control message: %w", err)
	}
	e.gateEnabled, e.gateThreshold = gateEnabled, gateThreshold

	applog.Infof("AudioEngine: Detection updated (threshold %.2f, %.0f-%.0f Hz, gate %.3f)",
		cfg.Threshold, cfg.MinFrequency, cfg.MaxFrequency, cfg.SilenceThreshold)
	return nil
}
