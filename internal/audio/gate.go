// SPDX-License-Identifier: MIT
package audio

// DefaultGateThreshold is the window RMS used when the gate is enabled
// without an explicit threshold, about -40 dBFS.
const DefaultGateThreshold = 0.01

// The energy gate is the detector's silence threshold: windows whose RMS is
// below it are reported unvoiced without running YIN.

// EnableGate turns the energy gate on at the current threshold.
func (e *Engine) EnableGate() error {
	e.controlMu.Lock()
	defer e.controlMu.Unlock()
	return e.setGateLocked(true, e.gateThreshold)
}

// DisableGate turns the energy gate off. The threshold is remembered.
func (e *Engine) DisableGate() error {
	e.controlMu.Lock()
	defer e.controlMu.Unlock()
	return e.setGateLocked(false, e.gateThreshold)
}

// SetGateThreshold adjusts the noise gate threshold as a window RMS.
// The value is clamped to 0.0-1.0 where 0=always open, 1=always closed.
// It takes effect immediately if the gate is enabled.
func (e *Engine) SetGateThreshold(threshold float64) error {
	threshold = max(0, min(threshold, 1))

	e.controlMu.Lock()
	defer e.controlMu.Unlock()
	return e.setGateLocked(e.gateEnabled, threshold)
}

// GetGateThreshold returns the current noise gate threshold.
func (e *Engine) GetGateThreshold() float64 {
	e.controlMu.Lock()
	defer e.controlMu.Unlock()
	return e.gateThreshold
}

// GateEnabled reports whether the energy gate is on.
func (e *Engine) GateEnabled() bool {
	e.controlMu.Lock()
	defer e.controlMu.Unlock()
	return e.gateEnabled
}

func (e *Engine) setGateLocked(enabled bool, threshold float64) error {
	cfg := e.detection
	cfg.SilenceThreshold = 0
	if enabled {
		cfg.SilenceThreshold = threshold
	}
	if err := e.configureLocked(cfg); err != nil {
		return err
	}
	e.gateEnabled = enabled
	e.gateThreshold = threshold
	return nil
}
