// SPDX-License-Identifier: MIT
package audio

import (
	"testing"

	"pitchd/pkg/utils"
)

func TestGateDefaults(t *testing.T) {
	e := newTestEngine(t, testConfig(1), nil, nil)
	if e.GateEnabled() || e.GetGateThreshold() != DefaultGateThreshold {
		t.Errorf("gate = %v at %f, want disabled at %f", e.GateEnabled(), e.GetGateThreshold(), DefaultGateThreshold)
	}

	cfg := testConfig(1)
	cfg.Pitch.SilenceThreshold = 0.02
	e = newTestEngine(t, cfg, nil, nil)
	if !e.GateEnabled() || e.GetGateThreshold() != 0.02 {
		t.Errorf("gate = %v at %f, want enabled at 0.02", e.GateEnabled(), e.GetGateThreshold())
	}
}

func TestSetGateThreshold(t *testing.T) {
	tests := []struct {
		desc string
		in   float64
		want float64
	}{
		{"In range", 0.3, 0.3},
		{"Negative clamps to open", -1, 0},
		{"Above one clamps to closed", 2, 1},
		{"Zero", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			e := newTestEngine(t, testConfig(1), nil, nil)
			if err := e.SetGateThreshold(tt.in); err != nil {
				t.Fatalf("SetGateThreshold: %v", err)
			}
			if got := e.GetGateThreshold(); got != tt.want {
				t.Errorf("GetGateThreshold() = %f, want %f", got, tt.want)
			}
			// Disabled gate leaves the detector ungated.
			if e.Detection().SilenceThreshold != 0 {
				t.Errorf("SilenceThreshold = %f with the gate off", e.Detection().SilenceThreshold)
			}
		})
	}
}

func TestEnableDisableGate(t *testing.T) {
	e := newTestEngine(t, testConfig(1), nil, nil)
	e.SetGateThreshold(0.05)

	if err := e.EnableGate(); err != nil {
		t.Fatalf("EnableGate: %v", err)
	}
	if !e.GateEnabled() || e.Detection().SilenceThreshold != 0.05 {
		t.Errorf("enabled gate: SilenceThreshold = %f", e.Detection().SilenceThreshold)
	}
	e.processInputStream(make([]float32, testFrameSize))
	if got := e.accumulator.Config().SilenceThreshold; got != 0.05 {
		t.Errorf("accumulator SilenceThreshold = %f, want 0.05", got)
	}

	e.SetGateThreshold(0.1)
	if e.Detection().SilenceThreshold != 0.1 {
		t.Errorf("threshold change not forwarded while enabled: %f", e.Detection().SilenceThreshold)
	}

	if err := e.DisableGate(); err != nil {
		t.Fatalf("DisableGate: %v", err)
	}
	if e.GateEnabled() || e.Detection().SilenceThreshold != 0 {
		t.Errorf("disabled gate: SilenceThreshold = %f", e.Detection().SilenceThreshold)
	}
	if e.GetGateThreshold() != 0.1 {
		t.Errorf("threshold forgotten after DisableGate: %f", e.GetGateThreshold())
	}
}

func TestGateSilencesQuietWindows(t *testing.T) {
	tests := []struct {
		desc      string
		threshold float64
		enable    bool
		voiced    bool
	}{
		// A 0.5 amplitude sine has an RMS of about 0.354.
		{"Gate off", 0.5, false, true},
		{"Below threshold", 0.5, true, false},
		{"Above threshold", 0.1, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			sink := &eventRecorder{}
			e := newTestEngine(t, testConfig(1), sink, nil)
			e.SetGateThreshold(tt.threshold)
			if tt.enable {
				e.EnableGate()
			}

			feed(e, utils.GenerateSineWave(8*testFrameSize, testSampleRate, 220))
			if len(sink.events) != 1 {
				t.Fatalf("got %d events, want 1", len(sink.events))
			}
			if sink.events[0].Voiced != tt.voiced {
				t.Errorf("voiced = %v, want %v", sink.events[0].Voiced, tt.voiced)
			}
		})
	}
}
