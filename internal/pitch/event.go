// SPDX-License-Identifier: MIT
package pitch

import (
	"encoding/json"
	"time"
)

// Event is emitted once for every completed analysis window.
type Event struct {
	Estimate
	Timestamp  float64       // Audio clock at window completion, in seconds.
	Latency    time.Duration // Time spent estimating this window.
	AvgLatency time.Duration // Running mean over all windows of the accumulator.
}

// eventJSON is the wire form consumed by the visualizer clients.
type eventJSON struct {
	Type       string   `json:"type"`
	Pitch      *float64 `json:"pitch"`
	Confidence float64  `json:"confidence"`
	Timestamp  float64  `json:"timestamp"`
	Latency    float64  `json:"latency"`    // ms
	AvgLatency float64  `json:"avgLatency"` // ms
}

// MarshalJSON encodes an unvoiced window with a null pitch.
func (e Event) MarshalJSON() ([]byte, error) {
	out := eventJSON{
		Type:       "pitch",
		Confidence: e.Confidence,
		Timestamp:  e.Timestamp,
		Latency:    durationMs(e.Latency),
		AvgLatency: durationMs(e.AvgLatency),
	}
	if e.Voiced {
		f := e.Frequency
		out.Pitch = &f
	}
	return json.Marshal(out)
}

func durationMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// Sink receives events from an Accumulator. Emit is called on the audio
// thread and must not block.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Event)

// Emit calls f(ev).
func (f SinkFunc) Emit(ev Event) {
	f(ev)
}
