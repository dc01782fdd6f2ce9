// SPDX-License-Identifier: MIT
package transport

import (
	"errors"

	applog "pitchd/internal/log"
	"pitchd/internal/pitch"
)

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("transport closed")

// Transport delivers analysis results (pitch events, voice-quality
// messages) to consumers.
//
// Thread Safety:
// - Send may be called from the audio thread and must never block
// - Implementations are safe for concurrent use
type Transport interface {
	Send(data any) error
	Close() error
}

// DropCounter is implemented by transports that discard messages when their
// consumers fall behind.
type DropCounter interface {
	Dropped() uint64
}

// EventSink forwards pitch events from an accumulator to a transport.
type EventSink struct {
	Transport Transport
}

// Compile-time checks for interface implementations.
var _ pitch.Sink = EventSink{}

// Emit sends ev. Delivery errors are logged at debug level only, since a
// missing consumer is not a detector failure.
// Performance Critical (Hot Path):
// - One allocation per window: ev is boxed into the Send argument and the
//   copy is owned by the transports, which may encode it after Emit returns
// - No locks
func (s EventSink) Emit(ev pitch.Event) {
	if err := s.Transport.Send(ev); err != nil {
		applog.Debugf("EventSink: dropped event at %.3fs: %v", ev.Timestamp, err)
	}
}

type multi []Transport

// Multi fans every message out to all of ts. Send and Close visit every
// transport and join their errors.
func Multi(ts ...Transport) Transport {
	return multi(ts)
}

func (m multi) Send(data any) error {
	var errs []error
	for _, t := range m {
		if err := t.Send(data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m multi) Close() error {
	var errs []error
	for _, t := range m {
		if err := t.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Dropped sums the drop counts of the wrapped transports.
func (m multi) Dropped() uint64 {
	var n uint64
	for _, t := range m {
		if dc, ok := t.(DropCounter); ok {
			n += dc.Dropped()
		}
	}
	return n
}
