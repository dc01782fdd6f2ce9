// SPDX-License-Identifier: MIT
package udp

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	applog "pitchd/internal/log"
	"pitchd/internal/pitch"
	"pitchd/internal/transport"
)

const (
	// DefaultInterval flushes queued events at roughly 60Hz.
	DefaultInterval = 16 * time.Millisecond
	// DefaultQueueDepth holds well over one interval of 50% overlap windows.
	DefaultQueueDepth = 64
)

// Publisher is a Transport that turns pitch events into binary datagrams.
// Send queues events without blocking; a goroutine started by Start drains
// the queue on every tick and sends one packet per event. Messages other
// than pitch events are ignored.
type Publisher struct {
	sender   *Sender
	interval time.Duration
	queue    chan pitch.Event
	dropped  atomic.Uint64
	closed   atomic.Bool

	ticker   *time.Ticker
	doneChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	mu       sync.Mutex // Guards ticker and doneChan across Start/Stop.

	sequenceNum uint32
	packet      [PacketSize]byte
}

// Compile-time checks for interface implementations.
var (
	_ transport.Transport   = (*Publisher)(nil)
	_ transport.DropCounter = (*Publisher)(nil)
)

// NewPublisher creates a publisher that owns sender. A non-positive interval
// or depth falls back to the defaults.
func NewPublisher(interval time.Duration, depth int, sender *Sender) (*Publisher, error) {
	if sender == nil {
		return nil, errors.New("udp publisher: sender cannot be nil")
	}
	if interval <= 0 {
		applog.Warnf("UDPPublisher: Invalid interval %s, defaulting to %s", interval, DefaultInterval)
		interval = DefaultInterval
	}
	if depth <= 0 {
		depth = DefaultQueueDepth
	}
	applog.Infof("UDPPublisher: Initializing (Interval: %s, Queue: %d)", interval, depth)
	return &Publisher{
		sender:   sender,
		interval: interval,
		queue:    make(chan pitch.Event, depth),
	}, nil
}

// Send queues a pitch.Event (or *pitch.Event) for the next flush.
// Performance Critical (Hot Path):
// - No allocations, no locks
func (p *Publisher) Send(data any) error {
	if p.closed.Load() {
		return transport.ErrClosed
	}
	var ev pitch.Event
	switch v := data.(type) {
	case pitch.Event:
		ev = v
	case *pitch.Event:
		ev = *v
	default:
		return nil
	}
	select {
	case p.queue <- ev:
	default:
		p.dropped.Add(1)
	}
	return nil
}

func (p *Publisher) Dropped() uint64 {
	return p.dropped.Load()
}

// Start launches the flush goroutine. Calling Start while running is a no-op.
func (p *Publisher) Start() {
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		applog.Warnf("UDPPublisher: Start called but already running.")
		return
	}
	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})
	p.stopOnce = sync.Once{}
	ticker, done := p.ticker, p.doneChan
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		applog.Debugf("UDPPublisher: Publisher goroutine started (Interval: %s)", p.interval)
		for {
			select {
			case <-ticker.C:
				p.flush()
			case <-done:
				p.flush()
				return
			}
		}
	}()
}

// Stop sends whatever is still queued and waits for the goroutine to exit.
// Calling Stop when not running is a no-op.
func (p *Publisher) Stop() error {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		return nil
	}
	p.stopOnce.Do(func() {
		close(p.doneChan)
		p.ticker.Stop()
		p.ticker = nil
	})
	p.mu.Unlock()

	p.wg.Wait()
	applog.Debugf("UDPPublisher: Publisher goroutine finished after %d packets.", p.sequenceNum)
	return nil
}

// flush sends one packet per queued event.
func (p *Publisher) flush() {
	for {
		select {
		case ev := <-p.queue:
			p.sequenceNum++
			// Errors are logged by the sender; a lost datagram is not fatal.
			if err := p.sender.Send(EncodePacket(p.packet[:], p.sequenceNum, ev)); err == nil {
				applog.Debugf("UDPPublisher: Sent packet %d", p.sequenceNum)
			}
		default:
			return
		}
	}
}

// Close stops publishing and closes the sender.
func (p *Publisher) Close() error {
	p.closed.Store(true)
	if err := p.Stop(); err != nil {
		return err
	}
	return p.sender.Close()
}
