// SPDX-License-Identifier: MIT
package transport

import (
	"sync"
	"sync/atomic"
)

// ChannelTransport hands messages to an in-process consumer through a
// bounded channel. A full channel drops the message.
type ChannelTransport struct {
	messages chan any
	done     chan struct{}
	closed   atomic.Bool
	dropped  atomic.Uint64
	once     sync.Once
}

// Compile-time checks for interface implementations.
var (
	_ Transport   = (*ChannelTransport)(nil)
	_ DropCounter = (*ChannelTransport)(nil)
)

// NewChannelTransport creates a transport buffering up to depth messages.
func NewChannelTransport(depth int) *ChannelTransport {
	return &ChannelTransport{
		messages: make(chan any, max(depth, 1)),
		done:     make(chan struct{}),
	}
}

// Messages is the receive side. It is never closed; wait on Done instead.
func (c *ChannelTransport) Messages() <-chan any {
	return c.messages
}

// Done is closed by Close.
func (c *ChannelTransport) Done() <-chan struct{} {
	return c.done
}

// Send queues data without blocking.
// Performance Critical (Hot Path):
// - No locks
func (c *ChannelTransport) Send(data any) error {
	if c.closed.Load() {
		return ErrClosed
	}
	select {
	case c.messages <- data:
	default:
		c.dropped.Add(1)
	}
	return nil
}

func (c *ChannelTransport) Dropped() uint64 {
	return c.dropped.Load()
}

func (c *ChannelTransport) Close() error {
	c.once.Do(func() {
		c.closed.Store(true)
		close(c.done)
	})
	return nil
}
