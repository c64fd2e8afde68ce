package mock

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/harunnryd/voxrelay/pkg/events"
)

// ErrClosed is returned by Emit after Close.
var ErrClosed = errors.New("mock caller: closed")

// Caller is an in-memory caller connection for tests and local runs. It
// implements the pipeline's Caller without any network dependency.
type Caller struct {
	*events.Recorder

	audio   chan []byte
	hangup  chan struct{}
	closed  chan struct{}
	hangups sync.Once
	closes  sync.Once
	isDown  atomic.Bool
}

func NewCaller() *Caller {
	return &Caller{
		Recorder: events.NewRecorder(),
		audio:    make(chan []byte, 256),
		hangup:   make(chan struct{}),
		closed:   make(chan struct{}),
	}
}

func (c *Caller) Emit(ev events.Event) error {
	if c.isDown.Load() {
		return ErrClosed
	}
	return c.Recorder.Emit(ev)
}

func (c *Caller) ReadAudio(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case data := <-c.audio:
		return data, nil
	case <-c.hangup:
		return nil, io.EOF
	case <-c.closed:
		return nil, io.EOF
	}
}

func (c *Caller) Close() error {
	c.closes.Do(func() {
		c.isDown.Store(true)
		close(c.closed)
	})
	return nil
}

// Push injects one inbound audio frame.
func (c *Caller) Push(data []byte) {
	if c.isDown.Load() {
		return
	}
	select {
	case c.audio <- data:
	default:
	}
}

// Hangup simulates the browser disconnecting.
func (c *Caller) Hangup() {
	c.hangups.Do(func() { close(c.hangup) })
}

// Closed reports whether the session closed the connection.
func (c *Caller) Closed() bool { return c.isDown.Load() }

// Done is closed once the session closes the connection.
func (c *Caller) Done() <-chan struct{} { return c.closed }
