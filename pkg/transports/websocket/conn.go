package websocket

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/harunnryd/voxrelay/pkg/events"
)

// ErrClosed is returned when emitting on a closed caller connection.
var ErrClosed = errors.New("websocket: caller connection closed")

// conn is one browser connection. Inbound binary frames are audio; outbound
// events are JSON text frames written by a single writer goroutine.
type conn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration
	log          *slog.Logger

	sendCh  chan []byte
	audioCh chan []byte

	closing    chan struct{}
	readDone   chan struct{}
	writerDone chan struct{}
	closeOnce  sync.Once
}

func newConn(ws *websocket.Conn, sendBuffer int, writeTimeout time.Duration, log *slog.Logger) *conn {
	c := &conn{
		ws:           ws,
		writeTimeout: writeTimeout,
		log:          log,
		sendCh:       make(chan []byte, sendBuffer),
		audioCh:      make(chan []byte, 16),
		closing:      make(chan struct{}),
		readDone:     make(chan struct{}),
		writerDone:   make(chan struct{}),
	}
	go c.readLoop()
	go c.writeLoop()
	return c
}

// Emit queues ev for the writer. It blocks while the queue is full.
func (c *conn) Emit(ev events.Event) error {
	b, err := events.Encode(ev)
	if err != nil {
		return err
	}
	select {
	case <-c.closing:
		return ErrClosed
	case <-c.writerDone:
		return ErrClosed
	default:
	}
	select {
	case c.sendCh <- b:
		return nil
	case <-c.closing:
		return ErrClosed
	case <-c.writerDone:
		return ErrClosed
	}
}

// ReadAudio returns the next binary frame from the caller, or io.EOF once the
// caller has disconnected.
func (c *conn) ReadAudio(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case data := <-c.audioCh:
		return data, nil
	case <-c.readDone:
		return nil, io.EOF
	case <-c.closing:
		return nil, io.EOF
	}
}

// Close flushes queued events, sends a close frame and releases the socket.
func (c *conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closing)
		select {
		case <-c.writerDone:
		case <-time.After(c.writeTimeout + time.Second):
		}
		_ = c.ws.Close()
	})
	return nil
}

func (c *conn) readLoop() {
	defer close(c.readDone)
	for {
		typ, data, err := c.ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				c.log.Debug("caller_read_ended", slog.String("error", err.Error()))
			}
			return
		}
		if typ != websocket.BinaryMessage {
			continue
		}
		select {
		case c.audioCh <- data:
		case <-c.closing:
			return
		}
	}
}

func (c *conn) writeLoop() {
	defer close(c.writerDone)
	for {
		select {
		case msg := <-c.sendCh:
			if err := c.write(websocket.TextMessage, msg); err != nil {
				c.log.Debug("caller_write_failed", slog.String("error", err.Error()))
				return
			}
		case <-c.closing:
			c.flush()
			_ = c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (c *conn) flush() {
	for {
		select {
		case msg := <-c.sendCh:
			if err := c.write(websocket.TextMessage, msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *conn) write(messageType int, data []byte) error {
	if c.writeTimeout > 0 {
		_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return c.ws.WriteMessage(messageType, data)
}
