package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/harunnryd/voxrelay/pkg/adapters/stt"
)

type STTConfig struct {
	// Events are delivered in order after Start.
	Events []stt.Event
	// HoldOpen keeps Results open after Events until Close is called.
	HoldOpen bool
	StartErr error
	// Gate, when set, releases one scripted event per receive.
	Gate chan struct{}
}

// StreamingSTT replays scripted transcription events and records audio.
type StreamingSTT struct {
	cfg     STTConfig
	out     chan stt.Event
	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
	started bool
	closed  bool
	audio   [][]byte
	done    chan struct{}
}

func NewSTT(cfg STTConfig) *StreamingSTT {
	return &StreamingSTT{cfg: cfg, out: make(chan stt.Event), done: make(chan struct{})}
}

func (s *StreamingSTT) Name() string { return "mock" }

func (s *StreamingSTT) Start(ctx context.Context) error {
	if s.cfg.StartErr != nil {
		return s.cfg.StartErr
	}
	if ctx == nil {
		ctx = context.Background()
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	go s.run()
	return nil
}

func (s *StreamingSTT) run() {
	defer close(s.out)
	for _, ev := range s.cfg.Events {
		if s.cfg.Gate != nil {
			select {
			case <-s.cfg.Gate:
			case <-s.ctx.Done():
				return
			}
		}
		select {
		case s.out <- ev:
		case <-s.ctx.Done():
			return
		}
		if ev.Type == stt.EventTermination {
			return
		}
	}
	if s.cfg.HoldOpen {
		<-s.ctx.Done()
	}
}

func (s *StreamingSTT) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.cancel != nil {
		s.cancel()
	}
	close(s.done)
	return nil
}

func (s *StreamingSTT) SendAudio(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started || s.closed {
		return errors.New("mock stt: not started")
	}
	s.audio = append(s.audio, append([]byte(nil), data...))
	return nil
}

func (s *StreamingSTT) Results() <-chan stt.Event { return s.out }

func (s *StreamingSTT) Err() error { return nil }

// Audio returns the frames received so far.
func (s *StreamingSTT) Audio() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.audio))
	copy(out, s.audio)
	return out
}

// Closed reports whether Close was called.
func (s *StreamingSTT) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Done is closed when Close is called.
func (s *StreamingSTT) Done() <-chan struct{} { return s.done }

// Turn builds a formatted final turn event.
func Turn(text string) stt.Event {
	return stt.Event{Type: stt.EventTurn, Transcript: text, Formatted: true, EndOfTurn: true}
}

var _ stt.StreamingSTT = (*StreamingSTT)(nil)
