package mock

import (
	"context"
	"sync"

	"github.com/harunnryd/voxrelay/pkg/adapters/tts"
)

type TTSConfig struct {
	// Chunks are delivered for every request. Defaults to two chunks.
	Chunks []string
	// FailAfter returns Err after that many chunks when Err is set.
	FailAfter int
	Err       error
	// Hook runs at the start of every Synthesize call.
	Hook func(req tts.Request)
}

// Synthesizer returns scripted audio and records requests.
type Synthesizer struct {
	cfg      TTSConfig
	mu       sync.Mutex
	requests []tts.Request
}

func NewTTS(cfg TTSConfig) *Synthesizer {
	if cfg.Chunks == nil {
		cfg.Chunks = []string{"AAAA", "BBBB"}
	}
	return &Synthesizer{cfg: cfg}
}

func (s *Synthesizer) Name() string { return "mock" }

func (s *Synthesizer) Synthesize(ctx context.Context, req tts.Request, onChunk tts.ChunkFunc) (int, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()
	if s.cfg.Hook != nil {
		s.cfg.Hook(req)
	}
	n := 0
	for _, c := range s.cfg.Chunks {
		if s.cfg.Err != nil && n >= s.cfg.FailAfter {
			return n, s.cfg.Err
		}
		if err := ctx.Err(); err != nil {
			return n, err
		}
		if err := onChunk(c); err != nil {
			return n, err
		}
		n++
	}
	if s.cfg.Err != nil {
		return n, s.cfg.Err
	}
	return n, nil
}

// Requests returns the synthesis requests seen so far.
func (s *Synthesizer) Requests() []tts.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]tts.Request, len(s.requests))
	copy(out, s.requests)
	return out
}

var _ tts.Synthesizer = (*Synthesizer)(nil)
