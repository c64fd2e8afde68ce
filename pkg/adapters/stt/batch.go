package stt

import (
	"context"
	"strings"
	"time"
)

// Finalizer is implemented by streaming services that can be asked to close
// the current turn without waiting for silence.
type Finalizer interface {
	Finalize() error
}

// BatchOptions tune Transcribe.
type BatchOptions struct {
	// FrameBytes is the size of each audio write. Defaults to 100ms of 16kHz PCM16.
	FrameBytes int
	// Settle is how long to wait for another event once all audio is sent.
	Settle time.Duration
}

func (o BatchOptions) withDefaults() BatchOptions {
	if o.FrameBytes <= 0 {
		o.FrameBytes = 3200
	}
	if o.Settle <= 0 {
		o.Settle = 2 * time.Second
	}
	return o
}

// Transcribe runs a whole recording through a streaming connection and
// returns the finished turns joined by a space. The connection is always
// closed. An empty string means nothing was heard.
func Transcribe(ctx context.Context, s StreamingSTT, audio []byte, opts BatchOptions) (string, error) {
	opts = opts.withDefaults()
	if err := s.Start(ctx); err != nil {
		return "", err
	}
	defer s.Close()

	for off := 0; off < len(audio); off += opts.FrameBytes {
		end := min(off+opts.FrameBytes, len(audio))
		if err := s.SendAudio(audio[off:end]); err != nil {
			return "", err
		}
	}
	if f, ok := s.(Finalizer); ok {
		if err := f.Finalize(); err != nil {
			return "", err
		}
	}

	var turns []string
	settle := time.NewTimer(opts.Settle)
	defer settle.Stop()
	results := s.Results()
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-settle.C:
			return strings.Join(turns, " "), nil
		case ev, ok := <-results:
			if !ok {
				if err := s.Err(); err != nil {
					return "", err
				}
				return strings.Join(turns, " "), nil
			}
			if ev.Type == EventTermination {
				return strings.Join(turns, " "), nil
			}
			if ev.Final() {
				if t := strings.TrimSpace(ev.Transcript); t != "" {
					turns = append(turns, t)
				}
			}
			settle.Reset(opts.Settle)
		}
	}
}
