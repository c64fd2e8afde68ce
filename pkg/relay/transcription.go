// Package relay connects a caller session to the upstream speech services:
// caller audio to transcription, and reply text to synthesized audio.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/harunnryd/voxrelay/pkg/adapters/stt"
	"github.com/harunnryd/voxrelay/pkg/errorsx"
	"github.com/harunnryd/voxrelay/pkg/events"
	"github.com/harunnryd/voxrelay/pkg/metrics"
	"github.com/harunnryd/voxrelay/pkg/redact"
)

// AudioSource yields raw caller audio frames. It returns io.EOF once the caller
// has gone away.
type AudioSource interface {
	ReadAudio(ctx context.Context) ([]byte, error)
}

// TurnHandler processes one finalized transcript. It runs on the event
// handling duty, so the next turn is not read until it returns.
type TurnHandler func(ctx context.Context, transcript string) error

type TranscriptionConfig struct {
	SessionID string
	STT       stt.StreamingSTT
	Source    AudioSource
	Emit      events.Emitter
	Handle    TurnHandler
	Logger    *slog.Logger
	Observer  metrics.Observer
}

// Transcription runs the two duties of a streaming session: forwarding caller
// audio upstream and handling upstream transcription events.
type Transcription struct {
	cfg        TranscriptionConfig
	audioBytes atomic.Int64
	turns      atomic.Int64
}

func NewTranscription(cfg TranscriptionConfig) *Transcription {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Observer == nil {
		cfg.Observer = metrics.NoopObserver{}
	}
	return &Transcription{cfg: cfg}
}

// Run connects upstream and blocks until the caller leaves, the upstream
// session ends or ctx is cancelled. The upstream connection is closed on every
// path. A nil error means an orderly end.
func (t *Transcription) Run(ctx context.Context) error {
	if err := t.cfg.STT.Start(ctx); err != nil {
		return errorsx.Wrap(fmt.Errorf("start transcription: %w", err), errorsx.ReasonSTTConnect)
	}
	defer func() {
		if err := t.cfg.STT.Close(); err != nil {
			t.cfg.Logger.Debug("transcription_close_failed", slog.String("session_id", t.cfg.SessionID), slog.String("error", err.Error()))
		}
	}()
	t.cfg.Logger.Info("transcription_connected", slog.String("session_id", t.cfg.SessionID), slog.String("provider", t.cfg.STT.Name()))

	g, gctx := errgroup.WithContext(ctx)
	gctx, cancel := context.WithCancel(gctx)
	defer cancel()

	g.Go(func() error {
		defer cancel()
		return t.forward(gctx)
	})
	g.Go(func() error {
		defer cancel()
		return t.handle(gctx)
	})
	err := g.Wait()
	t.cfg.Logger.Info("transcription_finished",
		slog.String("session_id", t.cfg.SessionID),
		slog.Int64("turns", t.turns.Load()),
		slog.Int64("audio_bytes", t.audioBytes.Load()),
	)
	return err
}

// AudioBytes returns the number of caller audio bytes forwarded upstream.
func (t *Transcription) AudioBytes() int64 { return t.audioBytes.Load() }

// Turns returns the number of finalized turns handled.
func (t *Transcription) Turns() int64 { return t.turns.Load() }

func (t *Transcription) forward(ctx context.Context) error {
	for {
		data, err := t.cfg.Source.ReadAudio(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read caller audio: %w", err)
		}
		if len(data) == 0 {
			continue
		}
		if err := t.cfg.STT.SendAudio(data); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errorsx.Wrap(err, errorsx.ReasonSTTSend)
		}
		t.audioBytes.Add(int64(len(data)))
	}
}

func (t *Transcription) handle(ctx context.Context) error {
	results := t.cfg.STT.Results()
	for {
		var ev stt.Event
		var ok bool
		select {
		case <-ctx.Done():
			return nil
		case ev, ok = <-results:
		}
		if !ok {
			if err := t.cfg.STT.Err(); err != nil && ctx.Err() == nil {
				return errorsx.Wrap(err, errorsx.ReasonSTTProtocol)
			}
			return nil
		}
		switch ev.Type {
		case stt.EventBegin:
			t.cfg.Logger.Debug("transcription_begin", slog.String("session_id", t.cfg.SessionID))
		case stt.EventTermination:
			t.cfg.Logger.Info("transcription_terminated", slog.String("session_id", t.cfg.SessionID))
			return nil
		case stt.EventTurn:
			if !ev.Final() {
				continue
			}
			if err := t.turn(ctx, ev.Transcript); err != nil {
				return err
			}
		}
	}
}

func (t *Transcription) turn(ctx context.Context, transcript string) error {
	t.turns.Add(1)
	t.cfg.Logger.Info("turn_final", slog.String("session_id", t.cfg.SessionID), slog.String("transcript", redact.Text(transcript)))
	metrics.Record(t.cfg.Observer, metrics.EventTurnFinal, 1, map[string]string{metrics.TagSessionID: t.cfg.SessionID})
	if err := t.cfg.Emit.Emit(events.EndOfTurnTranscript(transcript)); err != nil {
		return errorsx.Wrap(fmt.Errorf("emit transcript: %w", err), errorsx.ReasonTransportSend)
	}
	if t.cfg.Handle == nil || strings.TrimSpace(transcript) == "" {
		return nil
	}
	return t.cfg.Handle(ctx, transcript)
}
