package relay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/harunnryd/voxrelay/pkg/adapters/tts"
	"github.com/harunnryd/voxrelay/pkg/errorsx"
	"github.com/harunnryd/voxrelay/pkg/events"
	"github.com/harunnryd/voxrelay/pkg/metrics"
)

type SynthesisConfig struct {
	SessionID string
	TTS       tts.Synthesizer
	Emit      events.Emitter
	Logger    *slog.Logger
	Observer  metrics.Observer
}

// Synthesis speaks complete replies back to the caller.
type Synthesis struct {
	cfg SynthesisConfig
}

func NewSynthesis(cfg SynthesisConfig) *Synthesis {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Observer == nil {
		cfg.Observer = metrics.NoopObserver{}
	}
	return &Synthesis{cfg: cfg}
}

// ContextID names the synthesis context of a session.
func ContextID(sessionID string) string { return "context_" + sessionID }

// Speak synthesizes text and relays every audio chunk in order, then the
// chunk count. Synthesis failures are reported to the caller as
// MurfStreamError; the returned error is only set when the caller can no
// longer be reached or ctx ended.
func (s *Synthesis) Speak(ctx context.Context, text string) error {
	start := time.Now()
	tags := map[string]string{metrics.TagSessionID: s.cfg.SessionID, metrics.TagProvider: s.cfg.TTS.Name()}
	var emitErr error
	first := true
	req := tts.Request{Text: text, ContextID: ContextID(s.cfg.SessionID)}
	total, err := s.cfg.TTS.Synthesize(ctx, req, func(audio string) error {
		if first {
			first = false
			metrics.Record(s.cfg.Observer, metrics.EventTTSFirstAudio, float64(time.Since(start).Milliseconds()), tags)
		}
		if err := s.cfg.Emit.Emit(events.MurfAudioChunk(audio)); err != nil {
			emitErr = errorsx.Wrap(fmt.Errorf("emit audio chunk: %w", err), errorsx.ReasonTransportSend)
			return emitErr
		}
		metrics.Record(s.cfg.Observer, metrics.EventTTSChunk, 1, tags)
		return nil
	})
	if emitErr != nil {
		return emitErr
	}
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		reason := errorsx.Reason(err)
		s.cfg.Logger.Error("synthesis_failed",
			slog.String("session_id", s.cfg.SessionID),
			slog.String("reason", string(reason)),
			slog.Int("chunks", total),
			slog.String("error", err.Error()),
		)
		metrics.Record(s.cfg.Observer, metrics.EventUpstreamError, 1, map[string]string{
			metrics.TagSessionID: s.cfg.SessionID,
			metrics.TagProvider:  s.cfg.TTS.Name(),
			metrics.TagReason:    string(reason),
		})
		if err := s.cfg.Emit.Emit(events.MurfStreamError(err)); err != nil {
			return errorsx.Wrap(fmt.Errorf("emit synthesis error: %w", err), errorsx.ReasonTransportSend)
		}
		return nil
	}
	if err := s.cfg.Emit.Emit(events.MurfStreamComplete(total)); err != nil {
		return errorsx.Wrap(fmt.Errorf("emit synthesis complete: %w", err), errorsx.ReasonTransportSend)
	}
	metrics.Record(s.cfg.Observer, metrics.EventTTSComplete, float64(total), tags)
	s.cfg.Logger.Info("synthesis_complete",
		slog.String("session_id", s.cfg.SessionID),
		slog.Int("chunks", total),
		slog.Duration("elapsed", time.Since(start)),
	)
	return nil
}
