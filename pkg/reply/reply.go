// Package reply turns a turn's reply text into the caller-bound LLMStream*
// events, either from a skill result or from a streaming chat session.
package reply

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/harunnryd/voxrelay/pkg/errorsx"
	"github.com/harunnryd/voxrelay/pkg/events"
	"github.com/harunnryd/voxrelay/pkg/llm"
	"github.com/harunnryd/voxrelay/pkg/metrics"
	"github.com/harunnryd/voxrelay/pkg/redact"
	"github.com/harunnryd/voxrelay/pkg/resilience"
)

// HistoryStore holds one chat session per caller session.
type HistoryStore interface {
	Load(sessionID string) (llm.ChatSession, bool)
	Store(sessionID string, chat llm.ChatSession)
}

type Config struct {
	SessionID string
	Backend   llm.Backend
	// Persona is the system instruction given when the chat is created.
	Persona  string
	History  HistoryStore
	Logger   *slog.Logger
	Observer metrics.Observer
}

// Adapter produces reply events for one session.
type Adapter struct {
	cfg Config

	mu   sync.Mutex
	chat llm.ChatSession
}

func New(cfg Config) *Adapter {
	if cfg.Persona == "" {
		cfg.Persona = DefaultPersona
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Observer == nil {
		cfg.Observer = metrics.NoopObserver{}
	}
	return &Adapter{cfg: cfg}
}

// SkillReply emits a skill's text as one chunk followed by the completion.
func SkillReply(text string, emit events.Emitter) error {
	if err := emit.Emit(events.LLMStreamChunk(text)); err != nil {
		return errorsx.Wrap(fmt.Errorf("emit skill chunk: %w", err), errorsx.ReasonTransportSend)
	}
	if err := emit.Emit(events.LLMStreamComplete(text)); err != nil {
		return errorsx.Wrap(fmt.Errorf("emit skill complete: %w", err), errorsx.ReasonTransportSend)
	}
	return nil
}

// Chat sends the transcript to the session's chat and streams the reply. The
// stream always ends with LLMStreamComplete, or LLMStreamError on a model
// failure. A blank reply is returned as "" so nothing is synthesized. The
// returned error is only set when the caller can no longer be reached.
func (a *Adapter) Chat(ctx context.Context, transcript string, emit events.Emitter) (string, error) {
	chat, err := a.session(ctx)
	if err != nil {
		return "", a.fail(err, emit)
	}
	start := time.Now()
	first := true
	var emitErr error
	full, err := llm.Collect(ctx, chat.SendStream(ctx, transcript), func(frag string) error {
		if first {
			first = false
			metrics.Record(a.cfg.Observer, metrics.EventReplyFirstChunk, float64(time.Since(start).Milliseconds()), a.tags())
		}
		if err := emit.Emit(events.LLMStreamChunk(frag)); err != nil {
			emitErr = errorsx.Wrap(fmt.Errorf("emit chunk: %w", err), errorsx.ReasonTransportSend)
			return emitErr
		}
		return nil
	})
	if emitErr != nil {
		return "", emitErr
	}
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", a.fail(errorsx.Wrap(err, errorsx.ReasonLLMStream), emit)
	}
	if err := emit.Emit(events.LLMStreamComplete(full)); err != nil {
		return "", errorsx.Wrap(fmt.Errorf("emit complete: %w", err), errorsx.ReasonTransportSend)
	}
	if strings.TrimSpace(full) == "" {
		a.cfg.Logger.Warn("chat_reply_empty", slog.String("session_id", a.cfg.SessionID))
		return "", nil
	}
	metrics.Record(a.cfg.Observer, metrics.EventReplyComplete, float64(len(full)), a.tags())
	a.cfg.Logger.Info("chat_reply_complete",
		slog.String("session_id", a.cfg.SessionID),
		slog.String("reply", redact.Text(full)),
		slog.Int("chars", len(full)),
	)
	return full, nil
}

// session returns the chat for this caller session, creating it on first use.
func (a *Adapter) session(ctx context.Context) (llm.ChatSession, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.chat != nil {
		return a.chat, nil
	}
	if a.cfg.History != nil {
		if chat, ok := a.cfg.History.Load(a.cfg.SessionID); ok {
			a.chat = chat
			return chat, nil
		}
	}
	if a.cfg.Backend == nil {
		return nil, errors.New("no language model configured")
	}
	chat, err := a.cfg.Backend.NewChat(ctx, a.cfg.Persona)
	if err != nil {
		return nil, errorsx.Wrap(fmt.Errorf("create chat: %w", err), errorsx.ReasonLLMGenerate)
	}
	a.chat = chat
	if a.cfg.History != nil {
		a.cfg.History.Store(a.cfg.SessionID, chat)
	}
	a.cfg.Logger.Debug("chat_created", slog.String("session_id", a.cfg.SessionID), slog.String("provider", a.cfg.Backend.Name()))
	return chat, nil
}

func (a *Adapter) fail(err error, emit events.Emitter) error {
	reason := errorsx.Reason(err)
	if resilience.IsRateLimit(err) {
		reason = errorsx.ReasonLLMRateLimit
	}
	a.cfg.Logger.Error("chat_reply_failed",
		slog.String("session_id", a.cfg.SessionID),
		slog.String("reason", string(reason)),
		slog.String("error", err.Error()),
	)
	tags := a.tags()
	tags[metrics.TagReason] = string(reason)
	metrics.Record(a.cfg.Observer, metrics.EventUpstreamError, 1, tags)
	if emitErr := emit.Emit(events.LLMStreamError(err)); emitErr != nil {
		return errorsx.Wrap(fmt.Errorf("emit stream error: %w", emitErr), errorsx.ReasonTransportSend)
	}
	return nil
}

func (a *Adapter) tags() map[string]string {
	return map[string]string{
		metrics.TagSessionID: a.cfg.SessionID,
		metrics.TagComponent: "llm",
	}
}
