// Package pipeline owns the lifecycle of one caller session: credential
// validation, the streaming relays, per-turn routing and teardown.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/harunnryd/voxrelay/pkg/adapters/stt"
	"github.com/harunnryd/voxrelay/pkg/adapters/tts"
	"github.com/harunnryd/voxrelay/pkg/errorsx"
	"github.com/harunnryd/voxrelay/pkg/events"
	"github.com/harunnryd/voxrelay/pkg/llm"
	"github.com/harunnryd/voxrelay/pkg/metrics"
	"github.com/harunnryd/voxrelay/pkg/relay"
	"github.com/harunnryd/voxrelay/pkg/reply"
	"github.com/harunnryd/voxrelay/pkg/skills"
)

// Caller is the browser side of a session.
type Caller interface {
	events.Emitter
	relay.AudioSource
	Close() error
}

// Providers builds the upstream clients of one session from its resolved
// credentials.
type Providers interface {
	NewSTT(sessionID string, creds Credentials) (stt.StreamingSTT, error)
	NewTTS(sessionID string, creds Credentials) (tts.Synthesizer, error)
	NewLLM(sessionID string, creds Credentials) (llm.Backend, error)
	// NewLookup may return nil when no lookup is configured.
	NewLookup(sessionID string, creds Credentials) (skills.MovieLookup, error)
}

type Config struct {
	Defaults  Credentials
	Providers Providers
	Persona   string
	History   *HistoryTable
	Registry  *SessionRegistry
	Logger    *slog.Logger
	Observer  metrics.Observer
	// OnState, when set, observes every session state change.
	OnState StateListener
}

// Pipeline runs caller sessions.
type Pipeline struct {
	cfg Config
}

func New(cfg Config) *Pipeline {
	if cfg.History == nil {
		cfg.History = NewHistoryTable()
	}
	if cfg.Registry == nil {
		cfg.Registry = NewSessionRegistry()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Observer == nil {
		cfg.Observer = metrics.NoopObserver{}
	}
	return &Pipeline{cfg: cfg}
}

func (p *Pipeline) Registry() *SessionRegistry { return p.cfg.Registry }

func (p *Pipeline) History() *HistoryTable { return p.cfg.History }

// NewSessionID returns a fresh "ws_<uuid>" id.
func NewSessionID() string { return "ws_" + uuid.NewString() }

// ErrDraining is returned when a session is offered while shutting down.
var ErrDraining = errors.New("pipeline: draining")

// Serve runs one session on caller until the caller leaves, the upstream
// transcription ends or ctx is cancelled. The caller is always closed and the
// session's chat history always released before Serve returns.
func (p *Pipeline) Serve(ctx context.Context, caller Caller, supplied Credentials) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	id := NewSessionID()
	sess := &Session{ID: id, Cancel: cancel, Created: time.Now(), state: newStateMachine(id)}
	if p.cfg.OnState != nil {
		sess.state.AddListener(p.cfg.OnState)
	}
	log := p.cfg.Logger.With(slog.String("session_id", id))
	tags := map[string]string{metrics.TagSessionID: id}

	if p.cfg.Registry.Draining() {
		_ = caller.Close()
		return ErrDraining
	}
	p.cfg.Registry.Add(sess)
	metrics.Record(p.cfg.Observer, metrics.EventSessionStart, 1, tags)
	log.Info("session_accepted")

	var audioBytes int64
	outcome := "ok"
	defer func() {
		p.terminate(sess, caller, log)
		p.cfg.Observer.RecordEvent(metrics.MetricsEvent{
			Name:   metrics.EventSessionEnd,
			Time:   time.Now(),
			Value:  time.Since(sess.Created).Seconds(),
			Tags:   map[string]string{metrics.TagSessionID: id, metrics.TagOutcome: outcome},
			Fields: map[string]any{"audio_bytes_in": audioBytes},
		})
	}()

	_ = sess.state.Transition(StateValidatingCredentials, "connected")
	creds := supplied.Resolve(p.cfg.Defaults)
	if err := creds.Validate(); err != nil {
		outcome = "credential_missing"
		service, _ := MissingService(err)
		log.Warn("credential_missing", slog.String("service", service))
		metrics.Record(p.cfg.Observer, metrics.EventCredentialMiss, 1, map[string]string{metrics.TagSessionID: id, metrics.TagProvider: service})
		if emitErr := caller.Emit(events.APIKeyError(err.Error())); emitErr != nil {
			log.Debug("api_key_error_not_delivered", slog.String("error", emitErr.Error()))
		}
		return err
	}

	s, err := p.build(id, creds, caller, log)
	if err != nil {
		outcome = "error"
		log.Error("session_setup_failed", slog.String("error", err.Error()))
		return err
	}
	_ = sess.state.Transition(StateStreaming, "credentials valid")

	err = s.transcription.Run(ctx)
	audioBytes = s.transcription.AudioBytes()
	if err != nil && ctx.Err() == nil {
		outcome = "error"
		log.Error("session_failed", slog.String("reason", string(errorsx.Reason(err))), slog.String("error", err.Error()))
		return err
	}
	return nil
}

func (p *Pipeline) terminate(sess *Session, caller Caller, log *slog.Logger) {
	_ = sess.state.Transition(StateTerminating, "session ending")
	p.cfg.History.Remove(sess.ID)
	if err := caller.Close(); err != nil {
		log.Debug("caller_close_failed", slog.String("error", err.Error()))
	}
	p.cfg.Registry.Remove(sess.ID)
	_ = sess.state.Transition(StateClosed, "released")
	log.Info("session_closed", slog.Duration("duration", time.Since(sess.Created)))
}

// session is the per-connection wiring built once credentials are valid.
type session struct {
	id            string
	caller        Caller
	router        *skills.Router
	chat          *reply.Adapter
	synthesis     *relay.Synthesis
	transcription *relay.Transcription
	obs           metrics.Observer
	log           *slog.Logger
}

func (p *Pipeline) build(id string, creds Credentials, caller Caller, log *slog.Logger) (*session, error) {
	if p.cfg.Providers == nil {
		return nil, errors.New("pipeline: no providers configured")
	}
	transcriber, err := p.cfg.Providers.NewSTT(id, creds)
	if err != nil {
		return nil, fmt.Errorf("transcription provider: %w", err)
	}
	synthesizer, err := p.cfg.Providers.NewTTS(id, creds)
	if err != nil {
		return nil, fmt.Errorf("synthesis provider: %w", err)
	}
	backend, err := p.cfg.Providers.NewLLM(id, creds)
	if err != nil {
		return nil, fmt.Errorf("language model provider: %w", err)
	}
	lookup, err := p.cfg.Providers.NewLookup(id, creds)
	if err != nil {
		log.Warn("movie_lookup_unavailable", slog.String("error", err.Error()))
		lookup = nil
	}

	s := &session{id: id, caller: caller, obs: p.cfg.Observer, log: log}
	s.router = skills.NewRouter(skills.NewDialogueSkill(lookup, oneShot(backend), skills.WithDialogueLogger(log)), log)
	s.chat = reply.New(reply.Config{
		SessionID: id,
		Backend:   backend,
		Persona:   p.cfg.Persona,
		History:   p.cfg.History,
		Logger:    log,
		Observer:  p.cfg.Observer,
	})
	s.synthesis = relay.NewSynthesis(relay.SynthesisConfig{
		SessionID: id,
		TTS:       synthesizer,
		Emit:      caller,
		Logger:    log,
		Observer:  p.cfg.Observer,
	})
	s.transcription = relay.NewTranscription(relay.TranscriptionConfig{
		SessionID: id,
		STT:       transcriber,
		Source:    caller,
		Emit:      caller,
		Handle:    s.handleTurn,
		Logger:    log,
		Observer:  p.cfg.Observer,
	})
	return s, nil
}

// handleTurn routes one transcript, streams the reply text and speaks it.
func (s *session) handleTurn(ctx context.Context, transcript string) error {
	start := time.Now()
	out, err := s.router.Dispatch(ctx, transcript, s.caller)
	if err != nil {
		return err
	}
	route := out.Route.String()
	tags := map[string]string{metrics.TagSessionID: s.id, metrics.TagRoute: route}
	metrics.Record(s.obs, metrics.EventTurnRouted, 1, tags)

	var text string
	if out.Handled {
		metrics.Record(s.obs, metrics.EventReplyFirstChunk, 0, tags)
		if err := reply.SkillReply(out.Reply, s.caller); err != nil {
			return err
		}
		metrics.Record(s.obs, metrics.EventReplyComplete, float64(len(out.Reply)), tags)
		text = out.Reply
	} else {
		text, err = s.chat.Chat(ctx, transcript, s.caller)
		if err != nil {
			return err
		}
	}
	if text != "" {
		if err := s.synthesis.Speak(ctx, text); err != nil {
			return err
		}
	}
	metrics.Record(s.obs, metrics.EventTurnDone, time.Since(start).Seconds(), tags)
	s.log.Debug("turn_done", slog.String("route", route), slog.Duration("elapsed", time.Since(start)))
	return nil
}

// oneShot wraps backend for single prompts that are safe to retry.
func oneShot(backend llm.Backend) llm.Generator {
	return llm.NewRetryGenerator(backend, llm.RetryConfig{MaxAttempts: 2, BaseDelay: 200 * time.Millisecond, Jitter: 0.2})
}
