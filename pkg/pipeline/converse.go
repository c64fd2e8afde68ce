package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/harunnryd/voxrelay/pkg/adapters/stt"
	"github.com/harunnryd/voxrelay/pkg/adapters/tts"
	"github.com/harunnryd/voxrelay/pkg/errorsx"
	"github.com/harunnryd/voxrelay/pkg/events"
	"github.com/harunnryd/voxrelay/pkg/metrics"
	"github.com/harunnryd/voxrelay/pkg/redact"
	"github.com/harunnryd/voxrelay/pkg/reply"
	"github.com/harunnryd/voxrelay/pkg/skills"
)

const (
	NotHeardReply = "Arre bidu, apun ko kuch sunai nahi diya. Wapas se bolo na, jhakas awaaz mein!"
	FallbackReply = "Arre bidu, apun ko kuch technical problem aa rahi hai. Thoda baad mein try karo na, boss!"
)

// ErrFallback marks a ChatResult that carries the spoken apology instead of
// an answer.
var ErrFallback = errors.New("pipeline: fallback reply")

// ChatResult is the answer to one uploaded recording. AudioChunks holds the
// base64 audio of each synthesized text piece, in order.
type ChatResult struct {
	SessionID   string     `json:"session_id"`
	UserQuery   string     `json:"user_query"`
	LLMResponse string     `json:"llm_response"`
	AudioChunks [][]string `json:"audio_chunks"`
	Message     string     `json:"message"`
}

// Converse answers a complete recording in one request: transcribe, route,
// reply and synthesize. No chat history is kept between calls.
//
// When anything after credential validation fails, Converse tries to speak
// FallbackReply and returns that result with an error wrapping ErrFallback.
func (p *Pipeline) Converse(ctx context.Context, sessionID string, audio []byte, supplied Credentials) (ChatResult, error) {
	if p.cfg.Registry.Draining() {
		return ChatResult{}, ErrDraining
	}
	if p.cfg.Providers == nil {
		return ChatResult{}, errors.New("pipeline: no providers configured")
	}
	log := p.cfg.Logger.With(slog.String("session_id", sessionID))
	creds := supplied.Resolve(p.cfg.Defaults)
	if err := creds.Validate(); err != nil {
		service, _ := MissingService(err)
		log.Warn("credential_missing", slog.String("service", service))
		metrics.Record(p.cfg.Observer, metrics.EventCredentialMiss, 1, map[string]string{metrics.TagSessionID: sessionID, metrics.TagProvider: service})
		return ChatResult{}, err
	}
	synthesizer, err := p.cfg.Providers.NewTTS(sessionID, creds)
	if err != nil {
		return ChatResult{}, fmt.Errorf("synthesis provider: %w", err)
	}

	res, err := p.converse(ctx, sessionID, audio, creds, synthesizer, log)
	if err == nil {
		return res, nil
	}
	log.Error("converse_failed", slog.String("reason", string(errorsx.Reason(err))), slog.String("error", err.Error()))
	if ctx.Err() != nil {
		return ChatResult{}, ctx.Err()
	}
	chunks, speakErr := p.speakAll(ctx, sessionID, synthesizer, FallbackReply)
	if speakErr != nil {
		return ChatResult{}, errors.Join(err, speakErr)
	}
	return ChatResult{
		SessionID:   sessionID,
		UserQuery:   res.UserQuery,
		LLMResponse: FallbackReply,
		AudioChunks: chunks,
		Message:     "A fallback audio response was generated due to an internal error.",
	}, fmt.Errorf("%w: %w", ErrFallback, err)
}

func (p *Pipeline) converse(ctx context.Context, id string, audio []byte, creds Credentials, synthesizer tts.Synthesizer, log *slog.Logger) (ChatResult, error) {
	start := time.Now()
	res := ChatResult{SessionID: id}

	transcriber, err := p.cfg.Providers.NewSTT(id, creds)
	if err != nil {
		return res, fmt.Errorf("transcription provider: %w", err)
	}
	query, err := stt.Transcribe(ctx, transcriber, audio, stt.BatchOptions{})
	if err != nil {
		return res, errorsx.Wrapf(errorsx.ReasonSTTProtocol, "transcribe: %w", err)
	}
	res.UserQuery = query
	log.Info("recording_transcribed", slog.String("transcript", redact.Text(query)), slog.Int("audio_bytes", len(audio)))

	if strings.TrimSpace(query) == "" {
		res.LLMResponse = NotHeardReply
	} else {
		res.LLMResponse, err = p.answer(ctx, id, query, creds, log)
		if err != nil {
			return res, err
		}
	}

	res.AudioChunks, err = p.speakAll(ctx, id, synthesizer, res.LLMResponse)
	if err != nil {
		return res, err
	}
	res.Message = "Conversational response generated successfully"
	log.Info("converse_done", slog.Int("pieces", len(res.AudioChunks)), slog.Duration("elapsed", time.Since(start)))
	return res, nil
}

// answer routes one query through the skills, falling back to a one-shot
// generation with the persona.
func (p *Pipeline) answer(ctx context.Context, id, query string, creds Credentials, log *slog.Logger) (string, error) {
	backend, err := p.cfg.Providers.NewLLM(id, creds)
	if err != nil {
		return "", fmt.Errorf("language model provider: %w", err)
	}
	lookup, err := p.cfg.Providers.NewLookup(id, creds)
	if err != nil {
		log.Warn("movie_lookup_unavailable", slog.String("error", err.Error()))
		lookup = nil
	}
	generator := oneShot(backend)
	router := skills.NewRouter(skills.NewDialogueSkill(lookup, generator, skills.WithDialogueLogger(log)), log)
	discard := events.EmitterFunc(func(events.Event) error { return nil })

	out, err := router.Dispatch(ctx, query, discard)
	if err != nil {
		return "", err
	}
	metrics.Record(p.cfg.Observer, metrics.EventTurnRouted, 1, map[string]string{metrics.TagSessionID: id, metrics.TagRoute: out.Route.String()})
	if out.Handled {
		return out.Reply, nil
	}

	persona := p.cfg.Persona
	if persona == "" {
		persona = reply.DefaultPersona
	}
	text, err := generator.Generate(ctx, persona+"\n\nUser ka question: "+query)
	if err != nil {
		return "", errorsx.Wrapf(errorsx.ReasonLLMGenerate, "generate reply: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errorsx.Wrapf(errorsx.ReasonLLMGenerate, "generate reply: empty response")
	}
	return text, nil
}

// speakAll synthesizes text piece by piece, each piece under its own context id.
func (p *Pipeline) speakAll(ctx context.Context, id string, synthesizer tts.Synthesizer, text string) ([][]string, error) {
	pieces := tts.SplitText(text, tts.MaxTextChars)
	out := make([][]string, 0, len(pieces))
	for i, piece := range pieces {
		var audio []string
		req := tts.Request{Text: piece, ContextID: fmt.Sprintf("context_%s_%d", id, i)}
		if _, err := synthesizer.Synthesize(ctx, req, func(chunk string) error {
			audio = append(audio, chunk)
			return nil
		}); err != nil {
			return nil, errorsx.Wrapf(errorsx.ReasonTTSRecv, "synthesize piece %d: %w", i, err)
		}
		out = append(out, audio)
	}
	return out, nil
}
