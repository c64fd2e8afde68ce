// Package elevenlabs is an alternate synthesis backend using the ElevenLabs
// stream-input WebSocket API.
package elevenlabs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harunnryd/voxrelay/pkg/adapters/tts"
	"github.com/harunnryd/voxrelay/pkg/errorsx"
	"github.com/harunnryd/voxrelay/pkg/logging"
	"github.com/harunnryd/voxrelay/pkg/resilience"
)

const DefaultBaseURL = "wss://api.elevenlabs.io/v1/text-to-speech"

type Config struct {
	APIKey       string
	BaseURL      string
	VoiceID      string
	ModelID      string
	OutputFormat string
	SessionID    string
	DialTimeout  time.Duration
}

type ElevenLabsTTS struct {
	cfg    Config
	logger *slog.Logger
}

type message struct {
	Audio         string `json:"audio"`
	AudioBase64   string `json:"audio_base_64"`
	IsFinal       bool   `json:"isFinal"`
	Error         string `json:"error"`
	Message       string `json:"message"`
}

func New(cfg Config) *ElevenLabsTTS {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.ModelID == "" {
		cfg.ModelID = "eleven_flash_v2_5"
	}
	if cfg.OutputFormat == "" {
		cfg.OutputFormat = "pcm_44100"
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	return &ElevenLabsTTS{cfg: cfg, logger: logging.NewComponentLogger(slog.Default(), "elevenlabs_tts")}
}

func (s *ElevenLabsTTS) Name() string { return "elevenlabs" }

// Synthesize opens one stream-input connection and sends the full reply
// followed by the empty end-of-input message.
func (s *ElevenLabsTTS) Synthesize(ctx context.Context, req tts.Request, onChunk tts.ChunkFunc) (int, error) {
	if s.cfg.APIKey == "" || s.cfg.VoiceID == "" {
		return 0, errorsx.Wrap(errors.New("elevenlabs: missing api key or voice id"), errorsx.ReasonCredentialMissing)
	}
	u, err := s.buildURL()
	if err != nil {
		return 0, errorsx.Wrap(err, errorsx.ReasonTTSConnect)
	}
	dialer := websocket.Dialer{Proxy: http.ProxyFromEnvironment, HandshakeTimeout: s.cfg.DialTimeout}
	conn, resp, err := dialer.DialContext(ctx, u, http.Header{
		"xi-api-key": []string{s.cfg.APIKey},
	})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
			return 0, errorsx.Wrap(resilience.RateLimitError{Provider: "elevenlabs", Message: resp.Status}, errorsx.ReasonTTSConnect)
		}
		s.logger.Error("elevenlabs_connect_failed",
			slog.String("session_id", s.cfg.SessionID),
			slog.String("error", err.Error()))
		return 0, errorsx.Wrap(fmt.Errorf("elevenlabs: dial: %w", err), errorsx.ReasonTTSConnect)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	text := strings.TrimSpace(req.Text)
	if !strings.HasSuffix(text, " ") {
		text += " "
	}
	for _, payload := range []map[string]any{
		{
			"text": " ",
			"voice_settings": map[string]any{
				"stability":        0.5,
				"similarity_boost": 0.8,
			},
		},
		{"text": text, "try_trigger_generation": true},
		{"text": ""},
	} {
		if err := conn.WriteJSON(payload); err != nil {
			return 0, errorsx.Wrap(fmt.Errorf("elevenlabs: send: %w", err), errorsx.ReasonTTSSend)
		}
	}

	chunks := 0
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return chunks, ctx.Err()
			}
			return chunks, errorsx.Wrap(fmt.Errorf("elevenlabs: receive: %w", err), errorsx.ReasonTTSRecv)
		}
		var msg message
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Warn("elevenlabs_malformed_message",
				slog.String("session_id", s.cfg.SessionID),
				slog.String("error", err.Error()))
			continue
		}
		if msg.Error != "" {
			return chunks, errorsx.Wrap(fmt.Errorf("elevenlabs: %s: %s", msg.Error, msg.Message), errorsx.ReasonTTSRecv)
		}
		audio := msg.Audio
		if audio == "" {
			audio = msg.AudioBase64
		}
		if audio != "" {
			chunks++
			if err := onChunk(audio); err != nil {
				return chunks, err
			}
		}
		if msg.IsFinal {
			return chunks, nil
		}
	}
}

func (s *ElevenLabsTTS) buildURL() (string, error) {
	base := strings.TrimRight(s.cfg.BaseURL, "/") + "/" + url.PathEscape(s.cfg.VoiceID) + "/stream-input"
	q := url.Values{}
	q.Set("model_id", s.cfg.ModelID)
	q.Set("output_format", s.cfg.OutputFormat)
	return base + "?" + q.Encode(), nil
}

var _ tts.Synthesizer = (*ElevenLabsTTS)(nil)
