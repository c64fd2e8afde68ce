// Package murf synthesizes replies through Murf's stream-input WebSocket API.
package murf

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harunnryd/voxrelay/pkg/adapters/tts"
	"github.com/harunnryd/voxrelay/pkg/errorsx"
	"github.com/harunnryd/voxrelay/pkg/logging"
	"github.com/harunnryd/voxrelay/pkg/redact"
	"github.com/harunnryd/voxrelay/pkg/resilience"
)

const DefaultURL = "wss://api.murf.ai/v1/speech/stream-input"

type Config struct {
	APIKey      string
	URL         string
	SampleRate  int
	ChannelType string
	Format      string
	VoiceID     string
	Style       string
	Locale      string
	SessionID   string
	DialTimeout time.Duration
}

type MurfTTS struct {
	cfg    Config
	logger *slog.Logger
}

type voiceConfig struct {
	VoiceID           string `json:"voiceId"`
	Style             string `json:"style"`
	MultiNativeLocale string `json:"multiNativeLocale"`
}

type configMessage struct {
	VoiceConfig voiceConfig `json:"voice_config"`
	ContextID   string      `json:"context_id"`
}

type textMessage struct {
	Text      string `json:"text"`
	ContextID string `json:"context_id"`
	End       bool   `json:"end,omitempty"`
}

type response struct {
	Audio *string `json:"audio"`
	Final bool    `json:"final"`
	Error string  `json:"error"`
}

func New(cfg Config) *MurfTTS {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 44100
	}
	if cfg.ChannelType == "" {
		cfg.ChannelType = "MONO"
	}
	if cfg.Format == "" {
		cfg.Format = "WAV"
	}
	if cfg.VoiceID == "" {
		cfg.VoiceID = "en-US-carter"
	}
	if cfg.Style == "" {
		cfg.Style = "Conversational"
	}
	if cfg.Locale == "" {
		cfg.Locale = "hi-IN"
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	return &MurfTTS{cfg: cfg, logger: logging.NewComponentLogger(slog.Default(), "murf_tts")}
}

func (m *MurfTTS) Name() string { return "murf" }

// Synthesize opens one connection, configures the voice for req.ContextID and
// sends the whole reply as a single text message with an end-of-input marker.
func (m *MurfTTS) Synthesize(ctx context.Context, req tts.Request, onChunk tts.ChunkFunc) (int, error) {
	if m.cfg.APIKey == "" {
		return 0, errorsx.Wrap(errors.New("murf: missing api key"), errorsx.ReasonCredentialMissing)
	}
	u, err := m.buildURL()
	if err != nil {
		return 0, errorsx.Wrap(err, errorsx.ReasonTTSConnect)
	}
	dialer := websocket.Dialer{Proxy: http.ProxyFromEnvironment, HandshakeTimeout: m.cfg.DialTimeout}
	conn, resp, err := dialer.DialContext(ctx, u, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
			return 0, errorsx.Wrap(resilience.RateLimitError{Provider: "murf", Message: resp.Status}, errorsx.ReasonTTSConnect)
		}
		m.logger.Error("murf_connect_failed",
			slog.String("session_id", m.cfg.SessionID),
			slog.String("url", redact.URL(u)),
			slog.String("error", redact.URL(err.Error())))
		return 0, errorsx.Wrap(fmt.Errorf("murf: dial: %s", redact.URL(err.Error())), errorsx.ReasonTTSConnect)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	m.logger.Debug("murf_connected",
		slog.String("session_id", m.cfg.SessionID),
		slog.String("context_id", req.ContextID))

	if err := conn.WriteJSON(configMessage{
		VoiceConfig: voiceConfig{VoiceID: m.cfg.VoiceID, Style: m.cfg.Style, MultiNativeLocale: m.cfg.Locale},
		ContextID:   req.ContextID,
	}); err != nil {
		return 0, errorsx.Wrap(fmt.Errorf("murf: send voice config: %w", err), errorsx.ReasonTTSSend)
	}
	if err := conn.WriteJSON(textMessage{Text: req.Text, ContextID: req.ContextID, End: true}); err != nil {
		return 0, errorsx.Wrap(fmt.Errorf("murf: send text: %w", err), errorsx.ReasonTTSSend)
	}

	chunks := 0
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return chunks, ctx.Err()
			}
			return chunks, errorsx.Wrap(fmt.Errorf("murf: receive: %w", err), errorsx.ReasonTTSRecv)
		}
		var r response
		if err := json.Unmarshal(data, &r); err != nil {
			m.logger.Warn("murf_malformed_message",
				slog.String("session_id", m.cfg.SessionID),
				slog.String("error", err.Error()))
			continue
		}
		if r.Error != "" {
			return chunks, errorsx.Wrap(fmt.Errorf("murf: %s", r.Error), errorsx.ReasonTTSRecv)
		}
		if r.Audio != nil {
			chunks++
			if err := onChunk(*r.Audio); err != nil {
				return chunks, err
			}
		}
		if r.Final {
			m.logger.Debug("murf_stream_complete",
				slog.String("session_id", m.cfg.SessionID),
				slog.Int("total_chunks", chunks))
			return chunks, nil
		}
	}
}

func (m *MurfTTS) buildURL() (string, error) {
	u, err := url.Parse(m.cfg.URL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("api-key", m.cfg.APIKey)
	q.Set("sample_rate", strconv.Itoa(m.cfg.SampleRate))
	q.Set("channel_type", m.cfg.ChannelType)
	q.Set("format", m.cfg.Format)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

var _ tts.Synthesizer = (*MurfTTS)(nil)
