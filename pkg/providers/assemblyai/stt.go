// Package assemblyai streams caller audio to AssemblyAI Universal Streaming (v3).
package assemblyai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harunnryd/voxrelay/pkg/adapters/stt"
	"github.com/harunnryd/voxrelay/pkg/errorsx"
	"github.com/harunnryd/voxrelay/pkg/logging"
	"github.com/harunnryd/voxrelay/pkg/redact"
	"github.com/harunnryd/voxrelay/pkg/resilience"
)

const DefaultURL = "wss://streaming.assemblyai.com/v3/ws"

type Config struct {
	APIKey      string
	URL         string
	SampleRate  int
	FormatTurns bool
	SessionID   string
	DialTimeout time.Duration
}

type StreamingSTT struct {
	cfg    Config
	conn   *websocket.Conn
	out    chan stt.Event
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once
	errMu     sync.Mutex
	err       error
}

type message struct {
	Type            string `json:"type"`
	Transcript      string `json:"transcript"`
	TurnIsFormatted bool   `json:"turn_is_formatted"`
	EndOfTurn       bool   `json:"end_of_turn"`
	ID              string `json:"id"`
	Error           string `json:"error"`
}

func New(cfg Config) *StreamingSTT {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	return &StreamingSTT{
		cfg:    cfg,
		out:    make(chan stt.Event),
		logger: logging.NewComponentLogger(slog.Default(), "assemblyai_stt"),
	}
}

func (s *StreamingSTT) Name() string { return "assemblyai" }

func (s *StreamingSTT) Start(ctx context.Context) error {
	if s.cfg.APIKey == "" {
		return errorsx.Wrap(errors.New("assemblyai: missing api key"), errorsx.ReasonCredentialMissing)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	u, err := s.buildURL()
	if err != nil {
		return errorsx.Wrap(err, errorsx.ReasonSTTConnect)
	}

	s.logger.Debug("assemblyai_connecting",
		slog.String("session_id", s.cfg.SessionID),
		slog.String("url", u))

	dialer := websocket.Dialer{Proxy: http.ProxyFromEnvironment, HandshakeTimeout: s.cfg.DialTimeout}
	conn, resp, err := dialer.DialContext(s.ctx, u, http.Header{
		"Authorization": []string{s.cfg.APIKey},
	})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
			return errorsx.Wrap(resilience.RateLimitError{Provider: "assemblyai", Message: resp.Status}, errorsx.ReasonSTTConnect)
		}
		s.logger.Error("assemblyai_connect_failed",
			slog.String("session_id", s.cfg.SessionID),
			slog.String("key", redact.Secret(s.cfg.APIKey)),
			slog.String("error", err.Error()))
		return errorsx.Wrap(fmt.Errorf("assemblyai: dial: %w", err), errorsx.ReasonSTTConnect)
	}
	s.conn = conn
	s.logger.Info("assemblyai_connected", slog.String("session_id", s.cfg.SessionID))

	go s.readLoop()
	go func() {
		<-s.ctx.Done()
		_ = s.Close()
	}()
	return nil
}

// Close asks the service to end the session, then drops the connection.
func (s *StreamingSTT) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		if s.conn == nil {
			return
		}
		s.writeMu.Lock()
		_ = s.conn.SetWriteDeadline(time.Now().Add(time.Second))
		_ = s.conn.WriteJSON(map[string]string{"type": "Terminate"})
		_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.writeMu.Unlock()
		err = s.conn.Close()
		s.logger.Info("assemblyai_closed", slog.String("session_id", s.cfg.SessionID))
	})
	return err
}

func (s *StreamingSTT) SendAudio(data []byte) error {
	if s.conn == nil {
		return errorsx.Wrap(errors.New("assemblyai: not connected"), errorsx.ReasonSTTSend)
	}
	if len(data) == 0 {
		return nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return errorsx.Wrap(fmt.Errorf("assemblyai: send audio: %w", err), errorsx.ReasonSTTSend)
	}
	return nil
}

// Finalize asks the service to end the current turn now.
func (s *StreamingSTT) Finalize() error {
	if s.conn == nil {
		return errorsx.Wrap(errors.New("assemblyai: not connected"), errorsx.ReasonSTTSend)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteJSON(map[string]string{"type": "ForceEndpoint"}); err != nil {
		return errorsx.Wrap(fmt.Errorf("assemblyai: force endpoint: %w", err), errorsx.ReasonSTTSend)
	}
	return nil
}

func (s *StreamingSTT) Results() <-chan stt.Event { return s.out }

func (s *StreamingSTT) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *StreamingSTT) setErr(err error) {
	s.errMu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.errMu.Unlock()
}

func (s *StreamingSTT) buildURL() (string, error) {
	u, err := url.Parse(s.cfg.URL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("sample_rate", strconv.Itoa(s.cfg.SampleRate))
	q.Set("format_turns", strconv.FormatBool(s.cfg.FormatTurns))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (s *StreamingSTT) readLoop() {
	defer close(s.out)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if s.ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				s.setErr(errorsx.Wrap(fmt.Errorf("assemblyai: read: %w", err), errorsx.ReasonSTTProtocol))
				s.logger.Error("assemblyai_read_error",
					slog.String("session_id", s.cfg.SessionID),
					slog.String("error", err.Error()))
			}
			return
		}
		ev, ok := s.decode(data)
		if !ok {
			continue
		}
		select {
		case s.out <- ev:
		case <-s.ctx.Done():
			return
		}
		if ev.Type == stt.EventTermination {
			s.logger.Info("assemblyai_terminated", slog.String("session_id", s.cfg.SessionID))
			return
		}
	}
}

func (s *StreamingSTT) decode(data []byte) (stt.Event, bool) {
	var msg message
	if err := json.Unmarshal(data, &msg); err != nil {
		s.logger.Warn("assemblyai_malformed_message",
			slog.String("session_id", s.cfg.SessionID),
			slog.String("error", err.Error()))
		return stt.Event{}, false
	}
	switch msg.Type {
	case "Begin":
		s.logger.Debug("assemblyai_begin",
			slog.String("session_id", s.cfg.SessionID),
			slog.String("upstream_id", msg.ID))
		return stt.Event{Type: stt.EventBegin}, true
	case "Turn":
		return stt.Event{
			Type:       stt.EventTurn,
			Transcript: msg.Transcript,
			Formatted:  msg.TurnIsFormatted,
			EndOfTurn:  msg.EndOfTurn,
		}, true
	case "Termination":
		return stt.Event{Type: stt.EventTermination}, true
	case "":
		if msg.Error != "" {
			s.logger.Error("assemblyai_error_message",
				slog.String("session_id", s.cfg.SessionID),
				slog.String("error", msg.Error))
		}
		return stt.Event{}, false
	default:
		s.logger.Debug("assemblyai_unhandled_message",
			slog.String("session_id", s.cfg.SessionID),
			slog.String("type", msg.Type))
		return stt.Event{}, false
	}
}

var (
	_ stt.StreamingSTT = (*StreamingSTT)(nil)
	_ stt.Finalizer    = (*StreamingSTT)(nil)
)
