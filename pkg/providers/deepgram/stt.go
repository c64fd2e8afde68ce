// Package deepgram is an alternate transcription backend built on the Deepgram SDK.
package deepgram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/harunnryd/voxrelay/pkg/adapters/stt"
	"github.com/harunnryd/voxrelay/pkg/errorsx"
	"github.com/harunnryd/voxrelay/pkg/logging"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
)

type Config struct {
	APIKey         string
	Model          string
	Language       string
	SampleRate     int
	Encoding       string
	UtteranceEndMS int
	SessionID      string
}

type StreamingSTT struct {
	cfg        Config
	dgClient   *client.WSCallback
	out        chan stt.Event
	ctx        context.Context
	cancel     context.CancelFunc
	pipeReader *io.PipeReader
	pipeWriter *io.PipeWriter
	metaLogged bool
	logger     *slog.Logger

	closeOnce sync.Once
	outMu     sync.Mutex
	outClosed bool
	errMu     sync.Mutex
	err       error
}

func New(cfg Config) *StreamingSTT {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Encoding == "" {
		cfg.Encoding = "linear16"
	}
	if cfg.Model == "" {
		cfg.Model = "nova-2"
	}
	return &StreamingSTT{
		cfg:    cfg,
		out:    make(chan stt.Event, 64),
		logger: logging.NewComponentLogger(slog.Default(), "deepgram_stt"),
	}
}

func (s *StreamingSTT) Name() string { return "deepgram" }

func (s *StreamingSTT) Start(ctx context.Context) error {
	if s.cfg.APIKey == "" {
		return errorsx.Wrap(errors.New("deepgram: missing api key"), errorsx.ReasonCredentialMissing)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.pipeReader, s.pipeWriter = io.Pipe()

	clientOptions := &interfaces.ClientOptions{
		EnableKeepAlive: true,
	}
	transcriptOptions := &interfaces.LiveTranscriptionOptions{
		Model:       s.cfg.Model,
		Language:    s.cfg.Language,
		Encoding:    s.cfg.Encoding,
		SampleRate:  s.cfg.SampleRate,
		SmartFormat: true,
	}
	if s.cfg.UtteranceEndMS > 0 {
		transcriptOptions.UtteranceEndMs = fmt.Sprintf("%d", s.cfg.UtteranceEndMS)
	}

	s.logger.Info("deepgram_connecting",
		slog.String("session_id", s.cfg.SessionID),
		slog.String("model", s.cfg.Model),
		slog.Int("sample_rate", s.cfg.SampleRate))

	cb := &callback{parent: s}
	dgClient, err := client.NewWSUsingCallback(s.ctx, s.cfg.APIKey, clientOptions, transcriptOptions, cb)
	if err != nil {
		return errorsx.Wrap(fmt.Errorf("deepgram: create client: %w", err), errorsx.ReasonSTTConnect)
	}
	s.dgClient = dgClient

	if connected := s.dgClient.Connect(); !connected {
		return errorsx.Wrap(errors.New("deepgram: connection failed"), errorsx.ReasonSTTConnect)
	}
	s.logger.Info("deepgram_connected", slog.String("session_id", s.cfg.SessionID))

	go func() {
		if err := s.dgClient.Stream(s.pipeReader); err != nil && s.ctx.Err() == nil {
			s.setErr(errorsx.Wrap(fmt.Errorf("deepgram: stream: %w", err), errorsx.ReasonSTTProtocol))
			s.logger.Error("deepgram_stream_error",
				slog.String("session_id", s.cfg.SessionID),
				slog.String("error", err.Error()))
			s.closeOut()
		}
	}()
	return nil
}

func (s *StreamingSTT) Close() error {
	s.closeOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		if s.pipeWriter != nil {
			_ = s.pipeWriter.Close()
		}
		if s.dgClient != nil {
			s.dgClient.Stop()
		}
		s.closeOut()
		s.logger.Info("deepgram_closed", slog.String("session_id", s.cfg.SessionID))
	})
	return nil
}

func (s *StreamingSTT) SendAudio(data []byte) error {
	if s.pipeWriter == nil {
		return errorsx.Wrap(errors.New("deepgram: not started"), errorsx.ReasonSTTSend)
	}
	if _, err := s.pipeWriter.Write(data); err != nil {
		return errorsx.Wrap(fmt.Errorf("deepgram: send audio: %w", err), errorsx.ReasonSTTSend)
	}
	return nil
}

func (s *StreamingSTT) Finalize() error {
	if s.dgClient == nil {
		return errorsx.Wrap(errors.New("deepgram: not started"), errorsx.ReasonSTTSend)
	}
	if err := s.dgClient.Finalize(); err != nil {
		return errorsx.Wrap(fmt.Errorf("deepgram: finalize: %w", err), errorsx.ReasonSTTSend)
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

func (s *StreamingSTT) closeOut() {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	if !s.outClosed {
		s.outClosed = true
		close(s.out)
	}
}

// emit blocks until the event is taken or the session is cancelled.
func (s *StreamingSTT) emit(ev stt.Event) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	if s.outClosed {
		return
	}
	select {
	case s.out <- ev:
	case <-s.ctx.Done():
	}
}

type callback struct {
	parent *StreamingSTT
}

func (c *callback) Open(*msginterfaces.OpenResponse) error {
	c.parent.emit(stt.Event{Type: stt.EventBegin})
	return nil
}

// Message maps Deepgram results onto turns. Only speech_final results count as
// formatted, finished turns.
func (c *callback) Message(mr *msginterfaces.MessageResponse) error {
	if len(mr.Channel.Alternatives) == 0 {
		return nil
	}
	transcript := mr.Channel.Alternatives[0].Transcript
	if transcript == "" {
		return nil
	}
	c.parent.emit(stt.Event{
		Type:       stt.EventTurn,
		Transcript: transcript,
		Formatted:  mr.IsFinal && mr.SpeechFinal,
		EndOfTurn:  mr.SpeechFinal,
	})
	return nil
}

func (c *callback) Metadata(md *msginterfaces.MetadataResponse) error {
	if !c.parent.metaLogged {
		c.parent.metaLogged = true
		c.parent.logger.Info("deepgram_metadata_received",
			slog.String("session_id", c.parent.cfg.SessionID),
			slog.String("request_id", md.RequestID))
	}
	return nil
}

func (c *callback) SpeechStarted(*msginterfaces.SpeechStartedResponse) error { return nil }

func (c *callback) UtteranceEnd(*msginterfaces.UtteranceEndResponse) error { return nil }

func (c *callback) Close(*msginterfaces.CloseResponse) error {
	c.parent.emit(stt.Event{Type: stt.EventTermination})
	return nil
}

func (c *callback) Error(er *msginterfaces.ErrorResponse) error {
	c.parent.logger.Error("deepgram_error",
		slog.String("session_id", c.parent.cfg.SessionID),
		slog.String("error_code", er.ErrCode),
		slog.String("error_message", er.ErrMsg))
	return nil
}

func (c *callback) UnhandledEvent(byData []byte) error {
	c.parent.logger.Debug("deepgram_unhandled_event",
		slog.String("session_id", c.parent.cfg.SessionID),
		slog.Int("bytes", len(byData)))
	return nil
}

var (
	_ stt.StreamingSTT = (*StreamingSTT)(nil)
	_ stt.Finalizer    = (*StreamingSTT)(nil)
)
