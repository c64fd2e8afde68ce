// Package websocket serves browser callers: the /ws audio session endpoint,
// skill test endpoints, health, metrics and the static client.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/harunnryd/voxrelay/pkg/pipeline"
	"github.com/harunnryd/voxrelay/pkg/skills"
)

type Config struct {
	ServerAddr     string        `mapstructure:"addr"`
	WebsocketPath  string        `mapstructure:"ws_path"`
	StaticDir      string        `mapstructure:"static_dir"`
	MetricsPath    string        `mapstructure:"metrics_path"`
	AllowAnyOrigin bool          `mapstructure:"allow_any_origin"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	SendBuffer     int           `mapstructure:"send_buffer"`
}

func (c Config) withDefaults() Config {
	if c.ServerAddr == "" {
		c.ServerAddr = ":8000"
	}
	if c.WebsocketPath == "" {
		c.WebsocketPath = "/ws"
	}
	if c.MetricsPath == "" {
		c.MetricsPath = "/metrics"
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 256
	}
	if !c.AllowAnyOrigin && len(c.AllowedOrigins) == 0 {
		c.AllowAnyOrigin = true
	}
	return c
}

// SessionServer runs one caller session to completion.
type SessionServer interface {
	Serve(ctx context.Context, caller pipeline.Caller, creds pipeline.Credentials) error
}

// Converser answers a whole uploaded recording in one request.
type Converser interface {
	Converse(ctx context.Context, sessionID string, audio []byte, creds pipeline.Credentials) (pipeline.ChatResult, error)
}

// DialogueFinder answers the movie test endpoint.
type DialogueFinder interface {
	Find(ctx context.Context, query string) skills.DialogueResult
}

type Option func(*Server)

func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

func WithDialogue(d DialogueFinder) Option {
	return func(s *Server) { s.dialogue = d }
}

// WithConverser enables POST /agent/chat/{session_id}.
func WithConverser(c Converser) Option {
	return func(s *Server) { s.converser = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// Server is the caller-facing HTTP and WebSocket endpoint.
type Server struct {
	cfg       Config
	sessions  SessionServer
	converser Converser
	metrics   http.Handler
	dialogue  DialogueFinder
	log       *slog.Logger
	upgrader  websocket.Upgrader

	server   *http.Server
	addr     atomic.Value
	conns    sync.WaitGroup
	draining atomic.Bool
}

func New(cfg Config, sessions SessionServer, opts ...Option) *Server {
	cfg = cfg.withDefaults()
	s := &Server{
		cfg:      cfg,
		sessions: sessions,
		log:      slog.Default(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
	s.upgrader.CheckOrigin = s.checkOrigin
	for _, opt := range opts {
		opt(s)
	}
	if s.dialogue == nil {
		s.dialogue = skills.NewDialogueSkill(nil, nil)
	}
	return s
}

func (s *Server) Name() string { return "websocket" }

// Handler returns the routing table of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.cfg.WebsocketPath, s.handleSession)
	mux.HandleFunc("GET /test/calc/{expression}", s.handleCalc)
	mux.HandleFunc("GET /test/movie/{movie_name}", s.handleMovie)
	if s.converser != nil {
		mux.HandleFunc("POST /agent/chat/{session_id}", s.handleAgentChat)
	}
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	if s.metrics != nil {
		mux.Handle("GET "+s.cfg.MetricsPath, s.metrics)
	}
	if strings.TrimSpace(s.cfg.StaticDir) != "" {
		files := http.FileServer(http.Dir(s.cfg.StaticDir))
		mux.Handle("GET /static/", http.StripPrefix("/static/", files))
		mux.Handle("GET /{$}", files)
	}
	return mux
}

// Start binds the listener and serves in the background until ctx ends or
// Stop is called.
func (s *Server) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ln, err := net.Listen("tcp", s.cfg.ServerAddr)
	if err != nil {
		return fmt.Errorf("websocket: listen %s: %w", s.cfg.ServerAddr, err)
	}
	s.addr.Store(ln.Addr().String())
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		_ = s.server.Close()
	}()
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("websocket_server_error", slog.String("error", err.Error()))
		}
	}()
	s.log.Info("websocket_server_listening", slog.String("addr", s.Addr()), slog.String("ws_path", s.cfg.WebsocketPath))
	return nil
}

// Addr is the bound listen address once started, else the configured one.
func (s *Server) Addr() string {
	if v, ok := s.addr.Load().(string); ok && v != "" {
		return v
	}
	return s.cfg.ServerAddr
}

// Drain stops accepting new sessions.
func (s *Server) Drain() error {
	s.draining.Store(true)
	return nil
}

// Stop closes the listener and waits for session handlers to return.
func (s *Server) Stop(ctx context.Context) error {
	s.draining.Store(true)
	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			_ = s.server.Close()
		}
	}
	done := make(chan struct{})
	go func() {
		s.conns.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if s.draining.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("websocket_upgrade_failed", slog.String("error", err.Error()))
		return
	}
	s.conns.Add(1)
	defer s.conns.Done()

	c := newConn(ws, s.cfg.SendBuffer, s.cfg.WriteTimeout, s.log)
	defer c.Close()
	if err := s.sessions.Serve(r.Context(), c, queryCredentials(r)); err != nil {
		s.log.Debug("session_ended_with_error", slog.String("error", err.Error()))
	}
}

func queryCredentials(r *http.Request) pipeline.Credentials {
	q := r.URL.Query()
	return pipeline.Credentials{
		Transcription: q.Get("assemblyai_key"),
		Synthesis:     q.Get("murf_key"),
		LanguageModel: q.Get("gemini_key"),
		MovieLookup:   q.Get("tmdb_key"),
	}
}

func (s *Server) handleCalc(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, skills.Calculate(r.PathValue("expression")))
}

func (s *Server) handleMovie(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.dialogue.Find(r.Context(), r.PathValue("movie_name")))
}

func writeJSON(w http.ResponseWriter, v any) {
	writeStatusJSON(w, http.StatusOK, v)
}

func writeStatusJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if s.cfg.AllowAnyOrigin {
		return true
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	origin = strings.TrimRight(origin, "/")
	originHost := strings.TrimPrefix(origin, "https://")
	originHost = strings.TrimPrefix(originHost, "http://")
	for _, allowed := range s.cfg.AllowedOrigins {
		a := strings.TrimRight(strings.TrimSpace(allowed), "/")
		if a == "" {
			continue
		}
		if strings.HasPrefix(a, "http://") || strings.HasPrefix(a, "https://") {
			if strings.EqualFold(a, origin) {
				return true
			}
			continue
		}
		if strings.EqualFold(a, originHost) {
			return true
		}
	}
	return false
}

func (s *Server) ReadyFields() map[string]any {
	return map[string]any{
		"addr":       s.Addr(),
		"ws_path":    s.cfg.WebsocketPath,
		"static_dir": s.cfg.StaticDir,
	}
}
