package voxrelay

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/harunnryd/voxrelay/pkg/events"
	"github.com/harunnryd/voxrelay/pkg/pipeline"
	"github.com/harunnryd/voxrelay/pkg/runner"
	wstransport "github.com/harunnryd/voxrelay/pkg/transports/websocket"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		Server: wstransport.Config{
			ServerAddr:     "127.0.0.1:0",
			WebsocketPath:  "/ws",
			MetricsPath:    "/metrics",
			AllowAnyOrigin: true,
		},
		Vendors: mockVendors(),
		Credentials: CredentialsConfig{
			AssemblyAI: "aai",
			Murf:       "murf",
			Gemini:     "gemini",
		},
		Metrics:       MetricsConfig{Enabled: true, Path: "/metrics", Namespace: "voxrelay_test"},
		Observability: ObservabilityConfig{SampleRate: 1, EventsFile: filepath.Join(t.TempDir(), "events.jsonl")},
		Shutdown:      ShutdownConfig{DrainTimeout: 2 * time.Second},
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startEngine(t *testing.T, cfg Config) (*Engine, context.CancelFunc, <-chan error) {
	t.Helper()
	e, err := NewEngine(EngineOptions{Config: cfg, Logger: quietLogger()})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()
	deadline := time.Now().Add(2 * time.Second)
	for e.State() != runner.StateRunning && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if err := e.Health(); err != nil {
		cancel()
		t.Fatalf("engine not healthy: %v", err)
	}
	return e, cancel, done
}

func addr(e *Engine) string {
	return e.Transport().(*wstransport.Server).Addr()
}

func TestEngineServesSkillTurnEndToEnd(t *testing.T) {
	cfg := testConfig(t)
	e, cancel, done := startEngine(t, cfg)

	ws, _, err := websocket.DefaultDialer.Dial("ws://"+addr(e)+"/ws", nil)
	if err != nil {
		cancel()
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()

	want := []events.Type{
		events.TypeEndOfTurnTranscript,
		events.TypeCalculationSkillActivated,
		events.TypeLLMStreamChunk,
		events.TypeLLMStreamComplete,
		events.TypeMurfAudioChunk,
		events.TypeMurfStreamComplete,
	}
	var got []events.Event
	for range want {
		_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := ws.ReadMessage()
		if err != nil {
			cancel()
			t.Fatalf("read: %v", err)
		}
		ev, err := events.Decode(data)
		if err != nil {
			cancel()
			t.Fatalf("decode: %v", err)
		}
		got = append(got, ev)
	}
	for i, typ := range want {
		if got[i].Type != typ {
			cancel()
			t.Fatalf("event %d: got %s want %s", i, got[i].Type, typ)
		}
	}
	if got[0].Text != "2 plus 3" || got[4].Audio != "QUJD" {
		t.Fatalf("unexpected payloads: %+v", got)
	}
	if !strings.Contains(got[3].CompleteResponse, "5") {
		t.Fatalf("expected the sum in the reply, got %q", got[3].CompleteResponse)
	}

	resp, err := http.Get("http://" + addr(e) + "/metrics")
	if err != nil {
		cancel()
		t.Fatalf("metrics: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics status %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not stop")
	}
	if e.Pipeline().Registry().Count() != 0 {
		t.Fatalf("sessions left: %d", e.Pipeline().Registry().Count())
	}

	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			break
		}
	}

	data, err := os.ReadFile(cfg.Observability.EventsFile)
	if err != nil {
		t.Fatalf("events file: %v", err)
	}
	for _, name := range []string{"session_start", "turn_routed", "session_end"} {
		if !strings.Contains(string(data), `"name":"`+name+`"`) {
			t.Fatalf("events file missing %s:\n%s", name, data)
		}
	}
}

func TestEngineMovieEndpointUsesDefaults(t *testing.T) {
	cfg := testConfig(t)
	cfg.Observability.EventsFile = ""
	e, cancel, done := startEngine(t, cfg)
	defer func() {
		cancel()
		<-done
	}()

	resp, err := http.Get("http://" + addr(e) + "/test/movie/sholay")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "Sholay") {
		t.Fatalf("movie endpoint: %d %s", resp.StatusCode, body)
	}
}

func TestEngineAgentChatEndpoint(t *testing.T) {
	cfg := testConfig(t)
	cfg.Observability.EventsFile = ""
	cfg.Vendors.STT.Settings["hold_open"] = false
	e, cancel, done := startEngine(t, cfg)
	defer func() {
		cancel()
		<-done
	}()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, _ := mw.CreateFormFile("file", "question.pcm")
	_, _ = fw.Write(make([]byte, 3200))
	_ = mw.Close()
	resp, err := http.Post("http://"+addr(e)+"/agent/chat/abc", mw.FormDataContentType(), &body)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	var got pipeline.ChatResult
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.StatusCode != http.StatusOK || got.UserQuery != "2 plus 3" || !strings.Contains(got.LLMResponse, "5") {
		t.Fatalf("agent chat: %d %+v", resp.StatusCode, got)
	}
	if len(got.AudioChunks) != 1 || got.AudioChunks[0][0] != "QUJD" {
		t.Fatalf("unexpected audio %v", got.AudioChunks)
	}
}

func TestNewEngineRejectsUnknownProvider(t *testing.T) {
	cfg := testConfig(t)
	cfg.Vendors.TTS.Provider = "polly"
	if _, err := NewEngine(EngineOptions{Config: cfg, Logger: quietLogger()}); err == nil || !strings.Contains(err.Error(), "polly") {
		t.Fatalf("expected provider error, got %v", err)
	}
}

func TestEngineStartFailsOnBusyAddress(t *testing.T) {
	cfg := testConfig(t)
	cfg.Observability.EventsFile = ""
	first, cancel, done := startEngine(t, cfg)
	defer func() {
		cancel()
		<-done
	}()

	cfg.Server.ServerAddr = addr(first)
	second, err := NewEngine(EngineOptions{Config: cfg, Logger: quietLogger()})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if err := second.Run(context.Background()); err == nil {
		t.Fatal("expected listen error")
	}
	if second.State() != runner.StateStopped {
		t.Fatalf("expected stopped, got %s", second.State())
	}
}
