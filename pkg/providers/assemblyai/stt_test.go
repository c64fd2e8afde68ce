package assemblyai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harunnryd/voxrelay/pkg/adapters/stt"
	"github.com/harunnryd/voxrelay/pkg/errorsx"
)

type fakeServer struct {
	srv       *httptest.Server
	auth      chan string
	query     chan string
	audio     chan []byte
	terminate chan struct{}
	force     chan struct{}
}

func newFakeServer(t *testing.T, script []string) *fakeServer {
	t.Helper()
	f := &fakeServer{
		auth:      make(chan string, 1),
		query:     make(chan string, 1),
		audio:     make(chan []byte, 8),
		terminate: make(chan struct{}, 1),
		force:     make(chan struct{}, 1),
	}
	upgrader := websocket.Upgrader{}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.auth <- r.Header.Get("Authorization")
		f.query <- r.URL.RawQuery
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		go func() {
			for {
				mt, data, err := conn.ReadMessage()
				if err != nil {
					return
				}
				if mt == websocket.BinaryMessage {
					f.audio <- data
					continue
				}
				switch {
				case strings.Contains(string(data), "Terminate"):
					f.terminate <- struct{}{}
				case strings.Contains(string(data), "ForceEndpoint"):
					f.force <- struct{}{}
				}
			}
		}()
		for _, msg := range script {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}
		}
		time.Sleep(500 * time.Millisecond)
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func TestStreamingSTTDecodesTurns(t *testing.T) {
	f := newFakeServer(t, []string{
		`{"type":"Begin","id":"abc"}`,
		`{"type":"Turn","transcript":"hello","turn_is_formatted":false}`,
		`not json`,
		`{"type":"Turn","transcript":"Hello there.","turn_is_formatted":true,"end_of_turn":true}`,
		`{"type":"Termination"}`,
	})
	s := New(Config{APIKey: "secret-key", URL: wsURL(f.srv.URL), FormatTurns: true, SessionID: "ws_test"})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Close()

	if got := <-f.auth; got != "secret-key" {
		t.Fatalf("expected Authorization header, got %q", got)
	}
	q := <-f.query
	if !strings.Contains(q, "sample_rate=16000") || !strings.Contains(q, "format_turns=true") {
		t.Fatalf("unexpected query %q", q)
	}

	var got []stt.Event
	for ev := range s.Results() {
		got = append(got, ev)
	}
	if len(got) != 4 {
		t.Fatalf("expected 4 events, got %d: %+v", len(got), got)
	}
	if got[0].Type != stt.EventBegin || got[1].Final() || !got[2].Final() || got[3].Type != stt.EventTermination {
		t.Fatalf("unexpected events %+v", got)
	}
	if got[2].Transcript != "Hello there." {
		t.Fatalf("unexpected transcript %q", got[2].Transcript)
	}
	if s.Err() != nil {
		t.Fatalf("unexpected error %v", s.Err())
	}
}

func TestStreamingSTTForwardsAudioAndTerminates(t *testing.T) {
	f := newFakeServer(t, nil)
	s := New(Config{APIKey: "k", URL: wsURL(f.srv.URL)})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.SendAudio([]byte{1, 2, 3}); err != nil {
		t.Fatalf("send: %v", err)
	}
	select {
	case data := <-f.audio:
		if len(data) != 3 || data[2] != 3 {
			t.Fatalf("audio altered: %v", data)
		}
	case <-time.After(time.Second):
		t.Fatalf("audio not forwarded")
	}
	_ = s.Close()
	select {
	case <-f.terminate:
	case <-time.After(time.Second):
		t.Fatalf("expected Terminate message on close")
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestTranscribeRecording(t *testing.T) {
	f := newFakeServer(t, []string{
		`{"type":"Begin","id":"abc"}`,
		`{"type":"Turn","transcript":"two plus","turn_is_formatted":false}`,
		`{"type":"Turn","transcript":"Two plus three.","turn_is_formatted":true,"end_of_turn":true}`,
		`{"type":"Termination"}`,
	})
	s := New(Config{APIKey: "k", URL: wsURL(f.srv.URL), FormatTurns: true})
	got, err := stt.Transcribe(context.Background(), s, make([]byte, 8000), stt.BatchOptions{Settle: time.Second})
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if got != "Two plus three." {
		t.Fatalf("unexpected transcript %q", got)
	}
	select {
	case <-f.force:
	case <-time.After(time.Second):
		t.Fatalf("expected ForceEndpoint after the recording")
	}
	frames := 0
	for len(f.audio) > 0 {
		<-f.audio
		frames++
	}
	if frames != 3 {
		t.Fatalf("expected 3 audio frames, got %d", frames)
	}
}

func TestStreamingSTTMissingKey(t *testing.T) {
	s := New(Config{})
	err := s.Start(context.Background())
	if !errorsx.HasReason(err, errorsx.ReasonCredentialMissing) {
		t.Fatalf("expected credential_missing, got %v", err)
	}
}

func TestStreamingSTTDialFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()
	s := New(Config{APIKey: "k", URL: wsURL(srv.URL)})
	err := s.Start(context.Background())
	if !errorsx.HasReason(err, errorsx.ReasonSTTConnect) {
		t.Fatalf("expected stt_connect, got %v", err)
	}
}
