package murf

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/harunnryd/voxrelay/pkg/adapters/tts"
	"github.com/harunnryd/voxrelay/pkg/errorsx"
)

type received struct {
	query    string
	messages []map[string]any
}

func fakeMurf(t *testing.T, replies []string, got *received) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.query = r.URL.RawQuery
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var msg map[string]any
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			got.messages = append(got.messages, msg)
			if end, _ := msg["end"].(bool); end {
				break
			}
		}
		for _, reply := range replies {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(reply)); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(httpURL string) string { return "ws" + strings.TrimPrefix(httpURL, "http") }

func TestSynthesizeRelaysChunksInOrder(t *testing.T) {
	var got received
	srv := fakeMurf(t, []string{
		`{"audio":"QUFB"}`,
		`garbage`,
		`{"audio":"QkJC"}`,
		`{"final":true}`,
	}, &got)
	m := New(Config{APIKey: "murf-key", URL: wsURL(srv.URL), Style: "Conversational", Locale: "hi-IN"})

	var chunks []string
	n, err := m.Synthesize(context.Background(), tts.Request{Text: "Hello bidu.", ContextID: "context_ws_1"}, func(a string) error {
		chunks = append(chunks, a)
		return nil
	})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if n != 2 || len(chunks) != 2 || chunks[0] != "QUFB" || chunks[1] != "QkJC" {
		t.Fatalf("unexpected chunks %d %v", n, chunks)
	}
	for _, want := range []string{"api-key=murf-key", "sample_rate=44100", "channel_type=MONO", "format=WAV"} {
		if !strings.Contains(got.query, want) {
			t.Fatalf("query %q missing %q", got.query, want)
		}
	}
	if len(got.messages) != 2 {
		t.Fatalf("expected voice config + text, got %d", len(got.messages))
	}
	vc, _ := got.messages[0]["voice_config"].(map[string]any)
	if vc["voiceId"] != "en-US-carter" || vc["multiNativeLocale"] != "hi-IN" || got.messages[0]["context_id"] != "context_ws_1" {
		t.Fatalf("unexpected voice config %v", got.messages[0])
	}
	if got.messages[1]["text"] != "Hello bidu." || got.messages[1]["end"] != true {
		t.Fatalf("unexpected text message %v", got.messages[1])
	}
}

func TestSynthesizeUnexpectedCloseIsError(t *testing.T) {
	var got received
	srv := fakeMurf(t, []string{`{"audio":"QUFB"}`}, &got)
	m := New(Config{APIKey: "k", URL: wsURL(srv.URL)})
	n, err := m.Synthesize(context.Background(), tts.Request{Text: "hi", ContextID: "c"}, func(string) error { return nil })
	if err == nil {
		t.Fatalf("expected error when stream closes before final")
	}
	if !errorsx.HasReason(err, errorsx.ReasonTTSRecv) {
		t.Fatalf("expected tts_recv, got %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 chunk before failure, got %d", n)
	}
}

func TestSynthesizeServiceError(t *testing.T) {
	var got received
	srv := fakeMurf(t, []string{`{"error":"invalid voice"}`}, &got)
	m := New(Config{APIKey: "k", URL: wsURL(srv.URL)})
	_, err := m.Synthesize(context.Background(), tts.Request{Text: "hi", ContextID: "c"}, func(string) error { return nil })
	if err == nil || !strings.Contains(err.Error(), "invalid voice") {
		t.Fatalf("expected service error, got %v", err)
	}
}

func TestSynthesizeDefaultVoice(t *testing.T) {
	var got received
	srv := fakeMurf(t, []string{`{"final":true}`}, &got)
	m := New(Config{APIKey: "k", URL: wsURL(srv.URL)})
	if _, err := m.Synthesize(context.Background(), tts.Request{Text: "hi", ContextID: "c"}, func(string) error { return nil }); err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	vc, _ := got.messages[0]["voice_config"].(map[string]any)
	if vc["voiceId"] != "en-US-carter" || vc["style"] != "Conversational" || vc["multiNativeLocale"] != "hi-IN" {
		t.Fatalf("unexpected default voice config %v", vc)
	}
}

func TestSynthesizeSendsLongTextOnce(t *testing.T) {
	var got received
	srv := fakeMurf(t, []string{`{"final":true}`}, &got)
	m := New(Config{APIKey: "k", URL: wsURL(srv.URL)})
	long := strings.Repeat("Sentence number one is here. ", 150)
	if _, err := m.Synthesize(context.Background(), tts.Request{Text: long, ContextID: "c"}, func(string) error { return nil }); err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if len(got.messages) != 2 {
		t.Fatalf("expected voice config + one text message, got %d", len(got.messages))
	}
	if got.messages[1]["text"] != long || got.messages[1]["end"] != true {
		t.Fatalf("expected the full reply in one message")
	}
}

func TestSynthesizeMissingKey(t *testing.T) {
	_, err := New(Config{}).Synthesize(context.Background(), tts.Request{Text: "x"}, func(string) error { return nil })
	if !errorsx.HasReason(err, errorsx.ReasonCredentialMissing) {
		t.Fatalf("expected credential_missing, got %v", err)
	}
}
