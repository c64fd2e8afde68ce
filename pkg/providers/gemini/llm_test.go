package gemini

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/harunnryd/voxrelay/pkg/errorsx"
	"github.com/harunnryd/voxrelay/pkg/llm"
)

func candidate(text string) string {
	return fmt.Sprintf(`{"candidates":[{"content":{"role":"model","parts":[{"text":%q}]}}]}`, text)
}

type fakeGemini struct {
	mu     sync.Mutex
	bodies []string
}

func (f *fakeGemini) handler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.bodies = append(f.bodies, string(body))
	f.mu.Unlock()
	if strings.Contains(r.URL.Path, ":streamGenerateContent") {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprintf(w, "data: %s\r\n\r\n", candidate("Hello"))
		fmt.Fprintf(w, "data: %s\r\n\r\n", candidate(" world"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, candidate("  Kitne aadmi the?  "))
}

func newBackend(t *testing.T) (*Backend, *fakeGemini) {
	t.Helper()
	f := &fakeGemini{}
	srv := httptest.NewServer(http.HandlerFunc(f.handler))
	t.Cleanup(srv.Close)
	b, err := New(context.Background(), Config{APIKey: "g-key", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return b, f
}

func TestGenerateTrimsText(t *testing.T) {
	b, _ := newBackend(t)
	out, err := b.Generate(context.Background(), "Movie: Sholay")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if out != "Kitne aadmi the?" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestChatStreamsFragmentsAndKeepsHistory(t *testing.T) {
	b, f := newBackend(t)
	chat, err := b.NewChat(context.Background(), "You are CynicAI")
	if err != nil {
		t.Fatalf("new chat: %v", err)
	}
	var frags []string
	full, err := llm.Collect(context.Background(), chat.SendStream(context.Background(), "first question"), func(s string) error {
		frags = append(frags, s)
		return nil
	})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if full != "Hello world" || len(frags) != 2 {
		t.Fatalf("unexpected stream %q %v", full, frags)
	}
	if _, err := llm.Collect(context.Background(), chat.SendStream(context.Background(), "second question"), nil); err != nil {
		t.Fatalf("second stream: %v", err)
	}
	f.mu.Lock()
	last := f.bodies[len(f.bodies)-1]
	f.mu.Unlock()
	for _, want := range []string{"first question", "Hello world", "second question", "You are CynicAI"} {
		if !strings.Contains(last, want) {
			t.Fatalf("second request missing %q: %s", want, last)
		}
	}
}

func TestNewRequiresKey(t *testing.T) {
	_, err := New(context.Background(), Config{})
	if !errorsx.HasReason(err, errorsx.ReasonCredentialMissing) {
		t.Fatalf("expected credential_missing, got %v", err)
	}
}
