package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/harunnryd/voxrelay/pkg/errorsx"
	"github.com/harunnryd/voxrelay/pkg/llm"
	"github.com/harunnryd/voxrelay/pkg/resilience"
)

func streamChunk(text string) string {
	return fmt.Sprintf(`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"gpt-4o-mini","choices":[{"index":0,"delta":{"content":%q}}]}`, text)
}

type fakeOpenAI struct {
	mu       sync.Mutex
	requests []map[string]any
	status   int
}

func (f *fakeOpenAI) handler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	var req map[string]any
	_ = json.Unmarshal(body, &req)
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.status != 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(f.status)
		fmt.Fprint(w, `{"error":{"message":"slow down","type":"rate_limit"}}`)
		return
	}
	if stream, _ := req["stream"].(bool); stream {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprintf(w, "data: %s\n\n", streamChunk("Ugh, "))
		fmt.Fprintf(w, "data: %s\n\n", streamChunk("fine."))
		fmt.Fprint(w, "data: [DONE]\n\n")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, `{"id":"c2","object":"chat.completion","created":1,"model":"gpt-4o-mini","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":" All izz well! "}}]}`)
}

func newBackend(t *testing.T, status int) (*Backend, *fakeOpenAI) {
	t.Helper()
	f := &fakeOpenAI{status: status}
	srv := httptest.NewServer(http.HandlerFunc(f.handler))
	t.Cleanup(srv.Close)
	b, err := New(Config{APIKey: "sk-test", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return b, f
}

func TestGenerate(t *testing.T) {
	b, _ := newBackend(t, 0)
	out, err := b.Generate(context.Background(), "Movie: 3 Idiots")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if out != "All izz well!" {
		t.Fatalf("unexpected %q", out)
	}
}

func TestChatKeepsHistory(t *testing.T) {
	b, f := newBackend(t, 0)
	chat, _ := b.NewChat(context.Background(), "persona")
	full, err := llm.Collect(context.Background(), chat.SendStream(context.Background(), "hi"), nil)
	if err != nil || full != "Ugh, fine." {
		t.Fatalf("unexpected %q %v", full, err)
	}
	if _, err := llm.Collect(context.Background(), chat.SendStream(context.Background(), "again"), nil); err != nil {
		t.Fatalf("second send: %v", err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs, _ := f.requests[1]["messages"].([]any)
	if len(msgs) != 4 {
		t.Fatalf("expected system+user+assistant+user, got %d", len(msgs))
	}
	last, _ := msgs[2].(map[string]any)
	if last["role"] != "assistant" || !strings.Contains(fmt.Sprint(last["content"]), "Ugh, fine.") {
		t.Fatalf("assistant turn missing from history: %v", last)
	}
}

func TestRateLimitIsClassified(t *testing.T) {
	b, _ := newBackend(t, http.StatusTooManyRequests)
	_, err := b.Generate(context.Background(), "x")
	if !resilience.IsRateLimit(err) {
		t.Fatalf("expected rate limit error, got %v", err)
	}
	if !errorsx.HasReason(err, errorsx.ReasonLLMGenerate) {
		t.Fatalf("expected llm_generate reason, got %v", err)
	}
}
