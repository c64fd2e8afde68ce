package deepgram

import (
	"context"
	"testing"

	"github.com/harunnryd/voxrelay/pkg/adapters/stt"
	"github.com/harunnryd/voxrelay/pkg/errorsx"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
)

func result(transcript string, isFinal, speechFinal bool) *msginterfaces.MessageResponse {
	mr := &msginterfaces.MessageResponse{IsFinal: isFinal, SpeechFinal: speechFinal}
	if transcript != "" {
		mr.Channel.Alternatives = []msginterfaces.Alternative{{Transcript: transcript}}
	}
	return mr
}

func TestCallbackMessage(t *testing.T) {
	cases := []struct {
		name    string
		msg     *msginterfaces.MessageResponse
		emitted bool
		final   bool
	}{
		{"speech final", result("Two plus three.", true, true), true, true},
		{"is final only", result("two plus", true, false), true, false},
		{"interim", result("two", false, false), true, false},
		{"no alternatives", result("", true, true), false, false},
		{"empty transcript", &msginterfaces.MessageResponse{Channel: msginterfaces.Channel{Alternatives: []msginterfaces.Alternative{{}}}}, false, false},
	}
	for _, tc := range cases {
		s := New(Config{SessionID: "ws_1"})
		s.ctx = context.Background()
		cb := &callback{parent: s}
		if err := cb.Message(tc.msg); err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if !tc.emitted {
			if len(s.out) != 0 {
				t.Fatalf("%s: expected nothing emitted", tc.name)
			}
			continue
		}
		ev := <-s.out
		if ev.Type != stt.EventTurn || ev.Final() != tc.final {
			t.Fatalf("%s: unexpected event %+v", tc.name, ev)
		}
		if ev.Transcript != tc.msg.Channel.Alternatives[0].Transcript {
			t.Fatalf("%s: transcript altered: %q", tc.name, ev.Transcript)
		}
	}
}

func TestCallbackOpenAndClose(t *testing.T) {
	s := New(Config{})
	s.ctx = context.Background()
	cb := &callback{parent: s}
	_ = cb.Open(nil)
	_ = cb.Close(nil)
	if first, second := <-s.out, <-s.out; first.Type != stt.EventBegin || second.Type != stt.EventTermination {
		t.Fatalf("unexpected events %v %v", first, second)
	}
}

func TestStartMissingKey(t *testing.T) {
	if err := New(Config{}).Start(context.Background()); !errorsx.HasReason(err, errorsx.ReasonCredentialMissing) {
		t.Fatalf("expected credential_missing, got %v", err)
	}
}

func TestSendAudioBeforeStart(t *testing.T) {
	if err := New(Config{}).SendAudio([]byte{1}); !errorsx.HasReason(err, errorsx.ReasonSTTSend) {
		t.Fatalf("expected stt_send, got %v", err)
	}
}
