package stt_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/harunnryd/voxrelay/pkg/adapters/stt"
	"github.com/harunnryd/voxrelay/pkg/providers/mock"
)

func TestTranscribeJoinsFinishedTurns(t *testing.T) {
	upstream := mock.NewSTT(mock.STTConfig{Events: []stt.Event{
		{Type: stt.EventBegin},
		{Type: stt.EventTurn, Transcript: "dune", Formatted: false},
		mock.Turn("Dune movie ka"),
		mock.Turn("  "),
		mock.Turn("dialogue batao."),
	}, HoldOpen: true})
	got, err := stt.Transcribe(context.Background(), upstream, make([]byte, 7000), stt.BatchOptions{Settle: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if got != "Dune movie ka dialogue batao." {
		t.Fatalf("unexpected transcript %q", got)
	}
	if n := len(upstream.Audio()); n != 3 {
		t.Fatalf("expected 3 frames, got %d", n)
	}
	if !upstream.Closed() {
		t.Fatalf("connection not closed")
	}
}

func TestTranscribeNothingHeard(t *testing.T) {
	upstream := mock.NewSTT(mock.STTConfig{Events: []stt.Event{{Type: stt.EventTermination}}})
	got, err := stt.Transcribe(context.Background(), upstream, []byte{1, 2}, stt.BatchOptions{})
	if err != nil || got != "" {
		t.Fatalf("expected empty transcript, got %q %v", got, err)
	}
}

func TestTranscribeStartFailure(t *testing.T) {
	boom := errors.New("dial refused")
	upstream := mock.NewSTT(mock.STTConfig{StartErr: boom})
	if _, err := stt.Transcribe(context.Background(), upstream, nil, stt.BatchOptions{}); !errors.Is(err, boom) {
		t.Fatalf("expected start error, got %v", err)
	}
}
