package observers

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/harunnryd/voxrelay/pkg/metrics"
)

func TestLatencyObserverLogsOnTurnDone(t *testing.T) {
	var buf bytes.Buffer
	obs := NewLatencyObserver(slog.New(slog.NewTextHandler(&buf, nil)))
	base := time.Now()
	emit := func(name string, d time.Duration, tags map[string]string) {
		ev := sessionEvent(name, "ws_3", tags)
		ev.Time = base.Add(d)
		obs.RecordEvent(ev)
	}
	emit(metrics.EventTurnFinal, 0, nil)
	emit(metrics.EventTurnRouted, 0, map[string]string{metrics.TagRoute: "chat"})
	emit(metrics.EventReplyFirstChunk, 200*time.Millisecond, nil)
	emit(metrics.EventTTSFirstAudio, 500*time.Millisecond, nil)
	emit(metrics.EventTurnDone, time.Second, nil)

	out := buf.String()
	for _, want := range []string{"turn_latency", "route=chat", "reply_first_chunk_ms=200", "tts_first_audio_ms=300", "ttfb_ms=500"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in %q", want, out)
		}
	}
}

func TestMultiObserverFansOut(t *testing.T) {
	a, b := metrics.NewMemoryObserver(), metrics.NewMemoryObserver()
	m := NewMultiObserver(a, nil)
	m.Add(b)
	m.RecordEvent(metrics.MetricsEvent{Name: metrics.EventSessionStart})
	if a.Count(metrics.EventSessionStart) != 1 || b.Count(metrics.EventSessionStart) != 1 {
		t.Fatalf("expected both observers to receive the event")
	}
}
