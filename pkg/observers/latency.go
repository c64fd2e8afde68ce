package observers

import (
	"log/slog"
	"sync"
	"time"

	"github.com/harunnryd/voxrelay/pkg/metrics"
)

// LatencyObserver logs per-turn time to first reply text and first audio.
type LatencyObserver struct {
	mu     sync.Mutex
	traces map[string]*trace
	log    *slog.Logger
}

type trace struct {
	route      string
	sttFinal   time.Time
	replyFirst time.Time
	ttsFirst   time.Time
}

func NewLatencyObserver(log *slog.Logger) *LatencyObserver {
	if log == nil {
		log = slog.Default()
	}
	return &LatencyObserver{
		traces: make(map[string]*trace),
		log:    log,
	}
}

func (o *LatencyObserver) RecordEvent(ev metrics.MetricsEvent) {
	sessionID := ev.Tags[metrics.TagSessionID]
	if sessionID == "" {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if ev.Name == metrics.EventSessionEnd {
		delete(o.traces, sessionID)
		return
	}
	t := o.traces[sessionID]
	if t == nil {
		if ev.Name != metrics.EventTurnFinal {
			return
		}
		t = &trace{}
		o.traces[sessionID] = t
	}
	switch ev.Name {
	case metrics.EventTurnFinal:
		*t = trace{sttFinal: ev.Time}
	case metrics.EventTurnRouted:
		t.route = ev.Tags[metrics.TagRoute]
	case metrics.EventReplyFirstChunk:
		if t.replyFirst.IsZero() {
			t.replyFirst = ev.Time
		}
	case metrics.EventTTSFirstAudio:
		if t.ttsFirst.IsZero() {
			t.ttsFirst = ev.Time
		}
	case metrics.EventTurnDone:
		o.logTTFBLocked(sessionID, t)
		delete(o.traces, sessionID)
	}
}

func (o *LatencyObserver) logTTFBLocked(sessionID string, t *trace) {
	o.log.Info("turn_latency",
		slog.String("session_id", sessionID),
		slog.String("route", t.route),
		slog.Int64("reply_first_chunk_ms", durationMs(t.sttFinal, t.replyFirst)),
		slog.Int64("tts_first_audio_ms", durationMs(t.replyFirst, t.ttsFirst)),
		slog.Int64("ttfb_ms", durationMs(t.sttFinal, t.ttsFirst)),
	)
}

func durationMs(a, b time.Time) int64 {
	if a.IsZero() || b.IsZero() {
		return -1
	}
	return b.Sub(a).Milliseconds()
}
