package observers

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/harunnryd/voxrelay/pkg/metrics"
)

// UsageSummary is the per-session vendor usage written when a session ends.
type UsageSummary struct {
	SessionID      string         `json:"session_id"`
	AudioBytesIn   int64          `json:"audio_bytes_in"`
	Turns          int            `json:"turns"`
	TurnsByRoute   map[string]int `json:"turns_by_route,omitempty"`
	ReplyChars     int            `json:"reply_chars"`
	AudioChunksOut int            `json:"audio_chunks_out"`
	RecordedAtUTC  string         `json:"recorded_at_utc"`
}

// UsageObserver aggregates per-session usage and writes <session>.usage.json
// into dir on session_end.
type UsageObserver struct {
	dir   string
	mu    sync.Mutex
	stats map[string]*UsageSummary
}

func NewUsageObserver(dir string) *UsageObserver {
	return &UsageObserver{dir: dir, stats: make(map[string]*UsageSummary)}
}

func (o *UsageObserver) RecordEvent(ev metrics.MetricsEvent) {
	if strings.TrimSpace(o.dir) == "" {
		return
	}
	id := ev.Tags[metrics.TagSessionID]
	if id == "" {
		return
	}
	o.mu.Lock()
	stat := o.stats[id]
	if stat == nil {
		stat = &UsageSummary{SessionID: id, TurnsByRoute: map[string]int{}}
		o.stats[id] = stat
	}
	switch ev.Name {
	case metrics.EventTurnRouted:
		stat.Turns++
		stat.TurnsByRoute[ev.Tags[metrics.TagRoute]]++
	case metrics.EventReplyComplete:
		stat.ReplyChars += int(ev.Value)
	case metrics.EventTTSComplete:
		stat.AudioChunksOut += int(ev.Value)
	case metrics.EventSessionEnd:
		stat.AudioBytesIn = intField(ev.Fields, "audio_bytes_in")
		delete(o.stats, id)
		o.mu.Unlock()
		_ = o.write(stat)
		return
	}
	o.mu.Unlock()
}

// Close writes summaries for sessions that never reported session_end.
func (o *UsageObserver) Close() error {
	o.mu.Lock()
	pending := o.stats
	o.stats = make(map[string]*UsageSummary)
	o.mu.Unlock()
	var errOut error
	for _, stat := range pending {
		errOut = errors.Join(errOut, o.write(stat))
	}
	return errOut
}

func (o *UsageObserver) write(stat *UsageSummary) error {
	if strings.TrimSpace(o.dir) == "" {
		return nil
	}
	if err := os.MkdirAll(o.dir, 0o755); err != nil {
		return err
	}
	stat.RecordedAtUTC = time.Now().UTC().Format(time.RFC3339)
	b, err := json.MarshalIndent(stat, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(o.dir, sanitizeID(stat.SessionID)+".usage.json")
	return os.WriteFile(path, b, 0o644)
}

func intField(fields map[string]any, key string) int64 {
	switch v := fields[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

var _ metrics.Observer = (*UsageObserver)(nil)
