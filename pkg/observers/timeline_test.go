package observers

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/harunnryd/voxrelay/pkg/metrics"
)

func sessionEvent(name, id string, tags map[string]string) metrics.MetricsEvent {
	t := map[string]string{metrics.TagSessionID: id}
	for k, v := range tags {
		t[k] = v
	}
	return metrics.MetricsEvent{Name: name, Time: time.Now(), Tags: t}
}

func TestTimelineObserverWritesJSONL(t *testing.T) {
	dir := t.TempDir()
	obs := NewTimelineObserver(dir)

	obs.RecordEvent(sessionEvent(metrics.EventTurnRouted, "ws_1", map[string]string{metrics.TagRoute: "dialogue"}))
	obs.RecordEvent(sessionEvent(metrics.EventSessionEnd, "ws_1", nil))
	_ = obs.Close()

	b, err := os.ReadFile(filepath.Join(dir, "ws_1.jsonl"))
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var first timelineEvent
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if first.Event != metrics.EventTurnRouted || first.Tags[metrics.TagRoute] != "dialogue" {
		t.Fatalf("unexpected entry %+v", first)
	}
}

func TestTimelineObserverIgnoresUntagged(t *testing.T) {
	dir := t.TempDir()
	obs := NewTimelineObserver(dir)
	obs.RecordEvent(metrics.MetricsEvent{Name: metrics.EventTTSChunk, Time: time.Now()})
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("expected no files, got %d", len(entries))
	}
}

func TestUsageObserverWritesSummaryOnSessionEnd(t *testing.T) {
	dir := t.TempDir()
	obs := NewUsageObserver(dir)
	obs.RecordEvent(sessionEvent(metrics.EventTurnRouted, "ws_2", map[string]string{metrics.TagRoute: "arithmetic"}))
	reply := sessionEvent(metrics.EventReplyComplete, "ws_2", nil)
	reply.Value = 42
	obs.RecordEvent(reply)
	tts := sessionEvent(metrics.EventTTSComplete, "ws_2", nil)
	tts.Value = 3
	obs.RecordEvent(tts)
	end := sessionEvent(metrics.EventSessionEnd, "ws_2", nil)
	end.Fields = map[string]any{"audio_bytes_in": int64(3200)}
	obs.RecordEvent(end)

	b, err := os.ReadFile(filepath.Join(dir, "ws_2.usage.json"))
	if err != nil {
		t.Fatalf("read summary: %v", err)
	}
	var sum UsageSummary
	if err := json.Unmarshal(b, &sum); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sum.Turns != 1 || sum.TurnsByRoute["arithmetic"] != 1 || sum.ReplyChars != 42 || sum.AudioChunksOut != 3 || sum.AudioBytesIn != 3200 {
		t.Fatalf("unexpected summary %+v", sum)
	}
}

func TestPurgeArtifactsKeepsForeignFiles(t *testing.T) {
	dir := t.TempDir()
	old := time.Now().Add(-48 * time.Hour)
	for _, name := range []string{"ws_1.jsonl", "ws_1.usage.json", "notes.txt"} {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		_ = os.Chtimes(p, old, old)
	}
	n, err := PurgeArtifacts(dir, time.Hour)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 removed, got %d", n)
	}
	if _, err := os.Stat(filepath.Join(dir, "notes.txt")); err != nil {
		t.Fatalf("foreign file removed: %v", err)
	}
}

func TestPurgeArtifactsMissingDir(t *testing.T) {
	n, err := PurgeArtifacts(filepath.Join(t.TempDir(), "missing"), time.Hour)
	if err != nil || n != 0 {
		t.Fatalf("expected no-op, got %d %v", n, err)
	}
}
