package stt

import "context"

// EventType tags messages received from a transcription service.
type EventType string

const (
	EventBegin       EventType = "Begin"
	EventTurn        EventType = "Turn"
	EventTermination EventType = "Termination"
)

// Event is one upstream transcription message.
type Event struct {
	Type       EventType
	Transcript string
	// Formatted is set when the service has punctuated and cased a finished turn.
	Formatted bool
	EndOfTurn bool
}

// Final reports whether the event is a finished, formatted turn with text.
func (e Event) Final() bool {
	return e.Type == EventTurn && e.Formatted && e.Transcript != ""
}

// StreamingSTT is one upstream transcription connection, owned by one session.
type StreamingSTT interface {
	// Name returns adapter name for logging/metrics.
	Name() string
	// Start opens the upstream connection.
	Start(ctx context.Context) error
	// Close terminates the upstream session and releases the connection. It is
	// safe to call more than once.
	Close() error
	// SendAudio forwards raw caller audio unchanged.
	SendAudio(data []byte) error
	// Results yields upstream events in arrival order. It is closed when the
	// upstream connection ends.
	Results() <-chan Event
	// Err returns the error that ended the connection, if any.
	Err() error
}

// Config contains vendor-agnostic STT configuration.
type Config struct {
	SessionID  string
	APIKey     string
	SampleRate int
	Language   string
}
