package tts

import "context"

// Request is one atomic synthesis call for a complete reply.
type Request struct {
	Text      string
	ContextID string
}

// ChunkFunc receives base64 audio payloads in the order the service produced them.
type ChunkFunc func(audioB64 string) error

// Synthesizer turns a complete reply into streamed audio. Each call opens its
// own upstream connection.
type Synthesizer interface {
	// Name returns adapter name for logging/metrics.
	Name() string
	// Synthesize streams audio for req to onChunk until the service marks the
	// stream final, and returns the number of chunks delivered.
	Synthesize(ctx context.Context, req Request, onChunk ChunkFunc) (int, error)
}

// Config contains vendor-agnostic TTS configuration.
type Config struct {
	SessionID  string
	APIKey     string
	SampleRate int
	Channels   int
	VoiceID    string
	Style      string
	Locale     string
}
