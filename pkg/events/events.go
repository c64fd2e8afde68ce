// Package events defines the tagged messages the relay sends to the browser.
// Each event is encoded as one JSON text frame of the form {"type": "...", ...}.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Type names an event kind on the caller connection.
type Type string

const (
	TypeEndOfTurnTranscript       Type = "EndOfTurnTranscript"
	TypeCalculationSkillActivated Type = "CalculationSkillActivated"
	TypeMovieSkillActivated       Type = "MovieSkillActivated"
	TypeLLMStreamChunk            Type = "LLMStreamChunk"
	TypeLLMStreamComplete         Type = "LLMStreamComplete"
	TypeLLMStreamError            Type = "LLMStreamError"
	TypeMurfAudioChunk            Type = "MurfAudioChunk"
	TypeMurfStreamComplete        Type = "MurfStreamComplete"
	TypeMurfStreamError           Type = "MurfStreamError"
	TypeAPIKeyError               Type = "APIKeyError"
)

// Event is a single caller-bound message. Only the fields relevant to Type are
// encoded.
type Event struct {
	Type             Type   `json:"type"`
	Text             string `json:"text,omitempty"`
	Query            string `json:"query,omitempty"`
	MovieName        string `json:"movie_name,omitempty"`
	CompleteResponse string `json:"complete_response,omitempty"`
	Error            string `json:"error,omitempty"`
	Audio            string `json:"audio,omitempty"`
	TotalChunks      *int   `json:"total_chunks,omitempty"`
}

// Emitter delivers events to the caller in call order.
type Emitter interface {
	Emit(ev Event) error
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(ev Event) error

func (f EmitterFunc) Emit(ev Event) error { return f(ev) }

func EndOfTurnTranscript(text string) Event {
	return Event{Type: TypeEndOfTurnTranscript, Text: text}
}

func CalculationSkillActivated(query string) Event {
	return Event{Type: TypeCalculationSkillActivated, Query: query}
}

func MovieSkillActivated(movieName string) Event {
	return Event{Type: TypeMovieSkillActivated, MovieName: movieName}
}

func LLMStreamChunk(text string) Event {
	return Event{Type: TypeLLMStreamChunk, Text: text}
}

func LLMStreamComplete(full string) Event {
	return Event{Type: TypeLLMStreamComplete, CompleteResponse: full}
}

func LLMStreamError(err error) Event {
	return Event{Type: TypeLLMStreamError, Error: errorText(err)}
}

// MurfAudioChunk carries base64 audio exactly as received from synthesis.
func MurfAudioChunk(audioB64 string) Event {
	return Event{Type: TypeMurfAudioChunk, Audio: audioB64}
}

func MurfStreamComplete(totalChunks int) Event {
	n := totalChunks
	return Event{Type: TypeMurfStreamComplete, TotalChunks: &n}
}

func MurfStreamError(err error) Event {
	return Event{Type: TypeMurfStreamError, Error: errorText(err)}
}

func APIKeyError(message string) Event {
	return Event{Type: TypeAPIKeyError, Error: message}
}

// Encode marshals an event into a single JSON text frame.
func Encode(ev Event) ([]byte, error) {
	if ev.Type == "" {
		return nil, errors.New("events: missing type")
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("events: encode %s: %w", ev.Type, err)
	}
	return b, nil
}

// Decode parses a JSON text frame back into an event.
func Decode(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("events: decode: %w", err)
	}
	if ev.Type == "" {
		return Event{}, errors.New("events: missing type")
	}
	return ev, nil
}

func errorText(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
