package llm

import (
	"context"
	"iter"
)

// Generator produces a single non-streaming completion.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// ChatSession is a stateful conversation. History is kept by the session and
// grows with every exchanged message.
type ChatSession interface {
	// SendStream sends one user message and yields reply fragments in order.
	// A non-nil error ends the sequence.
	SendStream(ctx context.Context, message string) iter.Seq2[string, error]
}

// Backend is a conversational language model.
type Backend interface {
	Generator
	// NewChat opens a conversation bound to systemInstruction.
	NewChat(ctx context.Context, systemInstruction string) (ChatSession, error)
	Name() string
}
