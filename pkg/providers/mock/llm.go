package mock

import (
	"context"
	"iter"
	"sync"

	"github.com/harunnryd/voxrelay/pkg/llm"
)

type LLMConfig struct {
	// StreamChunks are yielded for every chat message.
	StreamChunks []string
	StreamErr    error
	// ResponseText is returned by Generate.
	ResponseText string
	GenerateErr  error
	NewChatErr   error
}

// Backend is a scripted llm.Backend that records prompts and chat messages.
type Backend struct {
	cfg LLMConfig

	mu           sync.Mutex
	chats        int
	instructions []string
	messages     []string
	prompts      []string
}

func NewLLM(cfg LLMConfig) *Backend {
	if cfg.ResponseText == "" {
		cfg.ResponseText = "mock response"
	}
	if cfg.StreamChunks == nil {
		cfg.StreamChunks = []string{"mock ", "reply"}
	}
	return &Backend{cfg: cfg}
}

func (b *Backend) Name() string { return "mock" }

func (b *Backend) Generate(_ context.Context, prompt string) (string, error) {
	b.mu.Lock()
	b.prompts = append(b.prompts, prompt)
	b.mu.Unlock()
	if b.cfg.GenerateErr != nil {
		return "", b.cfg.GenerateErr
	}
	return b.cfg.ResponseText, nil
}

func (b *Backend) NewChat(_ context.Context, systemInstruction string) (llm.ChatSession, error) {
	if b.cfg.NewChatErr != nil {
		return nil, b.cfg.NewChatErr
	}
	b.mu.Lock()
	b.chats++
	b.instructions = append(b.instructions, systemInstruction)
	b.mu.Unlock()
	return &chat{parent: b}, nil
}

type chat struct {
	parent *Backend
}

func (c *chat) SendStream(_ context.Context, message string) iter.Seq2[string, error] {
	c.parent.mu.Lock()
	c.parent.messages = append(c.parent.messages, message)
	c.parent.mu.Unlock()
	return llm.Fragments(c.parent.cfg.StreamErr, c.parent.cfg.StreamChunks...)
}

// Chats returns how many chat sessions were opened.
func (b *Backend) Chats() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.chats
}

// Instructions returns the system instructions given to NewChat.
func (b *Backend) Instructions() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.instructions...)
}

// Messages returns every chat message sent.
func (b *Backend) Messages() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.messages...)
}

// Prompts returns every one-shot prompt.
func (b *Backend) Prompts() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.prompts...)
}

var _ llm.Backend = (*Backend)(nil)
