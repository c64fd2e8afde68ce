// Package openai is an alternate chat backend using the OpenAI Chat Completions API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"strings"
	"sync"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/harunnryd/voxrelay/pkg/errorsx"
	"github.com/harunnryd/voxrelay/pkg/llm"
	"github.com/harunnryd/voxrelay/pkg/resilience"
)

const DefaultModel = "gpt-4o-mini"

type Config struct {
	APIKey     string
	Model      string
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
}

type Backend struct {
	client oai.Client
	model  string
}

func New(cfg Config) (*Backend, error) {
	if cfg.APIKey == "" {
		return nil, errorsx.Wrap(errors.New("openai: missing api key"), errorsx.ReasonCredentialMissing)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	reqOpts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
	}
	return &Backend{client: oai.NewClient(reqOpts...), model: cfg.Model}, nil
}

func (b *Backend) Name() string { return "openai" }

func (b *Backend) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := b.client.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(b.model),
		Messages: []oai.ChatCompletionMessageParamUnion{oai.UserMessage(prompt)},
	})
	if err != nil {
		return "", errorsx.Wrap(classify(fmt.Errorf("openai: chat completion: %w", err)), errorsx.ReasonLLMGenerate)
	}
	if len(resp.Choices) == 0 {
		return "", errorsx.Wrap(errors.New("openai: empty choices in response"), errorsx.ReasonLLMGenerate)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (b *Backend) NewChat(_ context.Context, systemInstruction string) (llm.ChatSession, error) {
	c := &chatSession{backend: b}
	if systemInstruction != "" {
		c.history = append(c.history, oai.SystemMessage(systemInstruction))
	}
	return c, nil
}

// chatSession keeps the conversation client-side; the API is stateless.
type chatSession struct {
	backend *Backend
	mu      sync.Mutex
	history []oai.ChatCompletionMessageParamUnion
}

func (c *chatSession) SendStream(ctx context.Context, message string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		c.mu.Lock()
		defer c.mu.Unlock()
		messages := append(c.history[:len(c.history):len(c.history)], oai.UserMessage(message))
		stream := c.backend.client.Chat.Completions.NewStreaming(ctx, oai.ChatCompletionNewParams{
			Model:    shared.ChatModel(c.backend.model),
			Messages: messages,
		})
		defer stream.Close()

		var reply strings.Builder
		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			text := chunk.Choices[0].Delta.Content
			reply.WriteString(text)
			if !yield(text, nil) {
				return
			}
		}
		if err := stream.Err(); err != nil {
			yield("", errorsx.Wrap(classify(fmt.Errorf("openai: stream: %w", err)), errorsx.ReasonLLMStream))
			return
		}
		c.history = append(messages, oai.AssistantMessage(reply.String()))
	}
}

func classify(err error) error {
	var apiErr *oai.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
		return resilience.RateLimitError{Provider: "openai", Message: apiErr.Message}
	}
	return err
}

var _ llm.Backend = (*Backend)(nil)
