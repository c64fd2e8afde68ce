// Package gemini adapts Google's Gemini API to the relay's chat backend.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"strings"

	"github.com/harunnryd/voxrelay/pkg/errorsx"
	"github.com/harunnryd/voxrelay/pkg/llm"
	"github.com/harunnryd/voxrelay/pkg/logging"
	"github.com/harunnryd/voxrelay/pkg/resilience"
	"google.golang.org/genai"
)

const DefaultModel = "gemini-2.5-flash"

type Config struct {
	APIKey  string
	Model   string
	BaseURL string
}

type Backend struct {
	client *genai.Client
	model  string
	logger *slog.Logger
}

func New(ctx context.Context, cfg Config) (*Backend, error) {
	if cfg.APIKey == "" {
		return nil, errorsx.Wrap(errors.New("gemini: missing api key"), errorsx.ReasonCredentialMissing)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, errorsx.Wrap(fmt.Errorf("gemini: new client: %w", err), errorsx.ReasonLLMGenerate)
	}
	return &Backend{
		client: client,
		model:  cfg.Model,
		logger: logging.NewComponentLogger(slog.Default(), "gemini"),
	}, nil
}

func (b *Backend) Name() string { return "gemini" }

func (b *Backend) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := b.client.Models.GenerateContent(ctx, b.model, genai.Text(prompt), nil)
	if err != nil {
		return "", errorsx.Wrap(classify(fmt.Errorf("gemini: generate: %w", err)), errorsx.ReasonLLMGenerate)
	}
	return strings.TrimSpace(resp.Text()), nil
}

func (b *Backend) NewChat(ctx context.Context, systemInstruction string) (llm.ChatSession, error) {
	var cfg *genai.GenerateContentConfig
	if systemInstruction != "" {
		cfg = &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(systemInstruction, genai.RoleUser),
		}
	}
	chat, err := b.client.Chats.Create(ctx, b.model, cfg, nil)
	if err != nil {
		return nil, errorsx.Wrap(fmt.Errorf("gemini: create chat: %w", err), errorsx.ReasonLLMGenerate)
	}
	b.logger.Debug("gemini_chat_created", slog.String("model", b.model))
	return &chatSession{chat: chat}, nil
}

type chatSession struct {
	chat *genai.Chat
}

// SendStream yields the text of every streamed response in order. The chat
// records both the message and the full reply in its history.
func (c *chatSession) SendStream(ctx context.Context, message string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for resp, err := range c.chat.SendMessageStream(ctx, genai.Part{Text: message}) {
			if err != nil {
				yield("", errorsx.Wrap(classify(fmt.Errorf("gemini: stream: %w", err)), errorsx.ReasonLLMStream))
				return
			}
			if !yield(resp.Text(), nil) {
				return
			}
		}
	}
}

func classify(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests {
		return resilience.RateLimitError{Provider: "gemini", Message: apiErr.Message}
	}
	return err
}

var _ llm.Backend = (*Backend)(nil)
