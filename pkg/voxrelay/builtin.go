package voxrelay

import (
	"context"
	"fmt"
	"time"

	"github.com/harunnryd/voxrelay/pkg/adapters/stt"
	"github.com/harunnryd/voxrelay/pkg/adapters/tts"
	"github.com/harunnryd/voxrelay/pkg/configutil"
	"github.com/harunnryd/voxrelay/pkg/llm"
	"github.com/harunnryd/voxrelay/pkg/providers/assemblyai"
	"github.com/harunnryd/voxrelay/pkg/providers/deepgram"
	"github.com/harunnryd/voxrelay/pkg/providers/elevenlabs"
	"github.com/harunnryd/voxrelay/pkg/providers/gemini"
	"github.com/harunnryd/voxrelay/pkg/providers/mock"
	"github.com/harunnryd/voxrelay/pkg/providers/murf"
	"github.com/harunnryd/voxrelay/pkg/providers/openai"
	"github.com/harunnryd/voxrelay/pkg/providers/tmdb"
	"github.com/harunnryd/voxrelay/pkg/resilience"
	"github.com/harunnryd/voxrelay/pkg/skills"
)

type assemblyAISettings struct {
	URL         string        `mapstructure:"url"`
	SampleRate  int           `mapstructure:"sample_rate"`
	FormatTurns *bool         `mapstructure:"format_turns"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

type deepgramSettings struct {
	Model          string `mapstructure:"model"`
	Language       string `mapstructure:"language"`
	SampleRate     int    `mapstructure:"sample_rate"`
	Encoding       string `mapstructure:"encoding"`
	UtteranceEndMS *int   `mapstructure:"utterance_end_ms"`
}

type mockSTTSettings struct {
	Transcripts []string `mapstructure:"transcripts"`
	HoldOpen    *bool    `mapstructure:"hold_open"`
}

type murfSettings struct {
	URL         string        `mapstructure:"url"`
	VoiceID     string        `mapstructure:"voice_id"`
	Style       string        `mapstructure:"style"`
	Locale      string        `mapstructure:"locale"`
	SampleRate  int           `mapstructure:"sample_rate"`
	ChannelType string        `mapstructure:"channel_type"`
	Format      string        `mapstructure:"format"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

type elevenLabsSettings struct {
	BaseURL      string        `mapstructure:"base_url"`
	VoiceID      string        `mapstructure:"voice_id"`
	ModelID      string        `mapstructure:"model_id"`
	OutputFormat string        `mapstructure:"output_format"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
}

type mockTTSSettings struct {
	Chunks []string `mapstructure:"chunks"`
}

// BreakerSettings configures the circuit breaker shared by every session of a vendor.
type BreakerSettings struct {
	BreakerThreshold *int          `mapstructure:"breaker_threshold"`
	BreakerCooldown  time.Duration `mapstructure:"breaker_cooldown"`
}

func (b BreakerSettings) breaker() *resilience.CircuitBreaker {
	return resilience.NewCircuitBreaker(
		configutil.IntValue(b.BreakerThreshold, 3),
		configutil.DurationValue(&b.BreakerCooldown, 30*time.Second),
	)
}

type geminiSettings struct {
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`

	BreakerSettings `mapstructure:",squash"`
}

type openAISettings struct {
	Model      string        `mapstructure:"model"`
	BaseURL    string        `mapstructure:"base_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries *int          `mapstructure:"max_retries"`

	BreakerSettings `mapstructure:",squash"`
}

type mockLLMSettings struct {
	StreamChunks []string `mapstructure:"stream_chunks"`
	ResponseText string   `mapstructure:"response_text"`
}

type tmdbSettings struct {
	BaseURL      string        `mapstructure:"base_url"`
	Language     string        `mapstructure:"language"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxRetries   *int          `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`

	BreakerSettings `mapstructure:",squash"`
}

type mockLookupSettings struct {
	Titles map[string]string `mapstructure:"titles"`
}

var breakerKeys = []string{"breaker_threshold", "breaker_cooldown"}

func validateSettings(path string, settings map[string]any, schema configutil.Schema) error {
	if err := configutil.ValidateSettings(settings, schema); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func decode(path string, settings map[string]any, schema configutil.Schema, out any) error {
	if err := validateSettings(path, settings, schema); err != nil {
		return err
	}
	if err := configutil.DecodeSettings(settings, out); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// RegisterBuiltins registers every vendor shipped with voxrelay.
func RegisterBuiltins(reg *ProviderRegistry) {
	registerSTT(reg)
	registerTTS(reg)
	registerLLM(reg)
	registerLookup(reg)
}

func registerSTT(reg *ProviderRegistry) {
	reg.RegisterSTT("assemblyai", func(settings map[string]any, _ FactoryEnv) (STTConstructor, error) {
		var s assemblyAISettings
		if err := decode("vendors.stt.settings", settings, configutil.Schema{
			Optional: []string{"url", "sample_rate", "format_turns", "dial_timeout"},
		}, &s); err != nil {
			return nil, err
		}
		formatTurns := configutil.BoolValue(s.FormatTurns, true)
		return func(sessionID, apiKey string) (stt.StreamingSTT, error) {
			return assemblyai.New(assemblyai.Config{
				APIKey:      apiKey,
				URL:         s.URL,
				SampleRate:  s.SampleRate,
				FormatTurns: formatTurns,
				SessionID:   sessionID,
				DialTimeout: s.DialTimeout,
			}), nil
		}, nil
	})

	reg.RegisterSTT("deepgram", func(settings map[string]any, _ FactoryEnv) (STTConstructor, error) {
		var s deepgramSettings
		if err := decode("vendors.stt.settings", settings, configutil.Schema{
			Optional: []string{"model", "language", "sample_rate", "encoding", "utterance_end_ms"},
		}, &s); err != nil {
			return nil, err
		}
		if s.Encoding != "" && s.Encoding != "linear16" && s.Encoding != "mulaw" {
			return nil, fmt.Errorf("vendors.stt.settings.encoding must be one of [linear16, mulaw], got %s", s.Encoding)
		}
		utteranceEnd := configutil.IntValue(s.UtteranceEndMS, 1000)
		if utteranceEnd < 0 || utteranceEnd > 5000 {
			return nil, fmt.Errorf("vendors.stt.settings.utterance_end_ms must be between 0 and 5000, got %d", utteranceEnd)
		}
		return func(sessionID, apiKey string) (stt.StreamingSTT, error) {
			return deepgram.New(deepgram.Config{
				APIKey:         apiKey,
				Model:          s.Model,
				Language:       s.Language,
				SampleRate:     s.SampleRate,
				Encoding:       s.Encoding,
				UtteranceEndMS: utteranceEnd,
				SessionID:      sessionID,
			}), nil
		}, nil
	})

	reg.RegisterSTT("mock", func(settings map[string]any, _ FactoryEnv) (STTConstructor, error) {
		var s mockSTTSettings
		if err := decode("vendors.stt.settings", settings, configutil.Schema{
			Optional: []string{"transcripts", "hold_open"},
		}, &s); err != nil {
			return nil, err
		}
		holdOpen := configutil.BoolValue(s.HoldOpen, true)
		return func(string, string) (stt.StreamingSTT, error) {
			events := make([]stt.Event, 0, len(s.Transcripts))
			for _, text := range s.Transcripts {
				events = append(events, mock.Turn(text))
			}
			return mock.NewSTT(mock.STTConfig{Events: events, HoldOpen: holdOpen}), nil
		}, nil
	})
}

func registerTTS(reg *ProviderRegistry) {
	reg.RegisterTTS("murf", func(settings map[string]any, _ FactoryEnv) (TTSConstructor, error) {
		var s murfSettings
		if err := decode("vendors.tts.settings", settings, configutil.Schema{
			Optional: []string{"url", "voice_id", "style", "locale", "sample_rate", "channel_type", "format", "dial_timeout"},
		}, &s); err != nil {
			return nil, err
		}
		return func(sessionID, apiKey string) (tts.Synthesizer, error) {
			return murf.New(murf.Config{
				APIKey:      apiKey,
				URL:         s.URL,
				SampleRate:  s.SampleRate,
				ChannelType: s.ChannelType,
				Format:      s.Format,
				VoiceID:     s.VoiceID,
				Style:       s.Style,
				Locale:      s.Locale,
				SessionID:   sessionID,
				DialTimeout: s.DialTimeout,
			}), nil
		}, nil
	})

	reg.RegisterTTS("elevenlabs", func(settings map[string]any, _ FactoryEnv) (TTSConstructor, error) {
		var s elevenLabsSettings
		if err := decode("vendors.tts.settings", settings, configutil.Schema{
			Required: []string{"voice_id"},
			Optional: []string{"base_url", "model_id", "output_format", "dial_timeout"},
		}, &s); err != nil {
			return nil, err
		}
		return func(sessionID, apiKey string) (tts.Synthesizer, error) {
			return elevenlabs.New(elevenlabs.Config{
				APIKey:       apiKey,
				BaseURL:      s.BaseURL,
				VoiceID:      s.VoiceID,
				ModelID:      s.ModelID,
				OutputFormat: s.OutputFormat,
				SessionID:    sessionID,
				DialTimeout:  s.DialTimeout,
			}), nil
		}, nil
	})

	reg.RegisterTTS("mock", func(settings map[string]any, _ FactoryEnv) (TTSConstructor, error) {
		var s mockTTSSettings
		if err := decode("vendors.tts.settings", settings, configutil.Schema{
			Optional: []string{"chunks"},
		}, &s); err != nil {
			return nil, err
		}
		return func(string, string) (tts.Synthesizer, error) {
			return mock.NewTTS(mock.TTSConfig{Chunks: s.Chunks}), nil
		}, nil
	})
}

func registerLLM(reg *ProviderRegistry) {
	reg.RegisterLLM("gemini", func(settings map[string]any, env FactoryEnv) (LLMConstructor, error) {
		var s geminiSettings
		if err := decode("vendors.llm.settings", settings, configutil.Schema{
			Optional: append([]string{"model", "base_url"}, breakerKeys...),
		}, &s); err != nil {
			return nil, err
		}
		breaker := s.breaker()
		return func(_, apiKey string) (llm.Backend, error) {
			backend, err := gemini.New(context.Background(), gemini.Config{
				APIKey:  apiKey,
				Model:   s.Model,
				BaseURL: s.BaseURL,
			})
			if err != nil {
				return nil, err
			}
			wrapped := llm.NewCircuitBreakerBackend(backend, breaker)
			wrapped.SetObserver(env.Observer)
			return wrapped, nil
		}, nil
	})

	reg.RegisterLLM("openai", func(settings map[string]any, env FactoryEnv) (LLMConstructor, error) {
		var s openAISettings
		if err := decode("vendors.llm.settings", settings, configutil.Schema{
			Optional: append([]string{"model", "base_url", "timeout", "max_retries"}, breakerKeys...),
		}, &s); err != nil {
			return nil, err
		}
		breaker := s.breaker()
		maxRetries := configutil.IntValue(s.MaxRetries, 2)
		return func(_, apiKey string) (llm.Backend, error) {
			backend, err := openai.New(openai.Config{
				APIKey:     apiKey,
				Model:      s.Model,
				BaseURL:    s.BaseURL,
				Timeout:    s.Timeout,
				MaxRetries: maxRetries,
			})
			if err != nil {
				return nil, err
			}
			wrapped := llm.NewCircuitBreakerBackend(backend, breaker)
			wrapped.SetObserver(env.Observer)
			return wrapped, nil
		}, nil
	})

	reg.RegisterLLM("mock", func(settings map[string]any, _ FactoryEnv) (LLMConstructor, error) {
		var s mockLLMSettings
		if err := decode("vendors.llm.settings", settings, configutil.Schema{
			Optional: []string{"stream_chunks", "response_text"},
		}, &s); err != nil {
			return nil, err
		}
		return func(string, string) (llm.Backend, error) {
			return mock.NewLLM(mock.LLMConfig{StreamChunks: s.StreamChunks, ResponseText: s.ResponseText}), nil
		}, nil
	})
}

func registerLookup(reg *ProviderRegistry) {
	reg.RegisterLookup("tmdb", func(settings map[string]any, _ FactoryEnv) (LookupConstructor, error) {
		var s tmdbSettings
		if err := decode("vendors.lookup.settings", settings, configutil.Schema{
			Optional: append([]string{"base_url", "language", "timeout", "max_retries", "retry_backoff"}, breakerKeys...),
		}, &s); err != nil {
			return nil, err
		}
		breaker := s.breaker()
		retry := resilience.NewRetryPolicy(configutil.IntValue(s.MaxRetries, 1), s.RetryBackoff)
		return func(_, apiKey string) (skills.MovieLookup, error) {
			// Without a key the dialogue skill answers from its built-in table.
			if apiKey == "" {
				return nil, nil
			}
			return tmdb.New(tmdb.Config{
				APIKey:   apiKey,
				BaseURL:  s.BaseURL,
				Language: s.Language,
				Timeout:  s.Timeout,
			}, tmdb.WithBreaker(breaker), tmdb.WithRetryPolicy(retry)), nil
		}, nil
	})

	reg.RegisterLookup("mock", func(settings map[string]any, _ FactoryEnv) (LookupConstructor, error) {
		var s mockLookupSettings
		if err := decode("vendors.lookup.settings", settings, configutil.Schema{
			Optional: []string{"titles"},
		}, &s); err != nil {
			return nil, err
		}
		return func(string, string) (skills.MovieLookup, error) {
			return &mock.MovieLookup{Titles: s.Titles}, nil
		}, nil
	})

	reg.RegisterLookup("none", func(settings map[string]any, _ FactoryEnv) (LookupConstructor, error) {
		if err := validateSettings("vendors.lookup.settings", settings, configutil.Schema{}); err != nil {
			return nil, err
		}
		return func(string, string) (skills.MovieLookup, error) { return nil, nil }, nil
	})
}
