package voxrelay

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/harunnryd/voxrelay/pkg/adapters/stt"
	"github.com/harunnryd/voxrelay/pkg/adapters/tts"
	"github.com/harunnryd/voxrelay/pkg/llm"
	"github.com/harunnryd/voxrelay/pkg/metrics"
	"github.com/harunnryd/voxrelay/pkg/pipeline"
	"github.com/harunnryd/voxrelay/pkg/skills"
)

// FactoryEnv carries process-wide collaborators into provider factories.
type FactoryEnv struct {
	Logger   *slog.Logger
	Observer metrics.Observer
}

// Per-session constructors. apiKey is the resolved credential for the
// vendor's service; vendors that do not need one ignore it.
type (
	STTConstructor    func(sessionID, apiKey string) (stt.StreamingSTT, error)
	TTSConstructor    func(sessionID, apiKey string) (tts.Synthesizer, error)
	LLMConstructor    func(sessionID, apiKey string) (llm.Backend, error)
	LookupConstructor func(sessionID, apiKey string) (skills.MovieLookup, error)
)

// Factory builders validate vendor settings once at startup and return the
// per-session constructor.
type (
	STTFactoryBuilder    func(settings map[string]any, env FactoryEnv) (STTConstructor, error)
	TTSFactoryBuilder    func(settings map[string]any, env FactoryEnv) (TTSConstructor, error)
	LLMFactoryBuilder    func(settings map[string]any, env FactoryEnv) (LLMConstructor, error)
	LookupFactoryBuilder func(settings map[string]any, env FactoryEnv) (LookupConstructor, error)
)

type ProviderRegistry struct {
	stt    map[string]STTFactoryBuilder
	tts    map[string]TTSFactoryBuilder
	llm    map[string]LLMFactoryBuilder
	lookup map[string]LookupFactoryBuilder
}

func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		stt:    make(map[string]STTFactoryBuilder),
		tts:    make(map[string]TTSFactoryBuilder),
		llm:    make(map[string]LLMFactoryBuilder),
		lookup: make(map[string]LookupFactoryBuilder),
	}
}

func providerKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (r *ProviderRegistry) RegisterSTT(name string, factory STTFactoryBuilder) {
	r.stt[providerKey(name)] = factory
}

func (r *ProviderRegistry) RegisterTTS(name string, factory TTSFactoryBuilder) {
	r.tts[providerKey(name)] = factory
}

func (r *ProviderRegistry) RegisterLLM(name string, factory LLMFactoryBuilder) {
	r.llm[providerKey(name)] = factory
}

func (r *ProviderRegistry) RegisterLookup(name string, factory LookupFactoryBuilder) {
	r.lookup[providerKey(name)] = factory
}

// Names lists the registered providers of one kind ("stt", "tts", "llm" or
// "lookup"), sorted.
func (r *ProviderRegistry) Names(kind string) []string {
	var keys []string
	switch kind {
	case "stt":
		for k := range r.stt {
			keys = append(keys, k)
		}
	case "tts":
		for k := range r.tts {
			keys = append(keys, k)
		}
	case "llm":
		for k := range r.llm {
			keys = append(keys, k)
		}
	case "lookup":
		for k := range r.lookup {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Build resolves every configured vendor into a Providers set.
func (r *ProviderRegistry) Build(cfg VendorsConfig, env FactoryEnv) (*Providers, error) {
	if env.Logger == nil {
		env.Logger = slog.Default()
	}
	if env.Observer == nil {
		env.Observer = metrics.NoopObserver{}
	}
	sttName := providerKey(cfg.STT.Provider)
	sttBuilder := r.stt[sttName]
	if sttBuilder == nil {
		return nil, fmt.Errorf("stt provider not registered: %s", cfg.STT.Provider)
	}
	ttsName := providerKey(cfg.TTS.Provider)
	ttsBuilder := r.tts[ttsName]
	if ttsBuilder == nil {
		return nil, fmt.Errorf("tts provider not registered: %s", cfg.TTS.Provider)
	}
	llmName := providerKey(cfg.LLM.Provider)
	llmBuilder := r.llm[llmName]
	if llmBuilder == nil {
		return nil, fmt.Errorf("llm provider not registered: %s", cfg.LLM.Provider)
	}
	lookupName := providerKey(cfg.Lookup.Provider)
	if lookupName == "" {
		lookupName = "none"
	}
	lookupBuilder := r.lookup[lookupName]
	if lookupBuilder == nil {
		return nil, fmt.Errorf("lookup provider not registered: %s", cfg.Lookup.Provider)
	}

	p := &Providers{names: map[string]string{
		"stt": sttName, "tts": ttsName, "llm": llmName, "lookup": lookupName,
	}}
	var err error
	if p.stt, err = sttBuilder(cfg.STT.Settings, env); err != nil {
		return nil, fmt.Errorf("vendors.stt (%s): %w", sttName, err)
	}
	if p.tts, err = ttsBuilder(cfg.TTS.Settings, env); err != nil {
		return nil, fmt.Errorf("vendors.tts (%s): %w", ttsName, err)
	}
	if p.llm, err = llmBuilder(cfg.LLM.Settings, env); err != nil {
		return nil, fmt.Errorf("vendors.llm (%s): %w", llmName, err)
	}
	if p.lookup, err = lookupBuilder(cfg.Lookup.Settings, env); err != nil {
		return nil, fmt.Errorf("vendors.lookup (%s): %w", lookupName, err)
	}
	return p, nil
}

// Providers implements pipeline.Providers over the configured vendors.
type Providers struct {
	stt    STTConstructor
	tts    TTSConstructor
	llm    LLMConstructor
	lookup LookupConstructor
	names  map[string]string
}

var _ pipeline.Providers = (*Providers)(nil)

func (p *Providers) NewSTT(sessionID string, creds pipeline.Credentials) (stt.StreamingSTT, error) {
	return p.stt(sessionID, creds.Transcription)
}

func (p *Providers) NewTTS(sessionID string, creds pipeline.Credentials) (tts.Synthesizer, error) {
	return p.tts(sessionID, creds.Synthesis)
}

func (p *Providers) NewLLM(sessionID string, creds pipeline.Credentials) (llm.Backend, error) {
	return p.llm(sessionID, creds.LanguageModel)
}

func (p *Providers) NewLookup(sessionID string, creds pipeline.Credentials) (skills.MovieLookup, error) {
	if p.lookup == nil {
		return nil, nil
	}
	return p.lookup(sessionID, creds.MovieLookup)
}

// Names reports the resolved provider per kind.
func (p *Providers) Names() map[string]string {
	out := make(map[string]string, len(p.names))
	for k, v := range p.names {
		out[k] = v
	}
	return out
}
