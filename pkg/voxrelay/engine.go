package voxrelay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/harunnryd/voxrelay/pkg/llm"
	"github.com/harunnryd/voxrelay/pkg/logging"
	"github.com/harunnryd/voxrelay/pkg/metrics"
	"github.com/harunnryd/voxrelay/pkg/observers"
	"github.com/harunnryd/voxrelay/pkg/pipeline"
	"github.com/harunnryd/voxrelay/pkg/redact"
	"github.com/harunnryd/voxrelay/pkg/reply"
	"github.com/harunnryd/voxrelay/pkg/runner"
	"github.com/harunnryd/voxrelay/pkg/skills"
	"github.com/harunnryd/voxrelay/pkg/transports"
	"github.com/harunnryd/voxrelay/pkg/transports/websocket"
)

type EngineOptions struct {
	Config Config
	// Providers defaults to a registry holding the built-in vendors.
	Providers *ProviderRegistry
	// Transport overrides the websocket server. It must hand callers to
	// Engine.Pipeline itself.
	Transport transports.Transport
	Logger    *slog.Logger
	// Banner receives the startup banner; nil disables it.
	Banner io.Writer
}

// Engine wires configuration, observers, providers, the session pipeline and
// the caller transport into one process lifecycle.
type Engine struct {
	cfg       Config
	log       *slog.Logger
	providers *Providers
	pipeline  *pipeline.Pipeline
	transport transports.Transport
	runner    *runner.LifecycleRunner
	asyncObs  *metrics.AsyncObserver
	multiObs  *observers.MultiObserver
	closers   []io.Closer
	ctx       context.Context
}

func NewEngine(opts EngineOptions) (*Engine, error) {
	cfg := opts.Config
	log := opts.Logger
	if log == nil {
		log = logging.InitLogger(logging.LogConfig{Level: cfg.LogLevel, Format: cfg.LogFormat})
	}
	redact.SetEnabled(cfg.Privacy.RedactPII)

	log.Info("voxrelay_init",
		slog.String("environment", cfg.Environment),
		slog.String("stt_provider", cfg.Vendors.STT.Provider),
		slog.String("tts_provider", cfg.Vendors.TTS.Provider),
		slog.String("llm_provider", cfg.Vendors.LLM.Provider),
		slog.String("lookup_provider", cfg.Vendors.Lookup.Provider),
	)

	e := &Engine{cfg: cfg, log: log, ctx: context.Background()}

	var prom *metrics.PrometheusObserver
	obsList := []metrics.Observer{
		observers.NewLatencyObserver(logging.NewComponentLogger(log, "latency")),
		observers.NewLoggerObserver(logging.NewComponentLogger(log, "metrics")),
	}
	if cfg.Metrics.Enabled {
		prom = metrics.NewPrometheusObserver(cfg.Metrics.Namespace)
		obsList = append(obsList, prom)
	}
	if dir := strings.TrimSpace(cfg.Observability.ArtifactsDir); dir != "" {
		if cfg.Observability.RetentionDays > 0 {
			purged, err := observers.PurgeArtifacts(dir, time.Duration(cfg.Observability.RetentionDays)*24*time.Hour)
			if err != nil {
				log.Warn("artifact_purge_failed", slog.String("dir", dir), slog.String("error", err.Error()))
			} else if purged > 0 {
				log.Info("artifacts_purged", slog.String("dir", dir), slog.Int("count", purged))
			}
		}
		timeline := observers.NewTimelineObserver(dir)
		usage := observers.NewUsageObserver(dir)
		obsList = append(obsList, timeline, usage)
		e.closers = append(e.closers, timeline, usage)
	}
	if path := strings.TrimSpace(cfg.Observability.EventsFile); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open events file: %w", err)
		}
		obsList = append(obsList, metrics.NewJSONLObserver(f))
		e.closers = append(e.closers, f)
	}
	e.multiObs = observers.NewMultiObserver(obsList...)
	var root metrics.Observer = e.multiObs
	if cfg.Observability.SampleRate < 1 {
		root = metrics.NewSamplingObserver(root, cfg.Observability.SampleRate)
	}
	e.asyncObs = metrics.NewAsyncObserver(root, cfg.Observability.BufferSize)

	registry := opts.Providers
	if registry == nil {
		registry = NewProviderRegistry()
		RegisterBuiltins(registry)
	}
	providers, err := registry.Build(cfg.Vendors, FactoryEnv{
		Logger:   log,
		Observer: e.asyncObs,
	})
	if err != nil {
		e.asyncObs.Close()
		e.closeAll()
		return nil, err
	}
	e.providers = providers

	persona := cfg.Persona
	if strings.TrimSpace(persona) == "" {
		persona = reply.DefaultPersona
	}
	e.pipeline = pipeline.New(pipeline.Config{
		Defaults:  cfg.Credentials.Defaults(),
		Providers: providers,
		Persona:   persona,
		Logger:    logging.NewComponentLogger(log, "pipeline"),
		Observer:  e.asyncObs,
		OnState: pipeline.StateListenerFunc(func(ev pipeline.StateChange) {
			log.Debug("session_state",
				slog.String("session_id", ev.SessionID),
				slog.String("from", ev.FromState.String()),
				slog.String("to", ev.ToState.String()),
				slog.String("reason", ev.Reason),
			)
		}),
	})

	e.transport = opts.Transport
	if e.transport == nil {
		wsOpts := []websocket.Option{
			websocket.WithLogger(logging.NewComponentLogger(log, "websocket")),
			websocket.WithDialogue(e.testDialogue()),
			websocket.WithConverser(e.pipeline),
		}
		if prom != nil {
			wsOpts = append(wsOpts, websocket.WithMetricsHandler(prom.Handler()))
		}
		e.transport = websocket.New(cfg.Server, e.pipeline, wsOpts...)
	}

	e.runner = runner.NewLifecycleRunner(runner.DrainerFunc(e.drain), runner.Hooks{
		OnStart: e.start,
		OnStop:  e.flush,
	}, cfg.Shutdown.DrainTimeout)
	e.runner.Banner = opts.Banner
	return e, nil
}

// testDialogue builds the dialogue skill behind the movie test endpoint from
// the default credentials; without them it answers from the built-in table.
func (e *Engine) testDialogue() *skills.DialogueSkill {
	defaults := e.cfg.Credentials.Defaults()
	var generator llm.Generator
	if backend, err := e.providers.NewLLM("http", defaults); err == nil {
		generator = backend
	} else {
		e.log.Debug("test_dialogue_without_llm", slog.String("error", err.Error()))
	}
	lookup, err := e.providers.NewLookup("http", defaults)
	if err != nil {
		e.log.Debug("test_dialogue_without_lookup", slog.String("error", err.Error()))
		lookup = nil
	}
	return skills.NewDialogueSkill(lookup, generator, skills.WithDialogueLogger(e.log))
}

// Run blocks until ctx ends, then drains live sessions within the configured
// drain timeout.
func (e *Engine) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	e.ctx = ctx
	return e.runner.Run(ctx)
}

func (e *Engine) Stop() error {
	return e.runner.Stop()
}

func (e *Engine) start() error {
	// The listener outlives the run context so drain can stop it in order.
	if err := e.transport.Start(context.WithoutCancel(e.ctx)); err != nil {
		return err
	}
	attrs := []any{slog.String("transport", e.transport.Name())}
	if rr, ok := e.transport.(transports.ReadyReporter); ok {
		for k, v := range rr.ReadyFields() {
			attrs = append(attrs, slog.Any(k, v))
		}
	}
	for kind, name := range e.providers.Names() {
		attrs = append(attrs, slog.String(kind+"_provider", name))
	}
	e.log.Info("voxrelay_ready", attrs...)
	return nil
}

func (e *Engine) drain(ctx context.Context) error {
	registry := e.pipeline.Registry()
	e.log.Info("voxrelay_draining", slog.Int64("active_sessions", registry.Count()))
	registry.SetDraining(true)
	if err := e.transport.Drain(); err != nil {
		e.log.Warn("transport_drain_failed", slog.String("error", err.Error()))
	}
	registry.CloseAll()
	if !registry.WaitForEmpty(ctx, 50*time.Millisecond) {
		e.log.Warn("sessions_still_active", slog.Int64("active_sessions", registry.Count()))
	}
	if err := e.transport.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("stop transport: %w", err)
	}
	return nil
}

func (e *Engine) flush() {
	e.asyncObs.Close()
	if err := e.multiObs.Flush(); err != nil {
		e.log.Warn("observer_flush_failed", slog.String("error", err.Error()))
	}
	e.closeAll()
	e.log.Info("voxrelay_stopped")
}

func (e *Engine) closeAll() {
	for _, c := range e.closers {
		if err := c.Close(); err != nil {
			e.log.Warn("observer_close_failed", slog.String("error", err.Error()))
		}
	}
	e.closers = nil
}

func (e *Engine) Config() Config { return e.cfg }

func (e *Engine) Pipeline() *pipeline.Pipeline { return e.pipeline }

func (e *Engine) Transport() transports.Transport { return e.transport }

func (e *Engine) Providers() *Providers { return e.providers }

func (e *Engine) State() runner.State { return e.runner.State() }

func (e *Engine) Health() error {
	if e.transport == nil {
		return fmt.Errorf("missing transport")
	}
	if e.runner.State() != runner.StateRunning {
		return fmt.Errorf("engine %s", e.runner.State())
	}
	return nil
}
