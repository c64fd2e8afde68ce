package voxrelay

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/harunnryd/voxrelay/pkg/pipeline"
	"github.com/harunnryd/voxrelay/pkg/transports/websocket"
)

type Config struct {
	Server        websocket.Config    `mapstructure:"server"`
	Vendors       VendorsConfig       `mapstructure:"vendors"`
	Credentials   CredentialsConfig   `mapstructure:"credentials"`
	Persona       string              `mapstructure:"persona"`
	Environment   string              `mapstructure:"environment"`
	LogLevel      string              `mapstructure:"log_level"`
	LogFormat     string              `mapstructure:"log_format"`
	Metrics       MetricsConfig       `mapstructure:"metrics"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Privacy       PrivacyConfig       `mapstructure:"privacy"`
	Shutdown      ShutdownConfig      `mapstructure:"shutdown"`
}

type VendorConfig struct {
	Provider string         `mapstructure:"provider"`
	Settings map[string]any `mapstructure:"settings"`
}

type VendorsConfig struct {
	STT    VendorConfig `mapstructure:"stt"`
	TTS    VendorConfig `mapstructure:"tts"`
	LLM    VendorConfig `mapstructure:"llm"`
	Lookup VendorConfig `mapstructure:"lookup"`
}

// CredentialsConfig holds the process-wide default keys used when a caller
// does not supply its own.
type CredentialsConfig struct {
	AssemblyAI string `mapstructure:"assemblyai"`
	Murf       string `mapstructure:"murf"`
	Gemini     string `mapstructure:"gemini"`
	TMDB       string `mapstructure:"tmdb"`
}

func (c CredentialsConfig) Defaults() pipeline.Credentials {
	return pipeline.Credentials{
		Transcription: c.AssemblyAI,
		Synthesis:     c.Murf,
		LanguageModel: c.Gemini,
		MovieLookup:   c.TMDB,
	}
}

type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Path      string `mapstructure:"path"`
	Namespace string `mapstructure:"namespace"`
}

type ObservabilityConfig struct {
	ArtifactsDir  string `mapstructure:"artifacts_dir"`
	RetentionDays int    `mapstructure:"retention_days"`
	// EventsFile, when set, receives every metrics event as one JSON line.
	EventsFile string  `mapstructure:"events_file"`
	SampleRate float64 `mapstructure:"sample_rate"`
	BufferSize int     `mapstructure:"buffer_size"`
}

type PrivacyConfig struct {
	RedactPII bool `mapstructure:"redact_pii"`
}

type ShutdownConfig struct {
	DrainTimeout time.Duration `mapstructure:"drain_timeout"`
}

// credentialEnv binds each default credential to its environment variable.
var credentialEnv = map[string]string{
	"credentials.assemblyai": "ASSEMBLYAI_API_KEY",
	"credentials.murf":       "MURF_API_KEY",
	"credentials.gemini":     "GEMINI_API_KEY",
	"credentials.tmdb":       "TMDB_API_KEY",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.ws_path", "/ws")
	v.SetDefault("server.static_dir", "static")
	v.SetDefault("server.allow_any_origin", true)
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.send_buffer", 256)
	v.SetDefault("vendors.stt.provider", "assemblyai")
	v.SetDefault("vendors.tts.provider", "murf")
	v.SetDefault("vendors.llm.provider", "gemini")
	v.SetDefault("vendors.lookup.provider", "tmdb")
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.namespace", "voxrelay")
	v.SetDefault("observability.artifacts_dir", "")
	v.SetDefault("observability.retention_days", 0)
	v.SetDefault("observability.events_file", "")
	v.SetDefault("observability.sample_rate", 1.0)
	v.SetDefault("observability.buffer_size", 2048)
	v.SetDefault("privacy.redact_pii", true)
	v.SetDefault("shutdown.drain_timeout", "10s")
}

// LoadConfig reads the YAML file at path (optional), applies defaults and
// environment overrides, and validates the result.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("VOXRELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range credentialEnv {
		if err := v.BindEnv(key, env); err != nil {
			return Config{}, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	if strings.TrimSpace(path) != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}
	cfg.Server.MetricsPath = cfg.Metrics.Path

	expandEnvStrings(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Vendors.STT.Provider) == "" {
		return fmt.Errorf("vendors.stt.provider is required")
	}
	if strings.TrimSpace(c.Vendors.TTS.Provider) == "" {
		return fmt.Errorf("vendors.tts.provider is required")
	}
	if strings.TrimSpace(c.Vendors.LLM.Provider) == "" {
		return fmt.Errorf("vendors.llm.provider is required")
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with '/', got %q", c.Metrics.Path)
	}
	if !strings.HasPrefix(c.Server.WebsocketPath, "/") {
		return fmt.Errorf("server.ws_path must start with '/', got %q", c.Server.WebsocketPath)
	}
	if c.Observability.SampleRate < 0 || c.Observability.SampleRate > 1 {
		return fmt.Errorf("observability.sample_rate must be between 0 and 1, got %v", c.Observability.SampleRate)
	}
	return nil
}

func expandEnvStrings(cfg *Config) {
	expandValue(reflect.ValueOf(cfg))
	cfg.Vendors.STT.Settings = expandSettings(cfg.Vendors.STT.Settings)
	cfg.Vendors.TTS.Settings = expandSettings(cfg.Vendors.TTS.Settings)
	cfg.Vendors.LLM.Settings = expandSettings(cfg.Vendors.LLM.Settings)
	cfg.Vendors.Lookup.Settings = expandSettings(cfg.Vendors.Lookup.Settings)
}

func expandSettings(settings map[string]any) map[string]any {
	if settings == nil {
		return nil
	}
	for k, v := range settings {
		settings[k] = expandAny(v)
	}
	return settings
}

func expandAny(v any) any {
	switch val := v.(type) {
	case string:
		return os.ExpandEnv(val)
	case []any:
		for i := range val {
			val[i] = expandAny(val[i])
		}
		return val
	case map[string]any:
		for k, v := range val {
			val[k] = expandAny(v)
		}
		return val
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, v := range val {
			ks, ok := k.(string)
			if !ok {
				continue
			}
			out[ks] = expandAny(v)
		}
		return out
	default:
		return v
	}
}

func expandValue(v reflect.Value) {
	if !v.IsValid() {
		return
	}
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return
		}
		expandValue(v.Elem())
		return
	}
	switch v.Kind() {
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			expandValue(v.Field(i))
		}
	case reflect.String:
		if v.CanSet() {
			v.SetString(os.ExpandEnv(v.String()))
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			expandValue(v.Index(i))
		}
	}
}
