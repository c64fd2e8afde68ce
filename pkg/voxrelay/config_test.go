package voxrelay

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func clearCredentialEnv(t *testing.T) {
	t.Helper()
	for _, env := range credentialEnv {
		t.Setenv(env, "")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearCredentialEnv(t)
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.ServerAddr != ":8000" || cfg.Server.WebsocketPath != "/ws" {
		t.Fatalf("server defaults: %+v", cfg.Server)
	}
	if cfg.Server.WriteTimeout != 10*time.Second {
		t.Fatalf("write timeout: %v", cfg.Server.WriteTimeout)
	}
	if cfg.Vendors.STT.Provider != "assemblyai" || cfg.Vendors.TTS.Provider != "murf" ||
		cfg.Vendors.LLM.Provider != "gemini" || cfg.Vendors.Lookup.Provider != "tmdb" {
		t.Fatalf("vendor defaults: %+v", cfg.Vendors)
	}
	if !cfg.Metrics.Enabled || cfg.Server.MetricsPath != "/metrics" {
		t.Fatalf("metrics defaults: %+v / %q", cfg.Metrics, cfg.Server.MetricsPath)
	}
	if !cfg.Privacy.RedactPII {
		t.Fatal("redaction should default on")
	}
	if cfg.Shutdown.DrainTimeout != 10*time.Second {
		t.Fatalf("drain timeout: %v", cfg.Shutdown.DrainTimeout)
	}
}

func TestLoadConfigFileAndEnvironment(t *testing.T) {
	clearCredentialEnv(t)
	t.Setenv("ASSEMBLYAI_API_KEY", "aai-env")
	t.Setenv("VOICE", "en-US-amara")
	path := writeConfig(t, `
server:
  addr: "127.0.0.1:9000"
  write_timeout: 3s
vendors:
  tts:
    provider: murf
    settings:
      voice_id: ${VOICE}
  lookup:
    provider: none
credentials:
  murf: murf-file
metrics:
  path: /internal/metrics
shutdown:
  drain_timeout: 2s
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.ServerAddr != "127.0.0.1:9000" || cfg.Server.WriteTimeout != 3*time.Second {
		t.Fatalf("server: %+v", cfg.Server)
	}
	if got := cfg.Vendors.TTS.Settings["voice_id"]; got != "en-US-amara" {
		t.Fatalf("expanded voice id: %v", got)
	}
	defaults := cfg.Credentials.Defaults()
	if defaults.Transcription != "aai-env" || defaults.Synthesis != "murf-file" || defaults.LanguageModel != "" {
		t.Fatalf("credentials: %+v", defaults)
	}
	if cfg.Server.MetricsPath != "/internal/metrics" {
		t.Fatalf("metrics path: %q", cfg.Server.MetricsPath)
	}
	if cfg.Shutdown.DrainTimeout != 2*time.Second {
		t.Fatalf("drain timeout: %v", cfg.Shutdown.DrainTimeout)
	}
}

func TestLoadConfigValidation(t *testing.T) {
	clearCredentialEnv(t)
	cases := map[string]string{
		"vendors.llm.provider": "vendors:\n  llm:\n    provider: \"\"\n",
		"metrics.path":         "metrics:\n  path: metrics\n",
		"sample_rate":          "observability:\n  sample_rate: 2\n",
	}
	for want, body := range cases {
		t.Run(want, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, body))
			if err == nil || !strings.Contains(err.Error(), want) {
				t.Fatalf("expected %s error, got %v", want, err)
			}
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected read error")
	}
}
