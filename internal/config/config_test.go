package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":8080" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":8080")
	}
	if cfg.SessionTTL != 4*time.Hour {
		t.Fatalf("SessionTTL = %v, want 4h", cfg.SessionTTL)
	}
	if cfg.StreamPollInterval != 300*time.Millisecond {
		t.Fatalf("StreamPollInterval = %v, want 300ms", cfg.StreamPollInterval)
	}
	if cfg.StoreDriver != "auto" || cfg.ProviderMode != "auto" {
		t.Fatalf("StoreDriver/ProviderMode = %q/%q, want auto/auto", cfg.StoreDriver, cfg.ProviderMode)
	}
	if cfg.RedisURL != "" || cfg.DatabaseURL != "" {
		t.Fatalf("store URLs should default to empty, got %q / %q", cfg.RedisURL, cfg.DatabaseURL)
	}
}

func TestLoadFileThenEnvOverrides(t *testing.T) {
	setCoreEnvEmpty(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "lingocast.yaml")
	content := `
bind_addr: ":9000"
session_ttl: 2h
stream_poll_interval: 150ms
store_driver: redis
redis_url: redis://cache:6379/0
redis_pool_size: 20
openai_translate_model: gpt-4o
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("APP_BIND_ADDR", ":9191")
	t.Setenv("OPENAI_API_KEY", " sk-test ")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":9191" {
		t.Fatalf("BindAddr = %q, want env override", cfg.BindAddr)
	}
	if cfg.SessionTTL != 2*time.Hour || cfg.StreamPollInterval != 150*time.Millisecond {
		t.Fatalf("durations = %v/%v, want 2h/150ms from file", cfg.SessionTTL, cfg.StreamPollInterval)
	}
	if cfg.StoreDriver != "redis" || cfg.RedisURL != "redis://cache:6379/0" || cfg.RedisPoolSize != 20 {
		t.Fatalf("redis settings = %q %q %d", cfg.StoreDriver, cfg.RedisURL, cfg.RedisPoolSize)
	}
	if cfg.OpenAITranslateModel != "gpt-4o" {
		t.Fatalf("OpenAITranslateModel = %q, want gpt-4o", cfg.OpenAITranslateModel)
	}
	if cfg.OpenAIAPIKey != "sk-test" {
		t.Fatalf("OpenAIAPIKey = %q, want trimmed env value", cfg.OpenAIAPIKey)
	}
}

func TestLoadIgnoresMissingFile(t *testing.T) {
	setCoreEnvEmpty(t)
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		key, value, want string
	}{
		{"STREAM_POLL_INTERVAL", "1ms", "STREAM_POLL_INTERVAL"},
		{"SESSION_TTL", "10s", "SESSION_TTL"},
		{"SESSION_TTL", "soon", "parse error"},
		{"STORE_DRIVER", "etcd", "STORE_DRIVER"},
		{"STORE_DRIVER", "redis", "REDIS_URL"},
		{"PROVIDER_MODE", "magic", "PROVIDER_MODE"},
		{"APP_ALLOW_ANY_ORIGIN", "maybe", "expected bool"},
		{"REDIS_POOL_SIZE", "many", "parse error"},
		{"APP_LOG_FORMAT", "xml", "APP_LOG_FORMAT"},
	}
	for _, tc := range cases {
		t.Run(tc.key+"="+tc.value, func(t *testing.T) {
			setCoreEnvEmpty(t)
			t.Setenv(tc.key, tc.value)
			_, err := Load("")
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("Load() error = %v, want mention of %q", err, tc.want)
			}
		})
	}
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	setCoreEnvEmpty(t)
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("session_ttl: [oops"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "parse config file") {
		t.Fatalf("Load() error = %v, want parse error", err)
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"APP_ALLOW_ANY_ORIGIN",
		"APP_LOG_LEVEL",
		"APP_LOG_FORMAT",
		"SESSION_TTL",
		"SESSION_IDLE_TIMEOUT",
		"SESSION_JANITOR_INTERVAL",
		"STREAM_POLL_INTERVAL",
		"STORE_DRIVER",
		"REDIS_URL",
		"REDIS_KEY_PREFIX",
		"REDIS_POOL_SIZE",
		"DATABASE_URL",
		"PROVIDER_MODE",
		"OPENAI_API_KEY",
		"OPENAI_BASE_URL",
		"OPENAI_TRANSLATE_MODEL",
		"ELEVENLABS_API_KEY",
		"ELEVENLABS_BASE_URL",
		"ELEVENLABS_TTS_VOICE_ID",
		"ELEVENLABS_TTS_MODEL_ID",
		"ELEVENLABS_TTS_OUTPUT_FORMAT",
	}
	for _, k := range keys {
		t.Setenv(k, "")
	}
}
