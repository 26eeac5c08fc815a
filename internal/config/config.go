package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config contains all runtime settings for the broadcast service.
type Config struct {
	BindAddr         string        `yaml:"bind_addr"`
	ShutdownTimeout  time.Duration `yaml:"shutdown_timeout"`
	MetricsNamespace string        `yaml:"metrics_namespace"`
	AllowAnyOrigin   bool          `yaml:"allow_any_origin"`
	LogLevel         string        `yaml:"log_level"`
	LogFormat        string        `yaml:"log_format"`

	SessionTTL         time.Duration `yaml:"session_ttl"`
	SessionIdleTimeout time.Duration `yaml:"session_idle_timeout"`
	JanitorInterval    time.Duration `yaml:"janitor_interval"`
	StreamPollInterval time.Duration `yaml:"stream_poll_interval"`

	StoreDriver    string `yaml:"store_driver"`
	RedisURL       string `yaml:"redis_url"`
	RedisKeyPrefix string `yaml:"redis_key_prefix"`
	RedisPoolSize  int    `yaml:"redis_pool_size"`
	DatabaseURL    string `yaml:"database_url"`

	ProviderMode         string `yaml:"provider_mode"`
	OpenAIBaseURL        string `yaml:"openai_base_url"`
	OpenAITranslateModel string `yaml:"openai_translate_model"`

	ElevenLabsBaseURL         string `yaml:"elevenlabs_base_url"`
	ElevenLabsTTSVoice        string `yaml:"elevenlabs_tts_voice_id"`
	ElevenLabsTTSModel        string `yaml:"elevenlabs_tts_model_id"`
	ElevenLabsTTSOutputFormat string `yaml:"elevenlabs_tts_output_format"`

	// Secrets are read from the environment only.
	OpenAIAPIKey     string `yaml:"-"`
	ElevenLabsAPIKey string `yaml:"-"`
}

func defaults() Config {
	return Config{
		BindAddr:           ":8080",
		ShutdownTimeout:    15 * time.Second,
		MetricsNamespace:   "lingocast",
		LogLevel:           "info",
		LogFormat:          "text",
		SessionTTL:         4 * time.Hour,
		SessionIdleTimeout: 0,
		JanitorInterval:    30 * time.Second,
		StreamPollInterval: 300 * time.Millisecond,
		StoreDriver:        "auto",
		RedisKeyPrefix:     "lingocast:",
		ProviderMode:       "auto",
		ElevenLabsBaseURL:  "https://api.elevenlabs.io",
		// Multilingual premade voice.
		ElevenLabsTTSVoice:        "EXAVITQu4vr4xnSDxMaL",
		ElevenLabsTTSModel:        "eleven_multilingual_v2",
		ElevenLabsTTSOutputFormat: "mp3_44100_128",
		OpenAITranslateModel:      "gpt-4o-mini",
	}
}

// Load applies defaults, then the YAML file at path (when it exists), then
// environment overrides, and validates the result.
func Load(path string) (Config, error) {
	cfg := defaults()

	if path = strings.TrimSpace(path); path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return Config{}, fmt.Errorf("read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	cfg.BindAddr = envOrDefault("APP_BIND_ADDR", cfg.BindAddr)
	cfg.MetricsNamespace = envOrDefault("APP_METRICS_NAMESPACE", cfg.MetricsNamespace)
	cfg.LogLevel = strings.ToLower(envOrDefault("APP_LOG_LEVEL", cfg.LogLevel))
	cfg.LogFormat = strings.ToLower(envOrDefault("APP_LOG_FORMAT", cfg.LogFormat))
	cfg.StoreDriver = strings.ToLower(envOrDefault("STORE_DRIVER", cfg.StoreDriver))
	cfg.RedisURL = envOrDefault("REDIS_URL", cfg.RedisURL)
	cfg.RedisKeyPrefix = envOrDefault("REDIS_KEY_PREFIX", cfg.RedisKeyPrefix)
	cfg.DatabaseURL = envOrDefault("DATABASE_URL", cfg.DatabaseURL)
	cfg.ProviderMode = strings.ToLower(envOrDefault("PROVIDER_MODE", cfg.ProviderMode))
	cfg.OpenAIBaseURL = envOrDefault("OPENAI_BASE_URL", cfg.OpenAIBaseURL)
	cfg.OpenAITranslateModel = envOrDefault("OPENAI_TRANSLATE_MODEL", cfg.OpenAITranslateModel)
	cfg.ElevenLabsBaseURL = envOrDefault("ELEVENLABS_BASE_URL", cfg.ElevenLabsBaseURL)
	cfg.ElevenLabsTTSVoice = envOrDefault("ELEVENLABS_TTS_VOICE_ID", cfg.ElevenLabsTTSVoice)
	cfg.ElevenLabsTTSModel = envOrDefault("ELEVENLABS_TTS_MODEL_ID", cfg.ElevenLabsTTSModel)
	cfg.ElevenLabsTTSOutputFormat = envOrDefault("ELEVENLABS_TTS_OUTPUT_FORMAT", cfg.ElevenLabsTTSOutputFormat)
	cfg.OpenAIAPIKey = stringsTrimSpace("OPENAI_API_KEY")
	cfg.ElevenLabsAPIKey = stringsTrimSpace("ELEVENLABS_API_KEY")

	var err error
	if cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout); err != nil {
		return err
	}
	if cfg.SessionTTL, err = durationFromEnv("SESSION_TTL", cfg.SessionTTL); err != nil {
		return err
	}
	if cfg.SessionIdleTimeout, err = durationFromEnv("SESSION_IDLE_TIMEOUT", cfg.SessionIdleTimeout); err != nil {
		return err
	}
	if cfg.JanitorInterval, err = durationFromEnv("SESSION_JANITOR_INTERVAL", cfg.JanitorInterval); err != nil {
		return err
	}
	if cfg.StreamPollInterval, err = durationFromEnv("STREAM_POLL_INTERVAL", cfg.StreamPollInterval); err != nil {
		return err
	}
	if cfg.RedisPoolSize, err = intFromEnv("REDIS_POOL_SIZE", cfg.RedisPoolSize); err != nil {
		return err
	}
	if cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin); err != nil {
		return err
	}
	return nil
}

func (c Config) validate() error {
	if c.SessionTTL < time.Minute {
		return fmt.Errorf("SESSION_TTL must be at least 1m")
	}
	if c.SessionIdleTimeout < 0 {
		return fmt.Errorf("SESSION_IDLE_TIMEOUT must be >= 0")
	}
	if c.JanitorInterval <= 0 {
		return fmt.Errorf("SESSION_JANITOR_INTERVAL must be positive")
	}
	if c.StreamPollInterval < 10*time.Millisecond || c.StreamPollInterval > 5*time.Second {
		return fmt.Errorf("STREAM_POLL_INTERVAL must be between 10ms and 5s")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("APP_SHUTDOWN_TIMEOUT must be positive")
	}
	if c.RedisPoolSize < 0 {
		return fmt.Errorf("REDIS_POOL_SIZE must be >= 0")
	}
	if !oneOf(c.StoreDriver, "auto", "memory", "redis", "postgres") {
		return fmt.Errorf("STORE_DRIVER must be one of auto|memory|redis|postgres")
	}
	if c.StoreDriver == "redis" && c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required when STORE_DRIVER=redis")
	}
	if c.StoreDriver == "postgres" && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER=postgres")
	}
	if !oneOf(c.ProviderMode, "auto", "mock", "live") {
		return fmt.Errorf("PROVIDER_MODE must be one of auto|mock|live")
	}
	if !oneOf(c.LogLevel, "debug", "info", "warn", "error") {
		return fmt.Errorf("APP_LOG_LEVEL must be one of debug|info|warn|error")
	}
	if !oneOf(c.LogFormat, "text", "logfmt", "json") {
		return fmt.Errorf("APP_LOG_FORMAT must be one of text|logfmt|json")
	}
	return nil
}

func oneOf(v string, options ...string) bool {
	for _, o := range options {
		if v == o {
			return true
		}
	}
	return false
}

func envOrDefault(key, fallback string) string {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
