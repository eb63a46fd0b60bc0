package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type StoreBackend string

const (
	StoreMemory   StoreBackend = "memory"
	StoreRedis    StoreBackend = "redis"
	StorePostgres StoreBackend = "postgres"
)

const defaultSystemPrompt = "You are a friendly receptionist. Answer caller questions, and use the schedule_meeting tool once the caller has provided every booking detail. Keep responses short and conversational; expand numbers and abbreviations for speech."

type Config struct {
	Addr string

	// PublicURL is the externally reachable base URL of this service; the
	// admission endpoint derives the media-stream WebSocket URL from it.
	PublicURL string

	VoiceAIAPIURL string
	VoiceAIAPIKey string
	VoiceAIModel  string
	VoiceAIVoice  string

	SampleRate   int
	BufferSizeMs int

	SystemPrompt    string
	DefaultGreeting string

	// Calendars maps human venue names to calendar identifiers; its keys
	// become the schedule_meeting location enumeration.
	Calendars map[string]string

	WebhookURL     string
	WebhookTimeout time.Duration

	StoreBackend StoreBackend
	RedisAddr    string
	RedisPass    string
	RedisDB      int
	SessionTTL   time.Duration
	PostgresDSN  string

	ReadHeaderTimeout   time.Duration
	TeardownTimeout     time.Duration
	ShutdownGracePeriod time.Duration
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                envOr("BRIDGE_ADDR", ":8080"),
		PublicURL:           envOr("BRIDGE_PUBLIC_URL", ""),
		VoiceAIAPIURL:       envOr("BRIDGE_VOICEAI_API_URL", "https://api.ultravox.ai"),
		VoiceAIAPIKey:       envOr("BRIDGE_VOICEAI_API_KEY", ""),
		VoiceAIModel:        envOr("BRIDGE_VOICEAI_MODEL", "fixie-ai/ultravox"),
		VoiceAIVoice:        envOr("BRIDGE_VOICEAI_VOICE", "Mark"),
		SampleRate:          envIntOr("BRIDGE_SAMPLE_RATE", 8000),
		BufferSizeMs:        envIntOr("BRIDGE_BUFFER_SIZE_MS", 60),
		SystemPrompt:        envOr("BRIDGE_SYSTEM_PROMPT", defaultSystemPrompt),
		DefaultGreeting:     envOr("BRIDGE_DEFAULT_GREETING", "Hello, how can I assist you?"),
		Calendars:           make(map[string]string),
		WebhookURL:          envOr("BRIDGE_WEBHOOK_URL", ""),
		WebhookTimeout:      envDurationOr("BRIDGE_WEBHOOK_TIMEOUT", 10*time.Second),
		StoreBackend:        StoreBackend(envOr("BRIDGE_STORE_BACKEND", string(StoreMemory))),
		RedisAddr:           envOr("BRIDGE_REDIS_ADDR", "localhost:6379"),
		RedisPass:           envOr("BRIDGE_REDIS_PASSWORD", ""),
		RedisDB:             envIntOr("BRIDGE_REDIS_DB", 0),
		SessionTTL:          envDurationOr("BRIDGE_SESSION_TTL", 2*time.Hour),
		PostgresDSN:         envOr("BRIDGE_POSTGRES_DSN", ""),
		ReadHeaderTimeout:   envDurationOr("BRIDGE_READ_HEADER_TIMEOUT", 10*time.Second),
		TeardownTimeout:     envDurationOr("BRIDGE_TEARDOWN_TIMEOUT", 15*time.Second),
		ShutdownGracePeriod: envDurationOr("BRIDGE_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
	}

	for _, pair := range splitCSV(os.Getenv("BRIDGE_CALENDARS")) {
		name, id, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		id = strings.TrimSpace(id)
		if !ok || name == "" || id == "" {
			return Config{}, fmt.Errorf("BRIDGE_CALENDARS entries must be Name=calendarID, got %q", pair)
		}
		cfg.Calendars[name] = id
	}

	if cfg.PublicURL != "" {
		u, err := url.Parse(cfg.PublicURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return Config{}, fmt.Errorf("BRIDGE_PUBLIC_URL must be an http(s) URL")
		}
	}
	if strings.TrimSpace(cfg.VoiceAIAPIURL) == "" {
		return Config{}, fmt.Errorf("BRIDGE_VOICEAI_API_URL must not be empty")
	}
	if strings.TrimSpace(cfg.VoiceAIAPIKey) == "" {
		return Config{}, fmt.Errorf("BRIDGE_VOICEAI_API_KEY must be set")
	}
	if cfg.SampleRate <= 0 {
		return Config{}, fmt.Errorf("BRIDGE_SAMPLE_RATE must be > 0")
	}
	if cfg.BufferSizeMs <= 0 {
		return Config{}, fmt.Errorf("BRIDGE_BUFFER_SIZE_MS must be > 0")
	}
	if cfg.WebhookTimeout <= 0 {
		return Config{}, fmt.Errorf("BRIDGE_WEBHOOK_TIMEOUT must be > 0")
	}

	switch cfg.StoreBackend {
	case StoreMemory:
	case StoreRedis:
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return Config{}, fmt.Errorf("BRIDGE_REDIS_ADDR must be set when BRIDGE_STORE_BACKEND=redis")
		}
	case StorePostgres:
		if strings.TrimSpace(cfg.PostgresDSN) == "" {
			return Config{}, fmt.Errorf("BRIDGE_POSTGRES_DSN must be set when BRIDGE_STORE_BACKEND=postgres")
		}
	default:
		return Config{}, fmt.Errorf("BRIDGE_STORE_BACKEND must be one of memory|redis|postgres")
	}

	if cfg.SessionTTL < 0 {
		return Config{}, fmt.Errorf("BRIDGE_SESSION_TTL must be >= 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("BRIDGE_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.TeardownTimeout <= 0 {
		return Config{}, fmt.Errorf("BRIDGE_TEARDOWN_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("BRIDGE_SHUTDOWN_GRACE_PERIOD must be > 0")
	}

	return cfg, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
