package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/vokmon/trade-signal/internal/domain"
)

type Config struct {
	LogLevel string
	HTTPPort string

	FeedURL            string
	FeedUsername       string
	FeedPassword       string
	FeedPlatformID     int
	FeedRequestTimeout time.Duration

	CandleNumber     int
	AnalysisInterval time.Duration
	RefreshInterval  time.Duration
	MaxRetryAttempts int
	RetryDelay       time.Duration
	TimeframeMinutes []int

	SignalPurgeInterval time.Duration
	SignalRetention     time.Duration

	DatabaseURL      string
	RedisURL         string
	TelegramBotToken string
	TelegramChatIDs  []int64
	OTLPEndpoint     string

	MCPTransport       string
	MCPHTTPEnabled     bool
	MCPHTTPBind        string
	MCPHTTPPort        int
	MCPAuthToken       string
	MCPRequestTimeout  time.Duration
	MCPRateLimitPerMin int

	// Warnings collects fallbacks applied while loading; main logs them once
	// the logger exists.
	Warnings []string
}

func Load() *Config {
	cfg := &Config{
		LogLevel:         strings.TrimSpace(os.Getenv("LOG_LEVEL")),
		HTTPPort:         strings.TrimSpace(os.Getenv("HTTP_PORT")),
		FeedURL:          strings.TrimSpace(os.Getenv("FEED_WS_URL")),
		FeedUsername:     os.Getenv("FEED_USERNAME"),
		FeedPassword:     os.Getenv("FEED_PASSWORD"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		OTLPEndpoint:     strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")),
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.HTTPPort == "" {
		cfg.HTTPPort = "8080"
	}
	if cfg.FeedURL == "" {
		cfg.warn("FEED_WS_URL not set, the feed connection will fail")
	}
	if cfg.TelegramBotToken == "" {
		cfg.warn("TELEGRAM_BOT_TOKEN not set, alerts disabled")
	}
	if cfg.DatabaseURL == "" {
		cfg.warn("DATABASE_URL not set, signals will not be persisted")
	}
	if cfg.RedisURL == "" {
		cfg.warn("REDIS_URL not set, defaulting to localhost:6379")
		cfg.RedisURL = "localhost:6379"
	}

	cfg.FeedPlatformID = cfg.positiveInt("FEED_PLATFORM_ID", 0)
	cfg.FeedRequestTimeout = cfg.millis("FEED_REQUEST_TIMEOUT_MS", 10000)

	cfg.CandleNumber = cfg.positiveInt("CANDLE_NUMBER", 100)
	cfg.AnalysisInterval = cfg.millis("CANDLE_ANALYSIS_INTERVAL_MS", 5000)
	cfg.RefreshInterval = cfg.millis("ACTIVE_REFRESH_INTERVAL_MS", 3600000)
	cfg.MaxRetryAttempts = cfg.positiveInt("MAX_RETRY_ATTEMPTS", 5)
	cfg.RetryDelay = cfg.millis("RETRY_DELAY_MS", 3000)
	cfg.TimeframeMinutes = cfg.parseTimeframes(strings.TrimSpace(os.Getenv("TIMEFRAMES_MINUTES")))

	cfg.SignalPurgeInterval = cfg.millis("SIGNAL_PURGE_INTERVAL_MS", 21600000)
	cfg.SignalRetention = time.Duration(cfg.positiveInt("SIGNAL_RETENTION_HOURS", 6)) * time.Hour

	cfg.TelegramChatIDs = cfg.parseChatIDs(strings.TrimSpace(os.Getenv("TELEGRAM_ALERT_CHAT_IDS")))

	cfg.MCPTransport = strings.ToLower(strings.TrimSpace(os.Getenv("MCP_TRANSPORT")))
	if cfg.MCPTransport == "" {
		cfg.MCPTransport = "stdio"
	}
	if cfg.MCPTransport != "stdio" && cfg.MCPTransport != "http" {
		cfg.warn("unsupported MCP_TRANSPORT=%q, defaulting to stdio", cfg.MCPTransport)
		cfg.MCPTransport = "stdio"
	}
	cfg.MCPHTTPEnabled = strings.EqualFold(strings.TrimSpace(os.Getenv("MCP_HTTP_ENABLED")), "true")
	cfg.MCPHTTPBind = strings.TrimSpace(os.Getenv("MCP_HTTP_BIND"))
	if cfg.MCPHTTPBind == "" {
		cfg.MCPHTTPBind = "127.0.0.1"
	}
	cfg.MCPHTTPPort = cfg.positiveInt("MCP_HTTP_PORT", 8090)
	cfg.MCPAuthToken = strings.TrimSpace(os.Getenv("MCP_AUTH_TOKEN"))
	cfg.MCPRequestTimeout = time.Duration(cfg.positiveInt("MCP_REQUEST_TIMEOUT_SECS", 5)) * time.Second
	cfg.MCPRateLimitPerMin = cfg.positiveInt("MCP_RATE_LIMIT_PER_MIN", 60)
	if cfg.MCPHTTPEnabled && cfg.MCPAuthToken == "" {
		cfg.warn("MCP_HTTP_ENABLED is set without MCP_AUTH_TOKEN, the MCP endpoint stays off")
	}

	return cfg
}

func (c *Config) warn(format string, args ...any) {
	c.Warnings = append(c.Warnings, fmt.Sprintf(format, args...))
}

func (c *Config) positiveInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		c.warn("invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func (c *Config) millis(key string, fallback int) time.Duration {
	return time.Duration(c.positiveInt(key, fallback)) * time.Millisecond
}

// parseTimeframes keeps supported minute values in the given order and drops
// duplicates. Nothing usable yields the default set.
func (c *Config) parseTimeframes(raw string) []int {
	fallback := append([]int(nil), domain.SupportedTimeframes...)
	if raw == "" {
		return fallback
	}

	supported := make(map[int]struct{}, len(domain.SupportedTimeframes))
	for _, m := range domain.SupportedTimeframes {
		supported[m] = struct{}{}
	}

	parts := strings.Split(raw, ",")
	out := make([]int, 0, len(parts))
	seen := make(map[int]struct{}, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		m, err := strconv.Atoi(part)
		if err != nil {
			c.warn("ignoring timeframe %q", part)
			continue
		}
		if _, ok := supported[m]; !ok {
			c.warn("ignoring unsupported timeframe %d", m)
			continue
		}
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func (c *Config) parseChatIDs(raw string) []int64 {
	if raw == "" {
		return nil
	}
	var out []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			c.warn("ignoring telegram chat id %q", part)
			continue
		}
		out = append(out, id)
	}
	return out
}
