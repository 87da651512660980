package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Queue       QueueConfig     `toml:"queue"`
	Storage     StorageConfig   `toml:"storage"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
	Source      SourceConfig    `toml:"source"`
	YouTube     YouTubeConfig   `toml:"youtube"`
	Logging     LoggingConfig   `toml:"logging"`
	WebSocket   WebSocketConfig `toml:"websocket"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type QueueConfig struct {
	PollInterval      string `toml:"poll_interval"`      // e.g. "1s" - how often workers poll for messages
	Concurrency       int    `toml:"concurrency"`        // Workers per stage queue
	VisibilityTimeout string `toml:"visibility_timeout"` // e.g. "5m" - redelivery timeout for in-flight messages
	MaxReceive        int    `toml:"max_receive"`        // Max deliveries before a message is dropped
}

type StorageConfig struct {
	Badger    BadgerConfig `toml:"badger"`
	Downloads string       `toml:"downloads"` // Directory for downloaded video files
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type SchedulerConfig struct {
	Enabled  bool   `toml:"enabled"`
	Schedule string `toml:"schedule"` // Cron expression, seconds field supported
}

// SourceConfig configures the source platform feed client. The cookie
// and user agent come from config or environment, never from code.
type SourceConfig struct {
	BaseURL        string `toml:"base_url"`
	UserAgent      string `toml:"user_agent"`
	Cookie         string `toml:"cookie"`
	RequestTimeout string `toml:"request_timeout"`
}

// YouTubeConfig configures the destination uploader and OAuth flow.
type YouTubeConfig struct {
	ClientID      string `toml:"client_id"`
	ClientSecret  string `toml:"client_secret"`
	RedirectURL   string `toml:"redirect_url"`
	PrivacyStatus string `toml:"privacy_status"` // "private", "unlisted" or "public"
	CategoryID    string `toml:"category_id"`
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Format string   `toml:"format"` // "json" or "text"
	Output []string `toml:"output"` // "stdout", "file"
}

// WebSocketConfig contains configuration for WebSocket event delivery
type WebSocketConfig struct {
	// Throttle intervals for high-frequency events. Map of event type to
	// duration string, e.g. {"download-progress": "250ms"}. Empty = no
	// throttling.
	ThrottleIntervals map[string]string `toml:"throttle_intervals"`
}

// NewDefaultConfig creates a configuration with default values.
// Only user-facing settings are exposed in dragonfly.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Queue: QueueConfig{
			PollInterval:      "1s",
			Concurrency:       4,
			VisibilityTimeout: "5m",
			MaxReceive:        3,
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
			Downloads: "./downloads",
		},
		Scheduler: SchedulerConfig{
			Enabled:  true,
			Schedule: "*/30 * * * * *", // Every 30 seconds
		},
		Source: SourceConfig{
			BaseURL:        "https://www.douyin.com",
			UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			Cookie:         "", // User must provide a session cookie in config or env
			RequestTimeout: "30s",
		},
		YouTube: YouTubeConfig{
			RedirectURL:   "http://localhost:8080/api/youtube/oauth2callback",
			PrivacyStatus: "private",
			CategoryID:    "22", // People & Blogs
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: []string{"stdout", "file"},
		},
		WebSocket: WebSocketConfig{
			ThrottleIntervals: map[string]string{},
		},
	}
}

// LoadFromFiles loads configuration from multiple files with priority:
// defaults -> file1 -> file2 -> ... -> env. Later files override earlier
// files; environment variables override all files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("DRAGONFLY_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("DRAGONFLY_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("DRAGONFLY_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Queue configuration
	if pollInterval := os.Getenv("DRAGONFLY_QUEUE_POLL_INTERVAL"); pollInterval != "" {
		config.Queue.PollInterval = pollInterval
	}
	if concurrency := os.Getenv("DRAGONFLY_QUEUE_CONCURRENCY"); concurrency != "" {
		if c, err := strconv.Atoi(concurrency); err == nil {
			config.Queue.Concurrency = c
		}
	}
	if visibilityTimeout := os.Getenv("DRAGONFLY_QUEUE_VISIBILITY_TIMEOUT"); visibilityTimeout != "" {
		config.Queue.VisibilityTimeout = visibilityTimeout
	}
	if maxReceive := os.Getenv("DRAGONFLY_QUEUE_MAX_RECEIVE"); maxReceive != "" {
		if mr, err := strconv.Atoi(maxReceive); err == nil {
			config.Queue.MaxReceive = mr
		}
	}

	// Storage configuration
	if badgerPath := os.Getenv("DRAGONFLY_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}
	if downloads := os.Getenv("DRAGONFLY_DOWNLOADS_DIR"); downloads != "" {
		config.Storage.Downloads = downloads
	}

	// Scheduler configuration
	if enabled := os.Getenv("DRAGONFLY_SCHEDULER_ENABLED"); enabled != "" {
		if e, err := strconv.ParseBool(enabled); err == nil {
			config.Scheduler.Enabled = e
		}
	}
	if schedule := os.Getenv("DRAGONFLY_SCHEDULER_SCHEDULE"); schedule != "" {
		config.Scheduler.Schedule = schedule
	}

	// Source configuration
	if baseURL := os.Getenv("DRAGONFLY_SOURCE_BASE_URL"); baseURL != "" {
		config.Source.BaseURL = baseURL
	}
	if userAgent := os.Getenv("DRAGONFLY_SOURCE_USER_AGENT"); userAgent != "" {
		config.Source.UserAgent = userAgent
	}
	if cookie := os.Getenv("DRAGONFLY_SOURCE_COOKIE"); cookie != "" {
		config.Source.Cookie = cookie
	}
	if timeout := os.Getenv("DRAGONFLY_SOURCE_REQUEST_TIMEOUT"); timeout != "" {
		config.Source.RequestTimeout = timeout
	}

	// YouTube configuration
	if clientID := os.Getenv("DRAGONFLY_YOUTUBE_CLIENT_ID"); clientID != "" {
		config.YouTube.ClientID = clientID
	}
	if clientSecret := os.Getenv("DRAGONFLY_YOUTUBE_CLIENT_SECRET"); clientSecret != "" {
		config.YouTube.ClientSecret = clientSecret
	}
	if redirectURL := os.Getenv("DRAGONFLY_YOUTUBE_REDIRECT_URL"); redirectURL != "" {
		config.YouTube.RedirectURL = redirectURL
	}
	if privacy := os.Getenv("DRAGONFLY_YOUTUBE_PRIVACY_STATUS"); privacy != "" {
		config.YouTube.PrivacyStatus = privacy
	}

	// Logging configuration
	if level := os.Getenv("DRAGONFLY_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("DRAGONFLY_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}
	if output := os.Getenv("DRAGONFLY_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	// WebSocket configuration
	if progressThrottle := os.Getenv("DRAGONFLY_WEBSOCKET_THROTTLE_DOWNLOAD_PROGRESS"); progressThrottle != "" {
		if config.WebSocket.ThrottleIntervals == nil {
			config.WebSocket.ThrottleIntervals = make(map[string]string)
		}
		config.WebSocket.ThrottleIntervals["download-progress"] = progressThrottle
	}
}

// ApplyFlagOverrides applies command-line flag overrides (highest priority)
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port != 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// ValidateSchedule validates a cron schedule expression. Both standard
// 5-field expressions and 6-field expressions with a seconds field are
// accepted.
func ValidateSchedule(schedule string) error {
	fields := len(strings.Fields(schedule))

	var parser cron.Parser
	switch fields {
	case 5:
		parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	case 6:
		parser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	default:
		return fmt.Errorf("invalid cron format: expected 5 or 6 fields, got %d", fields)
	}

	if _, err := parser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	return nil
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
