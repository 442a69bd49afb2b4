package config

import (
	"log"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	configPathEnv     = "FEEDBACKFLOW_CONFIG"
	databaseDSNEnv    = "DATABASE_DSN"
	databaseDriverEnv = "DATABASE_DRIVER"
	aiProviderEnv     = "AI_PROVIDER"
	aiModelEnv        = "AI_MODEL"
	openAIAPIKeyEnv   = "OPENAI_API_KEY"
	anthropicKeyEnv   = "ANTHROPIC_API_KEY"
	telegramTokenEnv  = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv = "TELEGRAM_CHAT_ID"
	logLevelEnv       = "LOG_LEVEL"
	logFormatEnv      = "LOG_FORMAT"
	httpAddressEnv    = "HTTP_ADDRESS"

	defaultOpenAIModel = "gpt-4o-mini"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging       LoggingConfig      `yaml:"logging"`
	Server        ServerConfig       `yaml:"server"`
	Database      DatabaseConfig     `yaml:"database"`
	AI            AIConfig           `yaml:"ai"`
	Pipeline      PipelineConfig     `yaml:"pipeline"`
	Stream        StreamConfig       `yaml:"stream"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	Notifications NotificationConfig `yaml:"notifications"`
}

// LoggingConfig controls the slog level and output format (text or json).
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// DatabaseConfig describes the SQL connection.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// AIConfig defines how to contact the classification service.
type AIConfig struct {
	Provider   string        `yaml:"provider"`
	Endpoint   string        `yaml:"endpoint"`
	Model      string        `yaml:"model"`
	APIKey     string        `yaml:"apiKey"`
	Timeout    time.Duration `yaml:"timeout"`
	AWSRegion  string        `yaml:"awsRegion"`
	AWSProfile string        `yaml:"awsProfile"`
}

// PipelineConfig tunes the processing loop.
type PipelineConfig struct {
	Throttle      time.Duration `yaml:"throttle"`
	PreviewLength int           `yaml:"previewLength"`
}

// StreamConfig tunes the event stream.
type StreamConfig struct {
	HeartbeatInterval time.Duration `yaml:"heartbeatInterval"`
	WriteTimeout      time.Duration `yaml:"writeTimeout"`
}

// SchedulerConfig defines recurring background runs. No owners means disabled.
type SchedulerConfig struct {
	Interval time.Duration `yaml:"interval"`
	Owners   []string      `yaml:"owners"`
}

// NotificationConfig encapsulates outbound channels (Telegram, etc.).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() Config {
	return LoadFile(os.Getenv(configPathEnv))
}

// LoadFile is Load with an explicit path; an empty path skips the file.
func LoadFile(path string) Config {
	cfg := defaultConfig()

	if path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
				cfg.applyExplicitZeros(raw)
			}
		}
	}

	cfg.applyEnvOverrides()
	cfg.normalize()

	return cfg
}

// explicitValues captures settings where zero is meaningful and must not be
// mistaken for "unset" by mergeConfig.
type explicitValues struct {
	Pipeline struct {
		Throttle *time.Duration `yaml:"throttle"`
	} `yaml:"pipeline"`
}

func (c *Config) applyExplicitZeros(raw []byte) {
	var explicit explicitValues
	if err := yaml.Unmarshal(raw, &explicit); err != nil {
		return
	}
	if explicit.Pipeline.Throttle != nil {
		c.Pipeline.Throttle = *explicit.Pipeline.Throttle
	}
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv(databaseDriverEnv); v != "" {
		c.Database.Driver = v
	}

	if v := os.Getenv(aiProviderEnv); v != "" {
		c.AI.Provider = v
	}
	if v := os.Getenv(aiModelEnv); v != "" {
		c.AI.Model = v
	}
	if c.AI.APIKey == "" {
		switch strings.ToLower(c.AI.Provider) {
		case "openai":
			c.AI.APIKey = os.Getenv(openAIAPIKeyEnv)
		case "anthropic":
			c.AI.APIKey = os.Getenv(anthropicKeyEnv)
		}
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}
	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}

	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(logFormatEnv); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv(httpAddressEnv); v != "" {
		c.Server.Address = v
	}
}

func (c *Config) normalize() {
	defaults := defaultConfig()
	if c.AI.Timeout <= 0 {
		c.AI.Timeout = defaults.AI.Timeout
	}
	if c.Pipeline.Throttle < 0 {
		c.Pipeline.Throttle = 0
	}
	if c.Pipeline.PreviewLength <= 0 {
		c.Pipeline.PreviewLength = defaults.Pipeline.PreviewLength
	}
	if c.Stream.HeartbeatInterval <= 0 {
		c.Stream.HeartbeatInterval = defaults.Stream.HeartbeatInterval
	}
	if c.Stream.WriteTimeout <= 0 {
		c.Stream.WriteTimeout = defaults.Stream.WriteTimeout
	}
	if c.Scheduler.Interval <= 0 {
		c.Scheduler.Interval = defaults.Scheduler.Interval
	}
	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	c.AI.Provider = strings.ToLower(strings.TrimSpace(c.AI.Provider))
	if c.AI.Provider == "openai" && c.AI.Model == "" {
		c.AI.Model = defaultOpenAIModel
	}
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}
	if override.Logging.Format != "" {
		base.Logging.Format = override.Logging.Format
	}

	if override.Server.Address != "" {
		base.Server.Address = override.Server.Address
	}
	if override.Server.ReadTimeout != 0 {
		base.Server.ReadTimeout = override.Server.ReadTimeout
	}
	if override.Server.ShutdownTimeout != 0 {
		base.Server.ShutdownTimeout = override.Server.ShutdownTimeout
	}

	if override.Database.Driver != "" {
		base.Database.Driver = override.Database.Driver
	}
	if override.Database.DSN != "" {
		base.Database.DSN = override.Database.DSN
	}

	if override.AI.Provider != "" {
		base.AI.Provider = override.AI.Provider
	}
	if override.AI.Endpoint != "" {
		base.AI.Endpoint = override.AI.Endpoint
	}
	if override.AI.Model != "" {
		base.AI.Model = override.AI.Model
	}
	if override.AI.APIKey != "" {
		base.AI.APIKey = override.AI.APIKey
	}
	if override.AI.Timeout != 0 {
		base.AI.Timeout = override.AI.Timeout
	}
	if override.AI.AWSRegion != "" {
		base.AI.AWSRegion = override.AI.AWSRegion
	}
	if override.AI.AWSProfile != "" {
		base.AI.AWSProfile = override.AI.AWSProfile
	}

	if override.Pipeline.Throttle != 0 {
		base.Pipeline.Throttle = override.Pipeline.Throttle
	}
	if override.Pipeline.PreviewLength != 0 {
		base.Pipeline.PreviewLength = override.Pipeline.PreviewLength
	}

	if override.Stream.HeartbeatInterval != 0 {
		base.Stream.HeartbeatInterval = override.Stream.HeartbeatInterval
	}
	if override.Stream.WriteTimeout != 0 {
		base.Stream.WriteTimeout = override.Stream.WriteTimeout
	}

	if override.Scheduler.Interval != 0 {
		base.Scheduler.Interval = override.Scheduler.Interval
	}
	if len(override.Scheduler.Owners) > 0 {
		base.Scheduler.Owners = override.Scheduler.Owners
	}

	if override.Notifications.Telegram.BotToken != "" {
		base.Notifications.Telegram.BotToken = override.Notifications.Telegram.BotToken
	}
	if override.Notifications.Telegram.ChatID != "" {
		base.Notifications.Telegram.ChatID = override.Notifications.Telegram.ChatID
	}

	return base
}

func defaultConfig() Config {
	return Config{
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Server: ServerConfig{
			Address:         ":8080",
			ReadTimeout:     15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{Driver: "sqlite", DSN: "file:feedbackflow.db?_pragma=busy_timeout(5000)"},
		AI: AIConfig{
			Provider: "openai",
			Timeout:  20 * time.Second,
		},
		Pipeline:  PipelineConfig{Throttle: time.Second, PreviewLength: 50},
		Stream:    StreamConfig{HeartbeatInterval: 30 * time.Second, WriteTimeout: 10 * time.Second},
		Scheduler: SchedulerConfig{Interval: 15 * time.Minute},
	}
}
