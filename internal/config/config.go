// Package config provides configuration loading and validation for the
// SocialSync bridge. Configuration is read from a YAML file with
// SOCIALSYNC_* environment variable overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds all application configuration, loaded once at startup and
// passed explicitly to component constructors.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger"`
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Agent     AgentConfig     `mapstructure:"agent"`
	Session   SessionConfig   `mapstructure:"session"`
	History   HistoryConfig   `mapstructure:"history"`
	Platforms PlatformsConfig `mapstructure:"platforms"`
	Translate TranslateConfig `mapstructure:"translate"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// LoggerConfig controls the slog handler.
type LoggerConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"             validate:"required"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"     validate:"min=1s"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"    validate:"min=1s"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"min=1s"`
}

// DatabaseConfig holds SQLite settings.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// AgentConfig selects and configures the generative agent backend.
type AgentConfig struct {
	Provider string        `mapstructure:"provider" validate:"oneof=bedrock gemini"`
	Timeout  time.Duration `mapstructure:"timeout"  validate:"min=1s,max=5m"`

	AWSAccessKey    string `mapstructure:"aws_access_key"`
	AWSSecretKey    string `mapstructure:"aws_secret_key"`
	AWSRegion       string `mapstructure:"aws_region"`
	BedrockAgentID  string `mapstructure:"bedrock_agent_id"`
	BedrockAliasID  string `mapstructure:"bedrock_alias_id"`
	GeminiAPIKey    string `mapstructure:"gemini_api_key"`
	GeminiModel     string `mapstructure:"gemini_model"`
	GeminiMaxTokens int32  `mapstructure:"gemini_max_tokens"`
}

// SessionConfig controls agent session continuity.
type SessionConfig struct {
	// IdleTimeout is how long a session may sit without activity before a
	// fresh agent session is minted for the next message.
	IdleTimeout time.Duration `mapstructure:"idle_timeout" validate:"min=1m"`
	// SeedHistory is the number of stored messages replayed as seed
	// context when a fresh session starts. Zero relies entirely on the
	// backend's own memory.
	SeedHistory int `mapstructure:"seed_history" validate:"min=0,max=100"`
}

// HistoryConfig bounds chat history reads.
type HistoryConfig struct {
	DefaultLimit int `mapstructure:"default_limit" validate:"min=1"`
	MaxLimit     int `mapstructure:"max_limit"     validate:"min=1,max=500"`
}

// PlatformsConfig groups the per-platform credentials.
type PlatformsConfig struct {
	Facebook  MetaPlatformConfig `mapstructure:"facebook"`
	Instagram MetaPlatformConfig `mapstructure:"instagram"`
	WhatsApp  WhatsAppConfig     `mapstructure:"whatsapp"`
}

// MetaPlatformConfig holds Messenger/Instagram Graph API credentials.
type MetaPlatformConfig struct {
	AccessToken string `mapstructure:"access_token"`
	VerifyToken string `mapstructure:"verify_token"`
	AppSecret   string `mapstructure:"app_secret"`
}

// WhatsAppConfig holds WhatsApp Cloud API credentials.
type WhatsAppConfig struct {
	AccessToken   string `mapstructure:"access_token"`
	VerifyToken   string `mapstructure:"verify_token"`
	AppSecret     string `mapstructure:"app_secret"`
	PhoneNumberID string `mapstructure:"phone_number_id"`
}

// TranslateConfig controls the multi-language workflow.
type TranslateConfig struct {
	Enabled   bool       `mapstructure:"enabled"`
	Region    string     `mapstructure:"region"`
	Languages []Language `mapstructure:"languages" validate:"dive"`
}

// Language is one selectable user language.
type Language struct {
	Code string `mapstructure:"code" validate:"required"`
	Name string `mapstructure:"name" validate:"required"`
}

// SchedulerConfig holds per-task schedules keyed by task name.
type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks"`
}

// TaskConfig configures a single scheduled task. The schedule is a cron
// expression with an optional seconds field.
type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
}

// LoadConfig reads configuration from the given path, applies defaults and
// environment overrides, and validates the result.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("SOCIALSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine, defaults plus env cover it.
		if !isNotFound(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if err := cfg.validateProvider(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func isNotFound(err error) bool {
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		return true
	}
	// viper returns a plain *fs.PathError when SetConfigFile points at a
	// missing file rather than ConfigFileNotFoundError.
	return strings.Contains(err.Error(), "no such file")
}

// validateProvider enforces the credential requirements of the selected
// agent backend, which struct tags alone cannot express.
func (c *Config) validateProvider() error {
	switch c.Agent.Provider {
	case "bedrock":
		if c.Agent.BedrockAgentID == "" || c.Agent.BedrockAliasID == "" {
			return fmt.Errorf("invalid configuration: bedrock provider requires agent.bedrock_agent_id and agent.bedrock_alias_id")
		}
	case "gemini":
		if c.Agent.GeminiAPIKey == "" {
			return fmt.Errorf("invalid configuration: gemini provider requires agent.gemini_api_key")
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.json", true)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.path", "socialsync.db")

	v.SetDefault("agent.provider", "bedrock")
	v.SetDefault("agent.timeout", 2*time.Minute)
	v.SetDefault("agent.aws_region", "us-east-1")
	v.SetDefault("agent.gemini_model", "gemini-2.0-flash")

	// Credentials usually arrive via SOCIALSYNC_* environment variables;
	// registering the keys makes AutomaticEnv pick them up on Unmarshal.
	for _, key := range []string{
		"agent.aws_access_key", "agent.aws_secret_key",
		"agent.bedrock_agent_id", "agent.bedrock_alias_id",
		"agent.gemini_api_key",
		"platforms.facebook.access_token", "platforms.facebook.verify_token", "platforms.facebook.app_secret",
		"platforms.instagram.access_token", "platforms.instagram.verify_token", "platforms.instagram.app_secret",
		"platforms.whatsapp.access_token", "platforms.whatsapp.verify_token", "platforms.whatsapp.app_secret",
		"platforms.whatsapp.phone_number_id",
	} {
		v.SetDefault(key, "")
	}

	v.SetDefault("session.idle_timeout", 24*time.Hour)
	v.SetDefault("session.seed_history", 0)

	v.SetDefault("history.default_limit", 50)
	v.SetDefault("history.max_limit", 200)

	v.SetDefault("translate.enabled", false)
	v.SetDefault("translate.region", "us-east-1")

	v.SetDefault("scheduler.tasks.db_maintenance.enabled", true)
	v.SetDefault("scheduler.tasks.db_maintenance.schedule", "0 0 4 * * *")
	v.SetDefault("scheduler.tasks.session_sweep.enabled", true)
	v.SetDefault("scheduler.tasks.session_sweep.schedule", "0 */30 * * * *")
}
