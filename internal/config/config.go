// Package config provides configuration loading and validation for the
// firtigh bot. Values come from a YAML file overridden by BOT_* environment
// variables.
package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-telegram/bot/models"
	"github.com/spf13/viper"
)

// Config defines the application configuration for all components.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Gemini    GeminiConfig    `mapstructure:"gemini"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Context   ContextConfig   `mapstructure:"context"`
	Limits    LimitsConfig    `mapstructure:"limits"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// LoggerConfig controls log output.
type LoggerConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// TelegramConfig holds the bot credentials and user-facing messages.
type TelegramConfig struct {
	Token    string         `mapstructure:"token"    validate:"required"`
	AdminID  int64          `mapstructure:"admin_id" validate:"required,gt=0"`
	Messages MessagesConfig `mapstructure:"messages"`

	// BotInfo is populated at startup from GetMe, not from the file.
	BotInfo *models.User `mapstructure:"-"`
}

// MessagesConfig holds the canned replies the bot sends outside of AI
// completions.
type MessagesConfig struct {
	Welcome       string `mapstructure:"welcome"`
	Help          string `mapstructure:"help"`
	NotAuthorized string `mapstructure:"not_authorized"`
	GeneralError  string `mapstructure:"general_error"`
	HistoryReset  string `mapstructure:"history_reset"`
	Unavailable   string `mapstructure:"unavailable"`
}

// GeminiConfig holds the AI client settings.
type GeminiConfig struct {
	APIKey            string       `mapstructure:"api_key" validate:"required"`
	Models            ModelsConfig `mapstructure:"models"`
	Temperature       float32      `mapstructure:"temperature"         validate:"min=0,max=2"`
	MaxRetries        int          `mapstructure:"max_retries"         validate:"min=0,max=10"`
	RetryDelaySeconds int          `mapstructure:"retry_delay_seconds" validate:"min=0,max=300"`
}

// ModelsConfig names the model used for each kind of request.
type ModelsConfig struct {
	Default  string `mapstructure:"default"  validate:"required"`
	Analysis string `mapstructure:"analysis" validate:"required"`
}

// DatabaseConfig holds storage settings.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// ContextConfig bounds the context assembled for each completion.
type ContextConfig struct {
	HistoryCap       int `mapstructure:"history_cap"        validate:"min=1,max=10000"`
	HistoryBudget    int `mapstructure:"history_budget"     validate:"min=100"`
	ShortThreshold   int `mapstructure:"short_threshold"    validate:"min=1"`
	SnippetsPerTopic int `mapstructure:"snippets_per_topic" validate:"min=1"`
	ProfileEntries   int `mapstructure:"profile_entries"    validate:"min=1"`
}

// LimitsConfig holds the daily capability allowances.
type LimitsConfig struct {
	DailySearch        int `mapstructure:"daily_search"         validate:"min=0"`
	DailyMedia         int `mapstructure:"daily_media"          validate:"min=0"`
	UsageRetentionDays int `mapstructure:"usage_retention_days" validate:"min=1"`
}

// SchedulerConfig holds the scheduled task table.
type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks"`
}

// TaskConfig configures one scheduled task.
type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
}

// LoadConfig reads configuration from the given YAML file, applies
// defaults and BOT_* environment overrides, and validates the result.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("BOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.json", true)

	v.SetDefault("telegram.messages.welcome", "سلام! من فیرتیق هستم. توی گروه منشنم کن تا جواب بدم.")
	v.SetDefault("telegram.messages.help", "منو با @ صدا بزن یا به پیامم ریپلای کن. دستورها: /start /help /reset /token_usage")
	v.SetDefault("telegram.messages.not_authorized", "این دستور فقط برای مدیر ربات است.")
	v.SetDefault("telegram.messages.general_error", "یک خطا پیش آمد. لطفا دوباره تلاش کن.")
	v.SetDefault("telegram.messages.history_reset", "تاریخچه این گروه پاک شد.")
	v.SetDefault("telegram.messages.unavailable", "الان نمی‌تونم جواب بدم، یک کم دیگه دوباره امتحان کن.")

	v.SetDefault("gemini.models.default", "gemini-2.5-flash")
	v.SetDefault("gemini.models.analysis", "gemini-2.0-flash")
	v.SetDefault("gemini.temperature", 1.0)
	v.SetDefault("gemini.max_retries", 2)
	v.SetDefault("gemini.retry_delay_seconds", 5)

	v.SetDefault("database.path", "storage.db")

	v.SetDefault("context.history_cap", 1000)
	v.SetDefault("context.history_budget", 4000)
	v.SetDefault("context.short_threshold", 6)
	v.SetDefault("context.snippets_per_topic", 10)
	v.SetDefault("context.profile_entries", 10)

	v.SetDefault("limits.daily_search", 50)
	v.SetDefault("limits.daily_media", 10)
	v.SetDefault("limits.usage_retention_days", 90)

	v.SetDefault("scheduler.tasks", map[string]TaskConfig{
		"sql_maintenance": {Enabled: true, Schedule: "0 0 4 * * *"},
		"usage_prune":     {Enabled: true, Schedule: "0 30 4 * * *"},
	})
}
