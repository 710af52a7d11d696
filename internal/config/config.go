// Package config manages application configuration from default values,
// config.yaml, and BOT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-telegram/bot/models"
	"github.com/spf13/viper"
)

// Config defines the application configuration for all components of the
// whoasked bot: logging, the Telegram adapter, storage, the tracker core,
// user-facing message texts, and scheduled maintenance.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Tracker   TrackerConfig   `mapstructure:"tracker"`
	Messages  MessagesConfig  `mapstructure:"messages"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// LoggerConfig controls log verbosity and output format.
type LoggerConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// TelegramConfig holds the bot credentials. BotInfo is filled at startup
// from GetMe and is not part of the file configuration.
type TelegramConfig struct {
	Token   string `mapstructure:"token"    validate:"required"`
	AdminID int64  `mapstructure:"admin_id" validate:"required,gt=0"`

	BotInfo *models.User `mapstructure:"-"`
}

// StorageConfig selects and locates the persistence driver.
type StorageConfig struct {
	Driver string `mapstructure:"driver" validate:"oneof=json sqlite"`
	Path   string `mapstructure:"path"   validate:"required"`
}

// TrackerConfig holds the two core tunables: how long recorded mentions are
// retained and how many results a query returns.
type TrackerConfig struct {
	RetentionDays int `mapstructure:"retention_days" validate:"required,min=1"`
	MaxMessages   int `mapstructure:"max_messages"   validate:"required,min=1"`
}

// MessagesConfig holds every user-facing reply text.
type MessagesConfig struct {
	Welcome         string `mapstructure:"welcome"`
	Help            string `mapstructure:"help"`
	NobodyAsked     string `mapstructure:"nobody_asked"`
	NobodyAskedHere string `mapstructure:"nobody_asked_here"`
	NotReady        string `mapstructure:"not_ready"`
	GeneralError    string `mapstructure:"general_error"`
	GroupOnly       string `mapstructure:"group_only"`
	NotAuthorized   string `mapstructure:"not_authorized"`
	MentionedYou    string `mapstructure:"mentioned_you"`
	RepliedToYou    string `mapstructure:"replied_to_you"`
	QuotedMessage   string `mapstructure:"quoted_message"`
}

// TaskConfig enables and schedules one named task.
type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
}

// SchedulerConfig maps task names to their schedules.
type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks"`
}

// LoadConfig reads configuration from the given YAML file, layers BOT_*
// environment variables on top, and validates the result. A missing config
// file is fine; defaults and environment variables apply.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("BOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		slog.Info("Configuration file not found, using defaults", "path", path)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.json", true)

	// Registered empty so BOT_TELEGRAM_* environment variables are picked up
	// even without a config file entry. Validation rejects the zero values.
	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.admin_id", 0)

	v.SetDefault("storage.driver", "json")
	v.SetDefault("storage.path", "data/message_records.json")

	v.SetDefault("tracker.retention_days", 7)
	v.SetDefault("tracker.max_messages", 10)

	v.SetDefault("scheduler.tasks.store_maintenance.enabled", false)
	v.SetDefault("scheduler.tasks.store_maintenance.schedule", "0 0 4 * * *")

	v.SetDefault("messages.welcome", "Hello! I keep track of who mentions you. Send /whoasked in a group to see who asked about you.")
	v.SetDefault("messages.help", "I record @-mentions and replies in group chats. Use /whoasked in a group to list the recent messages that mentioned you or replied to you.")
	v.SetDefault("messages.nobody_asked", "Nobody asked about you recently.")
	v.SetDefault("messages.nobody_asked_here", "Nobody asked about you in this group recently.")
	v.SetDefault("messages.not_ready", "The message recorder is still starting up. Please try again in a moment.")
	v.SetDefault("messages.general_error", "Something went wrong. Please try again later.")
	v.SetDefault("messages.group_only", "This command only works in group chats.")
	v.SetDefault("messages.not_authorized", "You are not authorized to use this command.")
	v.SetDefault("messages.mentioned_you", "mentioned you")
	v.SetDefault("messages.replied_to_you", "replied to your message")
	v.SetDefault("messages.quoted_message", "wrote the message that was replied to")
}
