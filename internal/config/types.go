package config

import (
	"time"

	"change-watch/internal/logger"
)

// Settings is the resolved configuration of change-watch.
type Settings struct {
	Input         InputConfig         `koanf:"input"`
	Storage       StorageConfig       `koanf:"storage"`
	Comparison    ComparisonConfig    `koanf:"comparison"`
	Notifications NotificationsConfig `koanf:"notifications"`
	Report        ReportConfig        `koanf:"report"`
	Metrics       MetricsConfig       `koanf:"metrics"`
	Watch         WatchConfig         `koanf:"watch"`
	Schedule      ScheduleConfig      `koanf:"schedule"`
	Logging       logger.Config       `koanf:"logging"`
}

// InputConfig locates the source files.
type InputConfig struct {
	DataDirectory string `koanf:"data_directory" validate:"required"`
	FilePattern   string `koanf:"file_pattern" validate:"required"`
	// Concurrency is the number of sources analyzed in parallel.
	Concurrency int `koanf:"concurrency" validate:"min=1,max=64"`
}

// StorageConfig selects the snapshot backend and its retention.
type StorageConfig struct {
	Backend          string `koanf:"backend" validate:"oneof=file badger sqlite"`
	HistoryDirectory string `koanf:"history_directory" validate:"required"`
	MaxHistoryDays   int    `koanf:"max_history_days" validate:"min=0"`
	MinSnapshots     int    `koanf:"min_snapshots" validate:"min=1"`
}

// ComparisonConfig tunes the diff engine.
type ComparisonConfig struct {
	UseContentHash bool `koanf:"use_content_hash"`
}

// NotificationsConfig holds the notification sinks.
type NotificationsConfig struct {
	Retry   RetryConfig   `koanf:"retry"`
	Slack   SlackConfig   `koanf:"slack"`
	Webhook WebhookConfig `koanf:"webhook"`
}

// RetryConfig bounds delivery attempts per sink.
type RetryConfig struct {
	MaxAttempts     uint          `koanf:"max_attempts" validate:"min=1,max=10"`
	InitialInterval time.Duration `koanf:"initial_interval" validate:"min=0"`
}

// SlackConfig configures the Slack incoming-webhook sink.
type SlackConfig struct {
	Enabled bool `koanf:"enabled"`
	// WebhookURL may be "env:NAME" to read the URL from the environment.
	WebhookURL string        `koanf:"webhook_url" validate:"required_if=Enabled true"`
	Channel    string        `koanf:"channel"`
	Username   string        `koanf:"username"`
	IconEmoji  string        `koanf:"icon_emoji"`
	Timeout    time.Duration `koanf:"timeout" validate:"min=0"`
}

// WebhookConfig configures the generic JSON webhook sink.
type WebhookConfig struct {
	Enabled bool          `koanf:"enabled"`
	URL     string        `koanf:"url" validate:"required_if=Enabled true"`
	Timeout time.Duration `koanf:"timeout" validate:"min=0"`
}

// ReportConfig controls report output.
type ReportConfig struct {
	// Directory, when set, receives a JSON report per cycle.
	Directory string `koanf:"directory"`
	Format    string `koanf:"format" validate:"oneof=json yaml text"`
}

// MetricsConfig controls metrics export.
type MetricsConfig struct {
	Textfile      string `koanf:"textfile"`
	ListenAddress string `koanf:"listen_address" validate:"omitempty,hostname_port"`
}

// WatchConfig tunes the directory watcher.
type WatchConfig struct {
	Debounce time.Duration `koanf:"debounce" validate:"min=0"`
}

// ScheduleConfig holds the cron expression for periodic runs.
type ScheduleConfig struct {
	Cron string `koanf:"cron"`
}

// defaults mirrors Settings with the values used when nothing is configured.
func defaults() map[string]any {
	return map[string]any{
		"input": map[string]any{
			"data_directory": "data/input",
			"file_pattern":   "*.jsonl",
			"concurrency":    1,
		},
		"storage": map[string]any{
			"backend":           "file",
			"history_directory": "data/history",
			"max_history_days":  30,
			"min_snapshots":     1,
		},
		"comparison": map[string]any{
			"use_content_hash": true,
		},
		"notifications": map[string]any{
			"retry": map[string]any{
				"max_attempts":     3,
				"initial_interval": "500ms",
			},
			"slack": map[string]any{
				"enabled":     false,
				"webhook_url": "env:CHANGEWATCH_SLACK_WEBHOOK",
				"username":    "change-watch",
				"icon_emoji":  ":mag:",
				"timeout":     "30s",
			},
			"webhook": map[string]any{
				"enabled": false,
				"timeout": "30s",
			},
		},
		"report": map[string]any{
			"format": "text",
		},
		"watch": map[string]any{
			"debounce": "2s",
		},
		"schedule": map[string]any{
			"cron": "@hourly",
		},
		"logging": map[string]any{
			"level":        logger.DefaultLevel,
			"output_paths": logger.DefaultOutputPaths,
		},
	}
}
