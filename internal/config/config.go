package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"taskvault/internal/domain"
)

// Config models taskvault.yml: the retention and scheduling defaults
// used to seed the persisted settings record on first run.
type Config struct {
	Retention struct {
		CompletedTaskDays      int `yaml:"completed_task_days"`
		OverdueTaskDays        int `yaml:"overdue_task_days"`
		HistoryMonths          int `yaml:"history_months"`
		HistoryCleanupFreqDays int `yaml:"history_cleanup_frequency_days"`
	} `yaml:"retention"`
	Cleanup struct {
		FrequencyDays int `yaml:"frequency_days"`
	} `yaml:"cleanup"`
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "taskvault.yml")
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate ensures all durations are usable. Zero values are legal
// everywhere: zero retention means never expire, zero cleanup
// frequency means manual-only.
func (c *Config) Validate() error {
	if c.Retention.CompletedTaskDays < 0 {
		return fmt.Errorf("retention.completed_task_days must be >= 0")
	}
	if c.Retention.OverdueTaskDays < 0 {
		return fmt.Errorf("retention.overdue_task_days must be >= 0")
	}
	if c.Retention.HistoryMonths < 0 {
		return fmt.Errorf("retention.history_months must be >= 0")
	}
	if c.Retention.HistoryCleanupFreqDays < 0 {
		return fmt.Errorf("retention.history_cleanup_frequency_days must be >= 0")
	}
	if c.Cleanup.FrequencyDays < 0 {
		return fmt.Errorf("cleanup.frequency_days must be >= 0")
	}
	return nil
}

// Default returns the built-in defaults as a Config.
func Default() *Config {
	var cfg Config
	cfg.Retention.CompletedTaskDays = 30
	cfg.Retention.OverdueTaskDays = 90
	cfg.Retention.HistoryMonths = 3
	cfg.Retention.HistoryCleanupFreqDays = 30
	cfg.Cleanup.FrequencyDays = 7
	return &cfg
}

// Settings maps the config onto a fresh settings record.
func (c *Config) Settings(now time.Time) domain.Settings {
	return domain.Settings{
		CompletedTaskRetentionDays:  c.Retention.CompletedTaskDays,
		OverdueTaskRetentionDays:    c.Retention.OverdueTaskDays,
		HistoryRetentionMonths:      c.Retention.HistoryMonths,
		HistoryCleanupFrequencyDays: c.Retention.HistoryCleanupFreqDays,
		CleanupFrequencyDays:        c.Cleanup.FrequencyDays,
		LastCleanup:                 now,
		LastHistoryCleanup:          now,
	}
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

const defaultTemplate = `retention:
  # Days a completed task stays active before moving to history.
  # 0 keeps completed tasks forever.
  completed_task_days: 30

  # Days an overdue task stays active past its due date.
  # 0 keeps overdue tasks forever.
  overdue_task_days: 90

  # Months a history entry is retained before permanent removal.
  # 0 keeps history forever.
  history_months: 3

  history_cleanup_frequency_days: 30

cleanup:
  # Days between scheduled cleanup runs at startup. 0 disables the
  # schedule; cleanup then only runs on demand.
  frequency_days: 7
`
