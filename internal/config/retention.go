package config

import (
	"fmt"
)

// EventRetentionConfig holds configuration for healing event retention.
// The healing_events table is the only unbounded-growth table in the
// store, so it gets periodic cleanup.
type EventRetentionConfig struct {
	// RetentionDays is how long healing events are kept
	// Default: 30, Range: 1-365
	RetentionDays int

	// GlobalLimitEvents caps the total number of stored events; oldest
	// rows are deleted first once the cap is exceeded
	// Default: 100000, Range: 1000-1000000
	GlobalLimitEvents int

	// CleanupIntervalHours is how often the retention sweep runs
	// Default: 24, Range: 1-168
	CleanupIntervalHours int

	// CleanupBatchSize is the number of events deleted per transaction
	// Default: 1000, Range: 100-10000
	CleanupBatchSize int

	// CleanupEnabled controls whether the sweep runs at all
	// Default: true
	CleanupEnabled bool
}

// DefaultEventRetentionConfig returns the default retention configuration
func DefaultEventRetentionConfig() EventRetentionConfig {
	return EventRetentionConfig{
		RetentionDays:        30,
		GlobalLimitEvents:    100000,
		CleanupIntervalHours: 24,
		CleanupBatchSize:     1000,
		CleanupEnabled:       true,
	}
}

// Validate checks if the configuration has valid values
func (c EventRetentionConfig) Validate() error {
	if c.RetentionDays < 1 || c.RetentionDays > 365 {
		return fmt.Errorf("retention_days must be between 1 and 365 (got %d)", c.RetentionDays)
	}
	if c.GlobalLimitEvents < 1000 {
		return fmt.Errorf("global_limit_events must be at least 1000 (got %d)", c.GlobalLimitEvents)
	}
	if c.GlobalLimitEvents > 1000000 {
		return fmt.Errorf("global_limit_events too large (got %d, max 1000000)", c.GlobalLimitEvents)
	}
	if c.CleanupIntervalHours < 1 || c.CleanupIntervalHours > 168 {
		return fmt.Errorf("cleanup_interval_hours must be between 1 and 168 (got %d)",
			c.CleanupIntervalHours)
	}
	if c.CleanupBatchSize < 100 || c.CleanupBatchSize > 10000 {
		return fmt.Errorf("cleanup_batch_size must be between 100 and 10000 (got %d)",
			c.CleanupBatchSize)
	}
	return nil
}

// EventRetentionConfigFromEnv creates an EventRetentionConfig from
// environment variables, falling back to defaults
//
// Environment variables:
//   - MEND_EVENT_RETENTION_DAYS: retention period in days (default: 30)
//   - MEND_EVENT_GLOBAL_LIMIT: maximum total events (default: 100000)
//   - MEND_EVENT_CLEANUP_INTERVAL_HOURS: sweep interval in hours (default: 24)
//   - MEND_EVENT_CLEANUP_BATCH_SIZE: rows deleted per transaction (default: 1000)
//   - MEND_EVENT_CLEANUP_ENABLED: enable the sweep (default: true)
func EventRetentionConfigFromEnv() (EventRetentionConfig, error) {
	cfg := DefaultEventRetentionConfig()

	if err := parseEnvInt("MEND_EVENT_RETENTION_DAYS", &cfg.RetentionDays); err != nil {
		return cfg, err
	}
	if err := parseEnvInt("MEND_EVENT_GLOBAL_LIMIT", &cfg.GlobalLimitEvents); err != nil {
		return cfg, err
	}
	if err := parseEnvInt("MEND_EVENT_CLEANUP_INTERVAL_HOURS", &cfg.CleanupIntervalHours); err != nil {
		return cfg, err
	}
	if err := parseEnvInt("MEND_EVENT_CLEANUP_BATCH_SIZE", &cfg.CleanupBatchSize); err != nil {
		return cfg, err
	}
	if err := parseEnvBool("MEND_EVENT_CLEANUP_ENABLED", &cfg.CleanupEnabled); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid event retention configuration from environment: %w", err)
	}
	return cfg, nil
}
