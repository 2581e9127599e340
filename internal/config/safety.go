package config

import (
	"fmt"
	"time"
)

// SafetyConfig holds the thresholds of the healing safety envelope.
// Every limit here exists to keep a misbehaving healing loop from doing
// more damage than the incidents it repairs.
type SafetyConfig struct {
	// MaxAttemptsPerIncident is how many healing sessions an incident may
	// consume before it is terminally failed
	// Default: 3, Range: 1-10
	MaxAttemptsPerIncident int

	// MaxSessionsPerWindow is the admission rate limit: at most this many
	// sessions may start within WindowDuration
	// Default: 3, Range: 1-100
	MaxSessionsPerWindow int

	// WindowDuration is the rolling window for the rate limit
	// Default: 1h, Range: 1m-24h
	WindowDuration time.Duration

	// KillSwitchThreshold is the number of consecutive terminal failures
	// that trips the kill switch
	// Default: 3, Range: 1-20
	KillSwitchThreshold int

	// KillSwitchDuration is how long healing stays disabled once tripped
	// Default: 1h, Range: 1m-24h
	KillSwitchDuration time.Duration

	// AutoCommitThreshold is the minimum confidence score (0-100) for
	// committing a fix directly to main; below it a PR is opened instead
	// Default: 95 (inclusive)
	AutoCommitThreshold int

	// KBAutoApplyThreshold is the minimum knowledge base match confidence
	// (0-100) for selecting the Tier 1 auto-fix path
	// Default: 90 (inclusive)
	KBAutoApplyThreshold int

	// VerifyTimeout bounds the verification subprocess
	// Default: 30s, Range: 1s-10m
	VerifyTimeout time.Duration

	// Cooldown is the mandatory idle period after the healing lock is
	// released before the next session may acquire it
	// Default: 5s, Range: 0-5m
	Cooldown time.Duration

	// RequireDeployment controls whether auto-committed fixes must wait
	// for a deployment webhook before the session completes
	// Default: false (development environments have no deploy pipeline)
	RequireDeployment bool
}

// DefaultSafetyConfig returns the default safety envelope thresholds
func DefaultSafetyConfig() SafetyConfig {
	return SafetyConfig{
		MaxAttemptsPerIncident: 3,
		MaxSessionsPerWindow:   3,
		WindowDuration:         time.Hour,
		KillSwitchThreshold:    3,
		KillSwitchDuration:     time.Hour,
		AutoCommitThreshold:    95,
		KBAutoApplyThreshold:   90,
		VerifyTimeout:          30 * time.Second,
		Cooldown:               5 * time.Second,
		RequireDeployment:      false,
	}
}

// Validate checks if the configuration has valid values
func (c SafetyConfig) Validate() error {
	if c.MaxAttemptsPerIncident < 1 || c.MaxAttemptsPerIncident > 10 {
		return fmt.Errorf("max_attempts_per_incident must be between 1 and 10 (got %d)",
			c.MaxAttemptsPerIncident)
	}
	if c.MaxSessionsPerWindow < 1 || c.MaxSessionsPerWindow > 100 {
		return fmt.Errorf("max_sessions_per_window must be between 1 and 100 (got %d)",
			c.MaxSessionsPerWindow)
	}
	if c.WindowDuration < time.Minute || c.WindowDuration > 24*time.Hour {
		return fmt.Errorf("window_duration must be between 1m and 24h (got %s)", c.WindowDuration)
	}
	if c.KillSwitchThreshold < 1 || c.KillSwitchThreshold > 20 {
		return fmt.Errorf("kill_switch_threshold must be between 1 and 20 (got %d)",
			c.KillSwitchThreshold)
	}
	if c.KillSwitchDuration < time.Minute || c.KillSwitchDuration > 24*time.Hour {
		return fmt.Errorf("kill_switch_duration must be between 1m and 24h (got %s)",
			c.KillSwitchDuration)
	}
	if c.AutoCommitThreshold < 0 || c.AutoCommitThreshold > 100 {
		return fmt.Errorf("auto_commit_threshold must be between 0 and 100 (got %d)",
			c.AutoCommitThreshold)
	}
	if c.KBAutoApplyThreshold < 0 || c.KBAutoApplyThreshold > 100 {
		return fmt.Errorf("kb_auto_apply_threshold must be between 0 and 100 (got %d)",
			c.KBAutoApplyThreshold)
	}
	if c.VerifyTimeout < time.Second || c.VerifyTimeout > 10*time.Minute {
		return fmt.Errorf("verify_timeout must be between 1s and 10m (got %s)", c.VerifyTimeout)
	}
	if c.Cooldown < 0 || c.Cooldown > 5*time.Minute {
		return fmt.Errorf("cooldown must be between 0 and 5m (got %s)", c.Cooldown)
	}
	return nil
}

// String returns a human-readable representation of the config
func (c SafetyConfig) String() string {
	return fmt.Sprintf(
		"SafetyConfig{MaxAttempts: %d, RateLimit: %d per %s, KillSwitch: %d failures for %s, "+
			"AutoCommit: >=%d, KBAutoApply: >=%d, VerifyTimeout: %s, Cooldown: %s, RequireDeployment: %t}",
		c.MaxAttemptsPerIncident, c.MaxSessionsPerWindow, c.WindowDuration,
		c.KillSwitchThreshold, c.KillSwitchDuration, c.AutoCommitThreshold,
		c.KBAutoApplyThreshold, c.VerifyTimeout, c.Cooldown, c.RequireDeployment,
	)
}

// SafetyConfigFromEnv creates a SafetyConfig from environment variables,
// falling back to defaults
//
// Environment variables:
//   - MEND_MAX_ATTEMPTS_PER_INCIDENT: attempt cap per incident (default: 3)
//   - MEND_MAX_SESSIONS_PER_WINDOW: rate limit count (default: 3)
//   - MEND_RATE_WINDOW_MINUTES: rate limit window in minutes (default: 60)
//   - MEND_KILL_SWITCH_THRESHOLD: consecutive failures to trip (default: 3)
//   - MEND_KILL_SWITCH_MINUTES: kill switch duration in minutes (default: 60)
//   - MEND_AUTO_COMMIT_THRESHOLD: auto-commit confidence gate (default: 95)
//   - MEND_KB_AUTO_APPLY_THRESHOLD: Tier 1 confidence gate (default: 90)
//   - MEND_VERIFY_TIMEOUT_SECONDS: verification timeout in seconds (default: 30)
//   - MEND_COOLDOWN_SECONDS: post-release cooldown in seconds (default: 5)
//   - MEND_REQUIRE_DEPLOYMENT: wait for deployment webhooks (default: false)
//
// Returns an error if any environment variable has an invalid value.
func SafetyConfigFromEnv() (SafetyConfig, error) {
	cfg := DefaultSafetyConfig()
	if err := ApplySafetyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ApplySafetyEnv overlays MEND_* environment variables onto an existing
// config. Explicit environment settings win over whatever the config
// already holds (defaults or a policy file).
func ApplySafetyEnv(cfg *SafetyConfig) error {
	if err := parseEnvInt("MEND_MAX_ATTEMPTS_PER_INCIDENT", &cfg.MaxAttemptsPerIncident); err != nil {
		return err
	}
	if err := parseEnvInt("MEND_MAX_SESSIONS_PER_WINDOW", &cfg.MaxSessionsPerWindow); err != nil {
		return err
	}
	windowMinutes := int(cfg.WindowDuration / time.Minute)
	if err := parseEnvInt("MEND_RATE_WINDOW_MINUTES", &windowMinutes); err != nil {
		return err
	}
	cfg.WindowDuration = time.Duration(windowMinutes) * time.Minute
	if err := parseEnvInt("MEND_KILL_SWITCH_THRESHOLD", &cfg.KillSwitchThreshold); err != nil {
		return err
	}
	killMinutes := int(cfg.KillSwitchDuration / time.Minute)
	if err := parseEnvInt("MEND_KILL_SWITCH_MINUTES", &killMinutes); err != nil {
		return err
	}
	cfg.KillSwitchDuration = time.Duration(killMinutes) * time.Minute
	if err := parseEnvInt("MEND_AUTO_COMMIT_THRESHOLD", &cfg.AutoCommitThreshold); err != nil {
		return err
	}
	if err := parseEnvInt("MEND_KB_AUTO_APPLY_THRESHOLD", &cfg.KBAutoApplyThreshold); err != nil {
		return err
	}
	verifySeconds := int(cfg.VerifyTimeout / time.Second)
	if err := parseEnvInt("MEND_VERIFY_TIMEOUT_SECONDS", &verifySeconds); err != nil {
		return err
	}
	cfg.VerifyTimeout = time.Duration(verifySeconds) * time.Second
	cooldownSeconds := int(cfg.Cooldown / time.Second)
	if err := parseEnvInt("MEND_COOLDOWN_SECONDS", &cooldownSeconds); err != nil {
		return err
	}
	cfg.Cooldown = time.Duration(cooldownSeconds) * time.Second
	if err := parseEnvBool("MEND_REQUIRE_DEPLOYMENT", &cfg.RequireDeployment); err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid safety configuration from environment: %w", err)
	}
	return nil
}
