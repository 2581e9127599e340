package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// PolicyConfig represents the healing policy loaded from YAML. It covers
// the safety envelope thresholds; operational settings (paths, addresses,
// worker model) come from flags and environment variables.
type PolicyConfig struct {
	Safety SafetyYAML `yaml:"safety"`
}

// SafetyYAML mirrors SafetyConfig in the policy file. Zero values mean
// "keep the default"; durations use integer minutes/seconds fields so the
// file stays obvious to hand-edit.
type SafetyYAML struct {
	MaxAttemptsPerIncident int  `yaml:"max_attempts_per_incident,omitempty"`
	MaxSessionsPerWindow   int  `yaml:"max_sessions_per_window,omitempty"`
	WindowMinutes          int  `yaml:"window_minutes,omitempty"`
	KillSwitchThreshold    int  `yaml:"kill_switch_threshold,omitempty"`
	KillSwitchMinutes      int  `yaml:"kill_switch_minutes,omitempty"`
	AutoCommitThreshold    *int `yaml:"auto_commit_threshold,omitempty"`
	KBAutoApplyThreshold   *int `yaml:"kb_auto_apply_threshold,omitempty"`
	VerifyTimeoutSeconds   int  `yaml:"verify_timeout_seconds,omitempty"`
	CooldownSeconds        *int `yaml:"cooldown_seconds,omitempty"`
	RequireDeployment      *bool `yaml:"require_deployment,omitempty"`
}

// LoadPolicy loads a healing policy from a YAML file.
func LoadPolicy(path string) (*PolicyConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading policy file: %w", err)
	}

	var policy PolicyConfig
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}
	return &policy, nil
}

// ToSafetyConfig converts the policy to a SafetyConfig, starting from the
// defaults and overriding only the fields the file sets.
func (p *PolicyConfig) ToSafetyConfig() (SafetyConfig, error) {
	cfg := DefaultSafetyConfig()
	s := p.Safety

	if s.MaxAttemptsPerIncident > 0 {
		cfg.MaxAttemptsPerIncident = s.MaxAttemptsPerIncident
	}
	if s.MaxSessionsPerWindow > 0 {
		cfg.MaxSessionsPerWindow = s.MaxSessionsPerWindow
	}
	if s.WindowMinutes > 0 {
		cfg.WindowDuration = time.Duration(s.WindowMinutes) * time.Minute
	}
	if s.KillSwitchThreshold > 0 {
		cfg.KillSwitchThreshold = s.KillSwitchThreshold
	}
	if s.KillSwitchMinutes > 0 {
		cfg.KillSwitchDuration = time.Duration(s.KillSwitchMinutes) * time.Minute
	}
	if s.AutoCommitThreshold != nil {
		cfg.AutoCommitThreshold = *s.AutoCommitThreshold
	}
	if s.KBAutoApplyThreshold != nil {
		cfg.KBAutoApplyThreshold = *s.KBAutoApplyThreshold
	}
	if s.VerifyTimeoutSeconds > 0 {
		cfg.VerifyTimeout = time.Duration(s.VerifyTimeoutSeconds) * time.Second
	}
	if s.CooldownSeconds != nil {
		cfg.Cooldown = time.Duration(*s.CooldownSeconds) * time.Second
	}
	if s.RequireDeployment != nil {
		cfg.RequireDeployment = *s.RequireDeployment
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid policy file: %w", err)
	}
	return cfg, nil
}

// DefaultPolicy returns a policy mirroring the built-in defaults.
func DefaultPolicy() *PolicyConfig {
	def := DefaultSafetyConfig()
	auto := def.AutoCommitThreshold
	kb := def.KBAutoApplyThreshold
	cooldown := int(def.Cooldown / time.Second)
	require := def.RequireDeployment
	return &PolicyConfig{
		Safety: SafetyYAML{
			MaxAttemptsPerIncident: def.MaxAttemptsPerIncident,
			MaxSessionsPerWindow:   def.MaxSessionsPerWindow,
			WindowMinutes:          int(def.WindowDuration / time.Minute),
			KillSwitchThreshold:    def.KillSwitchThreshold,
			KillSwitchMinutes:      int(def.KillSwitchDuration / time.Minute),
			AutoCommitThreshold:    &auto,
			KBAutoApplyThreshold:   &kb,
			VerifyTimeoutSeconds:   int(def.VerifyTimeout / time.Second),
			CooldownSeconds:        &cooldown,
			RequireDeployment:      &require,
		},
	}
}

// SaveDefaultPolicy writes the default policy to a file.
func SaveDefaultPolicy(path string) error {
	data, err := yaml.Marshal(DefaultPolicy())
	if err != nil {
		return fmt.Errorf("marshaling policy: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing policy file: %w", err)
	}
	return nil
}
