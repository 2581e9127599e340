package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadPolicy(t *testing.T) {
	dir := t.TempDir()

	t.Run("full policy file", func(t *testing.T) {
		path := filepath.Join(dir, "policy.yaml")
		content := `safety:
  max_attempts_per_incident: 4
  max_sessions_per_window: 6
  rate_window_minutes: 90
  kill_switch_threshold: 5
  kill_switch_minutes: 30
  auto_commit_threshold: 98
  kb_auto_apply_threshold: 80
  verify_timeout_seconds: 45
  cooldown_seconds: 2
  require_deployment: true
`
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("writing policy file: %v", err)
		}

		policy, err := LoadPolicy(path)
		if err != nil {
			t.Fatalf("LoadPolicy() error = %v", err)
		}
		cfg, err := policy.ToSafetyConfig()
		if err != nil {
			t.Fatalf("ToSafetyConfig() error = %v", err)
		}

		if cfg.MaxAttemptsPerIncident != 4 {
			t.Errorf("MaxAttemptsPerIncident = %v, want 4", cfg.MaxAttemptsPerIncident)
		}
		if cfg.WindowDuration != 90*time.Minute {
			t.Errorf("WindowDuration = %v, want 90m", cfg.WindowDuration)
		}
		if cfg.AutoCommitThreshold != 98 {
			t.Errorf("AutoCommitThreshold = %v, want 98", cfg.AutoCommitThreshold)
		}
		if cfg.Cooldown != 2*time.Second {
			t.Errorf("Cooldown = %v, want 2s", cfg.Cooldown)
		}
		if !cfg.RequireDeployment {
			t.Error("RequireDeployment = false, want true")
		}
	})

	t.Run("partial policy keeps defaults", func(t *testing.T) {
		path := filepath.Join(dir, "partial.yaml")
		content := `safety:
  max_attempts_per_incident: 2
`
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("writing policy file: %v", err)
		}

		policy, err := LoadPolicy(path)
		if err != nil {
			t.Fatalf("LoadPolicy() error = %v", err)
		}
		cfg, err := policy.ToSafetyConfig()
		if err != nil {
			t.Fatalf("ToSafetyConfig() error = %v", err)
		}

		defaults := DefaultSafetyConfig()
		if cfg.MaxAttemptsPerIncident != 2 {
			t.Errorf("MaxAttemptsPerIncident = %v, want 2", cfg.MaxAttemptsPerIncident)
		}
		if cfg.KillSwitchThreshold != defaults.KillSwitchThreshold {
			t.Errorf("KillSwitchThreshold = %v, want default %v", cfg.KillSwitchThreshold, defaults.KillSwitchThreshold)
		}
		if cfg.RequireDeployment != defaults.RequireDeployment {
			t.Errorf("RequireDeployment = %v, want default %v", cfg.RequireDeployment, defaults.RequireDeployment)
		}
	})

	t.Run("explicit zero threshold overrides default", func(t *testing.T) {
		// kb_auto_apply_threshold: 0 means "apply every match", which
		// must be distinguishable from the key being absent.
		path := filepath.Join(dir, "zero.yaml")
		content := `safety:
  kb_auto_apply_threshold: 0
`
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("writing policy file: %v", err)
		}

		policy, err := LoadPolicy(path)
		if err != nil {
			t.Fatalf("LoadPolicy() error = %v", err)
		}
		cfg, err := policy.ToSafetyConfig()
		if err != nil {
			t.Fatalf("ToSafetyConfig() error = %v", err)
		}
		if cfg.KBAutoApplyThreshold != 0 {
			t.Errorf("KBAutoApplyThreshold = %v, want 0", cfg.KBAutoApplyThreshold)
		}
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := filepath.Join(dir, "broken.yaml")
		if err := os.WriteFile(path, []byte("safety: [not a map"), 0644); err != nil {
			t.Fatalf("writing policy file: %v", err)
		}
		if _, err := LoadPolicy(path); err == nil {
			t.Error("LoadPolicy() = nil, want parse error")
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := LoadPolicy(filepath.Join(dir, "missing.yaml")); err == nil {
			t.Error("LoadPolicy() = nil, want error for missing file")
		}
	})

	t.Run("out of range value fails validation", func(t *testing.T) {
		path := filepath.Join(dir, "range.yaml")
		content := `safety:
  max_attempts_per_incident: 99
`
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("writing policy file: %v", err)
		}
		policy, err := LoadPolicy(path)
		if err != nil {
			t.Fatalf("LoadPolicy() error = %v", err)
		}
		if _, err := policy.ToSafetyConfig(); err == nil {
			t.Error("ToSafetyConfig() = nil, want range error")
		}
	})
}

func TestSaveDefaultPolicy(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")

	if err := SaveDefaultPolicy(path); err != nil {
		t.Fatalf("SaveDefaultPolicy() error = %v", err)
	}

	policy, err := LoadPolicy(path)
	if err != nil {
		t.Fatalf("LoadPolicy() after save error = %v", err)
	}
	cfg, err := policy.ToSafetyConfig()
	if err != nil {
		t.Fatalf("ToSafetyConfig() error = %v", err)
	}
	if cfg != DefaultSafetyConfig() {
		t.Errorf("round-tripped config = %+v, want defaults", cfg)
	}
}
