package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Default operational locations. State lives under a dot directory in the
// workspace so one checkout carries its own healer database and socket.
const (
	DefaultStateDirName = ".mend"
	DefaultDBFile       = "mend.db"
	DefaultSocketFile   = "mend.sock"
	DefaultPolicyFile   = "policy.yaml"
	DefaultListenAddr   = "127.0.0.1:8797"
)

// AppConfig holds the operational settings of a mend process: where state
// lives, what the daemon listens on, and how the worker agent is tuned.
// The safety thresholds are a separate concern (SafetyConfig).
type AppConfig struct {
	// WorkspaceRoot is the repository the healer operates on
	WorkspaceRoot string

	// StateDir holds the database, control socket, and policy file
	StateDir string

	DBPath     string
	SocketPath string
	PolicyPath string

	// ListenAddr is the address of the HTTP intake server (incident and
	// deployment webhooks). Empty disables the HTTP surface.
	ListenAddr string

	// OwnerUserID short-circuits identity resolution when set; otherwise
	// the persisted owner or first admin is used
	OwnerUserID string

	// TypeCheckCommand overrides the verification type check, split on
	// whitespace (e.g. "npx tsc --noEmit"). Empty means auto-detect.
	TypeCheckCommand []string

	// Worker agent tuning. Zero values fall back to the agent defaults.
	WorkerMaxInFlight    int
	WorkerSubmitInterval time.Duration
	WorkerJobTimeout     time.Duration
}

// DefaultAppConfig returns the operational defaults for a workspace.
func DefaultAppConfig(workspaceRoot string) AppConfig {
	if workspaceRoot == "" {
		workspaceRoot = "."
	}
	stateDir := filepath.Join(workspaceRoot, DefaultStateDirName)
	return AppConfig{
		WorkspaceRoot: workspaceRoot,
		StateDir:      stateDir,
		DBPath:        filepath.Join(stateDir, DefaultDBFile),
		SocketPath:    filepath.Join(stateDir, DefaultSocketFile),
		PolicyPath:    filepath.Join(stateDir, DefaultPolicyFile),
		ListenAddr:    DefaultListenAddr,
	}
}

// AppConfigFromEnv builds the operational config from environment
// variables, falling back to defaults derived from workspaceRoot.
//
// Environment variables:
//   - MEND_WORKSPACE_ROOT: repository to heal (default: current directory)
//   - MEND_STATE_DIR: state directory (default: <workspace>/.mend)
//   - MEND_DB_PATH, MEND_SOCKET_PATH, MEND_POLICY_PATH: individual paths
//   - MEND_LISTEN_ADDR: HTTP intake address ("off" disables HTTP)
//   - MEND_OWNER_USER_ID: system user for worker delegation
//   - MEND_TYPECHECK_COMMAND: verification command override
//   - MEND_WORKER_MAX_IN_FLIGHT: concurrent repair jobs
//   - MEND_WORKER_SUBMIT_INTERVAL_SECONDS: gap between job dispatches
//   - MEND_WORKER_JOB_TIMEOUT_SECONDS: wall-clock limit per repair job
func AppConfigFromEnv(workspaceRoot string) (AppConfig, error) {
	if err := parseEnvString("MEND_WORKSPACE_ROOT", &workspaceRoot); err != nil {
		return AppConfig{}, err
	}
	cfg := DefaultAppConfig(workspaceRoot)

	// A custom state directory moves the derived paths with it; individual
	// path overrides below still win.
	stateDir := cfg.StateDir
	if err := parseEnvString("MEND_STATE_DIR", &stateDir); err != nil {
		return cfg, err
	}
	if stateDir != cfg.StateDir {
		cfg.StateDir = stateDir
		cfg.DBPath = filepath.Join(stateDir, DefaultDBFile)
		cfg.SocketPath = filepath.Join(stateDir, DefaultSocketFile)
		cfg.PolicyPath = filepath.Join(stateDir, DefaultPolicyFile)
	}

	if err := parseEnvString("MEND_DB_PATH", &cfg.DBPath); err != nil {
		return cfg, err
	}
	if err := parseEnvString("MEND_SOCKET_PATH", &cfg.SocketPath); err != nil {
		return cfg, err
	}
	if err := parseEnvString("MEND_POLICY_PATH", &cfg.PolicyPath); err != nil {
		return cfg, err
	}
	if err := parseEnvString("MEND_LISTEN_ADDR", &cfg.ListenAddr); err != nil {
		return cfg, err
	}
	if strings.EqualFold(cfg.ListenAddr, "off") {
		cfg.ListenAddr = ""
	}
	if err := parseEnvString("MEND_OWNER_USER_ID", &cfg.OwnerUserID); err != nil {
		return cfg, err
	}

	if raw := os.Getenv("MEND_TYPECHECK_COMMAND"); raw != "" {
		cfg.TypeCheckCommand = strings.Fields(raw)
	}

	if err := parseEnvInt("MEND_WORKER_MAX_IN_FLIGHT", &cfg.WorkerMaxInFlight); err != nil {
		return cfg, err
	}
	submitSeconds := int(cfg.WorkerSubmitInterval / time.Second)
	if err := parseEnvInt("MEND_WORKER_SUBMIT_INTERVAL_SECONDS", &submitSeconds); err != nil {
		return cfg, err
	}
	cfg.WorkerSubmitInterval = time.Duration(submitSeconds) * time.Second
	timeoutSeconds := int(cfg.WorkerJobTimeout / time.Second)
	if err := parseEnvInt("MEND_WORKER_JOB_TIMEOUT_SECONDS", &timeoutSeconds); err != nil {
		return cfg, err
	}
	cfg.WorkerJobTimeout = time.Duration(timeoutSeconds) * time.Second

	if cfg.WorkerMaxInFlight < 0 {
		return cfg, fmt.Errorf("MEND_WORKER_MAX_IN_FLIGHT cannot be negative (got %d)", cfg.WorkerMaxInFlight)
	}
	return cfg, nil
}

// LoadSafety resolves the effective safety thresholds: defaults, then the
// policy file when present, then MEND_* environment overrides. A missing
// policy file is not an error; a malformed one is.
func LoadSafety(policyPath string) (SafetyConfig, error) {
	cfg := DefaultSafetyConfig()

	if policyPath != "" {
		if _, err := os.Stat(policyPath); err == nil {
			policy, err := LoadPolicy(policyPath)
			if err != nil {
				return cfg, err
			}
			cfg, err = policy.ToSafetyConfig()
			if err != nil {
				return cfg, err
			}
		}
	}

	if err := ApplySafetyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
