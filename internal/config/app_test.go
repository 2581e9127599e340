package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultAppConfigDerivesPaths(t *testing.T) {
	cfg := DefaultAppConfig("/srv/widgets")
	assert.Equal(t, "/srv/widgets", cfg.WorkspaceRoot)
	assert.Equal(t, filepath.Join("/srv/widgets", ".mend"), cfg.StateDir)
	assert.Equal(t, filepath.Join("/srv/widgets", ".mend", "mend.db"), cfg.DBPath)
	assert.Equal(t, filepath.Join("/srv/widgets", ".mend", "mend.sock"), cfg.SocketPath)
	assert.Equal(t, DefaultListenAddr, cfg.ListenAddr)
}

func TestAppConfigFromEnvOverrides(t *testing.T) {
	t.Setenv("MEND_STATE_DIR", "/var/lib/mend")
	t.Setenv("MEND_DB_PATH", "/data/healer.db")
	t.Setenv("MEND_LISTEN_ADDR", "0.0.0.0:9000")
	t.Setenv("MEND_OWNER_USER_ID", "user-ops")
	t.Setenv("MEND_TYPECHECK_COMMAND", "npx tsc --noEmit")
	t.Setenv("MEND_WORKER_MAX_IN_FLIGHT", "4")
	t.Setenv("MEND_WORKER_SUBMIT_INTERVAL_SECONDS", "10")

	cfg, err := AppConfigFromEnv("/srv/widgets")
	require.NoError(t, err)

	// The state dir moves the derived paths; the explicit DB path wins.
	assert.Equal(t, "/var/lib/mend", cfg.StateDir)
	assert.Equal(t, "/data/healer.db", cfg.DBPath)
	assert.Equal(t, filepath.Join("/var/lib/mend", "mend.sock"), cfg.SocketPath)

	assert.Equal(t, "0.0.0.0:9000", cfg.ListenAddr)
	assert.Equal(t, "user-ops", cfg.OwnerUserID)
	assert.Equal(t, []string{"npx", "tsc", "--noEmit"}, cfg.TypeCheckCommand)
	assert.Equal(t, 4, cfg.WorkerMaxInFlight)
	assert.Equal(t, 10*time.Second, cfg.WorkerSubmitInterval)
}

func TestAppConfigListenAddrOff(t *testing.T) {
	t.Setenv("MEND_LISTEN_ADDR", "off")
	cfg, err := AppConfigFromEnv(".")
	require.NoError(t, err)
	assert.Empty(t, cfg.ListenAddr, "\"off\" disables the HTTP surface")
}

func TestLoadSafetyLayering(t *testing.T) {
	dir := t.TempDir()
	policyPath := filepath.Join(dir, "policy.yaml")
	policy := `safety:
  max_attempts_per_incident: 5
  auto_commit_threshold: 80
`
	require.NoError(t, os.WriteFile(policyPath, []byte(policy), 0o644))
	t.Setenv("MEND_AUTO_COMMIT_THRESHOLD", "99")

	cfg, err := LoadSafety(policyPath)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.MaxAttemptsPerIncident, "policy file overrides the default")
	assert.Equal(t, 99, cfg.AutoCommitThreshold, "environment wins over the policy file")
	assert.Equal(t, 3, cfg.KillSwitchThreshold, "unset fields keep their defaults")
}

func TestLoadSafetyMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadSafety(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultSafetyConfig(), cfg)
}

func TestLoadSafetyMalformedFileFails(t *testing.T) {
	dir := t.TempDir()
	policyPath := filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.WriteFile(policyPath, []byte("safety: [broken"), 0o644))

	_, err := LoadSafety(policyPath)
	require.Error(t, err)
}
