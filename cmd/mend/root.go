package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mendhq/mend/internal/config"
	"github.com/mendhq/mend/internal/storage"
	"github.com/mendhq/mend/internal/storage/sqlite"
)

// Shared state for all subcommands, set up by the root PersistentPreRun.
// Commands that run before a database exists (init, doctor) skip the
// store.
var (
	workspaceFlag string
	dbFlag        string
	socketFlag    string

	appCfg config.AppConfig
	store  storage.Storage
)

var rootCmd = &cobra.Command{
	Use:   "mend",
	Short: "Self-healing daemon for production services",
	Long: `Mend heals production incidents automatically.

Incidents arrive over HTTP or 'mend report'. The daemon matches each one
against its fix knowledge base, falls back to an AI repair worker when
nothing matches, verifies the proposed fix, and lands it as a direct
commit or a pull request depending on confidence. A safety envelope
bounds everything: per-incident attempt caps, a session rate limit, and
a kill switch that halts healing after repeated failures.

Run 'mend init' once per workspace, then 'mend serve' to start healing.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.AppConfigFromEnv(workspaceFlag)
		if err != nil {
			return err
		}
		if dbFlag != "" {
			cfg.DBPath = dbFlag
		}
		if socketFlag != "" {
			cfg.SocketPath = socketFlag
		}

		// When nothing pins the path and the canonical mend.db does not
		// exist, fall back to discovery so databases created under a
		// custom name ('mend init --name') are still found.
		if dbFlag == "" && os.Getenv("MEND_DB_PATH") == "" {
			if _, err := os.Stat(cfg.DBPath); os.IsNotExist(err) {
				if found, derr := storage.DiscoverDatabase(cfg.WorkspaceRoot); derr == nil {
					cfg.DBPath = found
				}
			}
		}
		appCfg = cfg

		if !needsStore(cmd) {
			return nil
		}

		s, err := sqlite.New(appCfg.DBPath)
		if err != nil {
			return fmt.Errorf("opening database %s: %w", appCfg.DBPath, err)
		}
		store = s
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if store != nil {
			store.Close()
		}
	},
}

// needsStore reports whether a command requires the database. init and
// doctor manage their own access, the cobra built-ins need none at all.
func needsStore(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		switch c.Name() {
		case "init", "doctor", "help", "completion":
			return false
		}
	}
	return true
}

func init() {
	rootCmd.PersistentFlags().StringVar(&workspaceFlag, "workspace", "", "Workspace root to heal (default: current directory, or MEND_WORKSPACE_ROOT)")
	rootCmd.PersistentFlags().StringVar(&dbFlag, "db", "", "Database path (default: <workspace>/.mend/mend.db)")
	rootCmd.PersistentFlags().StringVar(&socketFlag, "socket", "", "Daemon control socket path (default: <workspace>/.mend/mend.sock)")
}

// Execute runs the CLI. Cobra prints the failing command's error; the
// exit code is all that is left to set.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
