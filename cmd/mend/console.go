package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mendhq/mend/internal/console"
	"github.com/mendhq/mend/internal/storage"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Start the interactive operations console",
	Long: `Start an interactive shell for operating the healing daemon.

The console reads healing state directly from the database and sends
pause, resume, and heal commands to a running daemon over its control
socket. Daemon commands degrade gracefully when no daemon is running;
read commands always work.

Type 'help' in the console for available commands.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if _, err := storage.GetProjectRoot(appCfg.DBPath); err == nil {
			if err := storage.ValidateAlignment(appCfg.DBPath, appCfg.WorkspaceRoot); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		}

		c, err := console.New(&console.Config{
			Store:       store,
			SocketPath:  appCfg.SocketPath,
			HistoryFile: filepath.Join(appCfg.StateDir, "console_history"),
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to create console: %v\n", err)
			os.Exit(1)
		}

		if err := c.Run(context.Background()); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(consoleCmd)
}
