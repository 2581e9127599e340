package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mendhq/mend/internal/control"
)

var pauseDuration time.Duration

var pauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause healing on the running daemon",
	Long: `Trip the kill switch by hand, blocking new healing sessions.

Sessions already in flight finish; parked sessions still accept their
worker results and deployment reports. Incidents reported while paused
stay open and are healed once the pause lifts.

Use cases:
  - Deploy freeze or incident review in progress
  - Healing is misbehaving and needs investigation
  - Maintenance on the workspace checkout`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		client := control.NewClient(appCfg.SocketPath)
		resp, err := client.Pause(pauseDuration)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			fmt.Fprintf(os.Stderr, "Hint: is the daemon running? Try 'mend status'.\n")
			os.Exit(1)
		}
		if !resp.Success {
			red := color.New(color.FgRed).SprintFunc()
			fmt.Printf("%s Pause failed: %s\n", red("✗"), resp.Message)
			if resp.Error != "" {
				fmt.Printf("  Error: %s\n", resp.Error)
			}
			os.Exit(1)
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Healing paused\n", green("✓"))
		if resp.Data != nil {
			if until, ok := resp.Data["paused_until"].(string); ok {
				fmt.Printf("  Until: %s\n", until)
			}
		}
		fmt.Printf("\nTo resume early: mend resume\n")
	},
}

func init() {
	pauseCmd.Flags().DurationVar(&pauseDuration, "for", time.Hour, "How long to pause healing")
	rootCmd.AddCommand(pauseCmd)
}
