package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mendhq/mend/internal/control"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status and healing statistics",
	Long:  `Display daemon state, safety envelope status, and incident counts.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		fmt.Printf("\n%s\n", cyan("=== Mend Status ==="))
		fmt.Println()

		yellow := color.New(color.FgYellow).SprintFunc()
		green := color.New(color.FgGreen).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		// Daemon state comes over the control socket; everything the
		// envelope tracks lives in daemon memory.
		fmt.Printf("%s\n", yellow("Daemon:"))
		var daemon map[string]interface{}
		client := control.NewClient(appCfg.SocketPath)
		if resp, err := client.Status(); err == nil && resp.Success {
			daemon = resp.Data
			fmt.Printf("  %s Running\n", green("●"))
			fmt.Printf("    Queue depth:         %v\n", daemon["queue_depth"])
			fmt.Printf("    Awaiting worker:     %v\n", daemon["awaiting_worker"])
			fmt.Printf("    Awaiting deployment: %v\n", daemon["awaiting_deployment"])
			if holder, ok := daemon["healing_incident"].(string); ok && holder != "" {
				fmt.Printf("    Healing now:         %s\n", holder)
			}
		} else {
			fmt.Printf("  %s Not running\n", gray("○"))
			fmt.Printf("  %s\n", gray("Start it with 'mend serve'"))
		}
		fmt.Println()

		fmt.Printf("%s\n", yellow("Safety Envelope:"))
		if daemon == nil {
			fmt.Printf("  %s\n", gray("Only visible while the daemon is running"))
		} else {
			if active, _ := daemon["kill_switch_active"].(bool); active {
				fmt.Printf("  %s Kill switch ACTIVE", red("⚠"))
				if until, ok := daemon["kill_switch_until"].(string); ok {
					fmt.Printf(" until %s", until)
				}
				fmt.Println()
				fmt.Printf("  %s\n", gray("Run 'mend resume' to clear it"))
			} else {
				fmt.Printf("  %s Kill switch off\n", green("✓"))
			}
			fmt.Printf("  Consecutive failures: %v\n", daemon["consecutive_failures"])
			fmt.Printf("  Sessions in window:   %v / %v\n",
				daemon["sessions_in_window"], daemon["window_capacity"])
		}
		fmt.Println()

		stats, err := store.GetStatistics(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to get statistics: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("%s\n", yellow("Incidents:"))
		fmt.Printf("  Open:     %d\n", stats.OpenIncidents)
		fmt.Printf("  Healing:  %d\n", stats.HealingIncidents)
		fmt.Printf("  Resolved: %d\n", stats.ResolvedIncidents)
		fmt.Printf("  Failed:   %d\n", stats.FailedIncidents)
		fmt.Printf("  %s\n", gray("Run 'mend incidents' to see details"))
		fmt.Println()

		fmt.Printf("%s\n", yellow("Healing Record:"))
		fmt.Printf("  Sessions:  %d total, %d active, %d successful\n",
			stats.TotalSessions, stats.ActiveSessions, stats.SuccessfulSessions)
		fmt.Printf("  Knowledge: %d known fixes\n", stats.KnowledgeBaseSize)
		fmt.Printf("  Events:    %d recorded\n", stats.TotalEvents)
		fmt.Println()
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
