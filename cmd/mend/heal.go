package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mendhq/mend/internal/control"
	"github.com/mendhq/mend/internal/types"
)

var healForce bool

var healCmd = &cobra.Command{
	Use:   "heal <incident-id>",
	Short: "Queue an incident for healing now",
	Long: `Queue a specific incident on the running daemon.

Open incidents are healed automatically; this just skips the wait for
the next poll. With --force, a terminally failed incident gets one more
attempt. Failed incidents are never retried without --force.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		incidentID := args[0]
		ctx := context.Background()

		inc, err := store.GetIncident(ctx, incidentID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if inc == nil {
			fmt.Fprintf(os.Stderr, "Error: incident %s not found\n", incidentID)
			os.Exit(1)
		}

		if inc.Status == types.IncidentResolved {
			yellow := color.New(color.FgYellow).SprintFunc()
			fmt.Printf("%s Incident %s is already resolved\n", yellow("⚠"), incidentID)
			return
		}
		if inc.Status == types.IncidentFailed && !healForce {
			fmt.Fprintf(os.Stderr, "Error: incident %s is failed; use --force to retry it\n", incidentID)
			os.Exit(1)
		}

		client := control.NewClient(appCfg.SocketPath)
		resp, err := client.Heal(incidentID, healForce)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			fmt.Fprintf(os.Stderr, "Hint: is the daemon running? Try 'mend status'.\n")
			os.Exit(1)
		}
		if !resp.Success {
			red := color.New(color.FgRed).SprintFunc()
			fmt.Printf("%s Heal failed: %s\n", red("✗"), resp.Message)
			if resp.Error != "" {
				fmt.Printf("  Error: %s\n", resp.Error)
			}
			os.Exit(1)
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Incident queued for healing: %s\n", green("✓"), incidentID)
		fmt.Printf("  Watch progress with 'mend events --follow'\n")
	},
}

func init() {
	healCmd.Flags().BoolVarP(&healForce, "force", "f", false, "Retry a terminally failed incident")
	rootCmd.AddCommand(healCmd)
}
