package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mendhq/mend/internal/types"
)

var (
	incidentsStatus string
	incidentsKind   string
	incidentsLimit  int
)

var incidentsCmd = &cobra.Command{
	Use:   "incidents",
	Short: "List incidents",
	Long: `List incidents, newest first.

Filter by status (open, healing, resolved, failed) or kind. The default
shows every status.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		filter := types.IncidentFilter{Limit: incidentsLimit}
		if incidentsStatus != "" {
			st := types.IncidentStatus(incidentsStatus)
			if !st.IsValid() {
				fmt.Fprintf(os.Stderr, "Error: invalid status %q (open, healing, resolved, failed)\n", incidentsStatus)
				os.Exit(1)
			}
			filter.Status = &st
		}
		if incidentsKind != "" {
			k := types.IncidentKind(incidentsKind)
			if !k.IsValid() {
				fmt.Fprintf(os.Stderr, "Error: invalid kind %q\n", incidentsKind)
				os.Exit(1)
			}
			filter.Kind = &k
		}

		incidents, err := store.ListIncidents(ctx, filter)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if len(incidents) == 0 {
			gray := color.New(color.FgHiBlack).SprintFunc()
			fmt.Printf("%s\n", gray("No incidents found"))
			return
		}

		cyan := color.New(color.FgCyan).SprintFunc()
		fmt.Println()
		for _, inc := range incidents {
			icon, paint := incidentBadge(inc.Status)
			fmt.Printf("%s %s %s\n", paint(icon), cyan(inc.ID), inc.Title)
			fmt.Printf("    %s / %s / %s", inc.Kind, inc.Severity, paint(string(inc.Status)))
			if inc.AttemptCount > 0 {
				fmt.Printf("  (attempts: %d)", inc.AttemptCount)
			}
			fmt.Println()
			fmt.Printf("    Reported %s via %s\n",
				inc.CreatedAt.Format("2006-01-02 15:04:05"), inc.Source)
			if inc.CommitHash != "" {
				fmt.Printf("    Fixed in %s\n", inc.CommitHash)
			}
			fmt.Println()
		}
		fmt.Printf("%d incident(s)\n", len(incidents))
	},
}

// incidentBadge returns the status icon and its color.
func incidentBadge(status types.IncidentStatus) (string, func(a ...interface{}) string) {
	switch status {
	case types.IncidentOpen:
		return "○", color.New(color.FgYellow).SprintFunc()
	case types.IncidentHealing:
		return "●", color.New(color.FgCyan).SprintFunc()
	case types.IncidentResolved:
		return "✓", color.New(color.FgGreen).SprintFunc()
	case types.IncidentFailed:
		return "✗", color.New(color.FgRed).SprintFunc()
	default:
		return "•", color.New(color.FgWhite).SprintFunc()
	}
}

func init() {
	incidentsCmd.Flags().StringVarP(&incidentsStatus, "status", "s", "", "Filter by status")
	incidentsCmd.Flags().StringVarP(&incidentsKind, "kind", "k", "", "Filter by kind")
	incidentsCmd.Flags().IntVarP(&incidentsLimit, "limit", "n", 20, "Maximum incidents to show (0 for all)")
	rootCmd.AddCommand(incidentsCmd)
}
