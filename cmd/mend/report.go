package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mendhq/mend/internal/control"
	"github.com/mendhq/mend/internal/events"
	"github.com/mendhq/mend/internal/types"
)

var (
	reportKind        string
	reportSeverity    string
	reportDescription string
	reportSource      string
	reportStackFile   string
	reportLogsFile    string
)

var reportCmd = &cobra.Command{
	Use:   "report <title>",
	Short: "Report an incident for healing",
	Long: `Report an incident to the healing queue.

The incident is stored immediately. A running daemon is nudged over the
control socket; without one the incident waits for 'mend serve' to pick
it up.

Kinds: high_cpu, high_memory, safety_issue, build_failure,
runtime_error, agent_failure, other.
Severities: low, medium, high, critical.

Example:
  mend report "TypeError in checkout handler" \
    --kind runtime_error --severity high --stack-trace-file crash.txt`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		inc := &types.Incident{
			Title:       args[0],
			Description: reportDescription,
			Kind:        types.IncidentKind(reportKind),
			Severity:    types.Severity(reportSeverity),
			Source:      reportSource,
		}
		if reportStackFile != "" {
			data, err := os.ReadFile(reportStackFile)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: reading stack trace: %v\n", err)
				os.Exit(1)
			}
			inc.StackTrace = string(data)
		}
		if reportLogsFile != "" {
			data, err := os.ReadFile(reportLogsFile)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: reading logs: %v\n", err)
				os.Exit(1)
			}
			inc.Logs = string(data)
		}

		if err := store.CreateIncident(ctx, inc); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		// Keep the event log complete even when the daemon is not the
		// one recording the incident.
		event, err := events.NewIncidentReportedEvent(
			inc.ID,
			events.SeverityInfo,
			fmt.Sprintf("incident reported: %s", inc.Title),
			events.IncidentReportedData{
				IncidentID: inc.ID,
				Kind:       string(inc.Kind),
				Severity:   string(inc.Severity),
				Source:     inc.Source,
			},
		)
		if err == nil {
			if err := store.StoreEvent(ctx, event); err != nil {
				fmt.Fprintf(os.Stderr, "warning: incident stored but event not recorded: %v\n", err)
			}
		}

		green := color.New(color.FgGreen).SprintFunc()
		cyan := color.New(color.FgCyan).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		fmt.Printf("%s Incident reported: %s\n", green("✓"), cyan(inc.ID))
		fmt.Printf("  %s / %s: %s\n", inc.Kind, inc.Severity, inc.Title)

		// Nudge a running daemon so healing starts before its next poll.
		client := control.NewClient(appCfg.SocketPath)
		if resp, err := client.Heal(inc.ID, false); err == nil && resp.Success {
			fmt.Printf("  Queued for healing\n")
		} else {
			fmt.Printf("  %s\n", gray("No running daemon; it will be picked up by 'mend serve'"))
		}
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportKind, "kind", "other", "Incident kind")
	reportCmd.Flags().StringVar(&reportSeverity, "severity", "medium", "Incident severity")
	reportCmd.Flags().StringVarP(&reportDescription, "description", "d", "", "What happened, in detail")
	reportCmd.Flags().StringVar(&reportSource, "source", "cli", "Reporting system")
	reportCmd.Flags().StringVar(&reportStackFile, "stack-trace-file", "", "File containing the stack trace")
	reportCmd.Flags().StringVar(&reportLogsFile, "logs-file", "", "File containing relevant log output")
	rootCmd.AddCommand(reportCmd)
}
