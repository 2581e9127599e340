package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mendhq/mend/internal/types"
)

var showVerbose bool

var showCmd = &cobra.Command{
	Use:   "show <incident-id>",
	Short: "Show an incident and its healing sessions",
	Long: `Display one incident in full: its report, root cause, fix, and every
healing session that worked on it. With --verbose, the stack trace and
the per-attempt action log are included.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		inc, err := store.GetIncident(ctx, args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if inc == nil {
			fmt.Fprintf(os.Stderr, "Error: incident %s not found\n", args[0])
			os.Exit(1)
		}

		cyan := color.New(color.FgCyan).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		green := color.New(color.FgGreen).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		icon, paint := incidentBadge(inc.Status)
		fmt.Printf("\n%s %s %s\n\n", paint(icon), cyan(inc.ID), inc.Title)
		fmt.Printf("  Status:   %s\n", paint(string(inc.Status)))
		fmt.Printf("  Kind:     %s (%s)\n", inc.Kind, inc.Severity)
		fmt.Printf("  Source:   %s\n", inc.Source)
		fmt.Printf("  Reported: %s\n", inc.CreatedAt.Format("2006-01-02 15:04:05"))
		if inc.AttemptCount > 0 {
			fmt.Printf("  Attempts: %d\n", inc.AttemptCount)
		}
		if inc.RootCause != "" {
			fmt.Printf("  Root cause: %s\n", inc.RootCause)
		}
		if inc.FixDescription != "" {
			fmt.Printf("  Fix:      %s\n", inc.FixDescription)
		}
		if inc.CommitHash != "" {
			fmt.Printf("  Commit:   %s\n", inc.CommitHash)
		}
		if inc.ResolvedAt != nil {
			fmt.Printf("  Resolved: %s\n", inc.ResolvedAt.Format("2006-01-02 15:04:05"))
		}

		if inc.Description != "" {
			fmt.Printf("\n%s\n  %s\n", yellow("Description:"),
				strings.ReplaceAll(inc.Description, "\n", "\n  "))
		}
		if showVerbose && inc.StackTrace != "" {
			fmt.Printf("\n%s\n  %s\n", yellow("Stack Trace:"),
				strings.ReplaceAll(inc.StackTrace, "\n", "\n  "))
		}

		sessions, err := store.ListSessionsForIncident(ctx, inc.ID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("\n%s\n", yellow("Healing Sessions:"))
		if len(sessions) == 0 {
			fmt.Printf("  %s\n", gray("None yet"))
		}
		for _, s := range sessions {
			var badge string
			switch s.Status {
			case types.SessionActive:
				badge = cyan("●")
			case types.SessionSuccess:
				badge = green("✓")
			default:
				badge = red("✗")
			}
			fmt.Printf("  %s %s\n", badge, cyan(s.ID))
			fmt.Printf("    Strategy: %s", s.Strategy)
			if s.ModelTag != "" {
				fmt.Printf(" (model: %s)", s.ModelTag)
			}
			fmt.Println()
			fmt.Printf("    Phase:    %s (%s)\n", s.Phase, s.Status)
			if s.KBMatchID != "" {
				fmt.Printf("    KB match: %s", s.KBMatchID)
				if s.KBMatchConfidence != nil {
					fmt.Printf(" at confidence %d", *s.KBMatchConfidence)
				}
				fmt.Println()
			}
			if len(s.FilesChanged) > 0 {
				fmt.Printf("    Files:    %s\n", strings.Join(s.FilesChanged, ", "))
			}
			if s.VerificationPassed != nil {
				if *s.VerificationPassed {
					fmt.Printf("    Verification: %s\n", green("passed"))
				} else {
					fmt.Printf("    Verification: %s\n", red("failed"))
				}
			}
			if s.CommitHash != "" {
				fmt.Printf("    Commit:   %s\n", s.CommitHash)
			}
			if s.PRURL != "" {
				fmt.Printf("    PR:       %s\n", s.PRURL)
			}
			if s.DeploymentStatus != "" {
				fmt.Printf("    Deployment: %s\n", s.DeploymentStatus)
			}
			if s.Error != "" {
				fmt.Printf("    Error:    %s\n", red(s.Error))
			}
			fmt.Printf("    Started:  %s", s.StartedAt.Format("2006-01-02 15:04:05"))
			if s.CompletedAt != nil {
				fmt.Printf("  (took %v)", s.CompletedAt.Sub(s.StartedAt).Round(time.Millisecond))
			}
			fmt.Println()
			fmt.Println()
		}

		if showVerbose {
			attempts, err := store.ListAttemptsForIncident(ctx, inc.ID)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			if len(attempts) > 0 {
				fmt.Printf("%s\n", yellow("Attempt Log:"))
				for _, a := range attempts {
					fmt.Printf("  attempt %d (%s)\n", a.AttemptNumber, a.Strategy)
					for _, action := range a.ActionsTaken {
						line := fmt.Sprintf("    %s %s", action.Timestamp.Format("15:04:05"), action.Action)
						if action.Detail != "" {
							line += ": " + action.Detail
						}
						fmt.Println(line)
					}
				}
				fmt.Println()
			}
		}
	},
}

func init() {
	showCmd.Flags().BoolVarP(&showVerbose, "verbose", "v", false, "Include stack trace and attempt action log")
	rootCmd.AddCommand(showCmd)
}
