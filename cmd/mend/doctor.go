package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mendhq/mend/internal/config"
	"github.com/mendhq/mend/internal/control"
	"github.com/mendhq/mend/internal/storage/sqlite"
	"github.com/mendhq/mend/internal/workspace"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check mend installation and environment health",
	Long: `Run health checks to diagnose common mend configuration issues.

This command checks for:
- State directory and database accessibility
- Healing policy validity
- Workspace project detection (what verification will run)
- Git repository status and the gh CLI
- Required environment variables
- Owner identity for worker repairs
- Daemon reachability

Exit codes:
  0 - All checks passed
  1 - One or more checks failed (but not critical)
  2 - Critical failures that prevent mend from running`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		verbose, _ := cmd.Flags().GetBool("verbose")

		green := color.New(color.FgGreen).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		cyan := color.New(color.FgCyan).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		fmt.Printf("Running mend health checks...\n\n")

		var failures []string
		var warnings []string
		var criticalFailures []string

		// Check 1: State directory
		fmt.Printf("%s State directory\n", cyan("→"))
		if info, err := os.Stat(appCfg.StateDir); err != nil {
			criticalFailures = append(criticalFailures, "State directory missing (run 'mend init')")
			fmt.Printf("  %s State directory not found: %s\n", red("✗"), appCfg.StateDir)
		} else if !info.IsDir() {
			criticalFailures = append(criticalFailures, fmt.Sprintf("%s exists but is not a directory", appCfg.StateDir))
			fmt.Printf("  %s %s is not a directory\n", red("✗"), appCfg.StateDir)
		} else {
			fmt.Printf("  %s State directory: %s\n", green("✓"), appCfg.StateDir)
		}

		if len(criticalFailures) > 0 {
			fmt.Printf("\n%s mend cannot run until 'mend init' has been run in this workspace.\n", red("✗"))
			os.Exit(2)
		}

		// Check 2: Database
		fmt.Printf("%s Database\n", cyan("→"))
		var db *sqlite.SQLiteStorage
		if info, err := os.Stat(appCfg.DBPath); err != nil {
			criticalFailures = append(criticalFailures, fmt.Sprintf("Cannot access database: %v", err))
			fmt.Printf("  %s Cannot access database file\n", red("✗"))
			if verbose {
				fmt.Printf("    Error: %v\n", err)
			}
		} else {
			fmt.Printf("  %s Database file accessible (%d bytes)\n", green("✓"), info.Size())
			opened, err := sqlite.New(appCfg.DBPath)
			if err != nil {
				criticalFailures = append(criticalFailures, fmt.Sprintf("Cannot open database: %v", err))
				fmt.Printf("  %s Cannot open database\n", red("✗"))
				if verbose {
					fmt.Printf("    Error: %v\n", err)
				}
			} else {
				db = opened
				defer db.Close()
				fmt.Printf("  %s Database opens and schema is current\n", green("✓"))
			}
		}

		// Check 3: Healing policy
		fmt.Printf("%s Healing policy\n", cyan("→"))
		if _, err := os.Stat(appCfg.PolicyPath); os.IsNotExist(err) {
			fmt.Printf("  %s No policy file (built-in defaults in effect)\n", green("✓"))
		} else if safetyCfg, err := config.LoadSafety(appCfg.PolicyPath); err != nil {
			failures = append(failures, fmt.Sprintf("Policy file invalid: %v", err))
			fmt.Printf("  %s Policy file does not load\n", red("✗"))
			if verbose {
				fmt.Printf("    Error: %v\n", err)
			}
		} else {
			fmt.Printf("  %s Policy loads: %d attempts/incident, %d sessions per %v\n",
				green("✓"), safetyCfg.MaxAttemptsPerIncident,
				safetyCfg.MaxSessionsPerWindow, safetyCfg.WindowDuration)
		}

		// Check 4: Workspace project
		fmt.Printf("%s Workspace project\n", cyan("→"))
		info := workspace.DetectProject(appCfg.WorkspaceRoot)
		switch {
		case info.Language == "go" && info.ModulePath != "":
			label := info.ModulePath
			if info.GoVersion != "" {
				label += " (go " + info.GoVersion + ")"
			}
			fmt.Printf("  %s Go module: %s\n", green("✓"), label)
		case info.Language != "":
			fmt.Printf("  %s %s project detected\n", green("✓"), info.Language)
		default:
			warnings = append(warnings, "No build manifest recognized (verification will pass vacuously)")
			fmt.Printf("  %s No go.mod, tsconfig.json, or package.json found\n", yellow("⚠"))
		}
		if verbose && len(info.TypeCheck) > 0 {
			fmt.Printf("    Verification command: %s\n", strings.Join(info.TypeCheck, " "))
		}

		// Check 5: Git repository
		fmt.Printf("%s Git repository\n", cyan("→"))
		gitCmd := exec.Command("git", "-C", appCfg.WorkspaceRoot, "rev-parse", "--git-dir")
		if err := gitCmd.Run(); err != nil {
			failures = append(failures, "Workspace is not a git repository (fixes cannot land)")
			fmt.Printf("  %s Not a git repository\n", red("✗"))
		} else {
			fmt.Printf("  %s Git repository detected\n", green("✓"))

			statusCmd := exec.Command("git", "-C", appCfg.WorkspaceRoot, "status", "--porcelain")
			if output, err := statusCmd.Output(); err == nil {
				if len(output) > 0 {
					lines := strings.Split(strings.TrimSpace(string(output)), "\n")
					warnings = append(warnings, fmt.Sprintf("Uncommitted changes in workspace (%d files)", len(lines)))
					fmt.Printf("  %s Uncommitted changes detected (%d files)\n", yellow("⚠"), len(lines))
					if verbose {
						for i, line := range lines {
							if i >= 5 {
								fmt.Printf("    ... and %d more\n", len(lines)-5)
								break
							}
							fmt.Printf("    %s\n", line)
						}
					}
				} else {
					fmt.Printf("  %s Working directory clean\n", green("✓"))
				}
			}
		}

		// Check 6: gh CLI (pull request fallback)
		fmt.Printf("%s gh CLI\n", cyan("→"))
		if _, err := exec.LookPath("gh"); err != nil {
			warnings = append(warnings, "gh CLI not found (below-threshold fixes cannot open pull requests)")
			fmt.Printf("  %s gh not found in PATH\n", yellow("⚠"))
		} else {
			fmt.Printf("  %s gh is available\n", green("✓"))
		}

		// Check 7: Environment variables
		fmt.Printf("%s Environment variables\n", cyan("→"))
		if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey == "" {
			failures = append(failures, "ANTHROPIC_API_KEY not set")
			fmt.Printf("  %s ANTHROPIC_API_KEY not set\n", red("✗"))
			fmt.Printf("    AI worker repairs will not work\n")
		} else {
			fmt.Printf("  %s ANTHROPIC_API_KEY is set\n", green("✓"))
			if verbose && len(apiKey) > 14 {
				fmt.Printf("    Key: %s...%s\n", apiKey[:10], apiKey[len(apiKey)-4:])
			}
		}

		// Check 8: Owner identity
		fmt.Printf("%s Owner identity\n", cyan("→"))
		if appCfg.OwnerUserID != "" {
			fmt.Printf("  %s Owner configured via environment: %s\n", green("✓"), appCfg.OwnerUserID)
		} else if db != nil {
			owner, err := db.GetOwner(context.Background())
			switch {
			case err != nil:
				warnings = append(warnings, fmt.Sprintf("Cannot look up owner: %v", err))
				fmt.Printf("  %s Cannot look up owner\n", yellow("⚠"))
			case owner == nil:
				warnings = append(warnings, "No owner user (worker delegation will fail until one exists)")
				fmt.Printf("  %s No owner user\n", yellow("⚠"))
				fmt.Printf("    Run 'mend init --owner-email you@example.com'\n")
			default:
				fmt.Printf("  %s Owner: %s\n", green("✓"), owner.Email)
			}
		} else {
			fmt.Printf("  %s Skipped (database not available)\n", gray("○"))
		}

		// Check 9: Daemon
		fmt.Printf("%s Daemon\n", cyan("→"))
		client := control.NewClient(appCfg.SocketPath)
		if resp, err := client.Status(); err == nil && resp.Success {
			fmt.Printf("  %s Daemon is running\n", green("✓"))
			if verbose && resp.Data != nil {
				fmt.Printf("    Queue depth: %v\n", resp.Data["queue_depth"])
			}
		} else {
			fmt.Printf("  %s Daemon not running (start with 'mend serve')\n", gray("○"))
		}

		// Check 10: Database statistics
		if db != nil {
			fmt.Printf("%s Database statistics\n", cyan("→"))
			stats, err := db.GetStatistics(context.Background())
			if err != nil {
				warnings = append(warnings, fmt.Sprintf("Cannot query statistics: %v", err))
				fmt.Printf("  %s Cannot query database\n", yellow("⚠"))
			} else {
				fmt.Printf("  %s %d incident(s), %d knowledge base entr%s\n",
					green("✓"), stats.TotalIncidents,
					stats.KnowledgeBaseSize, plural(stats.KnowledgeBaseSize, "y", "ies"))
				if verbose {
					fmt.Printf("    open: %d, healing: %d, resolved: %d, failed: %d\n",
						stats.OpenIncidents, stats.HealingIncidents,
						stats.ResolvedIncidents, stats.FailedIncidents)
				}
			}
		}

		// Summary
		fmt.Printf("\n%s\n", strings.Repeat("─", 60))

		totalIssues := len(criticalFailures) + len(failures) + len(warnings)
		if totalIssues == 0 {
			fmt.Printf("%s All checks passed! mend is ready to run.\n", green("✓"))
			os.Exit(0)
		}

		if len(criticalFailures) > 0 {
			fmt.Printf("\n%s Critical failures (%d):\n", red("✗"), len(criticalFailures))
			for _, failure := range criticalFailures {
				fmt.Printf("  • %s\n", failure)
			}
		}

		if len(failures) > 0 {
			fmt.Printf("\n%s Failures (%d):\n", red("✗"), len(failures))
			for _, failure := range failures {
				fmt.Printf("  • %s\n", failure)
			}
		}

		if len(warnings) > 0 {
			fmt.Printf("\n%s Warnings (%d):\n", yellow("⚠"), len(warnings))
			for _, warning := range warnings {
				fmt.Printf("  • %s\n", warning)
			}
		}

		if len(criticalFailures) > 0 {
			fmt.Printf("\n%s mend cannot run until critical issues are resolved.\n", red("✗"))
			os.Exit(2)
		}

		if len(failures) > 0 {
			fmt.Printf("\n%s mend may not work correctly. Please address the failures above.\n", yellow("⚠"))
			os.Exit(1)
		}

		fmt.Printf("\n%s mend should work, but some warnings were detected.\n", green("✓"))
		os.Exit(0)
	},
}

func init() {
	doctorCmd.Flags().BoolP("verbose", "v", false, "Show detailed diagnostic information")
	rootCmd.AddCommand(doctorCmd)
}
