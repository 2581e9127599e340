package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mendhq/mend/internal/confidence"
	"github.com/mendhq/mend/internal/config"
	"github.com/mendhq/mend/internal/control"
	"github.com/mendhq/mend/internal/events"
	"github.com/mendhq/mend/internal/gitops"
	"github.com/mendhq/mend/internal/identity"
	"github.com/mendhq/mend/internal/knowledge"
	"github.com/mendhq/mend/internal/orchestrator"
	"github.com/mendhq/mend/internal/safety"
	"github.com/mendhq/mend/internal/storage"
	"github.com/mendhq/mend/internal/verify"
	"github.com/mendhq/mend/internal/webhook"
	"github.com/mendhq/mend/internal/worker"
	"github.com/mendhq/mend/internal/workspace"
)

var (
	serveListenAddr string
	serveNoHTTP     bool
	servePollSecs   int
	serveOwner      string
	serveTypeCheck  string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the healing daemon",
	Long: `Start the daemon that watches for incidents and heals them.

The daemon will:
1. Accept incidents over HTTP and poll storage for open ones
2. Try a known fix from the knowledge base, or delegate diagnosis and
   repair to an AI worker
3. Verify every proposed fix and roll it back when verification fails
4. Auto-commit high-confidence fixes, open a pull request otherwise
5. Continue until stopped with Ctrl+C

The safety envelope (attempt caps, session rate limit, kill switch) is
loaded from .mend/policy.yaml and can be tuned per workspace.`,
	Run: func(cmd *cobra.Command, args []string) {
		// Healing writes into the workspace, so a database that lives in
		// some project's .mend directory must be this workspace's.
		if _, err := storage.GetProjectRoot(appCfg.DBPath); err == nil {
			if err := storage.ValidateAlignment(appCfg.DBPath, appCfg.WorkspaceRoot); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		}

		// One daemon per database.
		lockPath, err := storage.AcquireExclusiveLock(appCfg.DBPath, version)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer storage.ReleaseExclusiveLock(lockPath)

		safetyCfg, err := config.LoadSafety(appCfg.PolicyPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		retention, err := config.EventRetentionConfigFromEnv()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		ws, err := workspace.NewLocal(appCfg.WorkspaceRoot)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		typeCheck := appCfg.TypeCheckCommand
		if serveTypeCheck != "" {
			typeCheck = strings.Fields(serveTypeCheck)
		}
		if len(typeCheck) > 0 {
			ws.SetTypeCheckCommand(typeCheck)
		}

		gateway, err := gitops.NewLocalGit(gitops.Options{RepoPath: ws.Root()})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			fmt.Fprintf(os.Stderr, "Hint: mend lands fixes through git; the workspace must be a git checkout.\n")
			os.Exit(1)
		}

		agent, err := worker.NewAnthropicAgent(&worker.Config{
			MaxInFlight:    appCfg.WorkerMaxInFlight,
			SubmitInterval: appCfg.WorkerSubmitInterval,
			JobTimeout:     appCfg.WorkerJobTimeout,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			fmt.Fprintf(os.Stderr, "Hint: set ANTHROPIC_API_KEY to enable AI worker repairs.\n")
			os.Exit(1)
		}
		defer agent.Close()

		bus := events.NewBus(store)
		defer bus.Close()

		owner := appCfg.OwnerUserID
		if serveOwner != "" {
			owner = serveOwner
		}

		orchCfg := orchestrator.Config{
			Store:     store,
			Envelope:  safety.New(safetyCfg),
			Bus:       bus,
			Knowledge: knowledge.New(store),
			Scorer:    confidence.NewScorer(store, ws, safetyCfg.AutoCommitThreshold),
			Verifier:  verify.New(ws, safetyCfg.VerifyTimeout),
			Workspace: ws,
			Gateway:   gateway,
			Agent:     agent,
			Identity:  identity.NewResolver(store, owner),
			Safety:    safetyCfg,
			Retention: retention,
		}
		if servePollSecs > 0 {
			orchCfg.PollInterval = time.Duration(servePollSecs) * time.Second
		}

		orch, err := orchestrator.New(orchCfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to create orchestrator: %v\n", err)
			os.Exit(1)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		if err := orch.Start(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to start orchestrator: %v\n", err)
			os.Exit(1)
		}

		listenAddr := appCfg.ListenAddr
		if serveListenAddr != "" {
			listenAddr = serveListenAddr
		}
		if serveNoHTTP {
			listenAddr = ""
		}
		var intake *webhook.Server
		if listenAddr != "" {
			intake = webhook.NewServer(listenAddr, orch)
			if err := intake.Start(); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		}

		ctl, err := control.NewServer(appCfg.SocketPath, controlHandler(orch, safetyCfg))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to create control server: %v\n", err)
			os.Exit(1)
		}
		if err := ctl.Start(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to start control server: %v\n", err)
			os.Exit(1)
		}

		green := color.New(color.FgGreen).SprintFunc()
		cyan := color.New(color.FgCyan).SprintFunc()

		fmt.Printf("%s Healing daemon started (version %s)\n", green("✓"), cyan(version))
		fmt.Printf("  Workspace: %s\n", cyan(ws.Root()))
		if intake != nil {
			fmt.Printf("  HTTP intake: %s\n", cyan("http://"+intake.Addr()))
		} else {
			fmt.Printf("  HTTP intake: disabled\n")
		}
		fmt.Printf("  Control socket: %s\n", cyan(ctl.SocketPath()))
		fmt.Printf("  Safety: %d attempts/incident, %d sessions per %v, kill switch after %d failures\n",
			safetyCfg.MaxAttemptsPerIncident, safetyCfg.MaxSessionsPerWindow,
			safetyCfg.WindowDuration, safetyCfg.KillSwitchThreshold)
		fmt.Printf("  Press Ctrl+C to stop\n\n")

		<-sigCh
		fmt.Println("\n\nShutting down daemon...")

		// Use a fresh context for shutdown since the main one is being
		// canceled.
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if intake != nil {
			if err := intake.Shutdown(shutdownCtx); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: error stopping HTTP intake: %v\n", err)
			}
		}
		if err := ctl.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: error stopping control server: %v\n", err)
		}
		if err := orch.Stop(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: error during shutdown: %v\n", err)
		}

		fmt.Printf("%s Daemon stopped\n", green("✓"))
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveListenAddr, "listen", "", "HTTP intake address (default: 127.0.0.1:8797, or MEND_LISTEN_ADDR)")
	serveCmd.Flags().BoolVar(&serveNoHTTP, "no-http", false, "Disable the HTTP intake server")
	serveCmd.Flags().IntVarP(&servePollSecs, "poll-interval", "i", 0, "Incident poll interval in seconds (default: 5)")
	serveCmd.Flags().StringVar(&serveOwner, "owner", "", "User ID worker jobs run as (default: the persisted owner)")
	serveCmd.Flags().StringVar(&serveTypeCheck, "typecheck", "", "Verification command, e.g. 'npx tsc --noEmit' (default: auto-detect)")
	rootCmd.AddCommand(serveCmd)
}

// controlHandler maps control socket commands onto the orchestrator.
func controlHandler(orch *orchestrator.Orchestrator, safetyCfg config.SafetyConfig) control.Handler {
	return func(cmd control.Command) (map[string]interface{}, error) {
		switch cmd.Type {
		case control.CmdStatus:
			return statusData(orch.Status()), nil

		case control.CmdPause:
			d := safetyCfg.KillSwitchDuration
			if cmd.Duration != "" {
				parsed, err := time.ParseDuration(cmd.Duration)
				if err != nil {
					return nil, fmt.Errorf("invalid pause duration %q: %w", cmd.Duration, err)
				}
				d = parsed
			}
			state := orch.Pause(d)
			return map[string]interface{}{
				"paused_until": state.Until.Format(time.RFC3339),
			}, nil

		case control.CmdResume:
			orch.Resume()
			return nil, nil

		case control.CmdHeal:
			if cmd.IncidentID == "" {
				return nil, fmt.Errorf("incident ID is required")
			}
			if cmd.Force {
				if err := orch.RetryIncident(cmd.IncidentID); err != nil {
					return nil, err
				}
			} else if err := orch.EnqueueIncident(cmd.IncidentID); err != nil {
				return nil, err
			}
			return map[string]interface{}{
				"incident_id": cmd.IncidentID,
				"queued":      true,
			}, nil

		default:
			return nil, fmt.Errorf("unknown command type: %s", cmd.Type)
		}
	}
}

// statusData flattens the daemon status for the control socket wire.
func statusData(st orchestrator.Status) map[string]interface{} {
	data := map[string]interface{}{
		"running":              st.Running,
		"queue_depth":          st.QueueDepth,
		"awaiting_worker":      st.AwaitingWorker,
		"awaiting_deployment":  st.AwaitingDeployment,
		"kill_switch_active":   st.Safety.KillSwitchActive,
		"consecutive_failures": st.Safety.ConsecutiveFailures,
		"sessions_in_window":   st.Safety.SessionsInWindow,
		"window_capacity":      st.Safety.WindowCapacity,
		"lock_held":            st.Safety.LockHeld,
	}
	if st.Safety.KillSwitchActive {
		data["kill_switch_until"] = st.Safety.KillSwitchUntil.Format(time.RFC3339)
	}
	if st.Safety.LockHolder != "" {
		data["healing_incident"] = st.Safety.LockHolder
	}
	return data
}
