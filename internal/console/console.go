package console

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/fatih/color"

	"github.com/mendhq/mend/internal/control"
	"github.com/mendhq/mend/internal/storage"
	"github.com/mendhq/mend/internal/types"
)

// Console is the interactive operations shell. It reads healing state
// straight from the store and drives the daemon over the control socket.
type Console struct {
	store       storage.Storage
	client      *control.Client
	rl          *readline.Instance
	ctx         context.Context
	historyFile string
	commands    map[string]CommandHandler
}

// CommandHandler handles a specific command
type CommandHandler func(args []string) error

// Config holds console configuration
type Config struct {
	Store       storage.Storage
	SocketPath  string
	HistoryFile string
}

// New creates a new console instance
func New(cfg *Config) (*Console, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("storage is required")
	}

	c := &Console{
		store:    cfg.Store,
		client:   control.NewClient(cfg.SocketPath),
		commands: make(map[string]CommandHandler),
	}

	c.historyFile = cfg.HistoryFile
	c.registerCommands()

	return c, nil
}

// Run starts the console loop
func (c *Console) Run(ctx context.Context) error {
	c.ctx = ctx

	cyan := color.New(color.FgCyan).SprintFunc()
	prompt := cyan("mend> ")

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            prompt,
		HistoryFile:       c.historyFile,
		AutoComplete:      c.buildCompleter(),
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	c.rl = rl

	c.printWelcome()

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				// Ctrl+C - just show prompt again
				continue
			} else if err == io.EOF {
				// Ctrl+D - exit
				fmt.Println("\nGoodbye!")
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if err := c.processInput(line); err != nil {
			if err == io.EOF {
				// Exit command - graceful shutdown
				return nil
			}
			red := color.New(color.FgRed).SprintFunc()
			fmt.Printf("%s %v\n", red("Error:"), err)
		}
	}
}

// processInput processes a single line of input
func (c *Console) processInput(line string) error {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return nil
	}

	command := parts[0]
	args := parts[1:]

	if handler, ok := c.commands[command]; ok {
		return handler(args)
	}

	yellow := color.New(color.FgYellow).SprintFunc()
	fmt.Printf("%s Unknown command %q. Type 'help' for available commands.\n", yellow("Note:"), command)
	return nil
}

// registerCommands registers all built-in commands
func (c *Console) registerCommands() {
	c.commands["help"] = c.cmdHelp
	c.commands["?"] = c.cmdHelp
	c.commands["status"] = c.cmdStatus
	c.commands["incidents"] = c.cmdIncidents
	c.commands["heal"] = c.cmdHeal
	c.commands["pause"] = c.cmdPause
	c.commands["resume"] = c.cmdResume
	c.commands["kb"] = c.cmdKB
	c.commands["events"] = c.cmdEvents
	c.commands["exit"] = c.cmdExit
	c.commands["quit"] = c.cmdExit
}

// buildCompleter returns tab completion over the registered commands,
// with incident statuses offered under "incidents".
func (c *Console) buildCompleter() *readline.PrefixCompleter {
	items := []readline.PrefixCompleterInterface{
		readline.PcItem("incidents",
			readline.PcItem("open"),
			readline.PcItem("healing"),
			readline.PcItem("resolved"),
			readline.PcItem("failed"),
		),
	}
	for name := range c.commands {
		if name == "incidents" || name == "?" {
			continue
		}
		items = append(items, readline.PcItem(name))
	}
	return readline.NewPrefixCompleter(items...)
}

// printWelcome prints the welcome message
func (c *Console) printWelcome() {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	fmt.Printf("\n%s\n", cyan("Mend Console"))
	fmt.Println("Operations shell for the self-healing daemon")
	fmt.Println()
	fmt.Println("Type 'help' for available commands, 'exit' to quit")
	fmt.Println()
}

// cmdHelp shows help information
func (c *Console) cmdHelp(args []string) error {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	fmt.Printf("\n%s\n", cyan("Available Commands:"))
	fmt.Println()

	commands := []struct {
		name string
		desc string
	}{
		{"status", "Daemon and incident summary"},
		{"incidents [status]", "List recent incidents"},
		{"heal <incident-id>", "Queue an incident for healing"},
		{"pause [duration]", "Pause healing (default 1h)"},
		{"resume", "Resume healing and clear the kill switch"},
		{"kb", "List known fixes"},
		{"events", "Show recent healing activity"},
		{"help, ?", "Show this help message"},
		{"exit, quit", "Exit the console"},
	}

	for _, cmd := range commands {
		fmt.Printf("  %-22s %s\n", green(cmd.name), cmd.desc)
	}

	fmt.Println()
	return nil
}

// cmdStatus shows the daemon state and incident counts
func (c *Console) cmdStatus(args []string) error {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	if resp, err := c.client.Status(); err == nil && resp.Success {
		fmt.Printf("  %s Daemon running\n", green("●"))
		if resp.Data != nil {
			fmt.Printf("    Queue depth: %v\n", resp.Data["queue_depth"])
			if active, ok := resp.Data["kill_switch_active"].(bool); ok && active {
				fmt.Printf("    %s Kill switch ACTIVE ('resume' clears it)\n", red("⚠"))
			}
			if holder, ok := resp.Data["healing_incident"].(string); ok && holder != "" {
				fmt.Printf("    Healing now: %s\n", holder)
			}
		}
	} else {
		fmt.Printf("  %s Daemon not running (start with 'mend serve')\n", gray("○"))
	}

	stats, err := c.store.GetStatistics(c.ctx)
	if err != nil {
		return fmt.Errorf("failed to get statistics: %w", err)
	}
	fmt.Printf("  Incidents: %d open, %d healing, %d resolved, %d failed\n",
		stats.OpenIncidents, stats.HealingIncidents, stats.ResolvedIncidents, stats.FailedIncidents)
	fmt.Printf("  Knowledge: %d known fixes\n", stats.KnowledgeBaseSize)
	return nil
}

// cmdIncidents lists recent incidents, optionally filtered by status
func (c *Console) cmdIncidents(args []string) error {
	cyan := color.New(color.FgCyan).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	filter := types.IncidentFilter{Limit: 10}
	if len(args) > 0 {
		status := types.IncidentStatus(args[0])
		if !status.IsValid() {
			return fmt.Errorf("invalid status %q (open, healing, resolved, failed)", args[0])
		}
		filter.Status = &status
	}

	incidents, err := c.store.ListIncidents(c.ctx, filter)
	if err != nil {
		return fmt.Errorf("failed to list incidents: %w", err)
	}
	if len(incidents) == 0 {
		fmt.Printf("  %s\n", gray("No incidents"))
		return nil
	}

	for _, inc := range incidents {
		icon, paint := statusIcon(inc.Status)
		fmt.Printf("  %s %s  %s %s\n", paint(icon), cyan(inc.ID), inc.Title, paint("("+string(inc.Status)+")"))
	}
	return nil
}

// cmdHeal queues an incident for healing via the daemon
func (c *Console) cmdHeal(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: heal <incident-id>")
	}

	resp, err := c.client.Heal(args[0], false)
	if err != nil {
		return fmt.Errorf("daemon unreachable (is 'mend serve' running?): %w", err)
	}
	if !resp.Success {
		return fmt.Errorf("%s", resp.Error)
	}

	green := color.New(color.FgGreen).SprintFunc()
	fmt.Printf("  %s Queued %s for healing\n", green("✓"), args[0])
	return nil
}

// cmdPause pauses healing for a duration (default one hour)
func (c *Console) cmdPause(args []string) error {
	d := time.Hour
	if len(args) > 0 {
		parsed, err := time.ParseDuration(args[0])
		if err != nil {
			return fmt.Errorf("invalid duration %q (try 30m, 2h)", args[0])
		}
		d = parsed
	}

	resp, err := c.client.Pause(d)
	if err != nil {
		return fmt.Errorf("daemon unreachable (is 'mend serve' running?): %w", err)
	}
	if !resp.Success {
		return fmt.Errorf("%s", resp.Error)
	}

	yellow := color.New(color.FgYellow).SprintFunc()
	fmt.Printf("  %s Healing paused\n", yellow("⏸"))
	if until, ok := resp.Data["paused_until"].(string); ok {
		fmt.Printf("    Until: %s\n", until)
	}
	return nil
}

// cmdResume resumes healing and clears the kill switch
func (c *Console) cmdResume(args []string) error {
	resp, err := c.client.Resume()
	if err != nil {
		return fmt.Errorf("daemon unreachable (is 'mend serve' running?): %w", err)
	}
	if !resp.Success {
		return fmt.Errorf("%s", resp.Error)
	}

	green := color.New(color.FgGreen).SprintFunc()
	fmt.Printf("  %s Healing resumed\n", green("✓"))
	return nil
}

// cmdKB lists the most recently encountered known fixes
func (c *Console) cmdKB(args []string) error {
	cyan := color.New(color.FgCyan).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	entries, err := c.store.ListKBEntries(c.ctx, 10)
	if err != nil {
		return fmt.Errorf("failed to list knowledge base: %w", err)
	}
	if len(entries) == 0 {
		fmt.Printf("  %s\n", gray("Knowledge base is empty; it fills as incidents get fixed"))
		return nil
	}

	for _, entry := range entries {
		fmt.Printf("  %s  confidence %d, fixed %d of %d\n",
			cyan(entry.ErrorSignature), entry.Confidence, entry.TimesFixed, entry.TimesEncountered)
	}
	return nil
}

// cmdEvents shows recent healing activity, newest last
func (c *Console) cmdEvents(args []string) error {
	magenta := color.New(color.FgMagenta).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	evs, err := c.store.GetRecentEvents(c.ctx, 10)
	if err != nil {
		return fmt.Errorf("failed to get events: %w", err)
	}
	if len(evs) == 0 {
		fmt.Printf("  %s\n", gray("No events recorded"))
		return nil
	}

	for i := len(evs) - 1; i >= 0; i-- {
		ev := evs[i]
		fmt.Printf("  %s %s %s\n",
			gray(ev.Timestamp.Format("15:04:05")), magenta(string(ev.Type)), ev.Message)
	}
	return nil
}

// cmdExit exits the console
func (c *Console) cmdExit(args []string) error {
	green := color.New(color.FgGreen).SprintFunc()
	fmt.Printf("\n%s Goodbye!\n", green("✓"))
	if c.rl != nil {
		c.rl.Close()
	}
	return io.EOF // Signal to exit the loop
}

// statusIcon returns the list icon and paint for an incident status
func statusIcon(status types.IncidentStatus) (string, func(a ...interface{}) string) {
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
