package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mendhq/mend/internal/events"
)

var (
	eventsFollow   bool
	eventsIncident string
	eventsLimit    int
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Watch healing activity",
	Long: `Display recent healing events and optionally follow live updates.

Shows the durable event log: incidents reported, healings started and
completed, deployment reports, and kill switch trips.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		if eventsFollow {
			runEventsFollow(ctx)
		} else {
			runEventsOnce(ctx)
		}
	},
}

func init() {
	eventsCmd.Flags().BoolVarP(&eventsFollow, "follow", "f", false, "Follow mode - watch for live updates (Ctrl+C to stop)")
	eventsCmd.Flags().StringVarP(&eventsIncident, "incident", "i", "", "Filter events by incident ID")
	eventsCmd.Flags().IntVarP(&eventsLimit, "limit", "n", 20, "Number of recent events to show initially")
	rootCmd.AddCommand(eventsCmd)
}

// runEventsOnce shows recent events and exits.
func runEventsOnce(ctx context.Context) {
	evs, err := fetchHealingEvents(ctx, eventsIncident, eventsLimit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error fetching events: %v\n", err)
		os.Exit(1)
	}

	if len(evs) == 0 {
		gray := color.New(color.FgHiBlack).SprintFunc()
		if eventsIncident != "" {
			fmt.Printf("%s\n", gray(fmt.Sprintf("No events for incident %s", eventsIncident)))
		} else {
			fmt.Printf("%s\n", gray("No events recorded"))
		}
		return
	}

	// Newest last, so the terminal reads top to bottom in time order.
	for i := len(evs) - 1; i >= 0; i-- {
		displayHealingEvent(evs[i])
	}
}

// runEventsFollow shows recent events and keeps polling for new ones.
func runEventsFollow(ctx context.Context) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	cyan := color.New(color.FgCyan).SprintFunc()
	fmt.Printf("\n%s Following healing activity (Ctrl+C to stop)...\n\n", cyan("→"))

	evs, err := fetchHealingEvents(ctx, eventsIncident, eventsLimit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error fetching events: %v\n", err)
		os.Exit(1)
	}
	for i := len(evs) - 1; i >= 0; i-- {
		displayHealingEvent(evs[i])
	}

	var lastTimestamp time.Time
	if len(evs) > 0 {
		lastTimestamp = evs[0].Timestamp
	}

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-sigCh:
			fmt.Println("\n\nStopped following")
			return
		case <-ticker.C:
			newEvents, err := fetchHealingEventsAfter(ctx, eventsIncident, lastTimestamp)
			if err != nil {
				fmt.Fprintf(os.Stderr, "\nError fetching new events: %v\n", err)
				continue
			}
			for i := len(newEvents) - 1; i >= 0; i-- {
				displayHealingEvent(newEvents[i])
				if newEvents[i].Timestamp.After(lastTimestamp) {
					lastTimestamp = newEvents[i].Timestamp
				}
			}
		}
	}
}

func fetchHealingEvents(ctx context.Context, incidentID string, limit int) ([]*events.HealingEvent, error) {
	if incidentID != "" {
		return store.GetEventsByIncident(ctx, incidentID)
	}
	return store.GetRecentEvents(ctx, limit)
}

func fetchHealingEventsAfter(ctx context.Context, incidentID string, afterTime time.Time) ([]*events.HealingEvent, error) {
	filter := events.EventFilter{
		AfterTime: afterTime,
		Limit:     100,
	}
	if incidentID != "" {
		filter.IncidentID = incidentID
	}
	return store.GetEvents(ctx, filter)
}

// displayHealingEvent formats and prints a single event with color.
func displayHealingEvent(event *events.HealingEvent) {
	var severityColor *color.Color
	var icon string

	switch event.Severity {
	case events.SeverityInfo:
		severityColor = color.New(color.FgCyan)
		icon = "•"
	case events.SeverityWarning:
		severityColor = color.New(color.FgYellow)
		icon = "⚠"
	case events.SeverityError:
		severityColor = color.New(color.FgRed)
		icon = "✗"
	case events.SeverityCritical:
		severityColor = color.New(color.FgRed, color.Bold)
		icon = "‼"
	default:
		severityColor = color.New(color.FgWhite)
		icon = "•"
	}

	timestamp := event.Timestamp.Format("15:04:05")
	eventType := color.New(color.FgMagenta).Sprint(event.Type)

	subject := event.IncidentID
	if subject == "" {
		subject = "daemon"
	}
	subject = color.New(color.FgGreen).Sprint(subject)

	fmt.Printf("%s [%s] %s %s: %s\n",
		icon, timestamp, subject, eventType, severityColor.Sprint(event.Message))

	if len(event.Data) > 0 {
		gray := color.New(color.FgHiBlack)
		for key, value := range event.Data {
			fmt.Printf("    %s: %v\n", gray.Sprint(key), value)
		}
	}
}
