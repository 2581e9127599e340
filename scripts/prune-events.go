// scripts/prune-events.go - Manual healing-event pruning tool
//
// The daemon sweeps old events on its own ticker; this runs the same
// cleanup offline, for databases from hosts where 'mend serve' is down.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/mendhq/mend/internal/config"
	"github.com/mendhq/mend/internal/storage"
)

func main() {
	ctx := context.Background()

	cfg := storage.DefaultConfig()

	// Allow override via environment variable
	if dbPath := os.Getenv("MEND_DB_PATH"); dbPath != "" {
		cfg.Path = dbPath
	}

	retention, err := config.EventRetentionConfigFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading retention config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Connecting to database: %s\n", cfg.Path)

	store, err := storage.NewStorage(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening storage: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	before, err := store.CountEvents(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error counting events: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Pruning events older than %d days (global cap %d)...\n",
		retention.RetentionDays, retention.GlobalLimitEvents)

	byAge, err := store.CleanupEventsByAge(ctx, retention.RetentionDays, retention.CleanupBatchSize)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error during age cleanup: %v\n", err)
		os.Exit(1)
	}

	byLimit, err := store.CleanupEventsByGlobalLimit(ctx, retention.GlobalLimitEvents, retention.CleanupBatchSize)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error during global-limit cleanup: %v\n", err)
		os.Exit(1)
	}

	removed := byAge + byLimit
	if removed > 0 {
		if err := store.VacuumDatabase(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: vacuum failed: %v\n", err)
		}
		fmt.Printf("✓ Removed %d event(s), %d remain\n", removed, before-removed)
	} else {
		fmt.Printf("✓ Nothing to prune (%d events within policy)\n", before)
	}
}
