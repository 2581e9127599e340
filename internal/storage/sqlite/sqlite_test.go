package sqlite

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/mendhq/mend/internal/types"
)

// setupTestDB creates a temporary database for testing.
func setupTestDB(t *testing.T) *SQLiteStorage {
	t.Helper()

	tmpfile, err := os.CreateTemp("", "mend-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpfile.Close()
	t.Cleanup(func() { os.Remove(tmpfile.Name()) })

	store, err := New(tmpfile.Name())
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return store
}

// createTestIncident inserts a minimal incident and returns it.
func createTestIncident(t *testing.T, store *SQLiteStorage) *types.Incident {
	t.Helper()

	incident := &types.Incident{
		Kind:        types.KindRuntimeError,
		Severity:    types.SeverityHigh,
		Title:       "TypeError in request handler",
		Description: "Cannot read properties of undefined (reading 'id')",
		StackTrace:  "at handler (/srv/api.ts:42:7)",
		Source:      "monitor",
	}
	if err := store.CreateIncident(context.Background(), incident); err != nil {
		t.Fatalf("failed to create incident: %v", err)
	}
	return incident
}

// createTestSession inserts an active session for the incident.
func createTestSession(t *testing.T, store *SQLiteStorage, incidentID string, strategy types.Strategy) *types.HealingSession {
	t.Helper()

	session := &types.HealingSession{
		IncidentID: incidentID,
		Strategy:   strategy,
	}
	if err := store.CreateSession(context.Background(), session); err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	return session
}

func TestNewCreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/nested/deeper/mend.db"

	store, err := New(path)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected database file to exist: %v", err)
	}
}

func TestNewInMemory(t *testing.T) {
	store, err := New(":memory:")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer store.Close()

	if _, err := store.GetIncident(context.Background(), "missing"); err != nil {
		t.Errorf("query on in-memory database failed: %v", err)
	}
}

func TestConfigRoundTrip(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	value, err := store.GetConfig(ctx, "daemon_version")
	if err != nil {
		t.Fatalf("GetConfig failed: %v", err)
	}
	if value != "" {
		t.Errorf("expected empty value for missing key, got %q", value)
	}

	if err := store.SetConfig(ctx, "daemon_version", "0.1.0"); err != nil {
		t.Fatalf("SetConfig failed: %v", err)
	}
	if err := store.SetConfig(ctx, "daemon_version", "0.2.0"); err != nil {
		t.Fatalf("SetConfig overwrite failed: %v", err)
	}

	value, err = store.GetConfig(ctx, "daemon_version")
	if err != nil {
		t.Fatalf("GetConfig failed: %v", err)
	}
	if value != "0.2.0" {
		t.Errorf("expected 0.2.0, got %q", value)
	}
}

func TestGetStatistics(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	first := createTestIncident(t, store)
	second := createTestIncident(t, store)
	createTestSession(t, store, first.ID, types.StrategyKnowledgeBase)

	if err := store.MarkIncidentHealing(ctx, second.ID, 3); err != nil {
		t.Fatalf("MarkIncidentHealing failed: %v", err)
	}

	stats, err := store.GetStatistics(ctx)
	if err != nil {
		t.Fatalf("GetStatistics failed: %v", err)
	}

	if stats.TotalIncidents != 2 {
		t.Errorf("expected 2 total incidents, got %d", stats.TotalIncidents)
	}
	if stats.OpenIncidents != 1 {
		t.Errorf("expected 1 open incident, got %d", stats.OpenIncidents)
	}
	if stats.HealingIncidents != 1 {
		t.Errorf("expected 1 healing incident, got %d", stats.HealingIncidents)
	}
	if stats.TotalSessions != 1 {
		t.Errorf("expected 1 session, got %d", stats.TotalSessions)
	}
	if stats.ActiveSessions != 1 {
		t.Errorf("expected 1 active session, got %d", stats.ActiveSessions)
	}
}

func TestVacuumDatabase(t *testing.T) {
	store := setupTestDB(t)
	if err := store.VacuumDatabase(context.Background()); err != nil {
		t.Fatalf("VacuumDatabase failed: %v", err)
	}
}

func TestTimestampRoundTrip(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	created := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	incident := &types.Incident{
		Kind:      types.KindBuildFailure,
		Severity:  types.SeverityLow,
		Title:     "build broke",
		CreatedAt: created,
		UpdatedAt: created,
	}
	if err := store.CreateIncident(ctx, incident); err != nil {
		t.Fatalf("CreateIncident failed: %v", err)
	}

	got, err := store.GetIncident(ctx, incident.ID)
	if err != nil {
		t.Fatalf("GetIncident failed: %v", err)
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("created_at changed in round trip: want %v, got %v", created, got.CreatedAt)
	}
}
