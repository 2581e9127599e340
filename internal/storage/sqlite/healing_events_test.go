package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/mendhq/mend/internal/events"
)

func storeTestEvent(t *testing.T, store *SQLiteStorage, event *events.HealingEvent) {
	t.Helper()
	if err := store.StoreEvent(context.Background(), event); err != nil {
		t.Fatalf("StoreEvent failed: %v", err)
	}
}

func TestStoreAndGetEvents(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	event := &events.HealingEvent{
		Type:       events.EventTypeHealingStarted,
		IncidentID: "inc-1",
		SessionID:  "sess-1",
		Severity:   events.SeverityInfo,
		Message:    "healing started for incident inc-1",
		Data: map[string]interface{}{
			"strategy":            "knowledge_base",
			"used_knowledge_base": true,
		},
	}
	storeTestEvent(t, store, event)
	if event.ID == "" {
		t.Fatal("expected generated event ID")
	}

	got, err := store.GetEventsByIncident(ctx, "inc-1")
	if err != nil {
		t.Fatalf("GetEventsByIncident failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 event, got %d", len(got))
	}
	if got[0].Type != events.EventTypeHealingStarted {
		t.Errorf("unexpected type: %s", got[0].Type)
	}
	if got[0].Data["strategy"] != "knowledge_base" {
		t.Errorf("unexpected strategy in data: %v", got[0].Data["strategy"])
	}
	if got[0].Data["used_knowledge_base"] != true {
		t.Errorf("unexpected used_knowledge_base in data: %v", got[0].Data["used_knowledge_base"])
	}
}

func TestStoreEventRequiresType(t *testing.T) {
	store := setupTestDB(t)

	err := store.StoreEvent(context.Background(), &events.HealingEvent{Message: "typeless"})
	if err == nil {
		t.Error("expected error for missing event type")
	}
}

func TestGetEventsFilters(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	seed := []*events.HealingEvent{
		{Type: events.EventTypeHealingStarted, IncidentID: "inc-1", SessionID: "sess-1", Severity: events.SeverityInfo, Message: "a", Timestamp: base},
		{Type: events.EventTypeHealingComplete, IncidentID: "inc-1", SessionID: "sess-1", Severity: events.SeverityInfo, Message: "b", Timestamp: base.Add(time.Minute)},
		{Type: events.EventTypeHealingStarted, IncidentID: "inc-2", SessionID: "sess-2", Severity: events.SeverityWarning, Message: "c", Timestamp: base.Add(2 * time.Minute)},
		{Type: events.EventTypeKillSwitchActivated, Severity: events.SeverityCritical, Message: "d", Timestamp: base.Add(3 * time.Minute)},
	}
	for _, event := range seed {
		storeTestEvent(t, store, event)
	}

	byType, err := store.GetEvents(ctx, events.EventFilter{Type: events.EventTypeHealingStarted})
	if err != nil {
		t.Fatalf("GetEvents by type failed: %v", err)
	}
	if len(byType) != 2 {
		t.Errorf("expected 2 healing-started events, got %d", len(byType))
	}

	bySeverity, err := store.GetEvents(ctx, events.EventFilter{Severity: events.SeverityCritical})
	if err != nil {
		t.Fatalf("GetEvents by severity failed: %v", err)
	}
	if len(bySeverity) != 1 || bySeverity[0].Message != "d" {
		t.Errorf("unexpected critical events: %+v", bySeverity)
	}

	bySession, err := store.GetEvents(ctx, events.EventFilter{SessionID: "sess-1"})
	if err != nil {
		t.Fatalf("GetEvents by session failed: %v", err)
	}
	if len(bySession) != 2 {
		t.Errorf("expected 2 events for sess-1, got %d", len(bySession))
	}

	after, err := store.GetEvents(ctx, events.EventFilter{AfterTime: base.Add(90 * time.Second)})
	if err != nil {
		t.Fatalf("GetEvents after time failed: %v", err)
	}
	if len(after) != 2 {
		t.Errorf("expected 2 events after cutoff, got %d", len(after))
	}

	window, err := store.GetEvents(ctx, events.EventFilter{
		AfterTime:  base.Add(30 * time.Second),
		BeforeTime: base.Add(150 * time.Second),
	})
	if err != nil {
		t.Fatalf("GetEvents window failed: %v", err)
	}
	if len(window) != 2 {
		t.Errorf("expected 2 events in window, got %d", len(window))
	}
}

func TestGetRecentEventsOrderAndLimit(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 2, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		storeTestEvent(t, store, &events.HealingEvent{
			Type:      events.EventTypeIncidentReported,
			Severity:  events.SeverityInfo,
			Message:   "event",
			Timestamp: base.Add(time.Duration(i) * time.Second),
		})
	}

	recent, err := store.GetRecentEvents(ctx, 3)
	if err != nil {
		t.Fatalf("GetRecentEvents failed: %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("expected 3 events, got %d", len(recent))
	}
	// Newest first.
	if !recent[0].Timestamp.After(recent[1].Timestamp) {
		t.Errorf("expected newest first: %v then %v", recent[0].Timestamp, recent[1].Timestamp)
	}
	if !recent[1].Timestamp.After(recent[2].Timestamp) {
		t.Errorf("expected descending order: %v then %v", recent[1].Timestamp, recent[2].Timestamp)
	}
}

func TestStoreEventEmptyData(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	storeTestEvent(t, store, &events.HealingEvent{
		Type:     events.EventTypeDeploymentStatus,
		Severity: events.SeverityInfo,
		Message:  "no payload",
	})

	got, err := store.GetRecentEvents(ctx, 1)
	if err != nil {
		t.Fatalf("GetRecentEvents failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 event, got %d", len(got))
	}
	if got[0].Data == nil {
		t.Error("expected non-nil data map")
	}
	if len(got[0].Data) != 0 {
		t.Errorf("expected empty data map, got %v", got[0].Data)
	}
}
