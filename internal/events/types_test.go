package events

import (
	"testing"
	"time"
)

func TestNewHealingStartedEvent(t *testing.T) {
	event, err := NewHealingStartedEvent("inc-1", "sess-1", SeverityInfo, "healing started", HealingStartedData{
		IncidentID: "inc-1",
		SessionID:  "sess-1",
		Incident:   IncidentSummary{Kind: "build_failure", Severity: "medium", Title: "tsc errors"},
		Strategy:   "worker_agent",
	})
	if err != nil {
		t.Fatalf("NewHealingStartedEvent failed: %v", err)
	}

	if event.ID == "" {
		t.Error("event ID should be generated")
	}
	if event.Type != EventTypeHealingStarted {
		t.Errorf("Type = %s, want %s", event.Type, EventTypeHealingStarted)
	}
	if event.IncidentID != "inc-1" {
		t.Errorf("IncidentID = %s, want inc-1", event.IncidentID)
	}
	if event.SessionID != "sess-1" {
		t.Errorf("SessionID = %s, want sess-1", event.SessionID)
	}
	if time.Since(event.Timestamp) > time.Minute {
		t.Errorf("Timestamp not recent: %v", event.Timestamp)
	}
	if event.Data == nil {
		t.Fatal("Data should be populated")
	}
}

func TestNewKillSwitchActivatedEvent(t *testing.T) {
	event, err := NewKillSwitchActivatedEvent(SeverityCritical, "kill switch engaged", KillSwitchActivatedData{
		ConsecutiveFailures: 3,
		DisabledUntil:       time.Now().Add(time.Hour),
		Message:             "kill switch engaged",
	})
	if err != nil {
		t.Fatalf("NewKillSwitchActivatedEvent failed: %v", err)
	}

	if event.Type != EventTypeKillSwitchActivated {
		t.Errorf("Type = %s, want %s", event.Type, EventTypeKillSwitchActivated)
	}
	if event.IncidentID != "" {
		t.Errorf("IncidentID = %s, want empty (system-wide event)", event.IncidentID)
	}
	if event.Severity != SeverityCritical {
		t.Errorf("Severity = %s, want critical", event.Severity)
	}
}

func TestNewSimpleEvent(t *testing.T) {
	event := NewSimpleEvent(EventTypeIncidentReported, "inc-2", "", SeverityWarning, "incident recorded")

	if event.ID == "" {
		t.Error("event ID should be generated")
	}
	if event.Data == nil {
		t.Error("Data should be initialized to an empty map")
	}
	if event.SessionID != "" {
		t.Errorf("SessionID = %s, want empty", event.SessionID)
	}
}

func TestEventConstructorsGenerateUniqueIDs(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		event := NewSimpleEvent(EventTypeHealingComplete, "inc", "sess", SeverityInfo, "done")
		if seen[event.ID] {
			t.Fatalf("duplicate event ID generated: %s", event.ID)
		}
		seen[event.ID] = true
	}
}
