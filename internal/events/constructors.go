package events

import (
	"time"

	"github.com/google/uuid"
)

// NewHealingStartedEvent creates a new HealingEvent for healing start with type-safe data.
func NewHealingStartedEvent(incidentID, sessionID string, severity EventSeverity, message string, data HealingStartedData) (*HealingEvent, error) {
	event := &HealingEvent{
		ID:         uuid.New().String(),
		Type:       EventTypeHealingStarted,
		Timestamp:  time.Now(),
		IncidentID: incidentID,
		SessionID:  sessionID,
		Severity:   severity,
		Message:    message,
	}
	if err := event.SetHealingStartedData(data); err != nil {
		return nil, err
	}
	return event, nil
}

// NewHealingCompleteEvent creates a new HealingEvent for healing completion with type-safe data.
func NewHealingCompleteEvent(incidentID, sessionID string, severity EventSeverity, message string, data HealingCompleteData) (*HealingEvent, error) {
	event := &HealingEvent{
		ID:         uuid.New().String(),
		Type:       EventTypeHealingComplete,
		Timestamp:  time.Now(),
		IncidentID: incidentID,
		SessionID:  sessionID,
		Severity:   severity,
		Message:    message,
	}
	if err := event.SetHealingCompleteData(data); err != nil {
		return nil, err
	}
	return event, nil
}

// NewDeploymentStatusEvent creates a new HealingEvent for a deployment status report with type-safe data.
func NewDeploymentStatusEvent(incidentID, sessionID string, severity EventSeverity, message string, data DeploymentStatusData) (*HealingEvent, error) {
	event := &HealingEvent{
		ID:         uuid.New().String(),
		Type:       EventTypeDeploymentStatus,
		Timestamp:  time.Now(),
		IncidentID: incidentID,
		SessionID:  sessionID,
		Severity:   severity,
		Message:    message,
	}
	if err := event.SetDeploymentStatusData(data); err != nil {
		return nil, err
	}
	return event, nil
}

// NewKillSwitchActivatedEvent creates a new HealingEvent for kill-switch activation with type-safe data.
func NewKillSwitchActivatedEvent(severity EventSeverity, message string, data KillSwitchActivatedData) (*HealingEvent, error) {
	event := &HealingEvent{
		ID:        uuid.New().String(),
		Type:      EventTypeKillSwitchActivated,
		Timestamp: time.Now(),
		Severity:  severity,
		Message:   message,
	}
	if err := event.SetKillSwitchActivatedData(data); err != nil {
		return nil, err
	}
	return event, nil
}

// NewIncidentReportedEvent creates a new HealingEvent for incident intake with type-safe data.
func NewIncidentReportedEvent(incidentID string, severity EventSeverity, message string, data IncidentReportedData) (*HealingEvent, error) {
	event := &HealingEvent{
		ID:         uuid.New().String(),
		Type:       EventTypeIncidentReported,
		Timestamp:  time.Now(),
		IncidentID: incidentID,
		Severity:   severity,
		Message:    message,
	}
	if err := event.SetIncidentReportedData(data); err != nil {
		return nil, err
	}
	return event, nil
}

// NewEventCleanupCompletedEvent creates a new HealingEvent for event cleanup completion with type-safe data.
func NewEventCleanupCompletedEvent(severity EventSeverity, message string, data EventCleanupCompletedData) (*HealingEvent, error) {
	event := &HealingEvent{
		ID:        uuid.New().String(),
		Type:      EventTypeEventCleanupCompleted,
		Timestamp: time.Now(),
		Severity:  severity,
		Message:   message,
	}
	if err := event.SetEventCleanupCompletedData(data); err != nil {
		return nil, err
	}
	return event, nil
}

// NewSimpleEvent creates a new HealingEvent with no structured data.
func NewSimpleEvent(eventType EventType, incidentID, sessionID string, severity EventSeverity, message string) *HealingEvent {
	return &HealingEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now(),
		IncidentID: incidentID,
		SessionID:  sessionID,
		Severity:   severity,
		Message:    message,
		Data:       make(map[string]interface{}),
	}
}
