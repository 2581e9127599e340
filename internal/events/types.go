package events

import (
	"context"
	"time"
)

// EventType represents the type of event emitted by the healing pipeline.
type EventType string

const (
	// EventTypeHealingStarted indicates a healing session was admitted and started
	EventTypeHealingStarted EventType = "healing-started"
	// EventTypeHealingComplete indicates a healing session reached a terminal outcome
	EventTypeHealingComplete EventType = "healing-complete"
	// EventTypeDeploymentStatus indicates a deployment status change for a session
	EventTypeDeploymentStatus EventType = "deployment-status"
	// EventTypeKillSwitchActivated indicates the kill-switch engaged after repeated failures
	EventTypeKillSwitchActivated EventType = "kill-switch-activated"

	// EventTypeIncidentReported indicates a new incident was recorded
	EventTypeIncidentReported EventType = "incident-reported"
	// EventTypeEventCleanupCompleted indicates an event retention sweep completed
	EventTypeEventCleanupCompleted EventType = "event_cleanup_completed"
)

// EventSeverity represents the severity level of an event.
type EventSeverity string

const (
	// SeverityInfo indicates informational events
	SeverityInfo EventSeverity = "info"
	// SeverityWarning indicates potentially problematic events
	SeverityWarning EventSeverity = "warning"
	// SeverityError indicates error events
	SeverityError EventSeverity = "error"
	// SeverityCritical indicates critical events requiring immediate attention
	SeverityCritical EventSeverity = "critical"
)

// HealingEvent represents an event that occurred during incident healing.
// Events are published to subscribers and stored for analysis and review.
type HealingEvent struct {
	// ID is the unique identifier for this event
	ID string `json:"id"`
	// Type is the type of event
	Type EventType `json:"type"`
	// Timestamp is when the event occurred
	Timestamp time.Time `json:"timestamp"`
	// IncidentID is the incident being healed when this event occurred
	IncidentID string `json:"incident_id"`
	// SessionID is the healing session that produced this event (may be empty)
	SessionID string `json:"session_id"`
	// Severity is the severity level of this event
	Severity EventSeverity `json:"severity"`
	// Message is a human-readable description of the event
	Message string `json:"message"`
	// Data contains structured, type-specific data (must be JSON-serializable)
	Data map[string]interface{} `json:"data"`
}

// IncidentSummary is the incident snapshot carried inside event payloads.
type IncidentSummary struct {
	// Kind is the incident kind (high_cpu, runtime_error, ...)
	Kind string `json:"kind"`
	// Severity is the incident severity
	Severity string `json:"severity"`
	// Title is the incident title
	Title string `json:"title"`
}

// HealingStartedData contains structured data for healing start events.
type HealingStartedData struct {
	// IncidentID is the incident being healed
	IncidentID string `json:"incident_id"`
	// SessionID is the healing session that was opened
	SessionID string `json:"session_id"`
	// Incident is a snapshot of the incident at admission time
	Incident IncidentSummary `json:"incident"`
	// Strategy is the selected repair strategy (knowledge_base, worker_agent, escalated)
	Strategy string `json:"strategy"`
	// UsedKnowledgeBase indicates whether a knowledge base match drove the strategy
	UsedKnowledgeBase bool `json:"used_knowledge_base"`
}

// HealingCompleteData contains structured data for healing completion events.
type HealingCompleteData struct {
	// IncidentID is the incident that was healed
	IncidentID string `json:"incident_id"`
	// SessionID is the healing session that finished
	SessionID string `json:"session_id"`
	// Result is the terminal outcome: "success", "pr_created", or "failed"
	Result string `json:"result"`
	// Message is a human-readable summary of the outcome
	Message string `json:"message"`
	// PRNumber is the pull request number when Result is "pr_created"
	PRNumber int `json:"pr_number,omitempty"`
	// PRURL is the pull request URL when Result is "pr_created"
	PRURL string `json:"pr_url,omitempty"`
}

// DeploymentStatusData contains structured data for deployment status events.
type DeploymentStatusData struct {
	// SessionID is the healing session awaiting deployment
	SessionID string `json:"session_id"`
	// IncidentID is the incident being healed
	IncidentID string `json:"incident_id"`
	// DeploymentStatus is the reported status: "deploying", "succeeded", or "failed"
	DeploymentStatus string `json:"deployment_status"`
	// Timestamp is when the deployment status was reported
	Timestamp time.Time `json:"timestamp"`
}

// KillSwitchActivatedData contains structured data for kill-switch activation events.
type KillSwitchActivatedData struct {
	// ConsecutiveFailures is the failure count that tripped the switch
	ConsecutiveFailures int `json:"consecutive_failures"`
	// DisabledUntil is when healing re-enables automatically
	DisabledUntil time.Time `json:"disabled_until"`
	// Message is a human-readable explanation
	Message string `json:"message"`
}

// IncidentReportedData contains structured data for incident intake events.
type IncidentReportedData struct {
	// IncidentID is the ID of the recorded incident
	IncidentID string `json:"incident_id"`
	// Kind is the incident kind
	Kind string `json:"kind"`
	// Severity is the incident severity
	Severity string `json:"severity"`
	// Source is where the incident came from (api, cli, monitor)
	Source string `json:"source,omitempty"`
}

// EventCleanupCompletedData contains structured data for event cleanup completion events.
type EventCleanupCompletedData struct {
	// EventsDeleted is the total number of events deleted
	EventsDeleted int `json:"events_deleted"`
	// TimeBasedDeleted is the number of events deleted by time-based retention
	TimeBasedDeleted int `json:"time_based_deleted"`
	// GlobalLimitDeleted is the number of events deleted by the global safety limit
	GlobalLimitDeleted int `json:"global_limit_deleted"`
	// ProcessingTimeMs is the time taken for cleanup in milliseconds
	ProcessingTimeMs int64 `json:"processing_time_ms"`
	// EventsRemaining is the total number of events remaining after cleanup
	EventsRemaining int `json:"events_remaining"`
	// Success indicates whether cleanup succeeded
	Success bool `json:"success"`
	// Error contains the error message if cleanup failed
	Error string `json:"error,omitempty"`
}

// EventStore defines the interface for storing and retrieving healing events.
type EventStore interface {
	// StoreEvent stores a new event in the event store
	StoreEvent(ctx context.Context, event *HealingEvent) error

	// GetEvents retrieves events matching the given filter
	GetEvents(ctx context.Context, filter EventFilter) ([]*HealingEvent, error)

	// GetEventsByIncident retrieves all events for a specific incident
	GetEventsByIncident(ctx context.Context, incidentID string) ([]*HealingEvent, error)

	// GetRecentEvents retrieves the most recent events up to the specified limit
	GetRecentEvents(ctx context.Context, limit int) ([]*HealingEvent, error)
}

// EventFilter defines criteria for filtering events.
type EventFilter struct {
	// IncidentID filters events by incident ID
	IncidentID string
	// SessionID filters events by session ID
	SessionID string
	// Type filters events by event type
	Type EventType
	// Severity filters events by severity level
	Severity EventSeverity
	// AfterTime filters events that occurred after this time
	AfterTime time.Time
	// BeforeTime filters events that occurred before this time
	BeforeTime time.Time
	// Limit limits the number of events returned
	Limit int
}
