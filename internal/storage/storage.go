package storage

import (
	"context"

	"github.com/mendhq/mend/internal/events"
	"github.com/mendhq/mend/internal/storage/sqlite"
	"github.com/mendhq/mend/internal/types"
)

// Storage defines the interface for healing state backends
type Storage interface {
	// Incidents
	CreateIncident(ctx context.Context, incident *types.Incident) error
	GetIncident(ctx context.Context, id string) (*types.Incident, error)
	ListIncidents(ctx context.Context, filter types.IncidentFilter) ([]*types.Incident, error)
	ListHealableIncidents(ctx context.Context, maxAttempts int) ([]*types.Incident, error)
	MarkIncidentHealing(ctx context.Context, id string, maxAttempts int) error
	UpdateIncidentStatus(ctx context.Context, id string, to types.IncidentStatus) error
	ResolveIncident(ctx context.Context, id, fixDescription, commitHash string) error
	SetIncidentRootCause(ctx context.Context, id, rootCause string) error

	// Healing sessions
	CreateSession(ctx context.Context, session *types.HealingSession) error
	GetSession(ctx context.Context, id string) (*types.HealingSession, error)
	GetActiveSessionForIncident(ctx context.Context, incidentID string) (*types.HealingSession, error)
	ListSessionsForIncident(ctx context.Context, incidentID string) ([]*types.HealingSession, error)
	UpdateSessionPhase(ctx context.Context, id string, to types.SessionPhase) error
	UpdateSession(ctx context.Context, id string, updates map[string]interface{}) error
	CompleteSession(ctx context.Context, id string, phase types.SessionPhase, status types.SessionStatus, errMsg string) error
	SetSessionDeploymentStatus(ctx context.Context, id string, status types.DeploymentStatus) error

	// Heal attempts (append-only audit trail)
	CreateHealAttempt(ctx context.Context, attempt *types.HealAttempt) error
	AppendAttemptAction(ctx context.Context, attemptID string, action types.AttemptAction) error
	CompleteHealAttempt(ctx context.Context, attemptID string, success bool, verificationPassed *bool, errMsg string) error
	GetHealAttempt(ctx context.Context, id string) (*types.HealAttempt, error)
	ListAttemptsForSession(ctx context.Context, sessionID string) ([]*types.HealAttempt, error)
	ListAttemptsForIncident(ctx context.Context, incidentID string) ([]*types.HealAttempt, error)

	// Fix attempts (proposed-fix outcome history)
	CreateFixAttempt(ctx context.Context, attempt *types.FixAttempt) error
	CompleteFixAttempt(ctx context.Context, id string, outcome types.FixOutcome, verificationResults string, prNumber *int, prURL string) error
	GetRecentFixAttempts(ctx context.Context, signature string, limit int) ([]*types.FixAttempt, error)
	ListRecentFixAttempts(ctx context.Context, limit int) ([]*types.FixAttempt, error)

	// Knowledge base
	GetKBEntryBySignature(ctx context.Context, signature string) (*types.KBEntry, error)
	InsertKBEntry(ctx context.Context, entry *types.KBEntry) error
	UpdateKBEntry(ctx context.Context, entry *types.KBEntry) error
	IncrementKBEncounter(ctx context.Context, signature string) error
	ListKBEntries(ctx context.Context, limit int) ([]*types.KBEntry, error)

	// Users
	CreateUser(ctx context.Context, user *types.User) error
	GetUser(ctx context.Context, id string) (*types.User, error)
	GetUserByEmail(ctx context.Context, email string) (*types.User, error)
	GetOwner(ctx context.Context) (*types.User, error)
	GetFirstAdmin(ctx context.Context) (*types.User, error)
	SetOwner(ctx context.Context, id string) error
	ListUsers(ctx context.Context) ([]*types.User, error)

	// Healing events
	StoreEvent(ctx context.Context, event *events.HealingEvent) error
	GetEvents(ctx context.Context, filter events.EventFilter) ([]*events.HealingEvent, error)
	GetEventsByIncident(ctx context.Context, incidentID string) ([]*events.HealingEvent, error)
	GetRecentEvents(ctx context.Context, limit int) ([]*events.HealingEvent, error)

	// Event cleanup - retention policy enforcement
	CleanupEventsByAge(ctx context.Context, retentionDays, batchSize int) (int, error)
	CleanupEventsByGlobalLimit(ctx context.Context, globalLimit, batchSize int) (int, error)
	CountEvents(ctx context.Context) (int, error)
	VacuumDatabase(ctx context.Context) error

	// Statistics
	GetStatistics(ctx context.Context) (*types.Statistics, error)

	// Config
	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error

	// Lifecycle
	Close() error
}

// Config holds database configuration
type Config struct {
	// Path is the SQLite database file path
	// Default: ".mend/mend.db"
	// Special value ":memory:" creates an in-memory database (useful for tests)
	Path string
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Path: ".mend/mend.db",
	}
}

// NewStorage creates a new SQLite storage backend
// The ctx parameter is currently unused but kept for API consistency
// and future extension possibilities
func NewStorage(ctx context.Context, cfg *Config) (Storage, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	if cfg.Path == "" {
		cfg.Path = ".mend/mend.db"
	}

	return sqlite.New(cfg.Path)
}
