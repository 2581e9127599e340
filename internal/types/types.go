package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// Incident represents a detected platform anomaly awaiting repair.
// Incidents are created by external detectors (or the intake surface) and
// mutated only by the orchestrator until they reach a terminal status.
type Incident struct {
	ID          string             `json:"id"`
	Kind        IncidentKind       `json:"kind"`
	Severity    Severity           `json:"severity"`
	Title       string             `json:"title"`
	Description string             `json:"description"`
	StackTrace  string             `json:"stack_trace,omitempty"`
	Logs        string             `json:"logs,omitempty"`
	Source      string             `json:"source"`
	Metrics     map[string]float64 `json:"metrics,omitempty"`

	Status         IncidentStatus `json:"status"`
	AttemptCount   int            `json:"attempt_count"`
	LastAttemptAt  *time.Time     `json:"last_attempt_at,omitempty"`
	RootCause      string         `json:"root_cause,omitempty"`
	FixDescription string         `json:"fix_description,omitempty"`
	CommitHash     string         `json:"commit_hash,omitempty"`
	ResolvedAt     *time.Time     `json:"resolved_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks if the incident has valid field values
func (i *Incident) Validate() error {
	if i.ID == "" {
		return fmt.Errorf("id is required")
	}
	if len(i.Title) == 0 {
		return fmt.Errorf("title is required")
	}
	if len(i.Title) > 500 {
		return fmt.Errorf("title must be 500 characters or less (got %d)", len(i.Title))
	}
	if !i.Kind.IsValid() {
		return fmt.Errorf("invalid kind: %s", i.Kind)
	}
	if !i.Severity.IsValid() {
		return fmt.Errorf("invalid severity: %s", i.Severity)
	}
	if !i.Status.IsValid() {
		return fmt.Errorf("invalid status: %s", i.Status)
	}
	if i.AttemptCount < 0 {
		return fmt.Errorf("attempt_count cannot be negative (got %d)", i.AttemptCount)
	}
	return nil
}

// IsTerminal reports whether the incident has reached a final status.
func (i *Incident) IsTerminal() bool {
	return i.Status == IncidentResolved || i.Status == IncidentFailed
}

// IncidentKind categorizes the detected anomaly
type IncidentKind string

const (
	KindHighCPU      IncidentKind = "high_cpu"
	KindHighMemory   IncidentKind = "high_memory"
	KindSafetyIssue  IncidentKind = "safety_issue"
	KindBuildFailure IncidentKind = "build_failure"
	KindRuntimeError IncidentKind = "runtime_error"
	KindAgentFailure IncidentKind = "agent_failure"
	KindOther        IncidentKind = "other"
)

// IsValid checks if the incident kind value is valid
func (k IncidentKind) IsValid() bool {
	switch k {
	case KindHighCPU, KindHighMemory, KindSafetyIssue, KindBuildFailure,
		KindRuntimeError, KindAgentFailure, KindOther:
		return true
	}
	return false
}

// Severity represents how urgent an incident is
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// IsValid checks if the severity value is valid
func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// IncidentStatus represents the current state of an incident
type IncidentStatus string

const (
	IncidentOpen     IncidentStatus = "open"
	IncidentHealing  IncidentStatus = "healing"
	IncidentResolved IncidentStatus = "resolved"
	IncidentFailed   IncidentStatus = "failed"
)

// IsValid checks if the incident status value is valid
func (s IncidentStatus) IsValid() bool {
	switch s {
	case IncidentOpen, IncidentHealing, IncidentResolved, IncidentFailed:
		return true
	}
	return false
}

// ValidTransitions defines the valid status transitions for incidents.
//
// Status Diagram:
//
//	open ──► healing ──┬─► resolved
//	  ▲         │      └─► failed ──► healing (retry while attempts remain)
//	  └─────────┘
//
// Valid transitions:
//   - open → healing (orchestrator admits the incident)
//   - open → failed (attempt cap reached at admission)
//   - healing → resolved (session succeeded)
//   - healing → failed (session failed terminally)
//   - healing → open (session failed but the incident stays retryable)
//   - failed → healing (retry after a non-terminal failure)
//   - resolved is terminal
func (s IncidentStatus) ValidTransitions() []IncidentStatus {
	switch s {
	case IncidentOpen:
		return []IncidentStatus{IncidentHealing, IncidentFailed}
	case IncidentHealing:
		return []IncidentStatus{IncidentResolved, IncidentFailed, IncidentOpen}
	case IncidentFailed:
		return []IncidentStatus{IncidentHealing}
	case IncidentResolved:
		return []IncidentStatus{} // Terminal state
	default:
		return []IncidentStatus{}
	}
}

// CanTransitionTo checks if a transition from this status to the target is valid
func (s IncidentStatus) CanTransitionTo(target IncidentStatus) bool {
	for _, valid := range s.ValidTransitions() {
		if valid == target {
			return true
		}
	}
	return false
}

// Strategy identifies which repair tier a session is using
type Strategy string

const (
	StrategyKnowledgeBase Strategy = "knowledge_base"
	StrategyWorkerAgent   Strategy = "worker_agent"
	StrategyEscalated     Strategy = "escalated"
)

// IsValid checks if the strategy value is valid
func (s Strategy) IsValid() bool {
	switch s {
	case StrategyKnowledgeBase, StrategyWorkerAgent, StrategyEscalated:
		return true
	}
	return false
}

// SessionPhase represents where a healing session is in its pipeline
type SessionPhase string

const (
	PhaseDiagnosis SessionPhase = "diagnosis" // Choosing a tier and proposing a fix
	PhaseRepair    SessionPhase = "repair"    // Applying the fix (or awaiting the worker job)
	PhaseVerify    SessionPhase = "verify"    // Running verification over modified files
	PhaseDeploy    SessionPhase = "deploy"    // Committed; awaiting the deployment webhook
	PhaseComplete  SessionPhase = "complete"  // Successfully completed (terminal)
	PhaseFailed    SessionPhase = "failed"    // Failed (terminal)
)

// IsValid checks if the session phase value is valid
func (p SessionPhase) IsValid() bool {
	switch p {
	case PhaseDiagnosis, PhaseRepair, PhaseVerify, PhaseDeploy, PhaseComplete, PhaseFailed:
		return true
	}
	return false
}

// ValidTransitions defines the valid phase transitions for the healing
// state machine. Every persisted phase change is validated against this
// table before the row is written.
//
// State Machine Diagram:
//
//	diagnosis ──► repair ──► verify ──┬─► complete
//	    │            │          │     └─► deploy ──► complete
//	    ▼            ▼          ▼                       │
//	  failed       failed     failed ◄──────────────────┘
//
// Valid transitions:
//   - diagnosis → repair (tier chosen; fix proposed or worker job dispatched)
//   - repair → verify (files modified and ready to check)
//   - verify → complete (verified, committed, no deployment required)
//   - verify → deploy (verified, auto-committed, awaiting deployment webhook)
//   - deploy → complete (deployment webhook reported success)
//   - any state → failed (unrecoverable error; rollback precedes the write)
func (p SessionPhase) ValidTransitions() []SessionPhase {
	switch p {
	case PhaseDiagnosis:
		return []SessionPhase{PhaseRepair, PhaseFailed}
	case PhaseRepair:
		return []SessionPhase{PhaseVerify, PhaseFailed}
	case PhaseVerify:
		return []SessionPhase{PhaseComplete, PhaseDeploy, PhaseFailed}
	case PhaseDeploy:
		return []SessionPhase{PhaseComplete, PhaseFailed}
	case PhaseComplete:
		return []SessionPhase{} // Terminal state
	case PhaseFailed:
		return []SessionPhase{} // Terminal state
	default:
		return []SessionPhase{}
	}
}

// CanTransitionTo checks if a transition from this phase to the target is valid
func (p SessionPhase) CanTransitionTo(target SessionPhase) bool {
	for _, valid := range p.ValidTransitions() {
		if valid == target {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the phase is a final phase.
func (p SessionPhase) IsTerminal() bool {
	return p == PhaseComplete || p == PhaseFailed
}

// SessionStatus represents the overall outcome state of a session
type SessionStatus string

const (
	SessionActive  SessionStatus = "active"
	SessionSuccess SessionStatus = "success"
	SessionFailed  SessionStatus = "failed"
)

// IsValid checks if the session status value is valid
func (s SessionStatus) IsValid() bool {
	switch s {
	case SessionActive, SessionSuccess, SessionFailed:
		return true
	}
	return false
}

// HealingSession tracks one end-to-end attempt to repair an incident.
// At most one session per incident may be active at a time; the storage
// layer enforces this with a partial unique index.
type HealingSession struct {
	ID         string        `json:"id"`
	IncidentID string        `json:"incident_id"`
	Phase      SessionPhase  `json:"phase"`
	Status     SessionStatus `json:"status"`
	Strategy   Strategy      `json:"strategy"`
	ModelTag   string        `json:"model_tag,omitempty"`

	WorkerJobID       string `json:"worker_job_id,omitempty"`
	KBMatchID         string `json:"kb_match_id,omitempty"`
	KBMatchConfidence *int   `json:"kb_match_confidence,omitempty"`

	DiagnosisNotes      string           `json:"diagnosis_notes,omitempty"`
	ProposedFix         string           `json:"proposed_fix,omitempty"` // JSON ProposedFix document
	FilesChanged        []string         `json:"files_changed,omitempty"`
	VerificationResults string           `json:"verification_results,omitempty"` // JSON string (must be valid JSON)
	VerificationPassed  *bool            `json:"verification_passed,omitempty"`
	CommitHash          string           `json:"commit_hash,omitempty"`
	PRNumber            *int             `json:"pr_number,omitempty"`
	PRURL               string           `json:"pr_url,omitempty"`
	DeploymentStatus    DeploymentStatus `json:"deployment_status,omitempty"`
	DeploymentStartedAt *time.Time       `json:"deployment_started_at,omitempty"`
	Error               string           `json:"error,omitempty"`

	StartedAt   time.Time  `json:"started_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Validate checks if the healing session has valid field values
func (s *HealingSession) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("id is required")
	}
	if s.IncidentID == "" {
		return fmt.Errorf("incident_id is required")
	}
	if !s.Phase.IsValid() {
		return fmt.Errorf("invalid phase: %s", s.Phase)
	}
	if !s.Status.IsValid() {
		return fmt.Errorf("invalid status: %s", s.Status)
	}
	if !s.Strategy.IsValid() {
		return fmt.Errorf("invalid strategy: %s", s.Strategy)
	}
	if s.KBMatchConfidence != nil && (*s.KBMatchConfidence < 0 || *s.KBMatchConfidence > 100) {
		return fmt.Errorf("kb_match_confidence must be between 0 and 100 (got %d)", *s.KBMatchConfidence)
	}
	if s.DeploymentStatus != "" && !s.DeploymentStatus.IsValid() {
		return fmt.Errorf("invalid deployment status: %s", s.DeploymentStatus)
	}
	if s.VerificationResults != "" {
		var v interface{}
		if err := json.Unmarshal([]byte(s.VerificationResults), &v); err != nil {
			return fmt.Errorf("verification_results must be valid JSON: %w", err)
		}
	}
	return nil
}

// IsTerminal reports whether the session has reached a final status.
func (s *HealingSession) IsTerminal() bool {
	return s.Status == SessionSuccess || s.Status == SessionFailed
}

// DeploymentStatus is the deployment state reported by the deploy webhook
type DeploymentStatus string

const (
	DeployStatusDeploying DeploymentStatus = "deploying"
	DeployStatusSucceeded DeploymentStatus = "succeeded"
	DeployStatusFailed    DeploymentStatus = "failed"
)

// IsValid checks if the deployment status value is valid
func (d DeploymentStatus) IsValid() bool {
	switch d {
	case DeployStatusDeploying, DeployStatusSucceeded, DeployStatusFailed:
		return true
	}
	return false
}

// Attempt action names recorded in HealAttempt.ActionsTaken. The first
// action of every attempt is always ActionDiagnosisStarted.
const (
	ActionDiagnosisStarted  = "diagnosis_started"
	ActionKBFixApplied      = "kb_fix_applied"
	ActionWorkerDispatched  = "worker_job_dispatched"
	ActionWorkerCompleted   = "worker_job_completed"
	ActionVerificationRun   = "verification_run"
	ActionRollbackPerformed = "rollback_performed"
	ActionCommittedToMain   = "committed_to_main"
	ActionPROpened          = "pr_opened"
	ActionDeploymentStarted = "deployment_started"
)

// AttemptAction is one entry in the ordered action log of a heal attempt
type AttemptAction struct {
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
	Detail    string    `json:"detail,omitempty"`
}

// HealAttempt is an append-only audit row recording one tier invocation
// inside a session. Attempts are never rewritten after completion.
type HealAttempt struct {
	ID                 string          `json:"id"`
	IncidentID         string          `json:"incident_id"`
	SessionID          string          `json:"session_id"`
	AttemptNumber      int             `json:"attempt_number"`
	Strategy           Strategy        `json:"strategy"`
	ActionsTaken       []AttemptAction `json:"actions_taken"`
	Success            *bool           `json:"success,omitempty"` // nil until completed
	VerificationPassed *bool           `json:"verification_passed,omitempty"`
	Error              string          `json:"error,omitempty"`
	StartedAt          time.Time       `json:"started_at"`
	CompletedAt        *time.Time      `json:"completed_at,omitempty"`
}

// Validate checks if the heal attempt has valid field values
func (a *HealAttempt) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("id is required")
	}
	if a.IncidentID == "" {
		return fmt.Errorf("incident_id is required")
	}
	if a.SessionID == "" {
		return fmt.Errorf("session_id is required")
	}
	if a.AttemptNumber < 1 {
		return fmt.Errorf("attempt_number must be positive (got %d)", a.AttemptNumber)
	}
	if !a.Strategy.IsValid() {
		return fmt.Errorf("invalid strategy: %s", a.Strategy)
	}
	return nil
}

// KBEntry maps a stable error signature to a previously successful fix
// and its empirical success rate. One entry exists per signature.
type KBEntry struct {
	ID               string       `json:"id"`
	ErrorSignature   string       `json:"error_signature"`
	ErrorKind        IncidentKind `json:"error_kind"`
	Context          string       `json:"context"`
	SuccessfulFix    string       `json:"successful_fix"` // JSON ProposedFix document
	TimesEncountered int          `json:"times_encountered"`
	TimesFixed       int          `json:"times_fixed"`
	LastEncountered  time.Time    `json:"last_encountered"`
	Confidence       int          `json:"confidence"` // 0-100, smoothed running average
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// Validate checks if the knowledge base entry has valid field values
func (e *KBEntry) Validate() error {
	if e.ErrorSignature == "" {
		return fmt.Errorf("error_signature is required")
	}
	if !e.ErrorKind.IsValid() {
		return fmt.Errorf("invalid error kind: %s", e.ErrorKind)
	}
	if e.TimesEncountered < 1 {
		return fmt.Errorf("times_encountered must be at least 1 (got %d)", e.TimesEncountered)
	}
	if e.TimesFixed < 0 || e.TimesFixed > e.TimesEncountered {
		return fmt.Errorf("times_fixed must be between 0 and times_encountered (got %d of %d)",
			e.TimesFixed, e.TimesEncountered)
	}
	if e.Confidence < 0 || e.Confidence > 100 {
		return fmt.Errorf("confidence must be between 0 and 100 (got %d)", e.Confidence)
	}
	return nil
}

// SuccessRate returns the empirical fraction of encounters that were fixed.
func (e *KBEntry) SuccessRate() float64 {
	if e.TimesEncountered == 0 {
		return 0
	}
	return float64(e.TimesFixed) / float64(e.TimesEncountered)
}

// FixOutcome is the recorded outcome of one proposed fix
type FixOutcome string

const (
	OutcomePending    FixOutcome = "pending"
	OutcomeSuccess    FixOutcome = "success"
	OutcomeFailure    FixOutcome = "failure"
	OutcomeRolledBack FixOutcome = "rolled_back"
)

// IsValid checks if the fix outcome value is valid
func (o FixOutcome) IsValid() bool {
	switch o {
	case OutcomePending, OutcomeSuccess, OutcomeFailure, OutcomeRolledBack:
		return true
	}
	return false
}

// IsTerminal reports whether the outcome is final (not pending).
func (o FixOutcome) IsTerminal() bool {
	return o == OutcomeSuccess || o == OutcomeFailure || o == OutcomeRolledBack
}

// FixAttempt records one proposed fix and what became of it. These rows
// feed the historical-success factor of the confidence scorer.
type FixAttempt struct {
	ID                  string     `json:"id"`
	ErrorSignature      string     `json:"error_signature"`
	SessionID           string     `json:"session_id"`
	ProposedFix         string     `json:"proposed_fix"`
	ConfidenceScore     int        `json:"confidence_score"`
	Outcome             FixOutcome `json:"outcome"`
	VerificationResults string     `json:"verification_results,omitempty"`
	PRNumber            *int       `json:"pr_number,omitempty"`
	PRURL               string     `json:"pr_url,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
}

// Validate checks if the fix attempt has valid field values
func (f *FixAttempt) Validate() error {
	if f.ID == "" {
		return fmt.Errorf("id is required")
	}
	if f.ErrorSignature == "" {
		return fmt.Errorf("error_signature is required")
	}
	if f.SessionID == "" {
		return fmt.Errorf("session_id is required")
	}
	if !f.Outcome.IsValid() {
		return fmt.Errorf("invalid outcome: %s", f.Outcome)
	}
	if f.ConfidenceScore < 0 || f.ConfidenceScore > 100 {
		return fmt.Errorf("confidence_score must be between 0 and 100 (got %d)", f.ConfidenceScore)
	}
	return nil
}

// Role categorizes platform users for system-identity resolution
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// IsValid checks if the role value is valid
func (r Role) IsValid() bool {
	return r == RoleAdmin || r == RoleMember
}

// User is the minimal platform user record needed to resolve a system
// identity for attributing worker jobs.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	IsOwner   bool      `json:"is_owner"`
	CreatedAt time.Time `json:"created_at"`
}

// IncidentFilter is used to filter incident queries
type IncidentFilter struct {
	Status   *IncidentStatus
	Kind     *IncidentKind
	Severity *Severity
	Limit    int
}

// Statistics summarizes healing activity for status surfaces.
type Statistics struct {
	TotalIncidents     int `json:"total_incidents"`
	OpenIncidents      int `json:"open_incidents"`
	HealingIncidents   int `json:"healing_incidents"`
	ResolvedIncidents  int `json:"resolved_incidents"`
	FailedIncidents    int `json:"failed_incidents"`
	TotalSessions      int `json:"total_sessions"`
	ActiveSessions     int `json:"active_sessions"`
	SuccessfulSessions int `json:"successful_sessions"`
	KnowledgeBaseSize  int `json:"knowledge_base_size"`
	TotalEvents        int `json:"total_events"`
}
