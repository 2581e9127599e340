package types

import (
	"testing"
	"time"
)

// TestIncidentValidate verifies field validation on incidents
func TestIncidentValidate(t *testing.T) {
	now := time.Now()
	valid := Incident{
		ID:          "inc-1",
		Kind:        KindRuntimeError,
		Severity:    SeverityHigh,
		Title:       "Unhandled exception in scheduler",
		Description: "TypeError in the nightly scheduler run",
		Source:      "error-monitor",
		Status:      IncidentOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid incident failed validation: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Incident)
	}{
		{"missing id", func(i *Incident) { i.ID = "" }},
		{"missing title", func(i *Incident) { i.Title = "" }},
		{"invalid kind", func(i *Incident) { i.Kind = "explosion" }},
		{"invalid severity", func(i *Incident) { i.Severity = "apocalyptic" }},
		{"invalid status", func(i *Incident) { i.Status = "wedged" }},
		{"negative attempt count", func(i *Incident) { i.AttemptCount = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inc := valid
			tt.mutate(&inc)
			if err := inc.Validate(); err == nil {
				t.Errorf("Validate() = nil, want error for %s", tt.name)
			}
		})
	}
}

// TestIncidentKindIsValid tests all incident kinds pass validation
func TestIncidentKindIsValid(t *testing.T) {
	tests := []struct {
		name     string
		kind     IncidentKind
		expected bool
	}{
		{"high_cpu is valid", KindHighCPU, true},
		{"high_memory is valid", KindHighMemory, true},
		{"safety_issue is valid", KindSafetyIssue, true},
		{"build_failure is valid", KindBuildFailure, true},
		{"runtime_error is valid", KindRuntimeError, true},
		{"agent_failure is valid", KindAgentFailure, true},
		{"other is valid", KindOther, true},
		{"invalid kind", IncidentKind("disk_full"), false},
		{"empty string", IncidentKind(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.kind.IsValid()
			if result != tt.expected {
				t.Errorf("IsValid() = %v, want %v for kind %q", result, tt.expected, tt.kind)
			}
		})
	}
}

// TestIncidentStatusTransitions verifies the incident status machine
func TestIncidentStatusTransitions(t *testing.T) {
	tests := []struct {
		name     string
		from     IncidentStatus
		to       IncidentStatus
		expected bool
	}{
		{"open to healing", IncidentOpen, IncidentHealing, true},
		{"open to failed (attempt cap)", IncidentOpen, IncidentFailed, true},
		{"open to resolved", IncidentOpen, IncidentResolved, false},
		{"healing to resolved", IncidentHealing, IncidentResolved, true},
		{"healing to failed", IncidentHealing, IncidentFailed, true},
		{"healing to open (retryable)", IncidentHealing, IncidentOpen, true},
		{"failed to healing (retry)", IncidentFailed, IncidentHealing, true},
		{"failed to resolved", IncidentFailed, IncidentResolved, false},
		{"resolved is terminal", IncidentResolved, IncidentHealing, false},
		{"resolved to failed", IncidentResolved, IncidentFailed, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.from.CanTransitionTo(tt.to)
			if result != tt.expected {
				t.Errorf("CanTransitionTo(%s -> %s) = %v, want %v", tt.from, tt.to, result, tt.expected)
			}
		})
	}
}

// TestSessionPhaseTransitions verifies the healing session state machine,
// including the any-state-to-failed rule and terminal states
func TestSessionPhaseTransitions(t *testing.T) {
	tests := []struct {
		name     string
		from     SessionPhase
		to       SessionPhase
		expected bool
	}{
		{"diagnosis to repair", PhaseDiagnosis, PhaseRepair, true},
		{"diagnosis to verify (skip)", PhaseDiagnosis, PhaseVerify, false},
		{"repair to verify", PhaseRepair, PhaseVerify, true},
		{"repair to complete (skip)", PhaseRepair, PhaseComplete, false},
		{"verify to complete", PhaseVerify, PhaseComplete, true},
		{"verify to deploy", PhaseVerify, PhaseDeploy, true},
		{"deploy to complete", PhaseDeploy, PhaseComplete, true},
		{"deploy to verify (backwards)", PhaseDeploy, PhaseVerify, false},
		{"diagnosis to failed", PhaseDiagnosis, PhaseFailed, true},
		{"repair to failed", PhaseRepair, PhaseFailed, true},
		{"verify to failed", PhaseVerify, PhaseFailed, true},
		{"deploy to failed", PhaseDeploy, PhaseFailed, true},
		{"complete is terminal", PhaseComplete, PhaseFailed, false},
		{"failed is terminal", PhaseFailed, PhaseDiagnosis, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.from.CanTransitionTo(tt.to)
			if result != tt.expected {
				t.Errorf("CanTransitionTo(%s -> %s) = %v, want %v", tt.from, tt.to, result, tt.expected)
			}
		})
	}
}

// TestSessionPhaseTerminal verifies terminal phases have no outgoing transitions
func TestSessionPhaseTerminal(t *testing.T) {
	for _, phase := range []SessionPhase{PhaseComplete, PhaseFailed} {
		t.Run(string(phase), func(t *testing.T) {
			if !phase.IsTerminal() {
				t.Errorf("IsTerminal() = false, want true for %s", phase)
			}
			if n := len(phase.ValidTransitions()); n != 0 {
				t.Errorf("ValidTransitions() has %d entries, want 0 for terminal phase %s", n, phase)
			}
		})
	}
	for _, phase := range []SessionPhase{PhaseDiagnosis, PhaseRepair, PhaseVerify, PhaseDeploy} {
		if phase.IsTerminal() {
			t.Errorf("IsTerminal() = true, want false for %s", phase)
		}
	}
}

// TestHealingSessionValidate verifies session field validation
func TestHealingSessionValidate(t *testing.T) {
	now := time.Now()
	conf := 92
	valid := HealingSession{
		ID:                "sess-1",
		IncidentID:        "inc-1",
		Phase:             PhaseDiagnosis,
		Status:            SessionActive,
		Strategy:          StrategyKnowledgeBase,
		KBMatchConfidence: &conf,
		StartedAt:         now,
		UpdatedAt:         now,
	}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid session failed validation: %v", err)
	}

	badConf := 101
	tests := []struct {
		name   string
		mutate func(*HealingSession)
	}{
		{"missing id", func(s *HealingSession) { s.ID = "" }},
		{"missing incident id", func(s *HealingSession) { s.IncidentID = "" }},
		{"invalid phase", func(s *HealingSession) { s.Phase = "meditating" }},
		{"invalid status", func(s *HealingSession) { s.Status = "paused" }},
		{"invalid strategy", func(s *HealingSession) { s.Strategy = "guesswork" }},
		{"confidence out of range", func(s *HealingSession) { s.KBMatchConfidence = &badConf }},
		{"invalid deployment status", func(s *HealingSession) { s.DeploymentStatus = "stalled" }},
		{"verification results not JSON", func(s *HealingSession) { s.VerificationResults = "{not json" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := valid
			tt.mutate(&sess)
			if err := sess.Validate(); err == nil {
				t.Errorf("Validate() = nil, want error for %s", tt.name)
			}
		})
	}
}

// TestKBEntryValidate verifies the counter invariants on KB entries
func TestKBEntryValidate(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name        string
		encountered int
		fixed       int
		confidence  int
		wantErr     bool
	}{
		{"fresh entry", 1, 1, 85, false},
		{"partial success", 10, 7, 70, false},
		{"never fixed", 5, 0, 20, false},
		{"fixed exceeds encountered", 3, 4, 50, true},
		{"zero encounters", 0, 0, 50, true},
		{"negative fixed", 2, -1, 50, true},
		{"confidence over 100", 2, 1, 101, true},
		{"negative confidence", 2, 1, -5, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := KBEntry{
				ID:               "kb-1",
				ErrorSignature:   "abc123",
				ErrorKind:        KindRuntimeError,
				TimesEncountered: tt.encountered,
				TimesFixed:       tt.fixed,
				Confidence:       tt.confidence,
				LastEncountered:  now,
			}
			err := entry.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// TestKBEntrySuccessRate verifies success rate computation
func TestKBEntrySuccessRate(t *testing.T) {
	tests := []struct {
		name        string
		encountered int
		fixed       int
		want        float64
	}{
		{"all fixed", 10, 10, 1.0},
		{"partial", 10, 9, 0.9},
		{"none fixed", 4, 0, 0.0},
		{"zero encounters", 0, 0, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := KBEntry{TimesEncountered: tt.encountered, TimesFixed: tt.fixed}
			if got := entry.SuccessRate(); got != tt.want {
				t.Errorf("SuccessRate() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestFixOutcomeIsTerminal verifies pending is the only non-terminal outcome
func TestFixOutcomeIsTerminal(t *testing.T) {
	tests := []struct {
		outcome  FixOutcome
		terminal bool
	}{
		{OutcomePending, false},
		{OutcomeSuccess, true},
		{OutcomeFailure, true},
		{OutcomeRolledBack, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.outcome), func(t *testing.T) {
			if got := tt.outcome.IsTerminal(); got != tt.terminal {
				t.Errorf("IsTerminal() = %v, want %v", got, tt.terminal)
			}
		})
	}
}

// TestHealAttemptValidate verifies heal attempt validation
func TestHealAttemptValidate(t *testing.T) {
	attempt := HealAttempt{
		ID:            "att-1",
		IncidentID:    "inc-1",
		SessionID:     "sess-1",
		AttemptNumber: 1,
		Strategy:      StrategyWorkerAgent,
		ActionsTaken:  []AttemptAction{{Action: ActionDiagnosisStarted, Timestamp: time.Now()}},
		StartedAt:     time.Now(),
	}
	if err := attempt.Validate(); err != nil {
		t.Errorf("valid attempt failed validation: %v", err)
	}

	bad := attempt
	bad.AttemptNumber = 0
	if err := bad.Validate(); err == nil {
		t.Error("Validate() = nil, want error for zero attempt number")
	}
}
