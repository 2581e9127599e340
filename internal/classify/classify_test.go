package classify

import (
	"strings"
	"testing"

	"github.com/mendhq/mend/internal/types"
)

func TestClassifyAgentFailureKind(t *testing.T) {
	got := Classify(&types.Incident{
		Kind:        types.KindAgentFailure,
		Severity:    types.SeverityHigh,
		Title:       "worker stopped making progress",
		Description: "repair job stalled after 40 minutes",
		Source:      "monitor",
	})

	if got.Category != CategoryAgentFailure {
		t.Errorf("Category = %q, want %q", got.Category, CategoryAgentFailure)
	}
	if !got.IsAgentFailure {
		t.Error("IsAgentFailure = false, want true")
	}
	if got.SuggestedStrategy != types.StrategyEscalated {
		t.Errorf("SuggestedStrategy = %q, want %q", got.SuggestedStrategy, types.StrategyEscalated)
	}
	if !containsEvidence(got.Evidence, "incident kind is agent_failure") {
		t.Errorf("Evidence = %v, want kind evidence", got.Evidence)
	}
}

func TestClassifyPlatformDefaults(t *testing.T) {
	tests := []struct {
		kind types.IncidentKind
		want types.Strategy
	}{
		{types.KindBuildFailure, types.StrategyKnowledgeBase},
		{types.KindRuntimeError, types.StrategyKnowledgeBase},
		{types.KindHighCPU, types.StrategyWorkerAgent},
		{types.KindHighMemory, types.StrategyWorkerAgent},
		{types.KindSafetyIssue, types.StrategyWorkerAgent},
		{types.KindOther, types.StrategyWorkerAgent},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			got := Classify(&types.Incident{
				Kind:        tt.kind,
				Severity:    types.SeverityMedium,
				Title:       "something broke",
				Description: "a plain platform problem",
				Source:      "monitor",
			})
			if got.Category != CategoryPlatformFailure {
				t.Errorf("Category = %q, want %q", got.Category, CategoryPlatformFailure)
			}
			if got.IsAgentFailure {
				t.Error("IsAgentFailure = true, want false")
			}
			if got.SuggestedStrategy != tt.want {
				t.Errorf("SuggestedStrategy = %q, want %q", got.SuggestedStrategy, tt.want)
			}
			if !containsEvidence(got.Evidence, "no agent involvement") {
				t.Errorf("Evidence = %v, want no-involvement note", got.Evidence)
			}
		})
	}
}

func TestClassifySourceNamesAgent(t *testing.T) {
	got := Classify(&types.Incident{
		Kind:        types.KindRuntimeError,
		Severity:    types.SeverityHigh,
		Title:       "panic during repair",
		Description: "nil pointer dereference",
		Source:      "worker-pool-3",
	})

	if got.Category != CategoryAgentFailure {
		t.Errorf("Category = %q, want %q", got.Category, CategoryAgentFailure)
	}
	if !containsEvidence(got.Evidence, `source "worker-pool-3"`) {
		t.Errorf("Evidence = %v, want source evidence", got.Evidence)
	}
}

func TestClassifyTextMarkers(t *testing.T) {
	got := Classify(&types.Incident{
		Kind:        types.KindRuntimeError,
		Severity:    types.SeverityMedium,
		Title:       "repair stalled",
		Description: "the Worker Agent crashed during tool use",
		Source:      "monitor",
	})

	if got.Category != CategoryAgentFailure {
		t.Fatalf("Category = %q, want %q", got.Category, CategoryAgentFailure)
	}
	if !containsEvidence(got.Evidence, `mentions "worker agent"`) {
		t.Errorf("Evidence = %v, want worker agent marker", got.Evidence)
	}
	if !containsEvidence(got.Evidence, `mentions "tool use"`) {
		t.Errorf("Evidence = %v, want tool use marker", got.Evidence)
	}
}

func TestClassifyLogsMarker(t *testing.T) {
	got := Classify(&types.Incident{
		Kind:        types.KindOther,
		Severity:    types.SeverityLow,
		Title:       "upstream flake",
		Description: "request failed",
		Logs:        "2026-08-25T10:00:00Z anthropic api returned 529 overloaded",
		Source:      "monitor",
	})

	if got.Category != CategoryAgentFailure {
		t.Errorf("Category = %q, want %q", got.Category, CategoryAgentFailure)
	}
	if got.SuggestedStrategy != types.StrategyEscalated {
		t.Errorf("SuggestedStrategy = %q, want %q", got.SuggestedStrategy, types.StrategyEscalated)
	}
}

func TestSummary(t *testing.T) {
	verdict := Classify(&types.Incident{
		Kind:        types.KindBuildFailure,
		Severity:    types.SeverityHigh,
		Title:       "tsc broken on main",
		Description: "type error in src/billing.ts",
		Source:      "ci",
	})

	summary := verdict.Summary()
	if !strings.Contains(summary, "platform_failure") {
		t.Errorf("Summary() = %q, want category in it", summary)
	}
	if !strings.Contains(summary, "knowledge_base") {
		t.Errorf("Summary() = %q, want strategy in it", summary)
	}
}

func containsEvidence(evidence []string, substr string) bool {
	for _, e := range evidence {
		if strings.Contains(e, substr) {
			return true
		}
	}
	return false
}
