package worker

import (
	"strings"
	"testing"

	"github.com/mendhq/mend/internal/types"
)

func TestDiagnosticTemplates(t *testing.T) {
	tests := []struct {
		name     string
		incident types.Incident
		want     []string
	}{
		{
			name: "high cpu includes the metric",
			incident: types.Incident{
				Kind:        types.KindHighCPU,
				Severity:    types.SeverityHigh,
				Description: "worker pool pegged for 10 minutes.",
				Metrics:     map[string]float64{"cpu_percent": 97.5},
			},
			want: []string{"severity high", "CPU usage at 97.5%", "worker pool pegged for 10 minutes."},
		},
		{
			name: "high memory includes the metric",
			incident: types.Incident{
				Kind:        types.KindHighMemory,
				Severity:    types.SeverityCritical,
				Description: "heap keeps growing.",
				Metrics:     map[string]float64{"memory_percent": 91.2},
			},
			want: []string{"severity critical", "memory usage at 91.2%", "heap keeps growing."},
		},
		{
			name: "missing metric reads unknown",
			incident: types.Incident{
				Kind:        types.KindHighCPU,
				Severity:    types.SeverityMedium,
				Description: "load spike.",
			},
			want: []string{"CPU usage at unknown"},
		},
		{
			name: "build failure",
			incident: types.Incident{
				Kind:        types.KindBuildFailure,
				Severity:    types.SeverityHigh,
				Description: "tsc exits 2 on main.",
			},
			want: []string{"severity high", "the build is broken", "tsc exits 2 on main."},
		},
		{
			name: "runtime error",
			incident: types.Incident{
				Kind:        types.KindRuntimeError,
				Severity:    types.SeverityHigh,
				Description: "TypeError in request handler.",
			},
			want: []string{"runtime error in production", "TypeError in request handler."},
		},
		{
			name: "safety issue",
			incident: types.Incident{
				Kind:        types.KindSafetyIssue,
				Severity:    types.SeverityCritical,
				Description: "path traversal attempt blocked.",
			},
			want: []string{"safety check flagged a problem"},
		},
		{
			name: "agent failure",
			incident: types.Incident{
				Kind:        types.KindAgentFailure,
				Severity:    types.SeverityMedium,
				Description: "worker run aborted mid-edit.",
			},
			want: []string{"an agent run failed"},
		},
		{
			name: "unmapped kind falls back to the generic request",
			incident: types.Incident{
				Kind:        types.KindOther,
				Severity:    types.SeverityLow,
				Description: "something odd in the nightly job.",
			},
			want: []string{"diagnose and fix: something odd in the nightly job."},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Diagnostic(&tt.incident)
			for _, frag := range tt.want {
				if !strings.Contains(got, frag) {
					t.Errorf("Diagnostic() = %q, missing %q", got, frag)
				}
			}
		})
	}
}
