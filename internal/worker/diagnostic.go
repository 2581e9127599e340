package worker

import (
	"fmt"
	"strconv"

	"github.com/mendhq/mend/internal/types"
)

// Diagnostic renders the repair instruction for an incident. Each kind
// has a fixed sentence carrying severity, the key metric when the
// detector reported one, and the description. Kinds without a template
// fall back to a generic request.
func Diagnostic(inc *types.Incident) string {
	switch inc.Kind {
	case types.KindHighCPU:
		return fmt.Sprintf("severity %s: CPU usage at %s exceeds safe limits. %s",
			inc.Severity, metricText(inc, "cpu_percent", "%"), inc.Description)
	case types.KindHighMemory:
		return fmt.Sprintf("severity %s: memory usage at %s is above threshold. %s",
			inc.Severity, metricText(inc, "memory_percent", "%"), inc.Description)
	case types.KindSafetyIssue:
		return fmt.Sprintf("severity %s: a safety check flagged a problem. %s",
			inc.Severity, inc.Description)
	case types.KindBuildFailure:
		return fmt.Sprintf("severity %s: the build is broken. %s",
			inc.Severity, inc.Description)
	case types.KindRuntimeError:
		return fmt.Sprintf("severity %s: runtime error in production. %s",
			inc.Severity, inc.Description)
	case types.KindAgentFailure:
		return fmt.Sprintf("severity %s: an agent run failed. %s",
			inc.Severity, inc.Description)
	default:
		return fmt.Sprintf("diagnose and fix: %s", inc.Description)
	}
}

// metricText renders a named metric like "97.5%", or "unknown" when the
// detector did not report it.
func metricText(inc *types.Incident, key, unit string) string {
	if v, ok := inc.Metrics[key]; ok {
		return strconv.FormatFloat(v, 'f', 1, 64) + unit
	}
	return "unknown"
}
