// Package classify implements the rule-based failure classifier. It
// sorts incidents into platform failures (the monitored system broke)
// and agent failures (the healing machinery itself misbehaved) and
// suggests a repair strategy. The verdict is advisory: tier selection
// still follows knowledge base confidence, but the classification is
// recorded in diagnosis notes and shown on the incident detail view.
package classify

import (
	"fmt"
	"strings"

	"github.com/mendhq/mend/internal/types"
)

// Category labels what broke: the platform under management or the
// healing machinery itself.
type Category string

const (
	CategoryPlatformFailure Category = "platform_failure"
	CategoryAgentFailure    Category = "agent_failure"
)

// Classification is the classifier's verdict on an incident.
type Classification struct {
	Category          Category       `json:"category"`
	IsAgentFailure    bool           `json:"is_agent_failure"`
	Evidence          []string       `json:"evidence"`
	SuggestedStrategy types.Strategy `json:"suggested_strategy"`
}

// sourceMarkers flag detector sources that belong to the healing
// machinery rather than the platform.
var sourceMarkers = []string{"agent", "worker", "healer"}

// agentMarkers are phrases in incident text that implicate the worker
// agent pipeline itself.
var agentMarkers = []string{
	"worker agent",
	"agent job",
	"healing session",
	"tool use",
	"model overloaded",
	"prompt too long",
	"max tokens",
	"anthropic api",
}

// Classify inspects an incident's kind, source, and text and returns a
// deterministic verdict. Any agent evidence at all makes the incident
// an agent failure; the default is a platform failure.
func Classify(inc *types.Incident) *Classification {
	var evidence []string
	agent := false

	if inc.Kind == types.KindAgentFailure {
		agent = true
		evidence = append(evidence, "incident kind is agent_failure")
	}

	if src := strings.ToLower(inc.Source); src != "" {
		for _, marker := range sourceMarkers {
			if strings.Contains(src, marker) {
				agent = true
				evidence = append(evidence, fmt.Sprintf("source %q names the healing machinery", inc.Source))
				break
			}
		}
	}

	text := strings.ToLower(inc.Title + "\n" + inc.Description + "\n" + inc.Logs + "\n" + inc.StackTrace)
	for _, marker := range agentMarkers {
		if strings.Contains(text, marker) {
			agent = true
			evidence = append(evidence, fmt.Sprintf("incident text mentions %q", marker))
		}
	}

	verdict := &Classification{IsAgentFailure: agent, Evidence: evidence}
	if agent {
		verdict.Category = CategoryAgentFailure
		verdict.SuggestedStrategy = types.StrategyEscalated
		return verdict
	}

	verdict.Category = CategoryPlatformFailure
	verdict.Evidence = append(verdict.Evidence,
		fmt.Sprintf("no agent involvement detected for kind %s", inc.Kind))

	// Code-level breakages tend to recur with the same signature, so the
	// knowledge base is the natural first stop. Resource and safety
	// incidents need fresh diagnosis.
	switch inc.Kind {
	case types.KindBuildFailure, types.KindRuntimeError:
		verdict.SuggestedStrategy = types.StrategyKnowledgeBase
	default:
		verdict.SuggestedStrategy = types.StrategyWorkerAgent
	}
	return verdict
}

// Summary renders the verdict as a single line for diagnosis notes.
func (c *Classification) Summary() string {
	return fmt.Sprintf("classified as %s (suggested strategy: %s; %d evidence items)",
		c.Category, c.SuggestedStrategy, len(c.Evidence))
}
