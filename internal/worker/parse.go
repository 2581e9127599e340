package worker

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/mendhq/mend/internal/types"
)

// Models are told to answer with raw JSON but still fence or narrate it
// often enough that decoding has to tolerate both.
var (
	codeFenceRegex     = regexp.MustCompile("(?s)`{3}(?:json)?\\s*\\n?([\\s\\S]*?)\\n?`{3}")
	trailingCommaRegex = regexp.MustCompile(`,(\s*[}\]])`)
	objectRegex        = regexp.MustCompile(`(?s)\{[\s\S]*\}`)
)

// decodeRepair parses a worker response into a proposed fix plus the
// agent's diagnosis notes. Notes come back even when the fix is
// unusable; the session records what the agent concluded either way.
func decodeRepair(text string) (*types.ProposedFix, string, error) {
	doc := cleanModelJSON(text)
	if doc == "" {
		return nil, "", fmt.Errorf("empty worker response")
	}

	var wire struct {
		Diagnosis string          `json:"diagnosis"`
		Fix       json.RawMessage `json:"fix"`
	}
	if err := json.Unmarshal([]byte(doc), &wire); err != nil {
		return nil, "", fmt.Errorf("parsing worker response: %w", err)
	}
	if len(wire.Fix) == 0 || string(wire.Fix) == "null" {
		return nil, wire.Diagnosis, fmt.Errorf("worker response has no fix")
	}

	fix, err := types.ParseProposedFix(string(wire.Fix))
	if err != nil {
		return nil, wire.Diagnosis, err
	}
	return fix, wire.Diagnosis, nil
}

// cleanModelJSON extracts the JSON object from a model response that may
// wrap it in markdown fences or surrounding prose, and strips trailing
// commas.
func cleanModelJSON(text string) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ""
	}

	if m := codeFenceRegex.FindStringSubmatch(trimmed); m != nil {
		trimmed = strings.TrimSpace(m[1])
	}

	if !strings.HasPrefix(trimmed, "{") {
		if obj := objectRegex.FindString(trimmed); obj != "" {
			trimmed = obj
		}
	}

	return trailingCommaRegex.ReplaceAllString(trimmed, "$1")
}
