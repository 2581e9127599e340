package types

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ProposedFix is the wire format for a concrete repair: a human-readable
// description plus the full content of every file the fix touches. It is
// stored as a JSON document in HealingSession.ProposedFix,
// FixAttempt.ProposedFix, and KBEntry.SuccessfulFix.
type ProposedFix struct {
	Description string    `json:"description"`
	Files       []FixFile `json:"files"`
}

// FixFile is one file touched by a proposed fix. Content is the complete
// post-fix file content, not a diff.
type FixFile struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// fixFileWire distinguishes a missing content field from an empty one so
// that fixes with undefined content are rejected before any write.
type fixFileWire struct {
	Path    string  `json:"path"`
	Content *string `json:"content"`
}

type proposedFixWire struct {
	Description string        `json:"description"`
	Files       []fixFileWire `json:"files"`
}

// ParseProposedFix decodes and validates a proposed-fix document.
// Documents with no files, empty paths, or undefined content are
// rejected; nothing may be applied partially.
func ParseProposedFix(doc string) (*ProposedFix, error) {
	if strings.TrimSpace(doc) == "" {
		return nil, fmt.Errorf("proposed fix is empty")
	}

	var wire proposedFixWire
	if err := json.Unmarshal([]byte(doc), &wire); err != nil {
		return nil, fmt.Errorf("parsing proposed fix: %w", err)
	}
	if len(wire.Files) == 0 {
		return nil, fmt.Errorf("proposed fix contains no files")
	}

	fix := &ProposedFix{Description: wire.Description}
	for idx, f := range wire.Files {
		if f.Path == "" {
			return nil, fmt.Errorf("proposed fix file %d has no path", idx)
		}
		if f.Content == nil {
			return nil, fmt.Errorf("proposed fix file %q has undefined content", f.Path)
		}
		fix.Files = append(fix.Files, FixFile{Path: f.Path, Content: *f.Content})
	}
	return fix, nil
}

// Encode serializes the fix back to its JSON document form.
func (f *ProposedFix) Encode() (string, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return "", fmt.Errorf("encoding proposed fix: %w", err)
	}
	return string(data), nil
}

// Paths returns the file paths the fix touches, in document order.
func (f *ProposedFix) Paths() []string {
	paths := make([]string, 0, len(f.Files))
	for _, file := range f.Files {
		paths = append(paths, file.Path)
	}
	return paths
}
