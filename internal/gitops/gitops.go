// Package gitops is the write surface healing uses to land fixes: commits
// to the default branch for high-confidence repairs, and branch-plus-PR for
// everything else. The gateway interface hides whether commits go through
// a local checkout or a remote hosting API.
package gitops

import (
	"context"
	"fmt"
	"strings"

	"github.com/mendhq/mend/internal/confidence"
	"github.com/mendhq/mend/internal/types"
	"github.com/mendhq/mend/internal/verify"
)

// CommitResult describes a commit landed on the default branch.
type CommitResult struct {
	Hash string `json:"hash"`
	URL  string `json:"url,omitempty"` // browsable commit URL when the remote is recognized
}

// PRResult describes an opened or updated pull request.
type PRResult struct {
	Number int    `json:"number"`
	URL    string `json:"url"`
}

// BranchFile is one file to land on a healing branch. Content is the full
// on-disk content captured at push time, so gateways backed by a hosting
// API can upload it without access to the healer's filesystem.
type BranchFile struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// CommitGateway lands healing output in version control. Implementations
// may drive a local checkout or a remote API; callers do not distinguish.
type CommitGateway interface {
	// CommitToMain stages the given paths and commits them to the default
	// branch. A clean tree ("nothing to commit") is a success: the fix is
	// already landed, and the returned hash is the current HEAD.
	CommitToMain(ctx context.Context, files []string, message string) (*CommitResult, error)

	// CreateBranchFromDefault creates (or resets) a branch off the default
	// branch and makes it current.
	CreateBranchFromDefault(ctx context.Context, branch string) error

	// PushBranch writes the given files on the branch, commits them with
	// message, and pushes the branch to the remote.
	PushBranch(ctx context.Context, branch string, files []BranchFile, message string) error

	// OpenOrUpdatePR opens a pull request for the branch, or updates the
	// title and body of an existing open one.
	OpenOrUpdatePR(ctx context.Context, branch, title, body string) (*PRResult, error)
}

// BranchName returns the healing branch for an incident, derived from a
// short prefix of the incident ID.
func BranchName(incidentID string) string {
	short := incidentID
	if len(short) > 8 {
		short = short[:8]
	}
	return "auto-heal-" + short
}

// CommitMessage returns the commit message for a fix landed directly on
// the default branch.
func CommitMessage(kind types.IncidentKind, title string) string {
	return fmt.Sprintf("[AUTO-HEAL] Fix %s: %s", kind, title)
}

// PushMessage returns the commit message used on healing branches.
func PushMessage(title string) string {
	return fmt.Sprintf("Auto-heal: %s", title)
}

// PRBodyInput carries everything the PR description renders. Nil fields
// are simply omitted from the body.
type PRBodyInput struct {
	Incident     *types.Incident
	Fix          *types.ProposedFix
	Assessment   *confidence.Assessment
	Verification *verify.Result
}

// BuildPRBody renders the pull request description: the proposed fix, the
// confidence score with its factor breakdown, the verification summary,
// and a machine-generated disclaimer.
func BuildPRBody(in PRBodyInput) string {
	var b strings.Builder

	if in.Incident != nil || in.Fix != nil {
		b.WriteString("## Proposed Fix\n\n")
	}
	if in.Incident != nil {
		b.WriteString(fmt.Sprintf("Automated fix for incident `%s`: %s\n\n", in.Incident.ID, in.Incident.Title))
	}
	if in.Fix != nil {
		if in.Fix.Description != "" {
			b.WriteString(in.Fix.Description + "\n\n")
		}
		if len(in.Fix.Files) > 0 {
			b.WriteString("Files changed:\n\n")
			for _, f := range in.Fix.Files {
				b.WriteString(fmt.Sprintf("- `%s`\n", f.Path))
			}
			b.WriteString("\n")
		}
	}

	if in.Assessment != nil {
		b.WriteString(fmt.Sprintf("## Confidence: %d/100\n\n", in.Assessment.Score))
		f := in.Assessment.Factors
		b.WriteString(fmt.Sprintf("- Knowledge base match: %d/40\n", f.KBMatch))
		b.WriteString(fmt.Sprintf("- Test coverage: %d/20\n", f.TestCoverage))
		b.WriteString(fmt.Sprintf("- Complexity: %d/20\n", f.Complexity))
		b.WriteString(fmt.Sprintf("- Fix history: %d/20\n", f.History))
		b.WriteString(fmt.Sprintf("- Verification bonus: %d/5\n\n", f.VerificationBonus))
	}

	if in.Verification != nil {
		b.WriteString("## Verification\n\n")
		b.WriteString(in.Verification.Summary() + "\n")
		if in.Verification.ErrorDetails != "" {
			b.WriteString("\n```\n" + strings.TrimRight(in.Verification.ErrorDetails, "\n") + "\n```\n")
		}
		b.WriteString("\n")
	}

	b.WriteString("---\n")
	b.WriteString("This pull request was generated automatically by the mend healing service. Review carefully before merging.\n")
	return b.String()
}
