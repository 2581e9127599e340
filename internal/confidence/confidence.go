// Package confidence scores proposed fixes before they are committed.
// The score decides the exit route for a healing session: fixes at or
// above the auto-commit threshold land directly on the default branch,
// everything below goes out for review as a pull request.
//
// Scoring is deliberately model-free. Every factor is derived from
// recorded history and the workspace itself, so the same inputs always
// produce the same score.
package confidence

import (
	"context"
	"fmt"
	"math"
	"path"
	"strings"

	"github.com/mendhq/mend/internal/signature"
	"github.com/mendhq/mend/internal/types"
)

const (
	// historyWindow is how many recent fix attempts feed the historical
	// success factor.
	historyWindow = 10

	// defaultAutoCommitThreshold is used when the scorer is constructed
	// with an out-of-range threshold. The authoritative default lives in
	// config.DefaultSafetyConfig.
	defaultAutoCommitThreshold = 95

	kbBaseline      = 10
	historyBaseline = 10
)

// Recommendation is the action the scorer advises for a proposed fix.
type Recommendation string

const (
	// RecommendAutoCommit means the fix is trusted enough to land on the
	// default branch without review.
	RecommendAutoCommit Recommendation = "auto_commit"

	// RecommendCreatePR means the fix should go out as a pull request.
	RecommendCreatePR Recommendation = "create_pr"
)

// Factors breaks an assessment score into its weighted components.
// Each component is rounded independently; the final score is their
// sum, capped at 100.
type Factors struct {
	KBMatch           int `json:"kb_match"`           // 0-40: prior success rate for this signature
	TestCoverage      int `json:"test_coverage"`      // 0-20: modified files with test siblings
	Complexity        int `json:"complexity"`         // 0-20: inverse of average file complexity
	History           int `json:"history"`            // 0-20: recent fix success rate, any signature
	VerificationBonus int `json:"verification_bonus"` // 5 when verification passed, else 0
}

// Assessment is the scorer's verdict on a proposed fix.
type Assessment struct {
	Score          int            `json:"score"` // 0-100
	Factors        Factors        `json:"factors"`
	Recommendation Recommendation `json:"recommendation"`
	Reasoning      []string       `json:"reasoning"`
}

// Input carries everything known about a proposed fix at scoring time.
// VerificationPassed is nil when verification has not run yet.
type Input struct {
	ErrorKind          types.IncidentKind
	ErrorMessage       string
	StackTrace         string
	FilesModified      []string
	ProposedFix        string
	VerificationPassed *bool
}

// Store is the slice of storage the scorer reads.
type Store interface {
	GetKBEntryBySignature(ctx context.Context, errorSignature string) (*types.KBEntry, error)
	ListRecentFixAttempts(ctx context.Context, limit int) ([]*types.FixAttempt, error)
}

// Workspace is the slice of the monitored workspace the scorer inspects.
type Workspace interface {
	ListFiles(dir string) ([]string, error)
	ReadFile(path string) ([]byte, error)
}

// Scorer computes confidence assessments for proposed fixes.
type Scorer struct {
	store     Store
	workspace Workspace
	threshold int
}

// NewScorer creates a scorer. autoCommitThreshold is the minimum score
// for an auto_commit recommendation; out-of-range values fall back to
// the default of 95.
func NewScorer(store Store, workspace Workspace, autoCommitThreshold int) *Scorer {
	if autoCommitThreshold < 1 || autoCommitThreshold > 100 {
		autoCommitThreshold = defaultAutoCommitThreshold
	}
	return &Scorer{store: store, workspace: workspace, threshold: autoCommitThreshold}
}

// Threshold returns the auto-commit threshold the scorer decides with.
func (s *Scorer) Threshold() int {
	return s.threshold
}

// Score assesses a proposed fix. The score is the sum of four weighted
// factors plus a verification bonus, capped at 100:
//
//	knowledge base match   0-40
//	test coverage          0-20
//	code complexity        0-20
//	historical success     0-20
//	verification bonus     +5
func (s *Scorer) Score(ctx context.Context, in Input) (*Assessment, error) {
	assessment := &Assessment{}

	kbPoints, kbNote, err := s.kbFactor(ctx, in)
	if err != nil {
		return nil, err
	}
	assessment.Factors.KBMatch = kbPoints
	assessment.Reasoning = append(assessment.Reasoning, kbNote)

	coverPoints, coverNote := s.coverageFactor(in.FilesModified)
	assessment.Factors.TestCoverage = coverPoints
	assessment.Reasoning = append(assessment.Reasoning, coverNote)

	complexPoints, complexNote := s.complexityFactor(in.FilesModified)
	assessment.Factors.Complexity = complexPoints
	assessment.Reasoning = append(assessment.Reasoning, complexNote)

	histPoints, histNote, err := s.historyFactor(ctx)
	if err != nil {
		return nil, err
	}
	assessment.Factors.History = histPoints
	assessment.Reasoning = append(assessment.Reasoning, histNote)

	switch {
	case in.VerificationPassed == nil:
		assessment.Reasoning = append(assessment.Reasoning, "verification: not run")
	case *in.VerificationPassed:
		assessment.Factors.VerificationBonus = 5
		assessment.Reasoning = append(assessment.Reasoning, "verification: passed (+5)")
	default:
		assessment.Reasoning = append(assessment.Reasoning, "verification: failed")
	}

	score := assessment.Factors.KBMatch + assessment.Factors.TestCoverage +
		assessment.Factors.Complexity + assessment.Factors.History +
		assessment.Factors.VerificationBonus
	if score > 100 {
		score = 100
	}
	assessment.Score = score

	if score >= s.threshold {
		assessment.Recommendation = RecommendAutoCommit
	} else {
		assessment.Recommendation = RecommendCreatePR
	}
	return assessment, nil
}

// kbFactor scores 0-40 from the knowledge base entry for the error's
// signature. With no entry the factor is a neutral baseline of 10.
func (s *Scorer) kbFactor(ctx context.Context, in Input) (int, string, error) {
	sig := signature.Compute(in.ErrorKind, in.ErrorMessage, in.StackTrace)
	entry, err := s.store.GetKBEntryBySignature(ctx, sig)
	if err != nil {
		return 0, "", fmt.Errorf("confidence: knowledge base lookup: %w", err)
	}
	if entry == nil {
		return kbBaseline, "knowledge base: no entry for this signature (baseline)", nil
	}
	points := roundToInt(40 * entry.SuccessRate())
	note := fmt.Sprintf("knowledge base: %d/%d prior fixes succeeded for this signature",
		entry.TimesFixed, entry.TimesEncountered)
	return points, note, nil
}

// coverageFactor scores 0-20 from the fraction of modified files that
// have a conventional test sibling on disk.
func (s *Scorer) coverageFactor(files []string) (int, string) {
	if len(files) == 0 {
		return 0, "test coverage: no modified files"
	}
	covered := 0
	for _, file := range files {
		if s.hasTestSibling(file) {
			covered++
		}
	}
	points := roundToInt(20 * float64(covered) / float64(len(files)))
	note := fmt.Sprintf("test coverage: %d of %d modified files have test siblings",
		covered, len(files))
	return points, note
}

// hasTestSibling reports whether a test file exists for the given path
// under any of the usual conventions: {base}.test.*, {base}.spec.*,
// __tests__/{base}.test.*, or {base}_test.* for Go trees.
func (s *Scorer) hasTestSibling(file string) bool {
	dir := path.Dir(file)
	base := strings.TrimSuffix(path.Base(file), path.Ext(file))
	if base == "" || base == "." {
		return false
	}
	if s.dirHasFileWithPrefix(dir, base+".test.") ||
		s.dirHasFileWithPrefix(dir, base+".spec.") ||
		s.dirHasFileWithPrefix(dir, base+"_test.") {
		return true
	}
	return s.dirHasFileWithPrefix(path.Join(dir, "__tests__"), base+".test.")
}

func (s *Scorer) dirHasFileWithPrefix(dir, prefix string) bool {
	names, err := s.workspace.ListFiles(dir)
	if err != nil {
		return false
	}
	for _, name := range names {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// complexityFactor scores 0-20 from the average complexity of the
// modified files as they sit on disk. Simpler changes score higher.
// Files that cannot be read are skipped; with nothing readable the
// factor is a neutral 10.
func (s *Scorer) complexityFactor(files []string) (int, string) {
	if len(files) == 0 {
		return 10, "complexity: no modified files (neutral)"
	}
	var total float64
	measured := 0
	for _, file := range files {
		content, err := s.workspace.ReadFile(file)
		if err != nil {
			continue
		}
		total += fileComplexity(string(content))
		measured++
	}
	if measured == 0 {
		return 10, "complexity: no readable files (neutral)"
	}
	avg := total / float64(measured)
	points := roundToInt(complexityPoints(avg))
	note := fmt.Sprintf("complexity: average %.1f across %d files", avg, measured)
	return points, note
}

// historyFactor scores 0-20 from the success rate of the last
// historyWindow recorded fix attempts across all signatures. With no
// history the factor is a neutral baseline of 10.
func (s *Scorer) historyFactor(ctx context.Context) (int, string, error) {
	attempts, err := s.store.ListRecentFixAttempts(ctx, historyWindow)
	if err != nil {
		return 0, "", fmt.Errorf("confidence: fix attempt history: %w", err)
	}
	if len(attempts) == 0 {
		return historyBaseline, "history: no recorded fix attempts (baseline)", nil
	}
	succeeded := 0
	for _, a := range attempts {
		if a.Outcome == types.OutcomeSuccess {
			succeeded++
		}
	}
	points := roundToInt(20 * float64(succeeded) / float64(len(attempts)))
	note := fmt.Sprintf("history: %d of %d recent fixes succeeded", succeeded, len(attempts))
	return points, note, nil
}

func roundToInt(v float64) int {
	return int(math.Round(v))
}
