package sqlite

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/mendhq/mend/internal/types"
)

const testSignature = "0e80465dcf8e652fdc21e8e20a351148"

func TestCreateAndCompleteFixAttempt(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	incident := createTestIncident(t, store)
	session := createTestSession(t, store, incident.ID, types.StrategyWorkerAgent)

	attempt := &types.FixAttempt{
		ErrorSignature:  testSignature,
		SessionID:       session.ID,
		ProposedFix:     `{"description":"add null check","files":[]}`,
		ConfidenceScore: 80,
	}
	if err := store.CreateFixAttempt(ctx, attempt); err != nil {
		t.Fatalf("CreateFixAttempt failed: %v", err)
	}
	if attempt.Outcome != types.OutcomePending {
		t.Errorf("expected pending outcome, got %s", attempt.Outcome)
	}

	prNumber := 17
	err := store.CompleteFixAttempt(ctx, attempt.ID, types.OutcomeSuccess, `{"passed":true}`, &prNumber, "https://example.com/pr/17")
	if err != nil {
		t.Fatalf("CompleteFixAttempt failed: %v", err)
	}

	attempts, err := store.GetRecentFixAttempts(ctx, testSignature, 10)
	if err != nil {
		t.Fatalf("GetRecentFixAttempts failed: %v", err)
	}
	if len(attempts) != 1 {
		t.Fatalf("expected 1 attempt, got %d", len(attempts))
	}
	got := attempts[0]
	if got.Outcome != types.OutcomeSuccess {
		t.Errorf("expected success, got %s", got.Outcome)
	}
	if got.PRNumber == nil || *got.PRNumber != 17 {
		t.Errorf("expected PR number 17, got %v", got.PRNumber)
	}
	if got.PRURL != "https://example.com/pr/17" {
		t.Errorf("unexpected PR URL: %q", got.PRURL)
	}
	if got.CompletedAt == nil {
		t.Error("expected completed_at to be set")
	}
}

func TestCompleteFixAttemptRejectsNonTerminal(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	incident := createTestIncident(t, store)
	session := createTestSession(t, store, incident.ID, types.StrategyWorkerAgent)

	attempt := &types.FixAttempt{
		ErrorSignature: testSignature,
		SessionID:      session.ID,
	}
	if err := store.CreateFixAttempt(ctx, attempt); err != nil {
		t.Fatalf("CreateFixAttempt failed: %v", err)
	}

	err := store.CompleteFixAttempt(ctx, attempt.ID, types.OutcomePending, "", nil, "")
	if err == nil {
		t.Fatal("expected error for non-terminal outcome")
	}
	if !strings.Contains(err.Error(), "not terminal") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestCompleteFixAttemptTwice(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	incident := createTestIncident(t, store)
	session := createTestSession(t, store, incident.ID, types.StrategyWorkerAgent)

	attempt := &types.FixAttempt{
		ErrorSignature: testSignature,
		SessionID:      session.ID,
	}
	if err := store.CreateFixAttempt(ctx, attempt); err != nil {
		t.Fatalf("CreateFixAttempt failed: %v", err)
	}
	if err := store.CompleteFixAttempt(ctx, attempt.ID, types.OutcomeFailure, "", nil, ""); err != nil {
		t.Fatalf("CompleteFixAttempt failed: %v", err)
	}

	err := store.CompleteFixAttempt(ctx, attempt.ID, types.OutcomeSuccess, "", nil, "")
	if err == nil {
		t.Fatal("expected error completing an attempt twice")
	}
	if !strings.Contains(err.Error(), "already") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestGetRecentFixAttemptsExcludesPending(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	incident := createTestIncident(t, store)
	session := createTestSession(t, store, incident.ID, types.StrategyWorkerAgent)

	base := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	outcomes := []types.FixOutcome{types.OutcomeSuccess, types.OutcomeRolledBack, types.OutcomeFailure}
	for i, outcome := range outcomes {
		attempt := &types.FixAttempt{
			ErrorSignature: testSignature,
			SessionID:      session.ID,
			CreatedAt:      base.Add(time.Duration(i) * time.Minute),
		}
		if err := store.CreateFixAttempt(ctx, attempt); err != nil {
			t.Fatalf("CreateFixAttempt failed: %v", err)
		}
		if err := store.CompleteFixAttempt(ctx, attempt.ID, outcome, "", nil, ""); err != nil {
			t.Fatalf("CompleteFixAttempt failed: %v", err)
		}
	}

	// A pending attempt and one for another signature should not show up.
	pending := &types.FixAttempt{
		ErrorSignature: testSignature,
		SessionID:      session.ID,
		CreatedAt:      base.Add(time.Hour),
	}
	if err := store.CreateFixAttempt(ctx, pending); err != nil {
		t.Fatalf("CreateFixAttempt failed: %v", err)
	}
	other := &types.FixAttempt{
		ErrorSignature: "deadbeefdeadbeefdeadbeefdeadbeef",
		SessionID:      session.ID,
		CreatedAt:      base.Add(2 * time.Hour),
	}
	if err := store.CreateFixAttempt(ctx, other); err != nil {
		t.Fatalf("CreateFixAttempt failed: %v", err)
	}
	if err := store.CompleteFixAttempt(ctx, other.ID, types.OutcomeSuccess, "", nil, ""); err != nil {
		t.Fatalf("CompleteFixAttempt failed: %v", err)
	}

	attempts, err := store.GetRecentFixAttempts(ctx, testSignature, 10)
	if err != nil {
		t.Fatalf("GetRecentFixAttempts failed: %v", err)
	}
	if len(attempts) != 3 {
		t.Fatalf("expected 3 completed attempts, got %d", len(attempts))
	}
	// Newest first.
	if attempts[0].Outcome != types.OutcomeFailure {
		t.Errorf("expected newest attempt first, got %s", attempts[0].Outcome)
	}
	if attempts[2].Outcome != types.OutcomeSuccess {
		t.Errorf("expected oldest attempt last, got %s", attempts[2].Outcome)
	}
}

func TestListRecentFixAttemptsAcrossSignatures(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	incident := createTestIncident(t, store)
	session := createTestSession(t, store, incident.ID, types.StrategyWorkerAgent)

	base := time.Date(2026, 6, 3, 10, 0, 0, 0, time.UTC)
	signatures := []string{"sig-one", "sig-two", "sig-one"}
	for i, sig := range signatures {
		attempt := &types.FixAttempt{
			ErrorSignature: sig,
			SessionID:      session.ID,
			CreatedAt:      base.Add(time.Duration(i) * time.Minute),
		}
		if err := store.CreateFixAttempt(ctx, attempt); err != nil {
			t.Fatalf("CreateFixAttempt failed: %v", err)
		}
		if err := store.CompleteFixAttempt(ctx, attempt.ID, types.OutcomeSuccess, "", nil, ""); err != nil {
			t.Fatalf("CompleteFixAttempt failed: %v", err)
		}
	}
	pending := &types.FixAttempt{
		ErrorSignature: "sig-three",
		SessionID:      session.ID,
		CreatedAt:      base.Add(time.Hour),
	}
	if err := store.CreateFixAttempt(ctx, pending); err != nil {
		t.Fatalf("CreateFixAttempt failed: %v", err)
	}

	attempts, err := store.ListRecentFixAttempts(ctx, 10)
	if err != nil {
		t.Fatalf("ListRecentFixAttempts failed: %v", err)
	}
	if len(attempts) != 3 {
		t.Fatalf("expected 3 completed attempts across signatures, got %d", len(attempts))
	}
	if attempts[0].ErrorSignature != "sig-one" {
		t.Errorf("expected newest attempt first, got %s", attempts[0].ErrorSignature)
	}
}

func TestGetRecentFixAttemptsLimit(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	incident := createTestIncident(t, store)
	session := createTestSession(t, store, incident.ID, types.StrategyWorkerAgent)

	base := time.Date(2026, 6, 2, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		attempt := &types.FixAttempt{
			ErrorSignature: testSignature,
			SessionID:      session.ID,
			CreatedAt:      base.Add(time.Duration(i) * time.Minute),
		}
		if err := store.CreateFixAttempt(ctx, attempt); err != nil {
			t.Fatalf("CreateFixAttempt failed: %v", err)
		}
		if err := store.CompleteFixAttempt(ctx, attempt.ID, types.OutcomeSuccess, "", nil, ""); err != nil {
			t.Fatalf("CompleteFixAttempt failed: %v", err)
		}
	}

	attempts, err := store.GetRecentFixAttempts(ctx, testSignature, 3)
	if err != nil {
		t.Fatalf("GetRecentFixAttempts failed: %v", err)
	}
	if len(attempts) != 3 {
		t.Errorf("expected 3 attempts with limit, got %d", len(attempts))
	}
}
