package verify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type fakeWS struct {
	existing map[string]bool
	ok       bool
	output   string
	err      error

	typeCheckCalls int
	sawDeadline    bool
}

func (w *fakeWS) FileExists(path string) bool {
	return w.existing[path]
}

func (w *fakeWS) TypeCheck(ctx context.Context) (bool, string, error) {
	w.typeCheckCalls++
	_, w.sawDeadline = ctx.Deadline()
	return w.ok, w.output, w.err
}

func TestVerifyPasses(t *testing.T) {
	ws := &fakeWS{
		existing: map[string]bool{"src/api.ts": true, "src/db.ts": true},
		ok:       true,
		output:   "",
	}
	v := New(ws, 30*time.Second)

	result := v.Verify(context.Background(), []string{"src/api.ts", "src/db.ts"})
	if !result.Passed {
		t.Fatalf("Passed = false, want true (checks: %v, details: %s)",
			result.Checks, result.ErrorDetails)
	}
	if len(result.Checks) != 2 {
		t.Errorf("Checks = %v, want existence and type check entries", result.Checks)
	}
	if result.ErrorDetails != "" {
		t.Errorf("ErrorDetails = %q, want empty", result.ErrorDetails)
	}
	if !strings.Contains(result.Summary(), "verification passed") {
		t.Errorf("Summary() = %q", result.Summary())
	}
}

func TestVerifyMissingFilesSkipTypeCheck(t *testing.T) {
	ws := &fakeWS{
		existing: map[string]bool{"src/api.ts": true},
		ok:       true,
	}
	v := New(ws, 30*time.Second)

	result := v.Verify(context.Background(), []string{"src/api.ts", "src/gone.ts", "src/also_gone.ts"})
	if result.Passed {
		t.Fatal("Passed = true with missing files, want false")
	}
	if !strings.Contains(result.ErrorDetails, "src/gone.ts") ||
		!strings.Contains(result.ErrorDetails, "src/also_gone.ts") {
		t.Errorf("ErrorDetails = %q, want both missing files named", result.ErrorDetails)
	}
	if ws.typeCheckCalls != 0 {
		t.Errorf("typeCheckCalls = %d, want 0 after existence failure", ws.typeCheckCalls)
	}
}

func TestVerifyTypeCheckFailureTruncatesOutput(t *testing.T) {
	ws := &fakeWS{
		existing: map[string]bool{"src/api.ts": true},
		ok:       false,
		output:   strings.Repeat("src/api.ts(42,7): error TS2339\n", 60),
	}
	v := New(ws, 30*time.Second)

	result := v.Verify(context.Background(), []string{"src/api.ts"})
	if result.Passed {
		t.Fatal("Passed = true, want false")
	}
	if !strings.Contains(result.ErrorDetails, "error TS2339") {
		t.Errorf("ErrorDetails = %q, want checker output", result.ErrorDetails)
	}
	if !strings.Contains(result.ErrorDetails, "[... truncated]") {
		t.Error("ErrorDetails not truncated")
	}
	if len(result.ErrorDetails) > maxErrorDetail+len("\n[... truncated]") {
		t.Errorf("ErrorDetails length = %d, want capped", len(result.ErrorDetails))
	}
}

func TestVerifyTypeCheckRunError(t *testing.T) {
	ws := &fakeWS{
		existing: map[string]bool{"src/api.ts": true},
		err:      errors.New("running npx tsc --noEmit: executable file not found"),
	}
	v := New(ws, 30*time.Second)

	result := v.Verify(context.Background(), []string{"src/api.ts"})
	if result.Passed {
		t.Fatal("Passed = true, want false")
	}
	if !strings.Contains(result.ErrorDetails, "executable file not found") {
		t.Errorf("ErrorDetails = %q, want run error", result.ErrorDetails)
	}
}

func TestVerifyBoundsTypeCheck(t *testing.T) {
	ws := &fakeWS{existing: map[string]bool{"a.ts": true}, ok: true}
	v := New(ws, 5*time.Second)

	v.Verify(context.Background(), []string{"a.ts"})
	if !ws.sawDeadline {
		t.Error("TypeCheck context had no deadline, want bounded run")
	}
}

func TestNewDefaultsTimeout(t *testing.T) {
	v := New(&fakeWS{}, 0)
	if v.timeout != defaultTimeout {
		t.Errorf("timeout = %s, want %s", v.timeout, defaultTimeout)
	}
}

func TestVerifyNoFilesStillTypeChecks(t *testing.T) {
	ws := &fakeWS{ok: true}
	v := New(ws, time.Second)

	result := v.Verify(context.Background(), nil)
	if !result.Passed {
		t.Errorf("Passed = false for empty file list, want true")
	}
	if ws.typeCheckCalls != 1 {
		t.Errorf("typeCheckCalls = %d, want 1", ws.typeCheckCalls)
	}
}
