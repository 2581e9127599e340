package workspace

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func setupWorkspace(t *testing.T) *Local {
	t.Helper()
	ws, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal() error = %v", err)
	}
	return ws
}

// writeSeed places a file in the workspace directly, bypassing the
// snapshot machinery, the way a checkout would already have it.
func writeSeed(t *testing.T, ws *Local, rel, content string) {
	t.Helper()
	abs := filepath.Join(ws.Root(), filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
}

func TestNewLocalValidatesRoot(t *testing.T) {
	if _, err := NewLocal(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("NewLocal() with missing dir succeeded, want error")
	}

	file := filepath.Join(t.TempDir(), "afile")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewLocal(file); err == nil || !strings.Contains(err.Error(), "not a directory") {
		t.Errorf("NewLocal() on a file = %v, want not-a-directory error", err)
	}
}

func TestPathValidation(t *testing.T) {
	ws := setupWorkspace(t)

	tests := []struct {
		name    string
		path    string
		wantErr string
	}{
		{"absolute path", "/etc/passwd", "absolute path"},
		{"plain traversal", "../escape.ts", "escapes the workspace"},
		{"nested traversal", "a/../../x.ts", "escapes the workspace"},
		{"empty path", "", "empty path"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ws.WriteFile(tt.path, []byte("x"))
			if err == nil {
				t.Fatal("WriteFile() succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want %q in it", err, tt.wantErr)
			}
			if _, err := ws.ReadFile(tt.path); err == nil {
				t.Error("ReadFile() succeeded, want error")
			}
		})
	}

	// Dot-prefixed relative paths are fine.
	if err := ws.WriteFile("./src/ok.ts", []byte("x")); err != nil {
		t.Errorf("WriteFile(./src/ok.ts) error = %v", err)
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	ws := setupWorkspace(t)

	content := []byte("export const handler = 1\n")
	if err := ws.WriteFile("src/api.ts", content); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	got, err := ws.ReadFile("src/api.ts")
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("ReadFile() = %q, want %q", got, content)
	}
	if !ws.FileExists("src/api.ts") {
		t.Error("FileExists() = false, want true")
	}
}

func TestRevertRestoresOriginalContent(t *testing.T) {
	ws := setupWorkspace(t)
	writeSeed(t, ws, "src/api.ts", "original\n")

	// Two writes; the snapshot must hold the pre-first-write state.
	if err := ws.WriteFile("src/api.ts", []byte("fix attempt 1\n")); err != nil {
		t.Fatal(err)
	}
	if err := ws.WriteFile("src/api.ts", []byte("fix attempt 2\n")); err != nil {
		t.Fatal(err)
	}

	if err := ws.RevertFile("src/api.ts"); err != nil {
		t.Fatalf("RevertFile() error = %v", err)
	}
	got, err := ws.ReadFile("src/api.ts")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "original\n" {
		t.Errorf("content after revert = %q, want original", got)
	}
}

func TestRevertRemovesCreatedFile(t *testing.T) {
	ws := setupWorkspace(t)

	if err := ws.WriteFile("src/brand_new.ts", []byte("created by fix\n")); err != nil {
		t.Fatal(err)
	}
	if err := ws.RevertFile("src/brand_new.ts"); err != nil {
		t.Fatalf("RevertFile() error = %v", err)
	}
	if ws.FileExists("src/brand_new.ts") {
		t.Error("created file still exists after revert")
	}
}

func TestRevertWithoutSnapshotNeedsGit(t *testing.T) {
	ws := setupWorkspace(t)
	writeSeed(t, ws, "src/api.ts", "original\n")

	// No WriteFile happened, so there is no snapshot, and the temp dir
	// is not a git repository.
	if err := ws.RevertFile("src/api.ts"); err == nil {
		t.Error("RevertFile() without snapshot outside git succeeded, want error")
	}
}

func TestClearSnapshots(t *testing.T) {
	ws := setupWorkspace(t)
	writeSeed(t, ws, "a.ts", "one\n")

	if err := ws.WriteFile("a.ts", []byte("two\n")); err != nil {
		t.Fatal(err)
	}
	if got := ws.SnapshotCount(); got != 1 {
		t.Fatalf("SnapshotCount() = %d, want 1", got)
	}
	ws.ClearSnapshots()
	if got := ws.SnapshotCount(); got != 0 {
		t.Errorf("SnapshotCount() after clear = %d, want 0", got)
	}
}

func TestListFiles(t *testing.T) {
	ws := setupWorkspace(t)
	writeSeed(t, ws, "src/a.ts", "a")
	writeSeed(t, ws, "src/b.ts", "b")
	writeSeed(t, ws, "src/nested/c.ts", "c")

	names, err := ws.ListFiles("src")
	if err != nil {
		t.Fatalf("ListFiles() error = %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("ListFiles() = %v, want 2 file names", names)
	}
	joined := strings.Join(names, ",")
	if !strings.Contains(joined, "a.ts") || !strings.Contains(joined, "b.ts") {
		t.Errorf("ListFiles() = %v, want a.ts and b.ts", names)
	}
	if strings.Contains(joined, "nested") {
		t.Errorf("ListFiles() = %v, directories must be excluded", names)
	}

	if _, err := ws.ListFiles("missing"); err == nil {
		t.Error("ListFiles(missing) succeeded, want error")
	}
}

func TestFileExists(t *testing.T) {
	ws := setupWorkspace(t)
	writeSeed(t, ws, "src/a.ts", "a")

	if !ws.FileExists("src/a.ts") {
		t.Error("FileExists(src/a.ts) = false, want true")
	}
	if ws.FileExists("src") {
		t.Error("FileExists(src) = true for a directory, want false")
	}
	if ws.FileExists("src/missing.ts") {
		t.Error("FileExists(missing) = true, want false")
	}
	if ws.FileExists("/etc/passwd") {
		t.Error("FileExists(absolute) = true, want false")
	}
}

func TestTypeCheckOverride(t *testing.T) {
	ws := setupWorkspace(t)

	ws.SetTypeCheckCommand([]string{"sh", "-c", "echo all good"})
	ok, output, err := ws.TypeCheck(context.Background())
	if err != nil {
		t.Fatalf("TypeCheck() error = %v", err)
	}
	if !ok {
		t.Error("TypeCheck() ok = false, want true")
	}
	if !strings.Contains(output, "all good") {
		t.Errorf("output = %q, want command output", output)
	}

	ws.SetTypeCheckCommand([]string{"sh", "-c", "echo type error in src/api.ts >&2; exit 2"})
	ok, output, err = ws.TypeCheck(context.Background())
	if err != nil {
		t.Fatalf("TypeCheck() error = %v", err)
	}
	if ok {
		t.Error("TypeCheck() ok = true for failing command, want false")
	}
	if !strings.Contains(output, "type error in src/api.ts") {
		t.Errorf("output = %q, want stderr captured", output)
	}
}

func TestTypeCheckTimeout(t *testing.T) {
	ws := setupWorkspace(t)
	ws.SetTypeCheckCommand([]string{"sh", "-c", "sleep 5"})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	ok, output, err := ws.TypeCheck(ctx)
	if err != nil {
		t.Fatalf("TypeCheck() error = %v", err)
	}
	if ok {
		t.Error("TypeCheck() ok = true after timeout, want false")
	}
	if !strings.Contains(output, "timed out") {
		t.Errorf("output = %q, want timeout note", output)
	}
}

func TestTypeCheckMissingBinary(t *testing.T) {
	ws := setupWorkspace(t)
	ws.SetTypeCheckCommand([]string{"mend-no-such-type-checker"})

	ok, _, err := ws.TypeCheck(context.Background())
	if err == nil {
		t.Error("TypeCheck() with missing binary error = nil, want error")
	}
	if ok {
		t.Error("TypeCheck() ok = true, want false")
	}
}

func TestTypeCheckVacuousPass(t *testing.T) {
	ws := setupWorkspace(t)

	ok, output, err := ws.TypeCheck(context.Background())
	if err != nil {
		t.Fatalf("TypeCheck() error = %v", err)
	}
	if !ok {
		t.Error("TypeCheck() ok = false for empty workspace, want vacuous pass")
	}
	if !strings.Contains(output, "no type checker detected") {
		t.Errorf("output = %q, want detection note", output)
	}
}

func TestDetectTypeCheckCommand(t *testing.T) {
	ws := setupWorkspace(t)
	if got := ws.detectTypeCheckCommand(); got != nil {
		t.Errorf("detectTypeCheckCommand() = %v, want nil for empty dir", got)
	}

	writeSeed(t, ws, "tsconfig.json", "{}")
	if got := ws.detectTypeCheckCommand(); len(got) == 0 || got[0] != "npx" {
		t.Errorf("detectTypeCheckCommand() = %v, want npx tsc", got)
	}

	// go.mod wins over tsconfig.
	writeSeed(t, ws, "go.mod", "module example.com/app\n")
	got := ws.detectTypeCheckCommand()
	if len(got) == 0 || got[0] != "go" {
		t.Errorf("detectTypeCheckCommand() = %v, want go build", got)
	}
}
