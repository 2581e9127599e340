package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDiscoverDatabase(t *testing.T) {
	dir := t.TempDir()

	// Nothing there yet
	if _, err := DiscoverDatabase(dir); err == nil {
		t.Error("expected error for directory without .mend/")
	}

	mendDir := filepath.Join(dir, ".mend")
	if err := os.MkdirAll(mendDir, 0755); err != nil {
		t.Fatalf("failed to create .mend: %v", err)
	}

	// Empty .mend directory
	if _, err := DiscoverDatabase(dir); err == nil {
		t.Error("expected error for empty .mend/")
	}

	dbPath := filepath.Join(mendDir, "mend.db")
	if err := os.WriteFile(dbPath, []byte{}, 0644); err != nil {
		t.Fatalf("failed to create db file: %v", err)
	}

	found, err := DiscoverDatabase(dir)
	if err != nil {
		t.Fatalf("DiscoverDatabase() error = %v", err)
	}
	if filepath.Base(found) != "mend.db" {
		t.Errorf("found = %s, want mend.db", found)
	}
}

func TestDiscoverDatabaseDoesNotWalkUp(t *testing.T) {
	parent := t.TempDir()
	mendDir := filepath.Join(parent, ".mend")
	if err := os.MkdirAll(mendDir, 0755); err != nil {
		t.Fatalf("failed to create .mend: %v", err)
	}
	if err := os.WriteFile(filepath.Join(mendDir, "mend.db"), []byte{}, 0644); err != nil {
		t.Fatalf("failed to create db file: %v", err)
	}

	child := filepath.Join(parent, "nested", "deep")
	if err := os.MkdirAll(child, 0755); err != nil {
		t.Fatalf("failed to create nested dir: %v", err)
	}

	// The parent has a database, but discovery from the child must fail.
	if _, err := DiscoverDatabase(child); err == nil {
		t.Error("discovery should not walk up to the parent database")
	}
}

func TestGetProjectRoot(t *testing.T) {
	tests := []struct {
		name    string
		dbPath  string
		want    string
		wantErr bool
	}{
		{"valid path", "/home/user/proj/.mend/mend.db", "/home/user/proj", false},
		{"not in .mend dir", "/home/user/proj/db/mend.db", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := GetProjectRoot(tt.dbPath)
			if (err != nil) != tt.wantErr {
				t.Fatalf("GetProjectRoot() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("GetProjectRoot() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestValidateAlignment(t *testing.T) {
	root := t.TempDir()
	mendDir := filepath.Join(root, ".mend")
	if err := os.MkdirAll(mendDir, 0755); err != nil {
		t.Fatalf("failed to create .mend: %v", err)
	}
	dbPath := filepath.Join(mendDir, "mend.db")

	// Same project is fine
	if err := ValidateAlignment(dbPath, root); err != nil {
		t.Errorf("ValidateAlignment(same project) error = %v", err)
	}

	// Subdirectory of the project is fine
	sub := filepath.Join(root, "src")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatalf("failed to create subdir: %v", err)
	}
	if err := ValidateAlignment(dbPath, sub); err != nil {
		t.Errorf("ValidateAlignment(subdirectory) error = %v", err)
	}

	// A different tree is rejected
	other := t.TempDir()
	err := ValidateAlignment(dbPath, other)
	if err == nil {
		t.Fatal("ValidateAlignment(other project) should fail")
	}
	if !strings.Contains(err.Error(), "mismatch") {
		t.Errorf("error should mention mismatch, got: %v", err)
	}
}

func TestInitProject(t *testing.T) {
	dir := t.TempDir()

	dbPath, err := InitProject(dir, "myservice")
	if err != nil {
		t.Fatalf("InitProject() error = %v", err)
	}
	if filepath.Base(dbPath) != "myservice.db" {
		t.Errorf("dbPath = %s, want myservice.db basename", dbPath)
	}
	if _, err := os.Stat(filepath.Join(dir, ".mend")); err != nil {
		t.Errorf(".mend directory not created: %v", err)
	}

	// Re-initializing after the database exists must fail
	if err := os.WriteFile(dbPath, []byte{}, 0644); err != nil {
		t.Fatalf("failed to create db file: %v", err)
	}
	if _, err := InitProject(dir, "myservice"); err == nil {
		t.Error("InitProject() should fail when database already exists")
	}
}

func TestInitProjectDefaultsToDirName(t *testing.T) {
	dir := t.TempDir()

	dbPath, err := InitProject(dir, "")
	if err != nil {
		t.Fatalf("InitProject() error = %v", err)
	}
	want := filepath.Base(dir) + ".db"
	if filepath.Base(dbPath) != want {
		t.Errorf("dbPath basename = %s, want %s", filepath.Base(dbPath), want)
	}
}
