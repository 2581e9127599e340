package workspace

import (
	"testing"
)

func TestDetectProjectGoModule(t *testing.T) {
	ws := setupWorkspace(t)
	writeSeed(t, ws, "go.mod", "module github.com/acme/widgets\n\ngo 1.22.0\n")

	info := DetectProject(ws.Root())
	if info.Language != "go" {
		t.Errorf("Language = %q, want go", info.Language)
	}
	if info.ModulePath != "github.com/acme/widgets" {
		t.Errorf("ModulePath = %q, want github.com/acme/widgets", info.ModulePath)
	}
	if info.GoVersion != "1.22.0" {
		t.Errorf("GoVersion = %q, want 1.22.0", info.GoVersion)
	}
	if len(info.TypeCheck) == 0 || info.TypeCheck[0] != "go" {
		t.Errorf("TypeCheck = %v, want go build", info.TypeCheck)
	}
}

func TestDetectProjectMalformedGoMod(t *testing.T) {
	ws := setupWorkspace(t)
	writeSeed(t, ws, "go.mod", "not a real directive here\n")

	// A go.mod that does not parse still marks the project as Go and
	// keeps the checker; it just yields no module path.
	info := DetectProject(ws.Root())
	if info.Language != "go" {
		t.Errorf("Language = %q, want go", info.Language)
	}
	if info.ModulePath != "" {
		t.Errorf("ModulePath = %q, want empty", info.ModulePath)
	}
	if len(info.TypeCheck) == 0 {
		t.Error("TypeCheck is empty, want go build")
	}
}

func TestDetectProjectTypeScript(t *testing.T) {
	ws := setupWorkspace(t)
	writeSeed(t, ws, "tsconfig.json", "{}")
	writeSeed(t, ws, "package.json", `{"name": "widgets-api"}`)

	info := DetectProject(ws.Root())
	if info.Language != "typescript" {
		t.Errorf("Language = %q, want typescript", info.Language)
	}
	if info.PackageName != "widgets-api" {
		t.Errorf("PackageName = %q, want widgets-api", info.PackageName)
	}
	if len(info.TypeCheck) == 0 || info.TypeCheck[0] != "npx" {
		t.Errorf("TypeCheck = %v, want npx tsc", info.TypeCheck)
	}
}

func TestDetectProjectPlainJavaScript(t *testing.T) {
	ws := setupWorkspace(t)
	writeSeed(t, ws, "package.json", `{"name": "widgets-worker"}`)

	info := DetectProject(ws.Root())
	if info.Language != "javascript" {
		t.Errorf("Language = %q, want javascript", info.Language)
	}
	if info.PackageName != "widgets-worker" {
		t.Errorf("PackageName = %q, want widgets-worker", info.PackageName)
	}
}

func TestDetectProjectEmptyDir(t *testing.T) {
	info := DetectProject(t.TempDir())
	if info.Language != "" {
		t.Errorf("Language = %q, want empty for unrecognized layout", info.Language)
	}
	if info.TypeCheck != nil {
		t.Errorf("TypeCheck = %v, want nil", info.TypeCheck)
	}
}
