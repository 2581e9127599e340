package workspace

import (
	"encoding/json"
	"os"
	"path/filepath"

	"golang.org/x/mod/modfile"
)

// ProjectInfo describes the project at a workspace root, derived from
// its build manifests.
type ProjectInfo struct {
	// Language is "go", "typescript", or "javascript". Empty when no
	// manifest was recognized.
	Language string

	// ModulePath is the Go module path when Language is "go".
	ModulePath string

	// GoVersion is the go directive from go.mod, when declared.
	GoVersion string

	// PackageName is the name field from package.json, when present.
	PackageName string

	// TypeCheck is the static check for this layout. Empty means no
	// checker applies and verification passes vacuously.
	TypeCheck []string
}

// DetectProject inspects root for build manifests and returns what it
// found. Detection is best effort: a malformed manifest still selects
// the language and checker, it just yields less detail.
func DetectProject(root string) ProjectInfo {
	var info ProjectInfo

	if data, err := os.ReadFile(filepath.Join(root, "go.mod")); err == nil {
		info.Language = "go"
		info.TypeCheck = []string{"go", "build", "./..."}
		// Lax parsing: an unknown directive in go.mod should not stop
		// healing, the module path and go version are all we want.
		if mf, err := modfile.ParseLax("go.mod", data, nil); err == nil {
			if mf.Module != nil {
				info.ModulePath = mf.Module.Mod.Path
			}
			if mf.Go != nil {
				info.GoVersion = mf.Go.Version
			}
		}
		return info
	}

	hasTSConfig := fileIsRegular(filepath.Join(root, "tsconfig.json"))
	pkgData, pkgErr := os.ReadFile(filepath.Join(root, "package.json"))
	if pkgErr != nil && !hasTSConfig {
		return info
	}

	info.Language = "javascript"
	if hasTSConfig {
		info.Language = "typescript"
	}
	info.TypeCheck = []string{"npx", "tsc", "--noEmit"}
	if pkgErr == nil {
		var manifest struct {
			Name string `json:"name"`
		}
		if json.Unmarshal(pkgData, &manifest) == nil {
			info.PackageName = manifest.Name
		}
	}
	return info
}

func fileIsRegular(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
