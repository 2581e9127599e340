package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DiscoverDatabase looks for .mend/*.db in the given directory only.
// Returns the absolute path to the database file, or an error if not found.
//
// Only the given directory is checked, never parents. This prevents
// accidentally using another project's database when a project is nested
// inside another project's directory structure. An empty dir means the
// current working directory. Explicit overrides (flags, MEND_DB_PATH)
// are the caller's business and always win over discovery.
func DiscoverDatabase(dir string) (string, error) {
	if dir == "" {
		var err error
		dir, err = os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to get current directory: %w", err)
		}
	}

	mendDir := filepath.Join(dir, ".mend")

	if info, err := os.Stat(mendDir); err == nil && info.IsDir() {
		entries, err := os.ReadDir(mendDir)
		if err == nil {
			for _, entry := range entries {
				if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".db") {
					dbPath := filepath.Join(mendDir, entry.Name())
					absPath, err := filepath.Abs(dbPath)
					if err != nil {
						return "", fmt.Errorf("failed to get absolute path: %w", err)
					}
					return absPath, nil
				}
			}
		}
	}

	return "", fmt.Errorf(
		"no .mend/*.db found in %s\n"+
			"  Run 'mend init' to initialize a healing database in this directory\n"+
			"  Or use --db flag to specify database path explicitly",
		dir)
}

// GetProjectRoot returns the project root directory for a given database path.
// The project root is the directory containing the .mend/ directory.
//
// Example:
//
//	dbPath: /home/user/myproject/.mend/mend.db
//	returns: /home/user/myproject
func GetProjectRoot(dbPath string) (string, error) {
	absPath, err := filepath.Abs(dbPath)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	dbDir := filepath.Dir(absPath)

	if filepath.Base(dbDir) != ".mend" {
		return "", fmt.Errorf(
			"database must be in a .mend/ directory, got: %s",
			dbPath)
	}

	projectRoot := filepath.Dir(dbDir)
	return projectRoot, nil
}

// ValidateAlignment ensures database and working directory are in the same project.
// This prevents dangerous scenarios where incidents are read from one project
// but fixes are written into a different project's tree.
func ValidateAlignment(dbPath, workingDir string) error {
	projectRoot, err := GetProjectRoot(dbPath)
	if err != nil {
		return fmt.Errorf("invalid database path: %w", err)
	}

	absWorkingDir, err := filepath.Abs(workingDir)
	if err != nil {
		return fmt.Errorf("invalid working directory: %w", err)
	}

	// Working directory must be at or below project root
	// This allows running mend from subdirectories
	if !isAtOrBelow(absWorkingDir, projectRoot) {
		return fmt.Errorf(
			"database-working directory mismatch:\n"+
				"  database: %s\n"+
				"  project root: %s\n"+
				"  working directory: %s\n"+
				"\n"+
				"The database and working directory must be in the same project.\n"+
				"Either:\n"+
				"  - cd %s && mend ...\n"+
				"  - Use the correct --db flag for this directory",
			dbPath, projectRoot, absWorkingDir, projectRoot)
	}

	return nil
}

// isAtOrBelow checks if path is at or below root in the directory tree
func isAtOrBelow(path, root string) bool {
	path = filepath.Clean(path)
	root = filepath.Clean(root)

	return path == root || strings.HasPrefix(path, root+string(filepath.Separator))
}

// InitProject creates a new .mend directory with an empty database.
// Returns the path to the created database.
func InitProject(projectDir, projectName string) (string, error) {
	if _, err := os.Stat(projectDir); os.IsNotExist(err) {
		return "", fmt.Errorf("project directory does not exist: %s", projectDir)
	}

	mendDir := filepath.Join(projectDir, ".mend")
	if err := os.MkdirAll(mendDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create .mend directory: %w", err)
	}

	dbName := projectName
	if dbName == "" {
		// Use directory name as default
		dbName = filepath.Base(projectDir)
	}
	if !strings.HasSuffix(dbName, ".db") {
		dbName += ".db"
	}

	dbPath := filepath.Join(mendDir, dbName)

	if _, err := os.Stat(dbPath); err == nil {
		return "", fmt.Errorf("database already exists: %s", dbPath)
	}

	// Database will be created on first connection
	return dbPath, nil
}
