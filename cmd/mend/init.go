package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mendhq/mend/internal/config"
	"github.com/mendhq/mend/internal/storage"
	"github.com/mendhq/mend/internal/storage/sqlite"
	"github.com/mendhq/mend/internal/types"
	"github.com/mendhq/mend/internal/workspace"
)

var (
	initOwnerEmail string
	initName       string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize mend state for a workspace",
	Long: `Initialize the .mend/ state directory for a workspace.

This creates:
  - .mend/ directory
  - .mend/mend.db (SQLite database)
  - .mend/policy.yaml (healing policy, editable)

With --owner-email, an admin user is created and marked as the owner.
AI worker repair jobs run under that identity; without one, mend heals
from its knowledge base only.

Example:
  cd ~/myservice
  mend init --owner-email ops@example.com
  mend serve`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if err := os.MkdirAll(appCfg.StateDir, 0755); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to create state directory: %v\n", err)
			os.Exit(1)
		}

		// A custom name places the database under the workspace's .mend/
		// directory, where discovery finds it for later commands.
		dbPath := appCfg.DBPath
		if initName != "" {
			name := initName
			if !strings.HasSuffix(name, ".db") {
				name += ".db"
			}
			dbPath = filepath.Join(appCfg.WorkspaceRoot, config.DefaultStateDirName, name)
			if _, err := os.Stat(dbPath); os.IsNotExist(err) {
				if _, err := storage.InitProject(appCfg.WorkspaceRoot, initName); err != nil {
					fmt.Fprintf(os.Stderr, "Error: %v\n", err)
					os.Exit(1)
				}
			}
		}

		// Opening the database creates the schema.
		db, err := sqlite.New(dbPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to initialize database: %v\n", err)
			os.Exit(1)
		}
		defer db.Close()

		// Write the default policy, but never clobber an edited one.
		wrotePolicy := false
		if _, err := os.Stat(appCfg.PolicyPath); os.IsNotExist(err) {
			if err := config.SaveDefaultPolicy(appCfg.PolicyPath); err != nil {
				fmt.Fprintf(os.Stderr, "Error: failed to write policy: %v\n", err)
				os.Exit(1)
			}
			wrotePolicy = true
		}

		ctx := context.Background()
		var owner *types.User
		if initOwnerEmail != "" {
			owner, err = ensureOwner(ctx, db, initOwnerEmail)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: failed to set up owner: %v\n", err)
				os.Exit(1)
			}
		}

		green := color.New(color.FgGreen).SprintFunc()
		cyan := color.New(color.FgCyan).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		fmt.Printf("\n%s Initialized mend\n\n", green("✓"))
		fmt.Printf("  Workspace: %s\n", cyan(appCfg.WorkspaceRoot))
		fmt.Printf("  Database:  %s\n", cyan(dbPath))
		if wrotePolicy {
			fmt.Printf("  Policy:    %s\n", cyan(appCfg.PolicyPath))
		} else {
			fmt.Printf("  Policy:    %s %s\n", cyan(appCfg.PolicyPath), gray("(kept existing)"))
		}
		if owner != nil {
			fmt.Printf("  Owner:     %s\n", cyan(owner.Email))
		}
		if info := workspace.DetectProject(appCfg.WorkspaceRoot); info.Language != "" {
			label := info.Language
			switch {
			case info.ModulePath != "":
				label = fmt.Sprintf("%s (%s)", info.Language, info.ModulePath)
			case info.PackageName != "":
				label = fmt.Sprintf("%s (%s)", info.Language, info.PackageName)
			}
			fmt.Printf("  Project:   %s\n", cyan(label))
		}
		fmt.Println()

		fmt.Printf("%s Next steps:\n", gray("→"))
		if owner == nil {
			fmt.Printf("  %s\n", gray("mend init --owner-email you@example.com  # Enable AI worker repairs"))
		}
		fmt.Printf("  %s\n", gray("mend serve"))
		fmt.Printf("  %s\n", gray("mend report \"...\"  # Or POST to /incidents"))
		fmt.Println()
	},
}

// ensureOwner creates an admin user for the email (reusing an existing
// row) and marks it as the owner.
func ensureOwner(ctx context.Context, db *sqlite.SQLiteStorage, email string) (*types.User, error) {
	user, err := db.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		user = &types.User{
			Email: email,
			Role:  types.RoleAdmin,
		}
		if err := db.CreateUser(ctx, user); err != nil {
			return nil, err
		}
	}
	if err := db.SetOwner(ctx, user.ID); err != nil {
		return nil, err
	}
	user.IsOwner = true
	return user, nil
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().StringVar(&initOwnerEmail, "owner-email", "", "Create this user as admin and owner (worker jobs run as this identity)")
	initCmd.Flags().StringVar(&initName, "name", "", "Database name under <workspace>/.mend/ (default: mend.db)")
}
