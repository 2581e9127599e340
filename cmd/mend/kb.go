package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mendhq/mend/internal/types"
)

var kbLimit int

var kbCmd = &cobra.Command{
	Use:   "kb [error-signature]",
	Short: "Inspect the fix knowledge base",
	Long: `List knowledge base entries, or show one in full.

Entries are learned from successful healings: each one pairs an error
signature with the fix that worked, its success rate, and a confidence
score. High-confidence entries are applied automatically before any AI
worker gets involved.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		if len(args) == 1 {
			showKBEntry(ctx, args[0])
			return
		}

		entries, err := store.ListKBEntries(ctx, kbLimit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		gray := color.New(color.FgHiBlack).SprintFunc()
		if len(entries) == 0 {
			fmt.Printf("%s\n", gray("Knowledge base is empty; it fills as incidents get fixed"))
			return
		}

		cyan := color.New(color.FgCyan).SprintFunc()
		fmt.Println()
		for _, e := range entries {
			fmt.Printf("%s %s\n", confidenceBadge(e.Confidence), cyan(e.ErrorSignature))
			fmt.Printf("    %s  fixed %d of %d  confidence %d\n",
				e.ErrorKind, e.TimesFixed, e.TimesEncountered, e.Confidence)
			if e.Context != "" {
				fmt.Printf("    %s\n", gray(firstLine(e.Context)))
			}
			fmt.Println()
		}
		fmt.Printf("%d entr%s\n", len(entries), plural(len(entries), "y", "ies"))
	},
}

// showKBEntry prints one entry in full, including the stored fix.
func showKBEntry(ctx context.Context, signature string) {
	entry, err := store.GetKBEntryBySignature(ctx, signature)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if entry == nil {
		fmt.Fprintf(os.Stderr, "Error: no knowledge base entry for %s\n", signature)
		os.Exit(1)
	}

	cyan := color.New(color.FgCyan).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	fmt.Printf("\n%s %s\n\n", confidenceBadge(entry.Confidence), cyan(entry.ErrorSignature))
	fmt.Printf("  Kind:        %s\n", entry.ErrorKind)
	fmt.Printf("  Confidence:  %d\n", entry.Confidence)
	fmt.Printf("  Record:      fixed %d of %d encounters (%.0f%%)\n",
		entry.TimesFixed, entry.TimesEncountered, entry.SuccessRate()*100)
	fmt.Printf("  Last seen:   %s\n", entry.LastEncountered.Format("2006-01-02 15:04:05"))
	if entry.Context != "" {
		fmt.Printf("\n%s\n  %s\n", yellow("Context:"),
			strings.ReplaceAll(entry.Context, "\n", "\n  "))
	}

	if entry.SuccessfulFix != "" {
		fmt.Printf("\n%s\n", yellow("Stored Fix:"))
		if fix, err := types.ParseProposedFix(entry.SuccessfulFix); err == nil {
			fmt.Printf("  %s\n", fix.Description)
			for _, f := range fix.Files {
				fmt.Printf("  - %s (%d bytes)\n", f.Path, len(f.Content))
			}
		} else {
			fmt.Printf("  %s\n", color.New(color.FgRed).Sprintf("unparseable: %v", err))
		}
	}
	fmt.Println()
}

// confidenceBadge colors a confidence score: green is auto-apply
// territory, yellow is promising, gray is unproven.
func confidenceBadge(confidence int) string {
	switch {
	case confidence >= 90:
		return color.New(color.FgGreen).Sprint("●")
	case confidence >= 60:
		return color.New(color.FgYellow).Sprint("●")
	default:
		return color.New(color.FgHiBlack).Sprint("○")
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func init() {
	kbCmd.Flags().IntVarP(&kbLimit, "limit", "n", 20, "Maximum entries to show (0 for all)")
	rootCmd.AddCommand(kbCmd)
}
