package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mendhq/mend/internal/control"
)

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume healing on the running daemon",
	Long: `Clear the kill switch, whether it tripped on consecutive failures or
was forced by 'mend pause'.

The failure counter resets; the session rate limit does not, so a burst
of recent sessions still counts against the window.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		client := control.NewClient(appCfg.SocketPath)
		resp, err := client.Resume()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			fmt.Fprintf(os.Stderr, "Hint: is the daemon running? Try 'mend status'.\n")
			os.Exit(1)
		}
		if !resp.Success {
			red := color.New(color.FgRed).SprintFunc()
			fmt.Printf("%s Resume failed: %s\n", red("✗"), resp.Message)
			if resp.Error != "" {
				fmt.Printf("  Error: %s\n", resp.Error)
			}
			os.Exit(1)
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Healing resumed\n", green("✓"))
	},
}

func init() {
	rootCmd.AddCommand(resumeCmd)
}
