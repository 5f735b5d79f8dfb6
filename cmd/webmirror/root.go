// Package main provides the entry point for the WebMirror CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for WebMirror.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webmirror",
		Short: "Mirror websites to local storage",
		Long: `WebMirror crawls a website starting from a seed URL and writes a local
mirror of its pages and assets (CSS, JavaScript, images, fonts).

Every finished crawl is saved to a history database, so repeated mirrors
of the same site can be compared to see which pages appeared, vanished,
or changed content.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	// Add subcommands
	cmd.AddCommand(NewMirrorCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewCompareCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
