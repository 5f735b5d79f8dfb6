package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/nao1215/webmirror/internal/config"
	"github.com/nao1215/webmirror/internal/database"
	"github.com/nao1215/webmirror/internal/report"
	"github.com/spf13/cobra"
)

// NewHistoryCmd creates the history command.
// This command lists crawl sessions stored in the history database.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [url]",
		Short: "List stored crawl sessions",
		Long: `History lists crawl sessions saved in the history database.

Without arguments it lists every stored session. With a URL it lists
only the sessions for that site. Session IDs shown here can be passed
to 'webmirror compare --with-session-id'.

Examples:
  # List all stored sessions
  webmirror history

  # List sessions for one site
  webmirror history https://example.com

  # Output session list in JSON format
  webmirror history --json https://example.com`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().BoolP("json", "j", false,
		"Output session list in JSON format")

	return cmd
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, args []string) error {
	var startURL string
	if len(args) > 0 {
		startURL = args[0]
	}

	jsonOutput, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}

	// Use XDG data directory for database
	db, err := database.Open(config.XDGDataDir(), database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	return listSessionHistory(context.Background(), db, startURL, jsonOutput)
}

// sessionListing is the JSON shape of one session in history output.
type sessionListing struct {
	ID              int64     `json:"id"`
	StartURL        string    `json:"start_url"`
	Timestamp       time.Time `json:"timestamp"`
	PagesSucceeded  int       `json:"pages_succeeded"`
	AssetsSucceeded int       `json:"assets_succeeded"`
	TotalBytes      int64     `json:"total_bytes"`
	DurationSeconds float64   `json:"duration_seconds"`
	Cancelled       bool      `json:"cancelled"`
}

// listSessionHistory lists stored sessions, optionally filtered by site.
func listSessionHistory(ctx context.Context, db *database.HistoryDB, startURL string, jsonOutput bool) error {
	sessions, err := db.ListSessions(ctx, startURL)
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	if jsonOutput {
		listings := make([]sessionListing, 0, len(sessions))
		for _, s := range sessions {
			listings = append(listings, sessionListing{
				ID:              s.ID,
				StartURL:        s.StartURL,
				Timestamp:       s.Timestamp,
				PagesSucceeded:  s.PagesSucceeded,
				AssetsSucceeded: s.AssetsSucceeded,
				TotalBytes:      s.TotalBytes,
				DurationSeconds: s.DurationSeconds,
				Cancelled:       s.Cancelled,
			})
		}
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(listings)
	}

	if len(sessions) == 0 {
		if startURL != "" {
			fmt.Printf("No crawl history found for %s\n", startURL)
		} else {
			fmt.Println("No crawl history found in the database.")
		}
		fmt.Println("\nUse 'webmirror mirror <url>' to mirror a site.")
		return nil
	}

	if startURL != "" {
		fmt.Printf("Crawl history for %s (%d sessions):\n\n", startURL, len(sessions))
	} else {
		fmt.Printf("Crawl history (%d sessions):\n\n", len(sessions))
	}

	fmt.Printf("  %-6s  %-20s  %-8s  %-8s  %-10s  %s\n",
		"ID", "Date", "Pages", "Assets", "Size", "Site")
	fmt.Println("  " + strings.Repeat("-", 76))

	for _, s := range sessions {
		site := s.StartURL
		if s.Cancelled {
			site += " (interrupted)"
		}
		fmt.Printf("  %-6d  %-20s  %-8d  %-8d  %-10s  %s\n",
			s.ID,
			s.Timestamp.Format("2006-01-02 15:04:05"),
			s.PagesSucceeded,
			s.AssetsSucceeded,
			report.FormatBytes(s.TotalBytes),
			site,
		)
	}

	fmt.Println("\nUse 'webmirror compare <url>' to compare the latest two sessions.")
	fmt.Println("Use 'webmirror compare --with-session-id <id> <url>' to compare with a specific session.")

	return nil
}
