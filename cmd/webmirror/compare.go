package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/nao1215/webmirror/internal/config"
	"github.com/nao1215/webmirror/internal/database"
	"github.com/spf13/cobra"
)

// NewCompareCmd creates the compare command.
// This command compares two crawl sessions of the same site and reports
// which pages appeared, vanished, or changed content.
func NewCompareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare [url]",
		Short: "Compare two crawl sessions of a site",
		Long: `Compare shows the content differences between two stored crawl sessions
of the same site:
- Pages added since the older session
- Pages removed since the older session
- Pages whose content checksum changed

By default the latest two sessions are compared. The comparison requires
at least two stored sessions for the site; use 'webmirror mirror' to
crawl and 'webmirror history' to list session IDs.

Examples:
  # Compare the latest two sessions for a site
  webmirror compare https://example.com

  # Compare the latest session with a specific older one
  webmirror compare --with-session-id 5 https://example.com

  # Output comparison in JSON format
  webmirror compare --json https://example.com`,
		Args: cobra.ExactArgs(1),
		RunE: runCompareCmd,
	}

	// Comparison target flag
	cmd.Flags().Int64P("with-session-id", "i", 0,
		"Compare the latest session with a specific session by ID (use 'webmirror history' to see IDs)")

	// Output format flag
	cmd.Flags().BoolP("json", "j", false,
		"Output comparison result in JSON format")

	return cmd
}

// runCompareCmd executes the compare command.
func runCompareCmd(cmd *cobra.Command, args []string) error {
	startURL := args[0]

	withSessionID, err := cmd.Flags().GetInt64("with-session-id")
	if err != nil {
		return err
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

	return runComparison(context.Background(), db, startURL, withSessionID, jsonOutput)
}

// comparisonResult holds the result of comparing two crawl sessions.
type comparisonResult struct {
	// StartURL is the compared site's seed address.
	StartURL string `json:"start_url"`

	// OlderSession and NewerSession describe the compared sessions.
	OlderSession sessionListing `json:"older_session"`
	NewerSession sessionListing `json:"newer_session"`

	// AddedPages lists URLs present only in the newer session.
	AddedPages []string `json:"added_pages,omitempty"`

	// RemovedPages lists URLs present only in the older session.
	RemovedPages []string `json:"removed_pages,omitempty"`

	// ChangedPages lists URLs whose content checksum differs.
	ChangedPages []changedPage `json:"changed_pages,omitempty"`

	// UnchangedCount is the number of pages with identical content.
	UnchangedCount int `json:"unchanged_count"`
}

// changedPage records one page whose content differs between sessions.
type changedPage struct {
	URL         string `json:"url"`
	OldChecksum string `json:"old_checksum"`
	NewChecksum string `json:"new_checksum"`
}

// runComparison selects the two sessions to compare and outputs the diff.
func runComparison(ctx context.Context, db *database.HistoryDB, startURL string, withSessionID int64, jsonOutput bool) error {
	sessions, err := db.ListSessions(ctx, startURL)
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	if len(sessions) == 0 {
		return fmt.Errorf("no crawl history found for %s", startURL)
	}
	if len(sessions) < 2 && withSessionID == 0 {
		return fmt.Errorf("at least 2 sessions are required for comparison (found %d)", len(sessions))
	}

	// Latest session is always the newer side
	newer := sessions[0]

	var older database.SessionMetadata
	if withSessionID > 0 {
		found := false
		for _, s := range sessions {
			if s.ID == withSessionID {
				older = s
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("session %d not found for %s", withSessionID, startURL)
		}
		if older.ID == newer.ID {
			return errors.New("cannot compare a session with itself")
		}
	} else {
		older = sessions[1]
	}

	diff, err := db.CompareSessions(ctx, older.ID, newer.ID)
	if err != nil {
		return fmt.Errorf("failed to compare sessions: %w", err)
	}

	result := buildComparisonResult(startURL, older, newer, diff)

	if jsonOutput {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(result)
	}
	return outputComparisonText(result)
}

// buildComparisonResult assembles the output structure from a session diff.
func buildComparisonResult(startURL string, older, newer database.SessionMetadata, diff *database.SessionDiff) *comparisonResult {
	result := &comparisonResult{
		StartURL:     startURL,
		OlderSession: toSessionListing(older),
		NewerSession: toSessionListing(newer),
		AddedPages:   diff.Added,
		RemovedPages: diff.Removed,
	}

	for _, change := range diff.Changed {
		result.ChangedPages = append(result.ChangedPages, changedPage{
			URL:         change.URL,
			OldChecksum: change.OldChecksum,
			NewChecksum: change.NewChecksum,
		})
	}

	// Pages in both sessions that are neither changed nor removed kept
	// the same content.
	unchanged := newer.PagesSucceeded - len(diff.Added) - len(diff.Changed)
	if unchanged > 0 {
		result.UnchangedCount = unchanged
	}

	return result
}

// toSessionListing converts stored session metadata to the output shape.
func toSessionListing(s database.SessionMetadata) sessionListing {
	return sessionListing{
		ID:              s.ID,
		StartURL:        s.StartURL,
		Timestamp:       s.Timestamp,
		PagesSucceeded:  s.PagesSucceeded,
		AssetsSucceeded: s.AssetsSucceeded,
		TotalBytes:      s.TotalBytes,
		DurationSeconds: s.DurationSeconds,
		Cancelled:       s.Cancelled,
	}
}

// outputComparisonText prints a human-readable comparison.
func outputComparisonText(result *comparisonResult) error {
	fmt.Printf("Comparison for %s\n\n", result.StartURL)
	fmt.Printf("  Older: session %d  %s  (%d pages)\n",
		result.OlderSession.ID,
		result.OlderSession.Timestamp.Format(time.DateTime),
		result.OlderSession.PagesSucceeded)
	fmt.Printf("  Newer: session %d  %s  (%d pages)\n\n",
		result.NewerSession.ID,
		result.NewerSession.Timestamp.Format(time.DateTime),
		result.NewerSession.PagesSucceeded)

	if len(result.AddedPages) == 0 && len(result.RemovedPages) == 0 && len(result.ChangedPages) == 0 {
		fmt.Println("No content changes detected.")
		return nil
	}

	if len(result.AddedPages) > 0 {
		fmt.Printf("Added pages (%d):\n", len(result.AddedPages))
		for _, u := range result.AddedPages {
			fmt.Printf("  + %s\n", u)
		}
		fmt.Println()
	}

	if len(result.RemovedPages) > 0 {
		fmt.Printf("Removed pages (%d):\n", len(result.RemovedPages))
		for _, u := range result.RemovedPages {
			fmt.Printf("  - %s\n", u)
		}
		fmt.Println()
	}

	if len(result.ChangedPages) > 0 {
		fmt.Printf("Changed pages (%d):\n", len(result.ChangedPages))
		for _, c := range result.ChangedPages {
			fmt.Printf("  ~ %s\n", c.URL)
		}
		fmt.Println()
	}

	fmt.Printf("Unchanged pages: %d\n", result.UnchangedCount)
	return nil
}
