package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/webmirror/internal/model"
)

// HistoryDB provides SQLite-based storage for finished crawl sessions.
//
// Design decision: one database file holds every session rather than a
// file per site. Comparing two sessions of the same site is the primary
// query, and it stays a simple join when everything lives in one file.
type HistoryDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures HistoryDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging for better concurrent
	// performance. Recommended for most use cases.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a HistoryDB in the specified directory.
// If CreateIfNotExists is false and the database doesn't exist, an error
// is returned.
func Open(dbDir string, opts Options) (*HistoryDB, error) {
	dbPath := filepath.Join(dbDir, "webmirror.db")

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// modernc.org/sqlite connection string: mode=rw prevents creating new
	// files, mode=rwc allows creation.
	var dsn string
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	} else {
		dsn = dbPath + "?mode=rw"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer; a single pooled connection avoids
	// SQLITE_BUSY under concurrent saves.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	hdb := &HistoryDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := hdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return hdb, nil
}

// Close closes the database connection.
func (hdb *HistoryDB) Close() error {
	return hdb.db.Close()
}

// createTables creates the database schema if it doesn't exist.
func (hdb *HistoryDB) createTables() error {
	schema := `
	-- Sessions store one finished crawl each, with the full report as JSON.
	CREATE TABLE IF NOT EXISTS sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		start_url TEXT NOT NULL,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
		pages_attempted INTEGER NOT NULL,
		pages_succeeded INTEGER NOT NULL,
		assets_attempted INTEGER NOT NULL,
		assets_succeeded INTEGER NOT NULL,
		total_bytes INTEGER NOT NULL,
		duration_seconds REAL NOT NULL,
		cancelled INTEGER NOT NULL DEFAULT 0,
		report_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_start_url ON sessions(start_url);
	CREATE INDEX IF NOT EXISTS idx_sessions_timestamp ON sessions(timestamp);

	-- Pages store per-URL checksums for comparing sessions of one site.
	CREATE TABLE IF NOT EXISTS pages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id INTEGER NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		url TEXT NOT NULL,
		status_code INTEGER,
		title TEXT,
		byte_size INTEGER,
		checksum TEXT,
		error TEXT,
		UNIQUE(session_id, url)
	);

	CREATE INDEX IF NOT EXISTS idx_pages_session ON pages(session_id);
	CREATE INDEX IF NOT EXISTS idx_pages_url ON pages(url);
	`

	_, err := hdb.db.ExecContext(context.Background(), schema)
	return err
}

// SaveCrawl stores a finished crawl and returns the new session ID.
// The full report is kept as JSON; page rows are duplicated into their
// own table so session comparison never has to parse report blobs.
func (hdb *HistoryDB) SaveCrawl(ctx context.Context, report *model.CrawlReport) (int64, error) {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return 0, fmt.Errorf("failed to serialize report: %w", err)
	}

	tx, err := hdb.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	result, err := tx.ExecContext(ctx, `
	INSERT INTO sessions (start_url, pages_attempted, pages_succeeded,
		assets_attempted, assets_succeeded, total_bytes, duration_seconds,
		cancelled, report_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		report.StartURL,
		report.PagesAttempted,
		report.PagesSucceeded,
		report.AssetsAttempted,
		report.AssetsSucceeded,
		report.TotalBytes,
		report.DurationSeconds,
		boolToInt(report.Cancelled),
		string(reportJSON),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert session: %w", err)
	}
	sessionID, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get session id: %w", err)
	}

	for _, page := range report.Pages {
		_, err := tx.ExecContext(ctx, `
		INSERT INTO pages (session_id, url, status_code, title, byte_size, checksum, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, url) DO NOTHING
		`,
			sessionID,
			page.URL,
			page.StatusCode,
			page.Title,
			page.ByteSize,
			page.Checksum,
			string(page.Error),
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert page row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit session: %w", err)
	}
	return sessionID, nil
}

// SessionMetadata summarizes one stored session without the full report.
type SessionMetadata struct {
	// ID is the session's database identifier.
	ID int64

	// StartURL is the seed address of the crawl.
	StartURL string

	// Timestamp is when the session was saved.
	Timestamp time.Time

	// PagesSucceeded and AssetsSucceeded are the success counters.
	PagesSucceeded  int
	AssetsSucceeded int

	// TotalBytes is the mirrored data volume.
	TotalBytes int64

	// DurationSeconds is the crawl wall-clock time.
	DurationSeconds float64

	// Cancelled indicates the crawl did not finish naturally.
	Cancelled bool
}

// ListSessions returns stored sessions, newest first. An empty startURL
// lists every session; otherwise only sessions for that seed.
func (hdb *HistoryDB) ListSessions(ctx context.Context, startURL string) ([]SessionMetadata, error) {
	query := `
	SELECT id, start_url, timestamp, pages_succeeded, assets_succeeded,
		total_bytes, duration_seconds, cancelled
	FROM sessions
	`
	args := make([]any, 0, 1)
	if startURL != "" {
		query += " WHERE start_url = ?"
		args = append(args, startURL)
	}
	query += " ORDER BY timestamp DESC, id DESC"

	rows, err := hdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only rows

	var results []SessionMetadata
	for rows.Next() {
		var meta SessionMetadata
		var timestamp string
		var cancelled int
		if err := rows.Scan(&meta.ID, &meta.StartURL, &timestamp,
			&meta.PagesSucceeded, &meta.AssetsSucceeded,
			&meta.TotalBytes, &meta.DurationSeconds, &cancelled); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		meta.Timestamp = parseTimestamp(timestamp)
		meta.Cancelled = cancelled != 0
		results = append(results, meta)
	}

	return results, rows.Err()
}

// GetSession retrieves the full report of a stored session, or nil when
// the ID is unknown.
func (hdb *HistoryDB) GetSession(ctx context.Context, id int64) (*model.CrawlReport, error) {
	var reportJSON string
	err := hdb.db.QueryRowContext(ctx,
		`SELECT report_json FROM sessions WHERE id = ?`, id).Scan(&reportJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var report model.CrawlReport
	if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	return &report, nil
}

// LatestSession returns the most recent session for a seed URL, or nil
// when the site has never been crawled.
func (hdb *HistoryDB) LatestSession(ctx context.Context, startURL string) (*SessionMetadata, error) {
	sessions, err := hdb.ListSessions(ctx, startURL)
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, nil
	}
	return &sessions[0], nil
}

// HasRecentCrawl checks whether the seed URL was crawled within the given
// duration.
func (hdb *HistoryDB) HasRecentCrawl(ctx context.Context, startURL string, within time.Duration) (bool, error) {
	// SQLite datetime modifier format.
	modifier := fmt.Sprintf("-%d seconds", int(within.Seconds()))

	var count int
	err := hdb.db.QueryRowContext(ctx, `
	SELECT COUNT(*) FROM sessions
	WHERE start_url = ? AND timestamp > datetime('now', ?)
	`, startURL, modifier).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check recent crawl: %w", err)
	}
	return count > 0, nil
}

// PageChange describes one URL whose content differs between two sessions.
type PageChange struct {
	// URL is the page address.
	URL string

	// OldChecksum and NewChecksum are the content hashes in the older
	// and newer session.
	OldChecksum string
	NewChecksum string
}

// SessionDiff is the result of comparing two sessions of the same site.
type SessionDiff struct {
	// Added lists URLs present only in the newer session.
	Added []string

	// Removed lists URLs present only in the older session.
	Removed []string

	// Changed lists URLs present in both with different content.
	Changed []PageChange
}

// CompareSessions diffs the successfully fetched pages of two sessions.
// Failed pages are excluded: a page that errored in one session says
// nothing about the site's content.
func (hdb *HistoryDB) CompareSessions(ctx context.Context, olderID, newerID int64) (*SessionDiff, error) {
	older, err := hdb.sessionChecksums(ctx, olderID)
	if err != nil {
		return nil, err
	}
	newer, err := hdb.sessionChecksums(ctx, newerID)
	if err != nil {
		return nil, err
	}

	diff := &SessionDiff{}
	for url, newSum := range newer {
		oldSum, ok := older[url]
		switch {
		case !ok:
			diff.Added = append(diff.Added, url)
		case oldSum != newSum:
			diff.Changed = append(diff.Changed, PageChange{
				URL:         url,
				OldChecksum: oldSum,
				NewChecksum: newSum,
			})
		}
	}
	for url := range older {
		if _, ok := newer[url]; !ok {
			diff.Removed = append(diff.Removed, url)
		}
	}
	return diff, nil
}

// sessionChecksums loads the url-to-checksum map of one session's
// successful pages.
func (hdb *HistoryDB) sessionChecksums(ctx context.Context, sessionID int64) (map[string]string, error) {
	rows, err := hdb.db.QueryContext(ctx, `
	SELECT url, checksum FROM pages
	WHERE session_id = ? AND (error = '' OR error IS NULL)
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session pages: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only rows

	checksums := make(map[string]string)
	for rows.Next() {
		var url, checksum string
		if err := rows.Scan(&url, &checksum); err != nil {
			return nil, fmt.Errorf("failed to scan page: %w", err)
		}
		checksums[url] = checksum
	}
	return checksums, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	"2006-01-02 15:04:05",     // SQLite default datetime format
	"2006-01-02T15:04:05Z",    // ISO 8601 with Z suffix
	"2006-01-02T15:04:05",     // ISO 8601 without timezone
	time.RFC3339,              // Full RFC3339 format
	time.RFC3339Nano,          // RFC3339 with nanoseconds
	"2006-01-02 15:04:05.999", // SQLite with milliseconds
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// SQLite may return timestamps in different formats depending on
// configuration. If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
