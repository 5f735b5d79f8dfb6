package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/nao1215/webmirror/internal/config"
	"github.com/nao1215/webmirror/internal/crawler"
	"github.com/nao1215/webmirror/internal/database"
	"github.com/nao1215/webmirror/internal/log"
	"github.com/nao1215/webmirror/internal/model"
	"github.com/nao1215/webmirror/internal/report"
	"github.com/spf13/cobra"
)

// NewMirrorCmd creates the mirror command.
func NewMirrorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mirror [url]",
		Short: "Crawl a website and write a local mirror",
		Long: `Mirror crawls a website starting from the given URL and writes its pages
and referenced assets (CSS, JavaScript, images, fonts) to local storage.

The crawl stays within the start URL's domain unless --all-domains is
given, paces requests per host, retries transient failures, and honors
HTTP 429 rate limiting. Every finished crawl is saved to the history
database for later comparison.

Examples:
  # Mirror a site into ./website_mirror
  webmirror mirror https://example.com

  # Limit the crawl to 100 pages, 3 link hops
  webmirror mirror -p 100 -d 3 https://example.com

  # Pages only, no assets, custom output directory
  webmirror mirror --no-assets -o /tmp/example https://example.com

  # Honor robots.txt and inspect mirrored images for EXIF metadata
  webmirror mirror --robots --inspect-images https://example.com

  # Mirror an onion service through a SOCKS5 proxy
  webmirror mirror --proxy 127.0.0.1:9050 http://exampleonion.onion

  # Write a JSON report to a file
  webmirror mirror --json --report report.json https://example.com

Configuration file (.webmirror) example:
  sites:
    example.com:
      cookie: "session_id=abc123"
      headers:
        Authorization: "Bearer token"
      delay_ms: 500
    docs.example.com:
      depth: 2
      ignore_patterns:
        - "/archive/*"`,
		Args: cobra.ExactArgs(1),
		RunE: runMirrorCmd,
	}

	// Bounds flags
	cmd.Flags().IntP("max-pages", "p", config.DefaultMaxPages,
		"Maximum number of pages to crawl (0 = unlimited)")
	cmd.Flags().IntP("depth", "d", config.DefaultMaxDepth,
		"Maximum link depth from the start URL (0 = unlimited)")
	cmd.Flags().Bool("all-domains", false,
		"Follow links to other domains (default: same domain only)")

	// Output flags
	cmd.Flags().StringP("output", "o", config.DefaultOutputDir,
		"Output directory for mirrored pages and assets")
	cmd.Flags().Bool("no-assets", false,
		"Skip downloading CSS, JavaScript, images, and fonts")
	cmd.Flags().Bool("content-addressed", false,
		"Store assets under hash-derived paths instead of URL paths")

	// Politeness flags
	cmd.Flags().IntP("workers", "w", config.DefaultWorkerCount,
		"Number of concurrent fetch workers")
	cmd.Flags().Int("concurrency", 0,
		"Maximum in-flight network requests across pages and assets (0 = workers)")
	cmd.Flags().Duration("delay", config.DefaultRequestDelay,
		"Minimum interval between requests to the same host")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Per-request timeout")
	cmd.Flags().Duration("crawl-timeout", 0,
		"Wall-clock deadline for the whole crawl (0 = none)")
	cmd.Flags().IntP("retry", "r", config.DefaultRetryLimit,
		"Number of retries for transient failures")
	cmd.Flags().Int64("max-body-size", config.DefaultMaxBodySize,
		"Maximum response body size in bytes")
	cmd.Flags().Bool("robots", false,
		"Honor robots.txt exclusions")

	// Content flags
	cmd.Flags().Bool("inspect-images", false,
		"Record privacy notes for mirrored images carrying EXIF GPS or camera metadata")
	cmd.Flags().Bool("render", false,
		"Re-render script-heavy pages in a headless browser when the plain fetch yields an empty shell")

	// Network flags
	cmd.Flags().String("proxy", "",
		"SOCKS5 proxy address (e.g., 127.0.0.1:9050, required for .onion sites)")

	// Configuration file
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .webmirror in current or home directory)")

	// Report flags
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().String("report", "",
		"Write the crawl report to the specified file path instead of stdout")

	return cmd
}

// runMirrorCmd executes the mirror command.
func runMirrorCmd(cmd *cobra.Command, args []string) error {
	// Build config from flags
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	// Set up structured logging. The secure logger redacts cookies and
	// authorization headers that site configs may carry into log records.
	logger := log.NewSecureLogger(os.Stderr, cfg.Verbose)
	slog.SetDefault(logger)

	// Set up context with signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle interrupt signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal, finishing in-flight work...")
		cancel()
	}()

	return runMirror(ctx, cfg, logger)
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// buildConfig creates a Config from cobra command flags.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	cfg.StartURL = args[0]
	cfg.Verbose = getVerboseFlag(cmd)

	// Get flag values
	var err error

	cfg.MaxPages, err = cmd.Flags().GetInt("max-pages")
	if err != nil {
		return nil, err
	}

	cfg.MaxDepth, err = cmd.Flags().GetInt("depth")
	if err != nil {
		return nil, err
	}

	allDomains, err := cmd.Flags().GetBool("all-domains")
	if err != nil {
		return nil, err
	}
	cfg.SameDomainOnly = !allDomains

	cfg.OutputDir, err = cmd.Flags().GetString("output")
	if err != nil {
		return nil, err
	}

	noAssets, err := cmd.Flags().GetBool("no-assets")
	if err != nil {
		return nil, err
	}
	cfg.IncludeAssets = !noAssets

	cfg.ContentAddressed, err = cmd.Flags().GetBool("content-addressed")
	if err != nil {
		return nil, err
	}

	cfg.WorkerCount, err = cmd.Flags().GetInt("workers")
	if err != nil {
		return nil, err
	}

	cfg.MaxConcurrentRequests, err = cmd.Flags().GetInt("concurrency")
	if err != nil {
		return nil, err
	}

	cfg.RequestDelay, err = cmd.Flags().GetDuration("delay")
	if err != nil {
		return nil, err
	}

	cfg.Timeout, err = cmd.Flags().GetDuration("timeout")
	if err != nil {
		return nil, err
	}

	cfg.CrawlTimeout, err = cmd.Flags().GetDuration("crawl-timeout")
	if err != nil {
		return nil, err
	}

	cfg.RetryLimit, err = cmd.Flags().GetInt("retry")
	if err != nil {
		return nil, err
	}

	cfg.MaxBodySize, err = cmd.Flags().GetInt64("max-body-size")
	if err != nil {
		return nil, err
	}

	cfg.RespectRobots, err = cmd.Flags().GetBool("robots")
	if err != nil {
		return nil, err
	}

	cfg.InspectImages, err = cmd.Flags().GetBool("inspect-images")
	if err != nil {
		return nil, err
	}

	cfg.RenderFallback, err = cmd.Flags().GetBool("render")
	if err != nil {
		return nil, err
	}

	cfg.ProxyAddress, err = cmd.Flags().GetString("proxy")
	if err != nil {
		return nil, err
	}

	cfg.ConfigFilePath, err = cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	// Load site-specific configurations from config file
	// If user explicitly specified a config file path, error if not found.
	// If no path specified, silently use empty config if no file found.
	explicitConfigPath := cfg.ConfigFilePath != ""
	configPath := config.FindConfigFile(cfg.ConfigFilePath)

	if configPath != "" {
		cfg.SiteConfigs, err = config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	} else if explicitConfigPath {
		// User explicitly specified a config file that doesn't exist
		return nil, fmt.Errorf("configuration file not found: %s", cfg.ConfigFilePath)
	} else {
		// Use empty config if no file found and user didn't explicitly specify one
		cfg.SiteConfigs = &config.File{
			Sites: make(map[string]config.SiteConfig),
		}
	}

	cfg.JSONReport, err = cmd.Flags().GetBool("json")
	if err != nil {
		return nil, err
	}

	cfg.MarkdownReport, err = cmd.Flags().GetBool("markdown")
	if err != nil {
		return nil, err
	}

	cfg.ReportFile, err = cmd.Flags().GetString("report")
	if err != nil {
		return nil, err
	}

	// Always save to database using XDG data directory
	cfg.SaveToDB = true
	cfg.DBDir = config.XDGDataDir()

	return cfg, nil
}

// runMirror executes the crawl and handles report output and persistence.
func runMirror(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("starting mirror",
		"startURL", cfg.StartURL,
		"outputDir", cfg.OutputDir,
		"maxPages", cfg.MaxPages,
		"maxDepth", cfg.MaxDepth,
		"workers", cfg.WorkerCount,
	)

	// Open database connection if saving is enabled
	var db *database.HistoryDB
	if cfg.SaveToDB {
		var err error
		db, err = database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		logger.Info("database opened", "dir", cfg.DBDir)
	}

	coord, err := crawler.NewCoordinator(cfg, crawler.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to create crawler: %w", err)
	}

	fmt.Printf("Mirroring %s...\n", cfg.StartURL)
	startTime := time.Now()

	// Stream progress while the crawl runs. The event channel is closed
	// when the final report is assembled, so this goroutine always exits.
	progressDone := make(chan struct{})
	go func() {
		defer close(progressDone)
		reportProgress(coord.Events(), logger)
	}()

	crawlReport, err := coord.Run(ctx)
	if err != nil {
		return fmt.Errorf("crawl failed: %w", err)
	}
	<-progressDone

	elapsed := time.Since(startTime)
	if crawlReport.Cancelled {
		fmt.Printf("Mirror interrupted after %s\n\n", elapsed.Round(time.Millisecond))
	} else {
		fmt.Printf("Mirror completed in %s\n\n", elapsed.Round(time.Millisecond))
	}

	// Generate and output report
	if err := outputReport(cfg, crawlReport); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	// Save to database if enabled
	if db != nil {
		sessionID, err := db.SaveCrawl(ctx, crawlReport)
		if err != nil {
			logger.Error("failed to save crawl session", "error", err)
		} else {
			logger.Info("crawl session saved", "sessionID", sessionID)
			fmt.Printf("\nSaved as session %d. Run 'webmirror compare %s' after the next mirror to see changes.\n",
				sessionID, cfg.StartURL)
		}
	}

	return nil
}

// reportProgress prints a progress line for every 10th crawled page.
// Failures are always surfaced at debug level so verbose runs show each
// outcome as it happens.
func reportProgress(events <-chan crawler.Event, logger *slog.Logger) {
	for ev := range events {
		switch ev.Kind {
		case crawler.EventPage:
			if ev.Err != model.ErrorKindNone {
				logger.Debug("page failed", "url", ev.URL, "error", string(ev.Err))
				continue
			}
			if ev.PagesSucceeded%10 == 0 {
				fmt.Printf("  %d pages, %d assets\n", ev.PagesSucceeded, ev.AssetsSucceeded)
			}
		case crawler.EventAsset:
			if ev.Err != model.ErrorKindNone {
				logger.Debug("asset failed", "url", ev.URL, "error", string(ev.Err))
			}
		}
	}
}

// outputReport outputs the crawl report in the requested format.
func outputReport(cfg *config.Config, crawlReport *model.CrawlReport) error {
	// Determine output destination
	var output *os.File
	if cfg.ReportFile != "" {
		// Create directories if they don't exist
		dir := filepath.Dir(cfg.ReportFile)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
		}

		// Create/overwrite the output file with secure permissions (0600)
		// Reports list every crawled URL and should only be readable by the owner
		f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		output = f
	} else {
		output = os.Stdout
	}

	// JSON output (full report wrapped with the generator version)
	if cfg.JSONReport {
		writer := report.NewFullJSONWriter(output, getVersion(), report.WithPrettyPrint())
		_, err := writer.Write(crawlReport)
		return err
	}

	// Markdown output
	if cfg.MarkdownReport {
		writer := report.NewMarkdownWriter(output)
		_, err := writer.Write(crawlReport)
		return err
	}

	// Human-readable report (default)
	writer := report.NewSimpleWriter(output, report.WithVerbose(cfg.Verbose))
	_, err := writer.Write(crawlReport)
	return err
}
