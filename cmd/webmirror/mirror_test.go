package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/webmirror/internal/config"
	"github.com/nao1215/webmirror/internal/model"
)

// sampleCrawlReport returns a small report fixture for output tests.
func sampleCrawlReport() *model.CrawlReport {
	return &model.CrawlReport{
		StartURL:        "https://example.com/",
		PagesAttempted:  2,
		PagesSucceeded:  2,
		AssetsAttempted: 1,
		AssetsSucceeded: 1,
		TotalBytes:      4096,
		DurationSeconds: 2.5,
		CompletedAt:     time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		Pages: []*model.PageResult{
			{URL: "https://example.com/", StatusCode: 200, Title: "Home", ByteSize: 2048},
			{URL: "https://example.com/about", StatusCode: 200, Depth: 1, ByteSize: 1024},
		},
		Assets: []*model.AssetRecord{
			{URL: "https://example.com/style.css", Kind: model.AssetCSS, StatusCode: 200, ByteSize: 1024},
		},
	}
}

// TestNewMirrorCmd tests the mirror command creation.
func TestNewMirrorCmd(t *testing.T) {
	t.Parallel()

	cmd := NewMirrorCmd()

	t.Run("has correct use", func(t *testing.T) {
		t.Parallel()
		if cmd.Use != "mirror [url]" {
			t.Errorf("expected use 'mirror [url]', got %q", cmd.Use)
		}
	})

	t.Run("has expected flags", func(t *testing.T) {
		t.Parallel()
		for _, tt := range []struct {
			name      string
			shorthand string
			defValue  string
		}{
			{"max-pages", "p", "0"},
			{"depth", "d", "0"},
			{"all-domains", "", "false"},
			{"output", "o", config.DefaultOutputDir},
			{"no-assets", "", "false"},
			{"content-addressed", "", "false"},
			{"workers", "w", "5"},
			{"delay", "", "100ms"},
			{"timeout", "t", "30s"},
			{"retry", "r", "3"},
			{"robots", "", "false"},
			{"inspect-images", "", "false"},
			{"render", "", "false"},
			{"proxy", "", ""},
			{"config", "c", ""},
			{"json", "j", "false"},
			{"markdown", "m", "false"},
			{"report", "", ""},
		} {
			flag := cmd.Flags().Lookup(tt.name)
			if flag == nil {
				t.Errorf("expected flag %q", tt.name)
				continue
			}
			if flag.Shorthand != tt.shorthand {
				t.Errorf("flag %q: expected shorthand %q, got %q", tt.name, tt.shorthand, flag.Shorthand)
			}
			if flag.DefValue != tt.defValue {
				t.Errorf("flag %q: expected default %q, got %q", tt.name, tt.defValue, flag.DefValue)
			}
		}
	})
}

// TestBuildConfig tests config construction from flags.
func TestBuildConfig(t *testing.T) {
	t.Parallel()

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()

		cmd := NewMirrorCmd()
		if err := cmd.ParseFlags(nil); err != nil {
			t.Fatal(err)
		}

		cfg, err := buildConfig(cmd, []string{"https://example.com"})
		if err != nil {
			t.Fatalf("buildConfig failed: %v", err)
		}

		if cfg.StartURL != "https://example.com" {
			t.Errorf("expected start URL, got %q", cfg.StartURL)
		}
		if !cfg.SameDomainOnly {
			t.Error("expected same-domain restriction by default")
		}
		if !cfg.IncludeAssets {
			t.Error("expected asset download by default")
		}
		if !cfg.SaveToDB {
			t.Error("expected database saving to be enabled")
		}
		if cfg.DBDir == "" {
			t.Error("expected a database directory")
		}
		if cfg.SiteConfigs == nil {
			t.Error("expected non-nil site configs")
		}
		if err := cfg.Validate(); err != nil {
			t.Errorf("default config should validate: %v", err)
		}
	})

	t.Run("flag overrides", func(t *testing.T) {
		t.Parallel()

		cmd := NewMirrorCmd()
		args := []string{
			"-p", "100", "-d", "3", "-w", "10",
			"--all-domains", "--no-assets", "--robots",
			"--delay", "250ms", "--crawl-timeout", "1m",
			"--proxy", "127.0.0.1:9050",
			"-o", "/tmp/out", "--json", "--report", "r.json",
		}
		if err := cmd.ParseFlags(args); err != nil {
			t.Fatal(err)
		}

		cfg, err := buildConfig(cmd, []string{"https://example.com"})
		if err != nil {
			t.Fatalf("buildConfig failed: %v", err)
		}

		if cfg.MaxPages != 100 {
			t.Errorf("expected max pages 100, got %d", cfg.MaxPages)
		}
		if cfg.MaxDepth != 3 {
			t.Errorf("expected depth 3, got %d", cfg.MaxDepth)
		}
		if cfg.WorkerCount != 10 {
			t.Errorf("expected 10 workers, got %d", cfg.WorkerCount)
		}
		if cfg.SameDomainOnly {
			t.Error("expected all-domains to disable same-domain restriction")
		}
		if cfg.IncludeAssets {
			t.Error("expected no-assets to disable asset download")
		}
		if !cfg.RespectRobots {
			t.Error("expected robots flag to be set")
		}
		if cfg.RequestDelay != 250*time.Millisecond {
			t.Errorf("expected delay 250ms, got %v", cfg.RequestDelay)
		}
		if cfg.CrawlTimeout != time.Minute {
			t.Errorf("expected crawl timeout 1m, got %v", cfg.CrawlTimeout)
		}
		if cfg.ProxyAddress != "127.0.0.1:9050" {
			t.Errorf("expected proxy address, got %q", cfg.ProxyAddress)
		}
		if cfg.OutputDir != "/tmp/out" {
			t.Errorf("expected output dir, got %q", cfg.OutputDir)
		}
		if !cfg.JSONReport {
			t.Error("expected JSON report")
		}
		if cfg.ReportFile != "r.json" {
			t.Errorf("expected report file, got %q", cfg.ReportFile)
		}
	})

	t.Run("loads explicit config file", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), "webmirror.yaml")
		content := `sites:
  example.com:
    cookie: "session=abc"
    depth: 2
    delayMs: 500
`
		if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
			t.Fatal(err)
		}

		cmd := NewMirrorCmd()
		if err := cmd.ParseFlags([]string{"-c", configPath}); err != nil {
			t.Fatal(err)
		}

		cfg, err := buildConfig(cmd, []string{"https://example.com"})
		if err != nil {
			t.Fatalf("buildConfig failed: %v", err)
		}

		site := cfg.SiteConfigs.GetSiteConfig("example.com")
		if site.Cookie != "session=abc" {
			t.Errorf("expected cookie from config file, got %q", site.Cookie)
		}
		if site.Depth != 2 {
			t.Errorf("expected depth 2, got %d", site.Depth)
		}
		if site.DelayMS != 500 {
			t.Errorf("expected delay 500ms, got %d", site.DelayMS)
		}
	})

	t.Run("errors on missing explicit config file", func(t *testing.T) {
		t.Parallel()

		cmd := NewMirrorCmd()
		if err := cmd.ParseFlags([]string{"-c", filepath.Join(t.TempDir(), "missing.yaml")}); err != nil {
			t.Fatal(err)
		}

		if _, err := buildConfig(cmd, []string{"https://example.com"}); err == nil {
			t.Error("expected error for missing explicit config file")
		}
	})

	t.Run("conflicting report formats rejected by validation", func(t *testing.T) {
		t.Parallel()

		cmd := NewMirrorCmd()
		if err := cmd.ParseFlags([]string{"--json", "--markdown"}); err != nil {
			t.Fatal(err)
		}

		cfg, err := buildConfig(cmd, []string{"https://example.com"})
		if err != nil {
			t.Fatalf("buildConfig failed: %v", err)
		}
		if err := cfg.Validate(); err == nil {
			t.Error("expected validation error for conflicting report formats")
		}
	})
}

// TestGetVerboseFlag tests verbose flag resolution.
func TestGetVerboseFlag(t *testing.T) {
	t.Parallel()

	t.Run("resolves from root persistent flags", func(t *testing.T) {
		t.Parallel()

		root := NewRootCmd()
		if err := root.PersistentFlags().Set("verbose", "true"); err != nil {
			t.Fatal(err)
		}

		for _, sub := range root.Commands() {
			if sub.Use == "mirror [url]" {
				if !getVerboseFlag(sub) {
					t.Error("expected verbose flag from root")
				}
				return
			}
		}
		t.Fatal("mirror subcommand not found")
	})

	t.Run("defaults to false", func(t *testing.T) {
		t.Parallel()
		if getVerboseFlag(NewMirrorCmd()) {
			t.Error("expected verbose to default to false")
		}
	})
}

// TestOutputReport tests report output in each format.
func TestOutputReport(t *testing.T) {
	t.Parallel()

	t.Run("json to file", func(t *testing.T) {
		t.Parallel()

		cfg := config.NewConfig()
		cfg.JSONReport = true
		cfg.ReportFile = filepath.Join(t.TempDir(), "out", "report.json")

		if err := outputReport(cfg, sampleCrawlReport()); err != nil {
			t.Fatalf("outputReport failed: %v", err)
		}

		content, err := os.ReadFile(cfg.ReportFile)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(string(content), `"pages_succeeded": 2`) {
			t.Errorf("expected JSON counters in output, got %s", content)
		}
		if !strings.Contains(string(content), `"version"`) {
			t.Error("expected version wrapper in full JSON output")
		}

		info, err := os.Stat(cfg.ReportFile)
		if err != nil {
			t.Fatal(err)
		}
		if info.Mode().Perm() != 0600 {
			t.Errorf("expected mode 0600, got %v", info.Mode().Perm())
		}
	})

	t.Run("markdown to file", func(t *testing.T) {
		t.Parallel()

		cfg := config.NewConfig()
		cfg.MarkdownReport = true
		cfg.ReportFile = filepath.Join(t.TempDir(), "report.md")

		if err := outputReport(cfg, sampleCrawlReport()); err != nil {
			t.Fatalf("outputReport failed: %v", err)
		}

		content, err := os.ReadFile(cfg.ReportFile)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(string(content), "# WebMirror") {
			t.Errorf("expected markdown heading, got %s", content)
		}
	})

	t.Run("simple to file", func(t *testing.T) {
		t.Parallel()

		cfg := config.NewConfig()
		cfg.ReportFile = filepath.Join(t.TempDir(), "report.txt")

		if err := outputReport(cfg, sampleCrawlReport()); err != nil {
			t.Fatalf("outputReport failed: %v", err)
		}

		content, err := os.ReadFile(cfg.ReportFile)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(string(content), "WEBMIRROR REPORT") {
			t.Errorf("expected simple report header, got %s", content)
		}
	})
}
