package crawler

import (
	"sync"
	"testing"
	"time"

	"github.com/nao1215/webmirror/internal/model"
)

func TestAggregator(t *testing.T) {
	t.Parallel()

	t.Run("accumulates page and asset outcomes", func(t *testing.T) {
		t.Parallel()

		a := NewAggregator("https://example.com/")
		a.AddPage(&model.PageResult{URL: "https://example.com/", StatusCode: 200, ByteSize: 1000, Elapsed: 120 * time.Millisecond})
		a.AddPage(&model.PageResult{URL: "https://example.com/missing", StatusCode: 404, Error: model.ErrorKindHTTP})
		a.AddAsset(&model.AssetRecord{URL: "https://example.com/a.css", Kind: model.AssetCSS, StatusCode: 200, ByteSize: 300})
		a.AddAsset(&model.AssetRecord{URL: "https://example.com/b.js", Error: model.ErrorKindTimeout})

		report := a.Report(false)

		if report.PagesAttempted != 2 || report.PagesSucceeded != 1 {
			t.Errorf("pages attempted/succeeded = %d/%d, want 2/1", report.PagesAttempted, report.PagesSucceeded)
		}
		if report.AssetsAttempted != 2 || report.AssetsSucceeded != 1 {
			t.Errorf("assets attempted/succeeded = %d/%d, want 2/1", report.AssetsAttempted, report.AssetsSucceeded)
		}
		if report.TotalBytes != 1300 {
			t.Errorf("TotalBytes = %d, want 1300", report.TotalBytes)
		}
		if len(report.FailedPages()) != 1 || len(report.FailedAssets()) != 1 {
			t.Error("failed page and asset should each be reported once")
		}
		if report.Pages[0].ElapsedMS != 120 {
			t.Errorf("ElapsedMS = %d, want 120", report.Pages[0].ElapsedMS)
		}
	})

	t.Run("is safe under concurrent recording", func(t *testing.T) {
		t.Parallel()

		a := NewAggregator("https://example.com/")
		var wg sync.WaitGroup
		for i := 0; i < 100; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				a.AddPage(&model.PageResult{URL: "https://example.com/", StatusCode: 200, ByteSize: 10})
			}()
		}
		wg.Wait()

		report := a.Report(false)
		if report.PagesSucceeded != 100 {
			t.Errorf("PagesSucceeded = %d, want 100", report.PagesSucceeded)
		}
		if report.TotalBytes != 1000 {
			t.Errorf("TotalBytes = %d, want 1000", report.TotalBytes)
		}
	})

	t.Run("discards results after the report is frozen", func(t *testing.T) {
		t.Parallel()

		a := NewAggregator("https://example.com/")
		a.AddPage(&model.PageResult{URL: "https://example.com/", StatusCode: 200})
		report := a.Report(true)

		a.AddPage(&model.PageResult{URL: "https://example.com/late", StatusCode: 200})

		if report.PagesSucceeded != 1 {
			t.Errorf("PagesSucceeded = %d, want 1", report.PagesSucceeded)
		}
		if !report.Cancelled {
			t.Error("Cancelled flag should be preserved")
		}
	})

	t.Run("publishes progress events without blocking", func(t *testing.T) {
		t.Parallel()

		a := NewAggregator("https://example.com/")
		// Far more events than the channel buffers; recording must not block.
		for i := 0; i < 500; i++ {
			a.AddPage(&model.PageResult{URL: "https://example.com/", StatusCode: 200})
		}

		ev, ok := <-a.Events()
		if !ok {
			t.Fatal("expected at least one buffered event")
		}
		if ev.Kind != EventPage {
			t.Errorf("event kind = %q, want %q", ev.Kind, EventPage)
		}

		a.Report(false)
		// Channel closes on freeze; drain must terminate.
		for range a.Events() {
		}
	})
}

func TestPacer(t *testing.T) {
	t.Parallel()

	t.Run("spaces requests to the same host", func(t *testing.T) {
		t.Parallel()

		p := NewPacer(30*time.Millisecond, nil)
		ctx := t.Context()

		start := time.Now()
		for i := 0; i < 3; i++ {
			if err := p.Wait(ctx, "example.com"); err != nil {
				t.Fatal(err)
			}
		}
		if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
			t.Errorf("three same-host requests finished in %v, want at least ~60ms of pacing", elapsed)
		}
	})

	t.Run("does not penalize different hosts", func(t *testing.T) {
		t.Parallel()

		p := NewPacer(200*time.Millisecond, nil)
		ctx := t.Context()

		start := time.Now()
		for _, host := range []string{"a.com", "b.com", "c.com"} {
			if err := p.Wait(ctx, host); err != nil {
				t.Fatal(err)
			}
		}
		if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
			t.Errorf("first hits on distinct hosts took %v, want no pacing delay", elapsed)
		}
	})

	t.Run("zero delay disables pacing", func(t *testing.T) {
		t.Parallel()

		p := NewPacer(0, nil)
		ctx := t.Context()

		start := time.Now()
		for i := 0; i < 100; i++ {
			if err := p.Wait(ctx, "example.com"); err != nil {
				t.Fatal(err)
			}
		}
		if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
			t.Errorf("unpaced waits took %v", elapsed)
		}
	})

	t.Run("per-host override takes precedence", func(t *testing.T) {
		t.Parallel()

		p := NewPacer(time.Hour, map[string]time.Duration{"Fast.com": time.Millisecond})
		ctx := t.Context()

		start := time.Now()
		for i := 0; i < 3; i++ {
			if err := p.Wait(ctx, "fast.com"); err != nil {
				t.Fatal(err)
			}
		}
		if elapsed := time.Since(start); elapsed > time.Second {
			t.Errorf("override host waits took %v, want milliseconds", elapsed)
		}
	})
}
