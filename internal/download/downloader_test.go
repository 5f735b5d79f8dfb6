package download

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/nao1215/webmirror/internal/fetch"
	"github.com/nao1215/webmirror/internal/mirror"
	"github.com/nao1215/webmirror/internal/model"
)

// recordingSink collects asset records for assertions.
type recordingSink struct {
	mu      sync.Mutex
	records []*model.AssetRecord
}

func (s *recordingSink) AddAsset(record *model.AssetRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
}

func (s *recordingSink) all() []*model.AssetRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*model.AssetRecord(nil), s.records...)
}

func newTestDownloader(t *testing.T, client *http.Client, sink Sink, opts ...Option) *Downloader {
	t.Helper()
	store, err := mirror.NewStore(t.TempDir(), false)
	if err != nil {
		t.Fatal(err)
	}
	fetcher := fetch.NewFetcher(client)
	opts = append([]Option{WithBackoff(fetch.NewBackoff(time.Millisecond, time.Second))}, opts...)
	return NewDownloader(t.Context(), fetcher, store, semaphore.NewWeighted(4), sink, opts...)
}

func TestDownloader(t *testing.T) {
	t.Parallel()

	t.Run("downloads an asset and records the outcome", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/css")
			fmt.Fprint(w, "body { color: red }")
		}))
		defer srv.Close()

		sink := &recordingSink{}
		d := newTestDownloader(t, srv.Client(), sink)

		if !d.Enqueue(model.AssetRef{URL: srv.URL + "/style.css", Kind: model.AssetCSS}) {
			t.Fatal("Enqueue should accept a new URL")
		}
		d.Wait()

		records := sink.all()
		if len(records) != 1 {
			t.Fatalf("got %d records, want 1", len(records))
		}
		rec := records[0]
		if rec.Failed() {
			t.Fatalf("download failed: %s", rec.Error)
		}
		if rec.Kind != model.AssetCSS {
			t.Errorf("Kind = %q, want css", rec.Kind)
		}
		if rec.Checksum == "" || rec.ByteSize == 0 {
			t.Error("checksum and size should be recorded")
		}
		// LocalPath is relative to the mirror's output root.
		if _, err := os.Stat(filepath.Join(d.store.Root(), rec.LocalPath)); err != nil {
			t.Errorf("asset file missing: %v", err)
		}
	})

	t.Run("downloads resources referenced from stylesheets", func(t *testing.T) {
		t.Parallel()

		mux := http.NewServeMux()
		mux.HandleFunc("/css/site.css", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/css")
			fmt.Fprint(w, `@font-face { src: url("/fonts/a.woff2"); }
body { background: url('../img/bg.png'); }
.icon { background: url(data:image/png;base64,iVBORw0KGgo=); }`)
		})
		mux.HandleFunc("/fonts/a.woff2", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "font/woff2")
			fmt.Fprint(w, "wOF2")
		})
		mux.HandleFunc("/img/bg.png", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "image/png")
			fmt.Fprint(w, "\x89PNG fake")
		})
		srv := httptest.NewServer(mux)
		defer srv.Close()

		sink := &recordingSink{}
		d := newTestDownloader(t, srv.Client(), sink)

		d.Enqueue(model.AssetRef{URL: srv.URL + "/css/site.css", Kind: model.AssetCSS})
		d.Wait()

		records := sink.all()
		if len(records) != 3 {
			t.Fatalf("got %d records, want 3 (stylesheet plus two references)", len(records))
		}
		kinds := make([]string, 0, len(records))
		for _, rec := range records {
			if rec.Failed() {
				t.Errorf("download of %s failed: %s", rec.URL, rec.Error)
			}
			kinds = append(kinds, string(rec.Kind))
		}
		sort.Strings(kinds)
		want := []string{string(model.AssetCSS), string(model.AssetFont), string(model.AssetImage)}
		if !reflect.DeepEqual(kinds, want) {
			t.Errorf("kinds = %v, want %v", kinds, want)
		}
	})

	t.Run("downloads each URL at most once", func(t *testing.T) {
		t.Parallel()

		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			fmt.Fprint(w, "data")
		}))
		defer srv.Close()

		sink := &recordingSink{}
		d := newTestDownloader(t, srv.Client(), sink)

		ref := model.AssetRef{URL: srv.URL + "/a.js", Kind: model.AssetJavaScript}
		if !d.Enqueue(ref) {
			t.Fatal("first Enqueue should be accepted")
		}
		if d.Enqueue(ref) {
			t.Error("second Enqueue of the same URL should be rejected")
		}
		if d.Enqueue(model.AssetRef{URL: srv.URL + "/a.js#v2", Kind: model.AssetJavaScript}) {
			t.Error("fragment variant should be a duplicate")
		}
		d.Wait()

		if got := hits.Load(); got != 1 {
			t.Errorf("server saw %d requests, want 1", got)
		}
		if len(sink.all()) != 1 {
			t.Errorf("got %d records, want 1", len(sink.all()))
		}
	})

	t.Run("skips URLs already claimed as pages", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, "data")
		}))
		defer srv.Close()

		sink := &recordingSink{}
		d := newTestDownloader(t, srv.Client(), sink,
			WithPageVisited(func(string) bool { return true }))

		if d.Enqueue(model.AssetRef{URL: srv.URL + "/page", Kind: model.AssetOther}) {
			t.Error("URL claimed as a page should be rejected")
		}
		d.Wait()

		if len(sink.all()) != 0 {
			t.Error("no record should be produced for a skipped URL")
		}
	})

	t.Run("retries transient failures", func(t *testing.T) {
		t.Parallel()

		var attempts atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if attempts.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			fmt.Fprint(w, "eventually")
		}))
		defer srv.Close()

		sink := &recordingSink{}
		d := newTestDownloader(t, srv.Client(), sink, WithRetryLimit(3))

		d.Enqueue(model.AssetRef{URL: srv.URL + "/flaky.js", Kind: model.AssetJavaScript})
		d.Wait()

		records := sink.all()
		if len(records) != 1 || records[0].Failed() {
			t.Fatal("download should eventually succeed")
		}
		if got := attempts.Load(); got != 3 {
			t.Errorf("server saw %d attempts, want 3", got)
		}
	})

	t.Run("does not retry definitive client errors", func(t *testing.T) {
		t.Parallel()

		var attempts atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attempts.Add(1)
			http.NotFound(w, r)
		}))
		defer srv.Close()

		sink := &recordingSink{}
		d := newTestDownloader(t, srv.Client(), sink, WithRetryLimit(3))

		d.Enqueue(model.AssetRef{URL: srv.URL + "/gone.png", Kind: model.AssetImage})
		d.Wait()

		records := sink.all()
		if len(records) != 1 {
			t.Fatalf("got %d records, want 1", len(records))
		}
		if records[0].Error != model.ErrorKindHTTP {
			t.Errorf("error kind = %q, want %q", records[0].Error, model.ErrorKindHTTP)
		}
		if got := attempts.Load(); got != 1 {
			t.Errorf("server saw %d attempts, want 1", got)
		}
	})

	t.Run("refines the kind from the response content type", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "image/png")
			fmt.Fprint(w, "\x89PNG fake")
		}))
		defer srv.Close()

		sink := &recordingSink{}
		d := newTestDownloader(t, srv.Client(), sink)

		// Referenced from a <source> tag, so discovery guessed "other".
		d.Enqueue(model.AssetRef{URL: srv.URL + "/pic", Kind: model.AssetOther})
		d.Wait()

		records := sink.all()
		if len(records) != 1 || records[0].Kind != model.AssetImage {
			t.Error("content type should refine the asset kind to image")
		}
	})

	t.Run("direct records claim the dedup keyspace", func(t *testing.T) {
		t.Parallel()

		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			fmt.Fprint(w, "data")
		}))
		defer srv.Close()

		sink := &recordingSink{}
		d := newTestDownloader(t, srv.Client(), sink)

		d.RecordDirect(srv.URL+"/file.bin", &fetch.Response{
			StatusCode:  http.StatusOK,
			ContentType: "application/octet-stream",
			Body:        []byte("data"),
		})
		if d.Enqueue(model.AssetRef{URL: srv.URL + "/file.bin", Kind: model.AssetOther}) {
			t.Error("Enqueue after RecordDirect should be rejected")
		}
		d.Wait()

		if got := hits.Load(); got != 0 {
			t.Errorf("server saw %d requests, want 0", got)
		}
		if len(sink.all()) != 1 {
			t.Errorf("got %d records, want 1", len(sink.all()))
		}
	})

	t.Run("rejects work once the context is cancelled", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, "data")
		}))
		defer srv.Close()

		ctx, cancel := context.WithCancel(t.Context())
		store, err := mirror.NewStore(t.TempDir(), false)
		if err != nil {
			t.Fatal(err)
		}
		sink := &recordingSink{}
		d := NewDownloader(ctx, fetch.NewFetcher(srv.Client()), store, semaphore.NewWeighted(1), sink)

		cancel()
		if d.Enqueue(model.AssetRef{URL: srv.URL + "/late.css", Kind: model.AssetCSS}) {
			t.Error("Enqueue after cancellation should be rejected")
		}
		d.Wait()
	})
}
