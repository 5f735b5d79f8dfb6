package crawler

import (
	"net/url"
	"path"
	"strings"
	"sync"

	"github.com/nao1215/webmirror/internal/model"
)

// Frontier is the deduplicating work queue shared by all fetch workers.
// Push admits a URL at most once across the whole crawl, Pop blocks until
// a task is available or the frontier is closed, and Done signals that a
// popped task has been fully processed.
//
// Design decision: the frontier closes itself when the queue is empty and
// no popped task is still in flight. Workers therefore terminate naturally
// without an external idle detector; the coordinator only closes the
// frontier early for the page cap or cancellation. Closing discards any
// queued tasks, so Pop returns false immediately after Close even when
// work remains.
type Frontier struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []model.CrawlTask
	visited map[string]struct{}
	active  int
	closed  bool

	maxDepth       int
	sameDomainOnly bool
	startHost      string
	ignorePatterns []string
	followPatterns []string
}

// FrontierOption configures a Frontier.
type FrontierOption func(*Frontier)

// WithMaxDepth bounds admitted tasks to the given link depth. Zero or a
// negative value means unlimited depth.
func WithMaxDepth(depth int) FrontierOption {
	return func(f *Frontier) {
		f.maxDepth = depth
	}
}

// WithSameDomainOnly restricts admitted URLs to the given host.
func WithSameDomainOnly(host string) FrontierOption {
	return func(f *Frontier) {
		f.sameDomainOnly = true
		f.startHost = strings.ToLower(host)
	}
}

// WithIgnorePatterns rejects URLs whose path matches any of the glob
// patterns.
func WithIgnorePatterns(patterns []string) FrontierOption {
	return func(f *Frontier) {
		f.ignorePatterns = patterns
	}
}

// WithFollowPatterns admits only URLs whose path matches at least one of
// the glob patterns. An empty list admits every path.
func WithFollowPatterns(patterns []string) FrontierOption {
	return func(f *Frontier) {
		f.followPatterns = patterns
	}
}

// NewFrontier creates an empty frontier.
func NewFrontier(opts ...FrontierOption) *Frontier {
	f := &Frontier{
		visited: make(map[string]struct{}),
	}
	f.cond = sync.NewCond(&f.mu)
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Push offers a task to the frontier. It returns true only when the task
// was admitted: the frontier is open, the URL has not been seen before,
// the scheme is http or https, and the task passes the depth, domain, and
// pattern filters. The duplicate check and the enqueue happen under one
// lock, so two workers pushing the same URL concurrently admit exactly one.
func (f *Frontier) Push(task model.CrawlTask) bool {
	u, err := url.Parse(task.URL)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	if f.maxDepth > 0 && task.Depth > f.maxDepth {
		return false
	}
	if f.sameDomainOnly && strings.ToLower(u.Host) != f.startHost {
		return false
	}
	if !f.pathAllowed(u.Path) {
		return false
	}

	key := model.VisitedKey(task.URL)

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return false
	}
	if _, ok := f.visited[key]; ok {
		return false
	}
	f.visited[key] = struct{}{}
	f.queue = append(f.queue, task)
	f.cond.Signal()
	return true
}

// Requeue puts an already-visited task back on the queue. It is used when
// a server answers 429 and the task must be retried later without
// consuming its retry budget. The visited check is skipped on purpose.
func (f *Frontier) Requeue(task model.CrawlTask) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return false
	}
	f.queue = append(f.queue, task)
	f.cond.Signal()
	return true
}

// Pop blocks until a task is available or the frontier is closed. The
// second return value is false once the frontier is closed; any tasks
// still queued at that point are discarded.
func (f *Frontier) Pop() (model.CrawlTask, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for !f.closed && len(f.queue) == 0 {
		f.cond.Wait()
	}
	if f.closed {
		return model.CrawlTask{}, false
	}
	task := f.queue[0]
	f.queue = f.queue[1:]
	f.active++
	return task, true
}

// Done marks one popped task as fully processed. When the queue is empty
// and no task remains in flight, the frontier closes itself and every
// blocked Pop returns. A worker must push all children of a task before
// calling Done, otherwise the frontier could close while work remains.
func (f *Frontier) Done() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.active--
	if f.active <= 0 && len(f.queue) == 0 && !f.closed {
		f.closed = true
		f.cond.Broadcast()
	}
}

// Close irrevocably stops the frontier. Queued tasks are dropped and all
// blocked Pop calls return false. Close is idempotent.
func (f *Frontier) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}
	f.closed = true
	f.cond.Broadcast()
}

// Visited reports whether the URL has already been admitted as a page.
// The asset downloader uses it to keep page and asset writes from
// colliding on the same URL.
func (f *Frontier) Visited(rawURL string) bool {
	key := model.VisitedKey(rawURL)

	f.mu.Lock()
	defer f.mu.Unlock()

	_, ok := f.visited[key]
	return ok
}

// VisitedCount returns the number of distinct URLs admitted so far.
func (f *Frontier) VisitedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.visited)
}

// PendingCount returns the number of queued tasks not yet popped.
func (f *Frontier) PendingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue)
}

// pathAllowed applies the follow and ignore glob patterns to a URL path.
// Ignore wins over follow when both match.
func (f *Frontier) pathAllowed(urlPath string) bool {
	if urlPath == "" {
		urlPath = "/"
	}
	for _, pattern := range f.ignorePatterns {
		if matchPattern(pattern, urlPath) {
			return false
		}
	}
	if len(f.followPatterns) == 0 {
		return true
	}
	for _, pattern := range f.followPatterns {
		if matchPattern(pattern, urlPath) {
			return true
		}
	}
	return false
}

// matchPattern matches a URL path against a glob pattern. A pattern
// without a slash matches against the final path element, and a trailing
// "/*" matches the whole subtree.
func matchPattern(pattern, urlPath string) bool {
	if pattern == "" {
		return false
	}
	if strings.HasSuffix(pattern, "/*") {
		prefix := strings.TrimSuffix(pattern, "/*")
		return urlPath == prefix || strings.HasPrefix(urlPath, prefix+"/")
	}
	if !strings.Contains(pattern, "/") {
		if ok, err := path.Match(pattern, path.Base(urlPath)); err == nil && ok {
			return true
		}
		return false
	}
	if ok, err := path.Match(pattern, urlPath); err == nil && ok {
		return true
	}
	return false
}
