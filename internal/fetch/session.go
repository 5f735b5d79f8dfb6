package fetch

import (
	"strings"

	"github.com/nao1215/webmirror/internal/config"
)

// SessionProvider supplies request headers and cookies for a target host.
// This is the only way authentication enters the crawl engine: the core
// never manages login flows or credential storage, it just attaches
// whatever the provider returns to outgoing requests for that host.
//
// Implementations must be safe for concurrent use by multiple workers.
type SessionProvider interface {
	// HeadersFor returns the extra request headers for the given host,
	// or nil when the host needs none. A "Cookie" entry carries cookies.
	HeadersFor(host string) map[string]string
}

// ConfigSessionProvider serves per-host headers and cookies from the
// .webmirror configuration file.
type ConfigSessionProvider struct {
	file *config.File
}

// NewConfigSessionProvider wraps a loaded site-config file. A nil file
// yields a provider that returns nothing for every host.
func NewConfigSessionProvider(file *config.File) *ConfigSessionProvider {
	return &ConfigSessionProvider{file: file}
}

// HeadersFor implements SessionProvider.
func (p *ConfigSessionProvider) HeadersFor(host string) map[string]string {
	if p == nil || p.file == nil {
		return nil
	}

	site := p.file.GetSiteConfig(strings.ToLower(host))
	if site.Cookie == "" && len(site.Headers) == 0 {
		return nil
	}

	headers := make(map[string]string, len(site.Headers)+1)
	for k, v := range site.Headers {
		headers[k] = v
	}
	if site.Cookie != "" {
		headers["Cookie"] = site.Cookie
	}
	return headers
}

// StaticSessionProvider returns the same headers for every host. Useful in
// tests and for single-site crawls with a known session.
type StaticSessionProvider map[string]string

// HeadersFor implements SessionProvider.
func (p StaticSessionProvider) HeadersFor(string) map[string]string {
	if len(p) == 0 {
		return nil
	}
	return p
}
