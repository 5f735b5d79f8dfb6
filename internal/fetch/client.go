package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/proxy"
)

// ErrInvalidProxyAddress is returned when the SOCKS5 proxy address is not
// in "host:port" form.
var ErrInvalidProxyAddress = errors.New("invalid proxy address: must be host:port")

// NewHTTPClient builds the HTTP client shared by all fetch workers and the
// asset downloader.
//
// Design decision: The client carries no overall http.Client timeout;
// per-request deadlines are applied via context by the caller. A client
// timeout would race with request contexts and produce confusing error
// classification.
//
// When proxyAddress is non-empty all connections are dialed through a
// SOCKS5 proxy. This is what makes .onion mirrors work: point it at a Tor
// daemon's SOCKS port and the crawl never touches the clearnet resolver.
func NewHTTPClient(proxyAddress string) (*http.Client, error) {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		// Compression is negotiated and decoded by the Fetcher so that
		// brotli is supported alongside gzip and deflate.
		DisableCompression: true,
	}

	if proxyAddress != "" {
		if !isValidProxyAddress(proxyAddress) {
			return nil, ErrInvalidProxyAddress
		}
		// nil auth: Tor's SOCKS port typically doesn't require it.
		dialer, err := proxy.SOCKS5("tcp", proxyAddress, nil, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
		}
		transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			if cd, ok := dialer.(proxy.ContextDialer); ok {
				return cd.DialContext(ctx, network, addr)
			}
			return dialer.Dial(network, addr)
		}
	}

	return &http.Client{Transport: transport}, nil
}

// isValidProxyAddress checks if the address is in valid "host:port" format.
// A simple check beats a full URL parser here because the format is very
// specific: no scheme, no path, just host and port.
func isValidProxyAddress(address string) bool {
	host, port, err := net.SplitHostPort(address)
	if err != nil || host == "" || port == "" {
		return false
	}
	n, err := strconv.Atoi(port)
	if err != nil {
		return false
	}
	return n >= 1 && n <= 65535 && !strings.Contains(host, "/")
}
