package crawler

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// FetchMode selects the strategy used to obtain a page's HTML.
type FetchMode int

// Fetch modes, resolved once per crawl target before fetching.
const (
	// StaticHTTP issues a plain GET without executing page scripts.
	StaticHTTP FetchMode = iota
	// BrowserRender loads the page in a headless browser and waits for
	// client-side rendering before extracting the DOM.
	BrowserRender
)

// String implements fmt.Stringer.
func (m FetchMode) String() string {
	switch m {
	case BrowserRender:
		return "browser"
	default:
		return "static"
	}
}

// ParseFetchMode maps a config/CLI string to a FetchMode.
func ParseFetchMode(s string) (FetchMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "static", "http", "ssr":
		return StaticHTTP, nil
	case "browser", "chrome", "spa":
		return BrowserRender, nil
	default:
		return StaticHTTP, fmt.Errorf("unknown fetch mode %q", s)
	}
}

// CrawlTarget is one page queued for processing. Depth records the sitemap
// nesting level at which the URL was discovered and is informational only.
type CrawlTarget struct {
	URL   string
	Mode  FetchMode
	Depth int
}

// Page is the result returned by a Fetcher implementation.
type Page struct {
	URL         string
	FinalURL    string
	StatusCode  int
	Headers     http.Header
	Body        []byte
	Duration    time.Duration
	UsedBrowser bool
}

// ContentLength returns the body size in bytes.
func (p Page) ContentLength() int {
	return len(p.Body)
}

// Fetcher fetches a URL and returns the page body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (Page, error)
}

// ConversionResult is the output of the HTML to Markdown converter.
type ConversionResult struct {
	URL      string
	Markdown string
	Warnings []string
}

// PersistedFile describes one Markdown artifact written to disk.
type PersistedFile struct {
	Path  string
	URL   string
	Bytes int
}
