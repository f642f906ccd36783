package fetch

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sitemd/sitemd/internal/crawler"
)

// Dispatcher routes a crawl target to the fetcher matching its resolved mode
// and applies the configured retry count.
type Dispatcher struct {
	static  crawler.Fetcher
	browser crawler.Fetcher
	retries int
	logger  *zap.Logger
}

// NewDispatcher builds a Dispatcher. browser may be nil when rendering is
// disabled; browser-mode targets then fall back to the static strategy.
func NewDispatcher(static, browser crawler.Fetcher, retries int, logger *zap.Logger) *Dispatcher {
	if retries < 0 {
		retries = 0
	}
	return &Dispatcher{
		static:  static,
		browser: browser,
		retries: retries,
		logger:  logger,
	}
}

// Fetch obtains the HTML for target. The mode stays fixed across attempts;
// after retries are exhausted the last failure is returned as a *FetchError.
func (d *Dispatcher) Fetch(ctx context.Context, target crawler.CrawlTarget) (crawler.Page, error) {
	fetcher, mode := d.fetcherFor(target.Mode)

	var lastErr error
	attempts := d.retries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return crawler.Page{}, &crawler.FetchError{
				URL: target.URL, Mode: mode, Reason: "canceled", Err: err,
			}
		}
		page, err := fetcher.Fetch(ctx, target.URL)
		if err == nil && page.StatusCode >= 200 && page.StatusCode < 300 {
			return page, nil
		}
		if err == nil {
			err = fmt.Errorf("status %d", page.StatusCode)
		}
		lastErr = err
		if attempt < attempts-1 {
			d.logger.Warn("fetch attempt failed; retrying",
				zap.String("url", target.URL),
				zap.String("mode", mode.String()),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
		}
	}

	return crawler.Page{}, &crawler.FetchError{
		URL:    target.URL,
		Mode:   mode,
		Reason: fmt.Sprintf("failed after %d attempt(s)", attempts),
		Err:    lastErr,
	}
}

func (d *Dispatcher) fetcherFor(mode crawler.FetchMode) (crawler.Fetcher, crawler.FetchMode) {
	if mode == crawler.BrowserRender {
		if d.browser != nil {
			return d.browser, crawler.BrowserRender
		}
		d.logger.Warn("browser rendering unavailable; downgrading to static fetch")
	}
	return d.static, crawler.StaticHTTP
}
