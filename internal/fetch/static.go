// Package fetch obtains raw page HTML via the static HTTP or browser-render
// strategy.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/sitemd/sitemd/internal/crawler"
)

// StaticConfig controls the static HTTP fetcher.
type StaticConfig struct {
	UserAgent string
	Timeout   time.Duration
}

// Static fetches pages with a single plain GET via the Colly collector.
// It never executes page scripts.
type Static struct {
	cfg           StaticConfig
	baseCollector *colly.Collector
	logger        *zap.Logger
}

// NewStatic builds a Static fetcher.
func NewStatic(cfg StaticConfig, logger *zap.Logger) *Static {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	base := colly.NewCollector()
	base.IgnoreRobotsTxt = true // robots enforcement happens in the pipeline
	base.AllowURLRevisit = true
	if cfg.UserAgent != "" {
		base.UserAgent = cfg.UserAgent
	}
	base.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          64,
		MaxIdleConnsPerHost:   8,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.Timeout,
		ForceAttemptHTTP2:     true,
	})
	base.SetRequestTimeout(cfg.Timeout)

	return &Static{
		cfg:           cfg,
		baseCollector: base,
		logger:        logger,
	}
}

// Fetch executes a single HTTP GET. Non-2xx responses are errors.
func (s *Static) Fetch(ctx context.Context, rawURL string) (crawler.Page, error) {
	collector := s.baseCollector.Clone()

	var (
		page     crawler.Page
		fetchErr error
		once     sync.Once
	)
	start := time.Now()

	collector.OnResponse(func(r *colly.Response) {
		once.Do(func() {
			headers := http.Header{}
			if r.Headers != nil {
				headers = r.Headers.Clone()
			}
			page = crawler.Page{
				URL:        rawURL,
				FinalURL:   r.Request.URL.String(),
				StatusCode: r.StatusCode,
				Headers:    headers,
				Body:       append([]byte(nil), r.Body...),
				Duration:   time.Since(start),
			}
		})
	})
	collector.OnError(func(r *colly.Response, err error) {
		once.Do(func() {
			if err == nil {
				err = errors.New("unknown collector error")
			}
			status := 0
			if r != nil {
				status = r.StatusCode
			}
			if status != 0 {
				fetchErr = fmt.Errorf("status %d: %w", status, err)
			} else {
				fetchErr = err
			}
		})
	})

	done := make(chan error, 1)
	go func() {
		visitErr := collector.Visit(rawURL)
		collector.Wait()
		done <- visitErr
	}()

	select {
	case <-ctx.Done():
		return crawler.Page{}, fmt.Errorf("static fetch canceled: %w", ctx.Err())
	case visitErr := <-done:
		if fetchErr != nil {
			return crawler.Page{}, fetchErr
		}
		if visitErr != nil {
			return crawler.Page{}, fmt.Errorf("visit %s: %w", rawURL, visitErr)
		}
	}

	if page.StatusCode == 0 {
		return crawler.Page{}, errors.New("collector produced no response")
	}
	s.logger.Debug("static fetch complete",
		zap.String("url", rawURL),
		zap.Int("status", page.StatusCode),
		zap.Int("bytes", page.ContentLength()),
		zap.Duration("duration", page.Duration),
	)
	return page, nil
}
