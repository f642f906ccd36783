// Package pipeline coordinates one crawl run: sitemap discovery, mode
// resolution, fetching, Markdown conversion, and persistence.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sitemd/sitemd/internal/crawler"
	"github.com/sitemd/sitemd/internal/fetch"
	"github.com/sitemd/sitemd/internal/markdown"
	"github.com/sitemd/sitemd/internal/metrics"
	"github.com/sitemd/sitemd/internal/policy"
	"github.com/sitemd/sitemd/internal/sitemap"
	"github.com/sitemd/sitemd/internal/writer"
)

// Stage names the furthest point a page reached in the pipeline.
type Stage string

// Pipeline stages in processing order.
const (
	StageDiscovered   Stage = "discovered"
	StageModeResolved Stage = "mode_resolved"
	StageFetched      Stage = "fetched"
	StageConverted    Stage = "converted"
	StageWritten      Stage = "written"
)

// Outcome records the result for one crawl target.
type Outcome struct {
	URL   string
	Mode  crawler.FetchMode
	Stage Stage
	Path  string
	Err   error
}

// Failed reports whether the page stopped short of being written.
func (o Outcome) Failed() bool {
	return o.Err != nil
}

// Summary aggregates a whole run.
type Summary struct {
	RunID      string
	Seed       string
	Discovered int
	Written    int
	Failed     int
	Failures   []Outcome
	Elapsed    time.Duration
}

// Config carries the per-run knobs.
type Config struct {
	// MaxPages caps how many discovered URLs are processed. Zero means no cap.
	MaxPages int
	// Delay is the pause enforced between page fetches across all workers.
	Delay time.Duration
	// Concurrency is the number of pages processed in parallel. Values below
	// one run sequentially.
	Concurrency int
	// ForceMode, when non-nil, bypasses domain policy resolution entirely.
	ForceMode *crawler.FetchMode
	// SitemapLimits bounds discovery.
	SitemapLimits sitemap.Limits
}

// Coordinator runs the crawl pipeline end to end.
type Coordinator struct {
	cfg        Config
	resolver   *policy.Resolver
	discoverer *sitemap.Discoverer
	dispatcher *fetch.Dispatcher
	robots     fetch.RobotsPolicy
	writer     *writer.Writer
	logger     *zap.Logger
}

// New wires a Coordinator from its collaborators.
func New(
	cfg Config,
	resolver *policy.Resolver,
	discoverer *sitemap.Discoverer,
	dispatcher *fetch.Dispatcher,
	robots fetch.RobotsPolicy,
	w *writer.Writer,
	logger *zap.Logger,
) *Coordinator {
	return &Coordinator{
		cfg:        cfg,
		resolver:   resolver,
		discoverer: discoverer,
		dispatcher: dispatcher,
		robots:     robots,
		writer:     w,
		logger:     logger,
	}
}

// Run crawls seedURL. Individual page failures are tolerated and collected in
// the summary; Run itself fails only when discovery fails or the context is
// canceled before any scheduling happens.
func (c *Coordinator) Run(ctx context.Context, seedURL string) (Summary, error) {
	start := time.Now()
	summary := Summary{RunID: uuid.NewString(), Seed: seedURL}

	logger := c.logger.With(zap.String("run_id", summary.RunID))
	logger.Info("crawl starting", zap.String("seed", seedURL))

	targets, err := c.discoverer.Discover(ctx, seedURL, c.cfg.SitemapLimits)
	if err != nil {
		return summary, fmt.Errorf("discovering pages: %w", err)
	}
	metrics.SitemapURLsDiscovered.Add(float64(len(targets)))
	summary.Discovered = len(targets)

	if c.cfg.MaxPages > 0 && len(targets) > c.cfg.MaxPages {
		logger.Info("capping page count",
			zap.Int("discovered", len(targets)),
			zap.Int("max_pages", c.cfg.MaxPages),
		)
		targets = targets[:c.cfg.MaxPages]
	}

	c.resolveModes(targets)

	limiter := newLimiter(c.cfg.Delay)
	outcomes := make([]Outcome, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, c.cfg.Concurrency))
	for i, target := range targets {
		if err := limiter.Wait(ctx); err != nil {
			// Cancellation stops scheduling; pages already dispatched finish.
			for j := i; j < len(targets); j++ {
				outcomes[j] = Outcome{
					URL: targets[j].URL, Mode: targets[j].Mode,
					Stage: StageModeResolved, Err: err,
				}
			}
			break
		}
		g.Go(func() error {
			outcomes[i] = c.processPage(gctx, logger, target)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Warn("worker group error", zap.Error(err))
	}

	for _, o := range outcomes {
		if o.Failed() {
			summary.Failed++
			summary.Failures = append(summary.Failures, o)
			metrics.PagesFailedTotal.WithLabelValues(string(o.Stage)).Inc()
			continue
		}
		summary.Written++
	}
	summary.Elapsed = time.Since(start)

	logger.Info("crawl finished",
		zap.Int("discovered", summary.Discovered),
		zap.Int("written", summary.Written),
		zap.Int("failed", summary.Failed),
		zap.Duration("elapsed", summary.Elapsed),
	)
	if err := ctx.Err(); err != nil {
		return summary, fmt.Errorf("crawl interrupted: %w", err)
	}
	return summary, nil
}

// resolveModes assigns each target its fetch mode, either the forced one or
// the domain policy's decision.
func (c *Coordinator) resolveModes(targets []crawler.CrawlTarget) {
	for i := range targets {
		if c.cfg.ForceMode != nil {
			targets[i].Mode = *c.cfg.ForceMode
			continue
		}
		domain, err := crawler.DomainOf(targets[i].URL)
		if err != nil {
			c.logger.Debug("cannot extract domain; using static fetch",
				zap.String("url", targets[i].URL),
				zap.Error(err),
			)
			targets[i].Mode = crawler.StaticHTTP
			continue
		}
		targets[i].Mode = c.resolver.Resolve(domain)
	}
}

// processPage takes one target through fetch, convert, and write. The
// returned outcome carries the furthest stage reached.
func (c *Coordinator) processPage(ctx context.Context, logger *zap.Logger, target crawler.CrawlTarget) Outcome {
	out := Outcome{URL: target.URL, Mode: target.Mode, Stage: StageModeResolved}

	if !c.robots.Allowed(ctx, target.URL) {
		logger.Info("page blocked by robots.txt", zap.String("url", target.URL))
		out.Err = errors.New("blocked by robots.txt")
		return out
	}

	page, err := c.dispatcher.Fetch(ctx, target)
	if err != nil {
		logger.Warn("page fetch failed",
			zap.String("url", target.URL),
			zap.String("mode", target.Mode.String()),
			zap.Error(err),
		)
		out.Err = err
		return out
	}
	out.Stage = StageFetched
	metrics.PagesFetchedTotal.WithLabelValues(target.Mode.String()).Inc()
	metrics.FetchBytesTotal.WithLabelValues(target.Mode.String()).Add(float64(page.ContentLength()))
	metrics.FetchDurationSeconds.WithLabelValues(target.Mode.String()).Observe(page.Duration.Seconds())

	md, warnings := markdown.Convert(string(page.Body))
	for _, w := range warnings {
		logger.Debug("conversion warning", zap.String("url", target.URL), zap.String("warning", w))
	}
	out.Stage = StageConverted

	file, err := c.writer.Write(target.URL, md)
	if err != nil {
		logger.Error("page write failed", zap.String("url", target.URL), zap.Error(err))
		out.Err = err
		return out
	}
	out.Stage = StageWritten
	out.Path = file.Path
	metrics.PagesWrittenTotal.Inc()

	logger.Info("page written",
		zap.String("url", target.URL),
		zap.String("mode", target.Mode.String()),
		zap.String("path", file.Path),
		zap.Int("bytes", file.Bytes),
	)
	return out
}

// newLimiter builds the shared pacer. The first fetch proceeds immediately;
// later ones wait out the configured delay.
func newLimiter(delay time.Duration) *rate.Limiter {
	if delay <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(delay), 1)
}
