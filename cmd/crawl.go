package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sitemd/sitemd/internal/api"
	"github.com/sitemd/sitemd/internal/config"
	"github.com/sitemd/sitemd/internal/crawler"
	"github.com/sitemd/sitemd/internal/fetch"
	"github.com/sitemd/sitemd/internal/logging"
	"github.com/sitemd/sitemd/internal/pipeline"
	"github.com/sitemd/sitemd/internal/policy"
	"github.com/sitemd/sitemd/internal/sitemap"
	"github.com/sitemd/sitemd/internal/writer"
)

func newCrawlCmd() *cobra.Command {
	var (
		outputDir string
		modeFlag  string
	)

	cmd := &cobra.Command{
		Use:   "crawl <url>",
		Short: "Crawl one site and write its pages as Markdown files",
		Long: `Discovers the site's pages via robots.txt and sitemaps, fetches each
page with the strategy the domain policy selects, converts the HTML to
Markdown, and writes one file per page. Individual page failures are
reported in the summary but do not fail the run.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCrawl(cmd.Context(), args[0], outputDir, modeFlag)
		},
	}

	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "output directory (overrides config)")
	cmd.Flags().StringVarP(&modeFlag, "mode", "m", "", "force fetch mode for all pages (static or browser)")
	return cmd
}

func runCrawl(ctx context.Context, seedURL, outputDir, modeFlag string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if outputDir != "" {
		cfg.Crawler.OutputDir = outputDir
	}

	var forceMode *crawler.FetchMode
	if modeFlag != "" {
		mode, err := crawler.ParseFetchMode(modeFlag)
		if err != nil {
			return err
		}
		forceMode = &mode
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	coord, cleanup, err := buildCoordinator(cfg, forceMode, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	if cfg.Metrics.Listen != "" {
		srv := api.NewServer(cfg.Metrics.Listen, logger)
		srv.Start()
		defer func() { _ = srv.Shutdown(context.Background()) }()
	}

	summary, err := coord.Run(ctx, seedURL)
	if err != nil {
		return err
	}

	fmt.Printf("Crawl %s finished: %d discovered, %d written, %d failed in %s\n",
		summary.RunID, summary.Discovered, summary.Written, summary.Failed, summary.Elapsed.Round(0))
	for _, f := range summary.Failures {
		fmt.Printf("  failed %s (%s): %v\n", f.URL, f.Mode, f.Err)
	}
	return nil
}

// buildCoordinator wires the crawl pipeline from configuration. The returned
// cleanup releases the headless browser if one was started.
func buildCoordinator(cfg config.Config, forceMode *crawler.FetchMode, logger *zap.Logger) (*pipeline.Coordinator, func(), error) {
	policyCfg, err := cfg.PolicyConfig()
	if err != nil {
		return nil, nil, err
	}
	resolver := policy.NewResolver(policyCfg, logger)

	discoverer := sitemap.New(
		&http.Client{Timeout: cfg.HTTPTimeout()},
		cfg.Crawler.UserAgent,
		logger,
	)

	static := fetch.NewStatic(fetch.StaticConfig{
		UserAgent: cfg.Crawler.UserAgent,
		Timeout:   cfg.HTTPTimeout(),
	}, logger)

	cleanup := func() {}
	var browser crawler.Fetcher
	if cfg.Render.Enabled {
		b, err := fetch.NewBrowser(fetch.BrowserConfig{
			UserAgent:   cfg.Crawler.UserAgent,
			MaxParallel: cfg.Render.MaxParallel,
			NavTimeout:  cfg.NavTimeout(),
			Settle:      cfg.Settle(),
		}, logger)
		if err != nil {
			// Rendering is best effort; browser targets fall back to static.
			logger.Warn("headless browser unavailable", zap.Error(err))
		} else {
			browser = b
			cleanup = func() { b.Close() }
		}
	}

	dispatcher := fetch.NewDispatcher(static, browser, cfg.Crawler.Retries, logger)
	robots := fetch.NewRobotsEnforcer(cfg.Crawler.RespectRobots, cfg.Crawler.UserAgent, logger)

	w, err := writer.New(cfg.Crawler.OutputDir, logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	coord := pipeline.New(
		pipeline.Config{
			MaxPages:    cfg.Crawler.MaxPages,
			Delay:       cfg.Delay(),
			Concurrency: cfg.Crawler.Concurrency,
			ForceMode:   forceMode,
			SitemapLimits: sitemap.Limits{
				MaxDepth: cfg.Sitemap.MaxDepth,
				MaxURLs:  cfg.Sitemap.MaxURLs,
			},
		},
		resolver,
		discoverer,
		dispatcher,
		robots,
		w,
		logger,
	)
	return coord, cleanup, nil
}
