// Package sitemap discovers a site's page set via robots.txt and sitemap
// traversal.
package sitemap

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"

	"github.com/sitemd/sitemd/internal/crawler"
)

// maxSitemapBytes bounds how much of a single sitemap document is read.
const maxSitemapBytes = 16 << 20

// Limits bounds sitemap traversal.
type Limits struct {
	// MaxDepth is the maximum sitemap index nesting level expanded.
	MaxDepth int
	// MaxURLs caps the total number of page URLs returned; traversal
	// truncates at the cap rather than failing.
	MaxURLs int
}

// Discoverer locates sitemaps for a seed URL and expands them into an
// ordered, deduplicated page URL list.
type Discoverer struct {
	client    *http.Client
	userAgent string
	logger    *zap.Logger
}

// New builds a Discoverer using the given HTTP client.
func New(client *http.Client, userAgent string, logger *zap.Logger) *Discoverer {
	if client == nil {
		client = http.DefaultClient
	}
	return &Discoverer{
		client:    client,
		userAgent: userAgent,
		logger:    logger,
	}
}

// Discover returns the crawl targets for seedURL. Sitemap URLs come from
// robots.txt directives, falling back to a /sitemap.xml probe, falling back
// to the seed URL itself. It fails only when the seed URL is unusable.
func (d *Discoverer) Discover(ctx context.Context, seedURL string, limits Limits) ([]crawler.CrawlTarget, error) {
	seed, err := url.Parse(strings.TrimSpace(seedURL))
	if err != nil {
		return nil, fmt.Errorf("parse seed url: %w", err)
	}
	if seed.Scheme == "" {
		seed.Scheme = "https"
	}
	if seed.Host == "" {
		return nil, fmt.Errorf("seed url %q has no host", seedURL)
	}

	roots := d.sitemapsFromRobots(ctx, seed)
	if len(roots) == 0 {
		roots = d.probeDefaultSitemap(ctx, seed)
	}
	if len(roots) == 0 {
		d.logger.Info("no sitemap found; crawling seed URL only", zap.String("seed", seed.String()))
		normalized, err := crawler.NormalizeURL(seed.String())
		if err != nil {
			return nil, fmt.Errorf("normalize seed: %w", err)
		}
		return []crawler.CrawlTarget{{URL: normalized}}, nil
	}

	return d.expand(ctx, roots, limits), nil
}

// sitemapsFromRobots reads the seed host's robots.txt and returns any
// Sitemap directive URLs. Missing or unreadable robots.txt yields nil.
func (d *Discoverer) sitemapsFromRobots(ctx context.Context, seed *url.URL) []string {
	robotsURL := seed.Scheme + "://" + seed.Host + "/robots.txt"
	status, body, err := d.get(ctx, robotsURL)
	if err != nil {
		d.logger.Warn("robots.txt unreadable", zap.String("url", robotsURL), zap.Error(err))
		return nil
	}
	data, err := robotstxt.FromStatusAndBytes(status, body)
	if err != nil {
		d.logger.Warn("robots.txt unparsable", zap.String("url", robotsURL), zap.Error(err))
		return nil
	}
	if len(data.Sitemaps) > 0 {
		d.logger.Info("sitemaps found in robots.txt",
			zap.String("url", robotsURL),
			zap.Int("count", len(data.Sitemaps)),
		)
	}
	return data.Sitemaps
}

// probeDefaultSitemap checks the conventional /sitemap.xml location.
func (d *Discoverer) probeDefaultSitemap(ctx context.Context, seed *url.URL) []string {
	probeURL := seed.Scheme + "://" + seed.Host + "/sitemap.xml"
	status, _, err := d.get(ctx, probeURL)
	if err != nil || status < 200 || status >= 300 {
		d.logger.Debug("no sitemap at conventional path", zap.String("url", probeURL))
		return nil
	}
	d.logger.Info("sitemap found at conventional path", zap.String("url", probeURL))
	return []string{probeURL}
}

type pendingSitemap struct {
	url   string
	depth int
}

// expand walks the sitemap tree breadth-first. A visited set guards against
// cycles, depth is bounded by limits.MaxDepth, and the page list is truncated
// at limits.MaxURLs.
func (d *Discoverer) expand(ctx context.Context, roots []string, limits Limits) []crawler.CrawlTarget {
	work := make([]pendingSitemap, 0, len(roots))
	for _, r := range roots {
		work = append(work, pendingSitemap{url: r, depth: 0})
	}

	visited := make(map[string]struct{})
	seen := make(map[string]struct{})
	var targets []crawler.CrawlTarget

	for len(work) > 0 {
		if ctx.Err() != nil {
			break
		}
		if limits.MaxURLs > 0 && len(targets) >= limits.MaxURLs {
			d.logger.Warn("sitemap URL cap reached; truncating", zap.Int("max_urls", limits.MaxURLs))
			break
		}

		current := work[0]
		work = work[1:]

		key := strings.TrimSpace(current.url)
		if key == "" {
			continue
		}
		if _, ok := visited[key]; ok {
			continue
		}
		visited[key] = struct{}{}

		if limits.MaxDepth > 0 && current.depth > limits.MaxDepth {
			d.logger.Warn("sitemap nesting too deep; skipping branch",
				zap.String("url", key),
				zap.Int("depth", current.depth),
			)
			continue
		}

		children, pages, err := d.fetchSitemap(ctx, key)
		if err != nil {
			d.logger.Warn("skipping sitemap branch", zap.String("url", key), zap.Error(err))
			continue
		}

		for _, child := range children {
			work = append(work, pendingSitemap{url: child, depth: current.depth + 1})
		}
		for _, page := range pages {
			if limits.MaxURLs > 0 && len(targets) >= limits.MaxURLs {
				break
			}
			normalized, err := crawler.NormalizeURL(page)
			if err != nil {
				d.logger.Debug("ignoring malformed page URL", zap.String("url", page))
				continue
			}
			if _, ok := seen[normalized]; ok {
				continue
			}
			seen[normalized] = struct{}{}
			targets = append(targets, crawler.CrawlTarget{URL: normalized, Depth: current.depth})
		}
	}

	d.logger.Info("sitemap discovery complete",
		zap.Int("sitemaps_visited", len(visited)),
		zap.Int("urls", len(targets)),
	)
	return targets
}

// fetchSitemap retrieves one sitemap document and parses it as either a
// sitemapindex (returning children) or a urlset (returning page URLs).
func (d *Discoverer) fetchSitemap(ctx context.Context, sitemapURL string) (children, pages []string, err error) {
	status, body, err := d.get(ctx, sitemapURL)
	if err != nil {
		return nil, nil, err
	}
	if status < 200 || status >= 300 {
		return nil, nil, fmt.Errorf("sitemap returned status %d", status)
	}

	body, err = maybeGunzip(body)
	if err != nil {
		return nil, nil, fmt.Errorf("decompress sitemap: %w", err)
	}

	var index indexDoc
	if err := xml.Unmarshal(body, &index); err == nil {
		for _, entry := range index.Sitemaps {
			if loc := strings.TrimSpace(entry.Loc); loc != "" {
				children = append(children, loc)
			}
		}
		return children, nil, nil
	}

	var urlset urlsetDoc
	if err := xml.Unmarshal(body, &urlset); err != nil {
		return nil, nil, fmt.Errorf("parse sitemap xml: %w", err)
	}
	for _, entry := range urlset.URLs {
		if loc := strings.TrimSpace(entry.Loc); loc != "" {
			pages = append(pages, loc)
		}
	}
	return nil, pages, nil
}

func (d *Discoverer) get(ctx context.Context, rawURL string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("new request: %w", err)
	}
	if d.userAgent != "" {
		req.Header.Set("User-Agent", d.userAgent)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("get %s: %w", rawURL, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			d.logger.Debug("close response body", zap.Error(cerr))
		}
	}()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSitemapBytes))
	if err != nil {
		return 0, nil, fmt.Errorf("read body: %w", err)
	}
	return resp.StatusCode, body, nil
}

// maybeGunzip decompresses gzip payloads, for sitemaps served as .xml.gz.
func maybeGunzip(body []byte) ([]byte, error) {
	if len(body) < 2 || body[0] != 0x1f || body[1] != 0x8b {
		return body, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("gzip reader: %w", err)
	}
	defer func() { _ = zr.Close() }()
	out, err := io.ReadAll(io.LimitReader(zr, maxSitemapBytes))
	if err != nil {
		return nil, fmt.Errorf("gunzip: %w", err)
	}
	return out, nil
}
