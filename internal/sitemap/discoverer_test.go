package sitemap

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func urlsetBody(locs ...string) string {
	var b bytes.Buffer
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">`)
	for _, loc := range locs {
		fmt.Fprintf(&b, "<url><loc>%s</loc></url>", loc)
	}
	b.WriteString(`</urlset>`)
	return b.String()
}

func indexBody(locs ...string) string {
	var b bytes.Buffer
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">`)
	for _, loc := range locs {
		fmt.Fprintf(&b, "<sitemap><loc>%s</loc></sitemap>", loc)
	}
	b.WriteString(`</sitemapindex>`)
	return b.String()
}

func TestDiscoverViaRobots(t *testing.T) {
	t.Parallel()

	var srvURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/robots.txt":
			fmt.Fprintf(w, "User-agent: *\nAllow: /\nSitemap: %s/sitemap-index.xml\n", srvURL)
		case "/sitemap-index.xml":
			fmt.Fprint(w, indexBody(srvURL+"/sitemap-a.xml", srvURL+"/sitemap-b.xml"))
		case "/sitemap-a.xml":
			fmt.Fprint(w, urlsetBody(srvURL+"/page-1", srvURL+"/page-2/"))
		case "/sitemap-b.xml":
			// page-2 duplicated with different trailing slash; must dedupe.
			fmt.Fprint(w, urlsetBody(srvURL+"/page-2", srvURL+"/page-3"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()
	srvURL = srv.URL

	d := New(srv.Client(), "sitemd-test", zap.NewNop())
	targets, err := d.Discover(context.Background(), srv.URL, Limits{MaxDepth: 5, MaxURLs: 100})
	if err != nil {
		t.Fatalf("Discover error = %v", err)
	}

	want := []string{srvURL + "/page-1", srvURL + "/page-2", srvURL + "/page-3"}
	if len(targets) != len(want) {
		t.Fatalf("got %d targets %v, want %d", len(targets), targets, len(want))
	}
	for i, w := range want {
		if targets[i].URL != w {
			t.Fatalf("targets[%d] = %q, want %q", i, targets[i].URL, w)
		}
	}
}

func TestDiscoverDeterministicOrdering(t *testing.T) {
	t.Parallel()

	var srvURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/robots.txt":
			fmt.Fprintf(w, "Sitemap: %s/sitemap.xml\n", srvURL)
		case "/sitemap.xml":
			fmt.Fprint(w, urlsetBody(srvURL+"/c", srvURL+"/a", srvURL+"/b"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()
	srvURL = srv.URL

	d := New(srv.Client(), "sitemd-test", zap.NewNop())
	first, err := d.Discover(context.Background(), srv.URL, Limits{MaxDepth: 3, MaxURLs: 50})
	if err != nil {
		t.Fatalf("first Discover error = %v", err)
	}
	second, err := d.Discover(context.Background(), srv.URL, Limits{MaxDepth: 3, MaxURLs: 50})
	if err != nil {
		t.Fatalf("second Discover error = %v", err)
	}

	if len(first) != 3 || first[0].URL != srvURL+"/c" {
		t.Fatalf("expected document-order URLs, got %v", first)
	}
	for i := range first {
		if first[i].URL != second[i].URL {
			t.Fatalf("run mismatch at %d: %q vs %q", i, first[i].URL, second[i].URL)
		}
	}
}

func TestDiscoverSelfReferencingIndexTerminates(t *testing.T) {
	t.Parallel()

	var srvURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/robots.txt":
			fmt.Fprintf(w, "Sitemap: %s/sitemap.xml\n", srvURL)
		case "/sitemap.xml":
			// References itself plus one leaf.
			fmt.Fprint(w, indexBody(srvURL+"/sitemap.xml", srvURL+"/leaf.xml"))
		case "/leaf.xml":
			fmt.Fprint(w, urlsetBody(srvURL+"/only-page"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()
	srvURL = srv.URL

	d := New(srv.Client(), "sitemd-test", zap.NewNop())
	targets, err := d.Discover(context.Background(), srv.URL, Limits{MaxDepth: 10, MaxURLs: 100})
	if err != nil {
		t.Fatalf("Discover error = %v", err)
	}
	if len(targets) != 1 || targets[0].URL != srvURL+"/only-page" {
		t.Fatalf("expected single page despite cycle, got %v", targets)
	}
}

func TestDiscoverRespectsURLCap(t *testing.T) {
	t.Parallel()

	var srvURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/robots.txt":
			fmt.Fprintf(w, "Sitemap: %s/sitemap.xml\n", srvURL)
		case "/sitemap.xml":
			locs := make([]string, 0, 50)
			for i := 0; i < 50; i++ {
				locs = append(locs, fmt.Sprintf("%s/page-%d", srvURL, i))
			}
			fmt.Fprint(w, urlsetBody(locs...))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()
	srvURL = srv.URL

	d := New(srv.Client(), "sitemd-test", zap.NewNop())
	targets, err := d.Discover(context.Background(), srv.URL, Limits{MaxDepth: 3, MaxURLs: 7})
	if err != nil {
		t.Fatalf("Discover error = %v", err)
	}
	if len(targets) != 7 {
		t.Fatalf("expected truncation at 7 URLs, got %d", len(targets))
	}
}

func TestDiscoverRespectsDepthBound(t *testing.T) {
	t.Parallel()

	var srvURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/robots.txt":
			fmt.Fprintf(w, "Sitemap: %s/depth-0.xml\n", srvURL)
		case "/depth-0.xml":
			fmt.Fprint(w, indexBody(srvURL+"/depth-1.xml"))
		case "/depth-1.xml":
			fmt.Fprint(w, indexBody(srvURL+"/depth-2.xml"))
		case "/depth-2.xml":
			fmt.Fprint(w, urlsetBody(srvURL+"/too-deep"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()
	srvURL = srv.URL

	d := New(srv.Client(), "sitemd-test", zap.NewNop())
	targets, err := d.Discover(context.Background(), srv.URL, Limits{MaxDepth: 1, MaxURLs: 100})
	if err != nil {
		t.Fatalf("Discover error = %v", err)
	}
	if len(targets) != 0 {
		t.Fatalf("expected depth bound to prune leaf, got %v", targets)
	}
}

func TestDiscoverFallsBackToConventionalPath(t *testing.T) {
	t.Parallel()

	var srvURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sitemap.xml":
			fmt.Fprint(w, urlsetBody(srvURL+"/page"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()
	srvURL = srv.URL

	d := New(srv.Client(), "sitemd-test", zap.NewNop())
	targets, err := d.Discover(context.Background(), srv.URL, Limits{MaxDepth: 3, MaxURLs: 10})
	if err != nil {
		t.Fatalf("Discover error = %v", err)
	}
	if len(targets) != 1 || targets[0].URL != srvURL+"/page" {
		t.Fatalf("expected page from /sitemap.xml probe, got %v", targets)
	}
}

func TestDiscoverFallsBackToSeed(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	d := New(srv.Client(), "sitemd-test", zap.NewNop())
	targets, err := d.Discover(context.Background(), srv.URL+"/start", Limits{MaxDepth: 3, MaxURLs: 10})
	if err != nil {
		t.Fatalf("Discover error = %v", err)
	}
	if len(targets) != 1 || targets[0].URL != srv.URL+"/start" {
		t.Fatalf("expected seed-only crawl, got %v", targets)
	}
}

func TestDiscoverSkipsMalformedBranch(t *testing.T) {
	t.Parallel()

	var srvURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/robots.txt":
			fmt.Fprintf(w, "Sitemap: %s/broken.xml\nSitemap: %s/good.xml\n", srvURL, srvURL)
		case "/broken.xml":
			fmt.Fprint(w, "<urlset><url><loc>unclosed")
		case "/good.xml":
			fmt.Fprint(w, urlsetBody(srvURL+"/survivor"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()
	srvURL = srv.URL

	d := New(srv.Client(), "sitemd-test", zap.NewNop())
	targets, err := d.Discover(context.Background(), srv.URL, Limits{MaxDepth: 3, MaxURLs: 10})
	if err != nil {
		t.Fatalf("Discover error = %v", err)
	}
	if len(targets) != 1 || targets[0].URL != srvURL+"/survivor" {
		t.Fatalf("expected malformed branch to be skipped, got %v", targets)
	}
}

func TestDiscoverGzippedSitemap(t *testing.T) {
	t.Parallel()

	var srvURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/robots.txt":
			fmt.Fprintf(w, "Sitemap: %s/sitemap.xml.gz\n", srvURL)
		case "/sitemap.xml.gz":
			w.Header().Set("Content-Type", "application/gzip")
			zw := gzip.NewWriter(w)
			_, _ = zw.Write([]byte(urlsetBody(srvURL + "/zipped-page")))
			_ = zw.Close()
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()
	srvURL = srv.URL

	d := New(srv.Client(), "sitemd-test", zap.NewNop())
	targets, err := d.Discover(context.Background(), srv.URL, Limits{MaxDepth: 3, MaxURLs: 10})
	if err != nil {
		t.Fatalf("Discover error = %v", err)
	}
	if len(targets) != 1 || targets[0].URL != srvURL+"/zipped-page" {
		t.Fatalf("expected gzipped sitemap to be expanded, got %v", targets)
	}
}
