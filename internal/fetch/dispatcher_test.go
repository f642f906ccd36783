package fetch

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/sitemd/sitemd/internal/crawler"
)

type scriptedFetcher struct {
	calls   int
	failFor int
	status  int
}

func (f *scriptedFetcher) Fetch(_ context.Context, rawURL string) (crawler.Page, error) {
	f.calls++
	if f.calls <= f.failFor {
		return crawler.Page{}, errors.New("simulated failure")
	}
	status := f.status
	if status == 0 {
		status = 200
	}
	return crawler.Page{URL: rawURL, StatusCode: status, Body: []byte("<html></html>")}, nil
}

func TestDispatcherRetriesUpToConfiguredCount(t *testing.T) {
	t.Parallel()

	static := &scriptedFetcher{failFor: 2}
	d := NewDispatcher(static, nil, 2, zap.NewNop())

	page, err := d.Fetch(context.Background(), crawler.CrawlTarget{URL: "https://example.com/a"})
	if err != nil {
		t.Fatalf("Fetch error = %v", err)
	}
	if static.calls != 3 {
		t.Fatalf("calls = %d, want 3", static.calls)
	}
	if page.StatusCode != 200 {
		t.Fatalf("status = %d", page.StatusCode)
	}
}

func TestDispatcherZeroRetriesByDefault(t *testing.T) {
	t.Parallel()

	static := &scriptedFetcher{failFor: 1}
	d := NewDispatcher(static, nil, 0, zap.NewNop())

	_, err := d.Fetch(context.Background(), crawler.CrawlTarget{URL: "https://example.com/a"})
	if err == nil {
		t.Fatal("expected failure with zero retries")
	}
	if static.calls != 1 {
		t.Fatalf("calls = %d, want 1", static.calls)
	}

	var fetchErr *crawler.FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("error type = %T, want *crawler.FetchError", err)
	}
}

func TestDispatcherTreatsNon2xxAsFailure(t *testing.T) {
	t.Parallel()

	static := &scriptedFetcher{status: 503}
	d := NewDispatcher(static, nil, 0, zap.NewNop())

	if _, err := d.Fetch(context.Background(), crawler.CrawlTarget{URL: "https://example.com/a"}); err == nil {
		t.Fatal("expected error for 503 page")
	}
}

func TestDispatcherRoutesByMode(t *testing.T) {
	t.Parallel()

	static := &scriptedFetcher{}
	browser := &scriptedFetcher{}
	d := NewDispatcher(static, browser, 0, zap.NewNop())

	if _, err := d.Fetch(context.Background(), crawler.CrawlTarget{URL: "https://example.com/a", Mode: crawler.BrowserRender}); err != nil {
		t.Fatalf("browser fetch error = %v", err)
	}
	if browser.calls != 1 || static.calls != 0 {
		t.Fatalf("browser=%d static=%d, want 1/0", browser.calls, static.calls)
	}

	if _, err := d.Fetch(context.Background(), crawler.CrawlTarget{URL: "https://example.com/b", Mode: crawler.StaticHTTP}); err != nil {
		t.Fatalf("static fetch error = %v", err)
	}
	if static.calls != 1 {
		t.Fatalf("static calls = %d, want 1", static.calls)
	}
}

func TestDispatcherFallsBackWhenBrowserMissing(t *testing.T) {
	t.Parallel()

	static := &scriptedFetcher{}
	d := NewDispatcher(static, nil, 0, zap.NewNop())

	if _, err := d.Fetch(context.Background(), crawler.CrawlTarget{URL: "https://example.com/a", Mode: crawler.BrowserRender}); err != nil {
		t.Fatalf("Fetch error = %v", err)
	}
	if static.calls != 1 {
		t.Fatalf("static calls = %d, want 1", static.calls)
	}
}

func TestDispatcherCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	static := &scriptedFetcher{}
	d := NewDispatcher(static, nil, 3, zap.NewNop())

	_, err := d.Fetch(ctx, crawler.CrawlTarget{URL: "https://example.com/a"})
	if err == nil {
		t.Fatal("expected error for canceled context")
	}
	if static.calls != 0 {
		t.Fatalf("calls = %d, want 0 after cancellation", static.calls)
	}
}
