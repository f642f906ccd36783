// Package writer persists converted Markdown documents to the output
// directory, deriving safe filenames from page URLs and keeping them unique
// for the lifetime of a run.
package writer

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/sitemd/sitemd/internal/crawler"
)

const (
	maxStemLen  = 120
	defaultStem = "index"
)

// Writer owns one output directory. Safe for concurrent use.
type Writer struct {
	dir    string
	logger *zap.Logger

	mu      sync.Mutex
	claimed map[string]struct{}
}

// New prepares the output directory, creating it if needed, and verifies it
// is writable before any page work starts.
func New(dir string, logger *zap.Logger) (*Writer, error) {
	if dir == "" {
		return nil, fmt.Errorf("output directory not set")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory %q: %w", dir, err)
	}

	probe, err := os.CreateTemp(dir, ".sitemd-probe-*")
	if err != nil {
		return nil, fmt.Errorf("output directory %q is not writable: %w", dir, err)
	}
	probe.Close()
	os.Remove(probe.Name())

	return &Writer{
		dir:     dir,
		logger:  logger,
		claimed: make(map[string]struct{}),
	}, nil
}

// Write stores one page's Markdown under a filename derived from its URL.
// The name claim and the collision probe happen under the writer lock, so two
// pages can never settle on the same path within a run.
func (w *Writer) Write(pageURL, markdown string) (crawler.PersistedFile, error) {
	stem := stemFromURL(pageURL)

	w.mu.Lock()
	name, err := w.claimNameLocked(stem)
	w.mu.Unlock()
	if err != nil {
		return crawler.PersistedFile{}, err
	}

	path := filepath.Join(w.dir, name)
	data := []byte(markdown)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return crawler.PersistedFile{}, fmt.Errorf("writing %q: %w", path, err)
	}

	w.logger.Debug("wrote page",
		zap.String("url", pageURL),
		zap.String("path", path),
		zap.Int("bytes", len(data)),
	)

	return crawler.PersistedFile{Path: path, URL: pageURL, Bytes: len(data)}, nil
}

// claimNameLocked finds the first free filename for stem, checking both names
// claimed this run and files already present on disk.
func (w *Writer) claimNameLocked(stem string) (string, error) {
	for i := 0; ; i++ {
		candidate := stem
		if i > 0 {
			candidate = fmt.Sprintf("%s-%d", stem, i)
		}
		name := candidate + ".md"

		if _, taken := w.claimed[name]; taken {
			continue
		}
		if _, err := os.Stat(filepath.Join(w.dir, name)); err == nil {
			continue
		} else if !os.IsNotExist(err) {
			return "", fmt.Errorf("probing %q: %w", name, err)
		}

		w.claimed[name] = struct{}{}
		return name, nil
	}
}

// stemFromURL turns a page URL's path into a filesystem-safe filename stem.
// "/docs/getting-started/" becomes "docs-getting-started"; an empty or root
// path falls back to "index".
func stemFromURL(pageURL string) string {
	path := ""
	if u, err := url.Parse(pageURL); err == nil {
		path = u.Path
	}

	stem := sanitizeStem(path)
	if stem == "" {
		return defaultStem
	}
	if len(stem) > maxStemLen {
		stem = strings.Trim(stem[:maxStemLen], "-")
		if stem == "" {
			return defaultStem
		}
	}
	return stem
}

func sanitizeStem(path string) string {
	var b strings.Builder
	for _, r := range strings.Trim(path, "/") {
		switch {
		case r == '/':
			b.WriteByte('-')
		case r < 0x20 || strings.ContainsRune(`<>:"\|?*`, r):
			b.WriteByte('-')
		default:
			b.WriteRune(r)
		}
	}

	stem := b.String()
	for strings.Contains(stem, "--") {
		stem = strings.ReplaceAll(stem, "--", "-")
	}
	return strings.Trim(stem, "-")
}
