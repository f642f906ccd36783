// Package policy resolves which fetch strategy to use for a domain.
package policy

import (
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/sitemd/sitemd/internal/crawler"
)

// Match kinds accepted for domain overrides.
const (
	MatchExact     = "exact"
	MatchSubdomain = "subdomain"
)

// Override pins a domain to a fetch mode. Match controls whether subdomains
// of Domain are covered as well.
type Override struct {
	Domain string
	Mode   crawler.FetchMode
	Match  string
}

// Config is the immutable domain policy loaded at startup.
type Config struct {
	AutoMode    bool
	DefaultMode crawler.FetchMode
	Overrides   []Override
}

// Resolver maps domains to fetch modes. Resolution never fails: with no
// matching configuration it degrades to the static strategy.
type Resolver struct {
	cfg    Config
	logger *zap.Logger

	mu        sync.Mutex
	overrides []Override
	cache     map[string]crawler.FetchMode
}

// NewResolver builds a Resolver from the given policy configuration.
func NewResolver(cfg Config, logger *zap.Logger) *Resolver {
	overrides := make([]Override, 0, len(cfg.Overrides))
	for _, o := range cfg.Overrides {
		o.Domain = normalizeDomain(o.Domain)
		if o.Match == "" {
			o.Match = MatchExact
		}
		overrides = append(overrides, o)
	}
	return &Resolver{
		cfg:       cfg,
		logger:    logger,
		overrides: overrides,
		cache:     make(map[string]crawler.FetchMode),
	}
}

// AddOverride registers an additional override at runtime. Intended for
// programmatic configuration and tests; the resolver cache is invalidated.
func (r *Resolver) AddOverride(o Override) {
	o.Domain = normalizeDomain(o.Domain)
	if o.Match == "" {
		o.Match = MatchExact
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overrides = append(r.overrides, o)
	r.cache = make(map[string]crawler.FetchMode)
}

// Resolve returns the fetch mode for a domain. The rule that fired is logged
// for auditability: exact override, subdomain override, default, or fallback.
func (r *Resolver) Resolve(domain string) crawler.FetchMode {
	normalized := normalizeDomain(domain)

	r.mu.Lock()
	defer r.mu.Unlock()

	if mode, ok := r.cache[normalized]; ok {
		return mode
	}

	mode, rule := r.resolveLocked(normalized)
	r.cache[normalized] = mode
	r.logger.Debug("resolved fetch mode",
		zap.String("domain", normalized),
		zap.String("mode", mode.String()),
		zap.String("rule", rule),
	)
	return mode
}

func (r *Resolver) resolveLocked(domain string) (crawler.FetchMode, string) {
	for _, o := range r.overrides {
		if domain == o.Domain {
			return o.Mode, "exact_override"
		}
	}

	if r.cfg.AutoMode {
		for _, o := range r.overrides {
			if o.Match == MatchSubdomain && strings.HasSuffix(domain, "."+o.Domain) {
				return o.Mode, "subdomain_override"
			}
		}
		return r.cfg.DefaultMode, "default_mode"
	}

	r.logger.Info("no domain override matched; downgrading to static fetch",
		zap.String("domain", domain),
	)
	return crawler.StaticHTTP, "static_fallback"
}

// normalizeDomain strips scheme, www prefix, path, and port, and lowercases.
func normalizeDomain(s string) string {
	d := strings.ToLower(strings.TrimSpace(s))
	d = strings.TrimPrefix(d, "http://")
	d = strings.TrimPrefix(d, "https://")
	d = strings.TrimPrefix(d, "www.")
	if i := strings.IndexByte(d, '/'); i >= 0 {
		d = d[:i]
	}
	if i := strings.IndexByte(d, ':'); i >= 0 {
		d = d[:i]
	}
	return d
}
