// Package registry implements the Source Registry: resolving a
// (Company, SourceKind) pair to an ordered list of candidate URLs and
// binding a Provider implementation by predicate match (§4.1).
package registry

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/arrowhq/sentinel/internal/models"
)

// NormalizedItem is the shape every Provider returns (§4.1).
type NormalizedItem struct {
	Title       string
	Summary     string
	Content     string
	SourceURL   string
	SourceKind  models.SourceKind
	Category    string
	PublishedAt *time.Time
}

// FetchOptions carries per-call tuning the Coordinator passes to a
// Provider. SourceKind is included because a single Provider instance
// (e.g. the universal fallback) may serve more than one source kind.
type FetchOptions struct {
	SourceKind  models.SourceKind
	MaxArticles int
	SkipURLs    map[string]bool
	Overrides   map[string]string
}

// Provider is the capability set every source-kind extractor implements
// (§4.1, §9 "composition with small interfaces").
type Provider interface {
	Fetch(ctx context.Context, company *models.Company, opts FetchOptions) ([]NormalizedItem, error)
	Close() error
}

// PathTemplates are the default candidate paths appended to a
// company's website root when no per-company override exists.
var PathTemplates = []string{
	"/blog", "/news", "/press", "/pricing", "/careers", "/about",
	"/en/blog", "/en/news", // language variants
}

// ProviderBinding pairs a predicate over (company, source kind) with
// the Provider to use when it matches. The first matching binding in
// registration order wins.
type ProviderBinding struct {
	Name      string
	Predicate func(company *models.Company, kind models.SourceKind) bool
	Provider  Provider
}

// Registry resolves candidate URLs and binds providers.
type Registry struct {
	bindings []ProviderBinding
	fallback Provider
}

// New builds a Registry. fallback is the universal provider used when
// no binding's predicate matches; it may be nil and set later via
// SetFallback, since the universal provider's own construction
// typically needs the Registry it falls back into.
func New(fallback Provider) *Registry {
	return &Registry{fallback: fallback}
}

// SetFallback binds the universal provider after construction, for
// callers whose fallback provider needs a *Registry reference of its
// own (e.g. providers.DefaultProvider resolves candidate URLs through it).
func (r *Registry) SetFallback(fallback Provider) {
	r.fallback = fallback
}

// Register appends a provider binding; bindings are tried in
// registration order, so register more specific predicates first.
func (r *Registry) Register(b ProviderBinding) {
	r.bindings = append(r.bindings, b)
}

// ResolveProvider returns the provider bound to a (company, kind) pair:
// the first matching predicate wins; the universal provider is the default.
func (r *Registry) ResolveProvider(company *models.Company, kind models.SourceKind) Provider {
	for _, b := range r.bindings {
		if b.Predicate(company, kind) {
			return b.Provider
		}
	}
	return r.fallback
}

// CandidateURLs returns the ordered set of URLs to try for a
// (company, source kind) pair: explicit per-company overrides first,
// then curated per-domain heuristics, then default path templates
// appended to the website root (§4.1).
func (r *Registry) CandidateURLs(company *models.Company, kind models.SourceKind, curated DomainHeuristics) ([]string, error) {
	var out []string
	seen := make(map[string]bool)

	add := func(u string) {
		u = strings.TrimRight(u, "/")
		if u == "" || seen[u] {
			return
		}
		seen[u] = true
		out = append(out, u)
	}

	if override, ok := company.Metadata.Handles[string(kind)]; ok && override != "" {
		add(override)
	}

	if curated != nil {
		for _, u := range curated.URLsFor(company, kind) {
			add(u)
		}
	}

	root, err := normalizeRoot(company.Website)
	if err != nil {
		return nil, fmt.Errorf("registry: invalid website %q: %w", company.Website, err)
	}

	switch kind {
	case models.SourcePricing:
		add(root + "/pricing")
	case models.SourceJobs:
		add(root + "/careers")
		add(root + "/jobs")
	default:
		for _, tmpl := range PathTemplates {
			add(root + tmpl)
		}
	}

	if len(out) == 0 {
		add(root)
	}
	return out, nil
}

// DomainHeuristics supplies curated per-domain candidate URLs (e.g. a
// known blog lives at a subdomain rather than a path). Implementations
// are expected to be small static tables; nil is a valid no-op value.
type DomainHeuristics interface {
	URLsFor(company *models.Company, kind models.SourceKind) []string
}

func normalizeRoot(website string) (string, error) {
	if !strings.Contains(website, "://") {
		website = "https://" + website
	}
	u, err := url.Parse(website)
	if err != nil {
		return "", err
	}
	if u.Host == "" {
		return "", fmt.Errorf("missing host")
	}
	u.Path = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}
