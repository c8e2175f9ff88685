// Package providers implements the registry.Provider bindings that
// convert a raw fetched page into NormalizedItems. DefaultProvider is
// the universal fallback used when no source-kind-specific binding
// exists (§4.1, §4.5).
package providers

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/arrowhq/sentinel/internal/apperr"
	"github.com/arrowhq/sentinel/internal/fetch"
	"github.com/arrowhq/sentinel/internal/models"
	"github.com/arrowhq/sentinel/internal/registry"
)

// DefaultProvider scrapes a candidate listing page (blog index, news
// index, press index) for article-like links and returns one
// NormalizedItem per link. It tries every candidate URL the Source
// Registry resolves for the company/kind pair until one yields items.
type DefaultProvider struct {
	fetcher  *fetch.Fetcher
	registry *registry.Registry
}

func NewDefaultProvider(fetcher *fetch.Fetcher, reg *registry.Registry) *DefaultProvider {
	return &DefaultProvider{fetcher: fetcher, registry: reg}
}

// articleSelectors are tried in order; the first selector that yields
// at least one match is used, since listing pages vary widely in markup.
var articleSelectors = []string{
	"article a[href]",
	"main a[href]",
	"a[href]",
}

func (p *DefaultProvider) Fetch(ctx context.Context, company *models.Company, opts registry.FetchOptions) ([]registry.NormalizedItem, error) {
	kind := opts.SourceKind
	if kind == "" {
		kind = models.SourceBlog
	}
	urls, err := p.registry.CandidateURLs(company, kind, nil)
	if err != nil {
		return nil, apperr.Permanent("providers.DefaultProvider.Fetch", "failed to resolve candidate urls", err)
	}

	var lastErr error
	for _, url := range urls {
		resp, err := p.fetcher.Fetch(ctx, url, fetch.DefaultOptions())
		if err != nil {
			lastErr = err
			if apperr.IsPermanent(err) {
				continue // try the next candidate path
			}
			return nil, err // transient/deadline errors propagate for in-task retry
		}

		items, err := extractListing(resp.Body, url, kind, opts)
		if err != nil {
			lastErr = err
			continue
		}
		if len(items) > 0 {
			return items, nil
		}
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, nil
}

func (p *DefaultProvider) Close() error { return nil }

func extractListing(body []byte, baseURL string, kind models.SourceKind, opts registry.FetchOptions) ([]registry.NormalizedItem, error) {
	doc, err := goquery.NewDocumentFromReader(bytesReader(body))
	if err != nil {
		return nil, apperr.Parse("providers.extractListing", "failed to parse html", err)
	}

	var sel *goquery.Selection
	for _, s := range articleSelectors {
		sel = doc.Find(s)
		if sel.Length() > 0 {
			break
		}
	}

	limit := opts.MaxArticles
	if limit <= 0 {
		limit = 10
	}

	var items []registry.NormalizedItem
	seen := make(map[string]bool)

	sel.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if len(items) >= limit {
			return false
		}
		href, ok := s.Attr("href")
		if !ok || href == "" || strings.HasPrefix(href, "#") {
			return true
		}
		absolute := resolveURL(baseURL, href)
		if seen[absolute] || opts.SkipURLs[absolute] {
			return true
		}
		title := strings.TrimSpace(s.Text())
		if title == "" {
			return true
		}
		seen[absolute] = true
		items = append(items, registry.NormalizedItem{
			Title:      title,
			SourceURL:  absolute,
			SourceKind: kind,
		})
		return true
	})

	return items, nil
}
