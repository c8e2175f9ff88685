package parsers

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/arrowhq/sentinel/internal/models"
)

// SEOParserVersion gates snapshot compatibility for SEO-signal
// extraction.
const SEOParserVersion = "seo-v1"

// maxSitemapURLs bounds how many sitemap URLs are retained in a
// snapshot; beyond this the list is truncated and a warning recorded.
const maxSitemapURLs = 500

// SEOBundle carries the three payloads the SEO parser draws from: the
// page HTML, robots.txt, and (optionally) a discovered sitemap.
type SEOBundle struct {
	HTML       []byte
	RobotsTxt  []byte
	SitemapXML []byte
}

var sitemapDirectiveRe = regexp.MustCompile(`(?i)^sitemap:\s*(\S+)`)

type urlSet struct {
	XMLName xml.Name   `xml:"urlset"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc string `xml:"loc"`
}

// ParseSEO extracts meta tags, JSON-LD types, and sitemap signals.
func ParseSEO(bundle SEOBundle) (*models.SEOData, []string, error) {
	var warnings []string
	data := &models.SEOData{MetaTags: make(map[string]string)}

	if len(bundle.HTML) > 0 {
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(bundle.HTML))
		if err != nil {
			return nil, nil, err
		}
		doc.Find("meta[name]").Each(func(_ int, s *goquery.Selection) {
			name, _ := s.Attr("name")
			content, _ := s.Attr("content")
			if name != "" {
				data.MetaTags[name] = content
			}
		})

		seen := make(map[string]bool)
		doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
			var payload interface{}
			if err := json.Unmarshal([]byte(s.Text()), &payload); err != nil {
				warnings = append(warnings, "unparsable JSON-LD block")
				return
			}
			for _, t := range jsonLDTypes(payload) {
				if !seen[t] {
					seen[t] = true
					data.JSONLDTypes = append(data.JSONLDTypes, t)
				}
			}
		})
	}

	if len(bundle.RobotsTxt) > 0 {
		for _, line := range strings.Split(string(bundle.RobotsTxt), "\n") {
			line = strings.TrimSpace(line)
			if m := sitemapDirectiveRe.FindStringSubmatch(line); m != nil {
				data.RobotsSitemaps = append(data.RobotsSitemaps, m[1])
			}
		}
	}

	if len(bundle.SitemapXML) > 0 {
		var set urlSet
		if err := xml.Unmarshal(bundle.SitemapXML, &set); err != nil {
			warnings = append(warnings, "unparsable sitemap XML")
		} else {
			data.SitemapCount = len(set.URLs)
			limit := len(set.URLs)
			truncated := false
			if limit > maxSitemapURLs {
				limit = maxSitemapURLs
				truncated = true
			}
			for _, u := range set.URLs[:limit] {
				data.SitemapURLs = append(data.SitemapURLs, u.Loc)
			}
			if truncated {
				warnings = append(warnings, "sitemap URL list truncated")
			}
		}
	}

	return data, warnings, nil
}

// jsonLDTypes extracts the @type field(s) from a JSON-LD document or
// a @graph array of documents.
func jsonLDTypes(payload interface{}) []string {
	var types []string
	var visit func(v interface{})
	visit = func(v interface{}) {
		obj, ok := v.(map[string]interface{})
		if !ok {
			return
		}
		switch t := obj["@type"].(type) {
		case string:
			types = append(types, t)
		case []interface{}:
			for _, tv := range t {
				if s, ok := tv.(string); ok {
					types = append(types, s)
				}
			}
		}
		if graph, ok := obj["@graph"].([]interface{}); ok {
			for _, g := range graph {
				visit(g)
			}
		}
	}
	visit(payload)
	return types
}
