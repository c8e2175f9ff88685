package parsers

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/arrowhq/sentinel/internal/fetch"
	"github.com/arrowhq/sentinel/internal/models"
)

// StructureParserVersion gates snapshot compatibility for landing-page
// structure extraction.
const StructureParserVersion = "structure-v1"

var keyPagePatterns = map[string]*regexp.Regexp{
	"pricing":  regexp.MustCompile(`(?i)pricing|plans`),
	"about":    regexp.MustCompile(`(?i)about`),
	"blog":     regexp.MustCompile(`(?i)blog`),
	"news":     regexp.MustCompile(`(?i)news`),
	"careers":  regexp.MustCompile(`(?i)careers|jobs`),
	"features": regexp.MustCompile(`(?i)features|product`),
}

// ParseStructure extracts a landing page's nav links, key-page
// presence, metadata, and section heading hashes.
func ParseStructure(htmlBody []byte, sourceURL string) (*models.StructureData, []string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(htmlBody))
	if err != nil {
		return nil, nil, err
	}

	var warnings []string
	data := &models.StructureData{
		KeyPages:      make(map[string]bool),
		SectionHashes: make(map[string]string),
	}

	data.Title = strings.TrimSpace(doc.Find("title").First().Text())
	data.Description = metaContent(doc, "description")
	data.Keywords = metaContent(doc, "keywords")
	data.OGTags = metaPrefixTags(doc, "property", "og:")
	data.TwitterTags = metaPrefixTags(doc, "name", "twitter:")

	doc.Find("nav a, header a").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok || href == "" {
			return
		}
		text := strings.TrimSpace(s.Text())
		data.NavLinks = append(data.NavLinks, models.Link{URL: href, Text: text})

		for page, re := range keyPagePatterns {
			if re.MatchString(href) || re.MatchString(text) {
				data.KeyPages[page] = true
			}
		}
	})

	if len(data.NavLinks) == 0 {
		warnings = append(warnings, "no navigation links found")
	}

	doc.Find("h1,h2,h3").Each(func(_ int, s *goquery.Selection) {
		heading := strings.TrimSpace(s.Text())
		if heading == "" {
			return
		}
		content := sectionContent(s)
		data.SectionHashes[heading] = fetch.ContentHash([]byte(content))
	})

	return data, warnings, nil
}

// sectionContent gathers the sibling text between a heading and the
// next h1, h2 or h3 sibling of any rank, used to hash section content
// independent of markup noise.
func sectionContent(heading *goquery.Selection) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(heading.Text()))
	sib := heading.Next()
	for sib.Length() > 0 {
		tag := goquery.NodeName(sib)
		if tag == "h1" || tag == "h2" || tag == "h3" {
			break
		}
		b.WriteString(" ")
		b.WriteString(strings.TrimSpace(sib.Text()))
		sib = sib.Next()
	}
	return cleanWhitespace(b.String())
}

func metaContent(doc *goquery.Document, name string) string {
	v, _ := doc.Find(`meta[name="` + name + `"]`).Attr("content")
	return strings.TrimSpace(v)
}

func metaPrefixTags(doc *goquery.Document, attr, prefix string) map[string]string {
	out := make(map[string]string)
	doc.Find("meta[" + attr + "]").Each(func(_ int, s *goquery.Selection) {
		key, _ := s.Attr(attr)
		if !strings.HasPrefix(key, prefix) {
			return
		}
		content, _ := s.Attr("content")
		out[key] = content
	})
	if len(out) == 0 {
		return nil
	}
	return out
}

// cleanWhitespace collapses runs of whitespace, mirroring the
// block-element-aware text extraction style used elsewhere in the
// parsers package.
func cleanWhitespace(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}
