package parsers

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/arrowhq/sentinel/internal/fetch"
	"github.com/arrowhq/sentinel/internal/models"
)

// JobsParserVersion, ProductsParserVersion, BannersParserVersion gate
// snapshot compatibility for the three content-addressed set parsers.
const (
	JobsParserVersion     = "jobs-v1"
	ProductsParserVersion = "products-v1"
	BannersParserVersion  = "banners-v1"
)

var (
	jobCardClassRe     = regexp.MustCompile(`(?i)\b(job|opening|posting|position|role)\b`)
	productCardClassRe = regexp.MustCompile(`(?i)\b(product|offering|solution)\b`)
	bannerClassRe      = regexp.MustCompile(`(?i)\b(banner|announcement|promo|alert)\b`)
	locationClassRe    = regexp.MustCompile(`(?i)\b(location|city|remote)\b`)
)

// ParseJobs extracts job postings as a content-addressed set keyed by
// (name, location), per §4.6.
func ParseJobs(htmlBody []byte) (*models.SetData, []string, error) {
	return parseNamedCards(htmlBody, jobCardClassRe, true)
}

// ParseProducts extracts a content-addressed set of product cards
// keyed by name.
func ParseProducts(htmlBody []byte) (*models.SetData, []string, error) {
	return parseNamedCards(htmlBody, productCardClassRe, false)
}

// ParseBanners extracts a content-addressed set of site banners/
// announcements keyed by name (the banner's own text serves as both
// name and hash input when no heading is present).
func ParseBanners(htmlBody []byte) (*models.SetData, []string, error) {
	return parseNamedCards(htmlBody, bannerClassRe, false)
}

func parseNamedCards(htmlBody []byte, classRe *regexp.Regexp, withLocation bool) (*models.SetData, []string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(htmlBody))
	if err != nil {
		return nil, nil, err
	}

	var cards []*goquery.Selection
	doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		class, _ := s.Attr("class")
		if classRe.MatchString(class) {
			cards = append(cards, s)
		}
	})
	cards = dropAncestors(cards)

	var warnings []string
	var items []models.NamedItem
	seen := make(map[string]bool)

	for _, c := range cards {
		name := cardName(c)
		if name == "" {
			warnings = append(warnings, "card with no identifiable name")
			continue
		}
		location := ""
		if withLocation {
			location = cardLocation(c)
		}
		content := cleanWhitespace(c.Text())
		hash := fetch.ContentHash([]byte(content))

		key := strings.ToLower(name) + "|" + strings.ToLower(location)
		if seen[key] {
			continue
		}
		seen[key] = true
		items = append(items, models.NamedItem{Name: name, Location: location, Hash: hash})
	}

	return &models.SetData{Items: items}, warnings, nil
}

func cardName(c *goquery.Selection) string {
	heading := strings.TrimSpace(c.Find("h1,h2,h3,h4,h5,h6").First().Text())
	if heading != "" && len(heading) <= 160 {
		return heading
	}
	text := strings.TrimSpace(c.Text())
	if len(text) > 160 {
		text = text[:160]
	}
	return text
}

func cardLocation(c *goquery.Selection) string {
	var found string
	c.Find("*").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		class, _ := s.Attr("class")
		if locationClassRe.MatchString(class) {
			found = strings.TrimSpace(s.Text())
			return false
		}
		return true
	})
	return found
}
