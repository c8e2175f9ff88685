// Package parsers implements the pure, deterministic extraction
// functions from fetched payload to typed domain objects (§4.3). The
// Pricing Parser is the design exemplar; the others follow the same
// shape with lighter selector heuristics.
package parsers

import (
	"bytes"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/arrowhq/sentinel/internal/models"
)

// PricingParserVersion gates snapshot compatibility; bump whenever the
// extraction algorithm changes in a way that could alter normalized
// output for the same input.
const PricingParserVersion = "pricing-v1"

// PricingResult is the Pricing Parser's output (§4.3).
type PricingResult struct {
	Plans              []models.PricingPlan
	Warnings           []string
	ExtractionMetadata models.PricingExtractionMetadata
	ParserVersion      string
}

var (
	planClassRe  = regexp.MustCompile(`(?i)\b(plan|pricing|tier|package|bundle|card)\b`)
	priceClassRe = regexp.MustCompile(`(?i)\b(price|cost|amount)\b`)
	featureClassRe = regexp.MustCompile(`(?i)(feature|benefit|include)`)
	priceIndicatorRe = regexp.MustCompile(`(?i)[$€£¥]|\b(USD|EUR|GBP|JPY|CHF|CAD|AUD)\b|\bfree\b|\bcontact\b|\bcustom\b|\bquote\b`)

	// priceRe captures a currency token and amount with an optional
	// billing-cycle token (§4.3 step 4).
	priceRe = regexp.MustCompile(`(?i)(C\$|A\$|[$€£¥]|USD|EUR|GBP|JPY|CHF|CAD|AUD)\s*([0-9][0-9.,]*)\s*(?:/|\bper\b)?\s*(month|mo|year|yr|quarter|week|day|user|seat|member|credit|prompt|request)?`)

	currencySymbols = map[string]string{
		"$":   "USD",
		"€":   "EUR",
		"£":   "GBP",
		"¥":   "JPY",
		"C$":  "CAD",
		"A$":  "AUD",
		"CHF": "CHF",
	}

	cycleMap = map[string]models.BillingCycle{
		"month":   models.BillingMonthly,
		"mo":      models.BillingMonthly,
		"year":    models.BillingAnnual,
		"yr":      models.BillingAnnual,
		"quarter": models.BillingQuarterly,
		"week":    models.BillingWeekly,
		"day":     models.BillingDaily,
		"user":    models.BillingPerUser,
		"seat":    models.BillingPerUser,
		"member":  models.BillingPerUser,
		"credit":  models.BillingUsage,
		"prompt":  models.BillingUsage,
		"request": models.BillingUsage,
	}
)

// ParsePricing runs the 10-step pricing extraction algorithm over an
// HTML document (§4.3).
func ParsePricing(htmlBody []byte, sourceURL string) (*PricingResult, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(htmlBody))
	if err != nil {
		return nil, err
	}

	result := &PricingResult{ParserVersion: PricingParserVersion}

	// Step 1: collect plan-card candidates.
	var candidates []*goquery.Selection
	doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		class, _ := s.Attr("class")
		if !planClassRe.MatchString(class) {
			return
		}
		text := strings.TrimSpace(s.Text())
		if !priceIndicatorRe.MatchString(text) {
			return
		}
		candidates = append(candidates, s)
	})

	// Step 2: drop candidates that are ancestors of other candidates.
	candidates = dropAncestors(candidates)
	result.ExtractionMetadata.URL = sourceURL
	result.ExtractionMetadata.CandidateCount = len(candidates)

	currenciesSeen := make(map[string]bool)

	for _, c := range candidates {
		plan, warn, ok := extractPlan(c)
		if warn != "" {
			result.Warnings = append(result.Warnings, warn)
		}
		if !ok {
			continue
		}
		if plan.Price.Currency != "" {
			currenciesSeen[plan.Price.Currency] = true
		}
		result.Plans = append(result.Plans, plan)
	}

	// Step 9: also parse <table> structures.
	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		plans, warn := extractTablePlans(table)
		if warn != "" {
			result.Warnings = append(result.Warnings, warn)
		}
		for _, p := range plans {
			if p.Price.Currency != "" {
				currenciesSeen[p.Price.Currency] = true
			}
			result.Plans = append(result.Plans, p)
		}
	})

	// Step 10: dedup plans by lowercased name.
	result.Plans = dedupPlans(result.Plans)

	if len(result.Plans) == 0 {
		result.Warnings = append(result.Warnings, "no plans detected")
	}
	for c := range currenciesSeen {
		result.ExtractionMetadata.CurrenciesObserved = append(result.ExtractionMetadata.CurrenciesObserved, c)
	}
	sort.Strings(result.ExtractionMetadata.CurrenciesObserved)

	return result, nil
}

// dropAncestors removes any candidate that is a DOM ancestor of
// another candidate, preventing double-counting of nested plan cards.
func dropAncestors(candidates []*goquery.Selection) []*goquery.Selection {
	nodes := make([]*goquery.Selection, 0, len(candidates))
	for i, a := range candidates {
		isAncestor := false
		for j, b := range candidates {
			if i == j {
				continue
			}
			if a.Get(0) == b.Get(0) {
				continue
			}
			if b.ParentsFiltered("*").FilterFunction(func(_ int, s *goquery.Selection) bool {
				return s.Get(0) == a.Get(0)
			}).Length() > 0 {
				isAncestor = true
				break
			}
		}
		if !isAncestor {
			nodes = append(nodes, a)
		}
	}
	return nodes
}

func extractPlan(c *goquery.Selection) (models.PricingPlan, string, bool) {
	name := planName(c)
	if name == "" {
		return models.PricingPlan{}, "plan candidate has no identifiable name", false
	}

	priceText := priceText(c)
	price, ok := normalizePrice(priceText)
	if !ok {
		return models.PricingPlan{}, "unparsable numeric price for plan " + name, false
	}

	features := extractFeatures(c)

	return models.PricingPlan{Name: name, Price: price, Features: features}, "", true
}

// planName extracts the plan name from the first heading (≤80 chars)
// or a data-plan/data-tier attribute (§4.3 step 3).
func planName(c *goquery.Selection) string {
	if v, ok := c.Attr("data-plan"); ok && v != "" {
		return strings.TrimSpace(v)
	}
	if v, ok := c.Attr("data-tier"); ok && v != "" {
		return strings.TrimSpace(v)
	}
	heading := c.Find("h1,h2,h3,h4,h5,h6").First().Text()
	heading = strings.TrimSpace(heading)
	if len(heading) > 0 && len(heading) <= 80 {
		return heading
	}
	return ""
}

// priceText extracts the price-bearing text from children with class
// matching price|cost|amount, else the first paragraph containing a
// price indicator, else the whole element text (§4.3 step 3).
func priceText(c *goquery.Selection) string {
	var found string
	c.Find("*").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		class, _ := s.Attr("class")
		if priceClassRe.MatchString(class) {
			found = strings.TrimSpace(s.Text())
			return false
		}
		return true
	})
	if found != "" {
		return found
	}

	var para string
	c.Find("p").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := strings.TrimSpace(s.Text())
		if priceIndicatorRe.MatchString(text) {
			para = text
			return false
		}
		return true
	})
	if para != "" {
		return para
	}

	return strings.TrimSpace(c.Text())
}

// normalizePrice implements §4.3 steps 4-7: free/contact labeling,
// currency/amount/cycle normalization.
func normalizePrice(text string) (models.Price, bool) {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "free"):
		return models.Price{Label: models.PriceLabelFree}, true
	case strings.Contains(lower, "contact"), strings.Contains(lower, "custom"), strings.Contains(lower, "quote"):
		return models.Price{Label: models.PriceLabelContact}, true
	}

	m := priceRe.FindStringSubmatch(text)
	if m == nil {
		return models.Price{}, false
	}

	currency := normalizeCurrency(m[1])
	amount, ok := normalizeAmount(m[2])
	if !ok {
		return models.Price{}, false
	}
	cycle := cycleMap[strings.ToLower(m[3])]
	if cycle == "" {
		cycle = models.BillingMonthly
	}

	return models.Price{Amount: &amount, Currency: currency, Cycle: cycle}, true
}

// normalizeCurrency implements the two-tier table from §4.3 step 5:
// symbol -> ISO code for unambiguous symbols, else accept 3-letter ISO
// codes appearing in context.
func normalizeCurrency(token string) string {
	if iso, ok := currencySymbols[token]; ok {
		return iso
	}
	upper := strings.ToUpper(token)
	if len(upper) == 3 {
		return upper
	}
	return upper
}

// normalizeAmount implements §4.3 step 6: strip spaces; if both ','
// and '.' are present, the last one is the decimal separator;
// otherwise treat ',' as decimal.
func normalizeAmount(raw string) (float64, bool) {
	s := strings.ReplaceAll(raw, " ", "")
	hasComma := strings.Contains(s, ",")
	hasDot := strings.Contains(s, ".")

	switch {
	case hasComma && hasDot:
		lastComma := strings.LastIndex(s, ",")
		lastDot := strings.LastIndex(s, ".")
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case hasComma:
		s = strings.Replace(s, ",", ".", 1)
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// extractFeatures implements §4.3 step 8: child <ul> elements with ≥2
// items whose class contains feature|benefit|include, or bare lists
// with an immediate heading-like sibling used as a group label.
func extractFeatures(c *goquery.Selection) []string {
	var features []string
	c.Find("ul").Each(func(_ int, ul *goquery.Selection) {
		class, _ := ul.Attr("class")
		items := ul.Find("li")
		if items.Length() < 2 {
			return
		}
		if !featureClassRe.MatchString(class) && !hasHeadingSibling(ul) {
			return
		}
		items.Each(func(_ int, li *goquery.Selection) {
			text := strings.TrimSpace(li.Text())
			if text != "" {
				features = append(features, text)
			}
		})
	})
	return features
}

func hasHeadingSibling(s *goquery.Selection) bool {
	prev := s.Prev()
	if prev.Length() == 0 {
		return false
	}
	tag := goquery.NodeName(prev)
	switch tag {
	case "h1", "h2", "h3", "h4", "h5", "h6":
		return true
	}
	return false
}

// extractTablePlans implements §4.3 step 9: first header row defines
// column plan names; each subsequent row's first cell is the feature
// label; matching numeric cells populate plan price if not already
// set, otherwise are appended as table-grouped features.
func extractTablePlans(table *goquery.Selection) ([]models.PricingPlan, string) {
	headerCells := table.Find("thead tr").First().Find("th")
	if headerCells.Length() == 0 {
		headerCells = table.Find("tr").First().Find("th,td")
	}
	if headerCells.Length() == 0 {
		return nil, ""
	}

	var names []string
	headerCells.Each(func(i int, s *goquery.Selection) {
		if i == 0 {
			return // first column is the feature-label column
		}
		names = append(names, strings.TrimSpace(s.Text()))
	})
	if len(names) == 0 {
		return nil, ""
	}

	plans := make([]models.PricingPlan, len(names))
	for i, n := range names {
		plans[i] = models.PricingPlan{Name: n}
	}

	bodyRows := table.Find("tbody tr")
	if bodyRows.Length() == 0 {
		bodyRows = table.Find("tr").Slice(1, -1)
	}

	sawValue := false
	bodyRows.Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() == 0 {
			return
		}
		label := strings.TrimSpace(cells.First().Text())
		cells.Each(func(i int, cell *goquery.Selection) {
			if i == 0 || i-1 >= len(plans) {
				return
			}
			text := strings.TrimSpace(cell.Text())
			if text == "" {
				return
			}
			sawValue = true
			if plans[i-1].Price.Amount == nil && plans[i-1].Price.Label == "" {
				if price, ok := normalizePrice(text); ok {
					plans[i-1].Price = price
					return
				}
			}
			plans[i-1].Features = append(plans[i-1].Features, label+": "+text)
		})
	})

	if !sawValue {
		return nil, "table with no recognizable values"
	}
	return plans, ""
}

// dedupPlans implements §4.3 step 10: dedup by lowercased plan name,
// preferring the first non-null price and the richer feature list.
func dedupPlans(plans []models.PricingPlan) []models.PricingPlan {
	order := make([]string, 0, len(plans))
	byName := make(map[string]models.PricingPlan, len(plans))

	for _, p := range plans {
		key := strings.ToLower(strings.TrimSpace(p.Name))
		existing, ok := byName[key]
		if !ok {
			order = append(order, key)
			byName[key] = p
			continue
		}
		merged := existing
		if merged.Price.Amount == nil && merged.Price.Label == "" {
			merged.Price = p.Price
		}
		if len(p.Features) > len(merged.Features) {
			merged.Features = p.Features
		}
		byName[key] = merged
	}

	out := make([]models.PricingPlan, 0, len(order))
	for _, k := range order {
		out = append(out, byName[k])
	}
	return out
}
