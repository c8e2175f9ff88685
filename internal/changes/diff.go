package changes

import (
	"fmt"
	"sort"
	"strings"

	"github.com/arrowhq/sentinel/internal/models"
)

// diffPricing implements the pricing structured diff (§4.6): plans are
// compared by lowercased name; additions, removals, and per-plan price
// changes are each recorded as a typed ChangedField.
func diffPricing(prev, cur models.PricingData) ([]models.ChangedField, string) {
	prevByName := planMap(prev.Plans)
	curByName := planMap(cur.Plans)

	var fields []models.ChangedField
	var added, removed, changed int

	for name, p := range curByName {
		if _, ok := prevByName[name]; !ok {
			fields = append(fields, models.ChangedField{Type: "added_plan", Plan: p.Name, Current: p})
			added++
		}
	}
	for name, p := range prevByName {
		if _, ok := curByName[name]; !ok {
			fields = append(fields, models.ChangedField{Type: "removed_plan", Plan: p.Name, Previous: p})
			removed++
		}
	}
	for name, curPlan := range curByName {
		prevPlan, ok := prevByName[name]
		if !ok {
			continue
		}
		if !prevPlan.Price.Equal(curPlan.Price) {
			fields = append(fields, models.ChangedField{
				Type:     "price_change",
				Plan:     curPlan.Name,
				Field:    "price",
				Previous: prevPlan.Price,
				Current:  curPlan.Price,
			})
			changed++
		}
	}

	sortChangedFields(fields)
	summary := fmt.Sprintf("pricing: %d added, %d removed, %d price changes", added, removed, changed)
	return fields, summary
}

func planMap(plans []models.PricingPlan) map[string]models.PricingPlan {
	m := make(map[string]models.PricingPlan, len(plans))
	for _, p := range plans {
		m[strings.ToLower(strings.TrimSpace(p.Name))] = p
	}
	return m
}

// diffStructure implements the landing-structure diff: nav link set
// diff, key-page presence changes, metadata field changes, and section
// heading hash changes.
func diffStructure(prev, cur *models.StructureData) ([]models.ChangedField, string) {
	var fields []models.ChangedField

	prevLinks := linkSet(prev.NavLinks)
	curLinks := linkSet(cur.NavLinks)
	for l := range curLinks {
		if !prevLinks[l] {
			fields = append(fields, models.ChangedField{Type: "nav_added", Current: l})
		}
	}
	for l := range prevLinks {
		if !curLinks[l] {
			fields = append(fields, models.ChangedField{Type: "nav_removed", Previous: l})
		}
	}

	for page, curPresent := range cur.KeyPages {
		if prev.KeyPages[page] != curPresent {
			fields = append(fields, models.ChangedField{Type: "key_page_changed", Field: page, Previous: prev.KeyPages[page], Current: curPresent})
		}
	}
	for page, prevPresent := range prev.KeyPages {
		if _, ok := cur.KeyPages[page]; !ok && prevPresent {
			fields = append(fields, models.ChangedField{Type: "key_page_changed", Field: page, Previous: true, Current: false})
		}
	}

	if prev.Title != cur.Title {
		fields = append(fields, models.ChangedField{Type: "meta_changed", Field: "title", Previous: prev.Title, Current: cur.Title})
	}
	if prev.Description != cur.Description {
		fields = append(fields, models.ChangedField{Type: "meta_changed", Field: "description", Previous: prev.Description, Current: cur.Description})
	}
	if prev.Keywords != cur.Keywords {
		fields = append(fields, models.ChangedField{Type: "meta_changed", Field: "keywords", Previous: prev.Keywords, Current: cur.Keywords})
	}
	for k, v := range cur.OGTags {
		if prev.OGTags[k] != v {
			fields = append(fields, models.ChangedField{Type: "meta_changed", Field: "og:" + k, Previous: prev.OGTags[k], Current: v})
		}
	}
	for k, v := range cur.TwitterTags {
		if prev.TwitterTags[k] != v {
			fields = append(fields, models.ChangedField{Type: "meta_changed", Field: "twitter:" + k, Previous: prev.TwitterTags[k], Current: v})
		}
	}

	for heading, hash := range cur.SectionHashes {
		if prev.SectionHashes[heading] != hash {
			fields = append(fields, models.ChangedField{Type: "section_changed", Field: heading, Previous: prev.SectionHashes[heading], Current: hash})
		}
	}

	sortChangedFields(fields)
	return fields, fmt.Sprintf("structure: %d fields changed", len(fields))
}

func linkSet(links []models.Link) map[string]bool {
	out := make(map[string]bool, len(links))
	for _, l := range links {
		out[l.URL+"|"+l.Text] = true
	}
	return out
}

// diffSEO implements the SEO signals diff: meta tag field changes,
// JSON-LD type-set changes, and sitemap URL set/count deltas.
func diffSEO(prev, cur *models.SEOData) ([]models.ChangedField, string) {
	var fields []models.ChangedField

	for k, v := range cur.MetaTags {
		if prev.MetaTags[k] != v {
			fields = append(fields, models.ChangedField{Type: "meta_tag_changed", Field: k, Previous: prev.MetaTags[k], Current: v})
		}
	}
	for k, v := range prev.MetaTags {
		if _, ok := cur.MetaTags[k]; !ok {
			fields = append(fields, models.ChangedField{Type: "meta_tag_removed", Field: k, Previous: v})
		}
	}

	prevTypes := stringSet(prev.JSONLDTypes)
	curTypes := stringSet(cur.JSONLDTypes)
	for t := range curTypes {
		if !prevTypes[t] {
			fields = append(fields, models.ChangedField{Type: "json_ld_type_added", Current: t})
		}
	}
	for t := range prevTypes {
		if !curTypes[t] {
			fields = append(fields, models.ChangedField{Type: "json_ld_type_removed", Previous: t})
		}
	}

	if prev.SitemapCount != cur.SitemapCount {
		fields = append(fields, models.ChangedField{Type: "sitemap_count_changed", Previous: prev.SitemapCount, Current: cur.SitemapCount})
	}
	prevURLs := stringSet(prev.SitemapURLs)
	curURLs := stringSet(cur.SitemapURLs)
	for u := range curURLs {
		if !prevURLs[u] {
			fields = append(fields, models.ChangedField{Type: "sitemap_url_added", Current: u})
		}
	}
	for u := range prevURLs {
		if !curURLs[u] {
			fields = append(fields, models.ChangedField{Type: "sitemap_url_removed", Previous: u})
		}
	}

	sortChangedFields(fields)
	return fields, fmt.Sprintf("seo: %d signals changed", len(fields))
}

func stringSet(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, i := range items {
		out[i] = true
	}
	return out
}

// diffSet implements the content-addressed set diff shared by jobs,
// products, and banners: items are keyed by (name, location) and
// compared by hash (§4.6).
func diffSet(prev, cur *models.SetData) ([]models.ChangedField, string) {
	prevByKey := namedItemMap(prev.Items)
	curByKey := namedItemMap(cur.Items)

	var fields []models.ChangedField
	var added, removed, changed int

	for key, item := range curByKey {
		prevItem, ok := prevByKey[key]
		switch {
		case !ok:
			fields = append(fields, models.ChangedField{Type: "item_added", Plan: item.Name, Current: item})
			added++
		case prevItem.Hash != item.Hash:
			fields = append(fields, models.ChangedField{Type: "item_changed", Plan: item.Name, Previous: prevItem, Current: item})
			changed++
		}
	}
	for key, item := range prevByKey {
		if _, ok := curByKey[key]; !ok {
			fields = append(fields, models.ChangedField{Type: "item_removed", Plan: item.Name, Previous: item})
			removed++
		}
	}

	sortChangedFields(fields)
	return fields, fmt.Sprintf("set: %d added, %d removed, %d changed", added, removed, changed)
}

func namedItemMap(items []models.NamedItem) map[string]models.NamedItem {
	m := make(map[string]models.NamedItem, len(items))
	for _, it := range items {
		key := strings.ToLower(it.Name) + "|" + strings.ToLower(it.Location)
		m[key] = it
	}
	return m
}

// sortChangedFields gives diff output a stable, deterministic order so
// equal diffs always serialize identically (used by hashing/tests).
func sortChangedFields(fields []models.ChangedField) {
	sort.Slice(fields, func(i, j int) bool {
		if fields[i].Type != fields[j].Type {
			return fields[i].Type < fields[j].Type
		}
		if fields[i].Plan != fields[j].Plan {
			return fields[i].Plan < fields[j].Plan
		}
		return fields[i].Field < fields[j].Field
	})
}
