package changes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arrowhq/sentinel/internal/models"
)

func amount(v float64) *float64 { return &v }

func TestDiffPricing_DetectsAddedRemovedAndChangedPlans(t *testing.T) {
	prev := models.PricingData{Plans: []models.PricingPlan{
		{Name: "Starter", Price: models.Price{Amount: amount(10), Currency: "USD"}},
		{Name: "Pro", Price: models.Price{Amount: amount(50), Currency: "USD"}},
	}}
	cur := models.PricingData{Plans: []models.PricingPlan{
		{Name: "Pro", Price: models.Price{Amount: amount(75), Currency: "USD"}},
		{Name: "Enterprise", Price: models.Price{Label: models.PriceLabelContact}},
	}}

	fields, summary := diffPricing(prev, cur)
	require.Len(t, fields, 3)
	assert.Equal(t, "pricing: 1 added, 1 removed, 1 price changes", summary)

	var types []string
	for _, f := range fields {
		types = append(types, f.Type)
	}
	assert.Contains(t, types, "added_plan")
	assert.Contains(t, types, "removed_plan")
	assert.Contains(t, types, "price_change")
}

func TestDiffPricing_NoChangesWhenPlansIdentical(t *testing.T) {
	data := models.PricingData{Plans: []models.PricingPlan{
		{Name: "Pro", Price: models.Price{Amount: amount(50), Currency: "USD"}},
	}}
	fields, summary := diffPricing(data, data)
	assert.Empty(t, fields)
	assert.Equal(t, "pricing: 0 added, 0 removed, 0 price changes", summary)
}

func TestDiffPricing_PlanNameComparisonIsCaseAndWhitespaceInsensitive(t *testing.T) {
	prev := models.PricingData{Plans: []models.PricingPlan{{Name: "  Pro  ", Price: models.Price{Amount: amount(50)}}}}
	cur := models.PricingData{Plans: []models.PricingPlan{{Name: "pro", Price: models.Price{Amount: amount(50)}}}}
	fields, _ := diffPricing(prev, cur)
	assert.Empty(t, fields)
}

func TestDiffStructure_DetectsNavAndMetaChanges(t *testing.T) {
	prev := &models.StructureData{
		NavLinks: []models.Link{{URL: "/pricing", Text: "Pricing"}},
		KeyPages: map[string]bool{"pricing": true, "blog": true},
		Title:    "Acme - Home",
	}
	cur := &models.StructureData{
		NavLinks: []models.Link{{URL: "/pricing", Text: "Pricing"}, {URL: "/careers", Text: "Careers"}},
		KeyPages: map[string]bool{"pricing": true, "blog": false},
		Title:    "Acme Corp - Home",
	}

	fields, summary := diffStructure(prev, cur)
	require.NotEmpty(t, fields)
	assert.Contains(t, summary, "structure:")

	var types []string
	for _, f := range fields {
		types = append(types, f.Type)
	}
	assert.Contains(t, types, "nav_added")
	assert.Contains(t, types, "key_page_changed")
	assert.Contains(t, types, "meta_changed")
}

func TestDiffStructure_DetectsOGAndSectionHashChanges(t *testing.T) {
	prev := &models.StructureData{
		KeyPages:      map[string]bool{},
		OGTags:        map[string]string{"title": "Acme"},
		SectionHashes: map[string]string{"Features": "hash1"},
	}
	cur := &models.StructureData{
		KeyPages:      map[string]bool{},
		OGTags:        map[string]string{"title": "Acme Corp"},
		SectionHashes: map[string]string{"Features": "hash2"},
	}

	fields, _ := diffStructure(prev, cur)
	var types []string
	for _, f := range fields {
		types = append(types, f.Type)
	}
	assert.Contains(t, types, "meta_changed")
	assert.Contains(t, types, "section_changed")
}

func TestDiffSEO_DetectsMetaTagAndJSONLDAndSitemapChanges(t *testing.T) {
	prev := &models.SEOData{
		MetaTags:     map[string]string{"description": "old"},
		JSONLDTypes:  []string{"Organization"},
		SitemapURLs:  []string{"/a"},
		SitemapCount: 1,
	}
	cur := &models.SEOData{
		MetaTags:     map[string]string{"description": "new"},
		JSONLDTypes:  []string{"Organization", "Product"},
		SitemapURLs:  []string{"/a", "/b"},
		SitemapCount: 2,
	}

	fields, summary := diffSEO(prev, cur)
	require.NotEmpty(t, fields)
	assert.Contains(t, summary, "seo:")

	var types []string
	for _, f := range fields {
		types = append(types, f.Type)
	}
	assert.Contains(t, types, "meta_tag_changed")
	assert.Contains(t, types, "json_ld_type_added")
	assert.Contains(t, types, "sitemap_url_added")
	assert.Contains(t, types, "sitemap_count_changed")
}

func TestDiffSet_DetectsAddedRemovedAndChangedItemsByHash(t *testing.T) {
	prev := &models.SetData{Items: []models.NamedItem{
		{Name: "Backend Engineer", Location: "Remote", Hash: "h1"},
		{Name: "Designer", Location: "NYC", Hash: "h2"},
	}}
	cur := &models.SetData{Items: []models.NamedItem{
		{Name: "Backend Engineer", Location: "Remote", Hash: "h1-updated"},
		{Name: "Recruiter", Location: "SF", Hash: "h3"},
	}}

	fields, summary := diffSet(prev, cur)
	require.Len(t, fields, 3)
	assert.Equal(t, "set: 1 added, 1 removed, 1 changed", summary)
}

func TestDiffSet_KeyIsCaseInsensitiveOnNameAndLocation(t *testing.T) {
	prev := &models.SetData{Items: []models.NamedItem{{Name: "Designer", Location: "NYC", Hash: "h1"}}}
	cur := &models.SetData{Items: []models.NamedItem{{Name: "designer", Location: "nyc", Hash: "h1"}}}
	fields, _ := diffSet(prev, cur)
	assert.Empty(t, fields)
}

func TestSortChangedFields_OrdersByTypeThenPlanThenField(t *testing.T) {
	fields := []models.ChangedField{
		{Type: "price_change", Plan: "Pro", Field: "price"},
		{Type: "added_plan", Plan: "Enterprise"},
		{Type: "price_change", Plan: "Basic", Field: "price"},
	}
	sortChangedFields(fields)
	assert.Equal(t, "added_plan", fields[0].Type)
	assert.Equal(t, "Basic", fields[1].Plan)
	assert.Equal(t, "Pro", fields[2].Plan)
}
