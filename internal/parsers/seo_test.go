package parsers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seoHTML = `
<html><head>
<meta name="description" content="Acme builds things">
<meta name="keywords" content="acme, widgets">
<script type="application/ld+json">
{"@type": "Organization", "name": "Acme"}
</script>
<script type="application/ld+json">
{"@graph": [{"@type": "Product"}, {"@type": ["Article", "NewsArticle"]}]}
</script>
</head><body></body></html>`

func TestParseSEO_ExtractsMetaTagsAndJSONLDTypes(t *testing.T) {
	data, warnings, err := ParseSEO(SEOBundle{HTML: []byte(seoHTML)})
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, "Acme builds things", data.MetaTags["description"])
	assert.Equal(t, "acme, widgets", data.MetaTags["keywords"])
	assert.Contains(t, data.JSONLDTypes, "Organization")
	assert.Contains(t, data.JSONLDTypes, "Product")
	assert.Contains(t, data.JSONLDTypes, "Article")
	assert.Contains(t, data.JSONLDTypes, "NewsArticle")
}

func TestParseSEO_UnparsableJSONLDYieldsWarningNotError(t *testing.T) {
	html := `<html><head><script type="application/ld+json">{not valid json</script></head></html>`
	data, warnings, err := ParseSEO(SEOBundle{HTML: []byte(html)})
	require.NoError(t, err)
	assert.Empty(t, data.JSONLDTypes)
	assert.Contains(t, warnings, "unparsable JSON-LD block")
}

func TestParseSEO_ExtractsSitemapDirectivesFromRobotsTxt(t *testing.T) {
	robots := "User-agent: *\nDisallow: /admin\nSitemap: https://acme.test/sitemap.xml\nSitemap: https://acme.test/sitemap-news.xml\n"
	data, _, err := ParseSEO(SEOBundle{RobotsTxt: []byte(robots)})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://acme.test/sitemap.xml", "https://acme.test/sitemap-news.xml"}, data.RobotsSitemaps)
}

func TestParseSEO_ParsesSitemapXMLAndCountsURLs(t *testing.T) {
	sitemap := `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
<url><loc>https://acme.test/a</loc></url>
<url><loc>https://acme.test/b</loc></url>
</urlset>`
	data, warnings, err := ParseSEO(SEOBundle{SitemapXML: []byte(sitemap)})
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, 2, data.SitemapCount)
	assert.Equal(t, []string{"https://acme.test/a", "https://acme.test/b"}, data.SitemapURLs)
}

func TestParseSEO_UnparsableSitemapXMLYieldsWarning(t *testing.T) {
	data, warnings, err := ParseSEO(SEOBundle{SitemapXML: []byte("not xml at all <<<")})
	require.NoError(t, err)
	assert.Equal(t, 0, data.SitemapCount)
	assert.Contains(t, warnings, "unparsable sitemap XML")
}

func TestParseSEO_TruncatesSitemapURLsBeyondLimitAndWarns(t *testing.T) {
	var b []byte
	b = append(b, []byte(`<?xml version="1.0"?><urlset>`)...)
	for i := 0; i < maxSitemapURLs+10; i++ {
		b = append(b, []byte(`<url><loc>https://acme.test/page</loc></url>`)...)
	}
	b = append(b, []byte(`</urlset>`)...)

	data, warnings, err := ParseSEO(SEOBundle{SitemapXML: b})
	require.NoError(t, err)
	assert.Equal(t, maxSitemapURLs+10, data.SitemapCount)
	assert.Len(t, data.SitemapURLs, maxSitemapURLs)
	assert.Contains(t, warnings, "sitemap URL list truncated")
}

func TestParseSEO_EmptyBundleReturnsEmptyData(t *testing.T) {
	data, warnings, err := ParseSEO(SEOBundle{})
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Empty(t, data.MetaTags)
	assert.Empty(t, data.JSONLDTypes)
	assert.Empty(t, data.RobotsSitemaps)
}
