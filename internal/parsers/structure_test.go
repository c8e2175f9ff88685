package parsers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const structureHTML = `
<html><head>
<title>Acme - Home</title>
<meta name="description" content="Acme homepage">
<meta name="keywords" content="acme, widgets">
<meta property="og:title" content="Acme">
<meta property="og:image" content="https://acme.test/og.png">
<meta name="twitter:card" content="summary">
</head>
<body>
<header>
<a href="/pricing">Pricing</a>
<a href="/careers">Careers</a>
</header>
<nav>
<a href="/blog">Blog</a>
</nav>
<main>
<h1>Welcome to Acme</h1>
<p>We build great things.</p>
<h2>Features</h2>
<p>Fast. Reliable. Secure.</p>
</main>
</body></html>`

func TestParseStructure_ExtractsTitleMetaAndNavLinks(t *testing.T) {
	data, warnings, err := ParseStructure([]byte(structureHTML), "https://acme.test")
	require.NoError(t, err)
	assert.Empty(t, warnings)

	assert.Equal(t, "Acme - Home", data.Title)
	assert.Equal(t, "Acme homepage", data.Description)
	assert.Equal(t, "acme, widgets", data.Keywords)

	require.Len(t, data.NavLinks, 3)
	var urls []string
	for _, l := range data.NavLinks {
		urls = append(urls, l.URL)
	}
	assert.Contains(t, urls, "/pricing")
	assert.Contains(t, urls, "/careers")
	assert.Contains(t, urls, "/blog")
}

func TestParseStructure_DetectsKeyPagesFromHrefOrLinkText(t *testing.T) {
	data, _, err := ParseStructure([]byte(structureHTML), "https://acme.test")
	require.NoError(t, err)
	assert.True(t, data.KeyPages["pricing"])
	assert.True(t, data.KeyPages["careers"])
	assert.True(t, data.KeyPages["blog"])
	assert.False(t, data.KeyPages["news"])
}

func TestParseStructure_ExtractsOGAndTwitterTags(t *testing.T) {
	data, _, err := ParseStructure([]byte(structureHTML), "https://acme.test")
	require.NoError(t, err)
	assert.Equal(t, "Acme", data.OGTags["og:title"])
	assert.Equal(t, "https://acme.test/og.png", data.OGTags["og:image"])
	assert.Equal(t, "summary", data.TwitterTags["twitter:card"])
}

func TestParseStructure_HashesHeadingSectionsUpToNextHeading(t *testing.T) {
	data, _, err := ParseStructure([]byte(structureHTML), "https://acme.test")
	require.NoError(t, err)
	require.Contains(t, data.SectionHashes, "Welcome to Acme")
	require.Contains(t, data.SectionHashes, "Features")
	assert.NotEqual(t, data.SectionHashes["Welcome to Acme"], data.SectionHashes["Features"])
}

func TestParseStructure_NoNavLinksYieldsWarning(t *testing.T) {
	html := `<html><head><title>Empty</title></head><body><main><p>No nav here.</p></main></body></html>`
	data, warnings, err := ParseStructure([]byte(html), "https://acme.test")
	require.NoError(t, err)
	assert.Empty(t, data.NavLinks)
	assert.Contains(t, warnings, "no navigation links found")
}

func TestParseStructure_NoOGOrTwitterTagsYieldsNilMaps(t *testing.T) {
	html := `<html><head><title>Plain</title></head><body><nav><a href="/x">X</a></nav></body></html>`
	data, _, err := ParseStructure([]byte(html), "https://acme.test")
	require.NoError(t, err)
	assert.Nil(t, data.OGTags)
	assert.Nil(t, data.TwitterTags)
}
