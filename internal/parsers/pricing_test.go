package parsers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arrowhq/sentinel/internal/models"
)

const pricingCardsHTML = `
<html><body>
<div class="pricing-tier" data-plan="Starter">
  <h3>Starter</h3>
  <p class="price">$10/month</p>
  <ul class="features">
    <li>5 seats</li>
    <li>Email support</li>
  </ul>
</div>
<div class="pricing-tier">
  <h3>Pro</h3>
  <p class="price">€49.99 per month</p>
  <ul class="feature-list">
    <li>Unlimited seats</li>
    <li>Priority support</li>
  </ul>
</div>
<div class="pricing-tier">
  <h3>Enterprise</h3>
  <p>Contact us for a custom quote</p>
</div>
</body></html>`

func TestParsePricing_ExtractsCardsWithNameFeaturesAndPrice(t *testing.T) {
	result, err := ParsePricing([]byte(pricingCardsHTML), "https://acme.test/pricing")
	require.NoError(t, err)
	require.Len(t, result.Plans, 3)

	starter := result.Plans[0]
	assert.Equal(t, "Starter", starter.Name)
	require.NotNil(t, starter.Price.Amount)
	assert.Equal(t, 10.0, *starter.Price.Amount)
	assert.Equal(t, "USD", starter.Price.Currency)
	assert.Equal(t, models.BillingMonthly, starter.Price.Cycle)
	assert.Contains(t, starter.Features, "5 seats")

	pro := result.Plans[1]
	assert.Equal(t, "Pro", pro.Name)
	require.NotNil(t, pro.Price.Amount)
	assert.Equal(t, 49.99, *pro.Price.Amount)
	assert.Equal(t, "EUR", pro.Price.Currency)

	ent := result.Plans[2]
	assert.Equal(t, "Enterprise", ent.Name)
	assert.Equal(t, models.PriceLabelContact, ent.Price.Label)

	assert.Equal(t, 3, result.ExtractionMetadata.CandidateCount)
	assert.Contains(t, result.ExtractionMetadata.CurrenciesObserved, "USD")
	assert.Contains(t, result.ExtractionMetadata.CurrenciesObserved, "EUR")
}

func TestParsePricing_NoPlanCandidatesYieldsWarning(t *testing.T) {
	html := `<html><body><p>Nothing interesting here.</p></body></html>`
	result, err := ParsePricing([]byte(html), "https://acme.test")
	require.NoError(t, err)
	assert.Empty(t, result.Plans)
	assert.Contains(t, result.Warnings, "no plans detected")
}

func TestParsePricing_NestedPlanCardsDropAncestor(t *testing.T) {
	html := `
<html><body>
<div class="pricing-wrapper">
  <div class="plan-card">
    <h3>Basic</h3>
    <p class="price">$5/month</p>
  </div>
</div>
</body></html>`
	result, err := ParsePricing([]byte(html), "https://acme.test")
	require.NoError(t, err)
	require.Len(t, result.Plans, 1)
	assert.Equal(t, "Basic", result.Plans[0].Name)
}

const pricingTableHTML = `
<html><body>
<table>
<thead><tr><th>Feature</th><th>Starter</th><th>Pro</th></tr></thead>
<tbody>
<tr><td>Price</td><td>$10/month</td><td>$30/month</td></tr>
<tr><td>Seats</td><td>5</td><td>Unlimited</td></tr>
</tbody>
</table>
</body></html>`

func TestParsePricing_ExtractsTablePlans(t *testing.T) {
	result, err := ParsePricing([]byte(pricingTableHTML), "https://acme.test/pricing")
	require.NoError(t, err)
	require.Len(t, result.Plans, 2)

	byName := make(map[string]int)
	for i, p := range result.Plans {
		byName[p.Name] = i
	}
	starter := result.Plans[byName["Starter"]]
	require.NotNil(t, starter.Price.Amount)
	assert.Equal(t, 10.0, *starter.Price.Amount)
	assert.Contains(t, starter.Features, "Seats: 5")

	pro := result.Plans[byName["Pro"]]
	require.NotNil(t, pro.Price.Amount)
	assert.Equal(t, 30.0, *pro.Price.Amount)
	assert.Contains(t, pro.Features, "Seats: Unlimited")
}

func TestParsePricing_TableWithNoRecognizableValuesWarns(t *testing.T) {
	html := `<html><body><table><tr><th>A</th><th>B</th></tr></table></body></html>`
	result, err := ParsePricing([]byte(html), "https://acme.test")
	require.NoError(t, err)
	assert.Empty(t, result.Plans)
	assert.Contains(t, result.Warnings, "no plans detected")
}

func TestParsePricing_DedupesDuplicatePlanNamesKeepingRicherFeatureList(t *testing.T) {
	html := `
<html><body>
<div class="pricing-card" data-plan="Pro">
  <h3>Pro</h3>
  <p class="price">Free</p>
</div>
<div class="pricing-card" data-plan="Pro">
  <h3>Pro</h3>
  <p class="price">$20/month</p>
  <ul class="features"><li>API access</li><li>Webhooks</li></ul>
</div>
</body></html>`
	result, err := ParsePricing([]byte(html), "https://acme.test")
	require.NoError(t, err)
	require.Len(t, result.Plans, 1)
	plan := result.Plans[0]
	assert.Equal(t, "Pro", plan.Name)
	assert.Equal(t, models.PriceLabelFree, plan.Price.Label)
	assert.Contains(t, plan.Features, "API access")
}

func TestNormalizeAmount_HandlesCommaAndDotDecimalSeparators(t *testing.T) {
	v, ok := normalizeAmount("1,234.56")
	require.True(t, ok)
	assert.Equal(t, 1234.56, v)

	v, ok = normalizeAmount("1.234,56")
	require.True(t, ok)
	assert.Equal(t, 1234.56, v)

	v, ok = normalizeAmount("49,99")
	require.True(t, ok)
	assert.Equal(t, 49.99, v)

	v, ok = normalizeAmount("1 000")
	require.True(t, ok)
	assert.Equal(t, 1000.0, v)
}

func TestNormalizeCurrency_MapsSymbolsAndPassesThroughISOCodes(t *testing.T) {
	assert.Equal(t, "USD", normalizeCurrency("$"))
	assert.Equal(t, "EUR", normalizeCurrency("€"))
	assert.Equal(t, "CAD", normalizeCurrency("C$"))
	assert.Equal(t, "GBP", normalizeCurrency("GBP"))
}
