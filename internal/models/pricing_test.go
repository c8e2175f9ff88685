package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func amt(v float64) *float64 { return &v }

func TestPrice_Equal_BothNilAmountsAreEqual(t *testing.T) {
	a := Price{Label: PriceLabelFree}
	b := Price{Label: PriceLabelFree}
	assert.True(t, a.Equal(b))
}

func TestPrice_Equal_OneNilAmountIsNotEqual(t *testing.T) {
	a := Price{Amount: amt(10), Currency: "USD"}
	b := Price{Currency: "USD"}
	assert.False(t, a.Equal(b))
}

func TestPrice_Equal_ComparesAmountCurrencyCycleAndLabel(t *testing.T) {
	a := Price{Amount: amt(10), Currency: "USD", Cycle: BillingMonthly}
	b := Price{Amount: amt(10), Currency: "USD", Cycle: BillingMonthly}
	assert.True(t, a.Equal(b))

	diffAmount := Price{Amount: amt(20), Currency: "USD", Cycle: BillingMonthly}
	assert.False(t, a.Equal(diffAmount))

	diffCurrency := Price{Amount: amt(10), Currency: "EUR", Cycle: BillingMonthly}
	assert.False(t, a.Equal(diffCurrency))

	diffCycle := Price{Amount: amt(10), Currency: "USD", Cycle: BillingAnnual}
	assert.False(t, a.Equal(diffCycle))
}
