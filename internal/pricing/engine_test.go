package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func decf(v float64) Decimal { return decimal.NewFromFloat(v) }

func requireEqual(t *testing.T, want, got Decimal, field string) {
	t.Helper()
	require.True(t, want.Equal(got), "%s: want %s got %s", field, want, got)
}

func TestCalculateTotalCostWorkedExample(t *testing.T) {
	b := CalculateTotalCost(BreakdownInput{
		UnitPrice:       decf(100),
		ShippingCost:    decf(10),
		ShopDisplayName: "Amazon",
		AddedTaxes:      decf(5),
		OwnTaxes:        decf(2),
		ApplyBaseTax:    true,
	})
	requireEqual(t, decf(110), b.Base, "base")
	requireEqual(t, decf(7.7), b.BaseTaxAmount, "base_tax_amount")
	requireEqual(t, decf(117.7), b.BaseWithTax, "base_with_tax")
	requireEqual(t, decf(3), b.ShopTaxRate, "shop_tax_rate")
	requireEqual(t, decf(3.531), b.ShopTaxAmount, "shop_tax_amount")
	requireEqual(t, decf(128.231), b.Total, "total")
}

func TestCalculateTotalCostExplicitZeroFallsThrough(t *testing.T) {
	// An explicit rate of zero is treated as "not provided" and defers to the
	// resolver, so the unknown shop still picks up the default 5%.
	withZero := CalculateTotalCost(BreakdownInput{
		UnitPrice:           decf(100),
		ShopDisplayName:     "Unknown Shop",
		ExplicitShopTaxRate: decimal.Zero,
		ApplyBaseTax:        true,
	})
	omitted := CalculateTotalCost(BreakdownInput{
		UnitPrice:       decf(100),
		ShopDisplayName: "Unknown Shop",
		ApplyBaseTax:    true,
	})
	requireEqual(t, omitted.Total, withZero.Total, "total")
	requireEqual(t, decf(5), withZero.ShopTaxRate, "shop_tax_rate")
}

func TestCalculateTotalCostExplicitRateOverrides(t *testing.T) {
	b := CalculateTotalCost(BreakdownInput{
		UnitPrice:           decf(200),
		ShopDisplayName:     "Amazon",
		ExplicitShopTaxRate: decf(10),
		ApplyBaseTax:        true,
	})
	requireEqual(t, decf(10), b.ShopTaxRate, "shop_tax_rate")
	requireEqual(t, decf(21.4), b.ShopTaxAmount, "shop_tax_amount")
}

func TestCalculateTotalCostBaseTaxToggle(t *testing.T) {
	b := CalculateTotalCost(BreakdownInput{
		UnitPrice:       decf(100),
		ShopDisplayName: "Shein",
		ApplyBaseTax:    false,
	})
	require.True(t, b.BaseTaxAmount.IsZero())
	requireEqual(t, b.Base, b.BaseWithTax, "base_with_tax")
	requireEqual(t, decf(100), b.Total, "total")
}

func TestCalculateTotalCostBaseTaxDisabledStillAppliesShopTax(t *testing.T) {
	// Only the base tax is skipped; the shop surcharge applies to the untaxed base.
	b := CalculateTotalCost(BreakdownInput{
		UnitPrice:       decf(100),
		ShopDisplayName: "Amazon",
		ApplyBaseTax:    false,
	})
	require.True(t, b.BaseTaxAmount.IsZero())
	requireEqual(t, decf(3), b.ShopTaxAmount, "shop_tax_amount")
	requireEqual(t, decf(103), b.Total, "total")
}

func TestCalculateTotalCostZeroBase(t *testing.T) {
	b := CalculateTotalCost(BreakdownInput{
		ShopDisplayName: "Amazon",
		AddedTaxes:      decf(4),
		OwnTaxes:        decf(1.5),
		ApplyBaseTax:    true,
	})
	require.True(t, b.Base.IsZero())
	require.True(t, b.BaseTaxAmount.IsZero())
	require.True(t, b.ShopTaxAmount.IsZero())
	requireEqual(t, decf(5.5), b.Total, "total")
}

func TestCalculateTotalCostMonotonicity(t *testing.T) {
	base := BreakdownInput{
		UnitPrice:       decf(50),
		ShippingCost:    decf(5),
		ShopDisplayName: "Amazon",
		AddedTaxes:      decf(1),
		OwnTaxes:        decf(1),
		ApplyBaseTax:    true,
	}
	reference := CalculateTotalCost(base).Total

	bump := decf(0.01)
	variants := []BreakdownInput{
		{UnitPrice: base.UnitPrice.Add(bump), ShippingCost: base.ShippingCost, ShopDisplayName: base.ShopDisplayName, AddedTaxes: base.AddedTaxes, OwnTaxes: base.OwnTaxes, ApplyBaseTax: true},
		{UnitPrice: base.UnitPrice, ShippingCost: base.ShippingCost.Add(bump), ShopDisplayName: base.ShopDisplayName, AddedTaxes: base.AddedTaxes, OwnTaxes: base.OwnTaxes, ApplyBaseTax: true},
		{UnitPrice: base.UnitPrice, ShippingCost: base.ShippingCost, ShopDisplayName: base.ShopDisplayName, AddedTaxes: base.AddedTaxes.Add(bump), OwnTaxes: base.OwnTaxes, ApplyBaseTax: true},
		{UnitPrice: base.UnitPrice, ShippingCost: base.ShippingCost, ShopDisplayName: base.ShopDisplayName, AddedTaxes: base.AddedTaxes, OwnTaxes: base.OwnTaxes.Add(bump), ApplyBaseTax: true},
	}
	for i, in := range variants {
		got := CalculateTotalCost(in).Total
		require.True(t, got.GreaterThanOrEqual(reference), "variant %d: total %s decreased below %s", i, got, reference)
	}
}

func TestCalculateTotalCostTotalNeverBelowBase(t *testing.T) {
	inputs := []BreakdownInput{
		{UnitPrice: decf(10), ShippingCost: decf(2), ShopDisplayName: "Shein", ApplyBaseTax: false},
		{UnitPrice: decf(0.01), ShopDisplayName: "Temu", ApplyBaseTax: true},
		{UnitPrice: decf(999.99), ShippingCost: decf(50), ShopDisplayName: "AliExpress", AddedTaxes: decf(3), ApplyBaseTax: true},
	}
	for _, in := range inputs {
		b := CalculateTotalCost(in)
		require.True(t, b.Total.GreaterThanOrEqual(b.Base), "total %s below base %s", b.Total, b.Base)
	}
}

func TestBreakdownRounded(t *testing.T) {
	b := CalculateTotalCost(BreakdownInput{
		UnitPrice:       decf(100),
		ShippingCost:    decf(10),
		ShopDisplayName: "Amazon",
		AddedTaxes:      decf(5),
		OwnTaxes:        decf(2),
		ApplyBaseTax:    true,
	}).Rounded()
	requireEqual(t, decf(3.53), b.ShopTaxAmount, "shop_tax_amount")
	requireEqual(t, decf(128.23), b.Total, "total")
	require.LessOrEqual(t, int(b.Total.Exponent())*-1, 2)
}

func TestProjectToLocalCurrency(t *testing.T) {
	for _, amount := range []Decimal{decf(0), decf(1), decf(128.23), decf(999999.99)} {
		requireEqual(t, amount, ProjectToLocalCurrency(amount, decf(1)), "identity")
	}
	require.True(t, ProjectToLocalCurrency(decimal.Zero, decf(36.55)).IsZero())

	got := ProjectToLocalCurrency(decf(128.23), decf(36.5))
	requireEqual(t, decf(4680.40), got, "projection")
}

func TestRoundMoneyHalfAwayFromZero(t *testing.T) {
	requireEqual(t, decf(18.01), RoundMoney(decf(18.005)), "round up at half")
	requireEqual(t, decf(18.00), RoundMoney(decf(18.004)), "round down below half")
	requireEqual(t, decf(-18.01), RoundMoney(decf(-18.005)), "round away from zero for negatives")
}
