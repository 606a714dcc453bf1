package pricing

import "github.com/shopspring/decimal"

// Decimal aliases the arbitrary-precision type used for every monetary value.
type Decimal = decimal.Decimal

var (
	baseTaxRate = decimal.NewFromFloat(0.07)
	oneHundred  = decimal.NewFromInt(100)
)

func dec(v int64) Decimal { return decimal.NewFromInt(v) }

// BreakdownInput carries the raw purchase figures for a single line item.
// Monetary fields are USD. The zero value of ExplicitShopTaxRate means "not
// provided": the rate is resolved from ShopDisplayName instead, so an explicit
// zero cannot force a zero shop tax (name the shop so the resolver returns
// zero, e.g. "Shein").
type BreakdownInput struct {
	UnitPrice           Decimal
	ShippingCost        Decimal
	ShopDisplayName     string
	ExplicitShopTaxRate Decimal
	AddedTaxes          Decimal
	OwnTaxes            Decimal
	ApplyBaseTax        bool
}

// Breakdown itemizes every component of the final billable cost.
type Breakdown struct {
	Subtotal      Decimal `json:"subtotal"`
	ShippingCost  Decimal `json:"shipping_cost"`
	Base          Decimal `json:"base"`
	BaseTaxAmount Decimal `json:"base_tax_amount"`
	BaseWithTax   Decimal `json:"base_with_tax"`
	ShopTaxRate   Decimal `json:"shop_tax_rate"`
	ShopTaxAmount Decimal `json:"shop_tax_amount"`
	AddedTaxes    Decimal `json:"added_taxes"`
	OwnTaxes      Decimal `json:"own_taxes"`
	Total         Decimal `json:"total"`
}

// CalculateTotalCost computes the full cost breakdown in a fixed order: the 7%
// base tax is assessed before the shop surcharge, and the surcharge applies to
// the tax-inclusive base. Disabling the base tax only zeroes the base tax term;
// the shop surcharge then applies to the untaxed base. Inputs are not
// validated, the arithmetic is pure and total over all values.
func CalculateTotalCost(in BreakdownInput) Breakdown {
	base := in.UnitPrice.Add(in.ShippingCost)

	baseTax := decimal.Zero
	if in.ApplyBaseTax {
		baseTax = base.Mul(baseTaxRate)
	}
	baseWithTax := base.Add(baseTax)

	rate := in.ExplicitShopTaxRate
	if rate.IsZero() {
		rate = ResolveShopTaxRate(in.ShopDisplayName)
	}
	shopTax := baseWithTax.Mul(rate).Div(oneHundred)

	total := base.Add(baseTax).Add(shopTax).Add(in.AddedTaxes).Add(in.OwnTaxes)

	return Breakdown{
		Subtotal:      in.UnitPrice,
		ShippingCost:  in.ShippingCost,
		Base:          base,
		BaseTaxAmount: baseTax,
		BaseWithTax:   baseWithTax,
		ShopTaxRate:   rate,
		ShopTaxAmount: shopTax,
		AddedTaxes:    in.AddedTaxes,
		OwnTaxes:      in.OwnTaxes,
		Total:         total,
	}
}

// Rounded returns a copy of the breakdown with every monetary component
// normalized to 2 decimals, suitable for persistence.
func (b Breakdown) Rounded() Breakdown {
	return Breakdown{
		Subtotal:      RoundMoney(b.Subtotal),
		ShippingCost:  RoundMoney(b.ShippingCost),
		Base:          RoundMoney(b.Base),
		BaseTaxAmount: RoundMoney(b.BaseTaxAmount),
		BaseWithTax:   RoundMoney(b.BaseWithTax),
		ShopTaxRate:   b.ShopTaxRate,
		ShopTaxAmount: RoundMoney(b.ShopTaxAmount),
		AddedTaxes:    RoundMoney(b.AddedTaxes),
		OwnTaxes:      RoundMoney(b.OwnTaxes),
		Total:         RoundMoney(b.Total),
	}
}

// RoundMoney normalizes an amount to 2 decimal places, rounding half away
// from zero. Every total persisted or displayed goes through this helper so
// the same figure never rounds two different ways on two screens.
func RoundMoney(amount Decimal) Decimal {
	return amount.Round(2)
}

// ProjectToLocalCurrency converts a USD amount into the configured local
// currency for display. A rate of 1 makes the projection an identity, which is
// the fallback when no exchange rate is configured.
func ProjectToLocalCurrency(usdAmount, exchangeRate Decimal) Decimal {
	return RoundMoney(usdAmount.Mul(exchangeRate))
}
