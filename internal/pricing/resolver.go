package pricing

import "strings"

// Marketplace surcharge percentages applied on top of the tax-inclusive base.
var (
	rateZero    = dec(0)
	rateLow     = dec(3)
	rateDefault = dec(5)
)

// shopRule maps a marketplace name fragment to its surcharge rate.
type shopRule struct {
	fragment string
	rate     Decimal
}

// Evaluation order matters: earlier fragments win even if a later one also matches.
var shopRules = []shopRule{
	{fragment: "shein", rate: rateZero},
	{fragment: "amazon", rate: rateLow},
	{fragment: "temu", rate: rateLow},
	{fragment: "aliexpress", rate: rateDefault},
}

// ResolveShopTaxRate returns the surcharge percentage for a shop display name.
// Matching is by case-insensitive substring, so "Amazon México" resolves the
// same as "amazon". Unknown names, including the empty string, fall back to
// the default rate; the function never fails.
func ResolveShopTaxRate(shopName string) Decimal {
	normalized := strings.ToLower(strings.TrimSpace(shopName))
	for _, rule := range shopRules {
		if strings.Contains(normalized, rule.fragment) {
			return rule.rate
		}
	}
	return rateDefault
}
