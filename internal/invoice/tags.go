package invoice

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/envioex/backend-envioex/internal/pricing"
)

// Decimal aliases the monetary type shared with the pricing engine.
type Decimal = pricing.Decimal

// TagKind discriminates how a line item is billed.
type TagKind string

const (
	// TagPesaje bills by weight: weight × cost per pound, plus an optional
	// flat surcharge.
	TagPesaje TagKind = "pesaje"
	// TagNominal bills a flat amount.
	TagNominal TagKind = "nominal"
)

var (
	// ErrInvalidTagKind is returned for kinds outside pesaje/nominal.
	ErrInvalidTagKind = errors.New("invoice: invalid tag kind")
	// ErrZeroSubtotal rejects line items that would bill nothing.
	ErrZeroSubtotal = errors.New("invoice: tag subtotal must be greater than zero")
)

// Tag is a single invoice line item. Zero-valued numeric fields are treated
// as zero by the calculators, never as an error, so partially filled form
// state stays computable.
type Tag struct {
	ID          string          `json:"id,omitempty"`
	Kind        TagKind         `json:"kind"`
	Description string          `json:"description,omitempty"`
	Weight      pricing.Decimal `json:"weight"`
	CostPerLb   pricing.Decimal `json:"cost_per_lb"`
	FixedCost   pricing.Decimal `json:"fixed_cost"`
	Subtotal    pricing.Decimal `json:"subtotal"`
}

// Pesaje builds a weight-billed tag.
func Pesaje(weight, costPerLb, fixedCost pricing.Decimal) Tag {
	t := Tag{Kind: TagPesaje, Weight: weight, CostPerLb: costPerLb, FixedCost: fixedCost}
	t.Subtotal = TagSubtotal(t)
	return t
}

// Nominal builds a flat-billed tag.
func Nominal(fixedCost pricing.Decimal) Tag {
	t := Tag{Kind: TagNominal, FixedCost: fixedCost}
	t.Subtotal = TagSubtotal(t)
	return t
}

// Normalize zeroes the fields irrelevant to the tag's kind and refreshes the
// derived subtotal. Called at every mutation point so a kind switch cannot
// leave stale sibling fields behind.
func (t Tag) Normalize() Tag {
	switch t.Kind {
	case TagNominal:
		t.Weight = decimal.Zero
		t.CostPerLb = decimal.Zero
	case TagPesaje:
		// All three fields participate.
	}
	t.Subtotal = TagSubtotal(t)
	return t
}

// TagSubtotal derives the billable amount for a single tag. Pesaje tags bill
// weight × cost per pound plus the flat surcharge; nominal tags bill the flat
// amount alone, ignoring weight fields even when populated.
func TagSubtotal(t Tag) pricing.Decimal {
	switch t.Kind {
	case TagPesaje:
		return t.Weight.Mul(t.CostPerLb).Add(t.FixedCost)
	case TagNominal:
		return t.FixedCost
	}
	return decimal.Zero
}

// Total sums every tag subtotal and rounds the result to exactly 2 decimal
// places. An empty tag list totals zero.
func Total(tags []Tag) pricing.Decimal {
	sum := decimal.Zero
	for _, t := range tags {
		sum = sum.Add(TagSubtotal(t))
	}
	return pricing.RoundMoney(sum)
}

// ValidateTag enforces the submission rules: pesaje tags need a positive
// weight and cost per pound, nominal tags a positive fixed cost, and no tag
// may bill zero. Calculation stays total; only submission is gated.
func ValidateTag(t Tag) error {
	switch t.Kind {
	case TagPesaje:
		if !t.Weight.IsPositive() {
			return fmt.Errorf("invoice: pesaje tag requires weight > 0")
		}
		if !t.CostPerLb.IsPositive() {
			return fmt.Errorf("invoice: pesaje tag requires cost_per_lb > 0")
		}
	case TagNominal:
		if !t.FixedCost.IsPositive() {
			return fmt.Errorf("invoice: nominal tag requires fixed_cost > 0")
		}
	default:
		return ErrInvalidTagKind
	}
	if !TagSubtotal(t).IsPositive() {
		return ErrZeroSubtotal
	}
	return nil
}

// CheckPrecision verifies that a total carries at most 2 decimal places.
func CheckPrecision(total pricing.Decimal) error {
	if !total.Equal(pricing.RoundMoney(total)) {
		return fmt.Errorf("invoice: total %s has more than 2 decimal places", total)
	}
	return nil
}
