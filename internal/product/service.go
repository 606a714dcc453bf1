package product

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/envioex/backend-envioex/internal/common"
	"github.com/envioex/backend-envioex/internal/pricing"
	"github.com/envioex/backend-envioex/internal/settings"
)

// Input carries the raw purchase figures accepted from clients. ApplyBaseTax
// is a pointer so an absent field falls back to the configured default.
type Input struct {
	OrderID      uuid.UUID
	Name         string
	Link         string
	ShopName     string
	UnitPrice    decimal.Decimal
	ShippingCost decimal.Decimal
	ShopTaxRate  decimal.Decimal
	AddedTaxes   decimal.Decimal
	OwnTaxes     decimal.Decimal
	ApplyBaseTax *bool
}

// Quote is a non-persisted pricing preview: the full USD breakdown plus its
// local-currency projection at the current exchange rate.
type Quote struct {
	Breakdown    pricing.Breakdown `json:"breakdown"`
	ExchangeRate decimal.Decimal   `json:"exchange_rate"`
	LocalTotal   decimal.Decimal   `json:"local_total"`
}

// Service computes and persists product cost breakdowns.
type Service struct {
	Store          Store
	Settings       *settings.Service
	BaseTaxDefault bool
}

// Create persists a new product with a freshly computed breakdown.
func (s *Service) Create(ctx context.Context, in Input) (Product, error) {
	p, err := s.build(in)
	if err != nil {
		return Product{}, err
	}
	created, err := s.Store.Insert(ctx, p)
	if err != nil {
		return Product{}, fmt.Errorf("insert product: %w", err)
	}
	return created, nil
}

// Update replaces the product's raw inputs and recomputes its breakdown.
func (s *Service) Update(ctx context.Context, id uuid.UUID, in Input) (Product, error) {
	p, err := s.build(in)
	if err != nil {
		return Product{}, err
	}
	p.ID = id
	return s.Store.Update(ctx, p)
}

// Get fetches a single product.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Product, error) {
	return s.Store.Get(ctx, id)
}

// List returns a page of products plus the overall count.
func (s *Service) List(ctx context.Context, page, perPage int) ([]Product, int64, error) {
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 {
		perPage = 20
	}
	products, err := s.Store.List(ctx, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.Store.Count(ctx)
	if err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

// Delete removes a product.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.Store.Delete(ctx, id)
}

// Quote computes a breakdown and its local-currency projection without
// touching the database.
func (s *Service) Quote(ctx context.Context, in Input) (Quote, error) {
	if err := validateAmounts(in); err != nil {
		return Quote{}, err
	}
	breakdown := pricing.CalculateTotalCost(s.breakdownInput(in)).Rounded()
	rate := s.exchangeRate(ctx)
	return Quote{
		Breakdown:    breakdown,
		ExchangeRate: rate,
		LocalTotal:   pricing.ProjectToLocalCurrency(breakdown.Total, rate),
	}, nil
}

func (s *Service) build(in Input) (Product, error) {
	if err := validateInput(in); err != nil {
		return Product{}, err
	}
	applyBaseTax := s.BaseTaxDefault
	if in.ApplyBaseTax != nil {
		applyBaseTax = *in.ApplyBaseTax
	}
	breakdown := pricing.CalculateTotalCost(s.breakdownInput(in)).Rounded()
	return Product{
		OrderID:      in.OrderID,
		Name:         in.Name,
		Link:         in.Link,
		ShopName:     in.ShopName,
		UnitPrice:    in.UnitPrice,
		ShippingCost: in.ShippingCost,
		ShopTaxRate:  in.ShopTaxRate,
		AddedTaxes:   in.AddedTaxes,
		OwnTaxes:     in.OwnTaxes,
		ApplyBaseTax: applyBaseTax,
		Breakdown:    breakdown,
	}, nil
}

func (s *Service) breakdownInput(in Input) pricing.BreakdownInput {
	applyBaseTax := s.BaseTaxDefault
	if in.ApplyBaseTax != nil {
		applyBaseTax = *in.ApplyBaseTax
	}
	return pricing.BreakdownInput{
		UnitPrice:           in.UnitPrice,
		ShippingCost:        in.ShippingCost,
		ShopDisplayName:     in.ShopName,
		ExplicitShopTaxRate: in.ShopTaxRate,
		AddedTaxes:          in.AddedTaxes,
		OwnTaxes:            in.OwnTaxes,
		ApplyBaseTax:        applyBaseTax,
	}
}

func (s *Service) exchangeRate(ctx context.Context) decimal.Decimal {
	if s.Settings == nil {
		return decimal.NewFromInt(1)
	}
	rate := s.Settings.ExchangeRate(ctx)
	if !rate.IsPositive() {
		return decimal.NewFromInt(1)
	}
	return rate
}

func validateInput(in Input) error {
	if in.Name == "" {
		return common.NewAppError("VALIDATION_ERROR", "name is required", http.StatusBadRequest, nil)
	}
	return validateAmounts(in)
}

func validateAmounts(in Input) error {
	if in.UnitPrice.IsNegative() || in.ShippingCost.IsNegative() {
		return common.NewAppError("VALIDATION_ERROR", "prices must not be negative", http.StatusBadRequest, nil)
	}
	if in.ShopTaxRate.IsNegative() {
		return common.NewAppError("VALIDATION_ERROR", "shop_tax_rate must not be negative", http.StatusBadRequest, nil)
	}
	return nil
}
