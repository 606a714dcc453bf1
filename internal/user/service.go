package user

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/envioex/backend-envioex/internal/common"
)

// AddressInput is the payload for creating or updating a consignee entry.
type AddressInput struct {
	Label       string
	Recipient   string
	Phone       string
	TaxID       string
	CountryCode string
	Province    string
	City        string
	PostalCode  string
	Line1       string
	Line2       string
	IsDefault   bool
}

// Service orchestrates address book operations.
type Service struct {
	store Store
}

// NewService constructs a new address service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// List returns paginated addresses for a user, default entry first.
func (s *Service) List(ctx context.Context, userID string, page, perPage int) ([]Address, int64, error) {
	uid, err := parseUserID(userID)
	if err != nil {
		return nil, 0, err
	}
	if perPage <= 0 {
		perPage = 20
	}
	page = max(page, 1)
	addresses, err := s.store.List(ctx, uid, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.store.Count(ctx, uid)
	if err != nil {
		return nil, 0, err
	}
	return addresses, total, nil
}

// Create validates and inserts a new consignee entry for the given user.
func (s *Service) Create(ctx context.Context, userID string, input AddressInput) (Address, error) {
	uid, err := parseUserID(userID)
	if err != nil {
		return Address{}, err
	}
	entry, err := buildAddress(uid, uuid.Nil, input)
	if err != nil {
		return Address{}, err
	}
	return s.store.Create(ctx, entry)
}

// Update modifies an existing entry owned by the user.
func (s *Service) Update(ctx context.Context, userID, addressID string, input AddressInput) (Address, error) {
	uid, err := parseUserID(userID)
	if err != nil {
		return Address{}, err
	}
	aid, err := uuid.Parse(strings.TrimSpace(addressID))
	if err != nil {
		return Address{}, common.NotFoundError("address not found")
	}
	entry, err := buildAddress(uid, aid, input)
	if err != nil {
		return Address{}, err
	}
	updated, err := s.store.Update(ctx, entry)
	if errors.Is(err, ErrAddressNotFound) {
		return Address{}, common.NotFoundError("address not found")
	}
	return updated, err
}

// Delete removes an entry owned by the user.
func (s *Service) Delete(ctx context.Context, userID, addressID string) error {
	uid, err := parseUserID(userID)
	if err != nil {
		return err
	}
	aid, err := uuid.Parse(strings.TrimSpace(addressID))
	if err != nil {
		return common.NotFoundError("address not found")
	}
	if err := s.store.Delete(ctx, uid, aid); err != nil {
		if errors.Is(err, ErrAddressNotFound) {
			return common.NotFoundError("address not found")
		}
		return err
	}
	return nil
}

func parseUserID(userID string) (uuid.UUID, error) {
	uid, err := uuid.Parse(strings.TrimSpace(userID))
	if err != nil {
		return uuid.Nil, common.NewAppError("UNAUTHORIZED", "unauthorized", http.StatusUnauthorized, nil)
	}
	return uid, nil
}

// buildAddress normalizes and validates the input. The country code is
// uppercased ISO 3166-1 alpha-2; the phone keeps its formatting but must
// contain enough digits to be dialable.
func buildAddress(userID, addressID uuid.UUID, input AddressInput) (Address, error) {
	a := Address{
		ID:          addressID,
		UserID:      userID,
		Label:       strings.TrimSpace(input.Label),
		Recipient:   strings.TrimSpace(input.Recipient),
		Phone:       strings.TrimSpace(input.Phone),
		TaxID:       strings.TrimSpace(input.TaxID),
		CountryCode: strings.ToUpper(strings.TrimSpace(input.CountryCode)),
		Province:    strings.TrimSpace(input.Province),
		City:        strings.TrimSpace(input.City),
		PostalCode:  strings.TrimSpace(input.PostalCode),
		Line1:       strings.TrimSpace(input.Line1),
		Line2:       strings.TrimSpace(input.Line2),
		IsDefault:   input.IsDefault,
	}
	switch {
	case a.Recipient == "":
		return Address{}, validationError("recipient is required")
	case a.Line1 == "":
		return Address{}, validationError("line1 is required")
	case !validCountryCode(a.CountryCode):
		return Address{}, validationError("country_code must be a two-letter ISO code")
	case digitCount(a.Phone) < 7:
		return Address{}, validationError("phone must contain at least 7 digits")
	}
	return a, nil
}

func validationError(message string) *common.AppError {
	return common.NewAppError("VALIDATION_ERROR", message, http.StatusBadRequest, nil)
}

func validCountryCode(code string) bool {
	if len(code) != 2 {
		return false
	}
	return code[0] >= 'A' && code[0] <= 'Z' && code[1] >= 'A' && code[1] <= 'Z'
}

func digitCount(s string) int {
	var n int
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}
