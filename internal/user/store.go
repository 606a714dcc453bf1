package user

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrStoreUnavailable indicates the address store dependency is not configured.
var ErrStoreUnavailable = errors.New("user: store unavailable")

// ErrAddressNotFound is returned when the requested address does not exist
// or belongs to another user.
var ErrAddressNotFound = errors.New("user: address not found")

// Address is a consignee entry in a user's address book: who receives a
// cross-border shipment and where. TaxID carries the recipient's customs
// identifier (cédula, RUC or similar) for destinations that require one on
// the import declaration.
type Address struct {
	ID          uuid.UUID `json:"id"`
	UserID      uuid.UUID `json:"-"`
	Label       string    `json:"label,omitempty"`
	Recipient   string    `json:"recipient"`
	Phone       string    `json:"phone"`
	TaxID       string    `json:"tax_id,omitempty"`
	CountryCode string    `json:"country_code"`
	Province    string    `json:"province,omitempty"`
	City        string    `json:"city,omitempty"`
	PostalCode  string    `json:"postal_code,omitempty"`
	Line1       string    `json:"line1"`
	Line2       string    `json:"line2,omitempty"`
	IsDefault   bool      `json:"is_default"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Store provides database accessors for the address book.
type Store interface {
	List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Address, error)
	Count(ctx context.Context, userID uuid.UUID) (int64, error)
	Get(ctx context.Context, userID, addressID uuid.UUID) (Address, error)
	Create(ctx context.Context, a Address) (Address, error)
	Update(ctx context.Context, a Address) (Address, error)
	Delete(ctx context.Context, userID, addressID uuid.UUID) error
}

// NewStore constructs a Store backed by a pgx connection pool.
func NewStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

type pgStore struct {
	pool *pgxpool.Pool
}

const addressColumns = `id, user_id, label, recipient, phone, tax_id, country_code, province, city, postal_code, line1, line2, is_default, created_at, updated_at`

func (s *pgStore) List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Address, error) {
	if s == nil || s.pool == nil {
		return nil, ErrStoreUnavailable
	}
	rows, err := s.pool.Query(ctx, `SELECT `+addressColumns+`
FROM recipient_addresses WHERE user_id = $1 ORDER BY is_default DESC, created_at DESC LIMIT $2 OFFSET $3`,
		userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	addresses := make([]Address, 0, limit)
	for rows.Next() {
		a, err := scanAddress(rows)
		if err != nil {
			return nil, err
		}
		addresses = append(addresses, a)
	}
	return addresses, rows.Err()
}

func (s *pgStore) Count(ctx context.Context, userID uuid.UUID) (int64, error) {
	if s == nil || s.pool == nil {
		return 0, ErrStoreUnavailable
	}
	var total int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM recipient_addresses WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (s *pgStore) Get(ctx context.Context, userID, addressID uuid.UUID) (Address, error) {
	if s == nil || s.pool == nil {
		return Address{}, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `SELECT `+addressColumns+`
FROM recipient_addresses WHERE id = $1 AND user_id = $2`, addressID, userID)
	a, err := scanAddress(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Address{}, ErrAddressNotFound
	}
	return a, err
}

// Create inserts the entry, demoting any existing default first so a user
// never carries two default consignees.
func (s *pgStore) Create(ctx context.Context, in Address) (Address, error) {
	if s == nil || s.pool == nil {
		return Address{}, ErrStoreUnavailable
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Address{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if in.IsDefault {
		if _, err := tx.Exec(ctx, `UPDATE recipient_addresses SET is_default = false WHERE user_id = $1`, in.UserID); err != nil {
			return Address{}, err
		}
	}
	row := tx.QueryRow(ctx, `INSERT INTO recipient_addresses
(user_id, label, recipient, phone, tax_id, country_code, province, city, postal_code, line1, line2, is_default)
VALUES ($1, NULLIF($2, ''), $3, $4, NULLIF($5, ''), $6, NULLIF($7, ''), NULLIF($8, ''), NULLIF($9, ''), $10, NULLIF($11, ''), $12)
RETURNING `+addressColumns,
		in.UserID, in.Label, in.Recipient, in.Phone, in.TaxID, in.CountryCode,
		in.Province, in.City, in.PostalCode, in.Line1, in.Line2, in.IsDefault)
	created, err := scanAddress(row)
	if err != nil {
		return Address{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Address{}, err
	}
	return created, nil
}

func (s *pgStore) Update(ctx context.Context, in Address) (Address, error) {
	if s == nil || s.pool == nil {
		return Address{}, ErrStoreUnavailable
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Address{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if in.IsDefault {
		if _, err := tx.Exec(ctx, `UPDATE recipient_addresses SET is_default = false WHERE user_id = $1 AND id <> $2`, in.UserID, in.ID); err != nil {
			return Address{}, err
		}
	}
	row := tx.QueryRow(ctx, `UPDATE recipient_addresses SET
label = NULLIF($3, ''), recipient = $4, phone = $5, tax_id = NULLIF($6, ''),
country_code = $7, province = NULLIF($8, ''), city = NULLIF($9, ''),
postal_code = NULLIF($10, ''), line1 = $11, line2 = NULLIF($12, ''),
is_default = $13, updated_at = now()
WHERE id = $1 AND user_id = $2 RETURNING `+addressColumns,
		in.ID, in.UserID, in.Label, in.Recipient, in.Phone, in.TaxID, in.CountryCode,
		in.Province, in.City, in.PostalCode, in.Line1, in.Line2, in.IsDefault)
	updated, err := scanAddress(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Address{}, ErrAddressNotFound
	}
	if err != nil {
		return Address{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Address{}, err
	}
	return updated, nil
}

func (s *pgStore) Delete(ctx context.Context, userID, addressID uuid.UUID) error {
	if s == nil || s.pool == nil {
		return ErrStoreUnavailable
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM recipient_addresses WHERE id = $1 AND user_id = $2`, addressID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAddressNotFound
	}
	return nil
}

func scanAddress(row pgx.Row) (Address, error) {
	var a Address
	var label, taxID, province, city, postal, line2 *string
	if err := row.Scan(&a.ID, &a.UserID, &label, &a.Recipient, &a.Phone, &taxID, &a.CountryCode,
		&province, &city, &postal, &a.Line1, &line2, &a.IsDefault, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return Address{}, err
	}
	assign := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	assign(&a.Label, label)
	assign(&a.TaxID, taxID)
	assign(&a.Province, province)
	assign(&a.City, city)
	assign(&a.PostalCode, postal)
	assign(&a.Line2, line2)
	return a, nil
}
