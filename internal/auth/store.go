package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrStoreUnavailable indicates the auth store dependency is not configured.
var ErrStoreUnavailable = errors.New("auth: store unavailable")

// UserRecord is the stored user row including credentials.
type UserRecord struct {
	ID           uuid.UUID
	Name         string
	Email        string
	PasswordHash string
	Roles        []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Session is a refresh-token session row. RefreshToken holds the sha256 hash
// of the issued token, never the token itself.
type Session struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	RefreshToken string
	UserAgent    string
	IP           string
	ExpiresAt    time.Time
	CreatedAt    time.Time
}

// PasswordReset is a single-use password reset token row.
type PasswordReset struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Token     string
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

// Store provides the persistence operations behind the auth service.
type Store interface {
	CreateUser(ctx context.Context, name, email, passwordHash string) (UserRecord, error)
	GetUserByEmail(ctx context.Context, email string) (UserRecord, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (UserRecord, error)
	UpdateUserPassword(ctx context.Context, id uuid.UUID, passwordHash string) error

	CreateSession(ctx context.Context, s Session) (Session, error)
	GetSessionByToken(ctx context.Context, hashedToken string) (Session, error)
	RotateSessionToken(ctx context.Context, id uuid.UUID, hashedToken string, expiresAt time.Time) error
	DeleteSessionByToken(ctx context.Context, hashedToken string) error
	DeleteSessionsByUser(ctx context.Context, userID uuid.UUID) error

	CreatePasswordReset(ctx context.Context, userID uuid.UUID, token string, expiresAt time.Time) (PasswordReset, error)
	GetPasswordResetByToken(ctx context.Context, token string) (PasswordReset, error)
	UsePasswordReset(ctx context.Context, token string) error
	DeletePasswordResetsByUser(ctx context.Context, userID uuid.UUID) error
}

// NewStore constructs a Store backed by a pgx connection pool.
func NewStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

type pgStore struct {
	pool *pgxpool.Pool
}

const userColumns = `id, name, email, password_hash, roles, created_at, updated_at`

func (s *pgStore) CreateUser(ctx context.Context, name, email, passwordHash string) (UserRecord, error) {
	if s == nil || s.pool == nil {
		return UserRecord{}, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `INSERT INTO users (name, email, password_hash)
VALUES ($1, $2, $3) RETURNING `+userColumns, name, email, passwordHash)
	return scanUser(row)
}

func (s *pgStore) GetUserByEmail(ctx context.Context, email string) (UserRecord, error) {
	if s == nil || s.pool == nil {
		return UserRecord{}, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanUser(row)
}

func (s *pgStore) GetUserByID(ctx context.Context, id uuid.UUID) (UserRecord, error) {
	if s == nil || s.pool == nil {
		return UserRecord{}, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (s *pgStore) UpdateUserPassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	if s == nil || s.pool == nil {
		return ErrStoreUnavailable
	}
	tag, err := s.pool.Exec(ctx, `UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`, id, passwordHash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (s *pgStore) CreateSession(ctx context.Context, in Session) (Session, error) {
	if s == nil || s.pool == nil {
		return Session{}, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `INSERT INTO sessions (user_id, refresh_token, user_agent, ip, expires_at)
VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5)
RETURNING id, user_id, refresh_token, user_agent, ip, expires_at, created_at`,
		in.UserID, in.RefreshToken, in.UserAgent, in.IP, in.ExpiresAt)
	return scanSession(row)
}

func (s *pgStore) GetSessionByToken(ctx context.Context, hashedToken string) (Session, error) {
	if s == nil || s.pool == nil {
		return Session{}, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `SELECT id, user_id, refresh_token, user_agent, ip, expires_at, created_at
FROM sessions WHERE refresh_token = $1`, hashedToken)
	return scanSession(row)
}

func (s *pgStore) RotateSessionToken(ctx context.Context, id uuid.UUID, hashedToken string, expiresAt time.Time) error {
	if s == nil || s.pool == nil {
		return ErrStoreUnavailable
	}
	tag, err := s.pool.Exec(ctx, `UPDATE sessions SET refresh_token = $2, expires_at = $3 WHERE id = $1`,
		id, hashedToken, expiresAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (s *pgStore) DeleteSessionByToken(ctx context.Context, hashedToken string) error {
	if s == nil || s.pool == nil {
		return ErrStoreUnavailable
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE refresh_token = $1`, hashedToken)
	return err
}

func (s *pgStore) DeleteSessionsByUser(ctx context.Context, userID uuid.UUID) error {
	if s == nil || s.pool == nil {
		return ErrStoreUnavailable
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
	return err
}

func (s *pgStore) CreatePasswordReset(ctx context.Context, userID uuid.UUID, token string, expiresAt time.Time) (PasswordReset, error) {
	if s == nil || s.pool == nil {
		return PasswordReset{}, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `INSERT INTO password_resets (user_id, token, expires_at)
VALUES ($1, $2, $3) RETURNING id, user_id, token, expires_at, used_at, created_at`,
		userID, token, expiresAt)
	return scanPasswordReset(row)
}

func (s *pgStore) GetPasswordResetByToken(ctx context.Context, token string) (PasswordReset, error) {
	if s == nil || s.pool == nil {
		return PasswordReset{}, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `SELECT id, user_id, token, expires_at, used_at, created_at
FROM password_resets WHERE token = $1`, token)
	return scanPasswordReset(row)
}

func (s *pgStore) UsePasswordReset(ctx context.Context, token string) error {
	if s == nil || s.pool == nil {
		return ErrStoreUnavailable
	}
	_, err := s.pool.Exec(ctx, `UPDATE password_resets SET used_at = now() WHERE token = $1`, token)
	return err
}

func (s *pgStore) DeletePasswordResetsByUser(ctx context.Context, userID uuid.UUID) error {
	if s == nil || s.pool == nil {
		return ErrStoreUnavailable
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM password_resets WHERE user_id = $1`, userID)
	return err
}

func scanUser(row pgx.Row) (UserRecord, error) {
	var u UserRecord
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Roles, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return UserRecord{}, err
	}
	return u, nil
}

func scanSession(row pgx.Row) (Session, error) {
	var (
		sess      Session
		userAgent *string
		ip        *string
	)
	if err := row.Scan(&sess.ID, &sess.UserID, &sess.RefreshToken, &userAgent, &ip, &sess.ExpiresAt, &sess.CreatedAt); err != nil {
		return Session{}, err
	}
	if userAgent != nil {
		sess.UserAgent = *userAgent
	}
	if ip != nil {
		sess.IP = *ip
	}
	return sess, nil
}

func scanPasswordReset(row pgx.Row) (PasswordReset, error) {
	var pr PasswordReset
	if err := row.Scan(&pr.ID, &pr.UserID, &pr.Token, &pr.ExpiresAt, &pr.UsedAt, &pr.CreatedAt); err != nil {
		return PasswordReset{}, err
	}
	return pr, nil
}
