package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/envioex/backend-envioex/internal/common"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 24 * time.Hour
	defaultResetTTL   = 24 * time.Hour

	minPasswordLength = 8

	// pgUniqueViolation is the Postgres error code for a unique constraint
	// breach, used to detect duplicate registrations.
	pgUniqueViolation = "23505"
)

// Service owns credentials, access tokens and refresh sessions. Access
// tokens are short-lived HS256 JWTs; refresh tokens are opaque random
// strings stored hashed, rotated on every use.
type Service struct {
	store      Store
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	resetTTL   time.Duration
	now        func() time.Time
	signer     jwa.SignatureAlgorithm
	validator  TokenValidator
	issuer     string
	audience   string
	clockSkew  time.Duration
}

// Config configures the auth service.
type Config struct {
	Store           Store
	Secret          string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	ResetTokenTTL   time.Duration
	Issuer          string
	Audience        string
	ClockSkew       time.Duration
}

// User is the client-facing shape of an account. It never carries the
// password hash.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Roles     []string  `json:"roles"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LoginResult bundles the token material issued after a successful login.
type LoginResult struct {
	User          User      `json:"user"`
	AccessToken   string    `json:"access_token"`
	RefreshToken  string    `json:"refresh_token"`
	AccessExpiry  time.Time `json:"access_expires_at"`
	RefreshExpiry time.Time `json:"refresh_expires_at"`
}

// RefreshResult carries the rotated token pair.
type RefreshResult struct {
	AccessToken   string    `json:"access_token"`
	AccessExpiry  time.Time `json:"access_expires_at"`
	RefreshToken  string    `json:"refresh_token"`
	RefreshExpiry time.Time `json:"refresh_expires_at"`
}

// NewService constructs a Service, filling in defaults for anything the
// config leaves zero.
func NewService(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("auth: store is required")
	}
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, errors.New("auth: secret is required")
	}

	issuer := firstNonEmpty(strings.TrimSpace(cfg.Issuer), "envioex-api")
	audience := firstNonEmpty(strings.TrimSpace(cfg.Audience), "envioex-dashboard")
	clockSkew := max(cfg.ClockSkew, 0)

	return &Service{
		store:      cfg.Store,
		secret:     []byte(secret),
		accessTTL:  durationOr(cfg.AccessTokenTTL, defaultAccessTTL),
		refreshTTL: durationOr(cfg.RefreshTokenTTL, defaultRefreshTTL),
		resetTTL:   durationOr(cfg.ResetTokenTTL, defaultResetTTL),
		now:        time.Now,
		signer:     jwa.HS256,
		validator: TokenValidator{
			Issuer:    issuer,
			Audience:  audience,
			ClockSkew: clockSkew,
			Algorithm: jwa.HS256,
		},
		issuer:    issuer,
		audience:  audience,
		clockSkew: clockSkew,
	}, nil
}

// WithNow allows tests to override the time provider.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Register creates an account. Emails are stored lowercased; a duplicate
// surfaces as EMAIL_ALREADY_USED rather than a bare constraint error.
func (s *Service) Register(ctx context.Context, name, email, password string) (User, error) {
	name = strings.TrimSpace(name)
	email = normalizeEmail(email)
	switch {
	case name == "":
		return User{}, badRequest("VALIDATION_ERROR", "name is required")
	case email == "":
		return User{}, badRequest("VALIDATION_ERROR", "email is required")
	case len(password) < minPasswordLength:
		return User{}, badRequest("VALIDATION_ERROR", "password must be at least 8 characters")
	}

	hash, err := argon2id.CreateHash(password, argon2id.DefaultParams)
	if err != nil {
		return User{}, fmt.Errorf("auth: hash password: %w", err)
	}

	created, err := s.store.CreateUser(ctx, name, email, hash)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return User{}, common.NewAppError("EMAIL_ALREADY_USED", "email is already registered", http.StatusConflict, err)
		}
		return User{}, fmt.Errorf("auth: create user: %w", err)
	}
	return publicUser(created), nil
}

// Login verifies credentials and opens a session. Every failure path
// returns the same INVALID_CREDENTIALS error so responses do not reveal
// which part was wrong.
func (s *Service) Login(ctx context.Context, email, password, userAgent, ip string) (LoginResult, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return LoginResult{}, invalidCredentials()
	}
	record, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return LoginResult{}, invalidCredentials()
	}
	if ok, err := argon2id.ComparePasswordAndHash(password, record.PasswordHash); err != nil || !ok {
		return LoginResult{}, invalidCredentials()
	}

	accessToken, accessExpiry, err := s.signAccessToken(record.ID.String())
	if err != nil {
		return LoginResult{}, fmt.Errorf("auth: sign access token: %w", err)
	}
	refreshToken, refreshExpiry, err := s.openSession(ctx, record.ID, userAgent, ip)
	if err != nil {
		return LoginResult{}, fmt.Errorf("open session: %w", err)
	}

	return LoginResult{
		User:          publicUser(record),
		AccessToken:   accessToken,
		RefreshToken:  refreshToken,
		AccessExpiry:  accessExpiry,
		RefreshExpiry: refreshExpiry,
	}, nil
}

// Logout revokes the refresh token. A blank token is a no-op so repeated
// logouts stay idempotent.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	token := strings.TrimSpace(refreshToken)
	if token == "" {
		return nil
	}
	return s.store.DeleteSessionByToken(ctx, hashRefreshToken(token))
}

// Refresh rotates the refresh token and issues a fresh access token. An
// expired session is deleted on sight.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (RefreshResult, error) {
	token := strings.TrimSpace(refreshToken)
	if token == "" {
		return RefreshResult{}, invalidRefresh()
	}

	hashed := hashRefreshToken(token)
	session, err := s.store.GetSessionByToken(ctx, hashed)
	if err != nil {
		return RefreshResult{}, invalidRefresh()
	}
	if session.ExpiresAt.IsZero() || s.now().After(session.ExpiresAt) {
		_ = s.store.DeleteSessionByToken(ctx, hashed)
		return RefreshResult{}, invalidRefresh()
	}

	accessToken, accessExpiry, err := s.signAccessToken(session.UserID.String())
	if err != nil {
		return RefreshResult{}, fmt.Errorf("auth: sign access token: %w", err)
	}
	newRefresh, refreshExpiry, err := s.rotateSession(ctx, session.ID)
	if err != nil {
		_ = s.store.DeleteSessionByToken(ctx, hashed)
		return RefreshResult{}, fmt.Errorf("auth: rotate session token: %w", err)
	}

	return RefreshResult{
		AccessToken:   accessToken,
		AccessExpiry:  accessExpiry,
		RefreshToken:  newRefresh,
		RefreshExpiry: refreshExpiry,
	}, nil
}

// Me fetches the authenticated user's profile.
func (s *Service) Me(ctx context.Context, userID string) (User, error) {
	id, err := uuid.Parse(strings.TrimSpace(userID))
	if err != nil {
		return User{}, unauthorized()
	}
	record, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		return User{}, unauthorized()
	}
	return publicUser(record), nil
}

// Forgot issues a password reset token and mails the reset link. Unknown
// emails succeed silently so the endpoint cannot be used to enumerate accounts.
func (s *Service) Forgot(ctx context.Context, email, baseURL string, sender common.EmailSender) error {
	email = normalizeEmail(email)
	if email == "" {
		return nil
	}
	record, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return nil
	}

	token, err := randomToken(32)
	if err != nil {
		return fmt.Errorf("auth: generate reset token: %w", err)
	}
	if _, err := s.store.CreatePasswordReset(ctx, record.ID, token, s.now().Add(s.resetTTL)); err != nil {
		return fmt.Errorf("auth: create password reset: %w", err)
	}
	if sender == nil {
		return nil
	}

	link := strings.TrimRight(baseURL, "/") + "/reset?token=" + token
	if err := sender.Send(record.Email, "Restablecer contraseña", "Usa este enlace para restablecer tu contraseña: "+link); err != nil {
		return fmt.Errorf("auth: send reset email: %w", err)
	}
	return nil
}

// Reset consumes a reset token and sets the new password. All of the user's
// sessions and outstanding reset tokens are revoked, forcing a fresh login
// everywhere.
func (s *Service) Reset(ctx context.Context, token, newPassword string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return badRequest("INVALID_TOKEN", "invalid or expired token")
	}
	if len(newPassword) < minPasswordLength {
		return badRequest("WEAK_PASSWORD", "password must be at least 8 characters")
	}

	reset, err := s.store.GetPasswordResetByToken(ctx, token)
	if err != nil {
		return badRequest("INVALID_TOKEN", "invalid or expired token")
	}
	if reset.UsedAt != nil || reset.ExpiresAt.IsZero() || s.now().After(reset.ExpiresAt) {
		return badRequest("INVALID_TOKEN", "invalid or expired token")
	}

	hash, err := argon2id.CreateHash(newPassword, argon2id.DefaultParams)
	if err != nil {
		return fmt.Errorf("auth: hash password: %w", err)
	}
	if err := s.store.UpdateUserPassword(ctx, reset.UserID, hash); err != nil {
		return fmt.Errorf("auth: update password: %w", err)
	}
	if err := s.store.UsePasswordReset(ctx, token); err != nil {
		return fmt.Errorf("auth: mark reset used: %w", err)
	}
	if err := s.store.DeleteSessionsByUser(ctx, reset.UserID); err != nil {
		return fmt.Errorf("auth: delete sessions: %w", err)
	}
	if err := s.store.DeletePasswordResetsByUser(ctx, reset.UserID); err != nil {
		return fmt.Errorf("auth: delete password resets: %w", err)
	}
	return nil
}

// ParseAccessToken verifies a token end to end and returns its subject. The
// algorithm is read from the token header first and checked against the
// configured one before any signature verification, so an attacker cannot
// downgrade the check by switching algorithms.
func (s *Service) ParseAccessToken(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", common.NewAppError("UNAUTHORIZED", "missing token", http.StatusUnauthorized, nil)
	}
	algorithm, err := tokenAlgorithm(token)
	if err != nil {
		return "", invalidToken(err)
	}
	if s.validator.Algorithm != "" && algorithm != s.validator.Algorithm {
		return "", invalidToken(fmt.Errorf("unexpected token algorithm %s", algorithm))
	}
	parsed, err := jwt.ParseString(token, jwt.WithKey(algorithm, s.secret))
	if err != nil {
		return "", invalidToken(err)
	}
	if err := s.validator.Validate(parsed, algorithm, s.now()); err != nil {
		return "", invalidToken(err)
	}
	return parsed.Subject(), nil
}

// tokenAlgorithm extracts the signing algorithm from the JWS header,
// rejecting unsigned tokens and tokens with inconsistent signatures.
func tokenAlgorithm(token string) (jwa.SignatureAlgorithm, error) {
	message, err := jws.ParseString(token)
	if err != nil {
		return "", err
	}
	signatures := message.Signatures()
	if len(signatures) == 0 {
		return "", errors.New("auth: token contains no signatures")
	}
	var algorithm jwa.SignatureAlgorithm
	for _, sig := range signatures {
		headers := sig.ProtectedHeaders()
		if headers == nil {
			return "", errors.New("auth: token missing protected headers")
		}
		alg := headers.Algorithm()
		switch {
		case alg == "":
			return "", errors.New("auth: token missing algorithm")
		case alg == jwa.NoSignature:
			return "", errors.New("auth: token uses none algorithm")
		case algorithm == "":
			algorithm = alg
		case algorithm != alg:
			return "", errors.New("auth: mixed token algorithms detected")
		}
	}
	return algorithm, nil
}

func (s *Service) signAccessToken(userID string) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.accessTTL)
	token, err := jwt.NewBuilder().
		Subject(userID).
		Issuer(s.issuer).
		Audience([]string{s.audience}).
		IssuedAt(now).
		NotBefore(now.Add(-s.clockSkew)).
		Expiration(expiresAt).
		Build()
	if err != nil {
		return "", time.Time{}, err
	}
	signed, err := jwt.Sign(token, jwt.WithKey(s.signer, s.secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return string(signed), expiresAt, nil
}

func (s *Service) openSession(ctx context.Context, userID uuid.UUID, userAgent, ip string) (string, time.Time, error) {
	if userID == uuid.Nil {
		return "", time.Time{}, errors.New("auth: invalid user identifier")
	}
	token, hashed, expiresAt, err := s.mintRefreshToken()
	if err != nil {
		return "", time.Time{}, err
	}
	if _, err := s.store.CreateSession(ctx, Session{
		UserID:       userID,
		RefreshToken: hashed,
		UserAgent:    strings.TrimSpace(userAgent),
		IP:           strings.TrimSpace(ip),
		ExpiresAt:    expiresAt,
	}); err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

func (s *Service) rotateSession(ctx context.Context, sessionID uuid.UUID) (string, time.Time, error) {
	token, hashed, expiresAt, err := s.mintRefreshToken()
	if err != nil {
		return "", time.Time{}, err
	}
	if err := s.store.RotateSessionToken(ctx, sessionID, hashed, expiresAt); err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

func (s *Service) mintRefreshToken() (string, string, time.Time, error) {
	token, err := randomToken(48)
	if err != nil {
		return "", "", time.Time{}, err
	}
	return token, hashRefreshToken(token), s.now().Add(s.refreshTTL), nil
}

func randomToken(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// hashRefreshToken fingerprints an opaque refresh token for storage; only
// the hash ever touches the database.
func hashRefreshToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func publicUser(u UserRecord) User {
	return User{
		ID:        u.ID.String(),
		Name:      u.Name,
		Email:     u.Email,
		Roles:     u.Roles,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func badRequest(code, message string) *common.AppError {
	return common.NewAppError(code, message, http.StatusBadRequest, nil)
}

func invalidCredentials() *common.AppError {
	return common.NewAppError("INVALID_CREDENTIALS", "invalid email or password", http.StatusUnauthorized, nil)
}

func invalidRefresh() *common.AppError {
	return common.NewAppError("UNAUTHORIZED", "invalid refresh token", http.StatusUnauthorized, nil)
}

func unauthorized() *common.AppError {
	return common.NewAppError("UNAUTHORIZED", "unauthorized", http.StatusUnauthorized, nil)
}

func invalidToken(err error) *common.AppError {
	return common.NewAppError("UNAUTHORIZED", "invalid token", http.StatusUnauthorized, err)
}

func durationOr(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
