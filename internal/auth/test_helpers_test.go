package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// fakeStore is an in-memory Store used by the service and handler tests.
type fakeStore struct {
	usersByEmail    map[string]UserRecord
	usersByID       map[uuid.UUID]UserRecord
	sessionsByToken map[string]Session
	resetsByToken   map[string]PasswordReset
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		usersByEmail:    map[string]UserRecord{},
		usersByID:       map[uuid.UUID]UserRecord{},
		sessionsByToken: map[string]Session{},
		resetsByToken:   map[string]PasswordReset{},
	}
}

func (f *fakeStore) CreateUser(_ context.Context, name, email, passwordHash string) (UserRecord, error) {
	if _, exists := f.usersByEmail[email]; exists {
		return UserRecord{}, &pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"}
	}
	now := time.Now()
	user := UserRecord{
		ID:           uuid.New(),
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		Roles:        []string{"user"},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	f.usersByEmail[email] = user
	f.usersByID[user.ID] = user
	return user, nil
}

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (UserRecord, error) {
	user, ok := f.usersByEmail[email]
	if !ok {
		return UserRecord{}, pgx.ErrNoRows
	}
	return user, nil
}

func (f *fakeStore) GetUserByID(_ context.Context, id uuid.UUID) (UserRecord, error) {
	user, ok := f.usersByID[id]
	if !ok {
		return UserRecord{}, pgx.ErrNoRows
	}
	return user, nil
}

func (f *fakeStore) UpdateUserPassword(_ context.Context, id uuid.UUID, passwordHash string) error {
	user, ok := f.usersByID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	user.PasswordHash = passwordHash
	user.UpdatedAt = time.Now()
	f.usersByID[id] = user
	f.usersByEmail[user.Email] = user
	return nil
}

func (f *fakeStore) CreateSession(_ context.Context, in Session) (Session, error) {
	in.ID = uuid.New()
	in.CreatedAt = time.Now()
	f.sessionsByToken[in.RefreshToken] = in
	return in, nil
}

func (f *fakeStore) GetSessionByToken(_ context.Context, hashedToken string) (Session, error) {
	session, ok := f.sessionsByToken[hashedToken]
	if !ok {
		return Session{}, pgx.ErrNoRows
	}
	return session, nil
}

func (f *fakeStore) RotateSessionToken(_ context.Context, id uuid.UUID, hashedToken string, expiresAt time.Time) error {
	for token, session := range f.sessionsByToken {
		if session.ID == id {
			delete(f.sessionsByToken, token)
			session.RefreshToken = hashedToken
			session.ExpiresAt = expiresAt
			f.sessionsByToken[hashedToken] = session
			return nil
		}
	}
	return pgx.ErrNoRows
}

func (f *fakeStore) DeleteSessionByToken(_ context.Context, hashedToken string) error {
	delete(f.sessionsByToken, hashedToken)
	return nil
}

func (f *fakeStore) DeleteSessionsByUser(_ context.Context, userID uuid.UUID) error {
	for token, session := range f.sessionsByToken {
		if session.UserID == userID {
			delete(f.sessionsByToken, token)
		}
	}
	return nil
}

func (f *fakeStore) CreatePasswordReset(_ context.Context, userID uuid.UUID, token string, expiresAt time.Time) (PasswordReset, error) {
	reset := PasswordReset{
		ID:        uuid.New(),
		UserID:    userID,
		Token:     token,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	}
	f.resetsByToken[token] = reset
	return reset, nil
}

func (f *fakeStore) GetPasswordResetByToken(_ context.Context, token string) (PasswordReset, error) {
	reset, ok := f.resetsByToken[token]
	if !ok {
		return PasswordReset{}, pgx.ErrNoRows
	}
	return reset, nil
}

func (f *fakeStore) UsePasswordReset(_ context.Context, token string) error {
	reset, ok := f.resetsByToken[token]
	if !ok {
		return pgx.ErrNoRows
	}
	now := time.Now()
	reset.UsedAt = &now
	f.resetsByToken[token] = reset
	return nil
}

func (f *fakeStore) DeletePasswordResetsByUser(_ context.Context, userID uuid.UUID) error {
	for token, reset := range f.resetsByToken {
		if reset.UserID == userID {
			delete(f.resetsByToken, token)
		}
	}
	return nil
}

// seedUser inserts a user with a hashed password directly into the fake store.
func seedUser(t *testing.T, store *fakeStore, name, email, password string) UserRecord {
	t.Helper()
	hash, err := argon2id.CreateHash(password, argon2id.DefaultParams)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	user, err := store.CreateUser(context.Background(), name, email, hash)
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func newTestService(t *testing.T, store Store) *Service {
	t.Helper()
	svc, err := NewService(Config{
		Store:           store,
		Secret:          "test-secret",
		AccessTokenTTL:  time.Minute,
		RefreshTokenTTL: time.Hour,
		ResetTokenTTL:   time.Hour,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}
