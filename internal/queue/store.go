package queue

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrStoreUnavailable indicates the DLQ store dependency is not configured.
var ErrStoreUnavailable = errors.New("queue: store unavailable")

// Store persists dead-lettered jobs. Redis holds live jobs; only exhausted
// ones land in Postgres where admins can inspect and replay them.
type Store interface {
	InsertDeadLetter(ctx context.Context, entry DLQEntry) (uuid.UUID, error)
	DeleteDeadLetter(ctx context.Context, id uuid.UUID) error
	GetDeadLetter(ctx context.Context, id uuid.UUID) (DLQEntry, error)
	ListDeadLetters(ctx context.Context, kind string, limit, offset int) ([]DLQEntry, error)
	CountDeadLetters(ctx context.Context, kind string) (int64, error)
	DeadLetterSizeByKind(ctx context.Context) (map[string]int64, error)
}

// DLQEntry is one dead-lettered job.
type DLQEntry struct {
	ID             uuid.UUID
	Kind           string
	IdempotencyKey string
	Payload        []byte
	Attempts       int
	LastError      *string
	CreatedAt      time.Time
}

// NewStore constructs a Store backed by a pgx connection pool.
func NewStore(pool *pgxpool.Pool) Store {
	return &dlqStore{pool: pool}
}

type dlqStore struct {
	pool *pgxpool.Pool
}

func (s *dlqStore) unavailable() bool { return s == nil || s.pool == nil }

const dlqColumns = `id, kind, idem_key, payload, attempts, last_error, created_at`

func scanDLQEntry(row pgx.Row) (DLQEntry, error) {
	var (
		entry   DLQEntry
		lastErr sql.NullString
	)
	err := row.Scan(&entry.ID, &entry.Kind, &entry.IdempotencyKey, &entry.Payload,
		&entry.Attempts, &lastErr, &entry.CreatedAt)
	if err != nil {
		return DLQEntry{}, err
	}
	if lastErr.Valid {
		entry.LastError = &lastErr.String
	}
	return entry, nil
}

func (s *dlqStore) InsertDeadLetter(ctx context.Context, entry DLQEntry) (uuid.UUID, error) {
	if s.unavailable() {
		return uuid.Nil, ErrStoreUnavailable
	}
	var lastError any
	if entry.LastError != nil {
		lastError = *entry.LastError
	}
	var id uuid.UUID
	err := s.pool.QueryRow(ctx,
		`INSERT INTO queue_dlq (kind, idem_key, payload, attempts, last_error)
VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		entry.Kind, entry.IdempotencyKey, entry.Payload, entry.Attempts, lastError).Scan(&id)
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

func (s *dlqStore) DeleteDeadLetter(ctx context.Context, id uuid.UUID) error {
	if s.unavailable() {
		return ErrStoreUnavailable
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM queue_dlq WHERE id = $1`, id)
	return err
}

func (s *dlqStore) GetDeadLetter(ctx context.Context, id uuid.UUID) (DLQEntry, error) {
	if s.unavailable() {
		return DLQEntry{}, ErrStoreUnavailable
	}
	return scanDLQEntry(s.pool.QueryRow(ctx,
		`SELECT `+dlqColumns+` FROM queue_dlq WHERE id = $1`, id))
}

// ListDeadLetters pages entries newest-first; an empty kind means all kinds.
func (s *dlqStore) ListDeadLetters(ctx context.Context, kind string, limit, offset int) ([]DLQEntry, error) {
	if s.unavailable() {
		return nil, ErrStoreUnavailable
	}
	limit = clampPositive(limit, 1, 500)
	offset = max(offset, 0)

	rows, err := s.pool.Query(ctx,
		`SELECT `+dlqColumns+` FROM queue_dlq
WHERE ($1 = '' OR kind = $1) ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		strings.TrimSpace(kind), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]DLQEntry, 0, limit)
	for rows.Next() {
		entry, err := scanDLQEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *dlqStore) CountDeadLetters(ctx context.Context, kind string) (int64, error) {
	if s.unavailable() {
		return 0, ErrStoreUnavailable
	}
	var total int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM queue_dlq WHERE ($1 = '' OR kind = $1)`,
		strings.TrimSpace(kind)).Scan(&total)
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (s *dlqStore) DeadLetterSizeByKind(ctx context.Context) (map[string]int64, error) {
	if s.unavailable() {
		return nil, ErrStoreUnavailable
	}
	rows, err := s.pool.Query(ctx, `SELECT kind, COUNT(*) FROM queue_dlq GROUP BY kind`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sizes := make(map[string]int64)
	for rows.Next() {
		var (
			kind  string
			total int64
		)
		if err := rows.Scan(&kind, &total); err != nil {
			return nil, err
		}
		sizes[kind] = total
	}
	return sizes, rows.Err()
}

func clampPositive(value, lo, hi int) int {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}
