package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrStoreUnavailable indicates the audit store dependency is not configured.
var ErrStoreUnavailable = errors.New("audit: store unavailable")

// Entry is a single recorded admin or system action.
type Entry struct {
	ID           uuid.UUID       `json:"id"`
	ActorKind    string          `json:"actor_kind"`
	ActorUserID  *uuid.UUID      `json:"actor_user_id,omitempty"`
	Action       string          `json:"action"`
	ResourceType string          `json:"resource_type"`
	ResourceID   *string         `json:"resource_id,omitempty"`
	Method       string          `json:"method"`
	Path         string          `json:"path"`
	Route        *string         `json:"route,omitempty"`
	Status       int             `json:"status"`
	IP           *string         `json:"ip,omitempty"`
	UserAgent    *string         `json:"user_agent,omitempty"`
	RequestID    *string         `json:"request_id,omitempty"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Store defines the database operations required for auditing.
type Store interface {
	InsertAuditLog(ctx context.Context, entry Entry) error
	ListAuditLogs(ctx context.Context, limit, offset int) ([]Entry, error)
}

// NewStore constructs a Store backed by a pgx connection pool.
func NewStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

type pgStore struct {
	pool *pgxpool.Pool
}

const auditColumns = `id, actor_kind, actor_user_id, action, resource_type, resource_id, method, path, route, status, ip, user_agent, request_id, metadata, created_at`

func (s *pgStore) InsertAuditLog(ctx context.Context, entry Entry) error {
	if s == nil || s.pool == nil {
		return ErrStoreUnavailable
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO audit_logs
(actor_kind, actor_user_id, action, resource_type, resource_id, method, path, route, status, ip, user_agent, request_id, metadata)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		entry.ActorKind, entry.ActorUserID, entry.Action, entry.ResourceType, entry.ResourceID,
		entry.Method, entry.Path, entry.Route, entry.Status, entry.IP, entry.UserAgent,
		entry.RequestID, entry.Metadata)
	return err
}

func (s *pgStore) ListAuditLogs(ctx context.Context, limit, offset int) ([]Entry, error) {
	if s == nil || s.pool == nil {
		return nil, ErrStoreUnavailable
	}
	rows, err := s.pool.Query(ctx, `SELECT `+auditColumns+` FROM audit_logs ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Entry{}
	for rows.Next() {
		var entry Entry
		if err := rows.Scan(&entry.ID, &entry.ActorKind, &entry.ActorUserID, &entry.Action,
			&entry.ResourceType, &entry.ResourceID, &entry.Method, &entry.Path, &entry.Route,
			&entry.Status, &entry.IP, &entry.UserAgent, &entry.RequestID, &entry.Metadata,
			&entry.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}
