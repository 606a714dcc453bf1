package audit

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/envioex/backend-envioex/internal/common"
	"github.com/envioex/backend-envioex/internal/obs"
)

// ActorKind represents the source of an audited action.
type ActorKind string

const (
	// ActorKindUser is a logged-in dashboard account.
	ActorKindUser ActorKind = "user"
	// ActorKindSystem marks writes made by background jobs.
	ActorKindSystem ActorKind = "system"
	// ActorKindAnonymous covers requests with no resolved identity.
	ActorKindAnonymous ActorKind = "anonymous"
)

func (k ActorKind) normalized() ActorKind {
	switch k {
	case ActorKindUser, ActorKindSystem:
		return k
	default:
		return ActorKindAnonymous
	}
}

// Actor describes the entity performing the action.
type Actor struct {
	Kind   ActorKind
	UserID *string
}

// Service writes the audit trail behind admin mutations: tax rule edits,
// invoice changes, webhook endpoint management.
type Service struct {
	Store        Store
	Enabled      bool
	SamplingRate float64
}

// Record persists one audit entry. With a sampling rate below 1 a random
// share of entries is dropped to bound write volume.
func (s Service) Record(ctx context.Context, actor Actor, action, resourceType, resourceID string, req *http.Request, status int, metadata []byte) error {
	switch {
	case !s.Enabled:
		return nil
	case s.SamplingRate > 0 && s.SamplingRate < 1 && rand.Float64() > s.SamplingRate:
		return nil
	case req == nil:
		return errors.New("audit: request is required")
	case s.Store == nil:
		return errors.New("audit: store not configured")
	}

	route := obs.RoutePatternFromContext(req.Context())
	if route == "" {
		route = strings.TrimSpace(req.URL.Path)
	}
	if status == 0 {
		status = http.StatusOK
	}

	return s.Store.InsertAuditLog(ctx, Entry{
		ActorKind:    string(actor.Kind.normalized()),
		ActorUserID:  actorUUID(actor),
		Action:       actionLabel(action, req.Method, route),
		ResourceType: resourceLabel(resourceType, route),
		ResourceID:   trimPtr(resourceID),
		Method:       req.Method,
		Path:         req.URL.Path,
		Route:        trimPtr(route),
		Status:       status,
		IP:           trimPtr(common.ClientIP(req)),
		UserAgent:    trimPtr(req.Header.Get("User-Agent")),
		RequestID:    trimPtr(req.Header.Get("X-Request-ID")),
		Metadata:     metadataJSON(metadata, req.URL.RawQuery),
	})
}

// actionLabel falls back to "<METHOD> <route>" when no explicit action is
// given.
func actionLabel(action, method, route string) string {
	if trimmed := strings.TrimSpace(action); trimmed != "" {
		return trimmed
	}
	if route == "" {
		route = "/"
	}
	return strings.ToUpper(strings.TrimSpace(method)) + " " + route
}

// resourceLabel derives a dotted resource name from the route when no
// explicit type is given, e.g. /api/v1/admin/invoices -> admin.invoices.
func resourceLabel(resourceType, route string) string {
	if trimmed := strings.TrimSpace(resourceType); trimmed != "" {
		return trimmed
	}
	trimmedRoute := strings.Trim(strings.TrimSpace(route), "/")
	if trimmedRoute == "" {
		return "unknown"
	}
	segments := strings.Split(trimmedRoute, "/")
	if len(segments) >= 3 && segments[0] == "api" && segments[1] == "v1" {
		segments = segments[2:]
	}
	return strings.Join(segments, ".")
}

func actorUUID(actor Actor) *uuid.UUID {
	if actor.UserID == nil {
		return nil
	}
	parsed, err := uuid.Parse(strings.TrimSpace(*actor.UserID))
	if err != nil {
		return nil
	}
	return &parsed
}

func trimPtr(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func metadataJSON(metadata []byte, query string) []byte {
	if len(metadata) > 0 {
		return metadata
	}
	if strings.TrimSpace(query) == "" {
		return nil
	}
	data, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return nil
	}
	return data
}
