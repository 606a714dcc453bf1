package audit

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/envioex/backend-envioex/internal/common"
)

// HTTPRecorder emits an audit entry after the wrapped handler finishes, so
// the recorded status reflects what the client actually received.
type HTTPRecorder struct {
	Service   *Service
	OnError   func(error)
	ActorFunc func(*http.Request) Actor
}

// HTTPConfig describes the entry produced for one route: the action verb,
// the resource touched, and optional per-request metadata.
type HTTPConfig struct {
	Action          string
	ResourceType    string
	ResourceIDParam string
	MetadataFunc    func(*http.Request, int) map[string]any
	ActorFunc       func(*http.Request) Actor
}

// Middleware wraps a route with audit recording. Recording failures never
// fail the request; they go to OnError.
func (rec HTTPRecorder) Middleware(cfg HTTPConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rec.Service == nil || !rec.Service.Enabled {
				next.ServeHTTP(w, r)
				return
			}

			tap := &responseTap{ResponseWriter: w}
			next.ServeHTTP(tap, r)
			status := tap.Status()

			err := rec.Service.Record(r.Context(), rec.resolveActor(r, cfg), cfg.Action,
				cfg.ResourceType, resourceID(r, cfg), r, status, encodeMetadata(r, status, cfg))
			if err != nil && rec.OnError != nil {
				rec.OnError(err)
			}
		})
	}
}

func (rec HTTPRecorder) resolveActor(r *http.Request, cfg HTTPConfig) Actor {
	if cfg.ActorFunc != nil {
		return cfg.ActorFunc(r)
	}
	if rec.ActorFunc != nil {
		return rec.ActorFunc(r)
	}
	if r != nil {
		if userID, ok := common.UserID(r.Context()); ok && userID != "" {
			return Actor{Kind: ActorKindUser, UserID: &userID}
		}
	}
	return Actor{Kind: ActorKindAnonymous}
}

func resourceID(r *http.Request, cfg HTTPConfig) string {
	if cfg.ResourceIDParam == "" {
		return ""
	}
	return chi.URLParam(r, cfg.ResourceIDParam)
}

func encodeMetadata(r *http.Request, status int, cfg HTTPConfig) []byte {
	if cfg.MetadataFunc == nil {
		return nil
	}
	payload := cfg.MetadataFunc(r, status)
	if payload == nil {
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	return data
}

// responseTap captures the status code written by the handler.
type responseTap struct {
	http.ResponseWriter
	status int
}

func (t *responseTap) WriteHeader(code int) {
	t.status = code
	t.ResponseWriter.WriteHeader(code)
}

// Status defaults to 200 because handlers that only call Write never set an
// explicit status.
func (t *responseTap) Status() int {
	if t.status == 0 {
		return http.StatusOK
	}
	return t.status
}
