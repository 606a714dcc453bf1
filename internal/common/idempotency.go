package common

import (
	"context"
	"net/http"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Idem rejects duplicate writes that reuse an Idempotency-Key header within
// TTL. The key is claimed with SetNX before the handler runs, so two racing
// requests cannot both get through.
type Idem struct {
	R   *redis.Client
	TTL time.Duration
}

func idemRedisKey(header string) string {
	return "idem:" + Sha256Hex(header)
}

func (i Idem) disabled(header string) bool {
	return header == "" || i.R == nil
}

// Middleware enforces idempotency on mutating endpoints. Requests without the
// header pass through untouched.
func (i Idem) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Idempotency-Key")
		if i.disabled(header) {
			next.ServeHTTP(w, r)
			return
		}

		key := idemRedisKey(header)
		claimed, err := i.R.SetNX(r.Context(), key, "locked", i.TTL).Result()
		switch {
		case err != nil:
			JSONError(w, http.StatusInternalServerError, "INTERNAL", "idempotency store error", map[string]any{"error": err.Error()})
			return
		case !claimed:
			JSONError(w, http.StatusConflict, "IDEMPOTENT_REPLAY", "duplicate request", nil)
			return
		}

		defer func() {
			// Re-arm the TTL so the key expires even if the handler panics.
			_ = i.R.Expire(context.Background(), key, i.TTL).Err()
		}()
		next.ServeHTTP(w, r)
	})
}
