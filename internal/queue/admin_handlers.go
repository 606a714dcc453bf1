package queue

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/envioex/backend-envioex/internal/common"
)

// AdminHandler exposes the dead-letter inspection and replay endpoints plus a
// per-kind stats snapshot. Mounted under the admin router behind auth.
type AdminHandler struct {
	Store             Store
	Queue             Enqueuer
	PageSize          int
	Logger            zerolog.Logger
	VisibilityTimeout time.Duration
}

type dlqItem struct {
	ID        uuid.UUID `json:"id"`
	Kind      string    `json:"kind"`
	DedupKey  string    `json:"dedup_key,omitempty"`
	Attempts  int       `json:"attempts"`
	LastError *string   `json:"last_error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Job       envelope  `json:"job"`
}

func internalError(w http.ResponseWriter, message string) {
	common.JSONError(w, http.StatusInternalServerError, "INTERNAL", message, nil)
}

func badRequest(w http.ResponseWriter, message string) {
	common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", message, nil)
}

// ready rejects requests when the handler is missing its store or queue. The
// stats and replay endpoints additionally need the Redis side.
func (h *AdminHandler) ready(w http.ResponseWriter, needRedis bool) bool {
	switch {
	case h == nil || h.Store == nil:
		internalError(w, "queue store unavailable")
		return false
	case needRedis && h.Queue.R == nil:
		internalError(w, "queue dependencies unavailable")
		return false
	}
	return true
}

// ListDLQ pages dead-lettered jobs newest-first, optionally filtered by kind.
func (h *AdminHandler) ListDLQ(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, false) {
		return
	}
	ctx := r.Context()
	kind := requestedKind(r)
	page, perPage := common.ParsePagination(r, h.pageSize())

	entries, err := h.Store.ListDeadLetters(ctx, kind, perPage, (page-1)*perPage)
	if err != nil {
		internalError(w, err.Error())
		return
	}
	total, err := h.Store.CountDeadLetters(ctx, kind)
	if err != nil {
		internalError(w, err.Error())
		return
	}

	items := make([]dlqItem, 0, len(entries))
	for _, entry := range entries {
		env, err := decodeEnvelope(string(entry.Payload))
		if err != nil {
			h.Logger.Warn().Err(err).Str("id", entry.ID.String()).Msg("skip undecodable dead-letter entry")
			continue
		}
		items = append(items, dlqItem{
			ID:        entry.ID,
			Kind:      entry.Kind,
			DedupKey:  entry.IdempotencyKey,
			Attempts:  entry.Attempts,
			LastError: entry.LastError,
			CreatedAt: entry.CreatedAt,
			Job:       env,
		})
	}

	resp := map[string]any{
		"data":       items,
		"pagination": common.Pagination{Page: page, PerPage: perPage, TotalItems: int(total)},
	}
	if kind != "" {
		resp["kind"] = kind
	}
	common.JSON(w, http.StatusOK, resp)
}

type replayRequest struct {
	IDs   []string `json:"ids"`
	Kind  string   `json:"kind"`
	Limit int      `json:"limit"`
}

// replayOutcome accumulates per-entry results across a replay batch.
type replayOutcome struct {
	replayed []uuid.UUID
	failed   map[string]string
}

func (o *replayOutcome) ok(id uuid.UUID) { o.replayed = append(o.replayed, id) }

func (o *replayOutcome) fail(ref, reason string) {
	if o.failed == nil {
		o.failed = make(map[string]string)
	}
	o.failed[ref] = reason
}

// ReplayDLQ re-enqueues dead-lettered jobs, either an explicit ID list or the
// oldest batch of a kind. Replayed entries leave the dead-letter table;
// entries that cannot be replayed are reported per ID.
func (h *AdminHandler) ReplayDLQ(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, true) {
		return
	}
	var req replayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid payload")
		return
	}
	ids := dedupeIDs(req.IDs)
	kind := strings.TrimSpace(req.Kind)
	if len(ids) == 0 && kind == "" {
		badRequest(w, "ids or kind required")
		return
	}

	ctx := r.Context()
	var outcome replayOutcome
	if len(ids) > 0 {
		h.replayByIDs(ctx, ids, &outcome)
	} else if !h.replayByKind(ctx, w, kind, req.Limit, &outcome) {
		return
	}

	resp := map[string]any{"replayed": outcome.replayed}
	if outcome.replayed == nil {
		resp["replayed"] = []uuid.UUID{}
	}
	if len(outcome.failed) > 0 {
		resp["failed"] = outcome.failed
	}
	common.JSON(w, http.StatusOK, resp)
}

func (h *AdminHandler) replayByIDs(ctx context.Context, ids []string, outcome *replayOutcome) {
	for _, raw := range ids {
		id, err := uuid.Parse(raw)
		if err != nil {
			outcome.fail(raw, "invalid uuid")
			continue
		}
		entry, err := h.Store.GetDeadLetter(ctx, id)
		if err != nil {
			outcome.fail(raw, err.Error())
			continue
		}
		if err := h.replayEntry(ctx, entry); err != nil {
			outcome.fail(id.String(), err.Error())
			continue
		}
		outcome.ok(id)
	}
}

func (h *AdminHandler) replayByKind(ctx context.Context, w http.ResponseWriter, kind string, limit int, outcome *replayOutcome) bool {
	if limit <= 0 {
		limit = h.pageSize()
	}
	entries, err := h.Store.ListDeadLetters(ctx, kind, limit, 0)
	if err != nil {
		internalError(w, err.Error())
		return false
	}
	for _, entry := range entries {
		if err := h.replayEntry(ctx, entry); err != nil {
			outcome.fail(entry.ID.String(), err.Error())
			continue
		}
		outcome.ok(entry.ID)
	}
	return true
}

// Stats reports ready, in-flight and dead-letter depth for one job kind and
// refreshes the corresponding gauges as a side effect.
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, true) {
		return
	}
	kind := requestedKind(r)
	if kind == "" {
		badRequest(w, "kind is required")
		return
	}
	ctx := r.Context()
	k := keysFor(h.Queue.Prefix, kind)

	counts := map[string]int64{}
	for name, key := range map[string]string{"ready": k.ready, "processing": k.leased} {
		n, err := zcard(ctx, h.Queue.R, key)
		if err != nil {
			internalError(w, err.Error())
			return
		}
		counts[name] = n
	}
	dead, err := h.Store.CountDeadLetters(ctx, kind)
	if err != nil {
		internalError(w, err.Error())
		return
	}

	// Age of the oldest ready job, zero when the queue is empty or the head
	// is scheduled in the future.
	var lagMillis int64
	if head, err := h.Queue.R.ZRangeWithScores(ctx, k.ready, 0, 0).Result(); err == nil && len(head) > 0 {
		due := time.Unix(0, int64(head[0].Score))
		if due.Before(time.Now()) {
			lagMillis = time.Since(due).Milliseconds()
		}
	}

	if QueueDepth != nil {
		QueueDepth.WithLabelValues(kind).Set(float64(counts["ready"]))
	}
	if QueueDLQSize != nil {
		QueueDLQSize.WithLabelValues(kind).Set(float64(dead))
	}

	visibility := h.VisibilityTimeout
	if visibility <= 0 {
		visibility = 60 * time.Second
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"kind":               kind,
		"ready":              counts["ready"],
		"processing":         counts["processing"],
		"dlq":                dead,
		"oldest_lag_ms":      lagMillis,
		"visibility_timeout": visibility.Seconds(),
	})
}

// replayEntry pushes the stored envelope back onto the ready set. The
// attempt counter is rewound by one so the retried run reuses the attempt
// number that originally dead-lettered the job.
func (h *AdminHandler) replayEntry(ctx context.Context, entry DLQEntry) error {
	env, err := decodeEnvelope(string(entry.Payload))
	if err != nil {
		return err
	}
	job := Job{
		Kind:        env.Kind,
		Payload:     env.Payload,
		DedupKey:    env.DedupKey,
		Attempt:     max(env.Attempt-1, 0),
		MaxAttempts: env.MaxAttempts,
	}
	if err := h.Queue.Enqueue(ctx, job); err != nil {
		return err
	}
	return h.Store.DeleteDeadLetter(ctx, entry.ID)
}

func (h *AdminHandler) pageSize() int {
	if h.PageSize <= 0 {
		return 50
	}
	return h.PageSize
}

func requestedKind(r *http.Request) string {
	kind := strings.TrimSpace(r.URL.Query().Get("kind"))
	if kind == "" || !validKind(kind) {
		return ""
	}
	return kind
}

func zcard(ctx context.Context, client *redis.Client, key string) (int64, error) {
	n, err := client.ZCard(ctx, key).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, err
	}
	return n, nil
}

func dedupeIDs(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
