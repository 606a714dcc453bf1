// Package queue implements the Redis-backed job queue behind webhook
// delivery. Jobs wait in a sorted set scored by the instant they become due,
// sit in a lease set while a worker holds them, and land in a Postgres
// dead-letter table once their attempts are exhausted.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/envioex/backend-envioex/internal/resilience"
)

var workerNopLogger = zerolog.Nop()

// pollInterval is how long an idle worker waits before checking the ready
// set again.
const pollInterval = 100 * time.Millisecond

// Job is one unit of queued work. The webhook dispatcher is the only
// producer in this service; it enqueues the delivery row ID as the payload.
type Job struct {
	Kind        string
	Payload     []byte
	DedupKey    string
	Attempt     int
	MaxAttempts int
	Delay       time.Duration
}

// Enqueuer publishes jobs to the ready set.
type Enqueuer struct {
	R           *redis.Client
	Prefix      string
	DedupTTL    time.Duration
	MaxAttempts int
}

// Enqueue schedules the job. A job carrying a dedup key is accepted at most
// once per deduplication window; duplicates are silently dropped.
func (e Enqueuer) Enqueue(ctx context.Context, j Job) error {
	if e.R == nil {
		return errors.New("queue: redis client not configured")
	}
	if !validKind(j.Kind) {
		return fmt.Errorf("queue: invalid job kind %q", j.Kind)
	}
	env := envelope{
		Kind:        j.Kind,
		DedupKey:    j.DedupKey,
		Payload:     j.Payload,
		Attempt:     j.Attempt,
		MaxAttempts: j.MaxAttempts,
	}
	if env.MaxAttempts <= 0 {
		env.MaxAttempts = e.MaxAttempts
	}
	if env.MaxAttempts <= 0 {
		env.MaxAttempts = 10
	}
	env.ReadyAt = time.Now().Add(j.Delay).UnixNano()

	k := keysFor(e.Prefix, j.Kind)
	if env.DedupKey != "" {
		ttl := e.DedupTTL
		if ttl <= 0 {
			ttl = 24 * time.Hour
		}
		fresh, err := e.R.SetNX(ctx, k.dedupFor(env.DedupKey), "1", ttl).Result()
		if err != nil {
			return err
		}
		if !fresh {
			return nil
		}
	}

	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return e.R.ZAdd(ctx, k.ready, redis.Z{Score: float64(env.ReadyAt), Member: raw}).Err()
}

// Worker consumes jobs of a single kind. SoftDeadline bounds how long a
// handler may run; it must stay below VisibilityTimeout so a slow handler is
// cancelled before its lease expires and the job gets handed out twice.
type Worker struct {
	R                 *redis.Client
	Store             Store
	Logger            *zerolog.Logger
	Prefix            string
	Kind              string
	Concurrency       int
	VisibilityTimeout time.Duration
	SoftDeadline      time.Duration
	RetryBase         time.Duration
	RetryJitter       float64
	Handler           func(context.Context, Job) error
}

// Run processes jobs until the context is cancelled. Leases that outlive
// their visibility deadline (a crashed worker, typically) are swept back to
// the ready set once per second.
func (w Worker) Run(ctx context.Context) error {
	if w.R == nil {
		return errors.New("queue: worker redis client not configured")
	}
	if w.Handler == nil {
		return errors.New("queue: worker handler not configured")
	}
	if !validKind(w.Kind) {
		return fmt.Errorf("queue: invalid worker kind %q", w.Kind)
	}

	k := keysFor(w.Prefix, w.Kind)
	visibility := w.VisibilityTimeout
	if visibility <= 0 {
		visibility = 30 * time.Second
	}
	retryBase := w.RetryBase
	if retryBase <= 0 {
		retryBase = 200 * time.Millisecond
	}

	sem := make(chan struct{}, max(w.Concurrency, 1))
	var wg sync.WaitGroup
	sweep := time.NewTicker(time.Second)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return nil
		case <-sweep.C:
			if err := w.reclaimExpired(ctx, k); err != nil {
				wg.Wait()
				return err
			}
		default:
		}

		raw, env, ok, err := w.reserve(ctx, k, visibility)
		if err != nil {
			wg.Wait()
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
		if !ok {
			time.Sleep(pollInterval)
			continue
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(raw string, env envelope) {
			defer wg.Done()
			defer func() { <-sem }()
			w.process(ctx, k, raw, env, retryBase)
		}(raw, env)
	}
}

// reserve pops the next job from the ready set. Jobs popped before they are
// due go straight back; due jobs get their attempt counter bumped and are
// leased under the visibility deadline before being handed out.
func (w Worker) reserve(ctx context.Context, k keyset, visibility time.Duration) (string, envelope, bool, error) {
	popped, err := w.R.ZPopMin(ctx, k.ready, 1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", envelope{}, false, nil
		}
		return "", envelope{}, false, err
	}
	if len(popped) == 0 {
		return "", envelope{}, false, nil
	}
	member, ok := popped[0].Member.(string)
	if !ok {
		return "", envelope{}, false, nil
	}
	env, err := decodeEnvelope(member)
	if err != nil {
		w.log().Warn().Err(err).Msg("drop undecodable job")
		return "", envelope{}, false, nil
	}
	if now := time.Now().UnixNano(); env.ReadyAt > now {
		w.R.ZAdd(ctx, k.ready, redis.Z{Score: float64(env.ReadyAt), Member: member})
		time.Sleep(min(time.Duration(env.ReadyAt-now), time.Second))
		return "", envelope{}, false, nil
	}

	env.Attempt++
	leased, err := json.Marshal(env)
	if err != nil {
		return "", envelope{}, false, err
	}
	deadline := time.Now().Add(visibility).UnixNano()
	if err := w.R.ZAdd(ctx, k.leased, redis.Z{Score: float64(deadline), Member: leased}).Err(); err != nil {
		return "", envelope{}, false, err
	}
	return string(leased), env, true, nil
}

func (w Worker) process(ctx context.Context, k keyset, raw string, env envelope, retryBase time.Duration) {
	jobCtx := ctx
	var cancel context.CancelFunc
	if w.SoftDeadline > 0 {
		jobCtx, cancel = context.WithTimeout(ctx, w.SoftDeadline)
	} else {
		jobCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	err := w.Handler(jobCtx, Job{
		Kind:        env.Kind,
		Payload:     env.Payload,
		DedupKey:    env.DedupKey,
		Attempt:     env.Attempt,
		MaxAttempts: env.MaxAttempts,
	})

	// Bookkeeping must complete even when the worker is shutting down.
	cleanupCtx := context.WithoutCancel(ctx)
	if err == nil {
		w.settle(cleanupCtx, k, raw, env)
		return
	}
	w.retryOrBury(cleanupCtx, k, raw, env, err, retryBase)
}

func (w Worker) settle(ctx context.Context, k keyset, raw string, env envelope) {
	_ = w.R.ZRem(ctx, k.leased, raw).Err()
	if env.DedupKey != "" {
		_ = w.R.Del(ctx, k.dedupFor(env.DedupKey)).Err()
	}
	countProcessed(env.Kind, "ok")
}

func (w Worker) retryOrBury(ctx context.Context, k keyset, raw string, env envelope, cause error, retryBase time.Duration) {
	_ = w.R.ZRem(ctx, k.leased, raw).Err()
	if env.MaxAttempts > 0 && env.Attempt >= env.MaxAttempts {
		w.bury(ctx, k, env, raw, cause)
		return
	}
	env.ReadyAt = time.Now().Add(resilience.Backoff(retryBase, env.Attempt, w.RetryJitter)).UnixNano()
	next, err := json.Marshal(env)
	if err != nil {
		return
	}
	_ = w.R.ZAdd(ctx, k.ready, redis.Z{Score: float64(env.ReadyAt), Member: next}).Err()
	countProcessed(env.Kind, "retry")
}

// bury moves an exhausted job into the dead-letter table where the admin
// endpoints can inspect and replay it. The raw envelope is stored as the
// payload so a replay resumes with the job's full context.
func (w Worker) bury(ctx context.Context, k keyset, env envelope, raw string, cause error) {
	if env.DedupKey != "" {
		_ = w.R.Del(ctx, k.dedupFor(env.DedupKey)).Err()
	}
	if w.Store == nil {
		w.log().Error().Str("kind", env.Kind).Msg("job exhausted with no dead-letter store, dropping")
		return
	}
	lastErr := cause.Error()
	entry := DLQEntry{
		Kind:           env.Kind,
		IdempotencyKey: env.DedupKey,
		Payload:        []byte(raw),
		Attempts:       env.Attempt,
		LastError:      &lastErr,
	}
	if _, err := w.Store.InsertDeadLetter(ctx, entry); err != nil {
		w.log().Error().Err(err).Str("kind", env.Kind).Msg("insert dead-letter entry")
		return
	}
	countProcessed(env.Kind, "dead")
}

func (w Worker) reclaimExpired(ctx context.Context, k keyset) error {
	now := strconv.FormatInt(time.Now().UnixNano(), 10)
	expired, err := w.R.ZRangeByScore(ctx, k.leased, &redis.ZRangeBy{Min: "-inf", Max: now}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return err
	}
	for _, raw := range expired {
		if err := w.R.ZRem(ctx, k.leased, raw).Err(); err != nil {
			continue
		}
		env, err := decodeEnvelope(raw)
		if err != nil {
			continue
		}
		env.ReadyAt = time.Now().UnixNano()
		next, err := json.Marshal(env)
		if err != nil {
			continue
		}
		_ = w.R.ZAdd(ctx, k.ready, redis.Z{Score: float64(env.ReadyAt), Member: next}).Err()
		w.log().Warn().Str("kind", env.Kind).Int("attempt", env.Attempt).Msg("requeue expired lease")
	}
	return nil
}

func (w Worker) log() *zerolog.Logger {
	if w.Logger != nil {
		return w.Logger
	}
	return &workerNopLogger
}

func countProcessed(kind, status string) {
	if QueueProcessedTotal == nil {
		return
	}
	QueueProcessedTotal.WithLabelValues(kind, status).Inc()
}

// keyset holds the Redis key names for one job kind.
type keyset struct {
	ready  string
	leased string
	dedup  string
}

func keysFor(prefix, kind string) keyset {
	base := "q:" + kind
	if prefix != "" {
		base = prefix + ":" + base
	}
	return keyset{
		ready:  base + ":ready",
		leased: base + ":leased",
		dedup:  base + ":dedup:",
	}
}

func (k keyset) dedupFor(key string) string {
	return k.dedup + key
}

func validKind(kind string) bool {
	if kind == "" {
		return false
	}
	return strings.IndexFunc(kind, func(r rune) bool {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_', r == ':':
			return false
		}
		return true
	}) < 0
}

// envelope is the wire form of a job inside the ready and lease sets.
type envelope struct {
	Kind        string `json:"kind"`
	DedupKey    string `json:"dedup,omitempty"`
	Payload     []byte `json:"payload"`
	Attempt     int    `json:"attempt"`
	MaxAttempts int    `json:"max_attempts"`
	ReadyAt     int64  `json:"ready_at"`
}

func decodeEnvelope(raw string) (envelope, error) {
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return envelope{}, err
	}
	return env, nil
}
