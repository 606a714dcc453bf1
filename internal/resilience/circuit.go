package resilience

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// ErrOpenCircuit is returned when the breaker refuses a request outright.
var ErrOpenCircuit = errors.New("resilience: circuit breaker open")

var nopLogger = zerolog.Nop()

// State is the breaker's position in the closed/open/half-open cycle.
type State int

const (
	// Closed lets everything through while counting failures.
	Closed State = iota
	// Open rejects requests until the cool-off period expires.
	Open
	// HalfOpen lets a single trial request through to test recovery.
	HalfOpen
)

var stateNames = map[State]string{
	Closed:   "closed",
	Open:     "open",
	HalfOpen: "half_open",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// window accumulates request outcomes while the breaker is closed.
type window struct {
	failures  int
	successes int
}

func (w *window) observe(success bool) {
	if success {
		w.successes++
	} else {
		w.failures++
	}
}

func (w *window) total() int { return w.failures + w.successes }

func (w *window) failureRatio() float64 {
	total := w.total()
	if total == 0 {
		return 0
	}
	return float64(w.failures) / float64(total)
}

// shrink halves both counters so a long-running closed breaker reacts to
// recent traffic rather than its whole history.
func (w *window) shrink() {
	w.successes = int(math.Ceil(float64(w.successes) * 0.5))
	w.failures = int(math.Ceil(float64(w.failures) * 0.5))
}

func (w *window) reset() { *w = window{} }

// Breaker is a failure-ratio circuit breaker. The webhook dispatcher keeps
// one per logical downstream; state changes surface as metrics and log lines.
type Breaker struct {
	mu       sync.Mutex
	state    State
	counts   window
	openedAt time.Time

	minRequests  int
	failureRatio float64
	openFor      time.Duration

	target string
	logger *zerolog.Logger
}

// NewBreaker constructs a breaker that opens once at least minRequests
// outcomes are recorded and the failure ratio reaches the threshold.
func NewBreaker(minRequests int, failureRatio float64, openFor time.Duration) *Breaker {
	if minRequests <= 0 {
		minRequests = 1
	}
	switch {
	case failureRatio <= 0:
		failureRatio = 0.5
	case failureRatio > 1:
		failureRatio = 1
	}
	if openFor <= 0 {
		openFor = 30 * time.Second
	}
	return &Breaker{
		minRequests:  minRequests,
		failureRatio: failureRatio,
		openFor:      openFor,
	}
}

// WithTarget sets the logical dependency identifier used for telemetry labels.
func (b *Breaker) WithTarget(target string) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.target = strings.TrimSpace(target)
	b.publishStateLocked()
	return b
}

// WithLogger configures the logger used for transition events.
func (b *Breaker) WithLogger(logger zerolog.Logger) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logger = &logger
	return b
}

// Allow reports whether a request may proceed. An open breaker rejects
// requests until the cool-off period lapses, then admits a single trial request and
// moves to half-open.
func (b *Breaker) Allow(ctx context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != Open {
		return true
	}
	if time.Since(b.openedAt) < b.openFor {
		return false
	}
	b.transitionLocked(ctx, HalfOpen)
	return true
}

// Report records the outcome of a request. In half-open, a single outcome
// decides the next state: success closes the breaker, failure reopens it.
func (b *Breaker) Report(ctx context.Context, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		// Requests finishing after the trip carry no signal.
		return
	case HalfOpen:
		if success {
			b.transitionLocked(ctx, Closed)
		} else {
			b.transitionLocked(ctx, Open)
		}
		return
	}

	b.counts.observe(success)
	if b.counts.total() < b.minRequests {
		return
	}
	if b.counts.failureRatio() >= b.failureRatio {
		b.transitionLocked(ctx, Open)
		return
	}
	if b.counts.total() > b.minRequests*2 {
		b.counts.shrink()
	}
}

func (b *Breaker) transitionLocked(ctx context.Context, next State) {
	prev := b.state
	if prev == next {
		b.publishStateLocked()
		return
	}
	b.state = next
	b.counts.reset()
	switch next {
	case Open:
		b.openedAt = time.Now()
	case Closed:
		b.openedAt = time.Time{}
	}
	b.publishStateLocked()
	b.announceTransition(ctx, prev, next)
}

func (b *Breaker) publishStateLocked() {
	if BreakerState != nil {
		BreakerState.WithLabelValues(b.targetLabel()).Set(stateGaugeValue(b.state))
	}
}

func (b *Breaker) announceTransition(ctx context.Context, from, to State) {
	label := b.targetLabel()
	if BreakerTransitions != nil {
		BreakerTransitions.WithLabelValues(label, from.String(), to.String()).Inc()
	}
	if to == Open && BreakerOpenedTotal != nil {
		BreakerOpenedTotal.WithLabelValues(label).Inc()
	}

	evt := b.loggerFor(ctx).Info().
		Str("target", label).
		Str("from_state", from.String()).
		Str("to_state", to.String())
	if span := trace.SpanContextFromContext(ctx); span.IsValid() {
		evt = evt.Str("trace_id", span.TraceID().String())
	}
	evt.Msg("breaker_transition")
}

func (b *Breaker) targetLabel() string {
	if b.target == "" {
		return "default"
	}
	return b.target
}

func (b *Breaker) loggerFor(ctx context.Context) *zerolog.Logger {
	if ctxLogger := zerolog.Ctx(ctx); ctxLogger != nil {
		logger := ctxLogger.With().Logger()
		return &logger
	}
	if b.logger != nil {
		return b.logger
	}
	return &nopLogger
}

func stateGaugeValue(state State) float64 {
	switch state {
	case Closed:
		return 0
	case Open:
		return 1
	case HalfOpen:
		return 2
	default:
		return -1
	}
}

// Backoff returns an exponential backoff duration for the given attempt,
// doubling from base. Jitter is a fraction of the delay (0.2 means ±20%).
func Backoff(base time.Duration, attempt int, jitterPct float64) time.Duration {
	attempt = max(attempt, 1)
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	delay := base << uint(attempt-1)
	if jitterPct <= 0 {
		return delay
	}
	spread := float64(delay) * jitterPct
	return delay + time.Duration((rand.Float64()*2-1)*spread)
}
