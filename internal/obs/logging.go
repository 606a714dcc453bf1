package obs

import (
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/envioex/backend-envioex/internal/common"
)

// NewLogger builds the process logger. Format "console" or "text" selects the
// human-readable writer for local development; anything else stays JSON. An
// unparseable level falls back to info.
func NewLogger(format, level string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	if lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level))); err == nil {
		zerolog.SetGlobalLevel(lvl)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	return zerolog.New(logWriter(format)).With().Timestamp().Logger()
}

func logWriter(format string) io.Writer {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "console", "text":
		return zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	default:
		return os.Stdout
	}
}

// RequestLogger emits one structured line per HTTP request, correlated with
// the request ID and, when tracing is on, the trace and span IDs.
type RequestLogger struct {
	Logger zerolog.Logger
}

// Middleware implements chi middleware for structured request logs.
func (l RequestLogger) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := NewStatusRecorder(w)
		start := time.Now()
		next.ServeHTTP(recorder, r)
		l.logRequest(r, recorder, time.Since(start))
	})
}

func (l RequestLogger) logRequest(r *http.Request, recorder *StatusRecorder, elapsed time.Duration) {
	route := RoutePatternFromContext(r.Context())
	if route == "" {
		route = r.URL.Path
	}

	evt := l.Logger.Info().
		Str("method", r.Method).
		Str("route", route).
		Str("path", r.URL.Path).
		Int("status", recorder.Status()).
		Int64("duration_ms", elapsed.Milliseconds()).
		Int64("bytes", recorder.BytesWritten()).
		Str("request_id", middleware.GetReqID(r.Context()))

	// Trace fields are always present so log queries never need to branch on
	// whether tracing was enabled.
	traceID, spanID := "", ""
	if span := trace.SpanContextFromContext(r.Context()); span.IsValid() {
		traceID, spanID = span.TraceID().String(), span.SpanID().String()
	}
	evt = evt.Str("trace_id", traceID).Str("span_id", spanID)

	optional := map[string]string{
		"host":        r.Host,
		"remote_addr": r.RemoteAddr,
		"user_agent":  r.UserAgent(),
	}
	if userID, _ := common.UserID(r.Context()); userID != "" {
		optional["user_id"] = userID
	}
	for field, value := range optional {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			evt = evt.Str(field, trimmed)
		}
	}
	evt.Msg("http_request")
}
