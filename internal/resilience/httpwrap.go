package resilience

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"time"
)

// HTTPClient wraps an http.Client with retry, timeout and circuit-breaker
// behavior for outbound webhook calls.
type HTTPClient struct {
	Client      *http.Client
	Breaker     *Breaker
	BaseBackoff time.Duration
	MaxAttempts int
	Jitter      float64
	Timeout     time.Duration
	Fallback    func(context.Context, *http.Request, error) (*http.Response, error)
}

// Do executes the request with retries. The body is buffered so attempts can
// replay it. A 5xx counts as a failure for the breaker and triggers a retry,
// but once attempts are exhausted the final 5xx response is returned to the
// caller so its status and body can be recorded. An open breaker yields
// ErrOpenCircuit unless a fallback is configured.
func (c HTTPClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if c.Client == nil {
		return nil, errors.New("resilience: http client not configured")
	}
	maxAttempts := max(c.MaxAttempts, 1)
	breaker := c.Breaker
	if breaker == nil {
		// Stand-in that cannot trip within this call's attempts.
		breaker = NewBreaker(maxAttempts+1, 1, time.Second)
	}
	backoff := c.BaseBackoff
	if backoff <= 0 {
		backoff = 100 * time.Millisecond
	}

	body, err := bufferBody(req)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if !breaker.Allow(ctx) {
			lastErr = ErrOpenCircuit
			break
		}
		resp, err := c.attempt(ctx, req, body)
		if err == nil && resp.StatusCode < 500 {
			breaker.Report(ctx, true)
			return resp, nil
		}
		breaker.Report(ctx, false)

		final := attempt == maxAttempts
		if err != nil {
			lastErr = err
		} else if final {
			return resp, nil
		} else {
			lastErr = errors.New(resp.Status)
			_ = resp.Body.Close()
		}
		if final {
			break
		}
		if err := sleepFor(ctx, Backoff(backoff, attempt, c.Jitter)); err != nil {
			return nil, err
		}
	}

	if c.Fallback != nil {
		return c.Fallback(ctx, req, lastErr)
	}
	return nil, lastErr
}

// attempt clones the request with a fresh body and runs it under the
// per-attempt timeout.
func (c HTTPClient) attempt(ctx context.Context, req *http.Request, body []byte) (*http.Response, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = c.Client.Timeout
	}
	callCtx, cancel := context.WithCancel(ctx)
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	clone := req.Clone(callCtx)
	if body != nil {
		clone.Body = replayReader(body)
		clone.GetBody = func() (io.ReadCloser, error) { return replayReader(body), nil }
	}
	return c.Client.Do(clone)
}

func sleepFor(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// bufferBody reads the request body into memory and rewires the request so
// every attempt gets a fresh reader.
func bufferBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	source := req.Body
	if req.GetBody != nil {
		fresh, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		source = fresh
	}
	data, err := io.ReadAll(source)
	if err != nil {
		return nil, err
	}
	_ = source.Close()
	req.Body = replayReader(data)
	req.GetBody = func() (io.ReadCloser, error) { return replayReader(data), nil }
	return data, nil
}

func replayReader(data []byte) io.ReadCloser {
	return io.NopCloser(bytes.NewReader(data))
}
