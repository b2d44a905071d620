// Package fetch performs GET requests against the upstream data APIs with a
// bounded retry policy, exponential backoff and a per-API circuit breaker.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sony/gobreaker"

	"github.com/francis-2008-happy/project1-energy-analysis/internal/observability"
)

var (
	// ErrRateLimited marks an attempt answered with HTTP 429.
	ErrRateLimited = errors.New("rate limited")
	// ErrRetriesExhausted is returned once every attempt allowed by the policy failed.
	ErrRetriesExhausted = errors.New("retries exhausted")
	// ErrCircuitOpen marks an attempt skipped without contacting the API while
	// the breaker is open. It is retried like any other failed attempt.
	ErrCircuitOpen = errors.New("circuit breaker open")

	errStatus = errors.New("unexpected status code")
)

// maxErrorBody caps how much of a failed response body ends up in an error.
const maxErrorBody = 512

// Policy bounds how hard a Fetcher tries.
type Policy struct {
	MaxAttempts int
	BackoffBase time.Duration
	// BreakerThreshold is the number of consecutive failed attempts that
	// opens the breaker. Rate-limited attempts do not count. Zero disables
	// the breaker.
	BreakerThreshold int
}

// Backoff returns the wait after the given zero-based failed attempt:
// BackoffBase * 2^attempt.
func (p Policy) Backoff(attempt int) time.Duration {
	return p.BackoffBase << attempt
}

// RequestFunc builds a fresh request for each attempt.
type RequestFunc func(ctx context.Context) (*http.Request, error)

// Fetcher issues requests for a single upstream source.
type Fetcher struct {
	source  string
	client  *http.Client
	policy  Policy
	breaker *gobreaker.CircuitBreaker
	clock   clockwork.Clock
	metrics *observability.Metrics
	logger  *slog.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithClock replaces the clock used for backoff waits.
func WithClock(c clockwork.Clock) Option {
	return func(f *Fetcher) { f.clock = c }
}

// New creates a Fetcher labelled source ("noaa", "eia") in logs and metrics.
func New(source string, client *http.Client, policy Policy, metrics *observability.Metrics, logger *slog.Logger, opts ...Option) *Fetcher {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	f := &Fetcher{
		source:  source,
		client:  client,
		policy:  policy,
		clock:   clockwork.NewRealClock(),
		metrics: metrics,
		logger:  logger.With("source", source),
	}
	if policy.BreakerThreshold > 0 {
		threshold := uint32(policy.BreakerThreshold)
		f.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    source,
			Timeout: time.Minute,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			// A 429 means the API is up and pacing us; backoff handles it.
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, ErrRateLimited)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				f.logger.Warn("circuit breaker state change", "from", from.String(), "to", to.String())
			},
		})
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Source returns the label this Fetcher was created with.
func (f *Fetcher) Source() string {
	return f.source
}

// Get performs the request, retrying failed attempts until the policy's
// attempt cap, and returns the body of the first 2xx response. Every caller
// gets the full attempt budget: an attempt skipped by the open breaker waits
// out its backoff like any other failure. Rate-limited and skipped attempts
// are logged as warnings and other failures as errors.
func (f *Fetcher) Get(ctx context.Context, build RequestFunc, attrs ...any) ([]byte, error) {
	log := f.logger.With(attrs...)

	var lastErr error
	for attempt := 0; attempt < f.policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		body, err := f.attempt(ctx, build)
		if err == nil {
			f.metrics.FetchRequests.WithLabelValues(f.source, "success").Inc()
			return body, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err

		last := attempt == f.policy.MaxAttempts-1
		wait := f.policy.Backoff(attempt)
		reason := "error"
		switch {
		case errors.Is(err, ErrRateLimited):
			reason = "rate_limited"
			log.Warn("rate limited", "attempt", attempt+1, "wait", wait)
		case errors.Is(err, ErrCircuitOpen):
			reason = "circuit_open"
			log.Warn("request skipped, circuit breaker open", "attempt", attempt+1, "wait", wait)
		default:
			log.Error("request failed", "attempt", attempt+1, "error", err)
		}
		f.metrics.FetchRequests.WithLabelValues(f.source, reason).Inc()

		if last {
			break
		}
		f.metrics.FetchRetries.WithLabelValues(f.source, reason).Inc()
		if !f.sleep(ctx, wait) {
			return nil, ctx.Err()
		}
	}

	log.Error("giving up", "attempts", f.policy.MaxAttempts, "error", lastErr)
	return nil, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, f.policy.MaxAttempts, lastErr)
}

func (f *Fetcher) attempt(ctx context.Context, build RequestFunc) ([]byte, error) {
	req, err := build(ctx)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	start := f.clock.Now()
	defer func() {
		f.metrics.FetchDuration.WithLabelValues(f.source).Observe(f.clock.Since(start).Seconds())
	}()

	if f.breaker == nil {
		return f.do(req)
	}
	result, err := f.breaker.Execute(func() (interface{}, error) {
		return f.do(req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %w", ErrCircuitOpen, err)
	}
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

func (f *Fetcher) do(req *http.Request) ([]byte, error) {
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", f.source, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, ErrRateLimited
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("%w: %d: %s", errStatus, resp.StatusCode, body)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", f.source, err)
	}
	return body, nil
}

func (f *Fetcher) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := f.clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}
