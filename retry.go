package producer

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// shouldRetry returns true if the given status code should be retried.
func shouldRetry(statusCode int) bool {
	// Retry on server errors (5xx) and rate limiting (429)
	// Do NOT retry on client errors (4xx except 429)
	if statusCode == http.StatusTooManyRequests {
		return true
	}
	if statusCode >= 500 && statusCode < 600 {
		return true
	}
	return false
}

// parseRetryAfter parses the Retry-After header and returns the delay.
// Returns 0 if the header is not present or invalid.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}

	// Try parsing as seconds
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}

	// Try parsing as HTTP-date
	if t, err := http.ParseTime(header); err == nil {
		delta := time.Until(t)
		if delta > 0 {
			// Cap at 1 hour
			if delta > time.Hour {
				delta = time.Hour
			}
			return delta
		}
	}

	return 0
}

// newTransportBackOff builds the exponential-backoff-with-jitter interval
// generator used for the retryable POST path (100ms initial, 2x multiplier, 10s cap,
// ±10% jitter with the default policy) from a RetryPolicy.
func newTransportBackOff(policy RetryPolicy) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = policy.InitialDelay
	b.MaxInterval = policy.MaxDelay
	b.Multiplier = policy.Multiplier
	b.RandomizationFactor = 0.1
	b.MaxElapsedTime = 0 // bounded by attempt count, not elapsed time
	b.Reset()
	return b
}

// transportDo executes an HTTP request with retry on transient failure:
// network errors and 429/5xx status codes. makeRequest is
// invoked fresh on every attempt so the caller can re-supply a request body.
// Non-retryable statuses (4xx other than 429, and 2xx) are returned verbatim
// without consuming retries.
func transportDo(
	ctx context.Context,
	httpClient *http.Client,
	policy RetryPolicy,
	makeRequest func() (*http.Request, error),
) (*http.Response, error) {
	bo := newTransportBackOff(policy)

	for attempt := 0; ; attempt++ {
		req, err := makeRequest()
		if err != nil {
			return nil, err
		}

		resp, err := httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if attempt >= policy.MaxRetries {
				return nil, err
			}
			if waitErr := sleepFor(ctx, bo.NextBackOff()); waitErr != nil {
				return nil, waitErr
			}
			continue
		}

		if shouldRetry(resp.StatusCode) && attempt < policy.MaxRetries {
			retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()

			wait := bo.NextBackOff()
			if retryAfter > wait {
				wait = retryAfter
			}
			if waitErr := sleepFor(ctx, wait); waitErr != nil {
				return nil, waitErr
			}
			continue
		}

		return resp, nil
	}
}

// sleepFor waits for d or until ctx is cancelled, whichever comes first.
func sleepFor(ctx context.Context, d time.Duration) error {
	if d == backoff.Stop {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// doWithRetry executes a request with retry logic against this stream's
// client-level retry policy. The makeRequest function should create a new
// request on each call (for body re-reading).
func (s *Stream) doWithRetry(
	ctx context.Context,
	makeRequest func() (*http.Request, error),
) (*http.Response, error) {
	return transportDo(ctx, s.client.httpClient, s.client.retryPolicy, makeRequest)
}
